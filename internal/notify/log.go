package notify

import (
	"context"
	"log/slog"
)

// LogGateway writes notifications and awards to the log instead of a
// broker. Used in development and when no AMQP URL is configured.
type LogGateway struct{}

func (LogGateway) Notify(ctx context.Context, userID int64, n Notification) {
	slog.Info("notification", "user", userID, "kind", n.Kind, "title", n.Title, "message", n.Message)
}

func (LogGateway) Award(ctx context.Context, userID int64, action, reason string) {
	slog.Info("reputation award", "user", userID, "action", action, "reason", reason)
}
