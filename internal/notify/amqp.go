package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// envelope is the wire format published to the exchange.
type envelope struct {
	ID      string    `json:"id"`
	UserID  int64     `json:"user_id"`
	Kind    string    `json:"kind"`
	Title   string    `json:"title,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// AMQPGateway publishes notifications and reputation awards as JSON
// messages on a topic exchange. The delivery service consumes them on
// its own schedule; publish failures are logged and dropped.
type AMQPGateway struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// DialAMQP connects to the broker and declares the topic exchange.
func DialAMQP(url, exchange string) (*AMQPGateway, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPGateway{conn: conn, ch: ch, exchange: exchange}, nil
}

// Close releases the channel and connection.
func (g *AMQPGateway) Close() {
	if g.ch != nil {
		_ = g.ch.Close()
	}
	if g.conn != nil {
		_ = g.conn.Close()
	}
}

func (g *AMQPGateway) publish(ctx context.Context, routingKey string, env envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		slog.Error("marshaling gateway message", "routing_key", routingKey, "error", err)
		return
	}
	err = g.ch.PublishWithContext(ctx, g.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   env.ID,
		Body:        body,
	})
	if err != nil {
		slog.Error("publishing gateway message", "routing_key", routingKey, "error", err)
	}
}

// Notify publishes a user notification under "notify.user.<kind>".
func (g *AMQPGateway) Notify(ctx context.Context, userID int64, n Notification) {
	g.publish(ctx, "notify.user."+n.Kind, envelope{
		ID:      uuid.NewString(),
		UserID:  userID,
		Kind:    n.Kind,
		Title:   n.Title,
		Message: n.Message,
		Data:    n.Data,
		SentAt:  time.Now().UTC(),
	})
}

// Award publishes a reputation award under "reputation.award".
func (g *AMQPGateway) Award(ctx context.Context, userID int64, action, reason string) {
	g.publish(ctx, "reputation.award", envelope{
		ID:      uuid.NewString(),
		UserID:  userID,
		Kind:    action,
		Message: reason,
		SentAt:  time.Now().UTC(),
	})
}
