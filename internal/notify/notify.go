// Package notify defines the outbound gateways for user notifications
// and reputation awards. Both are fire-and-forget: implementations log
// delivery failures and never surface them, so a gateway outage can not
// roll back the business transition that triggered the message.
package notify

import "context"

// Notification kinds, used as routing keys by the AMQP publisher.
const (
	KindReservationExpired  = "reservation_expired"
	KindPickupReminder      = "pickup_reminder"
	KindReturnReminder      = "return_reminder"
	KindOverdue             = "overdue"
	KindStewardOverdue      = "steward_overdue_alert"
	KindLateReturn          = "late_return"
	KindRestrictionWarning  = "restriction_warning"
	KindRestricted          = "borrowing_restricted"
	KindRestrictionLifted   = "restriction_lifted"
	KindRestrictionEnding   = "restriction_ending"
	KindTransferInitiated   = "transfer_initiated"
	KindTransferIncoming    = "transfer_incoming"
	KindTransferApproved    = "transfer_approved"
	KindTransferCompleted   = "transfer_completed"
	KindTransferReceived    = "transfer_received"
	KindTransferCancelled   = "transfer_cancelled"
	KindItemFlagged         = "item_flagged"
	KindItemFlagResolved    = "item_flag_resolved"
)

// Reputation actions.
const (
	ActionOnTimeReturn       = "on_time_return"
	ActionConsecutiveReturns = "consecutive_returns"
)

// Notification is one message for one recipient. Data carries a typed
// payload struct from payloads.go rather than a free-form map.
type Notification struct {
	Kind    string
	Title   string
	Message string
	Data    any
}

// Notifier delivers notifications to users.
type Notifier interface {
	Notify(ctx context.Context, userID int64, n Notification)
}

// Reputation awards reputation points for positive borrower behavior.
type Reputation interface {
	Award(ctx context.Context, userID int64, action, reason string)
}
