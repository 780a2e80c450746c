package notify

import (
	"context"
	"sync"
)

// Recorded is one captured notification.
type Recorded struct {
	UserID int64
	Notification
}

// RecordedAward is one captured reputation award.
type RecordedAward struct {
	UserID int64
	Action string
	Reason string
}

// Recorder captures gateway calls in memory for inspection in tests.
type Recorder struct {
	mu     sync.Mutex
	sent   []Recorded
	awards []RecordedAward
}

func (r *Recorder) Notify(ctx context.Context, userID int64, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Recorded{UserID: userID, Notification: n})
}

func (r *Recorder) Award(ctx context.Context, userID int64, action, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.awards = append(r.awards, RecordedAward{UserID: userID, Action: action, Reason: reason})
}

// Sent returns a copy of the captured notifications.
func (r *Recorder) Sent() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.sent...)
}

// Awards returns a copy of the captured reputation awards.
func (r *Recorder) Awards() []RecordedAward {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedAward(nil), r.awards...)
}

// ByKind filters captured notifications by kind.
func (r *Recorder) ByKind(kind string) []Recorded {
	var out []Recorded
	for _, n := range r.Sent() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
