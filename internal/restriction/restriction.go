// Package restriction tracks late-return counts and imposes time-boxed
// borrowing restrictions on repeat offenders.
package restriction

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/notify"
	"github.com/flokr/lendhub/internal/store"
)

// Thresholds and durations for the late-return policy.
const (
	WarningThreshold     = 2  // late returns before a warning is sent
	RestrictionThreshold = 3  // late returns before borrowing is restricted
	RestrictionDays      = 30 // length of a restriction
	GraceDays            = 7  // window for "ending soon" reminders
)

// Service applies and lifts borrowing restrictions. All collaborators
// are explicit so tests can substitute the notifier and the clock.
type Service struct {
	DB       *sql.DB
	Notifier notify.Notifier
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ApplyLateReturnPenalty increments the user's late-return count and
// notifies the user: a plain late notice below the restriction
// threshold (with a warning added at the warning threshold), or a
// restriction notice once the threshold is reached. The count and
// restriction are committed before any notification goes out.
func (s *Service) ApplyLateReturnPenalty(ctx context.Context, userID int64, res *model.Reservation) error {
	now := s.now()

	daysLate := 0
	if res.ActualReturnDate != nil {
		daysLate = res.ActualReturnDate.DaysSince(res.ExpectedReturnDate)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT late_return_count FROM users WHERE id = ? AND deleted_at IS NULL`, userID,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return fmt.Errorf("user not found")
	}
	if err != nil {
		return fmt.Errorf("reading late return count: %w", err)
	}

	count++
	var restrictionEnd *time.Time
	if count >= RestrictionThreshold {
		end := now.Add(RestrictionDays * 24 * time.Hour)
		restrictionEnd = &end
	}

	if restrictionEnd != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET late_return_count = ?, borrowing_restricted_until = ? WHERE id = ?`,
			count, store.FormatTime(*restrictionEnd), userID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET late_return_count = ? WHERE id = ?`, count, userID)
	}
	if err != nil {
		return fmt.Errorf("updating late return count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing penalty: %w", err)
	}

	slog.Info("late return penalty applied",
		"user", userID, "reservation", res.ID, "count", count, "days_late", daysLate)

	if restrictionEnd != nil {
		s.Notifier.Notify(ctx, userID, notify.Notification{
			Kind:  notify.KindRestricted,
			Title: "Borrowing privileges temporarily restricted",
			Message: fmt.Sprintf(
				"Due to %d late returns, your borrowing privileges are restricted until %s. You can still return current items. The restriction lifts automatically on that date.",
				count, restrictionEnd.Format("January 2, 2006")),
			Data: notify.RestrictionData{
				LateReturnCount: count,
				RestrictionEnd:  store.FormatTime(*restrictionEnd),
				RestrictionDays: RestrictionDays,
			},
		})
		return nil
	}

	// Below the restriction threshold every late return gets the plain
	// notice; hitting the warning threshold adds a warning on top.
	if count == WarningThreshold {
		s.Notifier.Notify(ctx, userID, notify.Notification{
			Kind:  notify.KindRestrictionWarning,
			Title: "Borrowing privilege notice",
			Message: fmt.Sprintf(
				"You've had %d late returns. One more late return will temporarily restrict your borrowing privileges. Please return items on time.",
				count),
			Data: notify.LateReturnData{LateReturnCount: count, Threshold: RestrictionThreshold},
		})
	}
	s.Notifier.Notify(ctx, userID, notify.Notification{
		Kind:  notify.KindLateReturn,
		Title: "Late return recorded",
		Message: fmt.Sprintf(
			"You returned %s %d day(s) late. Please try to return items on time to keep the community running smoothly.",
			res.ItemName, daysLate),
		Data: notify.LateReturnData{
			ReservationID:   res.ID,
			DaysLate:        daysLate,
			LateReturnCount: count,
			Threshold:       RestrictionThreshold,
		},
	})

	return nil
}

// LiftRestriction clears a user's restriction. Returns false without
// mutating anything if the user is not restricted. liftedBy and reason
// default to "System" / "Restriction period ended".
func (s *Service) LiftRestriction(ctx context.Context, userID int64, liftedBy, reason string) (bool, error) {
	user, err := store.GetUser(ctx, s.DB, userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, fmt.Errorf("user not found")
	}
	if user.BorrowingRestrictedUntil == nil {
		return false, nil
	}

	_, err = s.DB.ExecContext(ctx,
		`UPDATE users SET borrowing_restricted_until = NULL WHERE id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("lifting restriction: %w", err)
	}

	if liftedBy == "" {
		liftedBy = "System"
	}
	if reason == "" {
		reason = "Restriction period ended"
	}

	slog.Info("restriction lifted", "user", userID, "by", liftedBy, "reason", reason)

	s.Notifier.Notify(ctx, userID, notify.Notification{
		Kind:    notify.KindRestrictionLifted,
		Title:   "Borrowing privileges restored",
		Message: "Your borrowing privileges have been restored. You can now make new reservations. Please remember to return items on time.",
		Data:    notify.RestrictionData{LiftedBy: liftedBy, Reason: reason},
	})

	return true, nil
}

// LiftExpiredRestrictions lifts every restriction whose end has passed,
// returning the number lifted. A failure on one user does not stop the
// rest.
func (s *Service) LiftExpiredRestrictions(ctx context.Context) (int, error) {
	users, err := store.ListRestrictedBefore(ctx, s.DB, store.FormatTime(s.now()))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, user := range users {
		lifted, err := s.LiftRestriction(ctx, user.ID, "", "")
		if err != nil {
			slog.Error("lifting expired restriction", "user", user.ID, "error", err)
			continue
		}
		if lifted {
			count++
		}
	}
	return count, nil
}

// SendApproachingReminders notifies users whose restriction ends within
// the grace window. Firing daily produces repeat reminders; that is
// accepted behavior.
func (s *Service) SendApproachingReminders(ctx context.Context) (int, error) {
	now := s.now()
	end := now.Add(GraceDays * 24 * time.Hour)

	users, err := store.ListRestrictionEndingBetween(ctx, s.DB, store.FormatTime(now), store.FormatTime(end))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, user := range users {
		daysRemaining := int(user.BorrowingRestrictedUntil.Sub(now).Hours() / 24)
		s.Notifier.Notify(ctx, user.ID, notify.Notification{
			Kind:  notify.KindRestrictionEnding,
			Title: "Your borrowing privileges will be restored soon",
			Message: fmt.Sprintf(
				"Your borrowing restriction will be lifted in %d day(s). After that, you can make new reservations.",
				daysRemaining),
			Data: notify.RestrictionData{
				DaysRemaining:  daysRemaining,
				RestrictionEnd: store.FormatTime(*user.BorrowingRestrictedUntil),
			},
		})
		count++
	}
	return count, nil
}

// Status is the read-only projection of a user's restriction state.
type Status struct {
	IsRestricted    bool   `json:"is_restricted"`
	CanBorrow       bool   `json:"can_borrow"`
	LateReturnCount int    `json:"late_return_count"`
	Threshold       int    `json:"threshold"`
	RestrictionEnd  string `json:"restriction_end,omitempty"`
	DaysRemaining   int    `json:"days_remaining,omitempty"`
	Message         string `json:"message"`
}

// GetStatus builds the restriction projection for a user. No state change.
func (s *Service) GetStatus(ctx context.Context, userID int64) (*Status, error) {
	user, err := store.GetUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	now := s.now()
	st := &Status{
		IsRestricted:    user.RestrictedAt(now),
		LateReturnCount: user.LateReturnCount,
		Threshold:       RestrictionThreshold,
	}
	st.CanBorrow = !st.IsRestricted

	switch {
	case st.IsRestricted:
		st.RestrictionEnd = store.FormatTime(*user.BorrowingRestrictedUntil)
		st.DaysRemaining = int(user.BorrowingRestrictedUntil.Sub(now).Hours() / 24)
		st.Message = fmt.Sprintf("Your borrowing privileges are restricted for %d more day(s).", st.DaysRemaining)
	case user.LateReturnCount > 0:
		remaining := RestrictionThreshold - user.LateReturnCount
		st.Message = fmt.Sprintf("You have %d late return(s). %d more will result in temporary restriction.",
			user.LateReturnCount, remaining)
	default:
		st.Message = "Your borrowing privileges are in good standing."
	}

	return st, nil
}
