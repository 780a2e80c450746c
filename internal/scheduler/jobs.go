package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/notify"
	"github.com/flokr/lendhub/internal/reservation"
	"github.com/flokr/lendhub/internal/restriction"
	"github.com/flokr/lendhub/internal/store"
)

// Job names, also the manual-run identifiers.
const (
	JobExpireReservations   = "expire_pending_reservations"
	JobPickupReminders      = "send_pickup_reminders"
	JobReturnReminders      = "send_return_reminders"
	JobOverdueReminders     = "send_overdue_reminders"
	JobLiftRestrictions     = "lift_expired_restrictions"
	JobRestrictionReminders = "send_restriction_reminders"
	JobCleanup              = "cleanup_old_reservations"
	JobReport               = "generate_reservation_report"
)

// Steward alerting starts once an item is this many days overdue.
const stewardAlertDays = 3

// Terminal reservations older than this are eligible for archival.
const archiveAfterDays = 90

// Env holds the collaborators the jobs operate on.
type Env struct {
	DB           *sql.DB
	Reservations *reservation.Service
	Restrictions *restriction.Service
	Notifier     notify.Notifier
	Now          func() time.Time
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Jobs builds the full periodic job set: hourly expiry, daily reminders
// and escalation, weekly housekeeping.
func Jobs(env Env) []Job {
	return []Job{
		{Name: JobExpireReservations, Every: time.Hour, Run: env.expireReservations},
		{Name: JobPickupReminders, Every: 24 * time.Hour, Run: env.pickupReminders},
		{Name: JobReturnReminders, Every: 24 * time.Hour, Run: env.returnReminders},
		{Name: JobOverdueReminders, Every: 24 * time.Hour, Run: env.overdueReminders},
		{Name: JobLiftRestrictions, Every: 24 * time.Hour, Run: env.liftRestrictions},
		{Name: JobRestrictionReminders, Every: 24 * time.Hour, Run: env.restrictionReminders},
		{Name: JobCleanup, Every: 7 * 24 * time.Hour, Run: env.cleanup},
		{Name: JobReport, Every: 24 * time.Hour, Run: env.report},
	}
}

// expireReservations cancels reservations whose pickup date passed
// without pickup, restoring their held stock.
func (e Env) expireReservations(ctx context.Context) (Summary, error) {
	summary := Summary{Job: JobExpireReservations}

	expired, err := store.ListExpiredPending(ctx, e.DB, model.DateOf(e.now()))
	if err != nil {
		return summary, err
	}

	for i := range expired {
		if err := e.Reservations.Expire(ctx, &expired[i]); err != nil {
			summary.Failed++
			slog.Error("expiring reservation", "reservation", expired[i].ID, "error", err)
			continue
		}
		summary.Succeeded++
	}
	return summary, nil
}

// pickupReminders notifies borrowers whose pickup is tomorrow.
func (e Env) pickupReminders(ctx context.Context) (Summary, error) {
	summary := Summary{Job: JobPickupReminders}

	tomorrow := model.DateOf(e.now()).AddDays(1)
	due, err := store.ListPickupsDueOn(ctx, e.DB, tomorrow)
	if err != nil {
		return summary, err
	}

	for _, res := range due {
		e.Notifier.Notify(ctx, res.UserID, notify.Notification{
			Kind:    notify.KindPickupReminder,
			Title:   "Pickup tomorrow",
			Message: fmt.Sprintf("Don't forget to pick up '%s' tomorrow at %s!", res.ItemName, res.HubName),
			Data: notify.ReservationData{
				ReservationID: res.ID,
				ItemName:      res.ItemName,
				HubName:       res.HubName,
				PickupDate:    res.PickupDate,
			},
		})
		summary.Succeeded++
	}
	return summary, nil
}

// returnReminders notifies borrowers whose return is due tomorrow.
func (e Env) returnReminders(ctx context.Context) (Summary, error) {
	summary := Summary{Job: JobReturnReminders}

	tomorrow := model.DateOf(e.now()).AddDays(1)
	due, err := store.ListReturnsDueOn(ctx, e.DB, tomorrow)
	if err != nil {
		return summary, err
	}

	for _, res := range due {
		e.Notifier.Notify(ctx, res.UserID, notify.Notification{
			Kind:  notify.KindReturnReminder,
			Title: "Return due tomorrow",
			Message: fmt.Sprintf("Please return '%s' to %s tomorrow. Need more time? Request an extension!",
				res.ItemName, res.HubName),
			Data: notify.ReservationData{
				ReservationID: res.ID,
				ItemName:      res.ItemName,
				HubName:       res.HubName,
				ReturnDate:    res.ExpectedReturnDate,
			},
		})
		summary.Succeeded++
	}
	return summary, nil
}

// shouldRemind implements the escalation cadence: 1, 3, and 7 days
// overdue, then every 7 days.
func shouldRemind(daysOverdue int) bool {
	switch {
	case daysOverdue == 1 || daysOverdue == 3 || daysOverdue == 7:
		return true
	case daysOverdue > 7 && daysOverdue%7 == 0:
		return true
	}
	return false
}

// overdueReminders escalates picked-up reservations past their return
// date to overdue (keeping the stock held) and sends cadenced reminders
// to the borrower, alerting the hub stewards from three days on.
func (e Env) overdueReminders(ctx context.Context) (Summary, error) {
	summary := Summary{Job: JobOverdueReminders}

	today := model.DateOf(e.now())
	overdue, err := store.ListOverdue(ctx, e.DB, today)
	if err != nil {
		return summary, err
	}

	for _, res := range overdue {
		daysOverdue := today.DaysSince(res.ExpectedReturnDate)

		if res.Status != model.ReservationOverdue {
			if _, err := e.Reservations.MarkOverdue(ctx, res.ID); err != nil {
				summary.Failed++
				slog.Error("escalating reservation", "reservation", res.ID, "error", err)
				continue
			}
		}

		if !shouldRemind(daysOverdue) {
			continue
		}

		urgency := ""
		if daysOverdue >= 7 {
			urgency = "URGENT: "
		}
		e.Notifier.Notify(ctx, res.UserID, notify.Notification{
			Kind:  notify.KindOverdue,
			Title: urgency + "Item overdue",
			Message: fmt.Sprintf("'%s' is %d day(s) overdue. Please return it to %s as soon as possible.",
				res.ItemName, daysOverdue, res.HubName),
			Data: notify.OverdueData{
				ReservationID:      res.ID,
				ItemName:           res.ItemName,
				HubName:            res.HubName,
				DaysOverdue:        daysOverdue,
				ExpectedReturnDate: res.ExpectedReturnDate,
				Urgent:             daysOverdue >= 7,
			},
		})

		if daysOverdue >= stewardAlertDays {
			e.alertStewards(ctx, res, daysOverdue)
		}
		summary.Succeeded++
	}
	return summary, nil
}

func (e Env) alertStewards(ctx context.Context, res model.Reservation, daysOverdue int) {
	stewards, err := store.ListStewardIDs(ctx, e.DB, res.HubID)
	if err != nil {
		slog.Error("listing stewards for overdue alert", "hub", res.HubID, "error", err)
		return
	}
	for _, stewardID := range stewards {
		e.Notifier.Notify(ctx, stewardID, notify.Notification{
			Kind:  notify.KindStewardOverdue,
			Title: "Overdue item alert",
			Message: fmt.Sprintf("'%s' is %d days overdue. Borrower: %s",
				res.ItemName, daysOverdue, res.UserName),
			Data: notify.OverdueData{
				ReservationID:      res.ID,
				ItemName:           res.ItemName,
				HubName:            res.HubName,
				BorrowerName:       res.UserName,
				DaysOverdue:        daysOverdue,
				ExpectedReturnDate: res.ExpectedReturnDate,
				Urgent:             daysOverdue >= 7,
			},
		})
	}
}

// liftRestrictions lifts borrowing restrictions whose end has passed.
func (e Env) liftRestrictions(ctx context.Context) (Summary, error) {
	summary := Summary{Job: JobLiftRestrictions}

	count, err := e.Restrictions.LiftExpiredRestrictions(ctx)
	if err != nil {
		return summary, err
	}
	summary.Succeeded = count
	return summary, nil
}

// restrictionReminders notifies users whose restriction ends soon.
func (e Env) restrictionReminders(ctx context.Context) (Summary, error) {
	summary := Summary{Job: JobRestrictionReminders}

	count, err := e.Restrictions.SendApproachingReminders(ctx)
	if err != nil {
		return summary, err
	}
	summary.Succeeded = count
	return summary, nil
}

// cleanup counts terminal reservations old enough to archive. History
// is never deleted; the count is logged for the archival process.
func (e Env) cleanup(ctx context.Context) (Summary, error) {
	summary := Summary{Job: JobCleanup}

	cutoff := e.now().AddDate(0, 0, -archiveAfterDays)
	count, err := store.CountOldTerminal(ctx, e.DB, store.FormatTime(cutoff))
	if err != nil {
		return summary, err
	}

	summary.Succeeded = count
	summary.Note = fmt.Sprintf("%d reservations eligible for archival", count)
	slog.Info("cleanup sweep", "eligible_for_archival", count)
	return summary, nil
}

// report logs the daily reservation activity snapshot.
func (e Env) report(ctx context.Context) (Summary, error) {
	summary := Summary{Job: JobReport}

	stats, err := store.ReservationStats(ctx, e.DB, model.DateOf(e.now()))
	if err != nil {
		return summary, err
	}

	slog.Info("daily reservation report",
		"date", stats.Date, "total_active", stats.TotalActive,
		"created_today", stats.CreatedToday, "returned_today", stats.ReturnedToday,
		"overdue", stats.Overdue)
	summary.Succeeded = 1
	summary.Note = fmt.Sprintf("%d active, %d overdue", stats.TotalActive, stats.Overdue)
	return summary, nil
}
