package reservation

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flokr/lendhub/internal/db"
	"github.com/flokr/lendhub/internal/ledger"
	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/notify"
	"github.com/flokr/lendhub/internal/restriction"
	"github.com/flokr/lendhub/internal/store"
)

func seedUser(t *testing.T, database *sql.DB, email, role string) int64 {
	t.Helper()
	user, err := store.CreateUser(context.Background(), database, email, "Test User", "x", role)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return user.ID
}

func seedHubItem(t *testing.T, database *sql.DB, total int) (hubID, itemID int64) {
	t.Helper()
	ctx := context.Background()

	hub, err := store.CreateHub(ctx, database, "North Hub", "1 Main St")
	if err != nil {
		t.Fatalf("seeding hub: %v", err)
	}
	item, err := store.CreateItem(ctx, database, hub.ID, "Drill", "", "tools", total)
	if err != nil {
		t.Fatalf("seeding item: %v", err)
	}
	return hub.ID, item.ID
}

func itemCounts(t *testing.T, database *sql.DB, itemID int64) (total, available int) {
	t.Helper()
	err := database.QueryRow(
		`SELECT quantity_total, quantity_available FROM items WHERE id = ?`, itemID,
	).Scan(&total, &available)
	if err != nil {
		t.Fatalf("reading counts: %v", err)
	}
	return total, available
}

// newService builds a service with a controllable clock. Mutating *now
// moves time for the service and its restriction automaton together.
func newService(database *sql.DB, rec *notify.Recorder, now *time.Time) *Service {
	nowFn := func() time.Time { return *now }
	return &Service{
		DB:         database,
		Notifier:   rec,
		Reputation: rec,
		Restrictions: &restriction.Service{
			DB:       database,
			Notifier: rec,
			Now:      nowFn,
		},
		Now: nowFn,
	}
}

func TestCreateHoldsStock(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	res, err := svc.Create(ctx, userID, itemID, 2, "2026-03-11", "2026-03-15")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Status != model.ReservationConfirmed {
		t.Errorf("status = %s, want confirmed", res.Status)
	}

	total, available := itemCounts(t, database, itemID)
	if total != 5 || available != 3 {
		t.Errorf("counts = %d/%d, want 5/3", total, available)
	}
}

func TestCreateValidation(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	cases := []struct {
		name           string
		quantity       int
		pickup, expect model.Date
	}{
		{"zero quantity", 0, "2026-03-11", "2026-03-15"},
		{"pickup in past", 1, "2026-03-09", "2026-03-15"},
		{"return before pickup", 1, "2026-03-11", "2026-03-11"},
	}
	for _, tc := range cases {
		if _, err := svc.Create(ctx, userID, itemID, tc.quantity, tc.pickup, tc.expect); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}

	if _, available := itemCounts(t, database, itemID); available != 5 {
		t.Errorf("available = %d, want 5 (no stock held for rejected requests)", available)
	}
}

func TestCreateInsufficientStock(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 2)

	_, err := svc.Create(context.Background(), userID, itemID, 3, "2026-03-11", "2026-03-15")
	if !errors.Is(err, ledger.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
}

func TestCreateRejectsRestrictedUser(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	until := store.FormatTime(now.AddDate(0, 0, 10))
	if _, err := database.Exec(
		`UPDATE users SET borrowing_restricted_until = ? WHERE id = ?`, until, userID); err != nil {
		t.Fatalf("restricting user: %v", err)
	}

	if _, err := svc.Create(ctx, userID, itemID, 1, "2026-03-11", "2026-03-15"); !errors.Is(err, ErrRestricted) {
		t.Fatalf("err = %v, want ErrRestricted", err)
	}

	// An expired restriction no longer blocks.
	until = store.FormatTime(now.AddDate(0, 0, -1))
	if _, err := database.Exec(
		`UPDATE users SET borrowing_restricted_until = ? WHERE id = ?`, until, userID); err != nil {
		t.Fatalf("updating user: %v", err)
	}
	if _, err := svc.Create(ctx, userID, itemID, 1, "2026-03-11", "2026-03-15"); err != nil {
		t.Fatalf("Create after restriction expiry: %v", err)
	}
}

func TestPickupAndReturnOnTime(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	res, err := svc.Create(ctx, userID, itemID, 2, "2026-03-10", "2026-03-15")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err = svc.Pickup(ctx, res.ID, userID, model.RoleBorrower)
	if err != nil {
		t.Fatalf("Pickup: %v", err)
	}
	if res.Status != model.ReservationPickedUp {
		t.Errorf("status = %s, want picked_up", res.Status)
	}
	if _, available := itemCounts(t, database, itemID); available != 3 {
		t.Errorf("available = %d, want 3 (pickup does not move stock)", available)
	}

	now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	res, err = svc.Return(ctx, res.ID, userID, model.RoleBorrower)
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if res.Status != model.ReservationReturned {
		t.Errorf("status = %s, want returned", res.Status)
	}
	if res.ActualReturnDate == nil || *res.ActualReturnDate != "2026-03-14" {
		t.Errorf("actual return date = %v, want 2026-03-14", res.ActualReturnDate)
	}

	total, available := itemCounts(t, database, itemID)
	if total != 5 || available != 5 {
		t.Errorf("counts = %d/%d, want 5/5 after round trip", total, available)
	}

	awards := rec.Awards()
	if len(awards) != 1 || awards[0].Action != notify.ActionOnTimeReturn {
		t.Errorf("awards = %+v, want one on_time_return", awards)
	}

	user, err := store.GetUser(ctx, database, userID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.LateReturnCount != 0 {
		t.Errorf("late return count = %d, want 0", user.LateReturnCount)
	}
}

func TestReturnLateAppliesPenalty(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	res, err := svc.Create(ctx, userID, itemID, 2, "2026-03-10", "2026-03-12")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Pickup(ctx, res.ID, userID, model.RoleBorrower); err != nil {
		t.Fatalf("Pickup: %v", err)
	}

	now = time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	if _, err := svc.Return(ctx, res.ID, userID, model.RoleBorrower); err != nil {
		t.Fatalf("Return: %v", err)
	}

	if _, available := itemCounts(t, database, itemID); available != 5 {
		t.Errorf("available = %d, want 5 (late return still releases stock)", available)
	}

	user, err := store.GetUser(ctx, database, userID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.LateReturnCount != 1 {
		t.Errorf("late return count = %d, want 1", user.LateReturnCount)
	}
	if user.BorrowingRestrictedUntil != nil {
		t.Error("one late return must not restrict")
	}
	if len(rec.ByKind(notify.KindLateReturn)) != 1 {
		t.Error("expected a late return notice")
	}
	if len(rec.Awards()) != 0 {
		t.Error("late return must not earn reputation")
	}
}

func TestThirdLateReturnRestricts(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	if _, err := database.Exec(`UPDATE users SET late_return_count = 2 WHERE id = ?`, userID); err != nil {
		t.Fatalf("seeding late count: %v", err)
	}

	res, err := svc.Create(ctx, userID, itemID, 1, "2026-03-10", "2026-03-12")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Pickup(ctx, res.ID, userID, model.RoleBorrower); err != nil {
		t.Fatalf("Pickup: %v", err)
	}

	now = time.Date(2026, 3, 13, 12, 0, 0, 0, time.UTC)
	if _, err := svc.Return(ctx, res.ID, userID, model.RoleBorrower); err != nil {
		t.Fatalf("Return: %v", err)
	}

	user, err := store.GetUser(ctx, database, userID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.LateReturnCount != 3 {
		t.Errorf("late return count = %d, want 3", user.LateReturnCount)
	}
	if user.BorrowingRestrictedUntil == nil {
		t.Fatal("third late return must restrict")
	}
	want := now.AddDate(0, 0, restriction.RestrictionDays)
	if !user.BorrowingRestrictedUntil.Equal(want) {
		t.Errorf("restriction end = %v, want %v", user.BorrowingRestrictedUntil, want)
	}
	if len(rec.ByKind(notify.KindRestricted)) != 1 {
		t.Error("expected a restriction notification")
	}
}

func TestConcurrentReturnReleasesOnce(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	alice := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	bob := seedUser(t, database, "bob@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	// Bob's hold of 3 must survive however Alice's returns race.
	if _, err := svc.Create(ctx, bob, itemID, 3, "2026-03-11", "2026-03-20"); err != nil {
		t.Fatalf("Create for bob: %v", err)
	}
	res, err := svc.Create(ctx, alice, itemID, 2, "2026-03-10", "2026-03-15")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Pickup(ctx, res.ID, alice, model.RoleBorrower); err != nil {
		t.Fatalf("Pickup: %v", err)
	}

	// Hold both returns at the clock read so each passes the status
	// check before either opens its write transaction.
	var gate sync.WaitGroup
	gate.Add(2)
	svc.Now = func() time.Time {
		gate.Done()
		gate.Wait()
		return now
	}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Return(ctx, res.ID, alice, model.RoleBorrower)
			errs <- err
		}()
	}

	failures := 0
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("failed returns = %d, want exactly 1", failures)
	}

	if _, available := itemCounts(t, database, itemID); available != 2 {
		t.Errorf("available = %d, want 2 (single release, bob's hold intact)", available)
	}
}

func TestCancelRestoresStock(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	res, err := svc.Create(ctx, userID, itemID, 3, "2026-03-11", "2026-03-15")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err = svc.Cancel(ctx, res.ID, userID, model.RoleBorrower)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Status != model.ReservationCancelled {
		t.Errorf("status = %s, want cancelled", res.Status)
	}
	if _, available := itemCounts(t, database, itemID); available != 5 {
		t.Errorf("available = %d, want 5", available)
	}

	// Cancelling again must not release stock a second time.
	if _, err := svc.Cancel(ctx, res.ID, userID, model.RoleBorrower); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second cancel err = %v, want ErrInvalidTransition", err)
	}
	if _, available := itemCounts(t, database, itemID); available != 5 {
		t.Errorf("available = %d after double cancel, want 5", available)
	}
}

func TestCancelForbiddenForOtherBorrower(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	alice := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	bob := seedUser(t, database, "bob@example.com", model.RoleBorrower)
	steward := seedUser(t, database, "steward@example.com", model.RoleSteward)
	_, itemID := seedHubItem(t, database, 5)

	res, err := svc.Create(ctx, alice, itemID, 1, "2026-03-11", "2026-03-15")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Cancel(ctx, res.ID, bob, model.RoleBorrower); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, err := svc.Cancel(ctx, res.ID, steward, model.RoleSteward); err != nil {
		t.Fatalf("steward cancel: %v", err)
	}
}

func TestExpireReleasesStock(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	res, err := svc.Create(ctx, userID, itemID, 2, "2026-03-11", "2026-03-15")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Expire(ctx, res); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if _, available := itemCounts(t, database, itemID); available != 5 {
		t.Errorf("available = %d, want 5", available)
	}
	if len(rec.ByKind(notify.KindReservationExpired)) != 1 {
		t.Error("expected an expiry notification")
	}
}

func TestMarkOverdueIdempotent(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	res, err := svc.Create(ctx, userID, itemID, 1, "2026-03-10", "2026-03-12")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Pickup(ctx, res.ID, userID, model.RoleBorrower); err != nil {
		t.Fatalf("Pickup: %v", err)
	}

	escalated, err := svc.MarkOverdue(ctx, res.ID)
	if err != nil {
		t.Fatalf("MarkOverdue: %v", err)
	}
	if !escalated {
		t.Error("first escalation should report escalated")
	}

	escalated, err = svc.MarkOverdue(ctx, res.ID)
	if err != nil {
		t.Fatalf("second MarkOverdue: %v", err)
	}
	if escalated {
		t.Error("second escalation should be a no-op")
	}

	// Stock stays held while overdue.
	if _, available := itemCounts(t, database, itemID); available != 4 {
		t.Errorf("available = %d, want 4", available)
	}

	// An overdue reservation can still be returned.
	now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	returned, err := svc.Return(ctx, res.ID, userID, model.RoleBorrower)
	if err != nil {
		t.Fatalf("Return of overdue: %v", err)
	}
	if returned.Status != model.ReservationReturned {
		t.Errorf("status = %s, want returned", returned.Status)
	}
	if _, available := itemCounts(t, database, itemID); available != 5 {
		t.Errorf("available = %d, want 5", available)
	}
}

func TestExtensionFlow(t *testing.T) {
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newService(database, rec, &now)
	ctx := context.Background()

	userID := seedUser(t, database, "alice@example.com", model.RoleBorrower)
	_, itemID := seedHubItem(t, database, 5)

	res, err := svc.Create(ctx, userID, itemID, 1, "2026-03-10", "2026-03-12")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Pickup(ctx, res.ID, userID, model.RoleBorrower); err != nil {
		t.Fatalf("Pickup: %v", err)
	}

	// Approval without a request is rejected.
	if _, err := svc.ApproveExtension(ctx, res.ID, "2026-03-20"); err == nil {
		t.Fatal("expected error approving without a request")
	}

	res, err = svc.RequestExtension(ctx, res.ID, userID)
	if err != nil {
		t.Fatalf("RequestExtension: %v", err)
	}
	if !res.ExtensionRequested {
		t.Error("extension_requested should be set")
	}

	res, err = svc.ApproveExtension(ctx, res.ID, "2026-03-20")
	if err != nil {
		t.Fatalf("ApproveExtension: %v", err)
	}
	if !res.ExtensionApproved {
		t.Error("extension_approved should be set")
	}
	if res.ExpectedReturnDate != "2026-03-20" {
		t.Errorf("expected return date = %s, want 2026-03-20", res.ExpectedReturnDate)
	}
}
