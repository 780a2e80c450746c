package transfer

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/flokr/lendhub/internal/db"
	"github.com/flokr/lendhub/internal/ledger"
	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/notify"
	"github.com/flokr/lendhub/internal/store"
)

type fixture struct {
	db      *sql.DB
	rec     *notify.Recorder
	svc     *Service
	steward int64
	fromHub int64
	toHub   int64
	itemID  int64
}

func newFixture(t *testing.T, total int) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	steward, err := store.CreateUser(ctx, database, "sam@example.com", "Sam", "x", model.RoleSteward)
	if err != nil {
		t.Fatalf("seeding steward: %v", err)
	}
	fromHub, err := store.CreateHub(ctx, database, "North Hub", "")
	if err != nil {
		t.Fatalf("seeding hub: %v", err)
	}
	toHub, err := store.CreateHub(ctx, database, "South Hub", "")
	if err != nil {
		t.Fatalf("seeding hub: %v", err)
	}
	item, err := store.CreateItem(ctx, database, fromHub.ID, "Drill", "", "tools", total)
	if err != nil {
		t.Fatalf("seeding item: %v", err)
	}

	rec := &notify.Recorder{}
	return &fixture{
		db:  database,
		rec: rec,
		svc: &Service{
			DB:       database,
			Notifier: rec,
			Now:      func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
		},
		steward: steward.ID,
		fromHub: fromHub.ID,
		toHub:   toHub.ID,
		itemID:  item.ID,
	}
}

func (f *fixture) counts(t *testing.T, itemID int64) (total, available int) {
	t.Helper()
	err := f.db.QueryRow(
		`SELECT quantity_total, quantity_available FROM items WHERE id = ?`, itemID,
	).Scan(&total, &available)
	if err != nil {
		t.Fatalf("reading counts: %v", err)
	}
	return total, available
}

func (f *fixture) totalUnits(t *testing.T) int {
	t.Helper()
	var sum int
	err := f.db.QueryRow(`SELECT COALESCE(SUM(quantity_total), 0) FROM items WHERE deleted_at IS NULL`).Scan(&sum)
	if err != nil {
		t.Fatalf("summing units: %v", err)
	}
	return sum
}

func TestInitiateHoldsStock(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	tr, err := f.svc.Initiate(ctx, f.itemID, f.fromHub, f.toHub, 4, f.steward, "rebalance")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if tr.Status != model.TransferPending {
		t.Errorf("status = %s, want pending", tr.Status)
	}

	total, available := f.counts(t, f.itemID)
	if total != 10 || available != 6 {
		t.Errorf("counts = %d/%d, want 10/6", total, available)
	}
	if got := f.totalUnits(t); got != 10 {
		t.Errorf("total units = %d, want 10", got)
	}
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	if _, err := f.svc.Initiate(ctx, f.itemID, f.fromHub, f.fromHub, 1, f.steward, ""); err == nil {
		t.Error("expected error for same-hub transfer")
	}
	if _, err := f.svc.Initiate(ctx, f.itemID, f.fromHub, f.toHub, 0, f.steward, ""); err == nil {
		t.Error("expected error for zero quantity")
	}
	if _, err := f.svc.Initiate(ctx, f.itemID, f.toHub, f.fromHub, 1, f.steward, ""); err == nil {
		t.Error("expected error when item is not at the source hub")
	}
	if _, err := f.svc.Initiate(ctx, f.itemID, f.fromHub, f.toHub, 11, f.steward, ""); !errors.Is(err, ledger.ErrInsufficientStock) {
		t.Errorf("err = %v, want ErrInsufficientStock", err)
	}

	if _, available := f.counts(t, f.itemID); available != 10 {
		t.Errorf("available = %d, want 10 (nothing held)", available)
	}
}

func TestCompleteMovesTotals(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	tr, err := f.svc.Initiate(ctx, f.itemID, f.fromHub, f.toHub, 4, f.steward, "rebalance")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if tr, err = f.svc.Approve(ctx, tr.ID, f.steward); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if tr.Status != model.TransferInTransit {
		t.Errorf("status = %s, want in_transit", tr.Status)
	}

	tr, err = f.svc.Complete(ctx, tr.ID, f.steward, "delivered")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if tr.Status != model.TransferCompleted {
		t.Errorf("status = %s, want completed", tr.Status)
	}

	srcTotal, srcAvailable := f.counts(t, f.itemID)
	if srcTotal != 6 || srcAvailable != 6 {
		t.Errorf("source counts = %d/%d, want 6/6", srcTotal, srcAvailable)
	}

	var destID int64
	var destTotal, destAvailable int
	err = f.db.QueryRow(
		`SELECT id, quantity_total, quantity_available FROM items WHERE hub_id = ? AND name = 'Drill'`,
		f.toHub).Scan(&destID, &destTotal, &destAvailable)
	if err != nil {
		t.Fatalf("reading destination item: %v", err)
	}
	if destTotal != 4 || destAvailable != 4 {
		t.Errorf("destination counts = %d/%d, want 4/4", destTotal, destAvailable)
	}
	if got := f.totalUnits(t); got != 10 {
		t.Errorf("total units = %d, want 10 (conservation)", got)
	}
}

func TestCompleteMergesIntoExistingItem(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	// Destination already stocks the same item.
	existing, err := store.CreateItem(ctx, f.db, f.toHub, "Drill", "", "tools", 3)
	if err != nil {
		t.Fatalf("seeding destination item: %v", err)
	}

	tr, err := f.svc.Initiate(ctx, f.itemID, f.fromHub, f.toHub, 4, f.steward, "")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if tr, err = f.svc.Approve(ctx, tr.ID, f.steward); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err = f.svc.Complete(ctx, tr.ID, f.steward, ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	destTotal, destAvailable := f.counts(t, existing.ID)
	if destTotal != 7 || destAvailable != 7 {
		t.Errorf("destination counts = %d/%d, want 7/7", destTotal, destAvailable)
	}

	var itemCount int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM items WHERE hub_id = ? AND name = 'Drill'`,
		f.toHub).Scan(&itemCount); err != nil {
		t.Fatalf("counting destination items: %v", err)
	}
	if itemCount != 1 {
		t.Errorf("destination items = %d, want 1 (merged, not duplicated)", itemCount)
	}
	if got := f.totalUnits(t); got != 13 {
		t.Errorf("total units = %d, want 13", got)
	}
}

func TestCancelRestoresStock(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	tr, err := f.svc.Initiate(ctx, f.itemID, f.fromHub, f.toHub, 4, f.steward, "")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	tr, err = f.svc.Cancel(ctx, tr.ID, f.steward, "no longer needed")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if tr.Status != model.TransferCancelled {
		t.Errorf("status = %s, want cancelled", tr.Status)
	}

	total, available := f.counts(t, f.itemID)
	if total != 10 || available != 10 {
		t.Errorf("counts = %d/%d, want 10/10", total, available)
	}

	if _, err := f.svc.Cancel(ctx, tr.ID, f.steward, "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second cancel err = %v, want ErrInvalidTransition", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	tr, err := f.svc.Initiate(ctx, f.itemID, f.fromHub, f.toHub, 2, f.steward, "")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	// Pending transfers cannot be completed.
	if _, err := f.svc.Complete(ctx, tr.ID, f.steward, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("complete pending err = %v, want ErrInvalidTransition", err)
	}

	if tr, err = f.svc.Approve(ctx, tr.ID, f.steward); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	// Approving twice is rejected.
	if _, err := f.svc.Approve(ctx, tr.ID, f.steward); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double approve err = %v, want ErrInvalidTransition", err)
	}

	if tr, err = f.svc.Complete(ctx, tr.ID, f.steward, ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// Completing twice must not move stock a second time.
	if _, err := f.svc.Complete(ctx, tr.ID, f.steward, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double complete err = %v, want ErrInvalidTransition", err)
	}
	if srcTotal, _ := f.counts(t, f.itemID); srcTotal != 8 {
		t.Errorf("source total = %d, want 8 (one move only)", srcTotal)
	}
	if got := f.totalUnits(t); got != 10 {
		t.Errorf("total units = %d, want 10 (conservation)", got)
	}
	// Completed transfers cannot be cancelled.
	if _, err := f.svc.Cancel(ctx, tr.ID, f.steward, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel completed err = %v, want ErrInvalidTransition", err)
	}
}
