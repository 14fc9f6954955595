package shift

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tilldesk/possync/internal/db"
	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/store"
	"github.com/tilldesk/possync/internal/sync/queue"
	"github.com/tilldesk/possync/internal/sync/reconcile"
)

const (
	testStoreID    = "store-1"
	testRegisterID = "reg-1"
)

type shiftHarness struct {
	store   *store.Store
	queue   *queue.Queue
	repo    *Repository
	service *Service
}

func setupShift(t *testing.T) *shiftHarness {
	t.Helper()

	database, err := db.OpenAndMigrate(t.TempDir())
	if err != nil {
		t.Fatalf("OpenAndMigrate() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	s := store.New(database)
	repo := NewRepository(s, testRegisterID)
	service, err := NewService(s, repo, NewSummaries(s), models.Registration{
		StoreID:        testStoreID,
		CashRegisterID: testRegisterID,
	})
	if err != nil {
		t.Fatalf("NewService() failed: %v", err)
	}
	return &shiftHarness{
		store:   s,
		queue:   queue.New(s.DB()),
		repo:    repo,
		service: service,
	}
}

func TestOpenCommitsLocallyWithoutNetwork(t *testing.T) {
	h := setupShift(t)

	sh, err := h.service.Open(context.Background(), OpenRequest{
		InitialCash:    100,
		OpenedByUserID: "u1",
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if sh.ID != 0 {
		t.Errorf("id = %d, want 0 before sync", sh.ID)
	}
	if sh.Status != models.ShiftStatusOpen {
		t.Errorf("status = %q, want open", sh.Status)
	}
	if sh.SyncStatus != models.SyncStatusPending {
		t.Errorf("sync_status = %q, want pending", sh.SyncStatus)
	}
	if sh.StoreID != testStoreID || sh.CashRegisterID != testRegisterID {
		t.Errorf("registration not applied: store=%q register=%q", sh.StoreID, sh.CashRegisterID)
	}

	items, err := h.queue.ListPending()
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue length = %d, want exactly one create", len(items))
	}
	if items[0].Action != models.ActionCreate || items[0].DataID != sh.ShiftNumber {
		t.Errorf("queued %q for %q, want create for %q", items[0].Action, items[0].DataID, sh.ShiftNumber)
	}

	var summary models.ShiftSummary
	if err := h.store.GetJSON(models.EntityShiftSummary, sh.ShiftNumber, &summary); err != nil {
		t.Fatalf("summary missing: %v", err)
	}
	if summary.InitialCash != 100 {
		t.Errorf("summary initial cash = %v, want 100", summary.InitialCash)
	}
}

func TestOpenWhileOpenConflicts(t *testing.T) {
	h := setupShift(t)

	if _, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 50, OpenedByUserID: "u1"}); err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}

	_, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 50, OpenedByUserID: "u1"})
	if !apperrors.IsConflict(err) {
		t.Fatalf("second Open() = %v, want CONFLICT", err)
	}

	// The failed open must leave no trace.
	count, _ := h.queue.PendingCount()
	if count != 1 {
		t.Errorf("queue length = %d, want 1", count)
	}
}

func TestOpenValidatesInput(t *testing.T) {
	h := setupShift(t)

	if _, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 10}); !apperrors.IsValidation(err) {
		t.Errorf("missing user = %v, want VALIDATION_ERROR", err)
	}
	if _, err := h.service.Open(context.Background(), OpenRequest{InitialCash: -1, OpenedByUserID: "u1"}); !apperrors.IsValidation(err) {
		t.Errorf("negative cash = %v, want VALIDATION_ERROR", err)
	}

	count, _ := h.queue.PendingCount()
	if count != 0 {
		t.Errorf("queue length = %d, want 0 after rejected opens", count)
	}
}

func TestCloseCommitsAndClearsCurrentOffline(t *testing.T) {
	h := setupShift(t)

	sh, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 100, OpenedByUserID: "u1"})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	closed, err := h.service.Close(context.Background(), CloseRequest{
		ShiftNumber:      sh.ShiftNumber,
		ClosedByUserID:   "u2",
		InventoryBalance: 42,
		Notes:            "till balanced",
	})
	if err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if closed.Status != models.ShiftStatusClosed {
		t.Errorf("status = %q, want closed", closed.Status)
	}
	if closed.ClosedAt == 0 || closed.ClosedByUserID != "u2" {
		t.Errorf("close fields not set: closed_at=%d closed_by=%q", closed.ClosedAt, closed.ClosedByUserID)
	}

	current, err := h.service.Current()
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if current != nil {
		t.Errorf("current = %v, want nil after close", current.ShiftNumber)
	}

	// Queue holds create then close, in that order, with a full snapshot
	// on the close so the server can replay create-then-close.
	items, err := h.queue.ListPending()
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if len(items) != 2 || items[0].Action != models.ActionCreate || items[1].Action != models.ActionClose {
		t.Fatalf("queue = %v items, want [create, close]", len(items))
	}
	var snapshot models.Shift
	if err := json.Unmarshal(items[1].Payload, &snapshot); err != nil {
		t.Fatalf("close payload decode failed: %v", err)
	}
	if snapshot.InitialCash != 100 || snapshot.Status != models.ShiftStatusClosed {
		t.Errorf("close payload incomplete: cash=%v status=%q", snapshot.InitialCash, snapshot.Status)
	}
}

func TestCloseUnknownOrAlreadyClosedShift(t *testing.T) {
	h := setupShift(t)

	_, err := h.service.Close(context.Background(), CloseRequest{ShiftNumber: "nope", ClosedByUserID: "u1"})
	if !apperrors.IsNotFound(err) {
		t.Errorf("unknown shift = %v, want NOT_FOUND", err)
	}

	sh, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 10, OpenedByUserID: "u1"})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := h.service.Close(context.Background(), CloseRequest{ShiftNumber: sh.ShiftNumber, ClosedByUserID: "u1"}); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	_, err = h.service.Close(context.Background(), CloseRequest{ShiftNumber: sh.ShiftNumber, ClosedByUserID: "u1"})
	if !apperrors.IsNotFound(err) {
		t.Errorf("second close = %v, want NOT_FOUND", err)
	}
}

func TestOpenAfterCloseStartsNewShift(t *testing.T) {
	h := setupShift(t)

	first, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 10, OpenedByUserID: "u1"})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := h.service.Close(context.Background(), CloseRequest{ShiftNumber: first.ShiftNumber, ClosedByUserID: "u1"}); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	second, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 20, OpenedByUserID: "u1"})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if second.ShiftNumber == first.ShiftNumber {
		t.Errorf("shift number %q reused", second.ShiftNumber)
	}
}

func TestShiftNumberCollisionBumpsWithinSameSecond(t *testing.T) {
	h := setupShift(t)
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	h.service.now = func() time.Time { return fixed }

	first, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 10, OpenedByUserID: "u1"})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := h.service.Close(context.Background(), CloseRequest{ShiftNumber: first.ShiftNumber, ClosedByUserID: "u1"}); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	second, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 10, OpenedByUserID: "u1"})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if second.ShiftNumber == first.ShiftNumber {
		t.Error("same-second reopen reused the shift number")
	}
}

func TestCurrentFallsBackToDurableStore(t *testing.T) {
	h := setupShift(t)

	sh, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 10, OpenedByUserID: "u1"})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	// A fresh repository simulates a process restart with a cold cache.
	cold := &Repository{store: h.store, registerID: testRegisterID}
	current, err := cold.Current()
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if current == nil || current.ShiftNumber != sh.ShiftNumber {
		t.Errorf("cold cache current = %v, want %q", current, sh.ShiftNumber)
	}
}

func TestRepositoryObservesReconciledID(t *testing.T) {
	h := setupShift(t)

	sh, err := h.service.Open(context.Background(), OpenRequest{InitialCash: 10, OpenedByUserID: "u1"})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	reconciler := reconcile.New(h.store)
	reconciler.OnReconciled(models.EntityShift, h.repo.Refresh)

	if err := reconciler.Reconcile(models.EntityShift, sh.ShiftNumber, 77); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}

	current, err := h.service.Current()
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if current == nil || current.ID != 77 {
		t.Errorf("current id = %v, want 77", current)
	}
	if current.ShiftNumber != sh.ShiftNumber {
		t.Errorf("shift number changed to %q", current.ShiftNumber)
	}
}

func TestShiftNumberIsSortableAndRegisterScoped(t *testing.T) {
	early := NewShiftNumber("reg-1", time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC))
	late := NewShiftNumber("reg-1", time.Date(2026, 1, 2, 17, 30, 0, 0, time.UTC))
	if !(early < late) {
		t.Errorf("numbers not sortable: %q vs %q", early, late)
	}
	other := NewShiftNumber("reg-2", time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC))
	if early == other {
		t.Error("different registers produced the same number")
	}
}

func TestSummaryUpdateRecreatesMissingAsDegraded(t *testing.T) {
	h := setupShift(t)
	summaries := NewSummaries(h.store)

	err := summaries.Update("missing-shift", func(sum *models.ShiftSummary) {
		sum.SalesTotal += 25
		sum.OrderCount++
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	sum, err := summaries.Get("missing-shift")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !sum.Degraded {
		t.Error("re-created summary not flagged degraded")
	}
	if sum.SalesTotal != 25 || sum.OrderCount != 1 {
		t.Errorf("counters = %v/%v, want 25/1", sum.SalesTotal, sum.OrderCount)
	}
}
