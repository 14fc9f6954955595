package reconcile

import (
	"testing"

	"github.com/tilldesk/possync/internal/db"
	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/store"
)

func setup(t *testing.T) (*store.Store, *Reconciler) {
	t.Helper()

	database, err := db.OpenAndMigrate(t.TempDir())
	if err != nil {
		t.Fatalf("OpenAndMigrate() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	s := store.New(database)
	return s, New(s)
}

func putShift(t *testing.T, s *store.Store, shift *models.Shift) {
	t.Helper()
	if err := s.Put(models.EntityShift, shift.ShiftNumber, shift); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
}

func TestReconcileSetsServerIDAndStatus(t *testing.T) {
	s, r := setup(t)
	putShift(t, s, &models.Shift{
		ShiftNumber: "REG-01-20260826-081500",
		ID:          0,
		Status:      models.ShiftStatusOpen,
		SyncStatus:  models.SyncStatusPending,
		InitialCash: 100,
	})

	if err := r.Reconcile(models.EntityShift, "REG-01-20260826-081500", 42); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}

	var got models.Shift
	if err := s.GetJSON(models.EntityShift, "REG-01-20260826-081500", &got); err != nil {
		t.Fatalf("GetJSON() failed: %v", err)
	}
	if got.ID != 42 {
		t.Errorf("id = %d, want 42", got.ID)
	}
	if got.SyncStatus != models.SyncStatusSynced {
		t.Errorf("sync_status = %q, want synced", got.SyncStatus)
	}
	// The local key and everything else must be untouched.
	if got.ShiftNumber != "REG-01-20260826-081500" {
		t.Errorf("shift_number changed to %q", got.ShiftNumber)
	}
	if got.InitialCash != 100 {
		t.Errorf("initial_cash changed to %v", got.InitialCash)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	s, r := setup(t)
	putShift(t, s, &models.Shift{ShiftNumber: "s1", SyncStatus: models.SyncStatusPending})

	hookCalls := 0
	r.OnReconciled(models.EntityShift, func(localKey string) { hookCalls++ })

	if err := r.Reconcile(models.EntityShift, "s1", 7); err != nil {
		t.Fatalf("first Reconcile() failed: %v", err)
	}
	if err := r.Reconcile(models.EntityShift, "s1", 7); err != nil {
		t.Fatalf("second Reconcile() failed: %v", err)
	}

	var got models.Shift
	if err := s.GetJSON(models.EntityShift, "s1", &got); err != nil {
		t.Fatalf("GetJSON() failed: %v", err)
	}
	if got.ID != 7 {
		t.Errorf("id = %d, want 7", got.ID)
	}
	if hookCalls != 1 {
		t.Errorf("hook calls = %d, want 1 (no side effects on repeat)", hookCalls)
	}
}

func TestReconcileMissingEntity(t *testing.T) {
	_, r := setup(t)

	err := r.Reconcile(models.EntityShift, "ghost", 7)
	if !apperrors.IsNotFound(err) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestReconcileRejectsSentinelID(t *testing.T) {
	s, r := setup(t)
	putShift(t, s, &models.Shift{ShiftNumber: "s1"})

	err := r.Reconcile(models.EntityShift, "s1", 0)
	if !apperrors.IsValidation(err) {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestReconcileNotifiesHookWithLocalKey(t *testing.T) {
	s, r := setup(t)
	putShift(t, s, &models.Shift{ShiftNumber: "s1"})

	var gotKey string
	r.OnReconciled(models.EntityShift, func(localKey string) { gotKey = localKey })

	if err := r.Reconcile(models.EntityShift, "s1", 9); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if gotKey != "s1" {
		t.Errorf("hook key = %q, want s1", gotKey)
	}
}
