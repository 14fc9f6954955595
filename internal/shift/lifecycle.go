// Package shift implements the cashier shift state machine on top of the
// local store and the sync queue. Open and close are optimistic: they
// commit locally and return before any network traffic, leaving delivery
// to the sync engine.
package shift

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/store"
)

// Service drives the shift lifecycle for one cash register. All state
// transitions are serialized through its mutex, so two concurrent closes
// of the same shift cannot both succeed.
type Service struct {
	store        *store.Store
	repo         *Repository
	summaries    *Summaries
	registration models.Registration

	mu  sync.Mutex
	now func() time.Time
}

// NewService creates the lifecycle service. The registration identifies
// the register this terminal writes for and must be valid.
func NewService(s *store.Store, repo *Repository, summaries *Summaries, reg models.Registration) (*Service, error) {
	if !reg.Valid() {
		return nil, apperrors.Validation("registration must carry store and cash register ids")
	}
	return &Service{
		store:        s,
		repo:         repo,
		summaries:    summaries,
		registration: reg,
		now:          time.Now,
	}, nil
}

// OpenRequest carries the caller-supplied fields for opening a shift.
type OpenRequest struct {
	InitialCash      float64
	InventoryBalance float64
	OpenedByUserID   string
	Notes            string
}

// CloseRequest carries the caller-supplied fields for closing a shift.
type CloseRequest struct {
	ShiftNumber      string
	ClosedByUserID   string
	InventoryBalance float64
	Notes            string
}

// Open transitions NoShift to Open. It refuses with a conflict while any
// shift is open on this register, writes the new shift and its create
// queue item in one transaction, and returns without waiting for the
// network. A failed summary initialization degrades the summary but never
// fails the open.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*models.Shift, error) {
	if req.OpenedByUserID == "" {
		return nil, apperrors.Validation("opened_by_user_id is required")
	}
	if req.InitialCash < 0 {
		return nil, apperrors.Validation("initial cash cannot be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.Current()
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, apperrors.Newf(apperrors.ErrConflict,
			"shift %s is already open on register %s", current.ShiftNumber, s.registration.CashRegisterID)
	}

	openedAt := s.now()
	shiftNumber, err := s.uniqueShiftNumber(openedAt)
	if err != nil {
		return nil, err
	}

	sh := &models.Shift{
		ShiftNumber:      shiftNumber,
		ID:               0,
		StoreID:          s.registration.StoreID,
		CashRegisterID:   s.registration.CashRegisterID,
		Status:           models.ShiftStatusOpen,
		OpenedAt:         openedAt.Unix(),
		InitialCash:      req.InitialCash,
		InventoryBalance: req.InventoryBalance,
		SyncStatus:       models.SyncStatusPending,
		OpenedByUserID:   req.OpenedByUserID,
		Notes:            req.Notes,
	}

	item, err := queueItem(models.ActionCreate, sh)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutWithQueue(models.EntityShift, shiftNumber, sh, item); err != nil {
		return nil, err
	}
	s.repo.SetCurrent(sh)

	if err := s.summaries.Init(shiftNumber, req.InitialCash); err != nil {
		// Derived data only. The shift is open; cashier operations proceed.
		slog.Error("shift summary initialization failed, summary will be degraded",
			"shift_number", shiftNumber,
			"error", err)
	}

	slog.Info("shift opened",
		"shift_number", shiftNumber,
		"register_id", s.registration.CashRegisterID,
		"initial_cash", req.InitialCash)
	return sh, nil
}

// Close transitions Open to Closed. The shift is looked up strictly by its
// shift number. The close commits locally in one transaction, the current
// pointer is cleared before returning, and the queued close item carries
// the full snapshot so the server can apply create-then-close when the
// create has not synced yet.
func (s *Service) Close(ctx context.Context, req CloseRequest) (*models.Shift, error) {
	if req.ShiftNumber == "" {
		return nil, apperrors.Validation("shift_number is required")
	}
	if req.ClosedByUserID == "" {
		return nil, apperrors.Validation("closed_by_user_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var sh models.Shift
	if err := s.store.GetJSON(models.EntityShift, req.ShiftNumber, &sh); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "shift %s does not exist", req.ShiftNumber)
		}
		return nil, err
	}
	if !sh.IsOpen() {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "shift %s is not open", req.ShiftNumber)
	}

	sh.Status = models.ShiftStatusClosed
	sh.ClosedAt = s.now().Unix()
	sh.ClosedByUserID = req.ClosedByUserID
	sh.InventoryBalance = req.InventoryBalance
	if req.Notes != "" {
		if sh.Notes != "" {
			sh.Notes += "\n"
		}
		sh.Notes += req.Notes
	}

	item, err := queueItem(models.ActionClose, &sh)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutWithQueue(models.EntityShift, sh.ShiftNumber, &sh, item); err != nil {
		return nil, err
	}
	s.repo.ClearCurrent()

	slog.Info("shift closed",
		"shift_number", sh.ShiftNumber,
		"register_id", s.registration.CashRegisterID)
	return &sh, nil
}

// Current returns the open shift for this register, or nil when none is
// open.
func (s *Service) Current() (*models.Shift, error) {
	return s.repo.Current()
}

// uniqueShiftNumber derives the shift number from the open time and bumps
// by one second while the key is already taken. Reopening within the same
// second is the only way a collision can happen.
func (s *Service) uniqueShiftNumber(openedAt time.Time) (string, error) {
	for {
		number := NewShiftNumber(s.registration.CashRegisterID, openedAt)
		_, err := s.store.Get(models.EntityShift, number)
		if apperrors.IsNotFound(err) {
			return number, nil
		}
		if err != nil {
			return "", err
		}
		openedAt = openedAt.Add(time.Second)
	}
}

// queueItem builds the outbound mutation for a shift, snapshotting the
// full entity as the payload.
func queueItem(action string, sh *models.Shift) (*models.SyncQueueItem, error) {
	payload, err := json.Marshal(sh)
	if err != nil {
		return nil, apperrors.Storage("failed to encode shift payload", err)
	}
	return &models.SyncQueueItem{
		EntityType: models.EntityShift,
		Action:     action,
		DataID:     sh.ShiftNumber,
		Payload:    payload,
	}, nil
}
