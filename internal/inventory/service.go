// Package inventory records stock movements against the open shift. Like
// every mutation at the register, a movement commits locally with its
// queue item and returns before any network traffic.
package inventory

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/shift"
	"github.com/tilldesk/possync/internal/store"
	"github.com/tilldesk/possync/internal/uuid"
)

// CurrentShift resolves the open shift for this register. Implemented by
// shift.Service.
type CurrentShift interface {
	Current() (*models.Shift, error)
}

// Service records inventory movements.
type Service struct {
	store     *store.Store
	shifts    CurrentShift
	summaries *shift.Summaries
	now       func() time.Time
}

// NewService creates the inventory service.
func NewService(s *store.Store, shifts CurrentShift, summaries *shift.Summaries) *Service {
	return &Service{store: s, shifts: shifts, summaries: summaries, now: time.Now}
}

// RecordRequest carries one stock movement.
type RecordRequest struct {
	ProductCode string
	Direction   string
	Quantity    float64
	Reason      string
}

// Record writes the movement and its create queue item atomically, then
// folds it into the shift summary. An open shift is required.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*models.InventoryEntry, error) {
	if req.ProductCode == "" {
		return nil, apperrors.Validation("product_code is required")
	}
	if req.Direction != models.InventoryIn && req.Direction != models.InventoryOut {
		return nil, apperrors.Validation("direction must be in or out")
	}
	if req.Quantity <= 0 {
		return nil, apperrors.Validation("quantity must be positive")
	}

	current, err := s.shifts.Current()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.Conflict("no open shift, inventory movements require one")
	}

	entry := &models.InventoryEntry{
		EntryNumber: uuid.New(),
		ID:          0,
		ShiftNumber: current.ShiftNumber,
		ProductCode: req.ProductCode,
		Direction:   req.Direction,
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		RecordedAt:  s.now().Unix(),
		SyncStatus:  models.SyncStatusPending,
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, apperrors.Storage("failed to encode inventory entry", err)
	}
	item := &models.SyncQueueItem{
		EntityType: models.EntityInventory,
		Action:     models.ActionCreate,
		DataID:     entry.EntryNumber,
		Payload:    payload,
	}
	if err := s.store.PutWithQueue(models.EntityInventory, entry.EntryNumber, entry, item); err != nil {
		return nil, err
	}

	if err := s.summaries.Update(current.ShiftNumber, func(sum *models.ShiftSummary) {
		if req.Direction == models.InventoryIn {
			sum.InventoryIn += req.Quantity
		} else {
			sum.InventoryOut += req.Quantity
		}
	}); err != nil {
		slog.Error("shift summary update failed after inventory entry",
			"shift_number", current.ShiftNumber,
			"entry_number", entry.EntryNumber,
			"error", err)
	}

	slog.Info("inventory movement recorded",
		"entry_number", entry.EntryNumber,
		"shift_number", entry.ShiftNumber,
		"direction", entry.Direction,
		"quantity", entry.Quantity)
	return entry, nil
}

// Get returns one entry by its local key.
func (s *Service) Get(entryNumber string) (*models.InventoryEntry, error) {
	var entry models.InventoryEntry
	if err := s.store.GetJSON(models.EntityInventory, entryNumber, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
