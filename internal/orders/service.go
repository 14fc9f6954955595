// Package orders captures sales against the open shift with the same
// optimistic write discipline as the rest of the register.
package orders

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

// PaymentCash marks orders settled from the till; only those move the
// summary's cash counters.
const PaymentCash = "cash"

// Service places orders.
type Service struct {
	store     *store.Store
	shifts    CurrentShift
	summaries *shift.Summaries
	now       func() time.Time
}

// NewService creates the orders service.
func NewService(s *store.Store, shifts CurrentShift, summaries *shift.Summaries) *Service {
	return &Service{store: s, shifts: shifts, summaries: summaries, now: time.Now}
}

// PlaceRequest carries one sale.
type PlaceRequest struct {
	Lines         []models.OrderLine
	PaymentMethod string
}

// Place writes the order and its create queue item atomically, then folds
// the sale into the shift summary. An open shift is required.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*models.Order, error) {
	if len(req.Lines) == 0 {
		return nil, apperrors.Validation("an order needs at least one line")
	}
	if req.PaymentMethod == "" {
		return nil, apperrors.Validation("payment_method is required")
	}
	for _, line := range req.Lines {
		if line.ProductCode == "" {
			return nil, apperrors.Validation("every line needs a product_code")
		}
		if line.Quantity <= 0 {
			return nil, apperrors.Validation("line quantity must be positive")
		}
		if line.UnitPrice < 0 {
			return nil, apperrors.Validation("line unit price cannot be negative")
		}
	}

	current, err := s.shifts.Current()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.Conflict("no open shift, orders require one")
	}

	var total float64
	for _, line := range req.Lines {
		total += line.Quantity * line.UnitPrice
	}

	order := &models.Order{
		OrderNumber:   uuid.New(),
		ID:            0,
		ShiftNumber:   current.ShiftNumber,
		Lines:         req.Lines,
		Total:         total,
		PaymentMethod: req.PaymentMethod,
		PlacedAt:      s.now().Unix(),
		SyncStatus:    models.SyncStatusPending,
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return nil, apperrors.Storage("failed to encode order", err)
	}
	item := &models.SyncQueueItem{
		EntityType: models.EntityOrder,
		Action:     models.ActionCreate,
		DataID:     order.OrderNumber,
		Payload:    payload,
	}
	if err := s.store.PutWithQueue(models.EntityOrder, order.OrderNumber, order, item); err != nil {
		return nil, err
	}

	if err := s.summaries.Update(current.ShiftNumber, func(sum *models.ShiftSummary) {
		sum.SalesTotal += total
		sum.OrderCount++
		if order.PaymentMethod == PaymentCash {
			sum.CashIn += total
		}
	}); err != nil {
		slog.Error("shift summary update failed after order",
			"shift_number", current.ShiftNumber,
			"order_number", order.OrderNumber,
			"error", err)
	}

	slog.Info("order placed",
		"order_number", order.OrderNumber,
		"shift_number", order.ShiftNumber,
		"total", total,
		"payment_method", order.PaymentMethod)
	return order, nil
}

// Get returns one order by its local key.
func (s *Service) Get(orderNumber string) (*models.Order, error) {
	var order models.Order
	if err := s.store.GetJSON(models.EntityOrder, orderNumber, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
