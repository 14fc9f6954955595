package shift

import (
	"time"

	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/metrics"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/store"
)

// Summaries maintains the per-shift aggregate projection. It is derived
// data: nothing in the sync path reads it, and a missing summary never
// blocks an operation.
type Summaries struct {
	store *store.Store
	now   func() time.Time
}

// NewSummaries creates the summary projection over the local store.
func NewSummaries(s *store.Store) *Summaries {
	return &Summaries{store: s, now: time.Now}
}

// Init creates the summary for a freshly opened shift.
func (s *Summaries) Init(shiftNumber string, initialCash float64) error {
	summary := &models.ShiftSummary{
		ShiftNumber: shiftNumber,
		InitialCash: initialCash,
		UpdatedAt:   s.now().Unix(),
	}
	if err := s.store.Put(models.EntityShiftSummary, shiftNumber, summary); err != nil {
		metrics.SummaryDegraded.Inc()
		return err
	}
	return nil
}

// Get returns the summary for a shift.
func (s *Summaries) Get(shiftNumber string) (*models.ShiftSummary, error) {
	var summary models.ShiftSummary
	if err := s.store.GetJSON(models.EntityShiftSummary, shiftNumber, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Update applies a mutation to the shift's summary. If the summary is
// missing (a degraded open), it is re-created first and flagged degraded,
// since the counters accumulated before re-creation are lost.
func (s *Summaries) Update(shiftNumber string, apply func(*models.ShiftSummary)) error {
	var summary models.ShiftSummary
	err := s.store.GetJSON(models.EntityShiftSummary, shiftNumber, &summary)
	switch {
	case apperrors.IsNotFound(err):
		summary = models.ShiftSummary{
			ShiftNumber: shiftNumber,
			Degraded:    true,
		}
		metrics.SummaryDegraded.Inc()
	case err != nil:
		return err
	}

	apply(&summary)
	summary.UpdatedAt = s.now().Unix()
	return s.store.Put(models.EntityShiftSummary, shiftNumber, &summary)
}
