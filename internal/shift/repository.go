package shift

import (
	"encoding/json"
	"sync"

	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/store"
)

// indexOpenRegister maps an open shift to its cash register id. Closed
// shifts drop out of the index inside the same transaction that closes
// them, so the index row doubles as the durable "current shift" pointer.
const indexOpenRegister = "open_register"

// Repository is the single source of the "current open shift" answer for
// one cash register. Reads prefer an in-memory copy and fall back to the
// durable index on miss. The cache is updated synchronously with every
// lifecycle transition, never by a background task.
type Repository struct {
	store      *store.Store
	registerID string

	mu     sync.Mutex
	cached *models.Shift
	known  bool // false until the first load or explicit set
}

// NewRepository creates a Repository for the given register and installs
// the open-shift index extractor.
func NewRepository(s *store.Store, registerID string) *Repository {
	s.RegisterIndex(models.EntityShift, indexOpenRegister, func(data []byte) (string, bool) {
		var sh models.Shift
		if err := json.Unmarshal(data, &sh); err != nil {
			return "", false
		}
		if sh.Status != models.ShiftStatusOpen {
			return "", false
		}
		return sh.CashRegisterID, true
	})
	return &Repository{store: s, registerID: registerID}
}

// Current returns the open shift for this register, or nil when none is
// open. The returned value is a copy.
func (r *Repository) Current() (*models.Shift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked()
}

func (r *Repository) currentLocked() (*models.Shift, error) {
	if r.known {
		if r.cached == nil {
			return nil, nil
		}
		copied := *r.cached
		return &copied, nil
	}

	rows, err := r.store.QueryByIndex(models.EntityShift, indexOpenRegister, r.registerID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		r.cached = nil
		r.known = true
		return nil, nil
	}

	var sh models.Shift
	if err := json.Unmarshal(rows[0], &sh); err != nil {
		return nil, apperrors.Storage("failed to decode current shift", err)
	}
	r.cached = &sh
	r.known = true

	copied := sh
	return &copied, nil
}

// SetCurrent records the shift as the register's open shift. Called after
// the durable open transaction commits.
func (r *Repository) SetCurrent(sh *models.Shift) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *sh
	r.cached = &copied
	r.known = true
}

// ClearCurrent forgets the open shift. Called after the durable close
// transaction commits and before control returns to the caller, so no
// reader can observe a stale open state.
func (r *Repository) ClearCurrent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
	r.known = true
}

// Refresh reloads the cached copy from durable storage if it matches the
// given local key. Registered as a reconcile hook so the cache observes
// the server-assigned id.
func (r *Repository) Refresh(localKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.known || r.cached == nil || r.cached.ShiftNumber != localKey {
		return
	}

	var sh models.Shift
	if err := r.store.GetJSON(models.EntityShift, localKey, &sh); err != nil {
		// Leave the cache as-is; the durable row stays authoritative.
		return
	}
	if sh.Status != models.ShiftStatusOpen {
		r.cached = nil
		return
	}
	r.cached = &sh
}
