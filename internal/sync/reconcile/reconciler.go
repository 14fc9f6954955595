// Package reconcile folds server-assigned identities back into locally
// created records once the server acknowledges a create.
//
// Entities are always addressed by their immutable local key; the old id
// (the 0 sentinel) is never used for lookup. Reconciling the same
// (localKey, serverID) pair twice is a no-op the second time, so a crash
// between reconciliation and queue removal only causes a harmless repeat.
package reconcile

import (
	"encoding/json"
	"log/slog"
	"sync"

	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/store"
)

// Reconciler rewrites placeholder identities into server-assigned ones.
type Reconciler struct {
	store *store.Store

	mu         sync.RWMutex
	refreshers map[string][]func(localKey string)
}

// New creates a Reconciler over the local store.
func New(s *store.Store) *Reconciler {
	return &Reconciler{
		store:      s,
		refreshers: make(map[string][]func(string)),
	}
}

// OnReconciled registers a hook invoked after an entity of the given type
// is reconciled. The shift repository uses this to refresh its cached
// "current shift" copy so callers observe the server id.
func (r *Reconciler) OnReconciled(entityType string, fn func(localKey string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshers[entityType] = append(r.refreshers[entityType], fn)
}

// Reconcile looks the entity up by its local key, sets id and
// sync_status=synced, and notifies refresh hooks. Idempotent.
func (r *Reconciler) Reconcile(entityType, localKey string, serverID int64) error {
	if serverID == 0 {
		return apperrors.Validation("server id 0 is the unsynced sentinel")
	}

	data, err := r.store.Get(entityType, localKey)
	if err != nil {
		return err
	}

	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err != nil {
		return apperrors.Storage("failed to decode entity for reconciliation", err)
	}

	// Already applied: same end state, no side effects the second time.
	if currentID, ok := envelope["id"].(float64); ok && int64(currentID) == serverID {
		if status, ok := envelope["sync_status"].(string); ok && status == models.SyncStatusSynced {
			return nil
		}
	}

	envelope["id"] = serverID
	envelope["sync_status"] = models.SyncStatusSynced

	if err := r.store.Put(entityType, localKey, envelope); err != nil {
		return err
	}

	slog.Debug("reconciled server identity",
		"entity_type", entityType,
		"local_key", localKey,
		"server_id", serverID)

	r.mu.RLock()
	hooks := r.refreshers[entityType]
	r.mu.RUnlock()
	for _, fn := range hooks {
		fn(localKey)
	}
	return nil
}
