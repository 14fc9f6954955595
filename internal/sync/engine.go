// Package sync drains the durable mutation queue against the central API
// and folds server-assigned identities back into the local store.
//
// The engine is a small state machine:
//
//	Idle → Syncing → {Idle | AuthFailure | BackoffWait}
//
// AuthFailure lifts only after external re-authentication (OnAuthRefreshed);
// BackoffWait ends when the backoff timer fires or a manual SyncNow arrives.
// Remote failures never roll back committed local state: local durability
// always wins over remote convergence.
package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/metrics"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/remote"
	"github.com/tilldesk/possync/internal/sync/queue"
	"github.com/tilldesk/possync/internal/sync/reconcile"
)

// State is the engine's externally visible state.
type State string

const (
	StateIdle        State = "idle"
	StateSyncing     State = "syncing"
	StateAuthFailure State = "auth_failure"
	StateBackoffWait State = "backoff_wait"
)

// Event types surfaced to the sync-status observable.
const (
	EventPassStarted   = "pass_started"
	EventItemSynced    = "item_synced"
	EventItemRejected  = "item_rejected"
	EventPassCompleted = "pass_completed"
	EventAuthRequired  = "auth_required"
	EventBackoff       = "backoff_scheduled"
)

// Event is one sync lifecycle notification. Remote failures reach callers
// only through these events, never through the original optimistic call.
type Event struct {
	Type       string
	EntityType string
	DataID     string
	Err        error
}

// EventHandler receives engine events. Handlers run on the sync goroutine
// and must not block.
type EventHandler interface {
	OnSyncEvent(event Event)
}

// Result summarizes one sync pass.
type Result struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Synced    int // acknowledged and removed
	Rejected  int // marked failed, left visible in the queue
	Deferred  int // skipped behind a rejected item with the same local key
	Remaining int // still queued when the pass ended
}

// Applier submits one queued mutation. Implemented by remote.Client.
type Applier interface {
	Apply(ctx context.Context, item *models.SyncQueueItem) (*remote.MutationResult, error)
}

// Engine drains the queue. All triggers (startup, connectivity restored,
// periodic timer, manual request) funnel into SyncNow, which coalesces
// concurrent invocations into a single in-flight pass.
type Engine struct {
	queue      *queue.Queue
	api        Applier
	reconciler *reconcile.Reconciler

	mu         sync.Mutex
	state      State
	inflight   *pass
	failures   int // consecutive passes ended by a network error
	retryTimer *time.Timer
	lastResult *Result
	handler    EventHandler
}

// pass is one in-flight drain that concurrent SyncNow callers attach to.
type pass struct {
	done   chan struct{}
	result *Result
	err    error
}

// NewEngine creates an Engine. Wire auth recovery with
// provider.OnRefresh(engine.OnAuthRefreshed).
func NewEngine(q *queue.Queue, api Applier, reconciler *reconcile.Reconciler) *Engine {
	return &Engine{
		queue:      q,
		api:        api,
		reconciler: reconciler,
		state:      StateIdle,
	}
}

// SetEventHandler installs the sync-status observable.
func (e *Engine) SetEventHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastResult returns the result of the most recent completed pass.
func (e *Engine) LastResult() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResult
}

// PendingCount returns the number of queued mutations.
func (e *Engine) PendingCount() (int, error) {
	return e.queue.PendingCount()
}

// OnAuthRefreshed lifts AuthFailure after external re-authentication and
// kicks a background pass to resume draining in the original order.
func (e *Engine) OnAuthRefreshed() {
	e.mu.Lock()
	if e.state != StateAuthFailure {
		e.mu.Unlock()
		return
	}
	e.setStateLocked(StateIdle)
	e.mu.Unlock()

	slog.Info("re-authentication succeeded, resuming sync")
	go e.SyncNow(context.Background())
}

// SyncNow drains the queue. Idempotent: a call while a pass is running
// attaches to that pass and returns its result instead of starting a
// duplicate. A call during BackoffWait cancels the timer and syncs
// immediately. During AuthFailure it refuses until credentials refresh.
func (e *Engine) SyncNow(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.inflight != nil {
		p := e.inflight
		e.mu.Unlock()
		select {
		case <-p.done:
			return p.result, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.state == StateAuthFailure {
		e.mu.Unlock()
		return nil, apperrors.Auth("sync suspended until re-authentication", nil)
	}
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	p := &pass{done: make(chan struct{})}
	e.inflight = p
	e.setStateLocked(StateSyncing)
	e.mu.Unlock()

	e.emit(Event{Type: EventPassStarted})
	result, err := e.drainAll(ctx)
	e.finishPass(p, result, err)
	return result, err
}

// finishPass records the pass outcome, moves to the terminal state, and
// releases attached callers.
func (e *Engine) finishPass(p *pass, result *Result, err error) {
	metrics.SyncPasses.WithLabelValues(string(stateAfter(err))).Inc()

	e.mu.Lock()
	e.inflight = nil
	e.lastResult = result

	switch {
	case apperrors.IsAuth(err):
		e.failures = 0
		e.setStateLocked(StateAuthFailure)
	case apperrors.IsNetwork(err):
		e.failures++
		delay := backoffDelay(e.failures)
		e.setStateLocked(StateBackoffWait)
		e.retryTimer = time.AfterFunc(delay, func() {
			e.mu.Lock()
			e.retryTimer = nil
			if e.state != StateBackoffWait {
				e.mu.Unlock()
				return
			}
			e.setStateLocked(StateIdle)
			e.mu.Unlock()
			e.SyncNow(context.Background())
		})
		e.mu.Unlock()
		slog.Warn("sync pass deferred", "error", err, "retry_in", delay)
		e.emit(Event{Type: EventBackoff, Err: err})
		p.result, p.err = result, err
		close(p.done)
		return
	default:
		e.failures = 0
		e.setStateLocked(StateIdle)
	}
	e.mu.Unlock()

	if apperrors.IsAuth(err) {
		slog.Warn("sync needs re-authentication", "error", err)
		e.emit(Event{Type: EventAuthRequired, Err: err})
	} else {
		e.emit(Event{Type: EventPassCompleted, Err: err})
	}
	p.result, p.err = result, err
	close(p.done)
}

// drainAll drains every entity type oldest-first. Auth and network errors
// abort the whole pass with all remaining items left queued in order;
// validation rejections mark the item and continue with unrelated items.
func (e *Engine) drainAll(ctx context.Context) (*Result, error) {
	result := &Result{StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		if remaining, err := e.queue.PendingCount(); err == nil {
			result.Remaining = remaining
			metrics.QueueDepth.Set(float64(remaining))
		}
	}()

	types, err := e.queue.EntityTypes()
	if err != nil {
		return result, err
	}

	for _, entityType := range types {
		if err := e.drainType(ctx, entityType, result); err != nil {
			return result, err
		}
	}

	slog.Info("sync pass complete",
		"synced", result.Synced,
		"rejected", result.Rejected,
		"remaining", result.Remaining)
	return result, nil
}

// drainType processes one entity type's queue slice in insertion order.
// A rejected item stays queued; items behind it for the same local key are
// deferred so a close can never overtake its rejected create.
func (e *Engine) drainType(ctx context.Context, entityType string, result *Result) error {
	var afterID int64
	rejectedKeys := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return apperrors.Network("sync cancelled", ctx.Err())
		default:
		}

		item, err := e.queue.PeekAfter(entityType, afterID)
		if err != nil {
			return err
		}
		if item == nil {
			return nil
		}
		afterID = item.ID

		if rejectedKeys[item.DataID] {
			result.Deferred++
			metrics.SyncItems.WithLabelValues(metrics.ResultDeferred).Inc()
			continue
		}

		ack, err := e.api.Apply(ctx, item)
		switch {
		case err == nil:
			if err := e.acknowledge(item, ack); err != nil {
				return err
			}
			result.Synced++
			metrics.SyncItems.WithLabelValues(metrics.ResultSynced).Inc()
			e.emit(Event{Type: EventItemSynced, EntityType: item.EntityType, DataID: item.DataID})

		case apperrors.IsAuth(err), apperrors.IsNetwork(err):
			// Stop draining; the item and everything behind it stay queued
			// in their original order.
			return err

		default:
			// Validation or business-rule rejection: record it on the item,
			// keep it visible, continue with unrelated items.
			if markErr := e.queue.MarkFailed(item.ID, err); markErr != nil {
				return markErr
			}
			rejectedKeys[item.DataID] = true
			result.Rejected++
			metrics.SyncItems.WithLabelValues(metrics.ResultRejected).Inc()
			slog.Warn("mutation rejected by server",
				"entity_type", item.EntityType,
				"action", item.Action,
				"data_id", item.DataID,
				"error", err)
			e.emit(Event{Type: EventItemRejected, EntityType: item.EntityType, DataID: item.DataID, Err: err})
		}
	}
}

// acknowledge reconciles the server-assigned identity before removing the
// queue item. A crash in between repeats an idempotent reconcile instead of
// losing the acknowledgment.
func (e *Engine) acknowledge(item *models.SyncQueueItem, ack *remote.MutationResult) error {
	if ack != nil && ack.ServerID != 0 {
		if err := e.reconciler.Reconcile(item.EntityType, item.DataID, ack.ServerID); err != nil {
			return err
		}
	}
	return e.queue.Remove(item.ID)
}

func (e *Engine) setStateLocked(state State) {
	e.state = state
	metrics.SyncState.Set(stateGauge(state))
}

func (e *Engine) emit(event Event) {
	e.mu.Lock()
	handler := e.handler
	e.mu.Unlock()
	if handler != nil {
		handler.OnSyncEvent(event)
	}
}

func stateAfter(err error) State {
	switch {
	case apperrors.IsAuth(err):
		return StateAuthFailure
	case apperrors.IsNetwork(err):
		return StateBackoffWait
	default:
		return StateIdle
	}
}

func stateGauge(state State) float64 {
	switch state {
	case StateSyncing:
		return 1
	case StateAuthFailure:
		return 2
	case StateBackoffWait:
		return 3
	default:
		return 0
	}
}
