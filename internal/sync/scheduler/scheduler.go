// Package scheduler decides WHEN sync passes run. It owns no sync logic:
// every trigger (startup backlog, connectivity restored, periodic timer,
// manual request) lands in the engine's SyncNow, which coalesces them.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	enginepkg "github.com/tilldesk/possync/internal/sync"
)

// Syncer is the slice of the sync engine the scheduler drives.
type Syncer interface {
	SyncNow(ctx context.Context) (*enginepkg.Result, error)
	PendingCount() (int, error)
}

// ConnectivitySource reports the online state and its transitions.
// Implemented by connectivity.Monitor.
type ConnectivitySource interface {
	Online() bool
	Subscribe() <-chan bool
}

const defaultSyncInterval = 1 * time.Minute

// syncTimeout bounds one scheduled pass so a hung request cannot wedge
// the loop.
const syncTimeout = 5 * time.Minute

// Scheduler triggers sync passes on startup, on offline-to-online
// transitions, and periodically while online.
type Scheduler struct {
	syncer   Syncer
	conn     ConnectivitySource
	interval time.Duration

	mu           sync.Mutex
	isRunning    bool
	lastSyncTime time.Time
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// New creates a Scheduler. A non-positive interval selects the default.
func New(syncer Syncer, conn ConnectivitySource, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Scheduler{
		syncer:   syncer,
		conn:     conn,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the trigger loop. If mutations were queued before the
// process started, a pass is kicked immediately so an offline session's
// backlog does not wait for the first tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	transitions := s.conn.Subscribe()

	s.wg.Add(1)
	go s.loop(ctx, transitions)

	if pending, err := s.syncer.PendingCount(); err == nil && pending > 0 {
		slog.Info("startup backlog found", "pending", pending)
		go s.runSync(ctx)
	}

	slog.Info("sync scheduler started", "interval", s.interval)
}

// Stop stops the trigger loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	slog.Info("sync scheduler stopped")
}

// IsRunning reports whether the trigger loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastSyncTime returns when the last scheduled pass completed successfully,
// or the zero time if none has.
func (s *Scheduler) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncTime
}

func (s *Scheduler) loop(ctx context.Context, transitions <-chan bool) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case online := <-transitions:
			if !online {
				continue
			}
			slog.Info("connectivity restored, triggering sync")
			s.runSync(ctx)
		case <-ticker.C:
			if !s.conn.Online() {
				continue
			}
			s.runSync(ctx)
		}
	}
}

// runSync executes one pass. The engine coalesces overlapping triggers, so
// calling into it while a pass is in flight just joins that pass.
func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	result, err := s.syncer.SyncNow(syncCtx)
	if err != nil {
		slog.Warn("scheduled sync pass failed", "error", err)
		return
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	if result != nil && (result.Synced > 0 || result.Rejected > 0) {
		slog.Info("scheduled sync pass completed",
			"synced", result.Synced,
			"rejected", result.Rejected,
			"remaining", result.Remaining)
	}
}
