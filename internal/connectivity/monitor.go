// Package connectivity observes online/offline transitions. The signal is
// advisory: it only schedules sync passes and is never consulted for
// correctness. A sync attempt while "offline" simply fails as a network
// error and backs off.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Prober checks reachability of the central API. Implemented by
// remote.Client.Probe.
type Prober interface {
	Probe(ctx context.Context) error
}

const defaultProbeTimeout = 5 * time.Second

// Monitor polls a Prober and notifies subscribers on transitions. Hosts
// with a native connectivity signal can skip Start and drive SetOnline
// directly.
type Monitor struct {
	prober   Prober
	interval time.Duration

	mu        sync.Mutex
	online    bool
	known     bool // false until the first probe or SetOnline
	subs      []chan bool
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewMonitor creates a Monitor polling at the given interval.
func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Online returns the last observed state. Defaults to false before the
// first observation so startup always begins with a probe or manual kick.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel receiving the new state on every transition.
// The channel is buffered; a slow consumer only ever misses intermediate
// flaps, never the latest state.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// SetOnline records an observation. Used by the probe loop, by tests, and
// by hosts that get connectivity callbacks from the platform.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := !m.known || m.online != online
	m.known = true
	m.online = online
	var subs []chan bool
	if changed {
		subs = make([]chan bool, len(m.subs))
		copy(subs, m.subs)
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	slog.Info("connectivity changed", "online", online)
	for _, ch := range subs {
		// Replace a stale undelivered value rather than blocking.
		select {
		case ch <- online:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- online
		}
	}
}

// Start launches the probe loop. It probes once immediately so the engine
// gets an early trigger when the terminal boots with connectivity.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx)
}

// Stop stops the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	m.probeOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	err := m.prober.Probe(probeCtx)
	m.SetOnline(err == nil)
}
