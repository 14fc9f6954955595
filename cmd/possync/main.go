// Command possync runs the offline-first sync core for one cashier
// terminal: local sqlite storage, the durable mutation queue, and the
// background engine that drains it against the central API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tilldesk/possync/internal/auth"
	"github.com/tilldesk/possync/internal/config"
	"github.com/tilldesk/possync/internal/connectivity"
	"github.com/tilldesk/possync/internal/db"
	"github.com/tilldesk/possync/internal/logging"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/remote"
	"github.com/tilldesk/possync/internal/shift"
	syncpkg "github.com/tilldesk/possync/internal/sync"
	"github.com/tilldesk/possync/internal/sync/queue"
	"github.com/tilldesk/possync/internal/sync/reconcile"
	"github.com/tilldesk/possync/internal/sync/scheduler"
	"github.com/tilldesk/possync/internal/store"
)

func main() {
	logging.Setup()

	if err := run(); err != nil {
		slog.Error("possync exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	database, err := db.OpenAndMigrate(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	localStore := store.New(database)
	syncQueue := queue.New(localStore.DB())

	tokens := auth.NewProvider(cfg.APIURL, 30*time.Second)
	api := remote.NewClient(remote.Config{BaseURL: cfg.APIURL, Timeout: 30 * time.Second}, tokens)

	reconciler := reconcile.New(localStore)
	engine := syncpkg.NewEngine(syncQueue, api, reconciler)
	tokens.OnRefresh(engine.OnAuthRefreshed)
	engine.SetEventHandler(eventLogger{})

	// The lifecycle services are the embedding host's surface; the daemon
	// only needs the repository hooked up so reconciled ids reach the
	// current-shift cache.
	repo := shift.NewRepository(localStore, cfg.RegisterID)
	reconciler.OnReconciled(models.EntityShift, repo.Refresh)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := connectivity.NewMonitor(api, cfg.ProbeInterval)
	sched := scheduler.New(engine, monitor, cfg.SyncInterval)

	monitor.Start(ctx)
	defer monitor.Stop()
	sched.Start(ctx)
	defer sched.Stop()

	slog.Info("possync started",
		"data_dir", cfg.DataDir,
		"api_url", cfg.APIURL,
		"store_id", cfg.StoreID,
		"register_id", cfg.RegisterID)

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// eventLogger surfaces sync lifecycle events in the daemon log. Embedding
// hosts replace this with their own observer.
type eventLogger struct{}

func (eventLogger) OnSyncEvent(event syncpkg.Event) {
	switch event.Type {
	case syncpkg.EventItemRejected:
		slog.Warn("sync item rejected",
			"entity_type", event.EntityType,
			"data_id", event.DataID,
			"error", event.Err)
	case syncpkg.EventAuthRequired:
		slog.Warn("sync paused, re-authentication required", "error", event.Err)
	case syncpkg.EventBackoff:
		slog.Info("sync backing off", "error", event.Err)
	}
}
