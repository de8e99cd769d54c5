package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nmoreau/dosetrack/internal/api"
	"github.com/nmoreau/dosetrack/internal/clock"
	"github.com/nmoreau/dosetrack/internal/config"
	"github.com/nmoreau/dosetrack/internal/meds"
	"github.com/nmoreau/dosetrack/internal/notify"
	"github.com/nmoreau/dosetrack/internal/store"
	"github.com/nmoreau/dosetrack/internal/users"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// App wires the stores, services, per-patient schedulers, and the HTTP
// server together.
type App struct {
	Config        *config.Config
	Store         *store.Store
	Logger        *zap.Logger
	Clock         clock.Clock
	Users         *users.Service
	Meds          *meds.Service
	Notifications *notify.Dispatcher
	Sessions      *SessionManager
	Version       string

	maintenance *cron.Cron
}

// New builds the application from an open store
func New(cfg *config.Config, st *store.Store, logger *zap.Logger, version string) (*App, error) {
	clk := clock.System{}

	notifyStore, err := notify.NewStore(st.DB())
	if err != nil {
		return nil, err
	}
	dispatcher := notify.NewDispatcher(notifyStore, logger)

	userStore, err := users.NewStore(st.DB())
	if err != nil {
		return nil, err
	}
	userSvc := users.NewService(userStore, dispatcher, logger)

	medStore, err := meds.NewStore(st.DB())
	if err != nil {
		return nil, err
	}
	medSvc := meds.NewService(medStore, clk, cfg.DueWindow(), logger)

	sessions := NewSessionManager(cfg, medStore, dispatcher, userSvc, clk, logger)

	return &App{
		Config:        cfg,
		Store:         st,
		Logger:        logger,
		Clock:         clk,
		Users:         userSvc,
		Meds:          medSvc,
		Notifications: dispatcher,
		Sessions:      sessions,
		Version:       version,
	}, nil
}

// RunServer starts the schedulers, the maintenance job, and the HTTP
// server, then blocks until SIGINT/SIGTERM.
func (app *App) RunServer() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Sessions.StartAll(ctx); err != nil {
		app.Logger.Error("Failed to start patient sessions", zap.Error(err))
	}

	app.startMaintenance()

	server := api.New(app.Config, app.Users, app.Meds, app.Notifications, app.Sessions, app.Logger, app.Version)

	go func() {
		if err := server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	if app.maintenance != nil {
		app.maintenance.Stop()
	}
	app.Sessions.StopAll()

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
}

// startMaintenance schedules the nightly notification cleanup
func (app *App) startMaintenance() {
	app.maintenance = cron.New()
	_, err := app.maintenance.AddFunc("15 3 * * *", app.pruneNotifications)
	if err != nil {
		app.Logger.Error("Failed to schedule maintenance job", zap.Error(err))
		return
	}
	app.maintenance.Start()
	app.Logger.Info("Maintenance job scheduled",
		zap.Int("retention_days", app.Config.RetentionDays()),
	)
}

// pruneNotifications deletes read notifications older than the retention
// window. Unread ones are never pruned.
func (app *App) pruneNotifications() {
	retention := time.Duration(app.Config.RetentionDays()) * 24 * time.Hour
	cutoff := app.Clock.Now().Add(-retention)

	deleted, err := app.Notifications.Prune(cutoff)
	if err != nil {
		app.Logger.Error("Notification cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		app.Logger.Info("Notifications pruned",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
