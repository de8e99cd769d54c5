package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nmoreau/dosetrack/internal/config"
	"github.com/nmoreau/dosetrack/internal/meds"
	"github.com/nmoreau/dosetrack/internal/notify"
	"github.com/nmoreau/dosetrack/internal/users"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SessionStarter lets the auth handlers bring a patient's scheduler up on
// login and down on logout without the api package owning session
// lifecycles.
type SessionStarter interface {
	StartSession(ctx context.Context, userID string) error
	StopSession(userID string) error
	HasSession(userID string) bool
}

type Server struct {
	app           *fiber.App
	config        *config.Config
	users         *users.Service
	meds          *meds.Service
	notifications *notify.Dispatcher
	sessions      SessionStarter
	logger        *zap.Logger
	version       string

	loginLimiter *rate.Limiter
}

func New(cfg *config.Config, userSvc *users.Service, medSvc *meds.Service, dispatcher *notify.Dispatcher, sessions SessionStarter, logger *zap.Logger, version string) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:           app,
		config:        cfg,
		users:         userSvc,
		meds:          medSvc,
		notifications: dispatcher,
		sessions:      sessions,
		logger:        logger,
		version:       version,
		// 5 attempts burst, refilling one per 2 seconds
		loginLimiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}

	s.setupRoutes()
	return s
}
