package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nmoreau/dosetrack/internal/metrics"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := s.app.Group("/api")

	api.Post("/auth/register", s.rateLimited(s.handleRegister))
	api.Post("/auth/login", s.rateLimited(s.handleLogin))

	protected := api.Use(s.authMiddleware())

	protected.Post("/auth/logout", s.handleLogout)

	protected.Get("/medications", s.handleListMedications)
	protected.Post("/medications", s.handleCreateMedication)
	protected.Get("/medications/lowstock", s.handleLowStock)
	protected.Get("/medications/:id", s.handleGetMedication)
	protected.Put("/medications/:id", s.handleUpdateMedication)
	protected.Delete("/medications/:id", s.handleDeleteMedication)
	protected.Post("/medications/:id/times/:timeId/taken", s.handleMarkTaken)

	protected.Get("/doses/upcoming", s.handleUpcomingDoses)
	protected.Get("/doses/missed", s.handleMissedDoses)

	protected.Get("/adherence", s.handleAdherenceHistory)
	protected.Get("/adherence/stats", s.handleAdherenceStats)

	protected.Get("/notifications", s.handleListNotifications)
	protected.Get("/notifications/unread", s.handleUnreadCount)
	protected.Post("/notifications/read-all", s.handleMarkAllRead)
	protected.Post("/notifications/:id/read", s.handleMarkRead)
	protected.Delete("/notifications/:id", s.handleDeleteNotification)
	protected.Delete("/notifications", s.handleClearNotifications)

	protected.Post("/caretakers/invite", s.handleInviteCaretaker)
	protected.Get("/caretakers/invites", s.handleListInvites)
	protected.Post("/caretakers/invites/:id/accept", s.handleAcceptInvite)
	protected.Post("/caretakers/invites/:id/decline", s.handleDeclineInvite)
	protected.Delete("/caretakers/:id", s.handleRemoveCaretaker)

	protected.Get("/patients/:id/medications", s.handlePatientMedications)
	protected.Get("/patients/:id/doses/missed", s.handlePatientMissedDoses)
	protected.Get("/patients/:id/adherence/stats", s.handlePatientAdherenceStats)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
