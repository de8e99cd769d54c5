package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/nmoreau/dosetrack/internal/errors"
	"github.com/nmoreau/dosetrack/internal/meds"
	"github.com/nmoreau/dosetrack/internal/users"
	"go.uber.org/zap"
)

// statusFor maps application error codes to HTTP statuses
func statusFor(err error) int {
	switch apperrors.GetCode(err) {
	case "AUTH_001":
		return 401
	case "AUTH_002", "MED_003", "USER_004":
		return 403
	case "MED_002", "MED_004", "LOG_001", "USER_001", "USER_003", "GEN_001":
		return 404
	case "USER_002", "LOG_002":
		return 409
	case "MED_001", "GEN_002":
		return 400
	default:
		return 500
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("Request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   s.version,
		"timestamp": time.Now().Unix(),
	})
}

// Auth

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	role := users.Role(req.Role)
	if role == "" {
		role = users.RolePatient
	}
	if role != users.RolePatient && role != users.RoleCaretaker {
		return c.Status(400).JSON(fiber.Map{"error": "role must be patient or caretaker"})
	}

	user, err := s.users.Register(req.Name, req.Email, req.Password, role)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(201).JSON(user)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	user, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		return s.fail(c, err)
	}

	ttl := time.Duration(s.config.Security.TokenTTLHours) * time.Hour
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}

	if user.Role == users.RolePatient && !s.sessions.HasSession(user.ID) {
		// Scheduler outlives the request, so not the request context
		if err := s.sessions.StartSession(context.Background(), user.ID); err != nil {
			s.logger.Error("Failed to start session on login",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	return c.JSON(fiber.Map{"token": tokenString, "user": user})
}

// handleLogout stops the caller's scheduler along with its pending work.
// The token itself stays valid until it expires.
func (s *Server) handleLogout(c *fiber.Ctx) error {
	if err := s.sessions.StopSession(currentUser(c)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

// Medications

type medicationRequest struct {
	Name              string   `json:"name"`
	Dosage            string   `json:"dosage"`
	Times             []string `json:"times"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	QuantityRemaining int      `json:"quantity_remaining"`
	QuantityThreshold int      `json:"quantity_threshold"`
	Notes             string   `json:"notes"`
}

func (r *medicationRequest) toMedication() (*meds.Medication, error) {
	times, err := meds.ParseTimes(strings.Join(r.Times, ","))
	if err != nil {
		return nil, apperrors.Wrap(err, "MED_001", "invalid dose times")
	}
	start, err := meds.ParseDate(r.StartDate)
	if err != nil {
		return nil, apperrors.Wrap(err, "MED_001", "invalid start date")
	}
	end, err := meds.ParseDate(r.EndDate)
	if err != nil {
		return nil, apperrors.Wrap(err, "MED_001", "invalid end date")
	}

	return &meds.Medication{
		Name:              r.Name,
		Dosage:            r.Dosage,
		Times:             times,
		StartDate:         start,
		EndDate:           end,
		QuantityRemaining: r.QuantityRemaining,
		QuantityThreshold: r.QuantityThreshold,
		Notes:             r.Notes,
	}, nil
}

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	list, err := s.meds.ListMedications(currentUser(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list)
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req medicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	med, err := req.toMedication()
	if err != nil {
		return s.fail(c, err)
	}

	created, err := s.meds.AddMedication(currentUser(c), med)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(201).JSON(created)
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, err := s.meds.GetMedication(currentUser(c), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	var req medicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	med, err := req.toMedication()
	if err != nil {
		return s.fail(c, err)
	}
	med.ID = c.Params("id")

	updated, err := s.meds.UpdateMedication(currentUser(c), med)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(updated)
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	if err := s.meds.DeleteMedication(currentUser(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleMarkTaken(c *fiber.Ctx) error {
	log, err := s.meds.MarkDoseTaken(currentUser(c), c.Params("id"), c.Params("timeId"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(log)
}

func (s *Server) handleLowStock(c *fiber.Ctx) error {
	list, err := s.meds.LowStockMedications(currentUser(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list)
}

// Doses

func (s *Server) handleUpcomingDoses(c *fiber.Ctx) error {
	doses, err := s.meds.UpcomingDoses(currentUser(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(doses)
}

func (s *Server) handleMissedDoses(c *fiber.Ctx) error {
	doses, err := s.meds.MissedDoses(currentUser(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(doses)
}

// Adherence

// adherenceRange parses from/to query params, defaulting to the last 7 days
func adherenceRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -7)
	to := now

	if q := c.Query("from"); q != "" {
		parsed, err := meds.ParseDate(q)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if q := c.Query("to"); q != "" {
		parsed, err := meds.ParseDate(q)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		// Inclusive end of day
		to = parsed.Add(24*time.Hour - time.Second)
	}
	return from, to, nil
}

func (s *Server) handleAdherenceHistory(c *fiber.Ctx) error {
	from, to, err := adherenceRange(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	logs, err := s.meds.AdherenceHistory(currentUser(c), from, to)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(logs)
}

func (s *Server) handleAdherenceStats(c *fiber.Ctx) error {
	from, to, err := adherenceRange(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	stats, err := s.meds.AdherenceSummary(currentUser(c), from, to)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(stats)
}

// Notifications

func (s *Server) handleListNotifications(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	list, err := s.notifications.List(currentUser(c), limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list)
}

func (s *Server) handleUnreadCount(c *fiber.Ctx) error {
	count, err := s.notifications.UnreadCount(currentUser(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"unread": count})
}

func (s *Server) handleMarkRead(c *fiber.Ctx) error {
	if err := s.notifications.MarkRead(currentUser(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleMarkAllRead(c *fiber.Ctx) error {
	if err := s.notifications.MarkAllRead(currentUser(c)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleDeleteNotification(c *fiber.Ctx) error {
	if err := s.notifications.Delete(currentUser(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleClearNotifications(c *fiber.Ctx) error {
	if err := s.notifications.Clear(currentUser(c)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

// Caretakers

func (s *Server) handleInviteCaretaker(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	invite, err := s.users.InviteCaretaker(currentUser(c), req.Email)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(201).JSON(invite)
}

func (s *Server) handleListInvites(c *fiber.Ctx) error {
	invites, err := s.users.ListPendingInvites(currentUser(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(invites)
}

func (s *Server) handleAcceptInvite(c *fiber.Ctx) error {
	if err := s.users.AcceptInvite(currentUser(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleDeclineInvite(c *fiber.Ctx) error {
	if err := s.users.DeclineInvite(currentUser(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleRemoveCaretaker(c *fiber.Ctx) error {
	if err := s.users.RemoveCaretaker(currentUser(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

// Patient views for linked caretakers, read-only

func (s *Server) patientAccess(c *fiber.Ctx) (string, error) {
	patientID := c.Params("id")
	if !s.users.IsCaretakerOf(currentUser(c), patientID) {
		return "", apperrors.ErrNotLinked
	}
	return patientID, nil
}

func (s *Server) handlePatientMedications(c *fiber.Ctx) error {
	patientID, err := s.patientAccess(c)
	if err != nil {
		return s.fail(c, err)
	}
	list, err := s.meds.ListMedications(patientID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list)
}

func (s *Server) handlePatientMissedDoses(c *fiber.Ctx) error {
	patientID, err := s.patientAccess(c)
	if err != nil {
		return s.fail(c, err)
	}
	doses, err := s.meds.MissedDoses(patientID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(doses)
}

func (s *Server) handlePatientAdherenceStats(c *fiber.Ctx) error {
	patientID, err := s.patientAccess(c)
	if err != nil {
		return s.fail(c, err)
	}
	from, to, err := adherenceRange(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	stats, err := s.meds.AdherenceSummary(patientID, from, to)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(stats)
}
