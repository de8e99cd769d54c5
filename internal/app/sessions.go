package app

import (
	"context"
	"sync"

	"github.com/nmoreau/dosetrack/internal/clock"
	"github.com/nmoreau/dosetrack/internal/config"
	"github.com/nmoreau/dosetrack/internal/meds"
	"github.com/nmoreau/dosetrack/internal/metrics"
	"github.com/nmoreau/dosetrack/internal/users"
	"go.uber.org/zap"
)

// SessionManager owns one dose scheduler per patient. Sessions start at
// boot for every known patient and on first login for users registered
// since.
type SessionManager struct {
	cfg      *config.Config
	store    *meds.Store
	notifier meds.Notifier
	users    *users.Service
	clock    clock.Clock
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*meds.Scheduler
}

// NewSessionManager creates a session manager
func NewSessionManager(cfg *config.Config, store *meds.Store, notifier meds.Notifier, userSvc *users.Service, clk clock.Clock, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		users:    userSvc,
		clock:    clk,
		logger:   logger,
		sessions: make(map[string]*meds.Scheduler),
	}
}

// StartSession starts a scheduler for the patient if one is not already
// running
func (m *SessionManager) StartSession(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[userID]; ok {
		return nil
	}

	sched := meds.NewScheduler(userID, m.store, m.notifier, m.users, m.clock, m.logger).
		WithInterval(m.cfg.PollInterval()).
		WithDueWindow(m.cfg.DueWindow()).
		WithEscalationDelay(m.cfg.EscalationDelay())

	if err := sched.Start(ctx); err != nil {
		return err
	}

	m.sessions[userID] = sched
	metrics.IncrementActiveSessions()
	return nil
}

// StopSession stops the patient's scheduler if one is running
func (m *SessionManager) StopSession(userID string) error {
	m.mu.Lock()
	sched, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sched.Stop(); err != nil {
		return err
	}
	metrics.DecrementActiveSessions()
	return nil
}

// HasSession reports whether a scheduler is running for the patient
func (m *SessionManager) HasSession(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

// StartAll starts a session for every known patient
func (m *SessionManager) StartAll(ctx context.Context) error {
	patients, err := m.users.ListPatients()
	if err != nil {
		return err
	}
	for _, patient := range patients {
		if err := m.StartSession(ctx, patient.ID); err != nil {
			m.logger.Error("Failed to start session",
				zap.String("user_id", patient.ID),
				zap.Error(err),
			)
		}
	}
	m.logger.Info("Patient sessions started", zap.Int("count", len(patients)))
	return nil
}

// StopAll stops every running scheduler
func (m *SessionManager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*meds.Scheduler)
	m.mu.Unlock()

	for userID, sched := range sessions {
		if err := sched.Stop(); err != nil {
			m.logger.Error("Failed to stop session",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		metrics.DecrementActiveSessions()
	}
}
