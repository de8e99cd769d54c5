package meds

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nmoreau/dosetrack/internal/clock"
	"github.com/nmoreau/dosetrack/internal/metrics"
	"github.com/nmoreau/dosetrack/internal/notify"
	"go.uber.org/zap"
)

// escalationHorizon bounds the escalation sweep to recent doses. Anything
// missed longer ago than this stays missed without further caretaker
// alerts, even after its notification rows have been pruned.
const escalationHorizon = 24 * time.Hour

// Notifier receives the intents a tick produces. Satisfied by
// notify.Dispatcher.
type Notifier interface {
	Emit(intent notify.Intent) (*notify.Notification, error)
}

// CaretakerDirectory resolves a patient's linked caretakers for the
// escalation sweep. Satisfied by users.Service.
type CaretakerDirectory interface {
	CaretakersOf(patientID string) []string
}

// Scheduler polls one user's medications: it materializes due and missed
// dose logs, emits reminder and low-stock intents, and escalates doses
// that stayed missed past the escalation delay to the user's caretakers.
type Scheduler struct {
	userID     string
	store      *Store
	notifier   Notifier
	caretakers CaretakerDirectory
	clock      clock.Clock
	logger     *zap.Logger

	interval        time.Duration
	dueWindow       time.Duration
	escalationDelay time.Duration

	mu      sync.Mutex
	tickMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a polling scheduler for one user
func NewScheduler(userID string, store *Store, notifier Notifier, caretakers CaretakerDirectory, clk clock.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		userID:          userID,
		store:           store,
		notifier:        notifier,
		caretakers:      caretakers,
		clock:           clk,
		logger:          logger,
		interval:        5 * time.Minute,
		dueWindow:       5 * time.Minute,
		escalationDelay: 60 * time.Minute,
		stopCh:          make(chan struct{}),
	}
}

// WithInterval sets the poll interval
func (s *Scheduler) WithInterval(interval time.Duration) *Scheduler {
	s.interval = interval
	return s
}

// WithDueWindow sets the window within which a scheduled dose counts as due
func (s *Scheduler) WithDueWindow(window time.Duration) *Scheduler {
	s.dueWindow = window
	return s
}

// WithEscalationDelay sets how long a dose stays missed before caretakers
// are alerted
func (s *Scheduler) WithEscalationDelay(delay time.Duration) *Scheduler {
	s.escalationDelay = delay
	return s
}

// Start starts the polling loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("Starting dose scheduler",
		zap.String("user_id", s.userID),
		zap.Duration("interval", s.interval),
	)

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop stops the polling loop and waits for an in-flight tick to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Dose scheduler stopped", zap.String("user_id", s.userID))

	return nil
}

// IsRunning returns true if the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// run is the main polling loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled", zap.String("user_id", s.userID))
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one evaluation pass. If the previous pass is still running the
// tick is skipped rather than queued.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		metrics.RecordTickSkipped()
		s.logger.Warn("Tick still in progress, skipping", zap.String("user_id", s.userID))
		return
	}
	defer s.tickMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in scheduler tick",
				zap.String("user_id", s.userID),
				zap.Any("recover", r),
			)
		}
	}()

	metrics.RecordTick()
	now := s.clock.Now()

	if err := s.evaluateDoses(now); err != nil {
		metrics.RecordTickError()
		s.logger.Error("Dose evaluation failed",
			zap.String("user_id", s.userID),
			zap.Error(err),
		)
	}
	if err := s.checkLowStock(); err != nil {
		metrics.RecordTickError()
		s.logger.Error("Low stock check failed",
			zap.String("user_id", s.userID),
			zap.Error(err),
		)
	}
	if err := s.escalateMissed(now); err != nil {
		metrics.RecordTickError()
		s.logger.Error("Missed dose escalation failed",
			zap.String("user_id", s.userID),
			zap.Error(err),
		)
	}
}

// evaluateDoses classifies today's doses for every active medication,
// persists the new missed placeholders, and emits reminder intents.
func (s *Scheduler) evaluateDoses(now time.Time) error {
	medsList, err := s.store.ListActiveMedications(s.userID, now)
	if err != nil {
		return fmt.Errorf("listing active medications: %w", err)
	}
	logs, err := s.store.ListDayLogs(s.userID, now)
	if err != nil {
		return fmt.Errorf("listing dose logs: %w", err)
	}

	byMed := make(map[string][]DoseLog)
	for _, log := range logs {
		byMed[log.MedicationID] = append(byMed[log.MedicationID], log)
	}

	for i := range medsList {
		med := &medsList[i]
		result := Evaluate(med, byMed[med.ID], now, s.dueWindow)

		for _, log := range result.NewLogs {
			inserted, err := s.store.CreateDoseLog(log)
			if err != nil {
				s.logger.Error("Dose log insert failed",
					zap.String("medication_id", med.ID),
					zap.Time("scheduled", log.ScheduledTime),
					zap.Error(err),
				)
				continue
			}
			if inserted {
				metrics.RecordDoseLogCreated()
			}
		}

		for _, reminder := range result.Reminders {
			intent := notify.Intent{
				UserID:       s.userID,
				MedicationID: med.ID,
				Title:        "Medication reminder",
				Message:      fmt.Sprintf("Time to take %s (%s)", med.Name, med.Dosage),
				Kind:         notify.KindReminder,
				DoseKey:      notify.DoseKeyFor(med.ID, reminder.ScheduledTime),
			}
			if _, err := s.notifier.Emit(intent); err != nil {
				s.logger.Error("Reminder emit failed",
					zap.String("medication_id", med.ID),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// checkLowStock emits a low-stock intent for every medication at or under
// its threshold. The dispatcher suppresses repeats while an unread alert
// for the medication exists.
func (s *Scheduler) checkLowStock() error {
	low, err := s.store.ListLowStockMedications(s.userID)
	if err != nil {
		return fmt.Errorf("listing low stock medications: %w", err)
	}

	for i := range low {
		med := &low[i]
		intent := notify.Intent{
			UserID:       s.userID,
			MedicationID: med.ID,
			Title:        "Low stock",
			Message:      fmt.Sprintf("%s is running low: %d doses left", med.Name, med.QuantityRemaining),
			Kind:         notify.KindLowStock,
		}
		if _, err := s.notifier.Emit(intent); err != nil {
			s.logger.Error("Low stock emit failed",
				zap.String("medication_id", med.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// escalateMissed alerts every linked caretaker about doses that have been
// missed for longer than the escalation delay. The sweep recomputes from
// store state each tick, so it survives restarts; the dispatcher's dose key
// dedup keeps each caretaker to one alert per dose.
func (s *Scheduler) escalateMissed(now time.Time) error {
	caretakerIDs := s.caretakers.CaretakersOf(s.userID)
	if len(caretakerIDs) == 0 {
		return nil
	}

	cutoff := now.Add(-s.escalationDelay)
	stale, err := s.store.ListStaleMissedLogs(s.userID, now.Add(-escalationHorizon), cutoff)
	if err != nil {
		return fmt.Errorf("listing stale missed logs: %w", err)
	}

	for _, log := range stale {
		med, err := s.store.GetMedication(log.MedicationID)
		if err != nil {
			s.logger.Error("Medication load failed",
				zap.String("medication_id", log.MedicationID),
				zap.Error(err),
			)
			continue
		}
		if med == nil {
			// Medication deleted since the log was written
			continue
		}

		doseKey := notify.DoseKeyFor(med.ID, log.ScheduledTime)
		for _, caretakerID := range caretakerIDs {
			intent := notify.Intent{
				UserID:       caretakerID,
				MedicationID: med.ID,
				Title:        "Missed dose",
				Message: fmt.Sprintf("%s missed at %s has not been taken",
					med.Name, log.ScheduledTime.Format("15:04")),
				Kind:    notify.KindMissed,
				DoseKey: doseKey,
			}
			created, err := s.notifier.Emit(intent)
			if err != nil {
				s.logger.Error("Escalation emit failed",
					zap.String("medication_id", med.ID),
					zap.String("caretaker_id", caretakerID),
					zap.Error(err),
				)
				continue
			}
			if created != nil {
				metrics.RecordEscalation()
			}
		}
	}
	return nil
}
