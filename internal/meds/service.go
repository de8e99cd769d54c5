package meds

import (
	"time"

	"github.com/google/uuid"
	"github.com/nmoreau/dosetrack/internal/clock"
	apperrors "github.com/nmoreau/dosetrack/internal/errors"
	"github.com/nmoreau/dosetrack/internal/metrics"
	"go.uber.org/zap"
)

// Service is the medication API exposed to the HTTP layer and the
// scheduler: CRUD with ownership checks, dose actions, and the derived
// upcoming/missed/low-stock views.
type Service struct {
	store  *Store
	clock  clock.Clock
	logger *zap.Logger

	dueWindow time.Duration
}

// NewService creates a medication service
func NewService(store *Store, clk clock.Clock, dueWindow time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		clock:     clk,
		logger:    logger,
		dueWindow: dueWindow,
	}
}

// Store exposes the underlying store to the scheduler
func (s *Service) Store() *Store {
	return s.store
}

// AddMedication validates and persists a new medication for the user
func (s *Service) AddMedication(userID string, med *Medication) (*Medication, error) {
	med.UserID = userID
	for i := range med.Times {
		if med.Times[i].ID == "" {
			med.Times[i].ID = uuid.NewString()
		}
	}
	if err := med.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "MED_001", "invalid medication")
	}
	if err := s.store.CreateMedication(med); err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "medication create failed")
	}

	s.logger.Info("Medication added",
		zap.String("user_id", userID),
		zap.String("medication_id", med.ID),
		zap.Int("times", len(med.Times)),
	)
	return med, nil
}

// UpdateMedication replaces a medication the user owns
func (s *Service) UpdateMedication(userID string, med *Medication) (*Medication, error) {
	current, err := s.owned(userID, med.ID)
	if err != nil {
		return nil, err
	}

	med.UserID = userID
	med.CreatedAt = current.CreatedAt
	for i := range med.Times {
		if med.Times[i].ID == "" {
			med.Times[i].ID = uuid.NewString()
		}
	}
	if err := med.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "MED_001", "invalid medication")
	}
	if err := s.store.UpdateMedication(med); err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "medication update failed")
	}
	return med, nil
}

// DeleteMedication removes a medication and its logs
func (s *Service) DeleteMedication(userID, medicationID string) error {
	if _, err := s.owned(userID, medicationID); err != nil {
		return err
	}
	if err := s.store.DeleteMedication(medicationID); err != nil {
		return apperrors.Wrap(err, "GEN_004", "medication delete failed")
	}
	s.logger.Info("Medication deleted",
		zap.String("user_id", userID),
		zap.String("medication_id", medicationID),
	)
	return nil
}

// GetMedication returns one medication the user owns
func (s *Service) GetMedication(userID, medicationID string) (*Medication, error) {
	return s.owned(userID, medicationID)
}

// ListMedications returns all of a user's medications
func (s *Service) ListMedications(userID string) ([]Medication, error) {
	return s.store.ListMedications(userID)
}

// ActiveMedications returns the medications whose window covers the date
func (s *Service) ActiveMedications(userID string, date time.Time) ([]Medication, error) {
	return s.store.ListActiveMedications(userID, date)
}

// LowStockMedications returns medications at or under their threshold
func (s *Service) LowStockMedications(userID string) ([]Medication, error) {
	return s.store.ListLowStockMedications(userID)
}

// MarkDoseTaken records that the user took the dose scheduled today for the
// given schedule entry: the log (created here if the poll never saw it)
// moves to taken, and stock drops by one, floored at zero.
func (s *Service) MarkDoseTaken(userID, medicationID, doseTimeID string) (*DoseLog, error) {
	med, err := s.owned(userID, medicationID)
	if err != nil {
		return nil, err
	}

	dt, ok := med.DoseTimeByID(doseTimeID)
	if !ok {
		return nil, apperrors.ErrDoseTimeNotFound
	}

	now := s.clock.Now()
	scheduled := dt.On(now)

	log, err := s.store.FindDoseLog(medicationID, scheduled)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "dose log lookup failed")
	}

	switch {
	case log == nil:
		log, err = s.createTakenLog(userID, medicationID, scheduled, now)
		if err != nil {
			return nil, err
		}
	case log.Status == StatusTaken:
		// Already taken; nothing to transition and stock stays untouched
		return log, nil
	default:
		if err := s.store.MarkDoseLogTaken(log.ID, now); err != nil {
			return nil, apperrors.Wrap(err, "GEN_004", "dose log update failed")
		}
		log.Status = StatusTaken
		log.TakenTime = &now
	}

	if err := s.store.DecrementQuantity(medicationID); err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "quantity update failed")
	}

	metrics.RecordDoseTaken()
	s.logger.Info("Dose taken",
		zap.String("user_id", userID),
		zap.String("medication_id", medicationID),
		zap.Time("scheduled", scheduled),
	)
	return log, nil
}

// createTakenLog writes a taken log for a dose the poll never materialized.
// If a concurrent evaluator pass inserts the missed placeholder first, the
// conflict-ignoring insert is a silent no-op, so the placeholder is fetched
// and transitioned instead.
func (s *Service) createTakenLog(userID, medicationID string, scheduled, now time.Time) (*DoseLog, error) {
	log := &DoseLog{
		UserID:        userID,
		MedicationID:  medicationID,
		ScheduledTime: scheduled,
		Status:        StatusTaken,
		TakenTime:     &now,
	}
	inserted, err := s.store.CreateDoseLog(log)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "dose log create failed")
	}
	if inserted {
		return log, nil
	}

	existing, err := s.store.FindDoseLog(medicationID, scheduled)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "dose log lookup failed")
	}
	if existing == nil {
		return nil, apperrors.New("GEN_004", "dose log insert conflicted but no row found")
	}
	if existing.Status != StatusTaken {
		if err := s.store.MarkDoseLogTaken(existing.ID, now); err != nil {
			return nil, apperrors.Wrap(err, "GEN_004", "dose log update failed")
		}
		existing.Status = StatusTaken
		existing.TakenTime = &now
	}
	return existing, nil
}

// UpcomingDoses lists today's still-ahead doses across active medications,
// ordered by time
func (s *Service) UpcomingDoses(userID string) ([]DoseStatus, error) {
	return s.dosesClassifiedAs(userID, ClassUpcoming)
}

// MissedDoses lists today's doses currently recorded or derived as missed
func (s *Service) MissedDoses(userID string) ([]DoseStatus, error) {
	return s.dosesClassifiedAs(userID, ClassMissed)
}

// dosesClassifiedAs runs the evaluator read-only (intents are discarded,
// nothing persisted) and filters for one classification.
func (s *Service) dosesClassifiedAs(userID string, class Classification) ([]DoseStatus, error) {
	now := s.clock.Now()

	medsList, err := s.store.ListActiveMedications(userID, now)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "medication list failed")
	}
	logs, err := s.store.ListDayLogs(userID, now)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "dose log list failed")
	}

	byMed := make(map[string][]DoseLog)
	for _, log := range logs {
		byMed[log.MedicationID] = append(byMed[log.MedicationID], log)
	}

	var out []DoseStatus
	for i := range medsList {
		med := &medsList[i]
		result := Evaluate(med, byMed[med.ID], now, s.dueWindow)
		for _, st := range result.Statuses {
			if st.Classification == class {
				out = append(out, st)
			}
		}
	}
	return out, nil
}

// AdherenceStats summarizes a window of adherence history
type AdherenceStats struct {
	Taken         int     `json:"taken"`
	Missed        int     `json:"missed"`
	Total         int     `json:"total"`
	AdherenceRate float64 `json:"adherence_rate"` // percentage
}

// AdherenceHistory returns a user's logs in [from, to], oldest first
func (s *Service) AdherenceHistory(userID string, from, to time.Time) ([]DoseLog, error) {
	return s.store.ListDoseLogs(userID, "", from, to)
}

// AdherenceSummary computes taken/missed counts and the adherence rate
func (s *Service) AdherenceSummary(userID string, from, to time.Time) (*AdherenceStats, error) {
	logs, err := s.AdherenceHistory(userID, from, to)
	if err != nil {
		return nil, err
	}

	stats := &AdherenceStats{Total: len(logs)}
	for _, log := range logs {
		if log.Status == StatusTaken {
			stats.Taken++
		} else {
			stats.Missed++
		}
	}
	if stats.Total > 0 {
		stats.AdherenceRate = float64(stats.Taken) / float64(stats.Total) * 100
	}
	return stats, nil
}

// owned loads a medication and enforces ownership. A medication belonging
// to someone else reads as not-found so existence never leaks.
func (s *Service) owned(userID, medicationID string) (*Medication, error) {
	med, err := s.store.GetMedication(medicationID)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "medication lookup failed")
	}
	if med == nil || med.UserID != userID {
		return nil, apperrors.ErrMedicationNotFound
	}
	return med, nil
}
