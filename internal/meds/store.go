package meds

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store handles medication and dose-log persistence
type Store struct {
	db *gorm.DB
}

// NewStore creates a new medication store
func NewStore(db *gorm.DB) (*Store, error) {
	store := &Store{db: db}

	if err := db.AutoMigrate(&Medication{}, &DoseLog{}); err != nil {
		return nil, fmt.Errorf("failed to migrate medication schemas: %w", err)
	}

	return store, nil
}

// Medication operations

func (s *Store) CreateMedication(med *Medication) error {
	if med.ID == "" {
		med.ID = uuid.NewString()
	}
	serializeTimes(med)
	med.CreatedAt = time.Now()
	med.UpdatedAt = time.Now()
	return s.db.Create(med).Error
}

func (s *Store) GetMedication(id string) (*Medication, error) {
	var med Medication
	err := s.db.Where("id = ?", id).First(&med).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	deserializeTimes(&med)
	return &med, nil
}

func (s *Store) UpdateMedication(med *Medication) error {
	serializeTimes(med)
	med.UpdatedAt = time.Now()
	return s.db.Save(med).Error
}

// DeleteMedication removes the medication and its adherence history
func (s *Store) DeleteMedication(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("medication_id = ?", id).Delete(&DoseLog{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Medication{}).Error
	})
}

func (s *Store) ListMedications(userID string) ([]Medication, error) {
	var meds []Medication
	err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&meds).Error
	for i := range meds {
		deserializeTimes(&meds[i])
	}
	return meds, err
}

// ListActiveMedications filters the user's medications by validity window
func (s *Store) ListActiveMedications(userID string, date time.Time) ([]Medication, error) {
	meds, err := s.ListMedications(userID)
	if err != nil {
		return nil, err
	}
	active := meds[:0]
	for _, med := range meds {
		if med.IsActiveOn(date) {
			active = append(active, med)
		}
	}
	return active, nil
}

// ListLowStockMedications returns medications at or below their threshold
func (s *Store) ListLowStockMedications(userID string) ([]Medication, error) {
	var meds []Medication
	err := s.db.Where("user_id = ? AND quantity_remaining <= quantity_threshold", userID).
		Order("created_at ASC").Find(&meds).Error
	for i := range meds {
		deserializeTimes(&meds[i])
	}
	return meds, err
}

// DoseLog operations

// CreateDoseLog inserts a log; a conflict on the (medication, scheduled time)
// key is swallowed so concurrent evaluator passes stay idempotent. Returns
// true when the row was actually inserted.
func (s *Store) CreateDoseLog(log *DoseLog) (bool, error) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.CreatedAt = time.Now()

	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "medication_id"}, {Name: "scheduled_time"}},
		DoNothing: true,
	}).Create(log)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetDoseLog(id string) (*DoseLog, error) {
	var log DoseLog
	err := s.db.Where("id = ?", id).First(&log).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &log, err
}

// FindDoseLog looks a log up by its idempotence key
func (s *Store) FindDoseLog(medicationID string, scheduled time.Time) (*DoseLog, error) {
	var log DoseLog
	err := s.db.Where("medication_id = ? AND scheduled_time = ?", medicationID, scheduled).
		First(&log).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &log, err
}

// MarkDoseLogTaken flips a log to taken. The reverse transition does not
// exist: a taken log is never written back to missed.
func (s *Store) MarkDoseLogTaken(id string, takenAt time.Time) error {
	return s.db.Model(&DoseLog{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     StatusTaken,
		"taken_time": &takenAt,
	}).Error
}

// ListDoseLogs returns a user's logs, optionally filtered
func (s *Store) ListDoseLogs(userID, medicationID string, start, end time.Time) ([]DoseLog, error) {
	query := s.db.Where("user_id = ?", userID)

	if medicationID != "" {
		query = query.Where("medication_id = ?", medicationID)
	}
	if !start.IsZero() {
		query = query.Where("scheduled_time >= ?", start)
	}
	if !end.IsZero() {
		query = query.Where("scheduled_time <= ?", end)
	}

	var logs []DoseLog
	err := query.Order("scheduled_time ASC").Find(&logs).Error
	return logs, err
}

// ListDayLogs returns a user's logs for one calendar day
func (s *Store) ListDayLogs(userID string, day time.Time) ([]DoseLog, error) {
	start := DateOf(day)
	return s.ListDoseLogs(userID, "", start, start.Add(24*time.Hour-time.Nanosecond))
}

// ListStaleMissedLogs returns missed logs scheduled inside (since, cutoff].
// Input to the caretaker escalation sweep; the lower bound keeps the sweep's
// working set from growing with history.
func (s *Store) ListStaleMissedLogs(userID string, since, cutoff time.Time) ([]DoseLog, error) {
	var logs []DoseLog
	err := s.db.Where("user_id = ? AND status = ? AND scheduled_time > ? AND scheduled_time <= ?",
		userID, StatusMissed, since, cutoff).
		Order("scheduled_time ASC").Find(&logs).Error
	return logs, err
}

// DecrementQuantity takes one unit off the stock, floored at zero
func (s *Store) DecrementQuantity(medicationID string) error {
	return s.db.Model(&Medication{}).
		Where("id = ? AND quantity_remaining > 0", medicationID).
		UpdateColumn("quantity_remaining", gorm.Expr("quantity_remaining - 1")).Error
}

func serializeTimes(med *Medication) {
	if len(med.Times) > 0 {
		timesJSON, _ := json.Marshal(med.Times)
		med.TimesJSON = string(timesJSON)
	}
}

func deserializeTimes(med *Medication) {
	if med.TimesJSON != "" {
		json.Unmarshal([]byte(med.TimesJSON), &med.Times)
	}
}
