package meds

import (
	"fmt"
	"time"
)

// Period is the part of day a dose time falls into, always derived from the hour
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
	PeriodNight     Period = "night"
)

// PeriodForHour maps an hour of day to its period: [5,12) morning,
// [12,17) afternoon, [17,21) evening, everything else night.
func PeriodForHour(hour int) Period {
	switch {
	case hour >= 5 && hour < 12:
		return PeriodMorning
	case hour >= 12 && hour < 17:
		return PeriodAfternoon
	case hour >= 17 && hour < 21:
		return PeriodEvening
	default:
		return PeriodNight
	}
}

// DoseTime is one entry of a medication's daily schedule
type DoseTime struct {
	ID   string `json:"id"`
	Time string `json:"time"` // 24-hour "HH:MM"
}

// Hour returns the hour component of the dose time
func (d DoseTime) Hour() int {
	h, _, _ := splitHHMM(d.Time)
	return h
}

// Minute returns the minute component of the dose time
func (d DoseTime) Minute() int {
	_, m, _ := splitHHMM(d.Time)
	return m
}

// Period returns the derived part of day
func (d DoseTime) Period() Period {
	return PeriodForHour(d.Hour())
}

// On anchors the dose time to a calendar date, minute precision
func (d DoseTime) On(date time.Time) time.Time {
	h, m, _ := splitHHMM(d.Time)
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, date.Location())
}

// Medication is a recurring dose schedule owned by a patient
type Medication struct {
	ID     string `json:"id" gorm:"primaryKey"`
	UserID string `json:"user_id" gorm:"index"`

	Name   string `json:"name"`
	Dosage string `json:"dosage"` // e.g., "10mg", "1 tablet"

	Times     []DoseTime `json:"times" gorm:"-"`
	TimesJSON string     `json:"-" gorm:"type:text"` // Serialized times

	// Validity window, calendar dates, both ends inclusive
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	QuantityRemaining int `json:"quantity_remaining"`
	QuantityThreshold int `json:"quantity_threshold"`

	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActiveOn reports whether the date falls inside the validity window
func (m *Medication) IsActiveOn(date time.Time) bool {
	day := DateOf(date)
	return !day.Before(DateOf(m.StartDate)) && !day.After(DateOf(m.EndDate))
}

// IsLowStock reports whether remaining quantity has hit the threshold
func (m *Medication) IsLowStock() bool {
	return m.QuantityRemaining <= m.QuantityThreshold
}

// DoseTimeByID finds a schedule entry by ID
func (m *Medication) DoseTimeByID(id string) (DoseTime, bool) {
	for _, dt := range m.Times {
		if dt.ID == id {
			return dt, true
		}
	}
	return DoseTime{}, false
}

// Validate checks the structural invariants enforced at the mutation boundary
func (m *Medication) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(m.Times) == 0 {
		return fmt.Errorf("at least one dose time is required")
	}
	for _, dt := range m.Times {
		if _, _, err := splitHHMM(dt.Time); err != nil {
			return fmt.Errorf("dose time %q: %w", dt.Time, err)
		}
	}
	if m.StartDate.IsZero() || m.EndDate.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if DateOf(m.EndDate).Before(DateOf(m.StartDate)) {
		return fmt.Errorf("end date precedes start date")
	}
	if m.QuantityRemaining < 0 {
		return fmt.Errorf("quantity remaining cannot be negative")
	}
	if m.QuantityThreshold < 0 {
		return fmt.Errorf("quantity threshold cannot be negative")
	}
	return nil
}

// DoseStatusValue is the lifecycle state of a scheduled dose instance
type DoseStatusValue string

const (
	StatusTaken  DoseStatusValue = "taken"
	StatusMissed DoseStatusValue = "missed"
)

// DoseLog records the outcome of one scheduled dose instance. The
// (MedicationID, ScheduledTime) pair is unique and is the idempotence key
// for everything the scheduler does.
type DoseLog struct {
	ID           string `json:"id" gorm:"primaryKey"`
	UserID       string `json:"user_id" gorm:"index"`
	MedicationID string `json:"medication_id" gorm:"uniqueIndex:idx_med_scheduled"`

	ScheduledTime time.Time       `json:"scheduled_time" gorm:"uniqueIndex:idx_med_scheduled"`
	Status        DoseStatusValue `json:"status"`
	TakenTime     *time.Time      `json:"taken_time,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Classification is what the evaluator decides about one scheduled time
type Classification string

const (
	ClassUpcoming Classification = "upcoming"
	ClassDue      Classification = "due"
	ClassTaken    Classification = "taken"
	ClassMissed   Classification = "missed"
)

// DoseStatus pairs a schedule entry with its classification for one day
type DoseStatus struct {
	Medication     *Medication
	DoseTime       DoseTime
	ScheduledTime  time.Time
	Classification Classification
	Log            *DoseLog
}

// ReminderIntent asks the dispatcher to remind the patient about a due dose
type ReminderIntent struct {
	Medication    *Medication
	DoseTime      DoseTime
	ScheduledTime time.Time
}

// DateOf truncates an instant to its calendar date
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func splitHHMM(s string) (hour, minute int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("expected HH:MM")
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	for _, c := range []byte{s[0], s[1], s[3], s[4]} {
		if c < '0' || c > '9' {
			return 0, 0, fmt.Errorf("expected HH:MM")
		}
	}
	if h > 23 || m > 59 {
		return 0, 0, fmt.Errorf("time out of range")
	}
	return h, m, nil
}
