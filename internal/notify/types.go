package notify

import (
	"fmt"
	"time"
)

// Kind classifies a notification
type Kind string

const (
	KindReminder       Kind = "reminder"
	KindMissed         Kind = "missed"
	KindLowStock       Kind = "low-stock"
	KindCaretakerInvite Kind = "caretaker-invite"
	KindSystem         Kind = "system"
)

// Notification is a persisted alert for one user
type Notification struct {
	ID           string `json:"id" gorm:"primaryKey"`
	UserID       string `json:"user_id" gorm:"index"`
	MedicationID string `json:"medication_id,omitempty"`

	Title   string `json:"title"`
	Message string `json:"message"`
	Kind    Kind   `json:"type" gorm:"column:type;index"`

	// DoseKey ties dose-scoped notifications (reminder, missed) to the
	// exact scheduled dose instance they concern, for delivery dedup.
	DoseKey string `json:"-" gorm:"index"`

	Read      bool      `json:"read" gorm:"default:false"`
	CreatedAt time.Time `json:"time"`
}

// Intent is a request to deliver a notification; the dispatcher decides
// whether it becomes a row or is suppressed as a duplicate.
type Intent struct {
	UserID       string
	MedicationID string
	Title        string
	Message      string
	Kind         Kind
	DoseKey      string
}

// DoseKeyFor builds the dedup key for one scheduled dose instance
func DoseKeyFor(medicationID string, scheduled time.Time) string {
	return fmt.Sprintf("%s@%s", medicationID, scheduled.Format("2006-01-02 15:04"))
}
