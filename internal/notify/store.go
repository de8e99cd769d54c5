package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store handles notification persistence
type Store struct {
	db *gorm.DB
}

// NewStore creates a new notification store
func NewStore(db *gorm.DB) (*Store, error) {
	store := &Store{db: db}

	if err := db.AutoMigrate(&Notification{}); err != nil {
		return nil, fmt.Errorf("failed to migrate notification schema: %w", err)
	}

	return store, nil
}

func (s *Store) Create(n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now()
	return s.db.Create(n).Error
}

func (s *Store) Get(id string) (*Notification, error) {
	var n Notification
	err := s.db.Where("id = ?", id).First(&n).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &n, err
}

func (s *Store) List(userID string, limit int) ([]Notification, error) {
	query := s.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var list []Notification
	err := query.Find(&list).Error
	return list, err
}

func (s *Store) UnreadCount(userID string) (int64, error) {
	var count int64
	err := s.db.Model(&Notification{}).
		Where("user_id = ? AND read = ?", userID, false).Count(&count).Error
	return count, err
}

func (s *Store) MarkRead(userID, id string) error {
	return s.db.Model(&Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true).Error
}

func (s *Store) MarkAllRead(userID string) error {
	return s.db.Model(&Notification{}).
		Where("user_id = ?", userID).
		Update("read", true).Error
}

func (s *Store) Delete(userID, id string) error {
	return s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&Notification{}).Error
}

func (s *Store) Clear(userID string) error {
	return s.db.Where("user_id = ?", userID).Delete(&Notification{}).Error
}

// HasUnread reports whether an unread notification of the kind exists for
// the user and medication. Used to suppress repeated low-stock deliveries.
func (s *Store) HasUnread(userID, medicationID string, kind Kind) (bool, error) {
	var count int64
	err := s.db.Model(&Notification{}).
		Where("user_id = ? AND medication_id = ? AND type = ? AND read = ?",
			userID, medicationID, kind, false).
		Count(&count).Error
	return count > 0, err
}

// HasDoseKey reports whether the user already got a notification of the
// kind for the exact dose instance. Used to cap caretaker alerts at one
// per (dose, caretaker).
func (s *Store) HasDoseKey(userID, doseKey string, kind Kind) (bool, error) {
	var count int64
	err := s.db.Model(&Notification{}).
		Where("user_id = ? AND dose_key = ? AND type = ?", userID, doseKey, kind).
		Count(&count).Error
	return count > 0, err
}

// DeleteReadBefore prunes read notifications older than the cutoff
func (s *Store) DeleteReadBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("read = ? AND created_at < ?", true, cutoff).Delete(&Notification{})
	return res.RowsAffected, res.Error
}
