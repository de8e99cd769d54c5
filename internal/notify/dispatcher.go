package notify

import (
	"time"

	"github.com/nmoreau/dosetrack/internal/metrics"
	"go.uber.org/zap"
)

// Dispatcher turns intents into persisted notifications and owns the
// read/unread surface the UI layer consumes.
//
// Delivery dedup lives here, not in the scheduler: the scheduler re-emits
// low-stock and caretaker-missed intents on every tick that observes the
// condition, and the dispatcher decides whether the user already has that
// alert.
type Dispatcher struct {
	store  *Store
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher over the notification store
func NewDispatcher(store *Store, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		logger: logger,
	}
}

// Emit persists the intent unless dedup suppresses it. Returns the created
// notification, or nil when suppressed.
func (d *Dispatcher) Emit(intent Intent) (*Notification, error) {
	suppressed, err := d.isDuplicate(intent)
	if err != nil {
		return nil, err
	}
	if suppressed {
		metrics.RecordNotificationSuppressed(string(intent.Kind))
		return nil, nil
	}

	n := &Notification{
		UserID:       intent.UserID,
		MedicationID: intent.MedicationID,
		Title:        intent.Title,
		Message:      intent.Message,
		Kind:         intent.Kind,
		DoseKey:      intent.DoseKey,
	}

	if err := d.store.Create(n); err != nil {
		return nil, err
	}

	metrics.RecordNotification(string(intent.Kind))
	d.logger.Debug("Notification emitted",
		zap.String("user_id", intent.UserID),
		zap.String("type", string(intent.Kind)),
		zap.String("title", intent.Title),
	)

	return n, nil
}

func (d *Dispatcher) isDuplicate(intent Intent) (bool, error) {
	switch intent.Kind {
	case KindLowStock:
		// One unread low-stock alert per medication at a time
		return d.store.HasUnread(intent.UserID, intent.MedicationID, KindLowStock)
	case KindMissed:
		if intent.DoseKey == "" {
			return false, nil
		}
		// At most one missed alert per (dose, recipient), read or not
		return d.store.HasDoseKey(intent.UserID, intent.DoseKey, KindMissed)
	default:
		return false, nil
	}
}

// List returns the user's notifications, newest first
func (d *Dispatcher) List(userID string, limit int) ([]Notification, error) {
	return d.store.List(userID, limit)
}

// UnreadCount returns the number of unread notifications
func (d *Dispatcher) UnreadCount(userID string) (int64, error) {
	return d.store.UnreadCount(userID)
}

func (d *Dispatcher) MarkRead(userID, id string) error {
	return d.store.MarkRead(userID, id)
}

func (d *Dispatcher) MarkAllRead(userID string) error {
	return d.store.MarkAllRead(userID)
}

func (d *Dispatcher) Delete(userID, id string) error {
	return d.store.Delete(userID, id)
}

func (d *Dispatcher) Clear(userID string) error {
	return d.store.Clear(userID)
}

// Prune deletes read notifications created before the cutoff
func (d *Dispatcher) Prune(cutoff time.Time) (int64, error) {
	return d.store.DeleteReadBefore(cutoff)
}
