package notify

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDispatcher(t *testing.T) (*Dispatcher, *Store) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{})
	require.NoError(t, err)

	store, err := NewStore(db)
	require.NoError(t, err)

	return NewDispatcher(store, zap.NewNop()), store
}

func TestDispatcher_EmitPersists(t *testing.T) {
	d, _ := setupTestDispatcher(t)

	n, err := d.Emit(Intent{
		UserID:  "user_1",
		Title:   "Medication reminder",
		Message: "Time to take Lisinopril (10mg)",
		Kind:    KindReminder,
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Read)

	list, err := d.List("user_1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, KindReminder, list[0].Kind)
}

func TestDispatcher_RemindersNeverSuppressed(t *testing.T) {
	d, _ := setupTestDispatcher(t)

	intent := Intent{
		UserID:       "user_1",
		MedicationID: "med_1",
		Title:        "Medication reminder",
		Kind:         KindReminder,
		DoseKey:      "med_1@2026-03-10 09:00",
	}

	first, err := d.Emit(intent)
	require.NoError(t, err)
	assert.NotNil(t, first)

	second, err := d.Emit(intent)
	require.NoError(t, err)
	assert.NotNil(t, second)
}

func TestDispatcher_LowStockSuppressedWhileUnread(t *testing.T) {
	d, _ := setupTestDispatcher(t)

	intent := Intent{
		UserID:       "user_1",
		MedicationID: "med_1",
		Title:        "Low stock",
		Kind:         KindLowStock,
	}

	first, err := d.Emit(intent)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Same condition on the next tick: swallowed
	second, err := d.Emit(intent)
	require.NoError(t, err)
	assert.Nil(t, second)

	// Acknowledging the alert re-arms it
	require.NoError(t, d.MarkRead("user_1", first.ID))

	third, err := d.Emit(intent)
	require.NoError(t, err)
	assert.NotNil(t, third)
}

func TestDispatcher_LowStockPerMedication(t *testing.T) {
	d, _ := setupTestDispatcher(t)

	first, err := d.Emit(Intent{UserID: "user_1", MedicationID: "med_1", Kind: KindLowStock})
	require.NoError(t, err)
	assert.NotNil(t, first)

	other, err := d.Emit(Intent{UserID: "user_1", MedicationID: "med_2", Kind: KindLowStock})
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestDispatcher_MissedSuppressedByDoseKey(t *testing.T) {
	d, _ := setupTestDispatcher(t)

	intent := Intent{
		UserID:       "caretaker_1",
		MedicationID: "med_1",
		Title:        "Missed dose",
		Kind:         KindMissed,
		DoseKey:      DoseKeyFor("med_1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)),
	}

	first, err := d.Emit(intent)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Reading it does not re-arm: one alert per dose instance, ever
	require.NoError(t, d.MarkRead("caretaker_1", first.ID))

	second, err := d.Emit(intent)
	require.NoError(t, err)
	assert.Nil(t, second)

	// A different dose instance is a fresh alert
	later := intent
	later.DoseKey = DoseKeyFor("med_1", time.Date(2026, 3, 11, 9, 0, 0, 0, time.Local))
	third, err := d.Emit(later)
	require.NoError(t, err)
	assert.NotNil(t, third)
}

func TestDispatcher_MissedScopedToRecipient(t *testing.T) {
	d, _ := setupTestDispatcher(t)

	doseKey := DoseKeyFor("med_1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local))

	first, err := d.Emit(Intent{UserID: "caretaker_1", Kind: KindMissed, DoseKey: doseKey})
	require.NoError(t, err)
	assert.NotNil(t, first)

	second, err := d.Emit(Intent{UserID: "caretaker_2", Kind: KindMissed, DoseKey: doseKey})
	require.NoError(t, err)
	assert.NotNil(t, second)
}

func TestDispatcher_UnreadCountAndMarkAllRead(t *testing.T) {
	d, _ := setupTestDispatcher(t)

	for i := 0; i < 3; i++ {
		_, err := d.Emit(Intent{UserID: "user_1", Kind: KindSystem, Title: "hello"})
		require.NoError(t, err)
	}

	count, err := d.UnreadCount("user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, d.MarkAllRead("user_1"))

	count, err = d.UnreadCount("user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDispatcher_PruneOnlyRead(t *testing.T) {
	d, store := setupTestDispatcher(t)

	read, err := d.Emit(Intent{UserID: "user_1", Kind: KindSystem, Title: "old read"})
	require.NoError(t, err)
	require.NoError(t, d.MarkRead("user_1", read.ID))

	_, err = d.Emit(Intent{UserID: "user_1", Kind: KindSystem, Title: "old unread"})
	require.NoError(t, err)

	deleted, err := d.Prune(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	list, err := store.List("user_1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "old unread", list[0].Title)
}
