package meds

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{})
	require.NoError(t, err)
	return db
}

func setupTestStore(t *testing.T) *Store {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)
	return store
}

func TestStore_CreateMedication(t *testing.T) {
	store := setupTestStore(t)

	med := testMedication("08:00", "20:00")
	med.ID = ""
	err := store.CreateMedication(med)
	require.NoError(t, err)
	assert.NotEmpty(t, med.ID)

	retrieved, err := store.GetMedication(med.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, med.Name, retrieved.Name)
	require.Len(t, retrieved.Times, 2)
	assert.Equal(t, "08:00", retrieved.Times[0].Time)
}

func TestStore_GetMedication_Missing(t *testing.T) {
	store := setupTestStore(t)

	med, err := store.GetMedication("nope")
	require.NoError(t, err)
	assert.Nil(t, med)
}

func TestStore_UpdateMedication(t *testing.T) {
	store := setupTestStore(t)

	med := testMedication("08:00")
	require.NoError(t, store.CreateMedication(med))

	med.Dosage = "20mg"
	med.Times = append(med.Times, DoseTime{ID: "dt_13:00", Time: "13:00"})
	require.NoError(t, store.UpdateMedication(med))

	retrieved, err := store.GetMedication(med.ID)
	require.NoError(t, err)
	assert.Equal(t, "20mg", retrieved.Dosage)
	assert.Len(t, retrieved.Times, 2)
}

func TestStore_DeleteMedication_CascadesLogs(t *testing.T) {
	store := setupTestStore(t)

	med := testMedication("08:00")
	require.NoError(t, store.CreateMedication(med))

	log := &DoseLog{
		UserID:        med.UserID,
		MedicationID:  med.ID,
		ScheduledTime: at(8, 0),
		Status:        StatusMissed,
	}
	_, err := store.CreateDoseLog(log)
	require.NoError(t, err)

	require.NoError(t, store.DeleteMedication(med.ID))

	gone, err := store.GetMedication(med.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	logGone, err := store.GetDoseLog(log.ID)
	require.NoError(t, err)
	assert.Nil(t, logGone)
}

func TestStore_ListActiveMedications(t *testing.T) {
	store := setupTestStore(t)

	active := testMedication("08:00")
	active.ID = "med_active"
	require.NoError(t, store.CreateMedication(active))

	expired := testMedication("08:00")
	expired.ID = "med_expired"
	expired.EndDate = time.Date(2026, 2, 1, 0, 0, 0, 0, time.Local)
	require.NoError(t, store.CreateMedication(expired))

	list, err := store.ListActiveMedications("user_1", at(8, 0))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "med_active", list[0].ID)
}

func TestStore_ListLowStockMedications(t *testing.T) {
	store := setupTestStore(t)

	low := testMedication("08:00")
	low.ID = "med_low"
	low.QuantityRemaining = 5
	low.QuantityThreshold = 5
	require.NoError(t, store.CreateMedication(low))

	fine := testMedication("08:00")
	fine.ID = "med_fine"
	require.NoError(t, store.CreateMedication(fine))

	list, err := store.ListLowStockMedications("user_1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "med_low", list[0].ID)
}

func TestStore_CreateDoseLog_ConflictIsIdempotent(t *testing.T) {
	store := setupTestStore(t)

	med := testMedication("08:00")
	require.NoError(t, store.CreateMedication(med))

	first := &DoseLog{
		UserID:        med.UserID,
		MedicationID:  med.ID,
		ScheduledTime: at(8, 0),
		Status:        StatusMissed,
	}
	inserted, err := store.CreateDoseLog(first)
	require.NoError(t, err)
	assert.True(t, inserted)

	duplicate := &DoseLog{
		UserID:        med.UserID,
		MedicationID:  med.ID,
		ScheduledTime: at(8, 0),
		Status:        StatusMissed,
	}
	inserted, err = store.CreateDoseLog(duplicate)
	require.NoError(t, err)
	assert.False(t, inserted)

	logs, err := store.ListDayLogs(med.UserID, at(12, 0))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestStore_MarkDoseLogTaken(t *testing.T) {
	store := setupTestStore(t)

	med := testMedication("08:00")
	require.NoError(t, store.CreateMedication(med))

	log := &DoseLog{
		UserID:        med.UserID,
		MedicationID:  med.ID,
		ScheduledTime: at(8, 0),
		Status:        StatusMissed,
	}
	_, err := store.CreateDoseLog(log)
	require.NoError(t, err)

	takenAt := at(8, 10)
	require.NoError(t, store.MarkDoseLogTaken(log.ID, takenAt))

	updated, err := store.GetDoseLog(log.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTaken, updated.Status)
	require.NotNil(t, updated.TakenTime)
	assert.True(t, updated.TakenTime.Equal(takenAt))
}

func TestStore_DecrementQuantity_FloorsAtZero(t *testing.T) {
	store := setupTestStore(t)

	med := testMedication("08:00")
	med.QuantityRemaining = 1
	require.NoError(t, store.CreateMedication(med))

	require.NoError(t, store.DecrementQuantity(med.ID))
	require.NoError(t, store.DecrementQuantity(med.ID))
	require.NoError(t, store.DecrementQuantity(med.ID))

	retrieved, err := store.GetMedication(med.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, retrieved.QuantityRemaining)
}

func TestStore_ListStaleMissedLogs(t *testing.T) {
	store := setupTestStore(t)

	med := testMedication("08:00")
	require.NoError(t, store.CreateMedication(med))

	stale := &DoseLog{
		UserID:        med.UserID,
		MedicationID:  med.ID,
		ScheduledTime: at(8, 0),
		Status:        StatusMissed,
	}
	_, err := store.CreateDoseLog(stale)
	require.NoError(t, err)

	fresh := &DoseLog{
		UserID:        med.UserID,
		MedicationID:  med.ID,
		ScheduledTime: at(9, 30),
		Status:        StatusMissed,
	}
	_, err = store.CreateDoseLog(fresh)
	require.NoError(t, err)

	ancient := &DoseLog{
		UserID:        med.UserID,
		MedicationID:  med.ID,
		ScheduledTime: at(8, 0).AddDate(0, 0, -3),
		Status:        StatusMissed,
	}
	_, err = store.CreateDoseLog(ancient)
	require.NoError(t, err)

	// Cutoff at 09:00, lower bound a day back: only the 08:00 miss qualifies
	logs, err := store.ListStaleMissedLogs(med.UserID, at(9, 0).Add(-24*time.Hour), at(9, 0))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].ScheduledTime.Equal(at(8, 0)))
}

func TestStore_ListDoseLogs_Range(t *testing.T) {
	store := setupTestStore(t)

	med := testMedication("08:00")
	require.NoError(t, store.CreateMedication(med))

	for day := 1; day <= 3; day++ {
		log := &DoseLog{
			UserID:        med.UserID,
			MedicationID:  med.ID,
			ScheduledTime: time.Date(2026, 3, day, 8, 0, 0, 0, time.Local),
			Status:        StatusTaken,
		}
		_, err := store.CreateDoseLog(log)
		require.NoError(t, err)
	}

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local)
	to := time.Date(2026, 3, 3, 23, 59, 59, 0, time.Local)
	logs, err := store.ListDoseLogs(med.UserID, "", from, to)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}
