package meds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nmoreau/dosetrack/internal/clock"
	"github.com/nmoreau/dosetrack/internal/notify"
)

// intentRecorder captures emitted intents without persistence or dedup
type intentRecorder struct {
	intents []notify.Intent
}

func (r *intentRecorder) Emit(intent notify.Intent) (*notify.Notification, error) {
	r.intents = append(r.intents, intent)
	return &notify.Notification{}, nil
}

func (r *intentRecorder) ofKind(kind notify.Kind) []notify.Intent {
	var out []notify.Intent
	for _, intent := range r.intents {
		if intent.Kind == kind {
			out = append(out, intent)
		}
	}
	return out
}

type staticCaretakers map[string][]string

func (s staticCaretakers) CaretakersOf(patientID string) []string {
	return s[patientID]
}

func setupTestScheduler(t *testing.T, now time.Time, caretakers staticCaretakers) (*Scheduler, *Store, *intentRecorder, *clock.Fake) {
	store := setupTestStore(t)
	recorder := &intentRecorder{}
	clk := clock.NewFake(now)

	sched := NewScheduler("user_1", store, recorder, caretakers, clk, zap.NewNop()).
		WithDueWindow(window).
		WithEscalationDelay(time.Hour)

	return sched, store, recorder, clk
}

func TestScheduler_TickCreatesLogAndReminder(t *testing.T) {
	sched, store, recorder, _ := setupTestScheduler(t, at(9, 3), nil)

	med := testMedication("09:00")
	require.NoError(t, store.CreateMedication(med))

	sched.Tick(context.Background())

	logs, err := store.ListDayLogs("user_1", at(9, 3))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, StatusMissed, logs[0].Status)

	reminders := recorder.ofKind(notify.KindReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, med.ID, reminders[0].MedicationID)
	assert.Equal(t, notify.DoseKeyFor(med.ID, at(9, 0)), reminders[0].DoseKey)
}

func TestScheduler_TickIsIdempotent(t *testing.T) {
	sched, store, _, _ := setupTestScheduler(t, at(9, 3), nil)

	med := testMedication("09:00")
	require.NoError(t, store.CreateMedication(med))

	sched.Tick(context.Background())
	sched.Tick(context.Background())
	sched.Tick(context.Background())

	logs, err := store.ListDayLogs("user_1", at(9, 3))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestScheduler_MissedDirectlyPastWindow(t *testing.T) {
	sched, store, recorder, _ := setupTestScheduler(t, at(9, 30), nil)

	med := testMedication("09:00")
	require.NoError(t, store.CreateMedication(med))

	sched.Tick(context.Background())

	logs, err := store.ListDayLogs("user_1", at(9, 30))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, StatusMissed, logs[0].Status)
	assert.Empty(t, recorder.ofKind(notify.KindReminder))
}

func TestScheduler_LowStockEmittedEveryTick(t *testing.T) {
	sched, store, recorder, _ := setupTestScheduler(t, at(7, 0), nil)

	med := testMedication("09:00")
	med.QuantityRemaining = 3
	require.NoError(t, store.CreateMedication(med))

	sched.Tick(context.Background())
	sched.Tick(context.Background())

	// The scheduler re-emits; suppression is the dispatcher's call
	assert.Len(t, recorder.ofKind(notify.KindLowStock), 2)
}

func TestScheduler_EscalatesStaleMissedDoses(t *testing.T) {
	caretakers := staticCaretakers{"user_1": {"caretaker_1", "caretaker_2"}}
	sched, store, recorder, clk := setupTestScheduler(t, at(9, 30), caretakers)

	med := testMedication("09:00")
	require.NoError(t, store.CreateMedication(med))

	// First tick records the miss; nothing is stale yet
	sched.Tick(context.Background())
	assert.Empty(t, recorder.ofKind(notify.KindMissed))

	// An hour later the miss escalates to both caretakers
	clk.Set(at(10, 1))
	sched.Tick(context.Background())

	escalations := recorder.ofKind(notify.KindMissed)
	require.Len(t, escalations, 2)
	assert.Equal(t, "caretaker_1", escalations[0].UserID)
	assert.Equal(t, "caretaker_2", escalations[1].UserID)
	assert.Equal(t, notify.DoseKeyFor(med.ID, at(9, 0)), escalations[0].DoseKey)
}

func TestScheduler_EscalationIgnoresOldMisses(t *testing.T) {
	caretakers := staticCaretakers{"user_1": {"caretaker_1"}}
	sched, store, recorder, _ := setupTestScheduler(t, at(10, 30), caretakers)

	med := testMedication("09:00")
	require.NoError(t, store.CreateMedication(med))

	// A miss from days back, its alert long since read and pruned away
	old := &DoseLog{
		UserID:        "user_1",
		MedicationID:  med.ID,
		ScheduledTime: at(9, 0).AddDate(0, 0, -3),
		Status:        StatusMissed,
	}
	_, err := store.CreateDoseLog(old)
	require.NoError(t, err)

	recent := &DoseLog{
		UserID:        "user_1",
		MedicationID:  med.ID,
		ScheduledTime: at(9, 0),
		Status:        StatusMissed,
	}
	_, err = store.CreateDoseLog(recent)
	require.NoError(t, err)

	sched.Tick(context.Background())

	escalations := recorder.ofKind(notify.KindMissed)
	require.Len(t, escalations, 1)
	assert.Equal(t, notify.DoseKeyFor(med.ID, at(9, 0)), escalations[0].DoseKey)
}

func TestScheduler_NoEscalationWithoutCaretakers(t *testing.T) {
	sched, store, recorder, clk := setupTestScheduler(t, at(9, 30), nil)

	med := testMedication("09:00")
	require.NoError(t, store.CreateMedication(med))

	sched.Tick(context.Background())
	clk.Set(at(11, 0))
	sched.Tick(context.Background())

	assert.Empty(t, recorder.ofKind(notify.KindMissed))
}

func TestScheduler_TakenDoseNeverEscalates(t *testing.T) {
	caretakers := staticCaretakers{"user_1": {"caretaker_1"}}
	sched, store, recorder, clk := setupTestScheduler(t, at(9, 3), caretakers)

	med := testMedication("09:00")
	require.NoError(t, store.CreateMedication(med))

	sched.Tick(context.Background())

	logs, err := store.ListDayLogs("user_1", at(9, 3))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NoError(t, store.MarkDoseLogTaken(logs[0].ID, at(9, 10)))

	clk.Set(at(11, 0))
	sched.Tick(context.Background())

	assert.Empty(t, recorder.ofKind(notify.KindMissed))
}

func TestScheduler_EscalationSurvivesDeletedMedication(t *testing.T) {
	caretakers := staticCaretakers{"user_1": {"caretaker_1"}}
	sched, store, recorder, clk := setupTestScheduler(t, at(9, 30), caretakers)

	med := testMedication("09:00")
	require.NoError(t, store.CreateMedication(med))

	sched.Tick(context.Background())

	// Deleting the medication removes its logs; later sweeps are a no-op
	require.NoError(t, store.DeleteMedication(med.ID))

	clk.Set(at(11, 0))
	sched.Tick(context.Background())

	assert.Empty(t, recorder.ofKind(notify.KindMissed))
}

func TestScheduler_StartStop(t *testing.T) {
	sched, _, _, _ := setupTestScheduler(t, at(7, 0), nil)
	sched = sched.WithInterval(time.Hour)

	require.NoError(t, sched.Start(context.Background()))
	assert.True(t, sched.IsRunning())
	assert.Error(t, sched.Start(context.Background()))

	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsRunning())
	require.NoError(t, sched.Stop())
}
