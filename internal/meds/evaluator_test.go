package meds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMedication(times ...string) *Medication {
	dts := make([]DoseTime, len(times))
	for i, tm := range times {
		dts[i] = DoseTime{ID: "dt_" + tm, Time: tm}
	}
	return &Medication{
		ID:                "med_1",
		UserID:            "user_1",
		Name:              "Lisinopril",
		Dosage:            "10mg",
		Times:             dts,
		StartDate:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local),
		EndDate:           time.Date(2026, 12, 31, 0, 0, 0, 0, time.Local),
		QuantityRemaining: 30,
		QuantityThreshold: 5,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.Local)
}

const window = 5 * time.Minute

func TestEvaluate_FutureDoseIsUpcoming(t *testing.T) {
	med := testMedication("09:00")

	result := Evaluate(med, nil, at(8, 30), window)

	require.Len(t, result.Statuses, 1)
	assert.Equal(t, ClassUpcoming, result.Statuses[0].Classification)
	assert.Empty(t, result.NewLogs)
	assert.Empty(t, result.Reminders)
}

func TestEvaluate_WithinWindowIsDue(t *testing.T) {
	med := testMedication("09:00")

	result := Evaluate(med, nil, at(9, 3), window)

	require.Len(t, result.Statuses, 1)
	assert.Equal(t, ClassDue, result.Statuses[0].Classification)

	// A due dose writes a missed placeholder and raises a reminder
	require.Len(t, result.NewLogs, 1)
	assert.Equal(t, StatusMissed, result.NewLogs[0].Status)
	assert.Equal(t, at(9, 0), result.NewLogs[0].ScheduledTime)
	require.Len(t, result.Reminders, 1)
	assert.Equal(t, at(9, 0), result.Reminders[0].ScheduledTime)
}

func TestEvaluate_WindowEdgeIsStillDue(t *testing.T) {
	med := testMedication("09:00")

	result := Evaluate(med, nil, at(9, 5), window)

	require.Len(t, result.Statuses, 1)
	assert.Equal(t, ClassDue, result.Statuses[0].Classification)
	assert.Len(t, result.Reminders, 1)
}

func TestEvaluate_PastWindowIsMissedWithoutReminder(t *testing.T) {
	med := testMedication("09:00")

	result := Evaluate(med, nil, at(9, 30), window)

	require.Len(t, result.Statuses, 1)
	assert.Equal(t, ClassMissed, result.Statuses[0].Classification)
	require.Len(t, result.NewLogs, 1)
	assert.Equal(t, StatusMissed, result.NewLogs[0].Status)
	assert.Empty(t, result.Reminders)
}

func TestEvaluate_ExistingLogWins(t *testing.T) {
	med := testMedication("09:00")
	taken := at(9, 2)
	logs := []DoseLog{{
		ID:            "log_1",
		MedicationID:  med.ID,
		ScheduledTime: at(9, 0),
		Status:        StatusTaken,
		TakenTime:     &taken,
	}}

	result := Evaluate(med, logs, at(9, 3), window)

	require.Len(t, result.Statuses, 1)
	assert.Equal(t, ClassTaken, result.Statuses[0].Classification)
	assert.Empty(t, result.NewLogs)
	assert.Empty(t, result.Reminders)
}

func TestEvaluate_Idempotent(t *testing.T) {
	med := testMedication("08:00", "09:00")
	now := at(9, 3)

	first := Evaluate(med, nil, now, window)
	require.Len(t, first.NewLogs, 2) // 08:00 missed, 09:00 due

	persisted := make([]DoseLog, len(first.NewLogs))
	for i, log := range first.NewLogs {
		persisted[i] = *log
	}

	second := Evaluate(med, persisted, now, window)
	assert.Empty(t, second.NewLogs)
	assert.Empty(t, second.Reminders)
}

func TestEvaluate_InactiveMedication(t *testing.T) {
	med := testMedication("09:00")
	med.EndDate = time.Date(2026, 2, 1, 0, 0, 0, 0, time.Local)

	result := Evaluate(med, nil, at(9, 3), window)

	assert.Empty(t, result.Statuses)
	assert.Empty(t, result.NewLogs)
}

func TestEvaluate_StatusesInTimeOrder(t *testing.T) {
	med := testMedication("21:00", "08:00", "13:00")

	result := Evaluate(med, nil, at(7, 0), window)

	require.Len(t, result.Statuses, 3)
	assert.Equal(t, "08:00", result.Statuses[0].DoseTime.Time)
	assert.Equal(t, "13:00", result.Statuses[1].DoseTime.Time)
	assert.Equal(t, "21:00", result.Statuses[2].DoseTime.Time)
}

func TestEvaluate_EndDateInclusive(t *testing.T) {
	med := testMedication("09:00")
	med.EndDate = time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local)

	result := Evaluate(med, nil, at(9, 3), window)
	assert.Len(t, result.Statuses, 1)
}

func TestPeriodForHour(t *testing.T) {
	assert.Equal(t, PeriodNight, PeriodForHour(4))
	assert.Equal(t, PeriodMorning, PeriodForHour(5))
	assert.Equal(t, PeriodMorning, PeriodForHour(11))
	assert.Equal(t, PeriodAfternoon, PeriodForHour(12))
	assert.Equal(t, PeriodAfternoon, PeriodForHour(16))
	assert.Equal(t, PeriodEvening, PeriodForHour(17))
	assert.Equal(t, PeriodEvening, PeriodForHour(20))
	assert.Equal(t, PeriodNight, PeriodForHour(21))
	assert.Equal(t, PeriodNight, PeriodForHour(0))
}

func TestParseTimes(t *testing.T) {
	times, err := ParseTimes("21:00, 08:00, 08:00, 13:30")
	require.NoError(t, err)

	require.Len(t, times, 3)
	assert.Equal(t, "08:00", times[0].Time)
	assert.Equal(t, "13:30", times[1].Time)
	assert.Equal(t, "21:00", times[2].Time)
	assert.NotEmpty(t, times[0].ID)
}

func TestParseTimes_Invalid(t *testing.T) {
	_, err := ParseTimes("25:00")
	assert.Error(t, err)

	_, err = ParseTimes("9am")
	assert.Error(t, err)

	_, err = ParseTimes("")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local), d)

	_, err = ParseDate("10/03/2026")
	assert.Error(t, err)
}
