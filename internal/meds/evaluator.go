package meds

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// EvalResult is what one evaluator pass decided for a medication. Statuses
// covers every scheduled time for the day in time order; NewLogs and
// Reminders are intents for the caller to persist and dispatch. The
// evaluator itself never writes anywhere.
type EvalResult struct {
	Statuses  []DoseStatus
	NewLogs   []*DoseLog
	Reminders []ReminderIntent
}

// Evaluate classifies every scheduled time of the medication for the day of
// `now`. whenever an existing log covers a scheduled time its stored status
// wins; otherwise the time is upcoming (still ahead), due (within dueWindow
// of now, raises a reminder and a missed placeholder log), or missed
// (further in the past, raises the log without a reminder — the fallback
// that heals polling gaps).
//
// Evaluating twice against the same logs never yields a second log for the
// same scheduled time: the (medication, scheduled time) lookup is the sole
// dedupe key.
func Evaluate(med *Medication, logs []DoseLog, now time.Time, dueWindow time.Duration) EvalResult {
	var result EvalResult

	if !med.IsActiveOn(now) {
		return result
	}

	existing := make(map[int64]*DoseLog, len(logs))
	for i := range logs {
		existing[minuteKey(logs[i].ScheduledTime)] = &logs[i]
	}

	times := make([]DoseTime, len(med.Times))
	copy(times, med.Times)
	sort.Slice(times, func(i, j int) bool { return times[i].Time < times[j].Time })

	for _, dt := range times {
		scheduled := dt.On(now)

		status := DoseStatus{
			Medication:    med,
			DoseTime:      dt,
			ScheduledTime: scheduled,
		}

		if log, ok := existing[minuteKey(scheduled)]; ok {
			status.Log = log
			if log.Status == StatusTaken {
				status.Classification = ClassTaken
			} else {
				status.Classification = ClassMissed
			}
			result.Statuses = append(result.Statuses, status)
			continue
		}

		switch {
		case scheduled.After(now):
			status.Classification = ClassUpcoming

		case now.Sub(scheduled) <= dueWindow:
			// Due-now trigger: placeholder log plus a reminder, exactly once
			log := newMissedLog(med, scheduled)
			status.Classification = ClassDue
			status.Log = log
			result.NewLogs = append(result.NewLogs, log)
			result.Reminders = append(result.Reminders, ReminderIntent{
				Medication:    med,
				DoseTime:      dt,
				ScheduledTime: scheduled,
			})

		default:
			// Past the reminder window with no log: record the miss directly
			log := newMissedLog(med, scheduled)
			status.Classification = ClassMissed
			status.Log = log
			result.NewLogs = append(result.NewLogs, log)
		}

		result.Statuses = append(result.Statuses, status)
	}

	return result
}

func newMissedLog(med *Medication, scheduled time.Time) *DoseLog {
	return &DoseLog{
		ID:            uuid.NewString(),
		UserID:        med.UserID,
		MedicationID:  med.ID,
		ScheduledTime: scheduled,
		Status:        StatusMissed,
	}
}

func minuteKey(t time.Time) int64 {
	return t.Truncate(time.Minute).Unix()
}
