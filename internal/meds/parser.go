package meds

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ParseTimes turns a comma-separated "HH:MM" list into schedule entries,
// deduplicated and sorted by time of day. Each entry gets a fresh ID.
func ParseTimes(input string) ([]DoseTime, error) {
	parts := strings.Split(input, ",")
	seen := make(map[string]bool)
	times := make([]DoseTime, 0, len(parts))

	for _, part := range parts {
		raw := strings.TrimSpace(part)
		if raw == "" {
			continue
		}
		if _, _, err := splitHHMM(raw); err != nil {
			return nil, fmt.Errorf("invalid dose time %q: %w", raw, err)
		}
		if seen[raw] {
			continue
		}
		seen[raw] = true
		times = append(times, DoseTime{ID: uuid.NewString(), Time: raw})
	}

	if len(times) == 0 {
		return nil, fmt.Errorf("no dose times given")
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Time < times[j].Time })
	return times, nil
}

// ParseDate parses a "YYYY-MM-DD" calendar date in local time
func ParseDate(input string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(input), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", input)
	}
	return t, nil
}
