package scheduling

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/phuczkz/healthcare-center/pkg/types"
)

// timeOfDay matches a 24-hour HH:MM wall-clock time
var timeOfDay = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):[0-5][0-9]$`)

// Rule names reported in validation error details
const (
	RuleWeekday  = "weekday"
	RuleFormat   = "format"
	RuleOrder    = "order"
	RuleOverlap  = "overlap"
	RuleCapacity = "capacity"
	RuleEmpty    = "empty"
)

// toMinutes converts a validated HH:MM (or HH:MM:SS) string to minutes since midnight
func toMinutes(hhmm string) int {
	parts := strings.SplitN(hhmm, ":", 3)
	if len(parts) < 2 {
		return -1
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return -1
	}
	return h*60 + m
}

// ValidateSchedule checks a doctor's proposed weekly template before it is
// persisted. Weekdays are checked in WeekdayOrder and the first violation is
// returned; within a weekday the format, ordering, overlap and capacity rules
// run in that order. Ranges that end exactly when the next one starts are
// accepted. A template without any range is rejected.
func ValidateSchedule(schedule types.WeeklySchedule) error {
	unknown := make([]string, 0)
	for label := range schedule {
		if !IsWeekday(label) {
			unknown = append(unknown, label)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return ruleError(types.ErrCodeInvalidWeekday, unknown[0], RuleWeekday,
			fmt.Sprintf("unknown weekday %q", unknown[0]), nil)
	}

	total := 0
	for _, weekday := range WeekdayOrder {
		ranges := schedule[weekday]
		if len(ranges) == 0 {
			continue
		}
		if err := validateWeekday(weekday, ranges); err != nil {
			return err
		}
		total += len(ranges)
	}

	if total == 0 {
		return ruleError(types.ErrCodeEmptySchedule, "", RuleEmpty, "no working hours configured", nil)
	}
	return nil
}

func validateWeekday(weekday string, ranges []types.TimeRange) error {
	for i, r := range ranges {
		for _, value := range []string{r.Start, r.End} {
			if !timeOfDay.MatchString(value) {
				return ruleError(types.ErrCodeInvalidTimeFormat, weekday, RuleFormat,
					fmt.Sprintf("%s: time %q must be HH:MM (24-hour)", weekday, value),
					map[string]interface{}{"index": i, "value": value})
			}
		}
	}

	for i, r := range ranges {
		if toMinutes(r.Start) >= toMinutes(r.End) {
			return ruleError(types.ErrCodeInvalidTimeOrder, weekday, RuleOrder,
				fmt.Sprintf("%s: start %s must be before end %s", weekday, r.Start, r.End),
				map[string]interface{}{"index": i, "start": r.Start, "end": r.End})
		}
	}

	sorted := make([]types.TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return toMinutes(sorted[i].Start) < toMinutes(sorted[j].Start)
	})
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		if toMinutes(prev.End) > toMinutes(next.Start) {
			return ruleError(types.ErrCodeOverlappingRanges, weekday, RuleOverlap,
				fmt.Sprintf("%s: %s-%s overlaps %s-%s", weekday, prev.Start, prev.End, next.Start, next.End),
				map[string]interface{}{
					"first":  prev.Start + "-" + prev.End,
					"second": next.Start + "-" + next.End,
				})
		}
	}

	for i, r := range ranges {
		if r.MaxPatientsPerSlot < 0 {
			return ruleError(types.ErrCodeInvalidCapacity, weekday, RuleCapacity,
				fmt.Sprintf("%s: max patients per slot cannot be negative", weekday),
				map[string]interface{}{"index": i, "value": r.MaxPatientsPerSlot})
		}
	}

	return nil
}

func ruleError(code, weekday, rule, message string, extra map[string]interface{}) *types.SchedulingError {
	details := map[string]interface{}{"rule": rule}
	if weekday != "" {
		details["weekday"] = weekday
	}
	for k, v := range extra {
		details[k] = v
	}
	return types.NewValidationError(code, message, details)
}

// ToTemplateEntries converts an accepted schedule into template rows for
// doctorID, ordered by weekday then start time. Each row gets a fresh id.
func ToTemplateEntries(doctorID string, schedule types.WeeklySchedule) []*types.ScheduleTemplateEntry {
	entries := make([]*types.ScheduleTemplateEntry, 0)
	for _, weekday := range WeekdayOrder {
		ranges := make([]types.TimeRange, len(schedule[weekday]))
		copy(ranges, schedule[weekday])
		sort.SliceStable(ranges, func(i, j int) bool {
			return toMinutes(ranges[i].Start) < toMinutes(ranges[j].Start)
		})

		for _, r := range ranges {
			entries = append(entries, &types.ScheduleTemplateEntry{
				ID:                 uuid.New().String(),
				DoctorID:           doctorID,
				Weekday:            weekday,
				StartTime:          r.Start + ":00",
				EndTime:            r.End + ":00",
				MaxPatientsPerSlot: r.MaxPatientsPerSlot,
			})
		}
	}
	return entries
}

// ToWeeklySchedule is the inverse of ToTemplateEntries
func ToWeeklySchedule(entries []*types.ScheduleTemplateEntry) types.WeeklySchedule {
	schedule := make(types.WeeklySchedule)
	for _, e := range entries {
		schedule[e.Weekday] = append(schedule[e.Weekday], types.TimeRange{
			Start:              clockHHMM(e.StartTime),
			End:                clockHHMM(e.EndTime),
			MaxPatientsPerSlot: e.MaxPatientsPerSlot,
		})
	}
	for weekday, ranges := range schedule {
		sort.SliceStable(ranges, func(i, j int) bool {
			return toMinutes(ranges[i].Start) < toMinutes(ranges[j].Start)
		})
		schedule[weekday] = ranges
	}
	return schedule
}

// clockHHMM trims a HH:MM:SS value to HH:MM
func clockHHMM(value string) string {
	if len(value) >= 5 {
		return value[:5]
	}
	return value
}
