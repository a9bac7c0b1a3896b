package scheduling

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuczkz/healthcare-center/pkg/types"
)

func requireRule(t *testing.T, err error, code, weekday, rule string) {
	t.Helper()
	var se *types.SchedulingError
	require.True(t, errors.As(err, &se), "expected SchedulingError, got %v", err)
	assert.Equal(t, types.ErrorTypeValidation, se.Type)
	assert.Equal(t, code, se.Code)
	assert.Equal(t, rule, se.Details["rule"])
	if weekday != "" {
		assert.Equal(t, weekday, se.Details["weekday"])
	}
}

func TestValidateSchedule_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		schedule types.WeeklySchedule
		code     string
		weekday  string
		rule     string
	}{
		{
			name: "lunch gap accepted",
			schedule: types.WeeklySchedule{
				Monday: {{Start: "08:00", End: "12:00"}, {Start: "13:00", End: "17:00"}},
			},
		},
		{
			name: "overlap rejected",
			schedule: types.WeeklySchedule{
				Monday: {{Start: "08:00", End: "12:30"}, {Start: "12:00", End: "17:00"}},
			},
			code: types.ErrCodeOverlappingRanges, weekday: Monday, rule: RuleOverlap,
		},
		{
			name: "missing leading zero rejected as format",
			schedule: types.WeeklySchedule{
				Monday: {{Start: "13:00", End: "12:00"}, {Start: "8:00", End: "12:00"}},
			},
			code: types.ErrCodeInvalidTimeFormat, weekday: Monday, rule: RuleFormat,
		},
		{
			name: "back to back accepted",
			schedule: types.WeeklySchedule{
				Tuesday: {{Start: "13:00", End: "17:00"}, {Start: "08:00", End: "13:00"}},
			},
		},
		{
			name: "start equal to end rejected",
			schedule: types.WeeklySchedule{
				Friday: {{Start: "09:00", End: "09:00"}},
			},
			code: types.ErrCodeInvalidTimeOrder, weekday: Friday, rule: RuleOrder,
		},
		{
			name: "unsorted overlap detected",
			schedule: types.WeeklySchedule{
				Saturday: {{Start: "14:00", End: "18:00"}, {Start: "07:00", End: "09:00"}, {Start: "08:30", End: "11:00"}},
			},
			code: types.ErrCodeOverlappingRanges, weekday: Saturday, rule: RuleOverlap,
		},
		{
			name: "unknown weekday",
			schedule: types.WeeklySchedule{
				"Thứ 8": {{Start: "08:00", End: "12:00"}},
			},
			code: types.ErrCodeInvalidWeekday, weekday: "Thứ 8", rule: RuleWeekday,
		},
		{
			name: "negative capacity",
			schedule: types.WeeklySchedule{
				Sunday: {{Start: "08:00", End: "12:00", MaxPatientsPerSlot: -1}},
			},
			code: types.ErrCodeInvalidCapacity, weekday: Sunday, rule: RuleCapacity,
		},
		{
			name:     "empty template",
			schedule: types.WeeklySchedule{Monday: {}, Sunday: nil},
			code:     types.ErrCodeEmptySchedule, rule: RuleEmpty,
		},
		{
			name:     "nil template",
			schedule: nil,
			code:     types.ErrCodeEmptySchedule, rule: RuleEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchedule(tt.schedule)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			requireRule(t, err, tt.code, tt.weekday, tt.rule)
		})
	}
}

func TestValidateSchedule_FailsOnFirstWeekdayInOrder(t *testing.T) {
	schedule := types.WeeklySchedule{
		Sunday:    {{Start: "25:00", End: "26:00"}},
		Wednesday: {{Start: "10:00", End: "09:00"}},
		Monday:    {{Start: "08:00", End: "12:00"}},
	}

	requireRule(t, ValidateSchedule(schedule), types.ErrCodeInvalidTimeOrder, Wednesday, RuleOrder)
}

func TestValidateSchedule_OverlapIffEndAfterStart(t *testing.T) {
	// Two ranges with s1 <= s2 are rejected exactly when e1 > s2
	for s1 := 0; s1 < 6; s1++ {
		for e1 := s1 + 1; e1 <= 8; e1++ {
			for s2 := s1; s2 < 8; s2++ {
				e2 := s2 + 1
				schedule := types.WeeklySchedule{
					Thursday: {
						{Start: hour(s1), End: hour(e1)},
						{Start: hour(s2), End: hour(e2)},
					},
				}
				err := ValidateSchedule(schedule)
				if e1 > s2 {
					requireRule(t, err, types.ErrCodeOverlappingRanges, Thursday, RuleOverlap)
				} else {
					assert.NoError(t, err, "s1=%d e1=%d s2=%d e2=%d", s1, e1, s2, e2)
				}
			}
		}
	}
}

func TestValidateSchedule_RejectsMalformedTimes(t *testing.T) {
	for _, bad := range []string{"25:00", "9:00", "08:60", "0800", "08:00:00", " 08:00", "24:00", ""} {
		t.Run(bad, func(t *testing.T) {
			schedule := types.WeeklySchedule{
				Monday: {{Start: bad, End: "23:59"}},
			}
			requireRule(t, ValidateSchedule(schedule), types.ErrCodeInvalidTimeFormat, Monday, RuleFormat)
		})
	}
}

func TestValidateSchedule_IsPure(t *testing.T) {
	schedule := types.WeeklySchedule{
		Monday: {{Start: "13:00", End: "17:00"}, {Start: "08:00", End: "12:30"}},
		Friday: {{Start: "08:00", End: "12:30"}, {Start: "12:00", End: "17:00"}},
	}

	first := ValidateSchedule(schedule)
	second := ValidateSchedule(schedule)
	assert.Equal(t, first, second)
	// input order untouched
	assert.Equal(t, "13:00", schedule[Monday][0].Start)
}

func TestToTemplateEntries(t *testing.T) {
	schedule := types.WeeklySchedule{
		Sunday: {{Start: "08:00", End: "11:00"}},
		Monday: {{Start: "13:00", End: "17:00", MaxPatientsPerSlot: 3}, {Start: "08:00", End: "12:00"}},
	}

	entries := ToTemplateEntries("doc-1", schedule)
	require.Len(t, entries, 3)

	assert.Equal(t, Monday, entries[0].Weekday)
	assert.Equal(t, "08:00:00", entries[0].StartTime)
	assert.Equal(t, "12:00:00", entries[0].EndTime)
	assert.Equal(t, Monday, entries[1].Weekday)
	assert.Equal(t, 3, entries[1].MaxPatientsPerSlot)
	assert.Equal(t, Sunday, entries[2].Weekday)
	for _, e := range entries {
		assert.Equal(t, "doc-1", e.DoctorID)
		assert.NotEmpty(t, e.ID)
	}

	roundTrip := ToWeeklySchedule(entries)
	assert.Equal(t, types.WeeklySchedule{
		Sunday: {{Start: "08:00", End: "11:00"}},
		Monday: {{Start: "08:00", End: "12:00"}, {Start: "13:00", End: "17:00", MaxPatientsPerSlot: 3}},
	}, roundTrip)
}

func hour(h int) string {
	return fmt.Sprintf("%02d:00", h)
}
