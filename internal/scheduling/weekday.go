package scheduling

import "time"

// Weekday labels used as the join key into the weekly templates
const (
	Monday    = "Thứ 2"
	Tuesday   = "Thứ 3"
	Wednesday = "Thứ 4"
	Thursday  = "Thứ 5"
	Friday    = "Thứ 6"
	Saturday  = "Thứ 7"
	Sunday    = "Chủ nhật"
)

// weekdayLabels is indexed by time.Weekday (Sunday = 0)
var weekdayLabels = [7]string{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// WeekdayOrder is the clinic's display order, Monday first
var WeekdayOrder = []string{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// WeekdayName returns the weekday label of date. The date must already be in
// clinic-local calendar terms; no zone conversion happens here.
func WeekdayName(date time.Time) string {
	return weekdayLabels[date.Weekday()]
}

// IsWeekday reports whether label is one of the seven weekday labels
func IsWeekday(label string) bool {
	for _, l := range weekdayLabels {
		if l == label {
			return true
		}
	}
	return false
}

// weekdayIndex returns the position of label in WeekdayOrder, or len(WeekdayOrder) when unknown
func weekdayIndex(label string) int {
	for i, l := range WeekdayOrder {
		if l == label {
			return i
		}
	}
	return len(WeekdayOrder)
}
