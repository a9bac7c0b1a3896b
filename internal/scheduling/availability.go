package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phuczkz/healthcare-center/pkg/interfaces"
	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

// dateLayout is the ISO calendar date format exchanged with the store and clients
const dateLayout = "2006-01-02"

// AvailabilityAggregator finds the doctors of a specialization who work on a given date
type AvailabilityAggregator struct {
	repo   interfaces.SchedulingRepository
	logger *logger.Logger
}

// NewAvailabilityAggregator creates a new availability aggregator
func NewAvailabilityAggregator(repo interfaces.SchedulingRepository, log *logger.Logger) *AvailabilityAggregator {
	return &AvailabilityAggregator{repo: repo, logger: log}
}

// Aggregate returns, per doctor id, the doctor and its template entries for the
// weekday of date, restricted to doctors whose trimmed specialization set
// contains specialization. A failed read yields an empty map together with an
// AVAILABILITY_QUERY_FAILED error so callers can tell it from "nobody works".
func (a *AvailabilityAggregator) Aggregate(ctx context.Context, date time.Time, specialization string) (map[string]*types.DoctorAvailability, error) {
	result := make(map[string]*types.DoctorAvailability)

	if date.IsZero() {
		return result, types.NewValidationError(types.ErrCodeInvalidDate, "date is required", nil)
	}

	wanted := strings.TrimSpace(specialization)
	if wanted == "" {
		return result, nil
	}

	weekday := WeekdayName(date)
	rows, err := a.repo.ListScheduleEntriesByWeekday(ctx, weekday)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"weekday":        weekday,
			"specialization": wanted,
		}).Error("Failed to load schedule entries")
		return make(map[string]*types.DoctorAvailability), types.NewAvailabilityQueryError(err)
	}

	for _, row := range rows {
		doctorID := row.Doctor.ID
		if doctorID == "" {
			doctorID = row.Entry.DoctorID
		}
		if !HasSpecialization(row.Doctor.Specializations, wanted) {
			continue
		}

		availability, ok := result[doctorID]
		if !ok {
			doctor := row.Doctor
			doctor.ID = doctorID
			availability = &types.DoctorAvailability{Doctor: doctor}
			result[doctorID] = availability
		}
		availability.Entries = append(availability.Entries, row.Entry)
	}

	a.logger.WithContext(ctx).WithFields(logrus.Fields{
		"date":           date.Format(dateLayout),
		"weekday":        weekday,
		"specialization": wanted,
		"doctors":        len(result),
	}).Debug("Aggregated availability")

	return result, nil
}

// HasSpecialization reports whether wanted is a member of the trimmed
// specialization set. Entries that still hold comma-separated text are split.
func HasSpecialization(specializations []string, wanted string) bool {
	wanted = strings.TrimSpace(wanted)
	if wanted == "" {
		return false
	}
	for _, s := range SplitSpecializations(strings.Join(specializations, ",")) {
		if s == wanted {
			return true
		}
	}
	return false
}

// SplitSpecializations parses comma-separated specialization text into a
// trimmed, de-duplicated list preserving first-seen order
func SplitSpecializations(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, part := range strings.Split(text, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
