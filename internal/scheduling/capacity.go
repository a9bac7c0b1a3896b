package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phuczkz/healthcare-center/pkg/interfaces"
	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

// CapacityCalculator turns aggregated template entries into bookable slots
type CapacityCalculator struct {
	repo   interfaces.SchedulingRepository
	logger *logger.Logger
}

// NewCapacityCalculator creates a calculator
func NewCapacityCalculator(repo interfaces.SchedulingRepository, log *logger.Logger) *CapacityCalculator {
	return &CapacityCalculator{repo: repo, logger: log}
}

// Calculate computes the remaining capacity of every candidate entry on date.
// Slots with nothing left are dropped and so are doctors left without slots.
// Doctors are ordered by name then id, slots by start time. A failed booking
// read yields no slots together with a CAPACITY_QUERY_FAILED error.
func (c *CapacityCalculator) Calculate(ctx context.Context, date time.Time, candidates map[string]*types.DoctorAvailability) ([]*types.DoctorSlots, error) {
	if date.IsZero() {
		return []*types.DoctorSlots{}, types.NewValidationError(types.ErrCodeInvalidDate, "date is required", nil)
	}
	if len(candidates) == 0 {
		return []*types.DoctorSlots{}, nil
	}

	day := date.Format(dateLayout)

	slotIDs := make([]string, 0)
	for _, availability := range candidates {
		for _, entry := range availability.Entries {
			slotIDs = append(slotIDs, entry.ID)
		}
	}
	sort.Strings(slotIDs)

	booked, err := c.repo.CountActiveAppointments(ctx, day, slotIDs)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"date":  day,
			"slots": len(slotIDs),
		}).Error("Failed to count booked appointments")
		return []*types.DoctorSlots{}, types.NewCapacityQueryError(err)
	}

	weekday := WeekdayName(date)
	result := make([]*types.DoctorSlots, 0, len(candidates))
	for _, availability := range candidates {
		slots := make([]*types.Slot, 0, len(availability.Entries))
		for _, entry := range availability.Entries {
			capacity := slotCapacity(entry, availability.Doctor)
			count := booked[entry.ID]
			available := capacity - count
			if available <= 0 {
				continue
			}
			slots = append(slots, &types.Slot{
				ID:          entry.ID,
				DoctorID:    availability.Doctor.ID,
				Date:        day,
				Weekday:     weekday,
				StartTime:   clockHHMM(entry.StartTime),
				EndTime:     clockHHMM(entry.EndTime),
				MaxPatients: capacity,
				Booked:      count,
				Available:   available,
			})
		}
		if len(slots) == 0 {
			continue
		}

		sort.SliceStable(slots, func(i, j int) bool {
			return toMinutes(slots[i].StartTime) < toMinutes(slots[j].StartTime)
		})
		result = append(result, &types.DoctorSlots{Doctor: availability.Doctor, Slots: slots})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Doctor.FullName != result[j].Doctor.FullName {
			return result[i].Doctor.FullName < result[j].Doctor.FullName
		}
		return result[i].Doctor.ID < result[j].Doctor.ID
	})

	return result, nil
}

// slotCapacity resolves entry override, then doctor default, then clinic default.
// The capacity trigger in pkg/database applies the same fallback.
func slotCapacity(entry types.ScheduleTemplateEntry, doctor types.Doctor) int {
	if entry.MaxPatientsPerSlot > 0 {
		return entry.MaxPatientsPerSlot
	}
	if doctor.MaxPatientsPerSlot > 0 {
		return doctor.MaxPatientsPerSlot
	}
	return types.DefaultMaxPatientsPerSlot
}
