package scheduling

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phuczkz/healthcare-center/pkg/database"
	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

func candidatesFrom(rows ...*types.ScheduleEntryRow) map[string]*types.DoctorAvailability {
	out := make(map[string]*types.DoctorAvailability)
	for _, row := range rows {
		availability, ok := out[row.Doctor.ID]
		if !ok {
			availability = &types.DoctorAvailability{Doctor: row.Doctor}
			out[row.Doctor.ID] = availability
		}
		availability.Entries = append(availability.Entries, row.Entry)
	}
	return out
}

func TestCalculate_CancelledDoNotCount(t *testing.T) {
	// 3 active and 2 cancelled bookings: the store only counts the active ones
	repo := new(MockSchedulingRepository)
	repo.On("CountActiveAppointments", mock.Anything, "2024-06-05", []string{slotMorningID}).
		Return(map[string]int{slotMorningID: 3}, nil)

	calculator := NewCapacityCalculator(repo, logger.Discard())
	result, err := calculator.Calculate(context.Background(), wednesday, candidatesFrom(
		entryRow(slotMorningID, doctorAnID, "An", Wednesday, "08:00:00", "12:00:00", 5, 0, "Nội khoa"),
	))
	require.NoError(t, err)

	require.Len(t, result, 1)
	require.Len(t, result[0].Slots, 1)
	slot := result[0].Slots[0]
	assert.Equal(t, 2, slot.Available)
	assert.Equal(t, 3, slot.Booked)
	assert.Equal(t, 5, slot.MaxPatients)
	assert.Equal(t, "08:00", slot.StartTime)
	assert.Equal(t, "12:00", slot.EndTime)
	assert.Equal(t, "2024-06-05", slot.Date)
	assert.Equal(t, Wednesday, slot.Weekday)
	repo.AssertExpectations(t)
}

func TestCalculate_FullSlotAndDoctorDropped(t *testing.T) {
	repo := new(MockSchedulingRepository)
	repo.On("CountActiveAppointments", mock.Anything, "2024-06-05", mock.Anything).
		Return(map[string]int{slotMorningID: 2, slotBinhID: 1}, nil)

	result, err := NewCapacityCalculator(repo, logger.Discard()).Calculate(context.Background(), wednesday, candidatesFrom(
		entryRow(slotMorningID, doctorAnID, "An", Wednesday, "08:00:00", "12:00:00", 2, 0, "Nội khoa"),
		entryRow(slotBinhID, doctorBinhID, "Bình", Wednesday, "08:00:00", "12:00:00", 0, 4, "Nội khoa"),
	))
	require.NoError(t, err)

	require.Len(t, result, 1, "doctor An has no slot left and must be dropped")
	assert.Equal(t, doctorBinhID, result[0].Doctor.ID)
	assert.Equal(t, 3, result[0].Slots[0].Available, "doctor capacity applies when the entry has none")
}

func TestCalculate_OverbookedSlotDropped(t *testing.T) {
	repo := new(MockSchedulingRepository)
	repo.On("CountActiveAppointments", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]int{slotMorningID: 7}, nil)

	result, err := NewCapacityCalculator(repo, logger.Discard()).Calculate(context.Background(), wednesday, candidatesFrom(
		entryRow(slotMorningID, doctorAnID, "An", Wednesday, "08:00:00", "12:00:00", 0, 0, "Nội khoa"),
	))
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestCalculate_EveryReturnedSlotHasRoom(t *testing.T) {
	rows := []*types.ScheduleEntryRow{
		entryRow(slotMorningID, doctorAnID, "An", Wednesday, "08:00:00", "10:00:00", 1, 0, "Nhi"),
		entryRow(slotAfternoonID, doctorAnID, "An", Wednesday, "13:00:00", "15:00:00", 3, 0, "Nhi"),
		entryRow(slotBinhID, doctorBinhID, "Bình", Wednesday, "08:00:00", "10:00:00", 0, 2, "Nhi"),
		entryRow(slotChiID, doctorChiID, "Chi", Wednesday, "08:00:00", "10:00:00", 0, 0, "Nhi"),
	}

	for _, counts := range []map[string]int{
		{},
		{slotMorningID: 1},
		{slotMorningID: 1, slotAfternoonID: 2, slotBinhID: 2, slotChiID: 4},
		{slotMorningID: 3, slotAfternoonID: 3, slotBinhID: 5, slotChiID: 5},
	} {
		repo := new(MockSchedulingRepository)
		repo.On("CountActiveAppointments", mock.Anything, mock.Anything, mock.Anything).Return(counts, nil)

		result, err := NewCapacityCalculator(repo, logger.Discard()).Calculate(context.Background(), wednesday, candidatesFrom(rows...))
		require.NoError(t, err)

		for _, doctor := range result {
			assert.NotEmpty(t, doctor.Slots)
			for _, slot := range doctor.Slots {
				assert.Greater(t, slot.Available, 0)
				assert.Equal(t, slot.MaxPatients-counts[slot.ID], slot.Available)
			}
		}
	}
}

func TestCalculate_Ordering(t *testing.T) {
	repo := new(MockSchedulingRepository)
	repo.On("CountActiveAppointments", mock.Anything, mock.Anything,
		[]string{slotMorningID, slotAfternoonID, slotBinhID}).Return(map[string]int{}, nil)

	result, err := NewCapacityCalculator(repo, logger.Discard()).Calculate(context.Background(), wednesday, candidatesFrom(
		entryRow(slotBinhID, doctorBinhID, "Bình", Wednesday, "08:00:00", "12:00:00", 0, 0, "Nhi"),
		entryRow(slotAfternoonID, doctorAnID, "An", Wednesday, "13:00:00", "17:00:00", 0, 0, "Nhi"),
		entryRow(slotMorningID, doctorAnID, "An", Wednesday, "08:00:00", "12:00:00", 0, 0, "Nhi"),
	))
	require.NoError(t, err)

	require.Len(t, result, 2)
	assert.Equal(t, "An", result[0].Doctor.FullName)
	assert.Equal(t, "Bình", result[1].Doctor.FullName)
	require.Len(t, result[0].Slots, 2)
	assert.Equal(t, "08:00", result[0].Slots[0].StartTime)
	assert.Equal(t, "13:00", result[0].Slots[1].StartTime)
	assert.Equal(t, 5, result[0].Slots[0].Available, "clinic default capacity")
}

func TestCalculate_QueryFailureIsTagged(t *testing.T) {
	repo := new(MockSchedulingRepository)
	repo.On("CountActiveAppointments", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	result, err := NewCapacityCalculator(repo, logger.Discard()).Calculate(context.Background(), wednesday, candidatesFrom(
		entryRow(slotMorningID, doctorAnID, "An", Wednesday, "08:00:00", "12:00:00", 0, 0, "Nhi"),
	))

	require.Error(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
	assert.Equal(t, types.ErrorTypeCapacityQuery, types.ErrorTypeOf(err))
	assert.Equal(t, types.ErrCodeCapacityQueryFailed, types.ErrorCodeOf(err))
}

func TestCalculate_NoCandidatesSkipsQuery(t *testing.T) {
	repo := new(MockSchedulingRepository)

	result, err := NewCapacityCalculator(repo, logger.Discard()).Calculate(context.Background(), wednesday, nil)
	require.NoError(t, err)
	assert.Empty(t, result)
	repo.AssertNotCalled(t, "CountActiveAppointments", mock.Anything, mock.Anything, mock.Anything)

	_, err = NewCapacityCalculator(repo, logger.Discard()).Calculate(context.Background(), time.Time{}, nil)
	assert.Equal(t, types.ErrCodeInvalidDate, types.ErrorCodeOf(err))
}

func TestSlotCapacity_MatchesCapacityTrigger(t *testing.T) {
	var entry types.ScheduleTemplateEntry
	var doctor types.Doctor

	fallback := slotCapacity(entry, doctor)
	assert.Equal(t, types.DefaultMaxPatientsPerSlot, fallback)
	assert.Contains(t, database.SlotCapacityExpr, fmt.Sprintf(", %d)", fallback),
		"the trigger must fall back to the same capacity the calculator offers")

	doctor.MaxPatientsPerSlot = 8
	assert.Equal(t, 8, slotCapacity(entry, doctor))
	entry.MaxPatientsPerSlot = 2
	assert.Equal(t, 2, slotCapacity(entry, doctor))
}
