package scheduling

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/phuczkz/healthcare-center/pkg/types"
)

// MockSchedulingRepository is a mock implementation of SchedulingRepository
type MockSchedulingRepository struct {
	mock.Mock
}

func (m *MockSchedulingRepository) ListScheduleEntriesByWeekday(ctx context.Context, weekday string) ([]*types.ScheduleEntryRow, error) {
	args := m.Called(ctx, weekday)
	rows, _ := args.Get(0).([]*types.ScheduleEntryRow)
	return rows, args.Error(1)
}

func (m *MockSchedulingRepository) GetDoctorSchedule(ctx context.Context, doctorID string) ([]*types.ScheduleTemplateEntry, error) {
	args := m.Called(ctx, doctorID)
	entries, _ := args.Get(0).([]*types.ScheduleTemplateEntry)
	return entries, args.Error(1)
}

func (m *MockSchedulingRepository) ReplaceDoctorSchedule(ctx context.Context, doctorID string, entries []*types.ScheduleTemplateEntry) error {
	args := m.Called(ctx, doctorID, entries)
	return args.Error(0)
}

func (m *MockSchedulingRepository) CreateDoctor(ctx context.Context, doctor *types.Doctor, entries []*types.ScheduleTemplateEntry) error {
	args := m.Called(ctx, doctor, entries)
	return args.Error(0)
}

func (m *MockSchedulingRepository) GetDoctorByID(ctx context.Context, id string) (*types.Doctor, error) {
	args := m.Called(ctx, id)
	doctor, _ := args.Get(0).(*types.Doctor)
	return doctor, args.Error(1)
}

func (m *MockSchedulingRepository) ListSpecializations(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockSchedulingRepository) CountActiveAppointments(ctx context.Context, date string, slotIDs []string) (map[string]int, error) {
	args := m.Called(ctx, date, slotIDs)
	counts, _ := args.Get(0).(map[string]int)
	return counts, args.Error(1)
}

func (m *MockSchedulingRepository) CreateAppointment(ctx context.Context, apt *types.Appointment) error {
	args := m.Called(ctx, apt)
	return args.Error(0)
}

func (m *MockSchedulingRepository) GetAppointmentByID(ctx context.Context, id string) (*types.Appointment, error) {
	args := m.Called(ctx, id)
	apt, _ := args.Get(0).(*types.Appointment)
	return apt, args.Error(1)
}

func (m *MockSchedulingRepository) GetAppointmentsByUser(ctx context.Context, userID string) ([]*types.Appointment, error) {
	args := m.Called(ctx, userID)
	apts, _ := args.Get(0).([]*types.Appointment)
	return apts, args.Error(1)
}

func (m *MockSchedulingRepository) UpdateAppointmentStatus(ctx context.Context, id string, from, to types.AppointmentStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockSchedulingRepository) AvailableDates(ctx context.Context, fromDate string, daysAhead int) ([]string, error) {
	args := m.Called(ctx, fromDate, daysAhead)
	dates, _ := args.Get(0).([]string)
	return dates, args.Error(1)
}

func (m *MockSchedulingRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Test fixtures shared by the engine tests

const (
	doctorAnID   = "0b7c6a52-8d0e-4a53-9f3f-2f1a4d6c1a01"
	doctorBinhID = "0b7c6a52-8d0e-4a53-9f3f-2f1a4d6c1a02"
	doctorChiID  = "0b7c6a52-8d0e-4a53-9f3f-2f1a4d6c1a03"

	slotMorningID   = "5d1e2f3a-0000-4b1c-8d2e-000000000001"
	slotAfternoonID = "5d1e2f3a-0000-4b1c-8d2e-000000000002"
	slotBinhID      = "5d1e2f3a-0000-4b1c-8d2e-000000000003"
	slotChiID       = "5d1e2f3a-0000-4b1c-8d2e-000000000004"
)

func entryRow(entryID, doctorID, name, weekday, start, end string, entryCap, doctorCap int, specializations ...string) *types.ScheduleEntryRow {
	return &types.ScheduleEntryRow{
		Entry: types.ScheduleTemplateEntry{
			ID:                 entryID,
			DoctorID:           doctorID,
			Weekday:            weekday,
			StartTime:          start,
			EndTime:            end,
			MaxPatientsPerSlot: entryCap,
		},
		Doctor: types.Doctor{
			ID:                 doctorID,
			FullName:           name,
			Specializations:    specializations,
			MaxPatientsPerSlot: doctorCap,
		},
	}
}
