package interfaces

import (
	"context"
	"time"

	"github.com/phuczkz/healthcare-center/pkg/types"
)

// SchedulingService defines the interface for availability, booking and schedule management
type SchedulingService interface {
	// Availability
	ListSpecializations(ctx context.Context) ([]string, error)
	GetAvailableDates(ctx context.Context, from time.Time, daysAhead int) ([]string, error)
	GetAvailableSlots(ctx context.Context, date time.Time, specialization string) ([]*types.DoctorSlots, error)

	// Booking
	BookAppointment(ctx context.Context, req *types.BookingRequest) (*types.Appointment, error)
	GetPatientAppointments(ctx context.Context, userID string) ([]*types.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, aptID string, status types.AppointmentStatus) (*types.Appointment, error)

	// Doctor schedules
	CreateDoctor(ctx context.Context, req *types.CreateDoctorRequest) (*types.Doctor, error)
	GetDoctorSchedule(ctx context.Context, doctorID string) (types.WeeklySchedule, error)
	UpdateDoctorSchedule(ctx context.Context, doctorID string, schedule types.WeeklySchedule) error
	ValidateSchedule(schedule types.WeeklySchedule) error

	// Service management
	Start(addr string) error
	Stop(ctx context.Context) error
}

// SchedulingRepository defines the query contracts the scheduling core needs from the backend
type SchedulingRepository interface {
	// Schedule templates
	ListScheduleEntriesByWeekday(ctx context.Context, weekday string) ([]*types.ScheduleEntryRow, error)
	GetDoctorSchedule(ctx context.Context, doctorID string) ([]*types.ScheduleTemplateEntry, error)
	ReplaceDoctorSchedule(ctx context.Context, doctorID string, entries []*types.ScheduleTemplateEntry) error

	// Doctors
	CreateDoctor(ctx context.Context, doctor *types.Doctor, entries []*types.ScheduleTemplateEntry) error
	GetDoctorByID(ctx context.Context, id string) (*types.Doctor, error)
	ListSpecializations(ctx context.Context) ([]string, error)

	// Appointments
	CountActiveAppointments(ctx context.Context, date string, slotIDs []string) (map[string]int, error)
	CreateAppointment(ctx context.Context, apt *types.Appointment) error
	GetAppointmentByID(ctx context.Context, id string) (*types.Appointment, error)
	GetAppointmentsByUser(ctx context.Context, userID string) ([]*types.Appointment, error)
	// UpdateAppointmentStatus applies the change only while the row still holds from
	UpdateAppointmentStatus(ctx context.Context, id string, from, to types.AppointmentStatus) error

	// Calendar
	AvailableDates(ctx context.Context, fromDate string, daysAhead int) ([]string, error)

	Ping(ctx context.Context) error
}
