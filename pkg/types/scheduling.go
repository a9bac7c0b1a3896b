package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMaxPatientsPerSlot applies when neither the template entry nor the doctor sets a capacity.
const DefaultMaxPatientsPerSlot = 5

// Doctor represents a clinic doctor
type Doctor struct {
	ID                 string    `json:"id" db:"id"`
	FullName           string    `json:"full_name" db:"full_name"`
	Specializations    []string  `json:"specializations"`
	RoomNumber         string    `json:"room_number" db:"room_number"`
	ExperienceYears    int       `json:"experience_years" db:"experience_years"`
	MaxPatientsPerSlot int       `json:"max_patients_per_slot" db:"max_patients_per_slot"`
	DepartmentID       string    `json:"department_id,omitempty" db:"department_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// ScheduleTemplateEntry is one recurring weekly working-hour block of a doctor.
// StartTime and EndTime are wall-clock HH:MM:SS strings.
type ScheduleTemplateEntry struct {
	ID                 string `json:"id" db:"id"`
	DoctorID           string `json:"doctor_id" db:"doctor_id"`
	Weekday            string `json:"weekday" db:"weekday"`
	StartTime          string `json:"start_time" db:"start_time"`
	EndTime            string `json:"end_time" db:"end_time"`
	MaxPatientsPerSlot int    `json:"max_patients_per_slot" db:"max_patients_per_slot"`
}

// ScheduleEntryRow is a template entry joined with its doctor
type ScheduleEntryRow struct {
	Entry  ScheduleTemplateEntry
	Doctor Doctor
}

// TimeRange is a proposed working-hour range in HH:MM
type TimeRange struct {
	Start              string `json:"start"`
	End                string `json:"end"`
	MaxPatientsPerSlot int    `json:"max_patients_per_slot,omitempty"`
}

// WeeklySchedule maps a weekday label to its proposed ranges
type WeeklySchedule map[string][]TimeRange

// DoctorAvailability is the aggregator output for one doctor
type DoctorAvailability struct {
	Doctor  Doctor                  `json:"doctor"`
	Entries []ScheduleTemplateEntry `json:"entries"`
}

// Slot is a template entry instantiated on a calendar date
type Slot struct {
	ID          string `json:"id"`
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`
	Weekday     string `json:"weekday"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	MaxPatients int    `json:"max_patients"`
	Booked      int    `json:"booked"`
	Available   int    `json:"available"`
}

// DoctorSlots groups the bookable slots of a doctor on a date
type DoctorSlots struct {
	Doctor Doctor  `json:"doctor"`
	Slots  []*Slot `json:"slots"`
}

// Appointment represents a booked appointment
type Appointment struct {
	ID              string            `json:"id" db:"id"`
	UserID          string            `json:"user_id" db:"user_id"`
	DoctorID        string            `json:"doctor_id" db:"doctor_id"`
	SlotID          string            `json:"slot_id" db:"slot_id"`
	Date            string            `json:"date" db:"date"`
	AppointmentDate time.Time         `json:"appointment_date" db:"appointment_date"`
	PatientName     string            `json:"patient_name" db:"patient_name"`
	PatientPhone    string            `json:"patient_phone" db:"patient_phone"`
	Price           decimal.Decimal   `json:"price" db:"price"`
	Status          AppointmentStatus `json:"status" db:"status"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// AppointmentStatus represents appointment status values
type AppointmentStatus string

const (
	StatusPending          AppointmentStatus = "pending"
	StatusConfirmed        AppointmentStatus = "confirmed"
	StatusWaitingResults   AppointmentStatus = "waiting_results"
	StatusCompleted        AppointmentStatus = "completed"
	StatusCancelled        AppointmentStatus = "cancelled"
	StatusPatientCancelled AppointmentStatus = "patient_cancelled"
	StatusDoctorCancelled  AppointmentStatus = "doctor_cancelled"
)

// CancelledStatuses do not count towards slot occupancy
var CancelledStatuses = []AppointmentStatus{
	StatusCancelled,
	StatusPatientCancelled,
	StatusDoctorCancelled,
}

// IsCancelled reports whether the status belongs to the cancelled family
func (s AppointmentStatus) IsCancelled() bool {
	for _, c := range CancelledStatuses {
		if s == c {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known status
func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusWaitingResults, StatusCompleted,
		StatusCancelled, StatusPatientCancelled, StatusDoctorCancelled:
		return true
	}
	return false
}

// BookingRequest carries everything the booking writer needs
type BookingRequest struct {
	UserID       string           `json:"-" validate:"required"`
	DoctorID     string           `json:"doctor_id" validate:"required,uuid"`
	Date         string           `json:"date" validate:"required,datetime=2006-01-02"`
	SlotID       string           `json:"slot_id" validate:"required,uuid"`
	StartTime    string           `json:"start_time" validate:"required"`
	PatientName  string           `json:"patient_name" validate:"required,max=200"`
	PatientPhone string           `json:"patient_phone" validate:"required,min=8,max=15,numeric"`
	Price        *decimal.Decimal `json:"price,omitempty"`
}

// CreateDoctorRequest provisions a doctor together with its weekly template.
// Specialization is the comma-separated text entered on the admin screen.
type CreateDoctorRequest struct {
	FullName           string         `json:"full_name" validate:"required,max=200"`
	Specialization     string         `json:"specialization"`
	RoomNumber         string         `json:"room_number" validate:"max=20"`
	ExperienceYears    int            `json:"experience_years" validate:"gte=0,lte=80"`
	MaxPatientsPerSlot int            `json:"max_patients_per_slot" validate:"gte=0"`
	DepartmentID       string         `json:"department_id,omitempty" validate:"omitempty,uuid"`
	Schedule           WeeklySchedule `json:"schedule" validate:"required"`
}
