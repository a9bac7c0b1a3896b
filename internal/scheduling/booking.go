package scheduling

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/phuczkz/healthcare-center/pkg/database"
	"github.com/phuczkz/healthcare-center/pkg/interfaces"
	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

// sqlStateCheckViolation is raised by the slot capacity trigger
const sqlStateCheckViolation = "23514"

// BookingWriter persists new appointments. It does not re-check capacity or
// take any lock: the store's capacity trigger is the final arbiter.
type BookingWriter struct {
	repo     interfaces.SchedulingRepository
	logger   *logger.Logger
	location *time.Location
	baseFee  decimal.Decimal
	now      func() time.Time
}

// NewBookingWriter creates a booking writer for a clinic in location charging baseFee by default
func NewBookingWriter(repo interfaces.SchedulingRepository, log *logger.Logger, location *time.Location, baseFee decimal.Decimal) *BookingWriter {
	return &BookingWriter{
		repo:     repo,
		logger:   log,
		location: location,
		baseFee:  baseFee,
		now:      time.Now,
	}
}

// Write inserts one pending appointment for the requested slot
func (w *BookingWriter) Write(ctx context.Context, req *types.BookingRequest) (*types.Appointment, error) {
	appointmentDate, err := w.appointmentTime(req.Date, req.StartTime)
	if err != nil {
		return nil, err
	}

	price := w.baseFee
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput,
				"price must not be negative", map[string]interface{}{"field": "price"})
		}
		price = *req.Price
	}

	now := w.now()
	apt := &types.Appointment{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		DoctorID:        req.DoctorID,
		SlotID:          req.SlotID,
		Date:            req.Date,
		AppointmentDate: appointmentDate,
		PatientName:     strings.TrimSpace(req.PatientName),
		PatientPhone:    strings.TrimSpace(req.PatientPhone),
		Price:           price,
		Status:          types.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := w.repo.CreateAppointment(ctx, apt); err != nil {
		bookingErr := classifyBookingError(err)
		w.logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"doctor_id": req.DoctorID,
			"slot_id":   req.SlotID,
			"date":      req.Date,
			"code":      bookingErr.Code,
		}).Warn("Appointment insert rejected")
		return nil, bookingErr
	}

	w.logger.WithContext(ctx).WithFields(logrus.Fields{
		"appointment_id": apt.ID,
		"doctor_id":      apt.DoctorID,
		"slot_id":        apt.SlotID,
		"date":           apt.Date,
	}).Info("Appointment booked")

	return apt, nil
}

// slotStartTime accepts the HH:MM form clients send and the HH:MM:SS form the store returns
var slotStartTime = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):[0-5][0-9](:[0-5][0-9])?$`)

// appointmentTime composes the calendar date and the slot start time in the clinic zone
func (w *BookingWriter) appointmentTime(date, startTime string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, w.location)
	if err != nil {
		return time.Time{}, types.NewValidationError(types.ErrCodeInvalidDate,
			fmt.Sprintf("date %q must be YYYY-MM-DD", date), map[string]interface{}{"field": "date"})
	}

	if !slotStartTime.MatchString(startTime) {
		return time.Time{}, types.NewValidationError(types.ErrCodeInvalidTimeFormat,
			fmt.Sprintf("start time %q must be HH:MM", startTime), map[string]interface{}{"field": "start_time"})
	}

	return day.Add(time.Duration(toMinutes(clockHHMM(startTime))) * time.Minute), nil
}

// classifyBookingError maps a store failure to SLOT_FULL when the capacity
// trigger rejected the row and to BOOKING_WRITE_FAILED otherwise, keeping the
// backend message verbatim
func classifyBookingError(err error) *types.SchedulingError {
	var se *types.SchedulingError
	if errors.As(err, &se) {
		return se
	}

	if isSlotFull(err) {
		return types.NewBookingWriteError(types.ErrCodeSlotFull, "the selected slot is fully booked", err)
	}
	return types.NewBookingWriteError(types.ErrCodeBookingWriteFailed, err.Error(), err)
}

func isSlotFull(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == sqlStateCheckViolation && pqErr.Constraint == database.SlotCapacityConstraint
	}

	var restErr *PostgrestError
	if errors.As(err, &restErr) {
		return restErr.Code == sqlStateCheckViolation
	}

	return strings.Contains(err.Error(), database.SlotCapacityConstraint)
}
