package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phuczkz/healthcare-center/pkg/database"
	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

var clinicZone = time.FixedZone("UTC+7", 7*3600)

func bookingRequest() *types.BookingRequest {
	return &types.BookingRequest{
		UserID:       "9a1c4e55-7b0d-4f0e-a0a1-6d8e2b3c4d5e",
		DoctorID:     doctorAnID,
		Date:         "2024-06-05",
		SlotID:       slotMorningID,
		StartTime:    "08:30",
		PatientName:  "  Trần Thị Bích ",
		PatientPhone: "0901234567",
	}
}

func newTestWriter(repo *MockSchedulingRepository) *BookingWriter {
	w := NewBookingWriter(repo, logger.Discard(), clinicZone, decimal.NewFromInt(200000))
	w.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return w
}

func TestBookingWriter_Write(t *testing.T) {
	repo := new(MockSchedulingRepository)
	var inserted *types.Appointment
	repo.On("CreateAppointment", mock.Anything, mock.AnythingOfType("*types.Appointment")).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(*types.Appointment) }).
		Return(nil)

	apt, err := newTestWriter(repo).Write(context.Background(), bookingRequest())
	require.NoError(t, err)
	require.Same(t, inserted, apt)

	assert.NotEmpty(t, apt.ID)
	assert.Equal(t, types.StatusPending, apt.Status)
	assert.Equal(t, "Trần Thị Bích", apt.PatientName)
	assert.Equal(t, "2024-06-05", apt.Date)
	assert.True(t, apt.Price.Equal(decimal.NewFromInt(200000)), "base fee applies when no price is given")

	// 08:30 in UTC+7 is 01:30 UTC
	assert.True(t, apt.AppointmentDate.Equal(time.Date(2024, 6, 5, 1, 30, 0, 0, time.UTC)))
	_, offset := apt.AppointmentDate.Zone()
	assert.Equal(t, 7*3600, offset)
	repo.AssertExpectations(t)
}

func TestBookingWriter_ExplicitPriceAndSeconds(t *testing.T) {
	repo := new(MockSchedulingRepository)
	repo.On("CreateAppointment", mock.Anything, mock.Anything).Return(nil)

	req := bookingRequest()
	price := decimal.RequireFromString("350000.50")
	req.Price = &price
	req.StartTime = "13:00:00"

	apt, err := newTestWriter(repo).Write(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, apt.Price.Equal(price))
	assert.Equal(t, 13, apt.AppointmentDate.Hour())
}

func TestBookingWriter_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*types.BookingRequest)
		wantCode string
	}{
		{"bad date", func(r *types.BookingRequest) { r.Date = "05/06/2024" }, types.ErrCodeInvalidDate},
		{"bad start", func(r *types.BookingRequest) { r.StartTime = "8:30" }, types.ErrCodeInvalidTimeFormat},
		{"out of range start", func(r *types.BookingRequest) { r.StartTime = "24:00" }, types.ErrCodeInvalidTimeFormat},
		{"trailing characters", func(r *types.BookingRequest) { r.StartTime = "08:00abc" }, types.ErrCodeInvalidTimeFormat},
		{"bad seconds", func(r *types.BookingRequest) { r.StartTime = "08:00:61" }, types.ErrCodeInvalidTimeFormat},
		{"negative price", func(r *types.BookingRequest) {
			price := decimal.NewFromInt(-1)
			r.Price = &price
		}, types.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockSchedulingRepository)
			req := bookingRequest()
			tt.mutate(req)

			_, err := newTestWriter(repo).Write(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.ErrorCodeOf(err))
			repo.AssertNotCalled(t, "CreateAppointment", mock.Anything, mock.Anything)
		})
	}
}

func TestBookingWriter_SlotFullFromTrigger(t *testing.T) {
	triggerErrs := map[string]error{
		"postgres": &pq.Error{
			Code:       "23514",
			Message:    "slot is fully booked",
			Constraint: database.SlotCapacityConstraint,
		},
		"postgrest": &PostgrestError{Code: "23514", Message: "slot is fully booked"},
		"wrapped":   errors.New(`insert failed: violates "` + database.SlotCapacityConstraint + `"`),
	}

	for name, triggerErr := range triggerErrs {
		t.Run(name, func(t *testing.T) {
			repo := new(MockSchedulingRepository)
			repo.On("CreateAppointment", mock.Anything, mock.Anything).Return(triggerErr)

			apt, err := newTestWriter(repo).Write(context.Background(), bookingRequest())
			assert.Nil(t, apt)
			require.Error(t, err)
			assert.Equal(t, types.ErrCodeSlotFull, types.ErrorCodeOf(err))
			assert.Equal(t, types.ErrorTypeBookingWrite, types.ErrorTypeOf(err))
		})
	}
}

func TestBookingWriter_OtherFailuresKeepMessage(t *testing.T) {
	repo := new(MockSchedulingRepository)
	backendErr := &pq.Error{Code: "23503", Message: `insert or update on table "appointments" violates foreign key constraint`}
	repo.On("CreateAppointment", mock.Anything, mock.Anything).Return(backendErr)

	_, err := newTestWriter(repo).Write(context.Background(), bookingRequest())
	require.Error(t, err)

	var se *types.SchedulingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, types.ErrCodeBookingWriteFailed, se.Code)
	assert.Equal(t, backendErr.Error(), se.Message)
	assert.ErrorIs(t, err, backendErr)
}
