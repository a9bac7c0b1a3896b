//go:build integration

package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/phuczkz/healthcare-center/pkg/config"
	"github.com/phuczkz/healthcare-center/pkg/database"
	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

// setupPostgres starts a PostgreSQL container and applies the clinic schema
func setupPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "clinic_test",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { postgres.Terminate(context.Background()) })

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := database.NewConnection(&config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		Name:            "clinic_test",
		User:            "test",
		Password:        "testpass",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 60,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.CreateSchema(ctx))
	// re-running the migration must be harmless
	require.NoError(t, db.CreateSchema(ctx))
	return db
}

func TestIntegration_BookingLifecycle(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	repo := NewRepository(db, logger.Discard())
	svc, err := New(testConfig(), logger.Discard(), Dependencies{Repository: repo})
	require.NoError(t, err)

	req := createDoctorRequest()
	req.Schedule = types.WeeklySchedule{
		Wednesday: {{Start: "08:00", End: "12:00", MaxPatientsPerSlot: 2}},
	}
	doctor, err := svc.CreateDoctor(ctx, req)
	require.NoError(t, err)

	specializations, err := svc.ListSpecializations(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Tim mạch", "Nội khoa"}, specializations)

	dates, err := svc.GetAvailableDates(ctx, time.Date(2024, 6, 3, 0, 0, 0, 0, clinicZone), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-05"}, dates)

	available, err := svc.GetAvailableSlots(ctx, wednesday, "Nội khoa")
	require.NoError(t, err)
	require.Len(t, available, 1)
	require.Len(t, available[0].Slots, 1)
	slot := available[0].Slots[0]
	assert.Equal(t, 2, slot.Available)

	book := func(phone string) (*types.Appointment, error) {
		return svc.BookAppointment(ctx, &types.BookingRequest{
			UserID:       bookingRequest().UserID,
			DoctorID:     doctor.ID,
			Date:         "2024-06-05",
			SlotID:       slot.ID,
			StartTime:    "08:00",
			PatientName:  "Trần Thị Bích",
			PatientPhone: phone,
		})
	}

	first, err := book("0901000001")
	require.NoError(t, err)
	_, err = book("0901000002")
	require.NoError(t, err)

	_, err = book("0901000003")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeSlotFull, types.ErrorCodeOf(err))

	// a full slot is no longer offered
	available, err = svc.GetAvailableSlots(ctx, wednesday, "Nội khoa")
	require.NoError(t, err)
	assert.Empty(t, available)

	// cancelling frees the seat again
	_, err = svc.UpdateAppointmentStatus(ctx, first.ID, types.StatusPatientCancelled)
	require.NoError(t, err)

	available, err = svc.GetAvailableSlots(ctx, wednesday, "Nội khoa")
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, 1, available[0].Slots[0].Available)

	mine, err := svc.GetPatientAppointments(ctx, bookingRequest().UserID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestIntegration_ReplaceSchedule(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	repo := NewRepository(db, logger.Discard())
	svc, err := New(testConfig(), logger.Discard(), Dependencies{Repository: repo})
	require.NoError(t, err)

	doctor, err := svc.CreateDoctor(ctx, createDoctorRequest())
	require.NoError(t, err)

	replacement := types.WeeklySchedule{
		Friday: {{Start: "07:30", End: "11:30", MaxPatientsPerSlot: 6}},
	}
	require.NoError(t, svc.UpdateDoctorSchedule(ctx, doctor.ID, replacement))

	schedule, err := svc.GetDoctorSchedule(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, replacement, schedule)

	err = svc.UpdateDoctorSchedule(ctx, doctorChiID, replacement)
	assert.Equal(t, types.ErrorTypeNotFound, types.ErrorTypeOf(err))

	// the previous template survives a rejected replacement
	err = svc.UpdateDoctorSchedule(ctx, doctor.ID, types.WeeklySchedule{
		Monday: {{Start: "08:00", End: "12:00"}, {Start: "09:00", End: "10:00"}},
	})
	assert.Equal(t, types.ErrCodeOverlappingRanges, types.ErrorCodeOf(err))

	schedule, err = svc.GetDoctorSchedule(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, replacement, schedule)
}
