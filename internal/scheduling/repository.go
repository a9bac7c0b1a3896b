package scheduling

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/phuczkz/healthcare-center/pkg/database"
	"github.com/phuczkz/healthcare-center/pkg/interfaces"
	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

// QueryObserver wraps a store call, e.g. with a span and a duration metric
type QueryObserver func(ctx context.Context, operation, table string, fn func(ctx context.Context) error) error

func passthroughObserver(ctx context.Context, _, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// RepositoryOption configures a repository
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	observe QueryObserver
}

// WithQueryObserver instruments every store call with observe
func WithQueryObserver(observe QueryObserver) RepositoryOption {
	return func(o *repositoryOptions) {
		if observe != nil {
			o.observe = observe
		}
	}
}

func applyOptions(opts []RepositoryOption) repositoryOptions {
	o := repositoryOptions{observe: passthroughObserver}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Repository implements the SchedulingRepository interface on PostgreSQL
type Repository struct {
	db      *database.DB
	logger  *logger.Logger
	observe QueryObserver
}

// NewRepository creates a new scheduling repository
func NewRepository(db *database.DB, log *logger.Logger, opts ...RepositoryOption) interfaces.SchedulingRepository {
	o := applyOptions(opts)
	return &Repository{
		db:      db,
		logger:  log,
		observe: o.observe,
	}
}

// ListScheduleEntriesByWeekday returns every template entry of weekday joined with its doctor
func (r *Repository) ListScheduleEntriesByWeekday(ctx context.Context, weekday string) ([]*types.ScheduleEntryRow, error) {
	query := `
		SELECT entry_id, doctor_id, weekday, start_time, end_time, max_patients_per_slot,
			   full_name, room_number, experience_years, doctor_max_patients, department_id, specializations
		FROM schedule_entry_rows
		WHERE weekday = $1
		ORDER BY full_name, doctor_id, start_time`

	var rows []*types.ScheduleEntryRow
	err := r.observe(ctx, "select", "doctor_schedules", func(ctx context.Context) error {
		result, err := r.db.QueryContext(ctx, query, weekday)
		if err != nil {
			return err
		}
		defer result.Close()

		for result.Next() {
			row := &types.ScheduleEntryRow{}
			if err := result.Scan(
				&row.Entry.ID,
				&row.Entry.DoctorID,
				&row.Entry.Weekday,
				&row.Entry.StartTime,
				&row.Entry.EndTime,
				&row.Entry.MaxPatientsPerSlot,
				&row.Doctor.FullName,
				&row.Doctor.RoomNumber,
				&row.Doctor.ExperienceYears,
				&row.Doctor.MaxPatientsPerSlot,
				&row.Doctor.DepartmentID,
				pq.Array(&row.Doctor.Specializations),
			); err != nil {
				return err
			}
			row.Doctor.ID = row.Entry.DoctorID
			rows = append(rows, row)
		}
		return result.Err()
	})
	if err != nil {
		r.logger.WithError(err).WithField("weekday", weekday).Error("Failed to list schedule entries")
		return nil, fmt.Errorf("failed to list schedule entries: %w", err)
	}

	return rows, nil
}

// GetDoctorSchedule returns a doctor's template ordered by weekday then start time
func (r *Repository) GetDoctorSchedule(ctx context.Context, doctorID string) ([]*types.ScheduleTemplateEntry, error) {
	query := `
		SELECT id, doctor_id, weekday, to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS'), max_patients_per_slot
		FROM doctor_schedules
		WHERE doctor_id = $1
		ORDER BY start_time`

	var entries []*types.ScheduleTemplateEntry
	err := r.observe(ctx, "select", "doctor_schedules", func(ctx context.Context) error {
		result, err := r.db.QueryContext(ctx, query, doctorID)
		if err != nil {
			return err
		}
		defer result.Close()

		for result.Next() {
			entry := &types.ScheduleTemplateEntry{}
			if err := result.Scan(
				&entry.ID,
				&entry.DoctorID,
				&entry.Weekday,
				&entry.StartTime,
				&entry.EndTime,
				&entry.MaxPatientsPerSlot,
			); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return result.Err()
	})
	if err != nil {
		r.logger.WithError(err).WithField("doctor_id", doctorID).Error("Failed to get doctor schedule")
		return nil, fmt.Errorf("failed to get doctor schedule: %w", err)
	}

	sortTemplateEntries(entries)
	return entries, nil
}

// ReplaceDoctorSchedule deletes and re-inserts a doctor's template in one transaction
func (r *Repository) ReplaceDoctorSchedule(ctx context.Context, doctorID string, entries []*types.ScheduleTemplateEntry) error {
	err := r.observe(ctx, "replace", "doctor_schedules", func(ctx context.Context) error {
		return r.db.WithTx(ctx, func(tx *sql.Tx) error {
			var locked string
			err := tx.QueryRowContext(ctx, `SELECT id FROM doctors WHERE id = $1 FOR UPDATE`, doctorID).Scan(&locked)
			if errors.Is(err, sql.ErrNoRows) {
				return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("doctor not found: %s", doctorID))
			}
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM doctor_schedules WHERE doctor_id = $1`, doctorID); err != nil {
				return err
			}

			if err := insertTemplateEntries(ctx, tx, doctorID, entries); err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, `UPDATE doctors SET updated_at = NOW() WHERE id = $1`, doctorID)
			return err
		})
	})
	if err != nil {
		r.logger.WithError(err).WithField("doctor_id", doctorID).Error("Failed to replace doctor schedule")
		return fmt.Errorf("failed to replace doctor schedule: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"doctor_id": doctorID,
		"entries":   len(entries),
	}).Info("Replaced doctor schedule")
	return nil
}

// CreateDoctor inserts a doctor, its specializations and its template in one transaction
func (r *Repository) CreateDoctor(ctx context.Context, doctor *types.Doctor, entries []*types.ScheduleTemplateEntry) error {
	err := r.observe(ctx, "insert", "doctors", func(ctx context.Context) error {
		return r.db.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO doctors (id, full_name, room_number, experience_years, max_patients_per_slot, department_id, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::UUID, $7, $8)`,
				doctor.ID,
				doctor.FullName,
				doctor.RoomNumber,
				doctor.ExperienceYears,
				doctor.MaxPatientsPerSlot,
				doctor.DepartmentID,
				doctor.CreatedAt,
				doctor.UpdatedAt,
			)
			if err != nil {
				return err
			}

			for _, name := range doctor.Specializations {
				var specializationID int
				err := tx.QueryRowContext(ctx, `
					INSERT INTO specializations (name) VALUES ($1)
					ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
					RETURNING id`, name).Scan(&specializationID)
				if err != nil {
					return err
				}

				if _, err := tx.ExecContext(ctx,
					`INSERT INTO doctor_specializations (doctor_id, specialization_id) VALUES ($1, $2)`,
					doctor.ID, specializationID,
				); err != nil {
					return err
				}
			}

			return insertTemplateEntries(ctx, tx, doctor.ID, entries)
		})
	})
	if err != nil {
		r.logger.WithError(err).WithField("doctor_id", doctor.ID).Error("Failed to create doctor")
		return fmt.Errorf("failed to create doctor: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"doctor_id":       doctor.ID,
		"specializations": len(doctor.Specializations),
		"entries":         len(entries),
	}).Info("Created doctor")
	return nil
}

func insertTemplateEntries(ctx context.Context, tx *sql.Tx, doctorID string, entries []*types.ScheduleTemplateEntry) error {
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO doctor_schedules (id, doctor_id, weekday, start_time, end_time, max_patients_per_slot)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			entry.ID,
			doctorID,
			entry.Weekday,
			entry.StartTime,
			entry.EndTime,
			entry.MaxPatientsPerSlot,
		); err != nil {
			return err
		}
	}
	return nil
}

// GetDoctorByID retrieves a doctor with its specializations
func (r *Repository) GetDoctorByID(ctx context.Context, id string) (*types.Doctor, error) {
	query := `
		SELECT id, full_name, room_number, experience_years, max_patients_per_slot, department_id,
			   specializations, created_at, updated_at
		FROM doctor_profiles
		WHERE id = $1`

	doctor := &types.Doctor{}
	err := r.observe(ctx, "select", "doctors", func(ctx context.Context) error {
		return r.db.QueryRowContext(ctx, query, id).Scan(
			&doctor.ID,
			&doctor.FullName,
			&doctor.RoomNumber,
			&doctor.ExperienceYears,
			&doctor.MaxPatientsPerSlot,
			&doctor.DepartmentID,
			pq.Array(&doctor.Specializations),
			&doctor.CreatedAt,
			&doctor.UpdatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("doctor not found: %s", id))
		}
		r.logger.WithError(err).WithField("doctor_id", id).Error("Failed to get doctor")
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}

	return doctor, nil
}

// ListSpecializations returns the specializations offered by at least one doctor
func (r *Repository) ListSpecializations(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT sp.name
		FROM specializations sp
		JOIN doctor_specializations ds ON ds.specialization_id = sp.id
		ORDER BY sp.name`

	names := make([]string, 0)
	err := r.observe(ctx, "select", "specializations", func(ctx context.Context) error {
		result, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer result.Close()

		for result.Next() {
			var name string
			if err := result.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return result.Err()
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to list specializations")
		return nil, fmt.Errorf("failed to list specializations: %w", err)
	}

	return names, nil
}

// CountActiveAppointments counts non-cancelled appointments per slot on date
func (r *Repository) CountActiveAppointments(ctx context.Context, date string, slotIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(slotIDs))
	if len(slotIDs) == 0 {
		return counts, nil
	}

	query := `
		SELECT slot_id, COUNT(*)
		FROM appointments
		WHERE date = $1::DATE
		  AND slot_id = ANY($2::UUID[])
		  AND NOT (status = ANY($3))
		GROUP BY slot_id`

	cancelled := make([]string, 0, len(types.CancelledStatuses))
	for _, s := range types.CancelledStatuses {
		cancelled = append(cancelled, string(s))
	}

	err := r.observe(ctx, "select", "appointments", func(ctx context.Context) error {
		result, err := r.db.QueryContext(ctx, query, date, pq.Array(slotIDs), pq.Array(cancelled))
		if err != nil {
			return err
		}
		defer result.Close()

		for result.Next() {
			var slotID string
			var count int
			if err := result.Scan(&slotID, &count); err != nil {
				return err
			}
			counts[slotID] = count
		}
		return result.Err()
	})
	if err != nil {
		r.logger.WithError(err).WithField("date", date).Error("Failed to count appointments")
		return nil, fmt.Errorf("failed to count appointments: %w", err)
	}

	return counts, nil
}

// CreateAppointment inserts an appointment row. The capacity trigger may reject it.
func (r *Repository) CreateAppointment(ctx context.Context, apt *types.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, user_id, doctor_id, slot_id, date, appointment_date,
			patient_name, patient_phone, price, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::DATE, $6, $7, $8, $9, $10, $11, $12)`

	err := r.observe(ctx, "insert", "appointments", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			apt.ID,
			apt.UserID,
			apt.DoctorID,
			apt.SlotID,
			apt.Date,
			apt.AppointmentDate,
			apt.PatientName,
			apt.PatientPhone,
			apt.Price,
			string(apt.Status),
			apt.CreatedAt,
			apt.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	return nil
}

const appointmentColumns = `
	id, user_id, doctor_id, slot_id, to_char(date, 'YYYY-MM-DD'), appointment_date,
	patient_name, patient_phone, price, status, created_at, updated_at`

func scanAppointment(scanner interface{ Scan(dest ...interface{}) error }) (*types.Appointment, error) {
	apt := &types.Appointment{}
	var status string
	err := scanner.Scan(
		&apt.ID,
		&apt.UserID,
		&apt.DoctorID,
		&apt.SlotID,
		&apt.Date,
		&apt.AppointmentDate,
		&apt.PatientName,
		&apt.PatientPhone,
		&apt.Price,
		&status,
		&apt.CreatedAt,
		&apt.UpdatedAt,
	)
	apt.Status = types.AppointmentStatus(status)
	return apt, err
}

// GetAppointmentByID retrieves an appointment by ID
func (r *Repository) GetAppointmentByID(ctx context.Context, id string) (*types.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var apt *types.Appointment
	err := r.observe(ctx, "select", "appointments", func(ctx context.Context) error {
		var err error
		apt, err = scanAppointment(r.db.QueryRowContext(ctx, query, id))
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
		}
		r.logger.WithError(err).WithField("appointment_id", id).Error("Failed to get appointment")
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	return apt, nil
}

// GetAppointmentsByUser returns a patient's appointments, newest first
func (r *Repository) GetAppointmentsByUser(ctx context.Context, userID string) ([]*types.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE user_id = $1 ORDER BY appointment_date DESC`

	appointments := make([]*types.Appointment, 0)
	err := r.observe(ctx, "select", "appointments", func(ctx context.Context) error {
		result, err := r.db.QueryContext(ctx, query, userID)
		if err != nil {
			return err
		}
		defer result.Close()

		for result.Next() {
			apt, err := scanAppointment(result)
			if err != nil {
				return err
			}
			appointments = append(appointments, apt)
		}
		return result.Err()
	})
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to list appointments")
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	return appointments, nil
}

// UpdateAppointmentStatus moves an appointment from one status to another.
// The row is only written while it still holds from.
func (r *Repository) UpdateAppointmentStatus(ctx context.Context, id string, from, to types.AppointmentStatus) error {
	query := `UPDATE appointments SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`

	var affected int64
	err := r.observe(ctx, "update", "appointments", func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, query, id, string(from), string(to))
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		r.logger.WithError(err).WithField("appointment_id", id).Error("Failed to update appointment status")
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	if affected == 0 {
		return statusChangedError(id, from, to)
	}

	return nil
}

// statusChangedError reports an update that lost a race with another status change
func statusChangedError(id string, from, to types.AppointmentStatus) error {
	return types.NewConflictError(types.ErrCodeInvalidStatusTransition,
		fmt.Sprintf("appointment %s is no longer %s", id, from),
		map[string]interface{}{"from": string(from), "to": string(to)})
}

// AvailableDates delegates date generation to the available_dates SQL function
func (r *Repository) AvailableDates(ctx context.Context, fromDate string, daysAhead int) ([]string, error) {
	query := `SELECT to_char(available_date, 'YYYY-MM-DD') FROM available_dates($1::DATE, $2)`

	dates := make([]string, 0)
	err := r.observe(ctx, "select", "available_dates", func(ctx context.Context) error {
		result, err := r.db.QueryContext(ctx, query, fromDate, daysAhead)
		if err != nil {
			return err
		}
		defer result.Close()

		for result.Next() {
			var date string
			if err := result.Scan(&date); err != nil {
				return err
			}
			dates = append(dates, date)
		}
		return result.Err()
	})
	if err != nil {
		r.logger.WithError(err).WithField("from", fromDate).Error("Failed to load available dates")
		return nil, fmt.Errorf("failed to load available dates: %w", err)
	}

	return dates, nil
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Health(ctx)
}

// sortTemplateEntries orders entries by weekday order then start time
func sortTemplateEntries(entries []*types.ScheduleTemplateEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		wi, wj := weekdayIndex(entries[i].Weekday), weekdayIndex(entries[j].Weekday)
		if wi != wj {
			return wi < wj
		}
		return toMinutes(entries[i].StartTime) < toMinutes(entries[j].StartTime)
	})
}
