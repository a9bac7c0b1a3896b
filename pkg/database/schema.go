package database

import (
	"context"
	"fmt"

	"github.com/phuczkz/healthcare-center/pkg/types"
)

// CreateSchema creates the clinic scheduling schema. Every statement is idempotent
// so the migrate command can be re-run against an existing database.
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	// Create extension for UUID generation
	if err := db.createExtensions(ctx); err != nil {
		return fmt.Errorf("failed to create extensions: %w", err)
	}

	// Create tables
	tables := []string{
		createDoctorsTable,
		createSpecializationsTable,
		createDoctorSpecializationsTable,
		createDoctorSchedulesTable,
		createAppointmentsTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// Create indexes
	indexes := []string{
		createDoctorSchedulesIndexes,
		createAppointmentsIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	// Views and server-side procedures
	routines := []string{
		createWeekdayLabelFunction,
		createScheduleEntryRowsView,
		createDoctorProfilesView,
		createSlotCapacityTrigger,
		createAvailableDatesFunction,
		createReplaceDoctorScheduleFunction,
		createProvisionDoctorFunction,
	}

	for _, routine := range routines {
		if _, err := db.ExecContext(ctx, routine); err != nil {
			return fmt.Errorf("failed to create routine: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// createExtensions creates required PostgreSQL extensions
func (db *DB) createExtensions(ctx context.Context) error {
	extensions := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	}

	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, ext); err != nil {
			return fmt.Errorf("failed to create extension: %w", err)
		}
	}

	return nil
}

// SlotCapacityConstraint is the constraint name raised by the capacity trigger
const SlotCapacityConstraint = "appointments_slot_capacity"

// SlotCapacityExpr resolves a template row's capacity inside SQL. It mirrors the
// calculator's fallback: entry, then doctor, then types.DefaultMaxPatientsPerSlot.
var SlotCapacityExpr = fmt.Sprintf(
	"COALESCE(NULLIF(s.max_patients_per_slot, 0), NULLIF(d.max_patients_per_slot, 0), %d)",
	types.DefaultMaxPatientsPerSlot,
)

// SQL DDL statements for table creation
const (
	createDoctorsTable = `
		CREATE TABLE IF NOT EXISTS doctors (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			full_name VARCHAR(200) NOT NULL,
			room_number VARCHAR(20) NOT NULL DEFAULT '',
			experience_years INTEGER NOT NULL DEFAULT 0 CHECK (experience_years >= 0),
			max_patients_per_slot INTEGER NOT NULL DEFAULT 0 CHECK (max_patients_per_slot >= 0),
			department_id UUID,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createSpecializationsTable = `
		CREATE TABLE IF NOT EXISTS specializations (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) UNIQUE NOT NULL CHECK (name = btrim(name) AND name <> '')
		);`

	createDoctorSpecializationsTable = `
		CREATE TABLE IF NOT EXISTS doctor_specializations (
			doctor_id UUID NOT NULL REFERENCES doctors(id) ON DELETE CASCADE,
			specialization_id INTEGER NOT NULL REFERENCES specializations(id) ON DELETE CASCADE,
			PRIMARY KEY (doctor_id, specialization_id)
		);`

	createDoctorSchedulesTable = `
		CREATE TABLE IF NOT EXISTS doctor_schedules (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			doctor_id UUID NOT NULL REFERENCES doctors(id) ON DELETE CASCADE,
			weekday VARCHAR(16) NOT NULL CHECK (weekday IN ('Thứ 2', 'Thứ 3', 'Thứ 4', 'Thứ 5', 'Thứ 6', 'Thứ 7', 'Chủ nhật')),
			start_time TIME NOT NULL,
			end_time TIME NOT NULL,
			max_patients_per_slot INTEGER NOT NULL DEFAULT 0 CHECK (max_patients_per_slot >= 0),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			CHECK (start_time < end_time)
		);`

	// slot_id intentionally carries no foreign key: a full schedule replace
	// issues new template ids while past appointments keep their history.
	createAppointmentsTable = `
		CREATE TABLE IF NOT EXISTS appointments (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL,
			doctor_id UUID NOT NULL REFERENCES doctors(id),
			slot_id UUID NOT NULL,
			date DATE NOT NULL,
			appointment_date TIMESTAMP WITH TIME ZONE NOT NULL,
			patient_name VARCHAR(200) NOT NULL,
			patient_phone VARCHAR(20) NOT NULL,
			price NUMERIC(12, 2) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'confirmed', 'waiting_results', 'completed', 'cancelled', 'patient_cancelled', 'doctor_cancelled')),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`
)

// SQL statements for index creation
const (
	createDoctorSchedulesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_doctor_schedules_weekday ON doctor_schedules(weekday);
		CREATE INDEX IF NOT EXISTS idx_doctor_schedules_doctor ON doctor_schedules(doctor_id, weekday, start_time);`

	createAppointmentsIndexes = `
		CREATE INDEX IF NOT EXISTS idx_appointments_slot_date ON appointments(slot_id, date);
		CREATE INDEX IF NOT EXISTS idx_appointments_user ON appointments(user_id, appointment_date DESC);
		CREATE INDEX IF NOT EXISTS idx_appointments_doctor_date ON appointments(doctor_id, date);`
)

// SQL statements for views and functions
const (
	createWeekdayLabelFunction = `
		CREATE OR REPLACE FUNCTION weekday_label(d DATE) RETURNS TEXT AS $$
			SELECT CASE EXTRACT(DOW FROM d)::INTEGER
				WHEN 0 THEN 'Chủ nhật'
				ELSE 'Thứ ' || (EXTRACT(DOW FROM d)::INTEGER + 1)
			END
		$$ LANGUAGE sql IMMUTABLE;`

	createScheduleEntryRowsView = `
		CREATE OR REPLACE VIEW schedule_entry_rows AS
		SELECT
			s.id AS entry_id,
			s.doctor_id,
			s.weekday,
			to_char(s.start_time, 'HH24:MI:SS') AS start_time,
			to_char(s.end_time, 'HH24:MI:SS') AS end_time,
			s.max_patients_per_slot,
			d.full_name,
			d.room_number,
			d.experience_years,
			d.max_patients_per_slot AS doctor_max_patients,
			COALESCE(d.department_id::TEXT, '') AS department_id,
			ARRAY(
				SELECT sp.name FROM doctor_specializations ds
				JOIN specializations sp ON sp.id = ds.specialization_id
				WHERE ds.doctor_id = d.id
				ORDER BY sp.name
			) AS specializations
		FROM doctor_schedules s
		JOIN doctors d ON d.id = s.doctor_id;`

	createDoctorProfilesView = `
		CREATE OR REPLACE VIEW doctor_profiles AS
		SELECT
			d.id,
			d.full_name,
			d.room_number,
			d.experience_years,
			d.max_patients_per_slot,
			COALESCE(d.department_id::TEXT, '') AS department_id,
			ARRAY(
				SELECT sp.name FROM doctor_specializations ds
				JOIN specializations sp ON sp.id = ds.specialization_id
				WHERE ds.doctor_id = d.id
				ORDER BY sp.name
			) AS specializations,
			d.created_at,
			d.updated_at
		FROM doctors d;`

	createReplaceDoctorScheduleFunction = `
		CREATE OR REPLACE FUNCTION replace_doctor_schedule(p_doctor_id UUID, p_entries JSONB)
		RETURNS VOID AS $$
		BEGIN
			PERFORM 1 FROM doctors WHERE id = p_doctor_id FOR UPDATE;
			IF NOT FOUND THEN
				RAISE EXCEPTION 'doctor % not found', p_doctor_id USING ERRCODE = 'no_data_found';
			END IF;

			DELETE FROM doctor_schedules WHERE doctor_id = p_doctor_id;

			INSERT INTO doctor_schedules (id, doctor_id, weekday, start_time, end_time, max_patients_per_slot)
			SELECT COALESCE(NULLIF(e->>'id', '')::UUID, uuid_generate_v4()),
			       p_doctor_id,
			       e->>'weekday',
			       (e->>'start_time')::TIME,
			       (e->>'end_time')::TIME,
			       COALESCE((e->>'max_patients_per_slot')::INTEGER, 0)
			  FROM jsonb_array_elements(p_entries) AS e;

			UPDATE doctors SET updated_at = NOW() WHERE id = p_doctor_id;
		END;
		$$ LANGUAGE plpgsql;`

	createProvisionDoctorFunction = `
		CREATE OR REPLACE FUNCTION provision_doctor(p_doctor JSONB, p_specializations TEXT[], p_entries JSONB)
		RETURNS VOID AS $$
		DECLARE
			v_doctor_id UUID := (p_doctor->>'id')::UUID;
		BEGIN
			INSERT INTO doctors (id, full_name, room_number, experience_years, max_patients_per_slot, department_id)
			VALUES (
				v_doctor_id,
				p_doctor->>'full_name',
				COALESCE(p_doctor->>'room_number', ''),
				COALESCE((p_doctor->>'experience_years')::INTEGER, 0),
				COALESCE((p_doctor->>'max_patients_per_slot')::INTEGER, 0),
				NULLIF(p_doctor->>'department_id', '')::UUID
			);

			INSERT INTO specializations (name)
			SELECT unnest(p_specializations)
			ON CONFLICT (name) DO NOTHING;

			INSERT INTO doctor_specializations (doctor_id, specialization_id)
			SELECT v_doctor_id, sp.id FROM specializations sp WHERE sp.name = ANY(p_specializations);

			PERFORM replace_doctor_schedule(v_doctor_id, p_entries);
		END;
		$$ LANGUAGE plpgsql;`
)

// Routines that share the capacity fallback
var (
	// The template row is locked so concurrent inserts for the same slot serialize
	// on it; the count is therefore exact when the new row is admitted. A status
	// update that would revive a cancelled row takes a seat and is checked too.
	createSlotCapacityTrigger = fmt.Sprintf(`
		CREATE OR REPLACE FUNCTION enforce_slot_capacity() RETURNS TRIGGER AS $$
		DECLARE
			v_capacity INTEGER;
			v_booked INTEGER;
		BEGIN
			IF NEW.status IN ('cancelled', 'patient_cancelled', 'doctor_cancelled') THEN
				RETURN NEW;
			END IF;
			IF TG_OP = 'UPDATE' AND OLD.status NOT IN ('cancelled', 'patient_cancelled', 'doctor_cancelled') THEN
				RETURN NEW;
			END IF;

			SELECT %[1]s
			  INTO v_capacity
			  FROM doctor_schedules s
			  JOIN doctors d ON d.id = s.doctor_id
			 WHERE s.id = NEW.slot_id AND s.doctor_id = NEW.doctor_id
			   FOR UPDATE OF s;

			IF NOT FOUND THEN
				RAISE EXCEPTION 'slot %% does not belong to doctor %%', NEW.slot_id, NEW.doctor_id
					USING ERRCODE = 'foreign_key_violation';
			END IF;

			SELECT count(*) INTO v_booked
			  FROM appointments a
			 WHERE a.slot_id = NEW.slot_id
			   AND a.date = NEW.date
			   AND a.status NOT IN ('cancelled', 'patient_cancelled', 'doctor_cancelled');

			IF v_booked >= v_capacity THEN
				RAISE EXCEPTION 'slot %% is full on %%', NEW.slot_id, NEW.date
					USING ERRCODE = 'check_violation', CONSTRAINT = 'appointments_slot_capacity';
			END IF;

			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS trg_appointments_slot_capacity ON appointments;
		CREATE TRIGGER trg_appointments_slot_capacity
			BEFORE INSERT OR UPDATE OF status ON appointments
			FOR EACH ROW EXECUTE FUNCTION enforce_slot_capacity();`, SlotCapacityExpr)

	createAvailableDatesFunction = fmt.Sprintf(`
		CREATE OR REPLACE FUNCTION available_dates(from_date DATE, days_ahead INTEGER)
		RETURNS TABLE (available_date DATE) AS $$
			SELECT g::DATE
			  FROM generate_series(from_date, from_date + (days_ahead - 1), INTERVAL '1 day') AS g
			 WHERE EXISTS (
				SELECT 1
				  FROM doctor_schedules s
				  JOIN doctors d ON d.id = s.doctor_id
				 WHERE s.weekday = weekday_label(g::DATE)
				   AND %[1]s > (
						SELECT count(*) FROM appointments a
						 WHERE a.slot_id = s.id
						   AND a.date = g::DATE
						   AND a.status NOT IN ('cancelled', 'patient_cancelled', 'doctor_cancelled')
				   )
			 )
			 ORDER BY 1
		$$ LANGUAGE sql STABLE;`, SlotCapacityExpr)
)
