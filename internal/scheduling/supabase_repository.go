package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/phuczkz/healthcare-center/pkg/config"
	"github.com/phuczkz/healthcare-center/pkg/interfaces"
	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

// PostgrestError is an error reported by the hosted backend with a SQLSTATE code
type PostgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *PostgrestError) Error() string {
	return fmt.Sprintf("(%s) %s", e.Code, e.Message)
}

// sqlStateNoData is raised by the procedures for unknown doctors
const sqlStateNoData = "P0002"

// executeErrorPattern matches the "(CODE) message" errors returned by Execute
var executeErrorPattern = regexp.MustCompile(`^\(([0-9A-Za-z]+)\) (.*)$`)

// asPostgrestError lifts a textual backend error into a PostgrestError when it carries a code
func asPostgrestError(err error) error {
	if err == nil {
		return nil
	}
	if m := executeErrorPattern.FindStringSubmatch(err.Error()); m != nil {
		return &PostgrestError{Code: m[1], Message: m[2]}
	}
	return err
}

// SupabaseRepository implements the SchedulingRepository interface on the hosted
// backend. Calls go through a circuit breaker so an unreachable backend fails fast.
type SupabaseRepository struct {
	client  *supa.Client
	cfg     config.SupabaseConfig
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *logger.Logger
	observe QueryObserver
}

// NewSupabaseRepository creates a repository backed by the Supabase REST API
func NewSupabaseRepository(cfg config.SupabaseConfig, log *logger.Logger, opts ...RepositoryOption) (interfaces.SchedulingRepository, error) {
	client, err := supa.NewClient(cfg.URL, cfg.ServiceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "supabase",
		MaxRequests: 1,
		Timeout:     time.Duration(cfg.BreakerTimeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// errors carrying a SQLSTATE mean the backend answered
		IsSuccessful: func(err error) bool {
			var restErr *PostgrestError
			return err == nil || errors.As(err, &restErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	o := applyOptions(opts)
	return &SupabaseRepository{
		client:  client,
		cfg:     cfg,
		breaker: breaker,
		logger:  log,
		observe: o.observe,
	}, nil
}

// execute runs a query builder call through the breaker
func (r *SupabaseRepository) execute(ctx context.Context, operation, table string, call func() ([]byte, int64, error)) ([]byte, error) {
	var body []byte
	err := r.observe(ctx, operation, table, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		body, err = r.breaker.Execute(func() ([]byte, error) {
			data, _, err := call()
			return data, asPostgrestError(err)
		})
		return err
	})
	return body, err
}

// rpc invokes a database function. A fresh REST client is used per call since
// the SDK reports transport failures through a shared field.
func (r *SupabaseRepository) rpc(ctx context.Context, name string, params interface{}) ([]byte, error) {
	var body []byte
	err := r.observe(ctx, "rpc", name, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		body, err = r.breaker.Execute(func() ([]byte, error) {
			rest := postgrest.NewClient(strings.TrimRight(r.cfg.URL, "/")+"/rest/v1", r.cfg.Schema, map[string]string{
				"apikey":        r.cfg.ServiceKey,
				"Authorization": "Bearer " + r.cfg.ServiceKey,
			})

			result := rest.Rpc(name, "", params)
			if rest.ClientError != nil {
				return nil, rest.ClientError
			}
			return []byte(result), rpcError(result)
		})
		return err
	})
	return body, err
}

// rpcError detects a PostgREST error object in an RPC response body
func rpcError(body string) error {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var restErr PostgrestError
	if err := json.Unmarshal([]byte(trimmed), &restErr); err != nil {
		return nil
	}
	if restErr.Code == "" || restErr.Message == "" {
		return nil
	}
	return &restErr
}

// scheduleEntryRowJSON mirrors the schedule_entry_rows view
type scheduleEntryRowJSON struct {
	EntryID            string   `json:"entry_id"`
	DoctorID           string   `json:"doctor_id"`
	Weekday            string   `json:"weekday"`
	StartTime          string   `json:"start_time"`
	EndTime            string   `json:"end_time"`
	MaxPatientsPerSlot int      `json:"max_patients_per_slot"`
	FullName           string   `json:"full_name"`
	RoomNumber         string   `json:"room_number"`
	ExperienceYears    int      `json:"experience_years"`
	DoctorMaxPatients  int      `json:"doctor_max_patients"`
	DepartmentID       string   `json:"department_id"`
	Specializations    []string `json:"specializations"`
}

// ListScheduleEntriesByWeekday returns every template entry of weekday joined with its doctor
func (r *SupabaseRepository) ListScheduleEntriesByWeekday(ctx context.Context, weekday string) ([]*types.ScheduleEntryRow, error) {
	data, err := r.execute(ctx, "select", "schedule_entry_rows", func() ([]byte, int64, error) {
		return r.client.From("schedule_entry_rows").
			Select("*", "", false).
			Eq("weekday", weekday).
			Order("full_name", &postgrest.OrderOpts{Ascending: true}).
			Execute()
	})
	if err != nil {
		r.logger.WithError(err).WithField("weekday", weekday).Error("Failed to list schedule entries")
		return nil, fmt.Errorf("failed to list schedule entries: %w", err)
	}

	var raw []scheduleEntryRowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode schedule entries: %w", err)
	}

	rows := make([]*types.ScheduleEntryRow, 0, len(raw))
	for _, e := range raw {
		rows = append(rows, &types.ScheduleEntryRow{
			Entry: types.ScheduleTemplateEntry{
				ID:                 e.EntryID,
				DoctorID:           e.DoctorID,
				Weekday:            e.Weekday,
				StartTime:          e.StartTime,
				EndTime:            e.EndTime,
				MaxPatientsPerSlot: e.MaxPatientsPerSlot,
			},
			Doctor: types.Doctor{
				ID:                 e.DoctorID,
				FullName:           e.FullName,
				Specializations:    e.Specializations,
				RoomNumber:         e.RoomNumber,
				ExperienceYears:    e.ExperienceYears,
				MaxPatientsPerSlot: e.DoctorMaxPatients,
				DepartmentID:       e.DepartmentID,
			},
		})
	}
	return rows, nil
}

// GetDoctorSchedule returns a doctor's template ordered by weekday then start time
func (r *SupabaseRepository) GetDoctorSchedule(ctx context.Context, doctorID string) ([]*types.ScheduleTemplateEntry, error) {
	data, err := r.execute(ctx, "select", "doctor_schedules", func() ([]byte, int64, error) {
		return r.client.From("doctor_schedules").
			Select("id,doctor_id,weekday,start_time,end_time,max_patients_per_slot", "", false).
			Eq("doctor_id", doctorID).
			Execute()
	})
	if err != nil {
		r.logger.WithError(err).WithField("doctor_id", doctorID).Error("Failed to get doctor schedule")
		return nil, fmt.Errorf("failed to get doctor schedule: %w", err)
	}

	var entries []*types.ScheduleTemplateEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode doctor schedule: %w", err)
	}

	sortTemplateEntries(entries)
	return entries, nil
}

// ReplaceDoctorSchedule calls replace_doctor_schedule, which deletes and
// re-inserts the template inside one database transaction
func (r *SupabaseRepository) ReplaceDoctorSchedule(ctx context.Context, doctorID string, entries []*types.ScheduleTemplateEntry) error {
	if entries == nil {
		entries = []*types.ScheduleTemplateEntry{}
	}

	_, err := r.rpc(ctx, "replace_doctor_schedule", map[string]interface{}{
		"p_doctor_id": doctorID,
		"p_entries":   entries,
	})
	if err != nil {
		var restErr *PostgrestError
		if errors.As(err, &restErr) && restErr.Code == sqlStateNoData {
			return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("doctor not found: %s", doctorID))
		}
		r.logger.WithError(err).WithField("doctor_id", doctorID).Error("Failed to replace doctor schedule")
		return fmt.Errorf("failed to replace doctor schedule: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"doctor_id": doctorID,
		"entries":   len(entries),
	}).Info("Replaced doctor schedule")
	return nil
}

// CreateDoctor calls provision_doctor, which inserts the doctor, its
// specializations and its template in one transaction
func (r *SupabaseRepository) CreateDoctor(ctx context.Context, doctor *types.Doctor, entries []*types.ScheduleTemplateEntry) error {
	if entries == nil {
		entries = []*types.ScheduleTemplateEntry{}
	}
	specializations := doctor.Specializations
	if specializations == nil {
		specializations = []string{}
	}

	_, err := r.rpc(ctx, "provision_doctor", map[string]interface{}{
		"p_doctor":          doctor,
		"p_specializations": specializations,
		"p_entries":         entries,
	})
	if err != nil {
		r.logger.WithError(err).WithField("doctor_id", doctor.ID).Error("Failed to create doctor")
		return fmt.Errorf("failed to create doctor: %w", err)
	}

	r.logger.WithField("doctor_id", doctor.ID).Info("Created doctor")
	return nil
}

// GetDoctorByID retrieves a doctor with its specializations
func (r *SupabaseRepository) GetDoctorByID(ctx context.Context, id string) (*types.Doctor, error) {
	data, err := r.execute(ctx, "select", "doctor_profiles", func() ([]byte, int64, error) {
		return r.client.From("doctor_profiles").
			Select("*", "", false).
			Eq("id", id).
			Execute()
	})
	if err != nil {
		r.logger.WithError(err).WithField("doctor_id", id).Error("Failed to get doctor")
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}

	var doctors []*types.Doctor
	if err := json.Unmarshal(data, &doctors); err != nil {
		return nil, fmt.Errorf("failed to decode doctor: %w", err)
	}
	if len(doctors) == 0 {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("doctor not found: %s", id))
	}
	return doctors[0], nil
}

// ListSpecializations returns all specialization names in order
func (r *SupabaseRepository) ListSpecializations(ctx context.Context) ([]string, error) {
	data, err := r.execute(ctx, "select", "specializations", func() ([]byte, int64, error) {
		// the inner embed keeps only specializations some doctor offers
		return r.client.From("specializations").
			Select("name,doctor_specializations!inner(doctor_id)", "", false).
			Order("name", &postgrest.OrderOpts{Ascending: true}).
			Execute()
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to list specializations")
		return nil, fmt.Errorf("failed to list specializations: %w", err)
	}

	var rows []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode specializations: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	return names, nil
}

// CountActiveAppointments counts non-cancelled appointments per slot on date
func (r *SupabaseRepository) CountActiveAppointments(ctx context.Context, date string, slotIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(slotIDs))
	if len(slotIDs) == 0 {
		return counts, nil
	}

	cancelled := make([]string, 0, len(types.CancelledStatuses))
	for _, s := range types.CancelledStatuses {
		cancelled = append(cancelled, string(s))
	}

	data, err := r.execute(ctx, "select", "appointments", func() ([]byte, int64, error) {
		return r.client.From("appointments").
			Select("slot_id", "", false).
			Eq("date", date).
			In("slot_id", slotIDs).
			Not("status", "in", "("+strings.Join(cancelled, ",")+")").
			Execute()
	})
	if err != nil {
		r.logger.WithError(err).WithField("date", date).Error("Failed to count appointments")
		return nil, fmt.Errorf("failed to count appointments: %w", err)
	}

	var rows []struct {
		SlotID string `json:"slot_id"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}

	for _, row := range rows {
		counts[row.SlotID]++
	}
	return counts, nil
}

// CreateAppointment inserts an appointment row. The capacity trigger may reject it.
func (r *SupabaseRepository) CreateAppointment(ctx context.Context, apt *types.Appointment) error {
	_, err := r.execute(ctx, "insert", "appointments", func() ([]byte, int64, error) {
		return r.client.From("appointments").
			Insert(apt, false, "", "minimal", "").
			Execute()
	})
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

// GetAppointmentByID retrieves an appointment by ID
func (r *SupabaseRepository) GetAppointmentByID(ctx context.Context, id string) (*types.Appointment, error) {
	data, err := r.execute(ctx, "select", "appointments", func() ([]byte, int64, error) {
		return r.client.From("appointments").
			Select("*", "", false).
			Eq("id", id).
			Execute()
	})
	if err != nil {
		r.logger.WithError(err).WithField("appointment_id", id).Error("Failed to get appointment")
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	var appointments []*types.Appointment
	if err := json.Unmarshal(data, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointment: %w", err)
	}
	if len(appointments) == 0 {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
	}
	return appointments[0], nil
}

// GetAppointmentsByUser returns a patient's appointments, newest first
func (r *SupabaseRepository) GetAppointmentsByUser(ctx context.Context, userID string) ([]*types.Appointment, error) {
	data, err := r.execute(ctx, "select", "appointments", func() ([]byte, int64, error) {
		return r.client.From("appointments").
			Select("*", "", false).
			Eq("user_id", userID).
			Order("appointment_date", &postgrest.OrderOpts{Ascending: false}).
			Execute()
	})
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to list appointments")
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	appointments := make([]*types.Appointment, 0)
	if err := json.Unmarshal(data, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

// UpdateAppointmentStatus moves an appointment from one status to another.
// The row is only written while it still holds from.
func (r *SupabaseRepository) UpdateAppointmentStatus(ctx context.Context, id string, from, to types.AppointmentStatus) error {
	update := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}

	data, err := r.execute(ctx, "update", "appointments", func() ([]byte, int64, error) {
		return r.client.From("appointments").
			Update(update, "representation", "").
			Eq("id", id).
			Eq("status", string(from)).
			Execute()
	})
	if err != nil {
		r.logger.WithError(err).WithField("appointment_id", id).Error("Failed to update appointment status")
		return fmt.Errorf("failed to update appointment status: %w", err)
	}

	var updated []json.RawMessage
	if err := json.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("failed to decode updated appointment: %w", err)
	}
	if len(updated) == 0 {
		return statusChangedError(id, from, to)
	}
	return nil
}

// AvailableDates delegates date generation to the available_dates database function
func (r *SupabaseRepository) AvailableDates(ctx context.Context, fromDate string, daysAhead int) ([]string, error) {
	data, err := r.rpc(ctx, "available_dates", map[string]interface{}{
		"from_date":  fromDate,
		"days_ahead": daysAhead,
	})
	if err != nil {
		r.logger.WithError(err).WithField("from", fromDate).Error("Failed to load available dates")
		return nil, fmt.Errorf("failed to load available dates: %w", err)
	}

	var rows []struct {
		AvailableDate string `json:"available_date"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode available dates: %w", err)
	}

	dates := make([]string, 0, len(rows))
	for _, row := range rows {
		dates = append(dates, row.AvailableDate)
	}
	return dates, nil
}

// Ping checks that the backend answers queries
func (r *SupabaseRepository) Ping(ctx context.Context) error {
	_, err := r.execute(ctx, "select", "specializations", func() ([]byte, int64, error) {
		return r.client.From("specializations").
			Select("id", "", false).
			Limit(1, "").
			Execute()
	})
	return err
}

// BreakerState reports the circuit breaker state for health checks
func (r *SupabaseRepository) BreakerState() string {
	return r.breaker.State().String()
}
