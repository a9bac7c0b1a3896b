package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/phuczkz/healthcare-center/internal/gateway"
	"github.com/phuczkz/healthcare-center/pkg/config"
	"github.com/phuczkz/healthcare-center/pkg/interfaces"
	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/monitoring"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

const serviceName = "scheduling-service"

// Version is reported by the health endpoint
var Version = "dev"

// allowedTransitions lists the status changes doctors and admins may apply
var allowedTransitions = map[types.AppointmentStatus][]types.AppointmentStatus{
	types.StatusPending: {
		types.StatusConfirmed,
		types.StatusPatientCancelled,
		types.StatusDoctorCancelled,
		types.StatusCancelled,
	},
	types.StatusConfirmed: {
		types.StatusWaitingResults,
		types.StatusCompleted,
		types.StatusPatientCancelled,
		types.StatusDoctorCancelled,
		types.StatusCancelled,
	},
	types.StatusWaitingResults: {
		types.StatusCompleted,
	},
}

// Dependencies are the collaborators a Service is built from.
// Nil fields are replaced by defaults, except Repository which is required.
type Dependencies struct {
	Repository interfaces.SchedulingRepository
	Metrics    *monitoring.MetricsCollector
	Tracing    *monitoring.TracingManager
	Health     *monitoring.Health
	Auth       *gateway.AuthMiddleware
}

// Service implements the SchedulingService interface
type Service struct {
	config     *config.Config
	logger     *logger.Logger
	repository interfaces.SchedulingRepository
	aggregator *AvailabilityAggregator
	calculator *CapacityCalculator
	writer     *BookingWriter
	validate   *validator.Validate
	location   *time.Location

	metrics    *monitoring.MetricsCollector
	tracing    *monitoring.TracingManager
	monitoring *monitoring.MonitoringMiddleware
	health     *monitoring.Health
	auth       *gateway.AuthMiddleware
	limiter    *gateway.RateLimiter

	handlerOnce sync.Once
	handler     http.Handler
	server      *http.Server
}

// New creates a new scheduling service
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) (*Service, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("scheduling repository is required")
	}

	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetricsCollector(serviceName)
	}
	if deps.Tracing == nil {
		deps.Tracing = monitoring.NewNoopTracingManager()
	}
	if deps.Health == nil {
		deps.Health = monitoring.NewHealth(serviceName, Version)
		deps.Health.Register("store", monitoring.StoreCheck(deps.Repository.Ping))
	}

	s := &Service{
		config:     cfg,
		logger:     log,
		repository: deps.Repository,
		aggregator: NewAvailabilityAggregator(deps.Repository, log),
		calculator: NewCapacityCalculator(deps.Repository, log),
		writer:     NewBookingWriter(deps.Repository, log, cfg.Scheduling.Location(), cfg.Scheduling.BaseFeeAmount()),
		validate:   newRequestValidator(),
		location:   cfg.Scheduling.Location(),
		metrics:    deps.Metrics,
		tracing:    deps.Tracing,
		monitoring: monitoring.NewMonitoringMiddleware(deps.Metrics, deps.Tracing, log),
		health:     deps.Health,
		auth:       deps.Auth,
	}

	if s.auth == nil {
		if cfg.RateLimit.Enabled {
			s.limiter = gateway.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
			s.limiter.StartCleanup(10 * time.Minute)
		}
		s.auth = gateway.NewAuthMiddleware(gateway.NewTokenValidator(cfg.JWT), s.limiter, log, s.writeError)
	}

	return s, nil
}

// newRequestValidator reports field names using their json tags
func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// validateRequest maps validator failures to an INVALID_INPUT error listing the offending fields
func (s *Service) validateRequest(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return types.NewValidationError(types.ErrCodeInvalidInput, err.Error(), nil)
	}

	fields := make(map[string]interface{}, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Tag()
	}
	s.metrics.RecordValidationFailure("request")
	return types.NewValidationError(types.ErrCodeInvalidInput, "invalid request", map[string]interface{}{
		"fields": fields,
	})
}

// ListSpecializations returns the specialization names offered on the booking screen
func (s *Service) ListSpecializations(ctx context.Context) ([]string, error) {
	specializations, err := s.repository.ListSpecializations(ctx)
	if err != nil {
		s.metrics.RecordSystemError("query_failed", "specializations")
		return nil, types.NewAvailabilityQueryError(err)
	}
	return specializations, nil
}

// GetAvailableDates lists the bookable calendar dates starting at from
func (s *Service) GetAvailableDates(ctx context.Context, from time.Time, daysAhead int) ([]string, error) {
	if from.IsZero() {
		return nil, types.NewValidationError(types.ErrCodeInvalidDate, "from date is required", nil)
	}

	if daysAhead < 1 {
		daysAhead = 1
	}
	if horizon := s.config.Scheduling.MaxHorizonDays; daysAhead > horizon {
		daysAhead = horizon
	}

	dates, err := s.repository.AvailableDates(ctx, from.Format(dateLayout), daysAhead)
	if err != nil {
		s.metrics.RecordSystemError("query_failed", "available_dates")
		return nil, types.NewAvailabilityQueryError(err)
	}
	return dates, nil
}

// GetAvailableSlots returns, per doctor of specialization, the slots on date that still have room
func (s *Service) GetAvailableSlots(ctx context.Context, date time.Time, specialization string) ([]*types.DoctorSlots, error) {
	ctx, span := s.tracing.StartSpan(ctx, "scheduling.available_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("scheduling.date", date.Format(dateLayout)),
		attribute.String("scheduling.specialization", specialization),
	)

	candidates, err := s.aggregator.Aggregate(ctx, date, specialization)
	if err != nil {
		s.tracing.RecordError(span, err)
		s.metrics.RecordAvailabilityQuery(availabilityOutcome(err), 0)
		return []*types.DoctorSlots{}, err
	}

	slots, err := s.calculator.Calculate(ctx, date, candidates)
	if err != nil {
		s.tracing.RecordError(span, err)
		s.metrics.RecordAvailabilityQuery(availabilityOutcome(err), 0)
		return []*types.DoctorSlots{}, err
	}

	total := 0
	for _, doctor := range slots {
		total += len(doctor.Slots)
	}
	span.SetAttributes(attribute.Int("scheduling.slots", total))
	s.metrics.RecordAvailabilityQuery("ok", total)

	return slots, nil
}

func availabilityOutcome(err error) string {
	switch types.ErrorTypeOf(err) {
	case types.ErrorTypeValidation:
		return "invalid"
	case types.ErrorTypeCapacityQuery:
		return "capacity_query_failed"
	default:
		return "availability_query_failed"
	}
}

// BookAppointment validates the request and inserts a pending appointment
func (s *Service) BookAppointment(ctx context.Context, req *types.BookingRequest) (*types.Appointment, error) {
	if req == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "booking request is required", nil)
	}
	if err := s.validateRequest(req); err != nil {
		s.metrics.RecordBooking("invalid")
		return nil, err
	}

	ctx, span := s.tracing.StartSpan(ctx, "scheduling.book_appointment")
	defer span.End()
	span.SetAttributes(
		attribute.String("scheduling.doctor_id", req.DoctorID),
		attribute.String("scheduling.slot_id", req.SlotID),
	)

	apt, err := s.writer.Write(ctx, req)
	if err != nil {
		result := "failed"
		switch types.ErrorCodeOf(err) {
		case types.ErrCodeSlotFull:
			result = "slot_full"
		case types.ErrCodeInvalidDate, types.ErrCodeInvalidTimeFormat, types.ErrCodeInvalidInput:
			result = "invalid"
		}
		s.metrics.RecordBooking(result)
		s.tracing.RecordError(span, err)
		s.logger.Audit(ctx, "book_appointment", "slot:"+req.SlotID, false, map[string]interface{}{
			"doctor_id": req.DoctorID,
			"date":      req.Date,
			"code":      types.ErrorCodeOf(err),
		})
		return nil, err
	}

	s.metrics.RecordBooking("booked")
	s.logger.Audit(ctx, "book_appointment", "appointment:"+apt.ID, true, map[string]interface{}{
		"doctor_id": apt.DoctorID,
		"slot_id":   apt.SlotID,
		"date":      apt.Date,
	})
	return apt, nil
}

// GetPatientAppointments returns the appointments of userID, newest first
func (s *Service) GetPatientAppointments(ctx context.Context, userID string) ([]*types.Appointment, error) {
	if userID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "user id is required", nil)
	}

	appointments, err := s.repository.GetAppointmentsByUser(ctx, userID)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to load appointments", err)
	}
	return appointments, nil
}

// UpdateAppointmentStatus moves an appointment along the status graph
func (s *Service) UpdateAppointmentStatus(ctx context.Context, aptID string, status types.AppointmentStatus) (*types.Appointment, error) {
	if !status.IsValid() {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown status %q", status), map[string]interface{}{
			"status": string(status),
		})
	}
	if _, err := uuid.Parse(aptID); err != nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "invalid appointment id", nil)
	}

	apt, err := s.repository.GetAppointmentByID(ctx, aptID)
	if err != nil {
		if types.ErrorTypeOf(err) == types.ErrorTypeNotFound {
			return nil, err
		}
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to load appointment", err)
	}

	if !canTransition(apt.Status, status) {
		return nil, types.NewConflictError(types.ErrCodeInvalidStatusTransition,
			fmt.Sprintf("cannot change status from %s to %s", apt.Status, status),
			map[string]interface{}{"from": string(apt.Status), "to": string(status)})
	}

	if err := s.repository.UpdateAppointmentStatus(ctx, aptID, apt.Status, status); err != nil {
		switch types.ErrorTypeOf(err) {
		case types.ErrorTypeNotFound, types.ErrorTypeConflict:
			return nil, err
		}
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to update appointment status", err)
	}

	s.logger.Audit(ctx, "update_appointment_status", "appointment:"+aptID, true, map[string]interface{}{
		"from": string(apt.Status),
		"to":   string(status),
	})

	apt.Status = status
	apt.UpdatedAt = time.Now()
	return apt, nil
}

func canTransition(from, to types.AppointmentStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateDoctor provisions a doctor, its specializations and its weekly template together
func (s *Service) CreateDoctor(ctx context.Context, req *types.CreateDoctorRequest) (*types.Doctor, error) {
	if req == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "doctor request is required", nil)
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.ValidateSchedule(req.Schedule); err != nil {
		return nil, err
	}

	now := time.Now()
	doctor := &types.Doctor{
		ID:                 uuid.New().String(),
		FullName:           strings.TrimSpace(req.FullName),
		Specializations:    SplitSpecializations(req.Specialization),
		RoomNumber:         strings.TrimSpace(req.RoomNumber),
		ExperienceYears:    req.ExperienceYears,
		MaxPatientsPerSlot: req.MaxPatientsPerSlot,
		DepartmentID:       req.DepartmentID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	entries := ToTemplateEntries(doctor.ID, req.Schedule)

	if err := s.repository.CreateDoctor(ctx, doctor, entries); err != nil {
		s.logger.Audit(ctx, "create_doctor", "doctor:"+doctor.ID, false, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to create doctor", err)
	}

	s.logger.Audit(ctx, "create_doctor", "doctor:"+doctor.ID, true, map[string]interface{}{
		"specializations": doctor.Specializations,
		"entries":         len(entries),
	})
	return doctor, nil
}

// GetDoctorSchedule returns the weekly template of a doctor
func (s *Service) GetDoctorSchedule(ctx context.Context, doctorID string) (types.WeeklySchedule, error) {
	if _, err := uuid.Parse(doctorID); err != nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "invalid doctor id", nil)
	}

	if _, err := s.repository.GetDoctorByID(ctx, doctorID); err != nil {
		if types.ErrorTypeOf(err) == types.ErrorTypeNotFound {
			return nil, err
		}
		return nil, types.NewAvailabilityQueryError(err)
	}

	entries, err := s.repository.GetDoctorSchedule(ctx, doctorID)
	if err != nil {
		return nil, types.NewAvailabilityQueryError(err)
	}
	return ToWeeklySchedule(entries), nil
}

// UpdateDoctorSchedule validates schedule and replaces the doctor's template with it as a whole
func (s *Service) UpdateDoctorSchedule(ctx context.Context, doctorID string, schedule types.WeeklySchedule) error {
	if _, err := uuid.Parse(doctorID); err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "invalid doctor id", nil)
	}
	if err := s.ValidateSchedule(schedule); err != nil {
		return err
	}

	ctx, span := s.tracing.StartSpan(ctx, "scheduling.replace_schedule")
	defer span.End()
	span.SetAttributes(attribute.String("scheduling.doctor_id", doctorID))

	entries := ToTemplateEntries(doctorID, schedule)
	if err := s.repository.ReplaceDoctorSchedule(ctx, doctorID, entries); err != nil {
		s.tracing.RecordError(span, err)
		s.metrics.RecordScheduleReplacement(false)
		s.logger.Audit(ctx, "replace_schedule", "doctor:"+doctorID, false, map[string]interface{}{
			"error": err.Error(),
		})
		if types.ErrorTypeOf(err) == types.ErrorTypeNotFound {
			return err
		}
		return types.NewScheduleReplaceError(doctorID, err)
	}

	s.metrics.RecordScheduleReplacement(true)
	s.logger.Audit(ctx, "replace_schedule", "doctor:"+doctorID, true, map[string]interface{}{
		"entries": len(entries),
	})
	return nil
}

// ValidateSchedule checks a proposed weekly template without storing it
func (s *Service) ValidateSchedule(schedule types.WeeklySchedule) error {
	err := ValidateSchedule(schedule)
	if err != nil {
		rule := "unknown"
		var se *types.SchedulingError
		if errors.As(err, &se) {
			if r, ok := se.Details["rule"].(string); ok {
				rule = r
			}
		}
		s.metrics.RecordValidationFailure(rule)
	}
	return err
}

// Handler returns the HTTP handler serving the API, health and metrics endpoints
func (s *Service) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		s.handler = s.setupRoutes()
	})
	return s.handler
}

// Start starts the scheduling service HTTP server
func (s *Service) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.logger.WithFields(logrus.Fields{
		"addr":  addr,
		"store": s.config.Store.Driver,
	}).Info("Starting Scheduling Service")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("scheduling service stopped: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and flushes traces
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Scheduling Service")

	if s.limiter != nil {
		s.limiter.Stop()
	}

	var shutdownErr error
	if s.server != nil {
		shutdownErr = s.server.Shutdown(ctx)
	}
	if err := s.tracing.Shutdown(ctx); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}

var _ interfaces.SchedulingService = (*Service)(nil)
