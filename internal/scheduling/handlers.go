package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/phuczkz/healthcare-center/internal/gateway"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

// setupRoutes configures HTTP routes for the scheduling service
func (s *Service) setupRoutes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.monitoring.HTTPMiddleware)

	healthPath := s.config.Monitoring.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}
	router.HandleFunc(healthPath, s.health.Handler()).Methods("GET")
	if s.config.Monitoring.Enabled {
		metricsPath := s.config.Monitoring.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		router.Handle(metricsPath, s.metrics.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// Public availability routes
	api.HandleFunc("/specializations", s.listSpecializationsHandler).Methods("GET")
	api.HandleFunc("/available-dates", s.availableDatesHandler).Methods("GET")
	api.HandleFunc("/availability", s.availabilityHandler).Methods("GET")
	api.HandleFunc("/doctors/{id}/schedule", s.getDoctorScheduleHandler).Methods("GET")
	api.HandleFunc("/schedules/validate", s.validateScheduleHandler).Methods("POST")

	// Patient routes
	patient := api.NewRoute().Subrouter()
	patient.Use(s.auth.Authenticate, s.auth.RequireRole(types.RolePatient), s.auth.RateLimit)
	patient.HandleFunc("/appointments", s.bookAppointmentHandler).Methods("POST")
	patient.HandleFunc("/me/appointments", s.myAppointmentsHandler).Methods("GET")

	// Doctor and admin routes
	staff := api.NewRoute().Subrouter()
	staff.Use(s.auth.Authenticate, s.auth.RequireRole(types.RoleDoctor, types.RoleAdmin))
	staff.HandleFunc("/appointments/{id}/status", s.updateAppointmentStatusHandler).Methods("PUT")

	// Admin routes
	admin := api.NewRoute().Subrouter()
	admin.Use(s.auth.Authenticate, s.auth.RequireRole(types.RoleAdmin))
	admin.HandleFunc("/doctors", s.createDoctorHandler).Methods("POST")
	admin.HandleFunc("/doctors/{id}/schedule", s.updateDoctorScheduleHandler).Methods("PUT")

	s.logger.WithComponent("http").Info("Scheduling service routes configured")
	return gateway.SecurityHeaders(gateway.CORS(router))
}

// listSpecializationsHandler handles the specialization picker
func (s *Service) listSpecializationsHandler(w http.ResponseWriter, r *http.Request) {
	specializations, err := s.ListSpecializations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"specializations": specializations,
	})
}

// availableDatesHandler handles the bookable calendar strip
func (s *Service) availableDatesHandler(w http.ResponseWriter, r *http.Request) {
	from := time.Now().In(s.location)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := s.parseDate(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		from = parsed
	}

	days := s.config.Scheduling.MaxHorizonDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "days must be an integer", map[string]interface{}{
				"days": raw,
			}))
			return
		}
		days = parsed
	}

	dates, err := s.GetAvailableDates(r.Context(), from, days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"from":  from.Format(dateLayout),
		"dates": dates,
	})
}

// availabilityHandler returns the bookable slots of a specialization on a date
func (s *Service) availabilityHandler(w http.ResponseWriter, r *http.Request) {
	date, err := s.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	specialization := r.URL.Query().Get("specialization")

	doctors, err := s.GetAvailableSlots(r.Context(), date, specialization)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"date":           date.Format(dateLayout),
		"weekday":        WeekdayName(date),
		"specialization": strings.TrimSpace(specialization),
		"doctors":        doctors,
	})
}

// bookAppointmentHandler handles appointment booking for the authenticated patient
func (s *Service) bookAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := gateway.ClaimsFromContext(r.Context())

	var req types.BookingRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.UserID = claims.UserID

	apt, err := s.BookAppointment(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, apt)
}

// myAppointmentsHandler lists the authenticated patient's appointments
func (s *Service) myAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := gateway.ClaimsFromContext(r.Context())

	appointments, err := s.GetPatientAppointments(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"appointments": appointments,
		"total":        len(appointments),
	})
}

type statusUpdateRequest struct {
	Status types.AppointmentStatus `json:"status"`
}

// updateAppointmentStatusHandler handles doctor and admin status changes
func (s *Service) updateAppointmentStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	apt, err := s.UpdateAppointmentStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, apt)
}

// createDoctorHandler handles doctor provisioning
func (s *Service) createDoctorHandler(w http.ResponseWriter, r *http.Request) {
	var req types.CreateDoctorRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	doctor, err := s.CreateDoctor(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, doctor)
}

// getDoctorScheduleHandler returns a doctor's weekly template
func (s *Service) getDoctorScheduleHandler(w http.ResponseWriter, r *http.Request) {
	doctorID := mux.Vars(r)["id"]

	schedule, err := s.GetDoctorSchedule(r.Context(), doctorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"doctor_id": doctorID,
		"schedule":  schedule,
	})
}

type scheduleRequest struct {
	Schedule types.WeeklySchedule `json:"schedule"`
}

// updateDoctorScheduleHandler replaces a doctor's weekly template
func (s *Service) updateDoctorScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	doctorID := mux.Vars(r)["id"]
	if err := s.UpdateDoctorSchedule(r.Context(), doctorID, req.Schedule); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"doctor_id": doctorID,
		"schedule":  req.Schedule,
	})
}

// validateScheduleHandler is a dry run of the template checks
func (s *Service) validateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.ValidateSchedule(req.Schedule); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"valid": true})
}

// parseDate reads a YYYY-MM-DD calendar date in the clinic zone
func (s *Service) parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, types.NewValidationError(types.ErrCodeInvalidDate, "date is required", nil)
	}
	date, err := time.ParseInLocation(dateLayout, raw, s.location)
	if err != nil {
		return time.Time{}, types.NewValidationError(types.ErrCodeInvalidDate, "date must be YYYY-MM-DD", map[string]interface{}{
			"date": raw,
		})
	}
	return date, nil
}

func (s *Service) decodeBody(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", map[string]interface{}{
			"reason": err.Error(),
		})
	}
	return nil
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes err as {error, code, status, details}
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)

	entry := s.logger.WithContext(r.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	message := err.Error()
	var details map[string]interface{}
	var se *types.SchedulingError
	if errors.As(err, &se) {
		message = se.Message
		details = se.Details
	}

	response := map[string]interface{}{
		"error":  message,
		"code":   types.ErrorCodeOf(err),
		"status": status,
	}
	if len(details) > 0 {
		response["details"] = details
	}

	s.writeJSONResponse(w, status, response)
}

// statusForError maps error types to HTTP status codes
func statusForError(err error) int {
	if types.ErrorCodeOf(err) == types.ErrCodeSlotFull {
		return http.StatusConflict
	}

	switch types.ErrorTypeOf(err) {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeConflict:
		return http.StatusConflict
	case types.ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case types.ErrorTypeAuthorization:
		return http.StatusForbidden
	case types.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case types.ErrorTypeAvailabilityQuery, types.ErrorTypeCapacityQuery,
		types.ErrorTypeBookingWrite, types.ErrorTypeScheduleReplace:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
