package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/clinic-backend/internal/appointment"
)

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		clinicID, err := uuid.Parse(req.ClinicID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
			return
		}
		if req.ScheduledFor.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_scheduled_for", "scheduled_for is required")
			return
		}
		if req.DurationMin <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration_min must be positive")
			return
		}

		var providerID *uuid.UUID
		if req.ProviderID != "" {
			pid, err := uuid.Parse(req.ProviderID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			providerID = &pid
		}

		a, err := svc.Request(r.Context(), appointment.RequestParams{
			PatientID:     patientID,
			ClinicID:      clinicID,
			ProcedureType: req.ProcedureType,
			ScheduledFor:  req.ScheduledFor,
			DurationMin:   req.DurationMin,
			ProviderID:    providerID,
			ProviderName:  req.ProviderName,
			RequestedBy:   req.RequestedBy,
			CorrelationID: GetRequestID(r.Context()),
		})
		if err != nil {
			handleCommandError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(a))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}
		a, err := svc.Get(r.Context(), id)
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(a))
	}
}

// appointmentActionHandler covers the commands that only need a reason and
// an actor: confirm, check-in, start, cancel, no-show.
func appointmentActionHandler(run func(r *http.Request, id uuid.UUID, req AppointmentActionRequest) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req AppointmentActionRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		a, err := run(r, id, req)
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(a))
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req CompleteAppointmentRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		a, err := svc.Complete(r.Context(), id, req.TreatmentNotes, req.ActualDurationMin, req.CompletedBy, GetRequestID(r.Context()))
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(a))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.NewScheduledFor.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_scheduled_for", "new_scheduled_for is required")
			return
		}

		successor, err := svc.Reschedule(r.Context(), id, req.NewScheduledFor, req.InitiatedBy, GetRequestID(r.Context()))
		if err != nil {
			handleCommandError(w, err)
			return
		}
		// 201: rescheduling creates a new appointment instance
		writeJSON(w, http.StatusCreated, toAppointmentResponse(successor))
	}
}

func recordReminderHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req ReminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Channel == "" {
			writeError(w, http.StatusBadRequest, "invalid_channel", "channel is required")
			return
		}

		sentAt := time.Now().UTC()
		if req.SentAt != nil {
			sentAt = *req.SentAt
		}
		status := req.DeliveryStatus
		if status == "" {
			status = "sent"
		}

		a, err := svc.RecordReminderSent(r.Context(), id, req.Channel, sentAt, status, GetRequestID(r.Context()))
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(a))
	}
}

func assignProviderHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req AssignProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		a, err := svc.AssignProvider(r.Context(), id, providerID, req.ProviderName, req.AssignedBy, GetRequestID(r.Context()))
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(a))
	}
}

func recordConsentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req ConsentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.ConsentType == "" {
			writeError(w, http.StatusBadRequest, "invalid_consent_type", "consent_type is required")
			return
		}

		a, err := svc.RecordConsentVerification(r.Context(), id, req.ConsentType, req.VerifiedBy, GetRequestID(r.Context()))
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(a))
	}
}

func parseAppointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
