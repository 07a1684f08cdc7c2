package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/clinic-backend/internal/casefile"
)

func createCaseHandler(svc *casefile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clinicID, err := uuid.Parse(req.ClinicID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
			return
		}
		leadID, err := uuid.Parse(req.LeadID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_lead_id", "lead_id must be a valid UUID")
			return
		}
		planID, err := uuid.Parse(req.TreatmentPlanID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_treatment_plan_id", "treatment_plan_id must be a valid UUID")
			return
		}
		if req.TotalCents < 0 {
			writeError(w, http.StatusBadRequest, "invalid_total", "total_cents must not be negative")
			return
		}
		if req.Currency == "" {
			writeError(w, http.StatusBadRequest, "invalid_currency", "currency is required")
			return
		}

		c, err := svc.Open(r.Context(), casefile.OpenParams{
			ClinicID:           clinicID,
			LeadID:             leadID,
			TreatmentPlanID:    planID,
			CaseNumber:         req.CaseNumber,
			TotalCents:         req.TotalCents,
			Currency:           req.Currency,
			ExpectedCompletion: req.ExpectedCompletion,
			CreatedBy:          req.CreatedBy,
			CorrelationID:      GetRequestID(r.Context()),
		})
		if err != nil {
			handleCommandError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toCaseResponse(c))
	}
}

func getCaseHandler(svc *casefile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseCaseID(w, r)
		if !ok {
			return
		}
		c, err := svc.Get(r.Context(), id)
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(c))
	}
}

// caseActionHandler covers the status commands that only need a reason and
// an actor: start, complete, cancel, hold, resume, delete.
func caseActionHandler(run func(r *http.Request, id uuid.UUID, req CaseActionRequest) (*casefile.Case, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseCaseID(w, r)
		if !ok {
			return
		}

		var req CaseActionRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		c, err := run(r, id, req)
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(c))
	}
}

func recordPaymentHandler(svc *casefile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseCaseID(w, r)
		if !ok {
			return
		}

		var req PaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.AmountCents <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount_cents must be positive")
			return
		}

		c, err := svc.RecordPayment(r.Context(), id, req.AmountCents, req.Method, req.Reference, req.UpdatedBy, GetRequestID(r.Context()))
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(c))
	}
}

func recordRefundHandler(svc *casefile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseCaseID(w, r)
		if !ok {
			return
		}

		var req RefundRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.AmountCents <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount_cents must be positive")
			return
		}

		c, err := svc.RecordRefund(r.Context(), id, req.AmountCents, req.Reason, req.UpdatedBy, GetRequestID(r.Context()))
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(c))
	}
}

func attachFinancingHandler(svc *casefile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseCaseID(w, r)
		if !ok {
			return
		}

		var req FinancingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Provider == "" {
			writeError(w, http.StatusBadRequest, "invalid_provider", "provider is required")
			return
		}

		c, err := svc.AttachFinancing(r.Context(), id, req.Provider, req.Reference, req.ApprovedAt, req.UpdatedBy, GetRequestID(r.Context()))
		if err != nil {
			handleCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(c))
	}
}

func parseCaseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_case_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
