package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicore/clinic-backend/internal/appointment"
	"github.com/clinicore/clinic-backend/internal/casefile"
	"github.com/clinicore/clinic-backend/internal/eventsourcing"
	"github.com/clinicore/clinic-backend/internal/eventstore"
	redisclient "github.com/clinicore/clinic-backend/internal/redis"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleCommandError maps domain and infrastructure failures onto HTTP
// statuses. Domain errors carry their kind as the error code so clients
// branch without parsing messages.
func handleCommandError(w http.ResponseWriter, err error) {
	var de *eventsourcing.DomainError
	if errors.As(err, &de) {
		writeError(w, domainErrorStatus(de), string(de.Kind), de.Error())
		return
	}

	switch {
	case errors.Is(err, casefile.ErrCaseNotFound):
		writeError(w, http.StatusNotFound, "case_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, eventstore.ErrVersionConflict):
		writeError(w, http.StatusConflict, "version_conflict", "aggregate was modified concurrently, retry")
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "aggregate_busy", "another command is in flight for this aggregate, retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func domainErrorStatus(de *eventsourcing.DomainError) int {
	switch de.Kind {
	case eventsourcing.KindDeleted:
		return http.StatusGone
	case eventsourcing.KindMaxReschedules,
		eventsourcing.KindInsufficientPaid,
		eventsourcing.KindCannotAcceptPayment:
		return http.StatusUnprocessableEntity
	default:
		// transition and state-guard failures are conflicts with current state
		return http.StatusConflict
	}
}
