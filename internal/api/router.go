package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-backend/internal/appointment"
	"github.com/clinicore/clinic-backend/internal/casefile"
)

type RouterConfig struct {
	Cases        *casefile.Service
	Appointments *appointment.Service
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       *zap.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Case command surface
	r.Route("/cases", func(r chi.Router) {
		r.Post("/", createCaseHandler(cfg.Cases))
		r.Get("/{id}", getCaseHandler(cfg.Cases))
		r.Post("/{id}/start", caseActionHandler(func(req *http.Request, id uuid.UUID, body CaseActionRequest) (*casefile.Case, error) {
			return cfg.Cases.Start(req.Context(), id, body.UpdatedBy, GetRequestID(req.Context()))
		}))
		r.Post("/{id}/complete", caseActionHandler(func(req *http.Request, id uuid.UUID, body CaseActionRequest) (*casefile.Case, error) {
			return cfg.Cases.Complete(req.Context(), id, body.UpdatedBy, GetRequestID(req.Context()))
		}))
		r.Post("/{id}/cancel", caseActionHandler(func(req *http.Request, id uuid.UUID, body CaseActionRequest) (*casefile.Case, error) {
			return cfg.Cases.Cancel(req.Context(), id, body.Reason, body.UpdatedBy, GetRequestID(req.Context()))
		}))
		r.Post("/{id}/hold", caseActionHandler(func(req *http.Request, id uuid.UUID, body CaseActionRequest) (*casefile.Case, error) {
			return cfg.Cases.PutOnHold(req.Context(), id, body.Reason, body.UpdatedBy, GetRequestID(req.Context()))
		}))
		r.Post("/{id}/resume", caseActionHandler(func(req *http.Request, id uuid.UUID, body CaseActionRequest) (*casefile.Case, error) {
			return cfg.Cases.Resume(req.Context(), id, body.UpdatedBy, GetRequestID(req.Context()))
		}))
		r.Post("/{id}/payments", recordPaymentHandler(cfg.Cases))
		r.Post("/{id}/refunds", recordRefundHandler(cfg.Cases))
		r.Post("/{id}/financing", attachFinancingHandler(cfg.Cases))
		r.Delete("/{id}", caseActionHandler(func(req *http.Request, id uuid.UUID, body CaseActionRequest) (*casefile.Case, error) {
			return cfg.Cases.SoftDelete(req.Context(), id, body.UpdatedBy, GetRequestID(req.Context()))
		}))
	})

	// Appointment command surface
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/confirm", appointmentActionHandler(func(req *http.Request, id uuid.UUID, body AppointmentActionRequest) (*appointment.Appointment, error) {
			return cfg.Appointments.Confirm(req.Context(), id, body.UpdatedBy, GetRequestID(req.Context()))
		}))
		r.Post("/{id}/check-in", appointmentActionHandler(func(req *http.Request, id uuid.UUID, body AppointmentActionRequest) (*appointment.Appointment, error) {
			return cfg.Appointments.CheckIn(req.Context(), id, body.UpdatedBy, GetRequestID(req.Context()))
		}))
		r.Post("/{id}/start", appointmentActionHandler(func(req *http.Request, id uuid.UUID, body AppointmentActionRequest) (*appointment.Appointment, error) {
			return cfg.Appointments.Start(req.Context(), id, body.UpdatedBy, GetRequestID(req.Context()))
		}))
		r.Post("/{id}/complete", completeAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/cancel", appointmentActionHandler(func(req *http.Request, id uuid.UUID, body AppointmentActionRequest) (*appointment.Appointment, error) {
			return cfg.Appointments.Cancel(req.Context(), id, body.Reason, body.UpdatedBy, GetRequestID(req.Context()))
		}))
		r.Post("/{id}/no-show", appointmentActionHandler(func(req *http.Request, id uuid.UUID, body AppointmentActionRequest) (*appointment.Appointment, error) {
			return cfg.Appointments.MarkNoShow(req.Context(), id, body.UpdatedBy, GetRequestID(req.Context()))
		}))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/reminders", recordReminderHandler(cfg.Appointments))
		r.Post("/{id}/provider", assignProviderHandler(cfg.Appointments))
		r.Post("/{id}/consent", recordConsentHandler(cfg.Appointments))
	})

	return r
}
