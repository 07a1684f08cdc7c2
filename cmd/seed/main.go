package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-backend/internal/appointment"
	"github.com/clinicore/clinic-backend/internal/bus"
	"github.com/clinicore/clinic-backend/internal/casefile"
	"github.com/clinicore/clinic-backend/internal/config"
	"github.com/clinicore/clinic-backend/internal/db"
	"github.com/clinicore/clinic-backend/internal/eventstore"
	"github.com/clinicore/clinic-backend/internal/logger"
)

// seed writes demo data straight through the domain services so every row in
// the store is a legal event stream, not hand-inserted state.

const (
	seedCases        = 200
	seedAppointments = 400
	seedActor        = "seed"
)

var procedureTypes = []string{
	"consultation",
	"cleaning",
	"filling",
	"root_canal",
	"extraction",
	"implant_placement",
	"orthodontic_adjustment",
	"whitening",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	// no redis and no lock: seeding is a single writer against a fresh store
	store := eventstore.NewPgStore(pool)
	caseSvc := casefile.NewService(store, store, bus.Nop{}, nil, log, cfg.SnapshotEvery)
	apptSvc := appointment.NewService(store, store, bus.Nop{}, nil, log, cfg.SnapshotEvery)

	clinics := make([]uuid.UUID, 5)
	for i := range clinics {
		clinics[i] = uuid.New()
	}

	if err := seedCaseStreams(ctx, caseSvc, clinics, log); err != nil {
		log.Fatal("seed cases", zap.Error(err))
	}
	if err := seedAppointmentStreams(ctx, apptSvc, clinics, log); err != nil {
		log.Fatal("seed appointments", zap.Error(err))
	}

	log.Info("seed complete",
		zap.Int("cases", seedCases),
		zap.Int("appointments", seedAppointments))
}

func seedCaseStreams(ctx context.Context, svc *casefile.Service, clinics []uuid.UUID, log *zap.Logger) error {
	log.Info("seeding cases", zap.Int("count", seedCases))

	for i := 0; i < seedCases; i++ {
		total := int64(gofakeit.Number(200, 20000)) * 100

		c, err := svc.Open(ctx, casefile.OpenParams{
			ClinicID:        clinics[gofakeit.Number(0, len(clinics)-1)],
			LeadID:          uuid.New(),
			TreatmentPlanID: uuid.New(),
			CaseNumber:      gofakeit.Numerify("CASE-2026-######"),
			TotalCents:      total,
			Currency:        "EUR",
			CreatedBy:       seedActor,
		})
		if err != nil {
			return err
		}

		// walk a random distance through the case lifecycle
		switch gofakeit.Number(0, 4) {
		case 0:
			// stays pending
		case 1:
			_, err = svc.Start(ctx, c.ID(), seedActor, "")
		case 2:
			if _, err = svc.Start(ctx, c.ID(), seedActor, ""); err == nil {
				_, err = svc.RecordPayment(ctx, c.ID(), total/2, "card", gofakeit.UUID(), seedActor, "")
			}
		case 3:
			if _, err = svc.Start(ctx, c.ID(), seedActor, ""); err == nil {
				if _, err = svc.RecordPayment(ctx, c.ID(), total, "transfer", gofakeit.UUID(), seedActor, ""); err == nil {
					_, err = svc.Complete(ctx, c.ID(), seedActor, "")
				}
			}
		case 4:
			_, err = svc.Cancel(ctx, c.ID(), "seeded cancellation", seedActor, "")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func seedAppointmentStreams(ctx context.Context, svc *appointment.Service, clinics []uuid.UUID, log *zap.Logger) error {
	log.Info("seeding appointments", zap.Int("count", seedAppointments))

	for i := 0; i < seedAppointments; i++ {
		providerID := uuid.New()
		scheduledFor := time.Now().UTC().Add(time.Duration(gofakeit.Number(1, 24*30)) * time.Hour)

		a, err := svc.Request(ctx, appointment.RequestParams{
			PatientID:     uuid.New(),
			ClinicID:      clinics[gofakeit.Number(0, len(clinics)-1)],
			ProcedureType: procedureTypes[gofakeit.Number(0, len(procedureTypes)-1)],
			ScheduledFor:  scheduledFor,
			DurationMin:   gofakeit.Number(2, 12) * 15,
			ProviderID:    &providerID,
			ProviderName:  gofakeit.Name(),
			RequestedBy:   seedActor,
		})
		if err != nil {
			return err
		}

		switch gofakeit.Number(0, 4) {
		case 0:
			// stays requested
		case 1:
			_, err = svc.Confirm(ctx, a.ID(), seedActor, "")
		case 2:
			if _, err = svc.Confirm(ctx, a.ID(), seedActor, ""); err == nil {
				if _, err = svc.CheckIn(ctx, a.ID(), seedActor, ""); err == nil {
					if _, err = svc.Start(ctx, a.ID(), seedActor, ""); err == nil {
						_, err = svc.Complete(ctx, a.ID(), gofakeit.Sentence(8), gofakeit.Number(15, 120), seedActor, "")
					}
				}
			}
		case 3:
			_, err = svc.Cancel(ctx, a.ID(), "seeded cancellation", seedActor, "")
		case 4:
			if _, err = svc.Confirm(ctx, a.ID(), seedActor, ""); err == nil {
				_, err = svc.Reschedule(ctx, a.ID(), scheduledFor.Add(48*time.Hour), seedActor, "")
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
