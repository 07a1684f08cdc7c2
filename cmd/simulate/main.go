package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// simulate drives random command traffic against a running api-server:
// creating cases and appointments, then firing lifecycle commands at the
// accumulated aggregates. Conflicts are expected output, not failures; the
// point is to exercise the lock, the version CAS and the retry loop under
// contention.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	CreateRatio float64
	CaseRatio   float64
}

type idPool struct {
	mu           sync.RWMutex
	cases        []uuid.UUID
	appointments []uuid.UUID
}

func (p *idPool) addCase(id uuid.UUID) {
	p.mu.Lock()
	p.cases = append(p.cases, id)
	p.mu.Unlock()
}

func (p *idPool) addAppointment(id uuid.UUID) {
	p.mu.Lock()
	p.appointments = append(p.appointments, id)
	p.mu.Unlock()
}

func (p *idPool) randomCase(rng *rand.Rand) (uuid.UUID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.cases) == 0 {
		return uuid.Nil, false
	}
	return p.cases[rng.Intn(len(p.cases))], true
}

func (p *idPool) randomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.appointments) == 0 {
		return uuid.Nil, false
	}
	return p.appointments[rng.Intn(len(p.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64 // domain rejections: 409, 410, 422
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict || status == http.StatusGone || status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	sorted := make([]time.Duration, len(om.latencies))
	copy(sorted, om.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg = sum / time.Duration(len(sorted))
	p50 = sorted[len(sorted)*50/100]
	idx95 := len(sorted) * 95 / 100
	if idx95 >= len(sorted) {
		idx95 = len(sorted) - 1
	}
	p95 = sorted[idx95]
	return avg, p50, p95
}

type Metrics struct {
	CreateCase        OperationMetrics
	CaseCommand       OperationMetrics
	CreateAppointment OperationMetrics
	ApptCommand       OperationMetrics
	Read              OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    idPool
	client  *http.Client
	metrics Metrics
}

var caseCommands = []string{"start", "complete", "cancel", "hold", "resume"}
var apptCommands = []string{"confirm", "check-in", "start", "cancel", "no-show"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	log.Printf("config: base_url=%s duration=%s workers=%d create=%.2f case=%.2f",
		cfg.APIBaseURL, cfg.Duration, cfg.Workers, cfg.CreateRatio, cfg.CaseRatio)

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		CreateRatio: getFloat("SIM_CREATE_RATIO", 0.3),
		CaseRatio:   getFloat("SIM_CASE_RATIO", 0.5),
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("running for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		isCase := rng.Float64() < s.config.CaseRatio
		switch {
		case rng.Float64() < s.config.CreateRatio:
			if isCase {
				s.createCase(ctx)
			} else {
				s.createAppointment(ctx)
			}
		case rng.Float64() < 0.7:
			if isCase {
				s.caseCommand(ctx, rng)
			} else {
				s.appointmentCommand(ctx, rng)
			}
		default:
			s.read(ctx, rng, isCase)
		}
	}
}

func (s *Simulator) createCase(ctx context.Context) {
	body := map[string]any{
		"clinic_id":         uuid.New().String(),
		"lead_id":           uuid.New().String(),
		"treatment_plan_id": uuid.New().String(),
		"case_number":       gofakeit.Numerify("CASE-2026-######"),
		"total_cents":       int64(gofakeit.Number(200, 20000)) * 100,
		"currency":          "EUR",
		"created_by":        "simulator",
	}

	status, id, latency, err := s.post(ctx, "/cases", body)
	if err == nil && status == http.StatusCreated && id != uuid.Nil {
		s.pool.addCase(id)
	}
	s.metrics.CreateCase.Record(latency, status, err)
}

func (s *Simulator) createAppointment(ctx context.Context) {
	body := map[string]any{
		"patient_id":     uuid.New().String(),
		"clinic_id":      uuid.New().String(),
		"procedure_type": "consultation",
		"scheduled_for":  time.Now().UTC().Add(time.Duration(gofakeit.Number(1, 240)) * time.Hour).Format(time.RFC3339),
		"duration_min":   30,
		"requested_by":   "simulator",
	}

	status, id, latency, err := s.post(ctx, "/appointments", body)
	if err == nil && status == http.StatusCreated && id != uuid.Nil {
		s.pool.addAppointment(id)
	}
	s.metrics.CreateAppointment.Record(latency, status, err)
}

func (s *Simulator) caseCommand(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.randomCase(rng)
	if !ok {
		return
	}

	var path string
	var body map[string]any
	if rng.Float64() < 0.4 {
		path = fmt.Sprintf("/cases/%s/payments", id)
		body = map[string]any{
			"amount_cents": int64(gofakeit.Number(50, 2000)) * 100,
			"method":       "card",
			"updated_by":   "simulator",
		}
	} else {
		path = fmt.Sprintf("/cases/%s/%s", id, caseCommands[rng.Intn(len(caseCommands))])
		body = map[string]any{"updated_by": "simulator"}
	}

	status, _, latency, err := s.post(ctx, path, body)
	s.metrics.CaseCommand.Record(latency, status, err)
}

func (s *Simulator) appointmentCommand(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.randomAppointment(rng)
	if !ok {
		return
	}

	var path string
	var body map[string]any
	if rng.Float64() < 0.15 {
		path = fmt.Sprintf("/appointments/%s/reschedule", id)
		body = map[string]any{
			"new_scheduled_for": time.Now().UTC().Add(time.Duration(gofakeit.Number(24, 480)) * time.Hour).Format(time.RFC3339),
			"initiated_by":      "simulator",
		}
	} else {
		path = fmt.Sprintf("/appointments/%s/%s", id, apptCommands[rng.Intn(len(apptCommands))])
		body = map[string]any{"updated_by": "simulator"}
	}

	status, successor, latency, err := s.post(ctx, path, body)
	if err == nil && status == http.StatusCreated && successor != uuid.Nil {
		s.pool.addAppointment(successor)
	}
	s.metrics.ApptCommand.Record(latency, status, err)
}

func (s *Simulator) read(ctx context.Context, rng *rand.Rand, isCase bool) {
	var path string
	if isCase {
		id, ok := s.pool.randomCase(rng)
		if !ok {
			return
		}
		path = fmt.Sprintf("/cases/%s", id)
	} else {
		id, ok := s.pool.randomAppointment(rng)
		if !ok {
			return
		}
		path = fmt.Sprintf("/appointments/%s", id)
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
		resp.Body.Close()
	}
	s.metrics.Read.Record(latency, status, err)
}

// post sends a JSON command and returns the status and the id field of the
// response body when present.
func (s *Simulator) post(ctx context.Context, path string, body map[string]any) (int, uuid.UUID, time.Duration, error) {
	payload, _ := json.Marshal(body)

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, uuid.Nil, time.Since(start), err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, uuid.Nil, latency, err
	}
	defer resp.Body.Close()

	var out struct {
		ID uuid.UUID `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out.ID, latency, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 72))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("Duration: %s\nWorkers: %d\n\n", s.config.Duration, s.config.Workers)

	printOperationReport("Create case", &s.metrics.CreateCase)
	printOperationReport("Case command", &s.metrics.CaseCommand)
	printOperationReport("Create appointment", &s.metrics.CreateAppointment)
	printOperationReport("Appointment command", &s.metrics.ApptCommand)
	printOperationReport("Read", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	errs := atomic.LoadInt64(&om.Error)
	avg, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, float64(errs)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
