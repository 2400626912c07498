package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/internal/db"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	TransitionRatio float64
	ReadRatio       float64
	PatientLimit    int
	ProviderLimit   int
	HotSlots        int // distinct (provider, slot) pairs workers compete for
	PostgresDSN     string
	Date            string
	Hours           appointment.WorkingHours
}

type target struct {
	ProviderID uuid.UUID
	Slot       string
}

// TargetStats counts outcomes of booking attempts against one slot.
type TargetStats struct {
	Created  atomic.Int64
	Conflict atomic.Int64
}

type DataPool struct {
	Patients     []uuid.UUID
	Providers    []uuid.UUID
	Targets      []target
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     atomic.Int64
	Success   atomic.Int64
	Conflict  atomic.Int64
	Error     atomic.Int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	om.Total.Add(1)
	switch {
	case success:
		om.Success.Add(1)
	case conflict:
		om.Conflict.Add(1)
	default:
		om.Error.Add(1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, worst time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	at := func(pct int) time.Duration {
		return latencies[min(len(latencies)*pct/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), at(50), at(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking    OperationMetrics
	Transition OperationMetrics
	ReadByID   OperationMetrics
	Slots      OperationMetrics
	Queue      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *logging.Logger

	targetStats map[target]*TargetStats
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(baseCfg.LogLevel).With("service", "simulate")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger.Info("simulator starting",
		"duration", cfg.Duration.String(),
		"workers", cfg.Workers,
		"date", cfg.Date,
		"hot_slots", cfg.HotSlots,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Error("load data pool", "error", err)
		os.Exit(1)
	}
	logger.Info("data loaded", "patients", len(dataPool.Patients), "providers", len(dataPool.Providers), "targets", len(dataPool.Targets))

	sim := &Simulator{
		config:      cfg,
		pool:        dataPool,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		targetStats: make(map[target]*TargetStats, len(dataPool.Targets)),
	}
	for _, t := range dataPool.Targets {
		sim.targetStats[t] = &TargetStats{}
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.6),
		TransitionRatio: getFloat("SIM_TRANSITION_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:    getInt("SIM_PATIENT_LIMIT", 4000),
		ProviderLimit:   getInt("SIM_PROVIDER_LIMIT", 10),
		HotSlots:        getInt("SIM_HOT_SLOTS", 20),
		PostgresDSN:     base.PostgresDSN,
		Date:            getEnv("SIM_DATE", appointment.DayOf(time.Now(), base.Location).AddDate(0, 0, 1).Format(appointment.DateLayout)),
		Hours: appointment.WorkingHours{
			Start:        base.WorkStart,
			End:          base.WorkEnd,
			SlotDuration: base.SlotDuration,
		},
	}

	total := cfg.BookingRatio + cfg.TransitionRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.TransitionRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotSlots <= 0 {
		return fmt.Errorf("SIM_HOT_SLOTS must be > 0")
	}
	if _, err := appointment.ParseDate(cfg.Date); err != nil {
		return fmt.Errorf("SIM_DATE: %w", err)
	}
	return nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	patients, err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	providers, err := loadIDs(ctx, pool, `SELECT id FROM providers ORDER BY id LIMIT $1`, cfg.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if len(patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers loaded")
	}

	grid := cfg.Hours.Grid()
	if len(grid) == 0 {
		return nil, fmt.Errorf("working hours produce no slots")
	}

	dp := &DataPool{Patients: patients, Providers: providers}
	for i := 0; i < cfg.HotSlots; i++ {
		dp.Targets = append(dp.Targets, target{
			ProviderID: providers[i%len(providers)],
			Slot:       grid[(i/len(providers))%len(grid)].String(),
		})
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.TransitionRatio:
			s.doTransition(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListSlots(ctx, rng)
			case 2:
				s.doQueueStatus(ctx)
			}
		}
	}
}

// send issues a request as an admin and returns the status code, decoding a
// JSON body into out when given.
func (s *Simulator) send(ctx context.Context, method, path string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Role", string(appointment.RoleAdmin))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	code, err := s.send(ctx, http.MethodPost, "/appointments", map[string]string{
		"patient_id":  patientID.String(),
		"provider_id": t.ProviderID.String(),
		"date":        s.config.Date,
		"time_slot":   t.Slot,
	}, &created)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success := err == nil && code == http.StatusCreated
	conflict := err == nil && code == http.StatusConflict
	if success {
		s.targetStats[t].Created.Add(1)
		if created.ID != uuid.Nil {
			s.pool.AddAppointment(created.ID)
		}
	}
	if conflict {
		s.targetStats[t].Conflict.Add(1)
	}
	s.metrics.Booking.Record(latency, success, conflict)
}

var simEvents = []appointment.Event{
	appointment.EventCheckIn,
	appointment.EventStart,
	appointment.EventComplete,
	appointment.EventCancel,
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	event := simEvents[rng.Intn(len(simEvents))]

	start := time.Now()
	code, err := s.send(ctx, http.MethodPost, "/appointments/"+id.String()+"/transitions",
		map[string]string{"event": string(event)}, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Transition.Record(time.Since(start), err == nil && code == http.StatusOK, err == nil && code == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	code, err := s.send(ctx, http.MethodGet, "/appointments/"+id.String(), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ReadByID.Record(time.Since(start), err == nil && code == http.StatusOK, false)
}

func (s *Simulator) doListSlots(ctx context.Context, rng *rand.Rand) {
	providerID := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	start := time.Now()
	code, err := s.send(ctx, http.MethodGet, "/providers/"+providerID.String()+"/slots?date="+s.config.Date, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Slots.Record(time.Since(start), err == nil && code == http.StatusOK, false)
}

func (s *Simulator) doQueueStatus(ctx context.Context) {
	start := time.Now()
	code, err := s.send(ctx, http.MethodGet, "/queue/status", nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Queue.Record(time.Since(start), err == nil && code == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	line := strings.Repeat("=", 80)
	fmt.Println("\n" + line)
	fmt.Println("SIMULATION REPORT")
	fmt.Println(line)
	fmt.Printf("Duration: %s  Workers: %d  Date: %s\n\n", s.config.Duration, s.config.Workers, s.config.Date)

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Transition", &s.metrics.Transition)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List slots", &s.metrics.Slots)
	printOperationReport("Queue status", &s.metrics.Queue)

	fmt.Println("Contended slots (created / slot_conflict):")
	violations := 0
	for _, t := range s.pool.Targets {
		st := s.targetStats[t]
		created := st.Created.Load()
		// A slot freed by a cancel can be booked again, so created > 1 is
		// only suspicious when nothing was cancelled.
		marker := ""
		if created > 1 && s.metrics.Transition.Total.Load() == 0 {
			marker = "  <-- double booking"
			violations++
		}
		fmt.Printf("  %s %s  %d / %d%s\n", t.ProviderID, t.Slot, created, st.Conflict.Load(), marker)
	}
	if violations > 0 {
		fmt.Printf("\n%d slot(s) were booked more than once\n", violations)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := om.Total.Load()
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	avg, p50, p95, worst := om.Stats()
	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d  Success: %.1f%%  Conflict: %.1f%%  Error: %.1f%%\n",
		total, pct(om.Success.Load()), pct(om.Conflict.Load()), pct(om.Error.Load()))
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), worst.Round(time.Millisecond))
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
