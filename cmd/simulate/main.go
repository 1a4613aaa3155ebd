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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/smart-appointment-scheduling/internal/config"
	"github.com/hackgods/smart-appointment-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	DoctorLimit  int
	PostgresDSN  string
}

type doctorRef struct {
	ProfileID uuid.UUID
	UserID    uuid.UUID
}

// target is the slot every booking worker currently races for.
type target struct {
	Doctor doctorRef
	At     string
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []doctorRef

	mu           sync.RWMutex
	appointments []uuid.UUID
	current      *target
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

// TakeAppointment removes and returns a random booked appointment.
func (dp *DataPool) TakeAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	idx := rng.Intn(len(dp.appointments))
	id := dp.appointments[idx]
	dp.appointments[idx] = dp.appointments[len(dp.appointments)-1]
	dp.appointments = dp.appointments[:len(dp.appointments)-1]
	return id, true
}

func (dp *DataPool) Target() *target {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return dp.current
}

// Retarget replaces old with next unless another worker already did.
func (dp *DataPool) Retarget(old, next *target) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if dp.current == old {
		dp.current = next
	}
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking          OperationMetrics
	Cancel           OperationMetrics
	Availability     OperationMetrics
	UserAppointments OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.CancelRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors", len(dataPool.Patients), len(dataPool.Doctors))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()

	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCheck()
	if err := checkDoubleBookings(checkCtx, pgPool); err != nil {
		log.Fatalf("double booking check: %v", err)
	}
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.4),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 20),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT u.id FROM users u
		WHERE NOT EXISTS (SELECT 1 FROM doctor_profiles dp WHERE dp.user_id = u.id)
		LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, user_id FROM doctor_profiles
		WHERE available_for_consultation
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var d doctorRef
		if err := rows.Scan(&d.ProfileID, &d.UserID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

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

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doContendedBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.CancelRatio {
				s.doCancel(ctx, rng)
			} else if rng.Intn(2) == 0 {
				s.doAvailability(ctx, rng)
			} else {
				s.doUserAppointments(ctx, rng)
			}
		}
	}
}

// nextTarget asks the API for the first open slot of a random doctor.
func (s *Simulator) nextTarget(ctx context.Context, rng *rand.Rand) *target {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/appointments/availability/%s?days_ahead=7", s.config.APIBaseURL, doctor.ProfileID), nil)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var body struct {
		Availability map[string][]struct {
			Datetime string `json:"datetime"`
		} `json:"availability"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil
	}

	dates := make([]string, 0, len(body.Availability))
	for d := range body.Availability {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	cutoff := time.Now().Add(time.Hour)
	for _, d := range dates {
		for _, slot := range body.Availability[d] {
			at, err := time.Parse(time.RFC3339, slot.Datetime)
			if err != nil || at.Before(cutoff) {
				continue
			}
			return &target{Doctor: doctor, At: slot.Datetime}
		}
	}
	return nil
}

// doContendedBooking sends every worker at the same doctor and slot. Once the
// slot is gone the first worker to notice moves everyone to a new one.
func (s *Simulator) doContendedBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Target()
	if t == nil {
		next := s.nextTarget(ctx, rng)
		if next == nil {
			return
		}
		s.pool.Retarget(nil, next)
		if t = s.pool.Target(); t == nil {
			return
		}
	}

	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	body, _ := json.Marshal(map[string]string{
		"user_id":          patientID.String(),
		"doctor_id":        t.Doctor.ProfileID.String(),
		"appointment_date": t.At,
		"appointment_type": "consultation",
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments/book", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var booked struct {
				Appointment struct {
					ID uuid.UUID `json:"id"`
				} `json:"appointment"`
			}
			if json.NewDecoder(resp.Body).Decode(&booked) == nil && booked.Appointment.ID != uuid.Nil {
				s.pool.AddAppointment(booked.Appointment.ID)
			}
			s.pool.Retarget(t, s.nextTarget(ctx, rng))
		case http.StatusConflict:
			conflict = true
			var rejected struct {
				Code string `json:"code"`
			}
			if json.NewDecoder(resp.Body).Decode(&rejected) == nil && rejected.Code == "slot_unavailable" {
				s.pool.Retarget(t, s.nextTarget(ctx, rng))
			}
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]string{"reason": "simulated cancellation"})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, apptID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict {
			// inside the cutoff, or already cancelled
			conflict = true
		}
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	date := time.Now().AddDate(0, 0, rng.Intn(7)+1).Format(time.DateOnly)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/appointments/availability/%s?date=%s", s.config.APIBaseURL, doctor.ProfileID, date), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Availability.Record(latency, success, false)
}

func (s *Simulator) doUserAppointments(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/appointments/user/%s/appointments?upcoming_only=true&per_page=20", s.config.APIBaseURL, patientID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.UserAppointments.Record(latency, success, false)
}

// checkDoubleBookings fails when any doctor holds two active appointments at
// the same start time.
func checkDoubleBookings(ctx context.Context, pool *pgxpool.Pool) error {
	var duplicates int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT doctor_user_id, scheduled_at
			FROM appointments
			WHERE status IN ('scheduled', 'confirmed', 'rescheduled')
			GROUP BY doctor_user_id, scheduled_at
			HAVING count(*) > 1
		) d
	`).Scan(&duplicates)
	if err != nil {
		return err
	}
	if duplicates > 0 {
		return fmt.Errorf("%d doctor slots are double booked", duplicates)
	}
	fmt.Println("Double bookings: 0")
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Contended booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("User appointments", &s.metrics.UserAppointments)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
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
