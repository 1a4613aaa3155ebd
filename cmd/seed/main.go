package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/smart-appointment-scheduling/internal/appointment"
	"github.com/hackgods/smart-appointment-scheduling/internal/config"
	"github.com/hackgods/smart-appointment-scheduling/internal/db"
	redisclient "github.com/hackgods/smart-appointment-scheduling/internal/redis"
	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedDoctors(context.Background(), pool, 100)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patients, err := seedPatients(context.Background(), pool, 9000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	reviewed, err := seedReviews(context.Background(), pool, doctors, patients, 1000)
	if err != nil {
		log.Fatalf("seed reviews: %v", err)
	}
	invalidateDoctors(context.Background(), cfg, pool, reviewed)

	log.Println("seed complete")
}

// workingHours picks one of a few realistic weekly templates.
func workingHours() ([]byte, error) {
	off := false
	tmpl := schedule.Template{
		"saturday": {IsWorking: &off},
		"sunday":   {IsWorking: &off},
	}

	switch gofakeit.Number(0, 2) {
	case 0:
		// clinic default every weekday
		return nil, nil
	case 1:
		early := schedule.DaySpec{Start: "07:00", End: "15:00", BreakStart: ptr("11:00"), BreakEnd: ptr("11:30")}
		for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
			tmpl[day] = early
		}
	default:
		late := schedule.DaySpec{Start: "12:00", End: "20:00", BreakStart: ptr("16:00"), BreakEnd: ptr("16:30")}
		tmpl["monday"] = late
		tmpl["wednesday"] = late
		tmpl["friday"] = schedule.DaySpec{IsWorking: &off}
	}

	return json.Marshal(tmpl)
}

func ptr(s string) *string { return &s }

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]appointment.DoctorRef, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	profiles := make([]appointment.DoctorRef, 0, count)
	for i := 0; i < count; i++ {
		userID := uuid.New()
		profileID := uuid.New()

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, username, email, created_at)
			VALUES ($1, $2, $3, now())
		`, userID, fmt.Sprintf("dr_%s_%d", gofakeit.Username(), i), fmt.Sprintf("doctor%d.%s", i, gofakeit.Email()))
		if err != nil {
			return nil, err
		}

		hours, err := workingHours()
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO doctor_profiles
				(id, user_id, full_name, specialization, consultation_fee, available_for_consultation, working_hours, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		`, profileID, userID,
			"Dr. "+gofakeit.Name(),
			specializations[gofakeit.Number(0, len(specializations)-1)],
			gofakeit.Price(50, 400),
			gofakeit.Number(0, 9) != 0,
			hours,
		)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, appointment.DoctorRef{ProfileID: profileID, UserID: userID})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return profiles, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, username, email, created_at)
				VALUES ($1, $2, $3, now())
			`, id, fmt.Sprintf("%s_%d", gofakeit.Username(), i), fmt.Sprintf("patient%d.%s", i, gofakeit.Email()))
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return ids, nil
}

// seedReviews inserts count reviews and returns the doctors whose rating
// may have changed.
func seedReviews(ctx context.Context, pool *pgxpool.Pool, doctors []appointment.DoctorRef, patients []uuid.UUID, count int) ([]appointment.DoctorRef, error) {
	if len(doctors) == 0 || len(patients) == 0 {
		return nil, nil
	}
	log.Printf("seeding %d reviews", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	touched := make(map[appointment.DoctorRef]struct{})
	for i := 0; i < count; i++ {
		doctor := doctors[gofakeit.Number(0, len(doctors)-1)]
		approved := gofakeit.Number(0, 4) != 0

		_, err := tx.Exec(ctx, `
			INSERT INTO doctor_reviews (id, doctor_profile_id, patient_id, rating, comment, is_approved, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`, uuid.New(),
			doctor.ProfileID,
			patients[gofakeit.Number(0, len(patients)-1)],
			gofakeit.Number(1, 5),
			fmt.Sprintf("%s visit, %s staff", gofakeit.Adjective(), gofakeit.Adjective()),
			approved,
		)
		if err != nil {
			return nil, err
		}
		if approved {
			touched[doctor] = struct{}{}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	out := make([]appointment.DoctorRef, 0, len(touched))
	for ref := range touched {
		out = append(out, ref)
	}
	log.Println("reviews seeded")
	return out, nil
}

// invalidateDoctors drops cached profiles of re-rated doctors so a running
// API server does not serve stale ratings. Redis being down is not fatal.
func invalidateDoctors(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, refs []appointment.DoctorRef) {
	if len(refs) == 0 {
		return
	}

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: 2,
	})
	if err != nil {
		log.Printf("skipping doctor cache invalidation: %v", err)
		return
	}
	defer rdb.Close()

	cached := appointment.NewCachedDoctors(appointment.NewPgRepository(pool),
		redisclient.NewCache(rdb, appointment.DoctorCachePrefix), cfg.DoctorCacheTTL, nil)
	for _, ref := range refs {
		if err := cached.Invalidate(ctx, ref); err != nil {
			log.Printf("invalidate doctor %s: %v", ref.ProfileID, err)
		}
	}
	log.Printf("doctor cache invalidated: %d profiles", len(refs))
}
