package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/internal/db"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

var departments = []string{
	"General",
	"Cardiology",
	"Dermatology",
	"Orthopedics",
	"Neurology",
	"Pediatrics",
	"Ophthalmology",
	"ENT",
}

func main() {
	providers := flag.Int("providers", 40, "number of providers to create")
	patients := flag.Int("patients", 5000, "number of patients to create")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel).With("service", "seed")
	logger.Info("seed starting", "providers", *providers, "patients", *patients)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	faker := gofakeit.New(0)

	if err := seedProviders(context.Background(), pool, faker, *providers, logger); err != nil {
		logger.Error("seed providers", "error", err)
		os.Exit(1)
	}
	if err := seedPatients(context.Background(), pool, faker, *patients, logger); err != nil {
		logger.Error("seed patients", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *logging.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		dept := departments[i%len(departments)]
		email := faker.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, department, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, uuid.New(), "Dr. "+faker.LastName(), dept, email)
		if err != nil {
			return fmt.Errorf("insert provider: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info("providers seeded", "count", count, "departments", len(departments))
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *logging.Logger) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			var phone *string
			if faker.Bool() {
				p := faker.Phone()
				phone = &p
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), faker.Name(), faker.Email(), phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("insert patient: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info("patients seeded", "done", end, "total", count)
	}
	return nil
}
