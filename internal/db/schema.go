package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id             uuid PRIMARY KEY,
		name           text NOT NULL,
		specialization text NOT NULL,
		working_days   text[] NOT NULL DEFAULT '{}',
		created_at     timestamptz NOT NULL,
		updated_at     timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS slot_templates (
		provider_id  uuid NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		start_min    int NOT NULL,
		end_min      int NOT NULL,
		max_capacity int NOT NULL,
		PRIMARY KEY (provider_id, start_min, end_min)
	)`,
	`CREATE TABLE IF NOT EXISTS slot_instances (
		provider_id        uuid NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		date               text NOT NULL,
		start_min          int NOT NULL,
		end_min            int NOT NULL,
		max_capacity       int NOT NULL,
		current_count      int NOT NULL,
		reserved_emergency int NOT NULL,
		token_numbers      text[] NOT NULL DEFAULT '{}',
		status             text NOT NULL,
		created_at         timestamptz NOT NULL,
		updated_at         timestamptz NOT NULL,
		PRIMARY KEY (provider_id, date, start_min, end_min)
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		id                    uuid PRIMARY KEY,
		number                text NOT NULL UNIQUE,
		provider_id           uuid NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		patient_name          text NOT NULL,
		patient_age           int NOT NULL,
		channel               text NOT NULL,
		is_emergency          boolean NOT NULL,
		priority_rank         int NOT NULL,
		date                  text NOT NULL,
		start_min             int NOT NULL,
		end_min               int NOT NULL,
		status                text NOT NULL,
		estimated_service_min int NOT NULL,
		estimated_time        timestamptz NOT NULL,
		created_at            timestamptz NOT NULL,
		updated_at            timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tokens_provider_date_status_idx
		ON tokens (provider_id, date, status)`,
	`CREATE INDEX IF NOT EXISTS tokens_priority_idx
		ON tokens (provider_id, date, priority_rank, created_at)`,
}

// EnsureSchema creates all tables and indexes if they do not exist yet.
// Statements are idempotent so this is safe to run on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
