package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medqueue/opd-admission/internal/admission"
	"github.com/medqueue/opd-admission/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDemoProviders(context.Background(), pool); err != nil {
		log.Fatalf("seed demo providers: %v", err)
	}
	if err := seedRandomProviders(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed random providers: %v", err)
	}

	log.Println("seed complete")
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}

// standardDay is the default morning-to-afternoon template grid shared by
// the demo providers.
var standardDay = []admission.SlotTemplate{
	{Start: 9 * 60, End: 10 * 60, MaxCapacity: 10},
	{Start: 10 * 60, End: 11 * 60, MaxCapacity: 10},
	{Start: 11 * 60, End: 12 * 60, MaxCapacity: 8},
	{Start: 14 * 60, End: 15 * 60, MaxCapacity: 10},
	{Start: 15 * 60, End: 16 * 60, MaxCapacity: 10},
	{Start: 16 * 60, End: 17 * 60, MaxCapacity: 8},
}

// seedDemoProviders inserts a small fixed roster so the simulator and
// manual testing have known names to work with.
func seedDemoProviders(ctx context.Context, pool *pgxpool.Pool) error {
	demos := []struct {
		name string
		spec string
	}{
		{"Dr. Rajesh Kumar", "General Medicine"},
		{"Dr. Priya Sharma", "Pediatrics"},
		{"Dr. Amit Patel", "Orthopedics"},
	}

	for _, d := range demos {
		if err := insertProvider(ctx, pool, d.name, d.spec, standardDay); err != nil {
			return err
		}
	}

	log.Printf("demo providers seeded: %d", len(demos))
	return nil
}

func seedRandomProviders(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d random providers", count)

	specializations := []string{
		"General Medicine",
		"Dermatology",
		"Cardiology",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	for i := 0; i < count; i++ {
		name := "Dr. " + gofakeit.Name()
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]

		// random contiguous morning block, 3 to 6 one-hour slots
		startHour := gofakeit.Number(8, 10)
		slots := gofakeit.Number(3, 6)
		templates := make([]admission.SlotTemplate, 0, slots)
		for s := 0; s < slots; s++ {
			h := startHour + s
			templates = append(templates, admission.SlotTemplate{
				Start:       admission.MinuteOfDay(h * 60),
				End:         admission.MinuteOfDay((h + 1) * 60),
				MaxCapacity: gofakeit.Number(5, 12),
			})
		}

		if err := insertProvider(ctx, pool, name, spec, templates); err != nil {
			return err
		}
	}

	log.Println("random providers seeded")
	return nil
}

func insertProvider(ctx context.Context, pool *pgxpool.Pool, name, spec string, templates []admission.SlotTemplate) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	id := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO providers (id, name, specialization, working_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`, id, name, spec, weekdays)
	if err != nil {
		return err
	}

	for _, tpl := range templates {
		_, err := tx.Exec(ctx, `
			INSERT INTO slot_templates (provider_id, start_min, end_min, max_capacity)
			VALUES ($1, $2, $3, $4)
		`, id, int(tpl.Start), int(tpl.End), tpl.MaxCapacity)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
