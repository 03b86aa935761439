package admission

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialization,
		&p.WorkingDays,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanSlot(row pgx.Row) (*SlotInstance, error) {
	var s SlotInstance
	var date string
	var start, end int

	err := row.Scan(
		&s.Key.ProviderID,
		&date,
		&start,
		&end,
		&s.MaxCapacity,
		&s.CurrentCount,
		&s.ReservedEmergency,
		&s.TokenNumbers,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Key.Date = Date(date)
	s.Key.Start = MinuteOfDay(start)
	s.Key.End = MinuteOfDay(end)
	return &s, nil
}

func scanToken(row pgx.Row) (*Token, error) {
	var t Token
	var date string
	var start, end int

	err := row.Scan(
		&t.ID,
		&t.Number,
		&t.PatientName,
		&t.PatientAge,
		&t.ProviderID,
		&date,
		&start,
		&end,
		&t.Channel,
		&t.PriorityRank,
		&t.Status,
		&t.EstimatedServiceMin,
		&t.EstimatedTime,
		&t.IsEmergency,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	t.Date = Date(date)
	t.Start = MinuteOfDay(start)
	t.End = MinuteOfDay(end)
	return &t, nil
}

const tokenColumns = `id, number, patient_name, patient_age, provider_id, date, start_min, end_min,
		channel, priority_rank, status, estimated_service_min, estimated_time, is_emergency,
		created_at, updated_at`

const slotColumns = `provider_id, date, start_min, end_min, max_capacity, current_count,
		reserved_emergency, token_numbers, status, created_at, updated_at`

func (r *PgRepository) loadTemplates(ctx context.Context, providerID uuid.UUID) ([]SlotTemplate, error) {
	rows, err := r.pool.Query(ctx, templateQuery, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SlotTemplate
	for rows.Next() {
		var start, end, capacity int
		if err := rows.Scan(&start, &end, &capacity); err != nil {
			return nil, err
		}
		out = append(out, SlotTemplate{Start: MinuteOfDay(start), End: MinuteOfDay(end), MaxCapacity: capacity})
	}
	return out, rows.Err()
}

const templateQuery = `
	SELECT start_min, end_min, max_capacity
	FROM slot_templates
	WHERE provider_id = $1
	ORDER BY start_min
`

// Interface methods

func (r *PgRepository) CreateProvider(ctx context.Context, p *Provider) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO providers (id, name, specialization, working_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Name, p.Specialization, p.WorkingDays, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}

	for _, tpl := range p.Templates {
		_, err = tx.Exec(ctx, `
			INSERT INTO slot_templates (provider_id, start_min, end_min, max_capacity)
			VALUES ($1, $2, $3, $4)
		`, p.ID, int(tpl.Start), int(tpl.End), tpl.MaxCapacity)
		if err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialization, working_days, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	p, err := scanProvider(row)
	if err != nil {
		return nil, err
	}

	p.Templates, err = r.loadTemplates(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return p, nil
}

func (r *PgRepository) ListProviders(ctx context.Context, specialization string) ([]Provider, error) {
	query := `
		SELECT id, name, specialization, working_days, created_at, updated_at
		FROM providers
		ORDER BY id
	`
	args := []any{}
	if specialization != "" {
		query = `
			SELECT id, name, specialization, working_days, created_at, updated_at
			FROM providers
			WHERE specialization = $1
			ORDER BY id
		`
		args = append(args, specialization)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		result[i].Templates, err = r.loadTemplates(ctx, result[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
	}
	return result, nil
}

func (r *PgRepository) ListPeers(ctx context.Context, specialization string, exclude uuid.UUID, limit int) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialization, working_days, created_at, updated_at
		FROM providers
		WHERE specialization = $1
		  AND id <> $2
		ORDER BY id
		LIMIT $3
	`, specialization, exclude, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) ReplaceTemplates(ctx context.Context, providerID uuid.UUID, templates []SlotTemplate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM slot_templates WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("clear templates: %w", err)
	}
	for _, tpl := range templates {
		_, err = tx.Exec(ctx, `
			INSERT INTO slot_templates (provider_id, start_min, end_min, max_capacity)
			VALUES ($1, $2, $3, $4)
		`, providerID, int(tpl.Start), int(tpl.End), tpl.MaxCapacity)
		if err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE providers SET updated_at = now() WHERE id = $1`, providerID); err != nil {
		return fmt.Errorf("touch provider: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetSlotInstance(ctx context.Context, key SlotKey) (*SlotInstance, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slot_instances
		WHERE provider_id = $1 AND date = $2 AND start_min = $3 AND end_min = $4
	`, key.ProviderID, string(key.Date), int(key.Start), int(key.End))
	return scanSlot(row)
}

func (r *PgRepository) ListSlotInstances(ctx context.Context, providerID uuid.UUID, date Date) ([]SlotInstance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slot_instances
		WHERE provider_id = $1 AND date = $2
		ORDER BY start_min
	`, providerID, string(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SlotInstance
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) DeleteSlotInstances(ctx context.Context, providerID uuid.UUID, date Date) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM slot_instances
		WHERE provider_id = $1 AND date = $2
	`, providerID, string(date))
	if err != nil {
		return fmt.Errorf("delete slot instances: %w", err)
	}
	return nil
}

func upsertSlot(ctx context.Context, tx pgx.Tx, s *SlotInstance) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO slot_instances (provider_id, date, start_min, end_min, max_capacity,
			current_count, reserved_emergency, token_numbers, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (provider_id, date, start_min, end_min) DO UPDATE SET
			current_count = EXCLUDED.current_count,
			token_numbers = EXCLUDED.token_numbers,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, s.Key.ProviderID, string(s.Key.Date), int(s.Key.Start), int(s.Key.End), s.MaxCapacity,
		s.CurrentCount, s.ReservedEmergency, s.TokenNumbers, s.Status, s.CreatedAt, s.UpdatedAt)
	return err
}

func insertToken(ctx context.Context, tx pgx.Tx, t *Token) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, t.ID, t.Number, t.PatientName, t.PatientAge, t.ProviderID, string(t.Date),
		int(t.Start), int(t.End), t.Channel, t.PriorityRank, t.Status,
		t.EstimatedServiceMin, t.EstimatedTime, t.IsEmergency, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateToken
		}
	}
	return err
}

func updateToken(ctx context.Context, tx pgx.Tx, t *Token) error {
	_, err := tx.Exec(ctx, `
		UPDATE tokens
		SET status = $2,
		    estimated_time = $3,
		    updated_at = $4
		WHERE id = $1
	`, t.ID, t.Status, t.EstimatedTime, t.UpdatedAt)
	return err
}

func (r *PgRepository) SaveAdmission(ctx context.Context, slot *SlotInstance, token *Token) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := upsertSlot(ctx, tx, slot); err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}
	if err := insertToken(ctx, tx, token); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) SaveRelease(ctx context.Context, slot *SlotInstance, token *Token) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := upsertSlot(ctx, tx, slot); err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}
	if err := updateToken(ctx, tx, token); err != nil {
		return fmt.Errorf("update token: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) SaveToken(ctx context.Context, token *Token) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tokens
		SET status = $2,
		    estimated_time = $3,
		    updated_at = $4
		WHERE id = $1
	`, token.ID, token.Status, token.EstimatedTime, token.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	return nil
}

func (r *PgRepository) SaveSlotInstance(ctx context.Context, slot *SlotInstance) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := upsertSlot(ctx, tx, slot); err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PgRepository) GetTokenByID(ctx context.Context, id uuid.UUID) (*Token, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE id = $1
	`, id)
	return scanToken(row)
}

func (r *PgRepository) ListTokens(ctx context.Context, f TokenFilter) ([]Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE provider_id = $1
	`
	args := []any{f.ProviderID}

	if f.Date != "" {
		args = append(args, string(f.Date))
		query += ` AND date = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY priority_rank, created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}
