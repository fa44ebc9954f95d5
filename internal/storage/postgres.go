package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashita-ai/hikyaku/internal/model"
	"github.com/ashita-ai/hikyaku/migrations"
)

// PostgresStore keeps the delivery log in PostgreSQL through a pgxpool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a connection pool for dsn, verifies it, and applies
// migrations.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "hikyaku"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := runMigrations(ctx, s, migrations.Postgres(), logger); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Pool returns the underlying connection pool.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PostgresStore) RecordDelivery(ctx context.Context, d model.Delivery) error {
	return WithRetry(ctx, 3, 20*time.Millisecond, func() error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO deliveries (id, recipient, sender, subject, body_length, status, message, trace_id, requested_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			d.ID, d.Recipient, d.Sender, d.Subject, d.BodyLength,
			string(d.Status), d.Message, d.TraceID, d.RequestedBy, d.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("storage: insert delivery: %w", err)
		}
		return nil
	})
}

const pgDeliveryColumns = `id, recipient, sender, subject, body_length, status, message, trace_id, requested_by, created_at`

func (s *PostgresStore) RecentDeliveries(ctx context.Context, limit int) ([]model.Delivery, error) {
	limit = model.ClampLimit(limit, model.DefaultRecentDeliveries)
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgDeliveryColumns+` FROM deliveries ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query deliveries: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanPgDelivery)
	if err != nil {
		return nil, fmt.Errorf("storage: scan deliveries: %w", err)
	}
	if out == nil {
		out = []model.Delivery{}
	}
	return out, nil
}

func (s *PostgresStore) GetDelivery(ctx context.Context, id uuid.UUID) (model.Delivery, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgDeliveryColumns+` FROM deliveries WHERE id = $1`, id)
	if err != nil {
		return model.Delivery{}, fmt.Errorf("storage: query delivery: %w", err)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanPgDelivery)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Delivery{}, ErrNotFound
	}
	if err != nil {
		return model.Delivery{}, fmt.Errorf("storage: scan delivery: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM deliveries WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage: delete deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Backend() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgDelivery(row pgx.CollectableRow) (model.Delivery, error) {
	var (
		d      model.Delivery
		status string
	)
	err := row.Scan(&d.ID, &d.Recipient, &d.Sender, &d.Subject, &d.BodyLength,
		&status, &d.Message, &d.TraceID, &d.RequestedBy, &d.CreatedAt)
	d.Status = model.DeliveryStatus(status)
	d.CreatedAt = d.CreatedAt.UTC()
	return d, err
}

func (s *PostgresStore) ensureVersionTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func (s *PostgresStore) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (s *PostgresStore) applyMigration(ctx context.Context, name, script string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, script); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name)
		return err
	})
}
