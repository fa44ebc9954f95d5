package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/ashita-ai/hikyaku/internal/model"
	"github.com/ashita-ai/hikyaku/migrations"
)

// SQLiteStore is the single-file delivery log backend.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is empty", ErrUnsupportedURL)
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases alive
	// for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := runMigrations(ctx, s, migrations.SQLite(), logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) RecordDelivery(ctx context.Context, d model.Delivery) error {
	return WithRetry(ctx, 3, 20*time.Millisecond, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO deliveries (id, recipient, sender, subject, body_length, status, message, trace_id, requested_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID.String(), d.Recipient, d.Sender, d.Subject, d.BodyLength,
			string(d.Status), d.Message, d.TraceID, d.RequestedBy, d.CreatedAt.UTC().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("storage: insert delivery: %w", err)
		}
		return nil
	})
}

const sqliteDeliveryColumns = `id, recipient, sender, subject, body_length, status, message, trace_id, requested_by, created_at`

func (s *SQLiteStore) RecentDeliveries(ctx context.Context, limit int) ([]model.Delivery, error) {
	limit = model.ClampLimit(limit, model.DefaultRecentDeliveries)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteDeliveryColumns+` FROM deliveries ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.Delivery, 0, limit)
	for rows.Next() {
		d, err := scanSQLiteDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate deliveries: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetDelivery(ctx context.Context, id uuid.UUID) (model.Delivery, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDeliveryColumns+` FROM deliveries WHERE id = ?`, id.String())
	d, err := scanSQLiteDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Delivery{}, ErrNotFound
	}
	return d, err
}

func (s *SQLiteStore) DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE created_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("storage: delete deliveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("storage: delete deliveries: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Backend() string { return "sqlite" }

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDelivery(r rowScanner) (model.Delivery, error) {
	var (
		d      model.Delivery
		id     string
		status string
		nanos  int64
	)
	if err := r.Scan(&id, &d.Recipient, &d.Sender, &d.Subject, &d.BodyLength,
		&status, &d.Message, &d.TraceID, &d.RequestedBy, &nanos); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Delivery{}, err
		}
		return model.Delivery{}, fmt.Errorf("storage: scan delivery: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return model.Delivery{}, fmt.Errorf("storage: scan delivery id: %w", err)
	}
	d.ID = parsed
	d.Status = model.DeliveryStatus(status)
	d.CreatedAt = time.Unix(0, nanos).UTC()
	return d, nil
}

func (s *SQLiteStore) ensureVersionTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`)
	return err
}

func (s *SQLiteStore) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (s *SQLiteStore) applyMigration(ctx context.Context, name, script string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version) VALUES (?) ON CONFLICT DO NOTHING`, name); err != nil {
		return err
	}
	return tx.Commit()
}
