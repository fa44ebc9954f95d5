// Package storage persists the delivery log: one record per sendEmail
// attempt, never including the message body.
//
// Two backends are provided. SQLite (modernc.org/sqlite, no cgo) is the
// zero-setup default; PostgreSQL (pgxpool) serves shared deployments.
// NoopStore is used when the log is disabled.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/hikyaku/internal/model"
)

// Store is the delivery log. Implementations must be safe for concurrent use.
type Store interface {
	// RecordDelivery appends one delivery record.
	RecordDelivery(ctx context.Context, d model.Delivery) error
	// RecentDeliveries returns up to limit records, newest first.
	RecentDeliveries(ctx context.Context, limit int) ([]model.Delivery, error)
	// GetDelivery returns one record or ErrNotFound.
	GetDelivery(ctx context.Context, id uuid.UUID) (model.Delivery, error)
	// DeleteDeliveriesBefore removes records created before cutoff and
	// returns how many were removed.
	DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Backend names the implementation ("sqlite", "postgres", "disabled").
	Backend() string
	Close() error
}

// Open connects to the store named by rawURL and applies its migrations.
//
//	""                      -> NoopStore (log disabled)
//	sqlite://path/to/file.db -> SQLite (sqlite://:memory: for an in-memory db)
//	postgres://... / postgresql://... -> PostgreSQL
func Open(ctx context.Context, rawURL string, logger *slog.Logger) (Store, error) {
	switch {
	case rawURL == "":
		return NoopStore{}, nil
	case strings.HasPrefix(rawURL, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(rawURL, "sqlite://"), logger)
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return OpenPostgres(ctx, rawURL, logger)
	default:
		scheme, _, _ := strings.Cut(rawURL, "://")
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, scheme)
	}
}

// NoopStore discards records. Used when DATABASE_URL is empty.
type NoopStore struct{}

func (NoopStore) RecordDelivery(context.Context, model.Delivery) error { return nil }

func (NoopStore) RecentDeliveries(context.Context, int) ([]model.Delivery, error) {
	return []model.Delivery{}, nil
}

func (NoopStore) GetDelivery(context.Context, uuid.UUID) (model.Delivery, error) {
	return model.Delivery{}, ErrNotFound
}

func (NoopStore) DeleteDeliveriesBefore(context.Context, time.Time) (int64, error) { return 0, nil }
func (NoopStore) Ping(context.Context) error                                      { return nil }
func (NoopStore) Backend() string                                                 { return "disabled" }
func (NoopStore) Close() error                                                    { return nil }

// PruneDeliveries deletes records older than retention, measured from now.
// A non-positive retention keeps everything.
func PruneDeliveries(ctx context.Context, s Store, retention time.Duration, now time.Time) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := s.DeleteDeliveriesBefore(ctx, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("storage: prune deliveries: %w", err)
	}
	return n, nil
}
