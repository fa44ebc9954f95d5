// Package testutil provides shared test infrastructure for integration tests
// that need a real PostgreSQL server.
//
// Usage:
//
//	tc, err := testutil.StartPostgres(ctx)
//	if err != nil {
//	    t.Skipf("docker unavailable: %v", err)
//	}
//	t.Cleanup(tc.Terminate)
//	store, err := storage.OpenPostgres(ctx, tc.DSN, testutil.TestLogger())
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the image started by StartPostgres.
const PostgresImage = "postgres:17-alpine"

// TestContainer wraps a testcontainers container with a DSN for connecting.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgres starts a disposable PostgreSQL container. Unlike a TestMain
// helper it returns an error so callers can skip when Docker is missing.
func StartPostgres(ctx context.Context) (tc *TestContainer, err error) {
	// testcontainers panics when no Docker provider can be found.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("testutil: start container: %v", r)
		}
	}()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "hikyaku",
			"POSTGRES_PASSWORD": "hikyaku",
			"POSTGRES_DB":       "hikyaku",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: get container port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://hikyaku:hikyaku@%s:%s/hikyaku?sslmode=disable", host, port.Port())
	return &TestContainer{Container: container, DSN: dsn}, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
