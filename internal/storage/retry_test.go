package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWithRetry(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001"}

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return serialization
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after maxRetries", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
			calls++
			return serialization
		})
		assert.ErrorIs(t, err, serialization)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, 3, time.Second, func() error { return serialization })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, isRetriable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isRetriable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetriable(errors.New("plain")))
}
