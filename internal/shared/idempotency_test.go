package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "idempotency_keys_pkey"}
	require.True(t, isUniqueViolation(dup))

	// pgx wraps driver errors, so detection must unwrap.
	require.True(t, isUniqueViolation(fmt.Errorf("insert idempotency key: %w", dup)))

	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isUniqueViolation(errors.New("connection reset")))
	require.False(t, isUniqueViolation(nil))
}

func TestIdempotencyStoreNilReceiver(t *testing.T) {
	ctx := context.Background()
	var store *IdempotencyStore

	err := store.CheckAndInsert(ctx, "key", "request.create")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrIdempotencyConflict)

	require.NoError(t, store.Delete(ctx, "key"))
	require.NoError(t, store.Cleanup(ctx, time.Hour))
}
