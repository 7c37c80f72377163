package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPostgresConfig(t *testing.T) {
	cfg := DefaultPostgresConfig()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "busmate", cfg.Database)
	assert.Equal(t, int32(25), cfg.MaxConns)
	assert.Empty(t, cfg.Password)
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := &PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "busmate", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=busmate sslmode=require", cfg.DSN())
}

func TestNewPostgres_Unreachable(t *testing.T) {
	cfg := DefaultPostgresConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.MaxRetries = 0
	cfg.ConnectTimeout = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewPostgres(ctx, cfg)
	assert.Error(t, err)
}

// fakeTx records commit/rollback; only the methods WithTx touches are implemented.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(ctx context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	tx  *fakeTx
	err error
}

func (b *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		b := &fakeBeginner{tx: &fakeTx{}}
		require.NoError(t, WithTx(ctx, b, func(tx pgx.Tx) error { return nil }))
		assert.True(t, b.tx.committed)
		assert.False(t, b.tx.rolledBack)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		sentinel := errors.New("boom")
		b := &fakeBeginner{tx: &fakeTx{}}
		err := WithTx(ctx, b, func(tx pgx.Tx) error { return sentinel })
		assert.ErrorIs(t, err, sentinel)
		assert.False(t, b.tx.committed)
		assert.True(t, b.tx.rolledBack)
	})

	t.Run("begin failure", func(t *testing.T) {
		b := &fakeBeginner{err: errors.New("pool closed")}
		err := WithTx(ctx, b, func(tx pgx.Tx) error { return nil })
		assert.ErrorContains(t, err, "failed to begin transaction")
	})

	t.Run("commit failure", func(t *testing.T) {
		b := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("serialization")}}
		err := WithTx(ctx, b, func(tx pgx.Tx) error { return nil })
		assert.ErrorContains(t, err, "failed to commit transaction")
	})
}
