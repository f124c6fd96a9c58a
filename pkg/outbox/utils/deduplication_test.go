package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubTx struct {
	pgx.Tx
	execErr   error
	committed bool
}

func (t *stubTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), t.execErr
}

func (t *stubTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	return nil
}

type stubPool struct{ tx *stubTx }

func (p *stubPool) Begin(context.Context) (pgx.Tx, error) { return p.tx, nil }

func TestProcessWithDeduplication_RunsOnce(t *testing.T) {
	tx := &stubTx{}
	calls := 0

	err := ProcessWithDeduplication(context.Background(), &stubPool{tx: tx}, zap.NewNop(), 7, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, tx.committed)
}

func TestProcessWithDeduplication_SkipsDuplicate(t *testing.T) {
	tx := &stubTx{execErr: &pgconn.PgError{Code: "23505"}}
	calls := 0

	err := ProcessWithDeduplication(context.Background(), &stubPool{tx: tx}, zap.NewNop(), 7, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.False(t, tx.committed)
}

func TestProcessWithDeduplication_RetriesThenFails(t *testing.T) {
	tx := &stubTx{}
	calls := 0
	boom := errors.New("smtp down")

	err := ProcessWithDeduplication(context.Background(), &stubPool{tx: tx}, zap.NewNop(), 9, func(context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, deliveryAttempts, calls)
	assert.False(t, tx.committed)
}

func TestProcessWithDeduplication_ClaimError(t *testing.T) {
	tx := &stubTx{execErr: errors.New("connection reset")}

	err := ProcessWithDeduplication(context.Background(), &stubPool{tx: tx}, zap.NewNop(), 1, func(context.Context) error {
		t.Fatal("action must not run")
		return nil
	})
	assert.Error(t, err)
}
