package pgxutil

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, true},
		{"deadlock wrapped", fmt.Errorf("update execution: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), true},
		{"unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestTxOptions(t *testing.T) {
	assert.Equal(t, pgx.TxOptions{}, txOptions(nil))
	assert.Equal(t, pgx.TxOptions{IsoLevel: pgx.Serializable},
		txOptions(&sql.TxOptions{Isolation: sql.LevelSerializable}))
	assert.Equal(t, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly},
		txOptions(&sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true}))
	assert.Equal(t, pgx.TxOptions{}, txOptions(&sql.TxOptions{}))
}
