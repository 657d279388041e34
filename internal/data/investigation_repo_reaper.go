package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/data/pgxutil"
	"github.com/target/mmk-investigations/internal/domain/model"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
const (
	advisoryLockReaperMajor     = 1000
	advisoryLockReaperFailStale = 1
)

// FailStale marks open investigations that have not been updated within MaxAge as failed,
// closing their open execution records, and returns the failed ids. It recovers investigations
// orphaned by a coordinator that died mid-run. Concurrent reapers skip the batch when another
// holds the advisory lock.
func (r *InvestigationRepo) FailStale(ctx context.Context, p core.FailStaleParams) ([]string, error) {
	if p.MaxAge <= 0 {
		return nil, errors.New("max age must be greater than zero")
	}
	if p.BatchSize <= 0 {
		return nil, errors.New("batch size must be greater than zero")
	}
	summary, err := json.Marshal(model.InvestigationSummary{Error: p.Reason, ErrorClass: model.ErrorClassAborted})
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}

	var reaped []string
	err = pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if lockErr := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
				advisoryLockReaperMajor, advisoryLockReaperFailStale).Scan(&locked); lockErr != nil {
				return fmt.Errorf("acquire advisory lock: %w", lockErr)
			}
			if !locked {
				return nil
			}

			now := r.timeProvider.Now().UTC()
			cutoff := now.Add(-p.MaxAge)

			rows, queryErr := tx.QueryContext(ctx, `
				WITH stale AS (
					SELECT id FROM investigations
					WHERE status IN ('pending', 'running')
					  AND updated_at < $2
					ORDER BY updated_at
					LIMIT $3
					FOR UPDATE SKIP LOCKED
				), skipped AS (
					UPDATE investigation_executions e
					SET status = 'skipped', updated_at = $1, finished_at = $1
					FROM stale
					WHERE e.investigation_id = stale.id AND e.status = 'pending'
				), aborted AS (
					UPDATE investigation_executions e
					SET status = 'failed',
					    updated_at = $1,
					    finished_at = $1,
					    error_message = $4,
					    error_class = $5
					FROM stale
					WHERE e.investigation_id = stale.id AND e.status = 'running'
				)
				UPDATE investigations i
				SET status = 'failed',
				    summary = $6::jsonb,
				    updated_at = $1,
				    completed_at = $1
				FROM stale
				WHERE i.id = stale.id
				RETURNING i.id
			`, now, cutoff, p.BatchSize, p.Reason, model.ErrorClassAborted, string(summary))
			if queryErr != nil {
				return fmt.Errorf("fail stale investigations: %w", queryErr)
			}
			defer rows.Close()
			for rows.Next() {
				var id string
				if scanErr := rows.Scan(&id); scanErr != nil {
					return fmt.Errorf("scan reaped id: %w", scanErr)
				}
				reaped = append(reaped, id)
			}
			return rows.Err()
		},
	})
	if err != nil {
		return nil, err
	}
	if len(reaped) > 0 {
		r.logger.InfoContext(ctx, "failed stale investigations", "count", len(reaped), "max_age", p.MaxAge)
	}
	return reaped, nil
}
