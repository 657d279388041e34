package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/data/pgxutil"
	"github.com/target/mmk-investigations/internal/domain/model"
)

var executionStatuses = []model.ExecutionStatus{
	model.ExecutionStatusPending,
	model.ExecutionStatusRunning,
	model.ExecutionStatusSuccess,
	model.ExecutionStatusFailed,
	model.ExecutionStatusSkipped,
}

// allowedFrom lists the record statuses that may move to the given status.
func allowedFrom(to model.ExecutionStatus) []string {
	out := make([]string, 0, len(executionStatuses))
	for _, s := range executionStatuses {
		if s.CanTransitionTo(to) {
			out = append(out, string(s))
		}
	}
	return out
}

// lockInvestigation takes the row lock that serializes every write to one investigation
// and returns its current status.
func lockInvestigation(ctx context.Context, tx pgx.Tx, id string) (model.InvestigationStatus, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM investigations WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", core.ErrInvestigationNotFound
	}
	if err != nil {
		return "", err
	}
	return model.InvestigationStatus(status), nil
}

func checkTransition(from, to model.InvestigationStatus) error {
	if from.IsTerminal() {
		return core.ErrInvestigationTerminal
	}
	if !from.CanTransitionTo(to) {
		return core.ErrInvalidTransition
	}
	return nil
}

// MarkRunning moves a pending investigation to running.
func (r *InvestigationRepo) MarkRunning(ctx context.Context, id string) error {
	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			cur, err := lockInvestigation(ctx, tx, id)
			if err != nil {
				return err
			}
			if err = checkTransition(cur, model.InvestigationStatusRunning); err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`UPDATE investigations SET status = 'running', updated_at = $2 WHERE id = $1`, id, now)
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("mark investigation %s running: %w", id, err)
	}
	return nil
}

// UpdateExecution applies a monotonic status change to one record. The conditional UPDATE
// is what makes the first terminal write win; later writers see zero affected rows.
func (r *InvestigationRepo) UpdateExecution(ctx context.Context, p core.UpdateExecutionParams) (bool, error) {
	if !p.Status.Valid() || p.Status == model.ExecutionStatusPending {
		return false, fmt.Errorf("update execution: invalid status %q", p.Status)
	}
	now := r.timeProvider.Now().UTC()
	fields := resultFields(p.Result)

	applied := false
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			cur, err := lockInvestigation(ctx, tx, p.InvestigationID)
			if err != nil {
				return err
			}
			if cur.IsTerminal() {
				return core.ErrInvestigationTerminal
			}

			var finishedAt *time.Time
			if p.Status.IsTerminal() {
				finishedAt = &now
			}
			tag, err := tx.Exec(ctx, `
				UPDATE investigation_executions
				SET status = $3,
				    updated_at = $4,
				    finished_at = COALESCE($5, finished_at),
				    duration_ms = COALESCE($6, duration_ms),
				    cpu_percent = COALESCE($7, cpu_percent),
				    memory_mb = COALESCE($8, memory_mb),
				    confidence = COALESCE($9, confidence),
				    data = COALESCE($10::jsonb, data),
				    error_message = COALESCE($11, error_message),
				    error_class = COALESCE($12, error_class)
				WHERE investigation_id = $1
				  AND capability = $2
				  AND status = ANY($13::text[])`,
				p.InvestigationID, p.Capability, string(p.Status), now, finishedAt,
				fields.durationMs, fields.cpuPercent, fields.memoryMB, fields.confidence,
				fields.data, fields.errorMessage, fields.errorClass,
				allowedFrom(p.Status),
			)
			if err != nil {
				return fmt.Errorf("update execution: %w", err)
			}
			if tag.RowsAffected() == 0 {
				var exists bool
				if err = tx.QueryRow(ctx, `
					SELECT EXISTS(
						SELECT 1 FROM investigation_executions
						WHERE investigation_id = $1 AND capability = $2
					)`, p.InvestigationID, p.Capability).Scan(&exists); err != nil {
					return err
				}
				if !exists {
					return core.ErrExecutionNotFound
				}
				return nil
			}
			applied = true
			_, err = tx.Exec(ctx, `UPDATE investigations SET updated_at = $2 WHERE id = $1`, p.InvestigationID, now)
			return err
		},
	})
	if err != nil {
		return false, fmt.Errorf("update execution %s/%s: %w", p.InvestigationID, p.Capability, err)
	}
	return applied, nil
}

type execFields struct {
	durationMs   *int64
	cpuPercent   *float64
	memoryMB     *float64
	confidence   *float64
	data         *string
	errorMessage *string
	errorClass   *string
}

func resultFields(res *model.CapabilityResult) execFields {
	var f execFields
	if res == nil {
		return f
	}
	d := res.Metrics.DurationMs
	f.durationMs = &d
	f.cpuPercent = res.Metrics.CPUPercent
	f.memoryMB = res.Metrics.MemoryMB
	f.confidence = res.Confidence
	if len(res.Data) > 0 && json.Valid(res.Data) {
		s := string(res.Data)
		f.data = &s
	}
	if res.Error != "" {
		msg := res.Error
		f.errorMessage = &msg
	}
	if res.ErrorClass != "" {
		class := res.ErrorClass
		f.errorClass = &class
	}
	return f
}

// Finalize closes open records and moves the investigation to a terminal status in one transaction.
func (r *InvestigationRepo) Finalize(ctx context.Context, p core.FinalizeParams) error {
	if !p.Status.IsTerminal() {
		return fmt.Errorf("finalize investigation %s: %w", p.InvestigationID, core.ErrInvalidTransition)
	}
	now := r.timeProvider.Now().UTC()
	var summary *string
	if len(p.Summary) > 0 {
		s := string(p.Summary)
		summary = &s
	}

	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			cur, err := lockInvestigation(ctx, tx, p.InvestigationID)
			if err != nil {
				return err
			}
			if err = checkTransition(cur, p.Status); err != nil {
				return err
			}
			if p.Status == model.InvestigationStatusCompleted {
				var open int
				if err = tx.QueryRow(ctx, `
					SELECT count(*) FROM investigation_executions
					WHERE investigation_id = $1 AND status IN ('pending', 'running')`,
					p.InvestigationID).Scan(&open); err != nil {
					return err
				}
				if open > 0 {
					return fmt.Errorf("open execution records: %w", core.ErrInvalidTransition)
				}
			}
			if err = closeOpenExecutions(ctx, tx, p.InvestigationID, p.CloseReason, now); err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				UPDATE investigations
				SET status = $2,
				    summary = $3::jsonb,
				    report_ref = COALESCE($4, report_ref),
				    updated_at = $5,
				    completed_at = $5
				WHERE id = $1`,
				p.InvestigationID, string(p.Status), summary, p.ReportRef, now)
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("finalize investigation %s: %w", p.InvestigationID, err)
	}
	return nil
}

// closeOpenExecutions marks pending records skipped and running records failed.
func closeOpenExecutions(ctx context.Context, tx pgx.Tx, investigationID, reason string, now time.Time) error {
	if _, err := tx.Exec(ctx, `
		UPDATE investigation_executions
		SET status = 'skipped', updated_at = $2, finished_at = $2
		WHERE investigation_id = $1 AND status = 'pending'`, investigationID, now); err != nil {
		return fmt.Errorf("skip pending executions: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE investigation_executions
		SET status = 'failed',
		    updated_at = $2,
		    finished_at = $2,
		    error_message = $3,
		    error_class = $4
		WHERE investigation_id = $1 AND status = 'running'`,
		investigationID, now, reason, model.ErrorClassAborted); err != nil {
		return fmt.Errorf("abort running executions: %w", err)
	}
	return nil
}

// SaveReport stores the generated report text. Reports are written before the investigation
// is finalized, so a terminal investigation rejects the write.
func (r *InvestigationRepo) SaveReport(ctx context.Context, investigationID, body string) error {
	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			cur, err := lockInvestigation(ctx, tx, investigationID)
			if err != nil {
				return err
			}
			if cur.IsTerminal() {
				return core.ErrInvestigationTerminal
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO investigation_reports (investigation_id, body, created_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (investigation_id) DO UPDATE SET body = EXCLUDED.body, created_at = EXCLUDED.created_at`,
				investigationID, body, now)
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("save report %s: %w", investigationID, err)
	}
	return nil
}

// GetReport returns the stored report text.
func (r *InvestigationRepo) GetReport(ctx context.Context, investigationID string) (string, error) {
	var body string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT body FROM investigation_reports WHERE investigation_id = $1`, investigationID).Scan(&body)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("get report %s: %w", investigationID, core.ErrReportNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get report %s: %w", investigationID, err)
	}
	return body, nil
}
