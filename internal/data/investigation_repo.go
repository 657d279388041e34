package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/data/pgxutil"
	"github.com/target/mmk-investigations/internal/domain/model"
)

// RepoConfig holds configuration options for repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// InvestigationRepo is the Postgres-backed Job Store.
type InvestigationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewInvestigationRepo creates a new InvestigationRepo.
func NewInvestigationRepo(db *sql.DB, cfg RepoConfig) *InvestigationRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &InvestigationRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "investigation_repo"),
	}
}

const investigationColumns = `
  id::text AS id,
  query,
  request_type,
  target,
  platforms,
  depth,
  status,
  summary,
  report_ref,
  created_at,
  updated_at,
  completed_at
`

const executionColumns = `
  id::text AS id,
  investigation_id::text AS investigation_id,
  position,
  capability,
  category,
  status,
  duration_ms,
  cpu_percent,
  memory_mb,
  confidence,
  data,
  error_message,
  error_class,
  created_at,
  updated_at,
  finished_at
`

type investigationRow struct {
	ID          string     `db:"id"`
	Query       string     `db:"query"`
	RequestType string     `db:"request_type"`
	Target      []byte     `db:"target"`
	Platforms   []byte     `db:"platforms"`
	Depth       string     `db:"depth"`
	Status      string     `db:"status"`
	Summary     []byte     `db:"summary"`
	ReportRef   *string    `db:"report_ref"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

func (r investigationRow) toModel() (*model.Investigation, error) {
	inv := &model.Investigation{
		ID:          r.ID,
		Query:       r.Query,
		Type:        model.RequestType(r.RequestType),
		Depth:       model.Depth(r.Depth),
		Status:      model.InvestigationStatus(r.Status),
		ReportRef:   r.ReportRef,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
		Executions:  []model.ExecutionRecord{},
	}
	if len(r.Summary) > 0 {
		inv.Summary = json.RawMessage(r.Summary)
	}
	if err := json.Unmarshal(r.Target, &inv.Target); err != nil {
		return nil, fmt.Errorf("decode target: %w", err)
	}
	if len(r.Platforms) > 0 {
		if err := json.Unmarshal(r.Platforms, &inv.Platforms); err != nil {
			return nil, fmt.Errorf("decode platforms: %w", err)
		}
	}
	return inv, nil
}

type executionRow struct {
	ID              string     `db:"id"`
	InvestigationID string     `db:"investigation_id"`
	Position        int        `db:"position"`
	Capability      string     `db:"capability"`
	Category        string     `db:"category"`
	Status          string     `db:"status"`
	DurationMs      int64      `db:"duration_ms"`
	CPUPercent      *float64   `db:"cpu_percent"`
	MemoryMB        *float64   `db:"memory_mb"`
	Confidence      *float64   `db:"confidence"`
	Data            []byte     `db:"data"`
	ErrorMessage    *string    `db:"error_message"`
	ErrorClass      *string    `db:"error_class"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	FinishedAt      *time.Time `db:"finished_at"`
}

func (r executionRow) toModel() model.ExecutionRecord {
	rec := model.ExecutionRecord{
		ID:              r.ID,
		InvestigationID: r.InvestigationID,
		Position:        r.Position,
		Capability:      r.Capability,
		Category:        r.Category,
		Status:          model.ExecutionStatus(r.Status),
		Metrics: model.ExecutionMetrics{
			DurationMs: r.DurationMs,
			CPUPercent: r.CPUPercent,
			MemoryMB:   r.MemoryMB,
		},
		Confidence: r.Confidence,
		Error:      r.ErrorMessage,
		ErrorClass: r.ErrorClass,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		FinishedAt: r.FinishedAt,
	}
	if len(r.Data) > 0 {
		rec.Data = json.RawMessage(r.Data)
	}
	return rec
}

// Create persists a pending investigation and its pending execution records in one transaction.
func (r *InvestigationRepo) Create(ctx context.Context, inv *model.Investigation) error {
	if inv == nil || inv.ID == "" {
		return errors.New("create investigation: id is required")
	}
	if inv.Status != model.InvestigationStatusPending {
		return fmt.Errorf("create investigation %s: %w", inv.ID, core.ErrInvalidTransition)
	}
	target, err := json.Marshal(inv.Target)
	if err != nil {
		return fmt.Errorf("encode target: %w", err)
	}
	platforms := inv.Platforms
	if platforms == nil {
		platforms = []string{}
	}
	platformsJSON, err := json.Marshal(platforms)
	if err != nil {
		return fmt.Errorf("encode platforms: %w", err)
	}

	now := r.timeProvider.Now().UTC()
	err = pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			if _, execErr := tx.Exec(ctx, `
				INSERT INTO investigations (
					id, query, request_type, target, platforms, depth, status, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $7)`,
				inv.ID, inv.Query, string(inv.Type), string(target), string(platformsJSON),
				string(inv.Depth.OrDefault()), now,
			); execErr != nil {
				return fmt.Errorf("insert investigation: %w", execErr)
			}

			batch := &pgx.Batch{}
			for i, rec := range inv.Executions {
				batch.Queue(`
					INSERT INTO investigation_executions (
						id, investigation_id, position, capability, category, status, created_at, updated_at
					) VALUES ($1, $2, $3, $4, $5, 'pending', $6, $6)`,
					rec.ID, inv.ID, i, rec.Capability, rec.Category, now,
				)
			}
			if batch.Len() == 0 {
				return nil
			}
			return tx.SendBatch(ctx, batch).Close()
		},
	})
	if err != nil {
		return fmt.Errorf("create investigation %s: %w", inv.ID, err)
	}

	inv.CreatedAt, inv.UpdatedAt = now, now
	for i := range inv.Executions {
		inv.Executions[i].InvestigationID = inv.ID
		inv.Executions[i].Position = i
		inv.Executions[i].Status = model.ExecutionStatusPending
		inv.Executions[i].CreatedAt, inv.Executions[i].UpdatedAt = now, now
	}
	return nil
}

// GetByID returns the investigation with its execution records in plan order.
func (r *InvestigationRepo) GetByID(ctx context.Context, id string) (*model.Investigation, error) {
	var inv *model.Investigation
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row, err := pgxutil.CollectOne[investigationRow](ctx, conn,
			`SELECT `+investigationColumns+` FROM investigations WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if inv, err = row.toModel(); err != nil {
			return err
		}

		execRows, err := pgxutil.CollectAll[executionRow](ctx, conn, `SELECT `+executionColumns+`
			FROM investigation_executions
			WHERE investigation_id = $1
			ORDER BY position ASC`, id)
		if err != nil {
			return err
		}
		for _, er := range execRows {
			inv.Executions = append(inv.Executions, er.toModel())
		}
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get investigation %s: %w", id, core.ErrInvestigationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get investigation %s: %w", id, err)
	}
	return inv, nil
}

// GetExecution returns one execution record.
func (r *InvestigationRepo) GetExecution(
	ctx context.Context,
	investigationID, capability string,
) (*model.ExecutionRecord, error) {
	var rec model.ExecutionRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row, err := pgxutil.CollectOne[executionRow](ctx, conn, `SELECT `+executionColumns+`
			FROM investigation_executions
			WHERE investigation_id = $1 AND capability = $2`, investigationID, capability)
		if err != nil {
			return err
		}
		rec = row.toModel()
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get execution %s/%s: %w", investigationID, capability, core.ErrExecutionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s/%s: %w", investigationID, capability, err)
	}
	return &rec, nil
}

// List returns investigations newest first, without execution records.
func (r *InvestigationRepo) List(
	ctx context.Context,
	opts model.InvestigationListOptions,
) ([]*model.Investigation, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + investigationColumns + ` FROM investigations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, opts.Limit, opts.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	out := []*model.Investigation{}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		collected, err := pgxutil.CollectAll[investigationRow](ctx, conn, query, args...)
		if err != nil {
			return err
		}
		for _, row := range collected {
			inv, convErr := row.toModel()
			if convErr != nil {
				return convErr
			}
			inv.Executions = nil
			out = append(out, inv)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	return out, nil
}

var (
	_ core.InvestigationRepository       = (*InvestigationRepo)(nil)
	_ core.InvestigationReaperRepository = (*InvestigationRepo)(nil)
)
