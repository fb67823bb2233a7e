// Package ledger records pipeline runs and their per-asset outcomes so a run
// can be inspected after the fact (GET /v1/runs/{id}). The CLI, the worker and
// the resolve endpoint record to it when LEDGER_DSN is set.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"douyin-image-miner/db"
	"douyin-image-miner/internal/pipeline"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrRunNotFound = errors.New("run not found")

type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusPartial   Status = "PARTIAL"
	StatusFailed    Status = "FAILED"
	// StatusResolved marks a dry run that stopped after resolution.
	StatusResolved Status = "RESOLVED"
)

type Run struct {
	ID           string `json:"id" validate:"required"`
	ShareText    string `json:"share_text"`
	ProductID    string `json:"product_id"`
	CanonicalURL string `json:"canonical_url"`
	Strategy     string `json:"strategy"`
	Status       Status `json:"status" validate:"oneof=SUCCEEDED PARTIAL FAILED RESOLVED"`
	Error        string `json:"error"`
	DryRun       bool   `json:"dry_run"`
	Exported     int    `json:"exported"`
	Failed       int    `json:"failed"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at"`
}

type Asset struct {
	RunID       string `json:"run_id"`
	Ordinal     int    `json:"ordinal"`
	SourceURL   string `json:"source_url"`
	Stage       string `json:"stage"`
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	Cached      bool   `json:"cached"`
	Error       string `json:"error"`
}

type RunDetail struct {
	Run
	Assets []Asset `json:"assets"`
}

type Store struct {
	db        *sqlx.DB
	logger    *zap.SugaredLogger
	validator *validator.Validate
}

type NewStoreParams struct {
	fx.In

	DB     *sqlx.DB `name:"ledger"`
	Logger *zap.SugaredLogger
}

func NewStore(p NewStoreParams) *Store {
	return New(p.DB, p.Logger)
}

func New(conn *sqlx.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		db:        conn,
		logger:    logger,
		validator: validator.New(),
	}
}

type RecordInput struct {
	Report pipeline.Report
	// RunErr is the error Pipeline.Run returned, if any.
	RunErr error
}

// Record upserts the run row and replaces its asset rows in one transaction.
// A disabled ledger is skipped without error.
func (s *Store) Record(ctx context.Context, in RecordInput) error {
	run := runFromReport(in.Report, in.RunErr)
	if err := s.validator.Struct(run); err != nil {
		return fmt.Errorf("validate run: %w", err)
	}

	_, err := db.Tx(ctx, s.db, func(tx *sqlx.Tx) (struct{}, error) {
		q := tx.Rebind(`
INSERT INTO runs (
  id, share_text, product_id, canonical_url, strategy, status, error,
  dry_run, exported, failed, started_at, finished_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  product_id = excluded.product_id,
  canonical_url = excluded.canonical_url,
  strategy = excluded.strategy,
  status = excluded.status,
  error = excluded.error,
  exported = excluded.exported,
  failed = excluded.failed,
  finished_at = excluded.finished_at
`)
		if _, err := tx.ExecContext(ctx, q,
			run.ID, run.ShareText, run.ProductID, run.CanonicalURL, run.Strategy, run.Status, run.Error,
			boolInt(run.DryRun), run.Exported, run.Failed, run.StartedAt, run.FinishedAt,
		); err != nil {
			return struct{}{}, fmt.Errorf("upsert runs: %w", err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM run_assets WHERE run_id = ?`), run.ID); err != nil {
			return struct{}{}, fmt.Errorf("clear run_assets: %w", err)
		}
		ins := tx.Rebind(`
INSERT INTO run_assets (run_id, ordinal, source_url, stage, path, content_hash, cached, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
		for _, o := range in.Report.Outcomes {
			if _, err := tx.ExecContext(ctx, ins,
				run.ID, o.Ordinal, o.SourceURL, string(o.Stage), o.Path, o.ContentHash, boolInt(o.Cached), errText(o.Err),
			); err != nil {
				return struct{}{}, fmt.Errorf("insert run_assets #%d: %w", o.Ordinal, err)
			}
		}
		return struct{}{}, nil
	})
	if errors.Is(err, db.ErrLedgerDisabled) {
		s.logger.Debugw("ledger_disabled_skip_record", "run_id", run.ID)
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Infow("run_recorded",
		"run_id", run.ID,
		"status", run.Status,
		"exported", run.Exported,
		"failed", run.Failed,
	)
	return nil
}

// Get loads a run with its assets ordered by ordinal.
func (s *Store) Get(ctx context.Context, id string) (RunDetail, error) {
	if s.db == nil {
		return RunDetail{}, db.ErrLedgerDisabled
	}

	var out RunDetail
	err := s.db.GetContext(ctx, &out.Run, s.db.Rebind(`
SELECT id, share_text, product_id, canonical_url, strategy, status, error,
       dry_run, exported, failed, started_at, finished_at
FROM runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return RunDetail{}, ErrRunNotFound
	}
	if err != nil {
		return RunDetail{}, fmt.Errorf("get run %s: %w", id, err)
	}

	out.Assets = []Asset{}
	if err := s.db.SelectContext(ctx, &out.Assets, s.db.Rebind(`
SELECT run_id, ordinal, source_url, stage, path, content_hash, cached, error
FROM run_assets WHERE run_id = ? ORDER BY ordinal`), id); err != nil {
		return RunDetail{}, fmt.Errorf("list run_assets %s: %w", id, err)
	}
	return out, nil
}

func runFromReport(r pipeline.Report, runErr error) Run {
	run := Run{
		ID:           strings.TrimSpace(r.RunID),
		ShareText:    r.ShareText,
		CanonicalURL: r.Product.CanonicalURL,
		Strategy:     r.Strategy,
		Error:        errText(runErr),
		DryRun:       r.DryRun,
		Exported:     r.Succeeded(),
		Failed:       len(r.Failed()),
		StartedAt:    r.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt:   r.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.Product.ProductID != 0 {
		run.ProductID = strconv.FormatUint(r.Product.ProductID, 10)
	}
	switch {
	case runErr != nil:
		run.Status = StatusFailed
	case r.DryRun:
		run.Status = StatusResolved
	case run.Failed > 0:
		run.Status = StatusPartial
	default:
		run.Status = StatusSucceeded
	}
	return run
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
