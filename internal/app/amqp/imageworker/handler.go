package imageworker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"douyin-image-miner/config"
	"douyin-image-miner/internal/ledger"
	"douyin-image-miner/internal/pipeline"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Report, error)
}

type Recorder interface {
	Record(ctx context.Context, in ledger.RecordInput) error
}

type ProductHandler struct {
	cfg      *config.Config
	runner   Runner
	recorder Recorder
	logger   *zap.SugaredLogger
}

type NewProductHandlerParams struct {
	fx.In

	Cfg      *config.Config
	Pipeline *pipeline.Pipeline
	Store    *ledger.Store
	Logger   *zap.SugaredLogger
}

func NewProductHandler(p NewProductHandlerParams) *ProductHandler {
	return &ProductHandler{
		cfg:      p.Cfg,
		runner:   p.Pipeline,
		recorder: p.Store,
		logger:   p.Logger,
	}
}

// Handle runs the pipeline for one request and records the outcome. Pipeline
// failures are recorded, not returned, so the message is acked; only a
// failure to record dead-letters it.
func (h *ProductHandler) Handle(ctx context.Context, msg ProductRequestedEnvelope) error {
	shareText := strings.TrimSpace(msg.Data.ShareText)
	if shareText == "" {
		return fmt.Errorf("missing share_text")
	}
	if strings.TrimSpace(msg.EventID) == "" {
		return fmt.Errorf("missing event_id")
	}
	if name := strings.TrimSpace(msg.EventName); name != "" && name != EventName {
		return fmt.Errorf("unexpected event_name: %s", name)
	}

	// out_dir names a subdirectory of OUTPUT_DIR; it may not escape it.
	outDir := h.cfg.Pipeline.OutputDir
	if sub := strings.TrimSpace(msg.Data.OutDir); sub != "" {
		if !filepath.IsLocal(sub) {
			return fmt.Errorf("out_dir must be a relative path inside OUTPUT_DIR: %q", sub)
		}
		outDir = filepath.Join(outDir, sub)
	}

	report, runErr := h.runner.Run(ctx, pipeline.Request{
		ShareText: shareText,
		OutputDir: outDir,
		DryRun:    msg.Data.DryRun,
		RunID:     msg.EventID,
	})
	if errors.Is(runErr, context.Canceled) {
		// Shutting down; the message dead-letters instead of being recorded as failed.
		return runErr
	}
	if runErr != nil {
		h.logger.Warnw("imageworker_run_failed", "event_id", msg.EventID, "err", runErr)
	}

	if err := h.recorder.Record(ctx, ledger.RecordInput{Report: report, RunErr: runErr}); err != nil {
		h.logger.Errorw("imageworker_record_failed", "event_id", msg.EventID, "err", err)
		return err
	}

	h.logger.Infow("imageworker_finished",
		"event_id", msg.EventID,
		"product_id", report.Product.ProductID,
		"exported", report.Succeeded(),
		"failed", len(report.Failed()),
		"out_dir", outDir,
	)
	return nil
}
