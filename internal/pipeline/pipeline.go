// Package pipeline drives one product from share text to exported images:
// normalize, resolve, locate, fetch, segment, export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"douyin-image-miner/internal/assets"
	"douyin-image-miner/internal/douyin"
	"douyin-image-miner/internal/export"
	"douyin-image-miner/internal/httpfetch"
	"douyin-image-miner/internal/segment"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoAssetsExported fails a run in which every asset failed.
var ErrNoAssetsExported = errors.New("no assets exported")

type Resolver interface {
	Resolve(ctx context.Context, canonicalURL string) (douyin.Resolution, error)
}

type Locator interface {
	Locate(ctx context.Context, res douyin.Resolution) ([]douyin.ImageRef, error)
}

type AssetFetcher interface {
	Fetch(ctx context.Context, productID uint64, ref douyin.ImageRef) (assets.ImageAsset, error)
}

type Config struct {
	FetchRetries       int           `validate:"min=0,max=10"`
	FetchConcurrency   int           `validate:"min=0"`
	ProcessConcurrency int           `validate:"min=0"`
	RetryBase          time.Duration `validate:"min=0"`
	Format             export.Format `validate:"oneof=png tiff"`
	Scale              export.Scale
}

type Request struct {
	ShareText string `validate:"required"`
	OutputDir string `validate:"required_unless=DryRun true"`
	DryRun    bool
	// RunID is generated when empty.
	RunID string
}

type Pipeline struct {
	resolver  Resolver
	locator   Locator
	fetcher   AssetFetcher
	segmenter segment.Segmenter
	cfg       Config
	validate  *validator.Validate
	logger    *zap.SugaredLogger
}

type Deps struct {
	Resolver  Resolver
	Locator   Locator
	Fetcher   AssetFetcher
	Segmenter segment.Segmenter
	Logger    *zap.SugaredLogger
}

func New(d Deps, cfg Config) (*Pipeline, error) {
	if d.Resolver == nil || d.Locator == nil || d.Fetcher == nil || d.Segmenter == nil {
		return nil, errors.New("pipeline: resolver, locator, fetcher and segmenter are required")
	}
	if cfg.Format == "" {
		cfg.Format = export.PNG
	}
	if cfg.FetchConcurrency == 0 {
		cfg.FetchConcurrency = 4
	}
	if cfg.ProcessConcurrency == 0 {
		cfg.ProcessConcurrency = runtime.NumCPU()
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{
		resolver:  d.Resolver,
		locator:   d.Locator,
		fetcher:   d.Fetcher,
		segmenter: d.Segmenter,
		cfg:       cfg,
		validate:  v,
		logger:    logger,
	}, nil
}

// Run processes one share reference. Normalization, resolution and location
// failures abort the run before any image is fetched. Per-asset failures are
// recorded in the report; the run fails only when no asset was exported.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	report := Report{
		RunID:     req.RunID,
		ShareText: req.ShareText,
		DryRun:    req.DryRun,
		StartedAt: time.Now().UTC(),
	}
	if report.RunID == "" {
		report.RunID = uuid.NewString()
	}

	if err := p.validate.Struct(req); err != nil {
		return finish(report), fmt.Errorf("invalid request: %w", err)
	}
	log := p.logger.With("run_id", report.RunID)

	canonical, err := douyin.Normalize(req.ShareText)
	if err != nil {
		log.Warnw("share_text_rejected", "err", err)
		return finish(report), err
	}

	res, err := p.resolver.Resolve(ctx, canonical)
	report.Product = res.Product
	report.Strategy = res.Strategy
	if err != nil {
		log.Warnw("resolve_failed", "url", canonical, "trace", res.Trace, "err", err)
		return finish(report), err
	}
	productID := res.Product.ProductID
	log = log.With("product_id", productID)
	log.Infow("product_resolved", "canonical_url", res.Product.CanonicalURL, "strategy", res.Strategy)

	if req.DryRun {
		return finish(report), nil
	}

	refs, err := p.locator.Locate(ctx, res)
	if err != nil {
		log.Warnw("locate_failed", "err", err)
		return finish(report), err
	}
	log.Infow("assets_located", "count", len(refs))

	report.Outcomes = make([]AssetOutcome, len(refs))
	fetched := p.fetchAll(ctx, log, productID, refs, report.Outcomes)
	if err := ctx.Err(); err != nil {
		return finish(report), err
	}

	exporter := export.NewExporter(req.OutputDir, p.cfg.Format, p.cfg.Scale, p.logger)
	p.processAll(ctx, log, exporter, productID, fetched, report.Outcomes)
	if err := ctx.Err(); err != nil {
		return finish(report), err
	}

	for _, o := range report.Outcomes {
		if !o.OK() {
			log.Warnw("asset_failed", "ordinal", o.Ordinal, "stage", o.Stage, "url", o.SourceURL, "err", o.Err)
		}
	}
	ok := report.Succeeded()
	log.Infow("run_finished", "exported", ok, "failed", len(report.Outcomes)-ok)
	if ok == 0 {
		return finish(report), fmt.Errorf("product %d: %w (%d located)", productID, ErrNoAssetsExported, len(refs))
	}
	return finish(report), nil
}

func finish(r Report) Report {
	r.FinishedAt = time.Now().UTC()
	return r
}

// fetchAll downloads refs concurrently. Results are stored by position so
// completion order never affects ordinals.
func (p *Pipeline) fetchAll(ctx context.Context, log *zap.SugaredLogger, productID uint64, refs []douyin.ImageRef, outcomes []AssetOutcome) []*assets.ImageAsset {
	fetched := make([]*assets.ImageAsset, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.FetchConcurrency)

	for i, ref := range refs {
		outcomes[i] = AssetOutcome{Ordinal: ref.Ordinal, SourceURL: ref.URL, Stage: StageFetch}
		g.Go(func() error {
			asset, err := p.fetchWithRetry(gctx, productID, ref)
			if err != nil {
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].ContentHash = asset.ContentHash
			outcomes[i].Cached = asset.Cached
			fetched[i] = &asset
			log.Debugw("asset_fetched", "ordinal", ref.Ordinal, "bytes", len(asset.Bytes), "cached", asset.Cached)
			return nil
		})
	}
	_ = g.Wait()
	return fetched
}

func (p *Pipeline) fetchWithRetry(ctx context.Context, productID uint64, ref douyin.ImageRef) (assets.ImageAsset, error) {
	var asset assets.ImageAsset
	backoff := retry.WithMaxRetries(uint64(p.cfg.FetchRetries), retry.NewExponential(p.cfg.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		a, err := p.fetcher.Fetch(ctx, productID, ref)
		if err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		asset = a
		return nil
	})
	return asset, err
}

// retryable reports whether a download failure is worth another attempt:
// transport errors, throttling and server errors.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var nerr *httpfetch.NetworkError
	if !errors.As(err, &nerr) {
		return false
	}
	return nerr.Status == 0 || nerr.Status == http.StatusTooManyRequests || nerr.Status >= http.StatusInternalServerError
}

func (p *Pipeline) processAll(ctx context.Context, log *zap.SugaredLogger, exporter *export.Exporter, productID uint64, fetched []*assets.ImageAsset, outcomes []AssetOutcome) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ProcessConcurrency)

	for i, asset := range fetched {
		if asset == nil {
			continue
		}
		g.Go(func() error {
			out := &outcomes[i]

			out.Stage = StageDecode
			img, err := assets.Decode(*asset)
			if err != nil {
				out.Err = err
				return nil
			}

			out.Stage = StageSegment
			mask, err := p.segmenter.Segment(gctx, img)
			if err != nil {
				out.Err = err
				return nil
			}

			out.Stage = StageExport
			exported, err := exporter.Export(gctx, img, mask, productID, out.Ordinal)
			if err != nil {
				out.Err = err
				return nil
			}

			out.Stage = StageDone
			out.Path = exported.Path
			out.Width = exported.Width
			out.Height = exported.Height
			log.Infow("asset_exported", "ordinal", out.Ordinal, "path", exported.Path, "width", exported.Width, "height", exported.Height)
			return nil
		})
	}
	_ = g.Wait()
}
