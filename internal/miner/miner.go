// Package miner assembles a pipeline.Pipeline from configuration. The CLI
// calls Build directly; the worker and server get it through fx.
package miner

import (
	"fmt"

	"douyin-image-miner/config"
	"douyin-image-miner/internal/assets"
	"douyin-image-miner/internal/douyin"
	"douyin-image-miner/internal/export"
	"douyin-image-miner/internal/httpfetch"
	"douyin-image-miner/internal/logs"
	"douyin-image-miner/internal/pipeline"
	"douyin-image-miner/internal/segment"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewHTTPClient(cfg *config.Config, logger *zap.SugaredLogger) *httpfetch.Client {
	return httpfetch.New(httpfetch.Config{
		Timeout:   cfg.Douyin.HTTPTimeout,
		UserAgent: cfg.Douyin.UserAgent,
		Referer:   cfg.Douyin.Referer,
		Cookies:   cfg.Douyin.Cookies,
		Logger:    logger,
	})
}

// NewAssetStore picks the asset cache: Redis when a client is configured,
// then CACHE_DIR on disk, then process memory.
func NewAssetStore(cfg *config.Config, client *redis.Client, logger *zap.SugaredLogger) (assets.Store, error) {
	switch {
	case client != nil:
		logger.Infow("asset_cache_selected", "backend", "redis", "prefix", cfg.Cache.Prefix)
		return assets.NewRedisStore(client, cfg.Cache.Prefix, cfg.Cache.TTL), nil
	case cfg.Cache.Dir != "":
		store, err := assets.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		logger.Infow("asset_cache_selected", "backend", "file", "dir", store.BasePath())
		return store, nil
	default:
		logger.Debugw("asset_cache_selected", "backend", "memory")
		return assets.NewMemoryStore(), nil
	}
}

func SegmentOptions(cfg *config.Config) segment.Options {
	return segment.Options{
		Iterations:    cfg.Segment.Iterations,
		Margin:        cfg.Segment.Margin,
		WorkSize:      cfg.Segment.WorkSize,
		Dilate:        cfg.Segment.Dilate,
		Feather:       cfg.Segment.Feather,
		MinForeground: cfg.Segment.MinForeground,
	}
}

func PipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		FetchRetries:       cfg.Pipeline.FetchRetries,
		FetchConcurrency:   cfg.Pipeline.FetchConcurrency,
		ProcessConcurrency: cfg.Pipeline.ProcessConcurrency,
		Format:             format,
		Scale: export.Scale{
			Factor:      cfg.Export.UpscaleFactor,
			MaxLongEdge: cfg.Export.MaxLongEdge,
		},
	}, nil
}

// Build wires the full pipeline. client may be nil.
func Build(cfg *config.Config, client *redis.Client, logger *zap.SugaredLogger) (*pipeline.Pipeline, error) {
	logger = logs.OrNop(logger)

	httpClient := NewHTTPClient(cfg, logger)
	store, err := NewAssetStore(cfg, client, logger)
	if err != nil {
		return nil, fmt.Errorf("asset cache: %w", err)
	}
	pcfg, err := PipelineConfig(cfg)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Deps{
		Resolver:  douyin.NewResolver(httpClient, logger),
		Locator:   douyin.NewLocator(httpClient, nil, logger),
		Fetcher:   assets.NewFetcher(store, httpClient, logger),
		Segmenter: segment.NewGrabCut(SegmentOptions(cfg), logger),
		Logger:    logger,
	}, pcfg)
}

type NewPipelineParams struct {
	fx.In

	Cfg    *config.Config
	Logger *zap.SugaredLogger
	Redis  *redis.Client `optional:"true"`
}

func NewPipeline(p NewPipelineParams) (*pipeline.Pipeline, error) {
	return Build(p.Cfg, p.Redis, p.Logger)
}
