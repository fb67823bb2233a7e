package miner

import (
	"context"
	"testing"

	"douyin-image-miner/config"
	"douyin-image-miner/internal/assets"
	"douyin-image-miner/internal/douyin"
	"douyin-image-miner/internal/export"
	"douyin-image-miner/internal/pipeline"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.NewConfig(config.NewViper())
	require.NoError(t, err)
	return cfg
}

func TestNewAssetStore_Selection(t *testing.T) {
	cfg := testConfig(t)
	log := zap.NewNop().Sugar()

	store, err := NewAssetStore(cfg, nil, log)
	require.NoError(t, err)
	require.IsType(t, &assets.MemoryStore{}, store)

	cfg.Cache.Dir = t.TempDir()
	store, err = NewAssetStore(cfg, nil, log)
	require.NoError(t, err)
	require.IsType(t, &assets.FileStore{}, store)
}

func TestPipelineConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Format = "tiff"
	cfg.Export.UpscaleFactor = 3

	pcfg, err := PipelineConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, export.TIFF, pcfg.Format)
	require.Equal(t, 3.0, pcfg.Scale.Factor)
	require.Equal(t, 2048, pcfg.Scale.MaxLongEdge)

	cfg.Export.Format = "jpeg"
	_, err = PipelineConfig(cfg)
	require.Error(t, err)
}

func TestBuild_DryRunRejectsTextWithoutLink(t *testing.T) {
	cfg := testConfig(t)

	p, err := Build(cfg, nil, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), pipeline.Request{ShareText: "nothing to see here", DryRun: true})
	require.ErrorIs(t, err, douyin.ErrNoURLFound)
}
