package fx

import (
	"go.uber.org/fx"

	cachefx "douyin-image-miner/cache/fx"
	dbfx "douyin-image-miner/db/fx"
	"douyin-image-miner/internal/logs"
	ledgerfx "douyin-image-miner/internal/ledger/fx"
	minerfx "douyin-image-miner/internal/miner/fx"
)

// Module is everything a binary needs to run pipelines: config, logging,
// the optional Redis cache, the run ledger and the pipeline itself.
var Module = fx.Options(
	CoreAppOptions,
	cachefx.Module,
	dbfx.Module,
	ledgerfx.Module,
	minerfx.Module,
	fx.Invoke(logs.RegisterLifecycle),
)
