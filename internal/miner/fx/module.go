package fx

import (
	"douyin-image-miner/internal/miner"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"miner",
	fx.Provide(miner.NewPipeline),
)
