package fx

import (
	"douyin-image-miner/internal/app/runs"
	"douyin-image-miner/internal/router"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"runs",
	fx.Provide(router.AsRoute(runs.NewGetByIDHandler)),
)
