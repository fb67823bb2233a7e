package fx

import (
	"go.uber.org/fx"

	"douyin-image-miner/internal/app/health"
	"douyin-image-miner/internal/router"
)

var Module = fx.Options(
	fx.Provide(router.AsRoute(health.NewHandler)),
)
