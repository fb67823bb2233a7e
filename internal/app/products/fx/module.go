package fx

import (
	"douyin-image-miner/internal/app/products"
	"douyin-image-miner/internal/router"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"products",
	fx.Provide(router.AsRoute(products.NewResolveHandler)),
)
