package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	enqueuefx "douyin-image-miner/internal/app/amqp/enqueue/fx"
	appfx "douyin-image-miner/internal/app/fx"
	healthfx "douyin-image-miner/internal/app/health/fx"
	productsfx "douyin-image-miner/internal/app/products/fx"
	runsfx "douyin-image-miner/internal/app/runs/fx"
	routerfx "douyin-image-miner/internal/router/fx"
	serverfx "douyin-image-miner/internal/server/fx"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.Module,
		routerfx.CoreRouterOptions,
		serverfx.Module,
		healthfx.Module,
		productsfx.Module,
		runsfx.Module,
		enqueuefx.Module,
	)

	app.Run()
}
