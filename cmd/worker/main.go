package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	imageworkerfx "douyin-image-miner/internal/app/amqp/imageworker/fx"
	appfx "douyin-image-miner/internal/app/fx"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.Module,
		imageworkerfx.Module,
	)

	app.Run()
}
