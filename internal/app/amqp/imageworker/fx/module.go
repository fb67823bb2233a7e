package fx

import (
	"context"

	"douyin-image-miner/internal/app/amqp/imageworker"
	"douyin-image-miner/internal/pkg/amqpclient"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module(
	"amqp-imageworker",
	fx.Provide(
		amqpclient.NewAMQP,
		fx.Annotate(
			imageworker.NewProductHandler,
			fx.As(new(imageworker.Handler)),
		),
		imageworker.NewConsumer,
	),
	fx.Invoke(registerLifecycleHooks),
)

type hooksParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Consumer  *imageworker.Consumer
	Logger    *zap.SugaredLogger
}

func registerLifecycleHooks(p hooksParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Infow("imageworker_starting")
			return p.Consumer.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Infow("imageworker_stopping")
			return p.Consumer.Stop(ctx)
		},
	})
}
