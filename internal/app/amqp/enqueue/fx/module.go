package fx

import (
	"douyin-image-miner/internal/app/amqp/enqueue"
	"douyin-image-miner/internal/pkg/amqpclient"
	"douyin-image-miner/internal/router"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		amqpclient.NewAMQP,
	),
	fx.Provide(router.AsRoute(enqueue.NewHandler)),
)
