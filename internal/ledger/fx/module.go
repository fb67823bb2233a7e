package fx

import (
	"douyin-image-miner/internal/ledger"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"ledger",
	fx.Provide(ledger.NewStore),
)
