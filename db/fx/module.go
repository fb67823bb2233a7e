package fx

import (
	"douyin-image-miner/db"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"sqlx-ledger-db",
	fx.Provide(db.NewLedgerDB),
)
