package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"douyin-image-miner/config"
	"douyin-image-miner/db"
	"douyin-image-miner/db/migrations"
	appfx "douyin-image-miner/internal/app/fx"

	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type MigrateCmd string

func main() {
	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "up", "down", "status":
	default:
		_, _ = fmt.Fprintf(os.Stderr, "usage: migrate [up|down|status]\n")
		os.Exit(2)
	}

	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.CoreAppOptions,
		fx.Supply(MigrateCmd(cmd)),
		fx.Invoke(registerMigrateHook),
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer startCancel()
	if err := app.Start(startCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type migrateHookParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    *config.Config
	Logger *zap.SugaredLogger

	Cmd MigrateCmd
}

func registerMigrateHook(p migrateHookParams) {
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			target, err := db.TargetFromConfig(p.Cfg)
			if err != nil {
				return err
			}

			conn, err := db.Connect(target)
			if err != nil {
				return err
			}
			defer func() {
				_ = conn.Close()
			}()

			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			defer pingCancel()
			if err := conn.PingContext(pingCtx); err != nil {
				return fmt.Errorf("ping %s: %w", target.Driver, err)
			}
			p.Logger.Infow("ledger_connection_ok", dsnLogFields(target)...)

			provider, err := goose.NewProvider(target.Dialect, conn.DB, migrations.FS)
			if err != nil {
				return fmt.Errorf("goose provider: %w", err)
			}

			p.Logger.Infow("goose_run_start", "cmd", string(p.Cmd))
			switch p.Cmd {
			case "up":
				results, err := provider.Up(ctx)
				if err != nil {
					return fmt.Errorf("goose up: %w", err)
				}
				for _, r := range results {
					p.Logger.Infow("goose_applied", "version", r.Source.Version, "path", r.Source.Path, "duration", r.Duration)
				}
			case "down":
				r, err := provider.Down(ctx)
				if err != nil {
					return fmt.Errorf("goose down: %w", err)
				}
				p.Logger.Infow("goose_rolled_back", "version", r.Source.Version, "path", r.Source.Path)
			case "status":
				statuses, err := provider.Status(ctx)
				if err != nil {
					return fmt.Errorf("goose status: %w", err)
				}
				for _, s := range statuses {
					p.Logger.Infow("goose_status", "version", s.Source.Version, "path", s.Source.Path, "state", s.State, "applied_at", s.AppliedAt)
				}
			}
			p.Logger.Infow("goose_run_done", "cmd", string(p.Cmd))
			return nil
		},
	})
}

func dsnLogFields(t db.Target) []any {
	u, err := url.Parse(t.DSN)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []any{"driver", t.Driver}
	}
	return []any{"driver", t.Driver, "scheme", u.Scheme, "host", u.Host}
}
