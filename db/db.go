package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"douyin-image-miner/config"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Target is a parsed ledger DSN: the database/sql driver to open it with and
// the goose dialect its migrations run under.
type Target struct {
	Driver  string
	DSN     string
	Dialect goose.Dialect
}

// ParseDSN maps a ledger DSN onto a driver:
//
//	sqlite://path, file:path, *.db  -> modernc sqlite
//	libsql://host                   -> Turso remote (libsql-client-go)
//	postgres://, postgresql://      -> pgx
func ParseDSN(raw, authToken string) (Target, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	switch {
	case raw == "":
		return Target{}, ErrLedgerDisabled
	case strings.HasPrefix(lower, "sqlite://"):
		path := raw[len("sqlite://"):]
		if path == "" {
			return Target{}, fmt.Errorf("sqlite DSN %q has no path", raw)
		}
		return Target{Driver: "sqlite", DSN: path, Dialect: goose.DialectSQLite3}, nil
	case strings.HasPrefix(lower, "file:"), strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return Target{Driver: "sqlite", DSN: raw, Dialect: goose.DialectSQLite3}, nil
	case strings.HasPrefix(lower, "libsql://"):
		return Target{Driver: "libsql", DSN: ensureAuthTokenQuery(raw, authToken), Dialect: goose.DialectSQLite3}, nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Target{Driver: "pgx", DSN: raw, Dialect: goose.DialectPostgres}, nil
	default:
		return Target{}, fmt.Errorf("unsupported LEDGER_DSN %q (want sqlite://, file:, libsql:// or postgres://)", raw)
	}
}

// TargetFromConfig prefers LEDGER_DSN and falls back to the DB_* postgres settings.
func TargetFromConfig(cfg *config.Config) (Target, error) {
	if strings.TrimSpace(cfg.Ledger.DSN) != "" {
		return ParseDSN(cfg.Ledger.DSN, cfg.Ledger.AuthToken)
	}
	if strings.TrimSpace(cfg.DBHost) != "" && strings.TrimSpace(cfg.DBName) != "" {
		return ParseDSN(postgresDSN(cfg), "")
	}
	return Target{}, ErrLedgerDisabled
}

// Connect opens a pool for t without touching the network.
func Connect(t Target) (*sqlx.DB, error) {
	db, err := sqlx.Open(t.Driver, t.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", t.Driver, err)
	}
	db.Mapper = reflectx.NewMapperFunc("json", strings.ToLower)
	if t.Driver == "sqlite" {
		// A single writer avoids SQLITE_BUSY between the worker's goroutines.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// Prepare pings db and applies the embedded migrations.
func Prepare(ctx context.Context, db *sqlx.DB, t Target) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping %s ledger: %w", t.Driver, err)
	}
	return Migrate(ctx, db, t.Dialect)
}

// Open is Connect followed by Prepare.
func Open(ctx context.Context, t Target) (*sqlx.DB, error) {
	db, err := Connect(t)
	if err != nil {
		return nil, err
	}
	if err := Prepare(ctx, db, t); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type LedgerDBOut struct {
	fx.Out

	DB *sqlx.DB `name:"ledger"`
}

type NewLedgerDBParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    *config.Config
	Logger *zap.SugaredLogger
}

// NewLedgerDB provides the run ledger. Without configuration it provides a
// disabled handle so the app still boots.
func NewLedgerDB(p NewLedgerDBParams) (LedgerDBOut, error) {
	t, err := TargetFromConfig(p.Cfg)
	if errors.Is(err, ErrLedgerDisabled) {
		p.Logger.Infow("ledger_disabled")
		return LedgerDBOut{DB: NewDisabledDB()}, nil
	}
	if err != nil {
		return LedgerDBOut{}, err
	}

	db, err := Connect(t)
	if err != nil {
		return LedgerDBOut{}, err
	}
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := Prepare(ctx, db, t); err != nil {
				return err
			}
			p.Logger.Infow("ledger_enabled", "driver", t.Driver)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := db.Close(); err != nil {
				p.Logger.Warnw("ledger_close_failed", "err", err)
			}
			return nil
		},
	})
	return LedgerDBOut{DB: db}, nil
}

func postgresDSN(cfg *config.Config) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort),
		Path:   cfg.DBName,
	}
	if strings.TrimSpace(cfg.DBUser) != "" {
		if cfg.DBPassword == "" {
			u.User = url.User(cfg.DBUser)
		} else {
			u.User = url.UserPassword(cfg.DBUser, cfg.DBPassword)
		}
	}
	return u.String()
}

func ensureAuthTokenQuery(dsn, token string) string {
	if token == "" {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}
	q := u.Query()
	if q.Get("authToken") != "" {
		return dsn
	}
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String()
}
