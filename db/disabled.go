package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrLedgerDisabled = errors.New("run ledger disabled: set LEDGER_DSN (or DB_HOST + DB_NAME)")

// --- disabled connection (keeps the app booting, but fails fast when used) ---

type errConnector struct{}

func (errConnector) Connect(context.Context) (driver.Conn, error) { return nil, ErrLedgerDisabled }
func (errConnector) Driver() driver.Driver                        { return errDriver{} }

type errDriver struct{}

func (errDriver) Open(string) (driver.Conn, error) { return nil, ErrLedgerDisabled }

// NewDisabledDB returns a handle whose every call fails with ErrLedgerDisabled.
func NewDisabledDB() *sqlx.DB {
	return sqlx.NewDb(sql.OpenDB(errConnector{}), "sqlite")
}
