package service

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// txProvider opens the unit of work every write runs in. *sqlx.DB satisfies it.
type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}
