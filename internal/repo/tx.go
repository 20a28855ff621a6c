package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("not found")

// Transactor runs fn inside a transaction that is committed only when fn
// returns nil.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Option configures a repo or a Transactor.
type Option func(*store)

// WithQueryTimeout bounds every statement and every transaction. Zero keeps
// only the caller's deadline.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *store) { s.timeout = d }
}

// store is embedded by every repo.
type store struct {
	db      *sql.DB
	timeout time.Duration
}

func newStore(db *sql.DB, opts []Option) store {
	s := store{db: db}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// bound derives the context one statement or transaction runs under.
func (s store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

type sqlTransactor struct {
	store
}

func NewTransactor(db *sql.DB, opts ...Option) Transactor {
	return &sqlTransactor{store: newStore(db, opts)}
}

// WithinTx rolls back when the deadline passes before fn returns.
func (t *sqlTransactor) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// IsUniqueViolation reports whether err is a Postgres unique_violation,
// optionally on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
