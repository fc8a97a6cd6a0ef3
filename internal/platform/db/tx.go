package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CompletionHook runs once a unit of work has been committed or rolled back.
type CompletionHook func(ctx context.Context, committed bool)

// UnitOfWork is a transaction scope that may be shared across modules.
// Only the Transactor that created it commits or rolls it back.
type UnitOfWork interface {
	// Owner names the module that opened the unit.
	Owner() string
	// OnComplete registers a hook executed after commit or rollback, in registration order.
	OnComplete(hook CompletionHook)
}

// Transactor opens units of work.
type Transactor interface {
	InTx(ctx context.Context, owner string, fn func(context.Context, UnitOfWork) error) error
}

// DBTX is the query surface shared by pgx.Tx and *pgxpool.Pool.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrForeignUnit is returned when a unit of work was not opened by a PgxTransactor.
var ErrForeignUnit = errors.New("platform/db: unit of work is not backed by pgx")

// PgxTransactor opens units of work on a pgx pool. Every unit checks out one connection
// and releases it on every exit path.
type PgxTransactor struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// NewTransactor builds a PgxTransactor using the ReadCommitted isolation level.
func NewTransactor(pool *pgxpool.Pool) *PgxTransactor {
	return &PgxTransactor{pool: pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// InTx executes fn within a transaction. An error from fn rolls the transaction back.
func (t *PgxTransactor) InTx(ctx context.Context, owner string, fn func(context.Context, UnitOfWork) error) (err error) {
	if t == nil || t.pool == nil {
		return errors.New("platform/db: transactor not initialised")
	}
	tx, err := t.pool.BeginTx(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	unit := &pgxUnit{tx: tx, owner: owner}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
		unit.complete(context.WithoutCancel(ctx), committed)
	}()

	if err := fn(ctx, unit); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	committed = true
	return nil
}

// Tx extracts the pgx transaction behind a unit of work.
func Tx(uow UnitOfWork) (pgx.Tx, error) {
	unit, ok := uow.(*pgxUnit)
	if !ok || unit == nil {
		return nil, ErrForeignUnit
	}
	return unit.tx, nil
}

type pgxUnit struct {
	tx    pgx.Tx
	owner string

	mu    sync.Mutex
	hooks []CompletionHook
}

func (u *pgxUnit) Owner() string { return u.owner }

func (u *pgxUnit) OnComplete(hook CompletionHook) {
	if hook == nil {
		return
	}
	u.mu.Lock()
	u.hooks = append(u.hooks, hook)
	u.mu.Unlock()
}

func (u *pgxUnit) complete(ctx context.Context, committed bool) {
	u.mu.Lock()
	hooks := u.hooks
	u.hooks = nil
	u.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx, committed)
	}
}
