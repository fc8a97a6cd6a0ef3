// Package dbtest provides an in-memory db.Transactor for tests. Stores bound to its units
// stage their writes and apply them from completion hooks once the unit commits.
package dbtest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Transactor is an in-memory db.Transactor.
type Transactor struct {
	nextID    atomic.Int64
	commits   atomic.Int64
	rollbacks atomic.Int64
}

// NewTransactor returns an empty Transactor.
func NewTransactor() *Transactor {
	return &Transactor{}
}

// InTx runs fn inside a new unit. A nil error commits, anything else rolls back.
func (t *Transactor) InTx(ctx context.Context, owner string, fn func(context.Context, db.UnitOfWork) error) error {
	unit := &Unit{id: t.nextID.Add(1), owner: owner}
	err := fn(ctx, unit)
	committed := err == nil
	if committed {
		t.commits.Add(1)
	} else {
		t.rollbacks.Add(1)
	}
	unit.complete(context.WithoutCancel(ctx), committed)
	return err
}

// Commits reports how many units committed.
func (t *Transactor) Commits() int64 { return t.commits.Load() }

// Rollbacks reports how many units rolled back.
func (t *Transactor) Rollbacks() int64 { return t.rollbacks.Load() }

// Unit is the in-memory unit of work.
type Unit struct {
	id    int64
	owner string

	mu    sync.Mutex
	hooks []db.CompletionHook
	done  bool
}

// NewUnit returns a standalone unit for tests that drive completion manually.
func NewUnit(owner string) *Unit {
	return &Unit{owner: owner}
}

// ID identifies the unit inside its Transactor.
func (u *Unit) ID() int64 { return u.id }

// Owner names the module that opened the unit.
func (u *Unit) Owner() string { return u.owner }

// OnComplete registers a completion hook.
func (u *Unit) OnComplete(hook db.CompletionHook) {
	if hook == nil {
		return
	}
	u.mu.Lock()
	u.hooks = append(u.hooks, hook)
	u.mu.Unlock()
}

// Complete finishes a unit created with NewUnit.
func (u *Unit) Complete(ctx context.Context, committed bool) {
	u.complete(ctx, committed)
}

func (u *Unit) complete(ctx context.Context, committed bool) {
	u.mu.Lock()
	if u.done {
		u.mu.Unlock()
		return
	}
	u.done = true
	hooks := u.hooks
	u.hooks = nil
	u.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx, committed)
	}
}

var _ db.Transactor = (*Transactor)(nil)
var _ db.UnitOfWork = (*Unit)(nil)
