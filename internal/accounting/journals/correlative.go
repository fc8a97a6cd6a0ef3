package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// FormatDocumentNumber renders PREFIX-YYYYMM-NNNNN. Sequences wider than five digits are not truncated.
func FormatDocumentNumber(prefix string, year, month int, sequence int64) string {
	return fmt.Sprintf("%s-%04d%02d-%05d", prefix, year, month, sequence)
}

// String returns the lock key of the tuple.
func (k SequenceKey) String() string {
	return internalShared.SequenceLockKey(k.CompanyID, k.PeriodID, k.EntryTypeID)
}

// SequenceLocker serialises correlative assignment for one key until the unit of work completes.
type SequenceLocker interface {
	Lock(ctx context.Context, uow db.UnitOfWork, repo TxRepository, key SequenceKey) error
}

// AdvisoryLocker takes a transaction-scoped lock in the store itself.
type AdvisoryLocker struct{}

func (AdvisoryLocker) Lock(ctx context.Context, _ db.UnitOfWork, repo TxRepository, key SequenceKey) error {
	return repo.LockSequence(ctx, key)
}

// RedisLocker holds a redis lock per key and releases it once the unit of work completes.
// The lock TTL must exceed the longest expected posting transaction.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker constructs a RedisLocker over client.
func NewRedisLocker(client redislock.RedisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl, wait: ttl}
}

// Lock retries until the lock is obtained or wait elapses, whichever comes first.
func (l *RedisLocker) Lock(ctx context.Context, uow db.UnitOfWork, _ TxRepository, key SequenceKey) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	retry := redislock.ExponentialBackoff(5*time.Millisecond, 250*time.Millisecond)
	lock, err := l.client.Obtain(waitCtx, key.String(), l.ttl, &redislock.Options{RetryStrategy: retry})
	if errors.Is(err, redislock.ErrNotObtained) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		return fmt.Errorf("%w: %s", shared.ErrSequenceBusy, key)
	}
	if err != nil {
		return err
	}
	uow.OnComplete(func(ctx context.Context, _ bool) {
		_ = lock.Release(ctx)
	})
	return nil
}

// Sequencer assigns the next correlative of a key.
type Sequencer struct {
	locker  SequenceLocker
	metrics SequenceObserver
}

// SequenceObserver records how long callers waited for the sequence lock.
type SequenceObserver interface {
	ObserveSequenceLock(d time.Duration)
}

// NewSequencer builds a Sequencer; a nil locker defaults to AdvisoryLocker.
func NewSequencer(locker SequenceLocker, observer SequenceObserver) *Sequencer {
	if locker == nil {
		locker = AdvisoryLocker{}
	}
	return &Sequencer{locker: locker, metrics: observer}
}

// Next locks the key for the rest of the unit of work and returns max(sequence)+1.
func (s *Sequencer) Next(ctx context.Context, uow db.UnitOfWork, repo TxRepository, key SequenceKey) (int64, error) {
	started := time.Now()
	if err := s.locker.Lock(ctx, uow, repo, key); err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.ObserveSequenceLock(time.Since(started))
	}
	max, err := repo.MaxSequence(ctx, key)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
