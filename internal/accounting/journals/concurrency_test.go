package journals_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db/dbtest"
)

// unlocked reads max(sequence) without serialising callers.
type unlocked struct{}

func (unlocked) Lock(context.Context, db.UnitOfWork, journals.TxRepository, journals.SequenceKey) error {
	return nil
}

// bothReadBeforeInsert makes n callers read the current max before any of them inserts.
func bothReadBeforeInsert(n int) func(journals.SequenceKey) {
	var wg sync.WaitGroup
	wg.Add(n)
	return func(journals.SequenceKey) {
		wg.Done()
		wg.Wait()
	}
}

func createConcurrently(t *testing.T, svc *journals.Service, n int) ([]journals.JournalEntry, []error) {
	t.Helper()
	entries := make([]journals.JournalEntry, n)
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			entries[i], errs[i] = svc.Create(context.Background(), invoiceInput("1.00", "1.00"), testActor)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	return entries, errs
}

func TestUnlockedSequencerHandsOutDuplicates(t *testing.T) {
	store := newStore()
	store.AfterMaxRead = bothReadBeforeInsert(2)
	svc := journals.NewService(dbtest.NewTransactor(), store, journals.WithSequenceLocker(unlocked{}), journals.WithLogger(discardLogger()))

	entries, errs := createConcurrently(t, svc, 2)
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, entries[0].Sequence, entries[1].Sequence)
	assert.Equal(t, entries[0].DocumentNumber, entries[1].DocumentNumber)
}

func TestUniqueIndexRejectsDuplicateSequence(t *testing.T) {
	store := newStore()
	store.UniqueSequences = true
	store.AfterMaxRead = bothReadBeforeInsert(2)
	svc := journals.NewService(dbtest.NewTransactor(), store, journals.WithSequenceLocker(unlocked{}), journals.WithLogger(discardLogger()))

	_, errs := createConcurrently(t, svc, 2)
	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.ErrorIs(t, err, shared.ErrPersistence)
			assert.True(t, shared.IsDuplicateSequence(err))
		}
	}
	assert.Equal(t, 1, failed)
	assert.Len(t, store.Entries(), 1)
}

func assertGapless(t *testing.T, entries []journals.JournalEntry, errs []error) {
	t.Helper()
	sequences := make([]int64, 0, len(entries))
	for i, entry := range entries {
		require.NoError(t, errs[i])
		sequences = append(sequences, entry.Sequence)
	}
	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })
	for i, seq := range sequences {
		assert.Equal(t, int64(i+1), seq)
	}
}

func TestAdvisoryLockSerialisesSequences(t *testing.T) {
	store := newStore()
	store.UniqueSequences = true
	store.AfterMaxRead = func(journals.SequenceKey) { time.Sleep(time.Millisecond) }
	svc := journals.NewService(dbtest.NewTransactor(), store, journals.WithLogger(discardLogger()))

	entries, errs := createConcurrently(t, svc, 20)
	assertGapless(t, entries, errs)
	assert.Len(t, store.Entries(), 20)
}

func TestRedisLockSerialisesSequences(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newStore()
	store.UniqueSequences = true
	store.AfterMaxRead = func(journals.SequenceKey) { time.Sleep(time.Millisecond) }
	svc := journals.NewService(dbtest.NewTransactor(), store,
		journals.WithSequenceLocker(journals.NewRedisLocker(client, 10*time.Second)),
		journals.WithLogger(discardLogger()))

	entries, errs := createConcurrently(t, svc, 8)
	assertGapless(t, entries, errs)
	assert.Empty(t, mr.Keys())
}
