package masterdata

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
)

type stubSource struct {
	calls atomic.Int64
	names map[Kind]map[int64]Name
}

func (s *stubSource) Lookup(ctx context.Context, companyID int64, kind Kind, id int64) (Name, error) {
	s.calls.Add(1)
	n, ok := s.names[kind][id]
	if !ok {
		return Name{}, ErrUnknown
	}
	return n, nil
}

func newStubSource() *stubSource {
	return &stubSource{names: map[Kind]map[int64]Name{
		KindAccount:    {1201: {Code: "1201", Name: "Clientes nacionales"}, 4011: {Code: "4011", Name: "Ventas"}},
		KindCurrency:   {1: {Code: "PEN", Name: "Sol"}},
		KindCostCenter: {3: {Code: "ADM", Name: "Administración"}},
		KindClient:     {55: {Code: "20100070970", Name: "Supermercados SA"}},
	}}
}

func newTestResolver(t *testing.T, source Source) (*Resolver, *cache.JSONCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.NewJSONCache(client, "masterdata", time.Minute)
	return NewResolver(source, c), c
}

func TestNameIsCached(t *testing.T) {
	source := newStubSource()
	resolver, c := newTestResolver(t, source)
	ctx := context.Background()

	n, err := resolver.Name(ctx, 1, KindAccount, 1201)
	require.NoError(t, err)
	assert.Equal(t, "Clientes nacionales", n.Name)

	_, err = resolver.Name(ctx, 1, KindAccount, 1201)
	require.NoError(t, err)
	assert.Equal(t, int64(1), source.calls.Load())

	require.NoError(t, c.Bump(ctx))
	_, err = resolver.Name(ctx, 1, KindAccount, 1201)
	require.NoError(t, err)
	assert.Equal(t, int64(2), source.calls.Load())
}

func TestConcurrentLookupsShareOneLoad(t *testing.T) {
	source := newStubSource()
	resolver, _ := newTestResolver(t, source)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := resolver.Name(ctx, 1, KindCurrency, 1)
			assert.NoError(t, err)
			assert.Equal(t, "Sol", n.Name)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, source.calls.Load(), int64(10))
	assert.GreaterOrEqual(t, source.calls.Load(), int64(1))
}

func TestResolveFillsLineNames(t *testing.T) {
	resolver, _ := newTestResolver(t, newStubSource())
	costCenter := int64(3)
	entry := journals.JournalEntry{Lines: []journals.JournalLine{
		{AccountID: 1201, CurrencyID: 1, Counterparty: &journals.Counterparty{Kind: journals.CounterpartyClient, ID: 55}},
		{AccountID: 4011, CurrencyID: 1, CostCenterID: &costCenter},
		{AccountID: 9999, CurrencyID: 1},
	}}

	require.NoError(t, resolver.Resolve(context.Background(), 1, &entry))
	assert.Equal(t, "1201", entry.Lines[0].AccountCode)
	assert.Equal(t, "Supermercados SA", entry.Lines[0].CounterpartyName)
	assert.Equal(t, "Sol", entry.Lines[0].CurrencyName)
	assert.Equal(t, "Administración", entry.Lines[1].CostCenterName)
	assert.Empty(t, entry.Lines[2].AccountName)
}

func TestResolverWithoutCache(t *testing.T) {
	source := newStubSource()
	resolver := NewResolver(source, nil)
	for i := 0; i < 2; i++ {
		n, err := resolver.Name(context.Background(), 1, KindAccount, 4011)
		require.NoError(t, err)
		assert.Equal(t, "Ventas", n.Name)
	}
	assert.Equal(t, int64(2), source.calls.Load())
}
