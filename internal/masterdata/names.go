// Package masterdata resolves display names of ledger lookups (accounts, currencies,
// cost centers, clients and providers).
package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
)

// Kind names a lookup table.
type Kind string

const (
	KindAccount    Kind = "account"
	KindCurrency   Kind = "currency"
	KindCostCenter Kind = "cost_center"
	KindClient     Kind = "client"
	KindProvider   Kind = "provider"
)

// ErrUnknown is returned when a lookup id does not exist for the company.
var ErrUnknown = errors.New("masterdata: unknown id")

// Name is the display form of a lookup row.
type Name struct {
	Code string `json:"code,omitempty"`
	Name string `json:"name"`
}

// Source loads names from the system of record.
type Source interface {
	Lookup(ctx context.Context, companyID int64, kind Kind, id int64) (Name, error)
}

var lookupQueries = map[Kind]string{
	KindAccount:    `SELECT code, name FROM accounts WHERE company_id=$1 AND id=$2`,
	KindCurrency:   `SELECT code, name FROM currencies WHERE id=$2 AND (company_id IS NULL OR company_id=$1)`,
	KindCostCenter: `SELECT code, name FROM cost_centers WHERE company_id=$1 AND id=$2`,
	KindClient:     `SELECT tax_id, name FROM clients WHERE company_id=$1 AND id=$2`,
	KindProvider:   `SELECT tax_id, name FROM providers WHERE company_id=$1 AND id=$2`,
}

// PostgresSource reads names with pgx.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Lookup(ctx context.Context, companyID int64, kind Kind, id int64) (Name, error) {
	query, ok := lookupQueries[kind]
	if !ok {
		return Name{}, fmt.Errorf("masterdata: unsupported kind %q", kind)
	}
	var n Name
	var code *string
	if err := s.pool.QueryRow(ctx, query, companyID, id).Scan(&code, &n.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Name{}, ErrUnknown
		}
		return Name{}, err
	}
	if code != nil {
		n.Code = *code
	}
	return n, nil
}

// Resolver caches names in redis and collapses concurrent loads of the same id.
type Resolver struct {
	source Source
	cache  *cache.JSONCache
	group  singleflight.Group
}

// NewResolver builds a Resolver. A nil cache disables caching.
func NewResolver(source Source, c *cache.JSONCache) *Resolver {
	return &Resolver{source: source, cache: c}
}

// Name returns the display name of id.
func (r *Resolver) Name(ctx context.Context, companyID int64, kind Kind, id int64) (Name, error) {
	key, err := r.cache.BuildKey(ctx, string(kind), strconv.FormatInt(companyID, 10), strconv.FormatInt(id, 10))
	if err != nil {
		return r.source.Lookup(ctx, companyID, kind, id)
	}
	ch := r.group.DoChan(key, func() (any, error) {
		var n Name
		err := r.cache.FetchJSON(ctx, key, &n, func(ctx context.Context) (any, error) {
			return r.source.Lookup(ctx, companyID, kind, id)
		})
		return n, err
	})
	select {
	case <-ctx.Done():
		return Name{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Name{}, res.Err
		}
		return res.Val.(Name), nil
	}
}

// Resolve fills the display fields of entry's lines. Unknown ids are left blank.
func (r *Resolver) Resolve(ctx context.Context, companyID int64, entry *journals.JournalEntry) error {
	var errs []error
	lookup := func(kind Kind, id int64) Name {
		n, err := r.Name(ctx, companyID, kind, id)
		if err != nil && !errors.Is(err, ErrUnknown) {
			errs = append(errs, fmt.Errorf("%s %d: %w", kind, id, err))
		}
		return n
	}
	for i := range entry.Lines {
		line := &entry.Lines[i]
		account := lookup(KindAccount, line.AccountID)
		line.AccountCode, line.AccountName = account.Code, account.Name
		line.CurrencyName = lookup(KindCurrency, line.CurrencyID).Name
		if line.CostCenterID != nil {
			line.CostCenterName = lookup(KindCostCenter, *line.CostCenterID).Name
		}
		if cp := line.Counterparty; cp != nil {
			kind := KindClient
			if cp.Kind == journals.CounterpartyProvider {
				kind = KindProvider
			}
			line.CounterpartyName = lookup(kind, cp.ID).Name
		}
	}
	return errors.Join(errs...)
}

var _ journals.DisplayResolver = (*Resolver)(nil)
