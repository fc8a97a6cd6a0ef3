package journals

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Filter keys accepted by List.
const (
	FilterStatus          = "status"
	FilterPeriodID        = "period_id"
	FilterEntryTypeID     = "entry_type_id"
	FilterCurrencyID      = "currency_id"
	FilterPostingDateFrom = "posting_date_from"
	FilterPostingDateTo   = "posting_date_to"
	FilterOriginTable     = "origin_table"

	pageLimit  = "limit"
	pageOffset = "offset"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var allowedFilters = map[string]struct{}{
	FilterStatus:          {},
	FilterPeriodID:        {},
	FilterEntryTypeID:     {},
	FilterCurrencyID:      {},
	FilterPostingDateFrom: {},
	FilterPostingDateTo:   {},
	FilterOriginTable:     {},
	pageLimit:             {},
	pageOffset:            {},
}

// ListFilter narrows List results. Nil fields are ignored.
type ListFilter struct {
	Status          *JournalStatus
	PeriodID        *int64
	EntryTypeID     *int64
	CurrencyID      *int64
	PostingDateFrom *time.Time
	PostingDateTo   *time.Time
	OriginTable     *string
	Limit           int
	Offset          int
}

// ParseListFilter builds a ListFilter from query values. Keys outside the allow-list are rejected.
func ParseListFilter(values url.Values) (ListFilter, error) {
	var f ListFilter
	var unknown []string
	for key := range values {
		if _, ok := allowedFilters[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return f, shared.Invalid(shared.ErrInvalidFilter, "unsupported keys: %s", strings.Join(unknown, ", "))
	}
	if raw := values.Get(FilterStatus); raw != "" {
		status := JournalStatus(strings.ToUpper(raw))
		if status != JournalStatusBalanced && status != JournalStatusCancelled {
			return f, shared.Invalid(shared.ErrInvalidFilter, "status %q", raw)
		}
		f.Status = &status
	}
	var err error
	if f.PeriodID, err = parseID(values, FilterPeriodID); err != nil {
		return f, err
	}
	if f.EntryTypeID, err = parseID(values, FilterEntryTypeID); err != nil {
		return f, err
	}
	if f.CurrencyID, err = parseID(values, FilterCurrencyID); err != nil {
		return f, err
	}
	if f.PostingDateFrom, err = parseDate(values, FilterPostingDateFrom); err != nil {
		return f, err
	}
	if f.PostingDateTo, err = parseDate(values, FilterPostingDateTo); err != nil {
		return f, err
	}
	if raw := values.Get(FilterOriginTable); raw != "" {
		f.OriginTable = &raw
	}
	if raw := values.Get(pageLimit); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil || f.Limit < 0 {
			return f, shared.Invalid(shared.ErrInvalidFilter, "limit %q", raw)
		}
	}
	if raw := values.Get(pageOffset); raw != "" {
		if f.Offset, err = strconv.Atoi(raw); err != nil || f.Offset < 0 {
			return f, shared.Invalid(shared.ErrInvalidFilter, "offset %q", raw)
		}
	}
	return f, nil
}

func parseID(values url.Values, key string) (*int64, error) {
	raw := values.Get(key)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, shared.Invalid(shared.ErrInvalidFilter, "%s %q", key, raw)
	}
	return &id, nil
}

func parseDate(values url.Values, key string) (*time.Time, error) {
	raw := values.Get(key)
	if raw == "" {
		return nil, nil
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, shared.Invalid(shared.ErrInvalidFilter, "%s %q", key, raw)
	}
	return &date, nil
}

// Predicates renders the filter as SQL conditions over the je alias. Values are always bound.
func (f ListFilter) Predicates(companyID int64) ([]string, []any) {
	conditions := []string{"je.company_id = $1"}
	args := []any{companyID}
	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s $%d", column, len(args)))
	}
	if f.Status != nil {
		add("je.status =", string(*f.Status))
	}
	if f.PeriodID != nil {
		add("je.period_id =", *f.PeriodID)
	}
	if f.EntryTypeID != nil {
		add("je.entry_type_id =", *f.EntryTypeID)
	}
	if f.CurrencyID != nil {
		add("je.currency_id =", *f.CurrencyID)
	}
	if f.PostingDateFrom != nil {
		add("je.posting_date >=", *f.PostingDateFrom)
	}
	if f.PostingDateTo != nil {
		add("je.posting_date <=", *f.PostingDateTo)
	}
	if f.OriginTable != nil {
		add("je.origin_table =", *f.OriginTable)
	}
	return conditions, args
}

// Match applies the filter to an entry already loaded in memory.
func (f ListFilter) Match(e JournalEntry) bool {
	switch {
	case f.Status != nil && e.Status != *f.Status:
		return false
	case f.PeriodID != nil && e.PeriodID != *f.PeriodID:
		return false
	case f.EntryTypeID != nil && e.EntryTypeID != *f.EntryTypeID:
		return false
	case f.CurrencyID != nil && e.CurrencyID != *f.CurrencyID:
		return false
	case f.PostingDateFrom != nil && e.PostingDate.Before(*f.PostingDateFrom):
		return false
	case f.PostingDateTo != nil && e.PostingDate.After(*f.PostingDateTo):
		return false
	case f.OriginTable != nil && (e.Origin == nil || e.Origin.Table != *f.OriginTable):
		return false
	}
	return true
}

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}
