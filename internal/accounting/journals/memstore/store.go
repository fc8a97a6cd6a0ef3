// Package memstore is an in-memory journals.Repository bound to dbtest units.
// Writes are staged per unit and become visible to other units only after commit.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db/dbtest"
)

// ErrUnboundUnit is returned by Bind for units not created by dbtest.
var ErrUnboundUnit = errors.New("memstore: unit of work is not a dbtest unit")

type entryTypeKey struct {
	companyID int64
	id        int64
}

type sequenceClaim struct {
	key      journals.SequenceKey
	sequence int64
}

// Store keeps committed entries in memory.
type Store struct {
	// UniqueSequences rejects a second entry claiming the same sequence of a key,
	// including claims of units that have not committed yet.
	UniqueSequences bool
	// AfterMaxRead runs between reading the current max sequence and returning it.
	AfterMaxRead func(key journals.SequenceKey)
	// Fail, when set, is consulted before every write; a non-nil result aborts that write.
	Fail func(op string) error

	mu          sync.Mutex
	nextEntryID int64
	nextLineID  int64
	entries     map[int64]journals.JournalEntry
	entryTypes  map[entryTypeKey]journals.EntryType
	periods     map[entryTypeKey]periods.Period
	claims      map[sequenceClaim]*dbtest.Unit
	units       map[*dbtest.Unit]*txRepository

	lockMu   sync.Mutex
	seqLocks map[journals.SequenceKey]*sync.Mutex
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries:    make(map[int64]journals.JournalEntry),
		entryTypes: make(map[entryTypeKey]journals.EntryType),
		periods:    make(map[entryTypeKey]periods.Period),
		claims:     make(map[sequenceClaim]*dbtest.Unit),
		units:      make(map[*dbtest.Unit]*txRepository),
		seqLocks:   make(map[journals.SequenceKey]*sync.Mutex),
	}
}

// AddEntryType registers an entry type for a company.
func (s *Store) AddEntryType(companyID int64, et journals.EntryType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryTypes[entryTypeKey{companyID, et.ID}] = et
}

// AddPeriod registers a fiscal period.
func (s *Store) AddPeriod(p periods.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods[entryTypeKey{p.CompanyID, p.ID}] = p
}

// Entries returns committed entries ordered by id.
func (s *Store) Entries() []journals.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]journals.JournalEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Bind(uow db.UnitOfWork) (journals.TxRepository, error) {
	unit, ok := uow.(*dbtest.Unit)
	if !ok || unit == nil {
		return nil, ErrUnboundUnit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if repo, ok := s.units[unit]; ok {
		return repo, nil
	}
	repo := &txRepository{store: s, unit: unit, dirty: make(map[int64]journals.JournalEntry)}
	s.units[unit] = repo
	unit.OnComplete(func(_ context.Context, committed bool) {
		s.finish(repo, committed)
	})
	return repo, nil
}

func (s *Store) Get(_ context.Context, companyID, id int64) (journals.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.CompanyID != companyID {
		return journals.JournalEntry{}, shared.ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *Store) List(_ context.Context, companyID int64, filter journals.ListFilter) ([]journals.JournalEntry, error) {
	s.mu.Lock()
	var out []journals.JournalEntry
	for _, e := range s.entries {
		if e.CompanyID == companyID && filter.Match(e) {
			header := cloneEntry(e)
			header.Lines = nil
			out = append(out, header)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostingDate.Equal(out[j].PostingDate) {
			return out[i].PostingDate.After(out[j].PostingDate)
		}
		return out[i].DocumentNumber > out[j].DocumentNumber
	})
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) finish(repo *txRepository, committed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if committed {
		for id, e := range repo.dirty {
			s.entries[id] = e
		}
	}
	for claim, owner := range s.claims {
		if owner == repo.unit {
			delete(s.claims, claim)
		}
	}
	delete(s.units, repo.unit)
}

func (s *Store) sequenceLock(key journals.SequenceKey) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.seqLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.seqLocks[key] = mu
	}
	return mu
}

type txRepository struct {
	store *Store
	unit  *dbtest.Unit
	dirty map[int64]journals.JournalEntry
}

func (r *txRepository) fail(op string) error {
	if r.store.Fail == nil {
		return nil
	}
	if err := r.store.Fail(op); err != nil {
		return &shared.PersistenceError{Op: op, Err: err}
	}
	return nil
}

func (r *txRepository) LockSequence(ctx context.Context, key journals.SequenceKey) error {
	mu := r.store.sequenceLock(key)
	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-ctx.Done():
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return ctx.Err()
	}
	r.unit.OnComplete(func(context.Context, bool) { mu.Unlock() })
	return nil
}

func (r *txRepository) MaxSequence(_ context.Context, key journals.SequenceKey) (int64, error) {
	r.store.mu.Lock()
	var max int64
	for id, e := range r.store.entries {
		if _, shadowed := r.dirty[id]; !shadowed && keyOf(e) == key && e.Sequence > max {
			max = e.Sequence
		}
	}
	for _, e := range r.dirty {
		if keyOf(e) == key && e.Sequence > max {
			max = e.Sequence
		}
	}
	r.store.mu.Unlock()
	if hook := r.store.AfterMaxRead; hook != nil {
		hook(key)
	}
	return max, nil
}

func (r *txRepository) GetEntryType(_ context.Context, companyID, entryTypeID int64) (journals.EntryType, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	et, ok := r.store.entryTypes[entryTypeKey{companyID, entryTypeID}]
	if !ok {
		return journals.EntryType{}, &shared.ReferenceError{Kind: "entry type", ID: entryTypeID}
	}
	return et, nil
}

func (r *txRepository) GetPeriod(_ context.Context, companyID, periodID int64) (periods.Period, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.periods[entryTypeKey{companyID, periodID}]
	if !ok {
		return periods.Period{}, &shared.ReferenceError{Kind: "fiscal period", ID: periodID}
	}
	return p, nil
}

func (r *txRepository) InsertEntry(_ context.Context, entry journals.JournalEntry) (journals.JournalEntry, error) {
	if err := r.fail("insert journal entry"); err != nil {
		return journals.JournalEntry{}, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.UniqueSequences {
		claim := sequenceClaim{key: keyOf(entry), sequence: entry.Sequence}
		if r.store.sequenceTaken(claim) {
			return journals.JournalEntry{}, &shared.PersistenceError{
				Op:         "insert journal entry",
				Constraint: shared.ConstraintSequence,
				Err:        errors.New("duplicate key value violates unique constraint"),
			}
		}
		r.store.claims[claim] = r.unit
	}
	r.store.nextEntryID++
	entry.ID = r.store.nextEntryID
	entry.Lines = nil
	r.dirty[entry.ID] = entry
	return cloneEntry(entry), nil
}

func (s *Store) sequenceTaken(claim sequenceClaim) bool {
	if _, ok := s.claims[claim]; ok {
		return true
	}
	for _, e := range s.entries {
		if keyOf(e) == claim.key && e.Sequence == claim.sequence {
			return true
		}
	}
	return false
}

func (r *txRepository) InsertLines(_ context.Context, entryID int64, lines []journals.JournalLine) ([]journals.JournalLine, error) {
	if err := r.fail("insert journal line"); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry, ok := r.load(entryID)
	if !ok {
		return nil, &shared.PersistenceError{Op: "insert journal line", Constraint: "fk_journal_lines_entry", Err: shared.ErrNotFound}
	}
	out := make([]journals.JournalLine, 0, len(lines))
	for _, line := range lines {
		r.store.nextLineID++
		line.ID = r.store.nextLineID
		line.EntryID = entryID
		out = append(out, line)
	}
	entry.Lines = append(entry.Lines, out...)
	sort.SliceStable(entry.Lines, func(i, j int) bool { return entry.Lines[i].LineNo < entry.Lines[j].LineNo })
	r.dirty[entryID] = entry
	return out, nil
}

func (r *txRepository) GetEntryForUpdate(_ context.Context, companyID, id int64) (journals.JournalEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry, ok := r.load(id)
	if !ok || entry.CompanyID != companyID {
		return journals.JournalEntry{}, shared.ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (r *txRepository) UpdateEntry(_ context.Context, entry journals.JournalEntry) error {
	if err := r.fail("update journal entry"); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.load(entry.ID)
	if !ok || current.CompanyID != entry.CompanyID {
		return shared.ErrNotFound
	}
	current.PostingDate = entry.PostingDate
	current.CurrencyID = entry.CurrencyID
	current.ExchangeRate = entry.ExchangeRate
	current.Description = entry.Description
	current.TotalDebit = entry.TotalDebit
	current.TotalCredit = entry.TotalCredit
	current.Origin = entry.Origin
	current.UpdatedBy = entry.UpdatedBy
	current.UpdatedAt = entry.UpdatedAt
	r.dirty[entry.ID] = current
	return nil
}

func (r *txRepository) DeleteLines(_ context.Context, entryID int64) error {
	if err := r.fail("delete journal lines"); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry, ok := r.load(entryID)
	if !ok {
		return nil
	}
	entry.Lines = nil
	r.dirty[entryID] = entry
	return nil
}

func (r *txRepository) UpdateStatus(_ context.Context, companyID, id int64, status journals.JournalStatus, actorID int64, at time.Time) error {
	if err := r.fail("update journal status"); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry, ok := r.load(id)
	if !ok || entry.CompanyID != companyID {
		return shared.ErrNotFound
	}
	entry.Status = status
	entry.UpdatedBy = &actorID
	entry.UpdatedAt = &at
	r.dirty[id] = entry
	return nil
}

// load returns the unit's view of an entry. Caller holds store.mu.
func (r *txRepository) load(id int64) (journals.JournalEntry, bool) {
	if e, ok := r.dirty[id]; ok {
		return e, true
	}
	e, ok := r.store.entries[id]
	if !ok {
		return journals.JournalEntry{}, false
	}
	return cloneEntry(e), true
}

func keyOf(e journals.JournalEntry) journals.SequenceKey {
	return journals.SequenceKey{CompanyID: e.CompanyID, PeriodID: e.PeriodID, EntryTypeID: e.EntryTypeID}
}

func cloneEntry(e journals.JournalEntry) journals.JournalEntry {
	if e.Lines != nil {
		e.Lines = append([]journals.JournalLine(nil), e.Lines...)
	}
	return e
}

var _ journals.Repository = (*Store)(nil)
