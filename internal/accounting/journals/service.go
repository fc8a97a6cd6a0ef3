package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ModuleName tags audit records and units of work opened by the ledger itself.
const ModuleName = "accounting"

// Auditor receives audit records. Implementations must not block.
type Auditor interface {
	Record(ctx context.Context, rec audit.Record)
}

// AccountDirectory exposes chart of accounts flags used for advisory checks.
type AccountDirectory interface {
	Lookup(ctx context.Context, companyID int64, ids []int64) (map[int64]accounts.Account, error)
}

// DisplayResolver fills display-only fields of an entry's lines.
type DisplayResolver interface {
	Resolve(ctx context.Context, companyID int64, entry *JournalEntry) error
}

// Metrics observes posting outcomes.
type Metrics interface {
	SequenceObserver
	ObservePosting(operation, outcome string)
}

// Service manages the lifecycle of journal entries.
type Service struct {
	tx       db.Transactor
	repo     Repository
	locker   SequenceLocker
	seq      *Sequencer
	audit    Auditor
	accounts AccountDirectory
	names    DisplayResolver
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

func WithSequenceLocker(locker SequenceLocker) Option {
	return func(s *Service) { s.locker = locker }
}

func WithAuditor(a Auditor) Option { return func(s *Service) { s.audit = a } }

func WithAccountDirectory(d AccountDirectory) Option { return func(s *Service) { s.accounts = d } }

func WithDisplayResolver(r DisplayResolver) Option { return func(s *Service) { s.names = r } }

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the journal service. The sequence lock defaults to AdvisoryLocker.
func NewService(tx db.Transactor, repo Repository, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		repo:   repo,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.seq = NewSequencer(s.locker, s.metrics)
	return s
}

// Create posts a new balanced entry in its own unit of work.
func (s *Service) Create(ctx context.Context, in CreateInput, actor internalShared.Actor) (JournalEntry, error) {
	var entry JournalEntry
	err := s.tx.InTx(ctx, ModuleName, func(ctx context.Context, uow db.UnitOfWork) error {
		repo, err := s.repo.Bind(uow)
		if err != nil {
			return err
		}
		entry, err = s.post(ctx, uow, repo, in, actor)
		return err
	})
	s.observe("create", err)
	if err != nil {
		s.record(ctx, ModuleName, actor, in.CompanyID, audit.KindCreate, 0, nil, in, err)
		return JournalEntry{}, err
	}
	s.record(ctx, ModuleName, actor, entry.CompanyID, audit.KindCreate, entry.ID, nil, entry, nil)
	return entry, nil
}

// post validates and inserts an entry on uow. It never commits.
func (s *Service) post(ctx context.Context, uow db.UnitOfWork, repo TxRepository, in CreateInput, actor internalShared.Actor) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	lines := toLines(in.Lines, in.CurrencyID)
	totals, err := Balance(lines)
	if err != nil {
		return JournalEntry{}, err
	}
	entryType, err := repo.GetEntryType(ctx, in.CompanyID, in.EntryTypeID)
	if err != nil {
		return JournalEntry{}, err
	}
	period, err := repo.GetPeriod(ctx, in.CompanyID, in.PeriodID)
	if err != nil {
		return JournalEntry{}, err
	}
	s.checkAccounts(ctx, in.CompanyID, lines)

	key := SequenceKey{CompanyID: in.CompanyID, PeriodID: in.PeriodID, EntryTypeID: in.EntryTypeID}
	sequence, err := s.seq.Next(ctx, uow, repo, key)
	if err != nil {
		return JournalEntry{}, err
	}
	rate := in.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	entry, err := repo.InsertEntry(ctx, JournalEntry{
		CompanyID:      in.CompanyID,
		PeriodID:       in.PeriodID,
		EntryTypeID:    in.EntryTypeID,
		Sequence:       sequence,
		DocumentNumber: FormatDocumentNumber(entryType.Code, period.FiscalYear, period.FiscalMonth, sequence),
		PostingDate:    in.PostingDate,
		CurrencyID:     in.CurrencyID,
		ExchangeRate:   rate,
		Description:    in.Description,
		TotalDebit:     totals.Debit,
		TotalCredit:    totals.Credit,
		Status:         JournalStatusBalanced,
		Origin:         in.Origin,
		CreatedBy:      actor.ID,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = repo.InsertLines(ctx, entry.ID, lines)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Update merges patch into the header and, when newLines is non-nil, replaces the line set.
func (s *Service) Update(ctx context.Context, id, companyID int64, patch HeaderPatch, newLines *[]LineInput, actor internalShared.Actor) (JournalEntry, error) {
	var before, after JournalEntry
	err := s.tx.InTx(ctx, ModuleName, func(ctx context.Context, uow db.UnitOfWork) error {
		repo, err := s.repo.Bind(uow)
		if err != nil {
			return err
		}
		current, err := repo.GetEntryForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		before = current
		if current.Status == JournalStatusCancelled {
			return shared.Invalid(shared.ErrInvalidStatus, "journal %s is cancelled", current.DocumentNumber)
		}
		next, err := mergeHeader(current, patch)
		if err != nil {
			return err
		}
		if err := validateHeader(next); err != nil {
			return err
		}
		if newLines != nil {
			if err := ValidateLines(*newLines); err != nil {
				return err
			}
			lines := toLines(*newLines, next.CurrencyID)
			totals, err := Balance(lines)
			if err != nil {
				return err
			}
			s.checkAccounts(ctx, companyID, lines)
			if err := repo.DeleteLines(ctx, current.ID); err != nil {
				return err
			}
			next.Lines, err = repo.InsertLines(ctx, current.ID, lines)
			if err != nil {
				return err
			}
			next.TotalDebit, next.TotalCredit = totals.Debit, totals.Credit
		}
		now := s.now()
		next.UpdatedBy = &actor.ID
		next.UpdatedAt = &now
		if err := repo.UpdateEntry(ctx, next); err != nil {
			return err
		}
		after = next
		return nil
	})
	s.observe("update", err)
	if err != nil {
		attempted := map[string]any{"header": patch, "lines": newLines}
		s.record(ctx, ModuleName, actor, companyID, audit.KindUpdate, id, nullable(before), attempted, err)
		return JournalEntry{}, err
	}
	s.record(ctx, ModuleName, actor, companyID, audit.KindUpdate, id, before, after, nil)
	return after, nil
}

// mergeHeader applies patch to current. Description and origin may be cleared with null;
// posting date, currency and exchange rate may not.
func mergeHeader(current JournalEntry, patch HeaderPatch) (JournalEntry, error) {
	switch {
	case patch.PostingDate.Null:
		return JournalEntry{}, shared.Invalid(shared.ErrValidation, "posting_date cannot be cleared")
	case patch.CurrencyID.Null:
		return JournalEntry{}, shared.Invalid(shared.ErrValidation, "currency_id cannot be cleared")
	case patch.ExchangeRate.Null:
		return JournalEntry{}, shared.Invalid(shared.ErrValidation, "exchange_rate cannot be cleared")
	}
	next := current
	next.PostingDate = patch.PostingDate.Apply(current.PostingDate)
	next.CurrencyID = patch.CurrencyID.Apply(current.CurrencyID)
	next.ExchangeRate = patch.ExchangeRate.Apply(current.ExchangeRate)
	next.Description = patch.Description.Apply(current.Description)
	next.Origin = patch.Origin.ApplyPtr(current.Origin)
	return next, nil
}

func validateHeader(e JournalEntry) error {
	switch {
	case e.CurrencyID <= 0:
		return shared.Invalid(shared.ErrValidation, "currency required")
	case !e.ExchangeRate.IsPositive():
		return shared.Invalid(shared.ErrValidation, "exchange rate must be positive")
	case len(e.Description) > 500:
		return shared.Invalid(shared.ErrValidation, "description too long")
	case e.Origin != nil && (e.Origin.Table == "" || e.Origin.RecordID <= 0):
		return shared.Invalid(shared.ErrValidation, "origin requires table and record id")
	}
	return nil
}

// Cancel marks the entry CANCELLED. Lines are kept and no reversing entry is posted.
// Cancelling an already cancelled entry succeeds without changes.
func (s *Service) Cancel(ctx context.Context, id, companyID int64, actor internalShared.Actor) (JournalEntry, error) {
	var before, after JournalEntry
	err := s.tx.InTx(ctx, ModuleName, func(ctx context.Context, uow db.UnitOfWork) error {
		repo, err := s.repo.Bind(uow)
		if err != nil {
			return err
		}
		current, err := repo.GetEntryForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		before, after = current, current
		if current.Status == JournalStatusCancelled {
			return nil
		}
		now := s.now()
		if err := repo.UpdateStatus(ctx, companyID, id, JournalStatusCancelled, actor.ID, now); err != nil {
			return err
		}
		after.Status = JournalStatusCancelled
		after.UpdatedBy = &actor.ID
		after.UpdatedAt = &now
		return nil
	})
	s.observe("cancel", err)
	if err != nil {
		s.record(ctx, ModuleName, actor, companyID, audit.KindLogicalDelete, id, nullable(before), nil, err)
		return JournalEntry{}, err
	}
	s.record(ctx, ModuleName, actor, companyID, audit.KindLogicalDelete, id, before, after, nil)
	return after, nil
}

// Reverse posts a new entry with debits and credits swapped, pointing back at the original.
func (s *Service) Reverse(ctx context.Context, id, companyID int64, in ReverseInput, actor internalShared.Actor) (JournalEntry, error) {
	var original, reversal JournalEntry
	var attempted CreateInput
	err := s.tx.InTx(ctx, ModuleName, func(ctx context.Context, uow db.UnitOfWork) error {
		repo, err := s.repo.Bind(uow)
		if err != nil {
			return err
		}
		original, err = repo.GetEntryForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if original.Status != JournalStatusBalanced {
			return shared.Invalid(shared.ErrInvalidStatus, "journal %s is %s", original.DocumentNumber, original.Status)
		}
		attempted = reversalInput(original, in)
		reversal, err = s.post(ctx, uow, repo, attempted, actor)
		if err != nil {
			return err
		}
		if in.CancelOriginal {
			return repo.UpdateStatus(ctx, companyID, original.ID, JournalStatusCancelled, actor.ID, s.now())
		}
		return nil
	})
	s.observe("reverse", err)
	if err != nil {
		s.record(ctx, ModuleName, actor, companyID, audit.KindCreate, 0, nil, attempted, err)
		return JournalEntry{}, err
	}
	s.record(ctx, ModuleName, actor, companyID, audit.KindCreate, reversal.ID, nil, reversal, nil)
	if in.CancelOriginal {
		cancelled := original
		cancelled.Status = JournalStatusCancelled
		s.record(ctx, ModuleName, actor, companyID, audit.KindLogicalDelete, original.ID, original, cancelled, nil)
	}
	return reversal, nil
}

func reversalInput(original JournalEntry, in ReverseInput) CreateInput {
	lines := make([]LineInput, 0, len(original.Lines))
	for _, line := range original.Lines {
		lines = append(lines, LineInput{
			LineNo:       line.LineNo,
			AccountID:    line.AccountID,
			Debit:        line.Credit,
			Credit:       line.Debit,
			CurrencyID:   line.CurrencyID,
			CostCenterID: line.CostCenterID,
			Counterparty: line.Counterparty,
			DocumentRef:  line.DocumentRef,
			DocumentDate: line.DocumentDate,
		})
	}
	out := CreateInput{
		CompanyID:    original.CompanyID,
		PeriodID:     original.PeriodID,
		EntryTypeID:  original.EntryTypeID,
		PostingDate:  original.PostingDate,
		CurrencyID:   original.CurrencyID,
		ExchangeRate: original.ExchangeRate,
		Description:  in.Description,
		Origin:       &Origin{Table: TableJournalEntries, RecordID: original.ID},
		Lines:        lines,
	}
	if in.PeriodID > 0 {
		out.PeriodID = in.PeriodID
	}
	if in.PostingDate != nil {
		out.PostingDate = *in.PostingDate
	}
	if out.Description == "" {
		out.Description = fmt.Sprintf("Reversal of %s", original.DocumentNumber)
	}
	return out
}

// Get returns the entry with its lines ordered by line number.
func (s *Service) Get(ctx context.Context, id, companyID int64) (JournalEntry, error) {
	entry, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return JournalEntry{}, err
	}
	if s.names != nil {
		if err := s.names.Resolve(ctx, companyID, &entry); err != nil {
			s.logger.Warn("resolve journal display names", slog.Int64("entry_id", id), slog.Any("error", err))
		}
	}
	return entry, nil
}

// List returns entry headers matching filter.
func (s *Service) List(ctx context.Context, companyID int64, filter ListFilter) ([]JournalEntry, error) {
	return s.repo.List(ctx, companyID, filter)
}

// checkAccounts logs lines missing a dimension their account asks for. It never fails a posting.
func (s *Service) checkAccounts(ctx context.Context, companyID int64, lines []JournalLine) {
	if s.accounts == nil {
		return
	}
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.AccountID)
	}
	found, err := s.accounts.Lookup(ctx, companyID, ids)
	if err != nil {
		s.logger.Debug("account flags unavailable", slog.Any("error", err))
		return
	}
	for _, line := range lines {
		acct, ok := found[line.AccountID]
		if !ok {
			continue
		}
		if acct.RequiresCostCenter && line.CostCenterID == nil {
			s.logger.Warn("journal line missing cost center",
				slog.Int64("company_id", companyID), slog.String("account", acct.Code), slog.Int("line_no", line.LineNo))
		}
		if acct.RequiresThirdParty && line.Counterparty == nil {
			s.logger.Warn("journal line missing third party",
				slog.Int64("company_id", companyID), slog.String("account", acct.Code), slog.Int("line_no", line.LineNo))
		}
	}
}

func (s *Service) record(ctx context.Context, module string, actor internalShared.Actor, companyID int64, kind audit.Kind, recordID int64, before, after any, err error) {
	if s.audit == nil {
		return
	}
	rec := audit.Record{
		CompanyID: companyID,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Module:    module,
		Kind:      kind,
		Table:     TableJournalEntries,
		RecordID:  recordID,
		Before:    audit.Snapshot(before),
		After:     audit.Snapshot(after),
		Success:   err == nil,
		At:        s.now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	s.audit.Record(ctx, rec)
}

func (s *Service) observe(operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObservePosting(operation, Outcome(err))
}

// Outcome classifies err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrReferenceNotFound):
		return "reference_not_found"
	case errors.Is(err, shared.ErrPersistence):
		return "persistence"
	default:
		return "error"
	}
}

// nullable drops zero-valued snapshots so audit rows store NULL instead of an empty entry.
func nullable(e JournalEntry) any {
	if e.ID == 0 {
		return nil
	}
	return e
}
