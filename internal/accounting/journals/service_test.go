package journals_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db/dbtest"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	testNow   = time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)
	testActor = internalShared.Actor{ID: 7, Name: "Ana Contable"}
)

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore() *memstore.Store {
	store := memstore.New()
	store.AddEntryType(1, journals.EntryType{ID: 1, Code: "DI", Name: "Diario"})
	store.AddEntryType(1, journals.EntryType{ID: 2, Code: "FC", Name: "Facturas de cliente"})
	store.AddEntryType(2, journals.EntryType{ID: 2, Code: "FC", Name: "Facturas de cliente"})
	store.AddPeriod(periods.Period{ID: 1, CompanyID: 1, Code: "2025-03", FiscalYear: 2025, FiscalMonth: 3,
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), Status: periods.PeriodStatusOpen})
	store.AddPeriod(periods.Period{ID: 2, CompanyID: 1, Code: "2025-04", FiscalYear: 2025, FiscalMonth: 4,
		StartDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), Status: periods.PeriodStatusOpen})
	store.AddPeriod(periods.Period{ID: 1, CompanyID: 2, Code: "2025-03", FiscalYear: 2025, FiscalMonth: 3, Status: periods.PeriodStatusOpen})
	return store
}

func invoiceInput(debit, credit string) journals.CreateInput {
	return journals.CreateInput{
		CompanyID:   1,
		PeriodID:    1,
		EntryTypeID: 2,
		PostingDate: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		CurrencyID:  1,
		Description: "Venta mostrador",
		Lines: []journals.LineInput{
			{LineNo: 1, AccountID: 1201, Debit: amount(debit)},
			{LineNo: 2, AccountID: 4011, Credit: amount(credit)},
		},
	}
}

type JournalServiceSuite struct {
	suite.Suite
	ctx      context.Context
	tx       *dbtest.Transactor
	store    *memstore.Store
	sink     *audit.MemorySink
	recorder *audit.Recorder
	service  *journals.Service
}

func (s *JournalServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.tx = dbtest.NewTransactor()
	s.store = newStore()
	s.sink = &audit.MemorySink{}
	s.recorder = audit.NewRecorder(s.sink, "memory", discardLogger())
	s.service = journals.NewService(s.tx, s.store,
		journals.WithAuditor(s.recorder),
		journals.WithLogger(discardLogger()),
		journals.WithClock(func() time.Time { return testNow }),
	)
}

func (s *JournalServiceSuite) records() []audit.Record {
	s.recorder.Flush()
	return s.sink.Records()
}

func (s *JournalServiceSuite) create(in journals.CreateInput) journals.JournalEntry {
	entry, err := s.service.Create(s.ctx, in, testActor)
	s.Require().NoError(err)
	s.recorder.Flush()
	return entry
}

func (s *JournalServiceSuite) TestCreateBalancedEntry() {
	previous := s.create(invoiceInput("50.00", "50.00"))

	entry, err := s.service.Create(s.ctx, invoiceInput("118.00", "118.00"), testActor)
	s.Require().NoError(err)
	s.Equal(journals.JournalStatusBalanced, entry.Status)
	s.Equal("118.00", entry.TotalDebit.StringFixed(2))
	s.Equal("118.00", entry.TotalCredit.StringFixed(2))
	s.Equal(previous.Sequence+1, entry.Sequence)
	s.Equal("FC-202503-00002", entry.DocumentNumber)
	s.Equal(int64(7), entry.CreatedBy)
	s.True(entry.ExchangeRate.Equal(decimal.NewFromInt(1)))

	stored, err := s.service.Get(s.ctx, entry.ID, 1)
	s.Require().NoError(err)
	s.Require().Len(stored.Lines, 2)
	s.Equal(1, stored.Lines[0].LineNo)
	s.Equal(int64(1201), stored.Lines[0].AccountID)
	s.Equal(int64(1), stored.Lines[0].CurrencyID)

	records := s.records()
	s.Require().Len(records, 2)
	last := records[1]
	s.True(last.Success)
	s.Equal(audit.KindCreate, last.Kind)
	s.Equal(journals.TableJournalEntries, last.Table)
	s.Equal(entry.ID, last.RecordID)
	s.Equal("Ana Contable", last.ActorName)
	s.Equal(journals.ModuleName, last.Module)
	s.Nil(last.Before)
	s.Contains(string(last.After), `"document_number":"FC-202503-00002"`)
}

func (s *JournalServiceSuite) TestCreateIgnoresSubmittedTotals() {
	in := invoiceInput("10.00", "10.00")
	in.TotalDebit = amount("999")
	in.TotalCredit = amount("1")
	entry := s.create(in)
	s.Equal("10.00", entry.TotalDebit.StringFixed(2))
	s.Equal("10.00", entry.TotalCredit.StringFixed(2))
}

func (s *JournalServiceSuite) TestCreateRejectsImbalance() {
	_, err := s.service.Create(s.ctx, invoiceInput("100.00", "90.00"), testActor)
	s.Require().Error(err)
	s.ErrorIs(err, shared.ErrValidation)
	var imbalance *shared.ImbalanceError
	s.Require().True(errors.As(err, &imbalance))
	s.Equal("100.00", imbalance.Debit.StringFixed(2))
	s.Equal("90.00", imbalance.Credit.StringFixed(2))

	s.Empty(s.store.Entries())
	_, err = s.service.Get(s.ctx, 1, 1)
	s.ErrorIs(err, shared.ErrNotFound)
	s.Equal(int64(1), s.tx.Rollbacks())

	records := s.records()
	s.Require().Len(records, 1)
	s.False(records[0].Success)
	s.Contains(records[0].Error, "debit 100.00, credit 90.00")
	s.Contains(string(records[0].After), `"period_id":1`)
}

func (s *JournalServiceSuite) TestCreateRejectsEmptyAndSubCentLines() {
	_, err := s.service.Create(s.ctx, invoiceInput("0", "0"), testActor)
	s.ErrorIs(err, shared.ErrInvalidLine)

	in := invoiceInput("99.99", "99.99")
	in.Lines = []journals.LineInput{
		{AccountID: 1201, Debit: amount("33.333")},
		{AccountID: 1201, Debit: amount("33.333")},
		{AccountID: 1201, Debit: amount("33.334")},
		{AccountID: 4011, Credit: amount("99.99")},
	}
	_, err = s.service.Create(s.ctx, in, testActor)
	s.ErrorIs(err, shared.ErrInvalidLine)
	s.Empty(s.store.Entries())

	entry := s.create(invoiceInput("1.00", "1.00"))
	s.Equal(int64(1), entry.Sequence)
}

func (s *JournalServiceSuite) TestSequentialCreatesAreGapless() {
	for want := int64(1); want <= 3; want++ {
		entry := s.create(invoiceInput("1.00", "1.00"))
		s.Equal(want, entry.Sequence)
	}
	other := invoiceInput("1.00", "1.00")
	other.EntryTypeID = 1
	entry := s.create(other)
	s.Equal(int64(1), entry.Sequence)
	s.Equal("DI-202503-00001", entry.DocumentNumber)

	other.PeriodID = 2
	entry = s.create(other)
	s.Equal("DI-202504-00001", entry.DocumentNumber)
}

func (s *JournalServiceSuite) TestCreateMissingReferences() {
	in := invoiceInput("1.00", "1.00")
	in.EntryTypeID = 99
	_, err := s.service.Create(s.ctx, in, testActor)
	s.ErrorIs(err, shared.ErrReferenceNotFound)
	s.Contains(err.Error(), "entry type 99")

	in = invoiceInput("1.00", "1.00")
	in.PeriodID = 42
	_, err = s.service.Create(s.ctx, in, testActor)
	s.ErrorIs(err, shared.ErrReferenceNotFound)
	s.Contains(err.Error(), "fiscal period 42")
	s.Empty(s.store.Entries())
}

func (s *JournalServiceSuite) TestCreateRollsBackWhenLinesFail() {
	s.store.Fail = func(op string) error {
		if op == "insert journal line" {
			return errors.New("violates foreign key constraint")
		}
		return nil
	}
	_, err := s.service.Create(s.ctx, invoiceInput("5.00", "5.00"), testActor)
	s.ErrorIs(err, shared.ErrPersistence)
	s.Empty(s.store.Entries())

	s.store.Fail = nil
	entry := s.create(invoiceInput("5.00", "5.00"))
	s.Equal(int64(1), entry.Sequence)
}

func (s *JournalServiceSuite) TestUpdateReplacesLines() {
	entry := s.create(invoiceInput("100.00", "100.00"))
	lines := []journals.LineInput{
		{LineNo: 1, AccountID: 1201, Debit: amount("60.00")},
		{LineNo: 2, AccountID: 1202, Debit: amount("40.00")},
		{LineNo: 3, AccountID: 4011, Credit: amount("100.00")},
	}
	updated, err := s.service.Update(s.ctx, entry.ID, 1, journals.HeaderPatch{}, &lines, testActor)
	s.Require().NoError(err)
	s.Equal("100.00", updated.TotalDebit.StringFixed(2))

	stored, err := s.service.Get(s.ctx, entry.ID, 1)
	s.Require().NoError(err)
	s.Require().Len(stored.Lines, 3)
	s.Equal(int64(1202), stored.Lines[1].AccountID)
	s.Equal("40.00", stored.Lines[1].Debit.StringFixed(2))
	s.Equal(entry.DocumentNumber, stored.DocumentNumber)
	s.Equal(entry.Sequence, stored.Sequence)
}

func (s *JournalServiceSuite) TestUpdateMergesHeader() {
	in := invoiceInput("10.00", "10.00")
	in.Origin = &journals.Origin{Table: "sales_invoices", RecordID: 3}
	entry := s.create(in)

	var patch journals.HeaderPatch
	s.Require().NoError(json.Unmarshal([]byte(`{"description":"Corregido"}`), &patch))
	updated, err := s.service.Update(s.ctx, entry.ID, 1, patch, nil, testActor)
	s.Require().NoError(err)
	s.Equal("Corregido", updated.Description)
	s.Equal(entry.CurrencyID, updated.CurrencyID)
	s.Equal(entry.PostingDate, updated.PostingDate)
	s.Equal(entry.Origin, updated.Origin)
	s.Equal("10.00", updated.TotalDebit.StringFixed(2))
	s.Require().NotNil(updated.UpdatedBy)
	s.Equal(testActor.ID, *updated.UpdatedBy)

	stored, err := s.service.Get(s.ctx, entry.ID, 1)
	s.Require().NoError(err)
	s.Len(stored.Lines, 2)
	s.Equal("Corregido", stored.Description)

	records := s.records()
	last := records[len(records)-1]
	s.Equal(audit.KindUpdate, last.Kind)
	s.Contains(string(last.Before), `"description":"Venta mostrador"`)
	s.Contains(string(last.After), `"description":"Corregido"`)
}

func (s *JournalServiceSuite) TestUpdateNullClearsDescriptionOnly() {
	entry := s.create(invoiceInput("10.00", "10.00"))

	var patch journals.HeaderPatch
	s.Require().NoError(json.Unmarshal([]byte(`{"description":null}`), &patch))
	updated, err := s.service.Update(s.ctx, entry.ID, 1, patch, nil, testActor)
	s.Require().NoError(err)
	s.Equal("", updated.Description)

	for _, body := range []string{`{"currency_id":null}`, `{"posting_date":null}`, `{"exchange_rate":null}`} {
		var bad journals.HeaderPatch
		s.Require().NoError(json.Unmarshal([]byte(body), &bad))
		_, err := s.service.Update(s.ctx, entry.ID, 1, bad, nil, testActor)
		s.ErrorIs(err, shared.ErrValidation, body)
	}

	stored, err := s.service.Get(s.ctx, entry.ID, 1)
	s.Require().NoError(err)
	s.Equal(entry.CurrencyID, stored.CurrencyID)
	s.Equal(entry.PostingDate, stored.PostingDate)
}

func (s *JournalServiceSuite) TestUpdateRejectsImbalancedLines() {
	entry := s.create(invoiceInput("10.00", "10.00"))
	lines := []journals.LineInput{
		{AccountID: 1201, Debit: amount("10.00")},
		{AccountID: 4011, Credit: amount("9.99")},
	}
	patch := journals.HeaderPatch{Description: internalShared.Some("no debe aplicarse")}
	_, err := s.service.Update(s.ctx, entry.ID, 1, patch, &lines, testActor)
	s.ErrorIs(err, shared.ErrUnbalanced)

	stored, err := s.service.Get(s.ctx, entry.ID, 1)
	s.Require().NoError(err)
	s.Equal("Venta mostrador", stored.Description)
	s.Equal(int64(4011), stored.Lines[1].AccountID)
	s.Equal("10.00", stored.Lines[1].Credit.StringFixed(2))
}

func (s *JournalServiceSuite) TestCancelIsIdempotent() {
	entry := s.create(invoiceInput("10.00", "10.00"))

	cancelled, err := s.service.Cancel(s.ctx, entry.ID, 1, testActor)
	s.Require().NoError(err)
	s.Equal(journals.JournalStatusCancelled, cancelled.Status)
	s.recorder.Flush()

	again, err := s.service.Cancel(s.ctx, entry.ID, 1, testActor)
	s.Require().NoError(err)
	s.Equal(journals.JournalStatusCancelled, again.Status)

	stored, err := s.service.Get(s.ctx, entry.ID, 1)
	s.Require().NoError(err)
	s.Equal(journals.JournalStatusCancelled, stored.Status)
	s.Len(stored.Lines, 2)

	records := s.records()
	s.Require().Len(records, 3)
	s.Equal(audit.KindLogicalDelete, records[1].Kind)
	s.Contains(string(records[1].Before), `"status":"BALANCED"`)
	s.Contains(string(records[1].After), `"status":"CANCELLED"`)
}

func (s *JournalServiceSuite) TestUpdateCancelledEntryFails() {
	entry := s.create(invoiceInput("10.00", "10.00"))
	_, err := s.service.Cancel(s.ctx, entry.ID, 1, testActor)
	s.Require().NoError(err)

	_, err = s.service.Update(s.ctx, entry.ID, 1, journals.HeaderPatch{Description: internalShared.Some("x")}, nil, testActor)
	s.ErrorIs(err, shared.ErrInvalidStatus)
}

func (s *JournalServiceSuite) TestOtherCompanyCannotSeeEntry() {
	entry := s.create(invoiceInput("10.00", "10.00"))

	_, err := s.service.Get(s.ctx, entry.ID, 2)
	s.ErrorIs(err, shared.ErrNotFound)
	_, err = s.service.Update(s.ctx, entry.ID, 2, journals.HeaderPatch{}, nil, testActor)
	s.ErrorIs(err, shared.ErrNotFound)
	_, err = s.service.Cancel(s.ctx, entry.ID, 2, testActor)
	s.ErrorIs(err, shared.ErrNotFound)

	stored, err := s.service.Get(s.ctx, entry.ID, 1)
	s.Require().NoError(err)
	s.Equal(journals.JournalStatusBalanced, stored.Status)
}

func (s *JournalServiceSuite) TestReverseSwapsLinesAndCancelsOriginal() {
	entry := s.create(invoiceInput("118.00", "118.00"))

	reversal, err := s.service.Reverse(s.ctx, entry.ID, 1, journals.ReverseInput{CancelOriginal: true}, testActor)
	s.Require().NoError(err)
	s.Equal(int64(2), reversal.Sequence)
	s.Equal("Reversal of FC-202503-00001", reversal.Description)
	s.Require().NotNil(reversal.Origin)
	s.Equal(journals.Origin{Table: journals.TableJournalEntries, RecordID: entry.ID}, *reversal.Origin)
	s.Require().Len(reversal.Lines, 2)
	s.Equal("118.00", reversal.Lines[0].Credit.StringFixed(2))
	s.True(reversal.Lines[0].Debit.IsZero())

	original, err := s.service.Get(s.ctx, entry.ID, 1)
	s.Require().NoError(err)
	s.Equal(journals.JournalStatusCancelled, original.Status)

	_, err = s.service.Reverse(s.ctx, entry.ID, 1, journals.ReverseInput{}, testActor)
	s.ErrorIs(err, shared.ErrInvalidStatus)
}

func (s *JournalServiceSuite) TestListAppliesFilter() {
	s.create(invoiceInput("1.00", "1.00"))
	other := invoiceInput("2.00", "2.00")
	other.EntryTypeID = 1
	s.create(other)
	cancelled := s.create(invoiceInput("3.00", "3.00"))
	_, err := s.service.Cancel(s.ctx, cancelled.ID, 1, testActor)
	s.Require().NoError(err)

	status := journals.JournalStatusBalanced
	entryType := int64(2)
	entries, err := s.service.List(s.ctx, 1, journals.ListFilter{Status: &status, EntryTypeID: &entryType})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("FC-202503-00001", entries[0].DocumentNumber)
	s.Nil(entries[0].Lines)

	all, err := s.service.List(s.ctx, 1, journals.ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 3)

	none, err := s.service.List(s.ctx, 2, journals.ListFilter{})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *JournalServiceSuite) TestAuditFailureDoesNotFailPosting() {
	s.sink.Err = errors.New("audit_logs unavailable")
	entry, err := s.service.Create(s.ctx, invoiceInput("10.00", "10.00"), testActor)
	s.Require().NoError(err)
	s.NotZero(entry.ID)
	s.Empty(s.records())
	s.Len(s.store.Entries(), 1)
}

type flaggedAccounts map[int64]accounts.Account

func (f flaggedAccounts) Lookup(_ context.Context, _ int64, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account)
	for _, id := range ids {
		if a, ok := f[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s *JournalServiceSuite) TestAccountFlagsOnlyWarn() {
	var logs bytes.Buffer
	service := journals.NewService(s.tx, s.store,
		journals.WithAccountDirectory(flaggedAccounts{
			1201: {ID: 1201, Code: "1201", RequiresThirdParty: true},
			4011: {ID: 4011, Code: "4011", RequiresCostCenter: true},
		}),
		journals.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		journals.WithClock(func() time.Time { return testNow }),
	)

	entry, err := service.Create(s.ctx, invoiceInput("25.00", "25.00"), testActor)
	s.Require().NoError(err)
	s.Equal(journals.JournalStatusBalanced, entry.Status)
	s.Contains(logs.String(), "journal line missing third party")
	s.Contains(logs.String(), "journal line missing cost center")
}

func TestJournalServiceSuite(t *testing.T) {
	suite.Run(t, new(JournalServiceSuite))
}
