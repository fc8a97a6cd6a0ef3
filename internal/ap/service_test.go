package ap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db/dbtest"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type memoryAPRepo struct {
	mu       sync.Mutex
	seq      int64
	invoices []Invoice
}

func (r *memoryAPRepo) Bind(uow db.UnitOfWork) (TxRepository, error) {
	tx := &memoryAPTx{repo: r}
	uow.OnComplete(func(_ context.Context, committed bool) {
		if committed {
			r.mu.Lock()
			r.invoices = append(r.invoices, tx.pending...)
			r.mu.Unlock()
		}
	})
	return tx, nil
}

func (r *memoryAPRepo) stored() []Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invoice(nil), r.invoices...)
}

type memoryAPTx struct {
	repo    *memoryAPRepo
	pending []Invoice
}

func (t *memoryAPTx) InsertInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	t.repo.mu.Lock()
	t.repo.seq++
	inv.ID = t.repo.seq
	t.repo.mu.Unlock()
	t.pending = append(t.pending, inv)
	return inv, nil
}

func (t *memoryAPTx) SetJournalEntry(_ context.Context, _, invoiceID, entryID int64) error {
	for i := range t.pending {
		if t.pending[i].ID == invoiceID {
			t.pending[i].JournalEntryID = &entryID
			return nil
		}
	}
	return shared.ErrNotFound
}

type stubPeriods struct{}

func (stubPeriods) FindOpenPeriodByDate(_ context.Context, companyID int64, date time.Time) (periods.Period, error) {
	if date.Year() == 2025 && date.Month() == time.April {
		return periods.Period{ID: 4, CompanyID: companyID, FiscalYear: 2025, FiscalMonth: 4, Status: periods.PeriodStatusOpen}, nil
	}
	return periods.Period{}, &shared.ReferenceError{Kind: "fiscal period"}
}

type APServiceSuite struct {
	suite.Suite
	tx      *dbtest.Transactor
	repo    *memoryAPRepo
	ledger  *memstore.Store
	mapping mappings.Static
	svc     *Service
}

func TestAPServiceSuite(t *testing.T) {
	suite.Run(t, new(APServiceSuite))
}

func (s *APServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.tx = dbtest.NewTransactor()
	s.repo = &memoryAPRepo{}
	s.ledger = memstore.New()
	s.ledger.AddEntryType(1, journals.EntryType{ID: 3, Code: "FP", Name: "Facturas de proveedor"})
	s.ledger.AddPeriod(periods.Period{ID: 4, CompanyID: 1, FiscalYear: 2025, FiscalMonth: 4})
	s.mapping = mappings.Static{"AP/PAYABLE": 4212, "AP/EXPENSE": 6011, "AP/INPUT_TAX": 4011}
	posting := journals.NewService(s.tx, s.ledger, journals.WithLogger(logger))
	hooks := integration.NewHooks(journals.NewPoster(posting), stubPeriods{}, s.mapping)
	s.svc = NewService(s.tx, s.repo, hooks, logger)
}

func (s *APServiceSuite) input() ReceiveInput {
	cc := int64(12)
	return ReceiveInput{
		CompanyID:   1,
		Number:      "E001-881",
		ProviderID:  90,
		EntryTypeID: 3,
		InvoiceDate: time.Date(2025, 4, 8, 0, 0, 0, 0, time.UTC),
		CurrencyID:  1,
		Lines: []LineInput{
			{Description: "Papel bond", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("12.50"), TaxRate: decimal.RequireFromString("0.18"), CostCenterID: &cc},
			{Description: "Flete", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("40.00")},
		},
	}
}

func (s *APServiceSuite) TestReceivePostsBalancedJournal() {
	inv, err := s.svc.ReceiveInvoice(context.Background(), s.input(), internalShared.Actor{ID: 5})
	s.Require().NoError(err)
	s.Equal("165.00", inv.Subtotal.StringFixed(2))
	s.Equal("22.50", inv.TaxAmount.StringFixed(2))
	s.Equal("187.50", inv.Total.StringFixed(2))
	s.True(inv.ExchangeRate.Equal(decimal.NewFromInt(1)))

	entries := s.ledger.Entries()
	s.Require().Len(entries, 1)
	entry := entries[0]
	s.Equal("FP-202504-00001", entry.DocumentNumber)
	s.Equal(&journals.Origin{Table: TableInvoices, RecordID: inv.ID}, entry.Origin)
	s.Require().Len(entry.Lines, 4)

	s.Equal(int64(6011), entry.Lines[0].AccountID)
	s.Equal("125.00", entry.Lines[0].Debit.StringFixed(2))
	s.Equal(int64(12), *entry.Lines[0].CostCenterID)
	s.Equal("40.00", entry.Lines[1].Debit.StringFixed(2))
	s.Equal(int64(4011), entry.Lines[2].AccountID)
	s.Equal("22.50", entry.Lines[2].Debit.StringFixed(2))
	s.Equal(int64(4212), entry.Lines[3].AccountID)
	s.Equal("187.50", entry.Lines[3].Credit.StringFixed(2))
	s.Equal(&journals.Counterparty{Kind: journals.CounterpartyProvider, ID: 90}, entry.Lines[3].Counterparty)

	stored := s.repo.stored()
	s.Require().Len(stored, 1)
	s.Equal(entry.ID, *stored[0].JournalEntryID)
}

func (s *APServiceSuite) TestStatedTotalMismatchRollsBackBoth() {
	in := s.input()
	in.Total = decimal.RequireFromString("190.00")

	_, err := s.svc.ReceiveInvoice(context.Background(), in, internalShared.Actor{ID: 5})
	s.ErrorIs(err, shared.ErrUnbalanced)
	s.Empty(s.repo.stored())
	s.Empty(s.ledger.Entries())
	s.Equal(int64(1), s.tx.Rollbacks())
}

func (s *APServiceSuite) TestMissingInputTaxMapping() {
	delete(s.mapping, "AP/INPUT_TAX")

	_, err := s.svc.ReceiveInvoice(context.Background(), s.input(), internalShared.Actor{ID: 5})
	s.ErrorIs(err, shared.ErrReferenceNotFound)
	s.Contains(err.Error(), "AP/INPUT_TAX")
	s.Empty(s.repo.stored())
}

func (s *APServiceSuite) TestLedgerFailureRollsBackInvoice() {
	s.ledger.Fail = func(op string) error {
		if op == "insert journal line" {
			return io.ErrUnexpectedEOF
		}
		return nil
	}

	_, err := s.svc.ReceiveInvoice(context.Background(), s.input(), internalShared.Actor{ID: 5})
	s.ErrorIs(err, shared.ErrPersistence)
	s.Empty(s.repo.stored())
	s.Empty(s.ledger.Entries())
}

func (s *APServiceSuite) TestValidation() {
	in := s.input()
	in.ProviderID = 0
	_, err := s.svc.ReceiveInvoice(context.Background(), in, internalShared.Actor{ID: 5})
	s.ErrorIs(err, shared.ErrValidation)

	in = s.input()
	due := in.InvoiceDate.AddDate(0, 0, -1)
	in.DueDate = &due
	_, err = s.svc.ReceiveInvoice(context.Background(), in, internalShared.Actor{ID: 5})
	s.ErrorIs(err, shared.ErrValidation)

	in = s.input()
	in.Lines[1].UnitPrice = decimal.NewFromInt(-1)
	_, err = s.svc.ReceiveInvoice(context.Background(), in, internalShared.Actor{ID: 5})
	s.ErrorIs(err, shared.ErrValidation)

	s.Zero(s.tx.Commits() + s.tx.Rollbacks())
}

func (s *APServiceSuite) TestHandlerReceive() {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Company-ID") == "1" {
				r = r.WithContext(internalShared.ContextWithCompany(r.Context(), 1))
			}
			next.ServeHTTP(w, r)
		})
	})
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), s.svc).MountRoutes(router)

	body, err := json.Marshal(s.input())
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader(body))
	req.Header.Set("X-Company-ID", "1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var got Invoice
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.NotNil(got.JournalEntryID)
	s.Equal("187.50", got.Total.StringFixed(2))
}
