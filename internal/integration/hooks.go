// Package integration turns invoicing events into journal entries posted on the
// invoicing module's own unit of work.
package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger posts a journal entry on a unit of work owned by the caller.
type Ledger interface {
	Post(ctx context.Context, uow db.UnitOfWork, in journals.CreateInput, actor shared.Actor) (journals.JournalEntry, error)
}

// PeriodRepository provides period lookups.
type PeriodRepository interface {
	FindOpenPeriodByDate(ctx context.Context, companyID int64, date time.Time) (periods.Period, error)
}

// AccountMappingRepository provides mapping lookups.
type AccountMappingRepository interface {
	Get(ctx context.Context, companyID int64, module, key string) (mappings.AccountMapping, error)
}

// InvoiceLine is the accounting view of one invoice line.
type InvoiceLine struct {
	Net          decimal.Decimal
	Tax          decimal.Decimal
	CostCenterID *int64
}

// InvoiceEvent describes an issued sales invoice or a received purchase invoice.
// Total is the document total as stated on the invoice.
type InvoiceEvent struct {
	CompanyID      int64
	Table          string
	InvoiceID      int64
	Number         string
	EntryTypeID    int64
	Date           time.Time
	CurrencyID     int64
	ExchangeRate   decimal.Decimal
	CounterpartyID int64
	Total          decimal.Decimal
	Lines          []InvoiceLine
}

// Hooks wires invoicing events into the general ledger.
type Hooks struct {
	ledger      Ledger
	periodRepo  PeriodRepository
	mappingRepo AccountMappingRepository
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, periodRepo PeriodRepository, mappingRepo AccountMappingRepository) *Hooks {
	return &Hooks{ledger: ledger, periodRepo: periodRepo, mappingRepo: mappingRepo}
}

func (h *Hooks) resolveAccount(ctx context.Context, companyID int64, module, key string) (int64, error) {
	mapping, err := h.mappingRepo.Get(ctx, companyID, module, key)
	if err != nil {
		return 0, err
	}
	return mapping.AccountID, nil
}

func (h *Hooks) ready() error {
	if h == nil || h.ledger == nil || h.periodRepo == nil || h.mappingRepo == nil {
		return errors.New("integration: hooks not initialised")
	}
	return nil
}

// SalesInvoiceIssued debits receivables with the document total and credits revenue
// per line and tax payable with the tax sum. Lines with no net amount post nothing.
func (h *Hooks) SalesInvoiceIssued(ctx context.Context, uow db.UnitOfWork, evt InvoiceEvent, actor shared.Actor) (journals.JournalEntry, error) {
	if err := h.ready(); err != nil {
		return journals.JournalEntry{}, err
	}
	period, err := h.periodRepo.FindOpenPeriodByDate(ctx, evt.CompanyID, evt.Date)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	receivable, err := h.resolveAccount(ctx, evt.CompanyID, mappings.ModuleAR, mappings.KeyReceivable)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	revenue, err := h.resolveAccount(ctx, evt.CompanyID, mappings.ModuleAR, mappings.KeyRevenue)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	taxPayable, err := h.resolveAccount(ctx, evt.CompanyID, mappings.ModuleAR, mappings.KeyTaxPayable)
	if err != nil {
		return journals.JournalEntry{}, err
	}

	client := &journals.Counterparty{Kind: journals.CounterpartyClient, ID: evt.CounterpartyID}
	lines := []journals.LineInput{h.documentLine(evt, receivable, client, round2(evt.Total), decimal.Zero)}
	for _, line := range evt.Lines {
		net := round2(line.Net)
		if !net.IsPositive() {
			continue
		}
		lines = append(lines, journals.LineInput{
			AccountID:    revenue,
			Credit:       net,
			CostCenterID: line.CostCenterID,
			DocumentRef:  evt.Number,
		})
	}
	if tax := sumTax(evt.Lines); tax.IsPositive() {
		lines = append(lines, journals.LineInput{AccountID: taxPayable, Credit: tax, DocumentRef: evt.Number})
	}
	return h.ledger.Post(ctx, uow, h.entryInput(evt, period.ID, fmt.Sprintf("Sales invoice %s", evt.Number), lines), actor)
}

// PurchaseInvoiceReceived debits expense per line and input tax with the tax sum, and
// credits payables with the document total.
func (h *Hooks) PurchaseInvoiceReceived(ctx context.Context, uow db.UnitOfWork, evt InvoiceEvent, actor shared.Actor) (journals.JournalEntry, error) {
	if err := h.ready(); err != nil {
		return journals.JournalEntry{}, err
	}
	period, err := h.periodRepo.FindOpenPeriodByDate(ctx, evt.CompanyID, evt.Date)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	payable, err := h.resolveAccount(ctx, evt.CompanyID, mappings.ModuleAP, mappings.KeyPayable)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	expense, err := h.resolveAccount(ctx, evt.CompanyID, mappings.ModuleAP, mappings.KeyExpense)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	inputTax, err := h.resolveAccount(ctx, evt.CompanyID, mappings.ModuleAP, mappings.KeyInputTax)
	if err != nil {
		return journals.JournalEntry{}, err
	}

	var lines []journals.LineInput
	for _, line := range evt.Lines {
		net := round2(line.Net)
		if !net.IsPositive() {
			continue
		}
		lines = append(lines, journals.LineInput{
			AccountID:    expense,
			Debit:        net,
			CostCenterID: line.CostCenterID,
			DocumentRef:  evt.Number,
		})
	}
	if tax := sumTax(evt.Lines); tax.IsPositive() {
		lines = append(lines, journals.LineInput{AccountID: inputTax, Debit: tax, DocumentRef: evt.Number})
	}
	provider := &journals.Counterparty{Kind: journals.CounterpartyProvider, ID: evt.CounterpartyID}
	lines = append(lines, h.documentLine(evt, payable, provider, decimal.Zero, round2(evt.Total)))
	return h.ledger.Post(ctx, uow, h.entryInput(evt, period.ID, fmt.Sprintf("Purchase invoice %s", evt.Number), lines), actor)
}

func (h *Hooks) documentLine(evt InvoiceEvent, accountID int64, cp *journals.Counterparty, debit, credit decimal.Decimal) journals.LineInput {
	date := evt.Date
	return journals.LineInput{
		AccountID:    accountID,
		Debit:        debit,
		Credit:       credit,
		Counterparty: cp,
		DocumentRef:  evt.Number,
		DocumentDate: &date,
	}
}

func (h *Hooks) entryInput(evt InvoiceEvent, periodID int64, description string, lines []journals.LineInput) journals.CreateInput {
	return journals.CreateInput{
		CompanyID:    evt.CompanyID,
		PeriodID:     periodID,
		EntryTypeID:  evt.EntryTypeID,
		PostingDate:  evt.Date,
		CurrencyID:   evt.CurrencyID,
		ExchangeRate: evt.ExchangeRate,
		Description:  description,
		Origin:       &journals.Origin{Table: evt.Table, RecordID: evt.InvoiceID},
		Lines:        lines,
	}
}
