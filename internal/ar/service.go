package ar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Ledger posts the journal of an issued invoice on the invoicing unit of work.
type Ledger interface {
	SalesInvoiceIssued(ctx context.Context, uow db.UnitOfWork, evt integration.InvoiceEvent, actor internalShared.Actor) (journals.JournalEntry, error)
}

// Service handles AR business logic.
type Service struct {
	tx     db.Transactor
	repo   Repository
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(tx db.Transactor, repo Repository, ledger Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tx: tx, repo: repo, ledger: ledger, logger: logger, now: time.Now}
}

// IssueInvoice stores the invoice and posts its journal entry atomically. If the journal
// cannot be posted, the invoice is not stored either.
func (s *Service) IssueInvoice(ctx context.Context, in IssueInput, actor internalShared.Actor) (Invoice, error) {
	inv, err := s.build(in, actor)
	if err != nil {
		return Invoice{}, err
	}
	err = s.tx.InTx(ctx, ModuleName, func(ctx context.Context, uow db.UnitOfWork) error {
		repo, err := s.repo.Bind(uow)
		if err != nil {
			return err
		}
		inv, err = repo.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		entry, err := s.ledger.SalesInvoiceIssued(ctx, uow, event(inv), actor)
		if err != nil {
			return fmt.Errorf("ar: post invoice %s: %w", inv.Number, err)
		}
		if err := repo.SetJournalEntry(ctx, inv.CompanyID, inv.ID, entry.ID); err != nil {
			return err
		}
		inv.JournalEntryID = &entry.ID
		return nil
	})
	if err != nil {
		s.logger.Warn("issue sales invoice", slog.String("number", in.Number), slog.Any("error", err))
		return Invoice{}, err
	}
	return inv, nil
}

func (s *Service) build(in IssueInput, actor internalShared.Actor) (Invoice, error) {
	if err := validate.Struct(in); err != nil {
		return Invoice{}, validationError(err)
	}
	inv := Invoice{
		CompanyID:    in.CompanyID,
		Number:       strings.TrimSpace(in.Number),
		ClientID:     in.ClientID,
		EntryTypeID:  in.EntryTypeID,
		IssueDate:    in.IssueDate,
		DueDate:      in.DueDate,
		CurrencyID:   in.CurrencyID,
		ExchangeRate: in.ExchangeRate,
		Subtotal:     decimal.Zero,
		TaxAmount:    decimal.Zero,
		Status:       InvoiceStatusIssued,
		CreatedBy:    actor.ID,
		CreatedAt:    s.now(),
	}
	if inv.ExchangeRate.IsZero() {
		inv.ExchangeRate = decimal.NewFromInt(1)
	}
	for i, line := range in.Lines {
		if !line.Quantity.IsPositive() || line.UnitPrice.IsNegative() || line.TaxRate.IsNegative() {
			return Invoice{}, shared.Invalid(shared.ErrValidation, "line %d: quantity must be positive, price and tax rate non-negative", i+1)
		}
		net := line.Quantity.Mul(line.UnitPrice).Round(2)
		tax := net.Mul(line.TaxRate).Round(2)
		inv.Lines = append(inv.Lines, InvoiceLine{
			LineNo:       i + 1,
			Description:  line.Description,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			TaxRate:      line.TaxRate,
			Net:          net,
			Tax:          tax,
			CostCenterID: line.CostCenterID,
		})
		inv.Subtotal = inv.Subtotal.Add(net)
		inv.TaxAmount = inv.TaxAmount.Add(tax)
	}
	inv.Total = inv.Subtotal.Add(inv.TaxAmount)
	if !in.Total.IsZero() {
		inv.Total = in.Total.Round(2)
	}
	return inv, nil
}

func event(inv Invoice) integration.InvoiceEvent {
	lines := make([]integration.InvoiceLine, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		lines = append(lines, integration.InvoiceLine{Net: line.Net, Tax: line.Tax, CostCenterID: line.CostCenterID})
	}
	return integration.InvoiceEvent{
		CompanyID:      inv.CompanyID,
		Table:          TableInvoices,
		InvoiceID:      inv.ID,
		Number:         inv.Number,
		EntryTypeID:    inv.EntryTypeID,
		Date:           inv.IssueDate,
		CurrencyID:     inv.CurrencyID,
		ExchangeRate:   inv.ExchangeRate,
		CounterpartyID: inv.ClientID,
		Total:          inv.Total,
		Lines:          lines,
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return shared.Invalid(shared.ErrValidation, "invalid fields: %s", strings.Join(fields, ", "))
	}
	return shared.Invalid(shared.ErrValidation, "%v", err)
}
