package ap

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

// Ledger posts the journal of a received invoice on the AP unit of work.
type Ledger interface {
	PurchaseInvoiceReceived(ctx context.Context, uow db.UnitOfWork, evt integration.InvoiceEvent, actor internalShared.Actor) (journals.JournalEntry, error)
}

// Service orchestrates AP workflows.
type Service struct {
	tx       db.Transactor
	repo     Repository
	ledger   Ledger
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs AP service.
func NewService(tx db.Transactor, repo Repository, ledger Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tx:       tx,
		repo:     repo,
		ledger:   ledger,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// ReceiveInvoice registers the supplier invoice together with its journal entry.
func (s *Service) ReceiveInvoice(ctx context.Context, in ReceiveInput, actor internalShared.Actor) (Invoice, error) {
	inv, err := s.build(in, actor)
	if err != nil {
		return Invoice{}, err
	}
	err = s.tx.InTx(ctx, ModuleName, func(ctx context.Context, uow db.UnitOfWork) error {
		repo, err := s.repo.Bind(uow)
		if err != nil {
			return err
		}
		if inv, err = repo.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		entry, err := s.ledger.PurchaseInvoiceReceived(ctx, uow, toEvent(inv), actor)
		if err != nil {
			return fmt.Errorf("ap: post invoice %s: %w", inv.Number, err)
		}
		if err := repo.SetJournalEntry(ctx, inv.CompanyID, inv.ID, entry.ID); err != nil {
			return err
		}
		inv.JournalEntryID = &entry.ID
		return nil
	})
	if err != nil {
		s.logger.Warn("receive purchase invoice", slog.String("number", in.Number), slog.Int64("provider_id", in.ProviderID), slog.Any("error", err))
		return Invoice{}, err
	}
	s.logger.Info("purchase invoice received", slog.Int64("id", inv.ID), slog.Int64("journal_entry_id", *inv.JournalEntryID))
	return inv, nil
}

func (s *Service) build(in ReceiveInput, actor internalShared.Actor) (Invoice, error) {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace())
			}
			return Invoice{}, shared.Invalid(shared.ErrValidation, "invalid fields: %s", strings.Join(fields, ", "))
		}
		return Invoice{}, shared.Invalid(shared.ErrValidation, "%v", err)
	}
	inv := Invoice{
		CompanyID:    in.CompanyID,
		Number:       strings.TrimSpace(in.Number),
		ProviderID:   in.ProviderID,
		EntryTypeID:  in.EntryTypeID,
		InvoiceDate:  in.InvoiceDate,
		DueDate:      in.DueDate,
		CurrencyID:   in.CurrencyID,
		ExchangeRate: in.ExchangeRate,
		Subtotal:     decimal.Zero,
		TaxAmount:    decimal.Zero,
		Status:       InvoiceStatusReceived,
		CreatedBy:    actor.ID,
		CreatedAt:    s.now(),
	}
	if inv.ExchangeRate.IsZero() {
		inv.ExchangeRate = decimal.NewFromInt(1)
	}
	if inv.DueDate != nil && inv.DueDate.Before(inv.InvoiceDate) {
		return Invoice{}, shared.Invalid(shared.ErrValidation, "due date before invoice date")
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

func toEvent(inv Invoice) integration.InvoiceEvent {
	evt := integration.InvoiceEvent{
		CompanyID:      inv.CompanyID,
		Table:          TableInvoices,
		InvoiceID:      inv.ID,
		Number:         inv.Number,
		EntryTypeID:    inv.EntryTypeID,
		Date:           inv.InvoiceDate,
		CurrencyID:     inv.CurrencyID,
		ExchangeRate:   inv.ExchangeRate,
		CounterpartyID: inv.ProviderID,
		Total:          inv.Total,
	}
	for _, line := range inv.Lines {
		evt.Lines = append(evt.Lines, integration.InvoiceLine{Net: line.Net, Tax: line.Tax, CostCenterID: line.CostCenterID})
	}
	return evt
}
