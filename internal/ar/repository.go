package ar

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository binds invoice persistence to a unit of work.
type Repository interface {
	Bind(uow db.UnitOfWork) (TxRepository, error)
}

// TxRepository exposes invoice writes within a transaction.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	SetJournalEntry(ctx context.Context, companyID, invoiceID, entryID int64) error
}

// PgxRepository provides PostgreSQL backed persistence for AR.
type PgxRepository struct{}

// NewRepository constructs a repository.
func NewRepository() *PgxRepository {
	return &PgxRepository{}
}

func (r *PgxRepository) Bind(uow db.UnitOfWork) (TxRepository, error) {
	tx, err := db.Tx(uow)
	if err != nil {
		return nil, err
	}
	return &txRepository{tx: tx}, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	var dueAt pgtype.Date
	if inv.DueDate != nil {
		dueAt = pgtype.Date{Time: *inv.DueDate, Valid: true}
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_invoices (company_id, number, client_id, entry_type_id, issue_date, due_date,
currency_id, exchange_rate, subtotal, tax_amount, total, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		inv.CompanyID, inv.Number, inv.ClientID, inv.EntryTypeID, inv.IssueDate, dueAt,
		inv.CurrencyID, inv.ExchangeRate, inv.Subtotal, inv.TaxAmount, inv.Total, inv.Status, inv.CreatedBy, inv.CreatedAt).
		Scan(&inv.ID)
	if err != nil {
		return Invoice{}, shared.Persistence("insert sales invoice", err)
	}
	for i := range inv.Lines {
		line := &inv.Lines[i]
		var costCenter pgtype.Int8
		if line.CostCenterID != nil {
			costCenter = pgtype.Int8{Int64: *line.CostCenterID, Valid: true}
		}
		err := r.tx.QueryRow(ctx, `INSERT INTO sales_invoice_lines (invoice_id, line_no, description, quantity, unit_price,
tax_rate, net, tax, cost_center_id) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
			inv.ID, line.LineNo, line.Description, line.Quantity, line.UnitPrice, line.TaxRate, line.Net, line.Tax, costCenter).
			Scan(&line.ID)
		if err != nil {
			return Invoice{}, shared.Persistence("insert sales invoice line", err)
		}
		line.InvoiceID = inv.ID
	}
	return inv, nil
}

func (r *txRepository) SetJournalEntry(ctx context.Context, companyID, invoiceID, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET journal_entry_id=$3 WHERE id=$1 AND company_id=$2`, invoiceID, companyID, entryID)
	if err != nil {
		return shared.Persistence("link sales invoice journal", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
