package ap

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository binds AP persistence to a unit of work.
type Repository interface {
	Bind(uow db.UnitOfWork) (TxRepository, error)
}

// TxRepository exposes AP writes inside a transaction.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	SetJournalEntry(ctx context.Context, companyID, invoiceID, entryID int64) error
}

type pgRepository struct{}

// NewRepository creates a Postgres-backed AP repository.
func NewRepository() Repository {
	return pgRepository{}
}

func (pgRepository) Bind(uow db.UnitOfWork) (TxRepository, error) {
	tx, err := db.Tx(uow)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

const insertInvoiceSQL = `INSERT INTO purchase_invoices (company_id, number, provider_id, entry_type_id, invoice_date, due_date,
currency_id, exchange_rate, subtotal, tax_amount, total, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`

const insertLineSQL = `INSERT INTO purchase_invoice_lines (invoice_id, line_no, description, quantity, unit_price,
tax_rate, net, tax, cost_center_id) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`

func (r *pgTx) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	var due pgtype.Date
	if inv.DueDate != nil {
		due = pgtype.Date{Time: *inv.DueDate, Valid: true}
	}
	if err := r.tx.QueryRow(ctx, insertInvoiceSQL,
		inv.CompanyID, inv.Number, inv.ProviderID, inv.EntryTypeID, inv.InvoiceDate, due,
		inv.CurrencyID, inv.ExchangeRate, inv.Subtotal, inv.TaxAmount, inv.Total, inv.Status, inv.CreatedBy, inv.CreatedAt,
	).Scan(&inv.ID); err != nil {
		return Invoice{}, shared.Persistence("insert purchase invoice", err)
	}

	batch := &pgx.Batch{}
	for _, line := range inv.Lines {
		var costCenter pgtype.Int8
		if line.CostCenterID != nil {
			costCenter = pgtype.Int8{Int64: *line.CostCenterID, Valid: true}
		}
		batch.Queue(insertLineSQL, inv.ID, line.LineNo, line.Description, line.Quantity, line.UnitPrice,
			line.TaxRate, line.Net, line.Tax, costCenter)
	}
	results := r.tx.SendBatch(ctx, batch)
	defer results.Close()
	for i := range inv.Lines {
		if err := results.QueryRow().Scan(&inv.Lines[i].ID); err != nil {
			return Invoice{}, shared.Persistence("insert purchase invoice line", err)
		}
		inv.Lines[i].InvoiceID = inv.ID
	}
	return inv, nil
}

func (r *pgTx) SetJournalEntry(ctx context.Context, companyID, invoiceID, entryID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_invoices SET journal_entry_id = $3 WHERE id = $1 AND company_id = $2`,
		invoiceID, companyID, entryID)
	if err != nil {
		return shared.Persistence("link purchase invoice journal", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
