package ap

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModuleName owns the units of work opened for supplier invoices.
const ModuleName = "ap"

// TableInvoices is recorded as the origin of posted journal entries.
const TableInvoices = "purchase_invoices"

// InvoiceStatus enumerates AP invoice statuses.
type InvoiceStatus string

const (
	InvoiceStatusReceived InvoiceStatus = "RECEIVED"
	InvoiceStatusVoid     InvoiceStatus = "VOID"
)

// Invoice is a supplier invoice registered in the books.
type Invoice struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	Number         string          `json:"number"`
	ProviderID     int64           `json:"provider_id"`
	EntryTypeID    int64           `json:"entry_type_id"`
	InvoiceDate    time.Time       `json:"invoice_date"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	CurrencyID     int64           `json:"currency_id"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
	Status         InvoiceStatus   `json:"status"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	Lines          []InvoiceLine   `json:"lines"`
}

// InvoiceLine represents a line item on a supplier invoice.
type InvoiceLine struct {
	ID           int64           `json:"id"`
	InvoiceID    int64           `json:"invoice_id"`
	LineNo       int             `json:"line_no"`
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Net          decimal.Decimal `json:"net"`
	Tax          decimal.Decimal `json:"tax"`
	CostCenterID *int64          `json:"cost_center_id,omitempty"`
}

// LineInput is one received item.
type LineInput struct {
	Description  string          `json:"description" validate:"required,max=200"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	CostCenterID *int64          `json:"cost_center_id,omitempty" validate:"omitempty,gt=0"`
}

// ReceiveInput registers a supplier invoice. Total is the amount printed by the supplier;
// when zero it is derived from the lines.
type ReceiveInput struct {
	CompanyID    int64           `json:"-" validate:"required,gt=0"`
	Number       string          `json:"number" validate:"required,max=30"`
	ProviderID   int64           `json:"provider_id" validate:"required,gt=0"`
	EntryTypeID  int64           `json:"entry_type_id" validate:"required,gt=0"`
	InvoiceDate  time.Time       `json:"invoice_date" validate:"required"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	CurrencyID   int64           `json:"currency_id" validate:"required,gt=0"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Total        decimal.Decimal `json:"total"`
	Lines        []LineInput     `json:"lines" validate:"required,min=1,dive"`
}
