package ar

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModuleName owns the units of work opened for sales invoicing.
const ModuleName = "ar"

// TableInvoices is the origin table recorded on posted journal entries.
const TableInvoices = "sales_invoices"

// InvoiceStatus enumerates AR invoice statuses.
type InvoiceStatus string

const (
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is an issued sales invoice.
type Invoice struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	Number         string          `json:"number"`
	ClientID       int64           `json:"client_id"`
	EntryTypeID    int64           `json:"entry_type_id"`
	IssueDate      time.Time       `json:"issue_date"`
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

// InvoiceLine is one billed item.
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

// LineInput describes an item to bill.
type LineInput struct {
	Description  string          `json:"description" validate:"required,max=200"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	CostCenterID *int64          `json:"cost_center_id,omitempty" validate:"omitempty,gt=0"`
}

// IssueInput is the request to issue a sales invoice. Total, when set, is the document
// total as printed; otherwise it is computed from the lines.
type IssueInput struct {
	CompanyID    int64           `json:"-" validate:"required,gt=0"`
	Number       string          `json:"number" validate:"required,max=30"`
	ClientID     int64           `json:"client_id" validate:"required,gt=0"`
	EntryTypeID  int64           `json:"entry_type_id" validate:"required,gt=0"`
	IssueDate    time.Time       `json:"issue_date" validate:"required"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	CurrencyID   int64           `json:"currency_id" validate:"required,gt=0"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Total        decimal.Decimal `json:"total"`
	Lines        []LineInput     `json:"lines" validate:"required,min=1,dive"`
}
