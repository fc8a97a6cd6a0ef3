package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusBalanced  JournalStatus = "BALANCED"
	JournalStatusCancelled JournalStatus = "CANCELLED"
)

// CounterpartyKind tags a line with the third party it refers to.
type CounterpartyKind string

const (
	CounterpartyClient   CounterpartyKind = "CLIENT"
	CounterpartyProvider CounterpartyKind = "PROVIDER"
)

// TableJournalEntries is the audit table name of journal headers.
const TableJournalEntries = "journal_entries"

// Origin links an entry back to the document that triggered it.
type Origin struct {
	Table    string `json:"table"`
	RecordID int64  `json:"record_id"`
}

// Counterparty identifies a client or provider for third-party analysis.
type Counterparty struct {
	Kind CounterpartyKind `json:"kind"`
	ID   int64            `json:"id"`
}

// JournalEntry captures the header of a posted entry.
type JournalEntry struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	PeriodID       int64           `json:"period_id"`
	EntryTypeID    int64           `json:"entry_type_id"`
	Sequence       int64           `json:"sequence"`
	DocumentNumber string          `json:"document_number"`
	PostingDate    time.Time       `json:"posting_date"`
	CurrencyID     int64           `json:"currency_id"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	Description    string          `json:"description"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	Status         JournalStatus   `json:"status"`
	Origin         *Origin         `json:"origin,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedBy      *int64          `json:"updated_by,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
	Lines          []JournalLine   `json:"lines,omitempty"`
}

// JournalLine stores the debit or credit posted to one account.
type JournalLine struct {
	ID           int64           `json:"id"`
	EntryID      int64           `json:"entry_id"`
	LineNo       int             `json:"line_no"`
	AccountID    int64           `json:"account_id"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	CurrencyID   int64           `json:"currency_id"`
	CostCenterID *int64          `json:"cost_center_id,omitempty"`
	Counterparty *Counterparty   `json:"counterparty,omitempty"`
	DocumentRef  string          `json:"document_ref,omitempty"`
	DocumentDate *time.Time      `json:"document_date,omitempty"`

	AccountCode      string `json:"account_code,omitempty"`
	AccountName      string `json:"account_name,omitempty"`
	CurrencyName     string `json:"currency_name,omitempty"`
	CostCenterName   string `json:"cost_center_name,omitempty"`
	CounterpartyName string `json:"counterparty_name,omitempty"`
}

// EntryType classifies entries and feeds the document number prefix.
type EntryType struct {
	ID   int64
	Code string
	Name string
}

// SequenceKey scopes the correlative counter.
type SequenceKey struct {
	CompanyID   int64
	PeriodID    int64
	EntryTypeID int64
}
