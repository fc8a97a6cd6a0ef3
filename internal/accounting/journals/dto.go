package journals

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LineInput describes a journal line for a posting request.
type LineInput struct {
	LineNo       int             `json:"line_no" validate:"gte=0"`
	AccountID    int64           `json:"account_id" validate:"required,gt=0"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	CurrencyID   int64           `json:"currency_id" validate:"gte=0"`
	CostCenterID *int64          `json:"cost_center_id,omitempty" validate:"omitempty,gt=0"`
	Counterparty *Counterparty   `json:"counterparty,omitempty"`
	DocumentRef  string          `json:"document_ref,omitempty" validate:"max=100"`
	DocumentDate *time.Time      `json:"document_date,omitempty"`
}

// CreateInput groups fields required to create a journal entry. Submitted totals are
// accepted for wire compatibility and always replaced by computed sums.
type CreateInput struct {
	CompanyID    int64           `json:"-" validate:"required,gt=0"`
	PeriodID     int64           `json:"period_id" validate:"required,gt=0"`
	EntryTypeID  int64           `json:"entry_type_id" validate:"required,gt=0"`
	PostingDate  time.Time       `json:"posting_date" validate:"required"`
	CurrencyID   int64           `json:"currency_id" validate:"required,gt=0"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Description  string          `json:"description" validate:"max=500"`
	TotalDebit   decimal.Decimal `json:"total_debit"`
	TotalCredit  decimal.Decimal `json:"total_credit"`
	Origin       *Origin         `json:"origin,omitempty"`
	Lines        []LineInput     `json:"lines"`
}

// HeaderPatch carries partial header changes. Unset fields keep their current value.
type HeaderPatch struct {
	PostingDate  internalShared.Patch[time.Time]       `json:"posting_date"`
	CurrencyID   internalShared.Patch[int64]           `json:"currency_id"`
	ExchangeRate internalShared.Patch[decimal.Decimal] `json:"exchange_rate"`
	Description  internalShared.Patch[string]          `json:"description"`
	Origin       internalShared.Patch[Origin]          `json:"origin"`
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	PostingDate    *time.Time `json:"posting_date,omitempty"`
	PeriodID       int64      `json:"period_id,omitempty"`
	Description    string     `json:"description,omitempty"`
	CancelOriginal bool       `json:"cancel_original"`
}

// Validate checks structure and line shape. Balance is checked separately by Balance.
func (in CreateInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return structError(err)
	}
	if in.ExchangeRate.IsNegative() {
		return shared.Invalid(shared.ErrValidation, "exchange rate must be positive")
	}
	if in.Origin != nil && (in.Origin.Table == "" || in.Origin.RecordID <= 0) {
		return shared.Invalid(shared.ErrValidation, "origin requires table and record id")
	}
	return ValidateLines(in.Lines)
}

// ValidateLines checks every line carries a positive debit or credit with at most two
// decimals, never both, and that line numbers do not repeat.
func ValidateLines(lines []LineInput) error {
	if len(lines) < 2 {
		return shared.ErrTooFewLines
	}
	seen := make(map[int]struct{}, len(lines))
	for idx, line := range lines {
		if err := validate.Struct(line); err != nil {
			return fmt.Errorf("%w: line %d: %v", shared.ErrInvalidLine, idx+1, structError(err))
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.Invalid(shared.ErrInvalidLine, "line %d negative amount", idx+1)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return shared.Invalid(shared.ErrInvalidLine, "line %d cannot be both debit and credit", idx+1)
		}
		if !line.Debit.IsPositive() && !line.Credit.IsPositive() {
			return shared.Invalid(shared.ErrInvalidLine, "line %d needs a debit or a credit", idx+1)
		}
		if !line.Debit.Equal(line.Debit.Round(2)) || !line.Credit.Equal(line.Credit.Round(2)) {
			return shared.Invalid(shared.ErrInvalidLine, "line %d amount has more than two decimals", idx+1)
		}
		if cp := line.Counterparty; cp != nil {
			if cp.ID <= 0 || (cp.Kind != CounterpartyClient && cp.Kind != CounterpartyProvider) {
				return shared.Invalid(shared.ErrInvalidLine, "line %d counterparty must be a client or provider", idx+1)
			}
		}
		if line.LineNo == 0 {
			continue
		}
		if _, dup := seen[line.LineNo]; dup {
			return shared.Invalid(shared.ErrInvalidLine, "line number %d repeated", line.LineNo)
		}
		seen[line.LineNo] = struct{}{}
	}
	return nil
}

func structError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return shared.Invalid(shared.ErrValidation, "invalid fields: %s", strings.Join(fields, ", "))
	}
	return shared.Invalid(shared.ErrValidation, "%v", err)
}

// toLines numbers the submitted lines and fills the header currency where missing.
// Lines without a number take the position after the highest number seen so far.
func toLines(in []LineInput, currencyID int64) []JournalLine {
	out := make([]JournalLine, 0, len(in))
	next := 0
	for _, line := range in {
		if line.LineNo > next {
			next = line.LineNo
		}
	}
	for _, line := range in {
		no := line.LineNo
		if no == 0 {
			next++
			no = next
		}
		currency := line.CurrencyID
		if currency == 0 {
			currency = currencyID
		}
		out = append(out, JournalLine{
			LineNo:       no,
			AccountID:    line.AccountID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			CurrencyID:   currency,
			CostCenterID: line.CostCenterID,
			Counterparty: line.Counterparty,
			DocumentRef:  line.DocumentRef,
			DocumentDate: line.DocumentDate,
		})
	}
	return out
}
