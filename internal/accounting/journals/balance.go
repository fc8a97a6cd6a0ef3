package journals

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Totals are the computed sums of a line set.
type Totals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Balance sums debit and credit independently, rounds each sum to two decimals, and fails
// with *shared.ImbalanceError when they differ.
func Balance(lines []JournalLine) (Totals, error) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	totals := Totals{Debit: debit.Round(2), Credit: credit.Round(2)}
	if !totals.Debit.Equal(totals.Credit) {
		return totals, &shared.ImbalanceError{Debit: totals.Debit, Credit: totals.Credit}
	}
	return totals, nil
}
