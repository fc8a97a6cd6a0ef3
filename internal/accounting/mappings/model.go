package mappings

import "time"

// Mapping keys used by invoicing modules.
const (
	ModuleAR = "AR"
	ModuleAP = "AP"

	KeyReceivable = "RECEIVABLE"
	KeyRevenue    = "REVENUE"
	KeyTaxPayable = "TAX_PAYABLE"
	KeyPayable    = "PAYABLE"
	KeyExpense    = "EXPENSE"
	KeyInputTax   = "INPUT_TAX"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	CompanyID int64
	Module    string
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
