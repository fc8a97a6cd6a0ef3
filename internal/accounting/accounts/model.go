package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Account models a chart of accounts node. The Requires flags are advisory for postings.
type Account struct {
	ID                 int64       `json:"id"`
	CompanyID          int64       `json:"company_id"`
	Code               string      `json:"code"`
	Name               string      `json:"name"`
	Type               AccountType `json:"type"`
	ParentID           *int64      `json:"parent_id,omitempty"`
	IsActive           bool        `json:"is_active"`
	RequiresCostCenter bool        `json:"requires_cost_center"`
	RequiresThirdParty bool        `json:"requires_third_party"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}
