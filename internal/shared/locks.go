package shared

import "fmt"

// SequenceLockKey builds the key guarding correlative assignment of one
// (company, period, entry type) tuple.
func SequenceLockKey(companyID, periodID, entryTypeID int64) string {
	return fmt.Sprintf("ledger:sequence:%d:%d:%d:lock", companyID, periodID, entryTypeID)
}
