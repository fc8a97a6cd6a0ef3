// Package guard switches binaries into test mode when imported from a test,
// so calling main never opens database or redis connections.
package guard

import (
	"os"
	"sync"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

var once sync.Once

// Enable sets the test mode variable unless the caller already chose a value.
func Enable() {
	once.Do(func() {
		if os.Getenv(app.TestModeEnv) == "" {
			_ = os.Setenv(app.TestModeEnv, "1")
		}
	})
}

func init() {
	Enable()
}
