package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes the binaries return from main before dialing postgres or redis.
const TestModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether TestModeEnv holds a true value. Unparseable values count as false.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
