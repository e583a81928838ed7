package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

const testModeEnv = "HRDESK_TEST_MODE"

// testMode caches HRDESK_TEST_MODE: 0 unread, 1 off, 2 on.
var testMode atomic.Int32

// InTestMode reports whether binaries should skip dialing Postgres, Redis
// and the job queue.
func InTestMode() bool {
	if testMode.Load() == 0 {
		RefreshTestMode()
	}
	return testMode.Load() == 2
}

// RefreshTestMode re-reads the flag after the environment changes.
func RefreshTestMode() {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	if on {
		testMode.Store(2)
		return
	}
	testMode.Store(1)
}
