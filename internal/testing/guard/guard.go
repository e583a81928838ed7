// Package guard switches binaries into test mode when imported by a test, so
// calling main does not dial Postgres, Redis or the job queue.
package guard

import "os"

// TestModeEnv is read by app.InTestMode.
const TestModeEnv = "HRDESK_TEST_MODE"

func init() {
	if os.Getenv(TestModeEnv) == "" {
		_ = os.Setenv(TestModeEnv, "1")
	}
}
