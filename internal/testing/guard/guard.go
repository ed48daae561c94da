// Package guard switches the binaries into test mode for any test binary that
// imports it. An explicit ODYSSEY_TEST_MODE value is left alone.
package guard

import "os"

const testModeEnv = "ODYSSEY_TEST_MODE"

func init() {
	if _, set := os.LookupEnv(testModeEnv); !set {
		_ = os.Setenv(testModeEnv, "1")
	}
}
