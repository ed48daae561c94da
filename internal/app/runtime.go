package app

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes the binaries exit before opening listeners or dialing
// PostgreSQL and Redis.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode = &envFlag{name: TestModeEnv}

type envFlag struct {
	name string
	once sync.Once
	on   atomic.Bool
}

func (f *envFlag) load() {
	f.on.Store(truthy(os.Getenv(f.name)))
}

func (f *envFlag) enabled() bool {
	f.once.Do(f.load)
	return f.on.Load()
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// InTestMode reports whether the binaries should skip runtime side effects.
func InTestMode() bool {
	return testMode.enabled()
}

// RefreshTestMode re-reads the flag after environment changes.
func RefreshTestMode() {
	testMode.once.Do(func() {})
	testMode.load()
}
