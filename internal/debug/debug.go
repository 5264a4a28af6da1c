// Package debug provides environment-gated, mutex-guarded debug logging: a
// package-global enabled flag readable from an env var, a Logf helper, and
// a verbose toggle tests can flip without setting environment variables.
package debug

import (
	"fmt"
	"os"
	"sync"
)

var (
	enabled     = os.Getenv("MLL_DEBUG") != ""
	verboseMode bool
	mu          sync.Mutex
)

// Enabled reports whether debug output is currently on.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled || verboseMode
}

// SetVerbose turns debug logging on or off for the current process,
// independent of the MLL_DEBUG environment variable. Tests use this to
// assert on log output without touching the environment.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verboseMode = v
}

// Logf writes a formatted debug line to stderr when debugging is enabled.
func Logf(format string, args ...interface{}) {
	if Enabled() {
		fmt.Fprintf(os.Stderr, "[merkle-log] "+format+"\n", args...)
	}
}
