// Package assert reports contract violations. Builds tagged "debug" panic on
// a violation; other builds log it and let the caller refuse the operation.
package assert

import (
	"fmt"

	"github.com/lanikai/alohaplay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("assert")

// That reports a violation when cond is false, and returns cond so callers
// can bail out in release builds.
func That(cond bool, format string, a ...interface{}) bool {
	if cond {
		return true
	}
	msg := fmt.Sprintf(format, a...)
	log.Log(logging.Error, 1, "BUG: %s", msg)
	if Enabled {
		panic("assertion failed: " + msg)
	}
	return false
}
