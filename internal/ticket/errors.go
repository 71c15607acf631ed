package ticket

import (
	errors "golang.org/x/xerrors"
)

var errRewiringTimeout = errors.New("timed out waiting for port rewiring lock")

// IsRewiringTimeout reports whether err came from a rewiring lock that could
// not be taken in time.
func IsRewiringTimeout(err error) bool {
	return errors.Is(err, errRewiringTimeout)
}

// RewiringTimeout wraps errRewiringTimeout with the port being rewired.
func RewiringTimeout(port string) error {
	return errors.Errorf("rewire %s: %w", port, errRewiringTimeout)
}
