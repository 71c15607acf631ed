//go:build debug
// +build debug

package assert

// Enabled is true in builds tagged "debug".
const Enabled = true
