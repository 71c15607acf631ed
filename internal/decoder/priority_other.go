//go:build !linux
// +build !linux

package decoder

func raisePriority() {}
