package engine

import (
	errors "golang.org/x/xerrors"
)

var (
	ErrClosed        = errors.New("engine closed")
	ErrPaused        = errors.New("engine paused")
	ErrUnknownStream = errors.New("unknown stream")
	errBadSpeed      = errors.New("unsupported speed")
	errBadClass      = errors.New("no port slot for class")
)
