package buffer

import (
	errors "golang.org/x/xerrors"
)

var ErrTooLarge = errors.New("content exceeds element capacity")
