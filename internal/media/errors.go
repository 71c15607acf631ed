//////////////////////////////////////////////////////////////////////////////
//
// Media errors
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package media

import "errors"

var (
	ErrPortClosed  = errors.New("output port closed")
	errNotAttached = errors.New("stream not attached to port")
)
