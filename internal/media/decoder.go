//////////////////////////////////////////////////////////////////////////////
//
// Media decoder interface for codecs
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package media

import (
	"io"

	"github.com/lanikai/alohaplay/internal/buffer"
)

// Decoder is the interface for audio, video and overlay decoders. A decoder
// is driven by a single decoder loop; all calls happen while the loop holds
// the port ticket, so a decoder may write to its output ports freely.
type Decoder interface {
	io.Closer

	// Decode consumes one data element. The element stays owned by the
	// caller and must not be retained.
	Decode(e *buffer.Element) error

	// Reset drops internal state without releasing resources, e.g. after a
	// seek.
	Reset()

	// Discontinuity drops any state that depends on timestamps.
	Discontinuity()

	// Flush pushes out frames or samples still held by the decoder.
	Flush()
}
