// Package demux reads container files and feeds their elementary streams
// into a stream's fifos.
package demux

import (
	"time"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("demux")

// Target is where a demuxer puts elements. *decoder.Stream implements it.
type Target interface {
	Fifo(class buffer.Class) *buffer.Fifo
	PutControl(c buffer.Control, flags buffer.Flags, discOffset int64)
}

type Options struct {
	// Position to start from.
	Start time.Duration

	// Hold each packet until its presentation time relative to the first.
	Realtime bool

	// Continue the previous stream without a discontinuity.
	Gapless bool
}
