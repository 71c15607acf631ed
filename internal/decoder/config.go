package decoder

import (
	"time"
)

// Config holds per-stream decoder loop settings.
type Config struct {
	// Element pool sizes. Elements hold BufferSize bytes each.
	AudioBuffers int
	VideoBuffers int
	BufferSize   int

	// Keep video decoder state across discontinuities, e.g. for live
	// streams whose timestamps wrap.
	DisableFlushAtDiscontinuity bool

	// Report the end of a stream without waiting for the outputs to drain.
	EarlyFinishEvent bool

	// Sleep between checks of an output port while draining at the end of
	// a stream.
	DrainPollInterval time.Duration

	// Interval at which a loop waiting for its sibling at the end of a
	// stream rechecks the counters.
	BarrierRecheck time.Duration

	// Longest time one loop waits for the other to report the same
	// discontinuity to the metronom. Zero waits indefinitely.
	DiscontinuityTimeout time.Duration

	// Raise the OS priority of the video loop by one step.
	RaiseVideoPriority bool
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		AudioBuffers:      230,
		VideoBuffers:      500,
		BufferSize:        8192,
		DrainPollInterval: 10 * time.Millisecond,
		BarrierRecheck:    time.Second,

		DiscontinuityTimeout: time.Second,
	}
}

// Size of the discarding fifo created for a class without an output port.
const (
	dummyBuffers    = 5
	dummyBufferSize = 8192
)
