//////////////////////////////////////////////////////////////////////////////
//
// Output port interfaces
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package media

import (
	"time"

	"github.com/lanikai/alohaplay/internal/buffer"
)

// Speeds understood by Port.SetSpeed.
const (
	SpeedPause  = 0
	SpeedSlow4  = 1
	SpeedSlow2  = 2
	SpeedNormal = 4
	SpeedFast2  = 8
	SpeedFast4  = 16
)

// A Frame is decoded output handed to a port.
type Frame struct {
	Class buffer.Class
	Type  buffer.Type
	PTS   int64

	// How long the frame occupies the output at normal speed.
	Duration time.Duration

	Keyframe bool
	Data     []byte
}

// Drainer reports how much output is still waiting to be rendered. The
// end-of-stream handling polls it; a port able to signal when it runs dry
// can implement the same interface.
type Drainer interface {
	// Number of frames queued but not yet rendered.
	BufsInFifo() int

	// Number of streams attached to the port.
	NumStreams() int
}

// A Port is a rendering device (speaker, display) shared by the decoder
// loops of every stream attached to it. Ports are only touched while holding
// the port ticket, or by the goroutine that has revoked it.
type Port interface {
	Drainer

	Name() string

	// Open attaches a stream; Close detaches it.
	Open(streamID string) error
	Close(streamID string)

	// Write queues a frame for rendering, blocking while the queue is full.
	Write(f *Frame) error

	// Flush drops every queued frame.
	Flush()

	SetSpeed(speed int)
	Speed() int
}

// Output gives a decoder access to the ports of its stream. Port returns
// nil when nothing is attached for the class. The port behind a class may
// change between calls when it is rewired, so decoders look it up on every
// write instead of keeping it.
type Output interface {
	Port(class buffer.Class) Port
}
