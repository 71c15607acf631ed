package buffer

import (
	"sync/atomic"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/alohaplay/internal/assert"
)

// Kind distinguishes control messages from tagged data.
type Kind uint8

const (
	KindData Kind = iota
	KindControl
)

/*
An Element is a pooled unit passed from a producer to exactly one consumer.
It carries either a control message or a payload tagged with a Type. The
consumer must call Free exactly once when it is done; the element then
returns to its pool and must not be touched again.

	e := fifo.Get()
	defer e.Free()
	switch e.Kind {
	case buffer.KindControl:
		// Dispatch on e.Control.
	case buffer.KindData:
		// Decode e.Content according to e.Type.
	}
*/
type Element struct {
	Kind    Kind
	Control Control
	Type    Type
	Flags   Flags

	// Presentation timestamp, in 90 kHz units. Zero when unknown.
	PTS int64

	// Timestamp correction carried by discontinuity and new-pts messages.
	DiscOffset int64

	// Control arguments, e.g. the suggested channel for ControlAudioChannel.
	Info [4]int32

	// Payload, a slice of the element's pooled memory.
	Content []byte

	mem  []byte
	pool *Pool
	next *Element

	// 1 while handed out, 0 while in the pool.
	held int32
}

// SetContent copies p into the element's pooled memory.
func (e *Element) SetContent(p []byte) error {
	if len(p) > cap(e.mem) {
		return errors.Errorf("%d bytes: %w", len(p), ErrTooLarge)
	}
	e.Content = e.mem[:len(p)]
	copy(e.Content, p)
	return nil
}

// Capacity is the largest payload the element can carry.
func (e *Element) Capacity() int {
	return cap(e.mem)
}

// Free returns the element to its pool. Freeing an element twice is a
// contract violation.
func (e *Element) Free() {
	if e == nil {
		return
	}
	if !atomic.CompareAndSwapInt32(&e.held, 1, 0) {
		assert.That(false, "element %p (%s) freed twice", e, e.describe())
		return
	}
	if e.pool != nil {
		e.pool.put(e)
	}
}

func (e *Element) reset() {
	e.Kind = KindData
	e.Control = 0
	e.Type = 0
	e.Flags = 0
	e.PTS = 0
	e.DiscOffset = 0
	e.Info = [4]int32{}
	e.Content = e.mem[:0]
	e.next = nil
}

func (e *Element) describe() string {
	if e.Kind == KindControl {
		return e.Control.String()
	}
	return e.Type.String()
}
