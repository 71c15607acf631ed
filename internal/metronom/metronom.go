// Package metronom maps stream timestamps onto the engine's presentation
// clock and keeps audio and video in step across discontinuities.
//
// Both decoder loops of a stream report every discontinuity they see. When
// the stream has audio and video, the video report is applied only once the
// audio loop has reached the same discontinuity, and the audio loop waits
// until the video side has applied it. A stream with a single class applies
// its reports immediately.
package metronom

import (
	"fmt"
	"sync"
	"time"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("metronom")

// Kind of discontinuity.
type Kind int

const (
	// A new stream starts; timestamps restart near zero.
	StreamStart Kind = iota
	// Timestamps continue with a relative offset, e.g. after a wrap-around.
	Relative
	// Timestamps restart from the given offset, e.g. a new menu stream.
	Absolute
	// A seek completed; the offset is the new stream position.
	StreamSeek
)

func (k Kind) String() string {
	switch k {
	case StreamStart:
		return "stream-start"
	case Relative:
		return "relative"
	case Absolute:
		return "absolute"
	case StreamSeek:
		return "stream-seek"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ClockRate is the timestamp unit, in ticks per second.
const ClockRate = 90000

// DefaultPrebuffer is how far ahead of the clock a new stream is scheduled.
const DefaultPrebuffer = 12000

// Metronom is the timing authority shared by the decoder loops of one
// stream.
type Metronom struct {
	mu   sync.Mutex
	cond *sync.Cond

	now       func() int64
	prebuffer int64

	// Upper bound on how long one class waits for the other at a
	// discontinuity. Zero waits forever.
	waitTimeout time.Duration

	haveAudio bool
	haveVideo bool

	audioDiscontinuities int
	videoDiscontinuities int
	handled              int

	videoVPTS  int64
	audioVPTS  int64
	vptsOffset int64

	closed bool
}

// New creates a metronom driven by the wall clock.
func New(waitTimeout time.Duration) *Metronom {
	start := time.Now()
	return NewWithClock(func() int64 {
		return int64(time.Since(start)) * ClockRate / int64(time.Second)
	}, waitTimeout)
}

// NewWithClock creates a metronom reading the current time, in 90 kHz
// ticks, from now.
func NewWithClock(now func() int64, waitTimeout time.Duration) *Metronom {
	m := &Metronom{
		now:         now,
		prebuffer:   DefaultPrebuffer,
		waitTimeout: waitTimeout,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// SetHave records whether the stream has output for class. Only audio and
// video matter.
func (m *Metronom) SetHave(class buffer.Class, have bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch class {
	case buffer.ClassAudio:
		m.haveAudio = have
	case buffer.ClassVideo:
		m.haveVideo = have
	}
	m.cond.Broadcast()
}

// HandleDiscontinuity reports a discontinuity seen by the decoder loop of
// class. It may block until the sibling loop reports the same
// discontinuity.
func (m *Metronom) HandleDiscontinuity(class buffer.Class, kind Kind, offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch class {
	case buffer.ClassVideo:
		m.videoDiscontinuities++
		m.cond.Broadcast()
		log.Debug("video discontinuity #%d, %v, offset %d", m.videoDiscontinuities, kind, offset)

		if m.haveAudio {
			ok := m.waitLocked(func() bool {
				return m.audioDiscontinuities < m.videoDiscontinuities
			})
			if !ok {
				log.Warn("gave up waiting for audio discontinuity #%d", m.videoDiscontinuities)
			}
		}
		m.apply(kind, offset)
		m.handled++
		m.cond.Broadcast()

	case buffer.ClassAudio:
		m.audioDiscontinuities++
		m.cond.Broadcast()
		log.Debug("audio discontinuity #%d, %v, offset %d", m.audioDiscontinuities, kind, offset)

		if m.haveVideo {
			ok := m.waitLocked(func() bool {
				return m.audioDiscontinuities > m.handled
			})
			if !ok {
				log.Warn("gave up waiting for video to handle discontinuity #%d", m.audioDiscontinuities)
			}
		} else {
			m.apply(kind, offset)
		}

	default:
		log.Warn("discontinuity from %v ignored", class)
	}
}

// waitLocked waits while blocked returns true. It returns false on timeout
// or close.
func (m *Metronom) waitLocked(blocked func() bool) bool {
	var deadline time.Time
	if m.waitTimeout > 0 {
		deadline = time.Now().Add(m.waitTimeout)
		t := time.AfterFunc(m.waitTimeout, func() {
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		})
		defer t.Stop()
	}

	for blocked() {
		if m.closed {
			return false
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false
		}
		m.cond.Wait()
	}
	return true
}

func (m *Metronom) apply(kind Kind, offset int64) {
	now := m.now()

	switch kind {
	case StreamStart, StreamSeek:
		m.videoVPTS = m.prebuffer + now
		m.audioVPTS = m.videoVPTS
	case Absolute, Relative:
		if m.videoVPTS < now {
			if m.audioVPTS > now {
				// Still frame with audio.
				m.videoVPTS = m.audioVPTS
			} else {
				m.videoVPTS = m.prebuffer + now
				m.audioVPTS = m.videoVPTS
			}
		} else if m.audioVPTS < now {
			m.audioVPTS = m.videoVPTS
		}
	}

	switch kind {
	case StreamStart:
		m.vptsOffset = m.videoVPTS
	case Absolute, StreamSeek:
		m.vptsOffset = m.videoVPTS - offset
	case Relative:
		m.vptsOffset -= offset
	}
}

// VPTS converts a stream timestamp to presentation time.
func (m *Metronom) VPTS(pts int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pts + m.vptsOffset
}

// Handled returns the number of discontinuities applied on the video side
// and the counts reported by each class.
func (m *Metronom) Handled() (handled, audio, video int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handled, m.audioDiscontinuities, m.videoDiscontinuities
}

// Close releases any loop waiting on its sibling.
func (m *Metronom) Close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}
