package decoder

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/events"
	"github.com/lanikai/alohaplay/internal/media"
	"github.com/lanikai/alohaplay/internal/registry"
	"github.com/lanikai/alohaplay/internal/ticket"
)

// loopBase holds what the audio and video loops have in common.
type loopBase struct {
	s      *Stream
	class  buffer.Class
	fifo   *buffer.Fifo
	holder *ticket.Holder

	// Types no decoder could be found for, logged once each. Cleared when
	// a new stream starts.
	unknown map[buffer.Type]bool
}

func newLoopBase(s *Stream, class buffer.Class, fifo *buffer.Fifo) loopBase {
	return loopBase{
		s:       s,
		class:   class,
		fifo:    fifo,
		holder:  s.ticket.NewHolder(s.ID + "/" + class.String()),
		unknown: make(map[buffer.Type]bool),
	}
}

func (l *loopBase) acquire() {
	l.holder.Acquire(false, true)
}

func (l *loopBase) release() {
	l.holder.Release(false, true)
}

// renewAndRelease gives the ticket back after decoding, first stepping
// aside if a revocation is waiting on it.
func (l *loopBase) renewAndRelease() {
	if l.s.ticket.Revoked() {
		l.holder.Renew(false)
	}
	l.holder.Release(false, true)
}

func (l *loopBase) port() media.Port {
	return l.s.port(l.class)
}

// open gets a decoder for t. A type without any plugin is remembered as
// unknown and reported once; other failures are retried on the next
// element of the same type.
func (l *loopBase) open(t buffer.Type, metaKey string) *registry.Handle {
	h, err := l.s.registry.Open(l.s.out, t)
	if err == nil {
		l.s.everBound.Store(true)
		atomic.AddUint64(&l.s.stats.decodersOpened, 1)
		log.Debug("Stream %s: opened %s for %v", l.s.ID, h.Plugin, t)
		return h
	}

	if errors.Cause(err) == registry.ErrNoDecoder {
		l.unhandled(t, metaKey)
	}
	return nil
}

// unhandled records that no plugin handles t.
func (l *loopBase) unhandled(t buffer.Type, metaKey string) {
	if l.unknown[t] {
		return
	}
	l.unknown[t] = true
	atomic.AddUint64(&l.s.stats.unhandled, 1)
	log.Warn("Stream %s: no plugin available to handle '%v'", l.s.ID, t)
	if metaKey != "" {
		l.s.setMetaOnce(metaKey, t.Codec().String())
	}
	l.s.emit(events.Event{Type: events.CodecUnhandled, Class: t.Class(), Codec: t.Codec().String()})
}

// unknownClass reports data of a class this loop does not decode.
func (l *loopBase) unknownClass(t buffer.Type) {
	if l.unknown[t] {
		return
	}
	l.unknown[t] = true
	log.Warn("Stream %s: %v loop: unknown buffer type %08x", l.s.ID, l.class, uint32(t))
}

func (l *loopBase) decode(h *registry.Handle, e *buffer.Element) {
	if err := h.Decode(e); err != nil {
		atomic.AddUint64(&l.s.stats.decodeErrors, 1)
		log.Warn("Stream %s: %s: %v", l.s.ID, h.Plugin, err)
	}
	if e.PTS != 0 && e.Type.Class() == l.class {
		atomic.StoreInt64(l.s.stats.position(l.class), e.PTS)
	}
}

// resetPosition forgets where the loop's class was in the stream.
func (l *loopBase) resetPosition() {
	atomic.StoreInt64(l.s.stats.position(l.class), 0)
}

// closeDecoder disposes *h, if set. Must be called holding the ticket.
func (l *loopBase) closeDecoder(h **registry.Handle) {
	if *h == nil {
		return
	}
	if err := (*h).Close(); err != nil {
		log.Warn("Stream %s: close %s: %v", l.s.ID, (*h).Plugin, err)
	}
	*h = nil
}

// drainOutput waits for the output port to render what is queued, unless
// other streams share the port or an early finish event was requested.
func (l *loopBase) drainOutput() {
	if l.s.cfg.EarlyFinishEvent {
		return
	}
	interval := l.s.cfg.DrainPollInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	for {
		var bufs, streams int
		l.acquire()
		if p := l.port(); p != nil {
			bufs, streams = p.BufsInFifo(), p.NumStreams()
		}
		l.release()

		if bufs == 0 || streams != 1 {
			return
		}
		time.Sleep(interval)
	}
}
