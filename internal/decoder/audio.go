package decoder

import (
	"sync/atomic"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/events"
	"github.com/lanikai/alohaplay/internal/metronom"
	"github.com/lanikai/alohaplay/internal/registry"
)

type audioLoop struct {
	loopBase

	dec        *registry.Handle
	decSubType int

	tracks     TrackMap
	activeType buffer.Type

	// User channel selection this loop last acted on.
	channelUser int

	// Header elements kept for replay after a channel change. They are
	// freed at the end of the stream.
	headers []*buffer.Element
}

func newAudioLoop(s *Stream) *audioLoop {
	return &audioLoop{
		loopBase:    newLoopBase(s, buffer.ClassAudio, s.AudioFifo),
		decSubType:  -1,
		channelUser: ChannelAuto,
	}
}

func (l *audioLoop) run() {
	defer l.freeHeaders()

	l.channelUser = l.s.AudioChannel()
	for {
		e := l.fifo.Get()
		if !l.handle(e) {
			e.Free()
			return
		}

		// Some decoders need a full reinitialisation when the channel
		// changes, so the decoder is closed and the headers replayed.
		if e.Kind == buffer.KindData && e.Flags.Has(buffer.FlagHeader) {
			l.headers = append(l.headers, e)
		} else {
			e.Free()
		}

		if user := l.s.AudioChannel(); user != l.channelUser {
			l.channelUser = user
			l.changeChannel()
			for _, h := range l.headers {
				l.handle(h)
			}
		}
	}
}

func (l *audioLoop) freeHeaders() {
	for _, h := range l.headers {
		h.Free()
	}
	l.headers = nil
}

func (l *audioLoop) changeChannel() {
	log.Debug("Stream %s: audio channel changed to %d", l.s.ID, l.channelUser)
	if l.dec != nil {
		l.acquire()
		l.closeDecoder(&l.dec)
		l.release()
	}
	l.tracks.Clear()
	l.activeType = 0
	l.publishTracks()
}

func (l *audioLoop) publishTracks() {
	tracks := l.tracks.Tracks()
	l.s.mu.Lock()
	l.s.audioTracks = tracks
	l.s.audioType = l.activeType
	l.s.mu.Unlock()
}

// handle processes one element. It returns false after quit.
func (l *audioLoop) handle(e *buffer.Element) bool {
	if e.Kind == buffer.KindData {
		l.handleData(e)
		return true
	}

	s := l.s
	switch e.Control {
	case buffer.ControlHeadersDone:
		s.headersDone(buffer.ClassAudio)

	case buffer.ControlStart:
		l.acquire()
		l.closeDecoder(&l.dec)
		l.tracks.Clear()
		l.activeType = 0
		l.release()
		l.publishTracks()

		if !e.Flags.Has(buffer.FlagGapless) {
			s.metronom.HandleDiscontinuity(buffer.ClassAudio, metronom.StreamStart, 0)
		}
		l.unknown = make(map[buffer.Type]bool)

	case buffer.ControlEnd:
		l.freeHeaders()
		l.drainOutput()
		s.finish(buffer.ClassAudio, buffer.ClassVideo)
		if !s.HasLoop(buffer.ClassVideo) {
			s.emit(events.Event{Type: events.Finished})
		}
		s.mu.Lock()
		s.audioChannelAuto = ChannelAuto
		s.mu.Unlock()

	case buffer.ControlQuit:
		l.acquire()
		l.closeDecoder(&l.dec)
		l.tracks.Clear()
		l.activeType = 0
		l.release()
		return false

	case buffer.ControlResetDecoder:
		l.resetPosition()
		if l.dec != nil {
			l.acquire()
			l.dec.Reset()
			l.release()
		}

	case buffer.ControlFlushDecoder:
		if l.dec != nil {
			l.acquire()
			l.dec.Flush()
			l.release()
		}

	case buffer.ControlDiscontinuity:
		if l.dec != nil {
			l.acquire()
			l.dec.Discontinuity()
			l.release()
		}
		s.metronom.HandleDiscontinuity(buffer.ClassAudio, metronom.Relative, e.DiscOffset)

	case buffer.ControlNewPTS:
		if l.dec != nil {
			l.acquire()
			l.dec.Discontinuity()
			l.release()
		}
		kind := metronom.Absolute
		if e.Flags.Has(buffer.FlagSeek) {
			kind = metronom.StreamSeek
		}
		s.metronom.HandleDiscontinuity(buffer.ClassAudio, kind, e.DiscOffset)

	case buffer.ControlAudioChannel:
		log.Debug("Stream %s: suggested switching to audio channel %#02x", s.ID, e.Info[0])
		s.mu.Lock()
		s.audioChannelAuto = int(e.Info[0] & 0xff)
		s.mu.Unlock()

	case buffer.ControlResetTrackMap:
		if l.tracks.Clear() {
			l.publishTracks()
			s.channelsChanged()
		}

	case buffer.ControlNop, buffer.ControlSPUChannel:
	}
	return true
}

func (l *audioLoop) handleData(e *buffer.Element) {
	s := l.s
	if s.Info(IgnoreAudio) {
		return
	}
	atomic.AddUint64(&s.stats.audioElements, 1)

	l.acquire()
	defer l.renewAndRelease()

	if e.Type.Class() != buffer.ClassAudio {
		l.unknownClass(e.Type)
		return
	}

	i, added := l.tracks.Insert(e.Type)
	if added {
		s.mu.Lock()
		implicit := i == 0 && l.channelUser == ChannelAuto && s.audioChannelAuto < 0
		s.mu.Unlock()
		if implicit {
			// The first track changed; reopen the decoder below.
			l.decSubType = -1
		}
		l.publishTracks()
		s.channelsChanged()
	}

	audioType, ok := l.selectType(e.Type)
	if !ok || e.Type != audioType {
		return
	}

	subType := int(e.Type.SubType())
	if l.decSubType != subType {
		l.closeDecoder(&l.dec)
		l.decSubType = subType
		s.SetInfo(AudioHandled, false)
	}
	if l.dec == nil && !l.unknown[e.Type] {
		l.dec = l.open(e.Type, MetaAudioCodec)
		s.SetInfo(AudioHandled, l.dec != nil)
	}

	if l.dec == nil {
		return
	}
	if audioType != l.activeType {
		l.activeType = audioType
		l.publishTracks()
		s.channelsChanged()
	}
	l.decode(l.dec, e)
}

// selectType picks the type to decode: the user's choice, else the
// demultiplexer's hint, else the first track.
func (l *audioLoop) selectType(t buffer.Type) (buffer.Type, bool) {
	s := l.s
	s.mu.Lock()
	auto := s.audioChannelAuto
	s.mu.Unlock()

	switch user := l.channelUser; {
	case user == ChannelOff:
		return 0, false
	case user == ChannelAuto && auto >= 0:
		if int(t.Channel()&0xff) == auto {
			return t, true
		}
		return 0, false
	case user == ChannelAuto:
		if l.tracks.Len() == 0 {
			return 0, false
		}
		return l.tracks.At(0), true
	case user < l.tracks.Len():
		return l.tracks.At(user), true
	}
	return 0, false
}
