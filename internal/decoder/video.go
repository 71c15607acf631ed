package decoder

import (
	"sync/atomic"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/events"
	"github.com/lanikai/alohaplay/internal/metronom"
	"github.com/lanikai/alohaplay/internal/registry"
)

// videoLoop decodes video and subtitle (SPU) elements.
type videoLoop struct {
	loopBase

	dec        *registry.Handle
	decSubType int

	spu        *registry.Handle
	spuSubType int
	spuTracks  TrackMap
}

func newVideoLoop(s *Stream) *videoLoop {
	return &videoLoop{
		loopBase:   newLoopBase(s, buffer.ClassVideo, s.VideoFifo),
		decSubType: -1,
		spuSubType: -1,
	}
}

func (l *videoLoop) run() {
	if l.s.cfg.RaiseVideoPriority {
		raisePriority()
	}

	for {
		e := l.fifo.Get()
		running := l.handle(e)
		e.Free()
		if !running {
			return
		}
	}
}

func (l *videoLoop) publishTracks() {
	tracks := l.spuTracks.Tracks()
	l.s.mu.Lock()
	l.s.spuTracks = tracks
	l.s.mu.Unlock()
}

func (l *videoLoop) closeDecoders() {
	l.closeDecoder(&l.dec)
	l.closeDecoder(&l.spu)
	l.spuTracks.Clear()
}

// discontinuity makes the decoder drop its state, flushing what it holds
// unless configured not to.
func (l *videoLoop) discontinuity() {
	if l.dec == nil {
		return
	}
	l.acquire()
	l.dec.Discontinuity()
	if !l.s.cfg.DisableFlushAtDiscontinuity {
		l.dec.Flush()
	}
	l.release()
}

func (l *videoLoop) handle(e *buffer.Element) bool {
	if e.Kind == buffer.KindData {
		switch e.Type.Class() {
		case buffer.ClassVideo:
			l.handleVideo(e)
		case buffer.ClassSPU:
			l.handleSPU(e)
		default:
			l.unknownClass(e.Type)
		}
		return true
	}

	s := l.s
	switch e.Control {
	case buffer.ControlHeadersDone:
		s.headersDone(buffer.ClassVideo)

	case buffer.ControlStart:
		l.acquire()
		l.closeDecoders()
		l.release()
		l.publishTracks()

		if !e.Flags.Has(buffer.FlagGapless) {
			s.metronom.HandleDiscontinuity(buffer.ClassVideo, metronom.StreamStart, 0)
		}
		l.unknown = make(map[buffer.Type]bool)

	case buffer.ControlSPUChannel:
		s.mu.Lock()
		s.spuChannelAuto = int(e.Info[0])
		s.spuLetterbox = int(e.Info[1])
		s.spuPanScan = int(e.Info[2])
		s.mu.Unlock()
		s.channelsChanged()

	case buffer.ControlEnd:
		// Flush decoded frames when the stream finished by itself.
		if e.Flags.Has(buffer.FlagEndStream) && !e.Flags.Has(buffer.FlagEndUser) && l.dec != nil {
			l.acquire()
			l.dec.Flush()
			l.release()
		}
		l.drainOutput()
		s.finish(buffer.ClassVideo, buffer.ClassAudio)
		s.emit(events.Event{Type: events.Finished})

	case buffer.ControlQuit:
		l.acquire()
		l.closeDecoders()
		l.release()
		return false

	case buffer.ControlResetDecoder:
		atomic.AddUint64(&s.stats.seekCount, 1)
		l.resetPosition()
		l.acquire()
		if l.dec != nil {
			l.dec.Reset()
		}
		if l.spu != nil {
			l.spu.Reset()
		}
		l.release()

	case buffer.ControlFlushDecoder:
		if l.dec != nil {
			l.acquire()
			l.dec.Flush()
			l.release()
		}

	case buffer.ControlDiscontinuity:
		l.discontinuity()
		s.metronom.HandleDiscontinuity(buffer.ClassVideo, metronom.Relative, e.DiscOffset)

	case buffer.ControlNewPTS:
		l.discontinuity()
		kind := metronom.Absolute
		if e.Flags.Has(buffer.FlagSeek) {
			kind = metronom.StreamSeek
		}
		s.metronom.HandleDiscontinuity(buffer.ClassVideo, kind, e.DiscOffset)

	case buffer.ControlAudioChannel:
		s.channelsChanged()

	case buffer.ControlResetTrackMap:
		if l.spuTracks.Clear() {
			l.publishTracks()
			s.channelsChanged()
		}

	case buffer.ControlNop:
	}
	return true
}

func (l *videoLoop) handleVideo(e *buffer.Element) {
	s := l.s
	if s.Info(IgnoreVideo) {
		return
	}
	atomic.AddUint64(&s.stats.videoElements, 1)

	l.acquire()
	defer l.renewAndRelease()

	subType := int(e.Type.SubType())
	if l.decSubType != subType {
		l.closeDecoder(&l.dec)
		l.decSubType = subType
		s.SetInfo(VideoHandled, false)
	}
	if l.dec == nil && !l.unknown[e.Type] {
		l.dec = l.open(e.Type, MetaVideoCodec)
		s.SetInfo(VideoHandled, l.dec != nil)
	}

	if l.dec != nil {
		l.decode(l.dec, e)
	}
}

func (l *videoLoop) handleSPU(e *buffer.Element) {
	s := l.s
	if s.Info(IgnoreSPU) {
		return
	}
	atomic.AddUint64(&s.stats.spuElements, 1)

	l.acquire()
	defer l.renewAndRelease()

	subType := int(e.Type.SubType())
	if l.spuSubType != subType {
		l.closeDecoder(&l.spu)
		l.spuSubType = subType
	}
	if l.spu == nil && !l.unknown[e.Type] {
		l.spu = l.open(e.Type, "")
	}

	if _, added := l.spuTracks.Insert(e.Type); added {
		l.publishTracks()
		s.channelsChanged()
	}

	if l.spu != nil && s.selectedSPUChannel() == int(e.Type.Channel()) {
		l.decode(l.spu, e)
	}
}
