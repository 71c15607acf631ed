// Package decoder runs the per-stream decoder loops.
//
// A Stream owns two fifos fed by a demultiplexer: one for audio and one for
// video, which also carries subtitle (SPU) elements. Each fifo is drained by
// its own goroutine that dispatches control messages, keeps track of the
// sub-streams seen, opens decoders from the registry and feeds them data.
// Anything that touches the shared output ports happens while holding the
// engine's port ticket, so a revocation (pause, port rewiring, shutdown)
// finds every loop at a safe point.
//
// The two loops meet at the end of each stream: a loop that has drained its
// output waits until its sibling has also reached the end marker.
package decoder

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/events"
	"github.com/lanikai/alohaplay/internal/media"
	"github.com/lanikai/alohaplay/internal/metronom"
	"github.com/lanikai/alohaplay/internal/registry"
	"github.com/lanikai/alohaplay/internal/ticket"
)

// Channel selection values for SetAudioChannel and SetSPUChannel.
const (
	ChannelOff  = -2
	ChannelAuto = -1
)

// Info flags describe how a stream is being decoded.
type Info uint32

const (
	IgnoreAudio Info = 1 << iota
	IgnoreVideo
	IgnoreSPU
	AudioHandled
	VideoHandled
)

// Meta info keys.
const (
	MetaAudioCodec = "audio_codec"
	MetaVideoCodec = "video_codec"
)

// Env holds the engine-wide collaborators of a stream.
type Env struct {
	Ticket   *ticket.Ticket
	Registry *registry.Registry
	Output   media.Output

	// Optional.
	Events   *events.Bus
	Metronom *metronom.Metronom
}

// Stats counts what a stream's loops have processed.
type Stats struct {
	AudioElements  uint64 `json:"audio_elements"`
	VideoElements  uint64 `json:"video_elements"`
	SPUElements    uint64 `json:"spu_elements"`
	DecodersOpened uint64 `json:"decoders_opened"`
	DecodeErrors   uint64 `json:"decode_errors"`
	Unhandled      uint64 `json:"unhandled"`
	SeekCount      uint64 `json:"seek_count"`

	// PTS of the last element decoded for each class, zero after a reset.
	AudioPTS int64 `json:"audio_pts"`
	VideoPTS int64 `json:"video_pts"`
}

type counters struct {
	audioElements  uint64
	videoElements  uint64
	spuElements    uint64
	decodersOpened uint64
	decodeErrors   uint64
	unhandled      uint64
	seekCount      uint64
	audioPTS       int64
	videoPTS       int64
}

// position returns the last decoded PTS counter of class.
func (c *counters) position(class buffer.Class) *int64 {
	if class == buffer.ClassAudio {
		return &c.audioPTS
	}
	return &c.videoPTS
}

// A Stream is one playback session with its audio and video decoder loops.
type Stream struct {
	ID string

	// Producers put elements here. A class without an output port gets a
	// fifo that discards everything.
	AudioFifo *buffer.Fifo
	VideoFifo *buffer.Fifo

	cfg      Config
	ticket   *ticket.Ticket
	registry *registry.Registry
	out      media.Output
	bus      *events.Bus
	metronom *metronom.Metronom

	audio *audioLoop
	video *videoLoop

	// Barrier state.
	counterMu      sync.Mutex
	counterChanged *sync.Cond
	headerCount    map[buffer.Class]int
	finishedCount  map[buffer.Class]int
	running        map[buffer.Class]bool

	// Channel selection, info and meta data.
	mu               sync.Mutex
	audioChannelUser int
	audioChannelAuto int
	audioType        buffer.Type
	audioTracks      []buffer.Type
	spuChannelUser   int
	spuChannelAuto   int
	spuLetterbox     int
	spuPanScan       int
	spuTracks        []buffer.Type
	info             Info
	meta             map[string]string

	everBound atomic.Bool
	stats     counters

	started  atomic.Bool
	stopOnce sync.Once
	done     sync.WaitGroup
}

// NewStream creates a stream. Loops exist for the classes that have an
// output port when the stream is created; Start launches them.
func NewStream(id string, env Env, cfg Config) *Stream {
	s := &Stream{
		ID:               id,
		cfg:              cfg,
		ticket:           env.Ticket,
		registry:         env.Registry,
		out:              env.Output,
		bus:              env.Events,
		metronom:         env.Metronom,
		headerCount:      make(map[buffer.Class]int),
		finishedCount:    make(map[buffer.Class]int),
		running:          make(map[buffer.Class]bool),
		audioChannelUser: ChannelAuto,
		audioChannelAuto: ChannelAuto,
		spuChannelUser:   ChannelAuto,
		spuChannelAuto:   ChannelAuto,
		spuLetterbox:     ChannelAuto,
		spuPanScan:       ChannelAuto,
		meta:             make(map[string]string),
	}
	s.counterChanged = sync.NewCond(&s.counterMu)
	if s.metronom == nil {
		s.metronom = metronom.New(cfg.DiscontinuityTimeout)
	}

	if s.port(buffer.ClassAudio) != nil {
		s.AudioFifo = buffer.NewFifo(cfg.AudioBuffers, cfg.BufferSize)
		s.audio = newAudioLoop(s)
	} else {
		s.AudioFifo = buffer.NewDiscardFifo(dummyBuffers, dummyBufferSize)
	}
	if s.port(buffer.ClassVideo) != nil {
		s.VideoFifo = buffer.NewFifo(cfg.VideoBuffers, cfg.BufferSize)
		s.video = newVideoLoop(s)
	} else {
		s.VideoFifo = buffer.NewDiscardFifo(dummyBuffers, dummyBufferSize)
	}
	return s
}

// Fifo returns the fifo elements of class go to.
func (s *Stream) Fifo(class buffer.Class) *buffer.Fifo {
	if class == buffer.ClassAudio {
		return s.AudioFifo
	}
	return s.VideoFifo
}

// Metronom returns the stream's timing authority.
func (s *Stream) Metronom() *metronom.Metronom {
	return s.metronom
}

func (s *Stream) port(class buffer.Class) media.Port {
	if s.out == nil {
		return nil
	}
	return s.out.Port(class)
}

// Start attaches the stream to its output ports and launches the loops.
func (s *Stream) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	for _, class := range []buffer.Class{buffer.ClassAudio, buffer.ClassVideo} {
		if !s.HasLoop(class) {
			continue
		}
		if err := s.port(class).Open(s.ID); err != nil {
			s.closePorts()
			s.started.Store(false)
			return err
		}
		s.metronom.SetHave(class, true)
	}

	s.counterMu.Lock()
	if s.audio != nil {
		s.running[buffer.ClassAudio] = true
	}
	if s.video != nil {
		s.running[buffer.ClassVideo] = true
	}
	s.counterMu.Unlock()

	if s.audio != nil {
		s.done.Add(1)
		go s.runLoop(buffer.ClassAudio, s.audio.run)
	}
	if s.video != nil {
		s.done.Add(1)
		go s.runLoop(buffer.ClassVideo, s.video.run)
	}
	log.Info("Stream %s started (audio=%v, video=%v)", s.ID, s.audio != nil, s.video != nil)
	return nil
}

func (s *Stream) runLoop(class buffer.Class, run func()) {
	defer s.done.Done()
	run()

	s.counterMu.Lock()
	s.running[class] = false
	s.counterChanged.Broadcast()
	s.counterMu.Unlock()
	log.Debug("Stream %s: %v loop finished", s.ID, class)
}

// Started reports whether Start has launched the loops.
func (s *Stream) Started() bool {
	return s.started.Load()
}

// HasLoop reports whether the stream decodes class.
func (s *Stream) HasLoop(class buffer.Class) bool {
	switch class {
	case buffer.ClassAudio:
		return s.audio != nil
	case buffer.ClassVideo, buffer.ClassSPU:
		return s.video != nil
	}
	return false
}

// PutControl sends a control message to every loop of the stream.
func (s *Stream) PutControl(c buffer.Control, flags buffer.Flags, discOffset int64) {
	s.VideoFifo.PutControl(c, flags, discOffset)
	s.AudioFifo.PutControl(c, flags, discOffset)
}

// Shutdown tells the loops to quit and waits for them. Elements already
// queued are processed first. The stream must not be paused, or the loops
// cannot pass their ticket acquisitions.
func (s *Stream) Shutdown() {
	s.stopOnce.Do(func() {
		if !s.started.Load() {
			s.AudioFifo.Dispose()
			s.VideoFifo.Dispose()
			return
		}

		s.PutControl(buffer.ControlQuit, 0, 0)
		s.done.Wait()
		s.metronom.Close()
		s.closePorts()

		s.AudioFifo.Dispose()
		s.VideoFifo.Dispose()
		log.Info("Stream %s shut down", s.ID)
	})
}

func (s *Stream) closePorts() {
	for _, class := range []buffer.Class{buffer.ClassAudio, buffer.ClassVideo} {
		if !s.HasLoop(class) {
			continue
		}
		if p := s.port(class); p != nil {
			p.Close(s.ID)
		}
	}
}

// EverBound reports whether any decoder was ever opened for the stream. A
// stream that ends without one could not be played.
func (s *Stream) EverBound() bool {
	return s.everBound.Load()
}

func (s *Stream) Stats() Stats {
	return Stats{
		AudioElements:  atomic.LoadUint64(&s.stats.audioElements),
		VideoElements:  atomic.LoadUint64(&s.stats.videoElements),
		SPUElements:    atomic.LoadUint64(&s.stats.spuElements),
		DecodersOpened: atomic.LoadUint64(&s.stats.decodersOpened),
		DecodeErrors:   atomic.LoadUint64(&s.stats.decodeErrors),
		Unhandled:      atomic.LoadUint64(&s.stats.unhandled),
		SeekCount:      atomic.LoadUint64(&s.stats.seekCount),
		AudioPTS:       atomic.LoadInt64(&s.stats.audioPTS),
		VideoPTS:       atomic.LoadInt64(&s.stats.videoPTS),
	}
}

func (s *Stream) emit(e events.Event) {
	if s.bus == nil {
		return
	}
	e.Stream = s.ID
	s.bus.Publish(e)
}

func (s *Stream) channelsChanged() {
	s.emit(events.Event{Type: events.ChannelsChanged})
}

////////////////////////////////  Counters  ////////////////////////////////

func (s *Stream) headersDone(class buffer.Class) {
	s.counterMu.Lock()
	s.headerCount[class]++
	s.counterChanged.Broadcast()
	s.counterMu.Unlock()
}

// HeaderCount returns how many headers-done markers the loop of class has
// passed.
func (s *Stream) HeaderCount(class buffer.Class) int {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	return s.headerCount[class]
}

// FinishedCount returns how many end markers the loop of class has passed.
func (s *Stream) FinishedCount(class buffer.Class) int {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	return s.finishedCount[class]
}

// finish counts an end marker for class and waits, while the sibling loop
// runs, until the sibling has reached it too.
func (s *Stream) finish(class, sibling buffer.Class) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	s.finishedCount[class]++
	mine := s.finishedCount[class]
	log.Debug("Stream %s: %v reached end marker #%d", s.ID, class, mine)
	s.counterChanged.Broadcast()

	for s.running[sibling] && s.finishedCount[sibling] < mine {
		s.waitCounter()
	}
}

// waitCounter waits on counterChanged, waking up after the recheck
// interval at the latest. Must be called with counterMu held.
func (s *Stream) waitCounter() {
	recheck := s.cfg.BarrierRecheck
	if recheck <= 0 {
		recheck = time.Second
	}
	t := time.AfterFunc(recheck, func() {
		s.counterMu.Lock()
		s.counterChanged.Broadcast()
		s.counterMu.Unlock()
	})
	s.counterChanged.Wait()
	t.Stop()
}

// WaitFinished blocks until every loop of the stream has passed n end
// markers, or timeout elapses. It reports whether the markers were reached.
func (s *Stream) WaitFinished(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	for {
		reached := true
		for _, class := range []buffer.Class{buffer.ClassAudio, buffer.ClassVideo} {
			if s.HasLoop(class) && s.finishedCount[class] < n {
				reached = false
			}
		}
		if reached {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		s.waitCounter()
	}
}

//////////////////////////////  Selection  ///////////////////////////////

// SetAudioChannel selects the audio track: an index into AudioTracks,
// ChannelAuto, or ChannelOff. Headers are replayed to the new decoder.
func (s *Stream) SetAudioChannel(channel int) {
	if channel < ChannelOff {
		channel = ChannelOff
	}
	s.mu.Lock()
	s.audioChannelUser = channel
	s.mu.Unlock()
}

func (s *Stream) AudioChannel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioChannelUser
}

// AudioType returns the type currently being decoded, zero if none.
func (s *Stream) AudioType() buffer.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioType
}

// AudioTracks returns the audio sub-streams seen, by channel number.
func (s *Stream) AudioTracks() []buffer.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]buffer.Type(nil), s.audioTracks...)
}

// SetSPUChannel selects the subtitle track: an index into SPUTracks,
// ChannelAuto, or ChannelOff.
func (s *Stream) SetSPUChannel(channel int) {
	if channel < ChannelOff {
		channel = ChannelOff
	}
	s.mu.Lock()
	s.spuChannelUser = channel
	s.mu.Unlock()
}

func (s *Stream) SPUChannel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spuChannelUser
}

// SPUHints returns the auto, letterbox and pan-scan channels suggested by
// the demultiplexer.
func (s *Stream) SPUHints() (auto, letterbox, panScan int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spuChannelAuto, s.spuLetterbox, s.spuPanScan
}

func (s *Stream) SPUTracks() []buffer.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]buffer.Type(nil), s.spuTracks...)
}

// selectedSPUChannel returns the subtitle channel to decode, or -1.
func (s *Stream) selectedSPUChannel() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch user := s.spuChannelUser; {
	case user == ChannelOff:
		return -1
	case user >= 0 && user < len(s.spuTracks):
		return int(s.spuTracks[user].Channel())
	case s.spuChannelAuto >= 0:
		return s.spuChannelAuto
	case user == ChannelAuto && len(s.spuTracks) > 0:
		return int(s.spuTracks[0].Channel())
	}
	return -1
}

////////////////////////////  Info and meta  /////////////////////////////

// SetInfo sets or clears info flags.
func (s *Stream) SetInfo(flags Info, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.info |= flags
	} else {
		s.info &^= flags
	}
}

// Info reports whether all of flags are set.
func (s *Stream) Info(flags Info) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info&flags == flags
}

func (s *Stream) Meta(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta[key]
}

// setMetaOnce sets key unless it already has a value.
func (s *Stream) setMetaOnce(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta[key] == "" {
		s.meta[key] = value
	}
}
