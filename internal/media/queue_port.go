package media

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// QueuePort is a Port that queues frames in a bounded channel and renders
// them from a background loop, optionally paced by frame duration and
// written to a sink. The render loop runs while at least one stream is
// attached.
type QueuePort struct {
	name   string
	frames chan *Frame
	done   chan struct{}
	pace   bool

	mu   sync.Mutex
	sink io.Writer

	speed    int32
	rendered uint64

	loop      *attachLoop
	closeOnce sync.Once
}

// NewQueuePort creates a port holding up to capacity frames. When pace is
// set, each frame is held for its duration (scaled by speed) before the next
// one is rendered. sink may be nil.
func NewQueuePort(name string, capacity int, pace bool, sink io.Writer) *QueuePort {
	p := &QueuePort{
		name:   name,
		frames: make(chan *Frame, capacity),
		done:   make(chan struct{}),
		pace:   pace,
		sink:   sink,
		speed:  SpeedNormal,
	}
	p.loop = newAttachLoop(name+" render", p.render)
	return p
}

func (p *QueuePort) Name() string {
	return p.name
}

func (p *QueuePort) Open(streamID string) error {
	select {
	case <-p.done:
		return ErrPortClosed
	default:
	}

	p.loop.attach(streamID)
	log.Debug("%s: stream %s attached", p.name, streamID)
	return nil
}

func (p *QueuePort) Close(streamID string) {
	if err := p.loop.detach(streamID); err != nil {
		log.Warn("%s: close of stream %s: %v", p.name, streamID, err)
		return
	}
	log.Debug("%s: stream %s detached", p.name, streamID)
}

func (p *QueuePort) Write(f *Frame) error {
	select {
	case p.frames <- f:
		return nil
	case <-p.done:
		return ErrPortClosed
	}
}

func (p *QueuePort) Flush() {
	for {
		select {
		case <-p.frames:
		default:
			return
		}
	}
}

func (p *QueuePort) BufsInFifo() int {
	return len(p.frames)
}

func (p *QueuePort) NumStreams() int {
	return p.loop.count()
}

// Streams returns the ids of the attached streams, sorted.
func (p *QueuePort) Streams() []string {
	return p.loop.attached()
}

func (p *QueuePort) SetSpeed(speed int) {
	atomic.StoreInt32(&p.speed, int32(speed))
}

func (p *QueuePort) Speed() int {
	return int(atomic.LoadInt32(&p.speed))
}

// Rendered returns the number of frames rendered so far.
func (p *QueuePort) Rendered() uint64 {
	return atomic.LoadUint64(&p.rendered)
}

// SetSink replaces the sink frames are written to.
func (p *QueuePort) SetSink(sink io.Writer) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

// Shutdown unblocks writers and refuses new streams. Streams still
// attached must be closed by their owners.
func (p *QueuePort) Shutdown() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

func (p *QueuePort) render(quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case f := <-p.frames:
			if !p.waitWhilePaused(quit) {
				return
			}
			if !p.present(f, quit) {
				return
			}
		}
	}
}

const pausePollInterval = 5 * time.Millisecond

func (p *QueuePort) waitWhilePaused(quit <-chan struct{}) bool {
	for p.Speed() == SpeedPause {
		select {
		case <-quit:
			return false
		case <-time.After(pausePollInterval):
		}
	}
	return true
}

func (p *QueuePort) present(f *Frame, quit <-chan struct{}) bool {
	if p.pace && f.Duration > 0 {
		d := f.Duration * SpeedNormal / time.Duration(p.Speed())
		select {
		case <-quit:
			return false
		case <-time.After(d):
		}
	}

	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink != nil && len(f.Data) > 0 {
		if _, err := sink.Write(f.Data); err != nil {
			log.Error("%s: write %v frame: %v", p.name, f.Type, err)
		}
	}

	atomic.AddUint64(&p.rendered, 1)
	return true
}
