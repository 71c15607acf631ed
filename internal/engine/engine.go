//////////////////////////////////////////////////////////////////////////////
//
// Engine owns the shared output ports and the streams decoding into them
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

// Package engine ties the port ticket, the decoder registry, the output
// ports and the streams together, and implements the control operations
// (speed, pause, port rewiring) on top of the ticket.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	errors "golang.org/x/xerrors"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/codecs"
	"github.com/lanikai/alohaplay/internal/decoder"
	"github.com/lanikai/alohaplay/internal/events"
	"github.com/lanikai/alohaplay/internal/logging"
	"github.com/lanikai/alohaplay/internal/media"
	"github.com/lanikai/alohaplay/internal/registry"
	"github.com/lanikai/alohaplay/internal/ticket"
)

var log = logging.DefaultLogger.WithTag("engine")

type Config struct {
	Decoder decoder.Config

	// Initial output ports. Any may be nil.
	AudioPort media.Port
	VideoPort media.Port
	SPUPort   media.Port

	// Decoder plugins. Nil registers the built-in codecs.
	Plugins []*registry.Plugin

	// Event bus shared with listeners. Nil creates one.
	Events *events.Bus
}

type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg      decoder.Config
	ticket   *ticket.Ticket
	registry *registry.Registry
	bus      *events.Bus

	// Identity used for speed changes and rewiring. Control operations are
	// serialised by ctlMu so the holder is never used concurrently.
	control *ticket.Holder
	ctlMu   sync.Mutex
	speed   int

	portsMu sync.RWMutex
	ports   map[buffer.Class]media.Port

	mu      sync.Mutex
	streams map[string]*decoder.Stream
	closed  bool
}

// Must is a helper that wraps a call to a function returning (*Engine,
// error) and panics if the error is non-nil.
func Must(e *Engine, err error) *Engine {
	if err != nil {
		panic(err)
	}
	return e
}

func New(config Config) (*Engine, error) {
	return NewWithContext(context.Background(), config)
}

// NewWithContext creates an engine that closes itself when ctx is done.
func NewWithContext(ctx context.Context, config Config) (*Engine, error) {
	ctx, cancel := context.WithCancel(ctx)

	e := &Engine{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      config.Decoder,
		ticket:   ticket.New(),
		registry: registry.New(),
		bus:      config.Events,
		speed:    media.SpeedNormal,
		ports:    make(map[buffer.Class]media.Port),
		streams:  make(map[string]*decoder.Stream),
	}
	e.control = e.ticket.NewHolder("engine")
	if e.bus == nil {
		e.bus = &events.Bus{}
	}

	plugins := config.Plugins
	if plugins == nil {
		plugins = codecs.Plugins()
	}
	for _, p := range plugins {
		if err := e.registry.Register(p); err != nil {
			cancel()
			return nil, errors.Errorf("register %s: %w", p.Name, err)
		}
	}

	for class, p := range map[buffer.Class]media.Port{
		buffer.ClassAudio: config.AudioPort,
		buffer.ClassVideo: config.VideoPort,
		buffer.ClassSPU:   config.SPUPort,
	} {
		if p != nil {
			e.ports[class] = p
		}
	}

	go func() {
		<-ctx.Done()
		e.Close()
	}()

	log.Info("Engine ready with decoders %v", e.registry.Plugins())
	return e, nil
}

func (e *Engine) Ticket() *ticket.Ticket {
	return e.ticket
}

func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

func (e *Engine) Events() *events.Bus {
	return e.bus
}

// Port returns the port currently attached for class, or nil. SPU falls
// under the video loop but renders to its own port.
func (e *Engine) Port(class buffer.Class) media.Port {
	e.portsMu.RLock()
	defer e.portsMu.RUnlock()
	return e.ports[class]
}

// NewStream creates and starts a stream decoding into the engine's ports.
func (e *Engine) NewStream() (*decoder.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	id := uuid.New().String()
	s := decoder.NewStream(id, decoder.Env{
		Ticket:   e.ticket,
		Registry: e.registry,
		Output:   e,
		Events:   e.bus,
	}, e.cfg)
	if err := s.Start(); err != nil {
		s.Shutdown()
		return nil, errors.Errorf("start stream %s: %w", id, err)
	}
	if spu := e.Port(buffer.ClassSPU); spu != nil && s.HasLoop(buffer.ClassSPU) {
		if err := spu.Open(id); err != nil {
			log.Warn("Stream %s: SPU port %s: %v", id, spu.Name(), err)
		}
	}

	e.streams[id] = s
	return s, nil
}

// Stream returns the stream with the given id.
func (e *Engine) Stream(id string) (*decoder.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.streams[id]
	if !ok {
		return nil, errors.Errorf("%s: %w", id, ErrUnknownStream)
	}
	return s, nil
}

// Streams returns the ids of the open streams, sorted.
func (e *Engine) Streams() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.streams))
	for id := range e.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseStream shuts a stream down after its queued elements are processed.
// It fails while paused, since the loops cannot get past the ticket.
func (e *Engine) CloseStream(id string) error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	if e.speed == media.SpeedPause {
		return ErrPaused
	}

	e.mu.Lock()
	s, ok := e.streams[id]
	delete(e.streams, id)
	e.mu.Unlock()
	if !ok {
		return errors.Errorf("%s: %w", id, ErrUnknownStream)
	}

	e.shutdownStream(s)
	return nil
}

func (e *Engine) shutdownStream(s *decoder.Stream) {
	s.Shutdown()
	if spu := e.Port(buffer.ClassSPU); spu != nil && s.HasLoop(buffer.ClassSPU) {
		spu.Close(s.ID)
	}
}

func (e *Engine) Speed() int {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return e.speed
}

// SetSpeed changes the playback speed of every port. Pausing revokes the
// port ticket so that every decoder loop stops at its next acquisition;
// leaving pause issues it again.
func (e *Engine) SetSpeed(speed int) error {
	switch speed {
	case media.SpeedPause, media.SpeedSlow4, media.SpeedSlow2,
		media.SpeedNormal, media.SpeedFast2, media.SpeedFast4:
	default:
		return errors.Errorf("%d: %w", speed, errBadSpeed)
	}

	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	if e.isClosed() {
		return ErrClosed
	}
	e.setSpeedLocked(speed)
	return nil
}

// Must be called with ctlMu held.
func (e *Engine) setSpeedLocked(speed int) {
	old := e.speed
	if old == speed {
		return
	}

	if speed == media.SpeedPause {
		e.control.Revoke(false)
	}

	// Irrevocable, so it gets through the revocation just made.
	e.control.Acquire(true, true)
	e.portsMu.RLock()
	for _, p := range e.ports {
		p.SetSpeed(speed)
	}
	e.portsMu.RUnlock()
	e.control.Release(true, true)

	if old == media.SpeedPause {
		e.control.Issue(false)
	}
	e.speed = speed

	log.Info("Speed %d -> %d", old, speed)
	e.bus.Publish(events.Event{Type: events.SpeedChanged, Speed: speed})
}

func (e *Engine) Pause() error {
	return e.SetSpeed(media.SpeedPause)
}

func (e *Engine) Resume() error {
	return e.SetSpeed(media.SpeedNormal)
}

// RewirePort replaces the port for class while every decoder loop is held
// at a safe point. Streams are detached from the old port and attached to
// the new one. A nil port disconnects the class; loops then drop their
// output. The old port is returned to the caller, who owns it again.
//
// If the rewiring lock cannot be taken within timeout the error satisfies
// ticket.IsRewiringTimeout. A negative timeout waits indefinitely.
func (e *Engine) RewirePort(class buffer.Class, port media.Port, timeout time.Duration) (media.Port, error) {
	switch class {
	case buffer.ClassAudio, buffer.ClassVideo, buffer.ClassSPU:
	default:
		return nil, errors.Errorf("%v: %w", class, errBadClass)
	}

	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	if e.isClosed() {
		return nil, ErrClosed
	}

	name := class.String()
	if port != nil {
		name = port.Name()
	}
	if !e.ticket.LockPortRewiring(timeout) {
		return nil, ticket.RewiringTimeout(name)
	}
	defer e.ticket.UnlockPortRewiring()

	e.control.Revoke(true)

	e.portsMu.Lock()
	old := e.ports[class]
	if port == nil {
		delete(e.ports, class)
	} else {
		port.SetSpeed(e.speed)
		e.ports[class] = port
	}
	e.portsMu.Unlock()

	e.mu.Lock()
	for id, s := range e.streams {
		if !s.HasLoop(class) {
			continue
		}
		if old != nil {
			old.Close(id)
		}
		if port != nil {
			if err := port.Open(id); err != nil {
				log.Warn("Stream %s: attach to %s: %v", id, port.Name(), err)
			}
		}
	}
	e.mu.Unlock()

	e.control.Issue(true)

	log.Info("Rewired %v port to %s", class, name)
	e.bus.Publish(events.Event{Type: events.PortRewired, Class: class, Codec: name})
	return old, nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close resumes playback if paused, shuts every stream down and closes the
// event bus. Ports stay open; they belong to the caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.ctlMu.Lock()
	if e.speed == media.SpeedPause {
		e.setSpeedLocked(media.SpeedNormal)
	}
	e.ctlMu.Unlock()

	e.mu.Lock()
	streams := e.streams
	e.streams = make(map[string]*decoder.Stream)
	e.mu.Unlock()

	for _, s := range streams {
		e.shutdownStream(s)
	}

	e.cancel()
	log.Info("Engine closed")
	return e.bus.Close()
}
