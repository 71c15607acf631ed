package media

import (
	"sort"
	"sync"
)

// A loopFunc is a long-running function, e.g. a render loop. It should
// terminate promptly when the quit channel is closed.
type loopFunc func(quit <-chan struct{})

// An attachLoop runs a loopFunc in a single goroutine for as long as at
// least one stream is attached. The goroutine starts when the first stream
// attaches and is stopped, and waited for, when the last one detaches.
type attachLoop struct {
	// Used in log messages.
	name string

	run loopFunc

	mu      sync.Mutex
	streams map[string]struct{}

	// Closed to ask the running loop to exit.
	quit chan struct{}

	// Closed when the running loop has exited.
	terminated chan struct{}
}

func newAttachLoop(name string, run loopFunc) *attachLoop {
	return &attachLoop{
		name:    name,
		run:     run,
		streams: make(map[string]struct{}),
	}
}

// attach adds a stream. Attaching a stream twice has no effect.
func (loop *attachLoop) attach(streamID string) {
	loop.mu.Lock()
	defer loop.mu.Unlock()

	if _, ok := loop.streams[streamID]; ok {
		return
	}
	loop.streams[streamID] = struct{}{}
	if len(loop.streams) > 1 {
		return
	}

	if loop.quit != nil {
		panic("attachLoop: already running")
	}
	quit := make(chan struct{})
	terminated := make(chan struct{})
	loop.quit = quit
	loop.terminated = terminated

	go func() {
		log.Debug("Starting %s loop", loop.name)
		loop.run(quit)
		close(terminated)
	}()
}

// detach removes a stream, stopping the loop if it was the last one.
func (loop *attachLoop) detach(streamID string) error {
	loop.mu.Lock()
	defer loop.mu.Unlock()

	if _, ok := loop.streams[streamID]; !ok {
		return errNotAttached
	}
	delete(loop.streams, streamID)
	if len(loop.streams) > 0 {
		return nil
	}

	log.Debug("Stopping %s loop", loop.name)
	close(loop.quit)
	<-loop.terminated
	loop.quit = nil
	loop.terminated = nil
	return nil
}

func (loop *attachLoop) count() int {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	return len(loop.streams)
}

// attached returns the attached stream ids, sorted.
func (loop *attachLoop) attached() []string {
	loop.mu.Lock()
	defer loop.mu.Unlock()

	ids := make([]string, 0, len(loop.streams))
	for id := range loop.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (loop *attachLoop) running() bool {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	return loop.quit != nil
}
