package decoder

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/events"
	"github.com/lanikai/alohaplay/internal/media"
	"github.com/lanikai/alohaplay/internal/metronom"
	"github.com/lanikai/alohaplay/internal/registry"
	"github.com/lanikai/alohaplay/internal/ticket"
)

// recorder counts what the test decoders were asked to do.
type recorder struct {
	mu      sync.Mutex
	opened  int
	closed  int
	resets  int
	discs   int
	flushes int
	decodes []string
}

func (r *recorder) count(f func(r *recorder) int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return f(r)
}

func (r *recorder) decoded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.decodes...)
}

type testDecoder struct {
	rec *recorder
}

func (d *testDecoder) Decode(e *buffer.Element) error {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	s := fmt.Sprintf("%08x", uint32(e.Type))
	if e.Flags.Has(buffer.FlagHeader) {
		s += "/h"
	}
	d.rec.decodes = append(d.rec.decodes, s)
	return nil
}

func (d *testDecoder) Reset() {
	d.rec.mu.Lock()
	d.rec.resets++
	d.rec.mu.Unlock()
}

func (d *testDecoder) Discontinuity() {
	d.rec.mu.Lock()
	d.rec.discs++
	d.rec.mu.Unlock()
}

func (d *testDecoder) Flush() {
	d.rec.mu.Lock()
	d.rec.flushes++
	d.rec.mu.Unlock()
}

func (d *testDecoder) Close() error {
	d.rec.mu.Lock()
	d.rec.closed++
	d.rec.mu.Unlock()
	return nil
}

// fakePort reports a configurable backlog.
type fakePort struct {
	mu      sync.Mutex
	streams map[string]bool
	bufs    int
	speed   int
}

func newFakePort() *fakePort {
	return &fakePort{streams: make(map[string]bool), speed: media.SpeedNormal}
}

func (p *fakePort) Name() string { return "fake" }

func (p *fakePort) Open(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streams[id] = true
	return nil
}

func (p *fakePort) Close(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.streams, id)
}

func (p *fakePort) Write(f *media.Frame) error { return nil }
func (p *fakePort) Flush()                     {}

func (p *fakePort) SetSpeed(speed int) {
	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()
}

func (p *fakePort) Speed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

func (p *fakePort) setBacklog(n int) {
	p.mu.Lock()
	p.bufs = n
	p.mu.Unlock()
}

func (p *fakePort) BufsInFifo() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufs
}

func (p *fakePort) NumStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streams)
}

type testOutput map[buffer.Class]media.Port

func (o testOutput) Port(c buffer.Class) media.Port {
	if c == buffer.ClassSPU {
		c = buffer.ClassVideo
	}
	if p, ok := o[c]; ok {
		return p
	}
	return nil
}

type harness struct {
	s      *Stream
	rec    *recorder
	reg    *registry.Registry
	ticket *ticket.Ticket
	ports  testOutput
	events <-chan events.Event
}

func newHarness(t *testing.T, cfg Config, classes ...buffer.Class) *harness {
	rec := &recorder{}
	reg := registry.New()
	require.NoError(t, reg.Register(&registry.Plugin{
		Name: "recorder",
		Types: []buffer.Type{
			buffer.AudioMULaw, buffer.AudioLPCMLE,
			buffer.VideoH264, buffer.SPUText,
		},
		Init: func() (registry.OpenFunc, error) {
			return func(out media.Output, typ buffer.Type) (media.Decoder, error) {
				rec.mu.Lock()
				rec.opened++
				rec.mu.Unlock()
				return &testDecoder{rec: rec}, nil
			}, nil
		},
	}))

	ports := testOutput{}
	for _, c := range classes {
		ports[c] = newFakePort()
	}

	bus := &events.Bus{}
	h := &harness{
		rec:    rec,
		reg:    reg,
		ticket: ticket.New(),
		ports:  ports,
		events: bus.Subscribe(256),
	}
	h.s = NewStream("test", Env{
		Ticket:   h.ticket,
		Registry: reg,
		Output:   ports,
		Events:   bus,
		Metronom: metronom.NewWithClock(func() int64 { return 0 }, 200*time.Millisecond),
	}, cfg)
	return h
}

// register adds a plugin for types whose decoders are built by open.
func (h *harness) register(t *testing.T, name string, open func() (media.Decoder, error), types ...buffer.Type) {
	t.Helper()
	require.NoError(t, h.reg.Register(&registry.Plugin{
		Name:  name,
		Types: types,
		Init: func() (registry.OpenFunc, error) {
			return func(media.Output, buffer.Type) (media.Decoder, error) {
				return open()
			}, nil
		},
	}))
}

// blockingDecoder records like testDecoder, but each Decode first waits
// for a value on proceed after signalling entered.
type blockingDecoder struct {
	testDecoder
	entered chan struct{}
	proceed chan struct{}
}

func (d *blockingDecoder) Decode(e *buffer.Element) error {
	d.entered <- struct{}{}
	<-d.proceed
	return d.testDecoder.Decode(e)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AudioBuffers = 16
	cfg.VideoBuffers = 16
	cfg.BufferSize = 256
	cfg.DrainPollInterval = time.Millisecond
	cfg.BarrierRecheck = 20 * time.Millisecond
	return cfg
}

func putData(f *buffer.Fifo, t buffer.Type, flags buffer.Flags) {
	e := f.Alloc()
	e.Type = t
	e.Flags = flags
	e.SetContent([]byte{0xff, 0xff})
	f.Put(e)
}

// sync waits until the loop of class has processed everything put before.
func (h *harness) sync(t *testing.T, class buffer.Class) {
	t.Helper()
	n := h.s.HeaderCount(class)
	h.s.Fifo(class).PutControl(buffer.ControlHeadersDone, 0, 0)
	waitFor(t, "headers-done marker", func() bool {
		return h.s.HeaderCount(class) > n
	})
}

// drainEvents returns the events published so far, by type.
func (h *harness) drainEvents() map[events.Type]int {
	counts := make(map[events.Type]int)
	for {
		select {
		case e := <-h.events:
			counts[e.Type]++
		default:
			return counts
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
