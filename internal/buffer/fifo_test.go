package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errors "golang.org/x/xerrors"
)

func TestFifoOrder(t *testing.T) {
	f := NewFifo(4, 16)

	for i := 0; i < 3; i++ {
		e := f.Alloc()
		e.Type = AudioMPEG.WithChannel(uint16(i))
		f.Put(e)
	}
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, 1, f.Available())

	for i := 0; i < 3; i++ {
		e := f.Get()
		assert.EqualValues(t, i, e.Type.Channel())
		e.Free()
	}
	assert.Equal(t, 4, f.Available())
}

func TestFifoInsertAtHead(t *testing.T) {
	f := NewFifo(4, 16)

	e := f.Alloc()
	e.Type = VideoH264
	f.Put(e)
	f.Insert(f.Alloc())
	f.mu.Lock()
	f.first.Kind = KindControl
	f.first.Control = ControlFlushDecoder
	f.mu.Unlock()

	c, ok := f.PeekControl()
	assert.True(t, ok)
	assert.Equal(t, ControlFlushDecoder, c)

	f.Get().Free()
	e = f.Get()
	assert.Equal(t, VideoH264, e.Type)
	e.Free()
}

func TestFifoGetBlocksUntilPut(t *testing.T) {
	f := NewFifo(2, 16)
	got := make(chan *Element)
	go func() {
		got <- f.Get()
	}()

	select {
	case <-got:
		t.Fatal("Get returned from an empty fifo")
	case <-time.After(20 * time.Millisecond):
	}

	f.PutControl(ControlEnd, FlagEndStream, 0)
	select {
	case e := <-got:
		assert.Equal(t, KindControl, e.Kind)
		assert.Equal(t, ControlEnd, e.Control)
		assert.True(t, e.Flags.Has(FlagEndStream))
		e.Free()
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up")
	}
}

func TestPoolAllocBlocksWhenExhausted(t *testing.T) {
	f := NewFifo(1, 16)
	e := f.Alloc()
	assert.Nil(t, f.TryAlloc())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.Alloc().Free()
	}()

	time.Sleep(10 * time.Millisecond)
	e.Free()
	wg.Wait()
	assert.Equal(t, 1, f.Available())
}

func TestFifoClearKeepsControl(t *testing.T) {
	f := NewFifo(4, 16)
	f.Put(f.Alloc())
	f.PutControl(ControlStart, 0, 0)
	f.Put(f.Alloc())

	f.Clear()
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, 3, f.Available())

	e := f.Get()
	assert.Equal(t, ControlStart, e.Control)
	e.Free()
}

func TestDiscardFifo(t *testing.T) {
	f := NewDiscardFifo(2, 16)
	f.PutControl(ControlQuit, 0, 0)
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 2, f.Available())
}

func TestSetContent(t *testing.T) {
	f := NewFifo(1, 4)
	e := f.Alloc()
	defer e.Free()

	require.NoError(t, e.SetContent([]byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, e.Content)

	err := e.SetContent([]byte{1, 2, 3, 4, 5})
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestAllocResetsElement(t *testing.T) {
	f := NewFifo(1, 4)
	e := f.Alloc()
	e.Kind = KindControl
	e.Flags = FlagHeader
	e.PTS = 90000
	e.SetContent([]byte{9})
	e.Free()

	e = f.Alloc()
	assert.Equal(t, KindData, e.Kind)
	assert.Zero(t, e.Flags)
	assert.Zero(t, e.PTS)
	assert.Empty(t, e.Content)
	e.Free()
}
