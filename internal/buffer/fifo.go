package buffer

import (
	"sync"
)

// A Fifo is a blocking first-in first-out queue of elements drawn from its
// own pool. Producers Alloc, fill and Put; a single consumer Gets.
type Fifo struct {
	*Pool

	mu       sync.Mutex
	notEmpty *sync.Cond
	first    *Element
	last     *Element
	length   int

	// A discarding fifo frees elements as soon as they are put. Used for
	// media classes that have no output port attached.
	discard bool
}

// NewFifo creates a fifo backed by numBuffers elements of bufSize bytes.
func NewFifo(numBuffers, bufSize int) *Fifo {
	f := &Fifo{Pool: NewPool(numBuffers, bufSize)}
	f.notEmpty = sync.NewCond(&f.mu)
	return f
}

// NewDiscardFifo creates a fifo that drops everything put into it.
func NewDiscardFifo(numBuffers, bufSize int) *Fifo {
	f := NewFifo(numBuffers, bufSize)
	f.discard = true
	return f
}

// Put appends e to the queue.
func (f *Fifo) Put(e *Element) {
	if f.discard {
		e.Free()
		return
	}

	f.mu.Lock()
	e.next = nil
	if f.last == nil {
		f.first = e
	} else {
		f.last.next = e
	}
	f.last = e
	f.length++
	f.mu.Unlock()
	f.notEmpty.Signal()
}

// Insert places e at the head of the queue, ahead of anything queued.
func (f *Fifo) Insert(e *Element) {
	if f.discard {
		e.Free()
		return
	}

	f.mu.Lock()
	e.next = f.first
	f.first = e
	if f.last == nil {
		f.last = e
	}
	f.length++
	f.mu.Unlock()
	f.notEmpty.Signal()
}

// PutControl allocates a control element and queues it.
func (f *Fifo) PutControl(c Control, flags Flags, discOffset int64) {
	e := f.Alloc()
	e.Kind = KindControl
	e.Control = c
	e.Type = Type(ClassControl) << 24
	e.Flags = flags
	e.DiscOffset = discOffset
	f.Put(e)
}

// Get removes and returns the head of the queue, blocking while it is empty.
func (f *Fifo) Get() *Element {
	f.mu.Lock()
	for f.first == nil {
		f.notEmpty.Wait()
	}
	e := f.first
	f.first = e.next
	if f.first == nil {
		f.last = nil
	}
	e.next = nil
	f.length--
	f.mu.Unlock()
	return e
}

// PeekControl reports the control message at the head of the queue, if the
// head is a control element.
func (f *Fifo) PeekControl() (Control, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.first == nil || f.first.Kind != KindControl {
		return 0, false
	}
	return f.first.Control, true
}

// Len returns the number of queued elements.
func (f *Fifo) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.length
}

// Clear frees all queued data elements. Control elements stay queued so the
// consumer still observes stream boundaries.
func (f *Fifo) Clear() {
	f.mu.Lock()
	var freed []*Element
	var first, last *Element
	kept := 0
	for e := f.first; e != nil; {
		next := e.next
		e.next = nil
		if e.Kind == KindControl {
			if last == nil {
				first = e
			} else {
				last.next = e
			}
			last = e
			kept++
		} else {
			freed = append(freed, e)
		}
		e = next
	}
	f.first, f.last, f.length = first, last, kept
	f.mu.Unlock()

	for _, e := range freed {
		e.Free()
	}
}

// Dispose frees everything still queued. The fifo must not be used
// afterwards.
func (f *Fifo) Dispose() {
	f.mu.Lock()
	e := f.first
	f.first, f.last, f.length = nil, nil, 0
	f.mu.Unlock()

	for e != nil {
		next := e.next
		e.Free()
		e = next
	}
}
