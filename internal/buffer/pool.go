package buffer

import (
	"sync"
	"sync/atomic"
)

// A Pool is a fixed set of preallocated elements. Alloc blocks while every
// element is handed out, which throttles producers to the consumers' pace.
type Pool struct {
	mu        sync.Mutex
	available *sync.Cond
	free      []*Element
	size      int
}

func NewPool(numBuffers, bufSize int) *Pool {
	p := &Pool{size: numBuffers}
	p.available = sync.NewCond(&p.mu)
	p.free = make([]*Element, 0, numBuffers)
	for i := 0; i < numBuffers; i++ {
		e := &Element{mem: make([]byte, 0, bufSize), pool: p}
		e.Content = e.mem[:0]
		p.free = append(p.free, e)
	}
	return p
}

// Alloc takes an element from the pool, blocking until one is free.
func (p *Pool) Alloc() *Element {
	p.mu.Lock()
	for len(p.free) == 0 {
		p.available.Wait()
	}
	e := p.take()
	p.mu.Unlock()
	return e
}

// TryAlloc takes an element if one is free, and returns nil otherwise.
func (p *Pool) TryAlloc() *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil
	}
	return p.take()
}

// Available returns the number of free elements.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Size returns the total number of elements owned by the pool.
func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) take() *Element {
	n := len(p.free)
	e := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	e.reset()
	atomic.StoreInt32(&e.held, 1)
	return e
}

func (p *Pool) put(e *Element) {
	p.mu.Lock()
	p.free = append(p.free, e)
	p.mu.Unlock()
	p.available.Signal()
}
