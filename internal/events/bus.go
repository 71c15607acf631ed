package events

import (
	"sync"
	"time"
)

// Bus fans events out to subscribers. A slow subscriber loses its oldest
// undelivered event rather than blocking the publisher.
type Bus struct {
	// Start is called when the first subscriber is added.
	Start func()

	// Stop is called when the last subscriber is removed.
	Stop func()

	subscribers []chan Event
	dropped     uint64
	closed      bool

	sync.Mutex
}

func (b *Bus) Subscribe(capacity int) <-chan Event {
	b.Lock()
	defer b.Unlock()

	if capacity == 0 {
		panic("events.Bus: subscriber capacity must be nonzero")
	}

	s := make(chan Event, capacity)
	if b.closed {
		close(s)
		return s
	}
	b.subscribers = append(b.subscribers, s)
	if b.Start != nil && len(b.subscribers) == 1 {
		b.Start()
	}
	return s
}

func (b *Bus) Unsubscribe(s <-chan Event) {
	b.Lock()
	defer b.Unlock()

	found := false
	for i, subscriber := range b.subscribers {
		if s == subscriber {
			subs := b.subscribers
			close(subs[i])
			subs[len(subs)-1], subs[i] = subs[i], subs[len(subs)-1]
			b.subscribers = subs[:len(subs)-1]
			found = true
			break
		}
	}

	if found && b.Stop != nil && len(b.subscribers) == 0 {
		go b.Stop()
	}
}

// Publish delivers e to every subscriber. A zero Time is set to now.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.Lock()
	defer b.Unlock()

	for _, subscriber := range b.subscribers {
		select {
		case subscriber <- e:
			continue
		default:
		}

		// Drop oldest event, add newest
		select {
		case <-subscriber:
		default:
		}
		select {
		case subscriber <- e:
		default:
		}
		b.dropped++
		log.Warn("subscriber missed an event")
	}
	log.Debug("%v", e)
}

// Dropped returns how many events were discarded for slow subscribers.
func (b *Bus) Dropped() uint64 {
	b.Lock()
	defer b.Unlock()
	return b.dropped
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (b *Bus) Close() error {
	b.Lock()
	defer b.Unlock()

	for _, subscriber := range b.subscribers {
		close(subscriber)
	}
	b.subscribers = nil
	b.closed = true
	return nil
}
