package ticket

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanikai/alohaplay/internal/assert"
	"github.com/lanikai/alohaplay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("ticket")

// Ticket is a revocable shared lock. The zero value is not usable; create
// one with New and share it by pointer.
type Ticket struct {
	mu sync.Mutex

	// Broadcast when a revocation is lifted.
	issued *sync.Cond

	// Broadcast when the last ticket is given back during a revocation.
	drained *sync.Cond

	// Number of holders between an outermost Acquire and its Release.
	granted int

	// Subset of granted that was acquired irrevocably.
	irrevocable int

	// Nesting depth of Revoke calls not yet matched by Issue.
	pendingRevocations int

	// True while Revoke waits for the granted tickets to come back.
	revoked bool

	// While set, only atomicRevoker may acquire or pass a blocking release.
	atomicRevoke  bool
	atomicRevoker *Holder

	// Reentrancy counts, keyed by holder id.
	holders map[uint64]*holding

	// Serialises revocations. An atomic Revoke keeps it until the matching
	// atomic Issue.
	revokeMu sync.Mutex

	// Port rewiring lock, independent of mu so that a rewiring goroutine can
	// itself acquire and release the ticket.
	rewiring chan struct{}

	nextID uint64
}

type holding struct {
	count       int
	irrevocable bool
}

// Stats is a snapshot of the ticket's counters.
type Stats struct {
	Granted            int
	Irrevocable        int
	PendingRevocations int
	Revoked            bool
	AtomicRevoke       bool
	Holders            int
}

func New() *Ticket {
	t := &Ticket{
		holders:  make(map[uint64]*holding),
		rewiring: make(chan struct{}, 1),
	}
	t.issued = sync.NewCond(&t.mu)
	t.drained = sync.NewCond(&t.mu)
	return t
}

// A Holder is one goroutine's identity with respect to a ticket.
type Holder struct {
	t    *Ticket
	id   uint64
	name string
}

// NewHolder returns a new identity for the calling goroutine. The name only
// appears in diagnostics.
func (t *Ticket) NewHolder(name string) *Holder {
	return &Holder{
		t:    t,
		id:   atomic.AddUint64(&t.nextID, 1),
		name: name,
	}
}

func (h *Holder) String() string {
	return fmt.Sprintf("%s#%d", h.name, h.id)
}

// Ticket returns the ticket this holder belongs to.
func (h *Holder) Ticket() *Ticket {
	return h.t
}

// Revoked reports whether a revocation is waiting for holders to let go.
// Holders that notice it mid-operation should Renew.
func (t *Ticket) Revoked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.revoked
}

// Stats returns a snapshot of the ticket's counters.
func (t *Ticket) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Granted:            t.granted,
		Irrevocable:        t.irrevocable,
		PendingRevocations: t.pendingRevocations,
		Revoked:            t.revoked,
		AtomicRevoke:       t.atomicRevoke,
		Holders:            len(t.holders),
	}
}

// Count returns the holder's reentrancy count, zero when it does not hold
// the ticket.
func (h *Holder) Count() int {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	if e := h.t.holders[h.id]; e != nil {
		return e.count
	}
	return 0
}

// exempt reports whether h is the goroutine performing an atomic revoke.
// Must be called with t.mu held.
func (t *Ticket) exempt(h *Holder) bool {
	return t.atomicRevoke && t.atomicRevoker == h
}

// Must be called with t.mu held.
func (t *Ticket) mustWaitToAcquire(h *Holder, irrevocable bool) bool {
	if t.atomicRevoke {
		return t.atomicRevoker != h
	}
	return t.pendingRevocations > 0 && t.irrevocable == 0 && !irrevocable
}

// Acquire takes the ticket. A holder that already has it only bumps its
// reentrancy count and never blocks. Otherwise, while a revocation is in
// effect, Acquire waits for Issue; with blocking false it returns false
// instead and leaves the ticket untouched. Irrevocable acquisitions are not
// held up by an ordinary revocation, only by an atomic one.
func (h *Holder) Acquire(irrevocable, blocking bool) bool {
	t := h.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if e := t.holders[h.id]; e != nil {
		e.count++
		return true
	}

	for t.mustWaitToAcquire(h, irrevocable) {
		if !blocking {
			return false
		}
		t.issued.Wait()
	}

	t.holders[h.id] = &holding{count: 1, irrevocable: irrevocable}
	t.granted++
	if irrevocable {
		t.irrevocable++
	}
	return true
}

// Release gives the ticket back. Only the outermost release changes the
// granted count; whether it was irrevocable is taken from the matching
// outermost Acquire.
//
// A blocking, revocable release during a revocation waits for Issue before
// returning, so the caller cannot run past a reconfiguration it has not
// been cleared for. Callers must therefore not hold any other lock that
// the revoking goroutine may need; doing so deadlocks.
//
// Releasing a ticket the holder does not have is a contract violation. It
// panics in debug builds and is otherwise refused without touching the
// counters.
func (h *Holder) Release(irrevocable, blocking bool) {
	t := h.t
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.holders[h.id]
	if !assert.That(e != nil, "ticket released by %v, which never took it", h) {
		return
	}
	if e.count > 1 {
		e.count--
		return
	}

	delete(t.holders, h.id)
	t.granted--
	if e.irrevocable {
		t.irrevocable--
	}
	if t.revoked && t.granted == 0 {
		t.drained.Broadcast()
	}

	if blocking && !irrevocable {
		for t.pendingRevocations > 0 && t.irrevocable == 0 && !t.exempt(h) {
			t.issued.Wait()
		}
	}
}

// Renew lets a holder that noticed a revocation step aside until Issue,
// then take its ticket back, without unwinding its reentrancy count.
func (h *Holder) Renew(irrevocable bool) {
	t := h.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if !assert.That(t.pendingRevocations > 0, "ticket renewed by %v without a revocation", h) {
		return
	}
	if !assert.That(t.holders[h.id] != nil, "ticket renewed by %v, which does not hold it", h) {
		return
	}

	t.granted--
	if t.revoked && t.granted == 0 {
		t.drained.Broadcast()
	}
	if !(irrevocable && t.irrevocable > 0) {
		for t.pendingRevocations > 0 && !t.exempt(h) {
			t.issued.Wait()
		}
	}
	t.granted++
}

// Revoke waits until every granted ticket has been given back. Until the
// matching Issue, revocable acquisitions block. An atomic revoke also
// keeps every other holder out, irrevocable or not, while the revoking
// holder itself may keep acquiring and releasing; it must be ended with
// Issue(true) by the same holder.
//
// The revoking holder must not itself hold the ticket. Revocations do not
// nest inside an atomic revoke: the atomic revoker calling Revoke again is
// refused, since it already keeps the revocation lock.
func (h *Holder) Revoke(atomic bool) {
	t := h.t
	t.mu.Lock()
	nested := t.exempt(h)
	t.mu.Unlock()
	if !assert.That(!nested, "ticket revoked by %v inside its own atomic revoke", h) {
		return
	}

	t.revokeMu.Lock()
	t.mu.Lock()

	assert.That(t.holders[h.id] == nil, "ticket revoked by %v while holding it", h)

	t.pendingRevocations++
	t.revoked = true
	log.Debug("%v revoking (atomic=%v, granted=%d, pending=%d)", h, atomic, t.granted, t.pendingRevocations)
	for t.granted > 0 {
		t.drained.Wait()
	}
	t.revoked = false
	if atomic {
		t.atomicRevoke = true
		t.atomicRevoker = h
	}

	t.mu.Unlock()
	if !atomic {
		t.revokeMu.Unlock()
	}
}

// Issue ends a revocation. Waiters are let go once every nested Revoke has
// been issued. An atomic Issue from any holder but the atomic revoker is
// refused.
func (h *Holder) Issue(atomic bool) {
	t := h.t
	if atomic {
		t.mu.Lock()
		ok := t.exempt(h)
		t.mu.Unlock()
		if !assert.That(ok, "atomic issue by %v, which holds no atomic revocation", h) {
			return
		}
	}
	if !atomic {
		t.revokeMu.Lock()
	}
	defer t.revokeMu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !assert.That(t.pendingRevocations > 0, "ticket issued by %v without a revocation", h) {
		return
	}
	t.pendingRevocations--
	t.atomicRevoke = false
	t.atomicRevoker = nil
	log.Debug("%v issued (pending=%d)", h, t.pendingRevocations)

	// Waiters recheck their own conditions, so waking them early is harmless.
	t.issued.Broadcast()
}

// LockPortRewiring takes the port rewiring lock. A negative timeout waits
// indefinitely; otherwise it returns false if the lock could not be taken
// in time.
func (t *Ticket) LockPortRewiring(timeout time.Duration) bool {
	select {
	case t.rewiring <- struct{}{}:
		return true
	default:
	}

	if timeout < 0 {
		t.rewiring <- struct{}{}
		return true
	}
	if timeout == 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case t.rewiring <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// UnlockPortRewiring releases the port rewiring lock.
func (t *Ticket) UnlockPortRewiring() {
	select {
	case <-t.rewiring:
	default:
		assert.That(false, "port rewiring lock released while not held")
	}
}
