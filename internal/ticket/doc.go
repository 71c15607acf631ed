/*
Package ticket implements the port ticket, a revocable shared lock that gates
access to output ports.

Decoder goroutines hold the ticket while they touch port state. A control
goroutine that needs the ports quiescent (pause, speed change, port
rewiring, shutdown) revokes the ticket: Revoke blocks until every holder has
let go, after which no holder is mid-operation on a port. Issue lets the
holders continue.

Go has no goroutine identity, so every goroutine that takes the ticket does
so through its own Holder:

	h := t.NewHolder("audio decoder")
	h.Acquire(false, true)
	// ... write to the audio port ...
	if t.Revoked() {
		h.Renew(false)
	}
	h.Release(false, true)

A Holder must not be shared between goroutines.
*/
package ticket
