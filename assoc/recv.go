package assoc

import (
	"time"

	"github.com/meridianlabs/dicomnet/dimerr"
)

// Receive blocks until one reassembled Message is available, the
// association terminates, or timeout elapses (zero means no timeout —
// callers typically pass the negotiated DIMSE timeout). On a DIMSE
// timeout it returns dimerr.DimseTimeout; once the association has
// terminated it returns the terminal error recorded by the background
// reader (dimerr.StreamClosed, *dimerr.Aborted, or a decode error).
func (a *Association) Receive(timeout time.Duration) (*Message, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	a.readyMu.Lock()
	defer a.readyMu.Unlock()

	for len(a.ready) == 0 {
		if a.terminated {
			return nil, a.termErr
		}
		if deadline.IsZero() {
			a.readyCond.Wait()
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, dimerr.DimseTimeout
		}
		if !a.waitWithTimeout(remaining) {
			// Spurious wakeup or timer fired; recompute against the
			// deadline on the next loop iteration rather than trusting
			// the elapsed guess, per spec.md §4.4.4's timeout note.
			continue
		}
	}

	msg := a.ready[0]
	a.ready = a.ready[1:]
	return msg, nil
}

// waitWithTimeout blocks on readyCond for at most d, reporting whether it
// was woken (true) or the timer fired first (false). sync.Cond has no
// native timed wait, so this arms a timer that signals the same cond.
func (a *Association) waitWithTimeout(d time.Duration) bool {
	woken := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		a.readyMu.Lock()
		close(woken)
		a.readyCond.Broadcast()
		a.readyMu.Unlock()
	})
	defer timer.Stop()

	a.readyCond.Wait()
	select {
	case <-woken:
		return false
	default:
		return true
	}
}
