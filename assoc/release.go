package assoc

import (
	"github.com/meridianlabs/dicomnet/dimerr"
	"github.com/meridianlabs/dicomnet/pdu"
)

// Release performs an orderly association release, per spec.md §4.4.5:
// send A-RELEASE-RQ, then block until the background reader observes the
// peer's A-RELEASE-RP (or the association otherwise terminates) and tears
// down the transport. Calling Release more than once, or after Abort, is
// a no-op returning the recorded terminal error.
func (a *Association) Release() error {
	a.readyMu.Lock()
	if a.terminated {
		err := a.termErr
		a.readyMu.Unlock()
		return err
	}
	a.readyMu.Unlock()

	a.writeMu.Lock()
	err := a.transport.Write(pdu.EncodeReleaseRQ())
	a.writeMu.Unlock()
	if err != nil {
		a.terminate(err)
		a.transport.Terminate()
		return err
	}
	a.metrics.pduSent()

	a.readyMu.Lock()
	for !a.terminated {
		a.readyCond.Wait()
	}
	a.readyMu.Unlock()

	a.transport.Close()
	if a.termErr == dimerr.StreamClosed {
		return nil
	}
	return a.termErr
}

// Abort tears down the association immediately: it sends an A-ABORT with
// the given reason, then terminates the transport without waiting for any
// reply, per spec.md §4.4.5.
func (a *Association) Abort(reason byte) error {
	a.readyMu.Lock()
	if a.terminated {
		a.readyMu.Unlock()
		return nil
	}
	a.readyMu.Unlock()

	a.writeMu.Lock()
	err := a.transport.Write(pdu.EncodeAbort(&pdu.Abort{Source: dimerr.AbortSourceServiceUser, Reason: reason}))
	a.writeMu.Unlock()
	if err == nil {
		a.metrics.pduSent()
	}
	a.terminate(&dimerr.Aborted{Source: dimerr.AbortSourceServiceUser, Reason: reason})
	a.transport.Terminate()
	return err
}
