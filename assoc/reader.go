package assoc

import (
	"errors"

	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimerr"
	"github.com/meridianlabs/dicomnet/pdu"
	"github.com/meridianlabs/dicomnet/reassemble"
	"github.com/meridianlabs/dicomnet/syntax"
	"github.com/meridianlabs/dicomnet/transport"
)

// startReader launches the single background goroutine that owns all
// reads off the transport for the lifetime of the association, per
// spec.md §4.4.4. It is called exactly once, immediately after
// negotiation succeeds.
func (a *Association) startReader() {
	go a.readLoop()
}

// readLoop decodes PDUs until the transport closes, a release completes,
// or an abort is sent or received. Every terminal path funnels through
// terminate so blocked Receive callers are woken exactly once.
func (a *Association) readLoop() {
	for {
		decoded, err := pdu.Decode(a.transport, a.permissive)
		if err != nil {
			if errors.Is(err, transport.ErrTerminated) {
				a.terminate(dimerr.StreamClosed)
				return
			}
			var corrupted *dimerr.CorruptedMessage
			if errors.As(err, &corrupted) {
				a.sendAbort(dimerr.AbortReasonInvalidPDUParameterValue)
				a.terminate(err)
				return
			}
			a.terminate(err)
			return
		}
		a.metrics.pduReceived()

		switch p := decoded.(type) {
		case *pdu.PDataTF:
			if err := a.handlePDataTF(p); err != nil {
				reason := dimerr.AbortReasonInvalidPDUParameterValue
				if errors.Is(err, dimerr.UnexpectedCommand) {
					reason = dimerr.AbortReasonUnexpectedPDU
				}
				a.sendAbort(reason)
				a.terminate(err)
				return
			}
		case *pdu.ReleaseRQ:
			a.writeMu.Lock()
			werr := a.transport.Write(pdu.EncodeReleaseRP())
			a.writeMu.Unlock()
			if werr == nil {
				a.metrics.pduSent()
			}
			a.terminate(dimerr.StreamClosed)
			return
		case *pdu.ReleaseRP:
			a.terminate(dimerr.StreamClosed)
			return
		case *pdu.Abort:
			a.terminate(&dimerr.Aborted{Source: p.Source, Reason: p.Reason})
			return
		default:
			a.sendAbort(dimerr.AbortReasonUnexpectedPDU)
			a.terminate(dimerr.NewCorrupted("unexpected PDU on an established association", nil))
			return
		}
	}
}

func (a *Association) sendAbort(reason byte) {
	a.writeMu.Lock()
	_ = a.transport.Write(pdu.EncodeAbort(&pdu.Abort{Source: dimerr.AbortSourceServiceProvider, Reason: reason}))
	a.writeMu.Unlock()
}

// handlePDataTF feeds every PDV in p to the reassembler and delivers each
// completed run, per spec.md §4.5.
func (a *Association) handlePDataTF(p *pdu.PDataTF) error {
	for _, pdv := range p.PDVs {
		a.reassembler.Push(pdv)
	}
	return a.reassembler.DrainReady(a.deliverResult)
}

// deliverResult decodes one reassembled run and either stashes it as the
// command half of an in-flight message (awaiting a payload), completes an
// in-flight message with its payload, or — for a command with no dataset
// — delivers immediately.
func (a *Association) deliverResult(res *reassemble.Result) error {
	ctx, ok := a.contexts[res.ContextID]
	if !ok {
		return dimerr.NewCorrupted("P-DATA-TF for unnegotiated presentation context", nil)
	}

	if res.IsCommand {
		cmd, err := a.codec.Decode(res.Data, syntax.ImplicitVRLittleEndian)
		if err != nil {
			return err
		}
		msg := &Message{AbstractSyntax: ctx.AbstractSyntax, Command: cmd}
		msg.Err = a.bookkeepInbound(cmd)

		a.readyMu.Lock()
		if a.inFlight != nil {
			a.readyMu.Unlock()
			return dimerr.UnexpectedCommand
		}

		dsType, _ := dataset.GetUint16(cmd, dataset.TagCommandDataSetType)
		if dsType == dataset.DataSetTypeNone {
			a.readyMu.Unlock()
			a.publish(msg)
			return nil
		}
		a.inFlight = msg
		a.readyMu.Unlock()
		return nil
	}

	// Payload run: must complete a pending in-flight command.
	a.readyMu.Lock()
	msg := a.inFlight
	a.inFlight = nil
	a.readyMu.Unlock()
	if msg == nil {
		return dimerr.NewCorrupted("payload P-DATA-TF with no preceding command", nil)
	}
	payload, err := a.codec.Decode(res.Data, ctx.TransferSyntax)
	if err != nil {
		return err
	}
	msg.Payload = payload
	a.publish(msg)
	return nil
}

// bookkeepInbound applies spec.md §4.4.4 step 4: duplicate/unexpected
// ids and operation-window overflow are reported on the message rather
// than aborting the association.
func (a *Association) bookkeepInbound(cmd dataset.Dataset) error {
	a.cwMu.Lock()
	defer a.cwMu.Unlock()

	cmdField, _ := dataset.GetUint16(cmd, dataset.TagCommandField)
	if cmdField&responseBit != 0 {
		id, _ := dataset.GetUint16(cmd, dataset.TagMessageIDBeingRespondedTo)
		if !a.waiting[id] {
			return dimerr.WrongResponseID
		}
		status, hasStatus := dataset.GetUint16(cmd, dataset.TagStatus)
		if !(hasStatus && isPendingStatus(status)) {
			delete(a.waiting, id)
			a.invokedSem.Release(1)
			a.metrics.operationFinished()
		}
		return nil
	}

	if cmdField == cancelCommandField {
		return nil
	}

	id, _ := dataset.GetUint16(cmd, dataset.TagMessageID)
	if a.processing[id] {
		return dimerr.WrongCommandID
	}
	if a.processingOverLimit() {
		return dimerr.TooManyOperationsPerformed
	}
	a.processing[id] = true
	a.metrics.operationStarted()
	return nil
}

// publish pushes a completed message onto the ready queue and wakes one
// waiting Receive caller.
func (a *Association) publish(msg *Message) {
	a.readyMu.Lock()
	a.ready = append(a.ready, msg)
	a.readyMu.Unlock()
	a.readyCond.Signal()
}

// terminate marks the association closed with err and wakes every
// blocked Receive caller. Idempotent: only the first call's err sticks.
func (a *Association) terminate(err error) {
	a.readyMu.Lock()
	if a.terminated {
		a.readyMu.Unlock()
		return
	}
	a.terminated = true
	a.termErr = err
	a.readyMu.Unlock()
	a.metrics.associationClosed()
	a.readyCond.Broadcast()
}
