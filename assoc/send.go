package assoc

import (
	"context"

	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimerr"
	"github.com/meridianlabs/dicomnet/pdu"
	"github.com/meridianlabs/dicomnet/syntax"
)

// cancelCommandField is the Command Field value for C-CANCEL-RQ, exempt
// from id-uniqueness and operation-window bookkeeping (spec.md §6).
const cancelCommandField uint16 = 0x0FFF

const responseBit uint16 = 0x8000

func explicitAndEndian(transferSyntax string) (explicitVR, bigEndian bool) {
	bigEndian = transferSyntax == syntax.ExplicitVRBigEndian
	explicitVR = transferSyntax != syntax.ImplicitVRLittleEndian
	return
}

// roleAllowed implements spec.md §4.4.3 step 2's symmetric role check:
// a side may send a request on a context iff the requestor's role for
// that context matches the side's own role, and a response iff the
// opposite role matches (the association requestor's accepted roles are
// recorded from the requestor's point of view regardless of which side
// this Association object represents).
func roleAllowed(role Role, ctx AcceptedContext, isResponse bool) bool {
	switch {
	case role == RoleSCU && !isResponse:
		return ctx.RequestorIsSCU
	case role == RoleSCU && isResponse:
		return ctx.RequestorIsSCP
	case role == RoleSCP && !isResponse:
		return ctx.RequestorIsSCP
	default: // RoleSCP, response
		return ctx.RequestorIsSCU
	}
}

// pickContext implements spec.md §4.4.3 step 1: the first context whose
// abstract syntax matches and, when a payload transfer syntax is given,
// whose accepted transfer syntax equals it; NoTransferSyntax if no
// context for the abstract syntax has that transfer syntax.
func (a *Association) pickContext(abstractSyntax, payloadTransferSyntax string) (AcceptedContext, error) {
	ids := a.byAbstract[abstractSyntax]
	if len(ids) == 0 {
		return AcceptedContext{}, dimerr.PresentationContextNotRequested
	}
	if payloadTransferSyntax != "" {
		for _, id := range ids {
			if ctx := a.contexts[id]; ctx.TransferSyntax == payloadTransferSyntax {
				return ctx, nil
			}
		}
		return AcceptedContext{}, dimerr.NoTransferSyntax
	}
	return a.contexts[ids[0]], nil
}

// Send transmits an association message: its command dataset (always
// Implicit VR Little Endian) followed, if present, by its payload
// dataset under the context's negotiated transfer syntax. Spec.md §4.4.3.
func (a *Association) Send(msg *Message) error {
	payloadTS := ""
	if msg.Payload != nil {
		if ts, ok := msg.Payload.(interface{ TransferSyntaxHint() string }); ok {
			payloadTS = ts.TransferSyntaxHint()
		}
	}
	ctx, err := a.pickContext(msg.AbstractSyntax, payloadTS)
	if err != nil {
		return err
	}

	cmdField, _ := dataset.GetUint16(msg.Command, dataset.TagCommandField)
	isResponse := cmdField&responseBit != 0
	isCancel := cmdField == cancelCommandField

	if !roleAllowed(a.role, ctx, isResponse) {
		return dimerr.WrongRole
	}

	if !isCancel {
		if err := a.bookkeepOutbound(isResponse, msg.Command); err != nil {
			return err
		}
	}

	cmdBytes, err := a.codec.Encode(msg.Command, syntax.ImplicitVRLittleEndian, false, false)
	if err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if err := a.transport.Write(pdu.EncodePDataTF(&pdu.PDataTF{PDVs: a.fragment(cmdBytes, true, ctx.ID)})); err != nil {
		return err
	}
	a.metrics.pduSent()

	if msg.Payload != nil {
		explicitVR, bigEndian := explicitAndEndian(ctx.TransferSyntax)
		payloadBytes, err := a.codec.Encode(msg.Payload, ctx.TransferSyntax, explicitVR, bigEndian)
		if err != nil {
			return err
		}
		if err := a.transport.Write(pdu.EncodePDataTF(&pdu.PDataTF{PDVs: a.fragment(payloadBytes, false, ctx.ID)})); err != nil {
			return err
		}
		a.metrics.pduSent()
	}
	return nil
}

// bookkeepOutbound applies spec.md §4.4.3 step 3 under the
// commands_responses mutex.
func (a *Association) bookkeepOutbound(isResponse bool, cmd dataset.Dataset) error {
	a.cwMu.Lock()
	defer a.cwMu.Unlock()

	if isResponse {
		id, _ := dataset.GetUint16(cmd, dataset.TagMessageIDBeingRespondedTo)
		if !a.processing[id] {
			return dimerr.WrongResponseID
		}
		status, hasStatus := dataset.GetUint16(cmd, dataset.TagStatus)
		if !(hasStatus && isPendingStatus(status)) {
			delete(a.processing, id)
			a.metrics.operationFinished()
		}
		return nil
	}

	id, _ := dataset.GetUint16(cmd, dataset.TagMessageID)
	if a.waiting[id] {
		return dimerr.WrongCommandID
	}
	if !a.invokedSem.TryAcquire(1) {
		return dimerr.TooManyOperationsInvoked
	}
	a.waiting[id] = true
	a.metrics.operationStarted()
	return nil
}

// fragment splits data into PDVs no larger than maxPDULength-6 bytes
// each (the PDV item header overhead), rounding a non-final fragment
// down to even length, per spec.md §4.4.3 step 4 and the boundary cases
// in §8.
func (a *Association) fragment(data []byte, isCommand bool, contextID byte) []pdu.PDV {
	limit := int(a.maxPDULength) - 6
	if a.maxPDULength == 0 || limit <= 0 {
		limit = len(data)
		if limit == 0 {
			limit = 1
		}
	}
	var pdvs []pdu.PDV
	for {
		n := limit
		if n > len(data) {
			n = len(data)
		}
		isLast := n == len(data)
		if !isLast && n%2 != 0 {
			n--
		}
		chunk := data[:n]
		data = data[n:]
		pdvs = append(pdvs, pdu.PDV{ContextID: contextID, IsCommand: isCommand, IsLast: len(data) == 0, Data: chunk})
		if len(data) == 0 {
			break
		}
	}
	return pdvs
}

// acquireInvoked blocks until the operations window admits one more
// outstanding request, honoring ctx cancellation. Used by callers that
// want to wait for room rather than fail fast with
// TooManyOperationsInvoked (Send itself always fails fast, per
// spec.md §8 scenario 4).
func (a *Association) acquireInvoked(ctx context.Context) error {
	return a.invokedSem.Acquire(ctx, 1)
}
