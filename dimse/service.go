package dimse

import (
	"fmt"
	"sync"
	"time"

	"github.com/meridianlabs/dicomnet/assoc"
	"github.com/meridianlabs/dicomnet/dataset"
)

// Service wraps an Association with typed DIMSE send/receive helpers.
// Correlation concerns (message IDs, operation-window bookkeeping) live
// one layer down in assoc; Service only adds the get_response<T> fan-out
// spec.md §4.6 describes, since multiple Service calls can be blocked
// waiting on different message IDs against the one underlying
// Association at once.
type Service struct {
	Assoc   *assoc.Association
	Timeout time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[uint16]*assoc.Message // responses not yet claimed by their waiter
	reading bool                      // whether a goroutine currently owns Assoc.Receive
}

// New wraps an already-negotiated Association.
func New(a *assoc.Association, timeout time.Duration) *Service {
	s := &Service{Assoc: a, Timeout: timeout}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Echo sends a C-ECHO-RQ and waits for its C-ECHO-RSP, returning the
// response status.
func (s *Service) Echo(abstractSyntax string) (uint16, error) {
	messageID := NextMessageID()
	cmd := buildCommand(CEchoRQ, messageID, abstractSyntax, false)
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd}); err != nil {
		return 0, err
	}
	resp, err := s.waitFor(messageID)
	if err != nil {
		return 0, err
	}
	status, _ := dataset.GetUint16(resp.Command, dataset.TagStatus)
	return status, nil
}

// Store sends a C-STORE-RQ with payload, waiting for its C-STORE-RSP.
func (s *Service) Store(abstractSyntax, sopInstanceUID string, payload dataset.Dataset) (uint16, error) {
	messageID := NextMessageID()
	cmd := buildCommand(CStoreRQ, messageID, abstractSyntax, true)
	cmd.SetString(dataset.TagAffectedSOPInstanceUID, sopInstanceUID)
	cmd.SetUint16(dataset.TagPriority, 0x0000)
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: payload}); err != nil {
		return 0, err
	}
	resp, err := s.waitFor(messageID)
	if err != nil {
		return 0, err
	}
	status, _ := dataset.GetUint16(resp.Command, dataset.TagStatus)
	return status, nil
}

// Find sends a C-FIND-RQ with its identifier dataset and streams back
// every response up to and including the final (non-pending) one.
func (s *Service) Find(abstractSyntax string, identifier dataset.Dataset, onResult func(status uint16, identifier dataset.Dataset) error) error {
	messageID := NextMessageID()
	cmd := buildCommand(CFindRQ, messageID, abstractSyntax, true)
	cmd.SetUint16(dataset.TagPriority, 0x0000)
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: identifier}); err != nil {
		return err
	}
	for {
		resp, err := s.waitFor(messageID)
		if err != nil {
			return err
		}
		status, _ := dataset.GetUint16(resp.Command, dataset.TagStatus)
		if err := onResult(status, resp.Payload); err != nil {
			return err
		}
		if ClassifyStatus(status) != StatusGroupPending {
			return nil
		}
	}
}

// Get sends a C-GET-RQ with its identifier dataset and streams back every
// response, pending and final, surfacing the sub-operation counters
// alongside each one. The sub-operations themselves travel as ordinary
// C-STORE-RQ/RSP exchanges over this same association and are handled by
// the caller's receive loop, not by Get.
func (s *Service) Get(abstractSyntax string, identifier dataset.Dataset, onResult func(status uint16, counts dataset.SubOperationCounts) error) error {
	messageID := NextMessageID()
	cmd := buildCommand(CGetRQ, messageID, abstractSyntax, true)
	cmd.SetUint16(dataset.TagPriority, 0x0000)
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: identifier}); err != nil {
		return err
	}
	for {
		resp, err := s.waitFor(messageID)
		if err != nil {
			return err
		}
		status, _ := dataset.GetUint16(resp.Command, dataset.TagStatus)
		if err := onResult(status, dataset.GetSubOperationCounts(resp.Command)); err != nil {
			return err
		}
		if ClassifyStatus(status) != StatusGroupPending {
			return nil
		}
	}
}

// Move sends a C-MOVE-RQ naming the destination AE and identifier
// dataset, streaming back every response with its sub-operation
// counters.
func (s *Service) Move(abstractSyntax, moveDestination string, identifier dataset.Dataset, onResult func(status uint16, counts dataset.SubOperationCounts) error) error {
	messageID := NextMessageID()
	cmd := buildCommand(CMoveRQ, messageID, abstractSyntax, true)
	cmd.SetUint16(dataset.TagPriority, 0x0000)
	cmd.SetString(dataset.TagMoveDestination, moveDestination)
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: identifier}); err != nil {
		return err
	}
	for {
		resp, err := s.waitFor(messageID)
		if err != nil {
			return err
		}
		status, _ := dataset.GetUint16(resp.Command, dataset.TagStatus)
		if err := onResult(status, dataset.GetSubOperationCounts(resp.Command)); err != nil {
			return err
		}
		if ClassifyStatus(status) != StatusGroupPending {
			return nil
		}
	}
}

// RespondGet sends one C-GET-RSP carrying the current sub-operation
// counters. Pass the final (non-pending) status once every sub-operation
// has completed.
func (s *Service) RespondGet(abstractSyntax string, messageID uint16, status uint16, counts dataset.SubOperationCounts) error {
	cmd := buildResponse(CGetRSP, messageID, abstractSyntax, status, false)
	cmd.SetSubOperationCounts(counts)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd})
}

// RespondMove sends one C-MOVE-RSP carrying the current sub-operation
// counters. Pass the final (non-pending) status once every sub-operation
// has completed.
func (s *Service) RespondMove(abstractSyntax string, messageID uint16, status uint16, counts dataset.SubOperationCounts) error {
	cmd := buildResponse(CMoveRSP, messageID, abstractSyntax, status, false)
	cmd.SetSubOperationCounts(counts)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd})
}

// NEventReport sends an N-EVENT-REPORT-RQ for the given affected instance
// and event type, waiting for its N-EVENT-REPORT-RSP.
func (s *Service) NEventReport(abstractSyntax, affectedSOPClassUID, affectedSOPInstanceUID string, eventTypeID uint16, eventInfo dataset.Dataset) (uint16, error) {
	messageID := NextMessageID()
	cmd := buildCommand(NEventReportRQ, messageID, affectedSOPClassUID, eventInfo != nil)
	cmd.SetString(dataset.TagAffectedSOPInstanceUID, affectedSOPInstanceUID)
	cmd.SetUint16(dataset.TagEventTypeID, eventTypeID)
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: eventInfo}); err != nil {
		return 0, err
	}
	resp, err := s.waitFor(messageID)
	if err != nil {
		return 0, err
	}
	status, _ := dataset.GetUint16(resp.Command, dataset.TagStatus)
	return status, nil
}

// RespondNEventReport sends an N-EVENT-REPORT-RSP for the given request.
func (s *Service) RespondNEventReport(abstractSyntax string, messageID uint16, status uint16, eventTypeID uint16) error {
	cmd := buildResponse(NEventReportRSP, messageID, abstractSyntax, status, false)
	cmd.SetUint16(dataset.TagEventTypeID, eventTypeID)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd})
}

// NGet sends an N-GET-RQ for the given requested instance, with an
// optional attribute-identifier-list payload, waiting for its N-GET-RSP
// and returning the status and any attribute-value payload.
func (s *Service) NGet(abstractSyntax, requestedSOPClassUID, requestedSOPInstanceUID string, attributeList dataset.Dataset) (uint16, dataset.Dataset, error) {
	messageID := NextMessageID()
	cmd := buildRequestedCommand(NGetRQ, messageID, requestedSOPClassUID, requestedSOPInstanceUID, attributeList != nil)
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: attributeList}); err != nil {
		return 0, nil, err
	}
	resp, err := s.waitFor(messageID)
	if err != nil {
		return 0, nil, err
	}
	status, _ := dataset.GetUint16(resp.Command, dataset.TagStatus)
	return status, resp.Payload, nil
}

// RespondNGet sends an N-GET-RSP carrying the requested attribute values.
func (s *Service) RespondNGet(abstractSyntax string, messageID uint16, status uint16, attributes dataset.Dataset) error {
	cmd := buildResponse(NGetRSP, messageID, abstractSyntax, status, attributes != nil)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: attributes})
}

// NSet sends an N-SET-RQ with its modification-list payload, waiting for
// its N-SET-RSP and returning the status and any modified-attribute-list
// payload the peer echoes back.
func (s *Service) NSet(abstractSyntax, requestedSOPClassUID, requestedSOPInstanceUID string, modificationList dataset.Dataset) (uint16, dataset.Dataset, error) {
	messageID := NextMessageID()
	cmd := buildRequestedCommand(NSetRQ, messageID, requestedSOPClassUID, requestedSOPInstanceUID, true)
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: modificationList}); err != nil {
		return 0, nil, err
	}
	resp, err := s.waitFor(messageID)
	if err != nil {
		return 0, nil, err
	}
	status, _ := dataset.GetUint16(resp.Command, dataset.TagStatus)
	return status, resp.Payload, nil
}

// RespondNSet sends an N-SET-RSP, optionally echoing the attributes the
// SCP actually modified.
func (s *Service) RespondNSet(abstractSyntax string, messageID uint16, status uint16, modifiedAttributes dataset.Dataset) error {
	cmd := buildResponse(NSetRSP, messageID, abstractSyntax, status, modifiedAttributes != nil)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: modifiedAttributes})
}

// NAction sends an N-ACTION-RQ naming the requested instance and action
// type, waiting for its N-ACTION-RSP and returning the status and any
// action-reply payload.
func (s *Service) NAction(abstractSyntax, requestedSOPClassUID, requestedSOPInstanceUID string, actionTypeID uint16, actionInfo dataset.Dataset) (uint16, dataset.Dataset, error) {
	messageID := NextMessageID()
	cmd := buildRequestedCommand(NActionRQ, messageID, requestedSOPClassUID, requestedSOPInstanceUID, actionInfo != nil)
	cmd.SetUint16(dataset.TagActionTypeID, actionTypeID)
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: actionInfo}); err != nil {
		return 0, nil, err
	}
	resp, err := s.waitFor(messageID)
	if err != nil {
		return 0, nil, err
	}
	status, _ := dataset.GetUint16(resp.Command, dataset.TagStatus)
	return status, resp.Payload, nil
}

// RespondNAction sends an N-ACTION-RSP, optionally with an action-reply
// payload.
func (s *Service) RespondNAction(abstractSyntax string, messageID uint16, status uint16, actionTypeID uint16, actionReply dataset.Dataset) error {
	cmd := buildResponse(NActionRSP, messageID, abstractSyntax, status, actionReply != nil)
	cmd.SetUint16(dataset.TagActionTypeID, actionTypeID)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: actionReply})
}

// NCreate sends an N-CREATE-RQ for a new instance of affectedSOPClassUID
// (affectedSOPInstanceUID may be empty, letting the SCP assign one),
// waiting for its N-CREATE-RSP and returning the status, the instance
// UID the SCP assigned, and any attribute-list payload.
func (s *Service) NCreate(abstractSyntax, affectedSOPClassUID, affectedSOPInstanceUID string, attributeList dataset.Dataset) (status uint16, assignedInstanceUID string, attributes dataset.Dataset, err error) {
	messageID := NextMessageID()
	cmd := buildCommand(NCreateRQ, messageID, affectedSOPClassUID, attributeList != nil)
	if affectedSOPInstanceUID != "" {
		cmd.SetString(dataset.TagAffectedSOPInstanceUID, affectedSOPInstanceUID)
	}
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: attributeList}); err != nil {
		return 0, "", nil, err
	}
	resp, err := s.waitFor(messageID)
	if err != nil {
		return 0, "", nil, err
	}
	status, _ = dataset.GetUint16(resp.Command, dataset.TagStatus)
	assignedInstanceUID = dataset.GetString(resp.Command, dataset.TagAffectedSOPInstanceUID)
	return status, assignedInstanceUID, resp.Payload, nil
}

// RespondNCreate sends an N-CREATE-RSP naming the instance UID the SCP
// assigned, with its attribute-list payload.
func (s *Service) RespondNCreate(abstractSyntax string, messageID uint16, status uint16, affectedSOPInstanceUID string, attributes dataset.Dataset) error {
	cmd := buildResponse(NCreateRSP, messageID, abstractSyntax, status, attributes != nil)
	if affectedSOPInstanceUID != "" {
		cmd.SetString(dataset.TagAffectedSOPInstanceUID, affectedSOPInstanceUID)
	}
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: attributes})
}

// NDelete sends an N-DELETE-RQ for the given requested instance, waiting
// for its N-DELETE-RSP.
func (s *Service) NDelete(abstractSyntax, requestedSOPClassUID, requestedSOPInstanceUID string) (uint16, error) {
	messageID := NextMessageID()
	cmd := buildRequestedCommand(NDeleteRQ, messageID, requestedSOPClassUID, requestedSOPInstanceUID, false)
	if err := s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd}); err != nil {
		return 0, err
	}
	resp, err := s.waitFor(messageID)
	if err != nil {
		return 0, err
	}
	status, _ := dataset.GetUint16(resp.Command, dataset.TagStatus)
	return status, nil
}

// RespondNDelete sends an N-DELETE-RSP for the given request.
func (s *Service) RespondNDelete(abstractSyntax string, messageID uint16, status uint16) error {
	cmd := buildResponse(NDeleteRSP, messageID, abstractSyntax, status, false)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd})
}

// Cancel sends a C-CANCEL-RQ correlated to messageID. It is never
// subject to operation-window bookkeeping or a response wait, per
// spec.md §6.
func (s *Service) Cancel(abstractSyntax string, messageID uint16) error {
	cmd := dataset.NewCommandSet().
		SetUint16(dataset.TagCommandField, CCancelRQ).
		SetUint16(dataset.TagMessageIDBeingRespondedTo, messageID).
		SetUint16(dataset.TagCommandDataSetType, dataset.DataSetTypeNone)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd})
}

// RespondStore sends a C-STORE-RSP for the given request message.
func (s *Service) RespondStore(abstractSyntax string, messageID uint16, status uint16) error {
	cmd := buildResponse(CStoreRSP, messageID, abstractSyntax, status, false)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd})
}

// RespondEcho sends a C-ECHO-RSP for the given request message.
func (s *Service) RespondEcho(abstractSyntax string, messageID uint16, status uint16) error {
	cmd := buildResponse(CEchoRSP, messageID, abstractSyntax, status, false)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd})
}

// RespondFind sends one C-FIND-RSP; pass a nil identifier for the final
// (non-pending) response.
func (s *Service) RespondFind(abstractSyntax string, messageID uint16, status uint16, identifier dataset.Dataset) error {
	cmd := buildResponse(CFindRSP, messageID, abstractSyntax, status, identifier != nil)
	return s.Assoc.Send(&assoc.Message{AbstractSyntax: abstractSyntax, Command: cmd, Payload: identifier})
}

// Receive blocks for the next inbound message (request or unsolicited
// response) and returns it, applying the service's configured DIMSE
// timeout. A message with a non-nil Err carries a local policy violation
// (spec.md §7) that the caller should act on instead of treating the
// message as deliverable.
func (s *Service) Receive() (*assoc.Message, error) {
	return s.Assoc.Receive(s.Timeout)
}

// waitFor blocks until a response correlated to messageID is received.
// Per spec.md §4.6 get_response<T>, any other ready message is kept in
// place for other waiters rather than discarded: at most one waitFor
// call at a time actually reads off the Association (tracked by
// s.reading); a message that doesn't match the reader's target is
// stashed in s.pending under its own response id and every other blocked
// waiter is woken to recheck the stash.
func (s *Service) waitFor(messageID uint16) (*assoc.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if msg, ok := s.pending[messageID]; ok {
			delete(s.pending, messageID)
			return msg, nil
		}

		if s.reading {
			s.cond.Wait()
			continue
		}

		s.reading = true
		s.mu.Unlock()
		msg, err := s.Assoc.Receive(s.Timeout)
		s.mu.Lock()
		s.reading = false

		if err != nil {
			s.cond.Broadcast()
			return nil, err
		}

		respID, _ := dataset.GetUint16(msg.Command, dataset.TagMessageIDBeingRespondedTo)
		if respID == messageID {
			s.cond.Broadcast()
			if msg.Err != nil {
				return nil, msg.Err
			}
			return msg, nil
		}

		if s.pending == nil {
			s.pending = make(map[uint16]*assoc.Message)
		}
		s.pending[respID] = msg
		s.cond.Broadcast()
	}
}

// WrongStatus reports an unexpected status for a diagnostic error.
func WrongStatus(op string, status uint16) error {
	return fmt.Errorf("dimse: %s failed with status 0x%04x (%s)", op, status, ClassifyStatus(status))
}
