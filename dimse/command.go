// Package dimse implements the DIMSE command layer on top of assoc: typed
// request/response envelopes for every command defined by PS3.7, message
// ID allocation, and status classification. Spec.md §6.
package dimse

import (
	"fmt"
	"sync/atomic"

	"github.com/meridianlabs/dicomnet/dataset"
)

// responseBit marks a Command Field value as a response rather than a
// request, PS3.7 Table 9.3.
const responseBit uint16 = 0x8000

// CommandField values, PS3.7 Table 9.3-9.3.5.
const (
	CStoreRQ         uint16 = 0x0001
	CStoreRSP        uint16 = 0x8001
	CGetRQ           uint16 = 0x0010
	CGetRSP          uint16 = 0x8010
	CFindRQ          uint16 = 0x0020
	CFindRSP         uint16 = 0x8020
	CMoveRQ          uint16 = 0x0021
	CMoveRSP         uint16 = 0x8021
	CEchoRQ          uint16 = 0x0030
	CEchoRSP         uint16 = 0x8030
	CCancelRQ        uint16 = 0x0FFF
	NEventReportRQ   uint16 = 0x0100
	NEventReportRSP  uint16 = 0x8100
	NGetRQ           uint16 = 0x0110
	NGetRSP          uint16 = 0x8110
	NSetRQ           uint16 = 0x0120
	NSetRSP          uint16 = 0x8120
	NActionRQ        uint16 = 0x0130
	NActionRSP       uint16 = 0x8130
	NCreateRQ        uint16 = 0x0140
	NCreateRSP       uint16 = 0x8140
	NDeleteRQ        uint16 = 0x0150
	NDeleteRSP       uint16 = 0x8150
)

// CommandName returns a human-readable name for a Command Field value,
// used in logging.
func CommandName(field uint16) string {
	switch field {
	case CStoreRQ:
		return "C-STORE-RQ"
	case CStoreRSP:
		return "C-STORE-RSP"
	case CGetRQ:
		return "C-GET-RQ"
	case CGetRSP:
		return "C-GET-RSP"
	case CFindRQ:
		return "C-FIND-RQ"
	case CFindRSP:
		return "C-FIND-RSP"
	case CMoveRQ:
		return "C-MOVE-RQ"
	case CMoveRSP:
		return "C-MOVE-RSP"
	case CEchoRQ:
		return "C-ECHO-RQ"
	case CEchoRSP:
		return "C-ECHO-RSP"
	case CCancelRQ:
		return "C-CANCEL-RQ"
	case NEventReportRQ:
		return "N-EVENT-REPORT-RQ"
	case NEventReportRSP:
		return "N-EVENT-REPORT-RSP"
	case NGetRQ:
		return "N-GET-RQ"
	case NGetRSP:
		return "N-GET-RSP"
	case NSetRQ:
		return "N-SET-RQ"
	case NSetRSP:
		return "N-SET-RSP"
	case NActionRQ:
		return "N-ACTION-RQ"
	case NActionRSP:
		return "N-ACTION-RSP"
	case NCreateRQ:
		return "N-CREATE-RQ"
	case NCreateRSP:
		return "N-CREATE-RSP"
	case NDeleteRQ:
		return "N-DELETE-RQ"
	case NDeleteRSP:
		return "N-DELETE-RSP"
	default:
		return "UNKNOWN"
	}
}

// Command is a typed view over a decoded command dataset covering all
// twelve DIMSE command/response kinds, constructed by dispatching on the
// Command Field tag per spec.md §4.6 get_command(). Fields not relevant
// to a given Field's shape simply read as their zero value.
type Command struct {
	Field                     uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	RequestedSOPClassUID      string
	RequestedSOPInstanceUID   string
	MoveDestination           string
	EventTypeID               uint16
	ActionTypeID              uint16
	Priority                  uint16
	Status                    uint16
	HasStatus                 bool
	DataSetType               uint16
	SubOperations             dataset.SubOperationCounts
}

// IsResponse reports whether Field marks this a response rather than a
// request command.
func (c *Command) IsResponse() bool { return c.Field&responseBit != 0 }

// Name returns the human-readable Command Field name.
func (c *Command) Name() string { return CommandName(c.Field) }

// HasDataset reports whether a payload dataset follows this command, per
// the Command Data-Set Type element.
func (c *Command) HasDataset() bool { return c.DataSetType != dataset.DataSetTypeNone }

// DecodeCommand builds a typed Command from a decoded command dataset.
// An unrecognized Command Field is a protocol violation rather than a
// silently-ignored one, since every other DIMSE correlation decision
// depends on knowing which of the twelve kinds this is.
func DecodeCommand(cmd dataset.Dataset) (*Command, error) {
	field, ok := dataset.GetUint16(cmd, dataset.TagCommandField)
	if !ok {
		return nil, fmt.Errorf("dimse: command dataset has no Command Field element")
	}
	if CommandName(field) == "UNKNOWN" {
		return nil, fmt.Errorf("dimse: unrecognized Command Field 0x%04x", field)
	}
	c := &Command{Field: field}
	c.MessageID, _ = dataset.GetUint16(cmd, dataset.TagMessageID)
	c.MessageIDBeingRespondedTo, _ = dataset.GetUint16(cmd, dataset.TagMessageIDBeingRespondedTo)
	c.AffectedSOPClassUID = dataset.GetString(cmd, dataset.TagAffectedSOPClassUID)
	c.AffectedSOPInstanceUID = dataset.GetString(cmd, dataset.TagAffectedSOPInstanceUID)
	c.RequestedSOPClassUID = dataset.GetString(cmd, dataset.TagRequestedSOPClassUID)
	c.RequestedSOPInstanceUID = dataset.GetString(cmd, dataset.TagRequestedSOPInstanceUID)
	c.MoveDestination = dataset.GetString(cmd, dataset.TagMoveDestination)
	c.EventTypeID, _ = dataset.GetUint16(cmd, dataset.TagEventTypeID)
	c.ActionTypeID, _ = dataset.GetUint16(cmd, dataset.TagActionTypeID)
	c.Priority, _ = dataset.GetUint16(cmd, dataset.TagPriority)
	c.Status, c.HasStatus = dataset.GetUint16(cmd, dataset.TagStatus)
	c.DataSetType, _ = dataset.GetUint16(cmd, dataset.TagCommandDataSetType)
	c.SubOperations = dataset.GetSubOperationCounts(cmd)
	return c, nil
}

// Status group, classified by the high nibble/byte of the status code,
// PS3.7 Annex C.
type StatusGroup int

const (
	StatusGroupSuccess StatusGroup = iota
	StatusGroupPending
	StatusGroupWarning
	StatusGroupCancel
	StatusGroupFailure
)

func (g StatusGroup) String() string {
	switch g {
	case StatusGroupSuccess:
		return "success"
	case StatusGroupPending:
		return "pending"
	case StatusGroupWarning:
		return "warning"
	case StatusGroupCancel:
		return "cancel"
	default:
		return "failure"
	}
}

// Well-known status codes.
const (
	StatusSuccess                uint16 = 0x0000
	StatusCancel                 uint16 = 0xFE00
	StatusPendingNoOptionalKeys  uint16 = 0xFF00
	StatusPendingOptionalKeys    uint16 = 0xFF01
	StatusRefusedOutOfResources  uint16 = 0xA700
	StatusRefusedSOPClassUnknown uint16 = 0xA800
	StatusInvalidSOPInstance     uint16 = 0xA900
	StatusProcessingFailure      uint16 = 0x0110
)

// ClassifyStatus buckets a raw status code into its group. 0xFF00-0xFFFF
// is pending, 0xFE00 cancel, 0x0000 success, 0xB000-0xBFFF and 0x0001
// warning; every other code (including other 0x0xxx codes such as
// 0x0110) is failure.
// The exact sub-code is preserved verbatim on the message regardless of
// group — callers that care about a specific SOP-class-defined status
// value read it directly rather than through this coarse grouping.
func ClassifyStatus(status uint16) StatusGroup {
	switch {
	case status == StatusSuccess:
		return StatusGroupSuccess
	case status == StatusCancel:
		return StatusGroupCancel
	case status&0xFF00 == 0xFF00:
		return StatusGroupPending
	case status&0xF000 == 0xB000:
		return StatusGroupWarning
	case status == 0x0001:
		return StatusGroupWarning
	default:
		return StatusGroupFailure
	}
}

// messageIDCounter hands out monotonically increasing message IDs shared
// by every association in the process; PS3.7 only requires uniqueness
// within one association's outstanding requests, but a process-wide
// counter trivially satisfies that and avoids per-association state.
var messageIDCounter uint32

// NextMessageID returns the next message ID, wrapping at 65535 back to 1
// (0 is reserved/unused by convention).
func NextMessageID() uint16 {
	for {
		n := atomic.AddUint32(&messageIDCounter, 1)
		id := uint16(n)
		if id != 0 {
			return id
		}
	}
}

// buildCommand assembles a dataset.CommandSet carrying the fields common
// to every request, grounded on the command group-length element layout
// the classic DIMSE command builders use (though CommandSet's own codec
// does not emit a group-length element — PS3.7 lets a receiver compute it
// and most modern stacks, including this one, don't require it on the
// wire).
func buildCommand(field uint16, messageID uint16, affectedSOPClassUID string, hasDataset bool) *dataset.CommandSet {
	dsType := dataset.DataSetTypeNone
	if hasDataset {
		dsType = 0
	}
	cs := dataset.NewCommandSet().
		SetUint16(dataset.TagCommandField, field).
		SetUint16(dataset.TagCommandDataSetType, dsType)
	if affectedSOPClassUID != "" {
		cs.SetString(dataset.TagAffectedSOPClassUID, affectedSOPClassUID)
	}
	if messageID != 0 {
		cs.SetUint16(dataset.TagMessageID, messageID)
	}
	return cs
}

// buildRequestedCommand assembles a request command set for the N-series
// commands that target an existing instance via Requested SOP
// Class/Instance UID rather than Affected (N-GET/N-SET/N-ACTION/
// N-DELETE), PS3.7 Table 9.3-9.3.5.
func buildRequestedCommand(field uint16, messageID uint16, requestedSOPClassUID, requestedSOPInstanceUID string, hasDataset bool) *dataset.CommandSet {
	dsType := dataset.DataSetTypeNone
	if hasDataset {
		dsType = 0
	}
	cs := dataset.NewCommandSet().
		SetUint16(dataset.TagCommandField, field).
		SetUint16(dataset.TagCommandDataSetType, dsType)
	if requestedSOPClassUID != "" {
		cs.SetString(dataset.TagRequestedSOPClassUID, requestedSOPClassUID)
	}
	if requestedSOPInstanceUID != "" {
		cs.SetString(dataset.TagRequestedSOPInstanceUID, requestedSOPInstanceUID)
	}
	if messageID != 0 {
		cs.SetUint16(dataset.TagMessageID, messageID)
	}
	return cs
}

func buildResponse(field uint16, messageIDBeingRespondedTo uint16, affectedSOPClassUID string, status uint16, hasDataset bool) *dataset.CommandSet {
	dsType := dataset.DataSetTypeNone
	if hasDataset {
		dsType = 0
	}
	cs := dataset.NewCommandSet().
		SetUint16(dataset.TagCommandField, field).
		SetUint16(dataset.TagMessageIDBeingRespondedTo, messageIDBeingRespondedTo).
		SetUint16(dataset.TagCommandDataSetType, dsType).
		SetUint16(dataset.TagStatus, status)
	if affectedSOPClassUID != "" {
		cs.SetString(dataset.TagAffectedSOPClassUID, affectedSOPClassUID)
	}
	return cs
}
