// Package dimerr defines the error taxonomy shared by every layer of the
// Upper Layer / DIMSE stack. Errors are classified by kind, not by type
// hierarchy: callers use errors.Is/errors.As against the sentinels and
// typed values below.
package dimerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds that carry no extra payload.
var (
	// StreamClosed is returned from any blocking call once an association
	// has released, aborted, or its transport hit EOF.
	StreamClosed = errors.New("dimerr: stream closed")

	// NoTransferSyntax is returned when an outbound message supplies a
	// transfer syntax that doesn't match any negotiated presentation
	// context for the message's abstract syntax.
	NoTransferSyntax = errors.New("dimerr: no matching transfer syntax")

	// PresentationContextNotRequested is returned when a send cannot find
	// any negotiated presentation context for the message's abstract
	// syntax at all.
	PresentationContextNotRequested = errors.New("dimerr: presentation context not requested")

	// WrongRole is returned when a send violates the negotiated SCU/SCP
	// role for its presentation context.
	WrongRole = errors.New("dimerr: wrong role for presentation context")

	// WrongCommandID is returned when an outbound request reuses a
	// message ID that is already outstanding.
	WrongCommandID = errors.New("dimerr: command ID already outstanding")

	// WrongResponseID is returned when a response's Message-ID-Being-
	// Responded-To does not match any outstanding request.
	WrongResponseID = errors.New("dimerr: response ID does not match an outstanding request")

	// TooManyOperationsInvoked is returned when a request would exceed
	// the negotiated max_ops_invoked.
	TooManyOperationsInvoked = errors.New("dimerr: too many operations invoked")

	// TooManyOperationsPerformed is returned when a request would exceed
	// the negotiated max_ops_performed.
	TooManyOperationsPerformed = errors.New("dimerr: too many operations performed")

	// DimseTimeout is returned when a blocking receive exceeds its DIMSE
	// deadline.
	DimseTimeout = errors.New("dimerr: DIMSE timeout")

	// UnexpectedCommand is returned by the background reader when a
	// command dataset arrives while a previously started command's
	// payload is still outstanding — a protocol violation per spec.md
	// §4.4.4 step 4, distinct from a generically malformed PDU.
	UnexpectedCommand = errors.New("dimerr: command received before a prior command's payload completed")
)

// CorruptedMessage reports a structural violation found on the wire:
// unknown item/PDU code, bad reserved byte, bad protocol version, a
// response code outside the recognized set, or a truncated item.
type CorruptedMessage struct {
	Reason string
	Err    error
}

func (e *CorruptedMessage) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dimerr: corrupted message: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("dimerr: corrupted message: %s", e.Reason)
}

func (e *CorruptedMessage) Unwrap() error { return e.Err }

// NewCorrupted builds a CorruptedMessage with the given reason, optionally
// wrapping an underlying decode error.
func NewCorrupted(reason string, err error) *CorruptedMessage {
	return &CorruptedMessage{Reason: reason, Err: err}
}

// RejectSource identifies who rejected an association, per PS3.8 9.3.4.
type RejectSource byte

const (
	RejectSourceUnknown            RejectSource = 0x00
	RejectSourceServiceUser        RejectSource = 0x01
	RejectSourceServiceProviderACSE RejectSource = 0x02
	RejectSourceServiceProviderPresentation RejectSource = 0x03
)

func (s RejectSource) String() string {
	switch s {
	case RejectSourceServiceUser:
		return "service-user"
	case RejectSourceServiceProviderACSE:
		return "service-provider-acse"
	case RejectSourceServiceProviderPresentation:
		return "service-provider-presentation"
	default:
		return "unknown"
	}
}

// RejectReason enumerates the recognized (source, reason) pairs from
// spec.md §6. The numeric value is the wire reason byte within its source.
type RejectReason byte

const (
	ReasonNoReasonGiven                  RejectReason = 0x01
	ReasonApplicationContextNotSupported RejectReason = 0x02
	ReasonCallingAETitleNotRecognized    RejectReason = 0x03
	ReasonCalledAETitleNotRecognized     RejectReason = 0x07

	ReasonNoCommonUserInfo    RejectReason = 0x01 // ACSE provider: no reason given
	ReasonProtocolVersionNotSupported RejectReason = 0x02

	ReasonTemporaryCongestion   RejectReason = 0x01
	ReasonLocalLimitExceeded    RejectReason = 0x02
)

// Recognized reports whether (source, r) is one of the reject reason
// codes spec.md §6 lists as recognized for that source. Any other
// (source, reason) combination on the wire makes the PDU corrupted
// rather than merely an unfamiliar rejection.
func (r RejectReason) Recognized(source RejectSource) bool {
	switch source {
	case RejectSourceServiceUser:
		switch r {
		case ReasonNoReasonGiven, ReasonApplicationContextNotSupported, ReasonCallingAETitleNotRecognized, ReasonCalledAETitleNotRecognized:
			return true
		}
	case RejectSourceServiceProviderACSE:
		switch r {
		case ReasonNoCommonUserInfo, ReasonProtocolVersionNotSupported:
			return true
		}
	case RejectSourceServiceProviderPresentation:
		switch r {
		case 0x00, ReasonTemporaryCongestion, ReasonLocalLimitExceeded:
			return true
		}
	}
	return false
}

func (r RejectReason) String(source RejectSource) string {
	switch source {
	case RejectSourceServiceUser:
		switch r {
		case ReasonNoReasonGiven:
			return "no-reason-given"
		case ReasonApplicationContextNotSupported:
			return "application-context-name-not-supported"
		case ReasonCallingAETitleNotRecognized:
			return "calling-ae-title-not-recognized"
		case ReasonCalledAETitleNotRecognized:
			return "called-ae-title-not-recognized"
		}
	case RejectSourceServiceProviderACSE:
		switch r {
		case ReasonNoCommonUserInfo:
			return "no-reason-given"
		case ReasonProtocolVersionNotSupported:
			return "protocol-version-not-supported"
		}
	case RejectSourceServiceProviderPresentation:
		switch r {
		case 0x00:
			return "reserved"
		case ReasonTemporaryCongestion:
			return "temporary-congestion"
		case ReasonLocalLimitExceeded:
			return "local-limit-exceeded"
		}
	}
	return "unrecognized"
}

// AssociationRejected is returned synchronously from SCU negotiation when
// the peer sends an A-ASSOCIATE-RJ.
type AssociationRejected struct {
	Permanent bool
	Source    RejectSource
	Reason    RejectReason
}

func (e *AssociationRejected) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("dimerr: association rejected (%s, source=%s, reason=%s)",
		kind, e.Source, e.Reason.String(e.Source))
}

// AbortSource identifies who originated an A-ABORT.
type AbortSource byte

const (
	AbortSourceServiceUser     AbortSource = 0x00
	AbortSourceServiceProvider AbortSource = 0x02
)

// Recognized service-provider abort reasons, spec.md §6.
const (
	AbortReasonUnspecified                    byte = 0x00
	AbortReasonUnrecognizedPDU                byte = 0x01
	AbortReasonUnexpectedPDU                  byte = 0x02
	AbortReasonUnrecognizedPDUParameter       byte = 0x04
	AbortReasonUnexpectedPDUParameter         byte = 0x05
	AbortReasonInvalidPDUParameterValue       byte = 0x06
)

// Aborted reports that the peer (or we) sent an A-ABORT; it always also
// implies StreamClosed for blocked callers.
type Aborted struct {
	Source AbortSource
	Reason byte
}

func (e *Aborted) Error() string {
	src := "service-user"
	if e.Source == AbortSourceServiceProvider {
		src = "service-provider"
	}
	return fmt.Sprintf("dimerr: association aborted by %s (reason 0x%02x)", src, e.Reason)
}

func (e *Aborted) Unwrap() error { return StreamClosed }
