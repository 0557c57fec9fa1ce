// Package item encodes and decodes the ACSE sub-items nested inside UL
// PDU payloads: application context, presentation context proposals and
// results, abstract/transfer syntax, and the user-information block with
// its own nested sub-items.
package item

import (
	"errors"
	"fmt"

	"github.com/meridianlabs/dicomnet/transport"
	"github.com/meridianlabs/dicomnet/uid"
)

// Type is the one-byte item-type tag shared by every item header.
type Type byte

const (
	TypeApplicationContext       Type = 0x10
	TypePresentationContextRQ    Type = 0x20
	TypePresentationContextAC    Type = 0x21
	TypeAbstractSyntax           Type = 0x30
	TypeTransferSyntax           Type = 0x40
	TypeUserInformation          Type = 0x50
	TypeMaximumLength            Type = 0x51
	TypeImplementationClassUID   Type = 0x52
	TypeAsyncOpsWindow           Type = 0x53
	TypeRoleSelection            Type = 0x54
	TypeImplementationVersionName Type = 0x55
)

func (t Type) String() string {
	switch t {
	case TypeApplicationContext:
		return "ApplicationContext"
	case TypePresentationContextRQ:
		return "PresentationContextRQ"
	case TypePresentationContextAC:
		return "PresentationContextAC"
	case TypeAbstractSyntax:
		return "AbstractSyntax"
	case TypeTransferSyntax:
		return "TransferSyntax"
	case TypeUserInformation:
		return "UserInformation"
	case TypeMaximumLength:
		return "MaximumLength"
	case TypeImplementationClassUID:
		return "ImplementationClassUID"
	case TypeAsyncOpsWindow:
		return "AsyncOpsWindow"
	case TypeRoleSelection:
		return "RoleSelection"
	case TypeImplementationVersionName:
		return "ImplementationVersionName"
	default:
		return fmt.Sprintf("Type(0x%02x)", byte(t))
	}
}

// ErrUnknownItem is returned by Decode when an item-type byte isn't one of
// the recognized kinds above: at top level, nested in a presentation
// context, or (strict reader only) as a UserInformation sub-item. A
// permissive reader skips unknown UserInformation sub-items itself (per
// spec.md §7's permissive note) instead of returning this error.
var ErrUnknownItem = errors.New("item: unknown item type")

// Item is any decoded sub-item. Concrete types below.
type Item interface {
	Type() Type
}

type ApplicationContext struct{ UID string }

func (ApplicationContext) Type() Type { return TypeApplicationContext }

type AbstractSyntax struct{ UID string }

func (AbstractSyntax) Type() Type { return TypeAbstractSyntax }

type TransferSyntax struct{ UID string }

func (TransferSyntax) Type() Type { return TypeTransferSyntax }

// PresentationContextRQ is a proposed presentation context: one abstract
// syntax plus an ordered, non-empty list of candidate transfer syntaxes.
type PresentationContextRQ struct {
	ID                 byte
	AbstractSyntax     string
	TransferSyntaxes   []string
}

func (PresentationContextRQ) Type() Type { return TypePresentationContextRQ }

// PresentationContextAC is the SCP's answer to one proposed context.
// TransferSyntax is empty iff Result != ResultAcceptance.
type PresentationContextAC struct {
	ID             byte
	Result         byte
	TransferSyntax string
}

func (PresentationContextAC) Type() Type { return TypePresentationContextAC }

// Presentation context result codes, PS3.8 Table 9-18.
const (
	ResultAcceptance                   byte = 0
	ResultUserRejection                byte = 1
	ResultNoReasonGiven                byte = 2
	ResultAbstractSyntaxNotSupported   byte = 3
	ResultTransferSyntaxesNotSupported byte = 4
)

type MaximumLength struct{ Length uint32 }

func (MaximumLength) Type() Type { return TypeMaximumLength }

type ImplementationClassUID struct{ UID string }

func (ImplementationClassUID) Type() Type { return TypeImplementationClassUID }

type AsyncOpsWindow struct{ Invoked, Performed uint16 }

func (AsyncOpsWindow) Type() Type { return TypeAsyncOpsWindow }

type RoleSelection struct {
	UID      string
	SCU, SCP bool
}

func (RoleSelection) Type() Type { return TypeRoleSelection }

type ImplementationVersionName struct{ Name string }

func (ImplementationVersionName) Type() Type { return TypeImplementationVersionName }

// UserInformation is the nested sub-item container. Unrecognized nested
// sub-items are dropped at decode time under a permissive reader and
// reported as ErrUnknownItem under a strict one; see decodeUserInformation.
type UserInformation struct {
	MaximumLength       *MaximumLength
	ImplementationClass *ImplementationClassUID
	ImplementationVer   *ImplementationVersionName
	AsyncOps            *AsyncOpsWindow
	RoleSelections      []RoleSelection
}

func (UserInformation) Type() Type { return TypeUserInformation }

// readHeader reads the shared item header (type, reserved, length) and
// returns a SubReader bounded to the payload.
func readHeader(t *transport.Transport) (Type, *transport.SubReader, error) {
	raw, err := t.ReadExact(2)
	if err != nil {
		return 0, nil, err
	}
	length, err := t.ReadUint16()
	if err != nil {
		return 0, nil, err
	}
	return Type(raw[0]), t.SubReader(int(length)), nil
}

func readUID(r *transport.SubReader) (string, error) {
	b, err := r.ReadExact(r.Remaining())
	if err != nil {
		return "", err
	}
	return uid.NormalizeBytes(b), nil
}

// Decode reads one top-level item (ApplicationContext, PresentationContextRQ/AC,
// or UserInformation) from t. permissive controls how nested unknown
// sub-items inside UserInformation are handled and whether a proposed
// presentation context may carry a non-zero result byte; it has no effect
// on an unknown top-level type, which is always a CorruptedMessage-worthy
// error.
func Decode(t *transport.Transport, permissive bool) (Item, error) {
	typ, r, err := readHeader(t)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeApplicationContext:
		u, err := readUID(r)
		if err != nil {
			return nil, err
		}
		return ApplicationContext{UID: u}, nil
	case TypePresentationContextRQ:
		return decodePresentationContextRQ(t, r, permissive)
	case TypePresentationContextAC:
		return decodePresentationContextAC(t, r)
	case TypeUserInformation:
		ui, err := decodeUserInformation(t, r, permissive)
		if err != nil {
			return nil, err
		}
		return ui, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownItem, byte(typ))
	}
}

func decodePresentationContextRQ(t *transport.Transport, r *transport.SubReader, permissive bool) (PresentationContextRQ, error) {
	var pc PresentationContextRQ
	id, err := r.ReadByte()
	if err != nil {
		return pc, err
	}
	if _, err := r.ReadByte(); err != nil { // reserved
		return pc, err
	}
	result, err := r.ReadByte() // result, reserved on RQ
	if err != nil {
		return pc, err
	}
	if result != 0 && !permissive {
		return pc, fmt.Errorf("item: presentation context %d proposed with non-zero result byte 0x%02x", id, result)
	}
	if _, err := r.ReadByte(); err != nil { // reserved
		return pc, err
	}
	pc.ID = id

	for r.Remaining() > 0 {
		nested, err := decodeNestedSyntaxItem(t, r)
		if err != nil {
			return pc, err
		}
		switch v := nested.(type) {
		case AbstractSyntax:
			pc.AbstractSyntax = v.UID
		case TransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, v.UID)
		}
	}
	if len(pc.TransferSyntaxes) == 0 {
		return pc, fmt.Errorf("item: presentation context %d proposed with no transfer syntax", id)
	}
	return pc, nil
}

func decodePresentationContextAC(t *transport.Transport, r *transport.SubReader) (PresentationContextAC, error) {
	var pc PresentationContextAC
	id, err := r.ReadByte()
	if err != nil {
		return pc, err
	}
	if _, err := r.ReadByte(); err != nil {
		return pc, err
	}
	result, err := r.ReadByte()
	if err != nil {
		return pc, err
	}
	if _, err := r.ReadByte(); err != nil {
		return pc, err
	}
	pc.ID = id
	pc.Result = result

	for r.Remaining() > 0 {
		nested, err := decodeNestedSyntaxItem(t, r)
		if err != nil {
			return pc, err
		}
		if ts, ok := nested.(TransferSyntax); ok {
			pc.TransferSyntax = ts.UID
		}
	}
	return pc, nil
}

// decodeNestedSyntaxItem reads one AbstractSyntax/TransferSyntax item
// nested inside a presentation-context item. Nested items share the
// transport's read cursor with their parent's sub-reader: the parent's
// remaining-byte bound is what matters, the bytes themselves still come
// off the single transport stream in order.
func decodeNestedSyntaxItem(t *transport.Transport, parent *transport.SubReader) (Item, error) {
	header, err := parent.ReadExact(2)
	if err != nil {
		return nil, err
	}
	lenBytes, err := parent.ReadExact(2)
	if err != nil {
		return nil, err
	}
	length := int(lenBytes[0])<<8 | int(lenBytes[1])
	payload, err := parent.ReadExact(length)
	if err != nil {
		return nil, err
	}
	switch Type(header[0]) {
	case TypeAbstractSyntax:
		return AbstractSyntax{UID: uid.NormalizeBytes(payload)}, nil
	case TypeTransferSyntax:
		return TransferSyntax{UID: uid.NormalizeBytes(payload)}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownItem, header[0])
	}
}

func decodeUserInformation(t *transport.Transport, r *transport.SubReader, permissive bool) (UserInformation, error) {
	var ui UserInformation
	for r.Remaining() > 0 {
		header, err := r.ReadExact(2)
		if err != nil {
			return ui, err
		}
		lenBytes, err := r.ReadExact(2)
		if err != nil {
			return ui, err
		}
		length := int(lenBytes[0])<<8 | int(lenBytes[1])
		payload, err := r.ReadExact(length)
		if err != nil {
			return ui, err
		}

		switch Type(header[0]) {
		case TypeMaximumLength:
			if length != 4 {
				return ui, fmt.Errorf("item: MaximumLength payload must be 4 bytes, got %d", length)
			}
			v := uint32(payload[0])<<24 | uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
			ml := MaximumLength{Length: v}
			ui.MaximumLength = &ml
		case TypeImplementationClassUID:
			icu := ImplementationClassUID{UID: uid.NormalizeBytes(payload)}
			ui.ImplementationClass = &icu
		case TypeImplementationVersionName:
			ivn := ImplementationVersionName{Name: string(payload)}
			ui.ImplementationVer = &ivn
		case TypeAsyncOpsWindow:
			if length != 4 {
				return ui, fmt.Errorf("item: AsyncOpsWindow payload must be 4 bytes, got %d", length)
			}
			aow := AsyncOpsWindow{
				Invoked:   uint16(payload[0])<<8 | uint16(payload[1]),
				Performed: uint16(payload[2])<<8 | uint16(payload[3]),
			}
			ui.AsyncOps = &aow
		case TypeRoleSelection:
			if len(payload) < 2 {
				return ui, fmt.Errorf("item: RoleSelection payload truncated")
			}
			uidLen := int(payload[0])<<8 | int(payload[1])
			if len(payload) < 2+uidLen+2 {
				return ui, fmt.Errorf("item: RoleSelection payload truncated")
			}
			rs := RoleSelection{
				UID: uid.NormalizeBytes(payload[2 : 2+uidLen]),
				SCU: payload[2+uidLen] != 0,
				SCP: payload[2+uidLen+1] != 0,
			}
			ui.RoleSelections = append(ui.RoleSelections, rs)
		default:
			if !permissive {
				return ui, fmt.Errorf("%w: 0x%02x", ErrUnknownItem, header[0])
			}
			// permissive: skip, already consumed via ReadExact above.
		}
	}
	return ui, nil
}

// --- Encoding ---

func appendHeader(buf []byte, typ Type, length int) []byte {
	buf = append(buf, byte(typ), 0)
	return transport.PutUint16(buf, uint16(length))
}

// EncodeApplicationContext appends an ApplicationContext item.
func EncodeApplicationContext(buf []byte, appContextUID string) []byte {
	payload := uid.EncodeField(appContextUID)
	buf = appendHeader(buf, TypeApplicationContext, len(payload))
	return append(buf, payload...)
}

// EncodePresentationContextRQ appends a proposed presentation context with
// its abstract syntax and ordered transfer syntax list.
func EncodePresentationContextRQ(buf []byte, pc PresentationContextRQ) []byte {
	var body []byte
	body = append(body, pc.ID, 0, 0, 0)
	body = appendSyntaxItem(body, TypeAbstractSyntax, pc.AbstractSyntax)
	for _, ts := range pc.TransferSyntaxes {
		body = appendSyntaxItem(body, TypeTransferSyntax, ts)
	}
	buf = appendHeader(buf, TypePresentationContextRQ, len(body))
	return append(buf, body...)
}

// EncodePresentationContextAC appends an accepted/rejected presentation
// context result.
func EncodePresentationContextAC(buf []byte, pc PresentationContextAC) []byte {
	var body []byte
	body = append(body, pc.ID, 0, pc.Result, 0)
	if pc.Result == ResultAcceptance && pc.TransferSyntax != "" {
		body = appendSyntaxItem(body, TypeTransferSyntax, pc.TransferSyntax)
	}
	buf = appendHeader(buf, TypePresentationContextAC, len(body))
	return append(buf, body...)
}

func appendSyntaxItem(buf []byte, typ Type, syntaxUID string) []byte {
	payload := uid.EncodeField(syntaxUID)
	buf = appendHeader(buf, typ, len(payload))
	return append(buf, payload...)
}

// EncodeUserInformation appends a UserInformation item containing
// MaximumLength, ImplementationClassUID, optional ImplementationVersionName,
// optional AsyncOpsWindow, and zero or more RoleSelection sub-items.
func EncodeUserInformation(buf []byte, ui UserInformation) []byte {
	var body []byte
	if ui.MaximumLength != nil {
		var p []byte
		p = transport.PutUint32(p, ui.MaximumLength.Length)
		body = appendHeader(body, TypeMaximumLength, len(p))
		body = append(body, p...)
	}
	if ui.ImplementationClass != nil {
		p := uid.EncodeField(ui.ImplementationClass.UID)
		body = appendHeader(body, TypeImplementationClassUID, len(p))
		body = append(body, p...)
	}
	if ui.AsyncOps != nil {
		var p []byte
		p = transport.PutUint16(p, ui.AsyncOps.Invoked)
		p = transport.PutUint16(p, ui.AsyncOps.Performed)
		body = appendHeader(body, TypeAsyncOpsWindow, len(p))
		body = append(body, p...)
	}
	for _, rs := range ui.RoleSelections {
		u := uid.EncodeField(rs.UID)
		var p []byte
		p = transport.PutUint16(p, uint16(len(u)))
		p = append(p, u...)
		p = append(p, boolByte(rs.SCU), boolByte(rs.SCP))
		body = appendHeader(body, TypeRoleSelection, len(p))
		body = append(body, p...)
	}
	if ui.ImplementationVer != nil {
		p := []byte(ui.ImplementationVer.Name)
		body = appendHeader(body, TypeImplementationVersionName, len(p))
		body = append(body, p...)
	}
	buf = appendHeader(buf, TypeUserInformation, len(body))
	return append(buf, body...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
