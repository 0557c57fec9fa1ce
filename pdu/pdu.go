// Package pdu encodes and decodes the seven Upper Layer PDU types on top
// of transport and item.
package pdu

import (
	"fmt"

	"github.com/meridianlabs/dicomnet/dimerr"
	"github.com/meridianlabs/dicomnet/item"
	"github.com/meridianlabs/dicomnet/transport"
	"github.com/meridianlabs/dicomnet/uid"
)

// Type is the PDU type byte, PS3.8 Table 9-11.
type Type byte

const (
	TypeAssociateRQ Type = 0x01
	TypeAssociateAC Type = 0x02
	TypeAssociateRJ Type = 0x03
	TypePDataTF     Type = 0x04
	TypeReleaseRQ   Type = 0x05
	TypeReleaseRP   Type = 0x06
	TypeAbort       Type = 0x07
)

func (t Type) String() string {
	switch t {
	case TypeAssociateRQ:
		return "A-ASSOCIATE-RQ"
	case TypeAssociateAC:
		return "A-ASSOCIATE-AC"
	case TypeAssociateRJ:
		return "A-ASSOCIATE-RJ"
	case TypePDataTF:
		return "P-DATA-TF"
	case TypeReleaseRQ:
		return "A-RELEASE-RQ"
	case TypeReleaseRP:
		return "A-RELEASE-RP"
	case TypeAbort:
		return "A-ABORT"
	default:
		return fmt.Sprintf("Type(0x%02x)", byte(t))
	}
}

const protocolVersion uint16 = 1

// AssociateRQ is the decoded payload of an A-ASSOCIATE-RQ PDU.
type AssociateRQ struct {
	CalledAET           string
	CallingAET          string
	ApplicationContext  string
	PresentationContexts []item.PresentationContextRQ
	UserInfo            item.UserInformation
}

// AssociateAC mirrors AssociateRQ's layout with accepted contexts.
type AssociateAC struct {
	CalledAET           string
	CallingAET          string
	ApplicationContext  string
	PresentationContexts []item.PresentationContextAC
	UserInfo            item.UserInformation
}

// AssociateRJ is a rejection; Result is 1 (permanent) or 2 (transient).
type AssociateRJ struct {
	Result byte
	Source dimerr.RejectSource
	Reason dimerr.RejectReason
}

// PDV is one presentation-data-value fragment inside a P-DATA-TF PDU.
type PDV struct {
	ContextID byte
	IsCommand bool
	IsLast    bool
	Data      []byte
}

// PDataTF carries one or more PDVs.
type PDataTF struct {
	PDVs []PDV
}

type ReleaseRQ struct{}
type ReleaseRP struct{}

// Abort is an A-ABORT PDU.
type Abort struct {
	Source dimerr.AbortSource
	Reason byte
}

// readPDUHeader reads the 6-byte PDU header and returns a bounded
// SubReader over exactly Length bytes.
func readPDUHeader(t *transport.Transport) (Type, *transport.SubReader, error) {
	typeByte, err := t.ReadExact(2) // type + reserved
	if err != nil {
		return 0, nil, err
	}
	length, err := t.ReadUint32()
	if err != nil {
		return 0, nil, err
	}
	return Type(typeByte[0]), t.SubReader(int(length)), nil
}

// Decode reads exactly one PDU from t and returns it as one of
// *AssociateRQ, *AssociateAC, *AssociateRJ, *PDataTF, *ReleaseRQ,
// *ReleaseRP, or *Abort. permissive is forwarded to the item decoder for
// UserInformation's nested sub-items and proposed presentation contexts'
// result byte.
func Decode(t *transport.Transport, permissive bool) (any, error) {
	typ, r, err := readPDUHeader(t)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeAssociateRQ:
		return decodeAssociateRQ(t, r, permissive)
	case TypeAssociateAC:
		return decodeAssociateAC(t, r, permissive)
	case TypeAssociateRJ:
		return decodeAssociateRJ(r)
	case TypePDataTF:
		return decodePDataTF(t, r)
	case TypeReleaseRQ:
		if err := r.Drain(); err != nil {
			return nil, err
		}
		return &ReleaseRQ{}, nil
	case TypeReleaseRP:
		if err := r.Drain(); err != nil {
			return nil, err
		}
		return &ReleaseRP{}, nil
	case TypeAbort:
		return decodeAbort(r)
	default:
		return nil, dimerr.NewCorrupted(fmt.Sprintf("unrecognized PDU type 0x%02x", byte(typ)), nil)
	}
}

func readAETitles(t *transport.Transport) (protoVersion uint16, called, calling string, err error) {
	protoVersion, err = t.ReadUint16()
	if err != nil {
		return
	}
	if protoVersion&0x1 == 0 {
		err = dimerr.NewCorrupted("protocol version bit 0 not set", nil)
		return
	}
	if _, err = t.ReadExact(2); err != nil { // reserved
		return
	}
	calledRaw, err := t.ReadExact(uid.AETitleLength)
	if err != nil {
		return
	}
	callingRaw, err := t.ReadExact(uid.AETitleLength)
	if err != nil {
		return
	}
	if _, err = t.ReadExact(32); err != nil { // reserved
		return
	}
	called = uid.TrimAETitle(calledRaw)
	calling = uid.TrimAETitle(callingRaw)
	return
}

func decodeAssociateRQ(t *transport.Transport, r *transport.SubReader, permissive bool) (*AssociateRQ, error) {
	rq := &AssociateRQ{}
	_, called, calling, err := readAETitles(t)
	if err != nil {
		return nil, err
	}
	rq.CalledAET, rq.CallingAET = called, calling

	consumed := 2 + 2 + 2*uid.AETitleLength + 32
	remaining := r.Remaining() - consumed
	items := r.SubReaderFromRemainder(remaining)
	if err := decodeVariableItems(t, items, func(it item.Item) error {
		switch v := it.(type) {
		case item.ApplicationContext:
			rq.ApplicationContext = v.UID
		case item.PresentationContextRQ:
			rq.PresentationContexts = append(rq.PresentationContexts, v)
		case item.UserInformation:
			rq.UserInfo = v
		}
		return nil
	}, permissive); err != nil {
		return nil, err
	}
	return rq, nil
}

func decodeAssociateAC(t *transport.Transport, r *transport.SubReader, permissive bool) (*AssociateAC, error) {
	ac := &AssociateAC{}
	_, called, calling, err := readAETitles(t)
	if err != nil {
		return nil, err
	}
	ac.CalledAET, ac.CallingAET = called, calling

	consumed := 2 + 2 + 2*uid.AETitleLength + 32
	remaining := r.Remaining() - consumed
	items := r.SubReaderFromRemainder(remaining)
	if err := decodeVariableItems(t, items, func(it item.Item) error {
		switch v := it.(type) {
		case item.ApplicationContext:
			ac.ApplicationContext = v.UID
		case item.PresentationContextAC:
			ac.PresentationContexts = append(ac.PresentationContexts, v)
		case item.UserInformation:
			ac.UserInfo = v
		}
		return nil
	}, permissive); err != nil {
		return nil, err
	}
	return ac, nil
}

// decodeVariableItems reads items off t until the bounded region
// (already accounted for in items.Remaining()) is exhausted.
func decodeVariableItems(t *transport.Transport, items *transport.SubReader, visit func(item.Item) error, permissive bool) error {
	for items.Remaining() > 0 {
		it, err := item.Decode(t, permissive)
		if err != nil {
			return err
		}
		if err := visit(it); err != nil {
			return err
		}
	}
	return nil
}

func decodeAssociateRJ(r *transport.SubReader) (*AssociateRJ, error) {
	if _, err := r.ReadByte(); err != nil { // reserved
		return nil, err
	}
	result, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if result != 1 && result != 2 {
		return nil, dimerr.NewCorrupted(fmt.Sprintf("A-ASSOCIATE-RJ result %d not in {1,2}", result), nil)
	}
	source, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	reason, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	rejSource := dimerr.RejectSource(source)
	rejReason := dimerr.RejectReason(reason)
	if !rejReason.Recognized(rejSource) {
		return nil, dimerr.NewCorrupted(fmt.Sprintf("A-ASSOCIATE-RJ source=0x%02x reason=0x%02x not recognized", source, reason), nil)
	}
	return &AssociateRJ{
		Result: result,
		Source: rejSource,
		Reason: rejReason,
	}, nil
}

func decodeAbort(r *transport.SubReader) (*Abort, error) {
	if _, err := r.ReadByte(); err != nil { // reserved
		return nil, err
	}
	if _, err := r.ReadByte(); err != nil { // reserved
		return nil, err
	}
	source, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	reason, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return &Abort{Source: dimerr.AbortSource(source), Reason: reason}, nil
}

func decodePDataTF(t *transport.Transport, r *transport.SubReader) (*PDataTF, error) {
	pd := &PDataTF{}
	for r.Remaining() > 0 {
		pdvLen, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		contextID, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		header, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		dataLen := int(pdvLen) - 2
		if dataLen < 0 {
			return nil, dimerr.NewCorrupted("PDV length shorter than its own header", nil)
		}
		data, err := r.ReadExact(dataLen)
		if err != nil {
			return nil, err
		}
		pd.PDVs = append(pd.PDVs, PDV{
			ContextID: contextID,
			IsCommand: header&0x01 != 0,
			IsLast:    header&0x02 != 0,
			Data:      data,
		})
	}
	return pd, nil
}

// --- Encoding ---

func encodePDUHeader(typ Type, payload []byte) []byte {
	buf := make([]byte, 0, 6+len(payload))
	buf = append(buf, byte(typ), 0)
	buf = transport.PutUint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

func encodeAETitles(calledAET, callingAET string) []byte {
	var buf []byte
	buf = transport.PutUint16(buf, protocolVersion)
	buf = transport.PutUint16(buf, 0)
	called := uid.PadAETitle(calledAET)
	calling := uid.PadAETitle(callingAET)
	buf = append(buf, called[:]...)
	buf = append(buf, calling[:]...)
	buf = append(buf, make([]byte, 32)...)
	return buf
}

// EncodeAssociateRQ serializes an A-ASSOCIATE-RQ PDU.
func EncodeAssociateRQ(rq *AssociateRQ) []byte {
	payload := encodeAETitles(rq.CalledAET, rq.CallingAET)
	payload = item.EncodeApplicationContext(payload, rq.ApplicationContext)
	for _, pc := range rq.PresentationContexts {
		payload = item.EncodePresentationContextRQ(payload, pc)
	}
	payload = item.EncodeUserInformation(payload, rq.UserInfo)
	return encodePDUHeader(TypeAssociateRQ, payload)
}

// EncodeAssociateAC serializes an A-ASSOCIATE-AC PDU.
func EncodeAssociateAC(ac *AssociateAC) []byte {
	payload := encodeAETitles(ac.CalledAET, ac.CallingAET)
	payload = item.EncodeApplicationContext(payload, ac.ApplicationContext)
	for _, pc := range ac.PresentationContexts {
		payload = item.EncodePresentationContextAC(payload, pc)
	}
	payload = item.EncodeUserInformation(payload, ac.UserInfo)
	return encodePDUHeader(TypeAssociateAC, payload)
}

// EncodeAssociateRJ serializes an A-ASSOCIATE-RJ PDU.
func EncodeAssociateRJ(rj *AssociateRJ) []byte {
	payload := []byte{0, rj.Result, byte(rj.Source), byte(rj.Reason)}
	return encodePDUHeader(TypeAssociateRJ, payload)
}

// EncodeAbort serializes an A-ABORT PDU.
func EncodeAbort(a *Abort) []byte {
	payload := []byte{0, 0, byte(a.Source), a.Reason}
	return encodePDUHeader(TypeAbort, payload)
}

// EncodeReleaseRQ serializes an A-RELEASE-RQ PDU.
func EncodeReleaseRQ() []byte {
	return encodePDUHeader(TypeReleaseRQ, make([]byte, 4))
}

// EncodeReleaseRP serializes an A-RELEASE-RP PDU.
func EncodeReleaseRP() []byte {
	return encodePDUHeader(TypeReleaseRP, make([]byte, 4))
}

// EncodePDataTF serializes a P-DATA-TF PDU from its PDVs.
func EncodePDataTF(pd *PDataTF) []byte {
	var payload []byte
	for _, pdv := range pd.PDVs {
		var header byte
		if pdv.IsCommand {
			header |= 0x01
		}
		if pdv.IsLast {
			header |= 0x02
		}
		payload = transport.PutUint32(payload, uint32(2+len(pdv.Data)))
		payload = append(payload, pdv.ContextID, header)
		payload = append(payload, pdv.Data...)
	}
	return encodePDUHeader(TypePDataTF, payload)
}
