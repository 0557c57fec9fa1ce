package dataset

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/meridianlabs/dicomnet/syntax"
)

// CommandSet is a minimal, dependency-free Dataset holding only the
// group-0000 command-set elements a DIMSE message needs. Together with
// ImplicitVRCommandCodec it is the reference codec this module ships so
// the association engine and its
// tests don't need a full DICOM dataset library wired in; a production
// deployment replaces it with a Codec backed by a real tag/VR model for
// payload datasets; command datasets, being a small fixed tag set, are
// still fine to round-trip with this one.
type CommandSet struct {
	values map[Tag]any
}

// NewCommandSet returns an empty command set ready for Set calls.
func NewCommandSet() *CommandSet {
	return &CommandSet{values: make(map[Tag]any)}
}

func (c *CommandSet) Get(tag Tag) (any, bool) {
	v, ok := c.values[tag]
	return v, ok
}

// SetString stores a UI/AE/SH-shaped element.
func (c *CommandSet) SetString(tag Tag, v string) *CommandSet {
	c.values[tag] = v
	return c
}

// SetUint16 stores a US-shaped element.
func (c *CommandSet) SetUint16(tag Tag, v uint16) *CommandSet {
	c.values[tag] = v
	return c
}

// SetUint32 stores a UL-shaped element.
func (c *CommandSet) SetUint32(tag Tag, v uint32) *CommandSet {
	c.values[tag] = v
	return c
}

// SetSubOperationCounts writes the C-GET/C-MOVE sub-operation progress
// counters onto a response command set being built.
func (c *CommandSet) SetSubOperationCounts(counts SubOperationCounts) *CommandSet {
	return c.
		SetUint16(TagNumberOfRemainingSubops, counts.Remaining).
		SetUint16(TagNumberOfCompletedSubops, counts.Completed).
		SetUint16(TagNumberOfFailedSubops, counts.Failed).
		SetUint16(TagNumberOfWarningSubops, counts.Warning)
}

// commandTagVR records the wire VR for each command-set tag this codec
// understands, since command datasets are always Implicit VR Little
// Endian and implicit VR requires a dictionary lookup to know how to lay
// out each element's value.
type commandTagVR int

const (
	vrUI commandTagVR = iota // UID string, NUL-padded to even length
	vrUS                     // uint16, 2 bytes LE
	vrUL                     // uint32, 4 bytes LE
	vrSH                     // short string, space-padded to even length
)

var knownCommandTags = map[Tag]commandTagVR{
	TagAffectedSOPClassUID:       vrUI,
	TagCommandField:              vrUS,
	TagMessageID:                 vrUS,
	TagMessageIDBeingRespondedTo: vrUS,
	TagPriority:                  vrUS,
	TagCommandDataSetType:        vrUS,
	TagStatus:                    vrUS,
	TagAffectedSOPInstanceUID:    vrUI,
	TagRequestedSOPClassUID:      vrUI,
	TagRequestedSOPInstanceUID:   vrUI,
	TagMoveDestination:           vrSH,
	TagNumberOfRemainingSubops:   vrUS,
	TagNumberOfCompletedSubops:   vrUS,
	TagNumberOfFailedSubops:      vrUS,
	TagNumberOfWarningSubops:     vrUS,
	TagEventTypeID:               vrUS,
	TagActionTypeID:              vrUS,
}

// ImplicitVRCommandCodec encodes/decodes command datasets as Implicit VR
// Little Endian element streams, per spec.md §6 ("command datasets are
// always 1.2.840.10008.1.2"). It rejects any tag outside
// knownCommandTags on encode, and skips (rather than fails on) unknown
// tags on decode, since a future DIMSE extension might add one this
// codec doesn't know about yet and the dataset it's embedded in is not
// otherwise interpreted.
type ImplicitVRCommandCodec struct{}

func (ImplicitVRCommandCodec) Encode(ds Dataset, transferSyntax string, explicitVR, bigEndian bool) ([]byte, error) {
	if transferSyntax != syntax.ImplicitVRLittleEndian {
		return nil, fmt.Errorf("dataset: command sets always use implicit VR little endian, got %q", transferSyntax)
	}
	cs, ok := ds.(*CommandSet)
	if !ok {
		return nil, fmt.Errorf("dataset: ImplicitVRCommandCodec only encodes *CommandSet")
	}
	tags := make([]Tag, 0, len(cs.values))
	for tag := range cs.values {
		if _, known := knownCommandTags[tag]; !known {
			return nil, fmt.Errorf("dataset: %s is not a known command-set tag", tag)
		}
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Group != tags[j].Group {
			return tags[i].Group < tags[j].Group
		}
		return tags[i].Element < tags[j].Element
	})

	var buf []byte
	for _, tag := range tags {
		elem, err := encodeElement(tag, knownCommandTags[tag], cs.values[tag])
		if err != nil {
			return nil, err
		}
		buf = append(buf, elem...)
	}
	return buf, nil
}

func encodeElement(tag Tag, vr commandTagVR, v any) ([]byte, error) {
	var value []byte
	switch vr {
	case vrUI, vrSH:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("dataset: %s expected string value, got %T", tag, v)
		}
		value = []byte(s)
		if len(value)%2 != 0 {
			pad := byte(0)
			if vr == vrSH {
				pad = ' '
			}
			value = append(value, pad)
		}
	case vrUS:
		u, ok := v.(uint16)
		if !ok {
			return nil, fmt.Errorf("dataset: %s expected uint16 value, got %T", tag, v)
		}
		value = make([]byte, 2)
		binary.LittleEndian.PutUint16(value, u)
	case vrUL:
		u, ok := v.(uint32)
		if !ok {
			return nil, fmt.Errorf("dataset: %s expected uint32 value, got %T", tag, v)
		}
		value = make([]byte, 4)
		binary.LittleEndian.PutUint32(value, u)
	}
	header := make([]byte, 8)
	binary.LittleEndian.PutUint16(header[0:2], tag.Group)
	binary.LittleEndian.PutUint16(header[2:4], tag.Element)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(value)))
	return append(header, value...), nil
}

func (ImplicitVRCommandCodec) Decode(data []byte, transferSyntax string) (Dataset, error) {
	if transferSyntax != syntax.ImplicitVRLittleEndian {
		return nil, fmt.Errorf("dataset: command sets always use implicit VR little endian, got %q", transferSyntax)
	}
	cs := NewCommandSet()
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("dataset: truncated command element header")
		}
		tag := Tag{
			Group:   binary.LittleEndian.Uint16(data[0:2]),
			Element: binary.LittleEndian.Uint16(data[2:4]),
		}
		length := binary.LittleEndian.Uint32(data[4:8])
		data = data[8:]
		if uint32(len(data)) < length {
			return nil, fmt.Errorf("dataset: truncated command element value for %s", tag)
		}
		value := data[:length]
		data = data[length:]

		vr, known := knownCommandTags[tag]
		if !known {
			continue // forward-compatible: ignore elements this codec doesn't model
		}
		switch vr {
		case vrUI:
			cs.SetString(tag, trimUI(value))
		case vrSH:
			cs.SetString(tag, trimSH(value))
		case vrUS:
			if len(value) != 2 {
				return nil, fmt.Errorf("dataset: %s expected 2-byte US value, got %d", tag, len(value))
			}
			cs.SetUint16(tag, binary.LittleEndian.Uint16(value))
		case vrUL:
			if len(value) != 4 {
				return nil, fmt.Errorf("dataset: %s expected 4-byte UL value, got %d", tag, len(value))
			}
			cs.SetUint32(tag, binary.LittleEndian.Uint32(value))
		}
	}
	return cs, nil
}

func trimUI(b []byte) string {
	for len(b) > 0 && (b[len(b)-1] == 0 || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return string(b)
}

func trimSH(b []byte) string { return trimUI(b) }
