// Package dataset defines the boundary between this module and DICOM
// dataset (tag/VR/value) parsing, which is deliberately kept external.
// The core only needs to round-trip byte sequences under a named
// transfer syntax and to read/write the small set of command-set tags
// used for DIMSE correlation; everything else about a dataset's content
// is opaque to it.
//
// Production callers wire in a full dataset library (this module was
// built against github.com/suyashkumar/dicom's tag/VR model as the
// intended implementation) by implementing Codec. CommandSet and
// ImplicitVRCommandCodec (commandset.go) are a minimal, dependency-free
// Dataset and Codec sufficient for encoding and decoding DIMSE command
// datasets; they do not understand payload datasets.
package dataset

import "fmt"

// Tag identifies a data element by (group, element), DICOM PS3.5 §7.1.
type Tag struct {
	Group, Element uint16
}

func (t Tag) String() string { return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element) }

// Command-set tags consumed by the DIMSE layer, spec.md §6.
var (
	TagAffectedSOPClassUID           = Tag{0x0000, 0x0002}
	TagCommandField                  = Tag{0x0000, 0x0100}
	TagMessageID                     = Tag{0x0000, 0x0110}
	TagMessageIDBeingRespondedTo     = Tag{0x0000, 0x0120}
	TagPriority                      = Tag{0x0000, 0x0700}
	TagCommandDataSetType            = Tag{0x0000, 0x0800}
	TagStatus                        = Tag{0x0000, 0x0900}
	TagAffectedSOPInstanceUID        = Tag{0x0000, 0x1000}
	TagRequestedSOPClassUID          = Tag{0x0000, 0x0003}
	TagRequestedSOPInstanceUID       = Tag{0x0000, 0x1001}
	TagMoveDestination               = Tag{0x0000, 0x0600}
	TagNumberOfRemainingSubops       = Tag{0x0000, 0x1020}
	TagNumberOfCompletedSubops       = Tag{0x0000, 0x1021}
	TagNumberOfFailedSubops          = Tag{0x0000, 0x1022}
	TagNumberOfWarningSubops         = Tag{0x0000, 0x1023}
	TagEventTypeID                   = Tag{0x0000, 0x1002}
	TagActionTypeID                  = Tag{0x0000, 0x1008}
)

// DataSetTypeNone is the Command Data-Set Type value meaning "no dataset
// follows the command" (spec.md §6).
const DataSetTypeNone uint16 = 0x0101

// Dataset is an opaque bag of data elements. The core only ever needs to
// look elements up by tag; it never needs to enumerate VRs, build
// sequences, or otherwise understand dataset content beyond the handful
// of command-set tags above.
type Dataset interface {
	// Get returns the decoded value for tag: a string for UI/AE/SH-shaped
	// elements, a uint16 for US, a uint32 for UL. ok is false if the tag
	// is absent.
	Get(tag Tag) (value any, ok bool)
}

// Codec round-trips a Dataset to/from wire bytes under a named transfer
// syntax. explicitVR and bigEndian are derived by the caller from the
// transfer syntax UID per spec.md §6 (explicit iff not
// "1.2.840.10008.1.2"; big-endian iff "1.2.840.10008.1.2.2") so a codec
// that already branches on those booleans doesn't need to special-case
// UIDs itself.
type Codec interface {
	Encode(ds Dataset, transferSyntax string, explicitVR, bigEndian bool) ([]byte, error)
	Decode(data []byte, transferSyntax string) (Dataset, error)
}

// GetString reads a string-valued element, returning "" if absent or not
// a string.
func GetString(ds Dataset, tag Tag) string {
	v, ok := ds.Get(tag)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetUint16 reads a US-valued element, returning (0, false) if absent or
// not a uint16.
func GetUint16(ds Dataset, tag Tag) (uint16, bool) {
	v, ok := ds.Get(tag)
	if !ok {
		return 0, false
	}
	u, ok := v.(uint16)
	return u, ok
}

// GetUint32 reads a UL-valued element, returning (0, false) if absent or
// not a uint32.
func GetUint32(ds Dataset, tag Tag) (uint32, bool) {
	v, ok := ds.Get(tag)
	if !ok {
		return 0, false
	}
	u, ok := v.(uint32)
	return u, ok
}

// SubOperationCounts holds the C-GET/C-MOVE sub-operation progress
// counters carried on pending and final responses, spec.md §4.6.
type SubOperationCounts struct {
	Remaining uint16
	Completed uint16
	Failed    uint16
	Warning   uint16
}

// GetSubOperationCounts reads the sub-operation counters off a C-GET/
// C-MOVE response dataset. A counter absent on the wire reads as zero.
func GetSubOperationCounts(ds Dataset) SubOperationCounts {
	remaining, _ := GetUint16(ds, TagNumberOfRemainingSubops)
	completed, _ := GetUint16(ds, TagNumberOfCompletedSubops)
	failed, _ := GetUint16(ds, TagNumberOfFailedSubops)
	warning, _ := GetUint16(ds, TagNumberOfWarningSubops)
	return SubOperationCounts{Remaining: remaining, Completed: completed, Failed: failed, Warning: warning}
}
