// Package uid implements the wire encoding rules for the two string types
// that appear throughout the Upper Layer protocol: AE titles and UIDs.
package uid

import "strings"

// AETitleLength is the fixed wire width of an AE title field.
const AETitleLength = 16

// PadAETitle right-pads an AE title with spaces to AETitleLength bytes,
// truncating if the caller supplied something longer than the wire allows.
func PadAETitle(title string) [AETitleLength]byte {
	var out [AETitleLength]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[:], title)
	return out
}

// TrimAETitle strips the space/NUL padding applied by PadAETitle. Some
// peers terminate the title early with a NUL rather than space-padding it,
// so both are stripped from both ends.
func TrimAETitle(raw []byte) string {
	return strings.Trim(string(raw), " \x00")
}

// Normalize applies the UID wire encoding rule from spec.md §3: strip any
// trailing NUL/space padding, then re-pad with a single trailing NUL if the
// resulting length is odd. Idempotent.
func Normalize(raw string) string {
	trimmed := strings.TrimRight(raw, "\x00 ")
	if len(trimmed)%2 != 0 {
		return trimmed + "\x00"
	}
	return trimmed
}

// NormalizeBytes decodes a wire-encoded UID value (arbitrary trailing
// padding) into its canonical string form.
func NormalizeBytes(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}

// EncodeField returns the wire bytes for a UID value: normalized, then
// padded with a further trailing NUL only if normalization left it odd
// (Normalize already guarantees evenness, so this is mostly a cast, kept
// separate so callers never have to remember the invariant themselves).
func EncodeField(raw string) []byte {
	return []byte(Normalize(raw))
}
