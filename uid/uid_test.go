package uid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPadAndTrimAETitle(t *testing.T) {
	padded := PadAETitle("SCU_AE")
	assert.Len(t, padded, AETitleLength)
	assert.Equal(t, "SCU_AE", TrimAETitle(padded[:]))
}

func TestPadAETitleTruncatesOverlong(t *testing.T) {
	padded := PadAETitle("THIS_AE_TITLE_IS_WAY_TOO_LONG")
	assert.Len(t, padded, AETitleLength)
	assert.Equal(t, "THIS_AE_TITLE_IS", TrimAETitle(padded[:]))
}

func TestTrimAETitleStripsNULPadding(t *testing.T) {
	raw := append([]byte("SCP_AE"), make([]byte, AETitleLength-6)...)
	assert.Equal(t, "SCP_AE", TrimAETitle(raw))
}

func TestNormalizeEvenLengthUnchanged(t *testing.T) {
	assert.Equal(t, "1.2.840.10008.1.20.1", Normalize("1.2.840.10008.1.20.1"))
}

func TestNormalizeOddLengthGetsNULPadded(t *testing.T) {
	got := Normalize("1.2.840.10008.1.2.1")
	assert.Equal(t, 20, len(got))
	assert.Equal(t, byte(0), got[len(got)-1])
}

func TestNormalizeStripsExistingPadding(t *testing.T) {
	assert.Equal(t, "1.2.3.4\x00", Normalize("1.2.3.4\x00"))
	assert.Equal(t, "1.2.3.4\x00", Normalize("1.2.3.4 "))
}

func TestNormalizeIdempotent(t *testing.T) {
	once := Normalize("1.2.840.10008.1.2.1")
	twice := Normalize(once)
	assert.Equal(t, once, twice)
}

func TestNormalizeBytes(t *testing.T) {
	assert.Equal(t, "1.2.3.4", NormalizeBytes([]byte("1.2.3.4\x00")))
	assert.Equal(t, "1.2.3.4", NormalizeBytes([]byte("1.2.3.4   ")))
}

func TestEncodeFieldAlwaysEvenLength(t *testing.T) {
	assert.Equal(t, 0, len(EncodeField(""))%2)
	assert.Equal(t, 0, len(EncodeField("1.2.3"))%2)
	assert.Equal(t, 0, len(EncodeField("1.2.3.4"))%2)
}
