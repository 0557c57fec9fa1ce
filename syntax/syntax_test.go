package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferSyntaxInfoForKnown(t *testing.T) {
	info := TransferSyntaxInfoFor(JPEGBaseline8Bit)
	assert.Equal(t, "JPEG Baseline (Process 1)", info.Name)
	assert.True(t, info.IsCompressed)
	assert.False(t, info.IsLossless)
}

func TestTransferSyntaxInfoForUnknown(t *testing.T) {
	info := TransferSyntaxInfoFor("1.2.3.4.5.6")
	assert.Equal(t, "unknown", info.Name)
	assert.True(t, info.IsLossless)
	assert.False(t, info.IsCompressed)
}

func TestIsCompressedIsLosslessIsRetired(t *testing.T) {
	assert.False(t, IsCompressed(ImplicitVRLittleEndian))
	assert.True(t, IsLossless(ImplicitVRLittleEndian))
	assert.False(t, IsRetired(ImplicitVRLittleEndian))

	assert.True(t, IsCompressed(JPEG2000))
	assert.False(t, IsLossless(JPEG2000))

	assert.True(t, IsRetired(ExplicitVRBigEndian))
}

func TestDefaultTransferSyntaxesPrefersExplicit(t *testing.T) {
	got := DefaultTransferSyntaxes()
	assert.Equal(t, []string{ExplicitVRLittleEndian, ImplicitVRLittleEndian}, got)
}

func TestNegotiateTransferSyntaxPicksFirstProposedMatch(t *testing.T) {
	proposed := []string{JPEG2000Lossless, ExplicitVRLittleEndian, ImplicitVRLittleEndian}
	supported := []string{ImplicitVRLittleEndian, ExplicitVRLittleEndian}

	uid, ok := NegotiateTransferSyntax(proposed, supported)
	assert.True(t, ok)
	assert.Equal(t, ExplicitVRLittleEndian, uid)
}

func TestNegotiateTransferSyntaxNoMatch(t *testing.T) {
	_, ok := NegotiateTransferSyntax([]string{JPEG2000}, []string{ImplicitVRLittleEndian})
	assert.False(t, ok)
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryVerification, CategoryOf(VerificationSOPClass))
	assert.Equal(t, CategoryStorage, CategoryOf(CTImageStorage))
	assert.Equal(t, CategoryQueryRetrieve, CategoryOf(StudyRootQueryRetrieveInformationModelGet))
	assert.Equal(t, CategoryWorklist, CategoryOf(ModalityWorklistInformationModelFind))
	assert.Equal(t, CategoryMPPS, CategoryOf(ModalityPerformedProcedureStepSOPClass))
	assert.Equal(t, CategoryStorageCommit, CategoryOf(StorageCommitmentPushModelSOPClass))
	assert.Equal(t, CategoryUnknown, CategoryOf("1.2.3.4.5.6"))
}

func TestIsStorageAndQueryRetrieveSOPClass(t *testing.T) {
	assert.True(t, IsStorageSOPClass(MRImageStorage))
	assert.False(t, IsStorageSOPClass(VerificationSOPClass))

	assert.True(t, IsQueryRetrieveSOPClass(PatientRootQueryRetrieveInformationModelMove))
	assert.False(t, IsQueryRetrieveSOPClass(CTImageStorage))
}

func TestDefaultSCURole(t *testing.T) {
	assert.True(t, DefaultSCURole(StudyRootQueryRetrieveInformationModelGet))
	assert.True(t, DefaultSCURole(StorageCommitmentPushModelSOPClass))
	assert.False(t, DefaultSCURole(CTImageStorage))
	assert.False(t, DefaultSCURole(VerificationSOPClass))
}
