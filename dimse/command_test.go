package dimse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/dicomnet/dataset"
)

func TestCommandNameKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "C-ECHO-RQ", CommandName(CEchoRQ))
	assert.Equal(t, "C-STORE-RSP", CommandName(CStoreRSP))
	assert.Equal(t, "N-DELETE-RSP", CommandName(NDeleteRSP))
	assert.Equal(t, "UNKNOWN", CommandName(0x9999))
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, StatusGroupSuccess, ClassifyStatus(StatusSuccess))
	assert.Equal(t, StatusGroupCancel, ClassifyStatus(StatusCancel))
	assert.Equal(t, StatusGroupPending, ClassifyStatus(StatusPendingNoOptionalKeys))
	assert.Equal(t, StatusGroupPending, ClassifyStatus(StatusPendingOptionalKeys))
	assert.Equal(t, StatusGroupWarning, ClassifyStatus(0xB000))
	assert.Equal(t, StatusGroupWarning, ClassifyStatus(0x0001))
	assert.Equal(t, StatusGroupFailure, ClassifyStatus(StatusRefusedOutOfResources))
}

func TestStatusGroupString(t *testing.T) {
	assert.Equal(t, "success", StatusGroupSuccess.String())
	assert.Equal(t, "pending", StatusGroupPending.String())
	assert.Equal(t, "warning", StatusGroupWarning.String())
	assert.Equal(t, "cancel", StatusGroupCancel.String())
	assert.Equal(t, "failure", StatusGroupFailure.String())
}

func TestNextMessageIDNeverReturnsZero(t *testing.T) {
	seen := make(map[uint16]bool)
	for i := 0; i < 1000; i++ {
		id := NextMessageID()
		assert.NotEqual(t, uint16(0), id)
		seen[id] = true
	}
	assert.Len(t, seen, 1000, "consecutive ids handed out by the process-wide counter must stay unique")
}

func TestBuildCommandSetsCoreFields(t *testing.T) {
	cmd := buildCommand(CEchoRQ, 7, "1.2.840.10008.1.1", false)
	field, _ := dataset.GetUint16(cmd, dataset.TagCommandField)
	assert.Equal(t, CEchoRQ, field)
	id, _ := dataset.GetUint16(cmd, dataset.TagMessageID)
	assert.Equal(t, uint16(7), id)
	sopClass := dataset.GetString(cmd, dataset.TagAffectedSOPClassUID)
	assert.Equal(t, "1.2.840.10008.1.1", sopClass)
	dsType, _ := dataset.GetUint16(cmd, dataset.TagCommandDataSetType)
	assert.Equal(t, dataset.DataSetTypeNone, dsType)
}

func TestBuildCommandWithDatasetClearsDataSetType(t *testing.T) {
	cmd := buildCommand(CStoreRQ, 1, "1.2.3", true)
	dsType, _ := dataset.GetUint16(cmd, dataset.TagCommandDataSetType)
	assert.NotEqual(t, dataset.DataSetTypeNone, dsType)
}

func TestBuildResponseSetsStatusAndCorrelation(t *testing.T) {
	resp := buildResponse(CEchoRSP, 7, "1.2.3", StatusSuccess, false)
	respTo, _ := dataset.GetUint16(resp, dataset.TagMessageIDBeingRespondedTo)
	assert.Equal(t, uint16(7), respTo)
	status, _ := dataset.GetUint16(resp, dataset.TagStatus)
	assert.Equal(t, StatusSuccess, status)
}

func TestBuildRequestedCommandSetsRequestedUIDs(t *testing.T) {
	cmd := buildRequestedCommand(NDeleteRQ, 3, "1.2.840.10008.5.1.1.1", "1.2.3", false)
	field, _ := dataset.GetUint16(cmd, dataset.TagCommandField)
	assert.Equal(t, NDeleteRQ, field)
	sopClass := dataset.GetString(cmd, dataset.TagRequestedSOPClassUID)
	assert.Equal(t, "1.2.840.10008.5.1.1.1", sopClass)
	sopInstance := dataset.GetString(cmd, dataset.TagRequestedSOPInstanceUID)
	assert.Equal(t, "1.2.3", sopInstance)
}

func TestDecodeCommandDispatchesOnCommandField(t *testing.T) {
	cmd := buildCommand(CMoveRQ, 5, "1.2.840.10008.5.1.4.1.2.2.1", true)
	cmd.SetString(dataset.TagMoveDestination, "REMOTE_AE")

	c, err := DecodeCommand(cmd)
	require.NoError(t, err)
	assert.Equal(t, CMoveRQ, c.Field)
	assert.Equal(t, "C-MOVE-RQ", c.Name())
	assert.False(t, c.IsResponse())
	assert.True(t, c.HasDataset())
	assert.Equal(t, "REMOTE_AE", c.MoveDestination)
	assert.Equal(t, uint16(5), c.MessageID)
}

func TestDecodeCommandSurfacesSubOperationCounts(t *testing.T) {
	resp := buildResponse(CGetRSP, 9, "1.2.840.10008.5.1.4.1.2.1.3", StatusPendingNoOptionalKeys, false)
	resp.SetSubOperationCounts(dataset.SubOperationCounts{Remaining: 2, Completed: 1, Failed: 0, Warning: 0})

	c, err := DecodeCommand(resp)
	require.NoError(t, err)
	assert.True(t, c.IsResponse())
	assert.Equal(t, uint16(2), c.SubOperations.Remaining)
	assert.Equal(t, uint16(1), c.SubOperations.Completed)
}

func TestDecodeCommandRejectsUnknownField(t *testing.T) {
	cmd := dataset.NewCommandSet().SetUint16(dataset.TagCommandField, 0x9999)
	_, err := DecodeCommand(cmd)
	assert.Error(t, err)
}

func TestDecodeCommandRejectsMissingField(t *testing.T) {
	cmd := dataset.NewCommandSet()
	_, err := DecodeCommand(cmd)
	assert.Error(t, err)
}
