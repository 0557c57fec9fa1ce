package assoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimerr"
	"github.com/meridianlabs/dicomnet/dimse"
	"github.com/meridianlabs/dicomnet/reassemble"
	"github.com/meridianlabs/dicomnet/syntax"
)

// encodeCommand builds the wire bytes for a C-STORE-RQ expecting a payload,
// for tests that drive deliverResult directly without a real peer.
func encodeCommand(t *testing.T, messageID uint16) []byte {
	t.Helper()
	cs := dataset.NewCommandSet().
		SetString(dataset.TagAffectedSOPClassUID, syntax.CTImageStorage).
		SetUint16(dataset.TagCommandField, dimse.CStoreRQ).
		SetUint16(dataset.TagMessageID, messageID).
		SetUint16(dataset.TagPriority, 0).
		SetUint16(dataset.TagCommandDataSetType, 1). // anything != DataSetTypeNone
		SetString(dataset.TagAffectedSOPInstanceUID, "1.2.3.4")
	data, err := dataset.ImplicitVRCommandCodec{}.Encode(cs, syntax.ImplicitVRLittleEndian, false, false)
	require.NoError(t, err)
	return data
}

func TestDeliverResultAbortsOnCommandWhileInFlight(t *testing.T) {
	scu, scp := listenAndDial(t,
		[]ProposedContext{NewProposedContext(syntax.CTImageStorage, syntax.ImplicitVRLittleEndian)},
		[]SupportedContext{{AbstractSyntax: syntax.CTImageStorage, TransferSyntaxes: []string{syntax.ImplicitVRLittleEndian}, SCPRole: true}},
	)
	_ = scu

	contexts := scp.Contexts()
	require.Len(t, contexts, 1)
	var ctxID byte
	for id := range contexts {
		ctxID = id
	}

	err := scp.deliverResult(&reassemble.Result{ContextID: ctxID, IsCommand: true, Data: encodeCommand(t, 1)})
	require.NoError(t, err)
	require.NotNil(t, scp.inFlight)

	err = scp.deliverResult(&reassemble.Result{ContextID: ctxID, IsCommand: true, Data: encodeCommand(t, 2)})
	assert.ErrorIs(t, err, dimerr.UnexpectedCommand)
}
