package client

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/dicomnet/assoc"
	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimse"
	"github.com/meridianlabs/dicomnet/syntax"
)

// scpEcho runs one SCP-side accept loop on ln, responding to every
// C-ECHO-RQ it receives with the given status, until the listener closes.
func scpEcho(t *testing.T, ln net.Listener, abstractSyntax string, status uint16) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		a, err := assoc.Accept(conn, assoc.SCPConfig{
			AET: "SCP_AE",
			SupportedContexts: []assoc.SupportedContext{
				{AbstractSyntax: abstractSyntax, TransferSyntaxes: []string{syntax.ImplicitVRLittleEndian}, SCURole: true},
			},
			ArtimTimeout: 5 * time.Second,
			DimseTimeout: 5 * time.Second,
		})
		if err != nil {
			return
		}
		svc := dimse.New(a, 5*time.Second)
		msg, err := svc.Receive()
		if err != nil {
			return
		}
		msgID, _ := dataset.GetUint16(msg.Command, dataset.TagMessageID)
		svc.RespondEcho(abstractSyntax, msgID, status)
	}()
}

func TestClientEchoSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	scpEcho(t, ln, syntax.VerificationSOPClass, dimse.StatusSuccess)

	c := New(Config{
		CallingAET:     "SCU_AE",
		CalledAET:      "SCP_AE",
		Address:        ln.Addr().String(),
		ConnectTimeout: 5 * time.Second,
		DimseTimeout:   5 * time.Second,
	})

	status, err := c.Echo()
	require.NoError(t, err)
	assert.Equal(t, dimse.StatusSuccess, status)
}

func TestClientStoreRoundTrip(t *testing.T) {
	const abstractSyntax = "1.2.840.10008.5.1.4.1.1.7"
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		a, err := assoc.Accept(conn, assoc.SCPConfig{
			AET: "SCP_AE",
			SupportedContexts: []assoc.SupportedContext{
				{AbstractSyntax: abstractSyntax, TransferSyntaxes: []string{syntax.ImplicitVRLittleEndian}, SCURole: true},
			},
			ArtimTimeout: 5 * time.Second,
			DimseTimeout: 5 * time.Second,
		})
		if err != nil {
			return
		}
		svc := dimse.New(a, 5*time.Second)
		msg, err := svc.Receive()
		if err != nil {
			return
		}
		msgID, _ := dataset.GetUint16(msg.Command, dataset.TagMessageID)
		svc.RespondStore(abstractSyntax, msgID, dimse.StatusSuccess)
	}()

	c := New(Config{
		CallingAET:     "SCU_AE",
		CalledAET:      "SCP_AE",
		Address:        ln.Addr().String(),
		ConnectTimeout: 5 * time.Second,
		DimseTimeout:   5 * time.Second,
	})

	payload := dataset.NewCommandSet().SetString(dataset.TagAffectedSOPInstanceUID, "1.2.3.4")
	status, err := c.Store(abstractSyntax, syntax.ImplicitVRLittleEndian, "1.2.3.4", payload)
	require.NoError(t, err)
	assert.Equal(t, dimse.StatusSuccess, status)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SCP side never finished")
	}
}

func TestClientEchoConnectFailureIsReported(t *testing.T) {
	c := New(Config{
		CallingAET:     "SCU_AE",
		CalledAET:      "SCP_AE",
		Address:        "127.0.0.1:1",
		ConnectTimeout: 200 * time.Millisecond,
		DimseTimeout:   time.Second,
	})
	_, err := c.Echo()
	assert.Error(t, err)
}

func TestClientDialReturnsUnreleasedAssociation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	scpEcho(t, ln, syntax.VerificationSOPClass, dimse.StatusSuccess)

	c := New(Config{
		CallingAET:     "SCU_AE",
		CalledAET:      "SCP_AE",
		Address:        ln.Addr().String(),
		ConnectTimeout: 5 * time.Second,
		DimseTimeout:   5 * time.Second,
	})

	a, err := c.Dial([]assoc.ProposedContext{assoc.NewProposedContext(syntax.VerificationSOPClass, syntax.ImplicitVRLittleEndian)})
	require.NoError(t, err)
	defer a.Abort(0)

	assert.Len(t, a.Contexts(), 1)
}
