package assoc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/dicomnet/syntax"
)

func TestEffectiveOpsWindow(t *testing.T) {
	tests := []struct {
		name        string
		local, peer uint32
		want        uint32
	}{
		{"both unlimited", 0, 0, 0},
		{"local unlimited, peer limited", 0, 5, 0},
		{"local limited, peer unlimited", 5, 0, 5},
		{"local smaller wins", 3, 7, 3},
		{"peer smaller wins", 9, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, effectiveOpsWindow(tt.local, tt.peer))
		})
	}
}

func TestEffectiveMaxPDULength(t *testing.T) {
	tests := []struct {
		name        string
		local, peer uint32
		want        uint32
	}{
		{"both zero", 0, 0, 0},
		{"local zero uses peer", 0, 16384, 16384},
		{"peer zero uses local", 16384, 0, 16384},
		{"smaller wins", 16384, 8192, 8192},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, effectiveMaxPDULength(tt.local, tt.peer))
		})
	}
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "scu", RoleSCU.String())
	assert.Equal(t, "scp", RoleSCP.String())
}

// listenAndDial starts an SCP on a loopback listener and returns a
// connected SCU association alongside the accepted SCP association, for
// tests that need a fully negotiated pair without a real network.
func listenAndDial(t *testing.T, scuContexts []ProposedContext, scpSupported []SupportedContext) (scu, scp *Association) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	scpCh := make(chan *Association, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		a, err := Accept(conn, SCPConfig{
			AET:               "SCP_AE",
			SupportedContexts: scpSupported,
			ArtimTimeout:      5 * time.Second,
			DimseTimeout:      5 * time.Second,
		})
		if err != nil {
			errCh <- err
			return
		}
		scpCh <- a
	}()

	scu, err = Dial(ln.Addr().String(), SCUConfig{
		CallingAET:     "SCU_AE",
		CalledAET:      "SCP_AE",
		Contexts:       scuContexts,
		ConnectTimeout: 5 * time.Second,
		DimseTimeout:   5 * time.Second,
	})
	require.NoError(t, err)

	select {
	case scp = <-scpCh:
	case err := <-errCh:
		t.Fatalf("accept side failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for SCP side to negotiate")
	}
	t.Cleanup(func() { scu.Abort(0); scp.Abort(0) })
	return scu, scp
}

func TestNegotiationAcceptsProposedContext(t *testing.T) {
	scu, scp := listenAndDial(t,
		[]ProposedContext{NewProposedContext(syntax.VerificationSOPClass, syntax.DefaultTransferSyntaxes()...)},
		[]SupportedContext{{AbstractSyntax: syntax.VerificationSOPClass, TransferSyntaxes: syntax.DefaultTransferSyntaxes(), SCURole: true}},
	)

	require.Len(t, scu.Contexts(), 1)
	require.Len(t, scp.Contexts(), 1)
	assert.Equal(t, "SCP_AE", scu.OtherAET())
	assert.Equal(t, "SCU_AE", scp.OtherAET())
	assert.Equal(t, RoleSCU, scu.Role())
	assert.Equal(t, RoleSCP, scp.Role())
}

func TestNegotiationRejectsUnknownAbstractSyntax(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		Accept(conn, SCPConfig{
			AET:          "SCP_AE",
			ArtimTimeout: 5 * time.Second,
		})
	}()

	scu, err := Dial(ln.Addr().String(), SCUConfig{
		CallingAET:     "SCU_AE",
		CalledAET:      "SCP_AE",
		Contexts:       []ProposedContext{NewProposedContext(syntax.CTImageStorage, syntax.ImplicitVRLittleEndian)},
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	defer scu.Abort(0)

	assert.Empty(t, scu.Contexts())
}

func TestNegotiationRejectsWrongAET(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		_, err = Accept(conn, SCPConfig{AET: "OTHER_AE", ArtimTimeout: 5 * time.Second})
		acceptErr <- err
	}()

	_, err = Dial(ln.Addr().String(), SCUConfig{
		CallingAET:     "SCU_AE",
		CalledAET:      "SCP_AE",
		Contexts:       []ProposedContext{NewProposedContext(syntax.VerificationSOPClass, syntax.ImplicitVRLittleEndian)},
		ConnectTimeout: 5 * time.Second,
	})
	assert.Error(t, err)

	select {
	case err := <-acceptErr:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("accept side never returned")
	}
}
