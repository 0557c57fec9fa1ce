package services

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/dicomnet/assoc"
	"github.com/meridianlabs/dicomnet/dimse"
	"github.com/meridianlabs/dicomnet/syntax"
)

// pairedServicesFor negotiates a real loopback association for
// abstractSyntax and wraps both ends in a dimse.Service, for tests that
// exercise a Handler against a real wire round trip.
func pairedServicesFor(t *testing.T, abstractSyntax string) (scu, scp *dimse.Service) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	scpCh := make(chan *assoc.Association, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- err
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
			errCh <- err
			return
		}
		scpCh <- a
	}()

	scuAssoc, err := assoc.Dial(ln.Addr().String(), assoc.SCUConfig{
		CallingAET:     "SCU_AE",
		CalledAET:      "SCP_AE",
		Contexts:       []assoc.ProposedContext{assoc.NewProposedContext(abstractSyntax, syntax.ImplicitVRLittleEndian)},
		ConnectTimeout: 5 * time.Second,
		DimseTimeout:   5 * time.Second,
	})
	require.NoError(t, err)

	var scpAssoc *assoc.Association
	select {
	case scpAssoc = <-scpCh:
	case err := <-errCh:
		t.Fatalf("accept side failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for SCP side to negotiate")
	}

	t.Cleanup(func() { scuAssoc.Abort(0); scpAssoc.Abort(0) })
	return dimse.New(scuAssoc, 2*time.Second), dimse.New(scpAssoc, 2*time.Second)
}
