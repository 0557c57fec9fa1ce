package services

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/dicomnet/assoc"
	"github.com/meridianlabs/dicomnet/dimse"
	"github.com/meridianlabs/dicomnet/syntax"
)

func TestRegistryHasHandler(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	assert.False(t, r.HasHandler(dimse.CEchoRQ))
	r.RegisterHandler(dimse.CEchoRQ, NewEchoHandler())
	assert.True(t, r.HasHandler(dimse.CEchoRQ))
}

func TestRegistryDispatchesToRegisteredHandler(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	registry := NewRegistry(zerolog.Nop())
	registry.RegisterHandler(dimse.CEchoRQ, NewEchoHandler())

	scpCh := make(chan *assoc.Association, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		a, err := assoc.Accept(conn, assoc.SCPConfig{
			AET: "SCP_AE",
			SupportedContexts: []assoc.SupportedContext{
				{AbstractSyntax: syntax.VerificationSOPClass, TransferSyntaxes: []string{syntax.ImplicitVRLittleEndian}, SCURole: true},
			},
			ArtimTimeout: 5 * time.Second,
			DimseTimeout: 5 * time.Second,
		})
		if err != nil {
			return
		}
		scpCh <- a
	}()

	scuAssoc, err := assoc.Dial(ln.Addr().String(), assoc.SCUConfig{
		CallingAET:     "SCU_AE",
		CalledAET:      "SCP_AE",
		Contexts:       []assoc.ProposedContext{assoc.NewProposedContext(syntax.VerificationSOPClass, syntax.ImplicitVRLittleEndian)},
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	defer scuAssoc.Abort(0)

	var scpAssoc *assoc.Association
	select {
	case scpAssoc = <-scpCh:
	case <-time.After(5 * time.Second):
		t.Fatal("SCP side never negotiated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.HandleAssociation(ctx, scpAssoc)

	svc := dimse.New(scuAssoc, 5*time.Second)
	status, err := svc.Echo(syntax.VerificationSOPClass)
	require.NoError(t, err)
	assert.Equal(t, dimse.StatusSuccess, status)
}

func TestRegistryEndsAssociationWhenContextCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	registry := NewRegistry(zerolog.Nop())

	scpCh := make(chan *assoc.Association, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		a, err := assoc.Accept(conn, assoc.SCPConfig{
			AET:          "SCP_AE",
			ArtimTimeout: 5 * time.Second,
			DimseTimeout: 5 * time.Second,
		})
		if err != nil {
			return
		}
		scpCh <- a
	}()

	scuAssoc, err := assoc.Dial(ln.Addr().String(), assoc.SCUConfig{
		CallingAET:     "SCU_AE",
		CalledAET:      "SCP_AE",
		Contexts:       []assoc.ProposedContext{assoc.NewProposedContext(syntax.VerificationSOPClass, syntax.ImplicitVRLittleEndian)},
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	defer scuAssoc.Abort(0)

	var scpAssoc *assoc.Association
	select {
	case scpAssoc = <-scpCh:
	case <-time.After(5 * time.Second):
		t.Fatal("SCP side never negotiated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		registry.HandleAssociation(ctx, scpAssoc)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("HandleAssociation never returned after context cancellation")
	}
}
