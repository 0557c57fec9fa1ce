package dimerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorruptedMessageUnwrap(t *testing.T) {
	cause := errors.New("short read")
	err := NewCorrupted("truncated item", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "truncated item")
	assert.Contains(t, err.Error(), "short read")
}

func TestCorruptedMessageWithoutCause(t *testing.T) {
	err := NewCorrupted("bad protocol version", nil)
	assert.Equal(t, "dimerr: corrupted message: bad protocol version", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestAbortedUnwrapsToStreamClosed(t *testing.T) {
	err := &Aborted{Source: AbortSourceServiceProvider, Reason: AbortReasonUnexpectedPDU}
	require.ErrorIs(t, err, StreamClosed)
	assert.Contains(t, err.Error(), "service-provider")
}

func TestAssociationRejectedMessage(t *testing.T) {
	err := &AssociationRejected{
		Permanent: true,
		Source:    RejectSourceServiceUser,
		Reason:    ReasonCalledAETitleNotRecognized,
	}
	assert.Contains(t, err.Error(), "permanent")
	assert.Contains(t, err.Error(), "called-ae-title-not-recognized")
}

func TestRejectReasonStringUnrecognized(t *testing.T) {
	var r RejectReason = 0xEE
	assert.Equal(t, "unrecognized", r.String(RejectSourceServiceUser))
}

func TestRejectSourceString(t *testing.T) {
	tests := []struct {
		source RejectSource
		want   string
	}{
		{RejectSourceServiceUser, "service-user"},
		{RejectSourceServiceProviderACSE, "service-provider-acse"},
		{RejectSourceServiceProviderPresentation, "service-provider-presentation"},
		{RejectSource(0xFF), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.source.String())
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		StreamClosed, NoTransferSyntax, PresentationContextNotRequested,
		WrongRole, WrongCommandID, WrongResponseID,
		TooManyOperationsInvoked, TooManyOperationsPerformed, DimseTimeout,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "sentinel %v should not match %v", a, b)
		}
	}
}
