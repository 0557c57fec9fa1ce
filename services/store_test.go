package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimse"
)

const testCTStorageSOPClass = "1.2.840.10008.5.1.4.1.1.2"

type fakeStore struct {
	mu       sync.Mutex
	received map[string]dataset.Dataset
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{received: make(map[string]dataset.Dataset)}
}

func (s *fakeStore) Put(ctx context.Context, sopClassUID, sopInstanceUID string, payload dataset.Dataset) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received[sopInstanceUID] = payload
	return nil
}

func TestStoreHandlerPersistsAndRespondsSuccess(t *testing.T) {
	scu, scp := pairedServicesFor(t, testCTStorageSOPClass)
	backend := newFakeStore()
	handler := NewStoreHandler(backend, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		msg, err := scp.Receive()
		if err != nil {
			done <- err
			return
		}
		done <- handler.Handle(context.Background(), scp, msg)
	}()

	payload := dataset.NewCommandSet().SetString(dataset.TagAffectedSOPInstanceUID, "1.2.3.4.5")
	status, err := scu.Store(testCTStorageSOPClass, "1.2.3.4.5", payload)
	require.NoError(t, err)
	assert.Equal(t, dimse.StatusSuccess, status)
	require.NoError(t, <-done)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Contains(t, backend.received, "1.2.3.4.5")
}

func TestStoreHandlerReportsBackendFailure(t *testing.T) {
	scu, scp := pairedServicesFor(t, testCTStorageSOPClass)
	backend := newFakeStore()
	backend.failWith = errors.New("disk full")
	handler := NewStoreHandler(backend, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		msg, err := scp.Receive()
		if err != nil {
			done <- err
			return
		}
		done <- handler.Handle(context.Background(), scp, msg)
	}()

	payload := dataset.NewCommandSet().SetString(dataset.TagAffectedSOPInstanceUID, "1.2.3.4.5")
	status, err := scu.Store(testCTStorageSOPClass, "1.2.3.4.5", payload)
	require.NoError(t, err)
	assert.Equal(t, dimse.StatusProcessingFailure, status)
	require.NoError(t, <-done)
}
