package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meridianlabs/dicomnet/assoc"
	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimse"
)

// Store persists one received instance; callers supply their own backend
// (filesystem, object storage, a PACS database) by implementing this.
type Store interface {
	Put(ctx context.Context, sopClassUID, sopInstanceUID string, payload dataset.Dataset) error
}

// StoreHandler answers C-STORE-RQ by handing the payload to a Store and
// reporting success or failure back to the requestor, PS3.4 Annex B.
type StoreHandler struct {
	backend Store
	logger  zerolog.Logger
}

// NewStoreHandler returns a C-STORE handler backed by store.
func NewStoreHandler(store Store, logger zerolog.Logger) *StoreHandler {
	return &StoreHandler{backend: store, logger: logger}
}

func (h *StoreHandler) Handle(ctx context.Context, svc *dimse.Service, msg *assoc.Message) error {
	messageID, _ := dataset.GetUint16(msg.Command, dataset.TagMessageID)
	sopClassUID := dataset.GetString(msg.Command, dataset.TagAffectedSOPClassUID)
	sopInstanceUID := dataset.GetString(msg.Command, dataset.TagAffectedSOPInstanceUID)

	status := dimse.StatusSuccess
	if err := h.backend.Put(ctx, sopClassUID, sopInstanceUID, msg.Payload); err != nil {
		h.logger.Warn().Err(err).Str("sop_instance", sopInstanceUID).Msg("failed to store instance")
		status = dimse.StatusProcessingFailure
	}
	return svc.RespondStore(msg.AbstractSyntax, messageID, status)
}
