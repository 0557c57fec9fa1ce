package services

import (
	"context"

	"github.com/meridianlabs/dicomnet/assoc"
	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimse"
	"github.com/meridianlabs/dicomnet/syntax"
)

// EchoHandler answers C-ECHO-RQ with a success C-ECHO-RSP. It is
// stateless: connectivity verification needs nothing beyond echoing the
// request's message ID back with a success status, PS3.4 Annex A.
type EchoHandler struct{}

// NewEchoHandler returns a stateless C-ECHO handler.
func NewEchoHandler() *EchoHandler { return &EchoHandler{} }

func (EchoHandler) Handle(ctx context.Context, svc *dimse.Service, msg *assoc.Message) error {
	messageID, _ := dataset.GetUint16(msg.Command, dataset.TagMessageID)
	return svc.RespondEcho(syntax.VerificationSOPClass, messageID, dimse.StatusSuccess)
}
