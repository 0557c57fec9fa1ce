// Package services provides reusable DICOM service element implementations
// and a Registry that dispatches inbound DIMSE requests to them, wired as
// a server.Handler.
//
// These implementations follow the DICOM standard and have no external
// backend dependencies of their own; a real storage or query backend is
// supplied by the caller through each Handler's own constructor.
package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meridianlabs/dicomnet/assoc"
	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimse"
)

// Handler processes one inbound DIMSE request and sends its response(s)
// over svc. It is invoked with the command already bookkept by assoc
// (duplicate/overflow checks already applied — see msg.Err).
type Handler interface {
	Handle(ctx context.Context, svc *dimse.Service, msg *assoc.Message) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, svc *dimse.Service, msg *assoc.Message) error

func (f HandlerFunc) Handle(ctx context.Context, svc *dimse.Service, msg *assoc.Message) error {
	return f(ctx, svc, msg)
}

// Registry routes incoming DIMSE requests to the Handler registered for
// their Command Field, and implements server.Handler so it can be wired
// directly into a listening Server.
type Registry struct {
	handlers map[uint16]Handler
	logger   zerolog.Logger
}

// NewRegistry returns an empty registry; RegisterHandler before serving.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{handlers: make(map[uint16]Handler), logger: logger}
}

// RegisterHandler registers handler for requestCommandField (e.g.
// dimse.CEchoRQ, dimse.CStoreRQ). Only one handler per command field;
// re-registering replaces the previous one.
func (r *Registry) RegisterHandler(requestCommandField uint16, handler Handler) {
	r.handlers[requestCommandField] = handler
}

// HasHandler reports whether a handler is registered for commandField.
func (r *Registry) HasHandler(commandField uint16) bool {
	_, ok := r.handlers[commandField]
	return ok
}

// HandleAssociation implements server.Handler: it receives requests in a
// loop for the lifetime of the association, dispatching each to its
// registered Handler, until the peer releases, aborts, or ctx is done.
// ctx is checked before each receive; a receive already blocked is not
// interrupted by cancellation.
func (r *Registry) HandleAssociation(ctx context.Context, a *assoc.Association) {
	svc := dimse.New(a, 0)
	logger := r.logger.With().Str("assoc_id", a.ID).Str("peer_aet", a.OtherAET()).Logger()

	for {
		if ctx.Err() != nil {
			a.Abort(0)
			return
		}
		msg, err := svc.Receive()
		if err != nil {
			logger.Info().Err(err).Msg("association ended")
			return
		}
		if msg.Err != nil {
			logger.Warn().Err(msg.Err).Msg("inbound message rejected by policy")
			continue
		}

		field, _ := dataset.GetUint16(msg.Command, dataset.TagCommandField)
		handler, ok := r.handlers[field]
		if !ok {
			logger.Warn().Str("command", dimse.CommandName(field)).Msg("no handler registered for command")
			continue
		}
		if err := handler.Handle(ctx, svc, msg); err != nil {
			logger.Error().Err(err).Str("command", dimse.CommandName(field)).Msg("handler failed")
		}
	}
}
