// Package server provides a reusable SCP listener that negotiates
// associations via assoc.Accept and hands each one to a Handler.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianlabs/dicomnet/assoc"
)

// Handler processes one negotiated association until it terminates. It
// is responsible for calling Receive in a loop, dispatching DIMSE
// messages, and eventually releasing or aborting the association.
type Handler interface {
	HandleAssociation(ctx context.Context, a *assoc.Association)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, a *assoc.Association)

func (f HandlerFunc) HandleAssociation(ctx context.Context, a *assoc.Association) { f(ctx, a) }

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.Logger = logger }
}

// WithReadTimeout sets the per-connection socket read timeout applied
// before negotiation begins (the ARTIM timeout, separately configurable
// via WithAssocConfig, governs the wait for the first PDU specifically).
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.ReadTimeout = timeout }
}

// WithWriteTimeout sets the per-connection socket write timeout.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.WriteTimeout = timeout }
}

// WithAssocConfig overrides the SCPConfig template used to negotiate each
// inbound connection (AET, supported contexts, PDU/ops-window limits are
// all set here; AET must be non-empty for the server to do anything
// useful).
func WithAssocConfig(cfg assoc.SCPConfig) Option {
	return func(s *Server) { s.AssocConfig = cfg }
}

// Server listens for TCP connections and negotiates each one as an SCP
// association before handing it to Handler.
type Server struct {
	AssocConfig  assoc.SCPConfig
	Handler      Handler
	Logger       zerolog.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New builds a Server for aeTitle, applying opts in order.
func New(aeTitle string, handler Handler, opts ...Option) *Server {
	srv := &Server{Handler: handler}
	srv.AssocConfig.AET = aeTitle
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// ListenAndServe listens on address and serves until ctx is cancelled or
// an unrecoverable accept error occurs.
func ListenAndServe(ctx context.Context, address, aeTitle string, handler Handler, opts ...Option) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	defer listener.Close()

	srv := New(aeTitle, handler, opts...)
	return srv.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled or an
// unrecoverable error occurs, waiting for all in-flight associations to
// finish before returning.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("dicomnet: listener is required")
	}
	if s.Handler == nil {
		return errors.New("dicomnet: handler is required")
	}
	if s.AssocConfig.AET == "" {
		return errors.New("dicomnet: AE title is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.Logger.Info().Str("address", listener.Addr().String()).Str("ae_title", s.AssocConfig.AET).Msg("listening for associations")

	var (
		wg       sync.WaitGroup
		serveErr error
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.Logger.Warn().Err(err).Msg("accept timeout, retrying")
				continue
			}
			serveErr = err
			break
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}

	wg.Wait()

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	logger := s.Logger.With().Str("remote_addr", conn.RemoteAddr().String()).Logger()
	logger.Info().Msg("accepted connection")

	if s.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	}
	if s.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}

	cfg := s.AssocConfig
	cfg.Logger = logger
	a, err := assoc.Accept(conn, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("association negotiation failed")
		return
	}

	s.Handler.HandleAssociation(ctx, a)
	logger.Info().Msg("association handler returned")
}
