// Package client is a thin SCU convenience wrapper over assoc.Dial and
// dimse.Service for the common case of one request per association.
package client

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianlabs/dicomnet/assoc"
	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimse"
	"github.com/meridianlabs/dicomnet/syntax"
)

// Config collects the parameters needed to open an association and run
// DIMSE operations over it.
type Config struct {
	CallingAET string
	CalledAET  string
	Address    string

	ConnectTimeout time.Duration
	DimseTimeout   time.Duration

	Codec   dataset.Codec
	Metrics *assoc.Metrics
	Logger  zerolog.Logger
}

// Client opens short-lived associations against one SCP.
type Client struct {
	cfg Config
}

// New returns a Client for cfg.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Echo verifies connectivity with the peer using the Verification SOP
// class, opening and releasing its own association.
func (c *Client) Echo() (uint16, error) {
	a, err := c.dial([]assoc.ProposedContext{
		assoc.NewProposedContext(syntax.VerificationSOPClass, syntax.DefaultTransferSyntaxes()...),
	})
	if err != nil {
		return 0, err
	}
	defer a.Release()

	svc := dimse.New(a, c.cfg.DimseTimeout)
	return svc.Echo(syntax.VerificationSOPClass)
}

// Store sends one instance under abstractSyntax/transferSyntax to the
// peer, opening and releasing its own association.
func (c *Client) Store(abstractSyntax, transferSyntax, sopInstanceUID string, payload dataset.Dataset) (uint16, error) {
	a, err := c.dial([]assoc.ProposedContext{
		assoc.NewProposedContext(abstractSyntax, transferSyntax),
	})
	if err != nil {
		return 0, err
	}
	defer a.Release()

	svc := dimse.New(a, c.cfg.DimseTimeout)
	return svc.Store(abstractSyntax, sopInstanceUID, payload)
}

// Find runs a C-FIND against abstractSyntax, invoking onResult for every
// response, opening and releasing its own association.
func (c *Client) Find(abstractSyntax, transferSyntax string, identifier dataset.Dataset, onResult func(status uint16, identifier dataset.Dataset) error) error {
	a, err := c.dial([]assoc.ProposedContext{
		assoc.NewProposedContext(abstractSyntax, transferSyntax),
	})
	if err != nil {
		return err
	}
	defer a.Release()

	svc := dimse.New(a, c.cfg.DimseTimeout)
	return svc.Find(abstractSyntax, identifier, onResult)
}

// Dial opens an association proposing contexts and returns it
// unreleased, for callers that need to run more than one operation (or
// handle C-GET sub-operations) on the same association.
func (c *Client) Dial(contexts []assoc.ProposedContext) (*assoc.Association, error) {
	return c.dial(contexts)
}

func (c *Client) dial(contexts []assoc.ProposedContext) (*assoc.Association, error) {
	scuCfg := assoc.SCUConfig{
		CallingAET:     c.cfg.CallingAET,
		CalledAET:      c.cfg.CalledAET,
		Contexts:       contexts,
		ConnectTimeout: c.cfg.ConnectTimeout,
		DimseTimeout:   c.cfg.DimseTimeout,
		Codec:          c.cfg.Codec,
		Metrics:        c.cfg.Metrics,
		Logger:         c.cfg.Logger,
	}
	return assoc.Dial(c.cfg.Address, scuCfg)
}
