// Package assoc implements the Upper Layer association state machine:
// negotiation (SCU and SCP sides), message send/receive, the background
// reader, and release/abort — spec.md §4.4.
package assoc

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/reassemble"
	"github.com/meridianlabs/dicomnet/transport"
)

// Role is which side of the association this process plays.
type Role int

const (
	RoleSCU Role = iota
	RoleSCP
)

func (r Role) String() string {
	if r == RoleSCP {
		return "scp"
	}
	return "scu"
}

// AcceptedContext is one negotiated presentation context: the wire id,
// abstract syntax, the transfer syntax both sides agreed on, and the
// resolved SCU/SCP roles for messages carried on it.
type AcceptedContext struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
	// RequestorIsSCU/RequestorIsSCP describe the role of whichever side
	// originally proposed this context (the association requestor), per
	// spec.md §3. On the requestor's own Association these match Role;
	// on the acceptor's Association they describe the peer.
	RequestorIsSCU bool
	RequestorIsSCP bool
}

// Message is a fully reassembled association-level message: a required
// command dataset plus an optional payload dataset, per spec.md §3's
// "deliverable" invariant.
type Message struct {
	AbstractSyntax string
	Command        dataset.Dataset
	Payload        dataset.Dataset

	// Err is set when the message was accepted onto the ready queue
	// despite a local policy violation discovered while receiving it
	// (duplicate/unexpected id, operation-window overflow) — per
	// spec.md §7, these are reported to the consumer without tearing
	// down the association. The caller (dimse layer) surfaces Err
	// instead of treating the message as deliverable.
	Err error
}

// Association is one negotiated UL connection. All exported methods are
// safe for concurrent use by multiple application goroutines; there is
// exactly one background reader goroutine per Association (started by
// the negotiation that created it).
type Association struct {
	ID string

	role      Role
	thisAET   string
	otherAET  string
	transport *transport.Transport
	codec     dataset.Codec
	metrics   *Metrics
	logger    zerolog.Logger

	maxPDULength    uint32
	maxOpsInvoked   uint32
	maxOpsPerformed uint32
	dimseTimeout    time.Duration
	permissive      bool

	contexts   map[byte]AcceptedContext
	byAbstract map[string][]byte // abstract syntax -> context ids proposing it, in negotiation order

	writeMu sync.Mutex

	cwMu       sync.Mutex
	waiting    map[uint16]bool // SCU-side: request ids we're expecting a response for
	processing map[uint16]bool // SCP-side: request ids we're currently handling
	invokedSem *semaphore.Weighted

	readyMu    sync.Mutex
	readyCond  *sync.Cond
	ready      []*Message
	inFlight   *Message // command received, payload (if any) still pending
	terminated bool
	termErr    error

	reassembler *reassemble.Reassembler
}

func newAssociation(t *transport.Transport, role Role, codec dataset.Codec, logger zerolog.Logger) *Association {
	a := &Association{
		ID:          uuid.NewString(),
		role:        role,
		transport:   t,
		codec:       codec,
		logger:      logger,
		contexts:    make(map[byte]AcceptedContext),
		byAbstract:  make(map[string][]byte),
		waiting:     make(map[uint16]bool),
		processing:  make(map[uint16]bool),
		reassembler: reassemble.New(),
	}
	a.readyCond = sync.NewCond(&a.readyMu)
	return a
}

func (a *Association) indexContexts(contexts []AcceptedContext) {
	for _, c := range contexts {
		a.contexts[c.ID] = c
		a.byAbstract[c.AbstractSyntax] = append(a.byAbstract[c.AbstractSyntax], c.ID)
	}
}

// Role reports whether this Association is the SCU or SCP side.
func (a *Association) Role() Role { return a.role }

// ThisAET and OtherAET are the local and peer AE titles.
func (a *Association) ThisAET() string  { return a.thisAET }
func (a *Association) OtherAET() string { return a.otherAET }

// Contexts returns the accepted presentation contexts, keyed by id.
func (a *Association) Contexts() map[byte]AcceptedContext {
	out := make(map[byte]AcceptedContext, len(a.contexts))
	for k, v := range a.contexts {
		out[k] = v
	}
	return out
}

// effectiveOpsWindow implements spec.md §4.4.1 step 6's operations-window
// reconciliation: 0 means "no limit" as a declared value, but if either
// side declared 0 the effective limit is our own configured value rather
// than being treated as numeric zero.
func effectiveOpsWindow(local, peer uint32) uint32 {
	if local == 0 || peer == 0 {
		return local
	}
	if local < peer {
		return local
	}
	return peer
}

func effectiveMaxPDULength(local, peer uint32) uint32 {
	if local == 0 {
		return peer
	}
	if peer == 0 {
		return local
	}
	if local < peer {
		return local
	}
	return peer
}
