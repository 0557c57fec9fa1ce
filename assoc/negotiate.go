package assoc

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimerr"
	"github.com/meridianlabs/dicomnet/item"
	"github.com/meridianlabs/dicomnet/pdu"
	"github.com/meridianlabs/dicomnet/syntax"
	"github.com/meridianlabs/dicomnet/transport"
)

// DefaultMaxPDULength is used when a config leaves MaxPDULength at zero;
// it mirrors what most DICOM implementations advertise by default.
const DefaultMaxPDULength uint32 = 16384

// DefaultImplementationClassUID is the root-OID-derived UID advertised
// when a config leaves ImplementationClassUID empty.
const DefaultImplementationClassUID = "1.2.826.0.1.3680043.2.1143.0.1"

const defaultImplementationVersionName = "DICOMNET_01"

// ProposedContext is one presentation context an SCU offers during
// negotiation. SCURole/SCPRole default to the standard SCU=true/SCP=false
// when left unset by using NewProposedContext.
type ProposedContext struct {
	AbstractSyntax   string
	TransferSyntaxes []string
	SCURole          bool
	SCPRole          bool

	id byte // assigned during negotiation
}

// NewProposedContext builds a context with the default SCU role.
func NewProposedContext(abstractSyntax string, transferSyntaxes ...string) ProposedContext {
	return ProposedContext{AbstractSyntax: abstractSyntax, TransferSyntaxes: transferSyntaxes, SCURole: true}
}

// SupportedContext is one abstract syntax an SCP is willing to accept,
// with the transfer syntaxes it can decode, in preference order.
type SupportedContext struct {
	AbstractSyntax   string
	TransferSyntaxes []string
	SCURole          bool
	SCPRole          bool
}

// SCUConfig configures an outbound association request.
type SCUConfig struct {
	CallingAET string
	CalledAET  string
	Contexts   []ProposedContext

	MaxPDULength              uint32
	MaxOpsInvoked             uint32
	MaxOpsPerformed           uint32
	ImplementationClassUID    string
	ImplementationVersionName string

	ConnectTimeout time.Duration
	DimseTimeout   time.Duration

	Codec   dataset.Codec
	Metrics *Metrics
	Logger  zerolog.Logger
}

func (c *SCUConfig) setDefaults() {
	if c.MaxPDULength == 0 {
		c.MaxPDULength = DefaultMaxPDULength
	}
	if c.ImplementationClassUID == "" {
		c.ImplementationClassUID = DefaultImplementationClassUID
	}
	if c.ImplementationVersionName == "" {
		c.ImplementationVersionName = defaultImplementationVersionName
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.Codec == nil {
		c.Codec = dataset.ImplicitVRCommandCodec{}
	}
}

// Dial opens a TCP connection to address and runs the SCU side of
// negotiation (spec.md §4.4.1).
func Dial(address string, cfg SCUConfig) (*Association, error) {
	cfg.setDefaults()
	conn, err := net.DialTimeout("tcp", address, cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("assoc: dial %s: %w", address, err)
	}
	t := transport.New(conn)

	a := newAssociation(t, RoleSCU, cfg.Codec, cfg.Logger)
	a.thisAET = cfg.CallingAET
	a.otherAET = cfg.CalledAET
	a.maxPDULength = cfg.MaxPDULength
	a.maxOpsInvoked = cfg.MaxOpsInvoked
	a.maxOpsPerformed = cfg.MaxOpsPerformed
	a.dimseTimeout = cfg.DimseTimeout
	a.metrics = cfg.Metrics

	if err := a.negotiateSCU(cfg); err != nil {
		t.Terminate()
		return nil, err
	}
	a.startReader()
	a.metrics.associationOpened()
	return a, nil
}

// assignContextIDs gives each proposed context an odd id in order:
// 1, 3, 5, ...
func assignContextIDs(contexts []ProposedContext) []ProposedContext {
	out := make([]ProposedContext, len(contexts))
	copy(out, contexts)
	for i := range out {
		out[i].id = byte(2*i + 1)
	}
	return out
}

// aggregateRoleSelections unions SCU/SCP flags per abstract syntax and
// returns RoleSelection items only for syntaxes deviating from the
// default (scu=true, scp=false), per spec.md §4.4.1 step 2.
func aggregateRoleSelections(contexts []ProposedContext) []item.RoleSelection {
	type flags struct{ scu, scp bool }
	byAbstract := make(map[string]*flags)
	var order []string
	for _, c := range contexts {
		f, ok := byAbstract[c.AbstractSyntax]
		if !ok {
			f = &flags{}
			byAbstract[c.AbstractSyntax] = f
			order = append(order, c.AbstractSyntax)
		}
		f.scu = f.scu || c.SCURole
		f.scp = f.scp || c.SCPRole
	}
	var out []item.RoleSelection
	for _, uid := range order {
		f := byAbstract[uid]
		if f.scp || !f.scu {
			out = append(out, item.RoleSelection{UID: uid, SCU: f.scu, SCP: f.scp})
		}
	}
	return out
}

func (a *Association) negotiateSCU(cfg SCUConfig) error {
	proposed := assignContextIDs(cfg.Contexts)

	rq := &pdu.AssociateRQ{
		CalledAET:          cfg.CalledAET,
		CallingAET:         cfg.CallingAET,
		ApplicationContext: syntax.ApplicationContextUID,
		UserInfo: item.UserInformation{
			MaximumLength:       &item.MaximumLength{Length: cfg.MaxPDULength},
			ImplementationClass: &item.ImplementationClassUID{UID: cfg.ImplementationClassUID},
			ImplementationVer:   &item.ImplementationVersionName{Name: cfg.ImplementationVersionName},
			RoleSelections:      aggregateRoleSelections(proposed),
		},
	}
	if cfg.MaxOpsInvoked != 1 || cfg.MaxOpsPerformed != 1 {
		rq.UserInfo.AsyncOps = &item.AsyncOpsWindow{Invoked: uint16(cfg.MaxOpsInvoked), Performed: uint16(cfg.MaxOpsPerformed)}
	}
	for _, p := range proposed {
		rq.PresentationContexts = append(rq.PresentationContexts, item.PresentationContextRQ{
			ID:               p.id,
			AbstractSyntax:   p.AbstractSyntax,
			TransferSyntaxes: p.TransferSyntaxes,
		})
	}

	if err := a.transport.Write(pdu.EncodeAssociateRQ(rq)); err != nil {
		return err
	}
	a.metrics.pduSent()

	decoded, err := pdu.Decode(a.transport, false)
	if err != nil {
		return err
	}
	a.metrics.pduReceived()

	switch p := decoded.(type) {
	case *pdu.AssociateRJ:
		return &dimerr.AssociationRejected{Permanent: p.Result == 1, Source: p.Source, Reason: p.Reason}
	case *pdu.AssociateAC:
		return a.applyAssociateAC(p, proposed, cfg)
	default:
		return dimerr.NewCorrupted(fmt.Sprintf("expected A-ASSOCIATE-AC or -RJ, got %T", decoded), nil)
	}
}

func (a *Association) applyAssociateAC(ac *pdu.AssociateAC, proposed []ProposedContext, cfg SCUConfig) error {
	proposedByID := make(map[byte]ProposedContext, len(proposed))
	for _, p := range proposed {
		proposedByID[p.id] = p
	}

	peerRoles := make(map[string]item.RoleSelection)
	for _, rs := range ac.UserInfo.RoleSelections {
		peerRoles[rs.UID] = rs
	}

	var accepted []AcceptedContext
	for _, pc := range ac.PresentationContexts {
		p, ok := proposedByID[pc.ID]
		if !ok {
			return dimerr.NewCorrupted(fmt.Sprintf("A-ASSOCIATE-AC accepted unproposed context id %d", pc.ID), nil)
		}
		if pc.Result != item.ResultAcceptance {
			continue
		}
		if pc.TransferSyntax == "" {
			continue // accepted context with no transfer syntax: treat as not accepted
		}
		if !contains(p.TransferSyntaxes, pc.TransferSyntax) {
			return dimerr.NewCorrupted(fmt.Sprintf("A-ASSOCIATE-AC chose transfer syntax %q not among proposed for context %d", pc.TransferSyntax, pc.ID), nil)
		}
		role := peerRoles[p.AbstractSyntax]
		accepted = append(accepted, AcceptedContext{
			ID:             pc.ID,
			AbstractSyntax: p.AbstractSyntax,
			TransferSyntax: pc.TransferSyntax,
			RequestorIsSCU: true,
			RequestorIsSCP: role.SCP,
		})
	}
	a.indexContexts(accepted)

	peerMaxLen := uint32(0)
	if ac.UserInfo.MaximumLength != nil {
		peerMaxLen = ac.UserInfo.MaximumLength.Length
	}
	a.maxPDULength = effectiveMaxPDULength(cfg.MaxPDULength, peerMaxLen)

	peerInvoked, peerPerformed := uint32(1), uint32(1)
	if ac.UserInfo.AsyncOps != nil {
		peerInvoked = uint32(ac.UserInfo.AsyncOps.Invoked)
		peerPerformed = uint32(ac.UserInfo.AsyncOps.Performed)
	}
	a.maxOpsInvoked = effectiveOpsWindow(cfg.MaxOpsInvoked, peerInvoked)
	a.maxOpsPerformed = effectiveOpsWindow(cfg.MaxOpsPerformed, peerPerformed)
	a.initOpsWindow()

	a.logger.Info().
		Str("assoc_id", a.ID).
		Str("calling_aet", a.thisAET).
		Str("called_aet", a.otherAET).
		Int("accepted_contexts", len(accepted)).
		Msg("association negotiated (scu)")
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// SCPConfig configures how Accept negotiates an inbound association.
type SCPConfig struct {
	// AET, if non-empty, is the only called AE title this SCP accepts.
	AET               string
	SupportedContexts []SupportedContext

	MaxPDULength              uint32
	MaxOpsInvoked             uint32
	MaxOpsPerformed           uint32
	ImplementationClassUID    string
	ImplementationVersionName string

	ArtimTimeout time.Duration
	DimseTimeout time.Duration

	// Permissive accepts an inbound presentation-context item whose
	// reserved result byte is non-zero instead of treating it as
	// corrupted, working around peers that send result != 0 on
	// requests (spec.md §7, §9 Open Question 2).
	Permissive bool

	Codec   dataset.Codec
	Metrics *Metrics
	Logger  zerolog.Logger
}

func (c *SCPConfig) setDefaults() {
	if c.MaxPDULength == 0 {
		c.MaxPDULength = DefaultMaxPDULength
	}
	if c.ImplementationClassUID == "" {
		c.ImplementationClassUID = DefaultImplementationClassUID
	}
	if c.ImplementationVersionName == "" {
		c.ImplementationVersionName = defaultImplementationVersionName
	}
	if c.ArtimTimeout == 0 {
		c.ArtimTimeout = 30 * time.Second
	}
	if c.Codec == nil {
		c.Codec = dataset.ImplicitVRCommandCodec{}
	}
}

// Accept runs the SCP side of negotiation (spec.md §4.4.2) over an
// already-accepted net.Conn. The ARTIM timeout bounds the wait for the
// first PDU; on any negotiation failure the connection is closed and no
// background reader is started.
func Accept(conn net.Conn, cfg SCPConfig) (*Association, error) {
	cfg.setDefaults()
	t := transport.New(conn)
	a := newAssociation(t, RoleSCP, cfg.Codec, cfg.Logger)
	a.maxPDULength = cfg.MaxPDULength
	a.maxOpsInvoked = cfg.MaxOpsInvoked
	a.maxOpsPerformed = cfg.MaxOpsPerformed
	a.dimseTimeout = cfg.DimseTimeout
	a.permissive = cfg.Permissive
	a.metrics = cfg.Metrics

	if err := a.negotiateSCP(cfg); err != nil {
		t.Terminate()
		return nil, err
	}
	a.startReader()
	a.metrics.associationOpened()
	return a, nil
}

func (a *Association) negotiateSCP(cfg SCPConfig) error {
	if err := a.transport.SetReadDeadline(time.Now().Add(cfg.ArtimTimeout)); err != nil {
		return err
	}
	decoded, err := pdu.Decode(a.transport, cfg.Permissive)
	if err != nil {
		return err
	}
	if err := a.transport.SetReadDeadline(time.Time{}); err != nil {
		return err
	}

	rq, ok := decoded.(*pdu.AssociateRQ)
	if !ok {
		return dimerr.NewCorrupted(fmt.Sprintf("expected A-ASSOCIATE-RQ, got %T", decoded), nil)
	}

	if rq.ApplicationContext != syntax.ApplicationContextUID {
		a.rejectSCP(1, dimerr.RejectSourceServiceUser, dimerr.ReasonApplicationContextNotSupported)
		return &dimerr.AssociationRejected{Permanent: true, Source: dimerr.RejectSourceServiceUser, Reason: dimerr.ReasonApplicationContextNotSupported}
	}
	if cfg.AET != "" && rq.CalledAET != cfg.AET {
		a.rejectSCP(1, dimerr.RejectSourceServiceUser, dimerr.ReasonCalledAETitleNotRecognized)
		return &dimerr.AssociationRejected{Permanent: true, Source: dimerr.RejectSourceServiceUser, Reason: dimerr.ReasonCalledAETitleNotRecognized}
	}

	a.thisAET = rq.CalledAET
	a.otherAET = rq.CallingAET

	supportedByAbstract := make(map[string]SupportedContext, len(cfg.SupportedContexts))
	for _, s := range cfg.SupportedContexts {
		supportedByAbstract[s.AbstractSyntax] = s
	}
	peerRoles := make(map[string]item.RoleSelection)
	for _, rs := range rq.UserInfo.RoleSelections {
		peerRoles[rs.UID] = rs
	}

	var results []item.PresentationContextAC
	var accepted []AcceptedContext
	for _, pc := range rq.PresentationContexts {
		supported, haveAbstract := supportedByAbstract[pc.AbstractSyntax]
		if !haveAbstract {
			results = append(results, item.PresentationContextAC{ID: pc.ID, Result: item.ResultAbstractSyntaxNotSupported})
			continue
		}
		ts, haveTransfer := syntax.NegotiateTransferSyntax(pc.TransferSyntaxes, supported.TransferSyntaxes)
		if !haveTransfer {
			results = append(results, item.PresentationContextAC{ID: pc.ID, Result: item.ResultTransferSyntaxesNotSupported})
			continue
		}
		results = append(results, item.PresentationContextAC{ID: pc.ID, Result: item.ResultAcceptance, TransferSyntax: ts})

		requestorSCU, requestorSCP := true, false // defaults per spec.md §3
		if peer, proposed := peerRoles[pc.AbstractSyntax]; proposed {
			requestorSCU, requestorSCP = peer.SCU, peer.SCP
		}
		accepted = append(accepted, AcceptedContext{
			ID:             pc.ID,
			AbstractSyntax: pc.AbstractSyntax,
			TransferSyntax: ts,
			RequestorIsSCU: requestorSCU,
			RequestorIsSCP: requestorSCP,
		})
	}
	a.indexContexts(accepted)

	var ourRoles []item.RoleSelection
	for abstractSyntax, supported := range supportedByAbstract {
		peer, proposed := peerRoles[abstractSyntax]
		if !proposed {
			continue
		}
		scu := supported.SCURole && peer.SCU
		scp := supported.SCPRole && peer.SCP
		if scp || !scu {
			ourRoles = append(ourRoles, item.RoleSelection{UID: abstractSyntax, SCU: scu, SCP: scp})
		}
	}

	peerMaxLen := uint32(0)
	if rq.UserInfo.MaximumLength != nil {
		peerMaxLen = rq.UserInfo.MaximumLength.Length
	}
	a.maxPDULength = effectiveMaxPDULength(cfg.MaxPDULength, peerMaxLen)

	// The peer's "invoked" is how many requests it will send us, i.e.
	// our "performed" limit, and vice versa (spec.md §4.4.2 step 6).
	peerInvoked, peerPerformed := uint32(1), uint32(1)
	if rq.UserInfo.AsyncOps != nil {
		peerInvoked = uint32(rq.UserInfo.AsyncOps.Invoked)
		peerPerformed = uint32(rq.UserInfo.AsyncOps.Performed)
	}
	a.maxOpsPerformed = effectiveOpsWindow(cfg.MaxOpsPerformed, peerInvoked)
	a.maxOpsInvoked = effectiveOpsWindow(cfg.MaxOpsInvoked, peerPerformed)
	a.initOpsWindow()

	ac := &pdu.AssociateAC{
		CalledAET:          rq.CalledAET,
		CallingAET:         rq.CallingAET,
		ApplicationContext: syntax.ApplicationContextUID,
		PresentationContexts: results,
		UserInfo: item.UserInformation{
			MaximumLength:       &item.MaximumLength{Length: cfg.MaxPDULength},
			ImplementationClass: &item.ImplementationClassUID{UID: cfg.ImplementationClassUID},
			ImplementationVer:   &item.ImplementationVersionName{Name: cfg.ImplementationVersionName},
			RoleSelections:      ourRoles,
		},
	}
	if a.maxOpsPerformed != 1 || a.maxOpsInvoked != 1 {
		ac.UserInfo.AsyncOps = &item.AsyncOpsWindow{Invoked: uint16(a.maxOpsPerformed), Performed: uint16(a.maxOpsInvoked)}
	}
	a.writeMu.Lock()
	err = a.transport.Write(pdu.EncodeAssociateAC(ac))
	a.writeMu.Unlock()
	if err != nil {
		return err
	}
	a.metrics.pduSent()

	a.logger.Info().
		Str("assoc_id", a.ID).
		Str("calling_aet", a.otherAET).
		Str("called_aet", a.thisAET).
		Int("accepted_contexts", len(accepted)).
		Msg("association negotiated (scp)")
	return nil
}

func (a *Association) rejectSCP(result byte, source dimerr.RejectSource, reason dimerr.RejectReason) {
	rj := &pdu.AssociateRJ{Result: result, Source: source, Reason: reason}
	a.writeMu.Lock()
	_ = a.transport.Write(pdu.EncodeAssociateRJ(rj))
	a.writeMu.Unlock()
}
