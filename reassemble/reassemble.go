// Package reassemble turns a stream of PDVs arriving inside P-DATA-TF
// PDUs back into complete command or payload datasets, per spec.md §4.5.
package reassemble

import (
	"github.com/meridianlabs/dicomnet/dimerr"
	"github.com/meridianlabs/dicomnet/pdu"
)

// Result is one fully reassembled dataset, still wire bytes — decoding
// via a dataset.Codec happens one layer up, where the transfer syntax for
// the owning presentation context is known.
type Result struct {
	ContextID byte
	IsCommand bool
	Data      []byte
}

// Reassembler accumulates PDVs in arrival order and yields one Result per
// run of PDVs terminated by an IsLast fragment. It is not safe for
// concurrent use; the association engine's single background reader is
// its only caller.
type Reassembler struct {
	pending []pdu.PDV
}

// New returns an empty reassembler.
func New() *Reassembler { return &Reassembler{} }

// Push appends one PDV to the pending list.
func (r *Reassembler) Push(pdv pdu.PDV) {
	r.pending = append(r.pending, pdv)
}

// Next walks the pending list looking for the first IsLast fragment. If
// found, it merges every PDV up to and including it into one Result,
// drops them from the pending list, and returns the Result. If no
// complete run is buffered yet, it returns (nil, nil) — call again after
// pushing more PDVs. All merged PDVs must share the terminating PDV's
// context id and command/payload discrimination; a mismatch is a
// CorruptedMessage per spec.md §7.
func (r *Reassembler) Next() (*Result, error) {
	lastIdx := -1
	for i, p := range r.pending {
		if p.IsLast {
			lastIdx = i
			break
		}
	}
	if lastIdx == -1 {
		return nil, nil
	}

	group := r.pending[:lastIdx+1]
	contextID := group[lastIdx].ContextID
	isCommand := group[lastIdx].IsCommand

	total := 0
	for _, p := range group {
		if p.ContextID != contextID {
			return nil, dimerr.NewCorrupted("PDVs merged into one dataset span more than one presentation context", nil)
		}
		if p.IsCommand != isCommand {
			return nil, dimerr.NewCorrupted("command and payload PDVs interleaved within one reassembly run", nil)
		}
		total += len(p.Data)
	}

	buf := make([]byte, 0, total)
	for _, p := range group {
		buf = append(buf, p.Data...)
	}
	r.pending = append([]pdu.PDV(nil), r.pending[lastIdx+1:]...)

	return &Result{ContextID: contextID, IsCommand: isCommand, Data: buf}, nil
}

// DrainReady calls Next repeatedly, invoking visit for every complete
// Result currently available, stopping at the first incomplete run.
func (r *Reassembler) DrainReady(visit func(*Result) error) error {
	for {
		res, err := r.Next()
		if err != nil {
			return err
		}
		if res == nil {
			return nil
		}
		if err := visit(res); err != nil {
			return err
		}
	}
}

// Pending reports how many unmerged PDVs are currently buffered (for
// diagnostics/metrics; not part of the reassembly algorithm itself).
func (r *Reassembler) Pending() int { return len(r.pending) }
