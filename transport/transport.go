// Package transport wraps a bidirectional byte stream (normally a TCP
// net.Conn) with the framed-read/write primitives the rest of the stack
// needs: exact-length reads, bounded sub-readers for length-delimited
// items and PDUs, big-endian integer helpers, and cooperative
// cancellation of an in-flight read via Terminate.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// ErrTerminated is returned from a blocked read once Terminate has been
// called, and from any later read on the same Transport.
var ErrTerminated = errors.New("transport: terminated")

// Transport adapts a net.Conn to the framed I/O the upper layer needs.
// It is safe for one reader and one writer goroutine to use concurrently;
// it is not safe for concurrent writers (the association engine's write
// mutex is what actually serializes P-DATA emission — see assoc).
type Transport struct {
	conn net.Conn

	mu          sync.Mutex
	terminated  bool
	readTimeout time.Duration
}

// New wraps conn. Transport applies no read deadline of its own; the
// DIMSE/ARTIM timeout is enforced by the caller arming SetReadDeadline
// before each call.
func New(conn net.Conn) *Transport {
	return &Transport{conn: conn}
}

// SetReadDeadline arms (or clears, with a zero time) the deadline for the
// next read. Association-layer code uses this to implement both the
// ARTIM timer (deadline for the first PDU) and the DIMSE timeout
// (deadline for each subsequent one).
func (t *Transport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

// SetWriteDeadline arms the deadline for the next write.
func (t *Transport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

func (t *Transport) checkTerminated() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminated {
		return ErrTerminated
	}
	return nil
}

// ReadExact reads exactly n bytes or returns an error (including a
// wrapped io.EOF/io.ErrUnexpectedEOF on short reads, or ErrTerminated if
// Terminate raced the read).
func (t *Transport) ReadExact(n int) ([]byte, error) {
	if err := t.checkTerminated(); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		if terr := t.checkTerminated(); terr != nil {
			return nil, terr
		}
		return nil, fmt.Errorf("transport: read exact %d bytes: %w", n, err)
	}
	return buf, nil
}

// ReadSome reads at least one byte into buf, returning the count read,
// for callers that want to drain without knowing the exact size up front.
func (t *Transport) ReadSome(buf []byte) (int, error) {
	if err := t.checkTerminated(); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(buf)
	if err != nil {
		if terr := t.checkTerminated(); terr != nil {
			return n, terr
		}
		return n, fmt.Errorf("transport: read: %w", err)
	}
	return n, nil
}

// Write writes bytes in full.
func (t *Transport) Write(b []byte) error {
	if err := t.checkTerminated(); err != nil {
		return err
	}
	if _, err := t.conn.Write(b); err != nil {
		if terr := t.checkTerminated(); terr != nil {
			return terr
		}
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Flush is a no-op for a raw net.Conn; it exists so a buffered transport
// (e.g. wrapping bufio.Writer) can be substituted without changing call
// sites.
func (t *Transport) Flush() error { return nil }

// Terminate asynchronously fails any blocked or future read/write with
// ErrTerminated by closing the underlying connection. Safe to call more
// than once and from any goroutine.
func (t *Transport) Terminate() {
	t.mu.Lock()
	if t.terminated {
		t.mu.Unlock()
		return
	}
	t.terminated = true
	t.mu.Unlock()
	_ = t.conn.Close()
}

// Close releases the underlying connection without marking the
// transport terminated-by-cancellation (used on the clean shutdown path
// after a release/abort PDU has already been exchanged).
func (t *Transport) Close() error {
	return t.conn.Close()
}

// SubReader returns a reader bounded to exactly n bytes from the
// transport's current read position; a read past n fails with an error
// without consuming bytes beyond the bound.
func (t *Transport) SubReader(n int) *SubReader {
	return &SubReader{t: t, remaining: n}
}

// SubReader enforces a length-delimited region (an item payload or a PDU
// payload) so that a decoder can never read past its declared length.
type SubReader struct {
	t         *Transport
	remaining int
}

// Remaining reports how many bytes are left unread in this region.
func (s *SubReader) Remaining() int { return s.remaining }

// SubReaderFromRemainder returns a new reader bounded to n bytes counted
// from the current position. It keeps its own count: reads through it
// (and reads made directly on the Transport) do not change s's remaining
// count. Used when a fixed-layout prefix (e.g. PDU fixed fields) has
// already been read off the parent region and what's left is itself a
// sequence of variable-length items.
func (s *SubReader) SubReaderFromRemainder(n int) *SubReader {
	return &SubReader{t: s.t, remaining: n}
}

// ReadExact reads exactly n bytes from the bounded region.
func (s *SubReader) ReadExact(n int) ([]byte, error) {
	if n > s.remaining {
		return nil, fmt.Errorf("transport: sub-reader: requested %d bytes, only %d remain", n, s.remaining)
	}
	buf, err := s.t.ReadExact(n)
	if err != nil {
		return nil, err
	}
	s.remaining -= n
	return buf, nil
}

// Drain consumes and discards whatever bytes remain in the region
// (trailing bytes in an item are tolerated per spec, not rejected).
func (s *SubReader) Drain() error {
	if s.remaining == 0 {
		return nil
	}
	_, err := s.ReadExact(s.remaining)
	return err
}

// ReadUint16 reads a big-endian u16.
func (s *SubReader) ReadUint16() (uint16, error) {
	b, err := s.ReadExact(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32 reads a big-endian u32.
func (s *SubReader) ReadUint32() (uint32, error) {
	b, err := s.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadByte reads a single byte.
func (s *SubReader) ReadByte() (byte, error) {
	b, err := s.ReadExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a big-endian u16 directly off the transport (used for
// PDU/item headers, before a sub-reader bound is known).
func (t *Transport) ReadUint16() (uint16, error) {
	b, err := t.ReadExact(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32 reads a big-endian u32 directly off the transport.
func (t *Transport) ReadUint32() (uint32, error) {
	b, err := t.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// PutUint16 appends the big-endian encoding of v to buf.
func PutUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

// PutUint32 appends the big-endian encoding of v to buf.
func PutUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// AdjustEndian byte-swaps buf in place, word_len bytes at a time, when
// the wire order and host order disagree. The UL wire is always
// big-endian for protocol fields; this exists for dataset bytes whose
// transfer syntax may specify little-endian words, per spec.md §4.1.
func AdjustEndian(buf []byte, wordLen int, swap bool) {
	if !swap || wordLen < 2 {
		return
	}
	for i := 0; i+wordLen <= len(buf); i += wordLen {
		for lo, hi := i, i+wordLen-1; lo < hi; lo, hi = lo+1, hi-1 {
			buf[lo], buf[hi] = buf[hi], buf[lo]
		}
	}
}
