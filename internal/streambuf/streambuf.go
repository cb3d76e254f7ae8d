// Package streambuf provides a byte-granular growable accumulator for the
// RPC demo binaries (cmd/mpack-rpc-server, cmd/mpack-rpc-client): it absorbs
// whatever a net.Conn read returns, however partial, and hands lib/mpack
// and lib/rpc a contiguous unread slice to parse from. Neither lib/mpack
// nor lib/rpc import this package — the core codec works directly off
// caller-supplied buffers and has no notion of a connection.
//
// Buffer is adapted from the teacher's bit-level Codec: the same
// exponential-growth and lazy-advancement strategy, generalised from
// individual bits to whole bytes, plus running written/read counters.
package streambuf

// InitialCapacity is the starting capacity of a new Buffer.
var InitialCapacity = 4096

// compactThreshold is how many bytes the already-consumed prefix must reach
// before Advance bothers to slide the unread tail back to index 0,
// whatever the size of that tail. Mirrors the teacher's "lazy advancement":
// avoid the O(n) copy until it is clearly worth it.
const compactThreshold = 4096

// Buffer accumulates bytes appended from a connection and tracks how much
// of that data has been consumed by the caller. It is not safe for
// concurrent use.
type Buffer struct {
	buf     []byte
	off     int
	written uint64
	read    uint64
}

// New returns an empty Buffer pre-sized to InitialCapacity.
func New() *Buffer {
	return &Buffer{buf: make([]byte, 0, InitialCapacity)}
}

// BytesWritten returns the total number of bytes ever appended.
func (b *Buffer) BytesWritten() uint64 { return b.written }

// BytesRead returns the total number of bytes ever consumed via Advance.
func (b *Buffer) BytesRead() uint64 { return b.read }

// Len returns the number of unread bytes currently buffered.
func (b *Buffer) Len() int { return len(b.buf) - b.off }

// grow ensures capacity for n more bytes past the current length, doubling
// capacity (or using the requested size if larger) so repeated appends stay
// amortised O(1), exactly as the teacher's Codec.grow does for bit writes.
func (b *Buffer) grow(n int) {
	if cap(b.buf)-len(b.buf) >= n {
		return
	}
	capacity := max(cap(b.buf)*2, len(b.buf)+n)
	grown := make([]byte, len(b.buf), capacity)
	copy(grown, b.buf)
	b.buf = grown
}

// Append copies data onto the end of the buffer, growing as needed.
func (b *Buffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	b.grow(len(data))
	b.buf = append(b.buf, data...)
	b.written += uint64(len(data))
}

// Unread returns the slice of buffered bytes not yet consumed via Advance.
// The slice is valid only until the next Append or Advance call.
func (b *Buffer) Unread() []byte {
	return b.buf[b.off:]
}

// Advance records that n bytes of Unread() were consumed by the caller
// (typically the n returned by mpack.Reader.Read or rpc.Session.Receive).
// Once every buffered byte has been consumed the buffer resets to empty
// without a copy; otherwise the consumed prefix is only slid out once it
// reaches compactThreshold bytes, matching the teacher's lazy-advancement choice
// to defer the slice operation rather than pay for it on every call.
func (b *Buffer) Advance(n int) {
	if n <= 0 {
		return
	}
	b.off += n
	b.read += uint64(n)
	if b.off == len(b.buf) {
		b.buf = b.buf[:0]
		b.off = 0
		return
	}
	if b.off >= compactThreshold {
		remaining := copy(b.buf, b.buf[b.off:])
		b.buf = b.buf[:remaining]
		b.off = 0
	}
}

// Reset discards all buffered data and counters. Use when a connection is
// being reused for an unrelated stream.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.off = 0
	b.written = 0
	b.read = 0
}
