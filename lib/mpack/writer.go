package mpack

import "encoding/binary"

// Writer is the dual of Reader: it turns Tokens back into wire bytes. It
// buffers at most one token's rendered header (or, for Chunk tokens, an
// index into the caller-provided chunk) so a write that runs out of output
// space can resume exactly where it left off on the next call.
type Writer struct {
	rendered    [MaxToken]byte
	renderedLen uint8
	emitted     uint32
	hasPending  bool
	pendingTok  Token
}

// NewWriter returns a Writer ready to encode from the start of a stream.
func NewWriter() *Writer {
	return &Writer{}
}

// Reset discards any partially emitted token. Use after Error.
func (w *Writer) Reset() {
	*w = Writer{}
}

// Write encodes tok into p, or resumes a token left pending by a previous
// Eof. Per §4.3, once a token is pending the caller may pass any tok (even
// the zero value) — the stored token always takes priority.
//
//   - Ok: the token's full wire encoding was emitted; n is the number of
//     bytes of p written.
//   - Eof: p filled before the encoding completed; n == len(p). The token
//     (and the count of bytes already emitted) is recorded internally.
//   - Error: tok has an invalid Tag or an internally inconsistent Length.
func (w *Writer) Write(p []byte, tok Token) (n int, status Status, err error) {
	if !w.hasPending {
		if tok.Tag == TagChunk {
			w.pendingTok = tok
			w.hasPending = true
			w.emitted = 0
		} else {
			rendered, rerr := renderHeader(tok)
			if rerr != nil {
				return 0, Error, rerr
			}
			w.renderedLen = uint8(len(rendered))
			copy(w.rendered[:], rendered)
			w.pendingTok = tok
			w.hasPending = true
			w.emitted = 0
		}
	}

	var source []byte
	if w.pendingTok.Tag == TagChunk {
		source = w.pendingTok.Chunk
	} else {
		source = w.rendered[:w.renderedLen]
	}

	remaining := source[w.emitted:]
	take := len(remaining)
	if take > len(p) {
		take = len(p)
	}
	copy(p[:take], remaining[:take])
	w.emitted += uint32(take)

	if int(w.emitted) < len(source) {
		return take, Eof, nil
	}

	w.hasPending = false
	w.renderedLen = 0
	w.emitted = 0
	return take, Ok, nil
}

// renderHeader produces the complete wire encoding of a non-Chunk token.
func renderHeader(tok Token) ([]byte, error) {
	switch tok.Tag {
	case TagNil:
		return []byte{0xc0}, nil
	case TagBool:
		if tok.Bool {
			return []byte{0xc3}, nil
		}
		return []byte{0xc2}, nil
	case TagUInt:
		return renderUint(tok.Hi, tok.Lo, tok.Length)
	case TagSInt:
		return renderSint(tok.Hi, tok.Lo, tok.Length)
	case TagFloat:
		return renderFloat(tok.Hi, tok.Lo, tok.Length)
	case TagArray:
		return renderArray(tok.Length), nil
	case TagMap:
		if tok.Length%2 != 0 {
			return nil, errInvalidToken
		}
		return renderMap(tok.Length / 2), nil
	case TagBin:
		return renderBin(tok.Length), nil
	case TagStr:
		return renderStr(tok.Length), nil
	case TagExt:
		return renderExt(tok.ExtType, tok.Length), nil
	default:
		return nil, errInvalidToken
	}
}

func renderUint(hi, lo, length uint32) ([]byte, error) {
	switch length {
	case 1:
		if lo <= 0x7f {
			return []byte{byte(lo)}, nil
		}
		return []byte{0xcc, byte(lo)}, nil
	case 2:
		b := []byte{0xcd, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(lo))
		return b, nil
	case 4:
		b := []byte{0xce, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], lo)
		return b, nil
	case 8:
		b := make([]byte, 9)
		b[0] = 0xcf
		binary.BigEndian.PutUint32(b[1:5], hi)
		binary.BigEndian.PutUint32(b[5:9], lo)
		return b, nil
	default:
		return nil, errInvalidToken
	}
}

func renderSint(hi, lo, length uint32) ([]byte, error) {
	switch length {
	case 1:
		if lo >= 0xffffffe0 {
			return []byte{byte(lo)}, nil
		}
		return []byte{0xd0, byte(lo)}, nil
	case 2:
		b := []byte{0xd1, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(lo))
		return b, nil
	case 4:
		b := []byte{0xd2, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], lo)
		return b, nil
	case 8:
		b := make([]byte, 9)
		b[0] = 0xd3
		binary.BigEndian.PutUint32(b[1:5], hi)
		binary.BigEndian.PutUint32(b[5:9], lo)
		return b, nil
	default:
		return nil, errInvalidToken
	}
}

func renderFloat(hi, lo, length uint32) ([]byte, error) {
	switch length {
	case 4:
		b := []byte{0xca, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], lo)
		return b, nil
	case 8:
		b := make([]byte, 9)
		b[0] = 0xcb
		binary.BigEndian.PutUint32(b[1:5], hi)
		binary.BigEndian.PutUint32(b[5:9], lo)
		return b, nil
	default:
		return nil, errInvalidToken
	}
}

func renderArray(n uint32) []byte {
	switch {
	case n < 0x10:
		return []byte{0x90 | byte(n)}
	case n <= 0xffff:
		b := []byte{0xdc, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	default:
		b := []byte{0xdd, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], n)
		return b
	}
}

func renderMap(pairs uint32) []byte {
	switch {
	case pairs < 0x10:
		return []byte{0x80 | byte(pairs)}
	case pairs <= 0xffff:
		b := []byte{0xde, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(pairs))
		return b
	default:
		b := []byte{0xdf, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], pairs)
		return b
	}
}

func renderBin(n uint32) []byte {
	switch {
	case n <= 0xff:
		return []byte{0xc4, byte(n)}
	case n <= 0xffff:
		b := []byte{0xc5, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	default:
		b := []byte{0xc6, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], n)
		return b
	}
}

func renderStr(n uint32) []byte {
	switch {
	case n < 0x20:
		return []byte{0xa0 | byte(n)}
	case n <= 0xff:
		return []byte{0xd9, byte(n)}
	case n <= 0xffff:
		b := []byte{0xda, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	default:
		b := []byte{0xdb, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], n)
		return b
	}
}

// renderExt picks fixext1/2/4/8/16 whenever n is exactly one of those
// sizes, otherwise falls back to ext8/16/32 by magnitude (matching the
// original encoder's priority order).
func renderExt(extType int8, n uint32) []byte {
	t := byte(extType)
	switch n {
	case 1:
		return []byte{0xd4, t}
	case 2:
		return []byte{0xd5, t}
	case 4:
		return []byte{0xd6, t}
	case 8:
		return []byte{0xd7, t}
	case 16:
		return []byte{0xd8, t}
	}
	switch {
	case n < 0x100:
		return []byte{0xc7, byte(n), t}
	case n < 0x10000:
		b := []byte{0xc8, 0, 0, t}
		binary.BigEndian.PutUint16(b[1:3], uint16(n))
		return b
	default:
		b := []byte{0xc9, 0, 0, 0, 0, t}
		binary.BigEndian.PutUint32(b[1:5], n)
		return b
	}
}
