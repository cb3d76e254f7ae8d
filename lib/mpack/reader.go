package mpack

import "encoding/binary"

// MaxToken is the largest number of bytes any MessagePack token header can
// occupy on the wire: one type-code byte plus up to eight bytes of
// value/length plus, for fixext*/ext8/16/32, one ext-type byte. The widest
// header (uint64/int64/float64) needs 9 bytes; 12 is kept as
// headroom matching the spec's stated bound.
const MaxToken = 12

// Reader turns a byte stream into a sequence of Tokens. It holds at most
// MaxToken bytes of internal state at any time: the header of a token
// currently being resumed across buffer boundaries. Reader performs no
// allocation and does not copy Str/Bin/Ext payload bytes — those are
// streamed back to the caller as borrowed Chunk tokens (see Read).
type Reader struct {
	scratch     [MaxToken]byte
	scratchLen  uint8
	headerSize  uint8 // 0 until the first byte of the next header has been seen
	passthrough uint32
}

// NewReader returns a Reader ready to decode from the start of a stream.
func NewReader() *Reader {
	return &Reader{}
}

// Reset returns the reader to its initial state, discarding any partially
// buffered header or in-progress passthrough. Use after Error.
func (r *Reader) Reset() {
	*r = Reader{}
}

// Read consumes a prefix of p and produces at most one Token.
//
//   - Ok: tok is valid; n is the number of bytes of p consumed.
//   - Eof: p did not contain enough bytes to complete the in-progress
//     token; n bytes of p (possibly all of it) were copied into internal
//     scratch. The caller must supply the next bytes of the stream (not a
//     repeat of what was already consumed) on the next call.
//   - Error: p's next byte is the reserved code 0xc1, or internal state is
//     corrupt. The Reader must be Reset before reuse.
//
// During Str/Bin/Ext payload decoding, Read returns TagChunk tokens whose
// Chunk field borrows directly from p; the slice is valid only until the
// next call to Read.
func (r *Reader) Read(p []byte) (n int, tok Token, status Status, err error) {
	if r.passthrough > 0 {
		if len(p) == 0 {
			return 0, Token{}, Eof, nil
		}
		take := r.passthrough
		if uint32(len(p)) < take {
			take = uint32(len(p))
		}
		r.passthrough -= take
		return int(take), ChunkToken(p[:take]), Ok, nil
	}

	if r.headerSize == 0 {
		if r.scratchLen == 0 {
			if len(p) == 0 {
				return 0, Token{}, Eof, nil
			}
			b0 := p[0]
			size, herr := headerSize(b0)
			if herr != nil {
				return 1, Token{}, Error, herr
			}
			r.scratch[0] = b0
			r.scratchLen = 1
			r.headerSize = size
			p = p[1:]
			n = 1
		}
	}

	need := int(r.headerSize) - int(r.scratchLen)
	take := need
	if take > len(p) {
		take = len(p)
	}
	copy(r.scratch[r.scratchLen:], p[:take])
	r.scratchLen += uint8(take)
	n += take

	if int(r.scratchLen) < int(r.headerSize) {
		return n, Token{}, Eof, nil
	}

	tok, passthrough := decodeHeader(r.scratch[:r.headerSize])
	r.scratchLen = 0
	r.headerSize = 0
	r.passthrough = passthrough
	return n, tok, Ok, nil
}

// headerSize returns the total number of header bytes (including the type
// byte itself) that the wire format fixes for a token starting with b0.
// This is a pure function of the first byte: every MessagePack opcode
// fully determines its own header length, even though the payload that
// may follow (Str/Bin/Ext/Array/Map contents) is of course variable.
func headerSize(b0 byte) (uint8, error) {
	switch {
	case b0 < 0x80: // positive fixint
		return 1, nil
	case b0 <= 0x8f: // fixmap
		return 1, nil
	case b0 <= 0x9f: // fixarray
		return 1, nil
	case b0 <= 0xbf: // fixstr
		return 1, nil
	case b0 == 0xc0: // nil
		return 1, nil
	case b0 == 0xc1: // reserved
		return 0, errReservedByte
	case b0 == 0xc2, b0 == 0xc3: // false, true
		return 1, nil
	case b0 == 0xc4: // bin8
		return 2, nil
	case b0 == 0xc5: // bin16
		return 3, nil
	case b0 == 0xc6: // bin32
		return 5, nil
	case b0 == 0xc7: // ext8
		return 3, nil
	case b0 == 0xc8: // ext16
		return 4, nil
	case b0 == 0xc9: // ext32
		return 6, nil
	case b0 == 0xca: // float32
		return 5, nil
	case b0 == 0xcb: // float64
		return 9, nil
	case b0 == 0xcc: // uint8
		return 2, nil
	case b0 == 0xcd: // uint16
		return 3, nil
	case b0 == 0xce: // uint32
		return 5, nil
	case b0 == 0xcf: // uint64
		return 9, nil
	case b0 == 0xd0: // int8
		return 2, nil
	case b0 == 0xd1: // int16
		return 3, nil
	case b0 == 0xd2: // int32
		return 5, nil
	case b0 == 0xd3: // int64
		return 9, nil
	case b0 == 0xd4, b0 == 0xd5, b0 == 0xd6, b0 == 0xd7, b0 == 0xd8: // fixext1/2/4/8/16
		return 2, nil
	case b0 == 0xd9: // str8
		return 2, nil
	case b0 == 0xda: // str16
		return 3, nil
	case b0 == 0xdb: // str32
		return 5, nil
	case b0 == 0xdc: // array16
		return 3, nil
	case b0 == 0xdd: // array32
		return 5, nil
	case b0 == 0xde: // map16
		return 3, nil
	case b0 == 0xdf: // map32
		return 5, nil
	default: // negative fixint, 0xe0-0xff
		return 1, nil
	}
}

var fixextPayload = map[byte]uint32{
	0xd4: 1, 0xd5: 2, 0xd6: 4, 0xd7: 8, 0xd8: 16,
}

// decodeHeader parses a complete header buffer (as sized by headerSize)
// into a Token plus the number of raw payload bytes that must follow as
// Chunk tokens before the next header (0 for tokens with no payload).
func decodeHeader(b []byte) (Token, uint32) {
	b0 := b[0]
	switch {
	case b0 < 0x80:
		return UInt(uint64(b0)), 0
	case b0 <= 0x8f:
		return Map(uint32(b0 & 0x0f)), 0
	case b0 <= 0x9f:
		return Array(uint32(b0 & 0x0f)), 0
	case b0 <= 0xbf:
		n := uint32(b0 & 0x1f)
		return Str(n), n
	case b0 == 0xc0:
		return Nil(), 0
	case b0 == 0xc2:
		return Bool(false), 0
	case b0 == 0xc3:
		return Bool(true), 0
	case b0 == 0xc4:
		n := uint32(b[1])
		return Bin(n), n
	case b0 == 0xc5:
		n := uint32(binary.BigEndian.Uint16(b[1:3]))
		return Bin(n), n
	case b0 == 0xc6:
		n := binary.BigEndian.Uint32(b[1:5])
		return Bin(n), n
	case b0 == 0xc7:
		n := uint32(b[1])
		return Ext(int8(b[2]), n), n
	case b0 == 0xc8:
		n := uint32(binary.BigEndian.Uint16(b[1:3]))
		return Ext(int8(b[3]), n), n
	case b0 == 0xc9:
		n := binary.BigEndian.Uint32(b[1:5])
		return Ext(int8(b[5]), n), n
	case b0 == 0xca:
		lo := binary.BigEndian.Uint32(b[1:5])
		return Token{Tag: TagFloat, Lo: lo, Length: 4}, 0
	case b0 == 0xcb:
		hi := binary.BigEndian.Uint32(b[1:5])
		lo := binary.BigEndian.Uint32(b[5:9])
		return Token{Tag: TagFloat, Hi: hi, Lo: lo, Length: 8}, 0
	case b0 == 0xcc:
		return Token{Tag: TagUInt, Lo: uint32(b[1]), Length: 1}, 0
	case b0 == 0xcd:
		return Token{Tag: TagUInt, Lo: uint32(binary.BigEndian.Uint16(b[1:3])), Length: 2}, 0
	case b0 == 0xce:
		return Token{Tag: TagUInt, Lo: binary.BigEndian.Uint32(b[1:5]), Length: 4}, 0
	case b0 == 0xcf:
		hi := binary.BigEndian.Uint32(b[1:5])
		lo := binary.BigEndian.Uint32(b[5:9])
		return Token{Tag: TagUInt, Hi: hi, Lo: lo, Length: 8}, 0
	case b0 == 0xd0:
		return reinterpretSigned(0, uint32(b[1]), 1), 0
	case b0 == 0xd1:
		return reinterpretSigned(0, uint32(binary.BigEndian.Uint16(b[1:3])), 2), 0
	case b0 == 0xd2:
		return reinterpretSigned(0, binary.BigEndian.Uint32(b[1:5]), 4), 0
	case b0 == 0xd3:
		hi := binary.BigEndian.Uint32(b[1:5])
		lo := binary.BigEndian.Uint32(b[5:9])
		return reinterpretSigned(hi, lo, 8), 0
	case b0 >= 0xd4 && b0 <= 0xd8:
		n := fixextPayload[b0]
		return Ext(int8(b[1]), n), n
	case b0 == 0xd9:
		n := uint32(b[1])
		return Str(n), n
	case b0 == 0xda:
		n := uint32(binary.BigEndian.Uint16(b[1:3]))
		return Str(n), n
	case b0 == 0xdb:
		n := binary.BigEndian.Uint32(b[1:5])
		return Str(n), n
	case b0 == 0xdc:
		n := uint32(binary.BigEndian.Uint16(b[1:3]))
		return Array(n), 0
	case b0 == 0xdd:
		n := binary.BigEndian.Uint32(b[1:5])
		return Array(n), 0
	case b0 == 0xde:
		n := uint32(binary.BigEndian.Uint16(b[1:3]))
		return Map(n), 0
	case b0 == 0xdf:
		n := binary.BigEndian.Uint32(b[1:5])
		return Map(n), 0
	default: // negative fixint, 0xe0-0xff
		return reinterpretSigned(0, uint32(b0), 1), 0
	}
}

// reinterpretSigned builds an SInt token from a decoded two's-complement
// (hi, lo) pair, rewriting the tag to UInt when the sign bit for the given
// byte width is zero (§4.1's non-negative normalisation). A negative value
// narrower than 8 bytes is sign-extended so that (hi, lo) holds its full
// 64-bit two's-complement pattern, the same split SInt produces.
func reinterpretSigned(hi, lo uint32, length uint8) Token {
	var msb bool
	switch length {
	case 8:
		msb = hi>>31 != 0
	case 4:
		msb = lo>>31 != 0
	case 2:
		msb = lo>>15 != 0
	case 1:
		msb = lo>>7 != 0
	}
	if !msb {
		return Token{Tag: TagUInt, Hi: hi, Lo: lo, Length: uint32(length)}
	}
	switch length {
	case 1:
		lo |= 0xffffff00
		hi = 0xffffffff
	case 2:
		lo |= 0xffff0000
		hi = 0xffffffff
	case 4:
		hi = 0xffffffff
	}
	return Token{Tag: TagSInt, Hi: hi, Lo: lo, Length: uint32(length)}
}
