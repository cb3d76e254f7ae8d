package mpack

// Package mpack implements an incremental, allocation-free MessagePack
// codec: a byte-stream Reader/Writer (this file plus reader.go/writer.go)
// and a depth-bounded object Walker (walker.go) built on top of it.
//
// The codec never allocates on the hot path and performs no I/O. A Token
// never owns heap memory: its lifetime is that of the input/output buffer
// it was produced from or is about to be written into. Reader and Writer
// may be driven from buffers of any size, including one byte at a time;
// both keep all resumption state inline (see reader.go's MaxToken and
// writer.go's pending-token slot).

// Tag discriminates the kind of wire unit a Token carries.
type Tag uint8

const (
	TagNil Tag = iota
	TagBool
	TagUInt
	TagSInt
	TagFloat
	TagChunk
	TagArray
	TagMap
	TagBin
	TagStr
	TagExt
)

func (t Tag) String() string {
	switch t {
	case TagNil:
		return "Nil"
	case TagBool:
		return "Boolean"
	case TagUInt:
		return "UInt"
	case TagSInt:
		return "SInt"
	case TagFloat:
		return "Float"
	case TagChunk:
		return "Chunk"
	case TagArray:
		return "Array"
	case TagMap:
		return "Map"
	case TagBin:
		return "Bin"
	case TagStr:
		return "Str"
	case TagExt:
		return "Ext"
	default:
		return "Tag(unknown)"
	}
}

// Token is a tagged variant carrying one wire event.
//
// For UInt/SInt/Float, the 64-bit magnitude (or IEEE-754 bit pattern) is
// split across Hi/Lo: Hi holds the high 32 bits, Lo the low 32 bits (see
// valuecodec.go). This layout lets every arithmetic step operate on plain
// 32-bit words, independent of host endianness and independent of whether
// the host has a native 64-bit integer type. Length records the wire width
// actually used: 1/2/4/8 for UInt/SInt, 4/8 for Float.
//
// For Array/Map, Length is the element count; for Map it is 2×pairs (key
// and value are counted separately, see §9's Map-length resolution).
// For Bin/Str/Ext, Length is the byte length of the payload that follows
// as Chunk tokens; ExtType additionally carries the ext's signed type byte.
//
// Chunk borrows a slice of the caller's buffer; it is valid only until the
// next Reader.Read or Writer.Write call advances past it.
type Token struct {
	Tag     Tag
	Bool    bool
	Hi, Lo  uint32
	Length  uint32
	ExtType int8
	Chunk   []byte
}

// Nil builds a Nil token.
func Nil() Token { return Token{Tag: TagNil} }

// Bool builds a Boolean token.
func Bool(v bool) Token { return Token{Tag: TagBool, Bool: v} }

// UInt builds a UInt token from a native uint64 magnitude, choosing the
// smallest wire width that holds it (see SelectUnsignedWidth).
func UInt(v uint64) Token {
	hi, lo := splitUint64(v)
	return Token{Tag: TagUInt, Hi: hi, Lo: lo, Length: uint32(SelectUnsignedWidth(hi, lo))}
}

// SInt builds an SInt token from a native int64. Non-negative values are
// normalised to UInt per §4.1's invariant: "any non-negative value is
// encoded in an unsigned format".
func SInt(v int64) Token {
	if v >= 0 {
		return UInt(uint64(v))
	}
	hi, lo := splitTwosComplement(v)
	return Token{Tag: TagSInt, Hi: hi, Lo: lo, Length: uint32(SelectSignedWidth(lo))}
}

// Float builds a Float token, selecting 4-byte width iff v round-trips
// through IEEE-754 single precision (see PackFloat).
func Float(v float64) Token {
	hi, lo, length := PackFloat(v)
	return Token{Tag: TagFloat, Hi: hi, Lo: lo, Length: uint32(length)}
}

// ChunkToken builds a Chunk token wrapping a borrowed slice.
func ChunkToken(b []byte) Token { return Token{Tag: TagChunk, Chunk: b} }

// Array builds an Array token with n elements.
func Array(n uint32) Token { return Token{Tag: TagArray, Length: n} }

// Map builds a Map token; n is the number of key/value pairs. Internally
// Length stores 2×n slots, matching the wire walker's child accounting.
func Map(n uint32) Token { return Token{Tag: TagMap, Length: 2 * n} }

// Bin builds a Bin header token announcing n payload bytes.
func Bin(n uint32) Token { return Token{Tag: TagBin, Length: n} }

// Str builds a Str header token announcing n payload bytes.
func Str(n uint32) Token { return Token{Tag: TagStr, Length: n} }

// Ext builds an Ext header token announcing n payload bytes and a signed
// ext type in [-128,127] (the wire format only uses [0,127] for defined
// types but negative types are reserved for future/application use).
func Ext(extType int8, n uint32) Token {
	return Token{Tag: TagExt, ExtType: extType, Length: n}
}

// Uint64 decodes a UInt/SInt token's (Hi, Lo) split back to a native
// uint64 magnitude. For SInt tokens this is the two's-complement bit
// pattern, not the signed value — use Int64 for that.
func (t Token) Uint64() uint64 {
	return joinUint64(t.Hi, t.Lo)
}

// Int64 decodes an SInt token to a native int64 by reversing the two's
// complement. Calling this on a UInt token returns the value reinterpreted
// as signed (callers should check Tag first).
func (t Token) Int64() int64 {
	if t.Tag == TagUInt {
		return int64(t.Uint64())
	}
	return unsplitTwosComplement(t.Hi, t.Lo, uint8(t.Length))
}

// Float64 decodes a Float token's (Hi, Lo) split back to a native float64.
func (t Token) Float64() float64 {
	return UnpackFloat(t.Hi, t.Lo, uint8(t.Length))
}

// Pairs returns the number of key/value pairs of a Map token, whose Length
// is an even slot count by construction via Map().
func (t Token) Pairs() uint32 {
	return t.Length / 2
}
