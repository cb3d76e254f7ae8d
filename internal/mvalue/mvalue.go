// Package mvalue converts between lib/mpack's token stream and a
// restricted Go value representation (nil, bool, float64, string, []byte,
// []any, map[string]any) — the same shape encoding/json already uses for
// untyped JSON, which is what makes cmd/mpackc's conversion to/from JSON a
// thin wrapper. cmd/mpack-rpc-server and cmd/mpack-rpc-client reuse it to
// decode a request's method/args and encode a response's result without
// duplicating the walker plumbing three times.
package mvalue

import (
	"fmt"
	"math"
	"sort"

	"github.com/thebagchi/mpack-go/lib/mpack"
)

// mapAccum accumulates a Map node's key/value pairs during Decode.
type mapAccum struct {
	m          map[string]any
	pendingKey string
	haveKey    bool
}

// Decode drives p over buf until one complete value has been parsed.
// Status Eof means buf ran out mid-value; the caller supplies more of the
// stream (not a repeat) and calls Decode again — p retains its stack
// across calls exactly like a bare mpack.Parser.Parse would. Value is only
// meaningful when status is Ok.
func Decode(p *mpack.Parser, buf []byte) (value any, consumed int, status mpack.Status, err error) {
	enter := func(w *mpack.Parser, n *mpack.Node) {
		switch n.Tok.Tag {
		case mpack.TagArray:
			n.Data = make([]any, 0, n.Tok.Length)
		case mpack.TagMap:
			n.Data = &mapAccum{m: make(map[string]any, n.Tok.Length/2)}
		case mpack.TagStr, mpack.TagBin, mpack.TagExt:
			n.Data = make([]byte, 0, n.Tok.Length)
		}
	}

	exit := func(w *mpack.Parser, n *mpack.Node) {
		if n.Tok.Tag == mpack.TagChunk {
			parent := w.Parent()
			parent.Data = append(parent.Data.([]byte), n.Tok.Chunk...)
			return
		}

		var v any
		switch n.Tok.Tag {
		case mpack.TagNil:
			v = nil
		case mpack.TagBool:
			v = n.Tok.Bool
		case mpack.TagUInt:
			v = float64(n.Tok.Uint64())
		case mpack.TagSInt:
			v = float64(n.Tok.Int64())
		case mpack.TagFloat:
			v = n.Tok.Float64()
		case mpack.TagStr:
			v = string(n.Data.([]byte))
		case mpack.TagBin:
			v = n.Data.([]byte)
		case mpack.TagExt:
			v = map[string]any{"ext_type": int(n.Tok.ExtType), "data": n.Data.([]byte)}
		case mpack.TagArray:
			v = n.Data.([]any)
		case mpack.TagMap:
			v = n.Data.(*mapAccum).m
		}

		parent := w.Parent()
		if parent == nil {
			w.Data = v
			return
		}
		switch parent.Tok.Tag {
		case mpack.TagArray:
			parent.Data = append(parent.Data.([]any), v)
		case mpack.TagMap:
			acc := parent.Data.(*mapAccum)
			if !acc.haveKey {
				key, ok := v.(string)
				if !ok {
					w.Throw()
					return
				}
				acc.pendingKey = key
				acc.haveKey = true
			} else {
				acc.m[acc.pendingKey] = v
				acc.haveKey = false
			}
		}
	}

	consumed, status, err = p.Parse(buf, enter, exit)
	if status == mpack.Ok {
		value = p.Data
	}
	return value, consumed, status, err
}

// mapIter walks a map's keys in sorted order during Encode, so the same
// value always produces the same bytes.
type mapIter struct {
	keys []string
	m    map[string]any
}

func tokenFor(value any) (mpack.Token, any, error) {
	switch v := value.(type) {
	case nil:
		return mpack.Nil(), nil, nil
	case bool:
		return mpack.Bool(v), nil, nil
	case float64:
		if v == math.Trunc(v) {
			if v >= 0 {
				return mpack.UInt(uint64(v)), nil, nil
			}
			return mpack.SInt(int64(v)), nil, nil
		}
		return mpack.Float(v), nil, nil
	case string:
		return mpack.Str(uint32(len(v))), []byte(v), nil
	case []byte:
		return mpack.Bin(uint32(len(v))), v, nil
	case []any:
		return mpack.Array(uint32(len(v))), v, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return mpack.Map(uint32(len(v))), &mapIter{keys: keys, m: v}, nil
	default:
		return mpack.Token{}, nil, fmt.Errorf("mvalue: unsupported value of type %T", value)
	}
}

// Encode drives u over buf until value has been fully emitted, mirroring
// Decode's resumability: Eof means buf filled mid-value, supply a fresh
// buffer and call Encode again.
func Encode(u *mpack.Unparser, value any, buf []byte) (consumed int, status mpack.Status, err error) {
	var convErr error
	root := value

	enter := func(w *mpack.Unparser, n *mpack.Node) {
		var v any
		parent := w.Parent()
		switch {
		case parent == nil:
			v = root
		case parent.Tok.Tag == mpack.TagArray:
			v = parent.Data.([]any)[parent.Pos]
		case parent.Tok.Tag == mpack.TagMap:
			mi := parent.Data.(*mapIter)
			idx := parent.Pos / 2
			if !parent.MapKeyVisited() {
				v = mi.keys[idx]
			} else {
				v = mi.m[mi.keys[idx]]
			}
		case parent.Tok.Tag == mpack.TagStr || parent.Tok.Tag == mpack.TagBin:
			n.Tok = mpack.ChunkToken(parent.Data.([]byte))
			return
		}

		tok, data, terr := tokenFor(v)
		if terr != nil {
			convErr = terr
			w.Throw()
			return
		}
		n.Tok = tok
		n.Data = data
	}
	exit := func(w *mpack.Unparser, n *mpack.Node) {}

	consumed, status, err = u.Unparse(buf, enter, exit)
	if status == mpack.Exception && convErr != nil {
		return consumed, status, convErr
	}
	return consumed, status, err
}
