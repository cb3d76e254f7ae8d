package mpack

import (
	"encoding/hex"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex fixture %q: %v", s, err)
	}
	return b
}

// readAll drains every token out of buf in a single call, failing the test
// if the decode does not finish exactly at Ok with the buffer exhausted.
func readAll(t *testing.T, r *Reader, buf []byte) []Token {
	t.Helper()
	var toks []Token
	off := 0
	for off < len(buf) {
		n, tok, status, err := r.Read(buf[off:])
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
		if status == Eof {
			t.Fatalf("unexpected Eof with %d bytes remaining", len(buf)-off)
		}
		off += n
		toks = append(toks, tok)
	}
	return toks
}

func TestReaderFixtures(t *testing.T) {
	cases := []struct {
		name string
		hex  string
		want Token
	}{
		{"nil", "c0", Nil()},
		{"false", "c2", Bool(false)},
		{"true", "c3", Bool(true)},
		{"positive fixint", "01", UInt(1)},
		{"negative fixint", "ff", SInt(-1)},
		{"uint8", "cc80", UInt(128)},
		{"uint16", "cd1234", UInt(0x1234)},
		{"uint32", "ce12345678", UInt(0x12345678)},
		{"uint64", "cf0123456789abcdef", UInt(0x0123456789abcdef)},
		{"int8", "d080", SInt(-128)},
		{"int16", "d18000", SInt(-32768)},
		{"float32", "ca3fc00000", Float(1.5)},
		{"fixarray", "93", Array(3)},
		{"array16", "dc0004", Array(4)},
		{"fixmap", "81", Map(1)},
		{"map16", "de0002", Map(2)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := mustHex(t, tc.hex)
			toks := readAll(t, NewReader(), buf)
			if len(toks) != 1 {
				t.Fatalf("got %d tokens, want 1", len(toks))
			}
			got := toks[0]
			if got.Tag != tc.want.Tag || got.Hi != tc.want.Hi || got.Lo != tc.want.Lo || got.Length != tc.want.Length || got.Bool != tc.want.Bool {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestReaderReservedByteIsError(t *testing.T) {
	r := NewReader()
	_, _, status, err := r.Read([]byte{0xc1})
	if status != Error {
		t.Fatalf("status = %v, want Error", status)
	}
	if err == nil {
		t.Fatal("expected non-nil error for reserved byte 0xc1")
	}
}

func TestReaderChunkSizeInvariance(t *testing.T) {
	// fixstr "hi" : a5... no, fixstr len2 -> 0xa2 'h' 'i'
	buf := mustHex(t, "a2")
	buf = append(buf, 'h', 'i')

	for chunkSize := 1; chunkSize <= len(buf); chunkSize++ {
		t.Run(string(rune('0'+chunkSize)), func(t *testing.T) {
			r := NewReader()
			var tokens []Token
			off := 0
			for off < len(buf) {
				end := off + chunkSize
				if end > len(buf) {
					end = len(buf)
				}
				n, tok, status, err := r.Read(buf[off:end])
				if err != nil {
					t.Fatalf("Read error: %v", err)
				}
				off += n
				if status == Ok {
					tokens = append(tokens, tok)
				}
			}
			// Chunks borrow from each input slice, so the 2-byte payload
			// arrives as ceil(2/chunkSize) chunks: one header plus those.
			wantChunks := (2 + chunkSize - 1) / chunkSize
			if len(tokens) != 1+wantChunks {
				t.Fatalf("got %d tokens, want %d (header + %d chunk(s))", len(tokens), 1+wantChunks, wantChunks)
			}
			if tokens[0].Tag != TagStr || tokens[0].Length != 2 {
				t.Errorf("header token = %+v", tokens[0])
			}
			var payload []byte
			for _, tok := range tokens[1:] {
				if tok.Tag != TagChunk {
					t.Errorf("chunk token = %+v", tok)
				}
				payload = append(payload, tok.Chunk...)
			}
			if string(payload) != "hi" {
				t.Errorf("payload = %q, want %q", payload, "hi")
			}
		})
	}
}

func TestReaderPassthroughZeroCopy(t *testing.T) {
	buf := mustHex(t, "a2")
	buf = append(buf, 'h', 'i')
	r := NewReader()

	n, header, status, err := r.Read(buf)
	if err != nil || status != Ok {
		t.Fatalf("header Read: status=%v err=%v", status, err)
	}
	if header.Tag != TagStr || header.Length != 2 {
		t.Fatalf("header = %+v", header)
	}

	_, chunk, status, err := r.Read(buf[n:])
	if err != nil || status != Ok {
		t.Fatalf("chunk Read: status=%v err=%v", status, err)
	}
	if chunk.Tag != TagChunk {
		t.Fatalf("chunk.Tag = %v", chunk.Tag)
	}
	// The chunk must borrow directly from the input slice, not a copy.
	if &chunk.Chunk[0] != &buf[n] {
		t.Error("Chunk does not alias the caller's buffer")
	}
}

func TestReaderSingleByteSteps(t *testing.T) {
	buf := mustHex(t, "cd1234")
	r := NewReader()
	var got Token
	var gotStatus Status
	for _, b := range buf {
		n, tok, status, err := r.Read([]byte{b})
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected to consume exactly 1 byte per step, consumed %d", n)
		}
		if status == Ok {
			got = tok
			gotStatus = status
		} else if status != Eof {
			t.Fatalf("unexpected status %v", status)
		}
	}
	if gotStatus != Ok {
		t.Fatal("never reached Ok after feeding all bytes")
	}
	if got.Tag != TagUInt || got.Uint64() != 0x1234 {
		t.Errorf("got %+v", got)
	}
}
