package rpc

import (
	"testing"

	"github.com/thebagchi/mpack-go/lib/mpack"
)

// drainRequest pumps Request to completion against a small output buffer,
// exercising resumability the same way the mpack reader/writer tests do.
func drainRequest(t *testing.T, s *Session, data any) (uint32, []byte) {
	t.Helper()
	var out []byte
	buf := make([]byte, 2)
	for {
		n, id, status, err := s.Request(buf, data)
		if err != nil {
			t.Fatalf("Request error: %v", err)
		}
		out = append(out, buf[:n]...)
		if status == mpack.Ok {
			return id, out
		}
		if status != mpack.Eof {
			t.Fatalf("unexpected status %v", status)
		}
	}
}

func drainReply(t *testing.T, s *Session, id uint32) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 2)
	for {
		n, status, err := s.Reply(buf, id)
		if err != nil {
			t.Fatalf("Reply error: %v", err)
		}
		out = append(out, buf[:n]...)
		if status == mpack.Ok {
			return out
		}
		if status != mpack.Eof {
			t.Fatalf("unexpected status %v", status)
		}
	}
}

func drainNotify(t *testing.T, s *Session) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 2)
	for {
		n, status, err := s.Notify(buf)
		if err != nil {
			t.Fatalf("Notify error: %v", err)
		}
		out = append(out, buf[:n]...)
		if status == mpack.Ok {
			return out
		}
		if status != mpack.Eof {
			t.Fatalf("unexpected status %v", status)
		}
	}
}

func drainReceive(t *testing.T, s *Session, buf []byte) Message {
	t.Helper()
	off := 0
	for {
		n, msg, status, err := s.Receive(buf[off:])
		off += n
		switch status {
		case mpack.Eof:
			if off >= len(buf) {
				t.Fatalf("ran out of input before completing receive")
			}
		case mpack.Error:
			t.Fatalf("Receive error: %v", err)
		default:
			return msg
		}
	}
}

func TestRequestReplyRoundTrip(t *testing.T) {
	client := NewSession(4, 1)
	id, reqBytes := drainRequest(t, client, "correlation-data")

	server := NewSession(4, 1)
	msg := drainReceive(t, server, reqBytes)
	if msg.Type != TypeRequest {
		t.Fatalf("server saw Type=%v, want Request", msg.Type)
	}
	if msg.ID != id {
		t.Fatalf("server saw ID=%d, want %d", msg.ID, id)
	}

	replyBytes := drainReply(t, server, msg.ID)

	clientMsg := drainReceive(t, client, replyBytes)
	if clientMsg.Type != TypeResponse {
		t.Fatalf("client saw Type=%v, want Response", clientMsg.Type)
	}
	if clientMsg.ID != id {
		t.Fatalf("client saw ID=%d, want %d", clientMsg.ID, id)
	}
	if clientMsg.Data != "correlation-data" {
		t.Fatalf("client saw Data=%v, want %q", clientMsg.Data, "correlation-data")
	}
	if client.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d, want 0 after matched response", client.Outstanding())
	}
}

func TestNotifyHasNoID(t *testing.T) {
	s := NewSession(2, 1)
	buf := drainNotify(t, s)

	other := NewSession(2, 1)
	msg := drainReceive(t, other, buf)
	if msg.Type != TypeNotification {
		t.Fatalf("Type = %v, want Notification", msg.Type)
	}
	if msg.ID != 0 {
		t.Errorf("notification ID = %d, want 0", msg.ID)
	}
}

func TestReplyUnknownIDIsEResponseID(t *testing.T) {
	s := NewSession(2, 1)
	_, status, err := s.Reply(make([]byte, 8), 999)
	if status != mpack.EResponseID {
		t.Fatalf("status = %v, want EResponseID", status)
	}
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReceiveResponseUnknownIDIsEResponseID(t *testing.T) {
	// Fabricate a legitimate-looking response for an id that the receiving
	// session never allocated as an outstanding request.
	seeded := NewSession(2, 0)
	idx := seeded.firstFree()
	seeded.slots[idx] = slot{used: true, id: 7}
	seeded.used++
	replyBytes := drainReply(t, seeded, 7)

	fresh := NewSession(2, 0)
	_, _, status, err := fresh.Receive(replyBytes)
	if status != mpack.EResponseID {
		t.Fatalf("status = %v, want EResponseID", status)
	}
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRequestIDUniquenessAndWraparound(t *testing.T) {
	s := NewSession(4, 0xfffffffe)
	id1, _ := drainRequest(t, s, "a")
	id2, _ := drainRequest(t, s, "b")
	id3, _ := drainRequest(t, s, "c")

	if id1 == id2 || id2 == id3 || id1 == id3 {
		t.Fatalf("ids not unique: %d %d %d", id1, id2, id3)
	}
	if id1 != 0xfffffffe {
		t.Errorf("id1 = %#x, want 0xfffffffe", id1)
	}
	if id2 != 0xffffffff {
		t.Errorf("id2 = %#x, want 0xffffffff", id2)
	}
	if id3 != 0 {
		t.Errorf("id3 = %#x, want 0 (wrapped)", id3)
	}
}

func TestRequestNoMemWhenSlotsExhausted(t *testing.T) {
	s := NewSession(1, 1)
	_, _ = drainRequest(t, s, "only-slot")
	_, _, status, err := s.Request(make([]byte, 8), "overflow")
	if status != mpack.NoMem {
		t.Fatalf("status = %v, want NoMem", status)
	}
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSessionCopyPreservesOutstandingSlots(t *testing.T) {
	small := NewSession(1, 5)
	id, _ := drainRequest(t, small, "payload")

	big := NewSession(2, 0)
	if err := small.CopyTo(big); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	if big.Outstanding() != 1 {
		t.Fatalf("Outstanding() = %d, want 1", big.Outstanding())
	}

	// Fabricate the matching response the way a peer session would send it,
	// then confirm the grown session still resolves it to the original data.
	peer := NewSession(2, 0)
	idx := peer.firstFree()
	peer.slots[idx] = slot{used: true, id: id}
	peer.used++
	replyBytes := drainReply(t, peer, id)

	_, msg, status, err := big.Receive(replyBytes)
	if err != nil || status != mpack.Response {
		t.Fatalf("Receive: status=%v err=%v", status, err)
	}
	if msg.ID != id {
		t.Fatalf("ID = %d, want %d", msg.ID, id)
	}
	if msg.Data != "payload" {
		t.Errorf("Data = %v, want %q", msg.Data, "payload")
	}
}

func TestMalformedHeaderEArray(t *testing.T) {
	s := NewSession(2, 1)
	// A bare UInt instead of an array header.
	buf := []byte{0x01}
	_, _, status, err := s.Receive(buf)
	if status != mpack.EArray {
		t.Fatalf("status = %v, want EArray", status)
	}
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMalformedHeaderEArrayL(t *testing.T) {
	s := NewSession(2, 1)
	// A 2-element array header, valid for neither request/response (4) nor
	// notification (3).
	buf := []byte{0x92}
	_, _, status, err := s.Receive(buf)
	if status != mpack.EArrayL {
		t.Fatalf("status = %v, want EArrayL", status)
	}
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
