// Package rpc implements the MessagePack-RPC session layer (§4.5): header
// parsing and emission for request/response/notification messages, request
// id allocation with wraparound, and a fixed-capacity table correlating
// outstanding request ids to caller-supplied data. Payload tokens (method,
// args, error, result) are not read or written here; callers drive
// lib/mpack directly for those, the same way the session only claims the
// message's three- or four-element header.
package rpc

import "github.com/thebagchi/mpack-go/lib/mpack"

// MessageType is the wire `type` field: 0 for request, 1 for response, 2
// for notification.
type MessageType uint8

const (
	TypeRequest MessageType = iota
	TypeResponse
	TypeNotification
)

func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "Request"
	case TypeResponse:
		return "Response"
	case TypeNotification:
		return "Notification"
	default:
		return "MessageType(unknown)"
	}
}

// Message is the decoded header of one RPC message (three tokens, or two
// for a notification). ID is
// meaningful for Request and Response; Data is populated on Response with
// the value passed to Session.Request when the matching request was sent.
type Message struct {
	Type MessageType
	ID   uint32
	Data any
}

type slot struct {
	used bool
	id   uint32
	data any
}

// recvState is the Receive side's resumable cursor: which of the header's
// tokens has been consumed so far.
type recvState uint8

const (
	recvArray recvState = iota
	recvType
	recvID
)

// sendState mirrors recvState for the Request/Reply/Notify side.
type sendState uint8

const (
	sendIdle sendState = iota
	sendArray
	sendType
	sendID
)

// Session is the depth-bounded (in the sense of slot count) RPC
// correlation layer. It owns a Reader and a Writer and drives both to
// resume across buffer boundaries exactly like lib/mpack.Parser/Unparser
// do for object trees.
type Session struct {
	slots  []slot
	used   int
	nextID uint32

	reader *mpack.Reader
	writer *mpack.Writer

	recvStep recvState
	recvLen  uint32
	recvMsg  Message

	sendStep     sendState
	sendKind     MessageType
	sendID       uint32
	sendFreeIdx  int
	sendIsNotify bool
}

// NewSession returns a Session with room for `capacity` outstanding
// requests, with the request-id counter seeded at seed (the spec leaves
// the seed arbitrary; callers that care about cross-process uniqueness
// should pass something derived from time or a random source).
func NewSession(capacity int, seed uint32) *Session {
	return &Session{
		slots:  make([]slot, capacity),
		nextID: seed,
		reader: mpack.NewReader(),
		writer: mpack.NewWriter(),
	}
}

// Capacity returns the maximum number of outstanding requests this Session
// can track at once.
func (s *Session) Capacity() int { return len(s.slots) }

// Outstanding returns the number of slots currently in use.
func (s *Session) Outstanding() int { return s.used }

func (s *Session) findByID(id uint32) int {
	for i := range s.slots {
		if s.slots[i].used && s.slots[i].id == id {
			return i
		}
	}
	return -1
}

func (s *Session) firstFree() int {
	for i := range s.slots {
		if !s.slots[i].used {
			return i
		}
	}
	return -1
}

// allocate reserves a slot for a fresh request id, starting at nextID and
// probing forward on collision, per §4.5's "successive ids are tried
// until a free slot is found".
func (s *Session) allocate(data any) (uint32, bool) {
	if s.used >= len(s.slots) {
		return 0, false
	}
	id := s.nextID
	for i := 0; i <= len(s.slots); i++ {
		if s.findByID(id) < 0 {
			idx := s.firstFree()
			s.slots[idx] = slot{used: true, id: id, data: data}
			s.used++
			s.nextID = id + 1
			return id, true
		}
		id++
	}
	return 0, false
}

func (s *Session) free(idx int) {
	s.slots[idx] = slot{}
	s.used--
}

// ResetReceive discards any partially parsed message header. Use after
// Error.
func (s *Session) ResetReceive() {
	s.recvStep = recvArray
	s.recvLen = 0
	s.recvMsg = Message{}
	s.reader.Reset()
}

// ResetSend discards any partially emitted message header without freeing
// or allocating slots beyond what had already committed. Use after Error.
func (s *Session) ResetSend() {
	s.sendStep = sendIdle
	s.writer.Reset()
}

// Receive parses the next message header out of p, resuming across calls
// exactly like mpack.Reader.Read: Eof means more input is needed and must
// be supplied (not re-supplied) on the next call; Error means the Session
// must be reset before reuse.
//
// On success, status is Request, Response, or Notification and msg
// carries the decoded header. A malformed header yields EArray, EArrayL,
// EType, or EMsgID and resets the receive cursor so the next call starts a
// fresh message. A Response whose id has no matching outstanding request
// yields EResponseID.
//
// A received Request reserves a slot holding its id, which Reply later
// looks up and frees. If every slot is in use when a Request's id is due,
// Receive returns NoMem without consuming the id, so the call can be
// repeated after the Session is copied into a larger one.
func (s *Session) Receive(p []byte) (consumed int, msg Message, status mpack.Status, err error) {
	for {
		switch s.recvStep {
		case recvArray:
			n, tok, st, rerr := s.reader.Read(p[consumed:])
			consumed += n
			switch st {
			case mpack.Eof:
				return consumed, Message{}, mpack.Eof, nil
			case mpack.Error:
				s.ResetReceive()
				return consumed, Message{}, mpack.Error, rerr
			}
			if tok.Tag != mpack.TagArray {
				s.ResetReceive()
				return consumed, Message{}, mpack.EArray, nil
			}
			if tok.Length != 3 && tok.Length != 4 {
				s.ResetReceive()
				return consumed, Message{}, mpack.EArrayL, nil
			}
			s.recvLen = tok.Length
			s.recvStep = recvType

		case recvType:
			n, tok, st, rerr := s.reader.Read(p[consumed:])
			consumed += n
			switch st {
			case mpack.Eof:
				return consumed, Message{}, mpack.Eof, nil
			case mpack.Error:
				s.ResetReceive()
				return consumed, Message{}, mpack.Error, rerr
			}
			if tok.Tag != mpack.TagUInt || tok.Uint64() > 2 {
				s.ResetReceive()
				return consumed, Message{}, mpack.EType, nil
			}
			typ := MessageType(tok.Uint64())
			wantLen := uint32(4)
			if typ == TypeNotification {
				wantLen = 3
			}
			if s.recvLen != wantLen {
				s.ResetReceive()
				return consumed, Message{}, mpack.EArrayL, nil
			}
			s.recvMsg = Message{Type: typ}
			if typ == TypeNotification {
				result := s.recvMsg
				s.ResetReceive()
				return consumed, result, mpack.Notification, nil
			}
			s.recvStep = recvID

		case recvID:
			if s.recvMsg.Type == TypeRequest && s.used >= len(s.slots) {
				return consumed, Message{}, mpack.NoMem, nil
			}
			n, tok, st, rerr := s.reader.Read(p[consumed:])
			consumed += n
			switch st {
			case mpack.Eof:
				return consumed, Message{}, mpack.Eof, nil
			case mpack.Error:
				s.ResetReceive()
				return consumed, Message{}, mpack.Error, rerr
			}
			if tok.Tag != mpack.TagUInt || tok.Hi != 0 {
				s.ResetReceive()
				return consumed, Message{}, mpack.EMsgID, nil
			}
			id := tok.Lo
			s.recvMsg.ID = id
			if s.recvMsg.Type == TypeRequest {
				idx := s.firstFree()
				s.slots[idx] = slot{used: true, id: id}
				s.used++
				result := s.recvMsg
				s.ResetReceive()
				return consumed, result, mpack.Request, nil
			}
			idx := s.findByID(id)
			if idx < 0 {
				s.ResetReceive()
				return consumed, Message{}, mpack.EResponseID, nil
			}
			s.recvMsg.Data = s.slots[idx].data
			s.free(idx)
			result := s.recvMsg
			s.ResetReceive()
			return consumed, result, mpack.Response, nil
		}
	}
}

// Request allocates a fresh request id, reserving a slot that stores data
// until the matching Response is received, and emits the message header
// `[0, id]` (the caller must then write `method, args` itself). Returns
// NoMem if every slot is in use.
func (s *Session) Request(p []byte, data any) (consumed int, id uint32, status mpack.Status, err error) {
	if s.sendStep == sendIdle {
		allocated, ok := s.allocate(data)
		if !ok {
			return 0, 0, mpack.NoMem, nil
		}
		s.sendKind = TypeRequest
		s.sendID = allocated
		s.sendIsNotify = false
		s.sendStep = sendArray
	}
	return s.drainSend(p)
}

// Reply looks up id in the slot table and, if found, emits the message
// header `[1, id]` and frees the slot. Returns EResponseID without writing
// anything if id is not outstanding.
func (s *Session) Reply(p []byte, id uint32) (consumed int, status mpack.Status, err error) {
	if s.sendStep == sendIdle {
		idx := s.findByID(id)
		if idx < 0 {
			return 0, mpack.EResponseID, nil
		}
		s.sendKind = TypeResponse
		s.sendID = id
		s.sendFreeIdx = idx
		s.sendIsNotify = false
		s.sendStep = sendArray
	}
	n, _, st, serr := s.drainSend(p)
	if st == mpack.Ok {
		s.free(s.sendFreeIdx)
	}
	return n, st, serr
}

// Notify emits the message header `[2]` (the caller must then write
// `method, args` itself). Notifications carry no id and are never
// correlated to a response.
func (s *Session) Notify(p []byte) (consumed int, status mpack.Status, err error) {
	if s.sendStep == sendIdle {
		s.sendKind = TypeNotification
		s.sendIsNotify = true
		s.sendStep = sendArray
	}
	n, _, st, serr := s.drainSend(p)
	return n, st, serr
}

// drainSend writes whichever of the header's 2-3 tokens remain, resuming
// across calls via sendStep exactly like Receive resumes via recvStep.
func (s *Session) drainSend(p []byte) (consumed int, id uint32, status mpack.Status, err error) {
	arrayLen := uint32(4)
	if s.sendIsNotify {
		arrayLen = 3
	}
	for {
		switch s.sendStep {
		case sendArray:
			n, st, werr := s.writer.Write(p[consumed:], mpack.Array(arrayLen))
			consumed += n
			if st == mpack.Eof {
				return consumed, 0, mpack.Eof, nil
			}
			if st == mpack.Error {
				s.ResetSend()
				return consumed, 0, mpack.Error, werr
			}
			s.sendStep = sendType

		case sendType:
			n, st, werr := s.writer.Write(p[consumed:], mpack.UInt(uint64(s.sendKind)))
			consumed += n
			if st == mpack.Eof {
				return consumed, 0, mpack.Eof, nil
			}
			if st == mpack.Error {
				s.ResetSend()
				return consumed, 0, mpack.Error, werr
			}
			if s.sendIsNotify {
				s.sendStep = sendIdle
				return consumed, 0, mpack.Ok, nil
			}
			s.sendStep = sendID

		case sendID:
			n, st, werr := s.writer.Write(p[consumed:], mpack.UInt(uint64(s.sendID)))
			consumed += n
			if st == mpack.Eof {
				return consumed, 0, mpack.Eof, nil
			}
			if st == mpack.Error {
				s.ResetSend()
				return consumed, 0, mpack.Error, werr
			}
			result := s.sendID
			s.sendStep = sendIdle
			return consumed, result, mpack.Ok, nil
		}
	}
}

// CopyTo transfers this Session's full state — used slots, the request-id
// counter, and any in-progress receive/send cursor — into dst. dst must
// have at least as many slots as this Session currently has in use. Used
// to grow past a NoMem by moving into a larger Session.
func (s *Session) CopyTo(dst *Session) error {
	if s.used > len(dst.slots) {
		return errNoCapacity
	}
	for i := range dst.slots {
		dst.slots[i] = slot{}
	}
	w := 0
	for i := range s.slots {
		if s.slots[i].used {
			dst.slots[w] = s.slots[i]
			w++
		}
	}
	dst.used = s.used
	dst.nextID = s.nextID
	dst.recvStep = s.recvStep
	dst.recvLen = s.recvLen
	dst.recvMsg = s.recvMsg
	dst.sendStep = s.sendStep
	dst.sendKind = s.sendKind
	dst.sendID = s.sendID
	dst.sendFreeIdx = s.sendFreeIdx
	dst.sendIsNotify = s.sendIsNotify
	*dst.reader = *s.reader
	*dst.writer = *s.writer
	return nil
}
