package mpack

import "errors"

// errReservedByte is returned when the wire's next byte is 0xc1, a code
// the MessagePack format reserves and never assigns a meaning to.
var errReservedByte = errors.New("mpack: reserved type code 0xc1")

// errInvalidToken is returned by Writer.Write when asked to encode a Token
// with an unrecognised Tag or an internally inconsistent length.
var errInvalidToken = errors.New("mpack: invalid token")

// errWalkerPoisoned is returned by Parser.Parse and Unparser.Unparse when
// they are called again after a Throw has unwound the walker; the walker
// must be reinitialised before it can be driven again.
var errWalkerPoisoned = errors.New("mpack: walker poisoned by Throw, reinitialise before reuse")
