package rpc

import "errors"

// errNoCapacity is returned by Session.CopyTo when the destination Session
// has fewer slots than the source has in use.
var errNoCapacity = errors.New("rpc: destination session has insufficient slot capacity")
