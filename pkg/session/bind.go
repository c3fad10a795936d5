package session

import (
	"github.com/mash-protocol/tlsbridge/pkg/handle"
	"github.com/mash-protocol/tlsbridge/pkg/native"
	"github.com/mash-protocol/tlsbridge/pkg/transport"
)

// bridges holds every bridge currently bound to an engine. The engine only
// knows the ID; removing it is the single point where a transport is
// reclaimed.
var bridges = handle.NewRegistry[*transport.Bridge]()

// BoundTransports returns the number of transports currently bound to an
// engine across the process.
func BoundTransports() int {
	return bridges.Len()
}

// pull and push are the upcalls installed on every native context.

func pull(ref native.ConnectionRef, data []byte) (int, native.Status) {
	b, ok := bridges.Get(handle.ID(ref))
	if !ok {
		return 0, native.StatusParam
	}
	return b.Pull(data)
}

func push(ref native.ConnectionRef, data []byte) (int, native.Status) {
	b, ok := bridges.Get(handle.ID(ref))
	if !ok {
		return 0, native.StatusParam
	}
	return b.Push(data)
}
