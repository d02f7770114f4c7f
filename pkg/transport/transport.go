// Package transport carries opaque serialized sync messages between
// replicas. The core treats every implementation as unreliable:
// messages may be dropped, duplicated or reordered, and the CRDT/OT
// layer above is chosen to tolerate exactly that.
package transport

import (
	"fmt"
	"sync"
)

// Transport delivers opaque byte messages between replicas.
type Transport interface {
	// Send broadcasts a serialized message to the other replicas.
	Send(message []byte) error
	// OnReceive registers the handler invoked for every inbound message.
	OnReceive(handler func(message []byte))
}

// LocalBus is an in-process broadcast bus connecting several
// endpoints. Used by tests and the embedded demo; delivery is
// synchronous and skips disconnected endpoints, which models a
// transport that silently drops messages.
type LocalBus struct {
	endpoints []*LocalEndpoint
	mutex     sync.RWMutex
}

// NewLocalBus creates an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// Endpoint attaches a new endpoint to the bus, initially disconnected.
func (b *LocalBus) Endpoint() *LocalEndpoint {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	ep := &LocalEndpoint{bus: b}
	b.endpoints = append(b.endpoints, ep)
	return ep
}

func (b *LocalBus) broadcast(from *LocalEndpoint, message []byte) {
	b.mutex.RLock()
	targets := make([]*LocalEndpoint, 0, len(b.endpoints))
	for _, ep := range b.endpoints {
		if ep != from {
			targets = append(targets, ep)
		}
	}
	b.mutex.RUnlock()

	for _, ep := range targets {
		ep.deliver(message)
	}
}

// LocalEndpoint is one replica's attachment to a LocalBus.
type LocalEndpoint struct {
	bus       *LocalBus
	handler   func([]byte)
	connected bool
	mutex     sync.RWMutex
}

// Connect marks the endpoint as reachable.
func (ep *LocalEndpoint) Connect() {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()
	ep.connected = true
}

// Disconnect detaches the endpoint; messages sent while disconnected
// are lost, as on a real network partition.
func (ep *LocalEndpoint) Disconnect() {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()
	ep.connected = false
}

// Send broadcasts to every other connected endpoint on the bus.
func (ep *LocalEndpoint) Send(message []byte) error {
	ep.mutex.RLock()
	connected := ep.connected
	ep.mutex.RUnlock()

	if !connected {
		return fmt.Errorf("endpoint disconnected")
	}

	// Copy so receivers cannot observe later mutations of the buffer.
	dup := make([]byte, len(message))
	copy(dup, message)
	ep.bus.broadcast(ep, dup)
	return nil
}

// OnReceive registers the inbound handler.
func (ep *LocalEndpoint) OnReceive(handler func([]byte)) {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()
	ep.handler = handler
}

func (ep *LocalEndpoint) deliver(message []byte) {
	ep.mutex.RLock()
	handler := ep.handler
	connected := ep.connected
	ep.mutex.RUnlock()

	if connected && handler != nil {
		handler(message)
	}
}
