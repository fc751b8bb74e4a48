// Package relay fans session events out to connected participants and
// enforces per-(sender,receiver) delivery order for directed messages.
package relay

import (
	"sync"

	"github.com/golang/glog"

	"github.com/sensemesh/sensemesh/wire"
)

// Sink is one participant's outbound channel. Send must not block the
// caller; the websocket handler backs it with a buffered data chan.
type Sink interface {
	Send(msg *wire.ServerMsg)
}

// Dispatcher maps connection IDs to sinks. Directed delivery to a
// connection that has gone away is a silent drop: no delivery receipt
// exists, so senders cannot tell "delivered" from "receiver left".
type Dispatcher struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{sinks: make(map[string]Sink)}
}

func (d *Dispatcher) Attach(connID string, s Sink) {
	d.mu.Lock()
	d.sinks[connID] = s
	d.mu.Unlock()
}

func (d *Dispatcher) Detach(connID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sinks[connID]; !ok {
		return false
	}
	delete(d.sinks, connID)
	return true
}

// DeliverToOne sends to exactly one connection if currently present.
// Returns false when the message was dropped.
func (d *Dispatcher) DeliverToOne(connID string, msg *wire.ServerMsg) bool {
	d.mu.RLock()
	s, ok := d.sinks[connID]
	d.mu.RUnlock()

	if !ok {
		glog.V(5).Infof("relay: drop delivery, receiver gone: %s", connID)
		droppedTotal.Inc()
		return false
	}
	s.Send(msg)
	countDelivery(msg)
	return true
}

// BroadcastAll sends to every currently connected participant.
func (d *Dispatcher) BroadcastAll(msg *wire.ServerMsg) {
	d.mu.RLock()
	sinks := make([]Sink, 0, len(d.sinks))
	for _, s := range d.sinks {
		sinks = append(sinks, s)
	}
	d.mu.RUnlock()

	for _, s := range sinks {
		s.Send(msg)
	}
	countDelivery(msg)
}

// BroadcastExcept sends to everyone but the named connection. Used for the
// gesture echo: the recognizing participant gets a first-person
// confirmation while everyone else sees the third-person annotation.
func (d *Dispatcher) BroadcastExcept(connID string, msg *wire.ServerMsg) {
	d.mu.RLock()
	sinks := make([]Sink, 0, len(d.sinks))
	for id, s := range d.sinks {
		if id != connID {
			sinks = append(sinks, s)
		}
	}
	d.mu.RUnlock()

	for _, s := range sinks {
		s.Send(msg)
	}
	countDelivery(msg)
}
