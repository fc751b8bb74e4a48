// Package mesh owns the presence registry: the set of currently connected
// participants and their accessibility profiles. It is the source of truth
// for routing decisions.
package mesh

import (
	"sync"

	"github.com/golang/glog"

	"github.com/sensemesh/sensemesh/wire"
)

// Registry tracks participants by connection ID. All mutations are
// serialized by the mutex; snapshots are computed under the same lock so a
// broadcast always reflects the exact registry contents at that moment.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*wire.Participant
	order []string // conn IDs in join order
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*wire.Participant)}
}

// Join inserts or replaces the participant and returns the updated
// snapshot. Idempotent: re-joining keeps the original position.
func (r *Registry) Join(p wire.Participant) []wire.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[p.ConnID]; !ok {
		r.order = append(r.order, p.ConnID)
	}
	cp := p
	r.byID[p.ConnID] = &cp

	glog.V(5).Infof("mesh: join conn: %s, name: %s, profile: %s", p.ConnID, p.DisplayName, p.Profile)
	return r.snapshotLocked()
}

// Leave removes the participant if present. The second return is false if
// the conn ID was unknown; the snapshot is valid either way.
func (r *Registry) Leave(connID string) ([]wire.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[connID]; !ok {
		return r.snapshotLocked(), false
	}
	delete(r.byID, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	glog.V(5).Infof("mesh: leave conn: %s", connID)
	return r.snapshotLocked(), true
}

// Lookup returns a point-in-time copy of the participant. Pipelines call
// this once at start and never read the registry again mid-flight.
func (r *Registry) Lookup(connID string) (wire.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[connID]
	if !ok {
		return wire.Participant{}, false
	}
	return *p, true
}

// Snapshot returns all participants in join order.
func (r *Registry) Snapshot() []wire.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) snapshotLocked() []wire.Participant {
	out := make([]wire.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}
