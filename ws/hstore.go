package ws

import (
	"sync"
)

// memory handler store for active sessions, joined or not.
type HandlerStore struct {
	sync.RWMutex
	handlers map[string]*Handler
}

func (hs *HandlerStore) get(connID string) *Handler {
	hs.RLock()
	h := hs.handlers[connID]
	hs.RUnlock()
	return h
}

func (hs *HandlerStore) del(connID string) bool {
	hs.Lock()
	defer hs.Unlock()
	if _, ok := hs.handlers[connID]; ok {
		delete(hs.handlers, connID)
		return true
	}
	return false
}

func (hs *HandlerStore) add(handler *Handler) {
	hs.Lock()
	hs.handlers[handler.connID] = handler
	hs.Unlock()
}

func (hs *HandlerStore) close() {
	hs.RLock()
	defer hs.RUnlock()
	for _, h := range hs.handlers {
		h.close(ServerStop)
	}
}
