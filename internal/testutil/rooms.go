package testutil

import (
	"sync"
)

// rooms tracks which peer connections have joined which thread.
// ARCHITECTURAL DISCOVERY: a participant holds at most one connection; registering a
// new one replaces the old one, and unregistering only removes the exact instance so a
// late cleanup of a replaced connection cannot evict its successor
type rooms struct {
	mu       sync.RWMutex
	byThread map[string]map[string]*peerConn
}

func newRooms() *rooms {
	return &rooms{byThread: make(map[string]map[string]*peerConn)}
}

// join registers conn in threadID and returns the connection it replaced, if any.
func (r *rooms) join(threadID string, conn *peerConn) *peerConn {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.byThread[threadID]
	if members == nil {
		members = make(map[string]*peerConn)
		r.byThread[threadID] = members
	}
	previous := members[conn.participantID]
	members[conn.participantID] = conn
	if previous == conn {
		return nil
	}
	return previous
}

// leave removes conn from every thread it is registered in.
func (r *rooms) leave(conn *peerConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for threadID, members := range r.byThread {
		if members[conn.participantID] != conn {
			continue
		}
		delete(members, conn.participantID)
		if len(members) == 0 {
			delete(r.byThread, threadID)
		}
	}
}

// members returns the connections in threadID, optionally skipping one participant.
func (r *rooms) members(threadID, except string) []*peerConn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*peerConn
	for id, conn := range r.byThread[threadID] {
		if id != except {
			conns = append(conns, conn)
		}
	}
	return conns
}

func (r *rooms) all() []*peerConn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*peerConn
	for _, members := range r.byThread {
		for _, conn := range members {
			conns = append(conns, conn)
		}
	}
	return conns
}

func (r *rooms) count(threadID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byThread[threadID])
}
