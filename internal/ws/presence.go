package ws

import (
	"sort"
	"sync"
)

// Presence counts live connections per user. A user is online while at least
// one connection is open.
type Presence struct {
	mu    sync.Mutex
	conns map[int64]int
}

func NewPresence() *Presence {
	return &Presence{conns: make(map[int64]int)}
}

// Connect records a new connection and reports whether it is the user's
// first. onFirst runs under the presence lock on that transition, so
// notifications of one user's transitions go out in the order they happened.
// It must not block.
func (p *Presence) Connect(userID int64, onFirst func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[userID]++
	if p.conns[userID] != 1 {
		return false
	}
	if onFirst != nil {
		onFirst()
	}
	return true
}

// Disconnect records a closed connection and reports whether it was the
// user's last. onLast runs under the presence lock, like onFirst in Connect.
func (p *Presence) Disconnect(userID int64, onLast func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.conns[userID]
	if !ok {
		return false
	}
	if n > 1 {
		p.conns[userID] = n - 1
		return false
	}
	delete(p.conns, userID)
	if onLast != nil {
		onLast()
	}
	return true
}

func (p *Presence) Online(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[userID] > 0
}

// OnlineUsers lists online users in ascending id order.
func (p *Presence) OnlineUsers() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int64, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
