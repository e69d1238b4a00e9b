// Package world assembles arena snapshots and fans them out to stream
// subscribers. REST polling and the websocket stream share one snapshot
// view so both transports see the same state.
package world

import (
	"sort"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Presence tracks which accounts hold an open arena session. Entries are
// keyed by account id: a user is online once no matter how many profiles
// they own.
type Presence struct {
	mu      deadlock.RWMutex
	entries map[string]presenceEntry
}

type presenceEntry struct {
	connectedAt time.Time
	lastSeen    time.Time
}

// OnlineEntry is one present account.
type OnlineEntry struct {
	AccountID   string
	ConnectedAt time.Time
	LastSeen    time.Time
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[string]presenceEntry)}
}

// Connect marks the account online. Reconnecting resets the connection
// time, matching a fresh session.
func (p *Presence) Connect(accountID string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[accountID] = presenceEntry{connectedAt: at, lastSeen: at}
}

// Touch refreshes last-seen for an online account. Offline accounts are
// left alone; polling does not imply presence.
func (p *Presence) Touch(accountID string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[accountID]
	if !ok {
		return
	}
	e.lastSeen = at
	p.entries[accountID] = e
}

func (p *Presence) Disconnect(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, accountID)
}

func (p *Presence) Online(accountID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[accountID]
	return ok
}

// Snapshot returns the online accounts ordered by connection time, account
// id breaking ties.
func (p *Presence) Snapshot() []OnlineEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]OnlineEntry, 0, len(p.entries))
	for id, e := range p.entries {
		out = append(out, OnlineEntry{AccountID: id, ConnectedAt: e.connectedAt, LastSeen: e.lastSeen})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
