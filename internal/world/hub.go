package world

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"duelgrounds/internal/store"
	"duelgrounds/protocol"
)

const (
	// DefaultBroadcastHz is the state fan-out rate for stream subscribers.
	DefaultBroadcastHz = 10
	// DefaultMaxSubscribers caps concurrent stream connections.
	DefaultMaxSubscribers = 256

	writeWait = 10 * time.Second
)

// ErrHubFull is returned by Subscribe once the subscriber cap is reached.
var ErrHubFull = errors.New("world: subscriber limit reached")

// Hub builds world snapshots from the store and pushes them to websocket
// subscribers at a fixed rate. Snapshots read through the store's normal
// read path, so broadcasting never blocks profile writers.
type Hub struct {
	store    store.Store
	presence *Presence
	log      *zap.SugaredLogger
	hz       int
	sem      *semaphore.Weighted

	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
	tick        atomic.Uint64
}

type subscriber struct {
	conn  *websocket.Conn
	codec protocol.Codec
	mu    sync.Mutex
}

func NewHub(st store.Store, presence *Presence, hz, maxSubscribers int, log *zap.SugaredLogger) *Hub {
	if hz <= 0 {
		hz = DefaultBroadcastHz
	}
	if maxSubscribers <= 0 {
		maxSubscribers = DefaultMaxSubscribers
	}
	return &Hub{
		store:       st,
		presence:    presence,
		log:         log,
		hz:          hz,
		sem:         semaphore.NewWeighted(int64(maxSubscribers)),
		subscribers: make(map[uint64]*subscriber),
	}
}

// Snapshot assembles the authoritative world state: every profile with its
// position plus an online flag derived from account presence.
func (h *Hub) Snapshot(ctx context.Context) (protocol.WorldState, error) {
	profiles, err := h.store.Profiles(ctx)
	if err != nil {
		return protocol.WorldState{}, err
	}
	entries := h.presence.Snapshot()
	online := make(map[string]bool, len(entries))
	for _, e := range entries {
		online[e.AccountID] = true
	}
	players := make([]protocol.WorldPlayer, 0, len(profiles))
	for _, prof := range profiles {
		players = append(players, protocol.WorldPlayer{
			ProfileID:        prof.ID,
			UserID:           prof.AccountID,
			DisplayName:      prof.DisplayName,
			EquippedWeaponID: prof.EquippedWeaponID,
			Position:         protocol.Vec2{X: prof.X, Y: prof.Y},
			Online:           online[prof.AccountID],
		})
	}
	return protocol.WorldState{
		Players:    players,
		Count:      len(players),
		ServerTime: time.Now().UnixMilli(),
	}, nil
}

// Subscribe registers a websocket connection for state frames.
func (h *Hub) Subscribe(conn *websocket.Conn, codec protocol.Codec) (uint64, error) {
	if !h.sem.TryAcquire(1) {
		return 0, ErrHubFull
	}
	id := h.nextID.Add(1)
	h.mu.Lock()
	h.subscribers[id] = &subscriber{conn: conn, codec: codec}
	active := len(h.subscribers)
	h.mu.Unlock()
	h.log.Infow("stream subscribed", "subscriber", id, "codec", codec, "active", active)
	return id, nil
}

// Unsubscribe drops the subscriber and closes its connection. Safe to call
// twice; only the call that removes the entry releases the slot.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.sem.Release(1)
	_ = sub.conn.Close()
	h.log.Infow("stream unsubscribed", "subscriber", id)
}

// Subscribers reports how many stream connections are attached.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// SendHeartbeatReply echoes a heartbeat back to one subscriber with the
// server clock attached.
func (h *Hub) SendHeartbeatReply(id uint64, sentAt int64) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	h.mu.Unlock()
	if !ok {
		return
	}
	frame := protocol.Frame{
		Ver:        protocol.Version,
		Type:       protocol.FrameHeartbeat,
		ServerTime: time.Now().UnixMilli(),
		ClientTime: sentAt,
	}
	if err := h.write(id, sub, frame); err != nil {
		h.Unsubscribe(id)
	}
}

// Run broadcasts state frames at the configured rate until ctx ends, then
// closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(h.hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.broadcast(ctx)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[uint64]*subscriber)
	h.mu.Unlock()
	for _, sub := range subs {
		_ = sub.conn.Close()
		h.sem.Release(1)
	}
}

// broadcast sends the latest snapshot to every subscriber, encoding once
// per codec. Failed writes drop the subscriber.
func (h *Hub) broadcast(ctx context.Context) {
	h.mu.Lock()
	subs := make(map[uint64]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	state, err := h.Snapshot(ctx)
	if err != nil {
		h.log.Warnw("world snapshot failed", "error", err)
		return
	}
	frame := protocol.Frame{
		Ver:        protocol.Version,
		Type:       protocol.FrameState,
		Players:    state.Players,
		Tick:       h.tick.Add(1),
		ServerTime: state.ServerTime,
	}

	encoded := make(map[protocol.Codec][]byte, 2)
	for id, sub := range subs {
		data, ok := encoded[sub.codec]
		if !ok {
			var err error
			data, err = sub.codec.Marshal(frame)
			if err != nil {
				h.log.Errorw("encode state frame", "codec", sub.codec, "error", err)
				continue
			}
			encoded[sub.codec] = data
		}
		if err := h.writeRaw(sub, data); err != nil {
			h.log.Infow("dropping unwritable subscriber", "subscriber", id, "error", err)
			h.Unsubscribe(id)
		}
	}
}

func (h *Hub) write(id uint64, sub *subscriber, frame protocol.Frame) error {
	data, err := sub.codec.Marshal(frame)
	if err != nil {
		h.log.Errorw("encode frame", "subscriber", id, "error", err)
		return nil
	}
	return h.writeRaw(sub, data)
}

func (h *Hub) writeRaw(sub *subscriber, data []byte) error {
	msgType := websocket.TextMessage
	if sub.codec.Binary() {
		msgType = websocket.BinaryMessage
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sub.conn.WriteMessage(msgType, data)
}
