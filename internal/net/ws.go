package net

import (
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"duelgrounds/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*nethttp.Request) bool { return true },
}

// readWait bounds how long a subscriber may stay silent. Clients beat
// every few seconds, so an expired deadline means the peer is gone.
const readWait = 60 * time.Second

// stream upgrades to a websocket and attaches the connection to the
// world hub, which pushes state frames at the broadcast rate. The only
// upstream traffic is heartbeats; they double as presence keep-alives.
func (h *api) stream(w nethttp.ResponseWriter, r *nethttp.Request) {
	acct, err := h.auth.ResolveToken(r.Context(), sessionToken(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	codec, err := protocol.ParseCodec(r.URL.Query().Get("codec"))
	if err != nil {
		h.writeError(w, protocol.Reject(protocol.CodeValidation, err.Error()))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "account", acct.ID, "error", err)
		return
	}

	id, err := h.hub.Subscribe(conn, codec)
	if err != nil {
		// Hub at capacity. Tell the client to retry rather than hang.
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full"), deadline)
		_ = conn.Close()
		return
	}
	defer h.hub.Unsubscribe(id)

	conn.SetReadLimit(1 << 20) // 1MB
	_ = conn.SetReadDeadline(time.Now().Add(readWait))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		var frame protocol.ClientFrame
		if err := codec.Unmarshal(data, &frame); err != nil {
			h.log.Debugw("discarding malformed frame", "account", acct.ID, "error", err)
			continue
		}
		switch frame.Type {
		case protocol.FrameHeartbeat:
			h.presence.Touch(acct.ID, time.Now())
			h.hub.SendHeartbeatReply(id, frame.SentAt)
		default:
			h.log.Debugw("discarding unknown frame", "account", acct.ID, "type", frame.Type)
		}
	}
}
