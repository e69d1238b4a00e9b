package client

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"duelgrounds/protocol"
	"duelgrounds/sim"
)

const (
	heartbeatInterval = 5 * time.Second
	dialAttempts      = 12
	dialBackoff       = 180 * time.Millisecond
)

// Stream subscribes to the /ws push feed. State frames land on the
// snapshot channel; heartbeat echoes feed the RTT estimate.
type Stream struct {
	url   string
	token string
	codec protocol.Codec
	log   *zap.SugaredLogger
	out   chan []sim.Snapshot

	mu  sync.Mutex
	rtt time.Duration
}

// NewStream derives the stream endpoint from the server's base HTTP URL;
// http becomes ws, https becomes wss. An empty codec means JSON.
func NewStream(baseURL, token string, codec protocol.Codec, log *zap.SugaredLogger) *Stream {
	if codec == "" {
		codec = protocol.CodecJSON
	}
	url := "ws" + strings.TrimPrefix(strings.TrimRight(baseURL, "/"), "http") + "/ws"
	if codec != protocol.CodecJSON {
		url += "?codec=" + string(codec)
	}
	return &Stream{
		url:   url,
		token: token,
		codec: codec,
		log:   log,
		out:   make(chan []sim.Snapshot, 1),
	}
}

// Snapshots is the feed. Each batch supersedes the previous one and the
// channel is never closed; Run returning means the feed has gone stale.
func (s *Stream) Snapshots() <-chan []sim.Snapshot {
	return s.out
}

// RTT reports the most recent heartbeat round trip, zero before the
// first echo lands.
func (s *Stream) RTT() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtt
}

// Run dials, then reads frames until ctx is canceled or the connection
// drops. It returns nil on cancellation and the transport error
// otherwise; reconnecting is the caller's call.
func (s *Stream) Run(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("dialing stream: %w", err)
	}
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	defer close(done)

	// Heartbeats go out from a dedicated goroutine; gorilla connections
	// allow exactly one concurrent writer. The first beat fires right
	// away so the RTT estimate is available early.
	go func() {
		if err := s.writeHeartbeat(conn); err != nil {
			return
		}
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.writeHeartbeat(conn); err != nil {
					return
				}
			case <-ctx.Done():
				deadline := time.Now().Add(time.Second)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				_ = conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream closed: %w", err)
		}

		var frame protocol.Frame
		if err := s.codec.Unmarshal(data, &frame); err != nil {
			s.log.Debugw("discarding malformed frame", "error", err)
			continue
		}

		switch frame.Type {
		case protocol.FrameState:
			offer(s.out, toSnapshots(frame.Players, time.Now()))
		case protocol.FrameHeartbeat:
			if frame.ClientTime > 0 {
				rtt := time.Duration(time.Now().UnixMilli()-frame.ClientTime) * time.Millisecond
				s.mu.Lock()
				s.rtt = rtt
				s.mu.Unlock()
			}
		default:
			s.log.Debugw("discarding unknown frame", "type", frame.Type)
		}
	}
}

func (s *Stream) writeHeartbeat(conn *websocket.Conn) error {
	data, err := s.codec.Marshal(protocol.ClientFrame{
		Type:   protocol.FrameHeartbeat,
		SentAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	kind := websocket.TextMessage
	if s.codec.Binary() {
		kind = websocket.BinaryMessage
	}
	return conn.WriteMessage(kind, data)
}

// dial retries transient failures but gives up immediately on a definite
// rejection; a bad session or codec will not heal with time.
func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	header := nethttp.Header{}
	header.Set("Authorization", "Bearer "+s.token)

	var lastErr error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
		if err == nil {
			return conn, nil
		}
		if resp != nil {
			status := resp.StatusCode
			resp.Body.Close()
			if status == nethttp.StatusUnauthorized || status == nethttp.StatusBadRequest {
				return nil, fmt.Errorf("stream rejected: %s", resp.Status)
			}
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialBackoff):
		}
	}
	return nil, lastErr
}
