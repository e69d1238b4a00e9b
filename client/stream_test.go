package client

import (
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"duelgrounds/protocol"
)

// fakeStreamServer upgrades /ws, pushes one state frame, then echoes
// heartbeats after a short delay so the RTT estimate is measurably
// positive.
func fakeStreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*nethttp.Request) bool { return true }}
	return httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/ws" {
			nethttp.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer feed-token" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		codec, err := protocol.ParseCodec(r.URL.Query().Get("codec"))
		if err != nil {
			w.WriteHeader(nethttp.StatusBadRequest)
			return
		}
		kind := websocket.TextMessage
		if codec.Binary() {
			kind = websocket.BinaryMessage
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		state, err := codec.Marshal(protocol.Frame{
			Ver:  protocol.Version,
			Type: protocol.FrameState,
			Players: []protocol.WorldPlayer{{
				ProfileID: "prof-1",
				Position:  protocol.Vec2{X: 7, Y: -3},
				Online:    true,
			}},
			ServerTime: time.Now().UnixMilli(),
		})
		if err != nil {
			return
		}
		if err := conn.WriteMessage(kind, state); err != nil {
			return
		}

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cf protocol.ClientFrame
			if codec.Unmarshal(payload, &cf) != nil || cf.Type != protocol.FrameHeartbeat {
				continue
			}
			time.Sleep(5 * time.Millisecond)
			reply, err := codec.Marshal(protocol.Frame{
				Ver:        protocol.Version,
				Type:       protocol.FrameHeartbeat,
				ServerTime: time.Now().UnixMilli(),
				ClientTime: cf.SentAt,
			})
			if err != nil {
				return
			}
			if err := conn.WriteMessage(kind, reply); err != nil {
				return
			}
		}
	}))
}

func TestStreamDeliversStateAndMeasuresRTT(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.CodecJSON, protocol.CodecMsgpack} {
		t.Run(string(codec), func(t *testing.T) {
			srv := fakeStreamServer(t)
			defer srv.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			s := NewStream(srv.URL, "feed-token", codec, zap.NewNop().Sugar())
			runDone := make(chan error, 1)
			go func() { runDone <- s.Run(ctx) }()

			batch := recvBatch(t, s.Snapshots())
			if len(batch) != 1 {
				t.Fatalf("batch size = %d, want 1", len(batch))
			}
			if batch[0].ActorID != "prof-1" || batch[0].Position.X() != 7 || batch[0].Position.Y() != -3 {
				t.Fatalf("unexpected snapshot %+v", batch[0])
			}

			deadline := time.Now().Add(3 * time.Second)
			for s.RTT() == 0 {
				if time.Now().After(deadline) {
					t.Fatal("no heartbeat echo within deadline")
				}
				time.Sleep(5 * time.Millisecond)
			}
			if rtt := s.RTT(); rtt <= 0 || rtt > 3*time.Second {
				t.Fatalf("implausible rtt %v", rtt)
			}

			cancel()
			if err := <-runDone; err != nil {
				t.Fatalf("Run returned %v after cancel, want nil", err)
			}
		})
	}
}

func TestStreamFailsFastOnRejectedSession(t *testing.T) {
	srv := fakeStreamServer(t)
	defer srv.Close()

	s := NewStream(srv.URL, "wrong-token", protocol.CodecJSON, zap.NewNop().Sugar())

	start := time.Now()
	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded with a rejected session")
	}
	if !strings.Contains(err.Error(), "stream rejected") {
		t.Fatalf("error = %v, want a definite rejection", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("rejection took %v, should not have retried", elapsed)
	}
}

func TestStreamReportsServerDrop(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*nethttp.Request) bool { return true }}
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting"), deadline)
		_ = conn.Close()
	}))
	defer srv.Close()

	s := NewStream(srv.URL, "feed-token", protocol.CodecJSON, zap.NewNop().Sugar())
	err := s.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "stream closed") {
		t.Fatalf("Run = %v, want a stream closed error", err)
	}
}
