package net

import (
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"duelgrounds/protocol"
)

func dialStream(t *testing.T, serverURL, token, codec string) (*websocket.Conn, *nethttp.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	if codec != "" {
		url += "?codec=" + codec
	}
	header := nethttp.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func TestStreamDeliversStateAndHeartbeat(t *testing.T) {
	for _, codecName := range []string{"json", "msgpack"} {
		t.Run(codecName, func(t *testing.T) {
			env := newAPIEnv(t)
			token := env.registerAndLogin("alice", "alice@example.com")
			env.createProfile(token, "Alice")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go env.hub.Run(ctx)

			srv := httptest.NewServer(env.handler)
			defer srv.Close()

			conn, resp, err := dialStream(t, srv.URL, token, codecName)
			if err != nil {
				t.Fatalf("dialing stream: %v (resp=%+v)", err, resp)
			}
			defer conn.Close()

			codec, err := protocol.ParseCodec(codecName)
			if err != nil {
				t.Fatalf("parsing codec: %v", err)
			}

			readFrame := func() protocol.Frame {
				t.Helper()
				conn.SetReadDeadline(time.Now().Add(3 * time.Second))
				msgType, data, err := conn.ReadMessage()
				if err != nil {
					t.Fatalf("reading frame: %v", err)
				}
				if codec.Binary() && msgType != websocket.BinaryMessage {
					t.Fatalf("msgpack frames must be binary, got type %d", msgType)
				}
				if !codec.Binary() && msgType != websocket.TextMessage {
					t.Fatalf("json frames must be text, got type %d", msgType)
				}
				var frame protocol.Frame
				if err := codec.Unmarshal(data, &frame); err != nil {
					t.Fatalf("decoding frame: %v", err)
				}
				return frame
			}

			state := readFrame()
			if state.Type != protocol.FrameState {
				t.Fatalf("expected a state frame first, got %q", state.Type)
			}
			if state.Ver != protocol.Version {
				t.Fatalf("expected wire version %d, got %d", protocol.Version, state.Ver)
			}
			if len(state.Players) != 1 || state.Players[0].DisplayName != "Alice" {
				t.Fatalf("unexpected players in state frame: %+v", state.Players)
			}

			// Garbage input is discarded without killing the stream.
			kind := websocket.TextMessage
			if codec.Binary() {
				kind = websocket.BinaryMessage
			}
			if err := conn.WriteMessage(kind, []byte("{{not a frame")); err != nil {
				t.Fatalf("writing garbage: %v", err)
			}

			hb, err := codec.Marshal(protocol.ClientFrame{Type: protocol.FrameHeartbeat, SentAt: 12345})
			if err != nil {
				t.Fatalf("encoding heartbeat: %v", err)
			}
			if err := conn.WriteMessage(kind, hb); err != nil {
				t.Fatalf("writing heartbeat: %v", err)
			}

			deadline := time.Now().Add(3 * time.Second)
			for {
				if time.Now().After(deadline) {
					t.Fatalf("no heartbeat reply before deadline")
				}
				frame := readFrame()
				if frame.Type != protocol.FrameHeartbeat {
					continue
				}
				if frame.ClientTime != 12345 {
					t.Fatalf("expected the heartbeat to echo sentAt=12345, got %d", frame.ClientTime)
				}
				if frame.ServerTime == 0 {
					t.Fatalf("expected a server clock on the heartbeat reply")
				}
				return
			}
		})
	}
}

func TestStreamRequiresSession(t *testing.T) {
	env := newAPIEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	_, resp, err := dialStream(t, srv.URL, "", "")
	if err == nil {
		t.Fatalf("expected the handshake to fail without a session")
	}
	if resp == nil || resp.StatusCode != nethttp.StatusUnauthorized {
		t.Fatalf("expected a 401 handshake rejection, got %+v", resp)
	}
	resp.Body.Close()
}

func TestStreamRejectsUnknownCodec(t *testing.T) {
	env := newAPIEnv(t)
	token := env.registerAndLogin("alice", "alice@example.com")

	resp := env.do(nethttp.MethodGet, "/ws?codec=zstd", token, nil)
	if resp.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown codec, got %d", resp.Code)
	}
	if wire := rejection(t, resp); wire.Code != protocol.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %s", wire.Code)
	}
}
