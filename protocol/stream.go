package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame types carried on the /ws stream.
const (
	FrameState     = "state"
	FrameHeartbeat = "heartbeat"
)

// Frame is one stream message. State frames carry the world snapshot;
// heartbeat frames echo the client's clock for RTT measurement.
type Frame struct {
	Ver        int           `json:"ver"`
	Type       string        `json:"type"`
	Players    []WorldPlayer `json:"players,omitempty"`
	Tick       uint64        `json:"t,omitempty"`
	ServerTime int64         `json:"serverTime"`
	ClientTime int64         `json:"clientTime,omitempty"`
}

// ClientFrame is what clients send upstream. Only heartbeats are defined;
// anything else is discarded by the server.
type ClientFrame struct {
	Type   string `json:"type"`
	SentAt int64  `json:"sentAt,omitempty"`
}

// Codec selects the stream encoding. JSON is the default; clients that
// want smaller frames negotiate msgpack with ?codec=msgpack.
type Codec string

const (
	CodecJSON    Codec = "json"
	CodecMsgpack Codec = "msgpack"
)

// ParseCodec maps the query value to a codec, defaulting to JSON.
func ParseCodec(raw string) (Codec, error) {
	switch raw {
	case "", string(CodecJSON):
		return CodecJSON, nil
	case string(CodecMsgpack):
		return CodecMsgpack, nil
	default:
		return "", fmt.Errorf("unknown codec %q", raw)
	}
}

// Binary reports whether frames should travel as binary websocket messages.
func (c Codec) Binary() bool {
	return c == CodecMsgpack
}

func (c Codec) Marshal(v any) ([]byte, error) {
	if c == CodecMsgpack {
		return msgpack.Marshal(v)
	}
	return json.Marshal(v)
}

func (c Codec) Unmarshal(data []byte, v any) error {
	if c == CodecMsgpack {
		return msgpack.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}
