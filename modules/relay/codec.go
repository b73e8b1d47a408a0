package relay

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/example/realtime-chatroom/events"
)

// Codec encodes envelopes for network backends.
type Codec interface {
	Name() string
	Marshal(env events.Envelope) ([]byte, error)
	Unmarshal(data []byte, env *events.Envelope) error
}

// JSONCodec encodes envelopes as JSON.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(env events.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (JSONCodec) Unmarshal(data []byte, env *events.Envelope) error {
	return json.Unmarshal(data, env)
}

// MsgpackCodec encodes envelopes as MessagePack. The payload stays JSON.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Marshal(env events.Envelope) ([]byte, error) {
	return msgpack.Marshal(env)
}

func (MsgpackCodec) Unmarshal(data []byte, env *events.Envelope) error {
	return msgpack.Unmarshal(data, env)
}

// CodecByName returns the codec registered under name. Empty means JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown relay codec %q", name)
	}
}
