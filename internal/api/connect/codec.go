package connect

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec marshals the plain Go message structs of RoomService as JSON.
// It replaces connect's built-in "json" codec, which only accepts protobuf messages.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, message)
}

// WithJSONCodec returns the option that every RoomService handler and client needs.
func WithJSONCodec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
