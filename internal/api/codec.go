// Package api declares the tabsplit.v1 Connect services: procedure names,
// request and response messages, and the handler and client constructors.
//
// Messages are plain Go structs encoded as JSON, so every handler and client
// built here carries the JSON codec.
package api

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// codecName replaces Connect's protobuf JSON codec for the same content type.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
}
