package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec implements google.golang.org/grpc/encoding.Codec using
// encoding/json instead of protobuf wire encoding. Registering it under
// name "json" and dialing/serving with grpc.CallContentSubtype("json") (or
// the server-side default codec override) keeps the real gRPC transport —
// HTTP/2 framing, TLS, metadata, bidirectional streaming, deadlines — while
// letting wire messages be plain Go structs. See DESIGN.md for why this
// stands in for protoc-generated stubs in this repository.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
