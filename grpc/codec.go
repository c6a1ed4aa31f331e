// Package grpc contains the gRPC plumbing shared by the provider, stations and sensors: a JSON
// codec, hand-declared service descriptors, dialing, interceptors and error mapping.
//
// Every peer compiles the same service schema ahead of time. Requests and responses are plain Go
// structs carried with the "json" content-subtype so no generated code is required.
package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// JSONCodecName is the content-subtype under which the JSON codec is registered.
const JSONCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return JSONCodecName
}
