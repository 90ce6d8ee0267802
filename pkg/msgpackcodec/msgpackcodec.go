// Package msgpackcodec registers a grpc/encoding.Codec backed by
// ugorji/go/codec's msgpack handle. It lets pkg/metarpc exchange plain Go
// structs over gRPC without protoc-generated proto.Message types.
package msgpackcodec

import (
	"bytes"

	"github.com/ugorji/go/codec"
	"google.golang.org/grpc/encoding"
)

// Name is the gRPC content-subtype this codec registers under; client calls
// select it with grpc.CallContentSubtype (see pkg/metarpc), and a server
// picks it from the request's content-subtype once this package is linked in.
const Name = "msgpack"

var handle = &codec.MsgpackHandle{}

type grpcCodec struct{}

func (grpcCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, handle).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (grpcCodec) Unmarshal(data []byte, v interface{}) error {
	return codec.NewDecoder(bytes.NewReader(data), handle).Decode(v)
}

func (grpcCodec) Name() string { return Name }

func init() {
	encoding.RegisterCodec(grpcCodec{})
}
