package server

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName content-subtype，客户端以 application/grpc+json 调用
const CodecName = "json"

// jsonCodec 服务消息是普通 Go 结构体，用 JSON 编码走 gRPC 传输
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return CodecName }

// Codec 供客户端 grpc.ForceCodec 使用
func Codec() encoding.Codec { return jsonCodec{} }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
