package utils

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/proto"
)

const eventHeaderLen = 4

// EncodeEvent 前 4 字节为小端事件类型，之后是确定性 protobuf 编码
func EncodeEvent(eventType uint32, msg proto.Message) ([]byte, error) {
	buf := make([]byte, eventHeaderLen, eventHeaderLen+proto.Size(msg))
	binary.LittleEndian.PutUint32(buf, eventType)

	out, err := proto.MarshalOptions{Deterministic: true}.MarshalAppend(buf, msg)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: marshal %T: %w", eventType, msg, err)
	}
	return out, nil
}

// DecodeEvent 校验类型前缀后解码到 msg
func DecodeEvent(data []byte, wantType uint32, msg proto.Message) error {
	if len(data) < eventHeaderLen {
		return fmt.Errorf("decode event: %d bytes is shorter than header", len(data))
	}
	if got := binary.LittleEndian.Uint32(data); got != wantType {
		return fmt.Errorf("decode event: type %d, want %d", got, wantType)
	}
	if err := proto.Unmarshal(data[eventHeaderLen:], msg); err != nil {
		return fmt.Errorf("decode event: unmarshal %T: %w", msg, err)
	}
	return nil
}
