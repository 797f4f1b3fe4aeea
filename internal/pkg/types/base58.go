package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// decodeFixed 解码 base58 到定长数组，kind 只用于错误信息
func decodeFixed(kind, s string, dst []byte) error {
	data, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("decode base58 %s %q: %w", kind, s, err)
	}
	if len(data) != len(dst) {
		return fmt.Errorf("invalid %s length: got %d, want %d", kind, len(data), len(dst))
	}
	copy(dst, data)
	return nil
}
