package types

import "github.com/mr-tron/base58"

// Hash 32 字节哈希，用于 blockhash（交易的 recency anchor）
type Hash [32]byte

func (h Hash) String() string {
	return base58.Encode(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func HashFromBase58(s string) (Hash, error) {
	var h Hash
	err := decodeFixed("hash", s, h[:])
	return h, err
}
