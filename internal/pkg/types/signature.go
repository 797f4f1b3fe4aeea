package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Signature ed25519 签名（64 字节），同时也是交易在链上的标识
type Signature [64]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func (s Signature) IsZero() bool {
	return s == Signature{}
}

func SignatureFromBase58(str string) (Signature, error) {
	var sig Signature
	err := decodeFixed("signature", str, sig[:])
	return sig, err
}

func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != len(sig) {
		return sig, fmt.Errorf("invalid signature length: got %d, want %d", len(b), len(sig))
	}
	copy(sig[:], b)
	return sig, nil
}
