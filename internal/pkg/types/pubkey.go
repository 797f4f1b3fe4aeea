package types

import "github.com/mr-tron/base58"

// Pubkey 32 字节 ed25519 公钥（账户地址）
type Pubkey [32]byte

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// TryPubkeyFromBase58 用于外部输入
func TryPubkeyFromBase58(s string) (Pubkey, error) {
	var p Pubkey
	err := decodeFixed("pubkey", s, p[:])
	return p, err
}

// PubkeyFromBase58 只用于常量，解析失败 panic
func PubkeyFromBase58(s string) Pubkey {
	p, err := TryPubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return p
}
