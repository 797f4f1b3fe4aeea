package txn

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"strings"

	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"

	"sol-txflow/internal/pkg/types"
)

// KeyPair 待签名的 (地址, 私钥) 对。Address 为空时由私钥推导。
type KeyPair struct {
	Address    string
	PrivateKey []byte // 64 字节 ed25519 私钥，或 32 字节 seed
}

// ParsePrivateKey 解析 base58 字符串或 solana-keygen 的 JSON 数组格式
func ParsePrivateKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, newError(KindInvalidKeyMaterial, "empty private key").withField("private_key")
	}
	if strings.HasPrefix(s, "[") {
		var nums []uint16
		if err := json.Unmarshal([]byte(s), &nums); err != nil {
			return nil, newError(KindInvalidKeyMaterial, "malformed key array").withField("private_key").withCause(err)
		}
		raw := make([]byte, 0, len(nums))
		for _, n := range nums {
			if n > 255 {
				return nil, newError(KindInvalidKeyMaterial, "key array value %d out of range", n).withField("private_key")
			}
			raw = append(raw, byte(n))
		}
		return raw, nil
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, newError(KindInvalidKeyMaterial, "malformed base58 key").withField("private_key").withCause(err)
	}
	return raw, nil
}

// accountFromKey 按长度解析私钥
func accountFromKey(key []byte) (sdktypes.Account, error) {
	switch len(key) {
	case 64:
		if !bytes.Equal(ed25519.NewKeyFromSeed(key[:32]), key) {
			return sdktypes.Account{}, newError(KindInvalidKeyMaterial, "public key half does not match seed").withField("private_key")
		}
		acc, err := sdktypes.AccountFromBytes(key)
		if err != nil {
			return sdktypes.Account{}, newError(KindInvalidKeyMaterial, "invalid ed25519 private key").withField("private_key").withCause(err)
		}
		return acc, nil
	case 32:
		acc, err := sdktypes.AccountFromSeed(key)
		if err != nil {
			return sdktypes.Account{}, newError(KindInvalidKeyMaterial, "invalid ed25519 seed").withField("private_key").withCause(err)
		}
		return acc, nil
	default:
		return sdktypes.Account{}, newError(KindInvalidKeyMaterial, "private key must be 32 or 64 bytes, got %d", len(key)).withField("private_key")
	}
}

// GeneratedKeypair 新生成的密钥对
type GeneratedKeypair struct {
	Address    types.Pubkey
	PrivateKey []byte
}

// GenerateKeypair 生成新的 ed25519 密钥对
func GenerateKeypair() GeneratedKeypair {
	acc := sdktypes.NewAccount()
	return GeneratedKeypair{
		Address:    types.Pubkey(acc.PublicKey),
		PrivateKey: append([]byte(nil), acc.PrivateKey...),
	}
}

// PrivateKeyBase58 私钥的 base58 表示
func (k GeneratedKeypair) PrivateKeyBase58() string {
	return base58.Encode(k.PrivateKey)
}

// AddressOf 私钥对应的地址
func AddressOf(key []byte) (types.Pubkey, error) {
	acc, err := accountFromKey(key)
	if err != nil {
		return types.Pubkey{}, err
	}
	return types.Pubkey(acc.PublicKey), nil
}
