package txn

import (
	"context"
	"crypto/ed25519"

	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/types"
)

// Signer 对已编译交易签名并维护签名完整性
type Signer struct{}

func NewSigner() *Signer {
	return &Signer{}
}

type pendingSignature struct {
	signer types.Pubkey
	sig    types.Signature
}

// Sign 为每个密钥对生成签名。任一地址不在必需签名者中时整批拒绝，不修改签名记录。
// 签名全部算完后一次性写入，取消时已有签名保持不变。
func (s *Signer) Sign(ctx context.Context, tx *Transaction, keys ...KeyPair) (Snapshot, error) {
	if len(keys) == 0 {
		return tx.Snapshot(), newError(KindInvalidArgument, "no keys supplied").withField("keys")
	}

	tx.mu.Lock()
	if err := tx.checkOperationLocked(OpSign); err != nil {
		snap := tx.snapshotLocked()
		tx.mu.Unlock()
		return snap, err
	}
	message := append([]byte(nil), tx.wire...)
	version := tx.version
	required := make(map[types.Pubkey]struct{}, len(tx.signerOrder))
	for _, signer := range tx.signerOrder {
		required[signer] = struct{}{}
	}
	tx.mu.Unlock()

	pending, err := buildSignatures(message, required, keys)
	if err != nil {
		return tx.Snapshot(), err
	}
	if err := ctx.Err(); err != nil {
		return tx.Snapshot(), Cancelled(OpSign, err)
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.version != version || tx.checkOperationLocked(OpSign) != nil {
		return tx.snapshotLocked(), newError(KindInvalidState, "transaction %s changed during signing", tx.id)
	}
	for _, p := range pending {
		tx.signatures[p.signer] = p.sig
	}
	if err := tx.settleSignatureStateLocked(); err != nil {
		return tx.snapshotLocked(), err
	}
	logger.Debugf("[Signer] tx %s applied %d signatures, state %s", tx.id, len(pending), tx.state)
	return tx.snapshotLocked(), nil
}

// buildSignatures 先完成全部校验，再计算签名
func buildSignatures(message []byte, required map[types.Pubkey]struct{}, keys []KeyPair) ([]pendingSignature, error) {
	type parsed struct {
		signer types.Pubkey
		key    KeyPair
	}
	var (
		unknown []string
		items   = make([]parsed, 0, len(keys))
	)
	for _, kp := range keys {
		acc, err := accountFromKey(kp.PrivateKey)
		if err != nil {
			return nil, err
		}
		derived := types.Pubkey(acc.PublicKey)
		signer := derived
		if kp.Address != "" {
			addr, err := types.TryPubkeyFromBase58(kp.Address)
			if err != nil {
				unknown = append(unknown, kp.Address)
				continue
			}
			if addr != derived {
				return nil, newError(KindInvalidKeyMaterial, "private key does not belong to %s", kp.Address).withField("private_key")
			}
			signer = addr
		}
		if _, ok := required[signer]; !ok {
			unknown = append(unknown, signer.String())
			continue
		}
		items = append(items, parsed{signer: signer, key: kp})
	}
	if len(unknown) > 0 {
		e := newError(KindUnknownSigner, "signer not required by transaction")
		e.Signers = unknown
		return nil, e
	}

	out := make([]pendingSignature, 0, len(items))
	for _, item := range items {
		acc, _ := accountFromKey(item.key.PrivateKey)
		sig, err := types.SignatureFromBytes(acc.Sign(message))
		if err != nil {
			return nil, newError(KindInvalidKeyMaterial, "sign failed").withCause(err)
		}
		out = append(out, pendingSignature{signer: item.signer, sig: sig})
	}
	return out, nil
}

// ApplySignature 附加外部签名（离线或硬件签名者），写入前校验签名有效
func (s *Signer) ApplySignature(tx *Transaction, signer string, signature types.Signature) (Snapshot, error) {
	addr, err := types.TryPubkeyFromBase58(signer)
	if err != nil {
		e := newError(KindUnknownSigner, "malformed signer address").withCause(err)
		e.Signers = []string{signer}
		return tx.Snapshot(), e
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOperationLocked(OpSign); err != nil {
		return tx.snapshotLocked(), err
	}
	if !tx.isRequiredLocked(addr) {
		e := newError(KindUnknownSigner, "signer not required by transaction")
		e.Signers = []string{signer}
		return tx.snapshotLocked(), e
	}
	if !ed25519.Verify(ed25519.PublicKey(addr[:]), tx.wire, signature[:]) {
		return tx.snapshotLocked(), newError(KindInvalidArgument, "signature does not verify for %s", signer).withField("signature")
	}
	tx.signatures[addr] = signature
	if err := tx.settleSignatureStateLocked(); err != nil {
		return tx.snapshotLocked(), err
	}
	return tx.snapshotLocked(), nil
}

// settleSignatureStateLocked 根据签名完整性推进状态
func (t *Transaction) settleSignatureStateLocked() error {
	switch missing := len(t.missingSignersLocked()); {
	case missing == 0:
		return t.advance(StateFullySigned)
	case len(t.signatures) > 0 && t.state == StateCompiled:
		return t.advance(StatePartiallySigned)
	default:
		return nil
	}
}
