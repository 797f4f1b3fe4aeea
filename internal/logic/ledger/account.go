package ledger

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/metrics"
	"sol-txflow/internal/pkg/types"
)

// AccountInfo 账户快照
type AccountInfo struct {
	Address    types.Pubkey
	Lamports   uint64
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
	Data       []byte
	Slot       uint64
}

type accountValue struct {
	Lamports   uint64    `json:"lamports"`
	Owner      string    `json:"owner"`
	Executable bool      `json:"executable"`
	RentEpoch  uint64    `json:"rentEpoch"`
	Data       [2]string `json:"data"`
}

// GetAccount 账户不存在时返回 NotFound
func (l *RpcLedger) GetAccount(ctx context.Context, address types.Pubkey, commitment txn.Commitment) (*AccountInfo, error) {
	if !commitment.Valid() {
		commitment = txn.CommitmentConfirmed
	}
	var out contextValue[*accountValue]
	err := l.call(ctx, &out, "getAccountInfo", address.String(), map[string]any{
		"encoding":   "base64",
		"commitment": string(commitment),
	})
	if err != nil {
		return nil, classifyRead(err)
	}
	if out.Value == nil {
		return nil, txn.NotFound("address", "account %s not found", address)
	}
	owner, err := types.TryPubkeyFromBase58(out.Value.Owner)
	if err != nil {
		return nil, txn.RpcUnavailable(txn.CertaintyNone, false, fmt.Errorf("bad owner in response: %w", err))
	}
	data, err := base64.StdEncoding.DecodeString(out.Value.Data[0])
	if err != nil {
		return nil, txn.RpcUnavailable(txn.CertaintyNone, false, fmt.Errorf("bad account data: %w", err))
	}
	return &AccountInfo{
		Address:    address,
		Lamports:   out.Value.Lamports,
		Owner:      owner,
		Executable: out.Value.Executable,
		RentEpoch:  out.Value.RentEpoch,
		Data:       data,
		Slot:       out.Context.Slot,
	}, nil
}

// typed 通过 sdk 的类型化方法访问节点，统一限流、超时与指标
func typed[T any](l *RpcLedger, ctx context.Context, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := l.wait(ctx); err != nil {
		return zero, classifyRead(err)
	}
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	v, err := fn(ctx)
	metrics.ObserveRPC(method, start, err)
	if err != nil {
		return zero, classifyRead(fmt.Errorf("%s: %w", method, err))
	}
	return v, nil
}

func (l *RpcLedger) GetBalance(ctx context.Context, address types.Pubkey) (uint64, error) {
	return typed(l, ctx, "getBalance", func(ctx context.Context) (uint64, error) {
		return l.client.GetBalance(ctx, address.String())
	})
}

func (l *RpcLedger) MinimumBalanceForRentExemption(ctx context.Context, space uint64) (uint64, error) {
	return typed(l, ctx, "getMinimumBalanceForRentExemption", func(ctx context.Context) (uint64, error) {
		return l.client.GetMinimumBalanceForRentExemption(ctx, space)
	})
}

// RequestAirdrop 仅 devnet/testnet/本地节点可用
func (l *RpcLedger) RequestAirdrop(ctx context.Context, address types.Pubkey, lamports uint64) (types.Signature, error) {
	sigStr, err := typed(l, ctx, "requestAirdrop", func(ctx context.Context) (string, error) {
		return l.client.RequestAirdrop(ctx, address.String(), lamports)
	})
	if err != nil {
		return types.Signature{}, err
	}
	return types.SignatureFromBase58(sigStr)
}

func (l *RpcLedger) Slot(ctx context.Context) (uint64, error) {
	return typed(l, ctx, "getSlot", func(ctx context.Context) (uint64, error) {
		return l.client.GetSlot(ctx)
	})
}
