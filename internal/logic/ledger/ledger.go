package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/types"
)

type blockhashValue struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

func (l *RpcLedger) LatestBlockhash(ctx context.Context, commitment txn.Commitment) (txn.Blockhash, error) {
	var out contextValue[blockhashValue]
	err := l.call(ctx, &out, "getLatestBlockhash", map[string]any{"commitment": string(commitment)})
	if err != nil {
		return txn.Blockhash{}, classifyRead(err)
	}
	hash, err := types.HashFromBase58(out.Value.Blockhash)
	if err != nil {
		return txn.Blockhash{}, txn.RpcUnavailable(txn.CertaintyNone, true, fmt.Errorf("bad blockhash in response: %w", err))
	}
	return txn.Blockhash{Hash: hash, LastValidBlockHeight: out.Value.LastValidBlockHeight}, nil
}

func (l *RpcLedger) SendTransaction(ctx context.Context, wire []byte, opts txn.SendOptions) (types.Signature, error) {
	cfg := map[string]any{
		"encoding":      "base64",
		"skipPreflight": opts.SkipPreflight,
	}
	if opts.PreflightCommitment.Valid() {
		cfg["preflightCommitment"] = string(opts.PreflightCommitment)
	}
	if opts.MaxRetries != nil {
		cfg["maxRetries"] = *opts.MaxRetries
	}

	var sigStr string
	err := l.call(ctx, &sigStr, "sendTransaction", base64.StdEncoding.EncodeToString(wire), cfg)
	if err != nil {
		classified := classifySend(err)
		if classified != nil {
			return types.Signature{}, classified
		}
		// AlreadyProcessed：交易已上链，签名即 fee payer 签名
		logger.Infof("[Ledger] sendTransaction: transaction already processed")
		return signatureFromWire(wire)
	}
	sig, err := types.SignatureFromBase58(sigStr)
	if err != nil {
		return types.Signature{}, txn.RpcUnavailable(txn.CertaintyUnknownResolvable, false, err)
	}
	return sig, nil
}

// signatureFromWire 取交易字节中的第一个签名（签名数 < 128 时 compact-u16 占 1 字节）
func signatureFromWire(wire []byte) (types.Signature, error) {
	if len(wire) < 65 || wire[0] == 0 || wire[0] >= 0x80 {
		return types.Signature{}, txn.InvalidArgument("wire", "malformed transaction bytes")
	}
	return types.SignatureFromBytes(wire[1:65])
}

type signatureStatusValue struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus *string         `json:"confirmationStatus"`
}

func (l *RpcLedger) SignatureStatus(ctx context.Context, sig types.Signature) (*txn.SignatureStatus, error) {
	var out contextValue[[]*signatureStatusValue]
	err := l.call(ctx, &out, "getSignatureStatuses", []string{sig.String()}, map[string]any{"searchTransactionHistory": true})
	if err != nil {
		return nil, classifyRead(err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}
	v := out.Value[0]
	execErr, err := txn.ParseExecutionError(v.Err)
	if err != nil {
		return nil, txn.RpcUnavailable(txn.CertaintyNone, false, err)
	}
	status := &txn.SignatureStatus{
		Slot:          v.Slot,
		Confirmations: v.Confirmations,
		Err:           execErr,
	}
	switch {
	case v.ConfirmationStatus != nil:
		status.Commitment = txn.Commitment(*v.ConfirmationStatus)
	case v.Confirmations == nil:
		// 老节点不返回 confirmationStatus，confirmations 为 null 表示已 rooted
		status.Commitment = txn.CommitmentFinalized
	default:
		status.Commitment = txn.CommitmentConfirmed
	}
	return status, nil
}

type transactionValue struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err                  json.RawMessage `json:"err"`
		Fee                  uint64          `json:"fee"`
		LogMessages          []string        `json:"logMessages"`
		ComputeUnitsConsumed *uint64         `json:"computeUnitsConsumed"`
		PreBalances          []uint64        `json:"preBalances"`
		PostBalances         []uint64        `json:"postBalances"`
	} `json:"meta"`
}

func (l *RpcLedger) Transaction(ctx context.Context, sig types.Signature, commitment txn.Commitment) (*txn.TransactionMeta, error) {
	if commitment == txn.CommitmentProcessed || !commitment.Valid() {
		commitment = txn.CommitmentConfirmed
	}
	var out *transactionValue
	err := l.call(ctx, &out, "getTransaction", sig.String(), map[string]any{
		"encoding":                       "json",
		"commitment":                     string(commitment),
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil {
		return nil, classifyRead(err)
	}
	if out == nil || out.Meta == nil {
		return nil, nil
	}
	execErr, err := txn.ParseExecutionError(out.Meta.Err)
	if err != nil {
		return nil, txn.RpcUnavailable(txn.CertaintyNone, false, err)
	}
	return &txn.TransactionMeta{
		Slot:                 out.Slot,
		BlockTime:            out.BlockTime,
		Fee:                  out.Meta.Fee,
		Err:                  execErr,
		Logs:                 out.Meta.LogMessages,
		ComputeUnitsConsumed: out.Meta.ComputeUnitsConsumed,
		PreBalances:          out.Meta.PreBalances,
		PostBalances:         out.Meta.PostBalances,
	}, nil
}

type simulateValue struct {
	Err           json.RawMessage `json:"err"`
	Logs          []string        `json:"logs"`
	UnitsConsumed *uint64         `json:"unitsConsumed"`
}

func (l *RpcLedger) SimulateTransaction(ctx context.Context, wire []byte, commitment txn.Commitment) (txn.SimulationResult, error) {
	if !commitment.Valid() {
		commitment = txn.CommitmentConfirmed
	}
	var out contextValue[simulateValue]
	err := l.call(ctx, &out, "simulateTransaction", base64.StdEncoding.EncodeToString(wire), map[string]any{
		"encoding":               "base64",
		"sigVerify":              false,
		"replaceRecentBlockhash": false,
		"commitment":             string(commitment),
	})
	if err != nil {
		return txn.SimulationResult{}, classifyRead(err)
	}
	execErr, err := txn.ParseExecutionError(out.Value.Err)
	if err != nil {
		return txn.SimulationResult{}, txn.RpcUnavailable(txn.CertaintyNone, false, err)
	}
	return txn.SimulationResult{
		Err:           execErr,
		Logs:          out.Value.Logs,
		UnitsConsumed: out.Value.UnitsConsumed,
	}, nil
}

func (l *RpcLedger) FeeForMessage(ctx context.Context, message []byte) (*uint64, error) {
	var out contextValue[*uint64]
	err := l.call(ctx, &out, "getFeeForMessage", base64.StdEncoding.EncodeToString(message),
		map[string]any{"commitment": string(txn.CommitmentProcessed)})
	if err != nil {
		return nil, classifyRead(err)
	}
	return out.Value, nil
}

type prioritizationFeeValue struct {
	Slot              uint64 `json:"slot"`
	PrioritizationFee uint64 `json:"prioritizationFee"`
}

func (l *RpcLedger) RecentPrioritizationFees(ctx context.Context, accounts []types.Pubkey) ([]txn.PrioritizationFee, error) {
	addrs := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		addrs = append(addrs, acc.String())
	}
	var out []prioritizationFeeValue
	if err := l.call(ctx, &out, "getRecentPrioritizationFees", addrs); err != nil {
		return nil, classifyRead(err)
	}
	fees := make([]txn.PrioritizationFee, 0, len(out))
	for _, v := range out {
		fees = append(fees, txn.PrioritizationFee{Slot: v.Slot, MicroLamports: v.PrioritizationFee})
	}
	return fees, nil
}
