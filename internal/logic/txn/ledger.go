package txn

import (
	"context"

	"sol-txflow/internal/pkg/types"
)

// Blockhash recency anchor 及其失效高度
type Blockhash struct {
	Hash                 types.Hash
	LastValidBlockHeight uint64
}

// AnchorProvider 获取最新 blockhash
type AnchorProvider interface {
	LatestBlockhash(ctx context.Context, commitment Commitment) (Blockhash, error)
}

// SendOptions sendTransaction 参数
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
	MaxRetries          *uint64
}

// TransactionSender 发送已签名交易，返回网络给出的交易签名。
// 实现方应返回 *Error 以区分 RpcUnavailable / RejectedByNetwork。
type TransactionSender interface {
	SendTransaction(ctx context.Context, wire []byte, opts SendOptions) (types.Signature, error)
}

// SignatureStatus getSignatureStatuses 的单条结果
type SignatureStatus struct {
	Slot          uint64
	Confirmations *uint64
	Commitment    Commitment
	Err           *ExecutionError
}

// TransactionMeta 交易执行元数据
type TransactionMeta struct {
	Slot                 uint64
	BlockTime            *int64
	Fee                  uint64
	Err                  *ExecutionError
	Logs                 []string
	ComputeUnitsConsumed *uint64
	PreBalances          []uint64
	PostBalances         []uint64
}

// StatusReader 查询交易确认状态与执行元数据。未找到时返回 nil, nil。
type StatusReader interface {
	SignatureStatus(ctx context.Context, sig types.Signature) (*SignatureStatus, error)
	Transaction(ctx context.Context, sig types.Signature, commitment Commitment) (*TransactionMeta, error)
}

// SimulationResult 模拟执行结果
type SimulationResult struct {
	Err           *ExecutionError
	Logs          []string
	UnitsConsumed *uint64
}

func (r SimulationResult) Succeeded() bool {
	return r.Err == nil
}

// TxSimulator 模拟执行（不校验签名）
type TxSimulator interface {
	SimulateTransaction(ctx context.Context, wire []byte, commitment Commitment) (SimulationResult, error)
}

// PrioritizationFee 某个 slot 的优先费样本（micro-lamports / CU）
type PrioritizationFee struct {
	Slot          uint64
	MicroLamports uint64
}

// FeeOracle 手续费行情
type FeeOracle interface {
	FeeForMessage(ctx context.Context, message []byte) (*uint64, error)
	RecentPrioritizationFees(ctx context.Context, accounts []types.Pubkey) ([]PrioritizationFee, error)
}

// Ledger 生命周期依赖的全部 RPC 能力
type Ledger interface {
	AnchorProvider
	TransactionSender
	StatusReader
	TxSimulator
	FeeOracle
}
