package txn

import (
	"context"
	"time"

	"github.com/blocto/solana-go-sdk/common"
	sdktypes "github.com/blocto/solana-go-sdk/types"

	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/types"
)

// MaxTransactionSize 单笔交易序列化后的最大字节数（IPv6 MTU 减去报头）
const MaxTransactionSize = 1232

// CompileOptions 编译参数
type CompileOptions struct {
	// Blockhash 调用方指定的 recency anchor，为 nil 时向链上获取
	Blockhash *Blockhash
	// Commitment 获取 blockhash 时使用的确认深度
	Commitment Commitment
}

// Compiler 校验并冻结 DRAFT 交易，生成消息编码
type Compiler struct {
	anchors AnchorProvider
	retry   RetryPolicy
}

func NewCompiler(anchors AnchorProvider, retry RetryPolicy) *Compiler {
	return &Compiler{anchors: anchors, retry: retry}
}

type compileInput struct {
	version      uint64
	feePayer     types.Pubkey
	instructions []Instruction
	execConfig   ExecConfig
}

// Compile DRAFT -> COMPILED。失败或取消时交易保持 DRAFT，不写入任何编译结果。
func (c *Compiler) Compile(ctx context.Context, tx *Transaction, opts CompileOptions) (Snapshot, error) {
	in, err := c.prepare(tx)
	if err != nil {
		return tx.Snapshot(), err
	}
	if err := ctx.Err(); err != nil {
		return tx.Snapshot(), Cancelled(OpCompile, err)
	}

	anchor, err := c.resolveAnchor(ctx, opts)
	if err != nil {
		return tx.Snapshot(), err
	}

	enc, err := encodeMessage(in, anchor.Hash)
	if err != nil {
		return tx.Snapshot(), err
	}
	if err := ctx.Err(); err != nil {
		return tx.Snapshot(), Cancelled(OpCompile, err)
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != StateDraft || tx.version != in.version {
		return tx.snapshotLocked(), newError(KindInvalidState, "transaction %s changed during compile", tx.id)
	}
	if err := tx.advance(StateCompiled); err != nil {
		return tx.snapshotLocked(), err
	}
	tx.anchor = anchor.Hash
	tx.lastValidHeight = anchor.LastValidBlockHeight
	tx.message = enc.message
	tx.wire = enc.wire
	tx.signerOrder = enc.slots
	tx.requiredSigners = enc.required

	logger.Debugf("[Compiler] tx %s compiled, %d instructions, %d required signers, blockhash %s",
		tx.id, len(in.instructions), len(enc.required), anchor.Hash)
	return tx.snapshotLocked(), nil
}

// prepare 在锁内做本地校验并复制编译输入
func (c *Compiler) prepare(tx *Transaction) (compileInput, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != StateDraft {
		return compileInput{}, newError(KindInvalidState, "cannot compile transaction in state %s", tx.state)
	}
	if len(tx.instructions) == 0 {
		return compileInput{}, newError(KindEmptyTransaction, "transaction has no instructions").withField("instructions")
	}
	if tx.feePayer == "" {
		return compileInput{}, newError(KindUnresolvableFeePayer, "fee payer is required").withField("fee_payer")
	}
	payer, err := types.TryPubkeyFromBase58(tx.feePayer)
	if err != nil {
		return compileInput{}, newError(KindUnresolvableFeePayer, "malformed fee payer").withField("fee_payer").withCause(err)
	}
	return compileInput{
		version:      tx.version,
		feePayer:     payer,
		instructions: append([]Instruction(nil), tx.instructions...),
		execConfig:   tx.execConfig,
	}, nil
}

func (c *Compiler) resolveAnchor(ctx context.Context, opts CompileOptions) (Blockhash, error) {
	if opts.Blockhash != nil {
		if opts.Blockhash.Hash.IsZero() {
			return Blockhash{}, newError(KindInvalidArgument, "empty blockhash").withField("recent_blockhash")
		}
		return *opts.Blockhash, nil
	}
	if c.anchors == nil {
		return Blockhash{}, newError(KindInvalidArgument, "no blockhash supplied and no ledger configured").withField("recent_blockhash")
	}

	commitment := opts.Commitment
	if !commitment.Valid() {
		commitment = CommitmentFinalized
	}
	var anchor Blockhash
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		anchor, err = c.anchors.LatestBlockhash(ctx, commitment)
		return err
	}, nil, func(err error, wait time.Duration) {
		logger.Warnf("[Compiler] fetch blockhash failed, retry in %v: %v", wait, err)
	})
	if err != nil {
		if _, ok := AsError(err); ok {
			return Blockhash{}, err
		}
		return Blockhash{}, RpcUnavailable(CertaintyNone, true, err)
	}
	return anchor, nil
}

type encodedMessage struct {
	message  sdktypes.Message
	wire     []byte
	slots    []types.Pubkey // 消息中的签名槽位顺序（可写签名者在前）
	required []types.Pubkey // fee payer 在首位，其后按指令顺序
}

// encodeMessage 生成消息并核对签名槽位与推导出的必需签名者一致
func encodeMessage(in compileInput, anchor types.Hash) (encodedMessage, error) {
	ixs := make([]sdktypes.Instruction, 0, len(in.instructions)+2)
	if in.execConfig.ComputeUnitLimit > 0 {
		ix, err := SetComputeUnitLimit(in.execConfig.ComputeUnitLimit)
		if err != nil {
			return encodedMessage{}, err
		}
		ixs = append(ixs, ix.toSDK())
	}
	if in.execConfig.ComputeUnitPrice > 0 {
		ix, err := SetComputeUnitPrice(in.execConfig.ComputeUnitPrice)
		if err != nil {
			return encodedMessage{}, err
		}
		ixs = append(ixs, ix.toSDK())
	}
	for _, ix := range in.instructions {
		ixs = append(ixs, ix.toSDK())
	}

	message := sdktypes.NewMessage(sdktypes.NewMessageParam{
		FeePayer:        common.PublicKey(in.feePayer),
		Instructions:    ixs,
		RecentBlockhash: anchor.String(),
	})
	wire, err := message.Serialize()
	if err != nil {
		return encodedMessage{}, newError(KindInvalidArgument, "serialize message").withCause(err)
	}

	required := deriveRequiredSigners(in.feePayer, in.instructions)
	n := int(message.Header.NumRequireSignatures)
	if n != len(required) || n > len(message.Accounts) {
		return encodedMessage{}, newError(KindInvalidArgument,
			"message requires %d signers, derived %d", n, len(required))
	}
	requiredSet := make(map[types.Pubkey]struct{}, len(required))
	for _, signer := range required {
		requiredSet[signer] = struct{}{}
	}
	signers := make([]types.Pubkey, 0, n)
	for _, acc := range message.Accounts[:n] {
		key := types.Pubkey(acc)
		if _, ok := requiredSet[key]; !ok {
			return encodedMessage{}, newError(KindInvalidArgument, "unexpected signer slot %s", key)
		}
		signers = append(signers, key)
	}

	if size := 1 + n*64 + len(wire); size > MaxTransactionSize {
		return encodedMessage{}, newError(KindInvalidArgument,
			"transaction too large: %d bytes > %d", size, MaxTransactionSize).withField("instructions")
	}
	return encodedMessage{message: message, wire: wire, slots: signers, required: required}, nil
}
