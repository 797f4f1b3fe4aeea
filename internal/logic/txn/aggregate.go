package txn

import (
	"strings"
	"sync"
	"time"

	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/google/uuid"

	"sol-txflow/internal/pkg/types"
)

// ExecConfig 执行参数，原样透传，不由生命周期解释
type ExecConfig struct {
	ComputeUnitLimit uint32 // 0 表示不设置
	ComputeUnitPrice uint64 // micro-lamports / CU，0 表示不设置
	PriorityFee      uint64 // lamports，估算时优先使用
}

// Transaction 交易聚合：有序指令 + 生命周期元数据。
// 指令编辑不做并发保护以外的协调，调用方应保证单写者。
type Transaction struct {
	mu sync.Mutex

	id           string
	state        State
	version      uint64 // DRAFT 阶段每次修改递增，编译提交前校验
	instructions []Instruction
	feePayer     string
	execConfig   ExecConfig

	// 编译后固定
	anchor          types.Hash
	lastValidHeight uint64
	signerOrder     []types.Pubkey // 与消息中签名槽位顺序一致
	requiredSigners []types.Pubkey // 对外展示顺序：fee payer 在首位，其后按指令顺序
	message         sdktypes.Message
	wire            []byte

	signatures map[types.Pubkey]types.Signature
	submitting bool
	submission types.Signature

	outcome   Outcome
	result    *MonitorResult
	createdAt time.Time
	updatedAt time.Time
}

// NewTransaction 创建 DRAFT 状态的交易
func NewTransaction(feePayer string, cfg ExecConfig, instructions ...Instruction) *Transaction {
	now := time.Now()
	return &Transaction{
		id:           uuid.NewString(),
		state:        StateDraft,
		feePayer:     strings.TrimSpace(feePayer),
		execConfig:   cfg,
		instructions: append([]Instruction(nil), instructions...),
		signatures:   make(map[types.Pubkey]types.Signature),
		createdAt:    now,
		updatedAt:    now,
	}
}

func (t *Transaction) ID() string { return t.id }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// AddInstructions 追加指令，仅 DRAFT 可用
func (t *Transaction) AddInstructions(ixs ...Instruction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := checkOperation(t.state, OpEditDraft); err != nil {
		return err
	}
	t.instructions = append(t.instructions, ixs...)
	t.touch()
	return nil
}

// SetFeePayer 修改 fee payer，仅 DRAFT 可用，合法性在编译时校验
func (t *Transaction) SetFeePayer(feePayer string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := checkOperation(t.state, OpEditDraft); err != nil {
		return err
	}
	t.feePayer = strings.TrimSpace(feePayer)
	t.touch()
	return nil
}

func (t *Transaction) SetExecConfig(cfg ExecConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := checkOperation(t.state, OpEditDraft); err != nil {
		return err
	}
	t.execConfig = cfg
	t.touch()
	return nil
}

func (t *Transaction) touch() {
	t.version++
	t.updatedAt = time.Now()
}

// advance 唯一的状态变更入口：同状态为空操作，其余必须是合法迁移
func (t *Transaction) advance(to State) error {
	if to == t.state {
		return nil
	}
	if !CanTransition(t.state, to) {
		return newError(KindInvalidState, "illegal transition %s -> %s", t.state, to)
	}
	t.state = to
	t.updatedAt = time.Now()
	return nil
}

// missingSignersLocked 返回尚未签名的必需签名者，顺序同 requiredSigners
func (t *Transaction) missingSignersLocked() []types.Pubkey {
	var missing []types.Pubkey
	for _, signer := range t.requiredSigners {
		if _, ok := t.signatures[signer]; !ok {
			missing = append(missing, signer)
		}
	}
	return missing
}

// isRequiredLocked 判断地址是否在必需签名者集合中
func (t *Transaction) isRequiredLocked(addr types.Pubkey) bool {
	for _, signer := range t.signerOrder {
		if signer == addr {
			return true
		}
	}
	return false
}

// signedWireLocked 按槽位顺序组装完整交易字节，缺失签名以全零填充
func (t *Transaction) signedWireLocked() ([]byte, error) {
	sigs := make([]sdktypes.Signature, 0, len(t.signerOrder))
	for _, signer := range t.signerOrder {
		sig := t.signatures[signer]
		sigs = append(sigs, sdktypes.Signature(append([]byte(nil), sig[:]...)))
	}
	tx := sdktypes.Transaction{
		Signatures: sigs,
		Message:    t.message,
	}
	return tx.Serialize()
}

// Snapshot 交易聚合的只读快照
type Snapshot struct {
	ID                   string
	State                State
	FeePayer             string
	Instructions         []Instruction
	ExecConfig           ExecConfig
	RecentBlockhash      string
	LastValidBlockHeight uint64
	RequiredSigners      []string
	Signatures           map[string]string
	MissingSigners       []string
	Message              []byte // 编译后的消息字节（签名内容）
	SubmissionSignature  string
	Outcome              Outcome
	Result               *MonitorResult
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (t *Transaction) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Transaction) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:           t.id,
		State:        t.state,
		FeePayer:     t.feePayer,
		Instructions: append([]Instruction(nil), t.instructions...),
		ExecConfig:   t.execConfig,
		Signatures:   make(map[string]string, len(t.signatures)),
		Outcome:      t.outcome,
		CreatedAt:    t.createdAt,
		UpdatedAt:    t.updatedAt,
	}
	if t.state >= StateCompiled {
		s.RecentBlockhash = t.anchor.String()
		s.LastValidBlockHeight = t.lastValidHeight
		s.Message = append([]byte(nil), t.wire...)
		for _, signer := range t.requiredSigners {
			s.RequiredSigners = append(s.RequiredSigners, signer.String())
		}
		for _, signer := range t.missingSignersLocked() {
			s.MissingSigners = append(s.MissingSigners, signer.String())
		}
	}
	for signer, sig := range t.signatures {
		s.Signatures[signer.String()] = sig.String()
	}
	if t.state == StateSubmitted {
		s.SubmissionSignature = t.submission.String()
	}
	if t.result != nil {
		r := *t.result
		s.Result = &r
	}
	return s
}
