package txn

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/system"
	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/require"

	"sol-txflow/internal/pkg/types"
)

// fakeLedger 内存账本：按配置返回错误，发送后可自动写入确认状态
type fakeLedger struct {
	mu sync.Mutex

	blockhash      Blockhash
	blockhashErrs  []error
	blockhashCalls int
	blockhashGate  chan struct{} // 非 nil 时阻塞到关闭或 ctx 结束

	sendErrs  []error
	sendCalls int
	sent      [][]byte
	sendGate  chan struct{}

	// 发送成功后自动确认
	autoConfirm bool
	confirmAt   Commitment
	execErr     *ExecutionError

	statuses    map[types.Signature]*SignatureStatus
	metas       map[types.Signature]*TransactionMeta
	statusErrs  []error
	statusCalls int

	sim      SimulationResult
	simErr   error
	simCalls int
	fee      *uint64
	feeErr   error
	prio     []PrioritizationFee
	prioErr  error
}

var _ Ledger = (*fakeLedger)(nil)

func newFakeLedger() *fakeLedger {
	var h types.Hash
	for i := range h {
		h[i] = byte(i + 1)
	}
	return &fakeLedger{
		blockhash: Blockhash{Hash: h, LastValidBlockHeight: 1_000},
		confirmAt: CommitmentConfirmed,
		statuses:  make(map[types.Signature]*SignatureStatus),
		metas:     make(map[types.Signature]*TransactionMeta),
	}
}

func popErr(list *[]error) error {
	if len(*list) == 0 {
		return nil
	}
	err := (*list)[0]
	*list = (*list)[1:]
	return err
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeLedger) LatestBlockhash(ctx context.Context, _ Commitment) (Blockhash, error) {
	if err := wait(ctx, f.blockhashGate); err != nil {
		return Blockhash{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockhashCalls++
	if err := popErr(&f.blockhashErrs); err != nil {
		return Blockhash{}, err
	}
	return f.blockhash, nil
}

func (f *fakeLedger) SendTransaction(ctx context.Context, wire []byte, _ SendOptions) (types.Signature, error) {
	f.mu.Lock()
	f.sendCalls++
	f.sent = append(f.sent, append([]byte(nil), wire...))
	gate := f.sendGate
	f.mu.Unlock()

	if err := wait(ctx, gate); err != nil {
		return types.Signature{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.sendErrs); err != nil {
		return types.Signature{}, err
	}
	// wire: compact-u16 签名数（<128 时 1 字节），随后首个签名即交易 ID
	sig, err := types.SignatureFromBytes(wire[1:65])
	if err != nil {
		return types.Signature{}, err
	}
	if f.autoConfirm {
		f.setLocked(sig, f.confirmAt, f.execErr)
	}
	return sig, nil
}

func (f *fakeLedger) confirm(sig types.Signature, commitment Commitment, execErr *ExecutionError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(sig, commitment, execErr)
}

func (f *fakeLedger) setLocked(sig types.Signature, commitment Commitment, execErr *ExecutionError) {
	f.statuses[sig] = &SignatureStatus{Slot: 42, Commitment: commitment, Err: execErr}
	units := uint64(3_000)
	f.metas[sig] = &TransactionMeta{
		Slot:                 42,
		Fee:                  10_000,
		Err:                  execErr,
		Logs:                 []string{"Program 11111111111111111111111111111111 invoke [1]"},
		ComputeUnitsConsumed: &units,
	}
}

func (f *fakeLedger) SignatureStatus(_ context.Context, sig types.Signature) (*SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if err := popErr(&f.statusErrs); err != nil {
		return nil, err
	}
	if s, ok := f.statuses[sig]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeLedger) Transaction(_ context.Context, sig types.Signature, commitment Commitment) (*TransactionMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.statuses[sig]
	if !ok || !s.Commitment.Reaches(commitment) {
		return nil, nil
	}
	if m, ok := f.metas[sig]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeLedger) SimulateTransaction(_ context.Context, _ []byte, _ Commitment) (SimulationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simCalls++
	return f.sim, f.simErr
}

func (f *fakeLedger) FeeForMessage(_ context.Context, _ []byte) (*uint64, error) {
	return f.fee, f.feeErr
}

func (f *fakeLedger) RecentPrioritizationFees(_ context.Context, _ []types.Pubkey) ([]PrioritizationFee, error) {
	return f.prio, f.prioErr
}

// fastRetry 测试用的短退避
func fastRetry() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		MaxAttempts:     3,
	}
}

func newTestEngine(ledger *fakeLedger, opts ...MonitorOption) *Engine {
	retry := fastRetry()
	return NewEngine(ledger, EngineOptions{
		Retry:          &retry,
		MonitorOptions: append([]MonitorOption{WithPollInterval(5 * time.Millisecond)}, opts...),
	})
}

// testAccount 由固定 seed 生成的账户
func testAccount(t *testing.T, seed byte) sdktypes.Account {
	t.Helper()
	acc, err := sdktypes.AccountFromSeed(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	return acc
}

func addressOf(acc sdktypes.Account) string {
	return types.Pubkey(acc.PublicKey).String()
}

func keyOf(acc sdktypes.Account) KeyPair {
	return KeyPair{Address: addressOf(acc), PrivateKey: []byte(acc.PrivateKey)}
}

func createAccountIx(payer, newAccount sdktypes.Account, lamports uint64) Instruction {
	return InstructionFromSDK(system.CreateAccount(system.CreateAccountParam{
		From:     payer.PublicKey,
		New:      newAccount.PublicKey,
		Owner:    common.SystemProgramID,
		Lamports: lamports,
		Space:    0,
	}))
}

func transferIx(from sdktypes.Account, to types.Pubkey, lamports uint64) Instruction {
	return InstructionFromSDK(system.Transfer(system.TransferParam{
		From:   from.PublicKey,
		To:     common.PublicKey(to),
		Amount: lamports,
	}))
}
