package txn

import (
	"context"
	"time"

	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/types"
)

// Submitter 发送全签名交易并记录网络返回的交易签名
type Submitter struct {
	sender TransactionSender
	retry  RetryPolicy
}

func NewSubmitter(sender TransactionSender, retry RetryPolicy) *Submitter {
	return &Submitter{sender: sender, retry: retry}
}

// Submit FULLY_SIGNED -> SUBMITTED，每个聚合只允许成功提交一次。
// 被网络接收不代表执行成功，结果以 Monitor 为准。
func (s *Submitter) Submit(ctx context.Context, tx *Transaction, opts SendOptions) (Snapshot, error) {
	wire, expected, expiry, err := s.reserve(tx)
	if err != nil {
		return tx.Snapshot(), err
	}

	var got types.Signature
	sendErr := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		got, err = s.sender.SendTransaction(ctx, wire, opts)
		return err
	}, retryBeforeSubmission, func(err error, wait time.Duration) {
		logger.Warnf("[Submitter] tx %s send failed, retry in %v: %v", tx.id, wait, err)
	})

	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.submitting = false

	if sendErr != nil {
		e := submissionError(ctx, sendErr)
		e.Signature = expected.String()
		e.BlockhashExpiry = expiry
		logger.Warnf("[Submitter] tx %s submit failed (%s, certainty=%s): %v", tx.id, e.Kind, e.Certainty, sendErr)
		return tx.snapshotLocked(), e
	}

	if got.IsZero() {
		got = expected
	} else if got != expected {
		logger.Warnf("[Submitter] tx %s: ledger returned signature %s, expected %s", tx.id, got, expected)
	}
	if err := tx.advance(StateSubmitted); err != nil {
		return tx.snapshotLocked(), err
	}
	tx.submission = got
	logger.Infof("[Submitter] tx %s submitted, signature %s", tx.id, got)
	return tx.snapshotLocked(), nil
}

// reserve 校验状态并标记发送中，防止并发重复提交
func (s *Submitter) reserve(tx *Transaction) ([]byte, types.Signature, uint64, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	switch {
	case tx.state == StateSubmitted:
		return nil, types.Signature{}, 0, newError(KindInvalidState, "transaction %s already submitted as %s", tx.id, tx.submission)
	case tx.submitting:
		return nil, types.Signature{}, 0, newError(KindInvalidState, "transaction %s submission in progress", tx.id)
	case tx.state != StateFullySigned:
		e := newError(KindIncompleteSignatures, "transaction is %s", tx.state)
		for _, signer := range tx.pendingSignersLocked() {
			e.Signers = append(e.Signers, signer)
		}
		return nil, types.Signature{}, 0, e
	}

	wire, err := tx.signedWireLocked()
	if err != nil {
		return nil, types.Signature{}, 0, newError(KindInvalidArgument, "serialize transaction").withCause(err)
	}
	tx.submitting = true
	// 交易 ID 即 fee payer 的签名
	return wire, tx.signatures[tx.signerOrder[0]], tx.lastValidHeight, nil
}

// pendingSignersLocked 未签名的必需签名者。DRAFT 阶段按指令推导。
func (t *Transaction) pendingSignersLocked() []string {
	var out []string
	if t.state == StateDraft {
		payer, err := types.TryPubkeyFromBase58(t.feePayer)
		if err != nil {
			if t.feePayer != "" {
				out = append(out, t.feePayer)
			}
			for _, signer := range deriveRequiredSigners(types.Pubkey{}, t.instructions)[1:] {
				out = append(out, signer.String())
			}
			return out
		}
		for _, signer := range deriveRequiredSigners(payer, t.instructions) {
			out = append(out, signer.String())
		}
		return out
	}
	for _, signer := range t.missingSignersLocked() {
		out = append(out, signer.String())
	}
	return out
}

// retryBeforeSubmission 只重试确定未送达网络的瞬时错误
func retryBeforeSubmission(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindRpcUnavailable && e.Retryable && e.Certainty == CertaintyNotSubmitted
}

// submissionError 统一提交错误：取消与未分类错误都视为结果未知，需先轮询 Monitor 再决定是否重试
func submissionError(ctx context.Context, err error) *Error {
	if ctx.Err() != nil {
		return RpcUnavailable(CertaintyUnknown, false, err)
	}
	if e, ok := AsError(err); ok {
		cp := *e
		return &cp
	}
	return RpcUnavailable(CertaintyUnknownResolvable, false, err)
}
