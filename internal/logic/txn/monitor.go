package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/types"
)

const (
	DefaultMonitorTimeout = 60 * time.Second
	MinMonitorTimeout     = 5 * time.Second
	MaxMonitorTimeout     = 300 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
)

// MonitorOptions 监控参数
type MonitorOptions struct {
	Commitment  Commitment
	Timeout     time.Duration
	IncludeLogs bool
}

// MonitorResult 监控终态。FAILED_EXECUTION 时 Err 携带链上错误详情。
type MonitorResult struct {
	Signature            types.Signature
	Outcome              Outcome
	Commitment           Commitment // 实际达到的确认深度
	Slot                 uint64
	BlockTime            *int64
	Fee                  uint64
	Err                  *ExecutionError
	Logs                 []string
	ComputeUnitsConsumed *uint64
	Elapsed              time.Duration
}

// AsError FAILED_EXECUTION 与 TIMED_OUT 转成错误，供链式调用使用；SUCCEEDED 返回 nil
func (r MonitorResult) AsError() error {
	switch r.Outcome {
	case OutcomeSucceeded:
		return nil
	case OutcomeFailedExecution:
		return ExecutionFailed(r.Signature.String(), r.Err)
	case OutcomeTimedOut:
		e := newError(KindConfirmationTimeout, "transaction %s not %s within %v", r.Signature, r.Commitment, r.Elapsed)
		e.Signature = r.Signature.String()
		return e
	default:
		return newError(KindInvalidState, "transaction %s has no outcome", r.Signature)
	}
}

// StatusUpdate 轮询过程中的状态推送
type StatusUpdate struct {
	Signature  types.Signature
	Commitment Commitment // 当前确认深度，未知为空
	Slot       uint64
	At         time.Time
}

// ConfirmationHinter 订阅交易状态变化的推送源，用于提前唤醒轮询。
// 返回的 cancel 必须释放订阅；channel 只做非阻塞通知，不会被关闭。
type ConfirmationHinter interface {
	Watch(sig types.Signature) (<-chan struct{}, func())
}

// OutcomeSink 终态结果的下游（缓存、持久化、消息）
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, result MonitorResult)
}

// Monitor 轮询交易确认状态并检查执行元数据，区分执行成功与执行失败
type Monitor struct {
	reader       StatusReader
	retry        RetryPolicy
	pollInterval time.Duration
	hinter       ConfirmationHinter
	sinks        []OutcomeSink
}

type MonitorOption func(*Monitor)

func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

func WithHinter(h ConfirmationHinter) MonitorOption {
	return func(m *Monitor) { m.hinter = h }
}

func WithOutcomeSinks(sinks ...OutcomeSink) MonitorOption {
	return func(m *Monitor) { m.sinks = append(m.sinks, sinks...) }
}

func NewMonitor(reader StatusReader, retry RetryPolicy, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		reader:       reader,
		retry:        retry,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Watch 监控签名直到达到确认深度或超时。
// 返回 error 仅表示调用方取消或非瞬时错误；瞬时 RPC 错误继续轮询，超时以 TIMED_OUT 结果返回。
func (m *Monitor) Watch(ctx context.Context, sig types.Signature, opts MonitorOptions, updates chan<- StatusUpdate) (MonitorResult, error) {
	if sig.IsZero() {
		return MonitorResult{}, newError(KindInvalidArgument, "signature is required").withField("signature")
	}
	commitment := opts.Commitment
	if !commitment.Valid() {
		commitment = CommitmentConfirmed
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultMonitorTimeout
	}

	start := time.Now()
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var wake <-chan struct{}
	if m.hinter != nil {
		ch, release := m.hinter.Watch(sig)
		defer release()
		wake = ch
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var seen watchState
	for {
		result, done, err := m.poll(deadlineCtx, sig, commitment, opts.IncludeLogs, &seen, updates)
		if err != nil && ctx.Err() == nil && deadlineCtx.Err() == nil {
			if !IsTransient(err) {
				return MonitorResult{Signature: sig, Commitment: seen.commitment, Elapsed: time.Since(start)}, err
			}
			logger.Warnf("[Monitor] %s poll failed, keep waiting: %v", sig, err)
		}
		if done {
			result.Elapsed = time.Since(start)
			m.record(ctx, result)
			return result, nil
		}

		select {
		case <-deadlineCtx.Done():
			if ctx.Err() != nil {
				return MonitorResult{Signature: sig, Commitment: seen.commitment, Elapsed: time.Since(start)},
					fmt.Errorf("monitor %s cancelled: %w", sig, ctx.Err())
			}
			var result MonitorResult
			if seen.reached != nil {
				// 已达到确认深度，只是元数据一直不可查：以状态为准，不算超时
				result = settleFromStatus(sig, seen.reached)
				logger.Warnf("[Monitor] %s reached %s but metadata unavailable within %v, settled from status as %s",
					sig, seen.reached.Commitment, timeout, result.Outcome)
			} else {
				result = MonitorResult{Signature: sig, Outcome: OutcomeTimedOut, Commitment: seen.commitment}
				logger.Warnf("[Monitor] %s not %s within %v (last seen %q)", sig, commitment, timeout, seen.commitment)
			}
			result.Elapsed = time.Since(start)
			m.record(ctx, result)
			return result, nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

// watchState 跨轮次保留的观测
type watchState struct {
	commitment Commitment       // 最近一次看到的确认深度
	reached    *SignatureStatus // 已达到目标深度时的状态
}

// poll 单轮查询。done=true 表示已得到 SUCCEEDED 或 FAILED_EXECUTION。
func (m *Monitor) poll(ctx context.Context, sig types.Signature, want Commitment, includeLogs bool,
	seen *watchState, updates chan<- StatusUpdate) (MonitorResult, bool, error) {

	var status *SignatureStatus
	err := m.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		status, err = m.reader.SignatureStatus(ctx, sig)
		return err
	}, nil, nil)
	if err != nil {
		return MonitorResult{}, false, classifyReadError(err)
	}
	if status == nil {
		return MonitorResult{}, false, nil
	}
	if status.Commitment != seen.commitment {
		seen.commitment = status.Commitment
		notify(ctx, updates, StatusUpdate{Signature: sig, Commitment: status.Commitment, Slot: status.Slot, At: time.Now()})
	}
	if !status.Commitment.Reaches(want) {
		return MonitorResult{}, false, nil
	}
	seen.reached = status

	// 达到确认深度后读取执行元数据；processed 深度下 getTransaction 不可用，以状态中的 err 为准
	metaCommitment := want
	if metaCommitment == CommitmentProcessed {
		metaCommitment = CommitmentConfirmed
	}
	var meta *TransactionMeta
	err = m.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		meta, err = m.reader.Transaction(ctx, sig, metaCommitment)
		return err
	}, nil, nil)
	if err != nil {
		return MonitorResult{}, false, classifyReadError(err)
	}

	if meta == nil && want != CommitmentProcessed && status.Err == nil {
		// 状态已确认但元数据尚未可查，下一轮再取
		return MonitorResult{}, false, nil
	}
	if meta == nil {
		// processed 深度，或状态已带执行错误
		result := settleFromStatus(sig, status)
		logResult(result)
		return result, true, nil
	}

	result := MonitorResult{
		Signature:            sig,
		Commitment:           status.Commitment,
		Slot:                 meta.Slot,
		BlockTime:            meta.BlockTime,
		Fee:                  meta.Fee,
		Err:                  meta.Err,
		ComputeUnitsConsumed: meta.ComputeUnitsConsumed,
	}
	if includeLogs {
		result.Logs = meta.Logs
	}
	if result.Err == nil && status.Err != nil {
		result.Err = status.Err
	}
	result.Outcome = outcomeOf(result.Err)
	logResult(result)
	return result, true, nil
}

// settleFromStatus 元数据不可用时仅凭签名状态定结果
func settleFromStatus(sig types.Signature, status *SignatureStatus) MonitorResult {
	return MonitorResult{
		Signature:  sig,
		Outcome:    outcomeOf(status.Err),
		Commitment: status.Commitment,
		Slot:       status.Slot,
		Err:        status.Err,
	}
}

func outcomeOf(execErr *ExecutionError) Outcome {
	if execErr != nil {
		return OutcomeFailedExecution
	}
	return OutcomeSucceeded
}

func logResult(r MonitorResult) {
	if r.Outcome == OutcomeFailedExecution {
		logger.Warnf("[Monitor] %s confirmed at slot %d but failed: %s", r.Signature, r.Slot, r.Err)
		return
	}
	logger.Infof("[Monitor] %s succeeded at slot %d (%s)", r.Signature, r.Slot, r.Commitment)
}

func classifyReadError(err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return RpcUnavailable(CertaintyNone, true, err)
}

func notify(ctx context.Context, updates chan<- StatusUpdate, u StatusUpdate) {
	if updates == nil {
		return
	}
	select {
	case updates <- u:
	case <-ctx.Done():
	default:
		// 消费方过慢时丢弃中间状态，终态由返回值给出
	}
}

func (m *Monitor) record(ctx context.Context, result MonitorResult) {
	for _, sink := range m.sinks {
		sink.RecordOutcome(context.WithoutCancel(ctx), result)
	}
}

// MonitorTransaction 监控已提交的聚合并把结果记录在聚合上（不改变 state）
func (m *Monitor) MonitorTransaction(ctx context.Context, tx *Transaction, opts MonitorOptions, updates chan<- StatusUpdate) (MonitorResult, error) {
	tx.mu.Lock()
	if err := checkOperation(tx.state, OpMonitor); err != nil {
		tx.mu.Unlock()
		return MonitorResult{}, err
	}
	sig := tx.submission
	tx.mu.Unlock()

	result, err := m.Watch(ctx, sig, opts, updates)
	if err != nil {
		return result, err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	// 已有确定结果时不被后续的超时覆盖
	if tx.outcome == OutcomeSucceeded || tx.outcome == OutcomeFailedExecution {
		if result.Outcome == OutcomeTimedOut {
			return *tx.result, nil
		}
	}
	tx.outcome = result.Outcome
	r := result
	tx.result = &r
	tx.updatedAt = time.Now()
	return result, nil
}
