package txn

import (
	"context"
)

// EngineOptions 构造参数，零值可用
type EngineOptions struct {
	Retry          *RetryPolicy
	Market         MarketFeeSource
	EstimateParams EstimateParams
	MonitorOptions []MonitorOption
}

// Engine 生命周期各组件的组合，Ledger 在构造时注入
type Engine struct {
	Compiler  *Compiler
	Signer    *Signer
	Submitter *Submitter
	Monitor   *Monitor
	Estimator *Estimator
}

func NewEngine(ledger Ledger, opts EngineOptions) *Engine {
	retry := DefaultRetryPolicy()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	return &Engine{
		Compiler:  NewCompiler(ledger, retry),
		Signer:    NewSigner(),
		// 发送只重试确定未送达的错误，见 retryBeforeSubmission
		Submitter: NewSubmitter(ledger, retry),
		Monitor:   NewMonitor(ledger, retry, opts.MonitorOptions...),
		Estimator: NewEstimator(ledger, ledger, opts.Market, opts.EstimateParams),
	}
}

func (e *Engine) Compile(ctx context.Context, tx *Transaction, opts CompileOptions) (Snapshot, error) {
	return e.Compiler.Compile(ctx, tx, opts)
}

func (e *Engine) Sign(ctx context.Context, tx *Transaction, keys ...KeyPair) (Snapshot, error) {
	return e.Signer.Sign(ctx, tx, keys...)
}

func (e *Engine) Submit(ctx context.Context, tx *Transaction, opts SendOptions) (Snapshot, error) {
	return e.Submitter.Submit(ctx, tx, opts)
}

func (e *Engine) MonitorTransaction(ctx context.Context, tx *Transaction, opts MonitorOptions, updates chan<- StatusUpdate) (MonitorResult, error) {
	return e.Monitor.MonitorTransaction(ctx, tx, opts, updates)
}

func (e *Engine) Estimate(ctx context.Context, tx *Transaction) (Estimate, error) {
	return e.Estimator.Estimate(ctx, tx)
}

func (e *Engine) Simulate(ctx context.Context, tx *Transaction, commitment Commitment) (SimulationResult, error) {
	return e.Estimator.Simulate(ctx, tx, commitment)
}

// ExecuteRequest 一次性执行的参数
type ExecuteRequest struct {
	Compile CompileOptions
	Keys    []KeyPair
	Send    SendOptions
	Monitor MonitorOptions
}

// Execute 编译、签名、提交并监控到终态。
// FAILED_EXECUTION / TIMED_OUT 通过 MonitorResult.AsError 以错误返回，调用方不会把失败交易当作成功。
func (e *Engine) Execute(ctx context.Context, tx *Transaction, req ExecuteRequest) (MonitorResult, error) {
	if tx.State() == StateDraft {
		if _, err := e.Compile(ctx, tx, req.Compile); err != nil {
			return MonitorResult{}, err
		}
	}
	if tx.State() != StateFullySigned && len(req.Keys) > 0 {
		if _, err := e.Sign(ctx, tx, req.Keys...); err != nil {
			return MonitorResult{}, err
		}
	}
	if _, err := e.Submit(ctx, tx, req.Send); err != nil {
		return MonitorResult{}, err
	}
	result, err := e.MonitorTransaction(ctx, tx, req.Monitor, nil)
	if err != nil {
		return result, err
	}
	return result, result.AsError()
}
