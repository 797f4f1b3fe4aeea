package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blocto/solana-go-sdk/client"
	"golang.org/x/time/rate"

	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/metrics"
)

// JSON-RPC 错误码
const (
	codeSendPreflightFailure = -32002
	codeNodeUnhealthy        = -32005
	codeInvalidParams        = -32602
	codeTxSignatureInvalid   = -32003
	codeBlockhashNotFound    = -32004 // 老版本节点的预检错误
)

// Option RPC 连接参数
type Option struct {
	Endpoint       string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// RpcLedger 基于 JSON-RPC 的 txn.Ledger 实现
type RpcLedger struct {
	client  *client.Client
	limiter *rate.Limiter
	timeout time.Duration
}

var _ txn.Ledger = (*RpcLedger)(nil)

func New(opt Option) *RpcLedger {
	l := &RpcLedger{
		client:  client.NewClient(opt.Endpoint),
		timeout: opt.RequestTimeout,
	}
	if opt.RateLimitRPS > 0 {
		burst := opt.RateLimitBurst
		if burst <= 0 {
			burst = int(opt.RateLimitRPS) + 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(opt.RateLimitRPS), burst)
	}
	return l
}

// rpcError JSON-RPC error 对象
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// contextValue 带 context.slot 的结果包装
type contextValue[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

// transportError 请求未得到 JSON-RPC 响应；answered 表示服务端返回了非 2xx 状态
type transportError struct {
	answered bool
	err      error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// notSentError 限流等待失败，请求没有发出
type notSentError struct{ err error }

func (e *notSentError) Error() string { return "rate limiter: " + e.err.Error() }
func (e *notSentError) Unwrap() error { return e.err }

func (l *RpcLedger) wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return &notSentError{err: err}
	}
	return nil
}

func (l *RpcLedger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

// call 发送一次 JSON-RPC 请求，结果解码到 out（可为 nil）。
// 返回 *rpcError、*transportError 或解码错误。
func (l *RpcLedger) call(ctx context.Context, out any, method string, params ...any) (err error) {
	if err := l.wait(ctx); err != nil {
		return err
	}
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.ObserveRPC(method, start, err) }()

	body, err := l.client.RpcClient.Call(ctx, append([]any{method}, params...)...)
	var resp rpcResponse
	if len(body) > 0 && json.Unmarshal(body, &resp) == nil && (resp.Error != nil || resp.Result != nil) {
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
	if err != nil {
		// sdk 以 %v 包装 http 错误，这里补回 ctx 错误链
		if cerr := ctx.Err(); cerr != nil {
			return &transportError{err: fmt.Errorf("%s: %w (%v)", method, cerr, err)}
		}
		return &transportError{answered: len(body) > 0, err: fmt.Errorf("%s: %w", method, err)}
	}
	// result: null
	if out != nil {
		if err := json.Unmarshal([]byte("null"), out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// classifyRead 读请求错误：参数错误不可重试，其余视为瞬时错误
func classifyRead(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := txn.AsError(err); ok {
		return err
	}
	var re *rpcError
	if errors.As(err, &re) && re.Code == codeInvalidParams {
		return txn.InvalidArgument("params", "%s", re.Message).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return txn.RpcUnavailable(txn.CertaintyNone, true, err)
}

// preflightData sendTransaction 预检失败时 error.data 的内容
type preflightData struct {
	Err  json.RawMessage `json:"err"`
	Logs []string        `json:"logs"`
}

// classifySend 发送错误分类；返回 nil 表示交易已被处理过（AlreadyProcessed）
func classifySend(err error) error {
	if err == nil {
		return nil
	}
	var re *rpcError
	if errors.As(err, &re) {
		switch re.Code {
		case codeSendPreflightFailure:
			var data preflightData
			if len(re.Data) > 0 && json.Unmarshal(re.Data, &data) == nil {
				exec, perr := txn.ParseExecutionError(data.Err)
				if perr == nil && exec != nil {
					if e := txn.ClassifyPreflightFailure(re.Message, exec); e != nil {
						e.Cause = err
						return e
					}
					return nil
				}
			}
			return txn.ClassifyByMessage(re.Message, err)
		case codeNodeUnhealthy:
			return txn.RpcUnavailable(txn.CertaintyNotSubmitted, true, err)
		case codeInvalidParams, codeTxSignatureInvalid, codeBlockhashNotFound:
			return txn.RejectedByNetwork(re.Message, nil, err)
		default:
			return txn.ClassifyByMessage(re.Message, err)
		}
	}
	var ns *notSentError
	if errors.As(err, &ns) {
		return txn.RpcUnavailable(txn.CertaintyNotSubmitted, true, err)
	}
	var te *transportError
	if errors.As(err, &te) && te.answered {
		// 网关返回 429/503 等状态，请求未进入节点
		return txn.RpcUnavailable(txn.CertaintyNotSubmitted, true, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return txn.RpcUnavailable(txn.CertaintyUnknownResolvable, false, err)
	}
	return txn.RpcUnavailable(txn.CertaintyUnknown, false, err)
}
