package txn

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 错误种类
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidState
	KindEmptyTransaction
	KindUnresolvableFeePayer
	KindUnknownSigner
	KindInvalidKeyMaterial
	KindIncompleteSignatures
	KindInvalidArgument
	KindNotFound
	KindRpcUnavailable
	KindConfirmationTimeout
	KindRejectedByNetwork
	KindExecutionFailed
	KindCancelled
)

var kindNames = map[Kind]string{
	KindUnknown:              "Unknown",
	KindInvalidState:         "InvalidState",
	KindEmptyTransaction:     "EmptyTransaction",
	KindUnresolvableFeePayer: "UnresolvableFeePayer",
	KindUnknownSigner:        "UnknownSigner",
	KindInvalidKeyMaterial:   "InvalidKeyMaterial",
	KindIncompleteSignatures: "IncompleteSignatures",
	KindInvalidArgument:      "InvalidArgument",
	KindNotFound:             "NotFound",
	KindRpcUnavailable:       "RpcUnavailable",
	KindConfirmationTimeout:  "ConfirmationTimeout",
	KindRejectedByNetwork:    "RejectedByNetwork",
	KindExecutionFailed:      "ExecutionFailed",
	KindCancelled:            "Cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Category 错误大类，决定重试策略
type Category uint8

const (
	CategoryValidation Category = iota + 1 // 本地校验，不重试
	CategoryTransient                      // 基础设施瞬时错误，可重试同一步
	CategoryFatal                          // 网络明确拒绝，不可原样重试
	CategoryExecution                      // 已上链但执行失败
)

func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "VALIDATION"
	case CategoryTransient:
		return "TRANSIENT"
	case CategoryFatal:
		return "FATAL"
	case CategoryExecution:
		return "EXECUTION"
	default:
		return "UNKNOWN"
	}
}

// Certainty 提交失败时交易是否可能已被网络接收
type Certainty uint8

const (
	CertaintyNone              Certainty = iota
	CertaintyNotSubmitted                // 确定未提交，可重新编译后重试
	CertaintyUnknownResolvable           // 可能已提交，用签名轮询 Monitor 确认
	CertaintyUnknown                     // 状态未知
)

func (c Certainty) String() string {
	switch c {
	case CertaintyNotSubmitted:
		return "NOT_SUBMITTED"
	case CertaintyUnknownResolvable:
		return "UNKNOWN_RESOLVABLE"
	case CertaintyUnknown:
		return "UNKNOWN"
	default:
		return ""
	}
}

// Error 生命周期各组件统一返回的错误
type Error struct {
	Kind    Kind
	Message string
	Field   string   // 出错字段
	Signers []string // 缺失或未知的签名者地址

	// 提交相关
	Certainty       Certainty
	Retryable       bool
	Signature       string // 可用于轮询的交易签名
	BlockhashExpiry uint64 // blockhash 失效的区块高度

	Execution *ExecutionError
	Cause     error
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) withField(field string) *Error {
	e.Field = field
	return e
}

func (e *Error) withCause(err error) *Error {
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Field != "" {
		b.WriteString(" (field=")
		b.WriteString(e.Field)
		b.WriteString(")")
	}
	if len(e.Signers) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Signers, ", "))
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Category() Category {
	switch e.Kind {
	case KindRpcUnavailable, KindConfirmationTimeout:
		return CategoryTransient
	case KindRejectedByNetwork:
		return CategoryFatal
	case KindExecutionFailed:
		return CategoryExecution
	default:
		return CategoryValidation
	}
}

// AsError 取出错误链中的 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf 返回错误种类，非 *Error 返回 KindUnknown
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsInvalidState(err error) bool { return IsKind(err, KindInvalidState) }

func IsUnknownSigner(err error) bool { return IsKind(err, KindUnknownSigner) }

func IsIncompleteSignatures(err error) bool { return IsKind(err, KindIncompleteSignatures) }

// IsTransient 瞬时错误：同一步骤可以重试
func IsTransient(err error) bool {
	e, ok := AsError(err)
	return ok && e.Category() == CategoryTransient
}

// RpcUnavailable 构造瞬时 RPC 错误
func RpcUnavailable(certainty Certainty, retryable bool, cause error) *Error {
	e := newError(KindRpcUnavailable, "ledger rpc unavailable").withCause(cause)
	e.Certainty = certainty
	e.Retryable = retryable
	return e
}

// Cancelled 调用方在本地步骤中取消，未发生任何 RPC 调用
func Cancelled(op Operation, cause error) *Error {
	return newError(KindCancelled, "%s cancelled", op).withCause(cause)
}

// RejectedByNetwork 构造网络拒绝错误，附带链上错误详情
func RejectedByNetwork(reason string, exec *ExecutionError, cause error) *Error {
	e := newError(KindRejectedByNetwork, "%s", reason).withCause(cause)
	e.Certainty = CertaintyNotSubmitted
	e.Execution = exec
	return e
}

// ExecutionFailed 把 FAILED_EXECUTION 结果转成错误，供链式调用方使用
func ExecutionFailed(sig string, exec *ExecutionError) *Error {
	e := newError(KindExecutionFailed, "transaction %s failed on ledger: %s", sig, exec)
	e.Signature = sig
	e.Execution = exec
	return e
}

// InvalidArgument 本地参数校验错误，field 为出错字段
func InvalidArgument(field string, format string, args ...any) *Error {
	return newError(KindInvalidArgument, format, args...).withField(field)
}

// NotFound 查询对象不存在
func NotFound(field string, format string, args ...any) *Error {
	return newError(KindNotFound, format, args...).withField(field)
}

// WithCause 附加底层错误
func (e *Error) WithCause(err error) *Error {
	return e.withCause(err)
}
