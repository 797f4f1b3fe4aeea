package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/pkg/logger"
)

// kindCodes 错误种类到 gRPC 状态码
var kindCodes = map[txn.Kind]codes.Code{
	txn.KindInvalidState:         codes.FailedPrecondition,
	txn.KindEmptyTransaction:     codes.InvalidArgument,
	txn.KindUnresolvableFeePayer: codes.InvalidArgument,
	txn.KindUnknownSigner:        codes.InvalidArgument,
	txn.KindInvalidKeyMaterial:   codes.InvalidArgument,
	txn.KindIncompleteSignatures: codes.FailedPrecondition,
	txn.KindInvalidArgument:      codes.InvalidArgument,
	txn.KindNotFound:             codes.NotFound,
	txn.KindRpcUnavailable:       codes.Unavailable,
	txn.KindConfirmationTimeout:  codes.DeadlineExceeded,
	txn.KindRejectedByNetwork:    codes.Aborted,
	txn.KindExecutionFailed:      codes.Aborted,
	txn.KindCancelled:            codes.Canceled,
}

// toStatus 把生命周期错误转成 gRPC status，错误字段放在 structpb 详情里
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	e, ok := txn.AsError(err)
	if !ok {
		switch {
		case errors.Is(err, context.Canceled):
			return status.Error(codes.Canceled, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return status.Error(codes.DeadlineExceeded, err.Error())
		default:
			return status.Error(codes.Internal, err.Error())
		}
	}

	code, found := kindCodes[e.Kind]
	if !found {
		code = codes.Unknown
	}
	st := status.New(code, e.Error())
	detail, derr := structpb.NewStruct(errorDetail(e))
	if derr != nil {
		logger.Warnf("[Server] build error detail: %v", derr)
		return st.Err()
	}
	if withDetail, derr := st.WithDetails(detail); derr == nil {
		st = withDetail
	}
	return st.Err()
}

func errorDetail(e *txn.Error) map[string]any {
	detail := map[string]any{
		"kind":      e.Kind.String(),
		"category":  e.Category().String(),
		"retryable": e.Retryable,
	}
	if e.Field != "" {
		detail["field"] = e.Field
	}
	if len(e.Signers) > 0 {
		signers := make([]any, 0, len(e.Signers))
		for _, s := range e.Signers {
			signers = append(signers, s)
		}
		detail["signers"] = signers
	}
	if c := e.Certainty.String(); c != "" {
		detail["certainty"] = c
	}
	if e.Signature != "" {
		detail["signature"] = e.Signature
	}
	if e.BlockhashExpiry > 0 {
		detail["blockhash_expiry"] = e.BlockhashExpiry
	}
	if e.Execution != nil {
		detail["execution_error"] = e.Execution.Error()
		if len(e.Execution.Raw) > 0 {
			detail["execution_error_raw"] = string(e.Execution.Raw)
		}
	}
	return detail
}

// ErrorDetail 客户端从 status 中取回错误详情，没有时返回 nil
func ErrorDetail(err error) map[string]any {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			return s.AsMap()
		}
	}
	return nil
}

// resultOf 指标标签：ok 或错误种类
func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := txn.AsError(err); ok {
		return e.Kind.String()
	}
	if st, ok := status.FromError(err); ok {
		return st.Code().String()
	}
	return "error"
}
