package server

import (
	"context"
	"path"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"sol-txflow/internal/metrics"
	"sol-txflow/internal/pkg/logger"
)

// recoverUnary handler panic 时返回不透明的 Internal 错误
func recoverUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Server] panic in %s: %v\n%s", info.FullMethod, r, debug.Stack())
			err = status.Errorf(codes.Internal, "unexpected error in method %s", info.FullMethod)
		}
	}()
	return handler(ctx, req)
}

func recoverStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Server] panic in %s: %v\n%s", info.FullMethod, r, debug.Stack())
			err = status.Errorf(codes.Internal, "unexpected error in method %s", info.FullMethod)
		}
	}()
	return handler(srv, ss)
}

// observeUnary 记录耗时与结果，并把生命周期错误转换为 status
func observeUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	method := path.Base(info.FullMethod)
	result := resultOf(err)
	metrics.ObserveOperation(method, result)
	if err != nil {
		logger.Warnf("[Server] %s failed after %v: %v", method, time.Since(start), err)
		return nil, toStatus(err)
	}
	logger.Debugf("[Server] %s ok in %v", method, time.Since(start))
	return resp, nil
}

func observeStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	method := path.Base(info.FullMethod)
	metrics.ObserveOperation(method, resultOf(err))
	if err != nil {
		logger.Warnf("[Server] %s stream ended after %v: %v", method, time.Since(start), err)
		return toStatus(err)
	}
	return nil
}
