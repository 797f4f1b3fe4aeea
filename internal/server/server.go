package server

import (
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"sol-txflow/internal/pkg/logger"
)

type Option struct {
	ListenAddr       string
	EnableReflection bool
	MaxRecvMsgSize   int
	KeepaliveTime    time.Duration
}

// Registration 一个服务描述与其实现
type Registration struct {
	Desc *grpc.ServiceDesc
	Impl any
}

// TxflowServer 承载全部 gRPC 服务，实现 go-zero service.Service
type TxflowServer struct {
	opt    Option
	server *grpc.Server
}

func NewTxflowServer(opt Option, services ...Registration) *TxflowServer {
	if opt.MaxRecvMsgSize <= 0 {
		opt.MaxRecvMsgSize = 4 * 1024 * 1024
	}
	if opt.KeepaliveTime <= 0 {
		opt.KeepaliveTime = 30 * time.Second
	}
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(recoverUnary, observeUnary),
		grpc.ChainStreamInterceptor(recoverStream, observeStream),
		grpc.MaxRecvMsgSize(opt.MaxRecvMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{Time: opt.KeepaliveTime}),
	)
	for _, svc := range services {
		s.RegisterService(svc.Desc, svc.Impl)
	}
	if opt.EnableReflection {
		reflection.Register(s)
	}
	return &TxflowServer{opt: opt, server: s}
}

// Serve 在给定 listener 上阻塞服务
func (t *TxflowServer) Serve(lis net.Listener) error {
	logger.Infof("[Server] gRPC listening on %s", lis.Addr())
	if err := t.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

func (t *TxflowServer) Start() {
	lis, err := net.Listen("tcp", t.opt.ListenAddr)
	if err != nil {
		logger.Errorf("[Server] listen %s: %v", t.opt.ListenAddr, err)
		panic(err)
	}
	if err := t.Serve(lis); err != nil {
		logger.Errorf("[Server] %v", err)
	}
}

func (t *TxflowServer) Stop() {
	logger.Infof("[Server] stopping gRPC server")
	t.server.GracefulStop()
}
