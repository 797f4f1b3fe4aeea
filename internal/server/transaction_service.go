package server

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"

	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/metrics"
	"sol-txflow/internal/pkg/types"
)

const TransactionServiceName = "txflow.v1.TransactionService"

// TransactionServiceServer 交易生命周期接口
type TransactionServiceServer interface {
	CreateDraft(context.Context, *CreateDraftRequest) (*Transaction, error)
	AddInstructions(context.Context, *AddInstructionsRequest) (*Transaction, error)
	Compile(context.Context, *CompileRequest) (*Transaction, error)
	Sign(context.Context, *SignRequest) (*Transaction, error)
	ApplySignature(context.Context, *ApplySignatureRequest) (*Transaction, error)
	Submit(context.Context, *SubmitRequest) (*Transaction, error)
	Monitor(*MonitorRequest, MonitorStream) error
	Estimate(context.Context, *IDRequest) (*Estimate, error)
	Simulate(context.Context, *SimulateRequest) (*Simulation, error)
	GetTransaction(context.Context, *GetTransactionRequest) (*TransactionMeta, error)
	Get(context.Context, *IDRequest) (*Transaction, error)
}

// MonitorStream Monitor 的服务端流
type MonitorStream interface {
	Send(*MonitorEvent) error
	Context() context.Context
}

type monitorStream struct {
	grpc.ServerStream
}

func (s *monitorStream) Send(m *MonitorEvent) error {
	return s.ServerStream.SendMsg(m)
}

var TransactionServiceDesc = grpc.ServiceDesc{
	ServiceName: TransactionServiceName,
	HandlerType: (*TransactionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(TransactionServiceName, "CreateDraft", TransactionServiceServer.CreateDraft),
		unary(TransactionServiceName, "AddInstructions", TransactionServiceServer.AddInstructions),
		unary(TransactionServiceName, "Compile", TransactionServiceServer.Compile),
		unary(TransactionServiceName, "Sign", TransactionServiceServer.Sign),
		unary(TransactionServiceName, "ApplySignature", TransactionServiceServer.ApplySignature),
		unary(TransactionServiceName, "Submit", TransactionServiceServer.Submit),
		unary(TransactionServiceName, "Estimate", TransactionServiceServer.Estimate),
		unary(TransactionServiceName, "Simulate", TransactionServiceServer.Simulate),
		unary(TransactionServiceName, "GetTransaction", TransactionServiceServer.GetTransaction),
		unary(TransactionServiceName, "Get", TransactionServiceServer.Get),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Monitor",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(MonitorRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(TransactionServiceServer).Monitor(in, &monitorStream{ServerStream: stream})
			},
		},
	},
	Metadata: "txflow/v1/transaction.proto",
}

// TransactionService 以 Registry 持有聚合，生命周期操作委托给 Engine
type TransactionService struct {
	engine   *txn.Engine
	registry *txn.Registry
	reader   txn.StatusReader
}

var _ TransactionServiceServer = (*TransactionService)(nil)

func NewTransactionService(engine *txn.Engine, registry *txn.Registry, reader txn.StatusReader) *TransactionService {
	return &TransactionService{engine: engine, registry: registry, reader: reader}
}

func (s *TransactionService) lookup(id string) (*txn.Transaction, error) {
	if id == "" {
		return nil, txn.InvalidArgument("id", "id is required")
	}
	return s.registry.Get(id)
}

func (s *TransactionService) CreateDraft(_ context.Context, req *CreateDraftRequest) (*Transaction, error) {
	ixs, err := instructionsFromMsg(req.Instructions)
	if err != nil {
		return nil, err
	}
	tx := txn.NewTransaction(req.FeePayer, execConfigFromMsg(req.ExecConfig), ixs...)
	s.registry.Put(tx)
	metrics.SetRegistrySize(s.registry.Len())
	return snapshotToMsg(tx.Snapshot()), nil
}

func (s *TransactionService) AddInstructions(_ context.Context, req *AddInstructionsRequest) (*Transaction, error) {
	tx, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	ixs, err := instructionsFromMsg(req.Instructions)
	if err != nil {
		return nil, err
	}
	if err := tx.AddInstructions(ixs...); err != nil {
		return nil, err
	}
	return snapshotToMsg(tx.Snapshot()), nil
}

func (s *TransactionService) Compile(ctx context.Context, req *CompileRequest) (*Transaction, error) {
	tx, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	commitment, err := txn.ParseCommitment(req.Commitment)
	if err != nil {
		return nil, err
	}
	opts := txn.CompileOptions{Commitment: commitment}
	if req.Blockhash != "" {
		hash, err := types.HashFromBase58(req.Blockhash)
		if err != nil {
			return nil, txn.InvalidArgument("blockhash", "malformed blockhash").WithCause(err)
		}
		opts.Blockhash = &txn.Blockhash{Hash: hash, LastValidBlockHeight: req.LastValidBlockHeight}
	}
	snap, err := s.engine.Compile(ctx, tx, opts)
	if err != nil {
		return nil, err
	}
	return snapshotToMsg(snap), nil
}

func (s *TransactionService) Sign(ctx context.Context, req *SignRequest) (*Transaction, error) {
	tx, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	if len(req.PrivateKeys) == 0 {
		return nil, txn.InvalidArgument("private_keys", "at least one private key is required")
	}
	keys := make([]txn.KeyPair, 0, len(req.PrivateKeys))
	for _, raw := range req.PrivateKeys {
		key, err := txn.ParsePrivateKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, txn.KeyPair{PrivateKey: key})
	}
	snap, err := s.engine.Sign(ctx, tx, keys...)
	if err != nil {
		return nil, err
	}
	return snapshotToMsg(snap), nil
}

func (s *TransactionService) ApplySignature(_ context.Context, req *ApplySignatureRequest) (*Transaction, error) {
	tx, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	sig, err := types.SignatureFromBase58(req.Signature)
	if err != nil {
		return nil, txn.InvalidArgument("signature", "malformed signature").WithCause(err)
	}
	snap, err := s.engine.Signer.ApplySignature(tx, req.Signer, sig)
	if err != nil {
		return nil, err
	}
	return snapshotToMsg(snap), nil
}

func (s *TransactionService) Submit(ctx context.Context, req *SubmitRequest) (*Transaction, error) {
	tx, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	opts := txn.SendOptions{SkipPreflight: req.SkipPreflight, MaxRetries: req.MaxRetries}
	if req.PreflightCommitment != "" {
		if opts.PreflightCommitment, err = txn.ParseCommitment(req.PreflightCommitment); err != nil {
			return nil, err
		}
	}
	snap, err := s.engine.Submit(ctx, tx, opts)
	if err != nil {
		return nil, err
	}
	return snapshotToMsg(snap), nil
}

// monitorOptions 校验服务边界上的超时范围
func monitorOptions(commitment string, timeoutSeconds uint32, includeLogs bool) (txn.MonitorOptions, error) {
	c, err := txn.ParseCommitment(commitment)
	if err != nil {
		return txn.MonitorOptions{}, err
	}
	timeout := txn.DefaultMonitorTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
		if timeout < txn.MinMonitorTimeout || timeout > txn.MaxMonitorTimeout {
			return txn.MonitorOptions{}, txn.InvalidArgument("timeout_seconds", "timeout must be between %d and %d seconds",
				int(txn.MinMonitorTimeout.Seconds()), int(txn.MaxMonitorTimeout.Seconds()))
		}
	}
	return txn.MonitorOptions{Commitment: c, Timeout: timeout, IncludeLogs: includeLogs}, nil
}

func (s *TransactionService) Monitor(req *MonitorRequest, stream MonitorStream) error {
	opts, err := monitorOptions(req.Commitment, req.TimeoutSeconds, req.IncludeLogs)
	if err != nil {
		return err
	}

	var run func(ctx context.Context, updates chan<- txn.StatusUpdate) (txn.MonitorResult, error)
	switch {
	case req.ID != "":
		tx, err := s.registry.Get(req.ID)
		if err != nil {
			return err
		}
		run = func(ctx context.Context, updates chan<- txn.StatusUpdate) (txn.MonitorResult, error) {
			return s.engine.MonitorTransaction(ctx, tx, opts, updates)
		}
	case req.Signature != "":
		sig, err := types.SignatureFromBase58(req.Signature)
		if err != nil {
			return txn.InvalidArgument("signature", "malformed signature").WithCause(err)
		}
		run = func(ctx context.Context, updates chan<- txn.StatusUpdate) (txn.MonitorResult, error) {
			return s.engine.Monitor.Watch(ctx, sig, opts, updates)
		}
	default:
		return txn.InvalidArgument("id", "id or signature is required")
	}

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	updates := make(chan txn.StatusUpdate, 16)
	var (
		wg      sync.WaitGroup
		sendErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for u := range updates {
			if sendErr != nil {
				continue
			}
			if err := stream.Send(&MonitorEvent{Status: &StatusUpdate{
				Signature:  u.Signature.String(),
				Commitment: string(u.Commitment),
				Slot:       u.Slot,
				At:         u.At,
			}}); err != nil {
				sendErr = err
				cancel()
			}
		}
	}()

	result, err := run(ctx, updates)
	close(updates)
	wg.Wait()
	if sendErr != nil {
		return sendErr
	}
	if err != nil {
		return err
	}
	return stream.Send(&MonitorEvent{Result: resultToMsg(result)})
}

func (s *TransactionService) Estimate(ctx context.Context, req *IDRequest) (*Estimate, error) {
	tx, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	est, err := s.engine.Estimate(ctx, tx)
	if err != nil {
		return nil, err
	}
	return estimateToMsg(est), nil
}

func (s *TransactionService) Simulate(ctx context.Context, req *SimulateRequest) (*Simulation, error) {
	tx, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	commitment, err := txn.ParseCommitment(req.Commitment)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Simulate(ctx, tx, commitment)
	if err != nil {
		return nil, err
	}
	return &Simulation{
		Success:       res.Succeeded(),
		Error:         execErrorToMsg(res.Err),
		Logs:          res.Logs,
		UnitsConsumed: res.UnitsConsumed,
	}, nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, req *GetTransactionRequest) (*TransactionMeta, error) {
	if req.Signature == "" {
		return nil, txn.InvalidArgument("signature", "signature is required")
	}
	sig, err := types.SignatureFromBase58(req.Signature)
	if err != nil {
		return nil, txn.InvalidArgument("signature", "malformed signature").WithCause(err)
	}
	commitment, err := txn.ParseCommitment(req.Commitment)
	if err != nil {
		return nil, err
	}
	meta, err := s.reader.Transaction(ctx, sig, commitment)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, txn.NotFound("signature", "transaction %s not found", req.Signature)
	}
	return &TransactionMeta{
		Signature:    req.Signature,
		Slot:         meta.Slot,
		BlockTime:    meta.BlockTime,
		Fee:          meta.Fee,
		Error:        execErrorToMsg(meta.Err),
		Logs:         meta.Logs,
		ComputeUnits: meta.ComputeUnitsConsumed,
		PreBalances:  meta.PreBalances,
		PostBalances: meta.PostBalances,
	}, nil
}

func (s *TransactionService) Get(_ context.Context, req *IDRequest) (*Transaction, error) {
	tx, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	return snapshotToMsg(tx.Snapshot()), nil
}
