package server

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client txflow 服务的 gRPC 客户端，所有调用走 JSON codec
type Client struct {
	conn grpc.ClientConnInterface
	opts []grpc.CallOption
}

// Dial 建立到 addr 的连接；关闭由返回的 closer 负责
func Dial(addr string) (*Client, io.Closer, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn), conn, nil
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn, opts: []grpc.CallOption{grpc.CallContentSubtype(CodecName)}}
}

func (c *Client) CreateDraft(ctx context.Context, req *CreateDraftRequest) (*Transaction, error) {
	return invoke[CreateDraftRequest, Transaction](ctx, c.conn, TransactionServiceName, "CreateDraft", req, c.opts...)
}

func (c *Client) AddInstructions(ctx context.Context, req *AddInstructionsRequest) (*Transaction, error) {
	return invoke[AddInstructionsRequest, Transaction](ctx, c.conn, TransactionServiceName, "AddInstructions", req, c.opts...)
}

func (c *Client) Compile(ctx context.Context, req *CompileRequest) (*Transaction, error) {
	return invoke[CompileRequest, Transaction](ctx, c.conn, TransactionServiceName, "Compile", req, c.opts...)
}

func (c *Client) Sign(ctx context.Context, req *SignRequest) (*Transaction, error) {
	return invoke[SignRequest, Transaction](ctx, c.conn, TransactionServiceName, "Sign", req, c.opts...)
}

func (c *Client) ApplySignature(ctx context.Context, req *ApplySignatureRequest) (*Transaction, error) {
	return invoke[ApplySignatureRequest, Transaction](ctx, c.conn, TransactionServiceName, "ApplySignature", req, c.opts...)
}

func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*Transaction, error) {
	return invoke[SubmitRequest, Transaction](ctx, c.conn, TransactionServiceName, "Submit", req, c.opts...)
}

func (c *Client) Estimate(ctx context.Context, req *IDRequest) (*Estimate, error) {
	return invoke[IDRequest, Estimate](ctx, c.conn, TransactionServiceName, "Estimate", req, c.opts...)
}

func (c *Client) Simulate(ctx context.Context, req *SimulateRequest) (*Simulation, error) {
	return invoke[SimulateRequest, Simulation](ctx, c.conn, TransactionServiceName, "Simulate", req, c.opts...)
}

func (c *Client) GetTransaction(ctx context.Context, req *GetTransactionRequest) (*TransactionMeta, error) {
	return invoke[GetTransactionRequest, TransactionMeta](ctx, c.conn, TransactionServiceName, "GetTransaction", req, c.opts...)
}

func (c *Client) Get(ctx context.Context, req *IDRequest) (*Transaction, error) {
	return invoke[IDRequest, Transaction](ctx, c.conn, TransactionServiceName, "Get", req, c.opts...)
}

// Monitor 逐条回调状态推送，返回最终结果
func (c *Client) Monitor(ctx context.Context, req *MonitorRequest, onStatus func(*StatusUpdate)) (*MonitorResult, error) {
	stream, err := c.conn.NewStream(ctx, &TransactionServiceDesc.Streams[0], "/"+TransactionServiceName+"/Monitor", c.opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	for {
		ev := new(MonitorEvent)
		if err := stream.RecvMsg(ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("monitor stream ended without result")
			}
			return nil, err
		}
		if ev.Status != nil && onStatus != nil {
			onStatus(ev.Status)
		}
		if ev.Result != nil {
			return ev.Result, nil
		}
	}
}

func (c *Client) GetAccount(ctx context.Context, req *AddressRequest) (*Account, error) {
	return invoke[AddressRequest, Account](ctx, c.conn, AccountServiceName, "GetAccount", req, c.opts...)
}

func (c *Client) GetBalance(ctx context.Context, req *AddressRequest) (*Balance, error) {
	return invoke[AddressRequest, Balance](ctx, c.conn, AccountServiceName, "GetBalance", req, c.opts...)
}

func (c *Client) GenerateKeypair(ctx context.Context, req *GenerateKeypairRequest) (*Keypair, error) {
	return invoke[GenerateKeypairRequest, Keypair](ctx, c.conn, AccountServiceName, "GenerateKeypair", req, c.opts...)
}

func (c *Client) FundNative(ctx context.Context, req *FundNativeRequest) (*MonitorResult, error) {
	return invoke[FundNativeRequest, MonitorResult](ctx, c.conn, AccountServiceName, "FundNative", req, c.opts...)
}

func (c *Client) MinimumBalanceForRentExemption(ctx context.Context, req *RentExemptionRequest) (*RentExemption, error) {
	return invoke[RentExemptionRequest, RentExemption](ctx, c.conn, AccountServiceName, "MinimumBalanceForRentExemption", req, c.opts...)
}

func (c *Client) BuildTransfer(ctx context.Context, req *BuildTransferRequest) (*BuiltInstructions, error) {
	return invoke[BuildTransferRequest, BuiltInstructions](ctx, c.conn, ProgramServiceName, "BuildTransfer", req, c.opts...)
}

func (c *Client) BuildCreateAccount(ctx context.Context, req *BuildCreateAccountRequest) (*BuiltInstructions, error) {
	return invoke[BuildCreateAccountRequest, BuiltInstructions](ctx, c.conn, ProgramServiceName, "BuildCreateAccount", req, c.opts...)
}

func (c *Client) BuildInitializeMint(ctx context.Context, req *BuildInitializeMintRequest) (*BuiltInstructions, error) {
	return invoke[BuildInitializeMintRequest, BuiltInstructions](ctx, c.conn, ProgramServiceName, "BuildInitializeMint", req, c.opts...)
}

func (c *Client) BuildMintTo(ctx context.Context, req *BuildMintToRequest) (*BuiltInstructions, error) {
	return invoke[BuildMintToRequest, BuiltInstructions](ctx, c.conn, ProgramServiceName, "BuildMintTo", req, c.opts...)
}

func (c *Client) BuildTransferChecked(ctx context.Context, req *BuildTransferCheckedRequest) (*BuiltInstructions, error) {
	return invoke[BuildTransferCheckedRequest, BuiltInstructions](ctx, c.conn, ProgramServiceName, "BuildTransferChecked", req, c.opts...)
}

func (c *Client) BuildCreateAssociatedTokenAccount(ctx context.Context, req *BuildCreateAssociatedTokenAccountRequest) (*BuiltInstructions, error) {
	return invoke[BuildCreateAssociatedTokenAccountRequest, BuiltInstructions](ctx, c.conn, ProgramServiceName, "BuildCreateAssociatedTokenAccount", req, c.opts...)
}

func (c *Client) BuildComputeBudget(ctx context.Context, req *ExecConfig) (*BuiltInstructions, error) {
	return invoke[ExecConfig, BuiltInstructions](ctx, c.conn, ProgramServiceName, "BuildComputeBudget", req, c.opts...)
}
