package server

import (
	"context"

	"google.golang.org/grpc"

	"sol-txflow/internal/logic/builder"
	"sol-txflow/internal/logic/txn"
)

const ProgramServiceName = "txflow.v1.ProgramService"

// ProgramServiceServer 只构造指令，不触达链上
type ProgramServiceServer interface {
	BuildTransfer(context.Context, *BuildTransferRequest) (*BuiltInstructions, error)
	BuildCreateAccount(context.Context, *BuildCreateAccountRequest) (*BuiltInstructions, error)
	BuildInitializeMint(context.Context, *BuildInitializeMintRequest) (*BuiltInstructions, error)
	BuildMintTo(context.Context, *BuildMintToRequest) (*BuiltInstructions, error)
	BuildTransferChecked(context.Context, *BuildTransferCheckedRequest) (*BuiltInstructions, error)
	BuildCreateAssociatedTokenAccount(context.Context, *BuildCreateAssociatedTokenAccountRequest) (*BuiltInstructions, error)
	BuildComputeBudget(context.Context, *ExecConfig) (*BuiltInstructions, error)
}

var ProgramServiceDesc = grpc.ServiceDesc{
	ServiceName: ProgramServiceName,
	HandlerType: (*ProgramServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ProgramServiceName, "BuildTransfer", ProgramServiceServer.BuildTransfer),
		unary(ProgramServiceName, "BuildCreateAccount", ProgramServiceServer.BuildCreateAccount),
		unary(ProgramServiceName, "BuildInitializeMint", ProgramServiceServer.BuildInitializeMint),
		unary(ProgramServiceName, "BuildMintTo", ProgramServiceServer.BuildMintTo),
		unary(ProgramServiceName, "BuildTransferChecked", ProgramServiceServer.BuildTransferChecked),
		unary(ProgramServiceName, "BuildCreateAssociatedTokenAccount", ProgramServiceServer.BuildCreateAssociatedTokenAccount),
		unary(ProgramServiceName, "BuildComputeBudget", ProgramServiceServer.BuildComputeBudget),
	},
	Metadata: "txflow/v1/program.proto",
}

type ProgramService struct{}

var _ ProgramServiceServer = (*ProgramService)(nil)

func NewProgramService() *ProgramService {
	return &ProgramService{}
}

func built(ixs ...txn.Instruction) *BuiltInstructions {
	out := &BuiltInstructions{Instructions: make([]Instruction, 0, len(ixs))}
	for _, ix := range ixs {
		out.Instructions = append(out.Instructions, instructionToMsg(ix))
	}
	return out
}

func (ProgramService) BuildTransfer(_ context.Context, req *BuildTransferRequest) (*BuiltInstructions, error) {
	ix, err := builder.Transfer(builder.TransferParams{From: req.From, To: req.To, Lamports: req.Lamports})
	if err != nil {
		return nil, err
	}
	return built(ix), nil
}

func (ProgramService) BuildCreateAccount(_ context.Context, req *BuildCreateAccountRequest) (*BuiltInstructions, error) {
	ix, err := builder.CreateAccount(builder.CreateAccountParams{
		Payer:      req.Payer,
		NewAccount: req.NewAccount,
		Owner:      req.Owner,
		Lamports:   req.Lamports,
		Space:      req.Space,
	})
	if err != nil {
		return nil, err
	}
	return built(ix), nil
}

func (ProgramService) BuildInitializeMint(_ context.Context, req *BuildInitializeMintRequest) (*BuiltInstructions, error) {
	ix, err := builder.InitializeMint(builder.InitializeMintParams{
		Mint:            req.Mint,
		MintAuthority:   req.MintAuthority,
		FreezeAuthority: req.FreezeAuthority,
		Decimals:        req.Decimals,
	})
	if err != nil {
		return nil, err
	}
	return built(ix), nil
}

func (ProgramService) BuildMintTo(_ context.Context, req *BuildMintToRequest) (*BuiltInstructions, error) {
	ix, err := builder.MintTo(builder.MintToParams{
		Mint:        req.Mint,
		Destination: req.Destination,
		Authority:   req.Authority,
		Amount:      req.Amount,
	})
	if err != nil {
		return nil, err
	}
	return built(ix), nil
}

func (ProgramService) BuildTransferChecked(_ context.Context, req *BuildTransferCheckedRequest) (*BuiltInstructions, error) {
	ix, err := builder.TransferChecked(builder.TransferCheckedParams{
		Source:      req.Source,
		Destination: req.Destination,
		Mint:        req.Mint,
		Owner:       req.Owner,
		Amount:      req.Amount,
		Decimals:    req.Decimals,
	})
	if err != nil {
		return nil, err
	}
	return built(ix), nil
}

func (ProgramService) BuildCreateAssociatedTokenAccount(_ context.Context, req *BuildCreateAssociatedTokenAccountRequest) (*BuiltInstructions, error) {
	ix, ata, err := builder.CreateAssociatedTokenAccount(builder.CreateAssociatedTokenAccountParams{
		Funder: req.Funder,
		Owner:  req.Owner,
		Mint:   req.Mint,
	})
	if err != nil {
		return nil, err
	}
	out := built(ix)
	out.Address = ata.String()
	return out, nil
}

func (ProgramService) BuildComputeBudget(_ context.Context, req *ExecConfig) (*BuiltInstructions, error) {
	ixs, err := builder.ComputeBudget(req.ComputeUnitLimit, req.ComputeUnitPrice)
	if err != nil {
		return nil, err
	}
	return built(ixs...), nil
}
