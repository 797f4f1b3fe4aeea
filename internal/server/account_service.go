package server

import (
	"context"

	"google.golang.org/grpc"

	"sol-txflow/internal/logic/account"
	"sol-txflow/internal/logic/txn"
)

const AccountServiceName = "txflow.v1.AccountService"

type AccountServiceServer interface {
	GetAccount(context.Context, *AddressRequest) (*Account, error)
	GetBalance(context.Context, *AddressRequest) (*Balance, error)
	GenerateKeypair(context.Context, *GenerateKeypairRequest) (*Keypair, error)
	FundNative(context.Context, *FundNativeRequest) (*MonitorResult, error)
	MinimumBalanceForRentExemption(context.Context, *RentExemptionRequest) (*RentExemption, error)
}

var AccountServiceDesc = grpc.ServiceDesc{
	ServiceName: AccountServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(AccountServiceName, "GetAccount", AccountServiceServer.GetAccount),
		unary(AccountServiceName, "GetBalance", AccountServiceServer.GetBalance),
		unary(AccountServiceName, "GenerateKeypair", AccountServiceServer.GenerateKeypair),
		unary(AccountServiceName, "FundNative", AccountServiceServer.FundNative),
		unary(AccountServiceName, "MinimumBalanceForRentExemption", AccountServiceServer.MinimumBalanceForRentExemption),
	},
	Metadata: "txflow/v1/account.proto",
}

type AccountService struct {
	accounts *account.Service
}

var _ AccountServiceServer = (*AccountService)(nil)

func NewAccountService(accounts *account.Service) *AccountService {
	return &AccountService{accounts: accounts}
}

func (s *AccountService) GetAccount(ctx context.Context, req *AddressRequest) (*Account, error) {
	commitment, err := txn.ParseCommitment(req.Commitment)
	if err != nil {
		return nil, err
	}
	info, err := s.accounts.GetAccount(ctx, req.Address, commitment)
	if err != nil {
		return nil, err
	}
	return &Account{
		Address:    info.Address.String(),
		Lamports:   info.Lamports,
		Owner:      info.Owner.String(),
		Executable: info.Executable,
		RentEpoch:  info.RentEpoch,
		Data:       info.Data,
		Slot:       info.Slot,
	}, nil
}

func (s *AccountService) GetBalance(ctx context.Context, req *AddressRequest) (*Balance, error) {
	bal, err := s.accounts.GetBalance(ctx, req.Address)
	if err != nil {
		return nil, err
	}
	return &Balance{Address: req.Address, Lamports: bal.Lamports, SOL: bal.SOL.String()}, nil
}

func (s *AccountService) GenerateKeypair(_ context.Context, req *GenerateKeypairRequest) (*Keypair, error) {
	kp, err := s.accounts.GenerateKeypair(req.Seed)
	if err != nil {
		return nil, err
	}
	return &Keypair{PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey}, nil
}

// FundNative 执行失败或超时以错误返回，详情里带签名
func (s *AccountService) FundNative(ctx context.Context, req *FundNativeRequest) (*MonitorResult, error) {
	opts, err := monitorOptions(req.Commitment, req.TimeoutSeconds, false)
	if err != nil {
		return nil, err
	}
	result, err := s.accounts.FundNative(ctx, req.Address, req.Amount, opts)
	if err != nil {
		return nil, err
	}
	return resultToMsg(result), nil
}

func (s *AccountService) MinimumBalanceForRentExemption(ctx context.Context, req *RentExemptionRequest) (*RentExemption, error) {
	lamports, err := s.accounts.MinimumBalanceForRentExemption(ctx, req.Space)
	if err != nil {
		return nil, err
	}
	return &RentExemption{Space: req.Space, Lamports: lamports}, nil
}
