// Package account 账户查询与测试网注资
package account

import (
	"context"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"sol-txflow/internal/consts"
	"sol-txflow/internal/logic/ledger"
	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/types"
)

// MinFundingLamports 注资下限，低于 1 SOL 的空投常因租金不足失败
const MinFundingLamports = consts.MinAirdropLamports

// Ledger 账户相关的链上读写
type Ledger interface {
	GetAccount(ctx context.Context, address types.Pubkey, commitment txn.Commitment) (*ledger.AccountInfo, error)
	GetBalance(ctx context.Context, address types.Pubkey) (uint64, error)
	MinimumBalanceForRentExemption(ctx context.Context, space uint64) (uint64, error)
	RequestAirdrop(ctx context.Context, address types.Pubkey, lamports uint64) (types.Signature, error)
}

// Waiter 等待签名终态，*txn.Monitor 实现
type Waiter interface {
	Watch(ctx context.Context, sig types.Signature, opts txn.MonitorOptions, updates chan<- txn.StatusUpdate) (txn.MonitorResult, error)
}

type Service struct {
	ledger Ledger
	waiter Waiter
}

func NewService(l Ledger, w Waiter) *Service {
	return &Service{ledger: l, waiter: w}
}

type Balance struct {
	Lamports uint64
	SOL      decimal.Decimal
}

// Keypair base58 编码的地址与 64 字节私钥
type Keypair struct {
	PublicKey  string
	PrivateKey string
}

func parseAddress(field, s string) (types.Pubkey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Pubkey{}, txn.InvalidArgument(field, "%s is required", field)
	}
	pk, err := types.TryPubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, txn.InvalidArgument(field, "invalid %s %q", field, s).WithCause(err)
	}
	return pk, nil
}

// GetAccount 默认使用 confirmed，与注资确认深度一致
func (s *Service) GetAccount(ctx context.Context, address string, commitment txn.Commitment) (*ledger.AccountInfo, error) {
	pk, err := parseAddress("address", address)
	if err != nil {
		return nil, err
	}
	if commitment == "" {
		commitment = txn.CommitmentConfirmed
	}
	return s.ledger.GetAccount(ctx, pk, commitment)
}

func (s *Service) GetBalance(ctx context.Context, address string) (Balance, error) {
	pk, err := parseAddress("address", address)
	if err != nil {
		return Balance{}, err
	}
	lamports, err := s.ledger.GetBalance(ctx, pk)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Lamports: lamports, SOL: LamportsToSOL(lamports)}, nil
}

func (s *Service) MinimumBalanceForRentExemption(ctx context.Context, space uint64) (uint64, error) {
	return s.ledger.MinimumBalanceForRentExemption(ctx, space)
}

// GenerateKeypair seedHex 为空时随机生成，否则使用 32 字节 hex seed 确定性生成
func (s *Service) GenerateKeypair(seedHex string) (Keypair, error) {
	seedHex = strings.TrimSpace(seedHex)
	if seedHex == "" {
		kp := txn.GenerateKeypair()
		return Keypair{PublicKey: kp.Address.String(), PrivateKey: kp.PrivateKeyBase58()}, nil
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return Keypair{}, txn.InvalidArgument("seed", "invalid hex seed").WithCause(err)
	}
	if len(seed) != 32 {
		return Keypair{}, txn.InvalidArgument("seed", "seed must be exactly 32 bytes, got %d", len(seed))
	}
	acc, err := sdktypes.AccountFromSeed(seed)
	if err != nil {
		return Keypair{}, txn.InvalidArgument("seed", "derive keypair from seed").WithCause(err)
	}
	return Keypair{PublicKey: acc.PublicKey.ToBase58(), PrivateKey: base58.Encode(acc.PrivateKey)}, nil
}

// FundNative 空投并等待执行成功；FAILED_EXECUTION 与 TIMED_OUT 以错误返回
func (s *Service) FundNative(ctx context.Context, address string, amount string, opts txn.MonitorOptions) (txn.MonitorResult, error) {
	pk, err := parseAddress("address", address)
	if err != nil {
		return txn.MonitorResult{}, err
	}
	lamports, err := parseLamports(amount)
	if err != nil {
		return txn.MonitorResult{}, err
	}
	if lamports < MinFundingLamports {
		return txn.MonitorResult{}, txn.InvalidArgument("amount",
			"funding amount too small: minimum %d lamports (1 SOL), got %d", MinFundingLamports, lamports)
	}

	logger.Infof("[Account] requesting airdrop of %d lamports to %s", lamports, pk)
	sig, err := s.ledger.RequestAirdrop(ctx, pk, lamports)
	if err != nil {
		return txn.MonitorResult{}, err
	}
	if opts.Commitment == "" {
		opts.Commitment = txn.CommitmentConfirmed
	}
	result, err := s.waiter.Watch(ctx, sig, opts, nil)
	if err != nil {
		return result, err
	}
	if err := result.AsError(); err != nil {
		logger.Warnf("[Account] airdrop %s ended with %s", sig, result.Outcome)
		return result, err
	}
	logger.Infof("[Account] airdrop %s succeeded at slot %d", sig, result.Slot)
	return result, nil
}

func parseLamports(amount string) (uint64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, txn.InvalidArgument("amount", "amount is required")
	}
	v, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0, txn.InvalidArgument("amount", "invalid amount %q", amount).WithCause(err)
	}
	if v == 0 {
		return 0, txn.InvalidArgument("amount", "amount must be greater than 0")
	}
	return v, nil
}

var lamportsPerSOL = decimal.NewFromInt(int64(consts.LamportsPerSOL))

func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).Div(lamportsPerSOL)
}

// ParseSOL 十进制 SOL 字符串转 lamports，最多 9 位小数
func ParseSOL(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, txn.InvalidArgument("amount", "invalid SOL amount %q", s).WithCause(err)
	}
	if d.IsNegative() {
		return 0, txn.InvalidArgument("amount", "negative SOL amount %q", s)
	}
	lamports := d.Mul(lamportsPerSOL)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, txn.InvalidArgument("amount", "SOL amount %q has more than 9 decimals", s)
	}
	if !lamports.BigInt().IsUint64() {
		return 0, txn.InvalidArgument("amount", "SOL amount %q overflows", s)
	}
	return lamports.BigInt().Uint64(), nil
}
