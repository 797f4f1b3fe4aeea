// Package builder 常用程序指令的构造器，输出 txn.Instruction
package builder

import (
	"strings"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/program/token"

	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/pkg/types"
)

// 账户数据长度
const (
	MintAccountSize  = 82
	TokenAccountSize = 165
)

func parseAddress(field, s string) (common.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.PublicKey{}, txn.InvalidArgument(field, "%s is required", field)
	}
	pk, err := types.TryPubkeyFromBase58(s)
	if err != nil {
		return common.PublicKey{}, txn.InvalidArgument(field, "malformed address").WithCause(err)
	}
	return common.PublicKey(pk), nil
}

type CreateAccountParams struct {
	Payer      string
	NewAccount string
	Owner      string // 为空时归属 system program
	Lamports   uint64
	Space      uint64
}

// CreateAccount system::CreateAccount，payer 与新账户都必须签名
func CreateAccount(p CreateAccountParams) (txn.Instruction, error) {
	payer, err := parseAddress("payer", p.Payer)
	if err != nil {
		return txn.Instruction{}, err
	}
	newAccount, err := parseAddress("new_account", p.NewAccount)
	if err != nil {
		return txn.Instruction{}, err
	}
	owner := common.SystemProgramID
	if strings.TrimSpace(p.Owner) != "" {
		if owner, err = parseAddress("owner", p.Owner); err != nil {
			return txn.Instruction{}, err
		}
	}
	if payer == newAccount {
		return txn.Instruction{}, txn.InvalidArgument("new_account", "new account must differ from payer")
	}
	return txn.InstructionFromSDK(system.CreateAccount(system.CreateAccountParam{
		From:     payer,
		New:      newAccount,
		Owner:    owner,
		Lamports: p.Lamports,
		Space:    p.Space,
	})), nil
}

type TransferParams struct {
	From     string
	To       string
	Lamports uint64
}

// Transfer system::Transfer
func Transfer(p TransferParams) (txn.Instruction, error) {
	from, err := parseAddress("from", p.From)
	if err != nil {
		return txn.Instruction{}, err
	}
	to, err := parseAddress("to", p.To)
	if err != nil {
		return txn.Instruction{}, err
	}
	if p.Lamports == 0 {
		return txn.Instruction{}, txn.InvalidArgument("lamports", "amount must be positive")
	}
	return txn.InstructionFromSDK(system.Transfer(system.TransferParam{
		From:   from,
		To:     to,
		Amount: p.Lamports,
	})), nil
}

type InitializeMintParams struct {
	Mint            string
	MintAuthority   string
	FreezeAuthority string // 可选
	Decimals        uint8
}

// InitializeMint token::InitializeMint，mint 账户需事先用 CreateAccount 分配 MintAccountSize 字节
func InitializeMint(p InitializeMintParams) (txn.Instruction, error) {
	mint, err := parseAddress("mint", p.Mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	auth, err := parseAddress("mint_authority", p.MintAuthority)
	if err != nil {
		return txn.Instruction{}, err
	}
	param := token.InitializeMintParam{
		Decimals: p.Decimals,
		Mint:     mint,
		MintAuth: auth,
	}
	if strings.TrimSpace(p.FreezeAuthority) != "" {
		freeze, err := parseAddress("freeze_authority", p.FreezeAuthority)
		if err != nil {
			return txn.Instruction{}, err
		}
		param.FreezeAuth = &freeze
	}
	return txn.InstructionFromSDK(token.InitializeMint(param)), nil
}

type MintToParams struct {
	Mint        string
	Destination string // token account
	Authority   string
	Amount      uint64
}

func MintTo(p MintToParams) (txn.Instruction, error) {
	mint, err := parseAddress("mint", p.Mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	dest, err := parseAddress("destination", p.Destination)
	if err != nil {
		return txn.Instruction{}, err
	}
	auth, err := parseAddress("authority", p.Authority)
	if err != nil {
		return txn.Instruction{}, err
	}
	if p.Amount == 0 {
		return txn.Instruction{}, txn.InvalidArgument("amount", "amount must be positive")
	}
	return txn.InstructionFromSDK(token.MintTo(token.MintToParam{
		Mint:   mint,
		To:     dest,
		Auth:   auth,
		Amount: p.Amount,
	})), nil
}

type TransferCheckedParams struct {
	Source      string // token account
	Destination string // token account
	Mint        string
	Owner       string
	Amount      uint64
	Decimals    uint8
}

func TransferChecked(p TransferCheckedParams) (txn.Instruction, error) {
	src, err := parseAddress("source", p.Source)
	if err != nil {
		return txn.Instruction{}, err
	}
	dest, err := parseAddress("destination", p.Destination)
	if err != nil {
		return txn.Instruction{}, err
	}
	mint, err := parseAddress("mint", p.Mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	owner, err := parseAddress("owner", p.Owner)
	if err != nil {
		return txn.Instruction{}, err
	}
	if p.Amount == 0 {
		return txn.Instruction{}, txn.InvalidArgument("amount", "amount must be positive")
	}
	return txn.InstructionFromSDK(token.TransferChecked(token.TransferCheckedParam{
		From:     src,
		To:       dest,
		Mint:     mint,
		Auth:     owner,
		Amount:   p.Amount,
		Decimals: p.Decimals,
	})), nil
}

type CreateAssociatedTokenAccountParams struct {
	Funder string
	Owner  string
	Mint   string
}

// CreateAssociatedTokenAccount 创建 ATA，同时返回推导出的 ATA 地址
func CreateAssociatedTokenAccount(p CreateAssociatedTokenAccountParams) (txn.Instruction, types.Pubkey, error) {
	funder, err := parseAddress("funder", p.Funder)
	if err != nil {
		return txn.Instruction{}, types.Pubkey{}, err
	}
	owner, err := parseAddress("owner", p.Owner)
	if err != nil {
		return txn.Instruction{}, types.Pubkey{}, err
	}
	mint, err := parseAddress("mint", p.Mint)
	if err != nil {
		return txn.Instruction{}, types.Pubkey{}, err
	}
	ata, _, err := common.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return txn.Instruction{}, types.Pubkey{}, txn.InvalidArgument("mint", "derive associated token address").WithCause(err)
	}
	ix := associated_token_account.Create(associated_token_account.CreateParam{
		Funder:                 funder,
		Owner:                  owner,
		Mint:                   mint,
		AssociatedTokenAccount: ata,
	})
	return txn.InstructionFromSDK(ix), types.Pubkey(ata), nil
}

// ComputeBudget 按需生成 SetComputeUnitLimit / SetComputeUnitPrice，参数为 0 时跳过
func ComputeBudget(unitLimit uint32, microLamports uint64) ([]txn.Instruction, error) {
	var out []txn.Instruction
	if unitLimit > 0 {
		ix, err := txn.SetComputeUnitLimit(unitLimit)
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	if microLamports > 0 {
		ix, err := txn.SetComputeUnitPrice(microLamports)
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, nil
}
