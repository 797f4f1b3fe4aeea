package txn

import (
	"fmt"

	"github.com/blocto/solana-go-sdk/common"
	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/near/borsh-go"

	"sol-txflow/internal/consts"
	"sol-txflow/internal/pkg/types"
)

// AccountMeta 指令引用的账户及其权限标记
type AccountMeta struct {
	Address    types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction 不可变的指令值：目标程序、有序账户列表、二进制数据。
// 构造时拷贝入参，访问器返回副本。
type Instruction struct {
	programID types.Pubkey
	accounts  []AccountMeta
	data      []byte
}

func NewInstruction(programID types.Pubkey, accounts []AccountMeta, data []byte) Instruction {
	return Instruction{
		programID: programID,
		accounts:  append([]AccountMeta(nil), accounts...),
		data:      append([]byte(nil), data...),
	}
}

// InstructionFromSDK 将 SDK 构造出的指令转换为指令值
func InstructionFromSDK(ix sdktypes.Instruction) Instruction {
	accounts := make([]AccountMeta, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		accounts = append(accounts, AccountMeta{
			Address:    types.Pubkey(meta.PubKey),
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		})
	}
	return NewInstruction(types.Pubkey(ix.ProgramID), accounts, ix.Data)
}

func (ix Instruction) ProgramID() types.Pubkey { return ix.programID }

func (ix Instruction) Accounts() []AccountMeta {
	return append([]AccountMeta(nil), ix.accounts...)
}

func (ix Instruction) Data() []byte {
	return append([]byte(nil), ix.data...)
}

func (ix Instruction) toSDK() sdktypes.Instruction {
	metas := make([]sdktypes.AccountMeta, 0, len(ix.accounts))
	for _, acc := range ix.accounts {
		metas = append(metas, sdktypes.AccountMeta{
			PubKey:     common.PublicKey(acc.Address),
			IsSigner:   acc.IsSigner,
			IsWritable: acc.IsWritable,
		})
	}
	return sdktypes.Instruction{
		ProgramID: common.PublicKey(ix.programID),
		Accounts:  metas,
		Data:      append([]byte(nil), ix.data...),
	}
}

// deriveRequiredSigners 计算必需签名者：fee payer 在首位，其后按指令顺序去重
func deriveRequiredSigners(feePayer types.Pubkey, instructions []Instruction) []types.Pubkey {
	seen := map[types.Pubkey]struct{}{feePayer: {}}
	signers := []types.Pubkey{feePayer}
	for _, ix := range instructions {
		for _, acc := range ix.accounts {
			if !acc.IsSigner {
				continue
			}
			if _, ok := seen[acc.Address]; ok {
				continue
			}
			seen[acc.Address] = struct{}{}
			signers = append(signers, acc.Address)
		}
	}
	return signers
}

// compute budget 指令编号
const (
	computeBudgetSetUnitLimit uint8 = 2
	computeBudgetSetUnitPrice uint8 = 3
)

type setComputeUnitLimitData struct {
	Instruction uint8
	Units       uint32
}

type setComputeUnitPriceData struct {
	Instruction   uint8
	MicroLamports uint64
}

// SetComputeUnitLimit 构造 ComputeBudget::SetComputeUnitLimit 指令
func SetComputeUnitLimit(units uint32) (Instruction, error) {
	data, err := borsh.Serialize(setComputeUnitLimitData{
		Instruction: computeBudgetSetUnitLimit,
		Units:       units,
	})
	if err != nil {
		return Instruction{}, fmt.Errorf("encode compute unit limit: %w", err)
	}
	return NewInstruction(consts.ComputeBudgetProgram, nil, data), nil
}

// SetComputeUnitPrice 构造 ComputeBudget::SetComputeUnitPrice 指令（单位 micro-lamports）
func SetComputeUnitPrice(microLamports uint64) (Instruction, error) {
	data, err := borsh.Serialize(setComputeUnitPriceData{
		Instruction:   computeBudgetSetUnitPrice,
		MicroLamports: microLamports,
	})
	if err != nil {
		return Instruction{}, fmt.Errorf("encode compute unit price: %w", err)
	}
	return NewInstruction(consts.ComputeBudgetProgram, nil, data), nil
}
