package server

import (
	"time"

	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/pkg/types"
)

// 服务消息。字节字段按 encoding/json 约定以 base64 传输。

type AccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

type Instruction struct {
	ProgramID string        `json:"program_id"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data,omitempty"`
}

type ExecConfig struct {
	ComputeUnitLimit uint32 `json:"compute_unit_limit,omitempty"`
	ComputeUnitPrice uint64 `json:"compute_unit_price,omitempty"`
	PriorityFee      uint64 `json:"priority_fee,omitempty"`
}

type ExecutionError struct {
	Name             string  `json:"name"`
	InstructionIndex *int    `json:"instruction_index,omitempty"`
	InstructionError string  `json:"instruction_error,omitempty"`
	CustomCode       *uint32 `json:"custom_code,omitempty"`
	AccountIndex     *int    `json:"account_index,omitempty"`
	Raw              string  `json:"raw,omitempty"`
	Message          string  `json:"message"`
}

type MonitorResult struct {
	Signature    string          `json:"signature"`
	Outcome      string          `json:"outcome"`
	Commitment   string          `json:"commitment,omitempty"`
	Slot         uint64          `json:"slot,omitempty"`
	BlockTime    *int64          `json:"block_time,omitempty"`
	Fee          uint64          `json:"fee,omitempty"`
	Error        *ExecutionError `json:"error,omitempty"`
	Logs         []string        `json:"logs,omitempty"`
	ComputeUnits *uint64         `json:"compute_units,omitempty"`
	ElapsedMs    int64           `json:"elapsed_ms"`
}

type Transaction struct {
	ID                   string            `json:"id"`
	State                string            `json:"state"`
	FeePayer             string            `json:"fee_payer"`
	Instructions         []Instruction     `json:"instructions"`
	ExecConfig           ExecConfig        `json:"exec_config"`
	RecentBlockhash      string            `json:"recent_blockhash,omitempty"`
	LastValidBlockHeight uint64            `json:"last_valid_block_height,omitempty"`
	RequiredSigners      []string          `json:"required_signers,omitempty"`
	Signatures           map[string]string `json:"signatures,omitempty"`
	MissingSigners       []string          `json:"missing_signers,omitempty"`
	Message              []byte            `json:"message,omitempty"`
	Signature            string            `json:"signature,omitempty"`
	Outcome              string            `json:"outcome"`
	Result               *MonitorResult    `json:"result,omitempty"`
	AllowedOperations    []string          `json:"allowed_operations"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

type CreateDraftRequest struct {
	FeePayer     string        `json:"fee_payer"`
	ExecConfig   ExecConfig    `json:"exec_config"`
	Instructions []Instruction `json:"instructions"`
}

type AddInstructionsRequest struct {
	ID           string        `json:"id"`
	Instructions []Instruction `json:"instructions"`
}

type CompileRequest struct {
	ID string `json:"id"`
	// Blockhash 为空时向链上获取
	Blockhash            string `json:"blockhash,omitempty"`
	LastValidBlockHeight uint64 `json:"last_valid_block_height,omitempty"`
	Commitment           string `json:"commitment,omitempty"`
}

type SignRequest struct {
	ID          string   `json:"id"`
	PrivateKeys []string `json:"private_keys"` // base58 或 solana-keygen JSON 数组
}

type ApplySignatureRequest struct {
	ID        string `json:"id"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

type SubmitRequest struct {
	ID                  string  `json:"id"`
	SkipPreflight       bool    `json:"skip_preflight,omitempty"`
	PreflightCommitment string  `json:"preflight_commitment,omitempty"`
	MaxRetries          *uint64 `json:"max_retries,omitempty"`
}

// MonitorRequest ID 与 Signature 二选一
type MonitorRequest struct {
	ID             string `json:"id,omitempty"`
	Signature      string `json:"signature,omitempty"`
	Commitment     string `json:"commitment,omitempty"`
	TimeoutSeconds uint32 `json:"timeout_seconds,omitempty"`
	IncludeLogs    bool   `json:"include_logs,omitempty"`
}

type StatusUpdate struct {
	Signature  string    `json:"signature"`
	Commitment string    `json:"commitment,omitempty"`
	Slot       uint64    `json:"slot,omitempty"`
	At         time.Time `json:"at"`
}

// MonitorEvent 流式推送：若干 Status 之后以一条 Result 结束
type MonitorEvent struct {
	Status *StatusUpdate  `json:"status,omitempty"`
	Result *MonitorResult `json:"result,omitempty"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type SimulateRequest struct {
	ID         string `json:"id"`
	Commitment string `json:"commitment,omitempty"`
}

type Estimate struct {
	ComputeUnits        uint64          `json:"compute_units"`
	ComputeUnitsSource  string          `json:"compute_units_source"`
	ComputeUnitPrice    uint64          `json:"compute_unit_price"`
	FeePerSignature     uint64          `json:"fee_per_signature"`
	Signatures          int             `json:"signatures"`
	BaseFee             uint64          `json:"base_fee"`
	PriorityFee         uint64          `json:"priority_fee"`
	TotalFee            uint64          `json:"total_fee"`
	SimulationSucceeded *bool           `json:"simulation_succeeded,omitempty"`
	SimulationError     *ExecutionError `json:"simulation_error,omitempty"`
	Warnings            []string        `json:"warnings,omitempty"`
}

type Simulation struct {
	Success       bool            `json:"success"`
	Error         *ExecutionError `json:"error,omitempty"`
	Logs          []string        `json:"logs,omitempty"`
	UnitsConsumed *uint64         `json:"units_consumed,omitempty"`
}

type GetTransactionRequest struct {
	Signature  string `json:"signature"`
	Commitment string `json:"commitment,omitempty"`
}

type TransactionMeta struct {
	Signature    string          `json:"signature"`
	Slot         uint64          `json:"slot"`
	BlockTime    *int64          `json:"block_time,omitempty"`
	Fee          uint64          `json:"fee"`
	Error        *ExecutionError `json:"error,omitempty"`
	Logs         []string        `json:"logs,omitempty"`
	ComputeUnits *uint64         `json:"compute_units,omitempty"`
	PreBalances  []uint64        `json:"pre_balances,omitempty"`
	PostBalances []uint64        `json:"post_balances,omitempty"`
}

// 账户服务

type AddressRequest struct {
	Address    string `json:"address"`
	Commitment string `json:"commitment,omitempty"`
}

type Account struct {
	Address    string `json:"address"`
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rent_epoch"`
	Data       []byte `json:"data,omitempty"`
	Slot       uint64 `json:"slot"`
}

type Balance struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	SOL      string `json:"sol"`
}

type GenerateKeypairRequest struct {
	Seed string `json:"seed,omitempty"` // 32 字节 hex，为空时随机
}

type Keypair struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

type FundNativeRequest struct {
	Address        string `json:"address"`
	Amount         string `json:"amount"` // lamports
	Commitment     string `json:"commitment,omitempty"`
	TimeoutSeconds uint32 `json:"timeout_seconds,omitempty"`
}

type RentExemptionRequest struct {
	Space uint64 `json:"space"`
}

type RentExemption struct {
	Space    uint64 `json:"space"`
	Lamports uint64 `json:"lamports"`
}

// 程序指令构造

type BuildTransferRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Lamports uint64 `json:"lamports"`
}

type BuildCreateAccountRequest struct {
	Payer      string `json:"payer"`
	NewAccount string `json:"new_account"`
	Owner      string `json:"owner,omitempty"`
	Lamports   uint64 `json:"lamports"`
	Space      uint64 `json:"space"`
}

type BuildInitializeMintRequest struct {
	Mint            string `json:"mint"`
	MintAuthority   string `json:"mint_authority"`
	FreezeAuthority string `json:"freeze_authority,omitempty"`
	Decimals        uint8  `json:"decimals"`
}

type BuildMintToRequest struct {
	Mint        string `json:"mint"`
	Destination string `json:"destination"`
	Authority   string `json:"authority"`
	Amount      uint64 `json:"amount"`
}

type BuildTransferCheckedRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Mint        string `json:"mint"`
	Owner       string `json:"owner"`
	Amount      uint64 `json:"amount"`
	Decimals    uint8  `json:"decimals"`
}

type BuildCreateAssociatedTokenAccountRequest struct {
	Funder string `json:"funder"`
	Owner  string `json:"owner"`
	Mint   string `json:"mint"`
}

type BuiltInstructions struct {
	Instructions []Instruction `json:"instructions"`
	Address      string        `json:"address,omitempty"` // 推导出的账户地址（ATA）
}

// 转换

func instructionFromMsg(i int, m Instruction) (txn.Instruction, error) {
	program, err := types.TryPubkeyFromBase58(m.ProgramID)
	if err != nil {
		return txn.Instruction{}, txn.InvalidArgument("instructions", "instruction %d: malformed program_id", i).WithCause(err)
	}
	accounts := make([]txn.AccountMeta, 0, len(m.Accounts))
	for j, a := range m.Accounts {
		addr, err := types.TryPubkeyFromBase58(a.Pubkey)
		if err != nil {
			return txn.Instruction{}, txn.InvalidArgument("instructions", "instruction %d account %d: malformed pubkey", i, j).WithCause(err)
		}
		accounts = append(accounts, txn.AccountMeta{Address: addr, IsSigner: a.IsSigner, IsWritable: a.IsWritable})
	}
	return txn.NewInstruction(program, accounts, m.Data), nil
}

func instructionsFromMsg(msgs []Instruction) ([]txn.Instruction, error) {
	out := make([]txn.Instruction, 0, len(msgs))
	for i, m := range msgs {
		ix, err := instructionFromMsg(i, m)
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, nil
}

func instructionToMsg(ix txn.Instruction) Instruction {
	accounts := ix.Accounts()
	msg := Instruction{
		ProgramID: ix.ProgramID().String(),
		Accounts:  make([]AccountMeta, 0, len(accounts)),
		Data:      ix.Data(),
	}
	for _, a := range accounts {
		msg.Accounts = append(msg.Accounts, AccountMeta{Pubkey: a.Address.String(), IsSigner: a.IsSigner, IsWritable: a.IsWritable})
	}
	return msg
}

func execConfigFromMsg(m ExecConfig) txn.ExecConfig {
	return txn.ExecConfig{
		ComputeUnitLimit: m.ComputeUnitLimit,
		ComputeUnitPrice: m.ComputeUnitPrice,
		PriorityFee:      m.PriorityFee,
	}
}

func execErrorToMsg(e *txn.ExecutionError) *ExecutionError {
	if e == nil {
		return nil
	}
	return &ExecutionError{
		Name:             e.Name,
		InstructionIndex: e.InstructionIndex,
		InstructionError: e.InstructionError,
		CustomCode:       e.CustomCode,
		AccountIndex:     e.AccountIndex,
		Raw:              string(e.Raw),
		Message:          e.Error(),
	}
}

func resultToMsg(r txn.MonitorResult) *MonitorResult {
	return &MonitorResult{
		Signature:    r.Signature.String(),
		Outcome:      r.Outcome.String(),
		Commitment:   string(r.Commitment),
		Slot:         r.Slot,
		BlockTime:    r.BlockTime,
		Fee:          r.Fee,
		Error:        execErrorToMsg(r.Err),
		Logs:         r.Logs,
		ComputeUnits: r.ComputeUnitsConsumed,
		ElapsedMs:    r.Elapsed.Milliseconds(),
	}
}

func snapshotToMsg(s txn.Snapshot) *Transaction {
	msg := &Transaction{
		ID:       s.ID,
		State:    s.State.String(),
		FeePayer: s.FeePayer,
		ExecConfig: ExecConfig{
			ComputeUnitLimit: s.ExecConfig.ComputeUnitLimit,
			ComputeUnitPrice: s.ExecConfig.ComputeUnitPrice,
			PriorityFee:      s.ExecConfig.PriorityFee,
		},
		RecentBlockhash:      s.RecentBlockhash,
		LastValidBlockHeight: s.LastValidBlockHeight,
		RequiredSigners:      s.RequiredSigners,
		Signatures:           s.Signatures,
		MissingSigners:       s.MissingSigners,
		Message:              s.Message,
		Signature:            s.SubmissionSignature,
		Outcome:              s.Outcome.String(),
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
	msg.Instructions = make([]Instruction, 0, len(s.Instructions))
	for _, ix := range s.Instructions {
		msg.Instructions = append(msg.Instructions, instructionToMsg(ix))
	}
	for _, op := range txn.AllowedOperations(s.State) {
		msg.AllowedOperations = append(msg.AllowedOperations, op.String())
	}
	if s.Result != nil {
		msg.Result = resultToMsg(*s.Result)
	}
	return msg
}

func estimateToMsg(e txn.Estimate) *Estimate {
	return &Estimate{
		ComputeUnits:        e.ComputeUnits,
		ComputeUnitsSource:  e.ComputeUnitsSource,
		ComputeUnitPrice:    e.ComputeUnitPrice,
		FeePerSignature:     e.FeePerSignature,
		Signatures:          e.Signatures,
		BaseFee:             e.BaseFee,
		PriorityFee:         e.PriorityFee,
		TotalFee:            e.TotalFee,
		SimulationSucceeded: e.SimulationSucceeded,
		SimulationError:     execErrorToMsg(e.SimulationErr),
		Warnings:            e.Warnings,
	}
}
