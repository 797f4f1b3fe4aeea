package txn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ExecutionError 链上返回的交易错误（meta.err / status.err / 预检 err）
//
// 常见形态：
//
//	"InsufficientFundsForFee"
//	{"InsufficientFundsForRent":{"account_index":1}}
//	{"InstructionError":[0,"InsufficientFunds"]}
//	{"InstructionError":[1,{"Custom":1}]}
type ExecutionError struct {
	Name             string // 顶层错误名，如 InstructionError
	InstructionIndex *int
	InstructionError string // 指令级错误名，如 Custom
	CustomCode       *uint32
	AccountIndex     *int
	Raw              json.RawMessage
}

// ParseExecutionError 解析 JSON 形式的 TransactionError，null 或空返回 nil
func ParseExecutionError(raw json.RawMessage) (*ExecutionError, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	out := &ExecutionError{Raw: append(json.RawMessage(nil), trimmed...)}

	var name string
	if err := json.Unmarshal(trimmed, &name); err == nil {
		out.Name = name
		return out, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("decode transaction error %s: %w", string(trimmed), err)
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("unexpected transaction error shape: %s", string(trimmed))
	}
	for key, val := range obj {
		out.Name = key
		switch key {
		case "InstructionError":
			if err := out.decodeInstructionError(val); err != nil {
				return nil, err
			}
		case "InsufficientFundsForRent", "ProgramExecutionTemporarilyRestricted":
			var v struct {
				AccountIndex int `json:"account_index"`
			}
			if err := json.Unmarshal(val, &v); err == nil {
				out.AccountIndex = &v.AccountIndex
			}
		case "DuplicateInstruction":
			var idx int
			if err := json.Unmarshal(val, &idx); err == nil {
				out.InstructionIndex = &idx
			}
		}
	}
	return out, nil
}

func (e *ExecutionError) decodeInstructionError(val json.RawMessage) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(val, &pair); err != nil || len(pair) != 2 {
		return fmt.Errorf("decode InstructionError %s: unexpected shape", string(val))
	}
	var idx int
	if err := json.Unmarshal(pair[0], &idx); err != nil {
		return fmt.Errorf("decode InstructionError index: %w", err)
	}
	e.InstructionIndex = &idx

	var name string
	if err := json.Unmarshal(pair[1], &name); err == nil {
		e.InstructionError = name
		return nil
	}
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(pair[1], &inner); err != nil {
		return fmt.Errorf("decode InstructionError detail: %w", err)
	}
	for key, v := range inner {
		e.InstructionError = key
		if key == "Custom" {
			var code uint32
			if err := json.Unmarshal(v, &code); err == nil {
				e.CustomCode = &code
			}
		}
	}
	return nil
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(e.Name)
	if e.InstructionIndex != nil && e.Name == "InstructionError" {
		fmt.Fprintf(&b, " at instruction %d: %s", *e.InstructionIndex, e.InstructionError)
		if e.CustomCode != nil {
			fmt.Fprintf(&b, "(%d)", *e.CustomCode)
		}
	}
	if e.AccountIndex != nil {
		fmt.Fprintf(&b, " (account index %d)", *e.AccountIndex)
	}
	return b.String()
}

// IsInsufficientFunds 余额不足类错误（手续费、租金、指令内转账）
func (e *ExecutionError) IsInsufficientFunds() bool {
	if e == nil {
		return false
	}
	switch e.Name {
	case "InsufficientFundsForFee", "InsufficientFundsForRent":
		return true
	case "InstructionError":
		if e.InstructionError == "InsufficientFunds" {
			return true
		}
		// system program: ResultWithNegativeLamports
		return e.InstructionError == "Custom" && e.CustomCode != nil && *e.CustomCode == 1
	}
	return false
}

// 预检失败时的分类结果
type preflightClass uint8

const (
	preflightRejected preflightClass = iota
	preflightTransient
	preflightAlreadyProcessed
)

// classifyPreflight 按链上错误名把预检失败映射为拒绝 / 可重试 / 已处理
func classifyPreflight(e *ExecutionError) preflightClass {
	if e == nil {
		return preflightRejected
	}
	switch e.Name {
	case "AlreadyProcessed":
		return preflightAlreadyProcessed
	case "WouldExceedMaxBlockCostLimit",
		"WouldExceedMaxAccountCostLimit",
		"WouldExceedMaxVoteCostLimit",
		"WouldExceedAccountDataBlockLimit",
		"WouldExceedAccountDataTotalLimit",
		"TooManyAccountLocks",
		"ClusterMaintenance":
		return preflightTransient
	case "InstructionError":
		if e.InstructionError == "ComputationalBudgetExceeded" {
			return preflightTransient
		}
	}
	return preflightRejected
}

// ClassifyPreflightFailure 将 sendTransaction 预检失败转换为生命周期错误
func ClassifyPreflightFailure(message string, exec *ExecutionError) *Error {
	switch classifyPreflight(exec) {
	case preflightTransient:
		e := RpcUnavailable(CertaintyNotSubmitted, true, fmt.Errorf("%s: %s", message, exec))
		e.Execution = exec
		return e
	case preflightAlreadyProcessed:
		return nil
	default:
		if exec == nil {
			return RejectedByNetwork(message, nil, nil)
		}
		return RejectedByNetwork(fmt.Sprintf("%s: %s", message, exec), exec, nil)
	}
}

// ClassifyByMessage 无结构化信息时按文本兜底分类
func ClassifyByMessage(message string, cause error) *Error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "insufficient") && (strings.Contains(lower, "fund") || strings.Contains(lower, "balance")):
		return RejectedByNetwork(message, nil, cause)
	case strings.Contains(lower, "invalid") && strings.Contains(lower, "signature"):
		return RejectedByNetwork(message, nil, cause)
	case strings.Contains(lower, "network"), strings.Contains(lower, "connection"), strings.Contains(lower, "timeout"):
		if cause == nil {
			cause = errors.New(message)
		}
		return RpcUnavailable(CertaintyUnknown, false, cause)
	default:
		return RejectedByNetwork(message, nil, cause)
	}
}
