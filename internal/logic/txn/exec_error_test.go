package txn

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExecutionError(t *testing.T) {
	for _, raw := range []string{"", "null", "  null "} {
		e, err := ParseExecutionError(json.RawMessage(raw))
		require.NoError(t, err)
		assert.Nil(t, e)
	}

	e := mustExecErr(t, `"AccountInUse"`)
	assert.Equal(t, "AccountInUse", e.Name)
	assert.Nil(t, e.InstructionIndex)

	e = mustExecErr(t, `{"InstructionError":[2,"InsufficientFunds"]}`)
	assert.Equal(t, "InstructionError", e.Name)
	require.NotNil(t, e.InstructionIndex)
	assert.Equal(t, 2, *e.InstructionIndex)
	assert.Equal(t, "InsufficientFunds", e.InstructionError)
	assert.Equal(t, "InstructionError at instruction 2: InsufficientFunds", e.Error())

	e = mustExecErr(t, `{"InstructionError":[0,{"Custom":6001}]}`)
	require.NotNil(t, e.CustomCode)
	assert.Equal(t, uint32(6001), *e.CustomCode)
	assert.Equal(t, "InstructionError at instruction 0: Custom(6001)", e.Error())
	assert.False(t, e.IsInsufficientFunds())

	e = mustExecErr(t, `{"InsufficientFundsForRent":{"account_index":3}}`)
	require.NotNil(t, e.AccountIndex)
	assert.Equal(t, 3, *e.AccountIndex)
	assert.Contains(t, e.Error(), "account index 3")

	e = mustExecErr(t, `{"DuplicateInstruction":1}`)
	require.NotNil(t, e.InstructionIndex)
	assert.Equal(t, 1, *e.InstructionIndex)

	for _, bad := range []string{`[1,2]`, `{"a":1,"b":2}`, `{"InstructionError":[0]}`, `{`} {
		_, err := ParseExecutionError(json.RawMessage(bad))
		assert.Error(t, err, bad)
	}
}

func TestIsInsufficientFunds(t *testing.T) {
	cases := map[string]bool{
		`"InsufficientFundsForFee"`:                         true,
		`{"InsufficientFundsForRent":{"account_index":0}}`:  true,
		`{"InstructionError":[0,"InsufficientFunds"]}`:      true,
		`{"InstructionError":[0,{"Custom":1}]}`:             true,
		`{"InstructionError":[0,{"Custom":2}]}`:             false,
		`{"InstructionError":[0,"ArithmeticOverflow"]}`:     false,
		`"BlockhashNotFound"`:                               false,
	}
	for raw, want := range cases {
		assert.Equal(t, want, mustExecErr(t, raw).IsInsufficientFunds(), raw)
	}
	var nilErr *ExecutionError
	assert.False(t, nilErr.IsInsufficientFunds())
}

func TestClassifyPreflightFailure(t *testing.T) {
	assert.Nil(t, ClassifyPreflightFailure("sim failed", mustExecErr(t, `"AlreadyProcessed"`)))

	for _, raw := range []string{`"WouldExceedMaxBlockCostLimit"`, `"ClusterMaintenance"`, `"TooManyAccountLocks"`,
		`{"InstructionError":[0,"ComputationalBudgetExceeded"]}`} {
		e := ClassifyPreflightFailure("sim failed", mustExecErr(t, raw))
		require.NotNil(t, e, raw)
		assert.Equal(t, KindRpcUnavailable, e.Kind, raw)
		assert.Equal(t, CertaintyNotSubmitted, e.Certainty)
		assert.True(t, e.Retryable)
		assert.True(t, ShouldRetry(e))
	}

	e := ClassifyPreflightFailure("sim failed", mustExecErr(t, `{"InstructionError":[0,{"Custom":1}]}`))
	require.NotNil(t, e)
	assert.Equal(t, KindRejectedByNetwork, e.Kind)
	assert.Equal(t, CertaintyNotSubmitted, e.Certainty)
	assert.NotNil(t, e.Execution)
	assert.False(t, ShouldRetry(e))

	e = ClassifyPreflightFailure("invalid transaction", nil)
	require.NotNil(t, e)
	assert.Equal(t, KindRejectedByNetwork, e.Kind)
	assert.Nil(t, e.Execution)
}

func TestClassifyByMessage(t *testing.T) {
	assert.Equal(t, KindRejectedByNetwork, ClassifyByMessage("Attempt to debit an account but found no record of a prior credit. insufficient funds", nil).Kind)
	assert.Equal(t, KindRejectedByNetwork, ClassifyByMessage("invalid signature for account", nil).Kind)

	e := ClassifyByMessage("connection refused", nil)
	assert.Equal(t, KindRpcUnavailable, e.Kind)
	assert.Equal(t, CertaintyUnknown, e.Certainty)
	require.Error(t, e.Cause)
	assert.Equal(t, "connection refused", e.Cause.Error())

	cause := errors.New("io timeout")
	e = ClassifyByMessage("request timeout", cause)
	assert.ErrorIs(t, e, cause)
}

func TestErrorFormatting(t *testing.T) {
	e := newError(KindIncompleteSignatures, "transaction is %s", StateCompiled)
	e.Signers = []string{"A", "B"}
	assert.Equal(t, "IncompleteSignatures: transaction is COMPILED [A, B]", e.Error())
	assert.Equal(t, CategoryValidation, e.Category())

	wrapped := errors.Join(errors.New("outer"), e)
	assert.True(t, IsIncompleteSignatures(wrapped))
	assert.Equal(t, KindIncompleteSignatures, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindUnknown))

	assert.Equal(t, CategoryTransient, newError(KindConfirmationTimeout, "x").Category())
	assert.Equal(t, CategoryFatal, RejectedByNetwork("x", nil, nil).Category())
	assert.Equal(t, CategoryExecution, ExecutionFailed("sig", nil).Category())
}
