package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sol-txflow/internal/pkg/types"
)

func TestCanTransition(t *testing.T) {
	legal := [][2]State{
		{StateDraft, StateCompiled},
		{StateCompiled, StatePartiallySigned},
		{StateCompiled, StateFullySigned},
		{StatePartiallySigned, StateFullySigned},
		{StateFullySigned, StateSubmitted},
	}
	all := []State{StateDraft, StateCompiled, StatePartiallySigned, StateFullySigned, StateSubmitted}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, l := range legal {
				if l[0] == from && l[1] == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
			if want {
				assert.Less(t, int(from), int(to))
			}
		}
	}
}

func TestAdvance(t *testing.T) {
	tx := NewTransaction("", ExecConfig{})
	require.NoError(t, tx.advance(StateDraft))
	requireKind(t, tx.advance(StateSubmitted), KindInvalidState)
	require.NoError(t, tx.advance(StateCompiled))
	requireKind(t, tx.advance(StateDraft), KindInvalidState)
	assert.Equal(t, StateCompiled, tx.State())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "DRAFT", StateDraft.String())
	assert.Equal(t, "PARTIALLY_SIGNED", StatePartiallySigned.String())
	assert.Equal(t, "SUBMITTED", StateSubmitted.String())
	assert.False(t, State(0).Valid())
	assert.Equal(t, "FAILED_EXECUTION", OutcomeFailedExecution.String())
	assert.False(t, OutcomePending.IsTerminal())
	assert.True(t, OutcomeTimedOut.IsTerminal())
}

func TestCommitment(t *testing.T) {
	c, err := ParseCommitment("")
	require.NoError(t, err)
	assert.Equal(t, CommitmentConfirmed, c)

	c, err = ParseCommitment(" Finalized ")
	require.NoError(t, err)
	assert.Equal(t, CommitmentFinalized, c)

	_, err = ParseCommitment("max")
	e := requireKind(t, err, KindInvalidArgument)
	assert.Equal(t, "commitment", e.Field)

	assert.True(t, CommitmentFinalized.Reaches(CommitmentConfirmed))
	assert.True(t, CommitmentConfirmed.Reaches(CommitmentConfirmed))
	assert.False(t, CommitmentProcessed.Reaches(CommitmentConfirmed))
	assert.False(t, Commitment("").Reaches(CommitmentProcessed))
}

func TestAllowedOperations(t *testing.T) {
	assert.Equal(t, []Operation{OpEditDraft, OpCompile}, AllowedOperations(StateDraft))
	assert.Contains(t, AllowedOperations(StateFullySigned), OpSubmit)
	assert.NotContains(t, AllowedOperations(StatePartiallySigned), OpSubmit)
	assert.Equal(t, []Operation{OpMonitor}, AllowedOperations(StateSubmitted))

	ops := AllowedOperations(StateDraft)
	ops[0] = OpSubmit
	assert.Equal(t, OpEditDraft, AllowedOperations(StateDraft)[0])
}

func TestValidate(t *testing.T) {
	payer, newAccount := testAccount(t, 1), testAccount(t, 2)
	tx := NewTransaction(addressOf(payer), ExecConfig{}, createAccountIx(payer, newAccount, 1))
	assert.NoError(t, tx.Validate())

	tx = compiledTx(t, addressOf(payer), createAccountIx(payer, newAccount, 1))
	assert.NoError(t, tx.Validate())

	// 人为制造不一致：COMPILED 却已有全部签名
	tx.mu.Lock()
	for _, signer := range tx.signerOrder {
		tx.signatures[signer] = types.Signature{1}
	}
	tx.mu.Unlock()
	requireKind(t, tx.Validate(), KindInvalidState)
}

func TestInstructionImmutable(t *testing.T) {
	payer := testAccount(t, 1)
	accounts := []AccountMeta{{Address: types.Pubkey(payer.PublicKey), IsSigner: true, IsWritable: true}}
	data := []byte{1, 2, 3}
	ix := NewInstruction(types.Pubkey{}, accounts, data)

	accounts[0].IsSigner = false
	data[0] = 9
	assert.True(t, ix.Accounts()[0].IsSigner)
	assert.Equal(t, []byte{1, 2, 3}, ix.Data())

	got := ix.Data()
	got[1] = 9
	assert.Equal(t, []byte{1, 2, 3}, ix.Data())
}

func TestDeriveRequiredSigners(t *testing.T) {
	p, a, b := types.Pubkey{1}, types.Pubkey{2}, types.Pubkey{3}
	ixs := []Instruction{
		NewInstruction(types.Pubkey{}, []AccountMeta{{Address: a, IsSigner: true}, {Address: p, IsSigner: true}}, nil),
		NewInstruction(types.Pubkey{}, []AccountMeta{{Address: b, IsWritable: true}, {Address: a, IsSigner: true}}, nil),
		NewInstruction(types.Pubkey{}, []AccountMeta{{Address: b, IsSigner: true}}, nil),
	}
	assert.Equal(t, []types.Pubkey{p, a, b}, deriveRequiredSigners(p, ixs))
}

func TestComputeBudgetInstructions(t *testing.T) {
	ix, err := SetComputeUnitLimit(200_000)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0x40, 0x0d, 0x03, 0x00}, ix.Data())
	assert.Empty(t, ix.Accounts())

	ix, err = SetComputeUnitPrice(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 1, 0, 0, 0, 0, 0, 0, 0}, ix.Data())
}
