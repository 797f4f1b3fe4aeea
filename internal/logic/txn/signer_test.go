package txn

import (
	"context"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sol-txflow/internal/pkg/types"
)

func compiledTx(t *testing.T, feePayer string, ixs ...Instruction) *Transaction {
	t.Helper()
	tx := NewTransaction(feePayer, ExecConfig{}, ixs...)
	_, err := NewCompiler(newFakeLedger(), fastRetry()).Compile(context.Background(), tx, CompileOptions{})
	require.NoError(t, err)
	return tx
}

func TestSign_SingleSignerSkipsPartial(t *testing.T) {
	payer, to := testAccount(t, 1), testAccount(t, 2)
	tx := compiledTx(t, addressOf(payer), transferIx(payer, types.Pubkey(to.PublicKey), 1))

	snap, err := NewSigner().Sign(context.Background(), tx, keyOf(payer))
	require.NoError(t, err)
	assert.Equal(t, StateFullySigned, snap.State)
	assert.Empty(t, snap.MissingSigners)
}

func TestSign_UnknownSignerNoMutation(t *testing.T) {
	payer, newAccount, stranger := testAccount(t, 1), testAccount(t, 2), testAccount(t, 3)
	tx := compiledTx(t, addressOf(payer), createAccountIx(payer, newAccount, 1))
	signer := NewSigner()

	_, err := signer.Sign(context.Background(), tx, keyOf(payer))
	require.NoError(t, err)
	before := tx.Snapshot()

	// 合法签名者与未知签名者混在一起时整批拒绝
	snap, err := signer.Sign(context.Background(), tx, keyOf(newAccount), keyOf(stranger))
	e := requireKind(t, err, KindUnknownSigner)
	assert.Equal(t, []string{addressOf(stranger)}, e.Signers)
	assert.Equal(t, before.Signatures, snap.Signatures)
	assert.Equal(t, StatePartiallySigned, snap.State)

	_, err = signer.Sign(context.Background(), tx, KeyPair{Address: "bad-0OIl", PrivateKey: []byte(stranger.PrivateKey)})
	requireKind(t, err, KindUnknownSigner)
	assert.Equal(t, before.Signatures, tx.Snapshot().Signatures)
}

func TestSign_InvalidKeyMaterial(t *testing.T) {
	payer, to := testAccount(t, 1), testAccount(t, 2)
	tx := compiledTx(t, addressOf(payer), transferIx(payer, types.Pubkey(to.PublicKey), 1))
	signer := NewSigner()

	_, err := signer.Sign(context.Background(), tx, KeyPair{Address: addressOf(payer), PrivateKey: []byte{1, 2, 3}})
	requireKind(t, err, KindInvalidKeyMaterial)

	// 私钥与地址不匹配
	_, err = signer.Sign(context.Background(), tx, KeyPair{Address: addressOf(payer), PrivateKey: []byte(to.PrivateKey)})
	requireKind(t, err, KindInvalidKeyMaterial)

	// 64 字节私钥的公钥部分被篡改
	bad := append([]byte(nil), payer.PrivateKey...)
	bad[63] ^= 0xff
	_, err = signer.Sign(context.Background(), tx, KeyPair{PrivateKey: bad})
	requireKind(t, err, KindInvalidKeyMaterial)

	assert.Equal(t, StateCompiled, tx.State())
	assert.Empty(t, tx.Snapshot().Signatures)
}

func TestSign_SeedAndDerivedAddress(t *testing.T) {
	payer, to := testAccount(t, 1), testAccount(t, 2)
	tx := compiledTx(t, addressOf(payer), transferIx(payer, types.Pubkey(to.PublicKey), 1))

	snap, err := NewSigner().Sign(context.Background(), tx, KeyPair{PrivateKey: payer.PrivateKey.Seed()})
	require.NoError(t, err)
	assert.Equal(t, StateFullySigned, snap.State)
	assert.Contains(t, snap.Signatures, addressOf(payer))
}

func TestSign_RequiresCompiled(t *testing.T) {
	payer, to := testAccount(t, 1), testAccount(t, 2)
	tx := NewTransaction(addressOf(payer), ExecConfig{}, transferIx(payer, types.Pubkey(to.PublicKey), 1))
	_, err := NewSigner().Sign(context.Background(), tx, keyOf(payer))
	requireKind(t, err, KindInvalidState)
	assert.Equal(t, StateDraft, tx.State())

	_, err = NewSigner().Sign(context.Background(), tx)
	requireKind(t, err, KindInvalidArgument)
}

func TestSign_IdempotentResign(t *testing.T) {
	payer, to := testAccount(t, 1), testAccount(t, 2)
	tx := compiledTx(t, addressOf(payer), transferIx(payer, types.Pubkey(to.PublicKey), 1))
	signer := NewSigner()

	first, err := signer.Sign(context.Background(), tx, keyOf(payer))
	require.NoError(t, err)
	second, err := signer.Sign(context.Background(), tx, keyOf(payer))
	require.NoError(t, err)
	assert.Equal(t, StateFullySigned, second.State)
	assert.Equal(t, first.Signatures, second.Signatures)
}

func TestSign_CancelKeepsExistingSignatures(t *testing.T) {
	payer, newAccount := testAccount(t, 1), testAccount(t, 2)
	tx := compiledTx(t, addressOf(payer), createAccountIx(payer, newAccount, 1))
	signer := NewSigner()
	_, err := signer.Sign(context.Background(), tx, keyOf(payer))
	require.NoError(t, err)
	before := tx.Snapshot()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = signer.Sign(ctx, tx, keyOf(newAccount))
	requireKind(t, err, KindCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	after := tx.Snapshot()
	assert.Equal(t, StatePartiallySigned, after.State)
	assert.Equal(t, before.Signatures, after.Signatures)
}

func TestApplySignature(t *testing.T) {
	payer, newAccount := testAccount(t, 1), testAccount(t, 2)
	tx := compiledTx(t, addressOf(payer), createAccountIx(payer, newAccount, 1))
	signer := NewSigner()
	message := tx.Snapshot().Message

	sig, err := types.SignatureFromBytes(newAccount.Sign(message))
	require.NoError(t, err)
	snap, err := signer.ApplySignature(tx, addressOf(newAccount), sig)
	require.NoError(t, err)
	assert.Equal(t, StatePartiallySigned, snap.State)
	assert.Equal(t, sig.String(), snap.Signatures[addressOf(newAccount)])

	// 签名内容与地址不对应
	wrong, err := types.SignatureFromBytes(newAccount.Sign(message))
	require.NoError(t, err)
	_, err = signer.ApplySignature(tx, addressOf(payer), wrong)
	requireKind(t, err, KindInvalidArgument)

	_, err = signer.ApplySignature(tx, base58.Encode(make([]byte, 32)), wrong)
	requireKind(t, err, KindUnknownSigner)

	payerSig, err := types.SignatureFromBytes(payer.Sign(message))
	require.NoError(t, err)
	snap, err = signer.ApplySignature(tx, addressOf(payer), payerSig)
	require.NoError(t, err)
	assert.Equal(t, StateFullySigned, snap.State)
}

func TestParsePrivateKey(t *testing.T) {
	acc := testAccount(t, 5)

	raw, err := ParsePrivateKey(base58.Encode(acc.PrivateKey))
	require.NoError(t, err)
	assert.Equal(t, []byte(acc.PrivateKey), raw)

	raw, err = ParsePrivateKey("[1, 2, 255]")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 255}, raw)

	for _, in := range []string{"", "  ", "[1, 256]", "[1,", "0OIl"} {
		_, err := ParsePrivateKey(in)
		requireKind(t, err, KindInvalidKeyMaterial)
	}
}

func TestGenerateKeypair(t *testing.T) {
	kp := GenerateKeypair()
	assert.Len(t, kp.PrivateKey, 64)

	raw, err := ParsePrivateKey(kp.PrivateKeyBase58())
	require.NoError(t, err)
	acc, err := accountFromKey(raw)
	require.NoError(t, err)
	assert.Equal(t, kp.Address, types.Pubkey(acc.PublicKey))
}
