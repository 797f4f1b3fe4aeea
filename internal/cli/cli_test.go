package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"gopkg.in/yaml.v3"

	"sol-txflow/internal/logic/account"
	"sol-txflow/internal/logic/ledger"
	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/pkg/types"
	"sol-txflow/internal/server"
)

type stubAccounts struct{}

func (stubAccounts) GetAccount(context.Context, types.Pubkey, txn.Commitment) (*ledger.AccountInfo, error) {
	return nil, nil
}

func (stubAccounts) GetBalance(context.Context, types.Pubkey) (uint64, error) {
	return 1_500_000_000, nil
}

func (stubAccounts) MinimumBalanceForRentExemption(_ context.Context, space uint64) (uint64, error) {
	return 890_880 + space, nil
}

func (stubAccounts) RequestAirdrop(context.Context, types.Pubkey, uint64) (types.Signature, error) {
	return types.Signature{}, nil
}

func bufDialer(t *testing.T) DialFunc {
	t.Helper()
	srv := server.NewTxflowServer(server.Option{},
		server.Registration{Desc: &server.AccountServiceDesc, Impl: server.NewAccountService(account.NewService(stubAccounts{}, nil))},
	)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return func(string) (*server.Client, io.Closer, error) {
		conn, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, nil, err
		}
		return server.NewClient(conn), conn, nil
	}
}

func run(t *testing.T, dial DialFunc, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(dial)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"transfer", "status", "get", "balance", "airdrop", "keygen", "rent"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "json", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, bufDialer(t), "--format", "xml", "keygen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestBalance(t *testing.T) {
	addr := txn.GenerateKeypair().Address.String()
	out, err := run(t, bufDialer(t), "balance", addr)
	require.NoError(t, err)

	var bal server.Balance
	require.NoError(t, json.Unmarshal([]byte(out), &bal))
	assert.Equal(t, uint64(1_500_000_000), bal.Lamports)
	assert.Equal(t, "1.5", bal.SOL)
	assert.Equal(t, addr, bal.Address)
}

func TestKeygen_YamlFromProfile(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("format: yaml\n"), 0o600))

	seed := "0101010101010101010101010101010101010101010101010101010101010101"
	out, err := run(t, bufDialer(t), "-p", profile, "keygen", "--seed", seed)
	require.NoError(t, err)

	var kp map[string]string
	require.NoError(t, yaml.Unmarshal([]byte(out), &kp))
	assert.NotEmpty(t, kp["public_key"])
	assert.NotEmpty(t, kp["private_key"])

	// 同一 seed 结果确定
	again, err := run(t, bufDialer(t), "-p", profile, "keygen", "--seed", seed)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestAirdrop_TooSmall(t *testing.T) {
	addr := txn.GenerateKeypair().Address.String()
	_, err := run(t, bufDialer(t), "airdrop", addr, "0.5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "funding amount too small")

	_, err = run(t, bufDialer(t), "airdrop", addr, "abc")
	require.Error(t, err)
}

func TestRent(t *testing.T) {
	out, err := run(t, bufDialer(t), "rent", "165")
	require.NoError(t, err)

	var rent server.RentExemption
	require.NoError(t, json.Unmarshal([]byte(out), &rent))
	assert.Equal(t, uint64(165), rent.Space)
	assert.Equal(t, uint64(890_880+165), rent.Lamports)
}

func TestTransfer_KeyFromProfile(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("keys:\n  alice: not-a-key\n"), 0o600))

	_, err := run(t, bufDialer(t), "-p", profile, "transfer", "--from", "alice", "--to", "x", "--lamports", "1")
	require.Error(t, err)
	assert.True(t, txn.IsKind(err, txn.KindInvalidKeyMaterial))
}

func TestWrite(t *testing.T) {
	v := map[string]any{"signature": "abc", "slot": 7}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "json", v))
	assert.JSONEq(t, `{"signature":"abc","slot":7}`, buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, "yaml", v))
	assert.Contains(t, buf.String(), "signature: abc")

	assert.Error(t, Write(&buf, "xml", v))
}
