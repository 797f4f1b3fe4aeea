package txn

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sol-txflow/internal/consts"
	"sol-txflow/internal/pkg/types"
)

type fixedMarket struct {
	price uint64
	ok    bool
}

func (m fixedMarket) MedianPriorityFee() (uint64, bool) { return m.price, m.ok }

func TestEstimate_RequiresCompiled(t *testing.T) {
	payer, to := testAccount(t, 1), testAccount(t, 2)
	tx := NewTransaction(addressOf(payer), ExecConfig{}, transferIx(payer, types.Pubkey(to.PublicKey), 1))
	ledger := newFakeLedger()
	est := NewEstimator(ledger, ledger, nil, EstimateParams{})

	_, err := est.Estimate(context.Background(), tx)
	requireKind(t, err, KindInvalidState)
	_, err = est.Simulate(context.Background(), tx, CommitmentConfirmed)
	requireKind(t, err, KindInvalidState)
	assert.Zero(t, ledger.simCalls)
}

func TestEstimate_FromSimulation(t *testing.T) {
	payer, newAccount := testAccount(t, 1), testAccount(t, 2)
	tx := compiledTx(t, addressOf(payer), createAccountIx(payer, newAccount, 1))
	before := tx.Snapshot()

	ledger := newFakeLedger()
	units := uint64(150_000)
	fee := uint64(10_000)
	ledger.sim = SimulationResult{UnitsConsumed: &units}
	ledger.fee = &fee
	ledger.prio = []PrioritizationFee{{Slot: 1, MicroLamports: 0}, {Slot: 2, MicroLamports: 300}, {Slot: 3, MicroLamports: 100}, {Slot: 4, MicroLamports: 200}}

	got, err := NewEstimator(ledger, ledger, nil, EstimateParams{}).Estimate(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, units, got.ComputeUnits)
	assert.Equal(t, UnitsFromSimulation, got.ComputeUnitsSource)
	assert.Equal(t, 2, got.Signatures)
	assert.Equal(t, fee, got.BaseFee)
	assert.Equal(t, uint64(200), got.ComputeUnitPrice)
	assert.Equal(t, uint64(30), got.PriorityFee) // 150000 * 200 / 1e6
	assert.Equal(t, fee+30, got.TotalFee)
	require.NotNil(t, got.SimulationSucceeded)
	assert.True(t, *got.SimulationSucceeded)
	assert.Empty(t, got.Warnings)

	assert.Equal(t, before, tx.Snapshot())
}

func TestEstimate_DegradesToWarnings(t *testing.T) {
	payer, to := testAccount(t, 1), testAccount(t, 2)
	tx := compiledTx(t, addressOf(payer), transferIx(payer, types.Pubkey(to.PublicKey), 1))

	ledger := newFakeLedger()
	ledger.simErr = errors.New("simulate: 503")
	ledger.feeErr = errors.New("fee: 503")
	ledger.prioErr = errors.New("prio: 503")

	got, err := NewEstimator(ledger, ledger, nil, EstimateParams{}).Estimate(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, consts.MinComputeUnits, got.ComputeUnits)
	assert.Equal(t, UnitsFromHeuristic, got.ComputeUnitsSource)
	assert.Equal(t, consts.BaseFeeLamportsPerSignature, got.BaseFee)
	assert.Equal(t, consts.DefaultPriorityFeeLamports, got.PriorityFee)
	assert.Nil(t, got.SimulationSucceeded)
	assert.Len(t, got.Warnings, 3)
	assert.Equal(t, StateCompiled, tx.State())
}

func TestEstimate_ConfigAndMarket(t *testing.T) {
	payer, to := testAccount(t, 1), testAccount(t, 2)
	ledger := newFakeLedger()
	ledger.sim = SimulationResult{Err: mustExecErr(t, `"AccountNotFound"`)}

	tx := NewTransaction(addressOf(payer), ExecConfig{ComputeUnitLimit: 400_000}, transferIx(payer, types.Pubkey(to.PublicKey), 1))
	_, err := NewCompiler(ledger, fastRetry()).Compile(context.Background(), tx, CompileOptions{})
	require.NoError(t, err)

	got, err := NewEstimator(ledger, ledger, fixedMarket{price: 5_000, ok: true}, EstimateParams{}).Estimate(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(400_000), got.ComputeUnits)
	assert.Equal(t, UnitsFromConfig, got.ComputeUnitsSource)
	assert.Equal(t, uint64(5_000), got.ComputeUnitPrice)
	assert.Equal(t, uint64(2_000), got.PriorityFee)
	require.NotNil(t, got.SimulationSucceeded)
	assert.False(t, *got.SimulationSucceeded)
	assert.Equal(t, "AccountNotFound", got.SimulationErr.Name)

	tx2 := NewTransaction(addressOf(payer), ExecConfig{PriorityFee: 777}, transferIx(payer, types.Pubkey(to.PublicKey), 1))
	_, err = NewCompiler(ledger, fastRetry()).Compile(context.Background(), tx2, CompileOptions{})
	require.NoError(t, err)
	got, err = NewEstimator(ledger, ledger, nil, EstimateParams{}).Estimate(context.Background(), tx2)
	require.NoError(t, err)
	assert.Equal(t, uint64(777), got.PriorityFee)
}

func TestSimulate(t *testing.T) {
	tx, _ := signedTx(t)
	ledger := newFakeLedger()
	units := uint64(1_234)
	ledger.sim = SimulationResult{Logs: []string{"ok"}, UnitsConsumed: &units}

	est := NewEstimator(ledger, ledger, nil, EstimateParams{})
	res, err := est.Simulate(context.Background(), tx, "")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, []string{"ok"}, res.Logs)
	assert.Equal(t, StateFullySigned, tx.State())

	ledger.simErr = errors.New("dial tcp: refused")
	_, err = est.Simulate(context.Background(), tx, CommitmentProcessed)
	e := requireKind(t, err, KindRpcUnavailable)
	assert.True(t, e.Retryable)
	assert.Equal(t, StateFullySigned, tx.State())
}

func TestHeuristicComputeUnits(t *testing.T) {
	assert.Equal(t, consts.MinComputeUnits, HeuristicComputeUnits(0))
	assert.Equal(t, consts.MinComputeUnits, HeuristicComputeUnits(1))
	assert.Equal(t, uint64(250_000), HeuristicComputeUnits(5))
	assert.Equal(t, consts.MaxComputeUnits, HeuristicComputeUnits(40))
}

func TestPriorityFee(t *testing.T) {
	p := EstimateParams{}
	assert.Equal(t, consts.DefaultPriorityFeeLamports, PriorityFee(200_000, 0, p))
	assert.Equal(t, uint64(200), PriorityFee(200_000, 1_000, p))
	assert.Equal(t, consts.MaxPriorityFeeLamports, PriorityFee(1_400_000, 10_000_000, p))
	assert.Equal(t, consts.MaxPriorityFeeLamports, PriorityFee(math.MaxUint64, math.MaxUint64, p))
	assert.Equal(t, uint64(50), PriorityFee(200_000, 1_000, EstimateParams{MaxPriorityFee: 50}))
}

func TestMedianFee(t *testing.T) {
	assert.Zero(t, MedianFee(nil))
	assert.Zero(t, MedianFee([]PrioritizationFee{{MicroLamports: 0}}))
	assert.Equal(t, uint64(7), MedianFee([]PrioritizationFee{{MicroLamports: 7}}))
	assert.Equal(t, uint64(30), MedianFee([]PrioritizationFee{{MicroLamports: 30}, {MicroLamports: 10}, {MicroLamports: 20}, {MicroLamports: 40}}))
}
