package txn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sol-txflow/internal/pkg/types"
)

func testSignature(b byte) types.Signature {
	var sig types.Signature
	sig[0] = b
	sig[63] = b
	return sig
}

type recordingSink struct {
	mu      sync.Mutex
	results []MonitorResult
}

func (s *recordingSink) RecordOutcome(_ context.Context, r MonitorResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

type fakeHinter struct {
	ch       chan struct{}
	watching atomic.Int32
	released atomic.Int32
}

func (h *fakeHinter) Watch(types.Signature) (<-chan struct{}, func()) {
	h.watching.Add(1)
	return h.ch, func() { h.released.Add(1) }
}

func newTestMonitor(ledger *fakeLedger, opts ...MonitorOption) *Monitor {
	return NewMonitor(ledger, fastRetry(), append([]MonitorOption{WithPollInterval(5 * time.Millisecond)}, opts...)...)
}

func TestMonitor_Outcomes(t *testing.T) {
	sig := testSignature(1)

	t.Run("succeeded", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.confirm(sig, CommitmentFinalized, nil)
		sink := &recordingSink{}
		result, err := newTestMonitor(ledger, WithOutcomeSinks(sink)).Watch(context.Background(), sig,
			MonitorOptions{Commitment: CommitmentConfirmed, Timeout: time.Second, IncludeLogs: true}, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSucceeded, result.Outcome)
		assert.Equal(t, CommitmentFinalized, result.Commitment)
		assert.Equal(t, uint64(42), result.Slot)
		assert.Equal(t, uint64(10_000), result.Fee)
		assert.NotEmpty(t, result.Logs)
		require.Len(t, sink.results, 1)
		assert.Equal(t, OutcomeSucceeded, sink.results[0].Outcome)
	})

	t.Run("confirmed but failed", func(t *testing.T) {
		ledger := newFakeLedger()
		execErr := mustExecErr(t, `{"InstructionError":[0,{"Custom":1}]}`)
		ledger.confirm(sig, CommitmentConfirmed, execErr)
		result, err := newTestMonitor(ledger).Watch(context.Background(), sig,
			MonitorOptions{Commitment: CommitmentConfirmed, Timeout: time.Second}, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailedExecution, result.Outcome)
		require.NotNil(t, result.Err)
		assert.Equal(t, "Custom", result.Err.InstructionError)
		assert.Empty(t, result.Logs)
	})

	t.Run("meta error without status error", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.confirm(sig, CommitmentConfirmed, nil)
		ledger.metas[sig].Err = mustExecErr(t, `{"InsufficientFundsForRent":{"account_index":1}}`)
		result, err := newTestMonitor(ledger).Watch(context.Background(), sig,
			MonitorOptions{Commitment: CommitmentConfirmed, Timeout: time.Second}, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailedExecution, result.Outcome)
		assert.True(t, result.Err.IsInsufficientFunds())
	})

	t.Run("processed uses status error", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.confirm(sig, CommitmentProcessed, mustExecErr(t, `"InsufficientFundsForFee"`))
		result, err := newTestMonitor(ledger).Watch(context.Background(), sig,
			MonitorOptions{Commitment: CommitmentProcessed, Timeout: time.Second}, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailedExecution, result.Outcome)
		assert.Equal(t, "InsufficientFundsForFee", result.Err.Name)
	})

	t.Run("confirmed status error without metadata", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.confirm(sig, CommitmentConfirmed, mustExecErr(t, `{"InsufficientFundsForRent":{"account_index":1}}`))
		delete(ledger.metas, sig)
		sink := &recordingSink{}
		result, err := newTestMonitor(ledger, WithOutcomeSinks(sink)).Watch(context.Background(), sig,
			MonitorOptions{Commitment: CommitmentConfirmed, Timeout: time.Second}, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailedExecution, result.Outcome)
		assert.Equal(t, CommitmentConfirmed, result.Commitment)
		require.NotNil(t, result.Err)
		assert.True(t, result.Err.IsInsufficientFunds())
		requireKind(t, result.AsError(), KindExecutionFailed)
		require.Len(t, sink.results, 1)
		assert.Equal(t, OutcomeFailedExecution, sink.results[0].Outcome)
	})

	t.Run("depth reached but metadata never available", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.confirm(sig, CommitmentFinalized, nil)
		delete(ledger.metas, sig)
		result, err := newTestMonitor(ledger).Watch(context.Background(), sig,
			MonitorOptions{Commitment: CommitmentConfirmed, Timeout: 40 * time.Millisecond}, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSucceeded, result.Outcome)
		assert.Equal(t, CommitmentFinalized, result.Commitment)
		assert.Equal(t, uint64(42), result.Slot)
		assert.Nil(t, result.Err)
	})

	t.Run("timed out", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.confirm(sig, CommitmentProcessed, nil)
		sink := &recordingSink{}
		result, err := newTestMonitor(ledger, WithOutcomeSinks(sink)).Watch(context.Background(), sig,
			MonitorOptions{Commitment: CommitmentFinalized, Timeout: 40 * time.Millisecond}, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeTimedOut, result.Outcome)
		assert.Equal(t, CommitmentProcessed, result.Commitment)
		assert.Nil(t, result.Err)
		requireKind(t, result.AsError(), KindConfirmationTimeout)
		require.Len(t, sink.results, 1)
		assert.Equal(t, OutcomeTimedOut, sink.results[0].Outcome)
	})
}

func TestMonitor_ConfirmsLater(t *testing.T) {
	sig := testSignature(2)
	ledger := newFakeLedger()
	updates := make(chan StatusUpdate, 8)

	go func() {
		time.Sleep(15 * time.Millisecond)
		ledger.confirm(sig, CommitmentProcessed, nil)
		time.Sleep(15 * time.Millisecond)
		ledger.confirm(sig, CommitmentConfirmed, nil)
	}()

	result, err := newTestMonitor(ledger).Watch(context.Background(), sig,
		MonitorOptions{Commitment: CommitmentConfirmed, Timeout: 2 * time.Second}, updates)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)

	close(updates)
	var seen []Commitment
	for u := range updates {
		seen = append(seen, u.Commitment)
	}
	assert.Equal(t, []Commitment{CommitmentProcessed, CommitmentConfirmed}, seen)
}

func TestMonitor_TransientErrorsKeepPolling(t *testing.T) {
	sig := testSignature(3)
	ledger := newFakeLedger()
	boom := RpcUnavailable(CertaintyNone, true, errors.New("503"))
	ledger.statusErrs = []error{boom, boom, boom, boom, boom}
	ledger.confirm(sig, CommitmentConfirmed, nil)

	result, err := newTestMonitor(ledger).Watch(context.Background(), sig,
		MonitorOptions{Commitment: CommitmentConfirmed, Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	assert.Greater(t, ledger.statusCalls, 5)
}

func TestMonitor_FatalReadError(t *testing.T) {
	sig := testSignature(4)
	ledger := newFakeLedger()
	ledger.statusErrs = []error{newError(KindInvalidArgument, "bad signature")}

	_, err := newTestMonitor(ledger).Watch(context.Background(), sig,
		MonitorOptions{Timeout: time.Second}, nil)
	requireKind(t, err, KindInvalidArgument)
}

func TestMonitor_CancelReleasesSubscription(t *testing.T) {
	sig := testSignature(5)
	hinter := &fakeHinter{ch: make(chan struct{})}
	sink := &recordingSink{}
	m := newTestMonitor(newFakeLedger(), WithHinter(hinter), WithOutcomeSinks(sink))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Watch(ctx, sig, MonitorOptions{Timeout: time.Minute}, nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return hinter.watching.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
	assert.Equal(t, int32(1), hinter.released.Load())
	assert.Empty(t, sink.results)
}

func TestMonitor_HintWakesPoll(t *testing.T) {
	sig := testSignature(6)
	ledger := newFakeLedger()
	hinter := &fakeHinter{ch: make(chan struct{}, 1)}
	// 轮询间隔很长，只能靠推送唤醒
	m := NewMonitor(ledger, fastRetry(), WithPollInterval(time.Hour), WithHinter(hinter))

	go func() {
		time.Sleep(20 * time.Millisecond)
		ledger.confirm(sig, CommitmentConfirmed, nil)
		hinter.ch <- struct{}{}
	}()
	result, err := m.Watch(context.Background(), sig, MonitorOptions{Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
}

func TestMonitorTransaction_RequiresSubmitted(t *testing.T) {
	tx, _ := signedTx(t)
	_, err := newTestMonitor(newFakeLedger()).MonitorTransaction(context.Background(), tx, MonitorOptions{Timeout: time.Second}, nil)
	requireKind(t, err, KindInvalidState)
}

func TestMonitorTransaction_TimeoutDoesNotOverwrite(t *testing.T) {
	ledger := newFakeLedger()
	ledger.autoConfirm = true
	tx, _ := signedTx(t)
	_, err := NewSubmitter(ledger, fastRetry()).Submit(context.Background(), tx, SendOptions{})
	require.NoError(t, err)
	m := newTestMonitor(ledger)

	first, err := m.MonitorTransaction(context.Background(), tx, MonitorOptions{Timeout: time.Second}, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, first.Outcome)

	// 要求 finalized 会超时，但不覆盖已有的确定结果
	second, err := m.MonitorTransaction(context.Background(), tx,
		MonitorOptions{Commitment: CommitmentFinalized, Timeout: 30 * time.Millisecond}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, second.Outcome)
	assert.Equal(t, OutcomeSucceeded, tx.Snapshot().Outcome)
	assert.Equal(t, StateSubmitted, tx.State())
}

func TestMonitor_ConcurrentIndependent(t *testing.T) {
	ledger := newFakeLedger()
	m := newTestMonitor(ledger)
	ok, failed := testSignature(7), testSignature(8)
	ledger.confirm(ok, CommitmentConfirmed, nil)
	ledger.confirm(failed, CommitmentConfirmed, mustExecErr(t, `"AccountNotFound"`))

	var wg sync.WaitGroup
	results := make([]MonitorResult, 2)
	for i, sig := range []types.Signature{ok, failed} {
		wg.Add(1)
		go func(i int, sig types.Signature) {
			defer wg.Done()
			results[i], _ = m.Watch(context.Background(), sig, MonitorOptions{Timeout: time.Second}, nil)
		}(i, sig)
	}
	wg.Wait()
	assert.Equal(t, OutcomeSucceeded, results[0].Outcome)
	assert.Equal(t, OutcomeFailedExecution, results[1].Outcome)
}

func TestMonitor_RejectsZeroSignature(t *testing.T) {
	_, err := newTestMonitor(newFakeLedger()).Watch(context.Background(), types.Signature{}, MonitorOptions{}, nil)
	requireKind(t, err, KindInvalidArgument)
}
