package txn

import (
	"context"
	"math/bits"
	"sort"

	"sol-txflow/internal/consts"
	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/types"
)

// MarketFeeSource 本地缓存的优先费行情
type MarketFeeSource interface {
	MedianPriorityFee() (uint64, bool)
}

// EstimateParams 估算常量，零值取默认
type EstimateParams struct {
	BaseFeePerSignature uint64
	DefaultPriorityFee  uint64
	MaxPriorityFee      uint64
}

func (p EstimateParams) withDefaults() EstimateParams {
	if p.BaseFeePerSignature == 0 {
		p.BaseFeePerSignature = consts.BaseFeeLamportsPerSignature
	}
	if p.DefaultPriorityFee == 0 {
		p.DefaultPriorityFee = consts.DefaultPriorityFeeLamports
	}
	if p.MaxPriorityFee == 0 {
		p.MaxPriorityFee = consts.MaxPriorityFeeLamports
	}
	return p
}

// 计算单元来源
const (
	UnitsFromSimulation = "simulation"
	UnitsFromConfig     = "config"
	UnitsFromHeuristic  = "heuristic"
)

// Estimate 手续费与计算单元估算，仅供参考
type Estimate struct {
	ComputeUnits        uint64
	ComputeUnitsSource  string
	ComputeUnitPrice    uint64 // micro-lamports / CU
	FeePerSignature     uint64
	Signatures          int
	BaseFee             uint64
	PriorityFee         uint64
	TotalFee            uint64
	SimulationSucceeded *bool
	SimulationErr       *ExecutionError
	Warnings            []string
}

// Estimator 预估与模拟，不修改交易聚合
type Estimator struct {
	fees   FeeOracle
	sim    TxSimulator
	market MarketFeeSource
	params EstimateParams
}

func NewEstimator(fees FeeOracle, sim TxSimulator, market MarketFeeSource, params EstimateParams) *Estimator {
	return &Estimator{fees: fees, sim: sim, market: market, params: params.withDefaults()}
}

type estimateInput struct {
	message  []byte
	wire     []byte
	signers  int
	ixCount  int
	accounts []types.Pubkey
	exec     ExecConfig
}

func (e *Estimator) readInput(tx *Transaction, op Operation) (estimateInput, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := checkOperation(tx.state, op); err != nil {
		return estimateInput{}, err
	}
	wire, err := tx.signedWireLocked()
	if err != nil {
		return estimateInput{}, newError(KindInvalidArgument, "serialize transaction").withCause(err)
	}
	var writable []types.Pubkey
	seen := map[types.Pubkey]struct{}{}
	for _, ix := range tx.instructions {
		for _, acc := range ix.accounts {
			if _, ok := seen[acc.Address]; acc.IsWritable && !ok {
				seen[acc.Address] = struct{}{}
				writable = append(writable, acc.Address)
			}
		}
	}
	return estimateInput{
		message:  append([]byte(nil), tx.wire...),
		wire:     wire,
		signers:  len(tx.signerOrder),
		ixCount:  len(tx.instructions),
		accounts: writable,
		exec:     tx.execConfig,
	}, nil
}

// Estimate 估算费用。各项查询失败只记录告警，不返回错误。
func (e *Estimator) Estimate(ctx context.Context, tx *Transaction) (Estimate, error) {
	in, err := e.readInput(tx, OpEstimate)
	if err != nil {
		return Estimate{}, err
	}
	out := Estimate{Signatures: in.signers, FeePerSignature: e.params.BaseFeePerSignature}

	// 计算单元：模拟 > 配置 > 经验值
	if e.sim != nil {
		sim, err := e.sim.SimulateTransaction(ctx, in.wire, CommitmentConfirmed)
		if err != nil {
			out.Warnings = append(out.Warnings, "simulation unavailable: "+err.Error())
		} else {
			ok := sim.Succeeded()
			out.SimulationSucceeded = &ok
			out.SimulationErr = sim.Err
			if sim.UnitsConsumed != nil && *sim.UnitsConsumed > 0 {
				out.ComputeUnits = *sim.UnitsConsumed
				out.ComputeUnitsSource = UnitsFromSimulation
			}
		}
	}
	if out.ComputeUnits == 0 && in.exec.ComputeUnitLimit > 0 {
		out.ComputeUnits = uint64(in.exec.ComputeUnitLimit)
		out.ComputeUnitsSource = UnitsFromConfig
	}
	if out.ComputeUnits == 0 {
		out.ComputeUnits = HeuristicComputeUnits(in.ixCount)
		out.ComputeUnitsSource = UnitsFromHeuristic
	}

	// 基础费：优先使用链上报价
	out.BaseFee = uint64(in.signers) * e.params.BaseFeePerSignature
	if e.fees != nil {
		fee, err := e.fees.FeeForMessage(ctx, in.message)
		switch {
		case err != nil:
			out.Warnings = append(out.Warnings, "fee for message unavailable: "+err.Error())
		case fee != nil:
			out.BaseFee = *fee
		default:
			out.Warnings = append(out.Warnings, "blockhash expired, base fee estimated locally")
		}
	}

	// 优先费：显式配置 > 单价配置 > 市场行情 > 默认值
	switch {
	case in.exec.PriorityFee > 0:
		out.PriorityFee = in.exec.PriorityFee
	default:
		price := in.exec.ComputeUnitPrice
		if price == 0 {
			price = e.marketPrice(ctx, in.accounts, &out)
		}
		out.ComputeUnitPrice = price
		out.PriorityFee = PriorityFee(out.ComputeUnits, price, e.params)
	}
	out.TotalFee = out.BaseFee + out.PriorityFee
	return out, nil
}

func (e *Estimator) marketPrice(ctx context.Context, accounts []types.Pubkey, out *Estimate) uint64 {
	if e.market != nil {
		if price, ok := e.market.MedianPriorityFee(); ok {
			return price
		}
	}
	if e.fees == nil {
		return 0
	}
	samples, err := e.fees.RecentPrioritizationFees(ctx, accounts)
	if err != nil {
		out.Warnings = append(out.Warnings, "prioritization fees unavailable: "+err.Error())
		return 0
	}
	return MedianFee(samples)
}

// Simulate 模拟执行，结果仅供参考，不影响交易状态
func (e *Estimator) Simulate(ctx context.Context, tx *Transaction, commitment Commitment) (SimulationResult, error) {
	in, err := e.readInput(tx, OpSimulate)
	if err != nil {
		return SimulationResult{}, err
	}
	if e.sim == nil {
		return SimulationResult{}, newError(KindInvalidArgument, "simulation not configured")
	}
	if !commitment.Valid() {
		commitment = CommitmentConfirmed
	}
	res, err := e.sim.SimulateTransaction(ctx, in.wire, commitment)
	if err != nil {
		logger.Warnf("[Estimator] simulate tx %s failed: %v", tx.ID(), err)
		return SimulationResult{}, classifyReadError(err)
	}
	return res, nil
}

// HeuristicComputeUnits 无模拟结果时按指令数估算，限制在 [200k, 1.4M]
func HeuristicComputeUnits(instructions int) uint64 {
	units := uint64(instructions) * consts.ComputeUnitsPerInstruction
	return min(max(units, consts.MinComputeUnits), consts.MaxComputeUnits)
}

// PriorityFee 优先费 = CU × 单价(micro-lamports) / 1e6，单价未知时取默认值，结果封顶
func PriorityFee(units, microLamports uint64, p EstimateParams) uint64 {
	p = p.withDefaults()
	if microLamports == 0 {
		return p.DefaultPriorityFee
	}
	hi, lo := bits.Mul64(units, microLamports)
	if hi >= consts.MicroLamportsPerLamport {
		return p.MaxPriorityFee
	}
	fee, _ := bits.Div64(hi, lo, consts.MicroLamportsPerLamport)
	return min(fee, p.MaxPriorityFee)
}

// MedianFee 取非零样本的中位数
func MedianFee(samples []PrioritizationFee) uint64 {
	values := make([]uint64, 0, len(samples))
	for _, s := range samples {
		if s.MicroLamports > 0 {
			values = append(values, s.MicroLamports)
		}
	}
	if len(values) == 0 {
		return 0
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values[len(values)/2]
}
