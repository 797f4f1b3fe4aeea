package consts

import "runtime"

// 金额相关
const LamportsPerSOL uint64 = 1_000_000_000

// 手续费与计算单元（与链上默认值保持一致）
const (
	BaseFeeLamportsPerSignature uint64 = 5_000
	ComputeUnitsPerInstruction  uint64 = 50_000
	MinComputeUnits             uint64 = 200_000
	MaxComputeUnits             uint64 = 1_400_000
	MicroLamportsPerLamport     uint64 = 1_000_000
	DefaultPriorityFeeLamports  uint64 = 1_000
	MaxPriorityFeeLamports      uint64 = 1_000_000
)

// MinAirdropLamports 领水最小金额（1 SOL）
const MinAirdropLamports = LamportsPerSOL

// CpuCount 表示逻辑 CPU 核心数，用于控制并发任务调度上限
var CpuCount = runtime.NumCPU()
