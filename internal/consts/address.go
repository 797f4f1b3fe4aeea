package consts

// Base58 地址常量（可读性高，适合配置与日志使用）
const (
	// Programs
	SystemProgramStr          = "11111111111111111111111111111111"
	TokenProgramStr           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	TokenProgram2022Str       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenProgramStr = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	ComputeBudgetProgramStr   = "ComputeBudget111111111111111111111111111111"

	// Sysvars
	SysvarRentStr = "SysvarRent111111111111111111111111111111111"

	WSOLMintStr = "So11111111111111111111111111111111111111112"
)
