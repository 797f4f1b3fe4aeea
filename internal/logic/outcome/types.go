package outcome

import (
	"time"

	"sol-txflow/internal/logic/txn"
)

// Record 一条终态结果，redis / journal / kafka 共用的表示
type Record struct {
	Signature    string    `json:"signature"`
	Outcome      string    `json:"outcome"`
	Commitment   string    `json:"commitment,omitempty"`
	Slot         uint64    `json:"slot,omitempty"`
	BlockTime    *int64    `json:"block_time,omitempty"`
	Fee          uint64    `json:"fee,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorRaw     string    `json:"error_raw,omitempty"` // 链上原始 TransactionError JSON
	Logs         []string  `json:"logs,omitempty"`
	ComputeUnits *uint64   `json:"compute_units,omitempty"`
	ElapsedMs    int64     `json:"elapsed_ms"`
	RecordedAt   time.Time `json:"recorded_at"`
}

func NewRecord(r txn.MonitorResult, now time.Time) *Record {
	rec := &Record{
		Signature:    r.Signature.String(),
		Outcome:      r.Outcome.String(),
		Commitment:   string(r.Commitment),
		Slot:         r.Slot,
		BlockTime:    r.BlockTime,
		Fee:          r.Fee,
		Logs:         r.Logs,
		ComputeUnits: r.ComputeUnitsConsumed,
		ElapsedMs:    r.Elapsed.Milliseconds(),
		RecordedAt:   now.UTC(),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
		rec.ErrorRaw = string(r.Err.Raw)
	}
	return rec
}

func (r *Record) Succeeded() bool {
	return r.Outcome == txn.OutcomeSucceeded.String()
}
