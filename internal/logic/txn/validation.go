package txn

import "fmt"

// Operation 可对交易聚合执行的操作
type Operation uint8

const (
	OpEditDraft Operation = iota + 1
	OpCompile
	OpSign
	OpSubmit
	OpMonitor
	OpEstimate
	OpSimulate
)

func (op Operation) String() string {
	switch op {
	case OpEditDraft:
		return "edit"
	case OpCompile:
		return "compile"
	case OpSign:
		return "sign"
	case OpSubmit:
		return "submit"
	case OpMonitor:
		return "monitor"
	case OpEstimate:
		return "estimate"
	case OpSimulate:
		return "simulate"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(op))
	}
}

var allowedOps = map[State][]Operation{
	StateDraft:           {OpEditDraft, OpCompile},
	StateCompiled:        {OpSign, OpEstimate, OpSimulate},
	StatePartiallySigned: {OpSign, OpEstimate, OpSimulate},
	StateFullySigned:     {OpSign, OpSubmit, OpEstimate, OpSimulate},
	StateSubmitted:       {OpMonitor},
}

// AllowedOperations 返回某状态下允许的操作
func AllowedOperations(s State) []Operation {
	return append([]Operation(nil), allowedOps[s]...)
}

func checkOperation(s State, op Operation) error {
	for _, allowed := range allowedOps[s] {
		if allowed == op {
			return nil
		}
	}
	return newError(KindInvalidState, "cannot %s transaction in state %s", op, s)
}

// checkOperationLocked 在状态检查之外，提交进行中时不允许再改动签名
func (t *Transaction) checkOperationLocked(op Operation) error {
	if err := checkOperation(t.state, op); err != nil {
		return err
	}
	if op == OpSign && t.submitting {
		return newError(KindInvalidState, "cannot sign transaction %s while submit is in flight", t.id)
	}
	return nil
}

// Validate 检查聚合内部字段与状态是否一致
func (t *Transaction) Validate() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.Valid() {
		return newError(KindInvalidState, "unknown state %d", t.state)
	}
	if t.state == StateDraft {
		if len(t.wire) != 0 || len(t.signatures) != 0 {
			return newError(KindInvalidState, "draft transaction carries compiled data")
		}
		return nil
	}

	if len(t.wire) == 0 || t.anchor.IsZero() || len(t.signerOrder) == 0 {
		return newError(KindInvalidState, "%s transaction has no compiled message", t.state)
	}
	for signer := range t.signatures {
		if !t.isRequiredLocked(signer) {
			return newError(KindInvalidState, "signature from non-required signer %s", signer)
		}
	}

	missing := len(t.missingSignersLocked())
	switch t.state {
	case StateCompiled:
		if len(t.signatures) != 0 {
			return newError(KindInvalidState, "compiled transaction already has signatures")
		}
	case StatePartiallySigned:
		if len(t.signatures) == 0 || missing == 0 {
			return newError(KindInvalidState, "partially signed transaction has %d signatures, %d missing", len(t.signatures), missing)
		}
	case StateFullySigned, StateSubmitted:
		if missing != 0 {
			return newError(KindInvalidState, "%s transaction is missing %d signatures", t.state, missing)
		}
	}
	if t.state == StateSubmitted && t.submission.IsZero() {
		return newError(KindInvalidState, "submitted transaction has no submission signature")
	}
	return nil
}
