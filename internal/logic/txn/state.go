package txn

import (
	"fmt"
	"strings"
)

// State 交易生命周期状态，只能前进不能回退
type State uint8

const (
	StateDraft State = iota + 1
	StateCompiled
	StatePartiallySigned
	StateFullySigned
	StateSubmitted
)

var stateNames = map[State]string{
	StateDraft:           "DRAFT",
	StateCompiled:        "COMPILED",
	StatePartiallySigned: "PARTIALLY_SIGNED",
	StateFullySigned:     "FULLY_SIGNED",
	StateSubmitted:       "SUBMITTED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// transitions 合法的状态迁移边。PARTIALLY_SIGNED 内部追加签名不算迁移。
var transitions = map[State][]State{
	StateDraft:           {StateCompiled},
	StateCompiled:        {StatePartiallySigned, StateFullySigned},
	StatePartiallySigned: {StateFullySigned},
	StateFullySigned:     {StateSubmitted},
}

// CanTransition 判断 from -> to 是否为合法迁移
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Outcome Monitor 给出的终态结果，独立于 State 记录
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailedExecution
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "PENDING"
	case OutcomeSucceeded:
		return "SUCCEEDED"
	case OutcomeFailedExecution:
		return "FAILED_EXECUTION"
	case OutcomeTimedOut:
		return "TIMED_OUT"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

func (o Outcome) IsTerminal() bool {
	return o == OutcomeSucceeded || o == OutcomeFailedExecution || o == OutcomeTimedOut
}

// Commitment 确认深度：processed < confirmed < finalized
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

func (c Commitment) Valid() bool {
	return c.rank() > 0
}

// Reaches 判断已达到的确认深度 c 是否满足 want
func (c Commitment) Reaches(want Commitment) bool {
	return c.rank() > 0 && c.rank() >= want.rank()
}

// ParseCommitment 解析确认深度，空字符串默认 confirmed
func ParseCommitment(s string) (Commitment, error) {
	switch c := Commitment(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CommitmentConfirmed, nil
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return c, nil
	default:
		return "", newError(KindInvalidArgument, "unknown commitment %q", s).withField("commitment")
	}
}
