package follow

import (
	"errors"
	"fmt"
	"math"
)

// FirstSample is the sentinel threshold that fires on the first accepted sample.
const FirstSample = -1

var ErrInvalidLadder = errors.New("invalid threshold ladder")

// Ladder is the descending list of minute thresholds at which recipients are
// alerted. Index 0 is always FirstSample.
type Ladder []int

func DefaultLadder() Ladder {
	return Ladder{FirstSample, 60, 30, 10, 1}
}

func NewLadder(values []int) (Ladder, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 entries, got %d", ErrInvalidLadder, len(values))
	}
	if values[0] != FirstSample {
		return nil, fmt.Errorf("%w: must start with %d", ErrInvalidLadder, FirstSample)
	}
	for i := 1; i < len(values); i++ {
		if i > 1 && values[i] >= values[i-1] {
			return nil, fmt.Errorf("%w: %d after %d is not descending", ErrInvalidLadder, values[i], values[i-1])
		}
		if values[i] < 0 {
			return nil, fmt.Errorf("%w: negative threshold %d", ErrInvalidLadder, values[i])
		}
	}
	out := make(Ladder, len(values))
	copy(out, values)
	return out, nil
}

// AlertState has one bit per ladder index. Bits are only ever set, and always
// as a prefix.
type AlertState []bool

func (l Ladder) NewState() AlertState {
	return make(AlertState, len(l))
}

func (s AlertState) Clone() AlertState {
	out := make(AlertState, len(s))
	copy(out, s)
	return out
}

func (s AlertState) Complete() bool {
	for _, b := range s {
		if !b {
			return false
		}
	}
	return len(s) > 0
}

// NextUnset returns the smallest index not yet set, or -1.
func (s AlertState) NextUnset() int {
	for i, b := range s {
		if !b {
			return i
		}
	}
	return -1
}

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeStarted
	OutcomeAlreadyArrived
	OutcomeProgress
	OutcomeArrived
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeAlreadyArrived:
		return "already_arrived"
	case OutcomeProgress:
		return "progress"
	case OutcomeArrived:
		return "arrived"
	default:
		return "none"
	}
}

// Evaluate applies one ETA to the state and reports which message category,
// if any, it produces. A threshold is met when round(eta) <= threshold.
// The input state is not modified.
func (l Ladder) Evaluate(state AlertState, etaMinutes float64) (AlertState, Outcome) {
	next := state.Clone()
	if len(next) != len(l) {
		next = l.NewState()
	}
	eta := int(math.Round(etaMinutes))

	if !next[0] {
		next[0] = true
		l.markMet(next, eta)
		if next.Complete() {
			return next, OutcomeAlreadyArrived
		}
		return next, OutcomeStarted
	}

	k := next.NextUnset()
	if k < 0 || eta > l[k] {
		return next, OutcomeNone
	}
	next[k] = true
	l.markMet(next, eta)
	if next.Complete() {
		return next, OutcomeArrived
	}
	return next, OutcomeProgress
}

func (l Ladder) markMet(state AlertState, eta int) {
	for i := 1; i < len(l); i++ {
		if l[i] >= eta {
			state[i] = true
		}
	}
}

// Fired lists the thresholds whose bits are set, in ladder order.
func (l Ladder) Fired(state AlertState) []int {
	out := make([]int, 0, len(l))
	for i, b := range state {
		if b && i < len(l) {
			out = append(out, l[i])
		}
	}
	return out
}
