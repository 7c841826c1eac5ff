package domain

// RiskDecision is the result of a pre-trade check. The zero value is Clear.
type RiskDecision struct {
	Vetoed bool
	Reason string
}

// Clear returns a decision that lets the trade proceed.
func Clear() RiskDecision {
	return RiskDecision{}
}

// Veto returns a decision that blocks the trade with the given reason.
func Veto(reason string) RiskDecision {
	return RiskDecision{Vetoed: true, Reason: reason}
}

// Allowed reports whether the trade may proceed.
func (d RiskDecision) Allowed() bool {
	return !d.Vetoed
}

func (d RiskDecision) String() string {
	if d.Vetoed {
		return "veto: " + d.Reason
	}
	return "clear"
}
