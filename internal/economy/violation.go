package economy

import (
	"errors"
	"fmt"
)

// ViolationKind classifies a broken economic invariant. Every kind is fatal to the run.
type ViolationKind uint8

const (
	Insolvency ViolationKind = iota + 1
	OverWithdrawal
	NoDeposit
	InsufficientGoods
	InsufficientCash
	WageDefault
	NegativeGoods
	HousingUnaffordable
	UnresolvedReference
)

var violationNames = map[ViolationKind]string{
	Insolvency:          "bank insolvency",
	OverWithdrawal:      "over-withdrawal",
	NoDeposit:           "withdrawal without deposit",
	InsufficientGoods:   "insufficient goods",
	InsufficientCash:    "insufficient cash",
	WageDefault:         "wage default",
	NegativeGoods:       "negative goods inventory",
	HousingUnaffordable: "housing unaffordable",
	UnresolvedReference: "unresolved reference",
}

func (k ViolationKind) String() string {
	if s, ok := violationNames[k]; ok {
		return s
	}
	return fmt.Sprintf("violation(%d)", uint8(k))
}

// Violation is a fatal contract violation: which agent, which tick, what invariant.
type Violation struct {
	Kind   ViolationKind
	Agent  string
	Tick   uint64
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s at tick %d: %s", v.Kind, v.Agent, v.Tick, v.Detail)
}

func violate(kind ViolationKind, agent fmt.Stringer, tick uint64, format string, args ...any) *Violation {
	name := "<nil>"
	if agent != nil {
		name = agent.String()
	}
	return &Violation{Kind: kind, Agent: name, Tick: tick, Detail: fmt.Sprintf(format, args...)}
}

// AsViolation unwraps err to a *Violation if it carries one.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// IsFatal reports whether err carries a Violation.
func IsFatal(err error) bool {
	_, ok := AsViolation(err)
	return ok
}
