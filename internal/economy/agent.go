// Package economy provides the agents of the closed economy: bank, government,
// households and the tiered firm hierarchy, plus the ledgers they share.
//
// Everything here runs on one goroutine. Agents mutate each other's balances
// directly; the registration order of the Population is the only ordering rule.
package economy

import (
	"fmt"

	"github.com/talgya/macro-sim/internal/config"
)

// TicksPerPeriod is the number of ticks (weeks) in one period (month).
const TicksPerPeriod = 4

// NumEducation mirrors config.NumEducation for callers that only import economy.
const NumEducation = config.NumEducation

// Tolerances for float balances. Amounts within these of zero count as zero.
const (
	moneyEpsilon = 1e-9
	goodsEpsilon = 1e-9
)

// AgentID is a unique identifier, assigned in registration order starting at 1.
type AgentID uint64

// Kind enumerates agent variants.
type Kind uint8

const (
	KindGovernment Kind = iota
	KindBank
	KindFirm
	KindHousehold
)

func (k Kind) String() string {
	switch k {
	case KindGovernment:
		return "government"
	case KindBank:
		return "bank"
	case KindFirm:
		return "firm"
	case KindHousehold:
		return "household"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Agent is anything the scheduler steps once per tick.
type Agent interface {
	ID() AgentID
	Kind() Kind
	String() string
	Step(tick uint64) error
}

// Resolver is implemented by agents that wire references to other agents once,
// after the whole population exists and before the first Step.
type Resolver interface {
	ResolveReferences(p *Population) error
}

// Population is the registration-ordered set of agents plus typed views of it.
type Population struct {
	Government *Government
	Bank       *Bank
	Firms      [NumTiers][]*Firm
	Households []*Household
	Journal    *Journal

	agents []Agent
}

// NewPopulation creates an empty population with its own journal.
func NewPopulation() *Population {
	return &Population{Journal: &Journal{}}
}

// Register appends a to the canonical iteration order.
func (p *Population) Register(a Agent) {
	p.agents = append(p.agents, a)
	switch v := a.(type) {
	case *Government:
		p.Government = v
	case *Bank:
		p.Bank = v
	case *Firm:
		p.Firms[v.Tier()] = append(p.Firms[v.Tier()], v)
	case *Household:
		p.Households = append(p.Households, v)
	}
}

// Agents returns every agent in registration order.
func (p *Population) Agents() []Agent {
	return p.agents
}

// AllFirms returns every firm, outer tier first.
func (p *Population) AllFirms() []*Firm {
	var out []*Firm
	for t := range p.Firms {
		out = append(out, p.Firms[t]...)
	}
	return out
}

// Resolve gives every Resolver a chance to wire its references.
// The order does not matter; no resolver reads state another resolver writes.
func (p *Population) Resolve() error {
	for _, a := range p.agents {
		r, ok := a.(Resolver)
		if !ok {
			continue
		}
		if err := r.ResolveReferences(p); err != nil {
			return err
		}
	}
	return nil
}

// MoneySupply sums every cash balance, treasury and deposit in the economy.
func (p *Population) MoneySupply() float64 {
	total := 0.0
	if p.Government != nil {
		total += p.Government.Treasury
	}
	if p.Bank != nil {
		total += p.Bank.Cash + p.Bank.TotalDeposits()
	}
	for _, f := range p.AllFirms() {
		total += f.Cash
	}
	for _, h := range p.Households {
		total += h.Cash
	}
	return total
}

// due reports whether a recurring event that started at start fires on tick.
func due(tick, start uint64, interval int) bool {
	if interval <= 0 || tick < start {
		return false
	}
	return (tick-start)%uint64(interval) == 0
}
