package economy

import (
	"fmt"

	"github.com/talgya/macro-sim/internal/config"
)

// Government tracks money injected through subsidies and the inflation it causes.
type Government struct {
	id                AgentID
	Treasury          float64
	CumulativeSubsidy float64
	Inflation         float64
	BaselineMoney     float64

	interval int
}

// NewGovernment creates a government with an inflation multiplier of 1.
func NewGovernment(id AgentID, cfg config.Government) *Government {
	return &Government{
		id:        id,
		Treasury:  cfg.StartingMoney,
		Inflation: 1,
		interval:  cfg.InflationInterval,
	}
}

func (g *Government) ID() AgentID    { return g.id }
func (g *Government) Kind() Kind     { return KindGovernment }
func (g *Government) String() string { return fmt.Sprintf("government-%d", g.id) }

// SetBaseline captures the economy's starting money supply, the denominator of the
// inflation formula. It is called once, after the population is wired.
func (g *Government) SetBaseline(total float64) {
	g.BaselineMoney = total
}

// Step compounds the inflation multiplier every inflation interval.
func (g *Government) Step(tick uint64) error {
	g.Inflation = g.InflationAt(tick)
	return nil
}

// InflationAt returns the multiplier that will be in force after Step(tick) runs.
// Subsidies are only handed out by firms, which step after the government, so this
// is exact once the current tick's firms have stepped.
func (g *Government) InflationAt(tick uint64) float64 {
	if g.BaselineMoney <= 0 || !due(tick, 0, g.interval) {
		return g.Inflation
	}
	return g.Inflation * (1 + g.CumulativeSubsidy/g.BaselineMoney)
}

// Collect credits the treasury (utilities, the government's cut of rent and mortgages).
func (g *Government) Collect(amount float64) {
	g.Treasury += amount
}

// ProvideSubsidy credits h with newly created money worth unitPrice·(1−discount)·qty.
func (g *Government) ProvideSubsidy(h *Household, unitPrice, discount, qty float64) float64 {
	amount := unitPrice * (1 - discount) * qty
	if amount <= 0 {
		return 0
	}
	h.Cash += amount
	g.CumulativeSubsidy += amount
	return amount
}
