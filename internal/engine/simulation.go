// Simulation ties together all agents and steps them each tick.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/talgya/macro-sim/internal/config"
	"github.com/talgya/macro-sim/internal/economy"
	"github.com/talgya/macro-sim/internal/entropy"
)

const (
	maxEvents  = 1000  // recent journal entries kept in memory
	maxHistory = 10000 // readings kept in memory for the history endpoint
)

// Collector receives every tick's readings and journal entries.
type Collector interface {
	Collect(tick uint64, r Readings, events []economy.Entry) error
}

// CollectorFunc adapts a function to a Collector.
type CollectorFunc func(tick uint64, r Readings, events []economy.Entry) error

func (f CollectorFunc) Collect(tick uint64, r Readings, events []economy.Entry) error {
	return f(tick, r, events)
}

// TickReadings pairs a tick with its readings.
type TickReadings struct {
	Tick     uint64   `json:"tick"`
	Readings Readings `json:"readings"`
}

// Simulation holds the complete economy and wires the scheduler to it.
type Simulation struct {
	Config     *config.Config
	Pop        *economy.Population
	Events     []economy.Entry // recent journal entries, oldest first
	History    []TickReadings
	LastTick   uint64 // most recent tick processed
	Collectors []Collector

	startMoney float64
	snapshot   atomic.Pointer[Snapshot]
	histMu     sync.RWMutex // guards History against HistorySince
}

// NewSimulation builds the population in canonical order (government, bank, large,
// medium and small firms, households), wires references, hires labour and captures
// the baseline money supply.
func NewSimulation(cfg *config.Config, src entropy.Source) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := economy.NewPopulation()
	var next economy.AgentID
	id := func() economy.AgentID { next++; return next }

	p.Register(economy.NewGovernment(id(), cfg.Government))
	p.Register(economy.NewBank(id(), cfg.Bank))

	pop := cfg.Population
	tiers := []struct {
		tier      economy.Tier
		count     int
		customers int
	}{
		{economy.TierLarge, pop.LargeFirms, pop.MediumFirms},
		{economy.TierMedium, pop.MediumFirms, pop.SmallFirms},
		{economy.TierSmall, pop.SmallFirms, pop.Households},
	}
	for _, t := range tiers {
		for _, r := range economy.SplitRange(t.customers, t.count) {
			p.Register(economy.NewFirm(id(), t.tier, r, cfg))
		}
	}

	for edu, n := range pop.EducationCounts {
		for i := 0; i < n; i++ {
			h, err := economy.NewHousehold(id(), edu, cfg, src)
			if err != nil {
				return nil, fmt.Errorf("household %d: %w", next, err)
			}
			p.Register(h)
		}
	}

	if err := p.Resolve(); err != nil {
		return nil, fmt.Errorf("resolve references: %w", err)
	}
	for _, f := range p.AllFirms() {
		f.HireLabor()
	}

	start := p.MoneySupply()
	p.Government.SetBaseline(start)

	s := &Simulation{
		Config:     cfg,
		Pop:        p,
		startMoney: start,
	}
	s.Events = append(s.Events, p.Journal.Drain()...)
	s.publish(measure(p, start))

	slog.Info("simulation created",
		"agents", len(p.Agents()),
		"households", len(p.Households),
		"firms", len(p.AllFirms()),
		"money_supply", humanize.FormatFloat("#,###.##", start),
	)
	return s, nil
}

// StartMoney is the money supply at construction.
func (s *Simulation) StartMoney() float64 { return s.startMoney }

// Step advances every agent by one tick, in registration order, and collects readings.
// A non-nil error is fatal: the run must stop.
func (s *Simulation) Step() (Readings, error) {
	tick := s.LastTick + 1
	for _, a := range s.Pop.Agents() {
		if err := a.Step(tick); err != nil {
			return nil, fmt.Errorf("step %s at tick %d: %w", a, tick, err)
		}
	}
	s.LastTick = tick

	r := measure(s.Pop, s.startMoney)
	events := s.Pop.Journal.Drain()
	s.Events = append(s.Events, events...)
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
	s.histMu.Lock()
	s.History = append(s.History, TickReadings{Tick: tick, Readings: r})
	if len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
	s.histMu.Unlock()

	for _, c := range s.Collectors {
		if err := c.Collect(tick, r, events); err != nil {
			slog.Error("collector failed", "tick", tick, "error", err)
		}
	}
	s.publish(r)
	return r, nil
}

// TickWeek is the engine's OnTick callback.
func (s *Simulation) TickWeek(tick uint64) error {
	if tick != s.LastTick+1 {
		return fmt.Errorf("engine tick %d out of step with simulation tick %d", tick, s.LastTick)
	}
	_, err := s.Step()
	return err
}

// TickMonth is the engine's OnPeriod callback: a summary log line.
func (s *Simulation) TickMonth(tick uint64) {
	r := s.Latest().Readings
	slog.Info("period report",
		"tick", tick,
		"time", SimTime(tick),
		"money_supply", humanize.FormatFloat("#,###.##", r[MoneySupply]),
		"bank", humanize.FormatFloat("#,###.##", r[BankMoney]),
		"deposits", humanize.FormatFloat("#,###.##", r[TotalHouseholdDeposits]),
		"inflation", fmt.Sprintf("%.4f", r[InflationMultiplier]),
		"loans", int(r[LoanCount]),
		"defaults", int(r[Defaults]),
		"drift", fmt.Sprintf("%.2e", r[ConservationDrift]),
	)
}

// Run steps n ticks and returns each tick's readings. It stops at the first fatal error,
// returning the readings gathered so far.
func (s *Simulation) Run(n int) ([]Readings, error) {
	out := make([]Readings, 0, n)
	for i := 0; i < n; i++ {
		r, err := s.Step()
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
