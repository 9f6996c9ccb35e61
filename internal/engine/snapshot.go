package engine

import (
	"github.com/talgya/macro-sim/internal/economy"
)

const snapshotEvents = 50

// Snapshot is an immutable copy of the economy published after every tick, so
// readers on other goroutines never touch live agent state.
type Snapshot struct {
	Tick     uint64          `json:"tick"`
	Time     string          `json:"time"`
	Readings Readings        `json:"readings"`
	Agents   []AgentView     `json:"agents"`
	Bank     BankView        `json:"bank"`
	Events   []economy.Entry `json:"events"`
}

// AgentView is the read-only state of one agent.
type AgentView struct {
	ID        uint64   `json:"id"`
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Cash      float64  `json:"cash"`
	Goods     float64  `json:"goods,omitempty"`
	Tier      string   `json:"tier,omitempty"`
	Education *int     `json:"education,omitempty"`
	Housing   string   `json:"housing,omitempty"`
	Employer  string   `json:"employer,omitempty"`
	Employees int      `json:"employees,omitempty"`
	Customers []string `json:"customers,omitempty"`
}

// BankView is the bank's ledgers.
type BankView struct {
	Cash     float64       `json:"cash"`
	Loans    []LoanView    `json:"loans"`
	Deposits []DepositView `json:"deposits"`
	Defaults []DefaultView `json:"defaults"`
}

type LoanView struct {
	Borrower  uint64  `json:"borrower"`
	Weeks     int     `json:"weeks"`
	Principal float64 `json:"principal"`
}

type DepositView struct {
	Holder   uint64  `json:"holder"`
	Balance  float64 `json:"balance"`
	OpenedAt uint64  `json:"opened_at"`
}

type DefaultView struct {
	Tick      uint64  `json:"tick"`
	Borrower  uint64  `json:"borrower"`
	Owed      float64 `json:"owed"`
	Recovered float64 `json:"recovered"`
	Shortfall float64 `json:"shortfall"`
}

// Latest returns the most recently published snapshot. It is safe for concurrent use.
func (s *Simulation) Latest() *Snapshot {
	return s.snapshot.Load()
}

// HistorySince returns up to limit readings for ticks after from, oldest first.
// It is safe for concurrent use.
func (s *Simulation) HistorySince(from uint64, limit int) []TickReadings {
	s.histMu.RLock()
	defer s.histMu.RUnlock()

	i := 0
	for i < len(s.History) && s.History[i].Tick <= from {
		i++
	}
	out := s.History[i:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]TickReadings(nil), out...)
}

func (s *Simulation) publish(r Readings) {
	p := s.Pop
	snap := &Snapshot{
		Tick:     s.LastTick,
		Time:     SimTime(s.LastTick),
		Readings: r,
	}

	for _, a := range p.Agents() {
		v := AgentView{ID: uint64(a.ID()), Kind: a.Kind().String(), Name: a.String()}
		switch x := a.(type) {
		case *economy.Government:
			v.Cash = x.Treasury
		case *economy.Bank:
			v.Cash = x.Cash
		case *economy.Firm:
			v.Cash, v.Goods = x.Cash, x.Goods
			v.Tier = x.Tier().String()
			v.Employees = x.Employees()
			v.Customers = x.Customers()
		case *economy.Household:
			edu := x.Education
			v.Cash, v.Goods = x.Cash, x.Goods
			v.Education = &edu
			v.Housing = x.Housing.String()
			if x.Employer != nil {
				v.Employer = x.Employer.String()
			}
		}
		snap.Agents = append(snap.Agents, v)
	}

	snap.Bank.Cash = p.Bank.Cash
	for _, l := range p.Bank.Loans() {
		snap.Bank.Loans = append(snap.Bank.Loans, LoanView{
			Borrower: uint64(l.Borrower.ID()), Weeks: l.Weeks, Principal: l.Principal,
		})
	}
	for _, d := range p.Bank.Deposits() {
		snap.Bank.Deposits = append(snap.Bank.Deposits, DepositView{
			Holder: uint64(d.Holder), Balance: d.Balance, OpenedAt: d.OpenedAt,
		})
	}
	for _, d := range p.Bank.Defaults {
		snap.Bank.Defaults = append(snap.Bank.Defaults, DefaultView{
			Tick: d.Tick, Borrower: uint64(d.Borrower), Owed: d.Owed, Recovered: d.Recovered, Shortfall: d.Shortfall,
		})
	}

	start := 0
	if len(s.Events) > snapshotEvents {
		start = len(s.Events) - snapshotEvents
	}
	snap.Events = append([]economy.Entry(nil), s.Events[start:]...)

	s.snapshot.Store(snap)
}
