package economy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/macro-sim/internal/config"
)

// Bank owns the loan and deposit ledgers.
type Bank struct {
	id   AgentID
	Cash float64

	loans        []*Loan
	deposits     []*Deposit // insertion order, so compounding sums are reproducible
	depositIndex map[AgentID]*Deposit

	Defaults []Default

	loanTicks        int
	rate             float64
	compoundInterval int
	journal          *Journal
}

// NewBank creates a bank with empty ledgers of its own.
func NewBank(id AgentID, cfg config.Bank) *Bank {
	return &Bank{
		id:               id,
		Cash:             cfg.StartingMoney,
		depositIndex:     make(map[AgentID]*Deposit),
		loanTicks:        cfg.LoanTicks,
		rate:             cfg.MonthlyInterestRate,
		compoundInterval: cfg.CompoundInterval,
	}
}

func (b *Bank) ID() AgentID    { return b.id }
func (b *Bank) Kind() Kind     { return KindBank }
func (b *Bank) String() string { return fmt.Sprintf("bank-%d", b.id) }

// ResolveReferences picks up the shared journal.
func (b *Bank) ResolveReferences(p *Population) error {
	b.journal = p.Journal
	return nil
}

// GrantLoan moves amount from the bank to h and opens a ledger entry.
// Checking that the bank can afford it is the caller's job.
func (b *Bank) GrantLoan(h *Household, amount float64) *Loan {
	h.Cash += amount
	b.Cash -= amount
	l := &Loan{Borrower: h, Principal: amount}
	b.loans = append(b.loans, l)
	return l
}

// SettleLoan collects l now and removes it from the ledger.
func (b *Bank) SettleLoan(l *Loan, tick uint64) (Default, bool) {
	for i, cur := range b.loans {
		if cur == l {
			b.loans = append(b.loans[:i], b.loans[i+1:]...)
			break
		}
	}
	return b.collect(l, tick)
}

// collect recovers a loan from the borrower's deposit, then cash. It does not touch the ledger.
func (b *Bank) collect(l *Loan, tick uint64) (Default, bool) {
	h := l.Borrower
	remaining := l.Principal

	if d := b.depositIndex[h.id]; d != nil && d.Balance > 0 {
		take := math.Min(d.Balance, remaining)
		d.Balance -= take
		b.Cash += take
		remaining -= take
	}
	if remaining > moneyEpsilon && h.Cash > 0 {
		take := math.Min(h.Cash, remaining)
		h.Cash -= take
		b.Cash += take
		remaining -= take
	}
	if remaining <= moneyEpsilon {
		return Default{}, false
	}

	d := Default{
		Tick:      tick,
		Borrower:  h.id,
		Owed:      l.Principal,
		Recovered: l.Principal - remaining,
		Shortfall: remaining,
	}
	b.Defaults = append(b.Defaults, d)
	slog.Warn("loan default",
		"tick", tick,
		"household", h.String(),
		"owed", fmt.Sprintf("%.2f", d.Owed),
		"recovered", fmt.Sprintf("%.2f", d.Recovered),
		"shortfall", fmt.Sprintf("%.2f", d.Shortfall),
	)
	b.journal.Record(tick, "default", "%s defaulted on %.2f, repaid %.2f", h, d.Owed, d.Recovered)
	return d, true
}

// Deposit moves amount from h's cash into its deposit, opening one at tick if needed.
func (b *Bank) Deposit(h *Household, amount float64, tick uint64) error {
	if amount <= 0 {
		return nil
	}
	if amount > h.Cash+moneyEpsilon {
		return violate(InsufficientCash, h, tick, "deposit of %.4f exceeds cash %.4f", amount, h.Cash)
	}
	d := b.depositIndex[h.id]
	if d == nil {
		d = &Deposit{Holder: h.id, OpenedAt: tick}
		b.depositIndex[h.id] = d
		b.deposits = append(b.deposits, d)
	}
	d.Balance += amount
	h.Cash -= amount
	return nil
}

// Withdraw moves amount from h's deposit to its cash. The amount must be strictly
// less than the balance; use WithdrawAll to empty a deposit.
func (b *Bank) Withdraw(h *Household, amount float64, tick uint64) error {
	d := b.depositIndex[h.id]
	if d == nil {
		return violate(NoDeposit, h, tick, "withdrawal of %.4f with no deposit", amount)
	}
	if amount >= d.Balance {
		return violate(OverWithdrawal, h, tick, "withdrawal of %.4f from balance %.4f", amount, d.Balance)
	}
	d.Balance -= amount
	h.Cash += amount
	return nil
}

// WithdrawAll empties h's deposit into its cash and returns the amount moved.
func (b *Bank) WithdrawAll(h *Household, tick uint64) (float64, error) {
	d := b.depositIndex[h.id]
	if d == nil {
		return 0, violate(NoDeposit, h, tick, "withdraw-all with no deposit")
	}
	amount := d.Balance
	d.Balance = 0
	h.Cash += amount
	return amount, nil
}

// HasDeposit reports whether the household has a deposit entry.
func (b *Bank) HasDeposit(id AgentID) bool {
	_, ok := b.depositIndex[id]
	return ok
}

// DepositBalance returns the household's balance, or 0.
func (b *Bank) DepositBalance(id AgentID) float64 {
	if d := b.depositIndex[id]; d != nil {
		return d.Balance
	}
	return 0
}

// TotalDeposits sums every deposit balance.
func (b *Bank) TotalDeposits() float64 {
	total := 0.0
	for _, d := range b.deposits {
		total += d.Balance
	}
	return total
}

// Loans returns a copy of the loan ledger.
func (b *Bank) Loans() []Loan {
	out := make([]Loan, len(b.loans))
	for i, l := range b.loans {
		out[i] = *l
	}
	return out
}

// Deposits returns a copy of the deposit ledger in opening order.
func (b *Bank) Deposits() []Deposit {
	out := make([]Deposit, len(b.deposits))
	for i, d := range b.deposits {
		out[i] = *d
	}
	return out
}

// OutstandingPrincipal sums the principal of all open loans.
func (b *Bank) OutstandingPrincipal() float64 {
	total := 0.0
	for _, l := range b.loans {
		total += l.Principal
	}
	return total
}

// MaturingAt returns what h will owe on loans the bank force-settles at the next Step.
func (b *Bank) MaturingAt(h *Household) float64 {
	total := 0.0
	for _, l := range b.loans {
		if l.Borrower != h || l.Weeks+1 <= b.loanTicks {
			continue
		}
		p := l.Principal
		if b.compoundInterval > 0 && (l.Weeks+1)%b.compoundInterval == 0 {
			p *= 1 + b.rate
		}
		total += p
	}
	return total
}

// Step ages and compounds loans, forces settlement of expired ones, and pays deposit interest.
func (b *Bank) Step(tick uint64) error {
	kept := b.loans[:0]
	for _, l := range b.loans {
		l.Weeks++
		if b.compoundInterval > 0 && l.Weeks%b.compoundInterval == 0 {
			l.Principal *= 1 + b.rate
		}
		if l.Weeks > b.loanTicks {
			b.collect(l, tick)
			continue
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(b.loans); i++ {
		b.loans[i] = nil
	}
	b.loans = kept

	for _, d := range b.deposits {
		if tick <= d.OpenedAt || !due(tick, d.OpenedAt, b.compoundInterval) {
			continue
		}
		interest := d.Balance * b.rate
		if interest <= 0 {
			continue
		}
		if b.Cash < interest {
			return violate(Insolvency, b, tick, "cannot pay %.4f interest on deposit of agent %d with cash %.4f",
				interest, d.Holder, b.Cash)
		}
		b.Cash -= interest
		d.Balance += interest
	}
	return nil
}
