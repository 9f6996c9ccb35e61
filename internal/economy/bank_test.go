package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/macro-sim/internal/config"
	"github.com/talgya/macro-sim/internal/entropy"
)

func newTestHousehold(t *testing.T, id AgentID, cash float64) *Household {
	t.Helper()
	h, err := NewHousehold(id, 0, config.Default(), entropy.Fixed(0.5))
	require.NoError(t, err)
	h.Cash = cash
	return h
}

func requireViolation(t *testing.T, err error, kind ViolationKind) *Violation {
	t.Helper()
	v, ok := AsViolation(err)
	require.True(t, ok, "want %s, got %v", kind, err)
	require.Equal(t, kind, v.Kind, v.Error())
	return v
}

func TestDepositWithdraw(t *testing.T) {
	b := NewBank(2, config.Bank{StartingMoney: 500, LoanTicks: 8, MonthlyInterestRate: 0.005, CompoundInterval: 4})
	h := newTestHousehold(t, 10, 100)

	require.NoError(t, b.Deposit(h, 60, 1))
	require.NoError(t, b.Deposit(h, 10, 2))
	assert.InDelta(t, 30, h.Cash, 1e-9)
	assert.InDelta(t, 70, b.DepositBalance(h.ID()), 1e-9)
	require.Len(t, b.Deposits(), 1, "one deposit per household")
	assert.Equal(t, uint64(1), b.Deposits()[0].OpenedAt)

	require.NoError(t, b.Withdraw(h, 20, 2))
	assert.InDelta(t, 50, h.Cash, 1e-9)
	assert.InDelta(t, 50, b.DepositBalance(h.ID()), 1e-9)

	// Withdrawing the exact balance must go through WithdrawAll.
	v := requireViolation(t, b.Withdraw(h, 50, 3), OverWithdrawal)
	assert.Equal(t, uint64(3), v.Tick)

	got, err := b.WithdrawAll(h, 3)
	require.NoError(t, err)
	assert.InDelta(t, 50, got, 1e-9)
	assert.InDelta(t, 100, h.Cash, 1e-9)
	assert.True(t, b.HasDeposit(h.ID()), "an emptied deposit stays on the ledger")
	assert.InDelta(t, 500, b.Cash, 1e-9, "deposits never touch bank cash")

	requireViolation(t, b.Deposit(h, 101, 3), InsufficientCash)
}

func TestWithdrawWithoutDeposit(t *testing.T) {
	b := NewBank(2, config.Default().Bank)
	h := newTestHousehold(t, 10, 100)

	v := requireViolation(t, b.Withdraw(h, 1, 5), NoDeposit)
	assert.Equal(t, uint64(5), v.Tick)
	_, err := b.WithdrawAll(h, 6)
	v = requireViolation(t, err, NoDeposit)
	assert.Equal(t, uint64(6), v.Tick)
	assert.False(t, b.HasDeposit(h.ID()))
	assert.Zero(t, b.DepositBalance(h.ID()))
}

func TestLoanCompoundsAndDefaults(t *testing.T) {
	b := NewBank(2, config.Bank{StartingMoney: 500, LoanTicks: 8, MonthlyInterestRate: 0.005, CompoundInterval: 4})
	h := newTestHousehold(t, 10, 0)

	b.GrantLoan(h, 100)
	assert.InDelta(t, 400, b.Cash, 1e-9)
	assert.InDelta(t, 100, h.Cash, 1e-9)

	for tick := uint64(1); tick <= 8; tick++ {
		require.NoError(t, b.Step(tick))
		switch tick {
		case 3:
			assert.InDelta(t, 100, b.OutstandingPrincipal(), 1e-9)
		case 4:
			assert.InDelta(t, 100.5, b.OutstandingPrincipal(), 1e-9)
		case 8:
			assert.InDelta(t, 101.0025, b.OutstandingPrincipal(), 1e-9)
		}
	}
	require.Len(t, b.Loans(), 1)
	assert.Equal(t, 8, b.Loans()[0].Weeks)
	assert.InDelta(t, 101.0025, b.MaturingAt(h), 1e-9)
	assert.Zero(t, b.MaturingAt(newTestHousehold(t, 11, 0)))

	// The household only has the 100 it borrowed: tick 9 settles and defaults.
	require.NoError(t, b.Step(9))
	assert.Empty(t, b.Loans())
	assert.InDelta(t, 500, b.Cash, 1e-9)
	assert.Zero(t, h.Cash)
	require.Len(t, b.Defaults, 1)
	d := b.Defaults[0]
	assert.Equal(t, uint64(9), d.Tick)
	assert.Equal(t, h.ID(), d.Borrower)
	assert.InDelta(t, 101.0025, d.Owed, 1e-9)
	assert.InDelta(t, 100, d.Recovered, 1e-9)
	assert.InDelta(t, 1.0025, d.Shortfall, 1e-9)
}

func TestLoanRepaidInFull(t *testing.T) {
	b := NewBank(2, config.Bank{StartingMoney: 500, LoanTicks: 8, MonthlyInterestRate: 0.005, CompoundInterval: 4})
	h := newTestHousehold(t, 10, 100)

	b.GrantLoan(h, 100)
	for tick := uint64(1); tick <= 9; tick++ {
		require.NoError(t, b.Step(tick))
	}
	assert.Empty(t, b.Loans())
	assert.Empty(t, b.Defaults)
	assert.InDelta(t, 501.0025, b.Cash, 1e-9)
	assert.InDelta(t, 98.9975, h.Cash, 1e-9)
}

func TestSettleLoanDrawsDepositFirst(t *testing.T) {
	b := NewBank(2, config.Bank{StartingMoney: 500, LoanTicks: 8, MonthlyInterestRate: 0.005, CompoundInterval: 4})
	h := newTestHousehold(t, 10, 0)

	l := b.GrantLoan(h, 100)
	require.NoError(t, b.Deposit(h, 60, 0))

	_, defaulted := b.SettleLoan(l, 1)
	assert.False(t, defaulted)
	assert.Empty(t, b.Loans())
	assert.Zero(t, b.DepositBalance(h.ID()))
	assert.InDelta(t, 0, h.Cash, 1e-9)
	assert.InDelta(t, 500, b.Cash, 1e-9)
}

func TestDepositInterest(t *testing.T) {
	b := NewBank(2, config.Bank{StartingMoney: 10, LoanTicks: 8, MonthlyInterestRate: 0.005, CompoundInterval: 4})
	early := newTestHousehold(t, 10, 100)
	late := newTestHousehold(t, 11, 100)
	require.NoError(t, b.Deposit(early, 100, 0))
	require.NoError(t, b.Deposit(late, 100, 2))

	for tick := uint64(1); tick <= 4; tick++ {
		require.NoError(t, b.Step(tick))
	}
	assert.InDelta(t, 100.5, b.DepositBalance(early.ID()), 1e-9)
	assert.InDelta(t, 100, b.DepositBalance(late.ID()), 1e-9)
	assert.InDelta(t, 9.5, b.Cash, 1e-9)

	for tick := uint64(5); tick <= 6; tick++ {
		require.NoError(t, b.Step(tick))
	}
	assert.InDelta(t, 100.5, b.DepositBalance(late.ID()), 1e-9)
	assert.InDelta(t, 9, b.Cash, 1e-9)
}

func TestDepositInterestInsolvency(t *testing.T) {
	b := NewBank(2, config.Bank{StartingMoney: 0.1, LoanTicks: 8, MonthlyInterestRate: 0.005, CompoundInterval: 4})
	h := newTestHousehold(t, 10, 100)
	require.NoError(t, b.Deposit(h, 100, 0))

	for tick := uint64(1); tick < 4; tick++ {
		require.NoError(t, b.Step(tick))
	}
	v := requireViolation(t, b.Step(4), Insolvency)
	assert.Equal(t, "bank-2", v.Agent)
	assert.Equal(t, uint64(4), v.Tick)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	b := NewBank(2, config.Default().Bank)
	h := newTestHousehold(t, 10, 100)
	require.NoError(t, b.Deposit(h, 30, 0))

	before := h.Cash
	require.NoError(t, b.Deposit(h, 25, 1))
	require.NoError(t, b.Withdraw(h, 25, 1))
	assert.Equal(t, before, h.Cash)
	assert.Equal(t, 30.0, b.DepositBalance(h.ID()))
}
