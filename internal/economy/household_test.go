package economy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/macro-sim/internal/config"
)

func TestParseHousingState(t *testing.T) {
	for in, want := range map[string]HousingState{
		"rent":       Rent,
		"Mortgage A": MortgageA,
		"mortgage_c": MortgageC,
		" OWN_HOUSE": OwnHouse,
	} {
		got, err := ParseHousingState(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseHousingState("tent")
	assert.Error(t, err)
}

func TestBuyHouseTiers(t *testing.T) {
	tests := []struct {
		cash      float64
		deposit   float64
		want      HousingState
		price     float64
		violation ViolationKind
	}{
		{cash: 400, want: OwnHouse, price: 360},
		{cash: 300, want: MortgageA, price: 270},
		{cash: 200, want: MortgageB, price: 180},
		{cash: 100, want: MortgageC, price: 90},
		{cash: 100, deposit: 300, want: OwnHouse, price: 360},
		{cash: 50, violation: HousingUnaffordable},
	}
	for _, tt := range tests {
		p := build(t, storeConfig())
		h := p.Households[0]
		h.Cash = tt.cash + tt.deposit
		require.NoError(t, p.Bank.Deposit(h, tt.deposit, 0))
		bankBefore := p.Bank.Cash

		err := h.BuyHouse(20)
		if tt.violation != 0 {
			requireViolation(t, err, tt.violation)
			assert.Equal(t, Rent, h.Housing)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, h.Housing)
		assert.Equal(t, uint64(20), h.HousingSince)
		assert.InDelta(t, tt.cash+tt.deposit-tt.price, h.Cash, 1e-9)
		assert.InDelta(t, bankBefore+tt.price, p.Bank.Cash, 1e-9)
		assert.Zero(t, p.Bank.DepositBalance(h.ID()))
	}
}

func TestRentSplit(t *testing.T) {
	p := build(t, storeConfig())
	h := p.Households[0]
	h.Cash = 50

	h.payHousing(3)
	assert.InDelta(t, 50, h.Cash, 1e-9, "rent is due every fourth tick")

	h.payHousing(4)
	assert.InDelta(t, 35, h.Cash, 1e-9)
	assert.InDelta(t, 1000+12, p.Bank.Cash, 1e-9)
	assert.InDelta(t, 500+3, p.Government.Treasury, 1e-9)
}

func TestMortgagePaidOff(t *testing.T) {
	p := build(t, storeConfig())
	h := p.Households[0]
	h.Cash = 1000
	h.Housing = MortgageA
	h.HousingSince = 10

	h.payHousing(14)
	first := 30 * 1.035
	assert.InDelta(t, 1000-first, h.Cash, 1e-9)
	assert.Equal(t, MortgageA, h.Housing)

	h.payHousing(22)
	third := 30 * math.Pow(1.035, 3)
	assert.InDelta(t, 1000-first-third, h.Cash, 1e-9)
	assert.Equal(t, OwnHouse, h.Housing, "a three-period mortgage is paid off after the third payment")
	assert.Equal(t, uint64(22), h.HousingSince)
	assert.InDelta(t, 500+6, p.Government.Treasury, 1e-9)

	entries := p.Journal.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, "housing", entries[0].Category)

	// Owners only pay utilities from then on.
	h.payHousing(26)
	assert.InDelta(t, 1000-first-third-3, h.Cash, 1e-9)
	assert.InDelta(t, 500+9, p.Government.Treasury, 1e-9)
}

func TestConsumeGoods(t *testing.T) {
	p := build(t, storeConfig())
	h := p.Households[0]
	require.InDelta(t, 3, h.Requirement, 1e-9)

	h.Goods = 3 - 1e-12
	require.NoError(t, h.consume(1))
	assert.Zero(t, h.Goods)

	h.Goods = 1
	requireViolation(t, h.consume(2), NegativeGoods)
}

func TestNextOutlay(t *testing.T) {
	p := build(t, storeConfig())
	h := p.Households[0]

	// Needs its full requirement at 9.5 a unit, plus rent on tick 4.
	assert.InDelta(t, 3*9.5, h.nextOutlay(3), 1e-9)
	assert.InDelta(t, 3*9.5+15, h.nextOutlay(4), 1e-9)

	h.Goods = 3
	assert.InDelta(t, 0, h.nextOutlay(3), 1e-9)
}

func TestHouseholdStepDepositsSurplus(t *testing.T) {
	p := build(t, storeConfig())
	h := p.Households[0]
	h.Goods = 3
	h.Cash = 100

	require.NoError(t, h.Step(1))
	// With the reserve on it keeps next tick's 28.5 for goods, above the rent floor of 15.
	assert.InDelta(t, 28.5, h.Cash, 1e-9)
	assert.InDelta(t, 71.5, p.Bank.DepositBalance(h.ID()), 1e-9)
}

func TestHouseholdStepFixedFloor(t *testing.T) {
	cfg := storeConfig()
	cfg.Household.LiquidityReserve = false
	p := build(t, cfg)
	renter, owner := p.Households[0], p.Households[1]
	owner.Housing = OwnHouse
	for _, h := range []*Household{renter, owner} {
		h.Goods = 3
		h.Cash = 100
		require.NoError(t, h.Step(1))
	}

	assert.InDelta(t, 15, renter.Cash, 1e-9)
	assert.InDelta(t, 85, p.Bank.DepositBalance(renter.ID()), 1e-9)
	assert.InDelta(t, 40, owner.Cash, 1e-9)
	assert.InDelta(t, 60, p.Bank.DepositBalance(owner.ID()), 1e-9)
	assert.Empty(t, p.Bank.Loans(), "without the reserve nobody tops up")

	poor := p.Households[2]
	poor.Goods = 3
	poor.Cash = 10
	require.NoError(t, poor.Step(1))
	assert.InDelta(t, 10, poor.Cash, 1e-9)
	assert.False(t, p.Bank.HasDeposit(poor.ID()))
}

func TestHousingOverdraftIsJournaled(t *testing.T) {
	cfg := storeConfig()
	cfg.Household.BorrowWhenShort = false
	p := build(t, cfg)
	h := p.Households[0]
	h.Cash = 10

	h.payHousing(4)
	assert.InDelta(t, -5, h.Cash, 1e-9)
	assert.InDelta(t, 1000+12, p.Bank.Cash, 1e-9)
	entries := p.Journal.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, "overdraft", entries[0].Category)
	assert.Equal(t, uint64(4), entries[0].Tick)
	assert.Contains(t, entries[0].Description, "rent")

	h.Cash = 15
	h.payHousing(8)
	assert.Zero(t, h.Cash)
	assert.Empty(t, p.Journal.Drain(), "paying down to exactly zero is not an overdraft")
}

func TestHouseholdStepBorrowsWhenShort(t *testing.T) {
	p := build(t, storeConfig())
	h := p.Households[0]
	h.Goods = 3
	h.Cash = 10

	require.NoError(t, h.Step(1))
	assert.InDelta(t, 28.5, h.Cash, 1e-9)
	require.Len(t, p.Bank.Loans(), 1)
	assert.InDelta(t, 18.5, p.Bank.OutstandingPrincipal(), 1e-9)
	assert.InDelta(t, 1000-18.5, p.Bank.Cash, 1e-9)
}

func TestHouseholdStepWithdrawsBeforeBorrowing(t *testing.T) {
	p := build(t, storeConfig())
	h := p.Households[0]
	h.Goods = 3
	h.Cash = 40
	require.NoError(t, p.Bank.Deposit(h, 30, 0))

	require.NoError(t, h.Step(1))
	assert.InDelta(t, 28.5, h.Cash, 1e-9)
	assert.InDelta(t, 11.5, p.Bank.DepositBalance(h.ID()), 1e-9)
	assert.Empty(t, p.Bank.Loans())
}

func TestHouseholdStepWithoutBorrowing(t *testing.T) {
	cfg := storeConfig()
	cfg.Household.BorrowWhenShort = false
	p := build(t, cfg)
	h := p.Households[0]
	h.Goods = 3
	h.Cash = 10

	require.NoError(t, h.Step(1))
	assert.InDelta(t, 10, h.Cash, 1e-9)
	assert.Empty(t, p.Bank.Loans())
}

func TestScheduledHousePurchase(t *testing.T) {
	cfg := storeConfig()
	cfg.Housing.BuyHouseTick = 2
	p := build(t, cfg)
	h := p.Households[0]
	h.Goods = 6
	h.Cash = 400

	require.NoError(t, h.Step(1))
	assert.Equal(t, Rent, h.Housing)
	require.NoError(t, h.Step(2))
	assert.Equal(t, OwnHouse, h.Housing)
	assert.Equal(t, uint64(2), h.HousingSince)
}

func TestHouseholdDiscountByEducation(t *testing.T) {
	cfg := config.Default()
	p := build(t, cfg)
	for _, h := range p.Households {
		assert.Equal(t, cfg.Household.TemporalDiscount[h.Education], h.DiscountRate, h.String())
	}
}
