package economy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/macro-sim/internal/config"
)

func TestSplitRange(t *testing.T) {
	want := []Range{{0, 9}, {9, 18}, {18, 27}, {27, 36}}
	if diff := cmp.Diff(want, SplitRange(36, 4)); diff != "" {
		t.Errorf("SplitRange(36, 4) mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, SplitRange(5, 0))
	assert.Equal(t, []Range{{0, 0}}, SplitRange(0, 1))
}

func TestFirmTargets(t *testing.T) {
	p := build(t, config.Default())
	// 130 household goods plus 4 small firms exporting 5 each.
	assert.InDelta(t, 150, p.Firms[TierLarge][0].Target, 1e-9)
	assert.InDelta(t, 75, p.Firms[TierMedium][0].Target, 1e-9)
	assert.InDelta(t, 32.5, p.Firms[TierSmall][0].Target, 1e-9)
	assert.InDelta(t, 5, p.Firms[TierSmall][0].ExportQuantity, 1e-9)
	assert.Zero(t, p.Firms[TierMedium][0].ExportQuantity)
}

func TestUnitCostByTier(t *testing.T) {
	p := build(t, config.Default())
	assert.InDelta(t, 3.5, p.Firms[TierLarge][0].UnitCost(), 1e-9)
	assert.InDelta(t, 6.5, p.Firms[TierMedium][0].UnitCost(), 1e-9)
	assert.InDelta(t, 9.5, p.Firms[TierSmall][0].UnitCost(), 1e-9)

	p.Government.Inflation = 1.1
	assert.InDelta(t, 9.5*1.1, p.Firms[TierSmall][0].UnitCost(), 1e-9)
}

func TestProductionFraction(t *testing.T) {
	f := &Firm{Required: [NumEducation]int{4, 4, 4}}
	f.Hired[0] = make([]*Household, 4)
	f.Hired[1] = make([]*Household, 2)
	assert.InDelta(t, 0.5, f.ProductionFraction(), 1e-9)

	f = &Firm{Required: [NumEducation]int{2, 0, 0}}
	f.Hired[0] = make([]*Household, 1)
	assert.InDelta(t, 0.5, f.ProductionFraction(), 1e-9, "tiers the firm does not need are ignored")

	assert.Equal(t, 1.0, (&Firm{}).ProductionFraction())
}

func TestHiringShortage(t *testing.T) {
	cfg := config.Default()
	cfg.Firms.RequiredEmployees.Large = []int{13, 4, 4}
	p := build(t, cfg)

	large := p.Firms[TierLarge][0]
	assert.Len(t, large.Hired[0], 12)
	assert.Less(t, large.ProductionFraction(), 1.0)

	var labor []Entry
	for _, e := range p.Journal.Drain() {
		if e.Category == "labor" {
			labor = append(labor, e)
		}
	}
	assert.NotEmpty(t, labor)

	// The large firm claimed every low-education worker, so the mediums are short too.
	assert.Empty(t, p.Firms[TierMedium][0].Hired[0])
	assert.False(t, large.Hire(1), "fully staffed tiers refuse extra hires")
}

func TestSellToHouseholdsWithSubsidy(t *testing.T) {
	p := build(t, storeConfig())
	store := p.Firms[TierSmall][0]

	sold, err := store.SellToCustomers(1)
	require.NoError(t, err)
	assert.InDelta(t, 9, sold, 1e-9)

	// Each household gets 5% of 28.5 back from the government before paying.
	for _, h := range p.Households {
		assert.InDelta(t, 3, h.Goods, 1e-9)
		assert.InDelta(t, 100+1.425-28.5, h.Cash, 1e-9)
	}
	assert.InDelta(t, 91, store.Goods, 1e-9)
	assert.InDelta(t, 5000+3*28.5, store.Cash, 1e-9)
	assert.InDelta(t, 3*1.425, p.Government.CumulativeSubsidy, 1e-9)
	assert.InDelta(t, 9, store.MonthlyGoodsSold, 1e-9)

	sold, err = store.SellToCustomers(2)
	require.NoError(t, err)
	assert.Zero(t, sold, "households already hold their requirement")
}

func TestSellShortOfGoods(t *testing.T) {
	cfg := storeConfig()
	cfg.Firms.StartingGoods.Small = 5
	p := build(t, cfg)

	_, err := p.Firms[TierSmall][0].SellToCustomers(1)
	v := requireViolation(t, err, InsufficientGoods)
	assert.Equal(t, "small-firm-3", v.Agent)
}

func TestSellToBrokeCustomer(t *testing.T) {
	p := build(t, storeConfig())
	p.Households[1].Cash = 0

	_, err := p.Firms[TierSmall][0].SellToCustomers(1)
	v := requireViolation(t, err, InsufficientCash)
	assert.Equal(t, p.Households[1].String(), v.Agent)
}

func TestExport(t *testing.T) {
	cfg := storeConfig()
	cfg.Trade.ExportQuantity = 5
	p := build(t, cfg)
	store := p.Firms[TierSmall][0]
	p.Government.Inflation = 1.5

	require.NoError(t, store.Export(1))
	assert.InDelta(t, 95, store.Goods, 1e-9)
	assert.InDelta(t, 5000+5*12*1.5, store.Cash, 1e-9)
	assert.InDelta(t, 90, store.ExportRevenue, 1e-9)
	assert.InDelta(t, 5, store.MonthlyGoodsSold, 1e-9)

	store.Goods = 4
	requireViolation(t, store.Export(2), InsufficientGoods)
}

func TestLargeFirmReplenishes(t *testing.T) {
	p := build(t, config.Default())
	large := p.Firms[TierLarge][0]

	require.NoError(t, large.replenish(1))
	assert.InDelta(t, 150, large.Goods, 1e-9)
	assert.InDelta(t, 20000-150*0.5, large.Cash, 1e-9)
	assert.InDelta(t, 75, large.ImportCost, 1e-9)

	large.Goods, large.Cash = 0, 10
	requireViolation(t, large.replenish(2), InsufficientCash)
}

func TestWagesFollowSales(t *testing.T) {
	p := build(t, config.Default())
	large := p.Firms[TierLarge][0]
	large.MonthlyGoodsSold = 100

	// 100 goods · 3 value added · (0.34 / 4 workers).
	assert.InDelta(t, 25.5, large.Wage(0), 1e-9)
	assert.InDelta(t, 24.75, large.Wage(1), 1e-9)

	worker := large.Hired[0][0]
	before := worker.Cash
	total, err := large.PayWages(4)
	require.NoError(t, err)
	assert.InDelta(t, 4*25.5+8*24.75, total, 1e-9)
	assert.InDelta(t, before+25.5, worker.Cash, 1e-9)
	assert.InDelta(t, 20000-total, large.Cash, 1e-9)
	assert.Zero(t, large.MonthlyGoodsSold, "accumulators reset after payroll")
}

func TestWageDefault(t *testing.T) {
	p := build(t, config.Default())
	large := p.Firms[TierLarge][0]
	large.MonthlyGoodsSold = 100
	large.Cash = 1

	_, err := large.PayWages(4)
	requireViolation(t, err, WageDefault)
	assert.Equal(t, 1.0, large.Cash, "nothing is paid on a default")
}

func TestWagesUseAveragePeriodInflation(t *testing.T) {
	p := build(t, config.Default())
	small := p.Firms[TierSmall][0]
	small.MonthlyGoodsSold = 10
	small.MonthlyInflation = 1 + 1 + 1.2 + 1.2
	small.monthlyPeriods = 4

	assert.InDelta(t, 10*3*0.34*1.1, small.Wage(0), 1e-9)
}
