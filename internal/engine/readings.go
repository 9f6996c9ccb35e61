package engine

import (
	"fmt"
	"sort"

	"github.com/talgya/macro-sim/internal/economy"
)

// Readings is one tick's set of aggregate measurements, keyed by snake_case label.
type Readings map[string]float64

// Keys returns the labels in sorted order.
func (r Readings) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reading labels that other packages look up directly.
const (
	BankMoney              = "bank_money"
	GovernmentMoney        = "government_money"
	TotalHouseholdMoney    = "total_household_money"
	AvgHouseholdMoney      = "avg_household_money"
	TotalHouseholdDeposits = "total_household_deposits"
	InflationMultiplier    = "inflation_multiplier"
	OutstandingLoans       = "outstanding_loans"
	LoanCount              = "loan_count"
	Defaults               = "defaults"
	CumulativeSubsidy      = "cumulative_subsidy"
	ExportRevenue          = "export_revenue"
	ImportCost             = "import_cost"
	MoneySupply            = "money_supply"
	ConservationDrift      = "conservation_drift"
	EmployedHouseholds     = "employed_households"
)

// measure computes the readings for the population's current state. startMoney is the
// money supply at construction, the reference point for the conservation check.
func measure(p *economy.Population, startMoney float64) Readings {
	r := make(Readings, 40)

	r[BankMoney] = p.Bank.Cash
	r[GovernmentMoney] = p.Government.Treasury
	r[InflationMultiplier] = p.Government.Inflation
	r[CumulativeSubsidy] = p.Government.CumulativeSubsidy
	r[TotalHouseholdDeposits] = p.Bank.TotalDeposits()
	r[OutstandingLoans] = p.Bank.OutstandingPrincipal()
	r[LoanCount] = float64(len(p.Bank.Loans()))
	r[Defaults] = float64(len(p.Bank.Defaults))

	var (
		eduMoney, eduGoods [economy.NumEducation]float64
		eduCount           [economy.NumEducation]int
		total              float64
		employed           int
		housing            = map[string]int{}
	)
	for _, h := range p.Households {
		eduMoney[h.Education] += h.Cash
		eduGoods[h.Education] += h.Goods
		eduCount[h.Education]++
		total += h.Cash
		if h.Employed() {
			employed++
		}
		switch {
		case h.Housing == economy.Rent:
			housing["renting"]++
		case h.Housing.Mortgaged():
			housing["mortgaged"]++
		default:
			housing["owning"]++
		}
	}
	for edu := range eduCount {
		r[fmt.Sprintf("education_%d_avg_money", edu+1)] = avg(eduMoney[edu], eduCount[edu])
		r[fmt.Sprintf("education_%d_avg_goods", edu+1)] = avg(eduGoods[edu], eduCount[edu])
	}
	r[TotalHouseholdMoney] = total
	r[AvgHouseholdMoney] = avg(total, len(p.Households))
	r[EmployedHouseholds] = float64(employed)
	for _, k := range []string{"renting", "mortgaged", "owning"} {
		r["households_"+k] = float64(housing[k])
	}

	var exports, imports float64
	for tier, firms := range p.Firms {
		var money, goods float64
		for _, f := range firms {
			money += f.Cash
			goods += f.Goods
			exports += f.ExportRevenue
			imports += f.ImportCost
		}
		name := economy.Tier(tier).String()
		r[name+"_firm_avg_money"] = avg(money, len(firms))
		r[name+"_firm_avg_goods"] = avg(goods, len(firms))
	}
	r[ExportRevenue] = exports
	r[ImportCost] = imports

	supply := p.MoneySupply()
	r[MoneySupply] = supply
	r[ConservationDrift] = supply - exports + imports - p.Government.CumulativeSubsidy - startMoney
	return r
}

func avg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
