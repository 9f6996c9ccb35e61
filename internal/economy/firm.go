package economy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/macro-sim/internal/config"
)

// Tier is a firm's position in the supply chain.
type Tier uint8

const (
	TierLarge Tier = iota
	TierMedium
	TierSmall
)

// NumTiers is the number of firm tiers.
const NumTiers = 3

func (t Tier) String() string {
	switch t {
	case TierLarge:
		return "large"
	case TierMedium:
		return "medium"
	case TierSmall:
		return "small"
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

// TierSpec is the data that distinguishes one tier's behaviour from another's.
type TierSpec struct {
	Tier        Tier
	Markups     int  // value-added markups stacked on the import price
	Replenishes bool // imports its own goods instead of buying upstream
	Exports     bool // sells a fixed quantity abroad every goods period
	Subsidized  bool // routes the government subsidy to its household customers
}

// Tiers describes each tier, outermost first.
var Tiers = [NumTiers]TierSpec{
	TierLarge:  {Tier: TierLarge, Markups: 1, Replenishes: true},
	TierMedium: {Tier: TierMedium, Markups: 2},
	TierSmall:  {Tier: TierSmall, Markups: 3, Exports: true, Subsidized: true},
}

// Range is a half-open [Lo, Hi) slice of a customer tier.
type Range struct {
	Lo, Hi int
}

// SplitRange partitions n customers into m contiguous, equal, non-overlapping ranges.
func SplitRange(n, m int) []Range {
	if m <= 0 {
		return nil
	}
	per := n / m
	out := make([]Range, m)
	for i := range out {
		out[i] = Range{Lo: per * i, Hi: per * (i + 1)}
	}
	return out
}

// customer is anything a firm sells to: the next tier's firms, or households.
type customer interface {
	fmt.Stringer
	outstanding() float64
	cashOnHand() float64
	receive(goods, payment float64)
}

// Firm is one producer. Tier differences live in its TierSpec, not in separate types.
type Firm struct {
	id    AgentID
	spec  TierSpec
	Cash  float64
	Goods float64

	Required [NumEducation]int
	Hired    [NumEducation][]*Household

	// Target is the goods the firm holds at the start of each goods period, before exports.
	Target         float64
	ExportQuantity float64

	MonthlyGoodsSold float64
	MonthlyInflation float64
	monthlyPeriods   int

	ExportRevenue float64 // cumulative money brought in from abroad
	ImportCost    float64 // cumulative money sent abroad
	WagesPaid     float64 // cumulative

	customerRange Range
	customers     []customer
	households    []*Household
	gov           *Government
	journal       *Journal

	valueAdded    float64
	importPrice   float64
	exportPrice   float64
	share         []float64
	goodsInterval int
	wagesInterval int
	wagesOffset   int
}

// NewFirm creates a firm of the given tier serving the customer range r of the next tier down.
func NewFirm(id AgentID, tier Tier, r Range, cfg *config.Config) *Firm {
	f := &Firm{
		id:            id,
		spec:          Tiers[tier],
		customerRange: r,
		valueAdded:    cfg.Firms.ValueAdded,
		importPrice:   cfg.Trade.ImportPrice,
		exportPrice:   cfg.Trade.ExportPrice,
		share:         cfg.Firms.ProductionShare,
		goodsInterval: cfg.Firms.GoodsInterval,
		wagesInterval: cfg.Firms.WagesInterval,
		wagesOffset:   cfg.Firms.WagesOffset,
	}

	p := cfg.Population
	produced := cfg.Firms.GoodsProduced
	exported := cfg.Trade.ExportQuantity * float64(p.SmallFirms)

	var labor []int
	switch tier {
	case TierLarge:
		f.Cash, f.Goods = cfg.Firms.StartingMoney.Large, cfg.Firms.StartingGoods.Large
		f.Target = (produced + exported) / float64(max(p.LargeFirms, 1))
		labor = cfg.Firms.RequiredEmployees.Large
	case TierMedium:
		f.Cash, f.Goods = cfg.Firms.StartingMoney.Medium, cfg.Firms.StartingGoods.Medium
		f.Target = (produced + exported) / float64(max(p.MediumFirms, 1))
		labor = cfg.Firms.RequiredEmployees.Medium
	case TierSmall:
		f.Cash, f.Goods = cfg.Firms.StartingMoney.Small, cfg.Firms.StartingGoods.Small
		f.Target = produced / float64(max(p.SmallFirms, 1))
		f.ExportQuantity = cfg.Trade.ExportQuantity
		labor = cfg.Firms.RequiredEmployees.Small
	}
	copy(f.Required[:], labor)
	return f
}

func (f *Firm) ID() AgentID    { return f.id }
func (f *Firm) Kind() Kind     { return KindFirm }
func (f *Firm) Tier() Tier     { return f.spec.Tier }
func (f *Firm) Spec() TierSpec { return f.spec }
func (f *Firm) String() string { return fmt.Sprintf("%s-firm-%d", f.spec.Tier, f.id) }

// Customers returns the names of the agents this firm sells to, in order.
func (f *Firm) Customers() []string {
	out := make([]string, len(f.customers))
	for i, c := range f.customers {
		out[i] = c.String()
	}
	return out
}

// ResolveReferences wires the government, the hiring pool and the customer slice.
func (f *Firm) ResolveReferences(p *Population) error {
	if p.Government == nil {
		return violate(UnresolvedReference, f, 0, "no government in population")
	}
	f.gov = p.Government
	f.households = p.Households
	f.journal = p.Journal

	r := f.customerRange
	f.customers = f.customers[:0]
	switch f.spec.Tier {
	case TierLarge, TierMedium:
		next := p.Firms[f.spec.Tier+1]
		if r.Hi > len(next) || r.Lo > r.Hi {
			return violate(UnresolvedReference, f, 0, "customer range %v outside %d %s firms", r, len(next), f.spec.Tier+1)
		}
		for _, c := range next[r.Lo:r.Hi] {
			f.customers = append(f.customers, c)
		}
	case TierSmall:
		if r.Hi > len(p.Households) || r.Lo > r.Hi {
			return violate(UnresolvedReference, f, 0, "customer range %v outside %d households", r, len(p.Households))
		}
		for _, h := range p.Households[r.Lo:r.Hi] {
			h.store = f
			f.customers = append(f.customers, h)
		}
	}
	return nil
}

// UnitCost is the tier's price per unit at the current inflation multiplier.
func (f *Firm) UnitCost() float64 {
	return f.unitCostAt(f.gov.Inflation)
}

func (f *Firm) unitCostAt(inflation float64) float64 {
	return (f.importPrice + f.valueAdded*float64(f.spec.Markups)) * inflation
}

// ProductionFraction is the mean staffing ratio over education tiers the firm needs.
// A firm that needs no labour runs at full capacity.
func (f *Firm) ProductionFraction() float64 {
	sum, n := 0.0, 0
	for edu, req := range f.Required {
		if req == 0 {
			continue
		}
		sum += float64(len(f.Hired[edu])) / float64(req)
		n++
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// HireLabor fills every education tier's requirement from the unemployed population.
// Shortages are logged, not fatal.
func (f *Firm) HireLabor() {
	for edu, req := range f.Required {
		for len(f.Hired[edu]) < req {
			if !f.Hire(edu) {
				slog.Warn("labor shortage",
					"firm", f.String(),
					"education", edu,
					"hired", len(f.Hired[edu]),
					"required", req,
				)
				f.journal.Record(0, "labor", "%s hired %d of %d education-%d workers", f, len(f.Hired[edu]), req, edu)
				break
			}
		}
	}
}

// Hire claims the first unemployed household of the given education tier, in
// registration order. It refuses, with a warning, once the tier is fully staffed.
func (f *Firm) Hire(edu int) bool {
	if len(f.Hired[edu]) >= f.Required[edu] {
		slog.Warn("hiring beyond requirement ignored",
			"firm", f.String(),
			"education", edu,
			"required", f.Required[edu],
		)
		return false
	}
	for _, h := range f.households {
		if h.Education != edu || h.Employed() {
			continue
		}
		h.Employer = f
		f.Hired[edu] = append(f.Hired[edu], h)
		return true
	}
	return false
}

// Employees counts hired workers across all education tiers.
func (f *Firm) Employees() int {
	n := 0
	for _, hired := range f.Hired {
		n += len(hired)
	}
	return n
}

// Step replenishes (large tier), sells and exports every goods period, and pays wages.
func (f *Firm) Step(tick uint64) error {
	if f.spec.Replenishes {
		if err := f.replenish(tick); err != nil {
			return err
		}
	}
	if due(tick, 0, f.goodsInterval) {
		f.MonthlyInflation += f.gov.Inflation
		f.monthlyPeriods++
		if _, err := f.SellToCustomers(tick); err != nil {
			return err
		}
		if f.spec.Exports {
			if err := f.Export(tick); err != nil {
				return err
			}
		}
	}
	if due(tick, uint64(f.wagesOffset), f.wagesInterval) {
		if _, err := f.PayWages(tick); err != nil {
			return err
		}
	}
	return nil
}

// replenish imports goods up to the firm's staffed capacity, paying the import price.
func (f *Firm) replenish(tick uint64) error {
	qty := math.Max(f.Target*f.ProductionFraction()-f.Goods, 0)
	if qty == 0 {
		return nil
	}
	cost := qty * f.importPrice * f.gov.Inflation
	if cost > f.Cash+moneyEpsilon {
		return violate(InsufficientCash, f, tick, "import of %.4f goods costs %.4f, cash %.4f", qty, cost, f.Cash)
	}
	f.Cash -= cost
	f.ImportCost += cost
	f.Goods += qty
	return nil
}

// SellToCustomers tops every customer up to its target and charges it for the goods.
// It returns the quantity sold.
func (f *Firm) SellToCustomers(tick uint64) (float64, error) {
	unit := f.UnitCost() * f.ProductionFraction()
	sold := 0.0
	for _, c := range f.customers {
		qty := c.outstanding()
		if qty <= 0 {
			continue
		}
		if qty > f.Goods+goodsEpsilon {
			return sold, violate(InsufficientGoods, f, tick, "%s needs %.4f goods, %s holds %.4f", c, qty, f, f.Goods)
		}
		if h, ok := c.(*Household); ok && f.spec.Subsidized {
			f.gov.ProvideSubsidy(h, unit, h.DiscountRate, qty)
		}
		price := unit * qty
		if price > c.cashOnHand()+moneyEpsilon {
			return sold, violate(InsufficientCash, c, tick, "cannot pay %.4f to %s, cash %.4f", price, f, c.cashOnHand())
		}
		c.receive(qty, price)
		f.Goods = math.Max(f.Goods-qty, 0)
		f.Cash += price
		sold += qty
	}
	f.MonthlyGoodsSold += sold
	return sold, nil
}

// Export sells the firm's export quantity abroad. The revenue is new money.
func (f *Firm) Export(tick uint64) error {
	qty := f.ExportQuantity
	if qty <= 0 {
		return nil
	}
	if qty > f.Goods+goodsEpsilon {
		return violate(InsufficientGoods, f, tick, "export of %.4f goods, holds %.4f", qty, f.Goods)
	}
	revenue := qty * f.exportPrice * f.gov.Inflation
	f.Goods = math.Max(f.Goods-qty, 0)
	f.Cash += revenue
	f.ExportRevenue += revenue
	f.MonthlyGoodsSold += qty
	return nil
}

// Wage is what one worker of the given education tier earns for the current period.
func (f *Firm) Wage(edu int) float64 {
	if f.Required[edu] == 0 {
		return 0
	}
	avgInflation := f.gov.Inflation
	if f.monthlyPeriods > 0 {
		avgInflation = f.MonthlyInflation / float64(f.monthlyPeriods)
	}
	return f.MonthlyGoodsSold * f.valueAdded * (f.share[edu] / float64(f.Required[edu])) * avgInflation
}

// PayWages pays every worker and resets the period accumulators. If the total payroll
// exceeds the firm's cash nothing is paid and the firm has defaulted.
func (f *Firm) PayWages(tick uint64) (float64, error) {
	var wages [NumEducation]float64
	total := 0.0
	for edu, hired := range f.Hired {
		if len(hired) == 0 {
			continue
		}
		wages[edu] = f.Wage(edu)
		total += wages[edu] * float64(len(hired))
	}
	if total > f.Cash+moneyEpsilon {
		return 0, violate(WageDefault, f, tick, "payroll %.4f exceeds cash %.4f", total, f.Cash)
	}
	for edu, hired := range f.Hired {
		for _, h := range hired {
			h.Cash += wages[edu]
			f.Cash -= wages[edu]
		}
	}
	f.WagesPaid += total
	f.MonthlyGoodsSold = 0
	f.MonthlyInflation = 0
	f.monthlyPeriods = 0
	return total, nil
}

// Customer methods: a firm buys from the tier above it.

// outstanding is the goods needed to reach the firm's target, plus its export obligation.
func (f *Firm) outstanding() float64 {
	need := f.Target - f.Goods
	if f.spec.Exports {
		need += f.ExportQuantity
	}
	return math.Max(need, 0)
}

func (f *Firm) cashOnHand() float64 { return f.Cash }

func (f *Firm) receive(goods, payment float64) {
	f.Goods += goods
	f.Cash -= payment
}
