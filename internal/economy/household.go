package economy

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/talgya/macro-sim/internal/config"
	"github.com/talgya/macro-sim/internal/entropy"
)

// HousingState is the household's housing strategy.
type HousingState uint8

const (
	Rent HousingState = iota
	MortgageA
	MortgageB
	MortgageC
	OwnHouse
)

var housingNames = [...]string{"rent", "mortgage_a", "mortgage_b", "mortgage_c", "own_house"}

func (s HousingState) String() string {
	if int(s) < len(housingNames) {
		return housingNames[s]
	}
	return fmt.Sprintf("housing(%d)", uint8(s))
}

// ParseHousingState accepts the names produced by String, case-insensitively.
func ParseHousingState(name string) (HousingState, error) {
	n := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
	for i, s := range housingNames {
		if s == n {
			return HousingState(i), nil
		}
	}
	return Rent, fmt.Errorf("unknown housing state %q", name)
}

// Mortgaged reports whether s is one of the mortgage tiers.
func (s HousingState) Mortgaged() bool {
	return s == MortgageA || s == MortgageB || s == MortgageC
}

// mortgageTerm is the number of periods after which a mortgage is paid off.
func (s HousingState) mortgageTerm() float64 {
	switch s {
	case MortgageA:
		return 3
	case MortgageB:
		return 6
	case MortgageC:
		return 9
	}
	return 0
}

// houseTiers are checked in order; the first affordable one wins.
var houseTiers = []struct {
	state HousingState
	price float64
}{
	{OwnHouse, 360},
	{MortgageA, 270},
	{MortgageB, 180},
	{MortgageC, 90},
}

// Household is a consumer, worker and depositor.
type Household struct {
	id           AgentID
	Education    int
	Cash         float64
	Goods        float64
	Requirement  float64 // goods to consume at the next tick, redrawn every tick
	DiscountRate float64 // temporal discount; the subsidy covers 1−rate of the price
	Housing      HousingState
	HousingSince uint64
	Employer     *Firm

	bank    *Bank
	gov     *Government
	store   *Firm
	journal *Journal
	src     entropy.Source

	hh      config.Household
	housing config.Housing
}

// NewHousehold creates a household and draws its first goods requirement from src.
func NewHousehold(id AgentID, education int, cfg *config.Config, src entropy.Source) (*Household, error) {
	state, err := ParseHousingState(cfg.Household.StartingStrategy)
	if err != nil {
		return nil, err
	}
	h := &Household{
		id:           id,
		Education:    education,
		Cash:         cfg.Household.StartingMoney,
		Goods:        cfg.Household.StartingGoods,
		DiscountRate: cfg.Household.TemporalDiscount[education],
		Housing:      state,
		src:          src,
		hh:           cfg.Household,
		housing:      cfg.Housing,
	}
	h.drawRequirement()
	return h, nil
}

func (h *Household) ID() AgentID    { return h.id }
func (h *Household) Kind() Kind     { return KindHousehold }
func (h *Household) String() string { return fmt.Sprintf("household-%d", h.id) }

// Employed reports whether a firm has hired the household.
func (h *Household) Employed() bool { return h.Employer != nil }

// Store returns the small firm the household buys from, if any.
func (h *Household) Store() *Firm { return h.store }

// ResolveReferences wires the bank and government. The store is assigned by the
// small firm whose customer range covers this household.
func (h *Household) ResolveReferences(p *Population) error {
	if p.Bank == nil {
		return violate(UnresolvedReference, h, 0, "no bank in population")
	}
	if p.Government == nil {
		return violate(UnresolvedReference, h, 0, "no government in population")
	}
	h.bank = p.Bank
	h.gov = p.Government
	h.journal = p.Journal
	return nil
}

// Step pays housing costs, consumes goods and manages savings for one tick.
func (h *Household) Step(tick uint64) error {
	h.payHousing(tick)

	if h.housing.BuyHouseTick > 0 && tick == h.housing.BuyHouseTick && h.Housing == Rent {
		if err := h.BuyHouse(tick); err != nil {
			return err
		}
	}

	if err := h.consume(tick); err != nil {
		return err
	}
	h.drawRequirement()

	if !h.hh.LiquidityReserve {
		return h.depositAbove(h.floor(), tick)
	}
	target := h.nextOutlay(tick + 1)
	if err := h.depositAbove(math.Max(h.floor(), target), tick); err != nil {
		return err
	}
	return h.ensureLiquidity(target, tick)
}

// depositAbove banks whatever cash exceeds floor.
func (h *Household) depositAbove(floor float64, tick uint64) error {
	if h.Cash <= floor {
		return nil
	}
	return h.bank.Deposit(h, h.Cash-floor, tick)
}

// payHousing makes whatever rent, mortgage or utilities payment is due on tick.
func (h *Household) payHousing(tick uint64) {
	periods := float64(tick-h.HousingSince) / TicksPerPeriod

	switch {
	case h.Housing == Rent:
		if due(tick, h.HousingSince, h.housing.RentInterval) {
			h.payLandlord(tick, "rent", h.housing.Rent)
		}
	case h.Housing.Mortgaged():
		if due(tick, h.HousingSince, h.housing.MortgageInterval) {
			h.payLandlord(tick, "mortgage", h.mortgagePayment(tick))
		}
		if periods >= h.Housing.mortgageTerm() {
			h.journal.Record(tick, "housing", "%s paid off %s", h, h.Housing)
			h.Housing = OwnHouse
			h.HousingSince = tick
		}
	case h.Housing == OwnHouse:
		if due(tick, h.HousingSince, h.housing.UtilitiesInterval) {
			h.pay(tick, "utilities", h.housing.UtilitiesCost)
			h.gov.Collect(h.housing.UtilitiesCost)
		}
	}
}

// payLandlord splits a housing payment: the bank keeps all but the utilities cut.
func (h *Household) payLandlord(tick uint64, what string, amount float64) {
	h.pay(tick, what, amount)
	h.bank.Cash += amount - h.housing.UtilitiesCost
	h.gov.Collect(h.housing.UtilitiesCost)
}

// pay takes a housing payment out of cash. Payments are never refused: one the
// household cannot cover leaves it overdrawn, and that is journaled.
func (h *Household) pay(tick uint64, what string, amount float64) {
	h.Cash -= amount
	if h.Cash >= -moneyEpsilon {
		return
	}
	slog.Warn("household overdrawn", "tick", tick, "household", h.String(), "payment", what,
		"amount", fmt.Sprintf("%.2f", amount), "cash", fmt.Sprintf("%.2f", h.Cash))
	h.journal.Record(tick, "overdraft", "%s overdrawn to %.2f paying %.2f %s", h, h.Cash, amount, what)
}

func (h *Household) mortgagePayment(tick uint64) float64 {
	periods := float64(tick-h.HousingSince) / TicksPerPeriod
	return h.housing.MortgageCost * math.Pow(1+h.housing.MonthlyMortgageRate, periods)
}

// BuyHouse empties the household's deposit and takes the best housing tier it can afford.
// The purchase price goes to the bank.
func (h *Household) BuyHouse(tick uint64) error {
	if h.bank.HasDeposit(h.id) {
		if _, err := h.bank.WithdrawAll(h, tick); err != nil {
			return err
		}
	}
	for _, t := range houseTiers {
		if h.Cash < t.price {
			continue
		}
		h.Cash -= t.price
		h.bank.Cash += t.price
		h.Housing = t.state
		h.HousingSince = tick
		slog.Info("house bought", "tick", tick, "household", h.String(), "state", t.state.String(), "price", t.price)
		h.journal.Record(tick, "housing", "%s bought into %s for %.0f", h, t.state, t.price)
		return nil
	}
	return violate(HousingUnaffordable, h, tick, "cash %.2f is below the cheapest tier (%.0f)",
		h.Cash, houseTiers[len(houseTiers)-1].price)
}

// consume eats this tick's requirement. Anything within goodsEpsilon of zero counts as zero.
func (h *Household) consume(tick uint64) error {
	left := h.Goods - h.Requirement
	if left < -goodsEpsilon {
		return violate(NegativeGoods, h, tick, "needs %.4f goods but holds %.4f", h.Requirement, h.Goods)
	}
	h.Goods = math.Max(left, 0)
	return nil
}

func (h *Household) drawRequirement() {
	lo := h.hh.GoodsConsumption - h.hh.ConsumptionRange
	hi := h.hh.GoodsConsumption + h.hh.ConsumptionRange
	h.Requirement = math.Max(entropy.Uniform(h.src, lo, hi), 0)
}

// floor is the cash the household keeps on hand rather than deposit.
func (h *Household) floor() float64 {
	if h.Housing == Rent {
		return h.hh.RentFloor
	}
	return h.hh.OwnerFloor
}

// outstanding is how many goods the household still needs to cover its requirement.
func (h *Household) outstanding() float64 {
	return math.Max(h.Requirement-h.Goods, 0)
}

// nextOutlay estimates what the household must pay out on tick: loans the bank will
// settle, its goods purchase at the store's price, and any housing payment falling due.
func (h *Household) nextOutlay(tick uint64) float64 {
	total := h.bank.MaturingAt(h)
	if h.store != nil {
		total += h.outstanding() * h.store.unitCostAt(h.gov.InflationAt(tick)) * h.store.ProductionFraction()
	}
	switch {
	case h.Housing == Rent:
		if due(tick, h.HousingSince, h.housing.RentInterval) {
			total += h.housing.Rent
		}
	case h.Housing.Mortgaged():
		if due(tick, h.HousingSince, h.housing.MortgageInterval) {
			total += h.mortgagePayment(tick)
		}
	case h.Housing == OwnHouse:
		if due(tick, h.HousingSince, h.housing.UtilitiesInterval) {
			total += h.housing.UtilitiesCost
		}
	}
	return total
}

// ensureLiquidity tops cash up to target from the deposit first, then with a bank loan.
func (h *Household) ensureLiquidity(target float64, tick uint64) error {
	short := target - h.Cash
	if short <= moneyEpsilon {
		return nil
	}
	if balance := h.bank.DepositBalance(h.id); balance > 0 {
		var err error
		if balance > short {
			err = h.bank.Withdraw(h, short, tick)
		} else {
			_, err = h.bank.WithdrawAll(h, tick)
		}
		if err != nil {
			return err
		}
		short = target - h.Cash
	}
	if short <= moneyEpsilon || !h.hh.BorrowWhenShort {
		return nil
	}
	if h.bank.Cash < short {
		slog.Debug("bank cannot lend", "tick", tick, "household", h.String(), "short", short, "bank_cash", h.bank.Cash)
		return nil
	}
	h.bank.GrantLoan(h, short)
	return nil
}

// Customer methods: a household buys from its small firm.

func (h *Household) cashOnHand() float64 { return h.Cash }

func (h *Household) receive(goods, payment float64) {
	h.Goods += goods
	h.Cash -= payment
}
