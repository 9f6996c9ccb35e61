// Package config holds the parameter bundle handed to the simulation at construction.
// The core reads it once; nothing re-reads it mid-run.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NumEducation is the number of household education tiers (0 = low … 2 = high).
const NumEducation = 3

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config is the complete parameter bundle.
type Config struct {
	Run        Run        `yaml:"run"`
	Population Population `yaml:"population"`
	Bank       Bank       `yaml:"bank"`
	Government Government `yaml:"government"`
	Household  Household  `yaml:"household"`
	Housing    Housing    `yaml:"housing"`
	Firms      Firms      `yaml:"firms"`
	Trade      Trade      `yaml:"trade"`
}

// Run controls the length and reproducibility of a run.
type Run struct {
	TotalSteps int    `yaml:"total_steps"`
	Seed       int64  `yaml:"seed"` // 0 = pick a fresh seed at startup
	LogLevel   string `yaml:"log_level"`
}

// Population sets agent counts. Firm counts must divide their customer tier evenly.
type Population struct {
	Households      int   `yaml:"households"`
	EducationCounts []int `yaml:"education_counts"` // households per education tier, low first
	LargeFirms      int   `yaml:"large_firms"`
	MediumFirms     int   `yaml:"medium_firms"`
	SmallFirms      int   `yaml:"small_firms"`
}

// Bank holds lending and deposit parameters.
type Bank struct {
	StartingMoney       float64 `yaml:"starting_money"`
	LoanTicks           int     `yaml:"loan_ticks"`
	MonthlyInterestRate float64 `yaml:"monthly_interest_rate"`
	CompoundInterval    int     `yaml:"compound_interval"`
}

// Government holds the inflation loop parameters.
type Government struct {
	StartingMoney     float64 `yaml:"starting_money"`
	InflationInterval int     `yaml:"inflation_interval"`
}

// Household holds starting balances and consumption behaviour.
type Household struct {
	StartingMoney    float64   `yaml:"starting_money"`
	StartingGoods    float64   `yaml:"starting_goods"`
	StartingStrategy string    `yaml:"starting_strategy"`
	GoodsConsumption float64   `yaml:"weekly_goods_consumption"`
	ConsumptionRange float64   `yaml:"weekly_goods_consumption_range"`
	TemporalDiscount []float64 `yaml:"temporal_discount"` // per education tier
	RentFloor        float64   `yaml:"rent_floor"`
	OwnerFloor       float64   `yaml:"owner_floor"`
	LiquidityReserve bool      `yaml:"liquidity_reserve"` // keep next tick's outlay on hand; off = fixed floors only
	BorrowWhenShort  bool      `yaml:"borrow_when_short"` // only consulted with the reserve on
}

// Housing holds rent, mortgage and utilities terms.
type Housing struct {
	Rent                float64 `yaml:"rent"`
	UtilitiesCost       float64 `yaml:"utilities_cost"`
	MortgageCost        float64 `yaml:"mortgage_cost"`
	MonthlyMortgageRate float64 `yaml:"monthly_mortgage_rate"`
	RentInterval        int     `yaml:"rent_interval"`
	MortgageInterval    int     `yaml:"mortgage_interval"`
	UtilitiesInterval   int     `yaml:"utilities_interval"`
	BuyHouseTick        uint64  `yaml:"buy_house_tick"` // 0 = households never buy
}

// TierValues carries one number per firm tier.
type TierValues struct {
	Large  float64 `yaml:"large"`
	Medium float64 `yaml:"medium"`
	Small  float64 `yaml:"small"`
}

// TierLabor carries a per-education headcount for each firm tier.
type TierLabor struct {
	Large  []int `yaml:"large"`
	Medium []int `yaml:"medium"`
	Small  []int `yaml:"small"`
}

// Firms holds production, wage and staffing parameters.
type Firms struct {
	GoodsInterval     int        `yaml:"goods_interval"`
	WagesInterval     int        `yaml:"wages_interval"`
	WagesOffset       int        `yaml:"wages_offset"`
	ValueAdded        float64    `yaml:"value_added"`
	ProductionShare   []float64  `yaml:"share_of_production_capacity"` // per education tier
	GoodsProduced     float64    `yaml:"goods_produced"`               // household goods per goods period, whole economy
	StartingMoney     TierValues `yaml:"starting_money"`
	StartingGoods     TierValues `yaml:"starting_goods"`
	RequiredEmployees TierLabor  `yaml:"required_employees"`
}

// Trade holds the flows across the economy's boundary.
type Trade struct {
	ExportQuantity float64 `yaml:"export_quantity"` // per small firm per goods period
	ExportPrice    float64 `yaml:"export_price"`
	ImportPrice    float64 `yaml:"import_price"`
}

// Default returns the canonical parameter bundle.
func Default() *Config {
	return &Config{
		Run: Run{
			TotalSteps: 100,
			Seed:       42,
			LogLevel:   "info",
		},
		Population: Population{
			Households:      36,
			EducationCounts: []int{12, 12, 12},
			LargeFirms:      1,
			MediumFirms:     2,
			SmallFirms:      4,
		},
		Bank: Bank{
			StartingMoney:       1000,
			LoanTicks:           8,
			MonthlyInterestRate: 0.005,
			CompoundInterval:    4,
		},
		Government: Government{
			StartingMoney:     500,
			InflationInterval: 4,
		},
		Household: Household{
			StartingMoney:    200,
			StartingGoods:    0,
			StartingStrategy: "rent",
			GoodsConsumption: 3,
			ConsumptionRange: 0.25,
			TemporalDiscount: []float64{0.95, 0.97, 0.99},
			RentFloor:        15,
			OwnerFloor:       40,
			BorrowWhenShort:  true,
		},
		Housing: Housing{
			Rent:                15,
			UtilitiesCost:       3,
			MortgageCost:        30,
			MonthlyMortgageRate: 0.035,
			RentInterval:        4,
			MortgageInterval:    4,
			UtilitiesInterval:   4,
		},
		Firms: Firms{
			GoodsInterval:   1,
			WagesInterval:   4,
			WagesOffset:     4,
			ValueAdded:      3,
			ProductionShare: []float64{0.34, 0.33, 0.33},
			GoodsProduced:   130,
			StartingMoney:   TierValues{Large: 20000, Medium: 10000, Small: 5000},
			StartingGoods:   TierValues{},
			RequiredEmployees: TierLabor{
				Large:  []int{4, 4, 4},
				Medium: []int{2, 2, 2},
				Small:  []int{1, 1, 1},
			},
		},
		Trade: Trade{
			ExportQuantity: 5,
			ExportPrice:    12,
			ImportPrice:    0.5,
		},
	}
}

// Load reads a YAML file over the defaults, so a file only needs the keys it changes.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders the config back to YAML (stored alongside each recorded run).
func (c *Config) Marshal() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Validate checks structural constraints the engine relies on.
func (c *Config) Validate() error {
	p := c.Population
	if p.Households < 0 || p.LargeFirms < 0 || p.MediumFirms < 0 || p.SmallFirms < 0 {
		return invalid("population", "counts must be non-negative")
	}
	if len(p.EducationCounts) != NumEducation {
		return invalid("population.education_counts", "want %d entries, got %d", NumEducation, len(p.EducationCounts))
	}
	sum := 0
	for _, n := range p.EducationCounts {
		sum += n
	}
	if sum != p.Households {
		return invalid("population.education_counts", "sum %d does not match households %d", sum, p.Households)
	}

	// Every non-empty tier needs a non-empty tier above it, except the top one.
	if p.MediumFirms > 0 && p.LargeFirms == 0 {
		return invalid("population.medium_firms", "medium firms need a large supplier")
	}
	if p.SmallFirms > 0 && p.MediumFirms == 0 && p.LargeFirms > 0 {
		return invalid("population.small_firms", "small firms need a medium supplier")
	}
	if p.Households > 0 && p.SmallFirms == 0 {
		return invalid("population.small_firms", "households need at least one small firm")
	}
	if err := divides("population.medium_firms", p.MediumFirms, p.LargeFirms); err != nil {
		return err
	}
	if err := divides("population.small_firms", p.SmallFirms, p.MediumFirms); err != nil {
		return err
	}
	if err := divides("population.households", p.Households, p.SmallFirms); err != nil {
		return err
	}

	intervals := []struct {
		name string
		v    int
	}{
		{"bank.compound_interval", c.Bank.CompoundInterval},
		{"government.inflation_interval", c.Government.InflationInterval},
		{"housing.rent_interval", c.Housing.RentInterval},
		{"housing.mortgage_interval", c.Housing.MortgageInterval},
		{"housing.utilities_interval", c.Housing.UtilitiesInterval},
		{"firms.goods_interval", c.Firms.GoodsInterval},
		{"firms.wages_interval", c.Firms.WagesInterval},
	}
	for _, iv := range intervals {
		if iv.v <= 0 {
			return invalid(iv.name, "must be > 0, got %d", iv.v)
		}
	}
	if c.Firms.WagesOffset < 0 {
		return invalid("firms.wages_offset", "must be >= 0")
	}
	if c.Bank.LoanTicks < 0 {
		return invalid("bank.loan_ticks", "must be >= 0")
	}

	if len(c.Household.TemporalDiscount) != NumEducation {
		return invalid("household.temporal_discount", "want %d entries", NumEducation)
	}
	for _, d := range c.Household.TemporalDiscount {
		if d < 0 || d > 1 {
			return invalid("household.temporal_discount", "rates must lie in [0,1], got %v", d)
		}
	}
	if c.Household.ConsumptionRange < 0 || c.Household.ConsumptionRange > c.Household.GoodsConsumption {
		return invalid("household.weekly_goods_consumption_range", "must lie in [0, consumption]")
	}
	if len(c.Firms.ProductionShare) != NumEducation {
		return invalid("firms.share_of_production_capacity", "want %d entries", NumEducation)
	}
	staffing := []struct {
		name  string
		labor []int
	}{
		{"firms.required_employees.large", c.Firms.RequiredEmployees.Large},
		{"firms.required_employees.medium", c.Firms.RequiredEmployees.Medium},
		{"firms.required_employees.small", c.Firms.RequiredEmployees.Small},
	}
	for _, st := range staffing {
		if len(st.labor) != NumEducation {
			return invalid(st.name, "want %d entries", NumEducation)
		}
		for _, n := range st.labor {
			if n < 0 {
				return invalid(st.name, "headcounts must be non-negative")
			}
		}
	}

	if c.Firms.GoodsInterval != 1 {
		slog.Warn("goods_interval > 1: households consume every tick and may run out of goods",
			"goods_interval", c.Firms.GoodsInterval)
	}
	return nil
}

// SlogLevel maps Run.LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Run.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func divides(field string, customers, suppliers int) error {
	if suppliers == 0 || customers == 0 {
		return nil
	}
	if customers%suppliers != 0 {
		return invalid(field, "%d cannot be split evenly across %d suppliers", customers, suppliers)
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, field, fmt.Sprintf(format, args...))
}
