package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestShippedConfigMatchesDefault(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("configs/default.yaml drifted from Default() (-want +got):\n%s", diff)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bank:
  starting_money: 250
housing:
  rent: 12
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Bank.StartingMoney = 250
	want.Housing.Rent = 12
	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("population:\n  households: 35\n"), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	want := Default()
	want.Housing.BuyHouseTick = 56
	out, err := want.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o644))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"education sum", func(c *Config) { c.Population.EducationCounts = []int{1, 1, 1} }, "population.education_counts"},
		{"education entries", func(c *Config) { c.Population.EducationCounts = []int{36} }, "population.education_counts"},
		{"uneven households", func(c *Config) {
			c.Population.Households = 38
			c.Population.EducationCounts = []int{14, 12, 12}
		}, "population.households"},
		{"uneven small firms", func(c *Config) { c.Population.SmallFirms = 3 }, "population.small_firms"},
		{"medium without large", func(c *Config) { c.Population.LargeFirms = 0 }, "population.medium_firms"},
		{"households without store", func(c *Config) { c.Population.SmallFirms = 0 }, "population.small_firms"},
		{"zero interval", func(c *Config) { c.Housing.RentInterval = 0 }, "housing.rent_interval"},
		{"negative offset", func(c *Config) { c.Firms.WagesOffset = -1 }, "firms.wages_offset"},
		{"discount range", func(c *Config) { c.Household.TemporalDiscount = []float64{0.5, 1.5, 0.9} }, "household.temporal_discount"},
		{"consumption range", func(c *Config) { c.Household.ConsumptionRange = 4 }, "household.weekly_goods_consumption_range"},
		{"labor entries", func(c *Config) { c.Firms.RequiredEmployees.Small = []int{1, 1} }, "firms.required_employees.small"},
		{"negative labor", func(c *Config) { c.Firms.RequiredEmployees.Large = []int{4, -1, 4} }, "firms.required_employees.large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateReportsFirstFieldInOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		c := Default()
		c.Bank.CompoundInterval = 0
		c.Firms.WagesInterval = 0
		c.Firms.RequiredEmployees.Large = []int{1}
		c.Firms.RequiredEmployees.Small = []int{1}
		err := c.Validate()
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "bank.compound_interval")

		c.Bank.CompoundInterval = 4
		c.Firms.WagesInterval = 4
		assert.Contains(t, c.Validate().Error(), "firms.required_employees.large")
	}
}

func TestValidateAllowsStandaloneSmallFirms(t *testing.T) {
	c := Default()
	c.Population = Population{Households: 3, EducationCounts: []int{3, 0, 0}, SmallFirms: 1}
	require.NoError(t, c.Validate())
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	} {
		c := Default()
		c.Run.LogLevel = in
		assert.Equal(t, want, c.SlogLevel(), in)
	}
}
