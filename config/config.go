// Package config loads and validates the percolatorctl TOML configuration
// file: market parameters, CLI data directory, and logging options.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	percerrors "percolator/core/errors"
	"percolator/internal/slab"
	"percolator/internal/unitscale"
)

// Config is the top-level percolatorctl configuration.
type Config struct {
	DataDir     string `toml:"DataDir"`
	Environment string `toml:"Environment"`
	LogFile     string `toml:"LogFile"`
	UnitScale   uint64 `toml:"UnitScale"`
	Market      Market `toml:"market"`
}

// Market mirrors slab.MarketConfig for TOML (de)serialization.
type Market struct {
	FundingHorizonSlots       uint64 `toml:"FundingHorizonSlots"`
	FundingInvScaleNotionalE6 uint64 `toml:"FundingInvScaleNotionalE6"`
	ThreshAlphaBps            uint64 `toml:"ThreshAlphaBps"`
	ThreshMin                 uint64 `toml:"ThreshMin"`
	ThreshMax                 uint64 `toml:"ThreshMax"`
	MaintenanceFeeBps         uint64 `toml:"MaintenanceFeeBps"`
	FundingRateBpsPerSlot     int64  `toml:"FundingRateBpsPerSlot"`
	LiquidationBufferUnits    uint64 `toml:"LiquidationBufferUnits"`
	MinLiquidationAbs         uint64 `toml:"MinLiquidationAbs"`
	WarmupPeriodSlots         uint64 `toml:"WarmupPeriodSlots"`
}

// ToSlabConfig converts the TOML-facing Market into slab.MarketConfig.
func (m Market) ToSlabConfig() slab.MarketConfig {
	return slab.MarketConfig{
		FundingHorizonSlots:       m.FundingHorizonSlots,
		FundingInvScaleNotionalE6: m.FundingInvScaleNotionalE6,
		ThreshAlphaBps:            m.ThreshAlphaBps,
		ThreshMin:                 m.ThreshMin,
		ThreshMax:                 m.ThreshMax,
		MaintenanceFeeBps:         m.MaintenanceFeeBps,
		FundingRateBpsPerSlot:     m.FundingRateBpsPerSlot,
		LiquidationBufferUnits:    m.LiquidationBufferUnits,
		MinLiquidationAbs:         m.MinLiquidationAbs,
		WarmupPeriodSlots:         m.WarmupPeriodSlots,
	}
}

// EnsureDefaults fills in zero-value fields with sane operational defaults.
func (c *Config) EnsureDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./percolator-data"
	}
	if c.UnitScale == 0 {
		c.UnitScale = 1
	}
	if c.Market.ThreshMax == 0 {
		c.Market.ThreshMax = 10_000
	}
	if c.Market.WarmupPeriodSlots == 0 {
		c.Market.WarmupPeriodSlots = 1
	}
}

// Validate checks every configured range, returning InvalidConfig wrapped
// with the specific field that failed.
func (c *Config) Validate() error {
	if c.UnitScale > unitscale.MaxUnitScale {
		return fmt.Errorf("%w: UnitScale exceeds MaxUnitScale", percerrors.ErrInvalidConfig)
	}
	if c.Market.ThreshMin > c.Market.ThreshMax {
		return fmt.Errorf("%w: ThreshMin exceeds ThreshMax", percerrors.ErrInvalidConfig)
	}
	if c.Market.ThreshAlphaBps > 10_000 {
		return fmt.Errorf("%w: ThreshAlphaBps exceeds 10_000", percerrors.ErrInvalidConfig)
	}
	if c.Market.MaintenanceFeeBps > 10_000 {
		return fmt.Errorf("%w: MaintenanceFeeBps exceeds 10_000", percerrors.ErrInvalidConfig)
	}
	if c.Market.FundingRateBpsPerSlot > 10_000 || c.Market.FundingRateBpsPerSlot < -10_000 {
		return fmt.Errorf("%w: FundingRateBpsPerSlot outside +/-10_000", percerrors.ErrInvalidConfig)
	}
	if c.Market.WarmupPeriodSlots == 0 {
		return fmt.Errorf("%w: WarmupPeriodSlots must be nonzero", percerrors.ErrInvalidConfig)
	}
	return nil
}

// Load reads a TOML config from path, applying defaults and validating the
// result. If the file does not exist, a default config is written to path
// and returned.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.EnsureDefaults()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
