package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"lendcore/core/types"
	"lendcore/native/lending"
)

// Load reads the protocol configuration from path. A missing file is created
// with the stock parameters and no pools.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Params converts the lending section into engine parameters, falling back
// to the stock values for omitted keys.
func (c *Config) Params() (lending.Params, error) {
	p := lending.DefaultParams()
	l := c.Lending
	setString(&p.FeeAccount, l.FeeAccount)
	setString(&p.SafuAccount, l.SafuAccount)
	setString(&p.KeepAccount, l.KeepAccount)
	setString(&p.WalletAccount, l.WalletAccount)
	setString(&p.NullAccount, l.NullAccount)

	if strings.TrimSpace(l.FeeToken) != "" {
		token, err := types.ParseExtendedSymbol(l.FeeToken)
		if err != nil {
			return p, fmt.Errorf("lending.fee_token: %w", err)
		}
		p.FeeToken = token
	}
	if l.FeeFreeDay != nil {
		p.FeeFreeDay = *l.FeeFreeDay
	}
	if l.VoteWaiverThreshold != nil {
		p.VoteWaiverThreshold = *l.VoteWaiverThreshold
	}
	if l.MiniRepayValueCap != nil {
		p.MiniRepayValueCap = *l.MiniRepayValueCap
	}
	p.FailOnStaleRefresh = l.FailOnStaleRefresh
	if l.MaxLiquidationRounds != 0 {
		p.MaxLiquidationRounds = l.MaxLiquidationRounds
	}

	d := l.Defend
	if d.PoolSize != 0 {
		p.Defend.PoolSize = d.PoolSize
	}
	if d.Percent != nil {
		p.Defend.Percent = *d.Percent
	}
	if err := setDecimal(&p.Defend.MaxValue, d.MaxValue, "lending.defend.max_value"); err != nil {
		return p, err
	}
	if err := setDecimal(&p.Defend.PauseValue, d.PauseValue, "lending.defend.pause_value"); err != nil {
		return p, err
	}
	if strings.TrimSpace(d.Pause) != "" {
		pause, err := time.ParseDuration(d.Pause)
		if err != nil {
			return p, fmt.Errorf("lending.defend.pause: %w", err)
		}
		p.Defend.Pause = pause
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// PoolSpecs converts the bootstrap pool entries.
func (c *Config) PoolSpecs() ([]lending.PoolSpec, error) {
	specs := make([]lending.PoolSpec, 0, len(c.Pools))
	for i, entry := range c.Pools {
		anchor, err := types.ParseExtendedSymbol(entry.Anchor)
		if err != nil {
			return nil, fmt.Errorf("pools[%d].anchor: %w", i, err)
		}
		share, err := types.ParseExtendedSymbol(entry.Share)
		if err != nil {
			return nil, fmt.Errorf("pools[%d].share: %w", i, err)
		}
		specs = append(specs, lending.PoolSpec{
			Name:      strings.TrimSpace(entry.Name),
			Anchor:    anchor,
			Share:     share,
			Config:    entry.Config,
			MaxSupply: entry.MaxSupply,
		})
	}
	return specs, nil
}

// Features returns the feature switches to open per pool.
func (c *Config) Features() map[string][]lending.FeaturePerm {
	out := make(map[string][]lending.FeaturePerm, len(c.Pools))
	for _, entry := range c.Pools {
		perms := make([]lending.FeaturePerm, 0, len(entry.Features))
		for _, f := range entry.Features {
			perms = append(perms, lending.FeaturePerm{Feature: strings.TrimSpace(f), Open: true})
		}
		out[strings.TrimSpace(entry.Name)] = perms
	}
	return out
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDecimal(dst *decimal.Decimal, raw, field string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = v
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	defaults := lending.DefaultParams()
	day := defaults.FeeFreeDay
	threshold := defaults.VoteWaiverThreshold
	mini := defaults.MiniRepayValueCap
	percent := defaults.Defend.Percent
	cfg := &Config{
		Lending: Lending{
			FeeAccount:           defaults.FeeAccount,
			SafuAccount:          defaults.SafuAccount,
			KeepAccount:          defaults.KeepAccount,
			WalletAccount:        defaults.WalletAccount,
			NullAccount:          defaults.NullAccount,
			FeeFreeDay:           &day,
			VoteWaiverThreshold:  &threshold,
			MiniRepayValueCap:    &mini,
			MaxLiquidationRounds: defaults.MaxLiquidationRounds,
			Defend: Defend{
				PoolSize:   defaults.Defend.PoolSize,
				Percent:    &percent,
				MaxValue:   defaults.Defend.MaxValue.String(),
				PauseValue: defaults.Defend.PauseValue.String(),
				Pause:      defaults.Defend.Pause.String(),
			},
		},
		Pools: []PoolEntry{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
