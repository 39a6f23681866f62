package config

import (
	"fmt"
	"strings"

	"lendcore/native/lending"
)

// ValidateConfig checks the engine parameters and every bootstrap pool.
func ValidateConfig(c *Config) error {
	if _, err := c.Params(); err != nil {
		return err
	}
	if _, err := c.PoolSpecs(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Pools))
	for i, entry := range c.Pools {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return fmt.Errorf("pools[%d]: name required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("pools[%d]: duplicate pool %q", i, name)
		}
		seen[name] = struct{}{}
		if err := entry.Config.Validate(); err != nil {
			return fmt.Errorf("pools[%d] %s: %w", i, name, err)
		}
		for _, f := range entry.Features {
			if !validFeature(strings.TrimSpace(f)) {
				return fmt.Errorf("pools[%d] %s: unknown feature %q", i, name, f)
			}
		}
	}
	return nil
}

func validFeature(f string) bool {
	switch f {
	case lending.FeatureDeposit, lending.FeatureWithdraw, lending.FeatureBorrow, lending.FeatureRepay:
		return true
	default:
		return false
	}
}
