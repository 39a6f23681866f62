package lending

import (
	"fmt"
	"log/slog"
)

// SettleInterest settles every pool.
func (e *Engine) SettleInterest() (*Result, error) {
	return e.apply(func(t *tx) error {
		for _, name := range t.store.poolNames() {
			if err := t.settle(t.store.pools[name]); err != nil {
				return fmt.Errorf("settle %s: %w", name, err)
			}
		}
		t.logger.Info("interest settled", slog.Int("pools", len(t.store.pools)))
		return nil
	})
}

// SettleInterestFor settles the named pools and fails on any unknown name.
func (e *Engine) SettleInterestFor(pools []string) (*Result, error) {
	return e.apply(func(t *tx) error {
		for _, name := range pools {
			p, err := t.poolByName(name)
			if err != nil {
				return fmt.Errorf("settle %s: %w", name, err)
			}
			if err := t.settle(p); err != nil {
				return fmt.Errorf("settle %s: %w", name, err)
			}
		}
		return nil
	})
}

// RefreshPrices pulls fresh oracle quotes into every pool.
func (e *Engine) RefreshPrices() (*Result, error) {
	return e.apply(func(t *tx) error {
		changed, err := t.refreshPrices()
		if err != nil {
			return err
		}
		t.logger.Debug("prices refreshed", slog.Bool("changed", changed))
		return nil
	})
}

// RefreshHealth refreshes prices, recomputes stale health records whose
// factor is at or below threshold and liquidates under-collateralized
// accounts. A threshold of zero refreshes every due record.
func (e *Engine) RefreshHealth(threshold float64) (*RefreshSummary, *Result, error) {
	var summary *RefreshSummary
	res, err := e.apply(func(t *tx) error {
		var err error
		summary, err = t.refreshHealth(threshold)
		if err != nil {
			return err
		}
		t.logger.Info("health refreshed",
			slog.Bool("prices_changed", summary.PricesChanged),
			slog.Int("refreshed", summary.Refreshed),
			slog.Int("removed", summary.Removed),
			slog.Int("liquidated", len(summary.Liquidated)),
			slog.Int("capped", len(summary.Capped)))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return summary, res, nil
}

// CacheHealth rebuilds the health record of every borrower.
func (e *Engine) CacheHealth() (int, *Result, error) {
	var count int
	res, err := e.apply(func(t *tx) error {
		var err error
		count, err = t.cacheAllHealth()
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return count, res, nil
}
