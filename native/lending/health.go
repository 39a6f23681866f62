package lending

import (
	"fmt"
	"log/slog"
)

func (t *tx) loanValue(account string) (float64, error) {
	var total float64
	for _, l := range t.store.loansOfAccount(account) {
		p, err := t.poolByName(l.Pool)
		if err != nil {
			return 0, err
		}
		total += p.priceFloat() * l.Quantity.Float()
	}
	return total, nil
}

// collateralValue weighs collateral by liqdt_rate, or by max_ltv when sizing
// new borrows.
func (t *tx) collateralValue(account string, forLoan bool) (float64, error) {
	var total float64
	for _, c := range t.store.collateralsOfAccount(account) {
		p, err := t.poolByName(c.Pool)
		if err != nil {
			return 0, err
		}
		weight := p.Config.LiqdtRate
		if forLoan {
			weight = p.Config.MaxLTV
		}
		total += p.priceFloat() * p.SharePriceAt(t.now) * c.Quantity.Float() * toFloat(weight)
	}
	return total, nil
}

// healthFactor returns -1 when the account has no debt.
func (t *tx) healthFactor(account string) (float64, error) {
	loan, err := t.loanValue(account)
	if err != nil {
		return 0, err
	}
	if loan <= 0 {
		return -1, nil
	}
	coll, err := t.collateralValue(account, false)
	if err != nil {
		return 0, err
	}
	return coll / loan, nil
}

// withdrawableValue bounds how much collateral value may leave while keeping
// the factor at or above 1.1. It is -1 when the account has no debt.
func (t *tx) withdrawableValue(account string, p *Pool) (float64, error) {
	loan, err := t.loanValue(account)
	if err != nil {
		return 0, err
	}
	if loan <= 0 {
		return -1, nil
	}
	coll, err := t.collateralValue(account, false)
	if err != nil {
		return 0, err
	}
	if coll <= 0 {
		return 0, nil
	}
	reduce := 1 - withdrawableSafetyRatio/(coll/loan)
	return coll * reduce / toFloat(p.Config.LiqdtRate), nil
}

func (t *tx) checkWithdrawable(account string, p *Pool, value float64) error {
	limit, err := t.withdrawableValue(account, p)
	if err != nil {
		return err
	}
	if limit >= 0 && value > limit {
		return fmt.Errorf("%w: value %.8f above %.8f", ErrExceedsWithdrawable, value, limit)
	}
	return nil
}

// cacheHealth recomputes the account's record, dropping it once debt is gone.
func (t *tx) cacheHealth(account string) error {
	loan, err := t.loanValue(account)
	if err != nil {
		return err
	}
	if loan <= 0 {
		delete(t.store.health, account)
		return nil
	}
	coll, err := t.collateralValue(account, false)
	if err != nil {
		return err
	}
	t.putHealth(account, loan, coll)
	return nil
}

func (t *tx) putHealth(account string, loan, coll float64) {
	if loan <= 0 {
		delete(t.store.health, account)
		return
	}
	t.store.health[account] = &HealthRecord{
		Account:         account,
		LoanValue:       loan,
		CollateralValue: coll,
		Factor:          coll / loan,
		UpdatedAt:       t.now,
	}
}

// RefreshSummary reports what a health refresh pass did.
type RefreshSummary struct {
	PricesChanged bool     `json:"prices_changed"`
	Refreshed     int      `json:"refreshed"`
	Removed       int      `json:"removed"`
	Liquidated    []string `json:"liquidated,omitempty"`
	// Capped lists accounts whose liquidation stopped at the round limit.
	Capped []string `json:"capped,omitempty"`
}

func (t *tx) refreshHealth(threshold float64) (*RefreshSummary, error) {
	summary := &RefreshSummary{}
	moved, err := t.refreshPrices()
	if err != nil {
		return nil, err
	}
	summary.PricesChanged = moved
	updated := moved

	rounds := t.params.MaxLiquidationRounds
	if rounds <= 0 {
		rounds = DefaultParams().MaxLiquidationRounds
	}

	for _, account := range t.store.healthAccounts() {
		rec := t.store.health[account]
		if !rec.ShouldRefresh(t.now, threshold) {
			continue
		}
		updated = true
		loan, err := t.loanValue(account)
		if err != nil {
			return nil, err
		}
		if loan <= 0 {
			delete(t.store.health, account)
			summary.Removed++
			continue
		}
		coll, err := t.collateralValue(account, false)
		if err != nil {
			return nil, err
		}
		liquidated := false
		for i := 0; loan > 0 && coll < loan; i++ {
			if i >= rounds {
				summary.Capped = append(summary.Capped, account)
				break
			}
			t.logger.Warn("liquidating account",
				slog.String("account", account),
				slog.Float64("loan_value", loan),
				slog.Float64("collateral_value", coll))
			if err := t.liquidate(account, loan); err != nil {
				return nil, err
			}
			liquidated = true
			prevLoan, prevColl := loan, coll
			if coll, err = t.collateralValue(account, false); err != nil {
				return nil, err
			}
			if loan, err = t.loanValue(account); err != nil {
				return nil, err
			}
			if loan == prevLoan && coll == prevColl {
				break
			}
		}
		if liquidated {
			summary.Liquidated = append(summary.Liquidated, account)
		}
		if loan <= 0 {
			delete(t.store.health, account)
			summary.Removed++
			continue
		}
		t.putHealth(account, loan, coll)
		summary.Refreshed++
	}

	if !updated && t.params.FailOnStaleRefresh {
		return nil, ErrNothingChanged
	}
	return summary, nil
}

// cacheAllHealth refreshes prices and rebuilds the record of every borrower.
func (t *tx) cacheAllHealth() (int, error) {
	if _, err := t.refreshPrices(); err != nil {
		return 0, err
	}
	accounts := t.store.borrowers()
	for _, account := range accounts {
		if err := t.cacheHealth(account); err != nil {
			return 0, err
		}
	}
	return len(accounts), nil
}
