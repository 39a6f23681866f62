package lending

import (
	"sort"
	"time"
)

// Position is everything an account holds in the protocol.
type Position struct {
	Account     string        `json:"account"`
	Collaterals []*Collateral `json:"collaterals"`
	Loans       []*Loan       `json:"loans"`
	Health      *HealthRecord `json:"health,omitempty"`
}

// Pools returns every pool ordered by name.
func (e *Engine) Pools() []*Pool {
	var out []*Pool
	e.view(func(s *Store, _ time.Time) {
		for _, name := range s.poolNames() {
			out = append(out, s.pools[name].Clone())
		}
	})
	return out
}

func (e *Engine) Pool(name string) (*Pool, error) {
	var (
		out *Pool
		err error
	)
	e.view(func(s *Store, _ time.Time) {
		p, ok := s.pool(name)
		if !ok {
			err = ErrPoolNotFound
			return
		}
		out = p.Clone()
	})
	return out, err
}

// Position returns the account's collateral, loans and cached health. Loan
// quantities include interest accrued up to now.
func (e *Engine) Position(account string) *Position {
	pos := &Position{Account: account}
	e.view(func(s *Store, now time.Time) {
		for _, c := range s.collateralsOfAccount(account) {
			pos.Collaterals = append(pos.Collaterals, c.Clone())
		}
		for _, l := range s.loansOfAccount(account) {
			clone := l.Clone()
			if p, ok := s.pool(l.Pool); ok {
				if owed, err := clone.Quantity.CheckedAdd(l.PendingInterest(loanRate(l, p), now)); err == nil {
					clone.Quantity = owed
				}
			}
			pos.Loans = append(pos.Loans, clone)
		}
		if h, ok := s.health[account]; ok {
			rec := *h
			pos.Health = &rec
		}
	})
	return pos
}

func (e *Engine) Order(id uint64) (*LiquidationOrder, error) {
	var (
		out *LiquidationOrder
		err error
	)
	e.view(func(s *Store, _ time.Time) {
		o, ok := s.orders[id]
		if !ok {
			err = ErrOrderNotFound
			return
		}
		out = o.Clone()
	})
	return out, err
}

// Orders returns open liquidation orders in id order.
func (e *Engine) Orders() []*LiquidationOrder {
	var out []*LiquidationOrder
	e.view(func(s *Store, _ time.Time) {
		for _, id := range s.orderIDs() {
			out = append(out, s.orders[id].Clone())
		}
	})
	return out
}

// Health returns the cached record for account.
func (e *Engine) Health(account string) (*HealthRecord, error) {
	var (
		out *HealthRecord
		err error
	)
	e.view(func(s *Store, _ time.Time) {
		h, ok := s.health[account]
		if !ok {
			err = ErrHealthNotFound
			return
		}
		rec := *h
		out = &rec
	})
	return out, err
}

// HealthFactor computes the live factor at cached prices, -1 without debt.
func (e *Engine) HealthFactor(account string) (float64, error) {
	var (
		factor float64
		err    error
	)
	e.view(func(s *Store, now time.Time) {
		t := &tx{store: s, now: now, params: e.params, logger: e.logger, result: &Result{}}
		factor, err = t.healthFactor(account)
	})
	return factor, err
}

func (e *Engine) BadDebts() []*BadDebt {
	var out []*BadDebt
	e.view(func(s *Store, _ time.Time) {
		for _, pool := range sortedKeys(s.badDebts) {
			rec := *s.badDebts[pool]
			out = append(out, &rec)
		}
	})
	return out
}

func (e *Engine) Earns() []*Earn {
	var out []*Earn
	e.view(func(s *Store, _ time.Time) {
		for _, pool := range sortedKeys(s.earns) {
			rec := *s.earns[pool]
			out = append(out, &rec)
		}
	})
	return out
}

func (e *Engine) Defend(pool string) (*DefendRecord, error) {
	var (
		out *DefendRecord
		err error
	)
	e.view(func(s *Store, _ time.Time) {
		d, ok := s.defends[pool]
		if !ok {
			err = ErrDefendNotFound
			return
		}
		out = d.Clone()
	})
	return out, err
}

// RateHistory returns the pool's retained hourly rate samples.
func (e *Engine) RateHistory(pool string) []RateSample {
	var out []RateSample
	e.view(func(s *Store, _ time.Time) {
		out = s.RateHistory(pool)
	})
	return out
}

// Accounts lists every account holding collateral or debt.
func (e *Engine) Accounts() []string {
	var out []string
	e.view(func(s *Store, _ time.Time) {
		seen := make(map[string]struct{})
		for account := range s.collByAccount {
			seen[account] = struct{}{}
		}
		for account := range s.loanByAccount {
			seen[account] = struct{}{}
		}
		for account := range seen {
			out = append(out, account)
		}
	})
	sort.Strings(out)
	return out
}
