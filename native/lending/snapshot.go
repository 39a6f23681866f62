package lending

import (
	"fmt"
	"sort"
)

// PoolRates is the rate history of one pool.
type PoolRates struct {
	Pool    string       `json:"pool"`
	Samples []RateSample `json:"samples"`
}

// FeatureFlag is one feature switch of one pool.
type FeatureFlag struct {
	Pool    string `json:"pool"`
	Feature string `json:"feature"`
	Open    bool   `json:"open"`
}

// Snapshot is the store exported as ordered plain records.
type Snapshot struct {
	Pools            []*Pool             `json:"pools"`
	Collaterals      []*Collateral       `json:"collaterals"`
	Loans            []*Loan             `json:"loans"`
	Orders           []*LiquidationOrder `json:"orders"`
	Health           []*HealthRecord     `json:"health"`
	BadDebts         []*BadDebt          `json:"bad_debts"`
	Earns            []*Earn             `json:"earns"`
	Stables          []*CachedStable     `json:"stables"`
	Rates            []PoolRates         `json:"rates"`
	Features         []FeatureFlag       `json:"features"`
	Allows           []*ACLEntry         `json:"allows"`
	Blocks           []*ACLEntry         `json:"blocks"`
	Defends          []*DefendRecord     `json:"defends"`
	NextCollateralID uint64              `json:"next_collateral_id"`
	NextLoanID       uint64              `json:"next_loan_id"`
	NextOrderID      uint64              `json:"next_order_id"`
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedACL(list map[aclKey]*ACLEntry) []*ACLEntry {
	out := make([]*ACLEntry, 0, len(list))
	for _, e := range list {
		rec := *e
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Feature != out[j].Feature {
			return out[i].Feature < out[j].Feature
		}
		return out[i].Account < out[j].Account
	})
	return out
}

// Snapshot exports a deep copy of every table in deterministic order.
func (s *Store) Snapshot() *Snapshot {
	snap := &Snapshot{
		NextCollateralID: s.nextCollateralID,
		NextLoanID:       s.nextLoanID,
		NextOrderID:      s.nextOrderID,
	}
	for _, name := range s.poolNames() {
		snap.Pools = append(snap.Pools, s.pools[name].Clone())
	}

	collIDs := make(idSet, len(s.collaterals))
	for id := range s.collaterals {
		collIDs[id] = struct{}{}
	}
	for _, id := range collIDs.sorted() {
		snap.Collaterals = append(snap.Collaterals, s.collaterals[id].Clone())
	}
	loanIDs := make(idSet, len(s.loans))
	for id := range s.loans {
		loanIDs[id] = struct{}{}
	}
	for _, id := range loanIDs.sorted() {
		snap.Loans = append(snap.Loans, s.loans[id].Clone())
	}
	for _, id := range s.orderIDs() {
		snap.Orders = append(snap.Orders, s.orders[id].Clone())
	}

	for _, account := range s.healthAccounts() {
		rec := *s.health[account]
		snap.Health = append(snap.Health, &rec)
	}
	for _, pool := range sortedKeys(s.badDebts) {
		rec := *s.badDebts[pool]
		snap.BadDebts = append(snap.BadDebts, &rec)
	}
	for _, pool := range sortedKeys(s.earns) {
		rec := *s.earns[pool]
		snap.Earns = append(snap.Earns, &rec)
	}
	for _, pool := range sortedKeys(s.stables) {
		rec := *s.stables[pool]
		snap.Stables = append(snap.Stables, &rec)
	}
	for _, pool := range sortedKeys(s.rates) {
		snap.Rates = append(snap.Rates, PoolRates{Pool: pool, Samples: s.RateHistory(pool)})
	}

	for k, open := range s.features {
		snap.Features = append(snap.Features, FeatureFlag{Pool: k.pool, Feature: k.feature, Open: open})
	}
	sort.Slice(snap.Features, func(i, j int) bool {
		a, b := snap.Features[i], snap.Features[j]
		if a.Pool != b.Pool {
			return a.Pool < b.Pool
		}
		return a.Feature < b.Feature
	})
	snap.Allows = sortedACL(s.allows)
	snap.Blocks = sortedACL(s.blocks)

	for _, pool := range sortedKeys(s.defends) {
		snap.Defends = append(snap.Defends, s.defends[pool].Clone())
	}
	return snap
}

// RestoreStore rebuilds a store and its indexes from a snapshot.
func RestoreStore(snap *Snapshot) (*Store, error) {
	s := NewStore()
	if snap == nil {
		return s, nil
	}
	for _, p := range snap.Pools {
		if p == nil || p.Name == "" {
			return nil, fmt.Errorf("%w: snapshot pool without name", ErrInvalidParams)
		}
		s.insertPool(p.Clone())
	}
	for _, c := range snap.Collaterals {
		if _, ok := s.pools[c.Pool]; !ok {
			return nil, fmt.Errorf("collateral %d: %w", c.ID, ErrPoolNotFound)
		}
		if c.ID >= snap.NextCollateralID {
			return nil, fmt.Errorf("%w: collateral id %d beyond counter", ErrInvalidParams, c.ID)
		}
		s.putCollateral(c.Clone())
	}
	for _, l := range snap.Loans {
		if _, ok := s.pools[l.Pool]; !ok {
			return nil, fmt.Errorf("loan %d: %w", l.ID, ErrPoolNotFound)
		}
		if l.ID >= snap.NextLoanID {
			return nil, fmt.Errorf("%w: loan id %d beyond counter", ErrInvalidParams, l.ID)
		}
		s.putLoan(l.Clone())
	}
	for _, o := range snap.Orders {
		s.orders[o.ID] = o.Clone()
	}
	s.nextCollateralID = snap.NextCollateralID
	s.nextLoanID = snap.NextLoanID
	s.nextOrderID = snap.NextOrderID

	for _, h := range snap.Health {
		rec := *h
		s.health[h.Account] = &rec
	}
	for _, b := range snap.BadDebts {
		rec := *b
		s.badDebts[b.Pool] = &rec
	}
	for _, e := range snap.Earns {
		rec := *e
		s.earns[e.Pool] = &rec
	}
	for _, c := range snap.Stables {
		rec := *c
		s.stables[c.Pool] = &rec
	}
	for _, r := range snap.Rates {
		samples := s.rateSamples(r.Pool)
		for _, sample := range r.Samples {
			samples[sample.Hour] = sample.Rate
		}
	}
	for _, f := range snap.Features {
		s.features[featureKey{feature: f.Feature, pool: f.Pool}] = f.Open
	}
	for _, a := range snap.Allows {
		rec := *a
		s.allows[aclKey{feature: a.Feature, account: a.Account}] = &rec
	}
	for _, b := range snap.Blocks {
		rec := *b
		s.blocks[aclKey{feature: b.Feature, account: b.Account}] = &rec
	}
	for _, d := range snap.Defends {
		s.defends[d.Pool] = d.Clone()
	}
	return s, nil
}
