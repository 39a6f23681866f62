package lending

import (
	"sort"

	"github.com/shopspring/decimal"

	"lendcore/core/types"
)

type accountPool struct {
	account string
	pool    string
}

type featureKey struct {
	feature string
	pool    string
}

type aclKey struct {
	feature string
	account string
}

type idSet map[uint64]struct{}

func (s idSet) sorted() []uint64 {
	out := make([]uint64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s idSet) clone() idSet {
	out := make(idSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Store holds every lending table. Records are owned by the store; callers
// that need to keep a record past the current operation must Clone it.
type Store struct {
	pools        map[string]*Pool
	poolByAnchor map[types.ExtendedSymbol]string
	poolByShare  map[types.ExtendedSymbol]string

	collaterals       map[uint64]*Collateral
	collByAccount     map[string]idSet
	collByPool        map[string]idSet
	collByAccountPool map[accountPool]uint64
	nextCollateralID  uint64
	loans             map[uint64]*Loan
	loanByAccount     map[string]idSet
	loanByPool        map[string]idSet
	loanByAccountPool map[accountPool]uint64
	nextLoanID        uint64
	orders            map[uint64]*LiquidationOrder
	nextOrderID       uint64
	health            map[string]*HealthRecord
	badDebts          map[string]*BadDebt
	earns             map[string]*Earn
	stables           map[string]*CachedStable
	rates             map[string]map[int64]decimal.Decimal
	features          map[featureKey]bool
	allows            map[aclKey]*ACLEntry
	blocks            map[aclKey]*ACLEntry
	defends           map[string]*DefendRecord
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		pools:             make(map[string]*Pool),
		poolByAnchor:      make(map[types.ExtendedSymbol]string),
		poolByShare:       make(map[types.ExtendedSymbol]string),
		collaterals:       make(map[uint64]*Collateral),
		collByAccount:     make(map[string]idSet),
		collByPool:        make(map[string]idSet),
		collByAccountPool: make(map[accountPool]uint64),
		loans:             make(map[uint64]*Loan),
		loanByAccount:     make(map[string]idSet),
		loanByPool:        make(map[string]idSet),
		loanByAccountPool: make(map[accountPool]uint64),
		orders:            make(map[uint64]*LiquidationOrder),
		health:            make(map[string]*HealthRecord),
		badDebts:          make(map[string]*BadDebt),
		earns:             make(map[string]*Earn),
		stables:           make(map[string]*CachedStable),
		rates:             make(map[string]map[int64]decimal.Decimal),
		features:          make(map[featureKey]bool),
		allows:            make(map[aclKey]*ACLEntry),
		blocks:            make(map[aclKey]*ACLEntry),
		defends:           make(map[string]*DefendRecord),
	}
}

// Copy returns a deep copy that can be mutated without affecting s.
func (s *Store) Copy() *Store {
	out := NewStore()
	for name, p := range s.pools {
		out.pools[name] = p.Clone()
	}
	for k, v := range s.poolByAnchor {
		out.poolByAnchor[k] = v
	}
	for k, v := range s.poolByShare {
		out.poolByShare[k] = v
	}
	for id, c := range s.collaterals {
		out.collaterals[id] = c.Clone()
	}
	for k, v := range s.collByAccount {
		out.collByAccount[k] = v.clone()
	}
	for k, v := range s.collByPool {
		out.collByPool[k] = v.clone()
	}
	for k, v := range s.collByAccountPool {
		out.collByAccountPool[k] = v
	}
	out.nextCollateralID = s.nextCollateralID
	for id, l := range s.loans {
		out.loans[id] = l.Clone()
	}
	for k, v := range s.loanByAccount {
		out.loanByAccount[k] = v.clone()
	}
	for k, v := range s.loanByPool {
		out.loanByPool[k] = v.clone()
	}
	for k, v := range s.loanByAccountPool {
		out.loanByAccountPool[k] = v
	}
	out.nextLoanID = s.nextLoanID
	for id, o := range s.orders {
		out.orders[id] = o.Clone()
	}
	out.nextOrderID = s.nextOrderID
	for k, v := range s.health {
		rec := *v
		out.health[k] = &rec
	}
	for k, v := range s.badDebts {
		rec := *v
		out.badDebts[k] = &rec
	}
	for k, v := range s.earns {
		rec := *v
		out.earns[k] = &rec
	}
	for k, v := range s.stables {
		rec := *v
		out.stables[k] = &rec
	}
	for pool, samples := range s.rates {
		cp := make(map[int64]decimal.Decimal, len(samples))
		for h, r := range samples {
			cp[h] = r
		}
		out.rates[pool] = cp
	}
	for k, v := range s.features {
		out.features[k] = v
	}
	for k, v := range s.allows {
		rec := *v
		out.allows[k] = &rec
	}
	for k, v := range s.blocks {
		rec := *v
		out.blocks[k] = &rec
	}
	for k, v := range s.defends {
		out.defends[k] = v.Clone()
	}
	return out
}

// Pools.

func (s *Store) pool(name string) (*Pool, bool) {
	p, ok := s.pools[name]
	return p, ok
}

func (s *Store) poolNames() []string {
	names := make([]string, 0, len(s.pools))
	for name := range s.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) poolByAnchorSymbol(sym types.ExtendedSymbol) (*Pool, bool) {
	name, ok := s.poolByAnchor[sym]
	if !ok {
		return nil, false
	}
	return s.pool(name)
}

func (s *Store) poolByShareSymbol(sym types.ExtendedSymbol) (*Pool, bool) {
	name, ok := s.poolByShare[sym]
	if !ok {
		return nil, false
	}
	return s.pool(name)
}

// poolBySymbol resolves either the share or the anchor denomination.
func (s *Store) poolBySymbol(sym types.ExtendedSymbol) (*Pool, bool) {
	if p, ok := s.poolByShareSymbol(sym); ok {
		return p, true
	}
	return s.poolByAnchorSymbol(sym)
}

func (s *Store) insertPool(p *Pool) {
	s.pools[p.Name] = p
	s.poolByAnchor[p.Anchor] = p.Name
	s.poolByShare[p.Share] = p.Name
}

// Collateral.

func (s *Store) collateralOf(account, pool string) (*Collateral, bool) {
	id, ok := s.collByAccountPool[accountPool{account, pool}]
	if !ok {
		return nil, false
	}
	return s.collaterals[id], true
}

func (s *Store) insertCollateral(c *Collateral) {
	c.ID = s.nextCollateralID
	s.nextCollateralID++
	s.putCollateral(c)
}

func (s *Store) putCollateral(c *Collateral) {
	s.collaterals[c.ID] = c
	addIndex(s.collByAccount, c.Account, c.ID)
	addIndex(s.collByPool, c.Pool, c.ID)
	s.collByAccountPool[accountPool{c.Account, c.Pool}] = c.ID
}

func (s *Store) deleteCollateral(id uint64) {
	c, ok := s.collaterals[id]
	if !ok {
		return
	}
	delete(s.collaterals, id)
	dropIndex(s.collByAccount, c.Account, id)
	dropIndex(s.collByPool, c.Pool, id)
	delete(s.collByAccountPool, accountPool{c.Account, c.Pool})
}

func (s *Store) collateralsOfAccount(account string) []*Collateral {
	ids := s.collByAccount[account].sorted()
	out := make([]*Collateral, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.collaterals[id])
	}
	return out
}

func (s *Store) collateralsOfPool(pool string) []*Collateral {
	ids := s.collByPool[pool].sorted()
	out := make([]*Collateral, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.collaterals[id])
	}
	return out
}

// Loans.

func (s *Store) loanOf(account, pool string) (*Loan, bool) {
	id, ok := s.loanByAccountPool[accountPool{account, pool}]
	if !ok {
		return nil, false
	}
	return s.loans[id], true
}

func (s *Store) insertLoan(l *Loan) {
	l.ID = s.nextLoanID
	s.nextLoanID++
	s.putLoan(l)
}

func (s *Store) putLoan(l *Loan) {
	s.loans[l.ID] = l
	addIndex(s.loanByAccount, l.Account, l.ID)
	addIndex(s.loanByPool, l.Pool, l.ID)
	s.loanByAccountPool[accountPool{l.Account, l.Pool}] = l.ID
}

func (s *Store) deleteLoan(id uint64) {
	l, ok := s.loans[id]
	if !ok {
		return
	}
	delete(s.loans, id)
	dropIndex(s.loanByAccount, l.Account, id)
	dropIndex(s.loanByPool, l.Pool, id)
	delete(s.loanByAccountPool, accountPool{l.Account, l.Pool})
}

func (s *Store) loansOfAccount(account string) []*Loan {
	ids := s.loanByAccount[account].sorted()
	out := make([]*Loan, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.loans[id])
	}
	return out
}

func (s *Store) loansOfPool(pool string) []*Loan {
	ids := s.loanByPool[pool].sorted()
	out := make([]*Loan, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.loans[id])
	}
	return out
}

// borrowers lists every account with a loan, sorted.
func (s *Store) borrowers() []string {
	out := make([]string, 0, len(s.loanByAccount))
	for account, ids := range s.loanByAccount {
		if len(ids) > 0 {
			out = append(out, account)
		}
	}
	sort.Strings(out)
	return out
}

// Orders.

func (s *Store) insertOrder(o *LiquidationOrder) {
	o.ID = s.nextOrderID
	s.nextOrderID++
	s.orders[o.ID] = o
}

func (s *Store) orderIDs() []uint64 {
	out := make([]uint64, 0, len(s.orders))
	for id := range s.orders {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Health.

func (s *Store) healthAccounts() []string {
	out := make([]string, 0, len(s.health))
	for account := range s.health {
		out = append(out, account)
	}
	sort.Strings(out)
	return out
}

// Rate history.

func (s *Store) rateSamples(pool string) map[int64]decimal.Decimal {
	samples, ok := s.rates[pool]
	if !ok {
		samples = make(map[int64]decimal.Decimal)
		s.rates[pool] = samples
	}
	return samples
}

func addIndex(idx map[string]idSet, key string, id uint64) {
	set, ok := idx[key]
	if !ok {
		set = make(idSet)
		idx[key] = set
	}
	set[id] = struct{}{}
}

func dropIndex(idx map[string]idSet, key string, id uint64) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx, key)
	}
}
