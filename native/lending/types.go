package lending

import (
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/types"
)

// BorrowSymbolExtraPrecision is the number of extra fractional digits carried
// by loan quantities relative to the pool's anchor asset.
const BorrowSymbolExtraPrecision = 4

// LoanType distinguishes floating-rate and fixed-rate loans.
type LoanType uint8

const (
	LoanVariable LoanType = 1
	LoanStable   LoanType = 2
)

func (t LoanType) Valid() bool { return t == LoanVariable || t == LoanStable }

func (t LoanType) String() string {
	switch t {
	case LoanVariable:
		return "variable"
	case LoanStable:
		return "stable"
	default:
		return "unknown"
	}
}

// Feature names gate user flows per pool.
const (
	FeatureDeposit  = "deposit"
	FeatureWithdraw = "withdraw"
	FeatureBorrow   = "borrow"
	FeatureRepay    = "repay"

	// All is the wildcard account or feature in access lists.
	All = "all"
)

// Pool is the lending state for one anchor asset and its share token.
type Pool struct {
	Name              string
	Share             types.ExtendedSymbol
	Anchor            types.ExtendedSymbol
	CumulativeDeposit types.Asset
	AvailableDeposit  types.Asset
	ShareSupply       types.Asset
	Borrow            types.Asset
	CumulativeBorrow  types.Asset
	VariableBorrow    types.Asset
	StableBorrow      types.Asset
	UsageRate         decimal.Decimal
	FloatingRate      decimal.Decimal
	DiscountRate      decimal.Decimal
	Price             decimal.Decimal
	SharePrice        float64
	SharePriceRate    float64
	UpdatedAt         time.Time
	Config            PoolConfig
}

// AnchorSymbol is the deposit and payout denomination.
func (p *Pool) AnchorSymbol() types.Symbol { return p.Anchor.Symbol }

// BorrowSymbol is the higher-precision denomination loan quantities use.
func (p *Pool) BorrowSymbol() types.Symbol {
	return p.Anchor.Symbol.WithPrecision(p.Anchor.Symbol.Precision + BorrowSymbolExtraPrecision)
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Collateral is the share quantity an account has pledged to one pool.
type Collateral struct {
	ID        uint64
	Account   string
	Pool      string
	Quantity  types.Asset
	UpdatedAt time.Time
}

func (c *Collateral) Clone() *Collateral {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Loan is an account's outstanding debt to one pool.
type Loan struct {
	ID        uint64
	Account   string
	Pool      string
	Principal types.Asset
	// Quantity includes settled interest and is denominated in the borrow symbol.
	Quantity          types.Asset
	Type              LoanType
	FixedRate         decimal.Decimal
	TurnVariableAfter time.Duration
	LastCalculatedAt  time.Time
	UpdatedAt         time.Time
}

func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// ActualQuantity is the outstanding quantity truncated to anchor precision.
func (l *Loan) ActualQuantity() types.Asset {
	return l.Quantity.MustRescale(l.Principal.Symbol)
}

// LiquidationOrder escrows seized collateral against the debt it settles.
type LiquidationOrder struct {
	ID           uint64
	Account      string
	Collateral   types.ExtendedAsset
	Loan         types.ExtendedAsset
	LiquidatedAt time.Time
	UpdatedAt    time.Time
}

func (o *LiquidationOrder) Clone() *LiquidationOrder {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

// HealthRecord is the cached collateralization of an indebted account.
type HealthRecord struct {
	Account         string
	LoanValue       float64
	CollateralValue float64
	Factor          float64
	UpdatedAt       time.Time
}

// refreshAfter returns the cadence for the record's factor band.
func (h *HealthRecord) refreshAfter() time.Duration {
	switch {
	case h.Factor < 1.25:
		return 6 * time.Minute
	case h.Factor < 1.5:
		return 15 * time.Minute
	case h.Factor < 1.7:
		return 70 * time.Minute
	case h.Factor < 2:
		return 100 * time.Minute
	default:
		return 250 * time.Minute
	}
}

// ShouldRefresh reports whether the record is stale at now. A positive
// threshold skips records whose factor is above it.
func (h *HealthRecord) ShouldRefresh(now time.Time, threshold float64) bool {
	if threshold > 0 && h.Factor > threshold {
		return false
	}
	if !now.After(h.UpdatedAt) {
		return false
	}
	elapsed := now.Sub(h.UpdatedAt).Truncate(time.Second)
	return elapsed >= h.refreshAfter()
}

// BadDebt accumulates the insolvent shortfall of a pool.
type BadDebt struct {
	Pool     string
	Quantity types.ExtendedAsset
}

// Earn accumulates protocol income skimmed from a pool.
type Earn struct {
	Pool      string
	Received  types.Asset
	UpdatedAt time.Time
}

// CachedStable caches Σ fixed_rate·quantity over a pool's stable loans.
type CachedStable struct {
	Pool      string
	Interest  float64
	UpdatedAt time.Time
}

// RateSample is the highest floating rate observed in an hour.
type RateSample struct {
	Hour int64
	Rate decimal.Decimal
}

// FeaturePerm opens or closes a feature for a pool.
type FeaturePerm struct {
	Feature string `json:"feature"`
	Open    bool   `json:"open"`
}

// ACL entry kinds.
const (
	AllowManual uint8 = 1

	BlockManual   uint8 = 1
	BlockContract uint8 = 2
)

// ACLEntry is an allow or block list entry. A zero ExpiresAt never expires.
type ACLEntry struct {
	Feature   string
	Account   string
	Type      uint8
	ExpiresAt time.Time
}

func (e *ACLEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now)
}

// DefendRecord is the circuit breaker state of a pool.
type DefendRecord struct {
	Pool       string
	PoolSize   uint8
	Percent    uint8
	MaxValue   decimal.Decimal
	PauseValue decimal.Decimal
	// Window holds recent share supplies, one slot per day.
	Window    []types.Asset
	Mid       types.Asset
	PauseTill time.Time
	UpdatedAt time.Time
}

func (d *DefendRecord) Clone() *DefendRecord {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Window = append([]types.Asset(nil), d.Window...)
	return &clone
}

// Paused reports whether the breaker is engaged at now.
func (d *DefendRecord) Paused(now time.Time) bool {
	return now.Before(d.PauseTill)
}
