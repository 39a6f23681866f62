package lending

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/types"
)

// UsageRateAt returns borrow/(borrow+available) after a hypothetical borrow
// of incr minimal units in the borrow symbol.
func (p *Pool) UsageRateAt(incr int64) decimal.Decimal {
	incrBorrow := types.NewAsset(incr, p.BorrowSymbol())
	decrDeposit := incrBorrow.MustRescale(p.AnchorSymbol())
	d := p.AvailableDeposit.Float() - decrDeposit.Float()
	b := p.Borrow.Float() + incrBorrow.Float()
	if b+d == 0 {
		return decimal.Zero
	}
	return rateFromFloat(b / (b + d))
}

// FloatingRateAt applies the utilization curve base + max·usage^power.
func (p *Pool) FloatingRateAt(incr int64) decimal.Decimal {
	usage := toFloat(p.UsageRateAt(incr))
	rate := toFloat(p.Config.BaseRate) + toFloat(p.Config.MaxRate)*math.Pow(usage, toFloat(p.Config.FloatingRatePower))
	return rateFromFloat(rate)
}

// DiscountRateAt applies the discount curve for the given usage.
func (p *Pool) DiscountRateAt(usage decimal.Decimal) decimal.Decimal {
	best := toFloat(p.Config.BestUsageRate)
	diff := math.Abs(best - toFloat(usage))
	return rateFromFloat(toFloat(p.Config.MaxDiscountRate) - toFloat(p.Config.BaseDiscountRate)*diff/best)
}

// SharePriceAt extrapolates the share price linearly from the last recalculation.
func (p *Pool) SharePriceAt(now time.Time) float64 {
	secs := elapsedSeconds(p.UpdatedAt, now)
	return p.SharePrice * (1 + p.SharePriceRate*float64(secs))
}

// SharesFor converts an anchor quantity into shares at the current price.
func (p *Pool) SharesFor(anchor types.Asset, now time.Time) types.Asset {
	scale := math.Pow10(int(p.Share.Symbol.Precision))
	return types.NewAsset(clampAmount(anchor.Float()*scale/p.SharePriceAt(now)), p.Share.Symbol)
}

// AnchorFor converts shares into the anchor quantity they redeem for.
func (p *Pool) AnchorFor(shares types.Asset, now time.Time) types.Asset {
	scale := math.Pow10(int(p.Anchor.Symbol.Precision))
	return types.NewAsset(clampAmount(shares.Float()*scale*p.SharePriceAt(now)), p.Anchor.Symbol)
}

// DiscountInterest is the protocol's retained income: everything the pool
// holds or is owed beyond what outstanding shares redeem for.
func (p *Pool) DiscountInterest(now time.Time) types.Asset {
	borrowed := p.Borrow.MustRescale(p.AnchorSymbol())
	undrawn := types.NewAsset(clampAmount(float64(p.ShareSupply.Amount)*p.SharePriceAt(now)), p.AnchorSymbol())
	return borrowed.Add(p.AvailableDeposit).Sub(undrawn)
}

func (p *Pool) priceFloat() float64 { return toFloat(p.Price) }

// recal refreshes usage, floating and discount rates and rebases the share
// price growth at now.
func (t *tx) recal(p *Pool) error {
	usage := p.UsageRateAt(0)
	floating := p.FloatingRateAt(0)
	t.recordRate(p.Name, floating, hourOf(t.now))
	discount := p.DiscountRateAt(usage)

	price := p.SharePriceAt(t.now)
	stable, err := t.stableInterest(p.Name)
	if err != nil {
		return err
	}
	total := toFloat(floating)*p.VariableBorrow.Float() + stable
	var growth float64
	if p.ShareSupply.Amount > 0 {
		growth = total / (p.ShareSupply.Float() * price) / secondsPerYear * (1 - toFloat(discount))
	}

	p.UsageRate = usage
	p.FloatingRate = floating
	p.DiscountRate = discount
	p.SharePrice = price
	p.SharePriceRate = growth
	p.UpdatedAt = t.now
	return nil
}

func (t *tx) incrAvailable(p *Pool, q types.Asset) error {
	avail, err := addChecked("available deposit", p.AvailableDeposit, q)
	if err != nil {
		return err
	}
	p.AvailableDeposit = avail
	return t.recal(p)
}

func (t *tx) decrAvailable(p *Pool, q types.Asset) error {
	if p.AvailableDeposit.Cmp(q) < 0 {
		return ErrInsufficientDeposit
	}
	p.AvailableDeposit = p.AvailableDeposit.Sub(q)
	return t.recal(p)
}

// updateDeposit moves available liquidity and share supply together.
func (t *tx) updateDeposit(p *Pool, q, shares types.Asset) error {
	cumulative := p.CumulativeDeposit
	var err error
	if q.Amount > 0 {
		if cumulative, err = addChecked("cumulative deposit", cumulative, q); err != nil {
			return err
		}
	}
	avail, err := addChecked("available deposit", p.AvailableDeposit, q)
	if err != nil {
		return err
	}
	supply, err := addChecked("share supply", p.ShareSupply, shares)
	if err != nil {
		return err
	}
	p.CumulativeDeposit, p.AvailableDeposit, p.ShareSupply = cumulative, avail, supply
	t.updateDefend(p, shares)
	return t.recal(p)
}

// updateBorrow applies a borrow delta; liquidations leave available untouched.
func (t *tx) updateBorrow(p *Pool, anchorDelta, borrowDelta types.Asset, typ LoanType, liquidating bool) error {
	if !liquidating {
		avail, err := subChecked("available deposit", p.AvailableDeposit, anchorDelta)
		if err != nil {
			return err
		}
		p.AvailableDeposit = avail
	}
	borrow, err := addChecked("borrow", p.Borrow, borrowDelta)
	if err != nil {
		return err
	}
	p.Borrow = borrow
	if borrowDelta.Amount > 0 {
		if p.CumulativeBorrow, err = addChecked("cumulative borrow", p.CumulativeBorrow, borrowDelta); err != nil {
			return err
		}
	}
	switch typ {
	case LoanVariable:
		p.VariableBorrow = p.VariableBorrow.Add(borrowDelta)
	case LoanStable:
		p.StableBorrow = p.StableBorrow.Add(borrowDelta)
	}
	return t.recal(p)
}

func switchBorrowType(p *Pool, q types.Asset, to LoanType) {
	switch to {
	case LoanVariable:
		p.VariableBorrow = p.VariableBorrow.Add(q)
		p.StableBorrow = p.StableBorrow.Sub(q)
	case LoanStable:
		p.StableBorrow = p.StableBorrow.Add(q)
		p.VariableBorrow = p.VariableBorrow.Sub(q)
	}
}

// refreshPrice pulls the oracle quote and reports whether it moved.
func (t *tx) refreshPrice(p *Pool) (bool, error) {
	if t.oracle == nil {
		return false, ErrUnknownPrice
	}
	price, err := t.oracle.GetPrice(p.Anchor)
	if err != nil {
		return false, err
	}
	price = price.Truncate(FloatPrecision)
	if price.Equal(p.Price) {
		return false, nil
	}
	p.Price = price
	return true, nil
}

func (t *tx) refreshPrices() (bool, error) {
	changed := false
	for _, name := range t.store.poolNames() {
		moved, err := t.refreshPrice(t.store.pools[name])
		if err != nil {
			return false, err
		}
		changed = changed || moved
	}
	return changed, nil
}

func (t *tx) poolByName(name string) (*Pool, error) {
	p, ok := t.store.pool(name)
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

func (t *tx) poolByAnchor(sym types.ExtendedSymbol) (*Pool, error) {
	p, ok := t.store.poolByAnchorSymbol(sym)
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

func (t *tx) poolByShare(sym types.ExtendedSymbol) (*Pool, error) {
	p, ok := t.store.poolByShareSymbol(sym)
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

func (t *tx) poolBySymbol(sym types.ExtendedSymbol) (*Pool, error) {
	p, ok := t.store.poolBySymbol(sym)
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}
