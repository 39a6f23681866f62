package lending

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/events"
	"lendcore/core/types"
)

func (t *tx) incrCollateral(account string, p *Pool, shares types.Asset) error {
	if shares.Amount <= 0 {
		return fmt.Errorf("%w: collateral", ErrInvalidAmount)
	}
	c, ok := t.store.collateralOf(account, p.Name)
	if ok {
		total, err := addChecked("collateral", c.Quantity, shares)
		if err != nil {
			return err
		}
		c.Quantity = total
		c.UpdatedAt = t.now
	} else {
		c = &Collateral{Account: account, Pool: p.Name, Quantity: shares, UpdatedAt: t.now}
		t.store.insertCollateral(c)
	}
	t.emit(events.LendingUpCollateral{Account: account, Pool: p.Name, Shares: c.Quantity, Quantity: p.AnchorFor(c.Quantity, t.now)})
	return nil
}

// decrCollateral removes shares and returns the quantity actually removed. A
// one-unit remainder is folded into the removal.
func (t *tx) decrCollateral(account string, p *Pool, shares types.Asset) (types.Asset, error) {
	if shares.Amount <= 0 {
		return types.Asset{}, fmt.Errorf("%w: collateral", ErrInvalidAmount)
	}
	c, ok := t.store.collateralOf(account, p.Name)
	if !ok {
		return types.Asset{}, ErrCollateralNotFound
	}
	if c.Quantity.Cmp(shares) < 0 {
		return types.Asset{}, ErrInsufficientCollateral
	}
	exact := shares
	if c.Quantity.Sub(exact).Amount == 1 {
		exact = c.Quantity
	}
	if c.Quantity == exact {
		t.store.deleteCollateral(c.ID)
		t.emit(events.LendingUpCollateral{
			Account:  account,
			Pool:     p.Name,
			Shares:   types.NewAsset(0, exact.Symbol),
			Quantity: types.NewAsset(0, p.AnchorSymbol()),
		})
		return exact, nil
	}
	c.Quantity = c.Quantity.Sub(exact)
	c.UpdatedAt = t.now
	t.emit(events.LendingUpCollateral{Account: account, Pool: p.Name, Shares: c.Quantity, Quantity: p.AnchorFor(c.Quantity, t.now)})
	return exact, nil
}

// loanRate is the rate a loan accrues at: its fixed rate when stable,
// otherwise the pool's floating rate.
func loanRate(l *Loan, p *Pool) decimal.Decimal {
	if l.Type == LoanStable {
		return l.FixedRate
	}
	return p.FloatingRate
}

// PendingInterest is the unsettled interest on the loan at now, in the
// borrow symbol.
func (l *Loan) PendingInterest(rate decimal.Decimal, now time.Time) types.Asset {
	interest := types.NewAsset(0, l.Quantity.Symbol)
	if !rate.IsPositive() {
		return interest
	}
	secs := elapsedSeconds(l.LastCalculatedAt, now)
	if secs < interestMinimumElapsed {
		return interest
	}
	interest.Amount = clampAmount(float64(l.Quantity.Amount) * toFloat(rate) * float64(secs) / secondsPerYear)
	return interest
}

func stableFlow(l *Loan) float64 {
	if l.Type != LoanStable {
		return 0
	}
	return toFloat(l.FixedRate) * l.Quantity.Float()
}

func (t *tx) incrLoan(account string, p *Pool, q types.Asset, typ LoanType) error {
	if q.Amount <= 0 {
		return fmt.Errorf("%w: loan", ErrInvalidAmount)
	}
	exact, err := q.Rescale(p.BorrowSymbol())
	if err != nil {
		return err
	}

	var oldStable, newStable float64
	l, ok := t.store.loanOf(account, p.Name)
	if ok {
		oldStable = stableFlow(l)
		if l.Type != typ {
			switchBorrowType(p, l.Quantity, typ)
		}
		if exact, err = addChecked("loan increment", exact, l.PendingInterest(loanRate(l, p), t.now)); err != nil {
			return err
		}
		principal, err := addChecked("loan principal", l.Principal, q)
		if err != nil {
			return err
		}
		quantity, err := addChecked("loan", l.Quantity, exact)
		if err != nil {
			return err
		}
		l.Principal, l.Quantity = principal, quantity
		l.Type = typ
	} else {
		l = &Loan{
			Account:   account,
			Pool:      p.Name,
			Principal: q,
			Quantity:  exact,
			Type:      typ,
		}
		t.store.insertLoan(l)
	}
	if typ == LoanStable {
		l.FixedRate = t.fixedRate(p, exact.Amount)
		l.TurnVariableAfter = turnVariableCountdown
	} else {
		l.FixedRate = decimal.Zero
		l.TurnVariableAfter = 0
	}
	l.LastCalculatedAt = t.now
	l.UpdatedAt = t.now
	newStable = stableFlow(l)
	t.emit(events.LendingUpBorrow{Account: account, Pool: p.Name, Quantity: l.Quantity})

	if newStable != oldStable {
		if err := t.changeStableInterest(p.Name, newStable-oldStable); err != nil {
			return err
		}
	}
	return t.updateBorrow(p, q, exact, typ, false)
}

// decrLoan repays q (anchor or borrow symbol) against the loan. Liquidations
// may pass a zero quantity to clear dust and leave available untouched.
func (t *tx) decrLoan(account string, p *Pool, q types.Asset, liquidating bool) error {
	if q.Amount <= 0 && !liquidating {
		return fmt.Errorf("%w: loan", ErrInvalidAmount)
	}
	l, ok := t.store.loanOf(account, p.Name)
	if !ok {
		return ErrLoanNotFound
	}
	oldStable := stableFlow(l)
	interest := l.PendingInterest(loanRate(l, p), t.now)

	raw, err := q.Rescale(p.AnchorSymbol())
	if err != nil {
		return err
	}
	exact, err := q.Rescale(p.BorrowSymbol())
	if err != nil {
		return err
	}
	remain := l.Quantity.Sub(exact).Add(interest)
	if remain.Amount < 0 {
		return ErrInsufficientLoan
	}
	ratio := 1 - exact.Float()/(l.Quantity.Float()+interest.Float())
	principal := types.NewAsset(clampAmount(float64(l.Principal.Amount)*ratio), l.Principal.Symbol)
	typ := l.Type

	var borrowDelta types.Asset
	if remain.MustRescale(p.AnchorSymbol()).Amount > 0 {
		elapsed := t.now.Sub(l.LastCalculatedAt)
		l.Quantity = remain
		l.Principal = principal
		l.LastCalculatedAt = t.now
		if l.Type == LoanStable {
			l.TurnVariableAfter = decrCountdown(l.TurnVariableAfter, elapsed)
		}
		l.UpdatedAt = t.now
		t.emit(events.LendingUpBorrow{Account: account, Pool: p.Name, Quantity: l.Quantity})
		borrowDelta = exact.Sub(interest).Neg()
	} else {
		borrowDelta = l.Quantity.Neg()
		t.store.deleteLoan(l.ID)
		t.emit(events.LendingUpBorrow{Account: account, Pool: p.Name, Quantity: types.NewAsset(0, l.Quantity.Symbol)})
		l = nil
	}

	var newStable float64
	if l != nil {
		newStable = stableFlow(l)
	}
	if newStable != oldStable {
		if err := t.changeStableInterest(p.Name, newStable-oldStable); err != nil {
			return err
		}
	}
	return t.updateBorrow(p, raw.Neg(), borrowDelta, typ, liquidating)
}

func decrCountdown(countdown, elapsed time.Duration) time.Duration {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed < countdown {
		return countdown - elapsed
	}
	return 0
}

func (t *tx) changeStableInterest(pool string, delta float64) error {
	rec, ok := t.store.stables[pool]
	if !ok {
		rec = &CachedStable{Pool: pool}
		t.store.stables[pool] = rec
	}
	rec.Interest += delta
	rec.UpdatedAt = t.now
	if rec.Interest < 0 {
		if rec.Interest > -stableInterestTolerance {
			rec.Interest = 0
			return nil
		}
		return fmt.Errorf("%w: pool %s", ErrNegativeStableInterest, pool)
	}
	return nil
}

func (t *tx) cacheStable(pool string, interest float64) {
	t.store.stables[pool] = &CachedStable{Pool: pool, Interest: interest, UpdatedAt: t.now}
}

// stableInterest reads the cached stable flow, rebuilding it from the loan
// ledger when absent.
func (t *tx) stableInterest(pool string) (float64, error) {
	if rec, ok := t.store.stables[pool]; ok {
		return rec.Interest, nil
	}
	if _, ok := t.store.pool(pool); !ok {
		return 0, ErrPoolNotFound
	}
	var total float64
	for _, l := range t.store.loansOfPool(pool) {
		total += stableFlow(l)
	}
	t.cacheStable(pool, total)
	return total, nil
}
