package lending

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/events"
	"lendcore/core/types"
)

// maxAnchorPrecision leaves room for the borrow symbol's extra digits.
const maxAnchorPrecision = types.MaxPrecision - BorrowSymbolExtraPrecision

// PoolSpec describes a pool to register.
type PoolSpec struct {
	Name      string               `toml:"name" json:"name"`
	Share     types.ExtendedSymbol `toml:"-" json:"share"`
	Anchor    types.ExtendedSymbol `toml:"-" json:"anchor"`
	Config    PoolConfig           `toml:"config" json:"config"`
	MaxSupply int64                `toml:"max_supply" json:"max_supply"`
}

// AddPool registers a pool and asks the host to create its share token.
func (e *Engine) AddPool(spec PoolSpec) (*Result, error) {
	return e.apply(func(t *tx) error {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return fmt.Errorf("%w: pool name required", ErrInvalidParams)
		}
		if err := spec.Config.Validate(); err != nil {
			return err
		}
		if !spec.Share.Symbol.Valid() || !spec.Anchor.Symbol.Valid() {
			return fmt.Errorf("%w: pool symbols", ErrInvalidParams)
		}
		if spec.Share.Symbol.Precision != spec.Anchor.Symbol.Precision {
			return ErrPrecisionMismatch
		}
		if spec.Anchor.Symbol.Precision > maxAnchorPrecision {
			return ErrPrecisionTooLarge
		}
		if _, ok := t.store.pool(name); ok {
			return fmt.Errorf("%w: %s", ErrPoolExists, name)
		}
		if _, ok := t.store.poolByAnchorSymbol(spec.Anchor); ok {
			return fmt.Errorf("%w: %s", ErrAnchorExists, spec.Anchor)
		}
		if _, ok := t.store.poolByShareSymbol(spec.Share); ok {
			return fmt.Errorf("%w: %s", ErrShareExists, spec.Share)
		}
		if spec.MaxSupply < 0 {
			return fmt.Errorf("%w: max supply", ErrInvalidParams)
		}

		anchor := spec.Anchor.Symbol
		borrow := anchor.WithPrecision(anchor.Precision + BorrowSymbolExtraPrecision)
		p := &Pool{
			Name:              name,
			Share:             spec.Share,
			Anchor:            spec.Anchor,
			CumulativeDeposit: types.NewAsset(0, anchor),
			AvailableDeposit:  types.NewAsset(0, anchor),
			ShareSupply:       types.NewAsset(0, spec.Share.Symbol),
			Borrow:            types.NewAsset(0, borrow),
			CumulativeBorrow:  types.NewAsset(0, borrow),
			VariableBorrow:    types.NewAsset(0, borrow),
			StableBorrow:      types.NewAsset(0, borrow),
			SharePrice:        1,
			UpdatedAt:         t.now,
			Config:            spec.Config,
		}
		t.store.insertPool(p)
		t.effect(EffectCreateDenom, spec.Share.Contract, spec.Share, types.NewAsset(spec.MaxSupply, spec.Share.Symbol), "create share token")
		t.logger.Info("pool registered",
			slog.String("pool", name),
			slog.String("anchor", spec.Anchor.String()),
			slog.String("share", spec.Share.String()))
		return nil
	})
}

// SetPoolConfig replaces a pool's config and settles it under the new curve.
func (e *Engine) SetPoolConfig(pool string, cfg PoolConfig) (*Result, error) {
	return e.apply(func(t *tx) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		p, err := t.poolByName(pool)
		if err != nil {
			return err
		}
		p.Config = cfg
		return t.settle(p)
	})
}

// SetRate lowers base and max rates on the named pools. Rates are never
// raised and unknown pools are skipped.
func (e *Engine) SetRate(pools []string, baseRate, maxRate decimal.Decimal) (*Result, error) {
	return e.apply(func(t *tx) error {
		for _, name := range pools {
			p, ok := t.store.pool(name)
			if !ok {
				continue
			}
			if p.Config.BaseRate.GreaterThan(baseRate) {
				p.Config.BaseRate = baseRate
			}
			if p.Config.MaxRate.GreaterThan(maxRate) {
				p.Config.MaxRate = maxRate
			}
			if err := t.settle(p); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetFeatures opens or closes user flows on a pool.
func (e *Engine) SetFeatures(pool string, perms []FeaturePerm) (*Result, error) {
	return e.apply(func(t *tx) error {
		return t.setFeatures(pool, perms)
	})
}

// ClaimEarn skims each pool's retained income to the keep account. Pools
// with negative income are skipped.
func (e *Engine) ClaimEarn() (*Result, error) {
	return e.apply(func(t *tx) error {
		for _, name := range t.store.poolNames() {
			p := t.store.pools[name]
			earn := p.DiscountInterest(t.now)
			if earn.Amount < 0 {
				t.logger.Warn("pool income is negative",
					slog.String("pool", name),
					slog.String("earn", earn.String()))
				continue
			}
			got := earn
			if got.Cmp(p.AvailableDeposit) > 0 {
				got = p.AvailableDeposit
			}
			if got.Amount <= 0 {
				continue
			}
			if err := t.decrAvailable(p, got); err != nil {
				return err
			}
			t.transferOut(t.params.KeepAccount, p.Anchor, got, "system income")
			if rec, ok := t.store.earns[name]; ok {
				rec.Received = rec.Received.Add(got)
				rec.UpdatedAt = t.now
			} else {
				t.store.earns[name] = &Earn{Pool: name, Received: got, UpdatedAt: t.now}
			}
		}
		return nil
	})
}

// AddAllow exempts account from blocking on feature. A zero duration never
// expires.
func (e *Engine) AddAllow(account, feature string, duration time.Duration) (*Result, error) {
	return e.apply(func(t *tx) error {
		return t.addEntry(t.store.allows, account, feature, AllowManual, duration)
	})
}

func (e *Engine) RemoveAllow(account, feature string) (*Result, error) {
	return e.apply(func(t *tx) error {
		return t.removeEntry(t.store.allows, account, feature)
	})
}

// AddBlock denies account the feature. A zero duration never expires.
func (e *Engine) AddBlock(account, feature string, duration time.Duration) (*Result, error) {
	return e.apply(func(t *tx) error {
		return t.addEntry(t.store.blocks, account, feature, BlockManual, duration)
	})
}

func (e *Engine) RemoveBlock(account, feature string) (*Result, error) {
	return e.apply(func(t *tx) error {
		return t.removeEntry(t.store.blocks, account, feature)
	})
}

// SetDefend tunes a pool's circuit breaker.
func (e *Engine) SetDefend(pool string, s DefendSettings) (*Result, error) {
	return e.apply(func(t *tx) error {
		return t.setDefend(pool, s)
	})
}

// ResumeDefend lifts an engaged pause on a pool's circuit breaker.
func (e *Engine) ResumeDefend(pool string) (*Result, error) {
	return e.apply(func(t *tx) error {
		return t.resumeDefend(pool)
	})
}

// SwapRequest migrates collateral between pools at an admin-set rate.
type SwapRequest struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Rate decimal.Decimal `json:"rate"`
	// Limit caps the number of positions moved in one call.
	Limit uint32 `json:"limit"`
	// Start skips positions with a lower id.
	Start uint64 `json:"start"`
	// DebtAccount, when set, has its loan in the source pool reduced by the
	// anchor quantity destroyed.
	DebtAccount string `json:"debt_account,omitempty"`
}

// CollateralSwap moves every collateral position in From (up to Limit) into
// To, converting at share_price(From)·Rate/share_price(To).
func (e *Engine) CollateralSwap(req SwapRequest) (*Result, error) {
	return e.apply(func(t *tx) error {
		if req.Limit == 0 || !req.Rate.IsPositive() || req.From == req.To {
			return fmt.Errorf("%w: collateral swap", ErrInvalidParams)
		}
		from, err := t.poolByName(req.From)
		if err != nil {
			return err
		}
		to, err := t.poolByName(req.To)
		if err != nil {
			return err
		}
		swapRate := from.SharePriceAt(t.now) * toFloat(req.Rate) / to.SharePriceAt(t.now)

		destroyed := types.NewAsset(0, from.Share.Symbol)
		issued := types.NewAsset(0, to.Share.Symbol)
		var count uint32
		for _, c := range t.store.collateralsOfPool(from.Name) {
			if req.Start > 0 && c.ID < req.Start {
				continue
			}
			account, shares := c.Account, c.Quantity
			destroyed = destroyed.Add(shares)
			t.store.deleteCollateral(c.ID)
			t.emit(events.LendingUpCollateral{
				Account:  account,
				Pool:     from.Name,
				Shares:   types.NewAsset(0, shares.Symbol),
				Quantity: types.NewAsset(0, from.AnchorSymbol()),
			})

			moved := types.FromFloat(shares.Float()*swapRate, to.Share.Symbol)
			if moved.Amount > 0 {
				issued = issued.Add(moved)
				if err := t.incrCollateral(account, to, moved); err != nil {
					return err
				}
			}
			if err := t.cacheHealth(account); err != nil {
				return err
			}
			t.logger.Debug("collateral swapped",
				slog.String("account", account),
				slog.String("from", shares.String()),
				slog.String("to", moved.String()))
			count++
			if count >= req.Limit {
				break
			}
		}
		if count == 0 {
			return ErrNothingToSwap
		}

		decr := from.AnchorFor(destroyed, t.now)
		if err := t.updateDeposit(from, decr.Neg(), destroyed.Neg()); err != nil {
			return err
		}
		t.transferOut(from.Share.Contract, from.Share, destroyed, "collateral swap")

		if req.DebtAccount != "" && decr.Amount > 0 {
			if l, ok := t.store.loanOf(req.DebtAccount, from.Name); ok {
				owed := l.Quantity.Add(l.PendingInterest(loanRate(l, from), t.now)).MustRescale(from.AnchorSymbol())
				repaid := decr
				if repaid.Cmp(owed) > 0 {
					repaid = owed
				}
				if repaid.Amount > 0 {
					if err := t.decrLoan(req.DebtAccount, from, repaid, false); err != nil {
						return err
					}
				}
			}
		}

		incr := to.AnchorFor(issued, t.now)
		if err := t.updateDeposit(to, incr, issued); err != nil {
			return err
		}
		if issued.Amount > 0 {
			t.issue(t.params.WalletAccount, to.Share, issued, "collateral swap")
		}
		t.logger.Info("collateral swap committed",
			slog.String("from", from.Name),
			slog.String("to", to.Name),
			slog.Int("positions", int(count)),
			slog.String("destroyed", destroyed.String()),
			slog.String("issued", issued.String()))
		return nil
	})
}
