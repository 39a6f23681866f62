package lending

import (
	"sort"

	"lendcore/core/events"
	"lendcore/core/types"
)

// liquidate seizes collateral against half of the account's loan value.
// Loans and collateral are visited in their pools' configured priority; any
// part of a loan the remaining collateral cannot cover is written off as bad
// debt.
func (t *tx) liquidate(account string, loanValue float64) error {
	target := loanValue / 2

	loans, err := t.loansByPriority(account)
	if err != nil {
		return err
	}
	colls, err := t.collateralsByPriority(account)
	if err != nil {
		return err
	}

	for _, l := range loans {
		if target <= 0 {
			break
		}
		p, err := t.poolByName(l.Pool)
		if err != nil {
			return err
		}
		loanQty := l.ActualQuantity()
		value := p.priceFloat() * loanQty.Float()
		if value <= target {
			target -= value
		} else {
			loanQty.Amount = clampAmount(float64(loanQty.Amount) * target / value)
			if loanQty.Amount == 0 {
				loanQty = l.ActualQuantity()
			} else {
				value = target
			}
			target = 0
		}

		remainValue := value
		remainQty := loanQty
		decr := types.NewAsset(0, loanQty.Symbol)
		for len(colls) > 0 && remainValue > 0 {
			c := colls[0]
			if c.Quantity.Amount == 0 {
				colls = colls[1:]
				continue
			}
			cp, err := t.poolByName(c.Pool)
			if err != nil {
				return err
			}
			bonus := toFloat(cp.Config.LiqdtBonus)
			cprice := cp.priceFloat() * cp.SharePriceAt(t.now) / (1 + bonus)
			collValue := cprice * c.Quantity.Float()

			switch {
			case collValue < remainValue:
				covered := remainQty
				covered.Amount = clampAmount(float64(covered.Amount) * collValue / remainValue)
				if covered.Amount <= 0 {
					colls = colls[1:]
					continue
				}
				seized, err := t.decrCollateral(account, cp, c.Quantity)
				if err != nil {
					return err
				}
				t.addOrder(account, bonus, cp.Share.Contract, seized, p.Anchor.Contract, covered)
				decr = decr.Add(covered)
				remainValue -= collValue
				remainQty = remainQty.Sub(covered)
				colls = colls[1:]
			case collValue == remainValue:
				seized, err := t.decrCollateral(account, cp, c.Quantity)
				if err != nil {
					return err
				}
				t.addOrder(account, bonus, cp.Share.Contract, seized, p.Anchor.Contract, remainQty)
				decr = decr.Add(remainQty)
				remainValue = 0
				remainQty.Amount = 0
				colls = colls[1:]
			default:
				take := c.Quantity
				take.Amount = clampAmount(float64(take.Amount) * remainValue / collValue)
				if take.Amount <= 0 {
					take.Amount = 1
				}
				seized, err := t.decrCollateral(account, cp, take)
				if err != nil {
					return err
				}
				t.addOrder(account, bonus, cp.Share.Contract, seized, p.Anchor.Contract, remainQty)
				decr = decr.Add(remainQty)
				remainValue = 0
				remainQty.Amount = 0
				c.Quantity = c.Quantity.Sub(seized)
			}
		}

		if remainQty.Amount > 0 {
			t.emit(events.LendingInsolvent{Account: account, Pool: p.Name, Contract: p.Anchor.Contract, Quantity: remainQty})
			t.incrBadDebt(p, remainQty)
			decr = decr.Add(remainQty)
		}
		if err := t.decrLoan(account, p, decr, true); err != nil {
			return err
		}
	}
	return nil
}

// loansByPriority snapshots the account's loans ordered by borrow_liqdt_order.
func (t *tx) loansByPriority(account string) ([]*Loan, error) {
	loans := t.store.loansOfAccount(account)
	out := make([]*Loan, 0, len(loans))
	order := make(map[uint64]uint8, len(loans))
	for _, l := range loans {
		p, err := t.poolByName(l.Pool)
		if err != nil {
			return nil, err
		}
		order[l.ID] = p.Config.BorrowLiqdtOrder
		out = append(out, l.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return order[out[i].ID] < order[out[j].ID] })
	return out, nil
}

// collateralsByPriority snapshots the account's collateral ordered by
// collateral_liqdt_order. The snapshot is a working copy the liquidation pass
// consumes; the ledger is only changed through decrCollateral.
func (t *tx) collateralsByPriority(account string) ([]*Collateral, error) {
	colls := t.store.collateralsOfAccount(account)
	out := make([]*Collateral, 0, len(colls))
	order := make(map[uint64]uint8, len(colls))
	for _, c := range colls {
		p, err := t.poolByName(c.Pool)
		if err != nil {
			return nil, err
		}
		order[c.ID] = p.Config.CollateralLiqdtOrder
		out = append(out, c.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return order[out[i].ID] < order[out[j].ID] })
	return out, nil
}

// addOrder escrows seized collateral, routing bonus/(1+bonus)/3 of it to the
// safu account.
func (t *tx) addOrder(account string, bonus float64, collContract string, coll types.Asset, loanContract string, loan types.Asset) {
	risk := types.NewAsset(clampAmount(float64(coll.Amount)*bonus/(1+bonus)/3), coll.Symbol)
	if risk.Amount > 0 {
		t.transferOut(t.params.SafuAccount, types.ExtendedSymbol{Symbol: coll.Symbol, Contract: collContract}, risk, "safe asset fund for users")
	}
	order := &LiquidationOrder{
		Account:      account,
		Collateral:   types.ExtendedAsset{Quantity: coll.Sub(risk), Contract: collContract},
		Loan:         types.ExtendedAsset{Quantity: loan, Contract: loanContract},
		LiquidatedAt: t.now,
		UpdatedAt:    t.now,
	}
	t.store.insertOrder(order)
	t.emit(events.LendingLiquidated{
		Account:    account,
		OrderID:    order.ID,
		Collateral: types.ExtendedAsset{Quantity: coll, Contract: collContract},
		Loan:       order.Loan,
	})
}

func (t *tx) incrBadDebt(p *Pool, q types.Asset) {
	rec, ok := t.store.badDebts[p.Name]
	if !ok {
		t.store.badDebts[p.Name] = &BadDebt{Pool: p.Name, Quantity: types.ExtendedAsset{Quantity: q, Contract: p.Anchor.Contract}}
		return
	}
	rec.Quantity.Quantity = rec.Quantity.Quantity.Add(q)
}

// bid repays part or all of an order's debt for a proportional share of its
// collateral.
func (t *tx) bid(account string, contract string, q types.Asset, orderID uint64) error {
	order, ok := t.store.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if order.Loan.Contract != contract || order.Loan.Quantity.Symbol != q.Symbol {
		return ErrBidContract
	}
	owed := order.Loan.Quantity
	if !(owed.Cmp(q) >= 0 || (owed.Amount == 0 && q.Amount == 1)) {
		return ErrInsufficientBid
	}
	if q.Amount <= 0 {
		return ErrInvalidAmount
	}
	p, err := t.poolByAnchor(order.Loan.ExtendedSymbol())
	if err != nil {
		return err
	}

	gotContract := order.Collateral.Contract
	got := types.NewAsset(0, order.Collateral.Quantity.Symbol)
	if owed.Cmp(q) > 0 {
		got.Amount = clampAmount(float64(order.Collateral.Quantity.Amount) * float64(q.Amount) / float64(owed.Amount))
		order.Collateral.Quantity = order.Collateral.Quantity.Sub(got)
		order.Loan.Quantity = owed.Sub(q)
		order.UpdatedAt = t.now
	} else {
		got.Amount = order.Collateral.Quantity.Amount
		delete(t.store.orders, orderID)
	}

	if err := t.incrAvailable(p, q); err != nil {
		return err
	}
	gotToken := types.ExtendedSymbol{Symbol: got.Symbol, Contract: gotContract}
	t.transferIn(account, types.ExtendedSymbol{Symbol: q.Symbol, Contract: contract}, q, "bid")
	t.transferOut(account, gotToken, got, "bid")

	gp, err := t.poolByShare(gotToken)
	if err != nil {
		return err
	}
	bidValue := rateFromFloat(p.priceFloat() * q.Float())
	gotValue := rateFromFloat(gp.priceFloat() * gp.SharePriceAt(t.now) * got.Float())
	profitRate := rateFromFloat(0)
	if !bidValue.IsZero() {
		profitRate = gotValue.Sub(bidValue).Div(bidValue).Truncate(FloatPrecision)
	}
	t.emit(events.LendingBid{
		Account:    account,
		OrderID:    orderID,
		Bid:        types.ExtendedAsset{Quantity: q, Contract: contract},
		Got:        types.ExtendedAsset{Quantity: got, Contract: gotContract},
		ProfitRate: profitRate.StringFixed(FloatPrecision),
	})
	return nil
}
