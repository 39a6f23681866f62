package lending

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"lendcore/core/events"
	"lendcore/core/types"
)

func token(q types.Asset, contract string) types.ExtendedSymbol {
	return types.ExtendedSymbol{Symbol: q.Symbol, Contract: contract}
}

func (t *tx) deposit(account, contract string, q types.Asset) error {
	p, err := t.poolByAnchor(token(q, contract))
	if err != nil {
		return err
	}
	if err := t.checkFeature(p, account, FeatureDeposit); err != nil {
		return err
	}
	shares := p.SharesFor(q, t.now)
	if shares.Amount <= 0 {
		return fmt.Errorf("%w: deposit", ErrAmountTooSmall)
	}
	if err := t.updateDeposit(p, q, shares); err != nil {
		return err
	}
	t.issue(account, p.Share, shares, "deposit")
	t.transferIn(account, p.Anchor, q, "deposit")
	t.emit(events.LendingDeposit{Account: account, Pool: p.Name, Quantity: q, Shares: shares})
	return nil
}

// collateral pledges either shares directly or anchor tokens, which are
// deposited first and the minted shares held by the wallet account.
func (t *tx) collateral(account, contract string, q types.Asset) error {
	p, err := t.poolBySymbol(token(q, contract))
	if err != nil {
		return err
	}
	if err := t.checkFeature(p, account, FeatureDeposit); err != nil {
		return err
	}
	if !p.Config.IsCollateral {
		return fmt.Errorf("%w: %s", ErrNotCollateral, p.Name)
	}

	var anchor, shares types.Asset
	if token(q, contract) == p.Share {
		shares = q
		anchor = p.AnchorFor(shares, t.now)
	} else {
		anchor = q
		shares = p.SharesFor(anchor, t.now)
		if shares.Amount <= 0 {
			return fmt.Errorf("%w: collateral", ErrAmountTooSmall)
		}
		if err := t.updateDeposit(p, anchor, shares); err != nil {
			return err
		}
		t.issue(t.params.WalletAccount, p.Share, shares, "collateral")
		t.emit(events.LendingDeposit{Account: account, Pool: p.Name, Quantity: q, Shares: shares})
	}

	if err := t.incrCollateral(account, p, shares); err != nil {
		return err
	}
	t.transferIn(account, token(q, contract), q, "collateral")
	t.emit(events.LendingCollateral{Account: account, Pool: p.Name, Quantity: anchor, Shares: shares})
	return nil
}

func (t *tx) redeem(account string, shareToken types.ExtendedSymbol, shares types.Asset) error {
	p, err := t.poolByShare(shareToken)
	if err != nil {
		return err
	}
	c, ok := t.store.collateralOf(account, p.Name)
	if !ok || c.Quantity.Cmp(shares) < 0 {
		return fmt.Errorf("%w: redeem", ErrInsufficientCollateral)
	}
	value := p.priceFloat() * p.SharePriceAt(t.now) * shares.Float()
	if err := t.checkWithdrawable(account, p, value); err != nil {
		return err
	}
	removed, err := t.decrCollateral(account, p, shares)
	if err != nil {
		return err
	}
	t.transferOut(account, p.Share, removed, "redeem")
	if err := t.cacheHealth(account); err != nil {
		return err
	}
	t.emit(events.LendingRedeem{Account: account, Pool: p.Name, Shares: removed})
	return nil
}

// withdraw releases collateral back to anchor tokens. q may be denominated
// in either the anchor or the share token.
func (t *tx) withdraw(account, contract string, q types.Asset) error {
	p, err := t.poolBySymbol(token(q, contract))
	if err != nil {
		return err
	}
	if err := t.checkFeature(p, account, FeatureWithdraw); err != nil {
		return err
	}

	var anchor, shares types.Asset
	if token(q, contract) == p.Share {
		shares = q
		anchor = p.AnchorFor(shares, t.now)
	} else {
		anchor = q
		shares = p.SharesFor(anchor, t.now)
	}
	if anchor.Amount <= 0 {
		return fmt.Errorf("%w: withdraw", ErrAmountTooSmall)
	}
	if anchor.Cmp(p.AvailableDeposit) > 0 {
		return ErrInsufficientDeposit
	}
	if err := t.checkWithdrawable(account, p, p.priceFloat()*anchor.Float()); err != nil {
		return err
	}

	shares, err = t.decrCollateral(account, p, shares)
	if err != nil {
		return err
	}
	if err := t.updateDeposit(p, anchor.Neg(), shares.Neg()); err != nil {
		return err
	}
	t.transferOut(p.Share.Contract, p.Share, shares, "withdraw")
	t.transferOut(account, p.Anchor, anchor, "withdraw")
	if err := t.cacheHealth(account); err != nil {
		return err
	}
	t.emit(events.LendingWithdraw{Account: account, Pool: p.Name, Quantity: anchor, Shares: shares})
	return nil
}

// withdrawShares burns shares sent with a withdraw memo.
func (t *tx) withdrawShares(account, contract string, shares types.Asset) error {
	p, err := t.poolByShare(token(shares, contract))
	if err != nil {
		return err
	}
	if err := t.checkFeature(p, account, FeatureWithdraw); err != nil {
		return err
	}
	anchor := p.AnchorFor(shares, t.now)
	if anchor.Amount <= 0 {
		return fmt.Errorf("%w: withdraw", ErrAmountTooSmall)
	}
	if anchor.Cmp(p.AvailableDeposit) > 0 {
		return ErrInsufficientDeposit
	}
	if err := t.updateDeposit(p, anchor.Neg(), shares.Neg()); err != nil {
		return err
	}
	t.transfer(contract, p.Share, shares, "withdraw")
	t.transferOut(account, p.Anchor, anchor, "withdraw")
	t.emit(events.LendingWithdraw{Account: account, Pool: p.Name, Quantity: anchor, Shares: shares})
	return nil
}

// borrow opens or grows a loan. feeDeduct is value already paid in the fee
// token; any part of it the fee does not use is returned as a refund value.
func (t *tx) borrow(account, contract string, q types.Asset, typ LoanType, feeDeduct decimal.Decimal) (decimal.Decimal, error) {
	refund := decimal.Zero
	if !typ.Valid() {
		return refund, fmt.Errorf("%w: %d", ErrInvalidBorrowType, typ)
	}
	if q.Amount <= 0 {
		return refund, ErrInvalidAmount
	}
	p, err := t.poolByAnchor(token(q, contract))
	if err != nil {
		return refund, err
	}
	if q.Cmp(p.AvailableDeposit) > 0 {
		return refund, ErrInsufficientDeposit
	}
	if err := t.checkFeature(p, account, FeatureBorrow); err != nil {
		return refund, err
	}
	if typ == LoanStable && !p.Config.CanStableBorrow {
		return refund, fmt.Errorf("%w: %s", ErrStableNotSupported, p.Name)
	}

	loanable, err := t.collateralValue(account, true)
	if err != nil {
		return refund, err
	}
	loanValue, err := t.loanValue(account)
	if err != nil {
		return refund, err
	}
	value := p.priceFloat() * q.Float()
	if value > loanable-loanValue {
		return refund, ErrInsufficientBorrowable
	}
	if err := t.checkDefend(account, value+loanValue); err != nil {
		return refund, err
	}

	fee := t.loanFee(account, p, q, typ)
	if feeDeduct.IsPositive() {
		feeValue := rateFromFloat(p.priceFloat() * fee.Float())
		if feeValue.GreaterThanOrEqual(feeDeduct) {
			fee.Amount = clampAmount(float64(fee.Amount) * (1 - toFloat(feeDeduct)/toFloat(feeValue)))
		} else {
			refund = feeDeduct.Sub(feeValue)
			fee.Amount = 0
		}
	}
	if fee.Amount > 0 {
		t.transferOut(t.params.FeeAccount, p.Anchor, fee, "loan fee")
	}

	if err := t.incrLoan(account, p, q, typ); err != nil {
		return refund, err
	}
	net := q.Sub(fee)
	if net.Amount <= 0 {
		return refund, fmt.Errorf("%w: loan", ErrAmountTooSmall)
	}
	t.transferOut(account, p.Anchor, net, "loan")
	if err := t.cacheHealth(account); err != nil {
		return refund, err
	}
	t.emit(events.LendingBorrow{Account: account, Pool: p.Name, Quantity: net, Fee: fee, LoanType: uint8(typ)})
	return refund, nil
}

func (t *tx) checkFeeToken(tok types.ExtendedSymbol) error {
	if !t.params.HasFeeToken() || tok != t.params.FeeToken {
		return fmt.Errorf("%w: %s", ErrInvalidFeeToken, tok)
	}
	return nil
}

// borrowWithFee handles "borrow-<contract>-<quantity>-<type>" paid for with
// the fee token.
func (t *tx) borrowWithFee(account, feeContract string, feeQty types.Asset, m memo) error {
	feeToken := token(feeQty, feeContract)
	if err := t.checkFeeToken(feeToken); err != nil {
		return err
	}
	fp, err := t.poolByAnchor(feeToken)
	if err != nil {
		return err
	}
	deduct := rateFromFloat(fp.priceFloat() * feeQty.Float() / feeTokenDeductDivisor)

	contract := m.get(1)
	q, err := m.asset(2)
	if err != nil {
		return err
	}
	rawType, err := strconv.Atoi(m.get(3))
	if err != nil {
		return fmt.Errorf("%w: borrow type %q", ErrInvalidMemo, m.get(3))
	}

	refundValue, err := t.borrow(account, contract, q, LoanType(rawType), deduct)
	if err != nil {
		return err
	}
	if refundValue.IsPositive() {
		refund := types.NewAsset(clampAmount(float64(feeQty.Amount)*toFloat(refundValue)/toFloat(deduct)), feeQty.Symbol)
		if refund.Amount > 0 {
			t.transfer(account, feeToken, refund, "loan fee refund")
			feeQty = feeQty.Sub(refund)
		}
	}
	if feeQty.Amount > 0 {
		t.transfer(t.params.NullAccount, feeToken, feeQty, "loan fee paid in fee token")
	}
	return nil
}

func (t *tx) repay(account, contract string, q types.Asset) error {
	p, err := t.poolByAnchor(token(q, contract))
	if err != nil {
		return err
	}
	if err := t.checkFeature(p, account, FeatureRepay); err != nil {
		return err
	}
	if err := t.decrLoan(account, p, q, false); err != nil {
		return err
	}
	t.transferIn(account, p.Anchor, q, "repay")
	if err := t.cacheHealth(account); err != nil {
		return err
	}
	t.emit(events.LendingRepay{Account: account, Pool: p.Name, Quantity: q})
	return nil
}

// miniRepay clears dust loans in the pools named by the memo using the fee
// token. Unused value is refunded and the rest goes to the safu account.
func (t *tx) miniRepay(account, contract string, q types.Asset, m memo) error {
	feeToken := token(q, contract)
	if err := t.checkFeeToken(feeToken); err != nil {
		return err
	}
	rp, err := t.poolByAnchor(feeToken)
	if err != nil {
		return err
	}
	if !rp.Price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrPriceNotSet, rp.Name)
	}
	limit := t.params.MiniRepayValueCap
	repayValue := rp.priceFloat() * q.Float()
	if repayValue > limit {
		return fmt.Errorf("%w: %.8f", ErrMiniRepayCap, repayValue)
	}

	remain := repayValue
	var loansValue float64
	for i := 1; m.get(i) != "" && remain > 0; i++ {
		p, err := t.poolByName(m.get(i))
		if err != nil {
			return err
		}
		if err := t.checkFeature(p, account, FeatureRepay); err != nil {
			return err
		}
		l, ok := t.store.loanOf(account, p.Name)
		if !ok {
			continue
		}
		owed := l.Quantity.Add(l.PendingInterest(loanRate(l, p), t.now))
		value := owed.Float() * p.priceFloat()
		loansValue += value
		if remain >= value {
			remain -= value
		} else {
			owed.Amount = clampAmount(float64(owed.Amount) * remain / value)
			remain = 0
		}
		if err := t.decrLoan(account, p, owed, false); err != nil {
			return err
		}
		t.emit(events.LendingRepay{Account: account, Pool: p.Name, Quantity: owed})
	}
	if loansValue > limit {
		return fmt.Errorf("%w: loans worth %.8f", ErrMiniRepayCap, loansValue)
	}

	if remain > 0 {
		refund := types.NewAsset(clampAmount(float64(q.Amount)*remain/repayValue), q.Symbol)
		if refund.Amount > 0 {
			t.transfer(account, feeToken, refund, "mini debt repay refund")
		}
		q = q.Sub(refund)
	}
	if q.Amount <= 0 {
		return fmt.Errorf("%w: mini repay", ErrAmountTooSmall)
	}
	t.transfer(t.params.SafuAccount, feeToken, q, "mini debt repay")
	return t.cacheHealth(account)
}

// Redeem returns pledged shares to the account.
func (e *Engine) Redeem(account, shareContract string, shares types.Asset) (*Result, error) {
	return e.apply(func(t *tx) error {
		if err := checkRange(shares); err != nil {
			return err
		}
		return t.redeem(account, token(shares, shareContract), shares)
	})
}

// RedeemAll returns the account's entire collateral position in pool.
func (e *Engine) RedeemAll(account, pool string) (*Result, error) {
	return e.apply(func(t *tx) error {
		p, err := t.poolByName(pool)
		if err != nil {
			return err
		}
		c, ok := t.store.collateralOf(account, p.Name)
		if !ok {
			return fmt.Errorf("%w: redeem", ErrInsufficientCollateral)
		}
		return t.redeem(account, p.Share, c.Quantity)
	})
}

// Withdraw converts collateral back into anchor tokens.
func (e *Engine) Withdraw(account, contract string, q types.Asset) (*Result, error) {
	return e.apply(func(t *tx) error {
		if err := checkRange(q); err != nil {
			return err
		}
		return t.withdraw(account, contract, q)
	})
}

// Borrow draws q from its anchor pool against the account's collateral.
func (e *Engine) Borrow(account, contract string, q types.Asset, typ LoanType) (*Result, error) {
	return e.apply(func(t *tx) error {
		if err := checkRange(q); err != nil {
			return err
		}
		_, err := t.borrow(account, contract, q, typ, decimal.Zero)
		return err
	})
}
