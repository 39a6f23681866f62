package lending

import (
	"fmt"
	"strconv"
	"strings"

	"lendcore/core/types"
)

// Memo commands accepted by OnTransfer.
const (
	MemoDeposit    = "deposit"
	MemoCollateral = "collateral"
	MemoWithdraw   = "withdraw"
	MemoRepay      = "repay"
	MemoRepayFor   = "repayfor"
	MemoMiniRepay  = "minirepay"
	MemoBorrow     = "borrow"
	MemoBid        = "bid"
)

type memo []string

func parseMemo(raw string) memo {
	return strings.Split(strings.TrimSpace(raw), "-")
}

// get returns field i, or "" past the end.
func (m memo) get(i int) string {
	if i < 0 || i >= len(m) {
		return ""
	}
	return strings.TrimSpace(m[i])
}

func (m memo) number(i int) (uint64, error) {
	v, err := strconv.ParseUint(m.get(i), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %d: %v", ErrInvalidMemo, i, err)
	}
	return v, nil
}

func (m memo) asset(i int) (types.Asset, error) {
	q, err := types.ParseAsset(m.get(i))
	if err != nil {
		return types.Asset{}, fmt.Errorf("%w: field %d: %v", ErrInvalidMemo, i, err)
	}
	return q, nil
}

// OnTransfer dispatches an inbound token transfer on its memo command.
func (e *Engine) OnTransfer(from, contract string, q types.Asset, rawMemo string) (*Result, error) {
	return e.apply(func(t *tx) error {
		if q.Amount <= 0 {
			return ErrInvalidAmount
		}
		if err := checkRange(q); err != nil {
			return err
		}
		m := parseMemo(rawMemo)
		switch m.get(0) {
		case MemoDeposit:
			return t.deposit(from, contract, q)
		case MemoCollateral:
			return t.collateral(from, contract, q)
		case MemoWithdraw:
			return t.withdrawShares(from, contract, q)
		case MemoRepay:
			return t.repay(from, contract, q)
		case MemoRepayFor:
			target := m.get(1)
			if t.accounts == nil || !t.accounts.IsAccount(target) {
				return fmt.Errorf("%w: %q", ErrInvalidAccount, target)
			}
			return t.repay(target, contract, q)
		case MemoMiniRepay:
			return t.miniRepay(from, contract, q, m)
		case MemoBorrow:
			return t.borrowWithFee(from, contract, q, m)
		case MemoBid:
			id, err := m.number(1)
			if err != nil {
				return err
			}
			return t.bid(from, contract, q, id)
		default:
			return fmt.Errorf("%w: %q", ErrInvalidMemo, m.get(0))
		}
	})
}
