package lending

import (
	"github.com/shopspring/decimal"

	"lendcore/core/types"
)

// loanFee prices a borrow of q. The fee-free day waives it; floating-rate
// borrowers holding enough votes pay nothing; stable borrows are charged on
// any variable balance they convert as well.
func (t *tx) loanFee(account string, p *Pool, q types.Asset, typ LoanType) types.Asset {
	if t.params.FeeFreeDay > 0 && t.now.UTC().Day() == t.params.FeeFreeDay {
		return types.NewAsset(0, q.Symbol)
	}
	base := q
	var rate decimal.Decimal
	switch typ {
	case LoanVariable:
		rate = p.Config.FloatingFeeRate
		if t.votes != nil && t.params.VoteWaiverThreshold > 0 && t.votes.Votes(account) >= t.params.VoteWaiverThreshold {
			rate = decimal.Zero
		}
	case LoanStable:
		rate = p.Config.FixedFeeRate
		if l, ok := t.store.loanOf(account, p.Name); ok && l.Type == LoanVariable {
			base = base.Add(l.Quantity.MustRescale(base.Symbol))
		}
	}
	return types.NewAsset(clampAmount(float64(base.Amount)*toFloat(rate)), q.Symbol)
}
