package lending

import (
	"github.com/shopspring/decimal"

	"lendcore/core/events"
	"lendcore/core/types"
)

// settle accrues pending interest into every loan of the pool, runs the
// stable-to-variable countdowns and rebuilds the pool's borrow aggregates.
func (t *tx) settle(p *Pool) error {
	sym := p.BorrowSymbol()
	variable := types.NewAsset(0, sym)
	stable := types.NewAsset(0, sym)
	var stableFlowTotal float64
	accelerate := p.UsageRate.GreaterThanOrEqual(accelerateUsageRate)

	for _, l := range t.store.loansOfPool(p.Name) {
		interest := l.PendingInterest(loanRate(l, p), t.now)
		if interest.Amount > 0 {
			elapsed := t.now.Sub(l.LastCalculatedAt)
			if accelerate {
				elapsed *= turnVariableAccelerate
			}
			accrued, err := addChecked("loan interest", l.Quantity, interest)
			if err != nil {
				return err
			}
			l.Quantity = accrued
			l.LastCalculatedAt = t.now
			if l.Type == LoanStable {
				l.TurnVariableAfter = decrCountdown(l.TurnVariableAfter, elapsed)
			}
		}
		if l.Type == LoanStable && l.TurnVariableAfter == 0 {
			l.Type = LoanVariable
			l.FixedRate = decimal.Zero
		}
		var err error
		switch l.Type {
		case LoanStable:
			stable, err = addChecked("stable borrow", stable, l.Quantity)
			stableFlowTotal += stableFlow(l)
		case LoanVariable:
			variable, err = addChecked("variable borrow", variable, l.Quantity)
		}
		if err != nil {
			return err
		}
	}

	borrow, err := addChecked("borrow", stable, variable)
	if err != nil {
		return err
	}
	t.cacheStable(p.Name, stableFlowTotal)
	p.Borrow = borrow
	p.VariableBorrow = variable
	p.StableBorrow = stable
	if err := t.recal(p); err != nil {
		return err
	}
	t.emit(events.LendingUpBorrows{Pool: p.Name})
	return nil
}
