package events

import (
	"strconv"
	"strings"

	"lendcore/core/types"
)

const (
	TypeLendingDeposit      = "lending.deposit"
	TypeLendingCollateral   = "lending.collateral"
	TypeLendingUpCollateral = "lending.upcollateral"
	TypeLendingRedeem       = "lending.redeem"
	TypeLendingWithdraw     = "lending.withdraw"
	TypeLendingBorrow       = "lending.borrow"
	TypeLendingUpBorrow     = "lending.upborrow"
	TypeLendingUpBorrows    = "lending.upborrows"
	TypeLendingRepay        = "lending.repay"
	TypeLendingLiquidated   = "lending.liqdt"
	TypeLendingBid          = "lending.bid"
	TypeLendingInsolvent    = "lending.insolvent"
)

// Renderer is implemented by events that can be flattened into a generic record.
type Renderer interface {
	Event
	Event() *types.Event
}

// Render flattens any Renderer; other events become a bare typed record.
func Render(e Event) *types.Event {
	if e == nil {
		return nil
	}
	if r, ok := e.(Renderer); ok {
		return r.Event()
	}
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{}}
}

// LendingDeposit records anchor supplied to a pool and the shares minted for it.
type LendingDeposit struct {
	Account  string
	Pool     string
	Quantity types.Asset
	Shares   types.Asset
}

func (LendingDeposit) EventType() string { return TypeLendingDeposit }

func (e LendingDeposit) Event() *types.Event {
	return &types.Event{Type: TypeLendingDeposit, Attributes: map[string]string{
		"account":  strings.TrimSpace(e.Account),
		"pool":     e.Pool,
		"quantity": e.Quantity.String(),
		"shares":   e.Shares.String(),
	}}
}

// LendingCollateral records a pledge of shares as collateral.
type LendingCollateral struct {
	Account  string
	Pool     string
	Quantity types.Asset
	Shares   types.Asset
}

func (LendingCollateral) EventType() string { return TypeLendingCollateral }

func (e LendingCollateral) Event() *types.Event {
	return &types.Event{Type: TypeLendingCollateral, Attributes: map[string]string{
		"account":  strings.TrimSpace(e.Account),
		"pool":     e.Pool,
		"quantity": e.Quantity.String(),
		"shares":   e.Shares.String(),
	}}
}

// LendingUpCollateral is the audit record of a collateral position after mutation.
type LendingUpCollateral struct {
	Account  string
	Pool     string
	Shares   types.Asset
	Quantity types.Asset
}

func (LendingUpCollateral) EventType() string { return TypeLendingUpCollateral }

func (e LendingUpCollateral) Event() *types.Event {
	return &types.Event{Type: TypeLendingUpCollateral, Attributes: map[string]string{
		"account":  strings.TrimSpace(e.Account),
		"pool":     e.Pool,
		"shares":   e.Shares.String(),
		"quantity": e.Quantity.String(),
	}}
}

type LendingRedeem struct {
	Account string
	Pool    string
	Shares  types.Asset
}

func (LendingRedeem) EventType() string { return TypeLendingRedeem }

func (e LendingRedeem) Event() *types.Event {
	return &types.Event{Type: TypeLendingRedeem, Attributes: map[string]string{
		"account": strings.TrimSpace(e.Account),
		"pool":    e.Pool,
		"shares":  e.Shares.String(),
	}}
}

type LendingWithdraw struct {
	Account  string
	Pool     string
	Quantity types.Asset
	Shares   types.Asset
}

func (LendingWithdraw) EventType() string { return TypeLendingWithdraw }

func (e LendingWithdraw) Event() *types.Event {
	return &types.Event{Type: TypeLendingWithdraw, Attributes: map[string]string{
		"account":  strings.TrimSpace(e.Account),
		"pool":     e.Pool,
		"quantity": e.Quantity.String(),
		"shares":   e.Shares.String(),
	}}
}

// LendingBorrow records a loan payout net of its fee.
type LendingBorrow struct {
	Account  string
	Pool     string
	Quantity types.Asset
	Fee      types.Asset
	LoanType uint8
}

func (LendingBorrow) EventType() string { return TypeLendingBorrow }

func (e LendingBorrow) Event() *types.Event {
	return &types.Event{Type: TypeLendingBorrow, Attributes: map[string]string{
		"account":  strings.TrimSpace(e.Account),
		"pool":     e.Pool,
		"quantity": e.Quantity.String(),
		"fee":      e.Fee.String(),
		"type":     strconv.Itoa(int(e.LoanType)),
	}}
}

// LendingUpBorrow is the audit record of a loan position after mutation.
type LendingUpBorrow struct {
	Account  string
	Pool     string
	Quantity types.Asset
}

func (LendingUpBorrow) EventType() string { return TypeLendingUpBorrow }

func (e LendingUpBorrow) Event() *types.Event {
	return &types.Event{Type: TypeLendingUpBorrow, Attributes: map[string]string{
		"account":  strings.TrimSpace(e.Account),
		"pool":     e.Pool,
		"quantity": e.Quantity.String(),
	}}
}

// LendingUpBorrows marks a pool-wide interest settlement.
type LendingUpBorrows struct {
	Pool string
}

func (LendingUpBorrows) EventType() string { return TypeLendingUpBorrows }

func (e LendingUpBorrows) Event() *types.Event {
	return &types.Event{Type: TypeLendingUpBorrows, Attributes: map[string]string{"pool": e.Pool}}
}

type LendingRepay struct {
	Account  string
	Pool     string
	Quantity types.Asset
}

func (LendingRepay) EventType() string { return TypeLendingRepay }

func (e LendingRepay) Event() *types.Event {
	return &types.Event{Type: TypeLendingRepay, Attributes: map[string]string{
		"account":  strings.TrimSpace(e.Account),
		"pool":     e.Pool,
		"quantity": e.Quantity.String(),
	}}
}

// LendingLiquidated records a liquidation order carved from an account.
type LendingLiquidated struct {
	Account    string
	OrderID    uint64
	Collateral types.ExtendedAsset
	Loan       types.ExtendedAsset
}

func (LendingLiquidated) EventType() string { return TypeLendingLiquidated }

func (e LendingLiquidated) Event() *types.Event {
	return &types.Event{Type: TypeLendingLiquidated, Attributes: map[string]string{
		"account":            strings.TrimSpace(e.Account),
		"order":              strconv.FormatUint(e.OrderID, 10),
		"collateralContract": e.Collateral.Contract,
		"collateral":         e.Collateral.Quantity.String(),
		"loanContract":       e.Loan.Contract,
		"loan":               e.Loan.Quantity.String(),
	}}
}

// LendingBid records a fill against a liquidation order.
type LendingBid struct {
	Account    string
	OrderID    uint64
	Bid        types.ExtendedAsset
	Got        types.ExtendedAsset
	ProfitRate string
}

func (LendingBid) EventType() string { return TypeLendingBid }

func (e LendingBid) Event() *types.Event {
	return &types.Event{Type: TypeLendingBid, Attributes: map[string]string{
		"account":     strings.TrimSpace(e.Account),
		"order":       strconv.FormatUint(e.OrderID, 10),
		"bidContract": e.Bid.Contract,
		"bid":         e.Bid.Quantity.String(),
		"gotContract": e.Got.Contract,
		"got":         e.Got.Quantity.String(),
		"profitRate":  e.ProfitRate,
	}}
}

// LendingInsolvent records debt written off as bad debt.
type LendingInsolvent struct {
	Account  string
	Pool     string
	Contract string
	Quantity types.Asset
}

func (LendingInsolvent) EventType() string { return TypeLendingInsolvent }

func (e LendingInsolvent) Event() *types.Event {
	return &types.Event{Type: TypeLendingInsolvent, Attributes: map[string]string{
		"account":  strings.TrimSpace(e.Account),
		"pool":     e.Pool,
		"contract": e.Contract,
		"quantity": e.Quantity.String(),
	}}
}
