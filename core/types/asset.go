package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// MaxPrecision bounds the number of fractional digits a symbol may carry.
const MaxPrecision = 18

// MaxAmount bounds the magnitude of an asset amount in minimal units.
const MaxAmount int64 = 1<<62 - 1

var (
	ErrInvalidSymbol   = errors.New("asset: invalid symbol")
	ErrInvalidAsset    = errors.New("asset: invalid quantity")
	ErrSymbolMismatch  = errors.New("asset: symbol mismatch")
	ErrRescaleOverflow = errors.New("asset: rescale overflow")
	ErrAmountOverflow  = errors.New("asset: amount out of range")
)

// Symbol is a token code paired with its decimal precision.
type Symbol struct {
	Code      string `json:"code"`
	Precision uint8  `json:"precision"`
}

// NewSymbol returns a symbol with an upper-cased code.
func NewSymbol(code string, precision uint8) Symbol {
	return Symbol{Code: strings.ToUpper(strings.TrimSpace(code)), Precision: precision}
}

// ParseSymbol accepts the "<precision>,<CODE>" form, e.g. "4,EOS".
func ParseSymbol(raw string) (Symbol, error) {
	prec, code, ok := strings.Cut(strings.TrimSpace(raw), ",")
	if !ok {
		return Symbol{}, fmt.Errorf("%w: missing comma in %q", ErrInvalidSymbol, raw)
	}
	p, err := strconv.ParseUint(strings.TrimSpace(prec), 10, 8)
	if err != nil || p > MaxPrecision {
		return Symbol{}, fmt.Errorf("%w: precision %q", ErrInvalidSymbol, prec)
	}
	sym := NewSymbol(code, uint8(p))
	if !sym.Valid() {
		return Symbol{}, fmt.Errorf("%w: code %q", ErrInvalidSymbol, code)
	}
	return sym, nil
}

// Valid reports whether the symbol has a non-empty alphanumeric code.
func (s Symbol) Valid() bool {
	if s.Code == "" || len(s.Code) > 12 || s.Precision > MaxPrecision {
		return false
	}
	for _, r := range s.Code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

// WithPrecision returns a symbol with the same code at another precision.
func (s Symbol) WithPrecision(precision uint8) Symbol {
	return Symbol{Code: s.Code, Precision: precision}
}

// ExtendedSymbol identifies a token by symbol and issuing contract.
type ExtendedSymbol struct {
	Symbol   Symbol `json:"symbol"`
	Contract string `json:"contract"`
}

func (s ExtendedSymbol) String() string {
	return s.Symbol.String() + "@" + s.Contract
}

// ParseExtendedSymbol accepts the "<precision>,<CODE>@<contract>" form.
func ParseExtendedSymbol(raw string) (ExtendedSymbol, error) {
	symPart, contract, ok := strings.Cut(strings.TrimSpace(raw), "@")
	contract = strings.TrimSpace(contract)
	if !ok || contract == "" {
		return ExtendedSymbol{}, fmt.Errorf("%w: missing contract in %q", ErrInvalidSymbol, raw)
	}
	sym, err := ParseSymbol(symPart)
	if err != nil {
		return ExtendedSymbol{}, err
	}
	return ExtendedSymbol{Symbol: sym, Contract: contract}, nil
}

// Asset is a signed integer quantity denominated in a symbol.
type Asset struct {
	Amount int64  `json:"amount"`
	Symbol Symbol `json:"symbol"`
}

// NewAsset builds an asset from raw minimal units.
func NewAsset(amount int64, sym Symbol) Asset {
	return Asset{Amount: amount, Symbol: sym}
}

// ParseAsset parses "100.0000 EOS"; the number of fractional digits fixes the precision.
func ParseAsset(raw string) (Asset, error) {
	amountPart, code, ok := strings.Cut(strings.TrimSpace(raw), " ")
	if !ok {
		return Asset{}, fmt.Errorf("%w: amount and symbol must be separated by a space", ErrInvalidAsset)
	}
	amountPart = strings.TrimSpace(amountPart)
	negative := strings.HasPrefix(amountPart, "-")
	digits := strings.TrimPrefix(amountPart, "-")
	whole, frac, hasDot := strings.Cut(digits, ".")
	if hasDot && frac == "" {
		return Asset{}, fmt.Errorf("%w: missing fraction after decimal point", ErrInvalidAsset)
	}
	if len(frac) > MaxPrecision {
		return Asset{}, fmt.Errorf("%w: precision exceeds %d", ErrInvalidAsset, MaxPrecision)
	}
	sym := NewSymbol(code, uint8(len(frac)))
	if !sym.Valid() {
		return Asset{}, fmt.Errorf("%w: code %q", ErrInvalidSymbol, code)
	}
	combined := whole + frac
	if combined == "" {
		return Asset{}, fmt.Errorf("%w: empty amount", ErrInvalidAsset)
	}
	amount, err := strconv.ParseInt(combined, 10, 64)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	if amount > MaxAmount {
		return Asset{}, fmt.Errorf("%w: %s", ErrAmountOverflow, raw)
	}
	if negative {
		amount = -amount
	}
	return Asset{Amount: amount, Symbol: sym}, nil
}

// FromFloat converts a floating quantity into minimal units, truncating toward
// zero and saturating at MaxAmount.
func FromFloat(value float64, sym Symbol) Asset {
	scaled := value * math.Pow10(int(sym.Precision))
	if scaled >= float64(MaxAmount) {
		return Asset{Amount: MaxAmount, Symbol: sym}
	}
	if scaled <= -float64(MaxAmount) {
		return Asset{Amount: -MaxAmount, Symbol: sym}
	}
	return Asset{Amount: int64(scaled), Symbol: sym}
}

// Float returns the quantity in whole units.
func (a Asset) Float() float64 {
	return float64(a.Amount) / math.Pow10(int(a.Symbol.Precision))
}

func (a Asset) IsZero() bool     { return a.Amount == 0 }
func (a Asset) IsPositive() bool { return a.Amount > 0 }

// Valid reports whether the amount is in range and the symbol well formed.
func (a Asset) Valid() bool {
	return inRange(a.Amount) && a.Symbol.Valid()
}

// CheckedAdd returns a+b, failing on mixed symbols or an out-of-range result.
func (a Asset) CheckedAdd(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("%w: %s + %s", ErrSymbolMismatch, a.Symbol, b.Symbol)
	}
	if !inRange(a.Amount) || !inRange(b.Amount) || !inRange(a.Amount+b.Amount) {
		return Asset{}, fmt.Errorf("%w: %s + %s", ErrAmountOverflow, a, b)
	}
	return Asset{Amount: a.Amount + b.Amount, Symbol: a.Symbol}, nil
}

// CheckedSub returns a-b, failing on mixed symbols or an out-of-range result.
func (a Asset) CheckedSub(b Asset) (Asset, error) {
	return a.CheckedAdd(b.Neg())
}

// Add is CheckedAdd for operands the caller has already bounded. A failure
// panics with an error wrapping ErrSymbolMismatch or ErrAmountOverflow.
func (a Asset) Add(b Asset) Asset {
	out, err := a.CheckedAdd(b)
	if err != nil {
		panic(err)
	}
	return out
}

// Sub is the panicking counterpart of CheckedSub.
func (a Asset) Sub(b Asset) Asset {
	out, err := a.CheckedSub(b)
	if err != nil {
		panic(err)
	}
	return out
}

// Neg returns -a.
func (a Asset) Neg() Asset {
	return Asset{Amount: -a.Amount, Symbol: a.Symbol}
}

// Cmp compares two same-symbol assets and panics with ErrSymbolMismatch
// otherwise.
func (a Asset) Cmp(b Asset) int {
	if a.Symbol != b.Symbol {
		panic(fmt.Errorf("%w: compare %s with %s", ErrSymbolMismatch, a.Symbol, b.Symbol))
	}
	switch {
	case a.Amount < b.Amount:
		return -1
	case a.Amount > b.Amount:
		return 1
	default:
		return 0
	}
}

// ArithmeticError returns the recovered panic value as an error when it came
// from asset arithmetic, and nil otherwise.
func ArithmeticError(recovered any) error {
	err, ok := recovered.(error)
	if !ok {
		return nil
	}
	if errors.Is(err, ErrAmountOverflow) || errors.Is(err, ErrSymbolMismatch) || errors.Is(err, ErrRescaleOverflow) {
		return err
	}
	return nil
}

func inRange(v int64) bool {
	return v >= -MaxAmount && v <= MaxAmount
}

// Rescale re-denominates the quantity into sym, which must carry the same code.
// Reducing precision truncates toward zero.
func (a Asset) Rescale(sym Symbol) (Asset, error) {
	if a.Symbol == sym {
		return a, nil
	}
	if a.Symbol.Code != sym.Code {
		return Asset{}, fmt.Errorf("%w: %s to %s", ErrSymbolMismatch, a.Symbol, sym)
	}
	diff := int(sym.Precision) - int(a.Symbol.Precision)
	if diff < 0 {
		return Asset{Amount: a.Amount / pow10(-diff), Symbol: sym}, nil
	}
	magnitude := a.Amount
	if magnitude < 0 {
		magnitude = -magnitude
	}
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(uint64(magnitude)), uint256.NewInt(uint64(pow10(diff))))
	if overflow || !product.IsUint64() || product.Uint64() > uint64(MaxAmount) {
		return Asset{}, fmt.Errorf("%w: %s to %s", ErrRescaleOverflow, a, sym)
	}
	amount := int64(product.Uint64())
	if a.Amount < 0 {
		amount = -amount
	}
	return Asset{Amount: amount, Symbol: sym}, nil
}

// MustRescale is Rescale for callers that have already bounded the quantity.
func (a Asset) MustRescale(sym Symbol) Asset {
	out, err := a.Rescale(sym)
	if err != nil {
		panic(err)
	}
	return out
}

func (a Asset) String() string {
	p := int(a.Symbol.Precision)
	amount := a.Amount
	sign := ""
	if amount < 0 {
		sign = "-"
	}
	digits := strconv.FormatUint(absUint(amount), 10)
	if p == 0 {
		return sign + digits + " " + a.Symbol.Code
	}
	if len(digits) <= p {
		digits = strings.Repeat("0", p-len(digits)+1) + digits
	}
	return sign + digits[:len(digits)-p] + "." + digits[len(digits)-p:] + " " + a.Symbol.Code
}

// ExtendedAsset is an asset tagged with its issuing contract.
type ExtendedAsset struct {
	Quantity Asset  `json:"quantity"`
	Contract string `json:"contract"`
}

// ExtendedSymbol returns the token identity of the asset.
func (e ExtendedAsset) ExtendedSymbol() ExtendedSymbol {
	return ExtendedSymbol{Symbol: e.Quantity.Symbol, Contract: e.Contract}
}

func (e ExtendedAsset) String() string {
	return e.Quantity.String() + "@" + e.Contract
}

func pow10(n int) int64 {
	out := int64(1)
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}

func absUint(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}
