package lending

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/types"
)

const (
	secondsPerYear = 31_536_000

	// FloatPrecision is the number of fractional digits kept on rates and prices.
	FloatPrecision = 8

	turnVariableCountdown   = 30 * 24 * time.Hour
	turnVariableAccelerate  = 8
	interestMinimumElapsed  = 1 // seconds
	rateHistoryWindow       = 8 * time.Hour
	fixedRateCapMultiplier  = 1.5
	withdrawableSafetyRatio = 1.1
	feeTokenDeductDivisor   = 0.9
	stableInterestTolerance = 1e-9
)

var accelerateUsageRate = decimal.RequireFromString("0.95")

// rateFromFloat truncates a computed rate to FloatPrecision digits.
func rateFromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f).Truncate(FloatPrecision)
}

func toFloat(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// elapsedSeconds returns whole seconds between from and to, never negative.
func elapsedSeconds(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	return int64(to.Sub(from) / time.Second)
}

// hourOf truncates t to the start of its UTC hour, in unix seconds.
func hourOf(t time.Time) int64 {
	secs := t.Unix()
	return secs - secs%3600
}

// midnightOf returns the start of t's UTC day.
func midnightOf(t time.Time) time.Time {
	secs := t.Unix()
	return time.Unix(secs-secs%86_400, 0).UTC()
}

// clampAmount truncates f to minimal units within the asset range.
func clampAmount(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= float64(types.MaxAmount):
		return types.MaxAmount
	case f <= -float64(types.MaxAmount):
		return -types.MaxAmount
	default:
		return int64(f)
	}
}

// addChecked returns a+b, naming the overflowing total in the error.
func addChecked(total string, a, b types.Asset) (types.Asset, error) {
	out, err := a.CheckedAdd(b)
	if err != nil {
		return types.Asset{}, arithmeticErr(total, err)
	}
	return out, nil
}

func subChecked(total string, a, b types.Asset) (types.Asset, error) {
	out, err := a.CheckedSub(b)
	if err != nil {
		return types.Asset{}, arithmeticErr(total, err)
	}
	return out, nil
}

// checkRange rejects an inbound quantity outside the asset range.
func checkRange(q types.Asset) error {
	if q.Amount > types.MaxAmount || q.Amount < -types.MaxAmount {
		return fmt.Errorf("%w: %d minimal units", ErrQuantityOverflow, q.Amount)
	}
	return nil
}

// arithmeticErr maps an asset arithmetic failure onto the engine taxonomy.
func arithmeticErr(total string, err error) error {
	if errors.Is(err, types.ErrSymbolMismatch) {
		return fmt.Errorf("%w: %s: %v", ErrSymbolMismatch, total, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrQuantityOverflow, total, err)
}
