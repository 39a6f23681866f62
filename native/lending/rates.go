package lending

import (
	"sort"

	"github.com/shopspring/decimal"
)

// recordRate keeps the highest floating rate seen in each hour.
func (t *tx) recordRate(pool string, rate decimal.Decimal, hour int64) {
	samples := t.store.rateSamples(pool)
	if prev, ok := samples[hour]; !ok || prev.LessThan(rate) {
		samples[hour] = rate
	}
}

// fixedRate prices a stable loan growing by incr borrow units: the median of
// the trailing hourly samples, back-filled across gaps and capped at 1.5x the
// instantaneous floating rate.
func (t *tx) fixedRate(p *Pool, incr int64) decimal.Decimal {
	latest := p.FloatingRateAt(incr)
	now := hourOf(t.now)
	t.recordRate(p.Name, latest, now)

	samples := t.store.rateSamples(p.Name)
	hours := make([]int64, 0, len(samples))
	for h := range samples {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i] < hours[j] })

	begin := now - int64(rateHistoryWindow.Seconds())
	var beginRate decimal.Decimal
	if hours[0] >= begin {
		begin = hours[0]
		beginRate = samples[begin]
	} else {
		for _, h := range hours {
			if h > begin {
				break
			}
			beginRate = samples[h]
			if h < begin {
				delete(samples, h)
			}
		}
	}

	current := beginRate
	rates := make([]decimal.Decimal, 0, int(rateHistoryWindow.Hours())+1)
	for h := begin; h <= now; h += 3600 {
		if r, ok := samples[h]; ok {
			current = r
		} else {
			samples[h] = current
		}
		rates = append(rates, current)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].LessThan(rates[j]) })
	fixed := rates[len(rates)/2]

	limit := latest.Mul(decimal.NewFromFloat(fixedRateCapMultiplier)).Truncate(FloatPrecision)
	if fixed.GreaterThan(limit) {
		fixed = limit
	}
	return fixed
}

// RateHistory returns the pool's hourly samples in ascending hour order.
func (s *Store) RateHistory(pool string) []RateSample {
	samples := s.rates[pool]
	out := make([]RateSample, 0, len(samples))
	for h, r := range samples {
		out = append(out, RateSample{Hour: h, Rate: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out
}
