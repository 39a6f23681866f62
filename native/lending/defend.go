package lending

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/types"
)

// updateDefend records the pool's share supply in today's window slot and
// engages the breaker when a single inflow is worth at least pause_value.
func (t *tx) updateDefend(p *Pool, delta types.Asset) {
	rec, ok := t.store.defends[p.Name]
	if !ok {
		d := t.params.Defend
		t.store.defends[p.Name] = &DefendRecord{
			Pool:       p.Name,
			PoolSize:   d.PoolSize,
			Percent:    d.Percent,
			MaxValue:   d.MaxValue,
			PauseValue: d.PauseValue,
			Window:     []types.Asset{p.ShareSupply},
			Mid:        p.ShareSupply,
			UpdatedAt:  t.now,
		}
		return
	}

	window := append([]types.Asset(nil), rec.Window...)
	if rec.UpdatedAt.After(midnightOf(t.now)) && len(window) > 0 {
		window = window[:len(window)-1]
	}
	if len(window) >= int(rec.PoolSize) && len(window) > 0 {
		window = window[1:]
	}
	window = append(window, p.ShareSupply)

	sorted := append([]types.Asset(nil), window...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Amount < sorted[j].Amount })
	rec.Mid = sorted[len(sorted)/2]
	rec.Window = window
	rec.UpdatedAt = t.now

	if delta.Amount > 0 {
		value := p.priceFloat() * p.SharePriceAt(t.now) * delta.Float()
		if value >= toFloat(rec.PauseValue) {
			pause := t.params.Defend.Pause
			if pause <= 0 {
				pause = DefaultParams().Defend.Pause
			}
			rec.PauseTill = t.now.Add(pause)
		}
	}
}

// defendCapacity is the borrowable value of the account's collateral. While a
// pool's breaker is engaged its collateral counts for at most percent of the
// account's pro-rata share of max(max_value, mid baseline value).
func (t *tx) defendCapacity(account string) (float64, error) {
	var capacity float64
	for _, c := range t.store.collateralsOfAccount(account) {
		p, err := t.poolByName(c.Pool)
		if err != nil {
			return 0, err
		}
		ltv := toFloat(p.Config.MaxLTV)
		price := p.priceFloat() * p.SharePriceAt(t.now)
		collValue := price * c.Quantity.Float() * ltv

		rec, ok := t.store.defends[p.Name]
		if !ok || !rec.Paused(t.now) {
			capacity += collValue
			continue
		}
		total := p.ShareSupply.Float()
		if total <= 0 {
			continue
		}
		base := math.Max(toFloat(rec.MaxValue), rec.Mid.Float()*price)
		limited := float64(rec.Percent) / 100 * c.Quantity.Float() / total * base * ltv
		capacity += math.Min(limited, collValue)
	}
	return capacity, nil
}

func (t *tx) checkDefend(account string, value float64) error {
	capacity, err := t.defendCapacity(account)
	if err != nil {
		return err
	}
	if !(value < capacity) {
		return ErrDefendCheck
	}
	return nil
}

// DefendSettings is the admin-tunable part of a defend record.
type DefendSettings struct {
	MaxValue   decimal.Decimal `json:"max_value"`
	PauseValue decimal.Decimal `json:"pause_value"`
	Percent    uint8           `json:"percent"`
	PoolSize   uint8           `json:"pool_size"`
}

func (t *tx) setDefend(pool string, s DefendSettings) error {
	rec, ok := t.store.defends[pool]
	if !ok {
		return ErrDefendNotFound
	}
	if s.Percent > 100 || s.PoolSize == 0 || s.MaxValue.IsNegative() || s.PauseValue.IsNegative() {
		return ErrInvalidParams
	}
	rec.MaxValue = s.MaxValue
	rec.PauseValue = s.PauseValue
	rec.Percent = s.Percent
	rec.PoolSize = s.PoolSize
	return nil
}

func (t *tx) resumeDefend(pool string) error {
	rec, ok := t.store.defends[pool]
	if !ok {
		return ErrDefendNotFound
	}
	rec.PauseTill = time.Time{}
	return nil
}
