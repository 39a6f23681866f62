// Package pricefeed quotes anchor tokens for the lending engine from a static
// table and optional HTTP JSON sources.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/types"
	"lendcore/native/lending"
)

// Source is an endpoint answering GET with a JSON object mapping extended
// symbols ("4,EOS@eosio.token") to prices. Prices may be numbers or strings.
type Source struct {
	Name string
	URL  string
}

// Quote is a cached price with its provenance.
type Quote struct {
	Token     types.ExtendedSymbol `json:"token"`
	Price     decimal.Decimal      `json:"price"`
	Source    string               `json:"source"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Feed implements lending.PriceOracle.
type Feed struct {
	mu      sync.RWMutex
	quotes  map[types.ExtendedSymbol]Quote
	sources []Source
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// New seeds the feed with static quotes.
func New(static map[types.ExtendedSymbol]decimal.Decimal, sources []Source, timeout time.Duration, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	f := &Feed{
		quotes:  make(map[types.ExtendedSymbol]Quote, len(static)),
		sources: sources,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		now:     time.Now,
	}
	for token, price := range static {
		f.quotes[token] = Quote{Token: token, Price: price, Source: "static", UpdatedAt: f.now().UTC()}
	}
	return f
}

// GetPrice returns the latest quote for token.
func (f *Feed) GetPrice(token types.ExtendedSymbol) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[token]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", lending.ErrUnknownPrice, token)
	}
	return q.Price, nil
}

// Set overrides the quote for token.
func (f *Feed) Set(token types.ExtendedSymbol, price decimal.Decimal, source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[token] = Quote{Token: token, Price: price, Source: source, UpdatedAt: f.now().UTC()}
}

// Quotes lists the cached quotes.
func (f *Feed) Quotes() []Quote {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Quote, 0, len(f.quotes))
	for _, q := range f.quotes {
		out = append(out, q)
	}
	return out
}

// Poll fetches every source once. Tokens a source quotes replace the cached
// value; a failing source leaves previous quotes in place.
func (f *Feed) Poll(ctx context.Context) (int, error) {
	var (
		updated int
		errs    []error
	)
	for _, src := range f.sources {
		n, err := f.fetch(ctx, src)
		if err != nil {
			f.logger.Warn("price source failed", slog.String("source", src.Name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		updated += n
	}
	return updated, errors.Join(errs...)
}

func (f *Feed) fetch(ctx context.Context, src Source) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var payload map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode prices: %w", err)
	}
	parsed := make(map[types.ExtendedSymbol]decimal.Decimal, len(payload))
	for key, price := range payload {
		token, err := types.ParseExtendedSymbol(key)
		if err != nil {
			return 0, err
		}
		if price.IsNegative() {
			return 0, fmt.Errorf("negative price for %s", key)
		}
		parsed[token] = price
	}
	name := src.Name
	if name == "" {
		name = src.URL
	}
	for token, price := range parsed {
		f.Set(token, price, name)
	}
	return len(parsed), nil
}
