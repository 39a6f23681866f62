// Package service runs lending operations through the daemon's commit
// pipeline: engine, snapshot persistence, effect outbox and event stream.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lendcore/core/events"
	"lendcore/core/state"
	"lendcore/core/types"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/observability/metrics"
	"lendcore/services/lendingd/outbox"
)

// ErrPersist wraps failures that happen after the engine committed.
var ErrPersist = errors.New("lendingd: persist committed state")

// Publisher receives committed events.
type Publisher interface {
	Publish([]events.Event)
}

// Poller refreshes cached prices.
type Poller interface {
	Poll(ctx context.Context) (int, error)
}

// Outbox stores committed effects.
type Outbox interface {
	Enqueue(ctx context.Context, seq uint64, op string, effects []lending.Effect) (*outbox.Batch, bool, error)
	PendingCount(ctx context.Context) (int64, error)
}

// Config wires the service dependencies. State, Outbox, Publisher and Prices
// are optional.
type Config struct {
	Engine    *lending.Engine
	State     *state.Manager
	Outbox    Outbox
	Publisher Publisher
	Prices    Poller
	Oracle    lending.PriceOracle
	Quota     nativecommon.Quota
	Logger    *slog.Logger
}

// Outcome is what a committed operation produced.
type Outcome struct {
	Result   *lending.Result     `json:"result"`
	Snapshot *state.SnapshotInfo `json:"snapshot,omitempty"`
	BatchID  *uuid.UUID          `json:"batch_id,omitempty"`
}

type Service struct {
	engine    *lending.Engine
	state     *state.Manager
	outbox    Outbox
	publisher Publisher
	prices    Poller
	oracle    lending.PriceOracle
	quota     *nativecommon.QuotaTracker
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex
}

func New(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("lendingd: engine required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		engine:    cfg.Engine,
		state:     cfg.State,
		outbox:    cfg.Outbox,
		publisher: cfg.Publisher,
		prices:    cfg.Prices,
		oracle:    cfg.Oracle,
		quota:     nativecommon.NewQuotaTracker(cfg.Quota),
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// Engine exposes the engine for queries.
func (s *Service) Engine() *lending.Engine {
	return s.engine
}

// Commit runs fn and, when it succeeds, persists the new store, enqueues
// its effects and publishes its events, in that order. Commits are
// serialized so snapshot sequences follow engine commit order.
func (s *Service) Commit(ctx context.Context, op string, fn func() (*lending.Result, error)) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res, err := fn()
	metrics.Lending().ObserveOperation(op, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &lending.Result{}
	}
	out := &Outcome{Result: res}

	var seq uint64
	if s.state != nil {
		info, err := s.state.PutLendingSnapshot(s.engine.Snapshot(), s.now())
		if err != nil {
			s.logger.Error("snapshot persist failed", slog.String("op", op), slog.Any("error", err))
			return nil, fmt.Errorf("%w: %v", ErrPersist, err)
		}
		out.Snapshot = info
		seq = info.Sequence
		metrics.Lending().SetSnapshotSize(info.Size)
	}
	if s.outbox != nil && len(res.Effects) > 0 {
		batch, _, err := s.outbox.Enqueue(ctx, seq, op, res.Effects)
		if err != nil {
			s.logger.Error("outbox enqueue failed", slog.String("op", op), slog.Any("error", err))
			return nil, fmt.Errorf("%w: %v", ErrPersist, err)
		}
		id := batch.ID
		out.BatchID = &id
		if pending, err := s.outbox.PendingCount(ctx); err == nil {
			metrics.Lending().SetOutboxPending(int(pending))
		}
	}
	if s.publisher != nil && len(res.Events) > 0 {
		s.publisher.Publish(res.Events)
	}
	s.publishPools()
	return out, nil
}

func (s *Service) publishPools() {
	m := metrics.Lending()
	for _, p := range s.engine.Pools() {
		usage, _ := p.UsageRate.Float64()
		m.SetPool(p.Name, p.AvailableDeposit.Float(), p.Borrow.Float(), usage)
	}
	for _, d := range s.engine.BadDebts() {
		m.SetBadDebt(d.Pool, d.Quantity.Quantity.Float())
	}
}

// Charge counts one request against account's quota. The value is the
// quantity priced in whole quote units; unpriced tokens count zero value.
func (s *Service) Charge(account string, token types.ExtendedSymbol, q types.Asset) error {
	var value uint64
	if s.oracle != nil && q.IsPositive() {
		if price, err := s.oracle.GetPrice(token); err == nil {
			if v := price.InexactFloat64() * q.Float(); v > 0 {
				value = uint64(v)
			}
		}
	}
	return s.quota.Charge(account, s.now(), value)
}

// Usage reports the quota counters of account.
func (s *Service) Usage(account string) nativecommon.QuotaNow {
	return s.quota.Usage(account)
}

// Restore loads the persisted store. It reports false when nothing was
// persisted yet.
func (s *Service) Restore() (bool, error) {
	if s.state == nil {
		return false, nil
	}
	snap, info, ok, err := s.state.LendingSnapshot()
	if err != nil || !ok {
		return false, err
	}
	if err := s.engine.Restore(snap); err != nil {
		return false, err
	}
	s.logger.Info("restored lending store",
		slog.Uint64("sequence", info.Sequence),
		slog.Time("saved_at", info.SavedAt),
		slog.Int("pools", len(snap.Pools)))
	s.publishPools()
	return true, nil
}

// Bootstrap adds the configured pools that do not exist yet and opens their
// features.
func (s *Service) Bootstrap(ctx context.Context, specs []lending.PoolSpec, features map[string][]lending.FeaturePerm) error {
	for _, spec := range specs {
		if _, err := s.engine.Pool(spec.Name); err == nil {
			continue
		}
		spec := spec
		if _, err := s.Commit(ctx, "add_pool", func() (*lending.Result, error) { return s.engine.AddPool(spec) }); err != nil {
			return fmt.Errorf("bootstrap pool %s: %w", spec.Name, err)
		}
		perms := features[spec.Name]
		if len(perms) == 0 {
			continue
		}
		if _, err := s.Commit(ctx, "set_features", func() (*lending.Result, error) { return s.engine.SetFeatures(spec.Name, perms) }); err != nil {
			return fmt.Errorf("bootstrap features %s: %w", spec.Name, err)
		}
		s.logger.Info("bootstrapped pool", slog.String("pool", spec.Name), slog.String("anchor", spec.Anchor.String()))
	}
	return nil
}

// SettleInterest settles every pool.
func (s *Service) SettleInterest(ctx context.Context) (*Outcome, error) {
	return s.Commit(ctx, "settle_interest", s.engine.SettleInterest)
}

// RefreshPrices polls remote sources, then snapshots prices into pools.
func (s *Service) RefreshPrices(ctx context.Context) (*Outcome, error) {
	if s.prices != nil {
		if _, err := s.prices.Poll(ctx); err != nil {
			s.logger.Warn("price poll incomplete", slog.Any("error", err))
		}
	}
	return s.Commit(ctx, "refresh_prices", s.engine.RefreshPrices)
}

// RefreshHealth re-evaluates stale health records and liquidates underwater
// accounts.
func (s *Service) RefreshHealth(ctx context.Context, threshold float64) (*lending.RefreshSummary, *Outcome, error) {
	var summary *lending.RefreshSummary
	out, err := s.Commit(ctx, "refresh_health", func() (*lending.Result, error) {
		sum, res, err := s.engine.RefreshHealth(threshold)
		summary = sum
		return res, err
	})
	if err != nil {
		return nil, nil, err
	}
	if summary != nil {
		metrics.Lending().ObserveRefresh(summary.Refreshed, summary.Removed, len(summary.Liquidated), len(summary.Capped))
		if len(summary.Liquidated) > 0 || len(summary.Capped) > 0 {
			s.logger.Info("health refresh liquidated accounts",
				slog.Any("liquidated", summary.Liquidated),
				slog.Any("capped", summary.Capped))
		}
	}
	return summary, out, nil
}

// CacheHealth rebuilds health records for every borrower.
func (s *Service) CacheHealth(ctx context.Context) (int, *Outcome, error) {
	var n int
	out, err := s.Commit(ctx, "cache_health", func() (*lending.Result, error) {
		count, res, err := s.engine.CacheHealth()
		n = count
		return res, err
	})
	return n, out, err
}

// ClaimEarn skims protocol income.
func (s *Service) ClaimEarn(ctx context.Context) (*Outcome, error) {
	return s.Commit(ctx, "claim_earn", s.engine.ClaimEarn)
}
