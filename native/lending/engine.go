package lending

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lendcore/core/events"
	"lendcore/core/types"
	nativecommon "lendcore/native/common"
)

const moduleName = "lending"

// PriceOracle quotes anchor tokens in the protocol's value unit.
type PriceOracle interface {
	GetPrice(token types.ExtendedSymbol) (decimal.Decimal, error)
}

// VoteSource reports an account's governance weight.
type VoteSource interface {
	Votes(account string) uint64
}

// AccountDirectory answers identity questions about counterparties.
type AccountDirectory interface {
	IsAccount(name string) bool
	IsContract(name string) bool
}

// Engine applies lending operations one at a time. Every operation runs on a
// private copy of the store which replaces the live store only on success.
type Engine struct {
	mu       sync.Mutex
	store    *Store
	params   Params
	oracle   PriceOracle
	votes    VoteSource
	accounts AccountDirectory
	pauses   nativecommon.PauseView
	emitter  events.Emitter
	logger   *slog.Logger
	clock    func() time.Time
}

// NewEngine constructs an engine over an empty store.
func NewEngine(params Params) *Engine {
	return &Engine{
		store:   NewStore(),
		params:  params,
		emitter: events.NoopEmitter{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:   time.Now,
	}
}

// SetStore replaces the engine state, e.g. after restoring a snapshot.
func (e *Engine) SetStore(s *Store) {
	if e == nil || s == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = s
}

func (e *Engine) SetOracle(o PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = o
}

func (e *Engine) SetVotes(v VoteSource) {
	if e == nil {
		return
	}
	e.votes = v
}

func (e *Engine) SetAccounts(a AccountDirectory) {
	if e == nil {
		return
	}
	e.accounts = a
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures where committed events are published.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// SetClock overrides the wall clock, mainly for tests.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// Params returns the engine configuration.
func (e *Engine) Params() Params {
	return e.params
}

type tx struct {
	store    *Store
	now      time.Time
	params   Params
	oracle   PriceOracle
	votes    VoteSource
	accounts AccountDirectory
	logger   *slog.Logger
	result   *Result
}

// apply runs fn against a copy of the store and commits it when fn succeeds.
func (e *Engine) apply(fn func(t *tx) error) (res *Result, err error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// Asset arithmetic panics on mixed symbols or out-of-range totals. The
	// store copy is dropped and the panic becomes an ordinary error.
	defer func() {
		if r := recover(); r != nil {
			cause := types.ArithmeticError(r)
			if cause == nil {
				panic(r)
			}
			res, err = nil, arithmeticErr("transaction", cause)
		}
	}()
	t := &tx{
		store:    e.store.Copy(),
		now:      e.clock().UTC(),
		params:   e.params,
		oracle:   e.oracle,
		votes:    e.votes,
		accounts: e.accounts,
		logger:   e.logger,
		result:   &Result{},
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	e.store = t.store
	for _, ev := range t.result.Events {
		e.emitter.Emit(ev)
	}
	return t.result, nil
}

// view runs a read-only function against the live store.
func (e *Engine) view(fn func(s *Store, now time.Time)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.store, e.clock().UTC())
}

// Snapshot exports the live store.
func (e *Engine) Snapshot() *Snapshot {
	var snap *Snapshot
	e.view(func(s *Store, _ time.Time) { snap = s.Snapshot() })
	return snap
}

// Restore replaces the live store with one rebuilt from snap.
func (e *Engine) Restore(snap *Snapshot) error {
	store, err := RestoreStore(snap)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = store
	return nil
}
