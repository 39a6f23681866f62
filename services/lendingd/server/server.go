// Package server exposes the lending engine over a JSON HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"lendcore/core/state"
	"lendcore/core/types"
	"lendcore/gateway/middleware"
	"lendcore/native/lending"
	"lendcore/services/lendingd/idempotency"
	"lendcore/services/lendingd/outbox"
	"lendcore/services/lendingd/pricefeed"
	"lendcore/services/lendingd/service"
)

const moduleName = "lending"

// OutboxReader is the operator view of the effect outbox.
type OutboxReader interface {
	Pending(ctx context.Context, limit int) ([]outbox.Batch, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) (*outbox.Batch, error)
}

// Config captures the dependencies required to construct the server. Only
// Service is mandatory.
type Config struct {
	Service       *service.Service
	Feed          *pricefeed.Feed
	Outbox        OutboxReader
	State         *state.Manager
	Pauses        *service.Pauses
	Events        http.Handler
	Auth          *middleware.Authenticator
	AuthEnabled   bool
	Limiter       *middleware.RateLimiter
	Observability *middleware.Observability
	Idempotency   *idempotency.Store
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	svc         *service.Service
	engine      *lending.Engine
	feed        *pricefeed.Feed
	outbox      OutboxReader
	state       *state.Manager
	pauses      *service.Pauses
	events      http.Handler
	auth        *middleware.Authenticator
	authEnabled bool
	limiter     *middleware.RateLimiter
	obs         *middleware.Observability
	idem        *idempotency.Store
	logger      *slog.Logger

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Auth == nil {
		cfg.Auth = middleware.NewAuthenticator(middleware.AuthConfig{}, cfg.Logger)
	}
	if cfg.Observability == nil {
		cfg.Observability = middleware.NewObservability(middleware.ObservabilityConfig{}, cfg.Logger)
	}
	srv := &Server{
		svc:         cfg.Service,
		engine:      cfg.Service.Engine(),
		feed:        cfg.Feed,
		outbox:      cfg.Outbox,
		state:       cfg.State,
		pauses:      cfg.Pauses,
		events:      cfg.Events,
		auth:        cfg.Auth,
		authEnabled: cfg.AuthEnabled,
		limiter:     cfg.Limiter,
		obs:         cfg.Observability,
		idem:        cfg.Idempotency,
		logger:      cfg.Logger,
	}
	srv.router = srv.buildRouter(cfg.CORS)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) limit(key string) func(http.Handler) http.Handler {
	if s.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.limiter.Middleware(key)
}

func (s *Server) idempotent(next http.Handler) http.Handler {
	if s.idem == nil {
		return next
	}
	return s.idem.Middleware(next)
}

func (s *Server) buildRouter(cors middleware.CORSConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cors))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.obs.MetricsHandler())
	if s.events != nil {
		r.Handle("/v1/events/ws", s.obs.Middleware("events")(s.events))
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(q chi.Router) {
			q.Use(s.limit("query"))
			q.With(s.obs.Middleware("pools")).Get("/pools", s.handlePools)
			q.With(s.obs.Middleware("pool")).Get("/pools/{pool}", s.handlePool)
			q.With(s.obs.Middleware("pool_rates")).Get("/pools/{pool}/rates", s.handlePoolRates)
			q.With(s.obs.Middleware("pool_defend")).Get("/pools/{pool}/defend", s.handlePoolDefend)
			q.With(s.obs.Middleware("account")).Get("/accounts/{account}", s.handleAccount)
			q.With(s.obs.Middleware("orders")).Get("/orders", s.handleOrders)
			q.With(s.obs.Middleware("order")).Get("/orders/{id}", s.handleOrder)
			q.With(s.obs.Middleware("health")).Get("/health/{account}", s.handleHealth)
			q.With(s.obs.Middleware("baddebts")).Get("/baddebts", s.handleBadDebts)
			q.With(s.obs.Middleware("earns")).Get("/earns", s.handleEarns)
			q.With(s.obs.Middleware("prices")).Get("/prices", s.handlePrices)
		})

		v1.Group(func(u chi.Router) {
			u.Use(s.limit("lending"))
			u.Use(s.auth.Middleware(middleware.ScopeUser))
			u.Use(s.idempotent)
			u.With(s.obs.Middleware("transfers")).Post("/transfers", s.handleTransfer)
			u.With(s.obs.Middleware("redeem")).Post("/actions/redeem", s.handleRedeem)
			u.With(s.obs.Middleware("redeemall")).Post("/actions/redeemall", s.handleRedeemAll)
			u.With(s.obs.Middleware("withdraw")).Post("/actions/withdraw", s.handleWithdraw)
			u.With(s.obs.Middleware("borrow")).Post("/actions/borrow", s.handleBorrow)
		})

		v1.Group(func(a chi.Router) {
			a.Use(s.limit("admin"))
			a.Use(s.auth.Middleware(middleware.ScopeAdmin))
			a.Use(s.idempotent)
			a.With(s.obs.Middleware("admin_add_pool")).Post("/admin/pools", s.handleAddPool)
			a.With(s.obs.Middleware("admin_pool_config")).Post("/admin/pools/{pool}/config", s.handleSetPoolConfig)
			a.With(s.obs.Middleware("admin_features")).Post("/admin/pools/{pool}/features", s.handleSetFeatures)
			a.With(s.obs.Middleware("admin_rates")).Post("/admin/rates", s.handleSetRate)
			a.With(s.obs.Middleware("admin_claim")).Post("/admin/claimearn", s.handleClaimEarn)
			a.With(s.obs.Middleware("admin_allow")).Post("/admin/allow", s.handleACL(s.engine.AddAllow, "add_allow"))
			a.With(s.obs.Middleware("admin_allow_remove")).Post("/admin/allow/remove", s.handleACLRemove(s.engine.RemoveAllow, "remove_allow"))
			a.With(s.obs.Middleware("admin_block")).Post("/admin/block", s.handleACL(s.engine.AddBlock, "add_block"))
			a.With(s.obs.Middleware("admin_block_remove")).Post("/admin/block/remove", s.handleACLRemove(s.engine.RemoveBlock, "remove_block"))
			a.With(s.obs.Middleware("admin_defend")).Post("/admin/defend/{pool}", s.handleSetDefend)
			a.With(s.obs.Middleware("admin_defend_resume")).Post("/admin/defend/{pool}/resume", s.handleResumeDefend)
			a.With(s.obs.Middleware("admin_swap")).Post("/admin/collateralswap", s.handleCollateralSwap)
			a.With(s.obs.Middleware("admin_price")).Post("/admin/prices", s.handleSetPrice)
			a.With(s.obs.Middleware("admin_pause")).Post("/admin/pause", s.handlePause)
		})

		v1.Group(func(m chi.Router) {
			m.Use(s.limit("maintenance"))
			m.Use(s.auth.Middleware(middleware.ScopeOperator))
			m.With(s.obs.Middleware("maint_interest")).Post("/maintenance/interest", s.handleSettleInterest)
			m.With(s.obs.Middleware("maint_prices")).Post("/maintenance/prices", s.handleRefreshPrices)
			m.With(s.obs.Middleware("maint_health")).Post("/maintenance/health", s.handleRefreshHealth)
			m.With(s.obs.Middleware("maint_cachehealth")).Post("/maintenance/cachehealth", s.handleCacheHealth)
			m.With(s.obs.Middleware("outbox")).Get("/outbox", s.handleOutbox)
			m.With(s.obs.Middleware("outbox_ack")).Post("/outbox/{id}/ack", s.handleOutboxAck)
			m.With(s.obs.Middleware("snapshot")).Get("/snapshot", s.handleSnapshot)
		})
	})
	return r
}

// authorizeAccount requires the token subject to own account unless the
// token carries operator or admin scope.
func (s *Server) authorizeAccount(r *http.Request, account string) error {
	if !s.authEnabled {
		return nil
	}
	for _, scope := range middleware.ScopesFromContext(r.Context()) {
		if scope == middleware.ScopeAdmin || scope == middleware.ScopeOperator {
			return nil
		}
	}
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok || accountName(subject) != accountName(account) {
		return errForbidden
	}
	return nil
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, out *service.Outcome, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(out))
}

func toResponse(out *service.Outcome) outcomeResponse {
	resp := outcomeResponse{Effects: []lending.Effect{}}
	if out == nil {
		return resp
	}
	if out.Result != nil && out.Result.Effects != nil {
		resp.Effects = out.Result.Effects
	}
	resp.Snapshot = out.Snapshot
	resp.BatchID = out.BatchID
	return resp
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	paused := s.pauses != nil && s.pauses.IsPaused(moduleName)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"pools":  len(s.engine.Pools()),
		"paused": paused,
	})
}

// User actions.

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := parseQuantity(req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.authorizeAccount(r, req.From); err != nil {
		s.writeError(w, r, err)
		return
	}
	token := types.ExtendedSymbol{Symbol: q.Symbol, Contract: strings.TrimSpace(req.Contract)}
	if err := s.svc.Charge(req.From, token, q); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Commit(r.Context(), "transfer", func() (*lending.Result, error) {
		return s.engine.OnTransfer(req.From, token.Contract, q, req.Memo)
	})
	s.respond(w, r, out, err)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	s.quantityAction(w, r, "redeem", s.engine.Redeem)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.quantityAction(w, r, "withdraw", s.engine.Withdraw)
}

func (s *Server) quantityAction(w http.ResponseWriter, r *http.Request, op string, fn func(account, contract string, q types.Asset) (*lending.Result, error)) {
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := parseQuantity(req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.authorizeAccount(r, req.Account); err != nil {
		s.writeError(w, r, err)
		return
	}
	contract := strings.TrimSpace(req.Contract)
	if err := s.svc.Charge(req.Account, types.ExtendedSymbol{Symbol: q.Symbol, Contract: contract}, q); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Commit(r.Context(), op, func() (*lending.Result, error) {
		return fn(req.Account, contract, q)
	})
	s.respond(w, r, out, err)
}

func (s *Server) handleRedeemAll(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.authorizeAccount(r, req.Account); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.Charge(req.Account, types.ExtendedSymbol{}, types.Asset{}); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Commit(r.Context(), "redeemall", func() (*lending.Result, error) {
		return s.engine.RedeemAll(req.Account, strings.TrimSpace(req.Pool))
	})
	s.respond(w, r, out, err)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := parseQuantity(req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	typ, err := parseLoanType(req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.authorizeAccount(r, req.Account); err != nil {
		s.writeError(w, r, err)
		return
	}
	contract := strings.TrimSpace(req.Contract)
	if err := s.svc.Charge(req.Account, types.ExtendedSymbol{Symbol: q.Symbol, Contract: contract}, q); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Commit(r.Context(), "borrow", func() (*lending.Result, error) {
		return s.engine.Borrow(req.Account, contract, q, typ)
	})
	s.respond(w, r, out, err)
}

// Admin.

func (s *Server) handleAddPool(w http.ResponseWriter, r *http.Request) {
	var req addPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	anchor, err := parseToken(req.Anchor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	share, err := parseToken(req.Share)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spec := lending.PoolSpec{Name: strings.TrimSpace(req.Name), Anchor: anchor, Share: share, Config: req.Config, MaxSupply: req.MaxSupply}
	out, err := s.svc.Commit(r.Context(), "add_pool", func() (*lending.Result, error) { return s.engine.AddPool(spec) })
	s.respond(w, r, out, err)
}

func (s *Server) handleSetPoolConfig(w http.ResponseWriter, r *http.Request) {
	var cfg lending.PoolConfig
	if err := decodeJSON(r, &cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	pool := chi.URLParam(r, "pool")
	out, err := s.svc.Commit(r.Context(), "set_pool_config", func() (*lending.Result, error) { return s.engine.SetPoolConfig(pool, cfg) })
	s.respond(w, r, out, err)
}

func (s *Server) handleSetFeatures(w http.ResponseWriter, r *http.Request) {
	var req featuresRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pool := chi.URLParam(r, "pool")
	out, err := s.svc.Commit(r.Context(), "set_features", func() (*lending.Result, error) { return s.engine.SetFeatures(pool, req.Features) })
	s.respond(w, r, out, err)
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	var req setRateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Commit(r.Context(), "set_rate", func() (*lending.Result, error) {
		return s.engine.SetRate(req.Pools, req.BaseRate, req.MaxRate)
	})
	s.respond(w, r, out, err)
}

func (s *Server) handleClaimEarn(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.ClaimEarn(r.Context())
	s.respond(w, r, out, err)
}

func (s *Server) handleACL(fn func(account, feature string, d time.Duration) (*lending.Result, error), op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req aclRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		d, err := parseDuration(req.Duration)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out, err := s.svc.Commit(r.Context(), op, func() (*lending.Result, error) {
			return fn(req.Account, strings.TrimSpace(req.Feature), d)
		})
		s.respond(w, r, out, err)
	}
}

func (s *Server) handleACLRemove(fn func(account, feature string) (*lending.Result, error), op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req aclRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		out, err := s.svc.Commit(r.Context(), op, func() (*lending.Result, error) {
			return fn(req.Account, strings.TrimSpace(req.Feature))
		})
		s.respond(w, r, out, err)
	}
}

func (s *Server) handleSetDefend(w http.ResponseWriter, r *http.Request) {
	var req lending.DefendSettings
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pool := chi.URLParam(r, "pool")
	out, err := s.svc.Commit(r.Context(), "set_defend", func() (*lending.Result, error) { return s.engine.SetDefend(pool, req) })
	s.respond(w, r, out, err)
}

func (s *Server) handleResumeDefend(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	out, err := s.svc.Commit(r.Context(), "resume_defend", func() (*lending.Result, error) { return s.engine.ResumeDefend(pool) })
	s.respond(w, r, out, err)
}

func (s *Server) handleCollateralSwap(w http.ResponseWriter, r *http.Request) {
	var req lending.SwapRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Commit(r.Context(), "collateral_swap", func() (*lending.Result, error) { return s.engine.CollateralSwap(req) })
	s.respond(w, r, out, err)
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		http.Error(w, "price feed unavailable", http.StatusServiceUnavailable)
		return
	}
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := parseToken(req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Price.IsNegative() {
		s.writeError(w, r, lending.ErrInvalidParams)
		return
	}
	s.feed.Set(token, req.Price, "manual")
	writeJSON(w, http.StatusOK, map[string]string{"token": token.String(), "price": req.Price.String()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if s.pauses == nil {
		http.Error(w, "pause switch unavailable", http.StatusServiceUnavailable)
		return
	}
	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.pauses.Set(moduleName, req.Paused)
	s.logger.Warn("lending module pause changed", slog.Bool("paused", req.Paused))
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

// Maintenance.

func (s *Server) handleSettleInterest(w http.ResponseWriter, r *http.Request) {
	var req interestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Pools) == 0 {
		out, err := s.svc.SettleInterest(r.Context())
		s.respond(w, r, out, err)
		return
	}
	out, err := s.svc.Commit(r.Context(), "settle_interest", func() (*lending.Result, error) {
		return s.engine.SettleInterestFor(req.Pools)
	})
	s.respond(w, r, out, err)
}

func (s *Server) handleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.RefreshPrices(r.Context())
	s.respond(w, r, out, err)
}

func (s *Server) handleRefreshHealth(w http.ResponseWriter, r *http.Request) {
	var req healthRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, out, err := s.svc.RefreshHealth(r.Context(), req.Threshold)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := toResponse(out)
	resp.Summary = summary
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheHealth(w http.ResponseWriter, r *http.Request) {
	n, out, err := s.svc.CacheHealth(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := toResponse(out)
	resp.Count = &n
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	if s.outbox == nil {
		http.Error(w, "outbox unavailable", http.StatusServiceUnavailable)
		return
	}
	batches, err := s.outbox.Pending(r.Context(), parseLimit(r.URL.Query().Get("limit"), 100))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	type item struct {
		outbox.Batch
		Effects []lending.Effect `json:"effects"`
	}
	items := make([]item, 0, len(batches))
	for _, b := range batches {
		effects, err := b.Decode()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		items = append(items, item{Batch: b, Effects: effects})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleOutboxAck(w http.ResponseWriter, r *http.Request) {
	if s.outbox == nil {
		http.Error(w, "outbox unavailable", http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, errBadRequest)
		return
	}
	batch, err := s.outbox.MarkDispatched(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"store": s.engine.Snapshot()}
	if s.state != nil {
		if _, info, ok, err := s.state.LendingSnapshot(); err == nil && ok {
			resp["persisted"] = info
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Queries.

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools := s.engine.Pools()
	if pools == nil {
		pools = []*lending.Pool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.Pool(chi.URLParam(r, "pool"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handlePoolRates(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "pool")
	if _, err := s.engine.Pool(name); err != nil {
		s.writeError(w, r, err)
		return
	}
	rates := s.engine.RateHistory(name)
	if rates == nil {
		rates = []lending.RateSample{}
	}
	writeJSON(w, http.StatusOK, rates)
}

func (s *Server) handlePoolDefend(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Defend(chi.URLParam(r, "pool"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account := accountName(chi.URLParam(r, "account"))
	factor, err := s.engine.HealthFactor(account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position":      s.engine.Position(account),
		"health_factor": factor,
		"quota":         s.svc.Usage(account),
	})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.engine.Orders()
	if orders == nil {
		orders = []*lending.LiquidationOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, r, errBadRequest)
		return
	}
	order, err := s.engine.Order(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Health(accountName(chi.URLParam(r, "account")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleBadDebts(w http.ResponseWriter, r *http.Request) {
	out := s.engine.BadDebts()
	if out == nil {
		out = []*lending.BadDebt{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEarns(w http.ResponseWriter, r *http.Request) {
	out := s.engine.Earns()
	if out == nil {
		out = []*lending.Earn{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeJSON(w, http.StatusOK, []pricefeed.Quote{})
		return
	}
	writeJSON(w, http.StatusOK, s.feed.Quotes())
}
