// Package rpc exposes the read surface and operator controls over HTTP.
// Mutating settlement flows stay on the engines; the HTTP layer only
// serves queries, health and metrics, plus the pause switchboard.
package rpc

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"tidepool/native/amm"
	"tidepool/native/common"
	"tidepool/native/farm"
	"tidepool/native/lending"
	"tidepool/native/orderbook"
	"tidepool/observability/metrics"
)

// Server wires the settlement engines behind a chi router.
type Server struct {
	pool    *amm.Engine
	farm    *farm.Engine
	lending *lending.Engine
	orders  *orderbook.Engine
	pauses  *common.Switchboard
	logger  *slog.Logger
	limiter *rate.Limiter
	metrics *metrics.SettlementMetrics
}

func NewServer(pool *amm.Engine, farmEngine *farm.Engine, lendingEngine *lending.Engine, orders *orderbook.Engine, pauses *common.Switchboard, logger *slog.Logger, rps float64, burst int) *Server {
	return &Server{
		pool:    pool,
		farm:    farmEngine,
		lending: lendingEngine,
		orders:  orders,
		pauses:  pauses,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		metrics: metrics.Settlement(),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Use(s.throttle)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pools", s.handlePool)
		r.Get("/quote", s.handleQuote)
		r.Get("/positions/{owner}/{collateral}", s.handlePosition)
		r.Get("/orders/{id}", s.handleOrder)
		r.Get("/farms/{pool}/rewards/{owner}", s.handlePendingReward)
		r.Get("/farms/reserves/{token}", s.handleReserve)
		r.Post("/admin/pause", s.handlePause)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.metrics.IncRequestError(r.URL.Path)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	tokenA := r.URL.Query().Get("tokenA")
	tokenB := r.URL.Query().Get("tokenB")
	pool, err := s.pool.Pool(tokenA, tokenB)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if pool == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pair":            pool.PairID,
		"tokenA":          pool.TokenA,
		"tokenB":          pool.TokenB,
		"reserveA":        pool.ReserveA.Dec(),
		"reserveB":        pool.ReserveB.Dec(),
		"totalShares":     pool.TotalShares.Dec(),
		"feeProtocolBps":  pool.FeeProtocolBps,
		"feeLiquidityBps": pool.FeeLiquidityBps,
	})
}

// handleQuote prices a swap without executing it: the combined fee comes
// off the input, then the constant-product output is computed against the
// live reserves.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tokenIn := strings.TrimSpace(q.Get("tokenIn"))
	tokenOut := strings.TrimSpace(q.Get("tokenOut"))
	amountIn, ok := new(big.Int).SetString(q.Get("amountIn"), 10)
	if !ok || amountIn.Sign() <= 0 {
		http.Error(w, "amountIn must be a positive integer", http.StatusBadRequest)
		return
	}
	pool, err := s.pool.Pool(tokenIn, tokenOut)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if pool == nil {
		http.NotFound(w, r)
		return
	}
	reserveIn, reserveOut := pool.ReserveA.ToBig(), pool.ReserveB.ToBig()
	if !strings.EqualFold(tokenIn, pool.TokenA) {
		reserveIn, reserveOut = reserveOut, reserveIn
	}
	feeBps := new(big.Int).SetUint64(pool.FeeProtocolBps + pool.FeeLiquidityBps)
	fee := new(big.Int).Mul(amountIn, feeBps)
	fee.Quo(fee, big.NewInt(10_000))
	netIn := new(big.Int).Sub(amountIn, fee)
	amountOut, err := amm.Quote(netIn, reserveIn, reserveOut)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"amountIn":  amountIn.String(),
		"amountOut": amountOut.String(),
		"feePaid":   fee.String(),
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	collateral := chi.URLParam(r, "collateral")
	position, err := s.lending.Position(owner, collateral)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if position == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	order, err := s.orders.Order(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if order == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handlePendingReward(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "pool")
	owner := chi.URLParam(r, "owner")
	pending, err := s.farm.PendingReward(poolID, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"pool":    poolID,
		"owner":   owner,
		"pending": pending.String(),
	})
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	reserve, err := s.farm.ReserveOf(token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if reserve == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":     reserve.Token,
		"available": reserve.Available.String(),
		"lentOut":   reserve.LentOut.String(),
	})
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	module := strings.TrimSpace(req.Module)
	if module == "" {
		http.Error(w, "module must not be empty", http.StatusBadRequest)
		return
	}
	s.pauses.SetPaused(module, req.Paused)
	s.logger.Warn("module pause toggled", slog.String("module", module), slog.Bool("paused", req.Paused))
	writeJSON(w, http.StatusOK, map[string]any{"module": module, "paused": req.Paused})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.metrics.IncRequestError(r.URL.Path)
	s.logger.Error("request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
