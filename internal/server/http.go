package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"SynthLedger/internal/engine"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/state"
)

// Server exposes the engine over HTTP/JSON. Every mutating route maps 1:1
// onto one engine operation; the engine's own serialization makes the
// handlers trivially concurrent-safe.
type Server struct {
	engine  *engine.Engine
	health  *observability.HealthChecker
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func New(eng *engine.Engine, health *observability.HealthChecker, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		engine:  eng,
		health:  health,
		metrics: metrics,
		logger:  logger,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/cycle", s.handleCycleStatus)
		r.Get("/cycles/{index}", s.handleCycleRecord)

		r.Post("/cycle/rebalance/offchain", s.handleOffchain)
		r.Post("/cycle/rebalance/onchain", s.handleOnchain)
		r.Post("/cycle/rebalance/force", s.handleForceSettle)
		r.Post("/cycle/start", s.handleStartNewCycle)

		r.Route("/lps", func(r chi.Router) {
			r.Post("/", s.handleRegisterLP)
			r.Get("/{id}", s.handleLPStatus)
			r.Post("/{id}/collateral", s.handleLPCollateral)
			r.Post("/{id}/requests", s.handleLPRequest)
			r.Post("/{id}/requests/cancel", s.handleLPCancel)
			r.Post("/{id}/claim", s.handleLPClaim)
			r.Post("/{id}/rebalance", s.handleRebalance)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}", s.handleUserStatus)
			r.Post("/{id}/collateral", s.handleUserCollateral)
			r.Post("/{id}/collateral/withdraw", s.handleUserCollateralWithdraw)
			r.Post("/{id}/deposit", s.handleDeposit)
			r.Post("/{id}/redeem", s.handleRedeem)
			r.Post("/{id}/requests/cancel", s.handleUserCancel)
			r.Post("/{id}/claim", s.handleUserClaim)
		})

		r.Route("/liquidations", func(r chi.Router) {
			r.Post("/users", s.handleLiquidateUser)
			r.Post("/lps", s.handleLiquidateLP)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/halt", s.handleHalt)
			r.Post("/resume", s.handleResume)
		})
	})

	return r
}

// instrument records per-route request counts and latency.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if s.metrics != nil {
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// === request/response plumbing ===

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.Warn().Err(err).Msg("response encode failed")
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := engine.KindOf(err)
	status := http.StatusBadRequest
	switch kind {
	case engine.KindState, engine.KindConflict:
		status = http.StatusConflict
	case engine.KindAuthorization:
		status = http.StatusForbidden
	case engine.KindSolvency:
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "malformed request body: " + err.Error(),
			Kind:  engine.KindValidation.String(),
		})
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "malformed id: " + err.Error(),
			Kind:  engine.KindValidation.String(),
		})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) applied(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// === queries ===

func (s *Server) handleCycleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleCycleRecord(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "malformed cycle index", Kind: engine.KindValidation.String(),
		})
		return
	}
	record, ok := s.engine.CycleRecordAt(index)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{
			Error: "cycle not completed", Kind: engine.KindValidation.String(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleLPStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	status, err := s.engine.LPStatusOf(id)
	if err != nil {
		if errors.Is(err, engine.ErrNotRegisteredLP) {
			s.writeJSON(w, http.StatusNotFound, errorResponse{
				Error: err.Error(), Kind: engine.KindAuthorization.String(),
			})
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	status, err := s.engine.UserStatusOf(id)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownPrincipal) {
			s.writeJSON(w, http.StatusNotFound, errorResponse{
				Error: err.Error(), Kind: engine.KindAuthorization.String(),
			})
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

// === cycle transitions ===

func (s *Server) handleOffchain(w http.ResponseWriter, r *http.Request) {
	s.applied(w, s.engine.InitiateOffchainRebalance())
}

func (s *Server) handleOnchain(w http.ResponseWriter, r *http.Request) {
	s.applied(w, s.engine.InitiateOnchainRebalance())
}

func (s *Server) handleStartNewCycle(w http.ResponseWriter, r *http.Request) {
	s.applied(w, s.engine.StartNewCycle())
}

func (s *Server) handleForceSettle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CallerID uuid.UUID `json:"caller_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.applied(w, s.engine.SettlePool(req.CallerID))
}

// === LP operations ===

func (s *Server) handleRegisterLP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID         uuid.UUID `json:"id"`
		Commitment int64     `json:"commitment"`
		Collateral int64     `json:"collateral"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if err := s.engine.RegisterLP(req.ID, req.Commitment, req.Collateral); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"id": req.ID})
}

func (s *Server) handleLPCollateral(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.applied(w, s.engine.DepositLPCollateral(id, req.Amount))
}

func (s *Server) handleLPRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Kind   string `json:"kind"`
		Amount int64  `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	var kind state.LPRequestKind
	switch req.Kind {
	case "add_liquidity":
		kind = state.LPRequestAddLiquidity
	case "reduce_liquidity":
		kind = state.LPRequestReduceLiquidity
	case "liquidate":
		kind = state.LPRequestLiquidate
	default:
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "unknown request kind " + req.Kind, Kind: engine.KindValidation.String(),
		})
		return
	}
	s.applied(w, s.engine.SubmitLPRequest(id, kind, req.Amount))
}

func (s *Server) handleLPCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.applied(w, s.engine.CancelLPRequest(id))
}

func (s *Server) handleLPClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.applied(w, s.engine.ClaimLPPayout(id))
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		ProposedPrice int64 `json:"proposed_price"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.applied(w, s.engine.RebalancePool(id, req.ProposedPrice))
}

// === user operations ===

func (s *Server) handleUserCollateral(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.applied(w, s.engine.DepositUserCollateral(id, req.Amount))
}

func (s *Server) handleUserCollateralWithdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.applied(w, s.engine.WithdrawUserCollateral(id, req.Amount))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount     int64 `json:"amount"`
		Collateral int64 `json:"collateral"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.applied(w, s.engine.SubmitDeposit(id, req.Amount, req.Collateral))
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.applied(w, s.engine.SubmitRedeem(id, req.Amount))
}

func (s *Server) handleUserCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.applied(w, s.engine.CancelUserRequest(id))
}

func (s *Server) handleUserClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.applied(w, s.engine.ClaimUserRequest(id))
}

// === liquidations ===

func (s *Server) handleLiquidateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LiquidatorID uuid.UUID `json:"liquidator_id"`
		TargetID     uuid.UUID `json:"target_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.applied(w, s.engine.LiquidateUser(req.LiquidatorID, req.TargetID))
}

func (s *Server) handleLiquidateLP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LiquidatorID uuid.UUID `json:"liquidator_id"`
		TargetID     uuid.UUID `json:"target_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.applied(w, s.engine.LiquidateLP(req.LiquidatorID, req.TargetID))
}

// === admin ===

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "operator halt"
	}
	s.applied(w, s.engine.EmergencyHalt(req.Reason))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.applied(w, s.engine.Resume())
}
