// Package rpc exposes the ledger operations over HTTP. Every state-changing
// request names its caller explicitly; the engines enforce the role checks.
package rpc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"meritlend/audit"
	"meritlend/native/credit"
	"meritlend/native/escrow"
	"meritlend/native/lending"
	"meritlend/observability"
	"meritlend/state"
)

// Server bundles the wired engines behind the HTTP surface.
type Server struct {
	credit *credit.Engine
	escrow *escrow.Engine
	pool   *lending.Engine
	state  *state.Manager
	audit  *audit.Recorder
	logger *slog.Logger
}

// NewServer constructs the HTTP surface over fully wired engines. The audit
// recorder may be nil, which disables the event query endpoints.
func NewServer(creditEngine *credit.Engine, escrowEngine *escrow.Engine, poolEngine *lending.Engine, manager *state.Manager, recorder *audit.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		credit: creditEngine,
		escrow: escrowEngine,
		pool:   poolEngine,
		state:  manager,
		audit:  recorder,
		logger: logger,
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/credit", func(cr chi.Router) {
		cr.Post("/identity/bind", s.instrument("credit", "identity_bind", s.handleBindIdentity))
		cr.Post("/score/set", s.instrument("credit", "score_set", s.handleSetVerifiedScore))
		cr.Post("/score/decay", s.instrument("credit", "score_decay", s.handleApplyDecay))
		cr.Post("/profile/get", s.instrument("credit", "profile_get", s.handleGetProfile))
		cr.Post("/collateral/required", s.instrument("credit", "collateral_required", s.handleRequiredCollateral))
	})

	r.Route("/lending", func(lr chi.Router) {
		lr.Post("/deposit", s.instrument("lending", "deposit", s.handleDeposit))
		lr.Post("/withdraw", s.instrument("lending", "withdraw", s.handleWithdraw))
		lr.Post("/borrow", s.instrument("lending", "borrow", s.handleBorrow))
		lr.Post("/repay", s.instrument("lending", "repay", s.handleRepay))
		lr.Post("/liquidate", s.instrument("lending", "liquidate", s.handleLiquidate))
		lr.Post("/anomaly/flag", s.instrument("lending", "anomaly_flag", s.handleFlagAnomaly))
		lr.Post("/anomaly/clear", s.instrument("lending", "anomaly_clear", s.handleClearAnomaly))
		lr.Post("/loans/get", s.instrument("lending", "loans_get", s.handleGetLoan))
		lr.Post("/rates/get", s.instrument("lending", "rates_get", s.handleGetInterestRate))
		lr.Get("/pool", s.instrument("lending", "pool_get", s.handleGetPoolSnapshot))
	})

	if s.audit != nil {
		r.Get("/events", s.instrument("audit", "events_recent", s.handleRecentEvents))
	}

	return r
}

// instrument wraps a handler with request metrics. Handlers return the HTTP
// status they wrote.
func (s *Server) instrument(module, method string, handler func(http.ResponseWriter, *http.Request) int) http.HandlerFunc {
	metrics := observability.ModuleMetrics()
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := handler(w, r)
		metrics.Observe(module, method, status, time.Since(start))
		if status >= 500 {
			s.logger.Error("request failed", "module", module, "method", method, "status", status)
		}
	}
}

// withLedgerLock serializes a state-changing operation against every other
// operation, keeping the snapshot journal coherent across engines.
func (s *Server) withLedgerLock(fn func() error) error {
	if s.state == nil {
		return fn()
	}
	return s.state.WithLock(fn)
}
