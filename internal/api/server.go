package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kestrel/internal/banking"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. With async set, transactions and loan
// applications are queued on the event bus instead of processed inline.
func NewServer(cfg domain.ServerConfig, svc *banking.Service, version string, async bool) *Server {
	handler := NewHandler(svc, version, async)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Scoring tables and stateless evaluation
		r.Get("/risk/fraud-rules", handler.ListFraudRules)
		r.Get("/risk/loan-factors", handler.ListLoanFactors)
		r.Post("/risk/fraud/evaluate", handler.EvaluateFraud)
		r.Post("/risk/loan/evaluate", handler.EvaluateLoan)

		r.Group(func(r chi.Router) {
			r.Use(UserMiddleware)

			r.Post("/accounts", handler.OpenAccount)
			r.Get("/accounts", handler.ListAccounts)
			r.Get("/accounts/{id}", handler.GetAccount)
			r.Get("/accounts/{id}/transactions", handler.ListTransactions)

			r.Post("/transactions", handler.CreateTransaction)
			r.Get("/transactions/{id}", handler.GetTransaction)
			r.Get("/transactions/{id}/risk", handler.GetTransactionRisk)

			r.Post("/loans/apply", handler.ApplyForLoan)
			r.Get("/loans", handler.ListLoans)
			r.Get("/loans/{id}", handler.GetLoan)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
