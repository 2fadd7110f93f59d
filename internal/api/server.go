// Package api exposes the reconciliation engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lncr/reports-helpbot1/internal/logging"
	"github.com/lncr/reports-helpbot1/internal/service"
)

// Server is the HTTP front of the engine.
type Server struct {
	router   *mux.Router
	http     *http.Server
	handlers *handlers
}

// NewServer builds the router and handler set.
func NewServer(addr string, reports *service.ReportService, prices *service.PriceService, staking *service.StakingService) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: &handlers{reports: reports, prices: prices, staking: staking},
	}
	s.routes()
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
		// Report assembly fans out to many upstreams; allow slow responses
		// but bound them.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(metricsMiddleware)

	// Subrouters do not inherit the method-mismatch handler.
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router.MethodNotAllowedHandler = notAllowed

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.MethodNotAllowedHandler = notAllowed
	v1.HandleFunc("/reports", s.handlers.buildReport).Methods(http.MethodPost)
	v1.HandleFunc("/transfers", s.handlers.listTransfers).Methods(http.MethodPost)
	v1.HandleFunc("/balances", s.handlers.listBalances).Methods(http.MethodPost)
	v1.HandleFunc("/prices", s.handlers.getPrices).Methods(http.MethodGet)
	v1.HandleFunc("/tvl-apy", s.handlers.getTVLAPY).Methods(http.MethodGet)
	v1.HandleFunc("/tvl-forecast", s.handlers.getTVLForecast).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handlers.health).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler exposes the routed handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logging.L().WithField("addr", s.http.Addr).Info("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
