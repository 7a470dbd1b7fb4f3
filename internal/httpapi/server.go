// Package httpapi serves the scenario catalog and published solve results
// over a small read-only JSON API.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/emixlab/emix/internal/ixstore"
	"github.com/emixlab/emix/internal/metrics"
	"github.com/emixlab/emix/internal/solver"
)

// Server exposes the catalog and an in-process index of published results.
type Server struct {
	platform *ixstore.Platform
	limiter  *rate.Limiter
	router   *mux.Router

	mu      sync.RWMutex
	results map[string]*solver.Result
}

// NewServer wires routes and rate limiting. A rate limit of 0 disables
// throttling.
func NewServer(platform *ixstore.Platform, rateLimit float64, burst int) *Server {
	s := &Server{
		platform: platform,
		results:  make(map[string]*solver.Result),
	}
	if rateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rateLimit), burst)
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.throttle)
	api.HandleFunc("/scenarios", s.handleListScenarios).Methods(http.MethodGet)
	api.HandleFunc("/scenarios/{model}/{scenario}/{version:[0-9]+}/result", s.handleResult).Methods(http.MethodGet)
	api.HandleFunc("/scenarios/{model}/{scenario}/{version:[0-9]+}/var/{name}", s.handleVar).Methods(http.MethodGet)
	api.HandleFunc("/scenarios/{model}/{scenario}/{version:[0-9]+}/equ/{name}", s.handleEqu).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

// Publish indexes a solve result under its scenario coordinates so the API
// can serve it.
func (s *Server) Publish(scen *ixstore.Scenario, res *solver.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[resultKey(scen.Model, scen.Name, scen.Version)] = res
	log.Info().Str("model", scen.Model).Str("scenario", scen.Name).Int("version", scen.Version).
		Str("run_id", res.RunID).Msg("result published")
}

func resultKey(model, name string, version int) string {
	return fmt.Sprintf("%s/%s/%d", model, name, version)
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			metrics.HTTPRequests.WithLabelValues(r.URL.Path, "429").Inc()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	infos, err := s.platform.List(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	metrics.HTTPRequests.WithLabelValues("/v1/scenarios", "200").Inc()
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookupResult(r)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("no published result"))
		return
	}
	metrics.HTTPRequests.WithLabelValues("/v1/result", "200").Inc()
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVar(w http.ResponseWriter, r *http.Request) {
	s.handleTable(w, r, func(res *solver.Result, name string) (*solver.Table, error) {
		return res.Var(name)
	})
}

func (s *Server) handleEqu(w http.ResponseWriter, r *http.Request) {
	s.handleTable(w, r, func(res *solver.Result, name string) (*solver.Table, error) {
		return res.Equ(name)
	})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request, get func(*solver.Result, string) (*solver.Table, error)) {
	res, ok := s.lookupResult(r)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("no published result"))
		return
	}
	name := mux.Vars(r)["name"]
	table, err := get(res, name)
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, err)
		return
	}
	// Query parameters filter dimensions: ?node=World&year=2030.
	filter := solver.Filter{}
	for dim, vals := range r.URL.Query() {
		filter[dim] = vals
	}
	if len(filter) > 0 {
		table = table.Filter(filter)
	}
	metrics.HTTPRequests.WithLabelValues("/v1/table", "200").Inc()
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) lookupResult(r *http.Request) (*solver.Result, bool) {
	vars := mux.Vars(r)
	version, err := strconv.Atoi(vars["version"])
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[resultKey(vars["model"], vars["scenario"], version)]
	return res, ok
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	metrics.HTTPRequests.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
	log.Warn().Str("path", r.URL.Path).Int("status", status).Err(err).Msg("request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// ListenAndServe runs the server until the listener fails.
func (s *Server) ListenAndServe(addr string, timeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	log.Info().Str("addr", addr).Msg("http api listening")
	return srv.ListenAndServe()
}
