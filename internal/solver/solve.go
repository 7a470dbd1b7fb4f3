package solver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	highs "github.com/bartolsthoorn/gohighs/highs"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/emixlab/emix/internal/cache"
	"github.com/emixlab/emix/internal/ixstore"
	"github.com/emixlab/emix/internal/metrics"
)

// Options selects additional tables to retain with the solution. Output
// variables and equations are always retained; ParList requests derived
// parameters (df_year, df_period, levelized_cost) on top.
type Options struct {
	EquList []string
	ParList []string
	VarList []string
}

// Solver runs committed scenarios through HiGHS. The zero value is usable;
// WithCache adds a result cache keyed by scenario content.
type Solver struct {
	cache cache.Cache
	ttl   time.Duration
}

// Option configures a Solver.
type Option func(*Solver)

// WithCache caches serialized results under the scenario content hash.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Solver) {
		s.cache = c
		s.ttl = ttl
	}
}

// New returns a Solver.
func New(opts ...Option) *Solver {
	s := &Solver{}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Solve formulates and solves the scenario, failing on any HiGHS status
// other than optimal, and marks the scenario solved under a fresh run ID.
// A cache hit replays the stored result without touching the LP solver.
func (s *Solver) Solve(ctx context.Context, scen *ixstore.Scenario, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("solve %s/%s: %w", scen.Model, scen.Name, err)
	}

	key := resultKey(scen, opts)
	if s.cache != nil {
		if b, ok := s.cache.Get(key); ok {
			var res Result
			if err := json.Unmarshal(b, &res); err == nil {
				if err := scen.MarkSolved(res.RunID); err != nil {
					return nil, fmt.Errorf("solve %s/%s: %w", scen.Model, scen.Name, err)
				}
				metrics.SolvesTotal.WithLabelValues("cached").Inc()
				log.Debug().Str("model", scen.Model).Str("scenario", scen.Name).
					Str("run_id", res.RunID).Msg("solve served from cache")
				return &res, nil
			}
			log.Warn().Str("key", key).Msg("discarding undecodable cached result")
		}
	}

	f, err := Formulate(scen)
	if err != nil {
		metrics.SolvesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	start := time.Now()
	sol, err := f.Model.Solve(highs.WithOutput(false))
	elapsed := time.Since(start)
	if err != nil {
		metrics.SolvesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("solve %s/%s: %w", scen.Model, scen.Name, err)
	}
	if sol.IsInfeasible() {
		metrics.SolvesTotal.WithLabelValues("infeasible").Inc()
		return nil, fmt.Errorf("solve %s/%s: model is infeasible", scen.Model, scen.Name)
	}
	if !sol.IsOptimal() {
		metrics.SolvesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("solve %s/%s: solver finished with status %v", scen.Model, scen.Name, sol.Status)
	}
	metrics.SolvesTotal.WithLabelValues("optimal").Inc()
	metrics.SolveDuration.Observe(elapsed.Seconds())

	runID := uuid.NewString()
	res := f.extract(sol, scen, runID, opts)
	if err := scen.MarkSolved(runID); err != nil {
		return nil, fmt.Errorf("solve %s/%s: %w", scen.Model, scen.Name, err)
	}

	log.Info().Str("model", scen.Model).Str("scenario", scen.Name).
		Str("run_id", runID).
		Int("cols", len(f.Model.ColCosts)).Int("rows", f.nRows).
		Float64("objective", res.Objective).
		Dur("elapsed", elapsed).Msg("solve complete")

	if s.cache != nil {
		if b, err := json.Marshal(res); err == nil {
			s.cache.Set(key, b, s.ttl)
		}
	}
	return res, nil
}

// resultKey derives the cache key from the scenario content hash plus the
// retention options, so different ParList requests do not collide.
func resultKey(scen *ixstore.Scenario, opts Options) string {
	h := sha256.New()
	fmt.Fprintln(h, scen.ContentHash())
	for _, list := range [][]string{opts.EquList, opts.ParList, opts.VarList} {
		sorted := append([]string(nil), list...)
		sort.Strings(sorted)
		fmt.Fprintln(h, strings.Join(sorted, ","))
	}
	return "emix:result:" + hex.EncodeToString(h.Sum(nil))
}
