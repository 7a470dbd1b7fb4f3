package verify

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emixlab/emix/internal/discount"
	"github.com/emixlab/emix/internal/ixstore"
	"github.com/emixlab/emix/internal/scenbuild"
	"github.com/emixlab/emix/internal/solver"
)

// Check is one verifiable pricing property.
type Check struct {
	Name string
	Desc string
	Run  func(ctx context.Context, env Env) error
}

// Env supplies the store and solver the checks run against.
type Env struct {
	Platform *ixstore.Platform
	Solver   *solver.Solver
}

// Outcome is the result of one executed check.
type Outcome struct {
	Name    string
	Err     error
	Elapsed time.Duration
}

// Checks returns the full property suite in execution order.
func Checks() []Check {
	return []Check{
		{
			Name: "unconstrained-baseline",
			Desc: "without emission bounds the cheapest technology serves demand and no price is reported",
			Run:  checkUnconstrained,
		},
		{
			Name: "cumulative-price-growth",
			Desc: "a cumulative zero bound prices emissions at the abatement cost growing with the discount rate",
			Run:  checkCumulativeGrowth,
		},
		{
			Name: "per-period-price-flat",
			Desc: "independent per-period zero bounds price every period at the flat abatement cost",
			Run:  checkPerPeriodFlat,
		},
		{
			Name: "variable-period-lengths",
			Desc: "price growth follows actual year gaps when period lengths vary",
			Run:  checkVariableLengths,
		},
		{
			Name: "custom-year-category",
			Desc: "a bound over an arbitrary year subset prices exactly its member years",
			Run:  checkCustomCategory,
		},
		{
			Name: "price-tax-bound-duality",
			Desc: "prices from a bound, applied as taxes, reproduce emissions; those emissions, applied as bounds, reproduce the prices",
			Run:  checkDuality,
		},
	}
}

// RunAll executes every check and returns the per-check outcomes. It keeps
// going after a failure so one broken property does not mask the rest.
func RunAll(ctx context.Context, env Env) []Outcome {
	checks := Checks()
	out := make([]Outcome, 0, len(checks))
	for _, c := range checks {
		start := time.Now()
		err := c.Run(ctx, env)
		elapsed := time.Since(start)
		if err != nil {
			log.Error().Str("check", c.Name).Err(err).Dur("elapsed", elapsed).Msg("check failed")
		} else {
			log.Info().Str("check", c.Name).Dur("elapsed", elapsed).Msg("check passed")
		}
		out = append(out, Outcome{Name: c.Name, Err: err, Elapsed: elapsed})
	}
	return out
}

// expectedPrices is the analytic price series under a binding zero bound:
// the 1 USD/tCO2 abatement cost compounded from the first model year.
func expectedPrices(years []int, rate float64) []float64 {
	out := make([]float64, len(years))
	for i, y := range years {
		out[i] = math.Pow(1+rate, float64(y-years[0]))
	}
	return out
}

func solveScenario(ctx context.Context, env Env, name string, years []int, opts scenbuild.Options, attach func(*ixstore.Scenario) error) (*solver.Result, error) {
	scen, err := env.Platform.CreateScenario(ctx, "emission_pricing", name)
	if err != nil {
		return nil, err
	}
	if err := scenbuild.Setup(scen, years, opts); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if attach != nil {
		if err := attach(scen); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := scen.Commit(ctx, "property check scenario"); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	res, err := env.Solver.Solve(ctx, scen, solver.Options{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

func priceSeries(res *solver.Result) ([]float64, error) {
	t, err := res.Var("PRICE_EMISSION")
	if err != nil {
		return nil, err
	}
	return t.Lvls(), nil
}

// taxPriceSeries reads the equivalence-dual price table, which is reported
// for both bounded and taxed runs.
func taxPriceSeries(res *solver.Result) ([]float64, error) {
	t, err := res.Var("PRICE_EMISSION_NEW")
	if err != nil {
		return nil, err
	}
	return t.Lvls(), nil
}

func emissionSeries(res *solver.Result, years []int) ([]float64, error) {
	t, err := res.Var("EMISS", solver.Filter{"node": {scenbuild.World}})
	if err != nil {
		return nil, err
	}
	byYear, err := t.LvlByDim("year")
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(years))
	for i, y := range years {
		v, ok := byYear[strconv.Itoa(y)]
		if !ok {
			return nil, fmt.Errorf("no emission accounting for year %d", y)
		}
		out[i] = v
	}
	return out, nil
}

func checkUnconstrained(ctx context.Context, env Env) error {
	years := []int{2020, 2030}
	res, err := solveScenario(ctx, env, "baseline", years, scenbuild.Options{}, nil)
	if err != nil {
		return err
	}
	if !Close(res.Objective, 0, 0, DefaultATol) {
		return fmt.Errorf("free emissions should cost nothing, objective is %g", res.Objective)
	}
	prices, err := priceSeries(res)
	if err != nil {
		return err
	}
	if len(prices) != 0 {
		return fmt.Errorf("no bound was set, yet %d price rows were reported", len(prices))
	}
	emiss, err := emissionSeries(res, years)
	if err != nil {
		return err
	}
	// Unit demand met entirely by the emitting technology.
	return AllClose(emiss, []float64{1, 1}, DefaultRTol, DefaultATol)
}

func checkCumulativeGrowth(ctx context.Context, env Env) error {
	years := []int{2020, 2030, 2040}
	res, err := solveScenario(ctx, env, "cumulative_bound", years, scenbuild.Options{}, func(s *ixstore.Scenario) error {
		return scenbuild.AttachBound(s, "cumulative", years, 0, "tCO2")
	})
	if err != nil {
		return err
	}
	prices, err := priceSeries(res)
	if err != nil {
		return err
	}
	return AllClose(prices, expectedPrices(years, 0.05), DefaultRTol, DefaultATol)
}

func checkPerPeriodFlat(ctx context.Context, env Env) error {
	years := []int{2020, 2030, 2040}
	res, err := solveScenario(ctx, env, "per_period_bounds", years, scenbuild.Options{}, func(s *ixstore.Scenario) error {
		return scenbuild.AttachPerYearBounds(s, years, 0, "tCO2")
	})
	if err != nil {
		return err
	}
	prices, err := priceSeries(res)
	if err != nil {
		return err
	}
	// Each period is bounded on its own, so no inter-period trading and no
	// discount-driven growth: the price is the abatement cost everywhere.
	return AllClose(prices, []float64{1, 1, 1}, DefaultRTol, DefaultATol)
}

func checkVariableLengths(ctx context.Context, env Env) error {
	years := []int{2020, 2025, 2030, 2040}
	res, err := solveScenario(ctx, env, "variable_lengths", years, scenbuild.Options{}, func(s *ixstore.Scenario) error {
		return scenbuild.AttachBound(s, "cumulative", years, 0, "tCO2")
	})
	if err != nil {
		return err
	}
	prices, err := priceSeries(res)
	if err != nil {
		return err
	}

	// Unequal period lengths break the plain geometric law: the price is
	// the equivalence-row marginal deflated by the period discount factor.
	equiv, err := res.Equ("EMISSION_EQUIVALENCE", solver.Filter{"node": {scenbuild.World}})
	if err != nil {
		return err
	}
	mrgs := equiv.Mrgs()
	df, err := discount.DFPeriod(years, 0.05)
	if err != nil {
		return err
	}
	if len(mrgs) != len(years) {
		return fmt.Errorf("expected one equivalence row per year, got %d", len(mrgs))
	}
	want := make([]float64, len(years))
	for i := range years {
		want[i] = mrgs[i] / df[i]
	}
	if err := AllClose(prices, want, DefaultRTol, DefaultATol); err != nil {
		return err
	}

	// The equally spaced 2020/2025/2030 prefix still compounds at the rate.
	for i, gap := range []int{5, 10} {
		got := prices[i+1] / prices[0]
		if want := math.Pow(1.05, float64(gap)); !Close(got, want, DefaultRTol, DefaultATol) {
			return fmt.Errorf("price ratio %d/%d: got %.10g, want %.10g", years[i+1], years[0], got, want)
		}
	}
	return nil
}

func checkCustomCategory(ctx context.Context, env Env) error {
	years := []int{2020, 2030, 2040, 2050}
	members := []int{2030, 2040}
	res, err := solveScenario(ctx, env, "custom_category", years, scenbuild.Options{}, func(s *ixstore.Scenario) error {
		return scenbuild.AttachBound(s, "custom", members, 0, "tCO2")
	})
	if err != nil {
		return err
	}
	prices, err := res.Var("PRICE_EMISSION")
	if err != nil {
		return err
	}
	if prices.Len() != len(members) {
		return fmt.Errorf("bound covers %d years but %d price rows were reported", len(members), prices.Len())
	}
	byYear, err := prices.LvlByDim("year")
	if err != nil {
		return err
	}
	// Within the bounded window the price still grows with the discount
	// rate between its member years.
	got := byYear["2040"] / byYear["2030"]
	want := math.Pow(1.05, 10)
	if !Close(got, want, DefaultRTol, DefaultATol) {
		return fmt.Errorf("price ratio 2040/2030: got %.10g, want %.10g", got, want)
	}
	return nil
}

func checkDuality(ctx context.Context, env Env) error {
	years := []int{2020, 2025, 2030, 2040, 2050}
	graded := scenbuild.Options{Graded: true, NumTechs: scenbuild.DefaultNumTechs}
	for _, bound := range []float64{0.25, 0.5, 0.75} {
		tag := fmt.Sprintf("%g", bound)

		bounded, err := solveScenario(ctx, env, "duality_bound_"+tag, years, graded, func(s *ixstore.Scenario) error {
			return scenbuild.AttachBound(s, "cumulative", years, bound, "tCO2")
		})
		if err != nil {
			return err
		}
		prices, err := priceSeries(bounded)
		if err != nil {
			return err
		}
		if len(prices) != len(years) {
			return fmt.Errorf("bound %s: expected a price per year, got %d rows", tag, len(prices))
		}
		boundedEmiss, err := emissionSeries(bounded, years)
		if err != nil {
			return err
		}

		// The bound's per-period prices, applied as taxes, must steer the
		// system to the same emission path.
		taxed, err := solveScenario(ctx, env, "duality_tax_"+tag, years, graded, func(s *ixstore.Scenario) error {
			return scenbuild.AttachTaxes(s, years, prices, "USD/tCO2")
		})
		if err != nil {
			return err
		}
		taxedEmiss, err := emissionSeries(taxed, years)
		if err != nil {
			return err
		}
		// Quantities may wobble with the marginal technology; 5% relative
		// tolerance. Prices are duals of the same optimum and match tightly.
		if err := AllClose(taxedEmiss, boundedEmiss, 0.05, 1e-8); err != nil {
			return fmt.Errorf("bound %s: tax run diverged from bounded emissions: %w", tag, err)
		}
		boundedPricesNew, err := taxPriceSeries(bounded)
		if err != nil {
			return err
		}
		taxedPricesNew, err := taxPriceSeries(taxed)
		if err != nil {
			return err
		}
		if err := AllClose(taxedPricesNew, boundedPricesNew, DefaultRTol, 1e-6); err != nil {
			return fmt.Errorf("bound %s: tax run priced emissions away from the bounded duals: %w", tag, err)
		}

		// And the bounded emission path, applied as per-period bounds, must
		// bind at exactly those quantities and price each period back at the
		// original tax level.
		rebound, err := solveScenario(ctx, env, "duality_rebound_"+tag, years, graded, func(s *ixstore.Scenario) error {
			return scenbuild.AttachPerYearValues(s, years, boundedEmiss, "tCO2")
		})
		if err != nil {
			return err
		}
		reboundEmiss, err := emissionSeries(rebound, years)
		if err != nil {
			return err
		}
		if err := AllClose(reboundEmiss, boundedEmiss, DefaultRTol, 1e-6); err != nil {
			return fmt.Errorf("bound %s: per-period bounds did not bind at the bounded emissions: %w", tag, err)
		}
		reboundPrices, err := priceSeries(rebound)
		if err != nil {
			return err
		}
		if err := AllClose(reboundPrices, prices, DefaultRTol, 1e-6); err != nil {
			return fmt.Errorf("bound %s: per-period bounds did not reproduce prices: %w", tag, err)
		}
	}
	return nil
}
