// Package scenbuild assembles the parameterized toy energy systems used to
// probe emission-pricing behaviour: one demand node, one commodity, and a
// technology population spanning a cost/emission trade-off.
package scenbuild

import (
	"fmt"
	"math"
	"strconv"

	"github.com/emixlab/emix/internal/ixstore"
)

// Labels of the minimal model skeleton.
const (
	World     = "World"
	Node      = "country"
	Commodity = "comm"
	Level     = "level"
	Mode      = "mode"
	Emission  = "co2"
	EmissCat  = "ghg"
	TypeTec   = "all"
)

// DefaultNumTechs is the size of the graded technology spectrum.
const DefaultNumTechs = 50

// Options selects the technology population and economic parameters.
type Options struct {
	// Graded switches from the fixed dirty/clean pair to NumTechs
	// synthetically graded technologies.
	Graded bool
	// NumTechs is the size of the graded spectrum; required when Graded.
	NumTechs int
	// InterestRate defaults to 5% per year.
	InterestRate float64
	// CostGrowth is the annual growth of graded variable costs, default 1.045.
	CostGrowth float64
}

func (o Options) withDefaults() Options {
	if o.InterestRate == 0 {
		o.InterestRate = 0.05
	}
	if o.CostGrowth == 0 {
		o.CostGrowth = 1.045
	}
	return o
}

func yearLabel(y int) string { return strconv.Itoa(y) }

// Setup populates the minimal sets (spatial hierarchy, commodity, level,
// mode, co2 under the ghg category, years) and per-year economics (interest
// rate, unit demand), then adds technologies per the selected mode.
func Setup(scen *ixstore.Scenario, years []int, opts Options) error {
	opts = opts.withDefaults()

	if err := scen.AddSpatialSets(World, Node); err != nil {
		return fmt.Errorf("setup spatial sets: %w", err)
	}
	if err := scen.AddSet("commodity", Commodity); err != nil {
		return err
	}
	if err := scen.AddSet("level", Level); err != nil {
		return err
	}
	if err := scen.AddSet("mode", Mode); err != nil {
		return err
	}
	if err := scen.AddSet("emission", Emission); err != nil {
		return err
	}
	if err := scen.AddCat("emission", EmissCat, Emission); err != nil {
		return err
	}

	labels := make([]string, len(years))
	for i, y := range years {
		labels[i] = yearLabel(y)
	}
	if err := scen.AddSet("year", labels...); err != nil {
		return err
	}
	for _, y := range labels {
		if err := scen.AddPar("interestrate", ixstore.Key{y}, opts.InterestRate, "-"); err != nil {
			return fmt.Errorf("setup interest rate: %w", err)
		}
		if err := scen.AddPar("demand", ixstore.Key{Node, Commodity, Level, y, "year"}, 1, "GWa"); err != nil {
			return fmt.Errorf("setup demand: %w", err)
		}
	}

	if opts.Graded {
		return AddGradedTechs(scen, years, opts.NumTechs, opts.CostGrowth)
	}
	return AddTwoTechs(scen, years)
}

// AddTwoTechs populates the fixed technology pair: a free technology with
// unit emissions and a unit-cost technology with none. Their cost
// differential (1 USD per tCO2 avoided) is the marginal abatement cost the
// pricing tests expect.
func AddTwoTechs(scen *ixstore.Scenario, years []int) error {
	if err := scen.AddSet("technology", "dirty_tec", "clean_tec"); err != nil {
		return err
	}
	for _, yy := range years {
		y := yearLabel(yy)

		dirty := ixstore.Key{Node, "dirty_tec", y, y, Mode}
		if err := scen.AddPar("output", outputKey(dirty), 1, "GWa"); err != nil {
			return fmt.Errorf("dirty output: %w", err)
		}
		if err := scen.AddPar("emission_factor", append(dirty.Clone(), Emission), 1, "tCO2"); err != nil {
			return fmt.Errorf("dirty emission factor: %w", err)
		}

		clean := ixstore.Key{Node, "clean_tec", y, y, Mode}
		if err := scen.AddPar("output", outputKey(clean), 1, "GWa"); err != nil {
			return fmt.Errorf("clean output: %w", err)
		}
		if err := scen.AddPar("var_cost", append(clean.Clone(), "year"), 1, "USD/GWa"); err != nil {
			return fmt.Errorf("clean var cost: %w", err)
		}
	}
	return nil
}

// AddGradedTechs populates n technologies spanning a quadratic cost curve
// and a linearly declining emission intensity: tech i costs
// (10*i/n)^2 * growth^(y-y0) and emits 1-i/n per unit activity. Technology
// 1 is registered as the host of a "mitigation" add-on category covering
// every other technology.
func AddGradedTechs(scen *ixstore.Scenario, years []int, n int, growth float64) error {
	if n <= 0 {
		return fmt.Errorf("graded technologies: need a positive technology count, got %d", n)
	}
	if growth == 0 {
		growth = 1.045
	}

	if err := scen.AddSet("type_addon", "mitigation"); err != nil {
		return err
	}
	for i := 1; i <= n; i++ {
		tec := fmt.Sprintf("tec%d", i)
		if err := scen.AddSet("technology", tec); err != nil {
			return err
		}
		for _, yy := range years {
			y := yearLabel(yy)
			spec := ixstore.Key{Node, tec, y, y, Mode}

			// Costs grow quadratically over the spectrum so the optimum is
			// an interior mix rather than a single corner technology.
			c := math.Pow(10*float64(i)/float64(n), 2) * math.Pow(growth, float64(yy-years[0]))
			e := 1 - float64(i)/float64(n)

			if err := scen.AddPar("output", outputKey(spec), 1, "GWa"); err != nil {
				return fmt.Errorf("%s output: %w", tec, err)
			}
			if err := scen.AddPar("var_cost", append(spec.Clone(), "year"), c, "USD/GWa"); err != nil {
				return fmt.Errorf("%s var cost: %w", tec, err)
			}
			if err := scen.AddPar("emission_factor", append(spec.Clone(), Emission), e, "tCO2"); err != nil {
				return fmt.Errorf("%s emission factor: %w", tec, err)
			}
		}
	}

	if err := scen.AddTuple("map_tec_addon", "tec1", "mitigation"); err != nil {
		return err
	}
	for i := 2; i <= n; i++ {
		tec := fmt.Sprintf("tec%d", i)
		if err := scen.AddSet("addon", tec); err != nil {
			return err
		}
		if err := scen.AddCat("addon", "mitigation", tec); err != nil {
			return err
		}
	}
	for _, yy := range years {
		y := yearLabel(yy)
		key := ixstore.Key{Node, "tec1", y, y, Mode, "year", "mitigation"}
		if err := scen.AddPar("addon_conversion", key, 1, "-"); err != nil {
			return fmt.Errorf("addon conversion: %w", err)
		}
	}
	return nil
}

// AttachBound declares a year category and bounds the average annual
// emissions over its periods. The category shape — single year, cumulative
// over all years, or an arbitrary custom subset — sets the temporal scope
// of the resulting constraint.
func AttachBound(scen *ixstore.Scenario, category string, years []int, value float64, unit string) error {
	labels := make([]string, len(years))
	for i, y := range years {
		labels[i] = yearLabel(y)
	}
	if err := scen.AddCat("year", category, labels...); err != nil {
		return fmt.Errorf("bound category %s: %w", category, err)
	}
	key := ixstore.Key{World, EmissCat, TypeTec, category}
	if err := scen.AddPar("bound_emission", key, value, unit); err != nil {
		return fmt.Errorf("bound %s: %w", category, err)
	}
	return nil
}

// AttachPerYearBounds bounds each year independently through single-year
// categories named after the year.
func AttachPerYearBounds(scen *ixstore.Scenario, years []int, value float64, unit string) error {
	for _, y := range years {
		if err := AttachBound(scen, yearLabel(y), []int{y}, value, unit); err != nil {
			return err
		}
	}
	return nil
}

// AttachPerYearValues bounds each year independently at its own value.
func AttachPerYearValues(scen *ixstore.Scenario, years []int, values []float64, unit string) error {
	if len(values) != len(years) {
		return fmt.Errorf("per-year bounds: %d values for %d years", len(values), len(years))
	}
	for i, y := range years {
		if err := AttachBound(scen, yearLabel(y), []int{y}, values[i], unit); err != nil {
			return err
		}
	}
	return nil
}

// AttachTaxes prices each year's emissions through single-year categories,
// in scenario order of the supplied years.
func AttachTaxes(scen *ixstore.Scenario, years []int, taxes []float64, unit string) error {
	if len(taxes) != len(years) {
		return fmt.Errorf("taxes: %d values for %d years", len(taxes), len(years))
	}
	for i, y := range years {
		label := yearLabel(y)
		if !scen.HasCat("year", label) {
			if err := scen.AddCat("year", label, label); err != nil {
				return fmt.Errorf("tax category %s: %w", label, err)
			}
		}
		key := ixstore.Key{World, EmissCat, TypeTec, label}
		if err := scen.AddPar("tax_emission", key, taxes[i], unit); err != nil {
			return fmt.Errorf("tax %s: %w", label, err)
		}
	}
	return nil
}

// outputKey expands a (node, tec, vintage, activity, mode) prefix with the
// destination half of the output schema: same node, single commodity and
// level, annual time slices.
func outputKey(spec ixstore.Key) ixstore.Key {
	return append(spec.Clone(), Node, Commodity, Level, "year", "year")
}
