package scenbuild

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emixlab/emix/internal/ixstore"
)

func newScenario(t *testing.T) *ixstore.Scenario {
	t.Helper()
	p := ixstore.NewMemoryPlatform()
	t.Cleanup(func() { p.Close() })
	s, err := p.CreateScenario(context.Background(), "emission_pricing", t.Name())
	require.NoError(t, err)
	return s
}

func TestSetupTwoTechSkeleton(t *testing.T) {
	s := newScenario(t)
	years := []int{2020, 2030}
	require.NoError(t, Setup(s, years, Options{}))

	assert.ElementsMatch(t, []string{World, Node}, s.Set("node"))
	assert.Equal(t, [][]string{{World, Node}}, s.Tuples("map_spatial_hierarchy"))
	assert.Equal(t, []string{"2020", "2030"}, s.Set("year"))
	assert.Equal(t, []string{Emission}, s.Cat("emission", EmissCat))
	assert.ElementsMatch(t, []string{"dirty_tec", "clean_tec"}, s.Set("technology"))

	// One demand and one interest-rate row per year.
	assert.Len(t, s.Par("demand"), 2)
	assert.Len(t, s.Par("interestrate"), 2)
	for _, r := range s.Par("interestrate") {
		assert.Equal(t, 0.05, r.Value)
	}

	// The emitting technology is free, the clean one costs one unit, and
	// only the emitting one carries an emission factor.
	assert.Len(t, s.Par("output"), 4)
	require.Len(t, s.Par("var_cost"), 2)
	for _, r := range s.Par("var_cost") {
		assert.Equal(t, "clean_tec", r.Key[1])
		assert.Equal(t, 1.0, r.Value)
	}
	require.Len(t, s.Par("emission_factor"), 2)
	for _, r := range s.Par("emission_factor") {
		assert.Equal(t, "dirty_tec", r.Key[1])
		assert.Equal(t, 1.0, r.Value)
	}
}

func TestSetupHonoursInterestRateOverride(t *testing.T) {
	s := newScenario(t)
	require.NoError(t, Setup(s, []int{2020}, Options{InterestRate: 0.1}))
	rows := s.Par("interestrate")
	require.Len(t, rows, 1)
	assert.Equal(t, 0.1, rows[0].Value)
}

func TestGradedTechsFollowCostAndEmissionCurves(t *testing.T) {
	s := newScenario(t)
	years := []int{2020, 2030}
	n := 10
	require.NoError(t, Setup(s, years, Options{Graded: true, NumTechs: n}))

	assert.Len(t, s.Set("technology"), n)
	assert.Len(t, s.Par("output"), n*len(years))

	costs := make(map[string]float64)
	for _, r := range s.Par("var_cost") {
		costs[r.Key[1]+"@"+r.Key[3]] = r.Value
	}
	emissions := make(map[string]float64)
	for _, r := range s.Par("emission_factor") {
		emissions[r.Key[1]+"@"+r.Key[3]] = r.Value
	}

	// tec i costs (10*i/n)^2 growing at 4.5%/yr and emits 1-i/n.
	assert.InDelta(t, math.Pow(10*3.0/10, 2), costs["tec3@2020"], 1e-12)
	assert.InDelta(t, math.Pow(10*3.0/10, 2)*math.Pow(1.045, 10), costs["tec3@2030"], 1e-9)
	assert.InDelta(t, 0.7, emissions["tec3@2020"], 1e-12)
	assert.InDelta(t, 0.0, emissions["tec10@2020"], 1e-12)

	// The cheapest technology hosts the mitigation add-ons: every other
	// technology is an addon member with a unit conversion on the host.
	assert.Equal(t, [][]string{{"tec1", "mitigation"}}, s.Tuples("map_tec_addon"))
	assert.Len(t, s.Cat("addon", "mitigation"), n-1)
	assert.Len(t, s.Par("addon_conversion"), len(years))
}

func TestGradedTechsRejectNonPositiveCount(t *testing.T) {
	s := newScenario(t)
	err := Setup(s, []int{2020}, Options{Graded: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive technology count")
}

func TestAttachBoundDeclaresCategory(t *testing.T) {
	s := newScenario(t)
	years := []int{2020, 2030, 2040}
	require.NoError(t, Setup(s, years, Options{}))
	require.NoError(t, AttachBound(s, "cumulative", years, 0.5, "tCO2"))

	assert.Equal(t, []string{"2020", "2030", "2040"}, s.Cat("year", "cumulative"))
	rows := s.Par("bound_emission")
	require.Len(t, rows, 1)
	assert.Equal(t, ixstore.Key{World, EmissCat, TypeTec, "cumulative"}, rows[0].Key)
	assert.Equal(t, 0.5, rows[0].Value)
}

func TestAttachPerYearBounds(t *testing.T) {
	s := newScenario(t)
	years := []int{2020, 2030}
	require.NoError(t, Setup(s, years, Options{}))
	require.NoError(t, AttachPerYearBounds(s, years, 0, "tCO2"))

	assert.Equal(t, []string{"2020"}, s.Cat("year", "2020"))
	assert.Equal(t, []string{"2030"}, s.Cat("year", "2030"))
	assert.Len(t, s.Par("bound_emission"), 2)
}

func TestAttachPerYearValuesLengthMismatch(t *testing.T) {
	s := newScenario(t)
	require.NoError(t, Setup(s, []int{2020, 2030}, Options{}))
	assert.Error(t, AttachPerYearValues(s, []int{2020, 2030}, []float64{1}, "tCO2"))
}

func TestAttachTaxesReusesYearCategories(t *testing.T) {
	s := newScenario(t)
	years := []int{2020, 2030}
	require.NoError(t, Setup(s, years, Options{}))

	// Categories already declared by per-year bounds must not be redeclared.
	require.NoError(t, AttachPerYearBounds(s, years, 0, "tCO2"))
	require.NoError(t, AttachTaxes(s, years, []float64{1, 1.6289}, "USD/tCO2"))

	assert.Equal(t, []string{"2020"}, s.Cat("year", "2020"))
	assert.Len(t, s.Par("tax_emission"), 2)

	assert.Error(t, AttachTaxes(s, years, []float64{1}, "USD/tCO2"))
}
