package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emixlab/emix/internal/ixstore"
	"github.com/emixlab/emix/internal/scenbuild"
)

func buildScenario(t *testing.T, years []int, opts scenbuild.Options, attach func(*ixstore.Scenario) error) *ixstore.Scenario {
	t.Helper()
	platform := ixstore.NewMemoryPlatform()
	t.Cleanup(func() { platform.Close() })

	scen, err := platform.CreateScenario(context.Background(), "emission_pricing", t.Name())
	require.NoError(t, err)
	require.NoError(t, scenbuild.Setup(scen, years, opts))
	if attach != nil {
		require.NoError(t, attach(scen))
	}
	require.NoError(t, scen.Commit(context.Background(), "test scenario"))
	return scen
}

func TestFormulateRequiresCommit(t *testing.T) {
	platform := ixstore.NewMemoryPlatform()
	defer platform.Close()
	scen, err := platform.CreateScenario(context.Background(), "emission_pricing", "uncommitted")
	require.NoError(t, err)

	_, err = Formulate(scen)
	assert.ErrorIs(t, err, ixstore.ErrNotCommitted)
}

func TestFormulateTwoTechShape(t *testing.T) {
	years := []int{2020, 2030}
	scen := buildScenario(t, years, scenbuild.Options{}, nil)

	f, err := Formulate(scen)
	require.NoError(t, err)

	// 2 technologies x 2 years activity, plus emission accounting for both
	// nodes of the spatial hierarchy.
	assert.Len(t, f.actCols, 4)
	assert.Len(t, f.emissOrder, 4)
	assert.Len(t, f.Model.ColCosts, 8)

	// One demand row per year, one equivalence row per (node, emission, year).
	assert.Len(t, f.demandRows, 2)
	assert.Len(t, f.equivRows, 4)
	assert.Empty(t, f.boundRows)
	assert.False(t, f.taxed)
	assert.Equal(t, 6, f.nRows)

	assert.Equal(t, []int{10, 10}, f.Durations)
	assert.InDelta(t, 0.05, f.Rate, 1e-12)
}

func TestFormulateCostsAreDiscounted(t *testing.T) {
	years := []int{2020, 2030}
	scen := buildScenario(t, years, scenbuild.Options{}, nil)

	f, err := Formulate(scen)
	require.NoError(t, err)

	for _, a := range f.actCols {
		cost := f.Model.ColCosts[a.col]
		switch a.key.tec {
		case "dirty_tec":
			assert.Zero(t, cost, "the emitting technology is free")
		case "clean_tec":
			yi := f.yearIdx[a.key.yact]
			assert.InDelta(t, f.DFPeriod[yi], cost, 1e-12, "clean cost is df_period * unit var_cost")
		}
	}
	for _, k := range f.emissOrder {
		col := f.emissIdx[k]
		assert.Zero(t, f.Model.ColCosts[col], "untaxed accounting variables carry no cost")
		assert.Equal(t, -inf, f.Model.ColLower[col], "accounting variables are free")
	}
}

func TestFormulateDemandRows(t *testing.T) {
	scen := buildScenario(t, []int{2020, 2030}, scenbuild.Options{}, nil)
	f, err := Formulate(scen)
	require.NoError(t, err)

	for _, d := range f.demandRows {
		assert.Equal(t, 1.0, f.Model.RowLower[d.row])
		assert.Equal(t, inf, f.Model.RowUpper[d.row])
	}
}

func TestFormulateWorldAggregatesCountryEmissions(t *testing.T) {
	scen := buildScenario(t, []int{2020}, scenbuild.Options{}, nil)
	f, err := Formulate(scen)
	require.NoError(t, err)

	var worldRow, countryRow int
	for _, e := range f.equivRows {
		switch e.key.node {
		case scenbuild.World:
			worldRow = e.row
		case scenbuild.Node:
			countryRow = e.row
		}
	}

	coefs := func(row int) map[int]float64 {
		out := make(map[int]float64)
		for _, nz := range f.Model.ConstMatrix {
			if nz.Row == row {
				out[nz.Col] = nz.Val
			}
		}
		return out
	}

	// Activity sits on the country node; the World equivalence row still
	// charges it through the spatial hierarchy.
	world, country := coefs(worldRow), coefs(countryRow)
	var dirtyCol int
	for _, a := range f.actCols {
		if a.key.tec == "dirty_tec" {
			dirtyCol = a.col
		}
	}
	assert.Equal(t, -1.0, world[dirtyCol])
	assert.Equal(t, -1.0, country[dirtyCol])
}

func TestFormulateCumulativeBoundWeights(t *testing.T) {
	years := []int{2020, 2025, 2030, 2040}
	scen := buildScenario(t, years, scenbuild.Options{}, func(s *ixstore.Scenario) error {
		return scenbuild.AttachBound(s, "cumulative", years, 2.5, "tCO2")
	})
	f, err := Formulate(scen)
	require.NoError(t, err)

	require.Len(t, f.boundRows, 1)
	b := f.boundRows[0]
	assert.Equal(t, scenbuild.World, b.node)
	assert.Equal(t, years, b.years)
	assert.Equal(t, 2.5, f.Model.RowUpper[b.row])
	assert.Equal(t, -inf, f.Model.RowLower[b.row])

	// Durations 5,5,5,10 sum to 25; bound coefficients are dur/sum.
	want := map[string]float64{"2020": 0.2, "2025": 0.2, "2030": 0.2, "2040": 0.4}
	for _, nz := range f.Model.ConstMatrix {
		if nz.Row != b.row {
			continue
		}
		for k, col := range f.emissIdx {
			if col == nz.Col {
				assert.InDelta(t, want[k.year], nz.Val, 1e-12, "weight for %s", k.year)
			}
		}
	}
}

func TestFormulateTaxPricesAccountingColumns(t *testing.T) {
	years := []int{2020, 2030}
	taxes := []float64{1, 2}
	scen := buildScenario(t, years, scenbuild.Options{}, func(s *ixstore.Scenario) error {
		return scenbuild.AttachTaxes(s, years, taxes, "USD/tCO2")
	})
	f, err := Formulate(scen)
	require.NoError(t, err)

	assert.True(t, f.taxed)
	assert.Empty(t, f.boundRows)
	for i, y := range []string{"2020", "2030"} {
		col := f.emissIdx[emissKey{node: scenbuild.World, emission: scenbuild.Emission, year: y}]
		assert.InDelta(t, f.DFPeriod[i]*taxes[i], f.Model.ColCosts[col], 1e-12)
	}
}

func TestFormulateRejectsNonUniformInterestRate(t *testing.T) {
	platform := ixstore.NewMemoryPlatform()
	defer platform.Close()
	scen, err := platform.CreateScenario(context.Background(), "emission_pricing", "bad_rate")
	require.NoError(t, err)
	require.NoError(t, scenbuild.Setup(scen, []int{2020, 2030}, scenbuild.Options{}))

	// Overwrite is not allowed, so vary the rate through a third year.
	require.NoError(t, scen.AddSet("year", "2040"))
	require.NoError(t, scen.AddPar("interestrate", ixstore.Key{"2040"}, 0.1, "-"))
	require.NoError(t, scen.Commit(context.Background(), "non-uniform rate"))

	_, err = Formulate(scen)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uniform rate")
}

func TestFormulateCustomCategoryBoundsOnlyItsMembers(t *testing.T) {
	years := []int{2020, 2030, 2040, 2050}
	scen := buildScenario(t, years, scenbuild.Options{}, func(s *ixstore.Scenario) error {
		return scenbuild.AttachBound(s, "custom", []int{2030, 2040}, 1, "tCO2")
	})
	f, err := Formulate(scen)
	require.NoError(t, err)

	require.Len(t, f.boundRows, 1)
	b := f.boundRows[0]
	assert.Equal(t, "custom", b.typeYear)
	assert.Equal(t, []int{2030, 2040}, b.years)

	// Only member-year accounting variables appear in the bound row.
	for _, nz := range f.Model.ConstMatrix {
		if nz.Row != b.row {
			continue
		}
		for k, col := range f.emissIdx {
			if col == nz.Col {
				assert.Contains(t, []string{"2030", "2040"}, k.year)
			}
		}
	}
}

func TestGradedFormulationRegistersAddonsInertly(t *testing.T) {
	years := []int{2020, 2030}
	scen := buildScenario(t, years, scenbuild.Options{Graded: true, NumTechs: 10}, nil)
	f, err := Formulate(scen)
	require.NoError(t, err)

	// 10 technologies x 2 years; add-on registration without addon_up adds
	// no rows.
	assert.Len(t, f.actCols, 20)
	assert.Equal(t, len(f.demandRows)+len(f.equivRows), f.nRows)
}
