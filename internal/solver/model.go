// Package solver formulates a committed scenario as a linear program,
// solves it through HiGHS, and derives the emission-price tables from the
// constraint duals.
package solver

import (
	"fmt"
	"sort"
	"strconv"

	highs "github.com/bartolsthoorn/gohighs/highs"

	"github.com/emixlab/emix/internal/discount"
	"github.com/emixlab/emix/internal/ixstore"
)

// inf mirrors the HiGHS infinity convention for unbounded rows/columns.
const inf = 1e30

type actKey struct {
	node string
	tec  string
	yvtg string
	yact string
	mode string
}

type emissKey struct {
	node     string
	emission string
	year     string
}

type actEntry struct {
	key actKey
	col int
}

type demandEntry struct {
	node, commodity, level, year, time string
	value                              float64
	row                                int
}

type equivEntry struct {
	key emissKey
	row int
}

type boundEntry struct {
	node         string
	typeEmission string
	typeTec      string
	typeYear     string
	years        []int
	value        float64
	row          int
}

// Formulation is the LP image of a scenario plus the bookkeeping needed to
// map solution values and row duals back onto named output tables.
type Formulation struct {
	Model     highs.Model
	Years     []int
	Durations []int
	DFYear    []float64
	DFPeriod  []float64
	Rate      float64

	yearIdx    map[string]int
	actCols    []actEntry
	emissIdx   map[emissKey]int
	emissOrder []emissKey
	demandRows []demandEntry
	equivRows  []equivEntry
	boundRows  []boundEntry
	taxed      bool
	varCost    map[actKey]float64
	nRows      int
}

func (f *Formulation) addCol(cost, lower, upper float64) int {
	f.Model.ColCosts = append(f.Model.ColCosts, cost)
	f.Model.ColLower = append(f.Model.ColLower, lower)
	f.Model.ColUpper = append(f.Model.ColUpper, upper)
	return len(f.Model.ColCosts) - 1
}

func (f *Formulation) addRow(lower float64, coefs map[int]float64, upper float64) int {
	row := f.nRows
	f.nRows++
	cols := make([]int, 0, len(coefs))
	for c := range coefs {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	for _, c := range cols {
		f.Model.ConstMatrix = append(f.Model.ConstMatrix, highs.Nonzero{Row: row, Col: c, Val: coefs[c]})
	}
	f.Model.RowLower = append(f.Model.RowLower, lower)
	f.Model.RowUpper = append(f.Model.RowUpper, upper)
	return row
}

func yearLabel(y int) string { return strconv.Itoa(y) }

// Formulate translates a committed scenario into an LP:
//
//	min  sum_y df_period(y) * [ sum var_cost*ACT + sum tax*EMISS ]
//	s.t. sum output*ACT               >= demand          (per demand row)
//	     EMISS - sum ef*ACT            = 0               (per node, emission, year)
//	     sum_{y in cat} w(y)*EMISS(y) <= bound           (per bound_emission row)
//
// where w(y) = duration(y) / sum of durations over the bounded category, so
// a bound value is an average annual emission over the category's span.
func Formulate(scen *ixstore.Scenario) (*Formulation, error) {
	if !scen.Committed() {
		return nil, fmt.Errorf("formulate: %w", ixstore.ErrNotCommitted)
	}

	years, err := scen.Years()
	if err != nil {
		return nil, fmt.Errorf("formulate: %w", err)
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("formulate: scenario has no years")
	}

	rate, err := interestRate(scen, years)
	if err != nil {
		return nil, fmt.Errorf("formulate: %w", err)
	}
	durations, err := discount.Durations(years)
	if err != nil {
		return nil, fmt.Errorf("formulate: %w", err)
	}
	dfYear, err := discount.DFYear(years, rate)
	if err != nil {
		return nil, fmt.Errorf("formulate: %w", err)
	}
	dfPeriod, err := discount.DFPeriod(years, rate)
	if err != nil {
		return nil, fmt.Errorf("formulate: %w", err)
	}

	f := &Formulation{
		Years:     years,
		Durations: durations,
		DFYear:    dfYear,
		DFPeriod:  dfPeriod,
		Rate:      rate,
		yearIdx:   make(map[string]int, len(years)),
		emissIdx:  make(map[emissKey]int),
		varCost:   make(map[actKey]float64),
	}
	for i, y := range years {
		f.yearIdx[yearLabel(y)] = i
	}

	// Parameter lookups.
	for _, r := range scen.Par("var_cost") {
		f.varCost[actKey{r.Key[0], r.Key[1], r.Key[2], r.Key[3], r.Key[4]}] = r.Value
	}
	ef := make(map[string]float64)
	for _, r := range scen.Par("emission_factor") {
		ef[r.Key.Join()] = r.Value
	}
	actUp := make(map[string]float64)
	for _, r := range scen.Par("bound_activity_up") {
		actUp[r.Key.Join()] = r.Value
	}
	conv := make(map[string]float64)
	for _, r := range scen.Par("addon_conversion") {
		conv[r.Key.Join()] = r.Value
	}

	// Activity columns, one per distinct (node, tec, vintage, activity,
	// mode) seen in the output table, costed at df_period * var_cost.
	outCoef := make(map[actKey][]ixstore.ParRow)
	for _, r := range scen.Par("output") {
		k := actKey{r.Key[0], r.Key[1], r.Key[2], r.Key[3], r.Key[4]}
		outCoef[k] = append(outCoef[k], r)
	}
	actIdx := make(map[actKey]int)
	for _, r := range scen.Par("output") {
		k := actKey{r.Key[0], r.Key[1], r.Key[2], r.Key[3], r.Key[4]}
		if _, seen := actIdx[k]; seen {
			continue
		}
		yi, ok := f.yearIdx[k.yact]
		if !ok {
			return nil, fmt.Errorf("formulate: output references activity year %q outside the year set", k.yact)
		}
		upper := inf
		if v, ok := actUp[ixstore.Key{k.node, k.tec, k.yact, k.mode, "year"}.Join()]; ok {
			upper = v
		}
		col := f.addCol(dfPeriod[yi]*f.varCost[k], 0, upper)
		actIdx[k] = col
		f.actCols = append(f.actCols, actEntry{key: k, col: col})
	}

	// Free emission-accounting columns per (node, emission, year),
	// including aggregate nodes of the spatial hierarchy.
	nodes := scen.Set("node")
	emissions := scen.Set("emission")
	subtree := spatialSubtrees(nodes, scen.Tuples("map_spatial_hierarchy"))
	for _, n := range nodes {
		for _, e := range emissions {
			for _, y := range years {
				k := emissKey{node: n, emission: e, year: yearLabel(y)}
				col := f.addCol(0, -inf, inf)
				f.emissIdx[k] = col
				f.emissOrder = append(f.emissOrder, k)
			}
		}
	}

	// Commodity balance rows.
	for _, r := range scen.Par("demand") {
		d := demandEntry{node: r.Key[0], commodity: r.Key[1], level: r.Key[2], year: r.Key[3], time: r.Key[4], value: r.Value}
		coefs := make(map[int]float64)
		for k, outs := range outCoef {
			if k.yact != d.year {
				continue
			}
			for _, o := range outs {
				// output key: node_loc tec yv ya mode node_dest commodity level time time_dest
				if o.Key[5] == d.node && o.Key[6] == d.commodity && o.Key[7] == d.level && o.Key[9] == d.time {
					coefs[actIdx[k]] += o.Value
				}
			}
		}
		d.row = f.addRow(d.value, coefs, inf)
		f.demandRows = append(f.demandRows, d)
	}

	// Emission equivalence rows: EMISS(n,e,y) - sum ef*ACT = 0, where the
	// sum runs over activity located anywhere in n's spatial subtree.
	for _, n := range nodes {
		for _, e := range emissions {
			for _, y := range years {
				yl := yearLabel(y)
				k := emissKey{node: n, emission: e, year: yl}
				coefs := map[int]float64{f.emissIdx[k]: 1}
				for _, a := range f.actCols {
					if a.key.yact != yl || !subtree[n][a.key.node] {
						continue
					}
					efKey := ixstore.Key{a.key.node, a.key.tec, a.key.yvtg, a.key.yact, a.key.mode, e}.Join()
					if v, ok := ef[efKey]; ok && v != 0 {
						coefs[a.col] -= v
					}
				}
				row := f.addRow(0, coefs, 0)
				f.equivRows = append(f.equivRows, equivEntry{key: k, row: row})
			}
		}
	}

	// Emission bound rows over declared year categories.
	for _, r := range scen.Par("bound_emission") {
		b := boundEntry{node: r.Key[0], typeEmission: r.Key[1], typeTec: r.Key[2], typeYear: r.Key[3], value: r.Value}
		catYears, weights, err := categoryWeights(scen, b.typeYear, f)
		if err != nil {
			return nil, fmt.Errorf("formulate bound %s: %w", b.typeYear, err)
		}
		b.years = catYears
		coefs := make(map[int]float64)
		for i, y := range catYears {
			for _, e := range scen.Cat("emission", b.typeEmission) {
				col, ok := f.emissIdx[emissKey{node: b.node, emission: e, year: yearLabel(y)}]
				if !ok {
					return nil, fmt.Errorf("formulate bound %s: no emission accounting for node %s", b.typeYear, b.node)
				}
				coefs[col] += weights[i]
			}
		}
		b.row = f.addRow(-inf, coefs, b.value)
		f.boundRows = append(f.boundRows, b)
	}

	// Emission taxes price the accounting columns directly in the objective.
	for _, r := range scen.Par("tax_emission") {
		f.taxed = true
		catYears, _, err := categoryWeights(scen, r.Key[3], f)
		if err != nil {
			return nil, fmt.Errorf("formulate tax %s: %w", r.Key[3], err)
		}
		for _, y := range catYears {
			yi := f.yearIdx[yearLabel(y)]
			for _, e := range scen.Cat("emission", r.Key[1]) {
				col, ok := f.emissIdx[emissKey{node: r.Key[0], emission: e, year: yearLabel(y)}]
				if !ok {
					return nil, fmt.Errorf("formulate tax %s: no emission accounting for node %s", r.Key[3], r.Key[0])
				}
				f.Model.ColCosts[col] += dfPeriod[yi] * r.Value
			}
		}
	}

	// Add-on activity caps, generated only when addon_up is present; bare
	// add-on registration stays inert.
	for _, r := range scen.Par("addon_up") {
		node, host, ya, mode, timeSlice, typeAddon := r.Key[0], r.Key[1], r.Key[2], r.Key[3], r.Key[4], r.Key[5]
		hostKey := actKey{node, host, ya, ya, mode}
		hostCol, ok := actIdx[hostKey]
		if !ok {
			return nil, fmt.Errorf("formulate addon_up: host activity %s/%s/%s not in output table", node, host, ya)
		}
		c := 1.0
		if v, ok := conv[ixstore.Key{node, host, ya, ya, mode, timeSlice, typeAddon}.Join()]; ok {
			c = v
		}
		coefs := map[int]float64{hostCol: -r.Value * c}
		for _, a := range scen.Cat("addon", typeAddon) {
			if col, ok := actIdx[actKey{node, a, ya, ya, mode}]; ok {
				coefs[col] += 1
			}
		}
		f.addRow(-inf, coefs, 0)
	}

	return f, nil
}

// interestRate reads the scalar interest rate, requiring one uniform value
// across all model years.
func interestRate(scen *ixstore.Scenario, years []int) (float64, error) {
	rows := scen.Par("interestrate")
	if len(rows) == 0 {
		return 0, fmt.Errorf("interestrate is not set for any year")
	}
	rate := rows[0].Value
	for _, r := range rows[1:] {
		if r.Value != rate {
			return 0, fmt.Errorf("interestrate varies across years (%g vs %g); discounting requires a uniform rate", rate, r.Value)
		}
	}
	byYear := make(map[string]bool, len(rows))
	for _, r := range rows {
		byYear[r.Key[0]] = true
	}
	for _, y := range years {
		if !byYear[yearLabel(y)] {
			return 0, fmt.Errorf("interestrate is not set for year %d", y)
		}
	}
	return rate, nil
}

// categoryWeights resolves a year category to its sorted years and the
// duration weights dur(y)/sum(dur) used by bound rows.
func categoryWeights(scen *ixstore.Scenario, typeYear string, f *Formulation) ([]int, []float64, error) {
	members := scen.Cat("year", typeYear)
	if len(members) == 0 {
		return nil, nil, fmt.Errorf("year category %q is empty or undeclared", typeYear)
	}
	years := make([]int, 0, len(members))
	for _, m := range members {
		y, err := strconv.Atoi(m)
		if err != nil {
			return nil, nil, fmt.Errorf("year category %q: non-numeric member %q", typeYear, m)
		}
		if _, ok := f.yearIdx[m]; !ok {
			return nil, nil, fmt.Errorf("year category %q: member %q outside the year set", typeYear, m)
		}
		years = append(years, y)
	}
	sort.Ints(years)
	total := 0
	for _, y := range years {
		total += f.Durations[f.yearIdx[yearLabel(y)]]
	}
	weights := make([]float64, len(years))
	for i, y := range years {
		weights[i] = float64(f.Durations[f.yearIdx[yearLabel(y)]]) / float64(total)
	}
	return years, weights, nil
}

// spatialSubtrees computes, for every node, the set of nodes in its subtree
// (itself included) according to map_spatial_hierarchy.
func spatialSubtrees(nodes []string, hierarchy [][]string) map[string]map[string]bool {
	children := make(map[string][]string)
	for _, t := range hierarchy {
		children[t[0]] = append(children[t[0]], t[1])
	}
	out := make(map[string]map[string]bool, len(nodes))
	var collect func(n string, into map[string]bool)
	collect = func(n string, into map[string]bool) {
		if into[n] {
			return
		}
		into[n] = true
		for _, c := range children[n] {
			collect(c, into)
		}
	}
	for _, n := range nodes {
		set := make(map[string]bool)
		collect(n, set)
		out[n] = set
	}
	return out
}
