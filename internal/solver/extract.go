package solver

import (
	"sort"

	highs "github.com/bartolsthoorn/gohighs/highs"

	"github.com/emixlab/emix/internal/ixstore"
)

// extract maps a HiGHS solution back onto named output tables using the
// formulation's row/column bookkeeping.
func (f *Formulation) extract(sol *highs.Solution, scen *ixstore.Scenario, runID string, opts Options) *Result {
	res := &Result{
		RunID:     runID,
		Objective: sol.Objective,
		Vars:      make(map[string]*Table),
		Equs:      make(map[string]*Table),
	}

	res.Vars["OBJ"] = &Table{Rows: []TableRow{{Key: []string{}, Lvl: sol.Objective}}}

	act := &Table{Dims: []string{"node", "technology", "year_vtg", "year_act", "mode"}}
	for _, a := range f.actCols {
		act.Rows = append(act.Rows, TableRow{
			Key: []string{a.key.node, a.key.tec, a.key.yvtg, a.key.yact, a.key.mode},
			Lvl: sol.ColValues[a.col],
		})
	}
	act.sortByYearDim("year_act")
	res.Vars["ACT"] = act

	emiss := &Table{Dims: []string{"node", "emission", "type_tec", "year"}}
	for _, k := range f.emissOrder {
		emiss.Rows = append(emiss.Rows, TableRow{
			Key: []string{k.node, k.emission, "all", k.year},
			Lvl: sol.ColValues[f.emissIdx[k]],
		})
	}
	res.Vars["EMISS"] = emiss

	balance := &Table{Dims: []string{"node", "commodity", "level", "year", "time"}}
	for _, d := range f.demandRows {
		balance.Rows = append(balance.Rows, TableRow{
			Key: []string{d.node, d.commodity, d.level, d.year, d.time},
			Lvl: sol.RowValues[d.row],
			Mrg: sol.RowDuals[d.row],
		})
	}
	balance.sortByYearDim("year")
	res.Equs["COMMODITY_BALANCE"] = balance

	equivRowIdx := make(map[emissKey]int, len(f.equivRows))
	equiv := &Table{Dims: []string{"node", "emission", "type_tec", "year"}}
	for _, e := range f.equivRows {
		equivRowIdx[e.key] = e.row
		equiv.Rows = append(equiv.Rows, TableRow{
			Key: []string{e.key.node, e.key.emission, "all", e.key.year},
			Lvl: sol.RowValues[e.row],
			Mrg: sol.RowDuals[e.row],
		})
	}
	res.Equs["EMISSION_EQUIVALENCE"] = equiv

	constraint := &Table{Dims: []string{"node", "type_emission", "type_tec", "type_year"}}
	price := &Table{Dims: []string{"node", "type_emission", "type_tec", "year"}}
	for _, b := range f.boundRows {
		constraint.Rows = append(constraint.Rows, TableRow{
			Key: []string{b.node, b.typeEmission, b.typeTec, b.typeYear},
			Lvl: sol.RowValues[b.row],
			Mrg: sol.RowDuals[b.row],
		})
		// The bound is an upper limit, so its multiplier is non-positive at
		// an optimum; the shadow price is its magnitude.
		shadow := -sol.RowDuals[b.row]
		total := 0
		for _, y := range b.years {
			total += f.Durations[f.yearIdx[yearLabel(y)]]
		}
		for _, y := range b.years {
			yi := f.yearIdx[yearLabel(y)]
			w := float64(f.Durations[yi]) / float64(total)
			price.Rows = append(price.Rows, TableRow{
				Key: []string{b.node, b.typeEmission, b.typeTec, yearLabel(y)},
				Lvl: shadow * w / f.DFPeriod[yi],
			})
		}
	}
	price.sortByYearDim("year")
	res.Equs["EMISSION_CONSTRAINT"] = constraint
	res.Vars["PRICE_EMISSION"] = price

	res.Vars["PRICE_EMISSION_NEW"] = f.priceFromEquivalence(sol, scen, equivRowIdx)

	for _, p := range opts.ParList {
		if res.Pars == nil {
			res.Pars = make(map[string]*Table)
		}
		switch p {
		case "df_year":
			t := &Table{Dims: []string{"year"}}
			for i, y := range f.Years {
				t.Rows = append(t.Rows, TableRow{Key: []string{yearLabel(y)}, Lvl: f.DFYear[i]})
			}
			res.Pars[p] = t
		case "df_period":
			t := &Table{Dims: []string{"year"}}
			for i, y := range f.Years {
				t.Rows = append(t.Rows, TableRow{Key: []string{yearLabel(y)}, Lvl: f.DFPeriod[i]})
			}
			res.Pars[p] = t
		case "levelized_cost":
			t := &Table{Dims: []string{"node", "technology", "year_act"}}
			keys := make([]actKey, 0, len(f.varCost))
			for k := range f.varCost {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(a, b int) bool {
				if keys[a].yact != keys[b].yact {
					return keys[a].yact < keys[b].yact
				}
				if keys[a].node != keys[b].node {
					return keys[a].node < keys[b].node
				}
				return keys[a].tec < keys[b].tec
			})
			for _, k := range keys {
				// With no investment or fixed cost components the
				// levelized cost collapses to the variable cost.
				t.Rows = append(t.Rows, TableRow{Key: []string{k.node, k.tec, k.yact}, Lvl: f.varCost[k]})
			}
			res.Pars[p] = t
		}
	}

	return res
}

// priceFromEquivalence derives the per-period emission price from the
// equivalence-row duals: price(y) = mrg(y) / df_period(y). One row per
// (node, type_emission, type_tec) combination referenced by a bound or tax,
// per model year. With neither bounds nor taxes there is no price to report
// and the table stays empty.
func (f *Formulation) priceFromEquivalence(sol *highs.Solution, scen *ixstore.Scenario, equivRowIdx map[emissKey]int) *Table {
	t := &Table{Dims: []string{"node", "type_emission", "type_tec", "year"}}

	type combo struct{ node, typeEmission, typeTec string }
	seen := make(map[combo]bool)
	var combos []combo
	for _, par := range []string{"bound_emission", "tax_emission"} {
		for _, r := range scen.Par(par) {
			c := combo{r.Key[0], r.Key[1], r.Key[2]}
			if !seen[c] {
				seen[c] = true
				combos = append(combos, c)
			}
		}
	}

	for _, c := range combos {
		members := scen.Cat("emission", c.typeEmission)
		for i, y := range f.Years {
			mrg := 0.0
			for _, e := range members {
				if row, ok := equivRowIdx[emissKey{node: c.node, emission: e, year: yearLabel(y)}]; ok {
					mrg += sol.RowDuals[row]
				}
			}
			t.Rows = append(t.Rows, TableRow{
				Key: []string{c.node, c.typeEmission, c.typeTec, yearLabel(y)},
				Lvl: mrg / f.DFPeriod[i],
			})
		}
	}
	t.sortByYearDim("year")
	return t
}
