package solver

import (
	"fmt"
	"sort"
	"strconv"
)

// Filter restricts a table to rows whose label in a dimension is among the
// allowed values, e.g. Filter{"node": {"World"}}.
type Filter map[string][]string

// TableRow is one record of an output table: a dimension key plus the level
// value and, for equations, the marginal (dual) value.
type TableRow struct {
	Key []string `json:"key"`
	Lvl float64  `json:"lvl"`
	Mrg float64  `json:"mrg,omitempty"`
}

// Table is a dimensioned view over solve output, keyed the same way the
// scenario parameters are keyed.
type Table struct {
	Dims []string   `json:"dims"`
	Rows []TableRow `json:"rows"`
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return t == nil || len(t.Rows) == 0 }

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Filter returns the sub-table matching every supplied filter.
func (t *Table) Filter(filters ...Filter) *Table {
	if t == nil {
		return nil
	}
	out := &Table{Dims: t.Dims}
	dimIdx := make(map[string]int, len(t.Dims))
	for i, d := range t.Dims {
		dimIdx[d] = i
	}
	for _, row := range t.Rows {
		if matchRow(row.Key, dimIdx, filters) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

func matchRow(key []string, dimIdx map[string]int, filters []Filter) bool {
	for _, f := range filters {
		for dim, allowed := range f {
			i, ok := dimIdx[dim]
			if !ok {
				return false
			}
			found := false
			for _, a := range allowed {
				if key[i] == a {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// Lvls returns the level values in row order.
func (t *Table) Lvls() []float64 {
	if t == nil {
		return nil
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Lvl
	}
	return out
}

// Mrgs returns the marginal values in row order.
func (t *Table) Mrgs() []float64 {
	if t == nil {
		return nil
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Mrg
	}
	return out
}

// LvlByDim indexes level values by the labels of one dimension. It fails if
// the dimension is unknown or a label repeats across rows.
func (t *Table) LvlByDim(dim string) (map[string]float64, error) {
	if t == nil {
		return nil, fmt.Errorf("lvl by %s: nil table", dim)
	}
	idx := -1
	for i, d := range t.Dims {
		if d == dim {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("lvl by %s: dimension not in %v", dim, t.Dims)
	}
	out := make(map[string]float64, len(t.Rows))
	for _, r := range t.Rows {
		label := r.Key[idx]
		if _, dup := out[label]; dup {
			return nil, fmt.Errorf("lvl by %s: label %q is not unique", dim, label)
		}
		out[label] = r.Lvl
	}
	return out, nil
}

// sortByYearDim orders rows ascending by the numeric value of the given
// dimension, keeping the remaining key as a tiebreaker.
func (t *Table) sortByYearDim(dim string) {
	idx := -1
	for i, d := range t.Dims {
		if d == dim {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	sort.SliceStable(t.Rows, func(a, b int) bool {
		ya, errA := strconv.Atoi(t.Rows[a].Key[idx])
		yb, errB := strconv.Atoi(t.Rows[b].Key[idx])
		if errA == nil && errB == nil && ya != yb {
			return ya < yb
		}
		return t.Rows[a].Key[idx] < t.Rows[b].Key[idx]
	})
}

// Result carries the output tables of one successful solve.
type Result struct {
	RunID     string            `json:"run_id"`
	Objective float64           `json:"objective"`
	Vars      map[string]*Table `json:"vars"`
	Equs      map[string]*Table `json:"equs"`
	Pars      map[string]*Table `json:"pars,omitempty"`
}

// Var returns a named output variable, optionally filtered by dimension.
func (r *Result) Var(name string, filters ...Filter) (*Table, error) {
	t, ok := r.Vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %s not retained in solution", name)
	}
	return t.Filter(filters...), nil
}

// Equ returns a named equation (level + marginal), optionally filtered.
func (r *Result) Equ(name string, filters ...Filter) (*Table, error) {
	t, ok := r.Equs[name]
	if !ok {
		return nil, fmt.Errorf("equation %s not retained in solution", name)
	}
	return t.Filter(filters...), nil
}

// Par returns a derived parameter table retained via Options.ParList.
func (r *Result) Par(name string, filters ...Filter) (*Table, error) {
	t, ok := r.Pars[name]
	if !ok {
		return nil, fmt.Errorf("parameter %s not retained in solution", name)
	}
	return t.Filter(filters...), nil
}
