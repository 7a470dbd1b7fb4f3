// Package discount computes the period-length and discount-factor series
// used by the objective function and by emission-price derivation. Period
// discount factors are always computed from (years, interest rate); they
// are never hard-coded.
package discount

import (
	"fmt"
	"math"
	"sort"
)

// Durations returns the length of each period for a sorted year series.
// Each period is labelled by its final year and covers the span since the
// previous period's label; the first period is assigned the same length as
// the gap to the second, so a series [2020, 2030] describes two ten-year
// periods.
func Durations(years []int) ([]int, error) {
	if len(years) == 0 {
		return nil, fmt.Errorf("durations: empty year series")
	}
	if !sort.IntsAreSorted(years) {
		return nil, fmt.Errorf("durations: year series %v is not sorted", years)
	}
	out := make([]int, len(years))
	if len(years) == 1 {
		out[0] = 1
		return out, nil
	}
	for i := 1; i < len(years); i++ {
		d := years[i] - years[i-1]
		if d <= 0 {
			return nil, fmt.Errorf("durations: duplicate year %d", years[i])
		}
		out[i] = d
	}
	out[0] = out[1]
	return out, nil
}

// DFYear returns the annual discount factor (1+r)^-(y-y0) for each
// representative year, referenced to the first model year.
func DFYear(years []int, rate float64) ([]float64, error) {
	if len(years) == 0 {
		return nil, fmt.Errorf("df_year: empty year series")
	}
	out := make([]float64, len(years))
	for i, y := range years {
		out[i] = math.Pow(1+rate, -float64(y-years[0]))
	}
	return out, nil
}

// DFPeriod returns the period discount factor for each period: the sum of
// annual discount factors over every calendar year the period covers,
// referenced to the first model year. Years of the first period that
// precede y0 compound rather than discount, so for equally spaced years
// df_period(y) = df_period(y0) * (1+r)^-(y-y0).
func DFPeriod(years []int, rate float64) ([]float64, error) {
	dur, err := Durations(years)
	if err != nil {
		return nil, fmt.Errorf("df_period: %w", err)
	}
	out := make([]float64, len(years))
	for i, y := range years {
		sum := 0.0
		for k := 0; k < dur[i]; k++ {
			sum += math.Pow(1+rate, -float64(y-k-years[0]))
		}
		out[i] = sum
	}
	return out, nil
}
