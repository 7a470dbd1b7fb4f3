// Package verify checks solved scenarios against the analytic properties of
// discounted emission pricing: cumulative bounds yield geometrically growing
// prices, per-period bounds yield flat ones, and prices, taxes, and bounds
// reproduce each other under duality.
package verify

import (
	"fmt"
	"math"
	"strings"
)

// Default tolerances for elementwise comparison.
const (
	DefaultRTol = 1e-5
	DefaultATol = 1e-8
)

// AllClose reports nil when got and want agree elementwise within
// |got-want| <= atol + rtol*|want|. On failure the error lists every
// offending index with both values.
func AllClose(got, want []float64, rtol, atol float64) error {
	if len(got) != len(want) {
		return fmt.Errorf("length mismatch: got %d values, want %d", len(got), len(want))
	}
	var bad []string
	for i := range got {
		diff := math.Abs(got[i] - want[i])
		if math.IsNaN(got[i]) || diff > atol+rtol*math.Abs(want[i]) {
			bad = append(bad, fmt.Sprintf("[%d] got %.10g, want %.10g (diff %.3g)", i, got[i], want[i], diff))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("values differ beyond rtol=%g atol=%g:\n  %s", rtol, atol, strings.Join(bad, "\n  "))
	}
	return nil
}

// Close is AllClose for a single pair.
func Close(got, want, rtol, atol float64) bool {
	return math.Abs(got-want) <= atol+rtol*math.Abs(want)
}
