package discount

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurations_FirstPeriodInheritsSecond(t *testing.T) {
	dur, err := Durations([]int{2020, 2025, 2030, 2040})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 5, 5, 10}, dur)
}

func TestDurations_Equidistant(t *testing.T) {
	dur, err := Durations([]int{2020, 2030, 2040})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 10, 10}, dur)
}

func TestDurations_Errors(t *testing.T) {
	_, err := Durations(nil)
	assert.Error(t, err)

	_, err = Durations([]int{2030, 2020})
	assert.Error(t, err)

	_, err = Durations([]int{2020, 2020})
	assert.Error(t, err)
}

func TestDFYear(t *testing.T) {
	df, err := DFYear([]int{2020, 2030, 2040}, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, df[0], 1e-12)
	assert.InDelta(t, math.Pow(1.05, -10), df[1], 1e-12)
	assert.InDelta(t, math.Pow(1.05, -20), df[2], 1e-12)
}

// The variable-period-length series is checked against the reference values
// the model documentation quotes for a 5% interest rate.
func TestDFPeriod_VariablePeriodLength(t *testing.T) {
	df, err := DFPeriod([]int{2020, 2025, 2030, 2040}, 0.05)
	require.NoError(t, err)

	exp := []float64{5.52563125, 4.329476671, 3.392258259, 4.740475413}
	require.Len(t, df, len(exp))
	for i := range exp {
		assert.InDelta(t, exp[i], df[i], 1e-8, "df_period[%d]", i)
	}
}

// For equally spaced years the period factor declines geometrically with
// the interest rate, which is what makes cumulative emission prices grow
// geometrically.
func TestDFPeriod_EquidistantGeometric(t *testing.T) {
	df, err := DFPeriod([]int{2020, 2030, 2040}, 0.05)
	require.NoError(t, err)

	assert.InDelta(t, math.Pow(1.05, 10), df[0]/df[1], 1e-9)
	assert.InDelta(t, math.Pow(1.05, 10), df[1]/df[2], 1e-9)

	// First period sums 1.05^9 .. 1.05^0.
	sum := 0.0
	for k := 0; k < 10; k++ {
		sum += math.Pow(1.05, float64(k))
	}
	assert.InDelta(t, sum, df[0], 1e-9)
}

func TestDFPeriod_SingleYear(t *testing.T) {
	df, err := DFPeriod([]int{2020}, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, df[0], 1e-12)
}
