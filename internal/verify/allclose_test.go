package verify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllCloseAgreement(t *testing.T) {
	got := []float64{1.0, 1.6288946267, 2.6532977051}
	want := []float64{1.0, 1.62889462677744, 2.65329770514442}
	assert.NoError(t, AllClose(got, want, DefaultRTol, DefaultATol))
}

func TestAllCloseLengthMismatch(t *testing.T) {
	err := AllClose([]float64{1}, []float64{1, 2}, DefaultRTol, DefaultATol)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length mismatch")
}

func TestAllCloseReportsEveryBadIndex(t *testing.T) {
	err := AllClose([]float64{1, 5, 3, 9}, []float64{1, 2, 3, 4}, DefaultRTol, DefaultATol)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[1]")
	assert.Contains(t, err.Error(), "[3]")
	assert.NotContains(t, err.Error(), "[2]")
}

func TestAllCloseRejectsNaN(t *testing.T) {
	err := AllClose([]float64{math.NaN()}, []float64{0}, DefaultRTol, DefaultATol)
	assert.Error(t, err)
}

func TestCloseScalesWithMagnitude(t *testing.T) {
	assert.True(t, Close(1e6+5, 1e6, 1e-5, 0))
	assert.False(t, Close(1+5e-5, 1, 1e-5, 0))
}

func TestExpectedPricesCompoundFromFirstYear(t *testing.T) {
	got := expectedPrices([]int{2020, 2025, 2030, 2040}, 0.05)
	want := []float64{1, math.Pow(1.05, 5), math.Pow(1.05, 10), math.Pow(1.05, 20)}
	assert.NoError(t, AllClose(got, want, 0, 1e-12))
}
