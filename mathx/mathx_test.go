package mathx_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cs/benchcal/mathx"
)

func ExampleRepr() {
	fmt.Println(mathx.Repr(1), mathx.Repr(0.5), mathx.Repr(500.1), mathx.Repr(1e-5), mathx.Repr(-3))
	// Output: 1.0 0.5 500.1 1e-05 -3.0
}

func ExampleLinspace() {
	fmt.Println(mathx.Linspace(250, 800, 12))
	// Output: [250 300 350 400 450 500 550 600 650 700 750 800]
}

func TestRoundTenth(t *testing.T) {
	assert.Equal(t, 500.1, mathx.Round(500.06, 0.1))
	assert.Equal(t, 278.9, mathx.Round(278.94736842105266, 0.1))
	assert.Equal(t, -1.2, mathx.Round(-1.24, 0.1))
}

func TestSpan(t *testing.T) {
	lo, hi := mathx.Span([]float64{3, -1, 7, 2})
	assert.Equal(t, -1., lo)
	assert.Equal(t, 7., hi)
	lo, hi = mathx.Span(nil)
	assert.True(t, math.IsNaN(lo) && math.IsNaN(hi))
}

func TestPolyfitRecoversExactQuartic(t *testing.T) {
	truth := mathx.Poly4{0.002, -0.05, 0.3, -1.5, 12}
	x := mathx.Linspace(0, 10, 40)
	y := truth.EvalAll(x)
	fit, err := mathx.Fit4(x, y)
	require.NoError(t, err)
	for i := range truth {
		assert.InDelta(t, truth[i], fit[i], 1e-8, "coefficient %d", i)
	}
}

func TestPolyfitWavelengthAxisIsConditioned(t *testing.T) {
	// a detector baseline over a visible axis, the raw Vandermonde matrix
	// spans ~12 orders of magnitude here
	truth := mathx.Poly4{1e-10, -2e-7, 1e-4, 0.02, 300}
	x := mathx.Linspace(350, 1050, 1600)
	y := truth.EvalAll(x)
	fit, err := mathx.Fit4(x, y)
	require.NoError(t, err)
	for _, xi := range []float64{350, 600, 1050} {
		assert.InEpsilon(t, truth.Eval(xi), fit.Eval(xi), 1e-6)
	}
}

func TestPolyfitTooFewPoints(t *testing.T) {
	_, err := mathx.Polyfit([]float64{1, 2, 3}, []float64{1, 2, 3}, 4)
	assert.Error(t, err)
}

func TestPolyfitRejectsNaN(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []float64{1, 2, math.NaN(), 4, 5, 6}
	_, err := mathx.Polyfit(x, y, 4)
	assert.Error(t, err)
}

func TestPolyfitZeroDataGivesZeroPolynomial(t *testing.T) {
	x := mathx.Linspace(200, 1000, 100)
	y := make([]float64, len(x))
	fit, err := mathx.Fit4(x, y)
	require.NoError(t, err)
	assert.Equal(t, mathx.Poly4{}, fit)
}

func TestPolyfitRankDeficient(t *testing.T) {
	// a constant x axis supports only the mean
	x := make([]float64, 20)
	y := make([]float64, 20)
	for i := range x {
		x[i] = 0.5
		y[i] = 2 + 0.01*float64(i%2)
	}
	fit, err := mathx.Fit4(x, y)
	require.NoError(t, err)
	assert.True(t, fit.Valid())
	assert.InDelta(t, 2.005, fit.Eval(0.5), 1e-9)

	// three distinct x values fit a parabola exactly
	x = []float64{1, 1, 2, 2, 3, 3}
	y = []float64{1, 1, 4, 4, 9, 9}
	fit, err = mathx.Fit4(x, y)
	require.NoError(t, err)
	for _, xi := range []float64{1, 2, 3} {
		assert.InDelta(t, xi*xi, fit.Eval(xi), 1e-9)
	}
}

func TestPolyval(t *testing.T) {
	// 2x^2 + 3x + 4 at 2
	assert.Equal(t, 18., mathx.Polyval([]float64{2, 3, 4}, 2))
}
