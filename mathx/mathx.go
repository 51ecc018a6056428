// Package mathx provides the small numeric helpers the calibration code
// shares: rounding, sampling grids, spans, and the float spelling used in
// the bench's file formats.
package mathx

import (
	"math"
	"strconv"
	"strings"
)

// Round rounds a float to the nearest "unit" (0.1 for tenth, 0.01 for hundredth, and so on).
func Round(x, unit float64) float64 {
	r := math.Round(x/unit) * unit
	// strip the representation error introduced by the multiply,
	// 500.1 should print as 500.1 and not 500.09999999999997
	digits := -int(math.Floor(math.Log10(unit)))
	if digits < 0 {
		digits = 0
	}
	v, err := strconv.ParseFloat(strconv.FormatFloat(r, 'f', digits, 64), 64)
	if err != nil {
		return r
	}
	return v
}

// Linspace returns n evenly spaced samples over [start, stop], inclusive of
// both ends.  n == 1 yields just start.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := 0; i < n; i++ {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

// Span returns the minimum and maximum of xs.  It returns NaN, NaN for an
// empty slice.
func Span(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

// Repr spells a float the way the bench's Python tooling does (repr):
// integral values keep a trailing ".0", exponents are used below 1e-4 and
// from 1e16 up.  Files and noise dictionary keys depend on this spelling.
func Repr(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	exp := int(math.Floor(math.Log10(math.Abs(f))))
	// Log10 can land one off near powers of ten, read the exponent back
	// from the shortest 'e' spelling instead
	e := strconv.FormatFloat(f, 'e', -1, 64)
	if i := strings.IndexByte(e, 'e'); i >= 0 {
		if v, err := strconv.Atoi(e[i+1:]); err == nil {
			exp = v
		}
	}
	if exp < -4 || exp >= 16 {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
