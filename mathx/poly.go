package mathx

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Degree is the polynomial degree used by every calibration fit.  Fits made
// elsewhere (the bench's own analysis notebooks) use the same degree and
// coefficient order, which keeps calibration files portable.
const Degree = 4

// eps is the float64 machine epsilon
const eps = 2.220446049250313e-16

// Poly4 holds the coefficients of a degree 4 polynomial, highest order first
// (the numpy polyfit convention).
type Poly4 [Degree + 1]float64

// Eval evaluates the polynomial at x with Horner's scheme
func (p Poly4) Eval(x float64) float64 {
	return Polyval(p[:], x)
}

// EvalAll evaluates the polynomial at every x
func (p Poly4) EvalAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = p.Eval(x)
	}
	return out
}

// Valid is true when no coefficient is NaN or infinite
func (p Poly4) Valid() bool {
	for _, c := range p {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Polyval evaluates the polynomial with coefficients c (highest order first) at x
func Polyval(c []float64, x float64) float64 {
	var y float64
	for _, ci := range c {
		y = y*x + ci
	}
	return y
}

// Polyfit computes the least-squares polynomial of degree deg through (x, y).
// The coefficients are returned highest order first.
//
// The Vandermonde columns are normalized before the solve, as numpy does,
// so fits over wavelength axes of several hundred nm stay well conditioned.
// A rank deficient system (fewer than deg+1 distinct x) gets the minimum norm
// solution, singular values below n*eps of the largest being dropped.
func Polyfit(x, y []float64, deg int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, errors.Errorf("mathx: polyfit x and y differ in length, %d != %d", len(x), len(y))
	}
	n, m := len(x), deg+1
	if deg < 0 {
		return nil, errors.Errorf("mathx: polyfit degree must be >= 0, got %d", deg)
	}
	if n < m {
		return nil, errors.Errorf("mathx: polyfit of degree %d needs at least %d points, got %d", deg, m, n)
	}
	for i := range x {
		if math.IsNaN(x[i]) || math.IsInf(x[i], 0) || math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, errors.Errorf("mathx: polyfit point %d is not finite (%v, %v)", i, x[i], y[i])
		}
	}

	a := mat.NewDense(n, m, nil)
	for i, xi := range x {
		v := 1.
		for j := deg; j >= 0; j-- {
			a.Set(i, j, v)
			v *= xi
		}
	}
	scale := make([]float64, m)
	for j := 0; j < m; j++ {
		s := floats.Norm(mat.Col(nil, j, a), 2)
		if s == 0 {
			s = 1
		}
		scale[j] = s
		for i := 0; i < n; i++ {
			a.Set(i, j, a.At(i, j)/s)
		}
	}

	rhs := make([]float64, n)
	copy(rhs, y)
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("mathx: polyfit singular value decomposition failed")
	}
	rank := svd.Rank(float64(n) * eps)
	out := make([]float64, m)
	if rank < 1 {
		return out, nil
	}
	var sol mat.VecDense
	svd.SolveVecTo(&sol, mat.NewVecDense(n, rhs), rank)
	for j := 0; j < m; j++ {
		out[j] = sol.AtVec(j) / scale[j]
	}
	return out, nil
}

// Fit4 is Polyfit with the calibration degree, returning a Poly4
func Fit4(x, y []float64) (Poly4, error) {
	var p Poly4
	c, err := Polyfit(x, y, Degree)
	if err != nil {
		return p, err
	}
	copy(p[:], c)
	return p, nil
}
