/*Package power relates the bench's two reference power meters.

Meter A sits where the sample goes, meter B on a pick-off that stays in the
beam during measurements.  A calibration sweep reads both meters across the
monochromator range for each monochromator grating.  Per grating two degree
4 polynomials are fitted: the ratio B/A against wavelength, and A against B
(in µW, after sorting by B).  During a measurement only B is read; dividing
it by the ratio gives the power incident on the sample.

Evaluation outside the sampled wavelength or B span is refused with
calerr.ErrOutOfRange.
*/
package power

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/record"
)

const (
	// Planck is the Planck constant, J s
	Planck = 6.62607015e-34

	// LightSpeed is the speed of light in vacuum, m/s
	LightSpeed = 299792458.

	// MicroWatt converts W to µW, the unit the fits are made in
	MicroWatt = 1e6

	// MinReadings is the fewest readings a grating's sweep may have
	MinReadings = mathx.Degree + 1
)

// Gratings lists the monochromator gratings a calibration covers
var Gratings = []int{0, 1}

// Reading is one point of a calibration sweep
type Reading struct {
	// Wavelength is the monochromator wavelength, nm
	Wavelength float64

	// WavelengthA and WavelengthB are the wavelengths the meters were set to, nm
	WavelengthA, WavelengthB float64

	// A and B are the meter readings, W
	A, B float64
}

// FromSweep converts the rows of a sweep file.  Sweep files only record the
// monochromator wavelength; the meters followed it.
func FromSweep(s *record.Sweep) []Reading {
	out := make([]Reading, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = Reading{
			Wavelength:  r.Wavelength,
			WavelengthA: r.Wavelength,
			WavelengthB: r.Wavelength,
			A:           r.A,
			B:           r.B,
		}
	}
	return out
}

// Sweeps holds the readings of each monochromator grating
type Sweeps map[int][]Reading

// GratingFit is the calibration of one monochromator grating
type GratingFit struct {
	// Ratio is B/A as a function of wavelength (nm)
	Ratio mathx.Poly4 `json:"ratio"`

	// Absolute is A (µW) as a function of B (µW)
	Absolute mathx.Poly4 `json:"absolute"`

	// WavelengthMin and WavelengthMax bound the sampled wavelengths, nm
	WavelengthMin float64 `json:"wavelength_min"`
	WavelengthMax float64 `json:"wavelength_max"`

	// PowerBMin and PowerBMax bound the sampled B readings, µW
	PowerBMin float64 `json:"power_b_min"`
	PowerBMax float64 `json:"power_b_max"`
}

// Calibration is a complete power calibration, identified by the run that
// produced it
type Calibration struct {
	ID       string             `json:"id"`
	Gratings map[int]GratingFit `json:"gratings"`
}

// Fit returns the fit for grating
func (c *Calibration) Fit(grating int) (GratingFit, error) {
	if c == nil {
		return GratingFit{}, errors.Wrap(calerr.ErrCalibrationKey, "no power calibration")
	}
	g, ok := c.Gratings[grating]
	if !ok {
		return GratingFit{}, errors.Wrapf(calerr.ErrCalibrationKey, "power calibration %s has no grating %d", c.ID, grating)
	}
	return g, nil
}

func checkReading(i int, r Reading) error {
	if r.WavelengthA != r.WavelengthB {
		return errors.Wrapf(calerr.ErrMetadataInconsistency,
			"reading %d: meter A at %v nm, meter B at %v nm", i, r.WavelengthA, r.WavelengthB)
	}
	if r.WavelengthA != r.Wavelength {
		return errors.Wrapf(calerr.ErrMetadataInconsistency,
			"reading %d: meters at %v nm, monochromator at %v nm", i, r.WavelengthA, r.Wavelength)
	}
	for _, v := range []float64{r.Wavelength, r.A, r.B} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(calerr.ErrMalformedRecord, "reading %d: non finite value", i)
		}
	}
	if r.A == 0 {
		return errors.Wrapf(calerr.ErrMalformedRecord, "reading %d: meter A read zero at %v nm", i, r.Wavelength)
	}
	return nil
}

// CalibrateGrating fits one grating's readings
func CalibrateGrating(readings []Reading) (GratingFit, error) {
	if len(readings) < MinReadings {
		return GratingFit{}, errors.Wrapf(calerr.ErrMalformedRecord, "%d readings, need at least %d", len(readings), MinReadings)
	}
	n := len(readings)
	wl := make([]float64, n)
	ratio := make([]float64, n)
	a := make([]float64, n)
	b := make([]float64, n)
	for i, r := range readings {
		if err := checkReading(i, r); err != nil {
			return GratingFit{}, err
		}
		wl[i] = r.Wavelength
		a[i] = r.A * MicroWatt
		b[i] = r.B * MicroWatt
		ratio[i] = b[i] / a[i]
	}
	ratioFit, err := mathx.Fit4(wl, ratio)
	if err != nil {
		return GratingFit{}, errors.Wrap(err, "ratio fit")
	}

	// A(B) is evaluated as a function of B, fit on B ascending
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return b[idx[i]] < b[idx[j]] })
	bs := make([]float64, n)
	as := make([]float64, n)
	for i, k := range idx {
		bs[i], as[i] = b[k], a[k]
	}
	absFit, err := mathx.Fit4(bs, as)
	if err != nil {
		return GratingFit{}, errors.Wrap(err, "A(B) fit")
	}

	g := GratingFit{Ratio: ratioFit, Absolute: absFit}
	g.WavelengthMin, g.WavelengthMax = mathx.Span(wl)
	g.PowerBMin, g.PowerBMax = bs[0], bs[n-1]
	return g, nil
}

// Calibrate builds a calibration from the sweeps of gratings 0 and 1.  Any
// inconsistent or malformed reading aborts the whole calibration.
func Calibrate(id string, sweeps Sweeps) (*Calibration, error) {
	if len(sweeps) == 0 {
		return nil, errors.Wrap(calerr.ErrConfiguration, "no sweeps to calibrate")
	}
	c := &Calibration{ID: id, Gratings: make(map[int]GratingFit, len(sweeps))}
	for gr, readings := range sweeps {
		if !isCalibrated(gr) {
			return nil, errors.Wrapf(calerr.ErrConfiguration, "grating %d is not calibrated, only %v", gr, Gratings)
		}
		g, err := CalibrateGrating(readings)
		if err != nil {
			return nil, errors.Wrapf(err, "grating %d", gr)
		}
		c.Gratings[gr] = g
	}
	return c, nil
}

func isCalibrated(gr int) bool {
	for _, g := range Gratings {
		if g == gr {
			return true
		}
	}
	return false
}

// Ratio evaluates B/A for grating at wl (nm)
func Ratio(wl float64, grating int, c *Calibration) (float64, error) {
	g, err := c.Fit(grating)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(wl) || wl < g.WavelengthMin || wl > g.WavelengthMax {
		return 0, errors.Wrapf(calerr.ErrOutOfRange,
			"%v nm outside grating %d calibration span [%v, %v]", wl, grating, g.WavelengthMin, g.WavelengthMax)
	}
	r := g.Ratio.Eval(wl)
	if !(r > 0) {
		return 0, errors.Wrapf(calerr.ErrOutOfRange, "ratio %v at %v nm on grating %d is not positive", r, wl, grating)
	}
	return r, nil
}

// Correct converts a meter B reading taken at wl (nm) into the power
// incident on the sample, in the same unit as samplePower
func Correct(samplePower, wl float64, grating int, c *Calibration) (float64, error) {
	r, err := Ratio(wl, grating, c)
	if err != nil {
		return 0, err
	}
	return samplePower / r, nil
}

// AbsolutePower evaluates A(B) for a meter B reading in W, returning W
func AbsolutePower(powerB float64, grating int, c *Calibration) (float64, error) {
	g, err := c.Fit(grating)
	if err != nil {
		return 0, err
	}
	b := powerB * MicroWatt
	if math.IsNaN(b) || b < g.PowerBMin || b > g.PowerBMax {
		return 0, errors.Wrapf(calerr.ErrOutOfRange,
			"B=%v µW outside grating %d calibration span [%v, %v]", b, grating, g.PowerBMin, g.PowerBMax)
	}
	return g.Absolute.Eval(b) / MicroWatt, nil
}

// PhotonCount is the number of photons of wavelength wlNm delivered by
// totalPower watts over exposure seconds
func PhotonCount(totalPower, exposure, wlNm float64) float64 {
	return totalPower * exposure / (Planck * LightSpeed) * wlNm * 1e-9
}
