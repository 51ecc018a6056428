// Package plots draws the figures the bench operators look at: spectra,
// the power calibration fits, and noise fits.
package plots

import (
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/noise"
	"github.com/3cs/benchcal/pipeline"
	"github.com/3cs/benchcal/power"
	"github.com/3cs/benchcal/record"
)

// Figure size
var (
	Width  = 8 * vg.Inch
	Height = 5 * vg.Inch
)

// fitPoints is the number of points a fitted curve is drawn with
const fitPoints = 200

func xys(x, y []float64) plotter.XYs {
	out := make(plotter.XYs, len(x))
	for i := range x {
		out[i].X, out[i].Y = x[i], y[i]
	}
	return out
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	return p
}

func addLine(p *plot.Plot, i int, label string, pts plotter.XYs) error {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	l.Color = plotutil.Color(i)
	l.Width = vg.Points(1.5)
	p.Add(l)
	if label != "" {
		p.Legend.Add(label, l)
	}
	return nil
}

func addPoints(p *plot.Plot, i int, label string, pts plotter.XYs) error {
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	s.Color = plotutil.Color(i)
	s.Radius = vg.Points(3)
	s.Shape = draw.CircleGlyph{}
	p.Add(s)
	if label != "" {
		p.Legend.Add(label, s)
	}
	return nil
}

// curve samples f over [lo, hi]
func curve(lo, hi float64, f func(float64) float64) plotter.XYs {
	x := mathx.Linspace(lo, hi, fitPoints)
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = f(xi)
	}
	return xys(x, y)
}

// Signal plots the raw samples of a measurement record
func Signal(r *record.Record, title string) (*plot.Plot, error) {
	if r == nil || len(r.Samples) == 0 {
		return nil, errors.New("record has no samples")
	}
	p := newPlot(title, "Wavelength (nm)", "Counts")
	return p, addLine(p, 0, "", xys(r.X(), r.Y()))
}

// Spectrum plots a corrected spectrum
func Spectrum(sp pipeline.Spectrum, title string) (*plot.Plot, error) {
	if len(sp.Values) == 0 {
		return nil, errors.New("spectrum has no samples")
	}
	y := "Counts"
	if sp.State == pipeline.Done {
		y = "Counts per photon"
	}
	p := newPlot(title, "Wavelength (nm)", y)
	return p, addLine(p, 0, sp.State.String(), xys(sp.Wavelengths, sp.Values))
}

// NoiseFit plots a closed-shutter record and the baseline fitted on it
func NoiseFit(r *record.Record, k noise.Key, e noise.Entry) (*plot.Plot, error) {
	if r == nil || len(r.Samples) == 0 {
		return nil, errors.New("record has no samples")
	}
	p := newPlot("Noise "+k.String(), "Wavelength (nm)", "Counts")
	if err := addPoints(p, 0, "measured", xys(r.X(), r.Y())); err != nil {
		return nil, err
	}
	lo, hi := mathx.Span(r.X())
	return p, addLine(p, 1, "fit", curve(lo, hi, e.Coeffs.Eval))
}

func gratings(sw power.Sweeps) []int {
	out := make([]int, 0, len(sw))
	for gr := range sw {
		out = append(out, gr)
	}
	sort.Ints(out)
	return out
}

// RatioFit plots B/A against wavelength with the fitted ratio, per grating
func RatioFit(sw power.Sweeps, c *power.Calibration) (*plot.Plot, error) {
	p := newPlot("Power ratio", "Wavelength (nm)", "B/A")
	for i, gr := range gratings(sw) {
		fit, err := c.Fit(gr)
		if err != nil {
			return nil, err
		}
		x := make([]float64, len(sw[gr]))
		y := make([]float64, len(sw[gr]))
		for j, r := range sw[gr] {
			x[j], y[j] = r.Wavelength, r.B/r.A
		}
		if err := addPoints(p, i, fmt.Sprintf("grating %d", gr), xys(x, y)); err != nil {
			return nil, err
		}
		if err := addLine(p, i, "", curve(fit.WavelengthMin, fit.WavelengthMax, fit.Ratio.Eval)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ABFit plots meter A against meter B in µW with the fitted A(B), per grating
func ABFit(sw power.Sweeps, c *power.Calibration) (*plot.Plot, error) {
	p := newPlot("A(B)", "B (µW)", "A (µW)")
	for i, gr := range gratings(sw) {
		fit, err := c.Fit(gr)
		if err != nil {
			return nil, err
		}
		x := make([]float64, len(sw[gr]))
		y := make([]float64, len(sw[gr]))
		for j, r := range sw[gr] {
			x[j], y[j] = r.B*power.MicroWatt, r.A*power.MicroWatt
		}
		if err := addPoints(p, i, fmt.Sprintf("grating %d", gr), xys(x, y)); err != nil {
			return nil, err
		}
		if err := addLine(p, i, "", curve(fit.PowerBMin, fit.PowerBMax, fit.Absolute.Eval)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Efficiency plots both meters against wavelength, per grating, which is
// the monochromator's throughput curve
func Efficiency(sw power.Sweeps) (*plot.Plot, error) {
	p := newPlot("Monochromator efficiency", "Wavelength (nm)", "Power (µW)")
	for i, gr := range gratings(sw) {
		x := make([]float64, len(sw[gr]))
		a := make([]float64, len(sw[gr]))
		b := make([]float64, len(sw[gr]))
		for j, r := range sw[gr] {
			x[j], a[j], b[j] = r.Wavelength, r.A*power.MicroWatt, r.B*power.MicroWatt
		}
		if err := addLine(p, 2*i, fmt.Sprintf("A grating %d", gr), xys(x, a)); err != nil {
			return nil, err
		}
		if err := addLine(p, 2*i+1, fmt.Sprintf("B grating %d", gr), xys(x, b)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// WritePNG renders p as a PNG
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Save renders p to path; the format follows the extension
func Save(p *plot.Plot, path string) error {
	return p.Save(Width, Height, path)
}
