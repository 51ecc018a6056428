package pipeline

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/record"
)

// Provenance block of a corrected text file, written after the raw
// metadata (less its last blank line)
const (
	LineRawSource   = "Path to raw measurement"
	LineNoiseSource = "Path to noise measurement"
	LineNoiseKey    = "Noise key"
	LinePowerID     = "Power calibration"
	LineTotalPower  = "Total power (W)"
	LinePhotons     = "Photon count"
	LineState       = "State"

	provenanceStart = record.DataStart - 1

	// CorrectedDataStart is the first data line of a corrected text file
	CorrectedDataStart = provenanceStart + 8
)

// WriteText writes the spectrum below raw's metadata block and a provenance
// block.  raw may be nil, in which case the metadata lines are left blank.
func WriteText(w io.Writer, raw *record.Record, sp Spectrum) error {
	bw := bufio.NewWriter(w)
	hdr := make([]string, record.DataStart)
	if raw != nil {
		hdr = raw.Header()
	}
	for _, l := range hdr[:provenanceStart] {
		bw.WriteString(l + "\n")
	}
	for _, kv := range [][2]string{
		{LineRawSource, sp.Provenance.RawSource},
		{LineNoiseSource, sp.Provenance.NoiseSource},
		{LineNoiseKey, sp.Provenance.NoiseKey},
		{LinePowerID, sp.Provenance.PowerCalibrationID},
		{LineTotalPower, mathx.Repr(sp.TotalPower)},
		{LinePhotons, mathx.Repr(sp.Photons)},
		{LineState, sp.State.String()},
	} {
		bw.WriteString(kv[0] + ": " + kv[1] + "\n")
	}
	bw.WriteString("\n")
	for i := range sp.Wavelengths {
		bw.WriteString(mathx.Repr(sp.Wavelengths[i]) + " " + mathx.Repr(sp.Values[i]) + "\n")
	}
	return bw.Flush()
}

// ReadText reads a corrected text file back.  Excitation and exposure are
// taken from the raw metadata block.
func ReadText(path string) (Spectrum, error) {
	sp := Spectrum{}
	b, err := os.ReadFile(path)
	if err != nil {
		return sp, err
	}
	lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	if len(lines) < CorrectedDataStart {
		return sp, errors.Wrapf(calerr.ErrMalformedRecord, "%s: %d lines, corrected header needs %d", path, len(lines), CorrectedDataStart)
	}
	field := func(line int, name string) (string, error) {
		l := lines[line]
		if !strings.HasPrefix(l, name+":") {
			return "", errors.Wrapf(calerr.ErrMalformedRecord, "%s: line %d: want %q", path, line, name)
		}
		return strings.TrimSpace(strings.TrimPrefix(l, name+":")), nil
	}
	number := func(line int, name string) (float64, error) {
		v, err := field(line, name)
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.Wrapf(calerr.ErrMalformedRecord, "%s: line %d: %q", path, line, v)
		}
		return f, nil
	}
	p := &sp.Provenance
	strs := []struct {
		name string
		dst  *string
	}{
		{LineRawSource, &p.RawSource},
		{LineNoiseSource, &p.NoiseSource},
		{LineNoiseKey, &p.NoiseKey},
		{LinePowerID, &p.PowerCalibrationID},
	}
	for i, s := range strs {
		if *s.dst, err = field(provenanceStart+i, s.name); err != nil {
			return sp, err
		}
	}
	if sp.TotalPower, err = number(provenanceStart+4, LineTotalPower); err != nil {
		return sp, err
	}
	if sp.Photons, err = number(provenanceStart+5, LinePhotons); err != nil {
		return sp, err
	}
	st, err := field(provenanceStart+6, LineState)
	if err != nil {
		return sp, err
	}
	for s := Raw; s <= Done; s++ {
		if s.String() == st {
			sp.State = s
		}
	}
	if exc, err := number(record.BenchStart+9, record.FieldMonoWavelength); err == nil {
		sp.Excitation = exc
	}
	for i, l := range lines[CorrectedDataStart:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		parts := strings.Fields(l)
		if len(parts) != 2 {
			return sp, errors.Wrapf(calerr.ErrMalformedRecord, "%s: line %d: want 2 columns", path, CorrectedDataStart+i)
		}
		x, errx := strconv.ParseFloat(parts[0], 64)
		y, erry := strconv.ParseFloat(parts[1], 64)
		if errx != nil || erry != nil {
			return sp, errors.Wrapf(calerr.ErrMalformedRecord, "%s: line %d: not a number", path, CorrectedDataStart+i)
		}
		sp.Wavelengths = append(sp.Wavelengths, x)
		sp.Values = append(sp.Values, y)
	}
	return sp, nil
}

// fitsString fits a value into a FITS card, keeping the tail of long paths
func fitsString(s string) string {
	const max = 68
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

// WriteFITS writes the spectrum as a 2 x N float64 image: row 0 holds the
// wavelengths and row 1 the values.  Provenance goes in the header.
func WriteFITS(w io.Writer, sp Spectrum) error {
	n := len(sp.Wavelengths)
	if n == 0 || n != len(sp.Values) {
		return errors.Errorf("cannot write a spectrum of %d wavelengths and %d values to FITS", n, len(sp.Values))
	}
	metadata := []fitsio.Card{
		{Name: "RAWSRC", Value: fitsString(sp.Provenance.RawSource), Comment: "raw measurement"},
		{Name: "NOISEKEY", Value: sp.Provenance.NoiseKey, Comment: "noise profile entry"},
		{Name: "POWCAL", Value: fitsString(sp.Provenance.PowerCalibrationID), Comment: "power calibration id"},
		{Name: "STATE", Value: sp.State.String()},
		{Name: "EXCWL", Value: sp.Excitation, Comment: "excitation wavelength, nm"},
		{Name: "EXPOSURE", Value: sp.Exposure, Comment: "exposure time, s"},
		{Name: "PMREAD", Value: sp.SamplePower, Comment: "meter B reading, W"},
		{Name: "TOTPOW", Value: sp.TotalPower, Comment: "incident power, W"},
		{Name: "PHOTONS", Value: sp.Photons, Comment: "incident photon count"},
		{Name: "SCHEMA", Value: record.Version, Comment: "measurement file layout"},
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-64, []int{n, 2})
	defer im.Close()
	if err := im.Header().Append(metadata...); err != nil {
		return err
	}
	data := make([]float64, 0, 2*n)
	data = append(data, sp.Wavelengths...)
	data = append(data, sp.Values...)
	if err := im.Write(data); err != nil {
		return err
	}
	return fits.Write(im)
}
