/*Package noise models the spectrometer's electronic (dark) baseline.

A closed-shutter exposure is taken for every (exposure time, spectrometer
grating) pair used in a run.  Each is fitted with a degree 4 polynomial of
counts against wavelength; the fits form a Profile, keyed by Key.  Subtract
looks the key up from the raw record's own metadata and removes the fitted
baseline.  A missing key is an error; there is no interpolation between
exposures or gratings.
*/
package noise

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/record"
)

// MinSamples is the fewest data rows a closed-shutter exposure may have
const MinSamples = mathx.Degree + 1

// Key identifies one noise profile entry
type Key struct {
	// Exposure is the exposure time in seconds
	Exposure float64

	// Grating is the spectrometer grating
	Grating int
}

// String renders the dictionary key, e.g. "1.0sec_1gr"
func (k Key) String() string {
	return mathx.Repr(k.Exposure) + "sec_" + strconv.Itoa(k.Grating) + "gr"
}

var keyRe = regexp.MustCompile(`^(.+)sec_(-?\d+)gr$`)

// ParseKey is the inverse of Key.String
func ParseKey(s string) (Key, error) {
	m := keyRe.FindStringSubmatch(s)
	if m == nil {
		return Key{}, errors.Wrapf(calerr.ErrCalibrationKey, "%q is not a noise key", s)
	}
	exp, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsNaN(exp) || math.IsInf(exp, 0) {
		return Key{}, errors.Wrapf(calerr.ErrCalibrationKey, "%q has a bad exposure", s)
	}
	gr, err := strconv.Atoi(m[2])
	if err != nil {
		return Key{}, errors.Wrapf(calerr.ErrCalibrationKey, "%q has a bad grating", s)
	}
	return Key{Exposure: exp, Grating: gr}, nil
}

// KeyOf reads the key from a record's metadata: the exposure from the
// spectrometer header and the grating from the bench header
func KeyOf(r *record.Record) (Key, error) {
	exp, err := r.Exposure()
	if err != nil {
		return Key{}, err
	}
	gr, err := r.SpectroGrating()
	if err != nil {
		return Key{}, err
	}
	return Key{Exposure: exp, Grating: gr}, nil
}

// Entry is one fitted baseline
type Entry struct {
	// Coeffs are the polynomial coefficients, highest order first
	Coeffs mathx.Poly4

	// Min and Max bound the x values the fit was made over.  They are only
	// meaningful when HasDomain is set; dictionaries written by older tools
	// carry coefficients alone.
	Min, Max  float64
	HasDomain bool
}

// Covers is true when x lies inside the fitted domain, or the domain is unknown
func (e Entry) Covers(x float64) bool {
	if !e.HasDomain {
		return true
	}
	return x >= e.Min && x <= e.Max
}

// Profile is a set of fitted baselines
type Profile map[Key]Entry

// Lookup returns the entry for k
func (p Profile) Lookup(k Key) (Entry, error) {
	e, ok := p[k]
	if !ok {
		return Entry{}, errors.Wrapf(calerr.ErrCalibrationKey, "no noise profile for %s", k)
	}
	return e, nil
}

// Keys returns the profile's keys, by grating then exposure
func (p Profile) Keys() []Key {
	keys := make([]Key, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Grating != keys[j].Grating {
			return keys[i].Grating < keys[j].Grating
		}
		return keys[i].Exposure < keys[j].Exposure
	})
	return keys
}

// Fit fits one closed-shutter record
func Fit(r *record.Record) (Entry, error) {
	if len(r.Samples) < MinSamples {
		return Entry{}, errors.Wrapf(calerr.ErrMalformedRecord, "%d samples, need at least %d", len(r.Samples), MinSamples)
	}
	x, y := r.X(), r.Y()
	c, err := mathx.Fit4(x, y)
	if err != nil {
		return Entry{}, err
	}
	lo, hi := mathx.Span(x)
	return Entry{Coeffs: c, Min: lo, Max: hi, HasDomain: true}, nil
}

// Characterize builds a profile from closed-shutter records.  Any record
// that cannot be keyed or fitted, or a key seen twice, aborts the whole
// characterization.
func Characterize(records []*record.Record) (Profile, error) {
	p := make(Profile, len(records))
	seen := make(map[Key]string, len(records))
	for i, r := range records {
		name := r.Source
		if name == "" {
			name = fmt.Sprintf("record %d", i)
		}
		k, err := KeyOf(r)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		if prev, ok := seen[k]; ok {
			return nil, errors.Wrapf(calerr.ErrMalformedRecord, "%s and %s both measure %s", prev, name, k)
		}
		e, err := Fit(r)
		if err != nil {
			return nil, errors.Wrapf(err, "%s (%s)", name, k)
		}
		seen[k] = name
		p[k] = e
	}
	return p, nil
}

// Subtract removes the fitted baseline from every sample of raw.  The key is
// read from raw's metadata and returned for provenance.
func Subtract(raw *record.Record, p Profile) ([]record.Sample, Key, error) {
	k, err := KeyOf(raw)
	if err != nil {
		return nil, k, err
	}
	e, err := p.Lookup(k)
	if err != nil {
		return nil, k, err
	}
	out := make([]record.Sample, len(raw.Samples))
	for i, s := range raw.Samples {
		if !e.Covers(s.X) {
			return nil, k, errors.Wrapf(calerr.ErrOutOfRange, "x=%v outside the %s fit domain [%v, %v]", s.X, k, e.Min, e.Max)
		}
		out[i] = record.Sample{X: s.X, Y: s.Y - e.Coeffs.Eval(s.X)}
	}
	return out, k, nil
}
