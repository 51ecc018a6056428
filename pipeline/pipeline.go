/*Package pipeline turns a raw measurement into a photon-normalized spectrum.

A Spectrum moves through RAW, NOISE_SUBTRACTED, POWER_NORMALIZED and DONE,
one model per transition and never backwards.  Every step is a pure
function of the record and the calibrations; running the pipeline twice on
the same inputs gives identical output.
*/
package pipeline

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/noise"
	"github.com/3cs/benchcal/power"
	"github.com/3cs/benchcal/record"
)

// State is the stage a Spectrum has reached
type State int

const (
	// Raw is the spectrum as read from disk
	Raw State = iota
	// NoiseSubtracted has had the electronic baseline removed
	NoiseSubtracted
	// PowerNormalized is divided by the incident photon count
	PowerNormalized
	// Done carries provenance and is ready to be written
	Done
)

func (s State) String() string {
	switch s {
	case Raw:
		return "RAW"
	case NoiseSubtracted:
		return "NOISE_SUBTRACTED"
	case PowerNormalized:
		return "POWER_NORMALIZED"
	case Done:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Provenance records which inputs produced a spectrum
type Provenance struct {
	// RawSource is the path of the raw measurement
	RawSource string

	// NoiseKey is the noise profile entry subtracted
	NoiseKey string

	// NoiseSource is where the noise profile was loaded from, if known
	NoiseSource string

	// PowerCalibrationID identifies the power calibration used
	PowerCalibrationID string
}

// Spectrum is a spectrum at some stage of correction
type Spectrum struct {
	Wavelengths []float64
	Values      []float64
	State       State
	Provenance  Provenance

	// Excitation is the monochromator wavelength, nm
	Excitation float64

	// Exposure is the exposure time, s
	Exposure float64

	// SamplePower is the meter B reading, W
	SamplePower float64

	// TotalPower is the power incident on the sample, W
	TotalPower float64

	// Photons is the incident photon count over the exposure
	Photons float64
}

func (s *Spectrum) advance(to State) {
	if to != s.State+1 {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", s.State, to))
	}
	s.State = to
}

// metadata is what the pipeline reads from the raw record
type metadata struct {
	excitation   float64
	pmWavelength float64
	exposure     float64
	power        float64
	monoGrating  int
}

func readMetadata(raw *record.Record) (metadata, error) {
	var (
		m   metadata
		err error
	)
	if m.excitation, err = raw.MonoWavelength(); err != nil {
		return m, err
	}
	if m.pmWavelength, err = raw.PowerWavelength(); err != nil {
		return m, err
	}
	if m.exposure, err = raw.Exposure(); err != nil {
		return m, err
	}
	if m.power, err = raw.PowerReading(); err != nil {
		return m, err
	}
	if m.monoGrating, err = raw.MonoGrating(); err != nil {
		return m, err
	}
	if _, err = raw.SpectroGrating(); err != nil {
		return m, err
	}
	if m.excitation != m.pmWavelength {
		return m, errors.Wrapf(calerr.ErrMetadataInconsistency,
			"monochromator at %v nm, power meter at %v nm", m.excitation, m.pmWavelength)
	}
	return m, nil
}

// Run corrects raw with the given calibrations
func Run(raw *record.Record, profile noise.Profile, cal *power.Calibration) (Spectrum, error) {
	return run(raw, profile, cal, nil)
}

// run is Run with a hook called on the noise-subtracted spectrum
func run(raw *record.Record, profile noise.Profile, cal *power.Calibration, onSubtracted func(Spectrum)) (Spectrum, error) {
	sp := Spectrum{State: Raw, Provenance: Provenance{RawSource: raw.Source}}
	m, err := readMetadata(raw)
	if err != nil {
		return sp, err
	}
	sp.Excitation, sp.Exposure, sp.SamplePower = m.excitation, m.exposure, m.power

	sub, key, err := noise.Subtract(raw, profile)
	if err != nil {
		return sp, err
	}
	sp.Provenance.NoiseKey = key.String()
	sp.Wavelengths = make([]float64, len(sub))
	sp.Values = make([]float64, len(sub))
	for i, s := range sub {
		sp.Wavelengths[i], sp.Values[i] = s.X, s.Y
	}
	sp.advance(NoiseSubtracted)
	if onSubtracted != nil {
		onSubtracted(sp.copy())
	}

	total, err := power.Correct(m.power, m.excitation, m.monoGrating, cal)
	if err != nil {
		return sp, err
	}
	photons := power.PhotonCount(total, m.exposure, m.excitation)
	if !(photons > 0) {
		return sp, errors.Wrapf(calerr.ErrOutOfRange, "photon count %v is not positive", photons)
	}
	sp.TotalPower, sp.Photons = total, photons
	for i := range sp.Values {
		sp.Values[i] /= photons
	}
	sp.advance(PowerNormalized)

	sp.Provenance.PowerCalibrationID = cal.ID
	sp.advance(Done)
	return sp, nil
}

func (s Spectrum) copy() Spectrum {
	s.Wavelengths = append([]float64(nil), s.Wavelengths...)
	s.Values = append([]float64(nil), s.Values...)
	return s
}
