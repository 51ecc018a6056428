/*Package session is the narrow interface benchcal drives the bench through.

The bench is a set of devices, each with named properties that can be read
and written.  Writing spectro/running triggers an exposure and returns once
it is complete; writing spectro/saved makes the spectrometer write its
device-native file to spectro/save_path.  That write is the only point where
a new raw measurement appears.

A Session carries exactly one command at a time.  HTTP talks to a device
server with the generic JSON payloads; Mock simulates the bench in memory.
*/
package session

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/bands"
	"github.com/3cs/benchcal/calerr"
)

// Kind is the value type of a property
type Kind int

const (
	// Float properties carry {"f64": x}
	Float Kind = iota
	// Int properties carry {"int": x}
	Int
	// String properties carry {"str": x}
	String
	// Bool properties carry {"bool": x}
	Bool
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	case String:
		return "string"
	case Bool:
		return "bool"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Property addresses one value on one device
type Property struct {
	Device string
	Name   string
}

func (p Property) String() string {
	return p.Device + "/" + p.Name
}

// Bench properties
var (
	SourcePower = Property{"source", "power"}

	ShutterControl = Property{"source_shutter", "control"}
	ShutterOn      = Property{"source_shutter", "on"}

	MonoWavelength = Property{"horiba", "wl"}
	MonoGrating    = Property{"horiba", "gr"}

	ShortPass = Property{"spfw", "position"}
	LongPass  = Property{"lpfw", "position"}
	LongPass2 = Property{"lpfw2", "position"}

	Flipper  = Property{"flipper", "position"}
	FlipperB = Property{"flipperB", "position"}

	SpectroExposure   = Property{"spectro", "exposure"}
	SpectroSlit       = Property{"spectro", "slit_width"}
	SpectroWavelength = Property{"spectro", "wavelength"}
	SpectroGrating    = Property{"spectro", "grating"}
	SpectroShutter    = Property{"spectro", "shutter"}
	SpectroSavePath   = Property{"spectro", "save_path"}
	SpectroRunning    = Property{"spectro", "running"}
	SpectroSaved      = Property{"spectro", "saved"}
)

// Meter is one of the two reference power meters
type Meter string

const (
	// MeterA sits at the sample position during calibration
	MeterA Meter = "power_meter_a"
	// MeterB stays in the beam on a pick-off
	MeterB Meter = "power_meter_b"
)

// Wavelength is the meter's wavelength setting, nm
func (m Meter) Wavelength() Property { return Property{string(m), "wavelength"} }

// Unit is the meter's reporting unit; 0 is W
func (m Meter) Unit() Property { return Property{string(m), "unit"} }

// Count is the meter's averaging count
func (m Meter) Count() Property { return Property{string(m), "count"} }

// Power is the meter's reading
func (m Meter) Power() Property { return Property{string(m), "power"} }

// Properties lists every bench property and its kind
var Properties = map[Property]Kind{
	SourcePower:         Float,
	ShutterControl:      String,
	ShutterOn:           Bool,
	MonoWavelength:      Float,
	MonoGrating:         Int,
	ShortPass:           Int,
	LongPass:            Int,
	LongPass2:           Int,
	Flipper:             String,
	FlipperB:            String,
	SpectroExposure:     Float,
	SpectroSlit:         Float,
	SpectroWavelength:   Float,
	SpectroGrating:      Int,
	SpectroShutter:      String,
	SpectroSavePath:     String,
	SpectroRunning:      Bool,
	SpectroSaved:        Bool,
	MeterA.Wavelength(): Float,
	MeterA.Unit():       Int,
	MeterA.Count():      Int,
	MeterA.Power():      Float,
	MeterB.Wavelength(): Float,
	MeterB.Unit():       Int,
	MeterB.Count():      Int,
	MeterB.Power():      Float,
}

// Lookup returns the kind of p, failing for properties the bench does not have
func Lookup(p Property) (Kind, error) {
	k, ok := Properties[p]
	if !ok {
		return 0, errors.Wrapf(calerr.ErrConfiguration, "no bench property %s", p)
	}
	return k, nil
}

// Session reads and writes bench properties, one command at a time
type Session interface {
	GetFloat(ctx context.Context, p Property) (float64, error)
	SetFloat(ctx context.Context, p Property, v float64) error
	GetInt(ctx context.Context, p Property) (int, error)
	SetInt(ctx context.Context, p Property, v int) error
	GetString(ctx context.Context, p Property) (string, error)
	SetString(ctx context.Context, p Property, v string) error
	GetBool(ctx context.Context, p Property) (bool, error)
	SetBool(ctx context.Context, p Property, v bool) error
}

// FieldProperty is the property a HardwareState field is written to
func FieldProperty(f bands.Field) Property {
	switch f {
	case bands.FieldSpectroGrating:
		return SpectroGrating
	case bands.FieldShortPass:
		return ShortPass
	case bands.FieldLongPass:
		return LongPass
	case bands.FieldLongPass2:
		return LongPass2
	default:
		return MonoGrating
	}
}

// Apply writes each change, in order
func Apply(ctx context.Context, s Session, changes []bands.Change) error {
	for _, c := range changes {
		p := FieldProperty(c.Field)
		if err := s.SetInt(ctx, p, c.To); err != nil {
			return errors.Wrapf(err, "setting %s to %d", p, c.To)
		}
	}
	return nil
}

// ReadState reads the filter and grating configuration off the bench
func ReadState(ctx context.Context, s Session) (bands.HardwareState, error) {
	var st bands.HardwareState
	for _, f := range bands.Fields() {
		v, err := s.GetInt(ctx, FieldProperty(f))
		if err != nil {
			return st, err
		}
		switch f {
		case bands.FieldSpectroGrating:
			st.SpectroGrating = v
		case bands.FieldShortPass:
			st.ShortPass = v
		case bands.FieldLongPass:
			st.LongPass = v
		case bands.FieldLongPass2:
			st.LongPass2 = v
		case bands.FieldMonoGrating:
			st.MonoGrating = v
		}
	}
	return st, nil
}

// Expose takes an exposure and has the spectrometer save it to path
func Expose(ctx context.Context, s Session, path string) error {
	if err := s.SetBool(ctx, SpectroRunning, true); err != nil {
		return errors.Wrap(err, "exposing")
	}
	if err := s.SetString(ctx, SpectroSavePath, path); err != nil {
		return err
	}
	return errors.Wrap(s.SetBool(ctx, SpectroSaved, true), "saving exposure")
}

// Reading is what a power meter reports
type Reading struct {
	Power      float64
	Unit       int
	Count      int
	Wavelength float64
}

// ReadMeter reads a meter's power and settings
func ReadMeter(ctx context.Context, s Session, m Meter) (Reading, error) {
	var (
		r   Reading
		err error
	)
	if r.Power, err = s.GetFloat(ctx, m.Power()); err != nil {
		return r, err
	}
	if r.Unit, err = s.GetInt(ctx, m.Unit()); err != nil {
		return r, err
	}
	if r.Count, err = s.GetInt(ctx, m.Count()); err != nil {
		return r, err
	}
	if r.Wavelength, err = s.GetFloat(ctx, m.Wavelength()); err != nil {
		return r, err
	}
	return r, nil
}
