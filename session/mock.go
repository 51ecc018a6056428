package session

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/record"
)

// Command is one write the mock received
type Command struct {
	Property Property
	Value    interface{}
}

func (c Command) String() string {
	return fmt.Sprintf("%s=%v", c.Property, c.Value)
}

// Mock is an in-memory bench.  Its spectrometer sees a dark level that
// depends only on the exposure time and grating, plus a line at the
// monochromator wavelength when both shutters are open.  Meter A reads
// 2 µW scaled by the source power with a slight wavelength slope; meter B
// reads A times 0.1+1e-4·λ.
type Mock struct {
	sync.Mutex

	// Pixels is the number of spectrometer samples over 350..1050 nm
	Pixels int

	vals     map[Property]interface{}
	frame    []record.Sample
	commands []Command
	now      func() time.Time
}

// NewMock returns a mock bench in the zeroed state
func NewMock() *Mock {
	m := &Mock{
		Pixels: 200,
		now:    time.Now,
		vals: map[Property]interface{}{
			SourcePower:       100.,
			ShutterControl:    "computer",
			ShutterOn:         false,
			MonoWavelength:    250.,
			MonoGrating:       0,
			ShortPass:         6,
			LongPass:          6,
			LongPass2:         6,
			Flipper:           "down",
			FlipperB:          "down",
			SpectroExposure:   1.,
			SpectroSlit:       1000.,
			SpectroWavelength: 500.,
			SpectroGrating:    1,
			SpectroShutter:    "closed",
			SpectroSavePath:   "",
			SpectroRunning:    false,
			SpectroSaved:      false,
		},
	}
	for _, mt := range []Meter{MeterA, MeterB} {
		m.vals[mt.Wavelength()] = 250.
		m.vals[mt.Unit()] = 0
		m.vals[mt.Count()] = 1
		m.vals[mt.Power()] = 0.
	}
	return m
}

// Commands returns the writes received so far, oldest first
func (m *Mock) Commands() []Command {
	m.Lock()
	defer m.Unlock()
	return append([]Command(nil), m.commands...)
}

// ResetCommands forgets the writes received so far
func (m *Mock) ResetCommands() {
	m.Lock()
	defer m.Unlock()
	m.commands = nil
}

// Dark is the closed-shutter level at x nm for an exposure and grating
func Dark(x, exposure float64, grating int) float64 {
	return 500 + 100*exposure + 50*float64(grating) + 0.01*x
}

// MeterPower is what the mock's meters read at wl nm with the source at
// percent power
func MeterPower(wl, percent float64) (a, b float64) {
	a = 2e-6 * percent / 100 * (1 + 1e-3*(wl-500))
	return a, a * (0.1 + 1e-4*wl)
}

func inRange(p Property, v, lo, hi float64) error {
	if v < lo || v > hi {
		return errors.Wrapf(calerr.ErrOutOfRange, "%s: %v outside [%v,%v]", p, v, lo, hi)
	}
	return nil
}

func oneOf(p Property, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return errors.Wrapf(calerr.ErrOutOfRange, "%s: %q is not one of %v", p, v, allowed)
}

func validate(p Property, v interface{}) error {
	switch p {
	case SourcePower:
		return inRange(p, v.(float64), 0, 100)
	case MonoWavelength, SpectroWavelength, MeterA.Wavelength(), MeterB.Wavelength():
		return inRange(p, v.(float64), 1, 2000)
	case SpectroExposure:
		return inRange(p, v.(float64), 1e-5, 3600)
	case SpectroSlit:
		return inRange(p, v.(float64), 10, 2500)
	case ShortPass, LongPass, LongPass2:
		return inRange(p, float64(v.(int)), 1, 6)
	case MonoGrating:
		return inRange(p, float64(v.(int)), 0, 2)
	case SpectroGrating:
		return inRange(p, float64(v.(int)), 1, 3)
	case MeterA.Unit(), MeterB.Unit():
		return inRange(p, float64(v.(int)), 0, 3)
	case MeterA.Count(), MeterB.Count():
		return inRange(p, float64(v.(int)), 1, 10000)
	case ShutterControl:
		return oneOf(p, v.(string), "computer", "manual")
	case SpectroShutter:
		return oneOf(p, v.(string), "open", "closed")
	case Flipper, FlipperB:
		return oneOf(p, v.(string), "up", "down")
	case MeterA.Power(), MeterB.Power():
		return errors.Errorf("%s is read only", p)
	}
	return nil
}

func (m *Mock) get(p Property, k Kind) (interface{}, error) {
	kind, err := Lookup(p)
	if err != nil {
		return nil, err
	}
	if kind != k {
		return nil, errors.Wrapf(calerr.ErrConfiguration, "%s is a %s property, not %s", p, kind, k)
	}
	m.Lock()
	defer m.Unlock()
	switch p {
	case MeterA.Power(), MeterB.Power():
		a, b := m.meters()
		if p == MeterA.Power() {
			return a, nil
		}
		return b, nil
	case SpectroRunning, SpectroSaved:
		return false, nil
	}
	return m.vals[p], nil
}

func (m *Mock) set(p Property, k Kind, v interface{}) error {
	kind, err := Lookup(p)
	if err != nil {
		return err
	}
	if kind != k {
		return errors.Wrapf(calerr.ErrConfiguration, "%s is a %s property, not %s", p, kind, k)
	}
	if err := validate(p, v); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	m.commands = append(m.commands, Command{Property: p, Value: v})
	switch p {
	case SpectroRunning:
		if v.(bool) {
			m.expose()
		}
		return nil
	case SpectroSaved:
		if v.(bool) {
			return m.save()
		}
		return nil
	}
	m.vals[p] = v
	return nil
}

func (m *Mock) lit() bool {
	return m.vals[ShutterOn].(bool) && m.vals[ShutterControl].(string) == "computer"
}

func (m *Mock) meters() (a, b float64) {
	if !m.lit() {
		return 0, 0
	}
	return MeterPower(m.vals[MonoWavelength].(float64), m.vals[SourcePower].(float64))
}

// expose captures a frame with the current settings
func (m *Mock) expose() {
	t := m.vals[SpectroExposure].(float64)
	gr := m.vals[SpectroGrating].(int)
	mono := m.vals[MonoWavelength].(float64)
	open := m.lit() && m.vals[SpectroShutter].(string) == "open"
	amp := 5000 * t * m.vals[SourcePower].(float64) / 100
	xs := mathx.Linspace(350, 1050, m.Pixels)
	m.frame = make([]record.Sample, len(xs))
	for i, x := range xs {
		y := Dark(x, t, gr)
		if open {
			d := (x - mono) / 5
			y += amp * math.Exp(-d*d/2)
		}
		m.frame[i] = record.Sample{X: x, Y: y}
	}
}

var grooves = map[int]string{1: "150", 2: "300", 3: "1200"}

// save writes the last frame in the spectrometer's own layout
func (m *Mock) save() error {
	path := m.vals[SpectroSavePath].(string)
	if path == "" {
		return errors.Wrap(calerr.ErrConfiguration, "spectro save path is not set")
	}
	if m.frame == nil {
		return errors.New("no exposure to save")
	}
	values := map[string]string{
		record.FieldDateTime:          m.now().Format("Mon Jan 2 15:04:05 2006"),
		"Software Version":            "mock",
		record.FieldTemperature:       "-60",
		"Model":                       "MOCK-CCD",
		record.FieldExposure:          mathx.Repr(m.vals[SpectroExposure].(float64)),
		record.FieldSpectroWavelength: mathx.Repr(m.vals[SpectroWavelength].(float64)),
		record.FieldGrooveDensity:     grooves[m.vals[SpectroGrating].(int)],
		record.FieldSlitWidth:         mathx.Repr(m.vals[SpectroSlit].(float64)),
	}
	header := make([]string, len(record.InstrumentFields))
	for i, name := range record.InstrumentFields {
		header[i] = values[name]
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(record.NewDevice(header, m.frame).Serialize())
	return err
}

// GetFloat reads a float property
func (m *Mock) GetFloat(ctx context.Context, p Property) (float64, error) {
	v, err := m.get(p, Float)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// SetFloat writes a float property
func (m *Mock) SetFloat(ctx context.Context, p Property, v float64) error {
	return m.set(p, Float, v)
}

// GetInt reads an int property
func (m *Mock) GetInt(ctx context.Context, p Property) (int, error) {
	v, err := m.get(p, Int)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// SetInt writes an int property
func (m *Mock) SetInt(ctx context.Context, p Property, v int) error {
	return m.set(p, Int, v)
}

// GetString reads a string property
func (m *Mock) GetString(ctx context.Context, p Property) (string, error) {
	v, err := m.get(p, String)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// SetString writes a string property
func (m *Mock) SetString(ctx context.Context, p Property, v string) error {
	return m.set(p, String, v)
}

// GetBool reads a bool property
func (m *Mock) GetBool(ctx context.Context, p Property) (bool, error) {
	v, err := m.get(p, Bool)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// SetBool writes a bool property
func (m *Mock) SetBool(ctx context.Context, p Property, v bool) error {
	return m.set(p, Bool, v)
}
