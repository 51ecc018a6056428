package record

import (
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/bands"
	"github.com/3cs/benchcal/mathx"
)

// Device is a file as the spectrometer writes it: its own header, three
// blank lines and the data block
type Device struct {
	Samples []Sample

	header []string
	data   block
	layout layout
}

// ParseDevice decodes a device-native spectrometer file
func ParseDevice(data []byte) (*Device, error) {
	lines, lo := splitLines(data)
	if len(lines) < DeviceDataStart {
		return nil, malformed(-1, "%d lines, spectrometer header alone needs %d", len(lines), DeviceDataStart)
	}
	if err := validateInstrument(lines, 0); err != nil {
		return nil, err
	}
	blk, err := parseBlock(lines[DeviceDataStart:], DeviceDataStart, 2, " ")
	if err != nil {
		return nil, err
	}
	d := &Device{
		header: append([]string(nil), lines[:DeviceDataStart]...),
		data:   blk,
		layout: lo,
	}
	d.Samples = make([]Sample, len(blk.parsed))
	for i, row := range blk.parsed {
		d.Samples[i] = Sample{X: row[0], Y: row[1]}
	}
	return d, nil
}

// ReadDevice parses the device-native file at path
func ReadDevice(path string) (*Device, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := ParseDevice(b)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return d, nil
}

// NewDevice builds a device-native file from instrument header values,
// given in InstrumentFields order, and samples.  Values beyond the header
// length are ignored and missing ones are left empty.
func NewDevice(values []string, samples []Sample) *Device {
	header := make([]string, 0, DeviceDataStart)
	for i, name := range InstrumentFields {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		switch {
		case name == FieldSpectrographHeader:
			header = append(header, name)
		case v == "":
			header = append(header, name+":")
		default:
			header = append(header, name+": "+v)
		}
	}
	for i := 0; i < InstrumentBlankLines; i++ {
		header = append(header, "")
	}
	return &Device{
		Samples: append([]Sample(nil), samples...),
		header:  header,
		data:    block{delim: "\t"},
		layout:  defaultLayout,
	}
}

func (d *Device) dataLines() []string {
	rows := make([][]float64, len(d.Samples))
	for i, s := range d.Samples {
		rows[i] = []float64{s.X, s.Y}
	}
	return d.data.format(rows)
}

// Serialize encodes the device-native layout
func (d *Device) Serialize() []byte {
	lines := append(append([]string(nil), d.header...), d.dataLines()...)
	return d.layout.join(lines)
}

// Bench is the metadata the bench software knows about an exposure
type Bench struct {
	// Link is the path the merged record is saved to
	Link string

	// Baseline marks a closed-shutter exposure; the power meter fields are
	// written as NA
	Baseline bool

	// PowerReading is the meter B reading in W
	PowerReading float64

	// PowerUnit is the unit meter B reports in
	PowerUnit string

	// PowerCount is the meter's averaging count
	PowerCount int

	// PowerWavelength is the wavelength meter B is set to, in nm
	PowerWavelength float64

	// State is the filter and grating configuration
	State bands.HardwareState

	// MonoWavelength is the monochromator wavelength in nm, written rounded
	// to 0.1 nm
	MonoWavelength float64
}

// Lines renders the bench header block, separator included
func (b Bench) Lines() []string {
	pm := []string{NA, NA, NA, NA}
	if !b.Baseline {
		pm = []string{
			mathx.Repr(b.PowerReading),
			b.PowerUnit,
			strconv.Itoa(b.PowerCount),
			mathx.Repr(b.PowerWavelength),
		}
	}
	values := []string{
		b.Link,
		pm[0], pm[1], pm[2], pm[3],
		strconv.Itoa(b.State.ShortPass),
		strconv.Itoa(b.State.LongPass),
		strconv.Itoa(b.State.LongPass2),
		strconv.Itoa(b.State.MonoGrating),
		mathx.Repr(mathx.Round(b.MonoWavelength, 0.1)),
		strconv.Itoa(b.State.SpectroGrating),
	}
	out := make([]string, 0, BenchSeparator+1)
	for i, name := range BenchFields {
		out = append(out, name+": "+values[i])
	}
	return append(out, "")
}

// Merge prepends the bench header to a device-native file, producing a
// measurement record.  The device's line endings and data spellings are kept.
func Merge(b Bench, d *Device) (*Record, error) {
	lines := append(b.Lines(), d.header...)
	lines = append(lines, d.dataLines()...)
	r, err := Parse(d.layout.join(lines))
	if err != nil {
		return nil, errors.Wrap(err, "merging bench header")
	}
	r.Source = b.Link
	return r, nil
}
