/*Package record reads and writes the files the 3CS bench produces.

Three layouts exist, each a named constant set in schema.go:

	measurement file   bench header, blank, spectrometer header, 3 blanks, data (from DataStart)
	device-native file spectrometer header, 3 blanks, data (from DeviceDataStart)
	power sweep file   Date, Grating, blank, wl;A;B rows (from SweepDataStart)

Parse followed by Serialize reproduces the input byte for byte.  Header
values keep their original spelling until Set replaces them, and data rows
keep theirs unless the sample changed.
*/
package record

import (
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/bands"
	"github.com/3cs/benchcal/mathx"
)

// Sample is one (x, y) data row; x is the spectrometer wavelength in nm and
// y the detector counts, or the corrected value after the pipeline
type Sample struct {
	X float64
	Y float64
}

// Record is one measurement file: bench metadata, spectrometer metadata and
// a data block
type Record struct {
	// Source is the path the record was read from, if any
	Source string

	// Samples is the data block, in file order
	Samples []Sample

	header []string
	data   block
	layout layout
}

// Parse decodes a measurement file
func Parse(data []byte) (*Record, error) {
	lines, lo := splitLines(data)
	if len(lines) < DataStart {
		return nil, malformed(-1, "%d lines, header alone needs %d", len(lines), DataStart)
	}
	header := lines[:DataStart]
	for i, name := range BenchFields {
		ln := BenchStart + i
		n, _ := headerLine(header[ln])
		if n != name {
			return nil, malformed(ln, "want field %q, got %q", name, n)
		}
	}
	if !isBlank(header[BenchSeparator]) {
		return nil, malformed(BenchSeparator, "want blank separator, got %q", header[BenchSeparator])
	}
	if err := validateInstrument(header[InstrumentStart:], InstrumentStart); err != nil {
		return nil, err
	}
	if err := validateValues(header); err != nil {
		return nil, err
	}
	blk, err := parseBlock(lines[DataStart:], DataStart, 2, " ")
	if err != nil {
		return nil, err
	}
	r := &Record{
		header: append([]string(nil), header...),
		data:   blk,
		layout: lo,
	}
	r.Samples = make([]Sample, len(blk.parsed))
	for i, row := range blk.parsed {
		r.Samples[i] = Sample{X: row[0], Y: row[1]}
	}
	return r, nil
}

// validateInstrument checks the spectrometer header and the blank lines that
// follow it.  lines begins at the first spectrometer field, which is file
// line first.
func validateInstrument(lines []string, first int) error {
	for i, name := range InstrumentFields {
		n, _ := headerLine(lines[i])
		if n != name {
			return malformed(first+i, "want field %q, got %q", name, n)
		}
	}
	for i := 0; i < InstrumentBlankLines; i++ {
		ln := len(InstrumentFields) + i
		if !isBlank(lines[ln]) {
			return malformed(first+ln, "want blank line, got %q", lines[ln])
		}
	}
	return nil
}

// numericFields are the header fields benchcal computes with.  The meter
// fields read NA on baseline records.
var numericFields = []struct {
	name    string
	integer bool
	na      bool
}{
	{FieldPowerReading, false, true},
	{FieldPowerCount, true, true},
	{FieldPowerWavelength, false, true},
	{FieldShortPass, true, false},
	{FieldLongPass, true, false},
	{FieldLongPass2, true, false},
	{FieldMonoGrating, true, false},
	{FieldMonoWavelength, false, false},
	{FieldSpectroGrating, true, false},
	{FieldExposure, false, false},
}

func validateValues(header []string) error {
	for _, f := range numericFields {
		ln, _ := Line(f.name)
		_, v := headerLine(header[ln])
		if f.na && v == NA {
			continue
		}
		var err error
		if f.integer {
			_, err = parseInt(v)
		} else {
			_, err = strconv.ParseFloat(v, 64)
		}
		if err != nil {
			return malformed(ln, "%s: %q is not a number", f.name, v)
		}
	}
	return nil
}

// ReadFile parses the measurement file at path and records it as the Source
func ReadFile(path string) (*Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(b)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	r.Source = path
	return r, nil
}

// Serialize encodes the record in the measurement file layout
func (r *Record) Serialize() []byte {
	rows := make([][]float64, len(r.Samples))
	for i, s := range r.Samples {
		rows[i] = []float64{s.X, s.Y}
	}
	lines := append(append([]string(nil), r.header...), r.data.format(rows)...)
	return r.layout.join(lines)
}

// WriteFile serializes the record to a new file at path.  An existing file
// is never overwritten.
func (r *Record) WriteFile(path string) error {
	return writeNew(path, r.Serialize())
}

func writeNew(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Clone returns a deep copy of r
func (r *Record) Clone() *Record {
	out := *r
	out.header = append([]string(nil), r.header...)
	out.Samples = append([]Sample(nil), r.Samples...)
	return &out
}

// Header returns a copy of the metadata lines, separators included
func (r *Record) Header() []string {
	return append([]string(nil), r.header...)
}

// At returns the name and value found at a schema line
func (r *Record) At(line int) (name, value string) {
	if line < 0 || line >= len(r.header) {
		return "", ""
	}
	return headerLine(r.header[line])
}

// Value returns the raw text of the named field
func (r *Record) Value(name string) (string, error) {
	ln, ok := Line(name)
	if !ok {
		return "", malformed(-1, "no field %q in schema %s", name, Version)
	}
	_, v := headerLine(r.header[ln])
	return v, nil
}

// Float returns the named field as a float.  NA and unparsable values are
// malformed.
func (r *Record) Float(name string) (float64, error) {
	v, err := r.Value(name)
	if err != nil {
		return 0, err
	}
	ln, _ := Line(name)
	if v == NA {
		return 0, malformed(ln, "%s is %s", name, NA)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, malformed(ln, "%s: %q is not a number", name, v)
	}
	return f, nil
}

// Int returns the named field as an integer
func (r *Record) Int(name string) (int, error) {
	v, err := r.Value(name)
	if err != nil {
		return 0, err
	}
	ln, _ := Line(name)
	i, err := parseInt(v)
	if err != nil {
		return 0, malformed(ln, "%s: %v", name, err)
	}
	return i, nil
}

// Set replaces the value of the named field.  The line is rewritten as
// "name: value".
func (r *Record) Set(name, value string) error {
	ln, ok := Line(name)
	if !ok {
		return malformed(-1, "no field %q in schema %s", name, Version)
	}
	r.header[ln] = name + ": " + value
	return nil
}

// SetFloat replaces the named field with f
func (r *Record) SetFloat(name string, f float64) error {
	return r.Set(name, mathx.Repr(f))
}

// Baseline is true for closed-shutter records, which carry NA power readings
func (r *Record) Baseline() bool {
	v, _ := r.Value(FieldPowerReading)
	return v == NA
}

// Exposure is the exposure time in seconds
func (r *Record) Exposure() (float64, error) {
	return r.Float(FieldExposure)
}

// PowerReading is the meter B reading in W
func (r *Record) PowerReading() (float64, error) {
	return r.Float(FieldPowerReading)
}

// PowerWavelength is the wavelength meter B was set to, in nm
func (r *Record) PowerWavelength() (float64, error) {
	return r.Float(FieldPowerWavelength)
}

// MonoWavelength is the monochromator (excitation) wavelength in nm
func (r *Record) MonoWavelength() (float64, error) {
	return r.Float(FieldMonoWavelength)
}

// MonoGrating is the monochromator grating
func (r *Record) MonoGrating() (int, error) {
	return r.Int(FieldMonoGrating)
}

// SpectroGrating is the spectrometer grating
func (r *Record) SpectroGrating() (int, error) {
	return r.Int(FieldSpectroGrating)
}

// State is the hardware configuration recorded in the bench header
func (r *Record) State() (bands.HardwareState, error) {
	var (
		s   bands.HardwareState
		err error
	)
	fields := []struct {
		name string
		dst  *int
	}{
		{FieldSpectroGrating, &s.SpectroGrating},
		{FieldShortPass, &s.ShortPass},
		{FieldLongPass, &s.LongPass},
		{FieldLongPass2, &s.LongPass2},
		{FieldMonoGrating, &s.MonoGrating},
	}
	for _, f := range fields {
		if *f.dst, err = r.Int(f.name); err != nil {
			return s, err
		}
	}
	return s, nil
}

// X returns the x column of the data block
func (r *Record) X() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.X
	}
	return out
}

// Y returns the y column of the data block
func (r *Record) Y() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Y
	}
	return out
}
