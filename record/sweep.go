package record

import (
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/mathx"
)

// SweepRow is one power sweep reading: the monochromator wavelength (nm) and
// the readings of meters A and B (W)
type SweepRow struct {
	Wavelength float64
	A          float64
	B          float64
}

// Sweep is a power sweep file for one monochromator grating
type Sweep struct {
	// Date is the free text timestamp on the first line
	Date string

	// Grating is the monochromator grating the sweep was taken with
	Grating int

	Rows []SweepRow

	header []string
	data   block
	layout layout
}

// NewSweep starts an empty sweep file
func NewSweep(date string, grating int) *Sweep {
	return &Sweep{
		Date:    date,
		Grating: grating,
		data:    block{delim: ";"},
		layout:  defaultLayout,
	}
}

// ParseSweep decodes a power sweep file.  The grating line may be named
// Grating or Mono_grating.
func ParseSweep(data []byte) (*Sweep, error) {
	lines, lo := splitLines(data)
	if len(lines) < SweepDataStart {
		return nil, malformed(-1, "%d lines, sweep header needs %d", len(lines), SweepDataStart)
	}
	name, date := headerLine(lines[0])
	if name != SweepFieldDate {
		return nil, malformed(0, "want field %q, got %q", SweepFieldDate, name)
	}
	name, gr := headerLine(lines[1])
	if name != SweepFieldGrating && name != sweepFieldGratingAlt {
		return nil, malformed(1, "want field %q, got %q", SweepFieldGrating, name)
	}
	grating, err := parseInt(gr)
	if err != nil {
		return nil, malformed(1, "grating: %v", err)
	}
	if !isBlank(lines[2]) {
		return nil, malformed(2, "want blank line, got %q", lines[2])
	}
	blk, err := parseBlock(lines[SweepDataStart:], SweepDataStart, SweepColumns, ";")
	if err != nil {
		return nil, err
	}
	s := &Sweep{
		Date:    date,
		Grating: grating,
		header:  append([]string(nil), lines[:SweepDataStart]...),
		data:    blk,
		layout:  lo,
	}
	s.Rows = make([]SweepRow, len(blk.parsed))
	for i, row := range blk.parsed {
		s.Rows[i] = SweepRow{Wavelength: row[0], A: row[1], B: row[2]}
	}
	return s, nil
}

// ReadSweep parses the power sweep file at path
func ReadSweep(path string) (*Sweep, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseSweep(b)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return s, nil
}

// Add appends a reading; the wavelength is rounded to 0.1 nm
func (s *Sweep) Add(wl, a, b float64) {
	s.Rows = append(s.Rows, SweepRow{Wavelength: mathx.Round(wl, 0.1), A: a, B: b})
}

func (s *Sweep) headerLines() []string {
	date := SweepFieldDate + ": " + s.Date
	grating := SweepFieldGrating + ": " + strconv.Itoa(s.Grating)
	if len(s.header) == SweepDataStart {
		// keep the original spelling when the values were not touched
		if n, v := headerLine(s.header[0]); n == SweepFieldDate && v == s.Date {
			date = s.header[0]
		}
		if _, v := headerLine(s.header[1]); sameInt(v, s.Grating) {
			grating = s.header[1]
		}
		return []string{date, grating, s.header[2]}
	}
	return []string{date, grating, ""}
}

// Serialize encodes the sweep file layout
func (s *Sweep) Serialize() []byte {
	rows := make([][]float64, len(s.Rows))
	for i, r := range s.Rows {
		rows[i] = []float64{r.Wavelength, r.A, r.B}
	}
	return s.layout.join(append(s.headerLines(), s.data.format(rows)...))
}

// WriteFile serializes the sweep to a new file at path.  An existing file
// is never overwritten.
func (s *Sweep) WriteFile(path string) error {
	return writeNew(path, s.Serialize())
}

func sameInt(s string, i int) bool {
	v, err := parseInt(s)
	return err == nil && v == i
}
