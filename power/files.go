package power

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/record"
)

// File names inside a power calibration run directory
const (
	CalibrationFile = "calibration.json"
	RatioFile       = "pow_ratio.txt"
	ABFile          = "AB.txt"
	EfficiencyFile  = "pow_eff.txt"
)

// SweepFile is the name of grating gr's sweep file
func SweepFile(gr int) string {
	return fmt.Sprintf("pow_gr%d.txt", gr)
}

func (c *Calibration) gratings() []int {
	out := make([]int, 0, len(c.Gratings))
	for g := range c.Gratings {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

func writeCoefficients(w io.Writer, date string, rows []mathx.Poly4) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n\n", date)
	for i, p := range rows {
		strs := make([]string, len(p))
		for j, c := range p {
			strs[j] = mathx.Repr(c)
		}
		if i > 0 {
			bw.WriteString("\n")
		}
		bw.WriteString(strings.Join(strs, ";"))
	}
	return bw.Flush()
}

// WriteRatio writes the ratio coefficients, one row per grating in
// ascending order, below a date line and a blank line
func (c *Calibration) WriteRatio(w io.Writer, date string) error {
	rows := []mathx.Poly4{}
	for _, g := range c.gratings() {
		rows = append(rows, c.Gratings[g].Ratio)
	}
	return writeCoefficients(w, date, rows)
}

// WriteAB writes the A(B) coefficients in the ratio file layout
func (c *Calibration) WriteAB(w io.Writer, date string) error {
	rows := []mathx.Poly4{}
	for _, g := range c.gratings() {
		rows = append(rows, c.Gratings[g].Absolute)
	}
	return writeCoefficients(w, date, rows)
}

// ReadCoefficients reads a ratio or A(B) file.  Row i is grating i.
func ReadCoefficients(r io.Reader) ([]mathx.Poly4, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	if len(lines) < 3 {
		return nil, errors.Wrap(calerr.ErrMalformedRecord, "coefficient file has no rows")
	}
	var out []mathx.Poly4
	for i, l := range lines[2:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		parts := strings.Split(l, ";")
		if len(parts) != len(mathx.Poly4{}) {
			return nil, errors.Wrapf(calerr.ErrMalformedRecord, "line %d: %d coefficients", i+2, len(parts))
		}
		var p mathx.Poly4
		for j, s := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, errors.Wrapf(calerr.ErrMalformedRecord, "line %d: %q", i+2, s)
			}
			p[j] = f
		}
		out = append(out, p)
	}
	return out, nil
}

// WriteEfficiency writes the meter readings in µW, one column pair per
// grating, which shows the monochromator's throughput per grating
func WriteEfficiency(w io.Writer, date string, sweeps Sweeps) error {
	grs := make([]int, 0, len(sweeps))
	for g := range sweeps {
		grs = append(grs, g)
	}
	sort.Ints(grs)
	n := -1
	cols := []string{}
	for _, g := range grs {
		if n >= 0 && len(sweeps[g]) != n {
			return errors.Wrapf(calerr.ErrConfiguration, "grating %d has %d readings, others %d", g, len(sweeps[g]), n)
		}
		n = len(sweeps[g])
		cols = append(cols, fmt.Sprintf("pm_A_gr%d", g), fmt.Sprintf("pm_B_gr%d", g))
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n%s\n", date, strings.Join(cols, ";"))
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(cols))
		for _, g := range grs {
			r := sweeps[g][i]
			row = append(row, mathx.Repr(r.A*MicroWatt), mathx.Repr(r.B*MicroWatt))
		}
		bw.WriteString(strings.Join(row, ";") + "\n")
	}
	return bw.Flush()
}

// SweepRecord renders a grating's readings as a sweep file
func SweepRecord(date string, grating int, readings []Reading) *record.Sweep {
	s := record.NewSweep(date, grating)
	for _, r := range readings {
		s.Add(r.Wavelength, r.A, r.B)
	}
	return s
}

// Save writes the calibration, its text companions and the sweep files into
// dir.  Nothing already present is overwritten.
func Save(dir, date string, c *Calibration, sweeps Sweeps) error {
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{CalibrationFile, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(c)
		}},
		{RatioFile, func(w io.Writer) error { return c.WriteRatio(w, date) }},
		{ABFile, func(w io.Writer) error { return c.WriteAB(w, date) }},
		{EfficiencyFile, func(w io.Writer) error { return WriteEfficiency(w, date, sweeps) }},
	}
	for gr, readings := range sweeps {
		s := SweepRecord(date, gr, readings)
		files = append(files, struct {
			name  string
			write func(io.Writer) error
		}{SweepFile(gr), func(w io.Writer) error {
			_, err := w.Write(s.Serialize())
			return err
		}})
	}
	for _, f := range files {
		if err := writeNew(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the calibration in dir.  Directories written before
// calibration.json existed are recalibrated from their sweep files, with id
// taken from the directory name.
func Load(dir string) (*Calibration, error) {
	path := filepath.Join(dir, CalibrationFile)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return loadSweeps(dir)
	} else if err != nil {
		return nil, err
	}
	c := &Calibration{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(calerr.ErrMalformedRecord, "%s: %v", path, err)
	}
	for gr, g := range c.Gratings {
		if !g.Ratio.Valid() || !g.Absolute.Valid() {
			return nil, errors.Wrapf(calerr.ErrMalformedRecord, "%s: grating %d has non finite coefficients", path, gr)
		}
	}
	return c, nil
}

func loadSweeps(dir string) (*Calibration, error) {
	sweeps := Sweeps{}
	for _, gr := range Gratings {
		path := filepath.Join(dir, SweepFile(gr))
		s, err := record.ReadSweep(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, err
		}
		sweeps[s.Grating] = FromSweep(s)
	}
	if len(sweeps) == 0 {
		return nil, errors.Wrapf(calerr.ErrCalibrationKey, "%s holds no power calibration", dir)
	}
	return Calibrate(filepath.Base(dir), sweeps)
}

func writeNew(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.Wrap(err, path)
	}
	return f.Close()
}
