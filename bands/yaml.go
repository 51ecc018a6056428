package bands

import (
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/3cs/benchcal/calerr"
)

// fileBand is the on-disk form of a Band.  An omitted low or high means the
// band is unbounded on that side.
type fileBand struct {
	Low   *float64      `yaml:"low,omitempty"`
	High  *float64      `yaml:"high,omitempty"`
	State HardwareState `yaml:"state"`
}

type fileTable struct {
	Bands []fileBand `yaml:"bands"`
}

// Decode reads a YAML band table from r and validates it
func Decode(r io.Reader) (*Table, error) {
	ft := fileTable{}
	if err := yaml.NewDecoder(r).Decode(&ft); err != nil {
		return nil, errors.Wrapf(calerr.ErrConfiguration, "decoding band table: %v", err)
	}
	bs := make([]Band, len(ft.Bands))
	for i, fb := range ft.Bands {
		b := Band{Low: math.Inf(-1), High: math.Inf(1), State: fb.State}
		if fb.Low != nil {
			b.Low = *fb.Low
		}
		if fb.High != nil {
			b.High = *fb.High
		}
		bs[i] = b
	}
	return NewTable(bs)
}

// LoadYAML loads and validates the band table at path
func LoadYAML(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "band table %s", path)
	}
	return t, nil
}

// Encode writes the table as YAML, leaving unbounded ends out
func (t *Table) Encode(w io.Writer) error {
	ft := fileTable{Bands: make([]fileBand, len(t.bands))}
	for i, b := range t.bands {
		fb := fileBand{State: b.State}
		if !math.IsInf(b.Low, -1) {
			lo := b.Low
			fb.Low = &lo
		}
		if !math.IsInf(b.High, 1) {
			hi := b.High
			fb.High = &hi
		}
		ft.Bands[i] = fb
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(ft)
}
