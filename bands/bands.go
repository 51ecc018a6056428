/*Package bands maps an excitation wavelength to the hardware configuration
the bench must be in to measure at it.

The mapping is a single ordered table of half-open wavelength bands
[Low, High) covering the whole real line.  Resolve is stateless; the code
that drives the hardware compares the resolved state against what it last
applied (see Diff) and writes only the fields that changed.

	tbl := bands.Default()
	st := tbl.Resolve(300)
	// st == HardwareState{SpectroGrating: 1, ShortPass: 1, LongPass: 6, LongPass2: 4, MonoGrating: 0}
*/
package bands

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/calerr"
)

const (
	// MinFilterPosition is the lowest position on any filter wheel
	MinFilterPosition = 1
	// MaxFilterPosition is the highest position on any filter wheel
	MaxFilterPosition = 6
	// MinGrating is the lowest grating index on either instrument
	MinGrating = 0
	// MaxGrating is the highest grating index on either instrument
	MaxGrating = 2
)

// HardwareState is the discrete configuration of the bench for one band
type HardwareState struct {
	// SpectroGrating is the spectrometer grating
	SpectroGrating int `yaml:"spectro_grating" json:"spectro_grating"`

	// ShortPass is the short pass filter wheel (spfw) position
	ShortPass int `yaml:"spfw" json:"spfw"`

	// LongPass is the first long pass filter wheel (lpfw) position
	LongPass int `yaml:"lpfw" json:"lpfw"`

	// LongPass2 is the second long pass filter wheel (lpfw2) position
	LongPass2 int `yaml:"lpfw2" json:"lpfw2"`

	// MonoGrating is the monochromator grating
	MonoGrating int `yaml:"mono_grating" json:"mono_grating"`
}

func (s HardwareState) String() string {
	return fmt.Sprintf("spectro grating=%d spfw=%d lpfw=%d lpfw2=%d mono grating=%d",
		s.SpectroGrating, s.ShortPass, s.LongPass, s.LongPass2, s.MonoGrating)
}

// Validate checks every field lies inside its enumerated range
func (s HardwareState) Validate() error {
	for _, c := range []struct {
		name     string
		v        int
		min, max int
	}{
		{"spectro grating", s.SpectroGrating, MinGrating, MaxGrating},
		{"spfw", s.ShortPass, MinFilterPosition, MaxFilterPosition},
		{"lpfw", s.LongPass, MinFilterPosition, MaxFilterPosition},
		{"lpfw2", s.LongPass2, MinFilterPosition, MaxFilterPosition},
		{"mono grating", s.MonoGrating, MinGrating, MaxGrating},
	} {
		if c.v < c.min || c.v > c.max {
			return errors.Wrapf(calerr.ErrConfiguration, "%s %d outside [%d, %d]", c.name, c.v, c.min, c.max)
		}
	}
	return nil
}

// Band is a half-open wavelength interval [Low, High) and the state used inside it.
// Low may be -Inf and High may be +Inf.
type Band struct {
	Low   float64       `yaml:"low"`
	High  float64       `yaml:"high"`
	State HardwareState `yaml:"state"`
}

// Contains is true if Low <= wl < High
func (b Band) Contains(wl float64) bool {
	return b.Low <= wl && wl < b.High
}

// Table is a validated, ordered partition of the real line into bands
type Table struct {
	bands []Band
}

// NewTable validates bands and builds a Table from them.  The bands are
// sorted by Low before validation; the result must be gap and overlap free,
// open below the first threshold and above the last.
func NewTable(bands []Band) (*Table, error) {
	if len(bands) == 0 {
		return nil, errors.Wrap(calerr.ErrConfiguration, "band table is empty")
	}
	bs := make([]Band, len(bands))
	copy(bs, bands)
	sort.SliceStable(bs, func(i, j int) bool { return bs[i].Low < bs[j].Low })

	if !math.IsInf(bs[0].Low, -1) {
		return nil, errors.Wrapf(calerr.ErrConfiguration, "first band starts at %v, must be open below", bs[0].Low)
	}
	last := bs[len(bs)-1]
	if !math.IsInf(last.High, 1) {
		return nil, errors.Wrapf(calerr.ErrConfiguration, "last band ends at %v, must be open above", last.High)
	}
	for i, b := range bs {
		if math.IsNaN(b.Low) || math.IsNaN(b.High) {
			return nil, errors.Wrapf(calerr.ErrConfiguration, "band %d has a NaN boundary", i)
		}
		if !(b.Low < b.High) {
			return nil, errors.Wrapf(calerr.ErrConfiguration, "band %d is empty or inverted: [%v, %v)", i, b.Low, b.High)
		}
		if err := b.State.Validate(); err != nil {
			return nil, errors.Wrapf(err, "band %d [%v, %v)", i, b.Low, b.High)
		}
		if i == 0 {
			continue
		}
		prev := bs[i-1]
		switch {
		case prev.High < b.Low:
			return nil, errors.Wrapf(calerr.ErrConfiguration, "gap between %v and %v", prev.High, b.Low)
		case prev.High > b.Low:
			return nil, errors.Wrapf(calerr.ErrConfiguration, "bands [%v, %v) and [%v, %v) overlap", prev.Low, prev.High, b.Low, b.High)
		}
	}
	return &Table{bands: bs}, nil
}

// Bands returns a copy of the table's bands in ascending order
func (t *Table) Bands() []Band {
	out := make([]Band, len(t.bands))
	copy(out, t.bands)
	return out
}

// Find returns the index of the band containing wl.  NaN matches no band
// and yields -1.
func (t *Table) Find(wl float64) int {
	if math.IsNaN(wl) {
		return -1
	}
	// first band whose High is above wl
	i := sort.Search(len(t.bands), func(i int) bool { return wl < t.bands[i].High })
	if i == len(t.bands) {
		// only reachable for +Inf
		return len(t.bands) - 1
	}
	return i
}

// Resolve returns the hardware state for the excitation wavelength wl (nm).
// -Inf resolves to the first band and +Inf to the last.  Callers must not
// pass NaN; it resolves to the zero HardwareState, which fails Validate.
func (t *Table) Resolve(wl float64) HardwareState {
	i := t.Find(wl)
	if i < 0 {
		return HardwareState{}
	}
	return t.bands[i].State
}

var defaultBands = []Band{
	{Low: math.Inf(-1), High: 250, State: HardwareState{1, 1, 6, 1, 0}},
	{Low: 250, High: 267, State: HardwareState{1, 1, 6, 2, 0}},
	{Low: 267, High: 275, State: HardwareState{1, 1, 6, 3, 0}},
	{Low: 275, High: 320, State: HardwareState{1, 1, 6, 4, 0}},
	{Low: 320, High: 380, State: HardwareState{1, 1, 1, 6, 0}},
	{Low: 380, High: 440, State: HardwareState{2, 1, 2, 6, 1}},
	{Low: 440, High: 490, State: HardwareState{2, 2, 3, 6, 1}},
	{Low: 490, High: 540, State: HardwareState{2, 3, 4, 6, 1}},
	{Low: 540, High: 590, State: HardwareState{2, 4, 5, 6, 1}},
	{Low: 590, High: math.Inf(1), State: HardwareState{2, 5, 5, 6, 1}},
}

// Default returns the bench's standard excitation table
func Default() *Table {
	t, err := NewTable(defaultBands)
	if err != nil {
		// the literal above is covered by tests
		panic(err)
	}
	return t
}
