/*Package store keeps calibration artifacts on disk, one directory per run.

	<root>/<kind>/<kind>_<yyyymmdd-hhmm>_<uuid8>/

A run directory is created exclusively and its files are written once.  Two
producers can never share a run, and a stored calibration never changes
under a reader.
*/
package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/noise"
	"github.com/3cs/benchcal/power"
)

// Kind names a family of runs; it prefixes the run id and names the
// directory the runs live in
type Kind string

const (
	// Noise runs hold a noise profile and the closed-shutter records it was fitted on
	Noise Kind = "Elec_Noise"

	// Power runs hold a power calibration and its sweep files
	Power Kind = "PowCorr"

	// Scan runs hold the merged measurement records of a sweep
	Scan Kind = "Scan"
)

// TimeLayout is the timestamp layout inside run ids
const TimeLayout = "20060102-1504"

// Run is one artifact directory
type Run struct {
	ID   string
	Kind Kind
	Dir  string
}

// Store is a directory tree of runs
type Store struct {
	Root string

	now func() time.Time
}

// New returns a store rooted at root
func New(root string) *Store {
	return &Store{Root: root, now: time.Now}
}

// KindDir is the directory runs of kind live in
func (s *Store) KindDir(k Kind) string {
	return filepath.Join(s.Root, string(k))
}

// NewID makes a run id for kind at t
func NewID(k Kind, t time.Time) string {
	return string(k) + "_" + t.Format(TimeLayout) + "_" + uuid.New().String()[:8]
}

// Create makes a fresh run directory.  It fails rather than reuse an
// existing directory.
func (s *Store) Create(k Kind) (Run, error) {
	if err := os.MkdirAll(s.KindDir(k), 0755); err != nil {
		return Run{}, err
	}
	id := NewID(k, s.now())
	dir := filepath.Join(s.KindDir(k), id)
	if err := os.Mkdir(dir, 0755); err != nil {
		return Run{}, errors.Wrap(err, "creating run directory")
	}
	return Run{ID: id, Kind: k, Dir: dir}, nil
}

// Open returns an existing run of kind.  Runs made before the store existed
// (e.g. PowCorr_202301041723) open the same way.
func (s *Store) Open(k Kind, id string) (Run, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return Run{}, errors.Wrapf(calerr.ErrCalibrationKey, "bad run id %q", id)
	}
	dir := filepath.Join(s.KindDir(k), id)
	fi, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return Run{}, errors.Wrapf(calerr.ErrCalibrationKey, "no %s run %s", k, id)
	} else if err != nil {
		return Run{}, err
	}
	if !fi.IsDir() {
		return Run{}, errors.Wrapf(calerr.ErrCalibrationKey, "%s is not a run directory", dir)
	}
	return Run{ID: id, Kind: k, Dir: dir}, nil
}

// List returns the runs of kind, oldest first.  Ids sort by time because the
// timestamp follows the fixed prefix.
func (s *Store) List(k Kind) ([]Run, error) {
	entries, err := os.ReadDir(s.KindDir(k))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var out []Run
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), string(k)+"_") {
			continue
		}
		out = append(out, Run{ID: e.Name(), Kind: k, Dir: filepath.Join(s.KindDir(k), e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Latest returns the newest run of kind
func (s *Store) Latest(k Kind) (Run, error) {
	runs, err := s.List(k)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, errors.Wrapf(calerr.ErrCalibrationKey, "no %s runs in %s", k, s.Root)
	}
	return runs[len(runs)-1], nil
}

// SaveNoise writes a noise profile into run
func (s *Store) SaveNoise(run Run, p noise.Profile) error {
	if run.Kind != Noise {
		return errors.Errorf("cannot save a noise profile into a %s run", run.Kind)
	}
	return p.Save(run.Dir)
}

// LoadNoise reads the noise profile of run id
func (s *Store) LoadNoise(id string) (noise.Profile, string, error) {
	run, err := s.Open(Noise, id)
	if err != nil {
		return nil, "", err
	}
	path := filepath.Join(run.Dir, noise.DictFile)
	p, err := noise.LoadFile(path)
	return p, path, err
}

// SavePower writes a power calibration, its companions and sweeps into run.
// The calibration's id must be the run's.
func (s *Store) SavePower(run Run, date string, c *power.Calibration, sw power.Sweeps) error {
	if run.Kind != Power {
		return errors.Errorf("cannot save a power calibration into a %s run", run.Kind)
	}
	if c.ID != run.ID {
		return errors.Errorf("calibration %s does not belong to run %s", c.ID, run.ID)
	}
	return power.Save(run.Dir, date, c, sw)
}

// LoadPower reads the power calibration of run id
func (s *Store) LoadPower(id string) (*power.Calibration, error) {
	run, err := s.Open(Power, id)
	if err != nil {
		return nil, err
	}
	c, err := power.Load(run.Dir)
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = id
	}
	return c, nil
}
