/*Package sweep drives the bench through measurement runs.

Three runs exist: a scan over excitation wavelengths producing one merged
measurement record per point, a noise run producing closed-shutter records
and the noise profile fitted on them, and a power run producing the meter
sweeps and the power calibration fitted on them.  Every run writes into its
own store run directory.

The drivers hold no state between calls; the session is passed in.
*/
package sweep

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/bands"
	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/record"
	"github.com/3cs/benchcal/session"
	"github.com/3cs/benchcal/store"
)

// DateLayout is the date written into sweep and coefficient files
const DateLayout = "2006-01-02 15:04"

// Driver runs measurement sequences on a bench
type Driver struct {
	Session session.Session
	Store   *store.Store
	Table   *bands.Table
	Log     *zap.Logger

	// Progress, when set, is called after each point with the number of
	// points done and the total
	Progress func(done, total int)
}

func (d *Driver) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func (d *Driver) table() *bands.Table {
	if d.Table == nil {
		return bands.Default()
	}
	return d.Table
}

func (d *Driver) progress(done, total int) {
	if d.Progress != nil {
		d.Progress(done, total)
	}
}

// step is one write in a fixed settings sequence
type step func(ctx context.Context, s session.Session) error

func setF(p session.Property, v float64) step {
	return func(ctx context.Context, s session.Session) error { return s.SetFloat(ctx, p, v) }
}

func setI(p session.Property, v int) step {
	return func(ctx context.Context, s session.Session) error { return s.SetInt(ctx, p, v) }
}

func setS(p session.Property, v string) step {
	return func(ctx context.Context, s session.Session) error { return s.SetString(ctx, p, v) }
}

func setB(p session.Property, v bool) step {
	return func(ctx context.Context, s session.Session) error { return s.SetBool(ctx, p, v) }
}

func apply(ctx context.Context, s session.Session, steps ...step) error {
	for _, st := range steps {
		if err := st(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// closed puts the source under computer control with both shutters closed
// and the flippers down
func closed() []step {
	return []step{
		setS(session.ShutterControl, "computer"),
		setB(session.ShutterOn, false),
		setS(session.SpectroShutter, "closed"),
		setS(session.Flipper, "down"),
		setS(session.FlipperB, "down"),
	}
}

// Zero puts the bench into its reference state: full source power, shutters
// closed, filters at 6, 1 s exposure, 1000 µm slit, spectrometer grating 1
// at 500 nm, monochromator grating 0 at 250 nm with both meters following it
func Zero(ctx context.Context, s session.Session) error {
	steps := append([]step{setF(session.SourcePower, 100)}, closed()...)
	steps = append(steps,
		setI(session.ShortPass, 6),
		setI(session.LongPass, 6),
		setI(session.LongPass2, 6),
		setF(session.SpectroExposure, 1),
		setF(session.SpectroSlit, 1000),
		setF(session.SpectroWavelength, 500),
		setI(session.SpectroGrating, 1),
		setF(session.MonoWavelength, 250),
		setI(session.MonoGrating, 0),
		setF(session.MeterA.Wavelength(), 250),
		setF(session.MeterB.Wavelength(), 250),
	)
	return errors.Wrap(apply(ctx, s, steps...), "zeroing bench")
}

// Initialise prepares the bench for a scan without touching the filters or
// gratings
func Initialise(ctx context.Context, s session.Session, exposure, slit float64) error {
	steps := append([]step{setF(session.SourcePower, 100)}, closed()...)
	steps = append(steps,
		setF(session.SpectroExposure, exposure),
		setF(session.SpectroSlit, slit),
	)
	return errors.Wrap(apply(ctx, s, steps...), "initialising bench")
}

// takeDevice exposes and has the spectrometer save to path, then reads the
// saved file back and removes it
func takeDevice(ctx context.Context, s session.Session, path string) (*record.Device, error) {
	if err := session.Expose(ctx, s, path); err != nil {
		return nil, err
	}
	dev, err := record.ReadDevice(path)
	if err != nil {
		return nil, err
	}
	return dev, os.Remove(path)
}

// ScanConfig is the description of an excitation scan
type ScanConfig struct {
	Crystal string
	Min     float64
	Max     float64
	Points  int

	Exposure          float64
	Slit              float64
	SpectroWavelength float64
	PowerCount        int

	// Start skips the first Start points, to resume an interrupted scan
	Start int
}

func (c ScanConfig) validate() error {
	switch {
	case c.Crystal == "":
		return errors.Wrap(calerr.ErrConfiguration, "scan needs a crystal name")
	case math.IsNaN(c.Min) || math.IsNaN(c.Max) || math.IsInf(c.Min, 0) || math.IsInf(c.Max, 0):
		return errors.Wrapf(calerr.ErrConfiguration, "scan range [%v,%v] is not finite", c.Min, c.Max)
	case c.Points < 1:
		return errors.Wrapf(calerr.ErrConfiguration, "scan needs at least one point, got %d", c.Points)
	case c.Max < c.Min:
		return errors.Wrapf(calerr.ErrConfiguration, "scan range [%v,%v] is reversed", c.Min, c.Max)
	case c.Start < 0 || c.Start >= c.Points:
		return errors.Wrapf(calerr.ErrConfiguration, "scan start %d outside [0,%d)", c.Start, c.Points)
	case c.Exposure <= 0:
		return errors.Wrapf(calerr.ErrConfiguration, "exposure must be positive, got %v", c.Exposure)
	}
	return nil
}

// ScanFile is the name of the merged record of scan point i
func ScanFile(i int, crystal string) string {
	return fmt.Sprintf("%d-%s.txt", i, crystal)
}

// DeviceFile is the name the spectrometer saves scan point i under, before
// it is merged into ScanFile(i, crystal)
func DeviceFile(i int, crystal string) string {
	return fmt.Sprintf("%d_%s.txt", i, crystal)
}

// deviceSuffix ends the spectrometer's own files during a noise run
const deviceSuffix = "_device.txt"

var scanDevice = regexp.MustCompile(`^[0-9]+_.+\.txt$`)

// Temporary reports whether path is a device-native file a run writes and
// removes again once merged
func Temporary(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, deviceSuffix) || scanDevice.MatchString(base)
}

// Wavelengths returns the excitation wavelengths of a scan, rounded to 0.1 nm
func (c ScanConfig) Wavelengths() []float64 {
	wls := mathx.Linspace(c.Min, c.Max, c.Points)
	for i := range wls {
		wls[i] = mathx.Round(wls[i], 0.1)
	}
	return wls
}

// Scan steps the monochromator over the configured range and saves one
// merged measurement record per point into a new scan run.  Only the filter
// and grating settings that differ from the previous point are written; the
// first point (including the first point after a resume) writes all of them.
func (d *Driver) Scan(ctx context.Context, cfg ScanConfig) (store.Run, []string, error) {
	if err := cfg.validate(); err != nil {
		return store.Run{}, nil, err
	}
	s := d.Session
	run, err := d.Store.Create(store.Scan)
	if err != nil {
		return run, nil, err
	}
	log := d.logger().With(zap.String("run", run.ID), zap.String("crystal", cfg.Crystal))
	if err := Initialise(ctx, s, cfg.Exposure, cfg.Slit); err != nil {
		return run, nil, err
	}
	if err := apply(ctx, s,
		setF(session.SpectroWavelength, cfg.SpectroWavelength),
		setI(session.MeterB.Count(), cfg.PowerCount)); err != nil {
		return run, nil, err
	}

	var (
		prev  *bands.HardwareState
		saved []string
		wls   = cfg.Wavelengths()
		table = d.table()
	)
	for i := cfg.Start; i < len(wls); i++ {
		if err := ctx.Err(); err != nil {
			return run, saved, err
		}
		wl := wls[i]
		next := table.Resolve(wl)
		changes := bands.Diff(prev, next)
		log.Info("scan point",
			zap.Int("index", i),
			zap.Float64("wavelength", wl),
			zap.Stringer("state", next),
			zap.Int("changes", len(changes)))
		if err := apply(ctx, s,
			setF(session.MonoWavelength, wl),
			setF(session.MeterB.Wavelength(), wl)); err != nil {
			return run, saved, err
		}
		if err := session.Apply(ctx, s, changes); err != nil {
			return run, saved, err
		}
		prev = &next

		path, err := d.scanPoint(ctx, run, cfg, i, wl, next)
		if err != nil {
			return run, saved, errors.Wrapf(err, "scan point %d (%v nm)", i, wl)
		}
		saved = append(saved, path)
		d.progress(i-cfg.Start+1, len(wls)-cfg.Start)
	}
	return run, saved, nil
}

// scanPoint takes one lit exposure with its meter B reading and merges the
// two into a record
func (d *Driver) scanPoint(ctx context.Context, run store.Run, cfg ScanConfig, i int, wl float64, st bands.HardwareState) (string, error) {
	s := d.Session
	if err := apply(ctx, s,
		setB(session.ShutterOn, true),
		setS(session.SpectroShutter, "open"),
		setB(session.SpectroRunning, true),
		setS(session.SpectroShutter, "closed")); err != nil {
		return "", err
	}
	meter, err := session.ReadMeter(ctx, s, session.MeterB)
	if err != nil {
		return "", err
	}
	if err := s.SetBool(ctx, session.ShutterOn, false); err != nil {
		return "", err
	}

	devPath := filepath.Join(run.Dir, DeviceFile(i, cfg.Crystal))
	if err := s.SetString(ctx, session.SpectroSavePath, devPath); err != nil {
		return "", err
	}
	if err := s.SetBool(ctx, session.SpectroSaved, true); err != nil {
		return "", err
	}
	dev, err := record.ReadDevice(devPath)
	if err != nil {
		return "", err
	}

	path := filepath.Join(run.Dir, ScanFile(i, cfg.Crystal))
	r, err := record.Merge(record.Bench{
		Link:            path,
		PowerReading:    meter.Power,
		PowerUnit:       strconv.Itoa(meter.Unit),
		PowerCount:      meter.Count,
		PowerWavelength: meter.Wavelength,
		State:           st,
		MonoWavelength:  wl,
	}, dev)
	if err != nil {
		return "", err
	}
	if err := r.WriteFile(path); err != nil {
		return "", err
	}
	return path, os.Remove(devPath)
}
