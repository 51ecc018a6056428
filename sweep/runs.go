package sweep

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/noise"
	"github.com/3cs/benchcal/power"
	"github.com/3cs/benchcal/record"
	"github.com/3cs/benchcal/session"
	"github.com/3cs/benchcal/store"
)

// NoiseGratings are the spectrometer gratings a noise run covers
var NoiseGratings = []int{1, 2}

// NoiseFile is the name of the closed-shutter record for key k
func NoiseFile(k noise.Key) string {
	return k.String() + "_Elec_Noise.txt"
}

// NoiseRun takes one closed-shutter exposure per grating and exposure time,
// fits the noise profile on them and stores both in a new noise run
func (d *Driver) NoiseRun(ctx context.Context, exposures []float64) (store.Run, noise.Profile, error) {
	if len(exposures) == 0 {
		return store.Run{}, nil, errors.Wrap(calerr.ErrConfiguration, "noise run needs at least one exposure time")
	}
	for _, t := range exposures {
		if t <= 0 {
			return store.Run{}, nil, errors.Wrapf(calerr.ErrConfiguration, "exposure must be positive, got %v", t)
		}
	}
	s := d.Session
	run, err := d.Store.Create(store.Noise)
	if err != nil {
		return run, nil, err
	}
	log := d.logger().With(zap.String("run", run.ID))
	if err := apply(ctx, s, append(closed(), setF(session.SpectroSlit, 1000))...); err != nil {
		return run, nil, err
	}
	mono, err := s.GetFloat(ctx, session.MonoWavelength)
	if err != nil {
		return run, nil, err
	}

	var (
		records []*record.Record
		total   = len(NoiseGratings) * len(exposures)
	)
	for _, gr := range NoiseGratings {
		if err := s.SetInt(ctx, session.SpectroGrating, gr); err != nil {
			return run, nil, err
		}
		for _, t := range exposures {
			if err := ctx.Err(); err != nil {
				return run, nil, err
			}
			if err := s.SetFloat(ctx, session.SpectroExposure, t); err != nil {
				return run, nil, err
			}
			st, err := session.ReadState(ctx, s)
			if err != nil {
				return run, nil, err
			}
			k := noise.Key{Exposure: t, Grating: gr}
			path := filepath.Join(run.Dir, NoiseFile(k))
			dev, err := takeDevice(ctx, s, filepath.Join(run.Dir, k.String()+deviceSuffix))
			if err != nil {
				return run, nil, errors.Wrap(err, k.String())
			}
			r, err := record.Merge(record.Bench{Link: path, Baseline: true, State: st, MonoWavelength: mono}, dev)
			if err != nil {
				return run, nil, err
			}
			if err := r.WriteFile(path); err != nil {
				return run, nil, err
			}
			records = append(records, r)
			log.Info("noise exposure", zap.Stringer("key", k))
			d.progress(len(records), total)
		}
	}

	p, err := noise.Characterize(records)
	if err != nil {
		return run, nil, err
	}
	return run, p, d.Store.SaveNoise(run, p)
}

// PowerConfig is the wavelength grid of a power run
type PowerConfig struct {
	Min    float64
	Max    float64
	Points int
}

// DefaultPower is the grid the bench is usually calibrated on
var DefaultPower = PowerConfig{Min: 250, Max: 800, Points: 20}

// PowerRun zeroes the bench, reads both meters with each monochromator
// grating over the grid, and stores the sweeps and the calibration fitted on
// them in a new power run.  When the fit fails the sweeps are still written.
func (d *Driver) PowerRun(ctx context.Context, cfg PowerConfig) (store.Run, *power.Calibration, error) {
	if cfg.Points < power.MinReadings || cfg.Max <= cfg.Min {
		return store.Run{}, nil, errors.Wrapf(calerr.ErrConfiguration,
			"power run needs at least %d points over an increasing range, got %d over [%v,%v]",
			power.MinReadings, cfg.Points, cfg.Min, cfg.Max)
	}
	s := d.Session
	if err := Zero(ctx, s); err != nil {
		return store.Run{}, nil, err
	}
	run, err := d.Store.Create(store.Power)
	if err != nil {
		return run, nil, err
	}
	log := d.logger().With(zap.String("run", run.ID))
	date := time.Now().Format(DateLayout)

	sweeps := power.Sweeps{}
	wls := mathx.Linspace(cfg.Min, cfg.Max, cfg.Points)
	total := len(power.Gratings) * len(wls)
	done := 0
	for _, gr := range power.Gratings {
		if err := apply(ctx, s,
			setS(session.ShutterControl, "computer"),
			setB(session.ShutterOn, true),
			setI(session.MonoGrating, gr),
			setI(session.MeterA.Unit(), 0),
			setI(session.MeterB.Unit(), 0)); err != nil {
			return run, nil, err
		}
		for _, wl := range wls {
			if err := ctx.Err(); err != nil {
				return run, nil, err
			}
			wl = mathx.Round(wl, 0.1)
			rd, err := readPower(ctx, s, wl)
			if err != nil {
				return run, nil, errors.Wrapf(err, "grating %d at %v nm", gr, wl)
			}
			sweeps[gr] = append(sweeps[gr], rd)
			done++
			d.progress(done, total)
		}
		log.Info("power sweep", zap.Int("grating", gr), zap.Int("points", len(sweeps[gr])))
	}
	if err := s.SetBool(ctx, session.ShutterOn, false); err != nil {
		return run, nil, err
	}

	c, err := power.Calibrate(run.ID, sweeps)
	if err != nil {
		for gr, readings := range sweeps {
			if werr := power.SweepRecord(date, gr, readings).WriteFile(filepath.Join(run.Dir, power.SweepFile(gr))); werr != nil {
				log.Warn("saving sweep", zap.Int("grating", gr), zap.Error(werr))
			}
		}
		return run, nil, err
	}
	return run, c, d.Store.SavePower(run, date, c, sweeps)
}

// readPower moves the monochromator and both meters to wl and reads them
func readPower(ctx context.Context, s session.Session, wl float64) (power.Reading, error) {
	rd := power.Reading{Wavelength: wl}
	if err := apply(ctx, s,
		setF(session.MonoWavelength, wl),
		setF(session.MeterA.Wavelength(), wl),
		setF(session.MeterB.Wavelength(), wl)); err != nil {
		return rd, err
	}
	a, err := session.ReadMeter(ctx, s, session.MeterA)
	if err != nil {
		return rd, err
	}
	b, err := session.ReadMeter(ctx, s, session.MeterB)
	if err != nil {
		return rd, err
	}
	rd.A, rd.WavelengthA = a.Power, a.Wavelength
	rd.B, rd.WavelengthB = b.Power, b.Wavelength
	return rd, nil
}
