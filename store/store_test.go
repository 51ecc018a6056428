package store

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/noise"
	"github.com/3cs/benchcal/power"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewID(t *testing.T) {
	id := NewID(Power, time.Date(2023, 1, 4, 17, 23, 0, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^PowCorr_20230104-1723_[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewID(Power, time.Date(2023, 1, 4, 17, 23, 0, 0, time.UTC)))
}

func TestCreateListLatest(t *testing.T) {
	s := New(t.TempDir())
	runs, err := s.List(Noise)
	require.NoError(t, err)
	assert.Empty(t, runs)
	_, err = s.Latest(Noise)
	assert.True(t, calerr.Is(err, calerr.ErrCalibrationKey))

	s.now = fixedClock(time.Date(2023, 1, 4, 10, 0, 0, 0, time.UTC))
	first, err := s.Create(Noise)
	require.NoError(t, err)
	s.now = fixedClock(time.Date(2023, 1, 5, 10, 0, 0, 0, time.UTC))
	second, err := s.Create(Noise)
	require.NoError(t, err)

	fi, err := os.Stat(first.Dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	runs, err = s.List(Noise)
	require.NoError(t, err)
	assert.Equal(t, []Run{first, second}, runs)
	latest, err := s.Latest(Noise)
	require.NoError(t, err)
	assert.Equal(t, second, latest)

	other, err := s.List(Power)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestOpen(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Open(Power, "PowCorr_202301041723")
	assert.True(t, calerr.Is(err, calerr.ErrCalibrationKey))
	_, err = s.Open(Power, "../escape")
	assert.True(t, calerr.Is(err, calerr.ErrCalibrationKey))

	legacy := filepath.Join(s.KindDir(Power), "PowCorr_202301041723")
	require.NoError(t, os.MkdirAll(legacy, 0755))
	run, err := s.Open(Power, "PowCorr_202301041723")
	require.NoError(t, err)
	assert.Equal(t, legacy, run.Dir)
}

func TestNoiseRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	run, err := s.Create(Noise)
	require.NoError(t, err)
	p := noise.Profile{
		{Exposure: 1, Grating: 1}: {Coeffs: mathx.Poly4{0, 0, 0, 0.01, 600}, Min: 350, Max: 1050, HasDomain: true},
	}
	require.NoError(t, s.SaveNoise(run, p))
	assert.Error(t, s.SaveNoise(run, p), "write once")

	back, path, err := s.LoadNoise(run.ID)
	require.NoError(t, err)
	assert.Equal(t, p, back)
	assert.Equal(t, filepath.Join(run.Dir, noise.DictFile), path)

	prun, err := s.Create(Power)
	require.NoError(t, err)
	assert.Error(t, s.SaveNoise(prun, p))
}

func TestPowerRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	run, err := s.Create(Power)
	require.NoError(t, err)
	sw := power.Sweeps{}
	for _, wl := range mathx.Linspace(250, 800, 12) {
		sw[0] = append(sw[0], power.Reading{Wavelength: wl, WavelengthA: wl, WavelengthB: wl, A: 2e-6, B: 5e-7 + 1e-10*wl})
	}
	c, err := power.Calibrate(run.ID, sw)
	require.NoError(t, err)
	require.NoError(t, s.SavePower(run, "2023-01-04", c, sw))

	back, err := s.LoadPower(run.ID)
	require.NoError(t, err)
	assert.Equal(t, c, back)

	wrong, err := power.Calibrate("elsewhere", sw)
	require.NoError(t, err)
	other, err := s.Create(Power)
	require.NoError(t, err)
	assert.Error(t, s.SavePower(other, "2023-01-04", wrong, sw))
}
