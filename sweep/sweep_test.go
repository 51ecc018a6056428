package sweep

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/bands"
	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/noise"
	"github.com/3cs/benchcal/pipeline"
	"github.com/3cs/benchcal/power"
	"github.com/3cs/benchcal/record"
	"github.com/3cs/benchcal/session"
	"github.com/3cs/benchcal/store"
)

func driver(t *testing.T) (*Driver, *session.Mock) {
	t.Helper()
	m := session.NewMock()
	return &Driver{Session: m, Store: store.New(t.TempDir()), Log: zap.NewNop()}, m
}

var scanCfg = ScanConfig{
	Crystal:           "YAG",
	Min:               300,
	Max:               400,
	Points:            3,
	Exposure:          1,
	Slit:              1000,
	SpectroWavelength: 600,
	PowerCount:        10,
}

func isStateProperty(p session.Property) bool {
	for _, f := range bands.Fields() {
		if session.FieldProperty(f) == p {
			return true
		}
	}
	return false
}

func TestZero(t *testing.T) {
	ctx := context.Background()
	m := session.NewMock()
	require.NoError(t, m.SetInt(ctx, session.ShortPass, 2))
	require.NoError(t, m.SetBool(ctx, session.ShutterOn, true))
	require.NoError(t, Zero(ctx, m))
	st, err := session.ReadState(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, bands.HardwareState{SpectroGrating: 1, ShortPass: 6, LongPass: 6, LongPass2: 6, MonoGrating: 0}, st)
	on, err := m.GetBool(ctx, session.ShutterOn)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestScan(t *testing.T) {
	d, m := driver(t)
	var ticks []int
	d.Progress = func(done, total int) { ticks = append(ticks, done*10+total) }
	run, paths, err := d.Scan(context.Background(), scanCfg)
	require.NoError(t, err)
	assert.Equal(t, store.Scan, run.Kind)
	require.Len(t, paths, 3)
	assert.Equal(t, []int{13, 23, 33}, ticks)

	for i, wl := range []float64{300, 350, 400} {
		assert.Equal(t, filepath.Join(run.Dir, ScanFile(i, "YAG")), paths[i])
		r, err := record.ReadFile(paths[i])
		require.NoError(t, err)
		st, err := r.State()
		require.NoError(t, err)
		assert.Equal(t, bands.Default().Resolve(wl), st)
		mono, err := r.MonoWavelength()
		require.NoError(t, err)
		assert.Equal(t, wl, mono)
		pm, err := r.PowerWavelength()
		require.NoError(t, err)
		assert.Equal(t, wl, pm)
		_, b := session.MeterPower(wl, 100)
		reading, err := r.PowerReading()
		require.NoError(t, err)
		assert.Equal(t, b, reading)
		link, _ := r.Value(record.FieldLink)
		assert.Equal(t, paths[i], link)
	}

	// all five fields on the first point, then lpfw+lpfw2, then
	// spectro grating+lpfw+mono grating
	n := 0
	for _, c := range m.Commands() {
		if isStateProperty(c.Property) {
			n++
		}
	}
	assert.Equal(t, 10, n)

	entries, err := os.ReadDir(run.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "device files are removed after merging")
}

func TestScanResumeWritesFullState(t *testing.T) {
	d, m := driver(t)
	cfg := scanCfg
	cfg.Start = 2
	_, paths, err := d.Scan(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, ScanFile(2, "YAG"), filepath.Base(paths[0]))
	n := 0
	for _, c := range m.Commands() {
		if isStateProperty(c.Property) {
			n++
		}
	}
	assert.Equal(t, 5, n)
}

func TestScanConfig(t *testing.T) {
	d, _ := driver(t)
	for _, cfg := range []ScanConfig{
		{Crystal: "", Min: 300, Max: 400, Points: 3, Exposure: 1},
		{Crystal: "YAG", Min: 400, Max: 300, Points: 3, Exposure: 1},
		{Crystal: "YAG", Min: math.NaN(), Max: 300, Points: 3, Exposure: 1},
		{Crystal: "YAG", Min: 300, Max: 400, Points: 0, Exposure: 1},
		{Crystal: "YAG", Min: 300, Max: 400, Points: 3, Exposure: 0},
		{Crystal: "YAG", Min: 300, Max: 400, Points: 3, Exposure: 1, Start: 3},
	} {
		_, _, err := d.Scan(context.Background(), cfg)
		assert.True(t, calerr.Is(err, calerr.ErrConfiguration), "%+v: %v", cfg, err)
	}
	assert.Equal(t, []float64{250, 250.1, 250.2}, ScanConfig{Min: 250, Max: 250.2, Points: 3}.Wavelengths())
}

func TestTemporary(t *testing.T) {
	k := noise.Key{Exposure: 1, Grating: 2}
	for name, want := range map[string]bool{
		DeviceFile(3, "YAG"):      true,
		DeviceFile(12, "Ce_YAG"):  true,
		k.String() + deviceSuffix: true,
		ScanFile(3, "YAG"):        false,
		ScanFile(12, "Ce_YAG"):    false,
		NoiseFile(k):              false,
		"notes_3.txt":             false,
	} {
		assert.Equal(t, want, Temporary(filepath.Join("runs", name)), name)
	}
}

func TestNoiseRun(t *testing.T) {
	d, _ := driver(t)
	run, p, err := d.NoiseRun(context.Background(), []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []noise.Key{{Exposure: 1, Grating: 1}, {Exposure: 2, Grating: 1}, {Exposure: 1, Grating: 2}, {Exposure: 2, Grating: 2}}, p.Keys())
	for k, e := range p {
		for _, x := range []float64{400, 700, 1000} {
			assert.InDelta(t, session.Dark(x, k.Exposure, k.Grating), e.Coeffs.Eval(x), 1e-3, "%s at %v", k, x)
		}
	}
	back, _, err := d.Store.LoadNoise(run.ID)
	require.NoError(t, err)
	assert.Equal(t, p, back)
	_, err = os.Stat(filepath.Join(run.Dir, NoiseFile(noise.Key{Exposure: 2, Grating: 2})))
	assert.NoError(t, err)

	_, _, err = d.NoiseRun(context.Background(), nil)
	assert.True(t, calerr.Is(err, calerr.ErrConfiguration))
}

func TestPowerRun(t *testing.T) {
	d, _ := driver(t)
	run, c, err := d.PowerRun(context.Background(), DefaultPower)
	require.NoError(t, err)
	assert.Equal(t, run.ID, c.ID)
	for _, gr := range power.Gratings {
		for _, wl := range []float64{300, 500, 750} {
			ratio, err := power.Ratio(wl, gr, c)
			require.NoError(t, err)
			assert.InEpsilon(t, 0.1+1e-4*wl, ratio, 1e-5)
		}
	}
	back, err := d.Store.LoadPower(run.ID)
	require.NoError(t, err)
	assert.Equal(t, c, back)

	_, _, err = d.PowerRun(context.Background(), PowerConfig{Min: 250, Max: 800, Points: 2})
	assert.True(t, calerr.Is(err, calerr.ErrConfiguration))
}

func TestCalibrateThenCorrect(t *testing.T) {
	ctx := context.Background()
	d, _ := driver(t)
	_, p, err := d.NoiseRun(ctx, []float64{1})
	require.NoError(t, err)
	_, c, err := d.PowerRun(ctx, DefaultPower)
	require.NoError(t, err)
	_, paths, err := d.Scan(ctx, scanCfg)
	require.NoError(t, err)

	for i, wl := range []float64{300, 350, 400} {
		r, err := record.ReadFile(paths[i])
		require.NoError(t, err)
		sp, err := pipeline.Run(r, p, c)
		require.NoError(t, err)
		assert.Equal(t, pipeline.Done, sp.State)
		a, _ := session.MeterPower(wl, 100)
		assert.InEpsilon(t, a, sp.TotalPower, 1e-5)
	}
}

func TestScanCancelled(t *testing.T) {
	d, _ := driver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, paths, err := d.Scan(ctx, scanCfg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, paths)
}
