package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/bands"
	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/noise"
	"github.com/3cs/benchcal/power"
	"github.com/3cs/benchcal/record"
)

func baseline(x float64) float64 { return 600 + 0.01*x }

func device(t *testing.T, exposure string, f func(float64) float64) *record.Device {
	t.Helper()
	vals := make([]string, len(record.InstrumentFields))
	vals[7] = exposure
	var samples []record.Sample
	for _, x := range mathx.Linspace(350, 1050, 100) {
		samples = append(samples, record.Sample{X: x, Y: f(x)})
	}
	return record.NewDevice(vals, samples)
}

// measurement builds a record excited at mono nm with meter B at pm nm
func measurement(t *testing.T, mono, pm float64) *record.Record {
	t.Helper()
	r, err := record.Merge(record.Bench{
		Link:            "scans/0-YAG.txt",
		PowerReading:    1e-6,
		PowerUnit:       "W",
		PowerCount:      10,
		PowerWavelength: pm,
		State:           bands.Default().Resolve(mono),
		MonoWavelength:  mono,
	}, device(t, "1", func(x float64) float64 { return baseline(x) + 1000 }))
	require.NoError(t, err)
	return r
}

func profile(t *testing.T) noise.Profile {
	t.Helper()
	var recs []*record.Record
	for _, gr := range []int{1, 2} {
		st := bands.Default().Resolve(300)
		st.SpectroGrating = gr
		r, err := record.Merge(record.Bench{Baseline: true, State: st}, device(t, "1", baseline))
		require.NoError(t, err)
		recs = append(recs, r)
	}
	p, err := noise.Characterize(recs)
	require.NoError(t, err)
	return p
}

func calibration(t *testing.T) *power.Calibration {
	t.Helper()
	sw := power.Sweeps{}
	for _, gr := range power.Gratings {
		for _, wl := range mathx.Linspace(250, 800, 12) {
			a := 2e-6
			sw[gr] = append(sw[gr], power.Reading{Wavelength: wl, WavelengthA: wl, WavelengthB: wl, A: a, B: a * 0.25})
		}
	}
	c, err := power.Calibrate("PowCorr_test", sw)
	require.NoError(t, err)
	return c
}

func TestRun(t *testing.T) {
	raw := measurement(t, 500, 500)
	sp, err := Run(raw, profile(t), calibration(t))
	require.NoError(t, err)
	assert.Equal(t, Done, sp.State)
	assert.Equal(t, Provenance{RawSource: "scans/0-YAG.txt", NoiseKey: "1.0sec_2gr", PowerCalibrationID: "PowCorr_test"}, sp.Provenance)

	// B / (B/A) is A's 1 µW / 0.25
	assert.InEpsilon(t, 4e-6, sp.TotalPower, 1e-6)
	photons := power.PhotonCount(sp.TotalPower, 1, 500)
	assert.Equal(t, photons, sp.Photons)
	require.Len(t, sp.Values, len(raw.Samples))
	for i, v := range sp.Values {
		assert.Equal(t, raw.Samples[i].X, sp.Wavelengths[i])
		assert.InEpsilon(t, 1000/photons, v, 1e-6)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	raw := measurement(t, 450, 450)
	p, c := profile(t), calibration(t)
	first, err := Run(raw, p, c)
	require.NoError(t, err)
	second, err := Run(raw, p, c)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestRunWavelengthMismatch(t *testing.T) {
	_, err := Run(measurement(t, 500, 501), profile(t), calibration(t))
	assert.True(t, calerr.Is(err, calerr.ErrMetadataInconsistency), "got %v", err)
}

func TestRunMissingNoiseKey(t *testing.T) {
	p := profile(t)
	delete(p, noise.Key{Exposure: 1, Grating: 2})
	sp, err := Run(measurement(t, 500, 500), p, calibration(t))
	assert.True(t, calerr.Is(err, calerr.ErrCalibrationKey))
	assert.Equal(t, Raw, sp.State)
}

func TestRunOutsidePowerCalibration(t *testing.T) {
	sp, err := Run(measurement(t, 900, 900), profile(t), calibration(t))
	assert.True(t, calerr.Is(err, calerr.ErrOutOfRange), "got %v", err)
	assert.Equal(t, NoiseSubtracted, sp.State)
}

func TestRunBaselineRecord(t *testing.T) {
	r, err := record.Merge(record.Bench{Baseline: true, State: bands.Default().Resolve(500), MonoWavelength: 500}, device(t, "1", baseline))
	require.NoError(t, err)
	_, err = Run(r, profile(t), calibration(t))
	assert.True(t, calerr.Is(err, calerr.ErrMalformedRecord))
}

func TestStateOrder(t *testing.T) {
	assert.Equal(t, "NOISE_SUBTRACTED", NoiseSubtracted.String())
	sp := Spectrum{State: Raw}
	assert.Panics(t, func() { sp.advance(PowerNormalized) })
	sp.advance(NoiseSubtracted)
	assert.Panics(t, func() { sp.advance(NoiseSubtracted) })
}

func TestBatch(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	bgr := t.TempDir()
	require.NoError(t, measurement(t, 500, 500).WriteFile(filepath.Join(in, "0-YAG.txt")))
	require.NoError(t, measurement(t, 500, 501).WriteFile(filepath.Join(in, "1-YAG.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(in, "2-YAG.txt"), []byte("not a record\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.md"), []byte("ignored"), 0644))

	b := &Batch{
		Noise:     profile(t),
		NoisePath: "noise/noise_dict.json",
		Power:     calibration(t),
		OutDir:    out,
		BGRDir:    bgr,
		FITS:      true,
		Log:       zap.NewNop(),
	}
	rep, err := b.CorrectDir(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, rep.Corrected, 1)
	require.Len(t, rep.Failed, 2)
	assert.Equal(t, filepath.Join(in, "1-YAG.txt"), rep.Failed[0].Path)
	assert.True(t, calerr.Is(rep.Failed[0].Err, calerr.ErrMetadataInconsistency))
	assert.True(t, calerr.Is(rep.Failed[1].Err, calerr.ErrMalformedRecord))

	outPath := rep.Corrected[filepath.Join(in, "0-YAG.txt")]
	assert.Equal(t, filepath.Join(out, "0-YAG_POWC.txt"), outPath)
	sp, err := ReadText(outPath)
	require.NoError(t, err)
	assert.Equal(t, Done, sp.State)
	assert.Equal(t, "1.0sec_2gr", sp.Provenance.NoiseKey)
	assert.Equal(t, "noise/noise_dict.json", sp.Provenance.NoiseSource)
	assert.Equal(t, 500.0, sp.Excitation)

	direct, err := Run(measurement(t, 500, 500), b.Noise, b.Power)
	require.NoError(t, err)
	assert.Equal(t, direct.Values, sp.Values)

	_, err = os.Stat(filepath.Join(bgr, "0-YAG"+BGRSuffix))
	assert.NoError(t, err)

	f, err := os.Open(filepath.Join(out, "0-YAG"+FITSSuffix))
	require.NoError(t, err)
	defer f.Close()
	fits, err := fitsio.Open(f)
	require.NoError(t, err)
	defer fits.Close()
	img := fits.HDU(0).(fitsio.Image)
	assert.Equal(t, "1.0sec_2gr", img.Header().Get("NOISEKEY").Value)
	var data []float64
	require.NoError(t, img.Read(&data))
	require.Len(t, data, 2*len(direct.Values))
	assert.Equal(t, direct.Wavelengths, data[:len(direct.Values)])
	assert.Equal(t, direct.Values, data[len(direct.Values):])

	// outputs are write once
	_, err = b.CorrectFile(filepath.Join(in, "0-YAG.txt"))
	assert.Error(t, err)
}

func TestCorrectFileRetryAfterFailure(t *testing.T) {
	in := filepath.Join(t.TempDir(), "0-YAG.txt")
	require.NoError(t, measurement(t, 500, 500).WriteFile(in))
	out, bgr := t.TempDir(), t.TempDir()
	b := &Batch{
		Noise:  profile(t),
		Power:  &power.Calibration{ID: "empty", Gratings: map[int]power.GratingFit{}},
		OutDir: out,
		BGRDir: bgr,
	}
	_, err := b.CorrectFile(in)
	require.True(t, calerr.Is(err, calerr.ErrCalibrationKey), "got %v", err)
	_, err = os.Stat(filepath.Join(bgr, "0-YAG"+BGRSuffix))
	assert.True(t, os.IsNotExist(err), "failed records leave no intermediate")

	b.Power = calibration(t)
	path, err := b.CorrectFile(in)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "0-YAG"+CorrectedSuffix), path)
	_, err = os.Stat(filepath.Join(bgr, "0-YAG"+BGRSuffix))
	assert.NoError(t, err)
}

func TestWriteFITSRejectsEmpty(t *testing.T) {
	assert.Error(t, WriteFITS(&bytes.Buffer{}, Spectrum{}))
}

func TestCorrectDirCancelled(t *testing.T) {
	in := t.TempDir()
	require.NoError(t, measurement(t, 500, 500).WriteFile(filepath.Join(in, "0-YAG.txt")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &Batch{Noise: profile(t), Power: calibration(t), OutDir: t.TempDir()}
	_, err := b.CorrectDir(ctx, in)
	assert.ErrorIs(t, err, context.Canceled)
}
