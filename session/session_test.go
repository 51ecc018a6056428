package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cs/benchcal/bands"
	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/record"
)

func TestLookup(t *testing.T) {
	k, err := Lookup(MeterB.Power())
	require.NoError(t, err)
	assert.Equal(t, Float, k)
	_, err = Lookup(Property{"laser", "power"})
	assert.True(t, calerr.Is(err, calerr.ErrConfiguration))
	assert.Equal(t, "power_meter_b/wavelength", MeterB.Wavelength().String())
}

func TestMockKindsAndRanges(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	assert.True(t, calerr.Is(m.SetFloat(ctx, ShortPass, 2), calerr.ErrConfiguration))
	assert.True(t, calerr.Is(m.SetInt(ctx, ShortPass, 7), calerr.ErrOutOfRange))
	assert.True(t, calerr.Is(m.SetString(ctx, Flipper, "sideways"), calerr.ErrOutOfRange))
	assert.Error(t, m.SetFloat(ctx, MeterA.Power(), 1))
	assert.Empty(t, m.Commands())

	require.NoError(t, m.SetInt(ctx, ShortPass, 2))
	v, err := m.GetInt(ctx, ShortPass)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, []Command{{ShortPass, 2}}, m.Commands())
}

func TestApplyWritesOnlyChanges(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	tbl := bands.Default()
	first := tbl.Resolve(300)
	require.NoError(t, Apply(ctx, m, bands.Diff(nil, first)))
	st, err := ReadState(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, first, st)

	m.ResetCommands()
	next := tbl.Resolve(350)
	require.NoError(t, Apply(ctx, m, bands.Diff(&first, next)))
	assert.Equal(t, []Command{{LongPass, 1}, {LongPass2, 6}}, m.Commands())
	st, err = ReadState(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, next, st)
}

func TestExposeWritesDeviceFile(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	require.NoError(t, m.SetFloat(ctx, SpectroExposure, 2))
	require.NoError(t, m.SetInt(ctx, SpectroGrating, 2))
	path := filepath.Join(t.TempDir(), "exp.txt")
	require.NoError(t, Expose(ctx, m, path))

	d, err := record.ReadDevice(path)
	require.NoError(t, err)
	require.Len(t, d.Samples, m.Pixels)
	for _, s := range d.Samples {
		assert.InDelta(t, Dark(s.X, 2, 2), s.Y, 1e-9)
	}
	assert.Error(t, Expose(ctx, m, path), "existing files are not overwritten")
}

func TestExposeLit(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	require.NoError(t, m.SetFloat(ctx, MonoWavelength, 600))
	require.NoError(t, m.SetBool(ctx, ShutterOn, true))
	require.NoError(t, m.SetString(ctx, SpectroShutter, "open"))
	path := filepath.Join(t.TempDir(), "exp.txt")
	require.NoError(t, Expose(ctx, m, path))
	d, err := record.ReadDevice(path)
	require.NoError(t, err)
	peak := 0.
	for _, s := range d.Samples {
		if y := s.Y - Dark(s.X, 1, 1); y > peak {
			peak = y
		}
	}
	assert.Greater(t, peak, 1000.)
}

func TestReadMeter(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	r, err := ReadMeter(ctx, m, MeterB)
	require.NoError(t, err)
	assert.Zero(t, r.Power, "dark with the shutter closed")

	require.NoError(t, m.SetFloat(ctx, MonoWavelength, 500))
	require.NoError(t, m.SetBool(ctx, ShutterOn, true))
	require.NoError(t, m.SetFloat(ctx, MeterB.Wavelength(), 500))
	r, err = ReadMeter(ctx, m, MeterB)
	require.NoError(t, err)
	_, b := MeterPower(500, 100)
	assert.Equal(t, Reading{Power: b, Unit: 0, Count: 1, Wavelength: 500}, r)
	assert.InEpsilon(t, 0.15, b/2e-6, 1e-9)
}

func TestHTTPPayloads(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(FloatT{F64: 512.5})
		case http.MethodPost:
			v := IntT{}
			if err := json.NewDecoder(r.Body).Decode(&v); err != nil || v.Int != 3 {
				http.Error(w, "bad payload", http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, 0, time.Second)
	ctx := context.Background()
	f, err := h.GetFloat(ctx, MonoWavelength)
	require.NoError(t, err)
	assert.Equal(t, 512.5, f)
	require.NoError(t, h.SetInt(ctx, LongPass, 3))
	assert.Equal(t, []string{"GET /horiba/wl", "POST /lpfw/position"}, got)
}

func TestHTTPRejectedIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "filter wheel jammed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, 0, time.Second)
	err := h.SetInt(context.Background(), ShortPass, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filter wheel jammed")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPTransportRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	h := NewHTTP(addr, 0, 100*time.Millisecond)
	h.MaxElapsed = 200 * time.Millisecond
	start := time.Now()
	_, err := h.GetBool(context.Background(), ShutterOn)
	assert.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestHTTPTriggerIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, 0, 50*time.Millisecond)
	h.MaxElapsed = time.Second
	err := h.SetBool(context.Background(), SpectroRunning, true)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, Trigger(SpectroSaved))
	assert.False(t, Trigger(ShutterOn))
}

func TestHTTPCancelled(t *testing.T) {
	h := NewHTTP("http://127.0.0.1:1", 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.GetString(ctx, Flipper)
	assert.Error(t, err)
}
