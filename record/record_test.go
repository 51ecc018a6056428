package record

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cs/benchcal/bands"
	"github.com/3cs/benchcal/calerr"
)

const benchHeader = `link: C:/3CS/scans/0-YAG.txt
pm_read: 2.35e-06
pm_unit: W
pm_count: 10
pm_wavelength: 500.0
spfw: 3
lpfw: 4
lpfw2: 6
mono_grating: 1
mono_wavelength: 500.0
spectro_grating: 2

`

const deviceHeader = `Date and Time:Wed Jan 04 15:45:00 2023
Software Version:4.32.30004.0
Temperature (C):-60
Model:DU420A_BEX2-DD
Data Type:Counts
Acquisition Mode:Single Scan
Trigger Mode:Internal
Exposure Time (secs):1
Readout Mode:Full Vertical Binning
Horizontal binning:1
Extended Dynamic Range:No
Horizontally flipped:No
Vertical Shift Speed (usecs):16.25
Pixel Readout Rate (MHz):0.05
Baseline Clamp:On
Clock Amplitude:Normal
Output Amplifier:Conventional
Serial Number:CCD-23161
Pre Amplifier Gain:1
Spurious Noise Filter Mode:Off
Photon counted:Off
Data Averaging Filter Mode:Off
SR193i
Serial Number:SR-4224
Wavelength (nm):550
Grating Groove Density (l/mm):150
Grating Blaze:500nm
Input Side Slit Width (um):100



`

const dataBlock = `350.114	612
350.637	608.5
351.16	1.2e3
`

func measurement() string {
	return benchHeader + deviceHeader + dataBlock
}

func TestLayoutOffsets(t *testing.T) {
	assert.Equal(t, 43, DataStart)
	assert.Equal(t, 31, DeviceDataStart)
	assert.Equal(t, 19, LineExposure)
	ln, ok := Line(FieldExposure)
	assert.True(t, ok)
	assert.Equal(t, LineExposure, ln)
	ln, _ = Line(FieldSpectroGrating)
	assert.Equal(t, 10, ln)
	assert.Equal(t, DataStart, strings.Count(benchHeader+deviceHeader, "\n"))
}

func TestParseSerializeRoundTrip(t *testing.T) {
	for name, src := range map[string]string{
		"lf":         measurement(),
		"crlf":       strings.ReplaceAll(measurement(), "\n", "\r\n"),
		"no newline": strings.TrimSuffix(measurement(), "\n"),
		"no data":    benchHeader + deviceHeader,
		"semicolons": benchHeader + deviceHeader + "350.0;1.0\n351.0 ; 2\n",
	} {
		t.Run(name, func(t *testing.T) {
			r, err := Parse([]byte(src))
			require.NoError(t, err)
			assert.Equal(t, src, string(r.Serialize()))
		})
	}
}

func TestTypedAccessors(t *testing.T) {
	r, err := Parse([]byte(measurement()))
	require.NoError(t, err)

	exp, err := r.Exposure()
	require.NoError(t, err)
	assert.Equal(t, 1.0, exp)

	pw, err := r.PowerReading()
	require.NoError(t, err)
	assert.Equal(t, 2.35e-6, pw)

	wl, err := r.MonoWavelength()
	require.NoError(t, err)
	assert.Equal(t, 500.0, wl)

	st, err := r.State()
	require.NoError(t, err)
	want := bands.HardwareState{SpectroGrating: 2, ShortPass: 3, LongPass: 4, LongPass2: 6, MonoGrating: 1}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("State mismatch (-want +got):\n%s", diff)
	}

	name, v := r.At(LineSpectrographSerial)
	assert.Equal(t, "Serial Number", name)
	assert.Equal(t, "SR-4224", v)

	want2 := []Sample{{350.114, 612}, {350.637, 608.5}, {351.16, 1200}}
	if diff := cmp.Diff(want2, r.Samples); diff != "" {
		t.Errorf("Samples mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, r.Baseline())
}

func TestBaselineFieldsAreNA(t *testing.T) {
	src := strings.Replace(measurement(), "pm_read: 2.35e-06", "pm_read: NA", 1)
	r, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.True(t, r.Baseline())
	_, err = r.PowerReading()
	assert.True(t, calerr.Is(err, calerr.ErrMalformedRecord))
}

func TestParseShortFile(t *testing.T) {
	_, err := Parse([]byte(benchHeader))
	assert.True(t, calerr.Is(err, calerr.ErrMalformedRecord))
	_, err = Parse(nil)
	assert.True(t, calerr.Is(err, calerr.ErrMalformedRecord))
}

func TestParseWrongFieldName(t *testing.T) {
	src := strings.Replace(measurement(), "spfw: 3", "sp_fw: 3", 1)
	_, err := Parse([]byte(src))
	var me *MalformedError
	require.True(t, errors.As(err, &me), "got %v", err)
	assert.Equal(t, 5, me.Line)
	assert.True(t, calerr.Is(err, calerr.ErrMalformedRecord))
}

func TestParseShiftedHeader(t *testing.T) {
	// an extra line in the bench block pushes every field off its schema line
	src := strings.Replace(measurement(), "link:", "operator: x\nlink:", 1)
	_, err := Parse([]byte(src))
	assert.True(t, calerr.Is(err, calerr.ErrMalformedRecord))
}

func TestParseBadData(t *testing.T) {
	for _, bad := range []string{"350.0\t1\t2\n", "350.0\tabc\n", "350.0\n"} {
		_, err := Parse([]byte(benchHeader + deviceHeader + bad))
		var me *MalformedError
		require.True(t, errors.As(err, &me), "input %q gave %v", bad, err)
		assert.Equal(t, DataStart, me.Line)
	}
}

func TestUnparsableNumericField(t *testing.T) {
	for _, tc := range []struct{ from, to string }{
		{"Exposure Time (secs):1", "Exposure Time (secs):one"},
		{"spfw: 3", "spfw: three"},
		{"mono_wavelength: 500.0", "mono_wavelength: abc"},
		{"pm_read: 2.35e-06", "pm_read: lots"},
		{"spectro_grating: 2", "spectro_grating: NA"},
	} {
		src := strings.Replace(measurement(), tc.from, tc.to, 1)
		r, err := Parse([]byte(src))
		assert.True(t, calerr.Is(err, calerr.ErrMalformedRecord), "%q: got %v", tc.to, err)
		assert.Nil(t, r)
	}
}

func TestMeterFieldsMayBeNA(t *testing.T) {
	src := measurement()
	for _, l := range []string{"pm_read: 2.35e-06", "pm_count: 10", "pm_wavelength: 500.0"} {
		name := strings.SplitN(l, ":", 2)[0]
		src = strings.Replace(src, l, name+": NA", 1)
	}
	r, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.True(t, r.Baseline())
	_, err = r.PowerReading()
	assert.True(t, calerr.Is(err, calerr.ErrMalformedRecord))
}

func TestSetTouchesOnlyThatLine(t *testing.T) {
	r, err := Parse([]byte(measurement()))
	require.NoError(t, err)
	require.NoError(t, r.SetFloat(FieldMonoWavelength, 510))
	got := strings.Split(string(r.Serialize()), "\n")
	orig := strings.Split(measurement(), "\n")
	require.Len(t, got, len(orig))
	for i := range orig {
		if i == 9 {
			assert.Equal(t, "mono_wavelength: 510.0", got[i])
			continue
		}
		assert.Equal(t, orig[i], got[i], "line %d", i)
	}
	assert.Error(t, r.Set("nonsense", "1"))
}

func TestChangedSamplesAreReformatted(t *testing.T) {
	r, err := Parse([]byte(measurement()))
	require.NoError(t, err)
	r.Samples[1].Y = 0.5
	r.Samples = append(r.Samples, Sample{X: 352, Y: 7})
	lines := strings.Split(string(r.Serialize()), "\n")
	assert.Equal(t, "350.114\t612", lines[DataStart])
	assert.Equal(t, "350.637\t0.5", lines[DataStart+1])
	assert.Equal(t, "352.0\t7.0", lines[DataStart+3])
}

func TestCloneIsIndependent(t *testing.T) {
	r, err := Parse([]byte(measurement()))
	require.NoError(t, err)
	c := r.Clone()
	c.Samples[0].Y = -1
	require.NoError(t, c.Set(FieldLink, "elsewhere"))
	assert.Equal(t, measurement(), string(r.Serialize()))
}

func TestDeviceRoundTripAndMerge(t *testing.T) {
	src := deviceHeader + dataBlock
	d, err := ParseDevice([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, src, string(d.Serialize()))

	b := Bench{
		Link:            "C:/3CS/scans/0-YAG.txt",
		PowerReading:    2.35e-6,
		PowerUnit:       "W",
		PowerCount:      10,
		PowerWavelength: 500,
		State:           bands.HardwareState{SpectroGrating: 2, ShortPass: 3, LongPass: 4, LongPass2: 6, MonoGrating: 1},
		MonoWavelength:  500.04,
	}
	r, err := Merge(b, d)
	require.NoError(t, err)
	assert.Equal(t, measurement(), string(r.Serialize()))
	assert.Equal(t, b.Link, r.Source)
}

func TestMergeBaseline(t *testing.T) {
	d, err := ParseDevice([]byte(deviceHeader + dataBlock))
	require.NoError(t, err)
	r, err := Merge(Bench{Baseline: true, State: bands.Default().Resolve(300), MonoWavelength: 300}, d)
	require.NoError(t, err)
	assert.True(t, r.Baseline())
	for _, f := range []string{FieldPowerReading, FieldPowerUnit, FieldPowerCount, FieldPowerWavelength} {
		v, err := r.Value(f)
		require.NoError(t, err)
		assert.Equal(t, NA, v, f)
	}
}

func TestNewDeviceParses(t *testing.T) {
	vals := make([]string, len(InstrumentFields))
	vals[7] = "0.5"
	d := NewDevice(vals, []Sample{{400, 10}, {401, 11}})
	back, err := ParseDevice(d.Serialize())
	require.NoError(t, err)
	assert.Equal(t, d.Samples, back.Samples)

	r, err := Merge(Bench{Baseline: true, State: bands.Default().Resolve(400)}, d)
	require.NoError(t, err)
	exp, err := r.Exposure()
	require.NoError(t, err)
	assert.Equal(t, 0.5, exp)
}

func TestSweepFile(t *testing.T) {
	src := "Date: 2023-01-04 15:45\nMono_grating: 1\n\n250.0;1.2e-06;3.4e-07\n270.5;1.5e-06;4e-07\n"
	s, err := ParseSweep([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Grating)
	assert.Equal(t, "2023-01-04 15:45", s.Date)
	require.Len(t, s.Rows, 2)
	assert.Equal(t, SweepRow{Wavelength: 270.5, A: 1.5e-6, B: 4e-7}, s.Rows[1])
	assert.Equal(t, src, string(s.Serialize()))

	s.Add(300.04, 2e-6, 5e-7)
	lines := strings.Split(string(s.Serialize()), "\n")
	assert.Equal(t, "300.0;2e-06;5e-07", lines[SweepDataStart+2])
}

func TestNewSweep(t *testing.T) {
	s := NewSweep("today", 0)
	s.Add(250, 1, 0.5)
	assert.Equal(t, "Date: today\nGrating: 0\n\n250.0;1.0;0.5\n", string(s.Serialize()))
	_, err := ParseSweep([]byte("Date: x\nGrating: 0\n\n250;1\n"))
	assert.True(t, calerr.Is(err, calerr.ErrMalformedRecord))

	path := filepath.Join(t.TempDir(), "pow_0.txt")
	require.NoError(t, s.WriteFile(path))
	err = NewSweep("tomorrow", 0).WriteFile(path)
	assert.True(t, errors.Is(err, os.ErrExist), "got %v", err)
	back, err := ReadSweep(path)
	require.NoError(t, err)
	assert.Equal(t, "today", back.Date)
}
