package record

// Version identifies the measurement file layout below.  Any change to a
// field name, a line index, or the data start offset must bump it.
const Version = "3CS-1"

// NA is written in place of power meter values on closed-shutter (baseline)
// exposures
const NA = "NA"

// Bench header fields, written by the bench software at lines 0..10
const (
	FieldLink            = "link"
	FieldPowerReading    = "pm_read"
	FieldPowerUnit       = "pm_unit"
	FieldPowerCount      = "pm_count"
	FieldPowerWavelength = "pm_wavelength"
	FieldShortPass       = "spfw"
	FieldLongPass        = "lpfw"
	FieldLongPass2       = "lpfw2"
	FieldMonoGrating     = "mono_grating"
	FieldMonoWavelength  = "mono_wavelength"
	FieldSpectroGrating  = "spectro_grating"
)

// Spectrometer header fields, written by the spectrometer itself at the top
// of its native file.  Only the names read by benchcal get a constant; the
// rest are carried through verbatim.
const (
	FieldDateTime           = "Date and Time"
	FieldTemperature        = "Temperature (C)"
	FieldExposure           = "Exposure Time (secs)"
	FieldSpectroWavelength  = "Wavelength (nm)"
	FieldGrooveDensity      = "Grating Groove Density (l/mm)"
	FieldSlitWidth          = "Input Side Slit Width (um)"
	FieldSpectrographHeader = "SR193i"
)

// BenchFields is the ordered list of bench header names; the field at index
// i lives on line BenchStart+i.
var BenchFields = [...]string{
	FieldLink,
	FieldPowerReading,
	FieldPowerUnit,
	FieldPowerCount,
	FieldPowerWavelength,
	FieldShortPass,
	FieldLongPass,
	FieldLongPass2,
	FieldMonoGrating,
	FieldMonoWavelength,
	FieldSpectroGrating,
}

// InstrumentFields is the ordered list of spectrometer header names; the
// field at index i lives on line InstrumentStart+i of a measurement file and
// on line i of a device-native file.  "Serial Number" appears twice (camera
// and spectrograph), look the second one up by line with
// LineSpectrographSerial.
var InstrumentFields = [...]string{
	FieldDateTime,
	"Software Version",
	FieldTemperature,
	"Model",
	"Data Type",
	"Acquisition Mode",
	"Trigger Mode",
	FieldExposure,
	"Readout Mode",
	"Horizontal binning",
	"Extended Dynamic Range",
	"Horizontally flipped",
	"Vertical Shift Speed (usecs)",
	"Pixel Readout Rate (MHz)",
	"Baseline Clamp",
	"Clock Amplitude",
	"Output Amplifier",
	"Serial Number",
	"Pre Amplifier Gain",
	"Spurious Noise Filter Mode",
	"Photon counted",
	"Data Averaging Filter Mode",
	FieldSpectrographHeader,
	"Serial Number",
	FieldSpectroWavelength,
	FieldGrooveDensity,
	"Grating Blaze",
	FieldSlitWidth,
}

// Line offsets of the measurement file layout
const (
	// BenchStart is the line of the first bench field
	BenchStart = 0

	// BenchSeparator is the blank line between the bench and spectrometer headers
	BenchSeparator = BenchStart + len(BenchFields)

	// InstrumentStart is the line of the first spectrometer field
	InstrumentStart = BenchSeparator + 1

	// InstrumentBlankLines is the number of blank lines the spectrometer
	// writes between its header and its data
	InstrumentBlankLines = 3

	// DeviceDataStart is the first data line of a device-native file
	DeviceDataStart = len(InstrumentFields) + InstrumentBlankLines

	// DataStart is the first data line of a measurement file.  Every reader
	// and writer of measurement files uses this constant.
	DataStart = InstrumentStart + DeviceDataStart

	// LineExposure is the line holding the exposure time
	LineExposure = InstrumentStart + 7

	// LineSpectrographSerial is the line holding the spectrograph's serial number
	LineSpectrographSerial = InstrumentStart + 23
)

// Line returns the schema line index of the named field.  For names that
// appear twice the first line is returned.
func Line(name string) (int, bool) {
	for i, n := range BenchFields {
		if n == name {
			return BenchStart + i, true
		}
	}
	for i, n := range InstrumentFields {
		if n == name {
			return InstrumentStart + i, true
		}
	}
	return 0, false
}

// Power sweep file layout: a date line, a grating line, a blank line, then
// three ';' separated columns (wavelength, meter A, meter B).
const (
	SweepFieldDate    = "Date"
	SweepFieldGrating = "Grating"

	// sweepFieldGratingAlt is the name older sweep files use for the grating line
	sweepFieldGratingAlt = "Mono_grating"

	// SweepDataStart is the first data line of a power sweep file
	SweepDataStart = 3

	// SweepColumns is the number of columns of a power sweep row
	SweepColumns = 3
)
