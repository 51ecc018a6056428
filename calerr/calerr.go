// Package calerr holds the error taxonomy shared by the calibration and
// correction packages.
//
// Every failure raised by benchcal wraps exactly one of these sentinels, so
// callers can branch with errors.Is regardless of how much context was added
// on the way up.
package calerr

import "github.com/pkg/errors"

var (
	// ErrConfiguration is returned when the band table has a gap, an overlap,
	// an open end in the wrong place, or an out-of-range hardware value.
	ErrConfiguration = errors.New("configuration error")

	// ErrCalibrationKey is returned when no noise or power calibration entry
	// exists for the parameters of the record being processed.
	ErrCalibrationKey = errors.New("calibration key error")

	// ErrMetadataInconsistency is returned when two instruments disagree on a
	// value the physics assumes to be shared, e.g. the excitation wavelength.
	ErrMetadataInconsistency = errors.New("metadata inconsistency")

	// ErrOutOfRange is returned when a calibration would have to be
	// evaluated outside the span it was sampled on.
	ErrOutOfRange = errors.New("out of calibrated range")

	// ErrMalformedRecord is returned for any violation of a file schema.
	ErrMalformedRecord = errors.New("malformed record")
)

// Is reports whether err wraps target.  It is a thin alias kept so callers
// only need this package to classify failures.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
