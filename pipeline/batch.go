package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/noise"
	"github.com/3cs/benchcal/power"
	"github.com/3cs/benchcal/record"
)

// Suffixes of the files a Batch writes next to each other
const (
	CorrectedSuffix = "_POWC.txt"
	FITSSuffix      = "_POWC.fits"
	BGRSuffix       = "_BGR.txt"
)

// Failure is a record that could not be corrected
type Failure struct {
	Path string
	Err  error
}

// Report summarizes a batch
type Report struct {
	// Corrected maps each corrected input to its output
	Corrected map[string]string

	// Failed lists the inputs that were skipped, in processing order
	Failed []Failure
}

// Batch corrects measurement files with one noise profile and one power
// calibration.  A record that fails is logged and skipped; the batch goes on.
type Batch struct {
	Noise     noise.Profile
	NoisePath string
	Power     *power.Calibration

	// OutDir receives the corrected files
	OutDir string

	// BGRDir, if set, receives the noise-subtracted intermediates
	BGRDir string

	// FITS also writes each corrected spectrum as FITS
	FITS bool

	Log *zap.Logger
}

func (b *Batch) logger() *zap.Logger {
	if b.Log == nil {
		return zap.NewNop()
	}
	return b.Log
}

// OutputPath is where the corrected text file for path goes
func (b *Batch) OutputPath(path string) string {
	return filepath.Join(b.OutDir, stem(path)+CorrectedSuffix)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CorrectFile corrects the measurement at path and returns the output path
func (b *Batch) CorrectFile(path string) (string, error) {
	raw, err := record.ReadFile(path)
	if err != nil {
		return "", err
	}
	var (
		sub    Spectrum
		hasSub bool
	)
	sp, err := run(raw, b.Noise, b.Power, func(s Spectrum) { sub, hasSub = s, true })
	if err != nil {
		return "", err
	}
	if hasSub && b.BGRDir != "" {
		samples := make([]record.Sample, len(sub.Wavelengths))
		for i := range samples {
			samples[i] = record.Sample{X: sub.Wavelengths[i], Y: sub.Values[i]}
		}
		bgr := filepath.Join(b.BGRDir, stem(path)+BGRSuffix)
		if err := createFile(bgr, func(w io.Writer) error {
			return noise.WriteBGR(w, raw, samples, b.NoisePath)
		}); err != nil {
			return "", err
		}
	}
	sp.Provenance.NoiseSource = b.NoisePath

	out := b.OutputPath(path)
	if err := createFile(out, func(w io.Writer) error { return WriteText(w, raw, sp) }); err != nil {
		return "", err
	}
	if b.FITS {
		fpath := filepath.Join(b.OutDir, stem(path)+FITSSuffix)
		if err := createFile(fpath, func(w io.Writer) error { return WriteFITS(w, sp) }); err != nil {
			return "", err
		}
	}
	return out, nil
}

// Files lists the measurement files (*.txt) directly inside dir, sorted
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// CorrectDir corrects every measurement file in dir.  Only listing dir or a
// cancelled ctx stops the batch early.
func (b *Batch) CorrectDir(ctx context.Context, dir string) (Report, error) {
	rep := Report{Corrected: map[string]string{}}
	files, err := Files(dir)
	if err != nil {
		return rep, err
	}
	log := b.logger()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		out, err := b.CorrectFile(f)
		if err != nil {
			log.Warn("record not corrected", zap.String("path", f), zap.Error(err))
			rep.Failed = append(rep.Failed, Failure{Path: f, Err: err})
			continue
		}
		log.Info("record corrected", zap.String("path", f), zap.String("output", out))
		rep.Corrected[f] = out
	}
	log.Info("batch done",
		zap.String("dir", dir),
		zap.Int("corrected", len(rep.Corrected)),
		zap.Int("failed", len(rep.Failed)))
	return rep, nil
}

// createFile writes a new file, refusing to overwrite one
func createFile(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return errors.Wrap(err, path)
	}
	return f.Close()
}
