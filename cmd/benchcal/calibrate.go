package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/noise"
	"github.com/3cs/benchcal/pipeline"
	"github.com/3cs/benchcal/power"
	"github.com/3cs/benchcal/record"
	"github.com/3cs/benchcal/store"
	"github.com/3cs/benchcal/sweep"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <wavelength>...",
	Short: "Print the filter and grating configuration for excitation wavelengths",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tbl, err := cfg.Table()
		if err != nil {
			return err
		}
		for _, a := range args {
			wl, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return errors.Wrapf(calerr.ErrConfiguration, "wavelength %q: %v", a, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%v nm: %s\n", wl, tbl.Resolve(wl))
		}
		return nil
	},
}

// readRecords reads every record named by args; a directory contributes its
// *.txt files
func readRecords(args []string) ([]*record.Record, error) {
	var out []*record.Record
	for _, a := range args {
		paths := []string{a}
		if files, err := pipeline.Files(a); err == nil {
			paths = files
		}
		for _, p := range paths {
			r, err := record.ReadFile(p)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

var characterizeCmd = &cobra.Command{
	Use:   "characterize <record|dir>...",
	Short: "Fit a noise profile on closed-shutter records and store it as a new noise run",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := readRecords(args)
		if err != nil {
			return err
		}
		p, err := noise.Characterize(recs)
		if err != nil {
			return err
		}
		st := cfg.Store()
		run, err := st.Create(store.Noise)
		if err != nil {
			return err
		}
		if err := st.SaveNoise(run, p); err != nil {
			return err
		}
		log.Info("noise profile stored", zap.String("run", run.ID), zap.Int("keys", len(p)))
		fmt.Fprintln(cmd.OutOrStdout(), run.ID)
		return nil
	},
}

// readSweeps reads the pow_gr*.txt sweep files in dir
func readSweeps(dir string) (power.Sweeps, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "pow_gr*.txt"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Wrapf(calerr.ErrConfiguration, "no sweep files in %s", dir)
	}
	sw := power.Sweeps{}
	for _, p := range paths {
		s, err := record.ReadSweep(p)
		if err != nil {
			return nil, err
		}
		if _, dup := sw[s.Grating]; dup {
			return nil, errors.Wrapf(calerr.ErrConfiguration, "%s repeats grating %d", p, s.Grating)
		}
		sw[s.Grating] = power.FromSweep(s)
	}
	return sw, nil
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <sweep dir>",
	Short: "Fit a power calibration on meter sweep files and store it as a new power run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sw, err := readSweeps(args[0])
		if err != nil {
			return err
		}
		st := cfg.Store()
		run, err := st.Create(store.Power)
		if err != nil {
			return err
		}
		c, err := power.Calibrate(run.ID, sw)
		if err != nil {
			return err
		}
		if err := st.SavePower(run, time.Now().Format(sweep.DateLayout), c, sw); err != nil {
			return err
		}
		log.Info("power calibration stored", zap.String("run", run.ID), zap.Int("gratings", len(c.Gratings)))
		fmt.Fprintln(cmd.OutOrStdout(), run.ID)
		return nil
	},
}

func addCalibrationCommands(root *cobra.Command) {
	root.AddCommand(resolveCmd, characterizeCmd, calibrateCmd)
}
