package main

import (
	"fmt"
	"net/http/httptest"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/benchsrv"
	"github.com/3cs/benchcal/session"
	"github.com/3cs/benchcal/sweep"
)

var (
	simulate  bool
	scanCfg   sweep.ScanConfig
	powerCfg  sweep.PowerConfig
	exposures []float64
)

// driver connects to the bench, or to an in-process simulated bench served
// over HTTP when --simulate is set
func driver() (*sweep.Driver, func(), error) {
	tbl, err := cfg.Table()
	if err != nil {
		return nil, nil, err
	}
	addr, done := cfg.Session.Addr, func() {}
	if simulate {
		srv := httptest.NewServer(benchsrv.BuildMux(session.NewMock(), log))
		addr, done = srv.URL, srv.Close
		log.Info("simulated bench", zap.String("addr", addr))
	}
	s := session.NewHTTP(addr, cfg.Session.Rate, cfg.Session.TimeoutDuration())
	return &sweep.Driver{Session: s, Store: cfg.Store(), Table: tbl, Log: log}, done, nil
}

var zeroCmd = &cobra.Command{
	Use:   "zero",
	Short: "Put the bench into its reference state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, done, err := driver()
		if err != nil {
			return err
		}
		defer done()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		sp := spinner("zeroing")
		return finish(sp, sweep.Zero(ctx, d.Session))
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Step the excitation wavelength and save a merged record per point",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, done, err := driver()
		if err != nil {
			return err
		}
		defer done()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		sp := spinner("scanning " + scanCfg.Crystal)
		d.Progress = progress(sp)
		run, paths, err := d.Scan(ctx, scanCfg)
		finish(sp, err)
		if run.ID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records in %s\n", run.ID, len(paths), run.Dir)
		}
		return err
	},
}

var noiseRunCmd = &cobra.Command{
	Use:   "noise-run",
	Short: "Take closed-shutter exposures and store the noise profile fitted on them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, done, err := driver()
		if err != nil {
			return err
		}
		defer done()
		if !cmd.Flags().Changed("exposures") {
			exposures = cfg.Noise.Exposures
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		sp := spinner("noise run")
		d.Progress = progress(sp)
		run, p, err := d.NoiseRun(ctx, exposures)
		finish(sp, err)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d keys\n", run.ID, len(p))
		return nil
	},
}

var powerRunCmd = &cobra.Command{
	Use:   "power-run",
	Short: "Sweep both power meters and store the power calibration fitted on them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, done, err := driver()
		if err != nil {
			return err
		}
		defer done()
		pc := sweep.PowerConfig{Min: cfg.Power.Min, Max: cfg.Power.Max, Points: cfg.Power.Points}
		if cmd.Flags().Changed("min") {
			pc.Min = powerCfg.Min
		}
		if cmd.Flags().Changed("max") {
			pc.Max = powerCfg.Max
		}
		if cmd.Flags().Changed("points") {
			pc.Points = powerCfg.Points
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		sp := spinner("power run")
		d.Progress = progress(sp)
		run, c, err := d.PowerRun(ctx, pc)
		finish(sp, err)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d gratings\n", run.ID, len(c.Gratings))
		return nil
	},
}

func addBenchCommands(root *cobra.Command) {
	for _, c := range []*cobra.Command{zeroCmd, scanCmd, noiseRunCmd, powerRunCmd} {
		c.Flags().BoolVar(&simulate, "simulate", false, "run against a simulated bench")
		root.AddCommand(c)
	}
	f := scanCmd.Flags()
	f.StringVar(&scanCfg.Crystal, "crystal", "", "sample name, used in file names")
	f.Float64Var(&scanCfg.Min, "min", 250, "first excitation wavelength, nm")
	f.Float64Var(&scanCfg.Max, "max", 800, "last excitation wavelength, nm")
	f.IntVar(&scanCfg.Points, "points", 56, "number of excitation wavelengths")
	f.Float64Var(&scanCfg.Exposure, "exposure", 1, "exposure time, s")
	f.Float64Var(&scanCfg.Slit, "slit", 1000, "spectrometer slit width, µm")
	f.Float64Var(&scanCfg.SpectroWavelength, "spectro-wl", 600, "spectrometer center wavelength, nm")
	f.IntVar(&scanCfg.PowerCount, "pm-count", 10, "meter B averaging count")
	f.IntVar(&scanCfg.Start, "start", 0, "first point index, to resume an interrupted scan")
	scanCmd.MarkFlagRequired("crystal")

	noiseRunCmd.Flags().Float64SliceVar(&exposures, "exposures", nil, "exposure times, s (default from config)")

	pf := powerRunCmd.Flags()
	pf.Float64Var(&powerCfg.Min, "min", sweep.DefaultPower.Min, "first wavelength, nm")
	pf.Float64Var(&powerCfg.Max, "max", sweep.DefaultPower.Max, "last wavelength, nm")
	pf.IntVar(&powerCfg.Points, "points", sweep.DefaultPower.Points, "number of wavelengths")
}
