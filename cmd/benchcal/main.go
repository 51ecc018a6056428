/*Command benchcal calibrates the 3CS bench and corrects its measurements.

Usage:

	benchcal <command> [flags]

Offline commands work on files: resolve, characterize, calibrate, correct,
watch, plot.  Bench commands drive the bench through its device server:
zero, scan, noise-run, power-run.  mkconf, conf and version manage the
configuration.
*/
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/config"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	cfgFile string
	verbose bool
	cfg     config.Config
	log     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "benchcal",
	Short: "Calibrate the 3CS bench and correct its measurements",
	Long: `benchcal builds the bench's noise and power calibrations, corrects raw
measurement records with them, and drives calibration and scan runs on the
bench.  Calibrations are kept in the store under root, one directory per run.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		c.Log.Dev = true
		c.Log.Level = "debug"
	}
	l, err := c.Logger()
	if err != nil {
		return err
	}
	cfg, log = c, l
	return nil
}

var mkconfCmd = &cobra.Command{
	Use:   "mkconf",
	Short: "Write the effective configuration to the configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Create(cfgFile)
		if err != nil {
			return err
		}
		defer f.Close()
		return config.Dump(f, cfg)
	},
}

var confCmd = &cobra.Command{
	Use:   "conf",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Dump(cmd.OutOrStdout(), cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "benchcal version %v\n", Version)
	},
}

// spinner starts a spinner on stderr for a long operation
func spinner(msg string) *yacspin.Spinner {
	sp, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		SuffixAutoColon:   true,
		Message:           msg,
		StopCharacter:     "✓",
		StopMessage:       "done",
		StopFailCharacter: "✗",
		StopFailMessage:   "failed",
		Writer:            os.Stderr,
	})
	if err != nil {
		return nil
	}
	if err := sp.Start(); err != nil {
		return nil
	}
	return sp
}

// finish stops sp according to err
func finish(sp *yacspin.Spinner, err error) error {
	if sp == nil {
		return err
	}
	if err != nil {
		sp.StopFail()
	} else {
		sp.Stop()
	}
	return err
}

// progress reports done/total on sp
func progress(sp *yacspin.Spinner) func(done, total int) {
	return func(done, total int) {
		if sp != nil {
			sp.Message(fmt.Sprintf("%d/%d", done, total))
		}
	}
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.FileName, "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to the console")
	rootCmd.AddCommand(mkconfCmd, confCmd, versionCmd)
	addCalibrationCommands(rootCmd)
	addCorrectionCommands(rootCmd)
	addBenchCommands(rootCmd)
	addPlotCommands(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}
