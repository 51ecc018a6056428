package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"

	"github.com/3cs/benchcal/pipeline"
	"github.com/3cs/benchcal/plots"
	"github.com/3cs/benchcal/record"
	"github.com/3cs/benchcal/store"
	"github.com/3cs/benchcal/sweep"
)

var plotOut string

// pngPath is the figure path for an input file: plotOut when given, else the
// input with its extension replaced
func pngPath(in string) string {
	if plotOut != "" {
		return plotOut
	}
	return strings.TrimSuffix(in, filepath.Ext(in)) + ".png"
}

func savePlot(cmd *cobra.Command, p *plot.Plot, path string) error {
	if err := plots.Save(p, path); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// figureDir is where the figures of a run go: plotOut when given, else the
// run directory
func figureDir(runDir string) (string, error) {
	if plotOut == "" {
		return runDir, nil
	}
	return plotOut, os.MkdirAll(plotOut, 0755)
}

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render records, spectra and calibrations as PNG figures",
}

var plotSignalCmd = &cobra.Command{
	Use:   "signal <record>",
	Short: "Plot the raw counts of a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := record.ReadFile(args[0])
		if err != nil {
			return err
		}
		p, err := plots.Signal(r, filepath.Base(args[0]))
		if err != nil {
			return err
		}
		return savePlot(cmd, p, pngPath(args[0]))
	},
}

var plotSpectrumCmd = &cobra.Command{
	Use:   "spectrum <corrected record>",
	Short: "Plot a corrected spectrum",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := pipeline.ReadText(args[0])
		if err != nil {
			return err
		}
		p, err := plots.Spectrum(sp, filepath.Base(args[0]))
		if err != nil {
			return err
		}
		return savePlot(cmd, p, pngPath(args[0]))
	},
}

var plotPowerCmd = &cobra.Command{
	Use:   "power <run id>",
	Short: "Plot the ratio, absolute and efficiency fits of a power run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := cfg.Store()
		run, err := st.Open(store.Power, args[0])
		if err != nil {
			return err
		}
		c, err := st.LoadPower(run.ID)
		if err != nil {
			return err
		}
		sw, err := readSweeps(run.Dir)
		if err != nil {
			return err
		}
		dir, err := figureDir(run.Dir)
		if err != nil {
			return err
		}
		figures := []struct {
			name   string
			render func() (*plot.Plot, error)
		}{
			{"ratio.png", func() (*plot.Plot, error) { return plots.RatioFit(sw, c) }},
			{"ab.png", func() (*plot.Plot, error) { return plots.ABFit(sw, c) }},
			{"efficiency.png", func() (*plot.Plot, error) { return plots.Efficiency(sw) }},
		}
		for _, f := range figures {
			p, err := f.render()
			if err != nil {
				return err
			}
			if err := savePlot(cmd, p, filepath.Join(dir, f.name)); err != nil {
				return err
			}
		}
		return nil
	},
}

var plotNoiseCmd = &cobra.Command{
	Use:   "noise <run id>",
	Short: "Plot each noise fit of a noise run over its closed-shutter record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := cfg.Store()
		run, err := st.Open(store.Noise, args[0])
		if err != nil {
			return err
		}
		prof, _, err := st.LoadNoise(run.ID)
		if err != nil {
			return err
		}
		dir, err := figureDir(run.Dir)
		if err != nil {
			return err
		}
		for _, k := range prof.Keys() {
			// runs built offline by characterize have no records beside the profile
			r, err := record.ReadFile(filepath.Join(run.Dir, sweep.NoiseFile(k)))
			if errors.Is(err, os.ErrNotExist) {
				r = nil
			} else if err != nil {
				return err
			}
			p, err := plots.NoiseFit(r, k, prof[k])
			if err != nil {
				return err
			}
			if err := savePlot(cmd, p, filepath.Join(dir, k.String()+".png")); err != nil {
				return err
			}
		}
		return nil
	},
}

func addPlotCommands(root *cobra.Command) {
	plotCmd.PersistentFlags().StringVarP(&plotOut, "out", "o", "", "output file, or directory for run figures")
	plotCmd.AddCommand(plotSignalCmd, plotSpectrumCmd, plotPowerCmd, plotNoiseCmd)
	root.AddCommand(plotCmd)
}
