package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/pipeline"
	"github.com/3cs/benchcal/store"
	"github.com/3cs/benchcal/sweep"
	"github.com/3cs/benchcal/watch"
)

var (
	noiseRun string
	powerRun string
	outDir   string
	bgrDir   string
	fits     bool
)

// runID returns id, or the newest run of kind when id is empty
func runID(st *store.Store, k store.Kind, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	run, err := st.Latest(k)
	return run.ID, err
}

// batch builds the corrector from the configuration and flags
func batch(cmd *cobra.Command) (*pipeline.Batch, error) {
	st := cfg.Store()
	nid, err := runID(st, store.Noise, noiseRun)
	if err != nil {
		return nil, err
	}
	pid, err := runID(st, store.Power, powerRun)
	if err != nil {
		return nil, err
	}
	p, path, err := st.LoadNoise(nid)
	if err != nil {
		return nil, err
	}
	c, err := st.LoadPower(pid)
	if err != nil {
		return nil, err
	}
	b := &pipeline.Batch{
		Noise:     p,
		NoisePath: path,
		Power:     c,
		OutDir:    cfg.Correct.Out,
		BGRDir:    cfg.Correct.BGR,
		FITS:      cfg.Correct.FITS,
		Log:       log,
	}
	if cmd.Flags().Changed("out") {
		b.OutDir = outDir
	}
	if cmd.Flags().Changed("bgr") {
		b.BGRDir = bgrDir
	}
	if cmd.Flags().Changed("fits") {
		b.FITS = fits
	}
	for _, d := range []string{b.OutDir, b.BGRDir} {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, err
		}
	}
	log.Info("correcting with",
		zap.String("noise", nid),
		zap.String("power", pid),
		zap.String("out", b.OutDir))
	return b, nil
}

var correctCmd = &cobra.Command{
	Use:   "correct <dir>",
	Short: "Subtract noise and normalize by photon count for every record in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := batch(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		sp := spinner("correcting " + args[0])
		rep, err := b.CorrectDir(ctx, args[0])
		if err == nil && len(rep.Failed) > 0 {
			err = errors.Errorf("%d of %d records not corrected", len(rep.Failed), len(rep.Failed)+len(rep.Corrected))
		}
		finish(sp, err)
		out := cmd.OutOrStdout()
		for _, f := range rep.Failed {
			fmt.Fprintf(out, "FAILED %s: %v\n", f.Path, f.Err)
		}
		return err
	},
}

// generated reports whether path is one of the corrector's own outputs, or
// a device file a running scan has yet to merge
func generated(path string) bool {
	return strings.HasSuffix(path, pipeline.CorrectedSuffix) ||
		strings.HasSuffix(path, pipeline.BGRSuffix) ||
		sweep.Temporary(path)
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Correct each new record that appears in a directory until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := batch(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		w := &watch.Watcher{
			Dir:      args[0],
			Quiet:    cfg.Correct.QuietDuration(),
			Existing: existing,
			Log:      log,
			Handle: func(path string) error {
				if generated(path) {
					return nil
				}
				_, err := b.CorrectFile(path)
				return err
			},
		}
		return w.Run(ctx)
	},
}

var existing bool

func addCorrectionCommands(root *cobra.Command) {
	for _, c := range []*cobra.Command{correctCmd, watchCmd} {
		c.Flags().StringVar(&noiseRun, "noise", "", "noise run id (default newest)")
		c.Flags().StringVar(&powerRun, "power", "", "power run id (default newest)")
		c.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default from config)")
		c.Flags().StringVar(&bgrDir, "bgr", "", "directory for noise-subtracted intermediates")
		c.Flags().BoolVar(&fits, "fits", false, "also write FITS")
		root.AddCommand(c)
	}
	watchCmd.Flags().BoolVar(&existing, "existing", false, "also correct the records already in the directory")
}
