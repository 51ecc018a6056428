/*Command benchsim serves a simulated 3CS bench over the device server's HTTP
interface, for developing and exercising benchcal without hardware.

Usage:

	benchsim [--addr :8000] [--pixels 200] [--verbose]

GET /endpoints lists the simulated devices and their properties.
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/benchsrv"
	"github.com/3cs/benchcal/session"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	addr    string
	pixels  int
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:          "benchsim",
	Short:        "Serve a simulated 3CS bench",
	Version:      Version,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := zap.NewProduction()
		if verbose {
			log, err = zap.NewDevelopment()
		}
		if err != nil {
			return err
		}
		defer log.Sync()

		m := session.NewMock()
		m.Pixels = pixels
		srv := &http.Server{Addr: addr, Handler: benchsrv.BuildMux(m, log)}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		go func() {
			<-ctx.Done()
			shut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shut)
		}()

		log.Info("now listening for requests", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	rootCmd.Flags().IntVar(&pixels, "pixels", 200, "spectrometer pixels per exposure")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "development logging with request traces")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
