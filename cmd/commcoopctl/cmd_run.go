package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"commcoop/pkg/commcoop"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evolve one population and record its history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			continueRun, _ := cmd.Flags().GetString("continue-run")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

			opts := commcoop.Options{}
			if metricsAddr != "" {
				reg := newMetricsRegistry()
				_, stopMetrics, err := serveMetrics(metricsAddr, reg, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer stopMetrics()
				opts.Registerer = reg
			}

			client, err := newClient(cmd, cfg, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			bar := newProgress(cmd.ErrOrStderr(), cfg.Generations)
			summary, err := client.Run(cmd.Context(), commcoop.RunRequest{
				Config:        cfg,
				ContinueRunID: continueRun,
				Progress:      bar.observe,
			})
			bar.finish()
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, summary)
			}
			printRunSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	addRunFlags(cmd)
	cmd.Flags().String("continue-run", "", "Resume from the final population of a stored run")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	return cmd
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveMetrics exposes reg on addr/metrics until the returned stop func is
// called. It returns the bound address.
func serveMetrics(addr string, reg *prometheus.Registry, errOut io.Writer) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(errOut, "metrics server: %v\n", err)
		}
	}()

	return ln.Addr().String(), func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
