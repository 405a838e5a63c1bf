package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/layer-3/anchor/adapters/hooks"
	"github.com/layer-3/anchor/service"
)

func reconcileCmd(c *cli) *cobra.Command {
	var (
		once        bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the SEP-24 reconciliation tasks and withdrawal stream watchers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := c.cfg, c.log

			if err := cfg.Validate(false); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			infra, err := openInfra(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer infra.Close()

			metrics, err := service.NewSchedulerMetrics(service.SchedulerMetricsOptions{Registerer: prometheus.DefaultRegisterer})
			if err != nil {
				return err
			}

			anchorHooks := hooks.NewManualHooks(infra.cursors, log)
			watcher := service.NewWithdrawalWatcher(
				infra.transactions, infra.ledger, anchorHooks, infra.events, infra.cursors, metrics, log,
			)
			scheduler := service.NewScheduler(
				infra.transactions, anchorHooks, infra.events, watcher, metrics, log, cfg.Scheduler.Concurrency,
			)

			if once {
				defer watcher.Stop()
				return scheduler.RunAll(ctx)
			}

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.Handler(),
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() { _ = listen(ctx, log, srv) }()
			}

			return scheduler.Run(ctx, cfg.Scheduler.Interval)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run each polling task once and exit")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}
