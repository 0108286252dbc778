package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"therapyportal/cohort"
	qhttp "therapyportal/http"
	"therapyportal/monitoring"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics := monitoring.NewMetrics()
			svc, err := a.service(metrics)
			if err != nil {
				return err
			}
			if err := svc.Init(ctx); err != nil {
				return err
			}
			if a.cfg.Models.Watch {
				if err := svc.Watch(ctx); err != nil {
					a.logger.Warn("model watcher disabled", zap.Error(err))
				}
			}

			hub := monitoring.NewHub(a.logger.Named("hub"))
			go hub.Run(ctx)

			reporter := &cohort.Reporter{Source: a.store, Logger: a.logger.Named("cohort")}
			if a.cfg.Cohorts.Interval > 0 {
				schedule := &cohort.Schedule{
					Reporter: reporter,
					Interval: a.cfg.Cohorts.Interval,
					Lookback: time.Duration(a.cfg.Cohorts.LookbackDays) * 24 * time.Hour,
					Sink: func(report *cohort.Report) {
						metrics.ObserveCohortReport(report.Patients)
						if err := hub.Publish(monitoring.CohortsBuilt, report); err != nil {
							a.logger.Warn("publish cohort report failed", zap.Error(err))
						}
					},
				}
				go schedule.Run(ctx)
			}

			api := &qhttp.API{
				Recommender:  svc,
				Store:        a.store,
				Cohorts:      reporter,
				Publisher:    hub,
				Live:         hub,
				Metrics:      metrics,
				Logger:       a.logger.Named("http"),
				LookbackDays: a.cfg.Cohorts.LookbackDays,
			}
			serverCfg := qhttp.DefaultServerConfig()
			serverCfg.Port = a.cfg.Http.Port
			if a.cfg.Http.Timeout > 0 {
				serverCfg.Timeout = a.cfg.Http.Timeout
			}
			if len(a.cfg.Http.AllowedOrigins) > 0 {
				serverCfg.AllowedOrigins = a.cfg.Http.AllowedOrigins
			}
			server := qhttp.NewServer(serverCfg, api)

			errCh := make(chan error, 1)
			a.logger.Info("portal listening", zap.String("addr", server.Addr()))
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		},
	}
}
