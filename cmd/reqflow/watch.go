package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/reqflow/client"
	"github.com/jonwraymond/reqflow/health"
	"github.com/jonwraymond/reqflow/observe"
)

type watchFlags struct {
	addr      string
	endpoints []string
	interval  time.Duration
}

func newWatchCmd(a *app) *cobra.Command {
	f := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Serve metrics and health endpoints, optionally polling API endpoints",
		Long: `Serve /metrics (Prometheus), /healthz, /readyz and /health until interrupted.

With --endpoint, the listed endpoints are requested every --interval so the
cache, governor and admission metrics reflect live traffic. Set
observe.metrics.exporter to prometheus for /metrics to carry reqflow instruments.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd.Context(), cmd); err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			agg := health.NewAggregator()
			a.client.RegisterHealth(agg)

			ln, err := net.Listen("tcp", f.addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "serving metrics and health on http://%s\n", ln.Addr())
			return serve(cmd.Context(), ln, newWatchMux(agg), func(ctx context.Context) {
				poll(ctx, a.client, a.obs.Logger(), f.endpoints, f.interval)
			})
		},
	}

	cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:9464", "listen address")
	cmd.Flags().StringArrayVar(&f.endpoints, "endpoint", nil, "endpoint to poll (repeatable)")
	cmd.Flags().DurationVar(&f.interval, "interval", 30*time.Second, "poll interval")
	return cmd
}

func newWatchMux(agg *health.Aggregator) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.RegisterHandlers(mux, agg)
	return mux
}

// serve runs an HTTP server on ln and background until ctx ends or the
// server fails, then stops both.
func serve(ctx context.Context, ln net.Listener, h http.Handler, background func(context.Context)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		background(ctx)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	var err error
	select {
	case err = <-errCh:
		cancel()
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		err = srv.Shutdown(shutdownCtx)
		stop()
	}
	<-done

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func poll(ctx context.Context, c *client.Client, log observe.Logger, endpoints []string, interval time.Duration) {
	if len(endpoints) == 0 || interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, ep := range endpoints {
			if _, err := c.Request(ctx, ep, client.RequestOptions{}); err != nil && ctx.Err() == nil {
				log.Warn(ctx, "poll failed", observe.F("endpoint", ep), observe.F("error", err))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
