package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/reqflow/health"
)

// errUnhealthy makes the command exit non-zero when a check fails.
var errUnhealthy = errors.New("one or more checks are unhealthy")

func newHealthCmd(a *app) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the API server, the governor and the cache backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd.Context(), cmd); err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			agg := health.NewAggregator(health.AggregatorConfig{Timeout: timeout, Parallel: true})
			a.client.RegisterHealth(agg)
			report := agg.Report(cmd.Context())

			out := cmd.OutOrStdout()
			if asJSON {
				checks := make(map[string]health.CheckResponse, len(report.Checks))
				for _, c := range report.Checks {
					checks[c.Name] = health.NewCheckResponse(c.Result)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(health.HealthResponse{
					Status:    report.Status.String(),
					Timestamp: report.Timestamp.UTC().Format(time.RFC3339),
					Checks:    checks,
				}); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, renderReport(report))
			}

			if report.Status == health.StatusUnhealthy {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall check timeout")
	return cmd
}
