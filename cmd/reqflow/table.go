package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jonwraymond/reqflow/client"
	"github.com/jonwraymond/reqflow/health"
)

func renderStats(s client.Stats) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("reqflow")
	t.AppendHeader(table.Row{"Component", "Metric", "Value"})

	t.AppendRows([]table.Row{
		{"cache", "hits", s.Cache.Hits},
		{"cache", "misses", s.Cache.Misses},
		{"cache", "entries", s.Cache.Entries},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"dedup", "producers", s.Dedup.Producers},
		{"dedup", "shared", s.Dedup.Shared},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"admission", "admitted", s.Scheduler.Admitted},
		{"admission", "peak in flight", s.Scheduler.MaxInFlight},
		{"admission", "total wait", s.Scheduler.TotalWait.Round(time.Millisecond)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"governor", "mode", s.Throttle.Mode},
		{"governor", "limits", fmt.Sprintf("%d / %s", s.Throttle.MaxConcurrent, s.Throttle.MinInterval)},
		{"governor", "rate limit hits", s.Throttle.ConsecutiveRateLimitHits},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"auth", "credential", s.Auth.HasCredential},
		{"auth", "renewals", s.Auth.Renewals},
		{"auth", "logouts", s.Auth.Logouts},
	})
	return t.Render()
}

func renderReport(r health.Report) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Check", "Status", "Message", "Duration"})
	for _, c := range r.Checks {
		msg := c.Message
		if c.Error != nil {
			msg += ": " + c.Error.Error()
		}
		t.AppendRow(table.Row{c.Name, c.Status, msg, c.Duration.Round(time.Millisecond)})
	}
	t.AppendFooter(table.Row{"overall", r.Status, "", ""})
	return t.Render()
}
