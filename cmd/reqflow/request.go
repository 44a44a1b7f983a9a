package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/reqflow/client"
	"github.com/jonwraymond/reqflow/resilience"
)

type requestFlags struct {
	method   string
	data     string
	headers  []string
	timeout  time.Duration
	refresh  bool
	raw      bool
	repeat   int
	stats    bool
	priority string
}

func newRequestCmd(a *app) *cobra.Command {
	f := &requestFlags{}

	cmd := &cobra.Command{
		Use:   "request <endpoint>",
		Short: "Send a request through the orchestrator",
		Long: `Send a request to {origin}{api_prefix}{endpoint} and print the response data.

Read responses are cached per endpoint TTL; --repeat shows cache hits.`,
		Example: `  reqflow request /widgets
  reqflow request /widgets -X POST -d '{"name":"bolt"}'
  reqflow request /widgets --repeat 3 --stats`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			if err := a.setup(cmd.Context(), cmd); err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			out := cmd.OutOrStdout()
			for i := 0; i < max(f.repeat, 1); i++ {
				res, err := a.client.Request(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				if err := printResult(out, res, f.raw); err != nil {
					return err
				}
			}
			if f.stats {
				fmt.Fprintln(out, renderStats(a.client.Stats()))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "extra header as 'Name: value' (repeatable)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-attempt timeout (default from config)")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "bypass and replace the cached response")
	cmd.Flags().BoolVar(&f.raw, "raw", false, "print the whole body instead of the data member")
	cmd.Flags().IntVar(&f.repeat, "repeat", 1, "send the request this many times")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "print client statistics afterwards")
	cmd.Flags().StringVar(&f.priority, "priority", "normal", "admission priority: high, normal or low")
	return cmd
}

func (f *requestFlags) options() (client.RequestOptions, error) {
	opts := client.RequestOptions{
		Method:       strings.ToUpper(f.method),
		Timeout:      f.timeout,
		ForceRefresh: f.refresh,
	}
	p, err := resilience.ParsePriority(f.priority)
	if err != nil {
		return opts, err
	}
	opts.Priority = p
	if f.data != "" {
		if !json.Valid([]byte(f.data)) {
			return opts, fmt.Errorf("--data is not valid JSON")
		}
		opts.Body = json.RawMessage(f.data)
	}
	if len(f.headers) > 0 {
		opts.Headers = make(map[string]string, len(f.headers))
		for _, h := range f.headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return opts, fmt.Errorf("invalid header %q, want 'Name: value'", h)
			}
			opts.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	return opts, nil
}

func printResult(w io.Writer, res *client.Result, raw bool) error {
	body := res.Data()
	if raw {
		body = res.Raw
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		buf.Reset()
		buf.Write(body)
	}
	_, err := fmt.Fprintln(w, buf.String())
	return err
}
