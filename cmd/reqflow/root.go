package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/reqflow/client"
	"github.com/jonwraymond/reqflow/config"
	"github.com/jonwraymond/reqflow/observe"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	cfgFile string
	origin  string
	verbose bool

	cfg    *config.Config
	obs    observe.Observer
	client *client.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "reqflow",
		Short:         "Resilient request orchestration for a JSON API",
		Long:          "reqflow sends requests through a cache, deduplication, admission control, retry and credential renewal.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&a.origin, "origin", "", "API origin, overrides config and $REQFLOW_ORIGIN")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	root.AddCommand(
		newRequestCmd(a),
		newHealthCmd(a),
		newWatchCmd(a),
	)
	return root
}

// setup loads configuration and builds the observer and client.
func (a *app) setup(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(ctx, a.cfgFile)
	if err != nil {
		return err
	}
	if a.origin != "" {
		if cfg.Origin, err = config.ResolveOrigin(a.origin); err != nil {
			return err
		}
	}
	if a.verbose {
		cfg.Observe.Logging.Enabled = true
		cfg.Observe.Logging.Level = "debug"
	}
	if cfg.Observe.Version == "" {
		cfg.Observe.Version = version
	}
	if cfg.Observe.Attributes == nil {
		cfg.Observe.Attributes = map[string]string{}
	}
	cfg.Observe.Attributes["reqflow.origin"] = cfg.Origin
	if err := cfg.Validate(); err != nil {
		return err
	}

	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return err
	}

	c, err := client.New(*cfg,
		client.WithMiddleware(mw),
		client.WithOnLogout(func(reason string) {
			fmt.Fprintf(cmd.ErrOrStderr(), "session ended: %s\n", reason)
		}))
	if err != nil {
		_ = obs.Shutdown(ctx)
		return err
	}

	a.cfg, a.obs, a.client = cfg, obs, c
	return nil
}

// close releases what setup built. It is safe to call more than once.
func (a *app) close() error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
		a.client = nil
	}
	if a.obs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.obs.Shutdown(ctx))
		a.obs = nil
	}
	return errors.Join(errs...)
}
