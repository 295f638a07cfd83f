package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/procenv"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel     string
	logFormat    string
	interval     time.Duration
	probeTimeout time.Duration
}

// supervisorOptions returns the options every subcommand passes to New.
func (g *globalFlags) supervisorOptions() []procenv.Option {
	return []procenv.Option{
		procenv.WithPollInterval(g.interval),
		procenv.WithProbeTimeout(g.probeTimeout),
	}
}

func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "procenv",
		Short:         "Start services and confirm their listen addresses",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if g.interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", g.interval)
			}
			if g.probeTimeout <= 0 {
				return fmt.Errorf("--probe-timeout must be positive, got %s", g.probeTimeout)
			}
			logger, err := newLogger(cmd.ErrOrStderr(), g.logLevel, g.logFormat)
			if err != nil {
				return err
			}
			procenv.SetLogger(logger.With("component", "procenv"))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.StringVar(&g.logFormat, "log-format", "text", "log format: text or json")
	pf.DurationVar(&g.interval, "interval", procenv.DefaultPollInterval, "delay between probe attempts")
	pf.DurationVar(&g.probeTimeout, "probe-timeout", procenv.DefaultProbeTimeout, "timeout for a single probe")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newAwaitCmd(g))
	root.AddCommand(newProbeCmd(g))

	return root
}

// newLogger builds the slog logger selected by --log-level and --log-format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (want text or json)", format)
	}
}

// printOutcome writes a one-line summary of a poll outcome.
func printOutcome(w io.Writer, out procenv.Outcome) {
	status := "reached"
	if !out.Succeeded {
		status = "did not reach"
	}
	fmt.Fprintf(w, "%s %s %s after %d attempts (%s)\n",
		out.Address, status, out.Desired, out.Attempts, out.Elapsed.Round(time.Millisecond))
}
