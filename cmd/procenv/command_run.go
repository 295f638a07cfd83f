package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/procenv"
)

type runFlags struct {
	listen         string
	name           string
	dir            string
	env            []string
	readyTimeout   time.Duration
	releaseTimeout time.Duration
	grace          time.Duration
	output         string
	logDir         string
	lockDir        string
	processGroup   bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run --listen HOST:PORT [flags] -- <command> [args...]",
		Short: "Start a service, confirm it binds, and confirm release on shutdown",
		Long: `Run starts the command and waits until HOST:PORT accepts connections.
It then waits for SIGINT or SIGTERM, or for the command to exit on its own,
terminates the command and waits until HOST:PORT is released.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) < 1 {
				return errors.New("command to execute is required; use -- to separate procenv flags from the command")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd, g, f, args)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.listen, "listen", "", "address the service binds, as HOST:PORT (required)")
	fl.StringVar(&f.name, "name", "", "service name for logs (default: base name of the command)")
	fl.StringVar(&f.dir, "dir", "", "working directory for the command")
	fl.StringArrayVar(&f.env, "env", nil, "KEY=VALUE added to the command's environment (repeatable)")
	fl.DurationVar(&f.readyTimeout, "ready-timeout", procenv.DefaultReadyTimeout, "how long to wait for the address to be bound")
	fl.DurationVar(&f.releaseTimeout, "release-timeout", procenv.DefaultReleaseTimeout, "how long to wait for the address to be released")
	fl.DurationVar(&f.grace, "grace", procenv.DefaultTerminateGracePeriod, "time between SIGTERM and SIGKILL")
	fl.StringVar(&f.output, "output", procenv.OutputInherit.String(), "child output: discard, inherit or capture")
	fl.StringVar(&f.logDir, "log-dir", "", "directory for captured output (required with --output=capture)")
	fl.StringVar(&f.lockDir, "lock-dir", "", "directory for cross-process address locks")
	fl.BoolVar(&f.processGroup, "process-group", false, "start the command in its own process group")
	_ = cmd.MarkFlagRequired("listen")

	return cmd
}

// options validates the flags and converts them to supervisor options. Flag
// values are checked here so bad input is reported as an error instead of
// reaching the panicking With* functions.
func (f *runFlags) options() ([]procenv.Option, error) {
	var errs []error
	for name, d := range map[string]time.Duration{
		"--ready-timeout":   f.readyTimeout,
		"--release-timeout": f.releaseTimeout,
		"--grace":           f.grace,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	mode, err := procenv.ParseOutputMode(f.output)
	if err != nil {
		errs = append(errs, err)
	}
	if mode == procenv.OutputCapture && f.logDir == "" {
		errs = append(errs, errors.New("--log-dir is required with --output=capture"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	opts := []procenv.Option{
		procenv.WithReadyTimeout(f.readyTimeout),
		procenv.WithReleaseTimeout(f.releaseTimeout),
		procenv.WithTerminateGracePeriod(f.grace),
		procenv.WithOutput(mode),
		procenv.WithProcessGroup(f.processGroup),
	}
	if f.logDir != "" {
		opts = append(opts, procenv.WithLogDir(f.logDir))
	}
	if f.lockDir != "" {
		opts = append(opts, procenv.WithAddressLockDir(f.lockDir))
	}
	return opts, nil
}

func runService(cmd *cobra.Command, g *globalFlags, f *runFlags, args []string) error {
	addr, err := procenv.ParseAddress(f.listen)
	if err != nil {
		return fmt.Errorf("invalid --listen: %w", err)
	}
	opts, err := f.options()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := procenv.New(append(g.supervisorOptions(), opts...)...)
	defer sup.Close()

	svc := procenv.Service{
		Name:    f.name,
		Path:    args[0],
		Args:    args[1:],
		Env:     f.env,
		Dir:     f.dir,
		Address: addr,
	}
	out := cmd.OutOrStdout()

	proc, started, err := sup.StartAndConfirm(ctx, svc)
	printOutcome(out, started)
	if err != nil {
		if proc != nil {
			// Teardown must run even when ctx was canceled by a signal.
			if _, stopErr := sup.StopAndConfirm(context.WithoutCancel(ctx), proc, addr, 0); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
		}
		return err
	}

	var exitedEarly bool
	select {
	case <-ctx.Done():
	case <-proc.Exited():
		exitedEarly = true
	}

	released, err := sup.StopAndConfirm(context.WithoutCancel(ctx), proc, addr, 0)
	printOutcome(out, released)
	if err != nil {
		return err
	}
	if exitedEarly {
		code, _ := proc.ExitCode()
		return fmt.Errorf("%s exited before shutdown was requested (exit code %d)", proc.Name(), code)
	}
	return nil
}
