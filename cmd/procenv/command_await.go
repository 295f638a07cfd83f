package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/procenv"
)

func newAwaitCmd(g *globalFlags) *cobra.Command {
	var (
		state   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "await HOST:PORT",
		Short: "Wait until an address is bound or unbound",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := procenv.ParseAddress(args[0])
			if err != nil {
				return err
			}
			desired, err := procenv.ParseState(state)
			if err != nil {
				return err
			}
			if timeout <= 0 {
				return fmt.Errorf("--timeout must be positive, got %s", timeout)
			}

			sup := procenv.New(g.supervisorOptions()...)
			defer sup.Close()

			var out procenv.Outcome
			if desired == procenv.StateBound {
				out, err = sup.AwaitBound(cmd.Context(), addr, timeout)
			} else {
				out, err = sup.AwaitUnbound(cmd.Context(), addr, timeout)
			}
			printOutcome(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&state, "state", "bound", "desired state: bound or unbound")
	cmd.Flags().DurationVar(&timeout, "timeout", procenv.DefaultReadyTimeout, "how long to wait")
	return cmd
}
