package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/procenv"
)

func newProbeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe HOST:PORT",
		Short: "Check once whether an address is bound",
		Long: `Probe connects to HOST:PORT once and prints "bound" or "unbound".
Any failure other than a refused connection is reported as an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := procenv.ParseAddress(args[0])
			if err != nil {
				return err
			}
			sup := procenv.New(g.supervisorOptions()...)
			defer sup.Close()

			res := sup.Probe(cmd.Context(), addr)
			if res.State == procenv.StateInconclusive {
				return fmt.Errorf("probe %s inconclusive: %w", addr, res.Err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.State)
			return nil
		},
	}
}
