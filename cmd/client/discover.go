package main

import (
	"fmt"
	"time"

	"github.com/immxrtalbeast/trailboard/internal/discovery"
	"github.com/spf13/cobra"
)

func newDiscoverCmd(_ *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find relays on the local network",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addrs, err := discovery.Browse(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no relays found")
				return nil
			}
			for _, addr := range addrs {
				fmt.Fprintf(cmd.OutOrStdout(), "ws://%s/ws\n", addr)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "how long to listen for answers")
	return cmd
}
