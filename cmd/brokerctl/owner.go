package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/volkaert/simple-event-broker2/internal/partition"
)

func newOwnerCmd() *cobra.Command {
	var clusterSize int

	cmd := &cobra.Command{
		Use:   "owner <event-type-code>...",
		Short: "Print the cluster index consuming each event type",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clusterSize < 1 {
				return fmt.Errorf("--cluster-size must be >= 1")
			}
			for _, code := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", code, partition.Owner(code, clusterSize))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&clusterSize, "cluster-size", 1, "Number of broker instances")
	return cmd
}
