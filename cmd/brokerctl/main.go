package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var server string

	rootCmd := &cobra.Command{
		Use:   "brokerctl",
		Short: "Operator CLI for the event broker",
		Long: `brokerctl publishes test events, reads instance status and dead letters,
and tells which cluster member owns an event type.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&server, "server", envOr("BROKER_URL", "http://localhost:8080"), "Broker base URL")

	api := func() *client { return newClient(server) }
	rootCmd.AddCommand(
		newPublishCmd(api),
		newStatusCmd(api),
		newDeadLettersCmd(api),
		newOwnerCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
