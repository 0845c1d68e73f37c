package main

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

type status struct {
	InstanceID       string           `json:"instanceId"`
	ClusterSize      int              `json:"clusterSize"`
	ClusterIndex     int              `json:"clusterIndex"`
	Producers        []string         `json:"producers"`
	Consumers        []string         `json:"consumers"`
	StreamLengths    map[string]int64 `json:"streamLengths"`
	WebSocketClients int              `json:"websocketClients"`
}

func newStatusCmd(api func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the partition and live handles of one broker instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s status
			if err := api().do(http.MethodGet, "/api/v1/status", nil, &s); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "instance %s (member %d of %d)\n", s.InstanceID, s.ClusterIndex, s.ClusterSize)
			fmt.Fprintf(out, "live feed clients: %d\n\n", s.WebSocketClients)

			fmt.Fprintf(out, "  %-40s  %s\n", "TOPIC", "LENGTH")
			topics := append([]string(nil), s.Producers...)
			sort.Strings(topics)
			for _, t := range topics {
				length := "-"
				if n, ok := s.StreamLengths[t]; ok {
					length = strconv.FormatInt(n, 10)
				}
				fmt.Fprintf(out, "  %-40s  %s\n", t, length)
			}

			fmt.Fprintf(out, "\n  %s\n", "SUBSCRIPTION")
			subs := append([]string(nil), s.Consumers...)
			sort.Strings(subs)
			for _, c := range subs {
				fmt.Fprintf(out, "  %s\n", c)
			}
			return nil
		},
	}
}
