package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/volkaert/simple-event-broker2/internal/domain"
)

type deadLetter struct {
	MessageID string                `json:"messageId"`
	Event     *domain.InFlightEvent `json:"event"`
}

func newDeadLettersCmd(api func() *client) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "dead-letters <event-type-code> <subscription-code>",
		Short: "List the newest dead letters of a subscription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/v1/dead-letters/%s/%s?limit=%s",
				url.PathEscape(args[0]), url.PathEscape(args[1]), strconv.Itoa(limit))

			var letters []deadLetter
			if err := api().do(http.MethodGet, path, nil, &letters); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(letters) == 0 {
				fmt.Fprintln(out, "No dead letters.")
				return nil
			}
			fmt.Fprintf(out, "  %-20s  %-36s  %s\n", "ENTRY", "EVENT", "LAST OUTCOME")
			for _, l := range letters {
				id, outcome := "?", "-"
				if l.Event != nil {
					id = l.Event.ID
					if l.Event.Outcome != nil {
						outcome = fmt.Sprintf("%s (%d)", l.Event.Outcome.Reason(), l.Event.Outcome.Status)
					}
				}
				fmt.Fprintf(out, "  %-20s  %-36s  %s\n", l.MessageID, id, outcome)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")
	return cmd
}
