package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/publication"
)

func newPublishCmd(api func() *client) *cobra.Command {
	var (
		businessID string
		payload    string
		channel    string
		ttl        int64
	)

	cmd := &cobra.Command{
		Use:   "publish <publication-code>",
		Short: "Publish one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(payload)) {
				return fmt.Errorf("--payload is not valid JSON")
			}
			req := publication.Request{
				BusinessID:      businessID,
				PublicationCode: args[0],
				Payload:         json.RawMessage(payload),
				Channel:         channel,
			}
			if cmd.Flags().Changed("ttl") {
				req.TimeToLiveInSeconds = &ttl
			}

			var ev domain.EventToPublisher
			if err := api().do(http.MethodPost, "/api/v1/events", req, &ev); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "published %s\n", ev.ID)
			fmt.Fprintf(out, "  event type:  %s\n", ev.EventTypeCode)
			fmt.Fprintf(out, "  expires at:  %s (ttl %ds)\n", ev.ExpirationDate.Format(time.RFC3339), ev.TimeToLiveInSeconds)
			return nil
		},
	}

	cmd.Flags().StringVar(&businessID, "business-id", "", "Publisher's own identifier for the event")
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON payload")
	cmd.Flags().StringVar(&channel, "channel", "", "Delivery channel")
	cmd.Flags().Int64Var(&ttl, "ttl", 0, "Time to live in seconds (broker default when unset)")
	return cmd
}
