package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/alfredjeanlab/walletd/internal/client"
	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/model"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the walletd service",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := walletClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			printJSON(cmd.OutOrStdout(), map[string]string{"status": status})
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "List recorded events",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var req client.ListEventsRequest
		req.Topic, _ = cmd.Flags().GetString("topic")
		req.AfterID, _ = cmd.Flags().GetInt64("after")
		req.Limit, _ = cmd.Flags().GetInt("limit")

		evts, err := httpClient.ListEvents(context.Background(), req)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), evts)
			return nil
		}
		printEvents(cmd.OutOrStdout(), evts)
		return nil
	},
}

func printEvents(w io.Writer, evts []*model.Event) {
	if len(evts) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	for _, e := range evts {
		printEvent(w, e.Topic, e.Payload, e.CreatedAt)
	}
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream walletd events as they happen",
	GroupID: "system",
	Long: `Stream walletd events. With a NATS URL (--nats, WALLETD_NATS_URL or the
active remote) events are received from the bus; otherwise the event log
is polled over HTTP.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		interval, _ := cmd.Flags().GetDuration("interval")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if natsURL != "" {
			return watchNATS(ctx, cmd.OutOrStdout(), natsURL)
		}
		return watchPoll(ctx, cmd.OutOrStdout(), interval)
	},
}

// watchNATS prints every message on the wallet subject tree until ctx ends.
func watchNATS(ctx context.Context, w io.Writer, natsURL string) error {
	sub, err := messenger.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("wallet.>")
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic := msg.Event
			if topic == "" {
				topic = msg.Subject
			}
			printEvent(w, topic, msg.Data, time.Now())
		}
	}
}

// watchPoll polls the event log, printing events newer than the last seen id.
func watchPoll(ctx context.Context, w io.Writer, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	// Skip to the end of the log so only new events print.
	var after int64
	for {
		page, err := httpClient.ListEvents(ctx, client.ListEventsRequest{AfterID: after, Limit: 500})
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].ID
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		evts, err := httpClient.ListEvents(ctx, client.ListEventsRequest{AfterID: after})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("watch: %v", err)
			continue
		}
		for _, e := range evts {
			printEvent(w, e.Topic, e.Payload, e.CreatedAt)
			if e.ID > after {
				after = e.ID
			}
		}
	}
}

func defaultNATSURL() string {
	if s := os.Getenv("WALLETD_NATS_URL"); s != "" {
		return s
	}
	return activeRemoteNATSURL()
}

func init() {
	eventsCmd.Flags().String("topic", "", "only events with this name (e.g. KeyringController:lock)")
	eventsCmd.Flags().Int64("after", 0, "only events with an id greater than this")
	eventsCmd.Flags().Int("limit", 50, "maximum number of events")

	watchCmd.Flags().String("nats", defaultNATSURL(), "NATS URL to stream events from")
	watchCmd.Flags().Duration("interval", 2*time.Second, "poll interval when NATS is not used")
}
