package commands

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kaifufi/wyvern-exchange-go/events"
)

var (
	watchEndpoint string
	watchKinds    []string
	watchCount    int
)

func init() {
	WatchCmd.Flags().StringVar(&watchEndpoint, "endpoint", "ws://localhost:8546/events", "event feed websocket endpoint")
	WatchCmd.Flags().StringSliceVar(&watchKinds, "kind", []string{
		string(events.KindOrdersMatched),
		string(events.KindOrderApproved),
		string(events.KindOrderFillChanged),
		string(events.KindOrderCancelled),
	}, "event kinds to subscribe to")
	WatchCmd.Flags().IntVar(&watchCount, "count", 0, "exit after this many events, 0 to run until interrupted")
}

// WatchCmd follows an exchange's event feed and prints each event as a JSON line
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print events from an exchange event feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		received := make(chan events.Event, 16)
		client := events.NewFeedClient(events.FeedConfig{
			Endpoint: watchEndpoint,
			OnEvent:  func(e events.Event) { received <- e },
			OnError:  func(err error) { logger.WithError(err).Warn("event feed") },
		})
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Disconnect()
		for _, kind := range watchKinds {
			if err := client.Subscribe(events.Kind(kind)); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for n := 0; watchCount == 0 || n < watchCount; n++ {
			select {
			case <-ctx.Done():
				return nil
			case e := <-received:
				if err := enc.Encode(events.FeedMessageOf(e)); err != nil {
					return fmt.Errorf("write event: %w", err)
				}
			}
		}
		return nil
	},
}
