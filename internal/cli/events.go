package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/coremodel/coremodel/internal/app"
	"github.com/coremodel/coremodel/internal/cache"
	"github.com/coremodel/coremodel/internal/config"
	"github.com/coremodel/coremodel/internal/events"
)

var errRedisRequired = errors.New("REDIS_URL (or --redis-url) is required for event commands")

func newEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the data-change event stream",
	}
	cmd.AddCommand(newEventsTailCommand())
	cmd.AddCommand(newEventsDeadLettersCommand())
	return cmd
}

func newEventsTailCommand() *cobra.Command {
	var (
		group         string
		consumer      string
		asJSON        bool
		maxDeliveries int
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Consume data-change events and print them until interrupted",
		Long: `Consume data-change events through a Redis consumer group and print
one line per event. Events are acknowledged once printed, so a second
tail in the same group only sees events the first one has not.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig(cmd)
			client, closeFn, err := openRedis(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := events.NewConsumer(client, group, consumer,
				printEvent(cmd.OutOrStdout(), asJSON),
				newLogger(cmd, cfg), nil)
			c.SetMaxDeliveries(maxDeliveries)
			return c.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&group, "group", "datactl_tail", "consumer group name")
	cmd.Flags().StringVar(&consumer, "consumer", "", "consumer name (generated when empty)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print each event as a JSON line")
	cmd.Flags().IntVar(&maxDeliveries, "max-deliveries", events.DefaultMaxDeliveries, "deliveries before a failing event is dead-lettered (0 keeps it pending)")
	return cmd
}

func newEventsDeadLettersCommand() *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:     "dead-letters",
		Aliases: []string{"dlq"},
		Short:   "List messages that could not be decoded or kept failing",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig(cmd)
			client, closeFn, err := openRedis(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			msgs, err := client.XRevRangeN(cmd.Context(), events.DeadLetterStreamKey, "+", "-", limit).Result()
			if err != nil {
				return fmt.Errorf("read dead-letter stream: %w", err)
			}
			renderDeadLetters(cmd.OutOrStdout(), msgs)
			return nil
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 20, "max messages to show, newest first")
	return cmd
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.CacheEnabled() {
		return nil, nil, errRedisRequired
	}
	c, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %s", app.SanitizeError(err, cfg.RedisURL))
	}
	return c.Client(), func() { _ = c.Close() }, nil
}

func printEvent(w io.Writer, asJSON bool) events.Handler {
	var mu sync.Mutex
	enc := json.NewEncoder(w)

	return func(_ context.Context, streamID string, ev events.Event) error {
		mu.Lock()
		defer mu.Unlock()

		if asJSON {
			return enc.Encode(struct {
				StreamID string `json:"stream_id"`
				events.Event
			}{streamID, ev})
		}

		line := fmt.Sprintf("%s %s %-14s id=%s", streamID, ev.Time().Format(time.RFC3339Nano), ev.Type, ev.ID)
		if ev.OwnerID != "" {
			line += " owner=" + ev.OwnerID
		}
		_, err := fmt.Fprintln(w, line)
		return err
	}
}

func renderDeadLetters(w io.Writer, msgs []redis.XMessage) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Original ID", "Reason", "Detail", "Dead-lettered At"})

	for _, m := range msgs {
		t.AppendRow(table.Row{m.Values["original_id"], m.Values["reason"], m.Values["detail"], m.Values["dead_lettered_at"]})
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d messages)\n", len(msgs))
}
