package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/meeple/internal/api"
	"github.com/matheus3301/meeple/internal/client"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			err := opts.stream(cmd, 0, func(ctx context.Context, c *client.Client) error {
				return c.Watch(ctx, &api.WatchRequest{Kinds: kinds}, func(evt *api.WatchEvent) error {
					opts.output(cmd.OutOrStdout(), evt, func(w io.Writer) {
						at := time.UnixMilli(evt.OccurredAtUnixMs).Local().Format("15:04:05")
						fmt.Fprintf(w, "%s %-26s %s\n", at, evt.Kind, evt.Payload)
					})
					return nil
				})
			})
			if errors.Is(ctx.Err(), context.Canceled) || grpcstatus.Code(err) == codes.Canceled {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "event kind prefixes to show (e.g. chat.,notification.)")
	return cmd
}
