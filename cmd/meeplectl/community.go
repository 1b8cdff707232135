package main

import (
	"context"
	"fmt"
	"io"

	"github.com/matheus3301/meeple/internal/api"
	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/client"
	"github.com/spf13/cobra"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var req api.EventsRequest
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List community events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Events(ctx, &req)
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					if len(resp.Events) == 0 {
						fmt.Fprintln(w, "No events.")
						return
					}
					for _, ev := range resp.Events {
						printEvent(w, ev)
					}
				})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&req.Mine, "mine", false, "only events you take part in")
	cmd.Flags().StringVar(&req.Status, "status", "", "PENDING, APPROVED or REJECTED")
	cmd.Flags().BoolVar(&req.Refresh, "refresh", false, "refetch instead of using the cache")
	return cmd
}

func printEvent(w io.Writer, ev backend.Event) {
	mark := " "
	switch {
	case ev.CheckedIn:
		mark = "✓"
	case ev.Participating:
		mark = "+"
	}
	fmt.Fprintf(w, "%s %-24s %s  %-9s %3d/%-3d %s\n", mark, ev.ID, formatTime(ev.StartsAt), ev.Status, len(ev.Participants), ev.Capacity, ev.Title)
}

func newJoinCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <event>",
		Short: "Join or leave an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.ToggleParticipation(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					state := "left"
					if resp.Event.Participating {
						state = "joined"
					}
					fmt.Fprintf(w, "%s %s\n", state, resp.Event.ID)
				})
				return nil
			})
		},
	}
}

func newCheckinCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkin <event> <code>",
		Short: "Check in to an event with a scanned code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.CheckIn(ctx, &api.CheckInRequest{EventID: args[0], Code: args[1]})
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					fmt.Fprintf(w, "checked in to %s\n", resp.Event.Title)
				})
				return nil
			})
		},
	}
}

func newFriendsCmd(opts *rootOptions) *cobra.Command {
	var req api.FriendsRequest
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "List friends and pending requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Friends(ctx, &req)
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					for _, f := range resp.Friends {
						fmt.Fprintf(w, "  %-24s %s\n", f.ID, f.Name)
					}
					if len(resp.Requests) > 0 {
						fmt.Fprintf(w, "%d pending:\n", len(resp.Requests))
					}
					for _, r := range resp.Requests {
						fmt.Fprintf(w, "? %-24s from %s  %s\n", r.ID, r.From.Name, formatTime(r.CreatedAt))
					}
				})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&req.Refresh, "refresh", false, "refetch instead of using the cache")
	cmd.AddCommand(
		friendActionCmd(opts, api.FriendAdd, "add <user>", "Send a friend request"),
		friendActionCmd(opts, api.FriendAccept, "accept <request>", "Accept a friend request"),
		friendActionCmd(opts, api.FriendReject, "reject <request>", "Decline a friend request"),
	)
	return cmd
}

func friendActionCmd(opts *rootOptions, action, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				return c.FriendAction(ctx, action, args[0])
			})
		},
	}
}
