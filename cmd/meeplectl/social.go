package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/matheus3301/meeple/internal/api"
	"github.com/matheus3301/meeple/internal/checkin"
	"github.com/matheus3301/meeple/internal/client"
	"github.com/spf13/cobra"
)

func newFeedCmd(opts *rootOptions) *cobra.Command {
	var req api.PostsRequest
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the social feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Posts(ctx, &req)
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					for _, p := range resp.Posts {
						liked := " "
						if p.LikedByUser {
							liked = "♥"
						}
						fmt.Fprintf(w, "%-24s %s %3d  %s\n", p.ID, liked, p.LikeCount, p.Content)
					}
				})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&req.Refresh, "refresh", false, "refetch instead of using the cache")
	return cmd
}

func newLikeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "like <post>",
		Short: "Toggle your like on a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.ToggleLike(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					state := "unliked"
					if resp.Post.LikedByUser {
						state = "liked"
					}
					fmt.Fprintf(w, "%s %s (%d likes)\n", state, resp.Post.ID, resp.Post.LikeCount)
				})
				return nil
			})
		},
	}
}

func newPostCmd(opts *rootOptions) *cobra.Command {
	var image string
	cmd := &cobra.Command{
		Use:   "post <text...>",
		Short: "Publish a post to the feed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				req := api.CreatePostRequest{Content: strings.Join(args, " ")}
				if image != "" {
					url, err := upload(ctx, c, image)
					if err != nil {
						return err
					}
					req.ImageURL = url
				}
				resp, err := c.CreatePost(ctx, &req)
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					fmt.Fprintf(w, "posted %s\n", resp.Post.ID)
				})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "image file to attach")
	return cmd
}

func newNotificationsCmd(opts *rootOptions) *cobra.Command {
	var req api.NotificationsRequest
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Notifications(ctx, &req)
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					if resp.Cached {
						fmt.Fprintln(w, "(offline, showing cached notifications)")
					}
					fmt.Fprintf(w, "%d unread\n", resp.Unread)
					for _, n := range resp.Notifications {
						mark := " "
						if !n.Read {
							mark = "*"
						}
						fmt.Fprintf(w, "%s %-24s %s  %-14s %s: %s\n", mark, n.ID, formatTime(n.CreatedAt), n.Type, n.Title, n.Message)
					}
				})
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&req.Limit, "limit", api.DefaultPageSize, "maximum notifications")

	cmd.AddCommand(&cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				return c.ReadNotification(ctx, args[0])
			})
		},
	})
	return cmd
}

func newCheckinQRCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkin-qr <event>",
		Short: "Render your check-in code for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				if st.Identity == nil {
					return errors.New("not signed in")
				}
				uri := checkin.URI(args[0], st.Identity.ID)
				qr, err := checkin.Render(uri)
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), map[string]string{"uri": uri}, func(w io.Writer) {
					fmt.Fprintf(w, "\n%s\n  %s\n", qr, uri)
				})
				return nil
			})
		},
	}
}
