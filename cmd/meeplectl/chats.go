package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/matheus3301/meeple/internal/api"
	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/client"
	"github.com/spf13/cobra"
)

func newChatsCmd(opts *rootOptions) *cobra.Command {
	var req api.ListChatsRequest
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.ListChats(ctx, &req)
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					if resp.Cached {
						fmt.Fprintln(w, "(offline, showing cached chats)")
					}
					if len(resp.Chats) == 0 {
						fmt.Fprintln(w, "No chats.")
						return
					}
					for _, ch := range resp.Chats {
						unread := ""
						if ch.UnreadCount > 0 {
							unread = fmt.Sprintf(" [%d]", ch.UnreadCount)
						}
						fmt.Fprintf(w, "%-24s %-28s %s%s  %s\n", ch.ID, ch.Name, formatTime(ch.LastMessageAt), unread, ch.LastMessagePreview)
					}
				})
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&req.Skip, "skip", 0, "chats to skip")
	cmd.Flags().IntVar(&req.Take, "take", api.DefaultPageSize, "chats to return")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var req api.HistoryRequest
	cmd := &cobra.Command{
		Use:   "history <chat>",
		Short: "Show a page of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ChatID = args[0]
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.History(ctx, &req)
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					if resp.Cached {
						fmt.Fprintln(w, "(offline, showing cached messages)")
					}
					printMessages(w, resp.Messages)
				})
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&req.Skip, "skip", 0, "messages to skip")
	cmd.Flags().IntVar(&req.Take, "take", api.DefaultPageSize, "messages to return")
	return cmd
}

func printMessages(w io.Writer, msgs []backend.ChatMessage) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages.")
		return
	}
	for _, m := range msgs {
		sender := m.Sender.Name
		if sender == "" {
			sender = m.SenderID
		}
		line := m.Content
		if m.ImageURL != "" {
			line = strings.TrimSpace(line + " [image " + m.ImageURL + "]")
		}
		fmt.Fprintf(w, "%s  %-16s %s\n", formatTime(m.CreatedAt), sender, line)
	}
}

func newOpenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <chat>",
		Short: "Join a conversation's live channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.OpenChat(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s\n", resp.ChatID, resp.State)
				})
				return nil
			})
		},
	}
}

func newCloseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close <chat>",
		Short: "Leave a conversation's live channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.CloseChat(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					if !resp.Closed {
						fmt.Fprintln(w, "Chat was not open.")
					}
				})
				return nil
			})
		},
	}
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	var image string
	cmd := &cobra.Command{
		Use:   "send <chat> <text...>",
		Short: "Send a message to a conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &api.SendRequest{ChatID: args[0], Content: strings.Join(args[1:], " "), ImageURL: image}
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				if _, err := c.OpenChat(ctx, req.ChatID); err != nil {
					return err
				}
				resp, err := c.Send(ctx, req)
				if err != nil {
					return err
				}
				if !resp.Sent {
					return errors.New("chat channel not connected, message dropped")
				}
				opts.output(cmd.OutOrStdout(), resp, func(io.Writer) {})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "image URL to attach")
	return cmd
}

func newReadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read <chat>",
		Short: "Mark a conversation as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.MarkRead(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					if !resp.Sent {
						fmt.Fprintln(w, "Marked read locally; chat not open, server not told.")
					}
				})
				return nil
			})
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var req api.SearchRequest
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search cached messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Search(ctx, &req)
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					printMessages(w, resp.Messages)
				})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.ChatID, "chat", "", "limit to one chat")
	cmd.Flags().IntVar(&req.Limit, "limit", api.DefaultPageSize, "maximum results")
	return cmd
}

func newMembersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "members <chat>",
		Short: "List the members of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Members(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
					for _, m := range resp.Members {
						fmt.Fprintf(w, "%-24s %s\n", m.ID, m.Name)
					}
				})
				return nil
			})
		},
	}
}
