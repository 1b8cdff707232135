package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/matheus3301/meeple/internal/api"
	"github.com/matheus3301/meeple/internal/client"
	"github.com/matheus3301/meeple/internal/lock"
	"github.com/matheus3301/meeple/internal/profile"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), st, func(w io.Writer) {
					fmt.Fprintf(w, "Profile:       %s\n", st.Profile)
					fmt.Fprintf(w, "Session:       %s\n", st.Session)
					if st.Identity != nil {
						fmt.Fprintf(w, "User:          %s <%s> (%s)\n", st.Identity.Name, st.Identity.Email, st.Identity.Role)
					}
					if !st.CredentialExpiresAt.IsZero() {
						expired := ""
						if st.CredentialExpired {
							expired = " (expired)"
						}
						fmt.Fprintf(w, "Token expires: %s%s\n", formatTime(st.CredentialExpiresAt), expired)
					}
					fmt.Fprintf(w, "Realtime:      %s (%d channel)\n", st.Realtime, st.RealtimeChannels)
					fmt.Fprintf(w, "Open chats:    %d\n", st.OpenChats)
					fmt.Fprintf(w, "Unread:        %d notifications\n", st.UnreadNotifications)
					fmt.Fprintf(w, "Cached:        %d messages\n", st.CachedMessages)
					fmt.Fprintf(w, "Uptime:        %dms\n", st.UptimeMs)
				})
				return nil
			})
		},
	}
}

type profileInfo struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	DaemonRunning bool   `json:"daemonRunning"`
	PID           int    `json:"pid,omitempty"`
}

func newProfilesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List known profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := profile.List()
			if err != nil {
				return err
			}
			infos := make([]profileInfo, 0, len(names))
			for _, name := range names {
				pid, held := lock.Held(profile.Dir(name))
				infos = append(infos, profileInfo{Name: name, Path: profile.Dir(name), DaemonRunning: held, PID: pid})
			}
			opts.output(cmd.OutOrStdout(), infos, func(w io.Writer) {
				if len(infos) == 0 {
					fmt.Fprintln(w, "No profiles found.")
					return
				}
				for _, p := range infos {
					running := "stopped"
					if p.DaemonRunning {
						running = fmt.Sprintf("running, pid %d", p.PID)
					}
					fmt.Fprintf(w, "%-20s %s (%s)\n", p.Name, p.Path, running)
				}
			})
			return nil
		},
	}
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and store the credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readPassword(cmd, "Password: "); err != nil {
					return err
				}
			}
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.SignIn(ctx, &api.SignInRequest{Identifier: args[0], Password: password})
				if err != nil {
					return err
				}
				printIdentity(opts, cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	return cmd
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var req api.SignUpRequest
	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Identifier = args[0]
			if req.Password == "" {
				var err error
				if req.Password, err = readPassword(cmd, "Password: "); err != nil {
					return err
				}
			}
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.SignUp(ctx, &req)
				if err != nil {
					return err
				}
				printIdentity(opts, cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Age, "age", "", "age in years")
	cmd.Flags().StringVar(&req.Password, "password", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("age")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.SignOut(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Refresh and show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Refresh(ctx)
				if err != nil {
					st, serr := c.Status(ctx)
					if serr != nil || st.Identity == nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: refresh failed, showing last known identity: %v\n", err)
					resp = &api.IdentityResponse{Identity: st.Identity}
				}
				printIdentity(opts, cmd, resp)
				return nil
			})
		},
	}
}

func printIdentity(opts *rootOptions, cmd *cobra.Command, resp *api.IdentityResponse) {
	opts.output(cmd.OutOrStdout(), resp, func(w io.Writer) {
		id := resp.Identity
		if id == nil {
			fmt.Fprintln(w, "Not signed in.")
			return
		}
		fmt.Fprintf(w, "%s <%s>\n", id.Name, id.Email)
		fmt.Fprintf(w, "ID:   %s\n", id.ID)
		fmt.Fprintf(w, "Role: %s\n", id.Role)
		if !id.ProfileComplete {
			fmt.Fprintln(w, "Profile incomplete.")
		}
	})
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(pw), err
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
