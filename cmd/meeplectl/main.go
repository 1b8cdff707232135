package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matheus3301/meeple/internal/client"
	"github.com/matheus3301/meeple/internal/profile"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	profile string
	json    bool
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "meeplectl",
		Short:        "Control a meeple profile daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.profile, "profile", "", "profile name (overrides config default)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "output in JSON format")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		newStatusCmd(opts),
		newProfilesCmd(opts),
		newLoginCmd(opts),
		newRegisterCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newEditProfileCmd(opts),
		newPasswordCmd(opts),
		newChatsCmd(opts),
		newHistoryCmd(opts),
		newOpenCmd(opts),
		newCloseCmd(opts),
		newSendCmd(opts),
		newReadCmd(opts),
		newSearchCmd(opts),
		newMembersCmd(opts),
		newFeedCmd(opts),
		newLikeCmd(opts),
		newPostCmd(opts),
		newUploadCmd(opts),
		newEventsCmd(opts),
		newJoinCmd(opts),
		newCheckinCmd(opts),
		newFriendsCmd(opts),
		newNotificationsCmd(opts),
		newWatchCmd(opts),
		newCheckinQRCmd(opts),
	)
	return root
}

func (o *rootOptions) profileName() (string, error) {
	name := profile.Resolve(o.profile)
	if err := profile.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// call dials the profile's daemon and runs fn with the request timeout.
func (o *rootOptions) call(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	return o.stream(cmd, o.timeout, fn)
}

// stream is call with an explicit deadline; zero means until the command is interrupted.
func (o *rootOptions) stream(cmd *cobra.Command, timeout time.Duration, fn func(ctx context.Context, c *client.Client) error) error {
	name, err := o.profileName()
	if err != nil {
		return err
	}
	c, err := client.New(profile.SocketPath(name))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for profile %q: %w", name, err)
	}
	defer func() { _ = c.Close() }()

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, c)
}

// output writes v as JSON with --json, otherwise calls text.
func (o *rootOptions) output(w io.Writer, v any, text func(w io.Writer)) {
	if o.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		}
		return
	}
	text(w)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
