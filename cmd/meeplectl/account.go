package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/matheus3301/meeple/internal/api"
	"github.com/matheus3301/meeple/internal/client"
	"github.com/spf13/cobra"
)

func newPasswordCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Recover a forgotten password",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "forgot <email>",
		Short: "Email a reset code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.ForgotPassword(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Reset code sent.")
				return nil
			})
		},
	})

	var password string
	reset := &cobra.Command{
		Use:   "reset <code>",
		Short: "Set a new password with a reset code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readPassword(cmd, "New password: "); err != nil {
					return err
				}
			}
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.ResetPassword(ctx, &api.ResetPasswordRequest{Code: args[0], Password: password}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password changed. Sign in again.")
				return nil
			})
		},
	}
	reset.Flags().StringVar(&password, "password", "", "new password (prompted when empty)")
	cmd.AddCommand(reset)
	return cmd
}

func newEditProfileCmd(opts *rootOptions) *cobra.Command {
	var (
		name   string
		age    int
		avatar string
	)
	cmd := &cobra.Command{
		Use:   "edit-profile",
		Short: "Change your name, age or avatar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req api.UpdateProfileRequest
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("age") {
				req.Age = &age
			}
			if req.Name == nil && req.Age == nil && avatar == "" {
				return errors.New("nothing to change")
			}
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				if avatar != "" {
					url, err := upload(ctx, c, avatar)
					if err != nil {
						return err
					}
					req.AvatarURL = &url
				}
				resp, err := c.UpdateProfile(ctx, &req)
				if err != nil {
					return err
				}
				printIdentity(opts, cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().IntVar(&age, "age", 0, "age in years")
	cmd.Flags().StringVar(&avatar, "avatar", "", "image file to upload as avatar")
	return cmd
}

func newUploadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image and print its URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				url, err := upload(ctx, c, args[0])
				if err != nil {
					return err
				}
				opts.output(cmd.OutOrStdout(), api.UploadResponse{URL: url}, func(w io.Writer) {
					fmt.Fprintln(w, url)
				})
				return nil
			})
		},
	}
}

// upload sends a local file through the daemon and returns its public URL.
func upload(ctx context.Context, c *client.Client, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > api.MaxUploadBytes {
		return "", fmt.Errorf("%s is larger than %d bytes", path, api.MaxUploadBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	resp, err := c.Upload(ctx, &api.UploadRequest{Filename: filepath.Base(path), Data: data})
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}
