package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/config"
)

const envPassword = "MEDIADECK_PASSWORD"

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var user string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the media library and save the session",
		Long: `Sign in to the media library backend.

The password is read from stdin with --password-stdin, or from the
MEDIADECK_PASSWORD environment variable. The session cookie is stored in
the config file so later commands and the TUI reuse it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(user) == "" {
				return errors.New("--user is required")
			}
			password, err := readPassword(cmd.InOrStdin(), passwordStdin)
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := backend.NewClient(cfg.BackendURL, backend.WithHTTPClient(ctx.backendHTTPClient()))
			if err != nil {
				return fmt.Errorf("init backend client: %w", err)
			}
			session, err := client.Login(cmd.Context(), user, password)
			if err != nil {
				if errors.Is(err, backend.ErrUnauthorized) {
					return errors.New("login failed: wrong username or password")
				}
				return fmt.Errorf("login failed: %w", err)
			}
			me, err := client.Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("verify session: %w", err)
			}

			_, err = ctx.updateConfig(func(stored *config.Config) error {
				stored.SessionCookie = session.AccessToken
				stored.CSRFToken = session.CSRFToken
				return nil
			})
			if err != nil {
				return fmt.Errorf("save session: %w", err)
			}

			role := "user"
			if me.IsAdmin {
				role = "admin"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s) at %s\n", me.Username, role, client.BaseURL())
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "Username or email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func readPassword(in io.Reader, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", errors.New("empty password on stdin")
		}
		return password, nil
	}
	if v := os.Getenv(envPassword); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no password: use --password-stdin or set %s", envPassword)
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved library session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.SessionCookie == "" && cfg.CSRFToken == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			_, err = ctx.updateConfig(func(stored *config.Config) error {
				stored.SessionCookie = ""
				stored.CSRFToken = ""
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
