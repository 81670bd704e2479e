package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/notify"
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the pipeline server",
	Long: `Log in to the pipeline server and store the session locally.
Missing credentials are prompted for.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		creds := api.Credentials{Username: loginUsername, Password: loginPassword}
		if creds.Username == "" {
			prompt := promptui.Prompt{
				Label: "Username",
				Validate: func(input string) error {
					if len(input) == 0 {
						return fmt.Errorf("username is required")
					}
					return nil
				},
			}
			if creds.Username, err = prompt.Run(); err != nil {
				return err
			}
		}
		if creds.Password == "" {
			prompt := promptui.Prompt{Label: "Password", Mask: '*'}
			if creds.Password, err = prompt.Run(); err != nil {
				return err
			}
		}

		if !s.gateway.Login(cmd.Context(), creds) {
			return errors.New("login failed: username and password do not match")
		}
		session := s.gateway.Session(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", displayName(session))
		return nil
	},
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		s.gateway.Logout(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

// whoamiCmd represents the whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		session := s.gateway.Session(cmd.Context())
		if session == nil {
			return errors.New("not logged in")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "User:    %s\n", displayName(session))
		fmt.Fprintf(out, "Server:  %s\n", s.cfg.URL)
		if session.Expiry.IsZero() {
			fmt.Fprintln(out, "Expires: unknown")
		} else {
			fmt.Fprintf(out, "Expires: %s\n", session.Expiry.Local().Format(time.RFC3339))
		}
		if s.gateway.Expired(cmd.Context(), time.Now()) {
			s.presenter.Notify(expiredNotice())
		}
		return nil
	},
}

func displayName(s *api.Session) string {
	if s == nil {
		return ""
	}
	if s.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", s.DisplayName, s.Username)
	}
	return s.Username
}

func expiredNotice() notify.Config {
	return notify.Config{
		Title:   "Session expired",
		Message: "Run pipedeck-ctl login to sign in again.",
		Type:    notify.Warning,
	}
}

// requireLogin stops commands that need a session when there is none.
func requireLogin(ctx context.Context, s *session) error {
	if s.gateway.Session(ctx) == nil {
		return errors.New("not logged in: run pipedeck-ctl login first")
	}
	if s.gateway.Expired(ctx, time.Now()) {
		s.presenter.Notify(expiredNotice())
	}
	return nil
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (prompted when omitted)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
