package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/macrocam/internal/errors"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/tui"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in, or register a new account",
	Long: `Sign in with an email and password. When sign-in fails the same
credentials are used to register a new account.

The session is cached in the state directory and reused by the client and
"macrocam today". Without a terminal the password is read from
MACROCAM_PASSWORD.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the cached session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var loginEmail string

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	email, password := loginEmail, os.Getenv("MACROCAM_PASSWORD")
	if password == "" && tui.ShouldPrompt() {
		creds, err := tui.PromptForCredentials(email)
		if err != nil {
			return err
		}
		email, password = creds.Email, creds.Password
	}
	if email == "" || password == "" {
		return errors.New(errors.ErrCodeAuthCredentials, "Email and password are required").
			WithSuggestion("Pass --email and set MACROCAM_PASSWORD when no terminal is attached")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stack, err := newClientStack(ctx, cfg, newLogger(cfg, log.OutputDiscard()))
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.manager.SignInOrRegister(ctx, email, password); err != nil {
		return err
	}

	if uid, ok := stack.manager.UserID(); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", email)
		log.DefaultLogger().Debug("session cached", "user_id", uid)
		return nil
	}
	// registration that waits for email confirmation yields no session
	fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s; confirm your email, then log in again\n", email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stack, err := newClientStack(ctx, cfg, newLogger(cfg, log.OutputDiscard()))
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.manager.Initialize(ctx); err != nil {
		return err
	}
	if _, ok := stack.manager.UserID(); !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
		return nil
	}
	if err := stack.manager.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}
