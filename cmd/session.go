package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"smartnotes/internal/logger"
	"smartnotes/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show or change who the notes belong to",
	Long: `Every notes command acts on behalf of the current session.

A signed-in user keeps notes in the local database (DATABASE_PATH). Guest mode
keeps notes in memory only, so nothing outlives a single command.
The session is stored in SESSION_FILE.`,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE:  runSessionStatus,
}

var sessionGuestCmd = &cobra.Command{
	Use:   "guest",
	Short: "Continue as a guest; notes are not saved",
	Args:  cobra.NoArgs,
	RunE:  runSessionGuest,
}

var sessionUserCmd = &cobra.Command{
	Use:     "user [user-id]",
	Aliases: []string{"login"},
	Short:   "Sign in as a user; notes are saved in the local database",
	Args:    cobra.ExactArgs(1),
	RunE:    runSessionUser,
}

var sessionClearCmd = &cobra.Command{
	Use:     "clear",
	Aliases: []string{"logout"},
	Short:   "Sign out",
	Args:    cobra.NoArgs,
	RunE:    runSessionClear,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStatusCmd, sessionGuestCmd, sessionUserCmd, sessionClearCmd)
}

func sessionManager() (*session.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return session.NewManager(cfg.SessionFile), nil
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	m, err := sessionManager()
	if err != nil {
		return err
	}
	state, err := m.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case state.GuestMode:
		fmt.Fprintln(out, "Guest mode (notes are not saved)")
	case state.UserID != "":
		fmt.Fprintf(out, "Signed in as %s\n", state.UserID)
	default:
		fmt.Fprintln(out, "No active session")
	}
	return nil
}

func runSessionGuest(cmd *cobra.Command, args []string) error {
	m, err := sessionManager()
	if err != nil {
		return err
	}
	if _, err := m.SetGuest(); err != nil {
		return err
	}
	log := logger.WithComponent("session")
	log.Info().Msg("Switched to guest mode")
	fmt.Fprintln(cmd.OutOrStdout(), "Guest mode enabled. Notes will not be saved.")
	return nil
}

func runSessionUser(cmd *cobra.Command, args []string) error {
	m, err := sessionManager()
	if err != nil {
		return err
	}
	state, err := m.SetUser(args[0])
	if err != nil {
		return err
	}
	log := logger.WithUserID(state.UserID)
	log.Info().Msg("Signed in")
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", state.UserID)
	return nil
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	m, err := sessionManager()
	if err != nil {
		return err
	}
	if err := m.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}
