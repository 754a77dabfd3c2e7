package commands

import (
	"fmt"
	"log/slog"
	"os"

	"scholar-seeker-ai/lib/osutil"
	"scholar-seeker-ai/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authVerifyCmd)
	authCmd.AddCommand(authClearCmd)
	rootCmd.AddCommand(authCmd)
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manages the saved arxiv session.",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in with the credentials from the environment and saves the session.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		ctx := osutil.SignalContext()
		mgr := createAuthManager(createBrowser(ctx, cfg), cfg)

		_, err := mgr.Acquire(ctx, readCredentials(), true)
		if err != nil {
			serviceutil.Fatal("login failed", err)
		}
		slog.Info("logged in", "session_file", cfg.SessionFile)
	},
}

var authVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Checks whether the saved session is still valid.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		ctx := osutil.SignalContext()
		b := createBrowser(ctx, cfg)
		mgr := createAuthManager(b, cfg)

		if !mgr.VerifySaved(ctx) {
			slog.Error("saved session is missing or stale", "session_file", cfg.SessionFile)
			os.Exit(1)
		}
		fmt.Println("session is valid")
	},
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Deletes the saved session.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		ctx := osutil.SignalContext()
		mgr := createAuthManager(createBrowser(ctx, cfg), cfg)

		err := mgr.ClearSession()
		if err != nil {
			serviceutil.Fatal("failed to clear session", err)
		}
		slog.Info("session cleared", "session_file", cfg.SessionFile)
	},
}
