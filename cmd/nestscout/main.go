package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// defaultUser is the user the CLI and the MCP server act for unless
// --user or NESTSCOUT_USER says otherwise.
const defaultUser = "default"

var (
	noColor bool
	userID  string
)

var rootCmd = &cobra.Command{
	Use:           "nestscout",
	Short:         "Enrich, geocode and score saved apartment listings",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&userID, "user", envOr("NESTSCOUT_USER", defaultUser), "user id to act for")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(saveCmd, listCmd, showCmd, deleteCmd, enrichCmd)
	rootCmd.AddCommand(searchCmd, compareCmd, prefsCmd, exportCmd, configCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

