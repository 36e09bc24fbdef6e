package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	user      string
	token     string
)

var rootCmd = &cobra.Command{
	Use:   "docregctl",
	Short: "CLI for the docregistry schema registry and document store",
	Long: `docregctl manages client schemas and documents on a docregistry server.

Schemas can be applied from YAML files; documents are read and written as JSON.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("DOCREGISTRY_URL", "http://localhost:8080"), "docregistry server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&user, "user", os.Getenv("DOCREGISTRY_USER"), "Caller identity; sets X-Remote-User")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("DOCREGISTRY_TOKEN"), "Bearer token for servers running JWT authentication")

	rootCmd.AddCommand(newSchemasCmd())
	rootCmd.AddCommand(newDocumentsCmd())
	rootCmd.AddCommand(newJobsCmd())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
