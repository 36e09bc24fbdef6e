// Package main is the docregistry server: the schema registry and document
// store API plus its migration and seeding commands.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// glog writes startup failures; keep them on stderr.
	_ = flag.Set("logtostderr", "true")

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	loader := newConfigLoader()

	rootCmd := &cobra.Command{
		Use:   "docregistry",
		Short: "Multi-tenant schema registry and document store",
		Long: `docregistry stores per-client document schemas and the documents
written against them.

Configuration is read from an optional YAML file, DOCREGISTRY_* environment
variables and command-line flags, in increasing order of precedence.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loader.load(cfgFile, cmd.Flags())
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("db-type", "", "Database type: postgres, mysql or sqlite")
	rootCmd.PersistentFlags().String("db-dsn", "", "Database connection string")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")

	rootCmd.AddCommand(newServeCmd(loader))
	rootCmd.AddCommand(newMigrateCmd(loader))
	rootCmd.AddCommand(newSeedCmd(loader))
	return rootCmd
}
