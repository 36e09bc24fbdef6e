package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginthi/docregistry/pkg/db"
	"github.com/ginthi/docregistry/pkg/logging"
)

func newMigrateCmd(loader *configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, flush, err := logging.New(loader.cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer flush()
			gdb, _, err := openDatabase(cmd.Context(), loader.cfg, true, logger)
			if err != nil {
				return err
			}
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := db.Rollback(loader.cfg.Database, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reverted %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to revert")
	cmd.AddCommand(down)

	return cmd
}
