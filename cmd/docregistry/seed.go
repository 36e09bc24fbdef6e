package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/logging"
	"github.com/ginthi/docregistry/pkg/schema"
	"github.com/ginthi/docregistry/pkg/tenancy"
)

// SeedFile lists development data. Clients and vendors are upserted by ID;
// schemas are created and skipped when the version already exists.
type SeedFile struct {
	Clients []tenancy.Client       `yaml:"clients"`
	Vendors []tenancy.Vendor       `yaml:"vendors"`
	Schemas []schema.CreateRequest `yaml:"schemas"`
}

func newSeedCmd(loader *configLoader) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert development clients, vendors and schemas",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read seed file: %w", err)
			}
			var seed SeedFile
			if err := yaml.Unmarshal(raw, &seed); err != nil {
				return fmt.Errorf("parse seed file %s: %w", file, err)
			}

			logger, flush, err := logging.New(loader.cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer flush()
			_, st, err := openDatabase(cmd.Context(), loader.cfg, true, logger)
			if err != nil {
				return err
			}
			registry := schema.NewRegistry(st.schemas, st.directory, schema.WithLogger(logger))
			return applySeed(cmd.Context(), st.directory, registry, &seed, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "Seed file")
	return cmd
}

func applySeed(ctx context.Context, dir *tenancy.Directory, registry *schema.Registry, seed *SeedFile, out io.Writer) error {
	for i := range seed.Clients {
		c := &seed.Clients[i]
		if err := dir.UpsertClient(ctx, c); err != nil {
			return fmt.Errorf("client %q: %w", c.Name, err)
		}
		fmt.Fprintf(out, "client %s %s\n", c.ID, c.Name)
	}
	for i := range seed.Vendors {
		v := &seed.Vendors[i]
		if err := dir.UpsertVendor(ctx, v); err != nil {
			return fmt.Errorf("vendor %q: %w", v.Name, err)
		}
		fmt.Fprintf(out, "vendor %s %s\n", v.ID, v.Name)
	}
	for _, req := range seed.Schemas {
		def, err := registry.Create(ctx, req)
		switch {
		case errs.HasCode(err, errs.CodeConflict):
			fmt.Fprintf(out, "schema %s exists, skipped\n", req.SchemaName)
		case err != nil:
			return fmt.Errorf("schema %q: %w", req.SchemaName, err)
		default:
			fmt.Fprintf(out, "schema %s v%d %s\n", def.SchemaName, def.Version, def.ID)
		}
	}
	return nil
}
