package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ginthi/docregistry/pkg/schema"
)

var schemaHeaders = []string{"id", "client", "name", "version", "active", "fields", "updated"}

func schemaRows(defs []schema.SchemaDefinition) func() [][]string {
	return func() [][]string {
		rows := make([][]string, len(defs))
		for i, d := range defs {
			rows[i] = []string{
				d.ID,
				d.ClientID,
				d.SchemaName,
				strconv.Itoa(d.Version),
				strconv.FormatBool(d.IsActive),
				strconv.Itoa(len(d.Fields)),
				d.UpdatedAt.Format("2006-01-02 15:04"),
			}
		}
		return rows
	}
}

func newSchemasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schemas",
		Aliases: []string{"schema"},
		Short:   "Manage client schemas",
	}
	cmd.AddCommand(
		newSchemasListCmd(),
		newSchemasGetCmd(),
		newSchemasVersionsCmd(),
		newSchemasActiveCmd(),
		newSchemasApplyCmd(),
		newSchemasActivateCmd(),
		newSchemasDeleteCmd(),
		newSchemasExportCmd(),
		newSchemasRevalidateCmd(),
	)
	return cmd
}

func newSchemasListCmd() *cobra.Command {
	var clientID string
	var skip, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schema versions, optionally for one client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := fmt.Sprintf("/client-schemas?skip=%d&limit=%d", skip, limit)
			if clientID != "" {
				path = "/client-schemas/client/" + clientID
			}
			var defs []schema.SchemaDefinition
			if _, err := newClient().get(path, &defs); err != nil {
				return fmt.Errorf("failed to list schemas: %w", err)
			}
			return render(cmd.OutOrStdout(), defs, schemaHeaders, schemaRows(defs))
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "Only list this client's schemas")
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of versions to skip")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of versions")
	return cmd
}

func newSchemasGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get SCHEMA_ID",
		Short: "Show one schema version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var def schema.SchemaDefinition
			if _, err := newClient().get("/client-schemas/"+args[0], &def); err != nil {
				return fmt.Errorf("failed to get schema: %w", err)
			}
			return printSchema(cmd.OutOrStdout(), &def)
		},
	}
}

func newSchemasVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions CLIENT_ID SCHEMA_NAME",
		Short: "List every version of a schema",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var defs []schema.SchemaDefinition
			if _, err := newClient().get("/client-schemas/client/"+args[0]+"/"+args[1], &defs); err != nil {
				return fmt.Errorf("failed to list versions: %w", err)
			}
			return render(cmd.OutOrStdout(), defs, schemaHeaders, schemaRows(defs))
		},
	}
}

func newSchemasActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active CLIENT_ID SCHEMA_NAME",
		Short: "Show the active version of a schema",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var def schema.SchemaDefinition
			if _, err := newClient().get("/client-schemas/client/"+args[0]+"/"+args[1]+"/active", &def); err != nil {
				return fmt.Errorf("failed to get active schema: %w", err)
			}
			return printSchema(cmd.OutOrStdout(), &def)
		},
	}
}

func newSchemasApplyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Create schema versions from a YAML file",
		Long: `Create schema versions from a YAML file. The file holds one schema, or
several separated by "---". Each document uses the create request fields:

  client_id: 6f1c2d3e-...
  schema_name: invoice
  fields:
    - name: invoice_number
      type: string
      required: true`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			raw, err := readFile(cmd, file)
			if err != nil {
				return err
			}
			reqs, err := decodeSchemaFile(raw)
			if err != nil {
				return err
			}
			client := newClient()
			for _, req := range reqs {
				var def schema.SchemaDefinition
				msg, err := client.post("/client-schemas", req, &def)
				if err != nil {
					return fmt.Errorf("failed to apply schema %q: %w", req.SchemaName, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", msg, def.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file, or - for stdin")
	return cmd
}

func readFile(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return raw, nil
}

// decodeSchemaFile parses one or more YAML documents into create requests.
func decodeSchemaFile(raw []byte) ([]schema.CreateRequest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	var reqs []schema.CreateRequest
	for {
		var req schema.CreateRequest
		err := dec.Decode(&req)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse schema file: %w", err)
		}
		if req.SchemaName == "" && len(req.Fields) == 0 {
			continue
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil, errors.New("schema file contains no schemas")
	}
	return reqs, nil
}

func newSchemasActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate SCHEMA_ID",
		Short: "Make a version the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := newClient().patch("/client-schemas/"+args[0]+"/activate", nil)
			if err != nil {
				return fmt.Errorf("failed to activate schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newSchemasDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete SCHEMA_ID",
		Short: "Delete a schema version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := newClient().delete("/client-schemas/" + args[0])
			if err != nil {
				return fmt.Errorf("failed to delete schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newSchemasExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export SCHEMA_ID",
		Short: "Print a version as JSON Schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc map[string]any
			if _, err := newClient().get("/client-schemas/"+args[0]+"/json-schema", &doc); err != nil {
				return fmt.Errorf("failed to export schema: %w", err)
			}
			if outputFmt == "yaml" {
				return printYAML(cmd.OutOrStdout(), doc)
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func newSchemasRevalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revalidate SCHEMA_ID",
		Short: "Check stored documents against a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job jobView
			msg, err := newClient().post("/client-schemas/"+args[0]+"/revalidate", nil, &job)
			if err != nil {
				return fmt.Errorf("failed to queue revalidation: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (job %s)\n", msg, job.ID)
			return nil
		},
	}
}

func printSchema(w io.Writer, def *schema.SchemaDefinition) error {
	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(w, def)
	}
	fmt.Fprintf(w, "ID:          %s\n", def.ID)
	fmt.Fprintf(w, "Client:      %s\n", def.ClientID)
	fmt.Fprintf(w, "Name:        %s\n", def.SchemaName)
	fmt.Fprintf(w, "Version:     %d\n", def.Version)
	fmt.Fprintf(w, "Active:      %t\n", def.IsActive)
	if def.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", def.Description)
	}
	fmt.Fprintln(w)

	rows := make([][]string, len(def.Fields))
	for i, f := range def.Fields {
		rows[i] = []string{
			f.Name,
			string(f.Type),
			strconv.FormatBool(f.Required),
			formatValue(f.Default),
			formatValue(f.AllowedValues),
		}
	}
	printTable(w, []string{"field", "type", "required", "default", "allowed"}, rows)
	return nil
}
