package main

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ginthi/docregistry/pkg/dynamic"
	"github.com/ginthi/docregistry/pkg/schema"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Manage documents",
	}
	cmd.AddCommand(
		newDocumentsListCmd(),
		newDocumentsGetCmd(),
		newDocumentsCreateCmd(),
		newDocumentsDeleteCmd(),
	)
	return cmd
}

func documentPath(clientID, collection string) string {
	return "/documents/" + url.PathEscape(clientID) + "/" + url.PathEscape(collection)
}

func newDocumentsListCmd() *cobra.Command {
	var filter string
	var skip, limit int
	cmd := &cobra.Command{
		Use:   "list CLIENT_ID COLLECTION",
		Short: "List a client's documents in a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("skip", strconv.Itoa(skip))
			q.Set("limit", strconv.Itoa(limit))
			if filter != "" {
				q.Set("filter", filter)
			}
			var docs []map[string]any
			if _, err := newClient().get(documentPath(args[0], args[1])+"?"+q.Encode(), &docs); err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}
			cols := documentColumns(docs, dynamic.EnvelopeKeys)
			return render(cmd.OutOrStdout(), docs, cols, func() [][]string {
				rows := make([][]string, len(docs))
				for i, d := range docs {
					row := make([]string, len(cols))
					for j, c := range cols {
						row[j] = truncate(formatValue(d[c]), 40)
					}
					rows[i] = row
				}
				return rows
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", `Filter expression, e.g. "status = 'open' and amount > 100"`)
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of documents to skip")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of documents")
	return cmd
}

func newDocumentsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get CLIENT_ID COLLECTION DOCUMENT_ID",
		Short: "Show one document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc map[string]any
			if _, err := newClient().get(documentPath(args[0], args[1])+"/"+url.PathEscape(args[2]), &doc); err != nil {
				return fmt.Errorf("failed to get document: %w", err)
			}
			if outputFmt == "yaml" {
				return printYAML(cmd.OutOrStdout(), doc)
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func newDocumentsCreateCmd() *cobra.Command {
	var clientID, collection, vendorID, data, file string
	cmd := &cobra.Command{
		Use:   "create --client CLIENT_ID --collection NAME (--data JSON | -f FILE)",
		Short: "Create a document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if clientID == "" || collection == "" {
				return errors.New("--client and --collection are required")
			}
			var raw []byte
			switch {
			case data != "" && file != "":
				return errors.New("use either --data or --file, not both")
			case data != "":
				raw = []byte(data)
			case file != "":
				b, err := readFile(cmd, file)
				if err != nil {
					return err
				}
				raw = b
			default:
				return errors.New("--data or --file is required")
			}
			var attrs map[string]any
			if err := schema.UnmarshalJSON(raw, &attrs); err != nil {
				return fmt.Errorf("document data must be a JSON object: %w", err)
			}

			body := map[string]any{
				"client_id":       clientID,
				"collection_name": collection,
				"data":            attrs,
			}
			if vendorID != "" {
				body["vendor_id"] = vendorID
			}
			var doc map[string]any
			msg, err := newClient().post("/documents", body, &doc)
			if err != nil {
				return fmt.Errorf("failed to create document: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%v)\n", msg, doc[dynamic.KeyID])
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "Owning client ID")
	cmd.Flags().StringVar(&collection, "collection", "", "Collection (schema name)")
	cmd.Flags().StringVar(&vendorID, "vendor", "", "Optional vendor ID")
	cmd.Flags().StringVar(&data, "data", "", "Document attributes as a JSON object")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the attributes, or - for stdin")
	return cmd
}

func newDocumentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete CLIENT_ID COLLECTION DOCUMENT_ID",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := newClient().delete(documentPath(args[0], args[1]) + "/" + url.PathEscape(args[2]))
			if err != nil {
				return fmt.Errorf("failed to delete document: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}
