package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// jobView is the subset of a revalidation job the CLI shows.
type jobView struct {
	ID               string   `json:"id"`
	ClientID         string   `json:"client_id"`
	SchemaID         string   `json:"schema_id"`
	Collection       string   `json:"collection"`
	SchemaVersion    int      `json:"schema_version"`
	State            string   `json:"state"`
	Message          string   `json:"message"`
	RequestedAt      string   `json:"requested_at"`
	DocumentsChecked int      `json:"documents_checked"`
	DocumentsInvalid int      `json:"documents_invalid"`
	Samples          []string `json:"samples"`
}

type jobList struct {
	Jobs          []jobView `json:"jobs"`
	NextPageToken string    `json:"next_page_token"`
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect revalidation jobs",
	}
	cmd.AddCommand(newJobsListCmd(), newJobsGetCmd(), newJobsCancelCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	var clientID, state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List revalidation jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if clientID != "" {
				q.Set("client_id", clientID)
			}
			if state != "" {
				q.Set("state", state)
			}
			path := "/jobs/revalidations"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var list jobList
			if _, err := newClient().get(path, &list); err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}
			headers := []string{"id", "collection", "version", "state", "checked", "invalid", "requested"}
			return render(cmd.OutOrStdout(), list, headers, func() [][]string {
				rows := make([][]string, len(list.Jobs))
				for i, j := range list.Jobs {
					rows[i] = []string{
						j.ID, j.Collection, strconv.Itoa(j.SchemaVersion), j.State,
						strconv.Itoa(j.DocumentsChecked), strconv.Itoa(j.DocumentsInvalid), j.RequestedAt,
					}
				}
				return rows
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "Only jobs for this client")
	cmd.Flags().StringVar(&state, "state", "", "Only jobs in this state")
	return cmd
}

func newJobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get JOB_ID",
		Short: "Show a revalidation job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job jobView
			if _, err := newClient().get("/jobs/revalidations/"+url.PathEscape(args[0]), &job); err != nil {
				return fmt.Errorf("failed to get job: %w", err)
			}
			if outputFmt == "json" || outputFmt == "yaml" {
				return printOutput(cmd.OutOrStdout(), job)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:         %s\n", job.ID)
			fmt.Fprintf(w, "Collection: %s (version %d)\n", job.Collection, job.SchemaVersion)
			fmt.Fprintf(w, "State:      %s\n", job.State)
			if job.Message != "" {
				fmt.Fprintf(w, "Message:    %s\n", job.Message)
			}
			fmt.Fprintf(w, "Checked:    %d\n", job.DocumentsChecked)
			fmt.Fprintf(w, "Invalid:    %d\n", job.DocumentsInvalid)
			if len(job.Samples) > 0 {
				fmt.Fprintf(w, "Samples:\n  %s\n", strings.Join(job.Samples, "\n  "))
			}
			return nil
		},
	}
}

func newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a queued revalidation job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := newClient().post("/jobs/revalidations/"+url.PathEscape(args[0])+"/cancel", nil, nil)
			if err != nil {
				return fmt.Errorf("failed to cancel job: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}
