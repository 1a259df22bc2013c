package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/apiclient"
	"github.com/jonathan/interview-prep/internal/observability"
	"github.com/jonathan/interview-prep/internal/types"
	"github.com/spf13/cobra"
)

var (
	listStatus string
	listLimit  int
	outputJSON bool
)

// withClient parses the job id argument and runs fn with a configured client.
func withClient(fn func(cmd *cobra.Command, client *apiclient.Client, id uuid.UUID) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var id uuid.UUID
		if len(args) > 0 {
			parsed, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			id = parsed
		}
		cfg, err := clientEnv()
		if err != nil {
			return err
		}
		logger, err := clientLogger(cfg)
		if err != nil {
			return err
		}
		return fn(cmd, newAPIClient(cfg, logger), id)
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, client *apiclient.Client, _ uuid.UUID) error {
		resp, err := client.List(cmd.Context(), apiclient.ListOptions{Status: types.JobStatus(listStatus), Limit: listLimit})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCOMPANY\tROLE\tSTATUS\tSTEP\tPROGRESS")
		for _, j := range resp.Jobs {
			status := string(j.Status)
			if j.Stall.IsStalled {
				status += " (stalled)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d%%\n", j.JobID, j.Company, j.Role, status, j.ProgressStep, j.ProgressPercentage)
		}
		return w.Flush()
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the current progress of a job",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, client *apiclient.Client, id uuid.UUID) error {
		resp, err := client.Status(cmd.Context(), id)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd, resp)
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintProgress(resp.Snapshot.Job(), resp.Stall.StalledSeconds, resp.Retryable)
		return nil
	}),
}

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Restart a failed or stalled job",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, client *apiclient.Client, id uuid.UUID) error {
		resp, err := client.Retry(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", resp.JobID, resp.Status)
		return nil
	}),
}

var outputCmd = &cobra.Command{
	Use:   "output <job-id>",
	Short: "Print the interview prep output of a completed job",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, client *apiclient.Client, id uuid.UUID) error {
		out, err := client.Output(cmd.Context(), id)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd, out)
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintSynthesis(out)
		return nil
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and everything it produced",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, client *apiclient.Client, id uuid.UUID) error {
		if err := client.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %s deleted\n", id)
		return nil
	}),
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only jobs in this status")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of jobs")
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "Print raw JSON")
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Print raw JSON")

	rootCmd.AddCommand(listCmd, statusCmd, retryCmd, outputCmd, deleteCmd)
}
