package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/jonathan/interview-prep/internal/config"
	"github.com/jonathan/interview-prep/internal/types"
	"github.com/spf13/cobra"
)

var (
	submitFile     string
	submitCompany  string
	submitRole     string
	submitLocale   string
	submitJobLinks []string
	submitCVFile   string
	submitTrack    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an interview prep job",
	Long: `Submit a job from a JSON file (--file) or from flags. Flags override values
read from the file. The command returns as soon as the job is accepted unless
--track is given.`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "Path to a submission JSON file")
	submitCmd.Flags().StringVarP(&submitCompany, "company", "c", "", "Company name")
	submitCmd.Flags().StringVarP(&submitRole, "role", "r", "", "Role title")
	submitCmd.Flags().StringVar(&submitLocale, "locale", "", "Locale of the posting, e.g. en-US")
	submitCmd.Flags().StringSliceVar(&submitJobLinks, "job-link", nil, "Job posting URL (repeatable)")
	submitCmd.Flags().StringVar(&submitCVFile, "cv-file", "", "Path to a plain text CV")
	submitCmd.Flags().BoolVarP(&submitTrack, "track", "t", false, "Follow the job until it completes")
	rootCmd.AddCommand(submitCmd)
}

// submissionFromFlags builds the job input from --file and the override flags.
func submissionFromFlags() (*types.JobInput, error) {
	in := &types.JobInput{}
	if submitFile != "" {
		loaded, err := config.LoadSubmission(submitFile)
		if err != nil {
			return nil, err
		}
		in = loaded
	}
	if submitCompany != "" {
		in.Company = submitCompany
	}
	if submitRole != "" {
		in.Role = submitRole
	}
	if submitLocale != "" {
		in.Locale = submitLocale
	}
	if len(submitJobLinks) > 0 {
		in.JobLinks = submitJobLinks
	}
	if submitCVFile != "" {
		data, err := os.ReadFile(submitCVFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CV file: %w", err)
		}
		in.CVText = string(data)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	in, err := submissionFromFlags()
	if err != nil {
		return err
	}
	cfg, err := clientEnv()
	if err != nil {
		return err
	}
	logger, err := clientLogger(cfg)
	if err != nil {
		return err
	}
	client := newAPIClient(cfg, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	resp, err := client.Submit(ctx, *in)
	if err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", resp.JobID, resp.Status)
	if !submitTrack {
		return nil
	}
	return trackJob(ctx, cmd.OutOrStdout(), client, cfg, resp.JobID, false, logger)
}
