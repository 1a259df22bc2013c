package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/apiclient"
	"github.com/jonathan/interview-prep/internal/config"
	"github.com/jonathan/interview-prep/internal/observability"
	"github.com/jonathan/interview-prep/internal/progress"
	"github.com/jonathan/interview-prep/internal/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var trackAutoRetry bool

var trackCmd = &cobra.Command{
	Use:   "track <job-id>",
	Short: "Follow a job until it completes",
	Long: `Follow a job's progress, polling faster while it is young and listening for
server-sent events in between. A job that stops reporting progress is flagged
as stalled; once a retry is offered, --auto-retry takes it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q: %w", args[0], err)
		}
		cfg, err := clientEnv()
		if err != nil {
			return err
		}
		logger, err := clientLogger(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return trackJob(ctx, cmd.OutOrStdout(), newAPIClient(cfg, logger), cfg, id, trackAutoRetry, logger)
	},
}

func init() {
	trackCmd.Flags().BoolVar(&trackAutoRetry, "auto-retry", false, "Retry once when a stalled job becomes retryable")
	rootCmd.AddCommand(trackCmd)
}

// trackJob prints progress lines until the job is terminal, then the output of
// a completed job. A failed job is returned as an error.
func trackJob(ctx context.Context, out io.Writer, client *apiclient.Client, cfg *config.ClientConfig, id uuid.UUID, autoRetry bool, logger *zap.Logger) error {
	tracker := progress.NewClient(client, client, logger)
	tracker.Cadence = cadence(cfg.Progress)
	tracker.Stall = stallPolicy(cfg.Progress)

	printer := observability.NewPrinter(out)
	var (
		last    *types.Job
		shown   string
		retried bool
	)
	for u := range tracker.Track(ctx, id) {
		if u.Err != nil {
			if errors.Is(u.Err, progress.ErrJobNotFound) {
				return fmt.Errorf("job %s not found", id)
			}
			logger.Warn("status check failed", zap.Error(u.Err))
			continue
		}
		last = u.Job

		line := fmt.Sprintf("%s/%s/%d/%d/%t", u.Job.Status, u.Job.ProgressStep, u.Job.ProgressPercentage, u.Stall.StalledSeconds, u.Retryable)
		if line != shown {
			printer.PrintProgress(u.Job, u.Stall.StalledSeconds, u.Retryable)
			shown = line
		}

		if autoRetry && !retried && u.Stall.CanRetry {
			retried = true
			if _, err := client.Retry(ctx, id); err != nil {
				logger.Warn("retry rejected", zap.Error(err))
			} else {
				fmt.Fprintln(out, "stalled job restarted")
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if last == nil {
		return fmt.Errorf("no status received for job %s", id)
	}

	switch last.Status {
	case types.JobStatusCompleted:
		output, err := client.Output(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch output: %w", err)
		}
		printer.PrintSynthesis(output)
		return nil
	case types.JobStatusFailed:
		return fmt.Errorf("job failed; run \"prep_agent retry %s\" to try again", id)
	}
	return nil
}
