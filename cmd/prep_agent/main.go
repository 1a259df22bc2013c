// Package main provides the entry point for the interview prep server and its command line client.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/jonathan/interview-prep/internal/apiclient"
	"github.com/jonathan/interview-prep/internal/config"
	"github.com/jonathan/interview-prep/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "prep_agent",
	Short: "Interview prep research server and client",
	Long: `prep_agent researches a company, a job posting and a CV in the background and
synthesizes interview stages, a question bank and a gap analysis.

Run "prep_agent serve" to start the API, then submit and track jobs against it.`,
	SilenceUsage: true,
}

var (
	serverURL string
	authToken string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (defaults to PREP_SERVER)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token (defaults to PREP_TOKEN)")
}

// clientEnv loads the client configuration with flag overrides applied.
func clientEnv() (*config.ClientConfig, error) {
	cfg, err := config.NewClientConfig()
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if authToken != "" {
		cfg.Token = authToken
	}
	return cfg, nil
}

func newAPIClient(cfg *config.ClientConfig, logger *zap.Logger) *apiclient.Client {
	opts := []apiclient.Option{apiclient.WithLogger(logger)}
	if cfg.Token != "" {
		opts = append(opts, apiclient.WithToken(cfg.Token))
	}
	return apiclient.New(cfg.ServerURL, opts...)
}

func clientLogger(cfg *config.ClientConfig) (*zap.Logger, error) {
	return observability.NewLogger(cfg.LogLevel, cfg.LogEncoding)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
