package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonathan/interview-prep/internal/artifacts"
	"github.com/jonathan/interview-prep/internal/config"
	"github.com/jonathan/interview-prep/internal/db"
	"github.com/jonathan/interview-prep/internal/fetch"
	"github.com/jonathan/interview-prep/internal/gather"
	"github.com/jonathan/interview-prep/internal/llm"
	"github.com/jonathan/interview-prep/internal/notify"
	"github.com/jonathan/interview-prep/internal/observability"
	"github.com/jonathan/interview-prep/internal/pipeline"
	"github.com/jonathan/interview-prep/internal/progress"
	"github.com/jonathan/interview-prep/internal/research"
	"github.com/jonathan/interview-prep/internal/resilience"
	"github.com/jonathan/interview-prep/internal/server"
	"github.com/jonathan/interview-prep/internal/server/ratelimit"
	"github.com/jonathan/interview-prep/internal/synthesis"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAddress string
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that accepts interview prep jobs, runs them in the
background and exposes their progress as JSON and server-sent events.

All settings come from the environment; see .env.example.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "Listen address (defaults to PREP_ADDRESS)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "Apply pending migrations before serving (postgres store only)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	if serveAddress != "" {
		cfg.Service.Address = serveAddress
	}

	logger, err := observability.NewLogger(cfg.Service.LogLevel, cfg.Service.LogEncoding)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	bus, err := notify.Open(ctx, cfg.Notify.Backend, notifyURL(cfg.Notify), logger)
	if err != nil {
		return fmt.Errorf("failed to open notify backend: %w", err)
	}
	defer func() { _ = bus.Close() }()

	deps, closeDeps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDeps()
	deps.Jobs, deps.Raw, deps.Outputs = store, store, store
	deps.Publisher = bus

	orch := pipeline.New(deps, pipelineConfig(cfg), logger)

	jwtCfg, err := cfg.Auth.JWT()
	if err != nil {
		return err
	}
	srv := server.New(server.Config{
		Address:   cfg.Service.Address,
		JWT:       jwtCfg,
		RateLimit: ratelimit.FromSettings(cfg.RateLimit),
		Stall:     stallPolicy(cfg.Progress),
	}, store, orch, bus, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	return shutdownAll(shutdownCtx, srv.Shutdown, orch.Shutdown)
}

// shutdownAll runs every step concurrently under the same deadline and joins
// their errors. Open event streams keep the server busy until the deadline and
// must not delay draining the runs.
func shutdownAll(ctx context.Context, steps ...func(context.Context) error) error {
	errs := make([]error, len(steps))
	var wg sync.WaitGroup
	for i, step := range steps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = step(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// openStore returns the job store, with raw artifacts in MinIO when configured.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (db.Store, func(), error) {
	var (
		base    db.Store
		closeFn = func() {}
	)
	switch cfg.Database.Store {
	case "memory":
		logger.Warn("using in-memory store; jobs are lost on restart")
		base = db.NewMemoryStore()
	default:
		if serveMigrate {
			if err := db.Migrate(cfg.Database.URL, logger); err != nil {
				return nil, nil, err
			}
		}
		database, err := db.ConnectWithMaxConns(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		base, closeFn = database, database.Close
	}

	if cfg.Artifacts.Backend != "minio" {
		return base, closeFn, nil
	}
	objects, err := artifacts.NewMinioStore(
		artifacts.WithEndpoint(cfg.Artifacts.Endpoint),
		artifacts.WithBucket(cfg.Artifacts.Bucket),
		artifacts.WithAccessKey(cfg.Artifacts.AccessKey),
		artifacts.WithSecretKey(cfg.Artifacts.SecretKey),
		artifacts.WithSSL(cfg.Artifacts.UseSSL),
	)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	logger.Info("raw artifacts stored in object storage", zap.String("bucket", objects.Bucket()))
	return db.WithArtifacts(base, objects), closeFn, nil
}

func notifyURL(c *config.NotifyConfig) string {
	switch c.Backend {
	case notify.BackendRedis:
		return c.RedisURL
	case notify.BackendNATS:
		return c.NATSURL
	}
	return ""
}

// buildDeps wires the gatherers and the synthesizer. Without GEMINI_API_KEY
// every source is left nil and jobs fail with gather_total_failure.
func buildDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (pipeline.Deps, func(), error) {
	var deps pipeline.Deps
	if cfg.LLM.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set; research is disabled")
		return deps, func() {}, nil
	}

	llmCfg := llm.DefaultConfig().
		WithModel(llm.TierLite, cfg.LLM.LiteModel).
		WithModel(llm.TierStandard, cfg.LLM.StandardModel).
		WithModel(llm.TierAdvanced, cfg.LLM.AdvancedModel)
	client, err := llm.NewClient(ctx, llmCfg, cfg.LLM.APIKey)
	if err != nil {
		return deps, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	fetchOpts := []fetch.FetcherOption{}
	if cfg.Search.UseBrowser {
		fetchOpts = append(fetchOpts, fetch.WithBrowserFallback(cfg.Search.BrowserTimeout))
	}
	fetcher := fetch.NewFetcher(logger.Named("fetch"), fetchOpts...)

	var searcher research.Searcher
	if cfg.Search.Enabled() {
		r, err := research.NewResearcher(ctx, cfg.Search.APIKey, cfg.Search.CX)
		if err != nil {
			_ = client.Close()
			return deps, nil, err
		}
		searcher = r
	} else {
		logger.Info("web search not configured; company research uses model knowledge only")
	}

	deps.Company = research.NewCompanyGatherer(client, searcher, fetcher, research.DefaultCompanyOptions(), logger.Named("company"))
	deps.Job = gather.NewJobGatherer(client, fetcher, logger.Named("job"))
	deps.CV = gather.NewCVGatherer(client)
	deps.Synthesizer = synthesis.New(client, logger.Named("synthesis"))
	return deps, func() { _ = client.Close() }, nil
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	p := cfg.Pipeline
	out := pipeline.DefaultConfig()
	out.Gather = gather.Timeouts{Company: p.CompanyTimeout, Job: p.JobTimeout, CV: p.CVTimeout}
	out.SynthesisTimeout = p.SynthesisTimeout
	out.PersistTimeout = p.PersistTimeout
	out.ProgressTimeout = p.StatusTimeout
	out.StallRetryAfter = cfg.Progress.RetryThreshold
	out.MaxConcurrentRuns = cfg.Service.MaxConcurrentRuns
	out.GatherRetry = resilience.RetryPolicy{
		MaxAttempts: p.RetryAttempts,
		BaseDelay:   p.RetryBaseDelay,
		MaxDelay:    p.RetryMaxDelay,
	}
	return out
}

func stallPolicy(p *config.ProgressConfig) progress.StallPolicy {
	return progress.StallPolicy{Threshold: p.StallThreshold, RetryAfter: p.RetryThreshold}
}

func cadence(p *config.ProgressConfig) progress.Cadence {
	return progress.Cadence{
		Tiers: []progress.Tier{
			{Until: 30 * time.Second, Interval: p.FastInterval},
			{Until: 60 * time.Second, Inclusive: true, Interval: p.MediumInterval},
		},
		Default: p.SlowInterval,
		Pending: p.FastInterval,
	}
}
