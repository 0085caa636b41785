package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cfernhout/reviewd/internal/adapter/api"
	"github.com/cfernhout/reviewd/internal/adapter/cli"
	githubadapter "github.com/cfernhout/reviewd/internal/adapter/hosting/github"
	"github.com/cfernhout/reviewd/internal/adapter/hosting/local"
	"github.com/cfernhout/reviewd/internal/adapter/llm/anthropic"
	"github.com/cfernhout/reviewd/internal/adapter/observability"
	"github.com/cfernhout/reviewd/internal/adapter/output/terminal"
	"github.com/cfernhout/reviewd/internal/adapter/scanner/exectool"
	"github.com/cfernhout/reviewd/internal/adapter/scanner/pattern"
	"github.com/cfernhout/reviewd/internal/adapter/store/sqlite"
	"github.com/cfernhout/reviewd/internal/config"
	"github.com/cfernhout/reviewd/internal/queue"
	"github.com/cfernhout/reviewd/internal/usecase/check"
	"github.com/cfernhout/reviewd/internal/usecase/insight"
	"github.com/cfernhout/reviewd/internal/usecase/intake"
	"github.com/cfernhout/reviewd/internal/usecase/pipeline"
	"github.com/cfernhout/reviewd/internal/usecase/quality"
	"github.com/cfernhout/reviewd/internal/usecase/scan"
	"github.com/cfernhout/reviewd/internal/version"
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
		FileName:    "reviewd",
		EnvPrefix:   "REVIEWD",
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := observability.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	repoDir := cfg.Git.RepositoryDir
	if repoDir == "" {
		repoDir = "."
	}

	scanner := buildScanner(ctx, cfg, logger)
	reviewer := buildReviewer(cfg, logger)

	checker := check.NewRunner(check.Deps{
		Engine:   local.NewEngine(repoDir),
		Scanner:  scanner,
		Quality:  quality.Analyze,
		Reviewer: reviewer,
	})

	root := cli.NewRootCommand(cli.Dependencies{
		Service: &service{
			cfg:      cfg,
			logger:   logger,
			scanner:  scanner,
			reviewer: reviewer,
		},
		Checker:     checker,
		Renderer:    terminal.NewRenderer(os.Stdout),
		DefaultAddr: cfg.Server.Addr,
		Version:     version.Value(),
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return nil
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// service wires the long-running review pipeline. Resources are opened
// when Serve runs, not at CLI construction, so the check command never
// touches the database.
type service struct {
	cfg      config.Config
	logger   *observability.Logger
	scanner  *scan.Aggregator
	reviewer *insight.Reviewer
}

func (s *service) Serve(ctx context.Context, addr string) error {
	cfg := s.cfg

	if dir := filepath.Dir(cfg.Store.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}
	st, err := sqlite.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	host := githubadapter.NewClient(cfg.Hosting.Token)
	if cfg.Hosting.BaseURL != "" {
		host.SetBaseURL(cfg.Hosting.BaseURL)
	}
	host.SetTimeout(parseDuration(cfg.Hosting.Timeout, 30*time.Second))
	if cfg.Hosting.MaxRetries > 0 {
		host.SetMaxRetries(cfg.Hosting.MaxRetries)
	}
	host.SetInitialBackoff(parseDuration(cfg.Hosting.InitialBackoff, 2*time.Second))

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Host:     host,
		Scanner:  s.scanner,
		Quality:  quality.Analyze,
		Reviewer: s.reviewer,
		Store:    st,
		Logger:   s.logger,
	})

	jobs := queue.New(cfg.Queue.Workers, cfg.Queue.Capacity, s.logger)
	jobs.Register(intake.JobKindReview, func(ctx context.Context, job queue.Job) error {
		reviewID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
		}
		return orchestrator.Run(ctx, reviewID)
	})
	jobs.Start()
	defer jobs.Close()

	svc := intake.NewService(st, host, jobs, s.logger)
	server := api.NewServer(svc, st, s.logger)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  parseDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: parseDuration(cfg.Server.WriteTimeout, 30*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "review service listening", map[string]any{"addr": addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), parseDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildScanner assembles the enabled static-analysis backends.
func buildScanner(ctx context.Context, cfg config.Config, logger *observability.Logger) *scan.Aggregator {
	var backends []scan.Backend

	if cfg.Scanners.Pattern.Enabled {
		backends = append(backends, pattern.New())
	}
	if cfg.Scanners.Gosec.Enabled {
		tool := exectool.NewGosec()
		if tool.Available() {
			backends = append(backends, tool)
		} else {
			logger.Warn(ctx, "scanner binary not found, skipping", map[string]any{"scanner": tool.Name()})
		}
	}
	if cfg.Scanners.Semgrep.Enabled {
		tool := exectool.NewSemgrep()
		if tool.Available() {
			backends = append(backends, tool)
		} else {
			logger.Warn(ctx, "scanner binary not found, skipping", map[string]any{"scanner": tool.Name()})
		}
	}

	return scan.NewAggregator(backends, parseDuration(cfg.Scanners.Timeout, 2*time.Minute), logger)
}

// buildReviewer constructs the AI review stage. A disabled LLM yields a
// reviewer that always returns the deterministic fallback insight.
func buildReviewer(cfg config.Config, logger *observability.Logger) *insight.Reviewer {
	var generator insight.Generator
	if cfg.LLM.Enabled {
		generator = anthropic.New(cfg.LLM.APIKey, cfg.LLM.Model)
	}

	reviewer := insight.NewReviewer(generator, logger)
	reviewer.SetTimeout(parseDuration(cfg.LLM.Timeout, 90*time.Second))
	reviewer.SetMaxTokens(cfg.LLM.MaxTokens)
	return reviewer
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "reviewd"))
	}
	return paths
}
