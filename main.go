package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oakmere/prospector/internal/agents"
	"github.com/oakmere/prospector/internal/approval"
	"github.com/oakmere/prospector/internal/config"
	"github.com/oakmere/prospector/internal/connectors"
	"github.com/oakmere/prospector/internal/executor"
	"github.com/oakmere/prospector/internal/models"
	"github.com/oakmere/prospector/internal/session"
	"github.com/oakmere/prospector/internal/store"
	"github.com/oakmere/prospector/internal/tracing"
	"github.com/oakmere/prospector/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to prospector.yaml (falls back to CONFIG_PATH)")
	oneShot := flag.String("query", "", "run a single query and exit instead of the interactive loop")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Warn("Tracing initialization failed, continuing without it", zap.Error(err))
	}

	if cfg.Metrics.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("Metrics server listening", zap.String("address", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	registry, err := connectors.NewDefaultRegistry(connectorOptions(cfg), logger.Named("connectors"))
	if err != nil {
		logger.Fatal("Failed to build connector registry", zap.Error(err))
	}

	gate, policyGate, err := buildGate(cfg, logger.Named("approval"))
	if err != nil {
		logger.Fatal("Failed to build approval gate", zap.Error(err))
	}

	planner, summarizer, sufficiency, reporter := buildReasoningStack(cfg, logger)

	controller := workflow.NewController(
		planner,
		summarizer,
		executor.New(registry, logger.Named("executor")),
		sufficiency,
		reporter,
		gate,
		workflow.Policy{MaxRetryRounds: cfg.Policy.MaxRetryRounds},
		logger.Named("workflow"),
	)

	var opts []session.Option
	var history *store.HistoryStore
	var archive *session.RedisArchive
	if cfg.Archive.Enabled {
		a, hs, err := buildArchive(cfg, logger.Named("archive"))
		if err != nil {
			logger.Warn("Archive sink unavailable, continuing without archival", zap.Error(err))
		} else {
			archive, history = a, hs
			if archive != nil {
				opts = append(opts, session.WithArchive(archive))
			}
		}
	}
	mgr := session.NewManager(controller, logger.Named("session"), opts...)

	// Hot reload: rate limits and approval policies follow the config file
	// without a restart.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, logger.Named("config"))
		if err != nil {
			logger.Warn("Config watcher unavailable", zap.Error(err))
		} else {
			watcher.OnReload(func(next *config.Config) error {
				for name, rl := range next.Connectors.RateLimits {
					registry.SetRateLimit(models.DataSource(name), rl.RPS, rl.Burst)
				}
				if policyGate != nil {
					return policyGate.LoadPolicies()
				}
				return nil
			})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Config watcher failed to start", zap.Error(err))
			}
			defer watcher.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *oneShot != "" {
		runOnce(ctx, mgr, *oneShot, logger)
	} else {
		runInteractive(ctx, mgr, archive, history, logger)
	}

	if history != nil {
		for _, entry := range mgr.History() {
			history.SaveEntry(mgr.ID(), entry)
		}
		if err := history.Close(); err != nil {
			logger.Warn("History store close failed", zap.Error(err))
		}
	}
	logger.Info("Shutting down",
		zap.Int("queries", mgr.Statistics().QueriesStarted),
	)
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Logging.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("bad log level %q: %w", cfg.Logging.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

func connectorOptions(cfg *config.Config) connectors.Options {
	opts := connectors.Options{
		LatencyMin: time.Duration(cfg.Connectors.LatencyMinMs) * time.Millisecond,
		LatencyMax: time.Duration(cfg.Connectors.LatencyMaxMs) * time.Millisecond,
	}
	if len(cfg.Connectors.RateLimits) > 0 {
		opts.RateLimits = make(map[string]connectors.RateLimit, len(cfg.Connectors.RateLimits))
		for name, rl := range cfg.Connectors.RateLimits {
			opts.RateLimits[name] = connectors.RateLimit{RPS: rl.RPS, Burst: rl.Burst}
		}
	}
	return opts
}

// buildGate returns the configured gate, plus the policy gate handle when
// one was built so hot reload can recompile it.
func buildGate(cfg *config.Config, logger *zap.Logger) (approval.Gate, *approval.PolicyGate, error) {
	switch cfg.Approval.Mode {
	case "policy":
		gate, err := approval.NewPolicyGate(approval.PolicyConfig{
			Path:       cfg.Approval.PolicyPath,
			FailClosed: cfg.Approval.FailClosed,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return gate, gate, nil
	case "static":
		return approval.NewStaticGate(), nil, nil
	case "interactive", "":
		return approval.NewInteractiveGate(os.Stdin, os.Stdout), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown approval mode %q", cfg.Approval.Mode)
	}
}

func buildReasoningStack(cfg *config.Config, logger *zap.Logger) (agents.Planner, agents.Summarizer, agents.Sufficiency, agents.Reporter) {
	if cfg.Planner.Mode == "http" {
		client := agents.NewHTTPClient(agents.HTTPConfig{
			BaseURL: cfg.Planner.BaseURL,
			Timeout: time.Duration(cfg.Planner.TimeoutSeconds) * time.Second,
		}, logger.Named("reasoning"))
		return client, client, client, client
	}
	return agents.NewHeuristicPlanner(logger.Named("planner")),
		agents.NewHeuristicSummarizer(),
		agents.NewHeuristicSufficiency(logger.Named("sufficiency")),
		agents.NewMarkdownReporter()
}

// buildArchive assembles the Redis snapshot sink and the Postgres history
// writer. Either may be absent; both failing is an error.
func buildArchive(cfg *config.Config, logger *zap.Logger) (*session.RedisArchive, *store.HistoryStore, error) {
	var redisArchive *session.RedisArchive
	if cfg.Archive.Redis.Addr != "" {
		a, err := session.NewRedisArchive(session.RedisArchiveConfig{
			Addr: cfg.Archive.Redis.Addr,
			TTL:  time.Duration(cfg.Archive.Redis.TTLHours) * time.Hour,
		}, logger)
		if err != nil {
			logger.Warn("Redis archive unavailable", zap.Error(err))
		} else {
			redisArchive = a
		}
	}

	var history *store.HistoryStore
	if cfg.Archive.Postgres.DSN != "" {
		hs, err := store.New(store.Config{DSN: cfg.Archive.Postgres.DSN}, logger)
		if err != nil {
			logger.Warn("Postgres history store unavailable", zap.Error(err))
		} else {
			history = hs
		}
	}

	if redisArchive == nil && history == nil {
		return nil, nil, fmt.Errorf("no archive sink could be initialized")
	}
	return redisArchive, history, nil
}

func runOnce(ctx context.Context, mgr *session.Manager, query string, logger *zap.Logger) {
	res := mgr.ProcessQuery(ctx, query)
	printResult(os.Stdout, res)
	if res.Outcome == workflow.ClarificationRequested {
		logger.Info("Query needs clarification; rerun interactively to answer it")
	}
}

func runInteractive(ctx context.Context, mgr *session.Manager, archive *session.RedisArchive, history *store.HistoryStore, logger *zap.Logger) {
	in := bufio.NewScanner(os.Stdin)
	out := os.Stdout
	pendingClarification := false

	fmt.Fprintln(out, "prospector — enter a research query, or 'history', 'stats', 'recent', 'archived', 'quit'")
	for {
		if pendingClarification {
			fmt.Fprint(out, "clarify> ")
		} else {
			fmt.Fprint(out, "query> ")
		}
		if ctx.Err() != nil || !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}

		switch line {
		case "quit", "exit":
			return
		case "history":
			for _, e := range mgr.History() {
				fmt.Fprintf(out, "%d. [%s] %s\n", e.Sequence, e.Status, e.Query)
			}
			continue
		case "stats":
			s := mgr.Statistics()
			fmt.Fprintf(out, "started=%d succeeded=%d failed=%d rejected=%d clarifications=%d records=%d companies=%d individuals=%d\n",
				s.QueriesStarted, s.QueriesSucceeded, s.QueriesFailed, s.QueriesRejected,
				s.ClarificationRounds, s.TotalRecords, s.UniqueCompanies, s.UniqueIndividuals)
			continue
		case "recent":
			if history == nil {
				fmt.Fprintln(out, "no history store configured")
				continue
			}
			entries, err := history.RecentEntries(ctx, mgr.ID(), 10)
			if err != nil {
				logger.Error("History read failed", zap.Error(err))
				continue
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%d. [%s] %s\n", e.Sequence, e.Status, e.Query)
			}
			continue
		case "archived":
			if archive == nil {
				fmt.Fprintln(out, "no session archive configured")
				continue
			}
			entries, stats, err := archive.Load(ctx, mgr.ID())
			if err != nil {
				logger.Error("Archive read failed", zap.Error(err))
				continue
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%d. [%s] %s\n", e.Sequence, e.Status, e.Query)
			}
			fmt.Fprintf(out, "archived: started=%d succeeded=%d records=%d\n",
				stats.QueriesStarted, stats.QueriesSucceeded, stats.TotalRecords)
			continue
		}

		var res session.QueryResult
		if pendingClarification {
			var err error
			res, err = mgr.ClarifyAndRetry(ctx, line)
			if err != nil {
				logger.Error("Clarification failed", zap.Error(err))
				pendingClarification = false
				continue
			}
		} else {
			res = mgr.ProcessQuery(ctx, line)
		}

		printResult(out, res)
		pendingClarification = res.Outcome == workflow.ClarificationRequested
	}
}

func printResult(out *os.File, res session.QueryResult) {
	switch res.Outcome {
	case workflow.ReportReady:
		fmt.Fprintln(out, res.Report)
	case workflow.ClarificationRequested:
		fmt.Fprintf(out, "Clarification needed: %s\n", res.Clarification.Question)
		for _, opt := range res.Clarification.Options {
			fmt.Fprintf(out, "  - %s\n", opt)
		}
	case workflow.Rejected:
		fmt.Fprintln(out, "Plan rejected; submit a different query.")
	case workflow.Failed:
		fmt.Fprintf(out, "Query failed: %v\n", res.Err)
	}
}
