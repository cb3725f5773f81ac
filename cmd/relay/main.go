// Command relay serves voice calls from a ConversationRelay gateway.
//
//	relay -config config.yaml
//
// Every setting can also be given through EMA_* environment variables, e.g.
// EMA_LLM_API_KEY or EMA_DATABASE_DRIVER=postgres.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	orchestration "github.com/koscakluka/ema-relay/core"
	"github.com/koscakluka/ema-relay/core/llms/openai"
	"github.com/koscakluka/ema-relay/core/prompts"
	"github.com/koscakluka/ema-relay/core/relay"
	"github.com/koscakluka/ema-relay/core/store"
	"github.com/koscakluka/ema-relay/core/store/gormstore"
	"github.com/koscakluka/ema-relay/core/store/redisstore"
	"github.com/koscakluka/ema-relay/core/turncompletion"
	turncompletionllm "github.com/koscakluka/ema-relay/core/turncompletion/llm"
	"github.com/koscakluka/ema-relay/internal/config"
	"github.com/koscakluka/ema-relay/internal/metrics"
	"github.com/koscakluka/ema-relay/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if port := os.Getenv("PORT"); port != "" && os.Getenv(config.DefaultEnvPrefix+"_SERVER_ADDR") == "" {
		cfg.Server.Addr = ":" + port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	providers, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("failed to initialize telemetry", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to flush telemetry", "error", err)
		}
	}()

	sessions, users, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	source, err := prompts.New(
		prompts.WithDirectory(cfg.Prompts.Directory),
		prompts.WithTimeZone(cfg.Prompts.TimeZone),
	)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	collector := metrics.NewCollector("ema")
	orchestrator := orchestration.NewOrchestrator(orchestratorOptions(cfg, source, sessions, users, collector)...)
	defer orchestrator.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", otelhttp.NewHandler(relay.NewHandler(orchestrator,
		relay.WithReadLimit(cfg.Limits.ReadLimitBytes),
		relay.WithWriteTimeout(cfg.Limits.WriteTimeout),
		relay.WithKeepAlive(cfg.Limits.PingInterval, cfg.Limits.PongWait),
		relay.WithRateLimit(cfg.Limits.EventsPerSecond, cfg.Limits.EventBurst),
	), "relay"))
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "ok %d\n", orchestrator.ActiveCalls())
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("relay listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down", "active_calls", orchestrator.ActiveCalls())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		// hijacked websocket connections are not tracked by Shutdown
		orchestrator.Close()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func orchestratorOptions(
	cfg *config.Config,
	source *prompts.Source,
	sessions store.SessionStore,
	users store.UserDirectory,
	collector *metrics.Collector,
) []orchestration.OrchestratorOption {
	clientOpts := []openai.ClientOption{
		openai.WithModel(cfg.LLM.ResponseModel),
		openai.WithHTTPClient(&http.Client{
			Timeout:   cfg.LLM.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if cfg.LLM.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	client := openai.NewClient(cfg.LLM.APIKey, clientOpts...)

	opts := []orchestration.OrchestratorOption{
		orchestration.WithResponseModel(cfg.LLM.ResponseModel),
		orchestration.WithSessionStore(sessions),
		orchestration.WithUserDirectory(users),
		orchestration.WithPrompts(source),
		orchestration.WithMetrics(collector),
		orchestration.WithNotDoneWait(cfg.Engine.NotDoneWaitSeconds),
		orchestration.WithSpeakGreeting(cfg.Engine.SpeakGreeting),
	}

	if cfg.Engine.Streaming {
		opts = append(opts, orchestration.WithStreamingLLM(client))
	} else {
		opts = append(opts, orchestration.WithLLM(client))
	}

	if cfg.Engine.ClassifyTurns {
		var classifier turncompletion.Classifier
		if cfg.LLM.StructuredClassifier {
			classifier = turncompletionllm.NewClassifierWithStructuredPrompt(client, turncompletionllm.WithModel(cfg.LLM.ClassifierModel))
		} else {
			classifier = turncompletionllm.NewClassifierWithGeneralPrompt(client, turncompletionllm.WithModel(cfg.LLM.ClassifierModel))
		}
		opts = append(opts, orchestration.WithClassifier(classifier))
	}

	if cfg.Engine.SummarizeOnClose {
		opts = append(opts, orchestration.WithSummarizer(orchestration.NewSummarizer(client,
			orchestration.WithSummaryModel(cfg.LLM.SummaryModel),
			orchestration.WithSummaryLocation(source.Location()),
		)))
	}

	return opts
}

func openStores(ctx context.Context, cfg *config.Config) (store.SessionStore, store.UserDirectory, func(), error) {
	if cfg.Database.Driver == "memory" {
		memory := store.NewMemory()
		return memory, memory, func() {}, nil
	}

	dsn := cfg.Database.DSN
	if cfg.Database.Driver == gormstore.DriverPostgres {
		dsn = cfg.Database.PostgresDSN()
	}
	db, err := gormstore.Open(cfg.Database.Driver, dsn, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	persistent := gormstore.New(db)
	if cfg.Database.AutoMigrate {
		if err := persistent.AutoMigrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, nil, nil, err
		}
	}

	if !cfg.Redis.Enabled {
		return persistent, persistent, func() { _ = sqlDB.Close() }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cache := redisstore.New(persistent, client,
		redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix),
		redisstore.WithTTL(cfg.Redis.TTL),
	)
	if err := cache.Ping(ctx); err != nil {
		slog.Warn("redis unavailable, sessions are read from the database", "addr", cfg.Redis.Addr, "error", err)
	}

	return cache, persistent, func() {
		_ = client.Close()
		_ = sqlDB.Close()
	}, nil
}
