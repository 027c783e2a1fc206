// Command ctxpackd wires the indexing and search core into a long-running
// process: it loads configuration, opens the resource store, constructs the
// index scheduler (idle until a caller enqueues work through it), and starts
// the background update checker. It exposes no HTTP routing or auth surface — those
// are out of scope for this core — only a metrics endpoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ctxpack/ctxpack/internal/agent"
	"github.com/ctxpack/ctxpack/internal/chunker"
	"github.com/ctxpack/ctxpack/internal/config"
	"github.com/ctxpack/ctxpack/internal/embedding"
	"github.com/ctxpack/ctxpack/internal/hybridsearch"
	"github.com/ctxpack/ctxpack/internal/indexer"
	"github.com/ctxpack/ctxpack/internal/materializer"
	"github.com/ctxpack/ctxpack/internal/observability"
	"github.com/ctxpack/ctxpack/internal/scheduler"
	"github.com/ctxpack/ctxpack/internal/store"
	"github.com/ctxpack/ctxpack/internal/tool"
	"github.com/ctxpack/ctxpack/internal/updatechecker"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CTXPACK_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ctxpackd: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        os.Stderr,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})
	logger.Info("ctxpackd starting", "version", version, "database", cfg.Database.Path)

	if err := config.EnsureHomeLayout(cfg); err != nil {
		logger.Error("failed to create home layout", "error", err)
		os.Exit(1)
	}

	if cfg.Observability.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Observability.Sentry.DSN,
			Environment:      cfg.Observability.Sentry.Environment,
			TracesSampleRate: cfg.Observability.Sentry.SampleRate,
			EnableTracing:    true,
		}); err != nil {
			logger.Error("failed to initialize sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	var tracerProvider *observability.TracerProvider
	if cfg.Observability.Tracing.Enabled {
		tracerProvider, err = observability.NewTracerProvider(observability.TracerConfig{
			ServiceName:    "ctxpackd",
			ServiceVersion: version,
			OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
			SamplingRate:   cfg.Observability.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			logger.Error("failed to initialize tracing provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	var metrics *observability.MetricsCollector
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetricsCollector("ctxpack")
		metrics.SetSystemStartTime(time.Now())
		go startMetricsServer(cfg, logger)
	}
	_ = observability.NewErrorHandler(logger, metrics, cfg.Observability.Sentry.Enabled)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		if metrics != nil {
			metrics.SetComponentHealth("store", false)
		}
		os.Exit(1)
	}
	defer st.Close()
	if metrics != nil {
		metrics.SetComponentHealth("store", true)
	}

	mat := materializer.New(materializer.Config{
		ReposRoot:     cfg.Materializer.ReposRoot,
		CloneTimeout:  time.Duration(cfg.Materializer.CloneTimeoutS) * time.Second,
		DefaultBranch: cfg.Materializer.DefaultBranch,
	})

	chunk := chunker.New(chunker.Config{
		MaxChunkSize: cfg.Indexer.ChunkSize,
		OverlapSize:  cfg.Indexer.ChunkOverlap,
	})

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		logger.Error("failed to create embedder", "provider", cfg.Embedding.Provider, "error", err)
		if metrics != nil {
			metrics.SetComponentHealth("embedder", false)
		}
		os.Exit(1)
	}
	logger.Info("embedder initialized", "provider", cfg.Embedding.Provider, "dimensions", embedder.Dimensions())
	if metrics != nil {
		metrics.SetComponentHealth("embedder", true)
	}

	pipeline := &indexer.Pipeline{
		Store: st, Materializer: mat, Chunker: chunk, Embedder: embedder,
		Logger: logger, Metrics: metrics,
	}
	// Wired and ready for an external caller to Ensure() resources onto;
	// this binary has no HTTP/CLI surface of its own to receive index
	// requests, so the scheduler stays idle until embedded by one.
	_ = scheduler.New(st, pipeline.RunSync, pipeline.RunIndex, logger, metrics)

	searchEngine := hybridsearch.New(st, mat, embedder)
	searchEngine.Metrics = metrics
	toolSurface := tool.New(st, mat)

	// No LLM SDK is wired into this build; the agent driver runs against a
	// scripted no-op model until a real ChatModel is configured. QuickAnswer/
	// Explore/DeepResearch are otherwise fully wired against the same search
	// engine and tool surface a real ChatModel would use. Likewise idle
	// until an external caller drives it, for the same reason as the
	// scheduler above.
	agentDriver := agent.New(agent.NewMock("ctxpack-agent", []agent.ModelEvent{
		{Kind: agent.EventFinish, FinishReason: "stop"},
	}), searchEngine, toolSurface)
	agentDriver.Metrics = metrics
	_ = agentDriver

	checker := updatechecker.New(st, mat, logger)
	if err := checker.Start(ctx); err != nil {
		logger.Error("failed to start update checker", "error", err)
		if metrics != nil {
			metrics.SetComponentHealth("updatechecker", false)
		}
		os.Exit(1)
	}
	defer checker.Stop()
	if metrics != nil {
		metrics.SetComponentHealth("updatechecker", true)
	}

	logger.Info("ctxpackd ready")
	<-ctx.Done()
	logger.Info("ctxpackd shutting down")
}

func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	provider, err := embedding.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}
	providerConfig := make(map[string]any, len(cfg.Config)+2)
	for k, v := range cfg.Config {
		providerConfig[k] = v
	}
	providerConfig["model"] = cfg.Model
	providerConfig["dimensions"] = cfg.Dimensions
	return provider.Create(providerConfig)
}

func startMetricsServer(cfg config.Config, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Observability.Metrics.Path, promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Info("starting metrics server", "addr", addr, "path", cfg.Observability.Metrics.Path)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}
