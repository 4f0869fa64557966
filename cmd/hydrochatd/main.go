// Hydrochatd is the hydroponics chat daemon: a retrieval-augmented,
// domain-guarded chat backend over HTTP.
//
// Configuration is loaded from an optional YAML file and HYDROCHAT_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	hydrochatd
//
//	# Configure via file and environment
//	HYDROCHAT_SERVER_PORT=9090 hydrochatd -config /etc/hydrochat/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/chat"
	"github.com/verdantlabs/hydrochat/internal/chunker"
	"github.com/verdantlabs/hydrochat/internal/config"
	"github.com/verdantlabs/hydrochat/internal/conversation"
	"github.com/verdantlabs/hydrochat/internal/embeddings"
	"github.com/verdantlabs/hydrochat/internal/guardrail"
	httpserver "github.com/verdantlabs/hydrochat/internal/http"
	"github.com/verdantlabs/hydrochat/internal/ingest"
	"github.com/verdantlabs/hydrochat/internal/llm"
	"github.com/verdantlabs/hydrochat/internal/logging"
	"github.com/verdantlabs/hydrochat/internal/retrieval"
	"github.com/verdantlabs/hydrochat/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  hydrochatd           Start the hydrochat daemon\n")
			fmt.Fprintf(os.Stderr, "  hydrochatd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("hydrochatd by Verdant Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the pipeline and blocks until the context is canceled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting hydrochatd",
		zap.String("version", version),
		zap.String("commit", gitCommit))

	// Export otel instruments through the default prometheus registry, which
	// backs the /metrics endpoint.
	metricExporter, err := otelprom.New()
	if err != nil {
		return fmt.Errorf("initializing metrics exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricExporter))
	otel.SetMeterProvider(meterProvider)
	defer meterProvider.Shutdown(context.Background()) //nolint:errcheck

	embedder, err := embeddings.NewProvider(cfg.Embeddings, logger)
	if err != nil {
		return fmt.Errorf("initializing embedding provider: %w", err)
	}
	defer embedder.Close() //nolint:errcheck

	store, err := vectorstore.NewStore(cfg.VectorStore, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close() //nolint:errcheck

	retriever, err := retrieval.NewRetriever(embedder, store, cfg.Retrieval, logger)
	if err != nil {
		return fmt.Errorf("initializing retriever: %w", err)
	}

	registry, err := llm.NewRegistry(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("initializing generation providers: %w", err)
	}
	defer registry.Close() //nolint:errcheck

	classifierOpts := []guardrail.Option{}
	if cfg.Guardrail.StageTwo {
		provider, err := registry.Get(cfg.LLM.DefaultProvider)
		if err != nil {
			return fmt.Errorf("resolving guardrail provider: %w", err)
		}
		classifierOpts = append(classifierOpts, guardrail.WithProvider(provider, llm.GenerateConfig{
			Provider:    cfg.LLM.DefaultProvider,
			Model:       cfg.LLM.DefaultModel,
			Temperature: 0, // deterministic verdicts
			MaxTokens:   8,
		}))
	}
	classifier, err := guardrail.NewClassifier(logger, classifierOpts...)
	if err != nil {
		return fmt.Errorf("initializing guardrail: %w", err)
	}

	chatSvc, err := chat.NewService(
		classifier, retriever, registry,
		conversation.NewMemoryStore(),
		cfg.LLM, cfg.Chat, logger,
	)
	if err != nil {
		return fmt.Errorf("initializing chat service: %w", err)
	}

	ingestSvc, err := ingest.NewService(chunker.New(chunker.DefaultConfig()), embedder, store, logger)
	if err != nil {
		return fmt.Errorf("initializing ingest service: %w", err)
	}

	server, err := httpserver.NewServer(chatSvc, ingestSvc, cfg.Server, logger)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
