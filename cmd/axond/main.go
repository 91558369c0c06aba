// Axond is a retrieval-augmented question answering daemon for personal
// document and video libraries.
//
// It ingests documents and YouTube transcripts, chunks and embeds them into a
// vector store, and serves grounded answers, summaries and quizzes over HTTP.
//
// Configuration is loaded from ~/.config/axond/config.yaml and AXOND_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	axond
//
//	# Configure via environment
//	AXOND_SERVER_PORT=9090 AXOND_VECTORSTORE_PROVIDER=qdrant axond
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/axond/internal/catalog"
	"github.com/fyrsmithlabs/axond/internal/chunker"
	"github.com/fyrsmithlabs/axond/internal/config"
	"github.com/fyrsmithlabs/axond/internal/embeddings"
	"github.com/fyrsmithlabs/axond/internal/extract"
	"github.com/fyrsmithlabs/axond/internal/ingest"
	"github.com/fyrsmithlabs/axond/internal/logging"
	"github.com/fyrsmithlabs/axond/internal/reranker"
	"github.com/fyrsmithlabs/axond/internal/retriever"
	"github.com/fyrsmithlabs/axond/internal/server"
	"github.com/fyrsmithlabs/axond/internal/synthesis"
	"github.com/fyrsmithlabs/axond/internal/telemetry"
	"github.com/fyrsmithlabs/axond/internal/transcript"
	"github.com/fyrsmithlabs/axond/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/axond/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  axond           Start the axond daemon\n")
			fmt.Fprintf(os.Stderr, "  axond version   Show version information\n")
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

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("axond by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the axond server and blocks until context cancellation.
//
// Initialization order: configuration, logger, embedding provider, vector
// store, catalog, then the pipeline services and the HTTP server on top.
// Shutdown drains in-flight requests within the configured timeout before
// closing the stores.
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting axond",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("embeddings_provider", cfg.Embeddings.Provider),
		zap.String("vectorstore_provider", cfg.VectorStore.Provider),
	)

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:    cfg.Telemetry.Enabled,
		Endpoint:   cfg.Telemetry.Endpoint,
		Insecure:   cfg.Telemetry.Insecure,
		SampleRate: cfg.Telemetry.SampleRate,
	}, version)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("initializing embedding provider: %w", err)
	}
	defer embedder.Close()

	if dim := embedder.Dimension(); dim != 0 && dim != cfg.VectorStore.VectorSize {
		return fmt.Errorf("embedding dimension %d does not match configured vector size %d", dim, cfg.VectorStore.VectorSize)
	}

	store, err := vectorstore.NewStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close()

	sources, err := catalog.Open(catalog.Config{Path: cfg.Catalog.Path}, logger)
	if err != nil {
		return fmt.Errorf("opening source catalog: %w", err)
	}
	defer sources.Close()

	splitter, err := chunker.NewSplitter(chunker.Config{
		ChunkSize: cfg.Chunker.ChunkSize,
		Overlap:   cfg.Chunker.Overlap,
	})
	if err != nil {
		return fmt.Errorf("initializing chunker: %w", err)
	}

	generator, err := synthesis.NewOpenAIGenerator(synthesis.GeneratorConfig{
		APIKey:            cfg.Generation.APIKey,
		BaseURL:           cfg.Generation.BaseURL,
		Model:             cfg.Generation.Model,
		Temperature:       cfg.Generation.Temperature,
		MaxRetries:        cfg.Generation.MaxRetries,
		RequestsPerSecond: cfg.Generation.RequestsPerSecond,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing generator: %w", err)
	}

	synthCfg := synthesis.SynthesizerConfig{
		SystemInstructions: cfg.Synthesis.SystemInstructions,
		MaxContextRunes:    cfg.Synthesis.MaxContextRunes,
	}

	orchestrator := ingest.New(extract.New(logger), splitter, embedder, store, logger)
	search := retriever.New(embedder, store, logger,
		retriever.WithReranker(reranker.NewLexical(reranker.DefaultVectorWeight)))
	answerer := synthesis.NewSynthesizer(generator, synthCfg, logger)
	quizzes := synthesis.NewQuizBuilder(store, generator, synthCfg, logger)
	transcripts := transcript.NewClient(transcript.Config{
		CaptionsURL: cfg.Transcript.CaptionsURL,
		OEmbedURL:   cfg.Transcript.OEmbedURL,
		LangCode:    cfg.Transcript.LangCode,
	}, logger)

	srv, err := server.NewServer(orchestrator, search, answerer, quizzes, transcripts, sources, logger, server.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		DefaultTopK: cfg.Synthesis.TopK,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return nil
}
