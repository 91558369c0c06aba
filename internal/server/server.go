// Package server provides the HTTP API for axond.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/axond/internal/catalog"
	"github.com/fyrsmithlabs/axond/internal/ingest"
	"github.com/fyrsmithlabs/axond/internal/synthesis"
	"github.com/fyrsmithlabs/axond/internal/transcript"
	"github.com/fyrsmithlabs/axond/internal/vectorstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Ingestor runs the document ingestion pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.IngestRequest) (ingest.IngestResult, error)
	IngestText(ctx context.Context, ownerID, sourceID, text string) (ingest.IngestResult, error)
	Delete(ctx context.Context, ownerID, sourceID string) error
}

// Retriever finds chunks relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, filter vectorstore.Filter) ([]vectorstore.ScoredChunk, error)
}

// Answerer synthesizes answers and summaries.
type Answerer interface {
	Synthesize(ctx context.Context, question string, results []vectorstore.ScoredChunk) (synthesis.Answer, error)
	SummarizeTranscript(ctx context.Context, transcript string) (string, error)
}

// QuizMaker builds quizzes from stored content.
type QuizMaker interface {
	Build(ctx context.Context, filter vectorstore.Filter, n int) (synthesis.Quiz, error)
}

// TranscriptFetcher fetches video transcripts and metadata.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
	FetchMetadata(ctx context.Context, videoID string) (transcript.Metadata, error)
}

// SourceCatalog records ingested sources.
type SourceCatalog interface {
	Put(ctx context.Context, src catalog.Source) error
	Get(ctx context.Context, ownerID, sourceID string) (catalog.Source, error)
	ListByOwner(ctx context.Context, ownerID string) ([]catalog.Source, error)
	Delete(ctx context.Context, ownerID, sourceID string) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	MaxUploadMB int

	// DefaultTopK is the retrieval depth used when a query does not ask
	// for one. Zero defers to the retriever's own default.
	DefaultTopK int
}

// Server provides HTTP endpoints for axond.
type Server struct {
	echo        *echo.Echo
	ingestor    Ingestor
	retriever   Retriever
	answerer    Answerer
	quizzes     QuizMaker
	transcripts TranscriptFetcher
	catalog     SourceCatalog
	logger      *zap.Logger
	config      Config
}

// NewServer creates a new HTTP server.
func NewServer(
	ingestor Ingestor,
	retriever Retriever,
	answerer Answerer,
	quizzes QuizMaker,
	transcripts TranscriptFetcher,
	sources SourceCatalog,
	logger *zap.Logger,
	cfg Config,
) (*Server, error) {
	if ingestor == nil || retriever == nil || answerer == nil {
		return nil, fmt.Errorf("ingestor, retriever and answerer are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8087
	}
	if cfg.MaxUploadMB == 0 {
		cfg.MaxUploadMB = 32
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.MaxUploadMB)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:        e,
		ingestor:    ingestor,
		retriever:   retriever,
		answerer:    answerer,
		quizzes:     quizzes,
		transcripts: transcripts,
		catalog:     sources,
		logger:      logger,
		config:      cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ingest", s.handleIngest)
	v1.POST("/transcripts", s.handleTranscript)
	v1.POST("/query", s.handleQuery)
	v1.POST("/quiz", s.handleQuiz)
	v1.GET("/sources", s.handleListSources)
	v1.DELETE("/sources/:source_id", s.handleDeleteSource)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
