package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/axond/internal/catalog"
	"github.com/fyrsmithlabs/axond/internal/ingest"
	"github.com/fyrsmithlabs/axond/internal/transcript"
	"github.com/fyrsmithlabs/axond/internal/vectorstore"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// IngestResponse is the response body for POST /api/v1/ingest.
type IngestResponse struct {
	SourceID     string `json:"source_id"`
	ChunkCount   int    `json:"chunk_count"`
	Deduplicated bool   `json:"deduplicated"`
}

// handleIngest accepts a multipart document upload and runs it through the
// ingestion pipeline.
//
// Form fields: "file" (the document), "owner_id" (required), "source_id"
// (optional, defaults to the file name).
func (s *Server) handleIngest(c echo.Context) error {
	ownerID := c.FormValue("owner_id")
	if ownerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	sourceID := c.FormValue("source_id")
	if sourceID == "" {
		sourceID = filepath.Base(fileHeader.Filename)
	}

	payload, mediaType, err := readUpload(fileHeader)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading upload: "+err.Error())
	}

	result, err := s.ingestor.Ingest(c.Request().Context(), ingest.IngestRequest{
		OwnerID:   ownerID,
		SourceID:  sourceID,
		MediaType: mediaType,
		Payload:   payload,
	})
	if err != nil {
		return httpError(err)
	}

	if s.catalog != nil && !result.Deduplicated {
		if err := s.catalog.Put(c.Request().Context(), catalog.Source{
			SourceID:   sourceID,
			OwnerID:    ownerID,
			Kind:       catalog.KindDocument,
			Title:      fileHeader.Filename,
			ChunkCount: result.ChunkCount,
		}); err != nil {
			// Chunks are committed; a stale library listing beats failing
			// the whole upload.
			s.logger.Warn("failed to record source in catalog",
				zap.String("source_id", sourceID), zap.Error(err))
		}
	}

	return c.JSON(http.StatusOK, IngestResponse{
		SourceID:     sourceID,
		ChunkCount:   result.ChunkCount,
		Deduplicated: result.Deduplicated,
	})
}

// readUpload reads the uploaded file and determines its media type from the
// part header, falling back to the file extension.
func readUpload(fh *multipart.FileHeader) ([]byte, string, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	payload, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}

	mediaType := fh.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(fh.Filename)) {
		case ".txt":
			mediaType = "text/plain"
		case ".md":
			mediaType = "text/markdown"
		case ".pdf":
			mediaType = "application/pdf"
		case ".docx":
			mediaType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		}
	}

	return payload, mediaType, nil
}

// TranscriptRequest is the request body for POST /api/v1/transcripts.
type TranscriptRequest struct {
	VideoURL string `json:"video_url"`
	OwnerID  string `json:"owner_id"`
}

// TranscriptResponse is the response body for POST /api/v1/transcripts.
type TranscriptResponse struct {
	VideoID    string `json:"video_id"`
	Title      string `json:"title,omitempty"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Summary    string `json:"summary"`
	ChunkCount int    `json:"chunk_count"`
	Cached     bool   `json:"cached"`
}

// handleTranscript ingests a YouTube video: transcript fetch, summary,
// chunk storage and a catalog row. A video already in the owner's catalog is
// served from it without refetching.
func (s *Server) handleTranscript(c echo.Context) error {
	if s.transcripts == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "transcript ingestion is not configured")
	}

	var req TranscriptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OwnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	videoID, err := transcript.ExtractVideoID(req.VideoURL)
	if err != nil {
		return httpError(err)
	}

	ctx := c.Request().Context()

	if s.catalog != nil {
		if cached, err := s.catalog.Get(ctx, req.OwnerID, videoID); err == nil {
			return c.JSON(http.StatusOK, TranscriptResponse{
				VideoID:    videoID,
				Title:      cached.Title,
				Thumbnail:  cached.Thumbnail,
				Summary:    cached.Summary,
				ChunkCount: cached.ChunkCount,
				Cached:     true,
			})
		}
	}

	text, err := s.transcripts.Fetch(ctx, videoID)
	if err != nil {
		return httpError(err)
	}

	// Metadata is decoration; a failed oEmbed lookup does not fail the
	// request.
	meta, err := s.transcripts.FetchMetadata(ctx, videoID)
	if err != nil {
		s.logger.Warn("failed to fetch video metadata",
			zap.String("video_id", videoID), zap.Error(err))
	}

	summary, err := s.answerer.SummarizeTranscript(ctx, text)
	if err != nil {
		return httpError(err)
	}

	result, err := s.ingestor.IngestText(ctx, req.OwnerID, videoID, text)
	if err != nil {
		return httpError(err)
	}

	if s.catalog != nil {
		if err := s.catalog.Put(ctx, catalog.Source{
			SourceID:   videoID,
			OwnerID:    req.OwnerID,
			Kind:       catalog.KindVideo,
			Title:      meta.Title,
			Thumbnail:  meta.ThumbnailURL,
			Summary:    summary,
			ChunkCount: result.ChunkCount,
		}); err != nil {
			s.logger.Warn("failed to record video in catalog",
				zap.String("video_id", videoID), zap.Error(err))
		}
	}

	return c.JSON(http.StatusOK, TranscriptResponse{
		VideoID:    videoID,
		Title:      meta.Title,
		Thumbnail:  meta.ThumbnailURL,
		Summary:    summary,
		ChunkCount: result.ChunkCount,
	})
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Question string `json:"question"`
	OwnerID  string `json:"owner_id"`
	SourceID string `json:"source_id,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Answer       string   `json:"answer"`
	UsedChunkIDs []string `json:"used_chunk_ids"`
	Fallback     bool     `json:"fallback"`
}

// handleQuery answers a question from the owner's ingested content.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OwnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	ctx := c.Request().Context()
	filter := vectorstore.Filter{OwnerID: req.OwnerID, SourceID: req.SourceID}

	topK := req.TopK
	if topK <= 0 {
		topK = s.config.DefaultTopK
	}

	results, err := s.retriever.Retrieve(ctx, req.Question, topK, filter)
	if err != nil {
		return httpError(err)
	}

	answer, err := s.answerer.Synthesize(ctx, req.Question, results)
	if err != nil {
		return httpError(err)
	}

	usedIDs := answer.UsedChunkIDs
	if usedIDs == nil {
		usedIDs = []string{}
	}

	return c.JSON(http.StatusOK, QueryResponse{
		Answer:       answer.Text,
		UsedChunkIDs: usedIDs,
		Fallback:     answer.Fallback,
	})
}

// QuizRequest is the request body for POST /api/v1/quiz.
type QuizRequest struct {
	OwnerID  string `json:"owner_id"`
	SourceID string `json:"source_id,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// handleQuiz generates a quiz from the owner's stored content.
func (s *Server) handleQuiz(c echo.Context) error {
	if s.quizzes == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "quiz generation is not configured")
	}

	var req QuizRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OwnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	quiz, err := s.quizzes.Build(c.Request().Context(), vectorstore.Filter{
		OwnerID:  req.OwnerID,
		SourceID: req.SourceID,
	}, req.Count)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, quiz)
}

// SourcesResponse is the response body for GET /api/v1/sources.
type SourcesResponse struct {
	Sources []catalog.Source `json:"sources"`
}

// handleListSources lists the owner's ingested sources, newest first.
func (s *Server) handleListSources(c echo.Context) error {
	if s.catalog == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "source catalog is not configured")
	}

	ownerID := c.QueryParam("owner_id")
	if ownerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	sources, err := s.catalog.ListByOwner(c.Request().Context(), ownerID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, SourcesResponse{Sources: sources})
}

// handleDeleteSource removes a source's chunks and its catalog row.
func (s *Server) handleDeleteSource(c echo.Context) error {
	ownerID := c.QueryParam("owner_id")
	if ownerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}
	sourceID := c.Param("source_id")

	ctx := c.Request().Context()

	if err := s.ingestor.Delete(ctx, ownerID, sourceID); err != nil {
		return httpError(err)
	}

	if s.catalog != nil {
		if err := s.catalog.Delete(ctx, ownerID, sourceID); err != nil {
			s.logger.Warn("failed to delete catalog row",
				zap.String("source_id", sourceID), zap.Error(err))
		}
	}

	return c.NoContent(http.StatusNoContent)
}
