package server

import (
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/axond/internal/catalog"
	"github.com/fyrsmithlabs/axond/internal/embeddings"
	"github.com/fyrsmithlabs/axond/internal/extract"
	"github.com/fyrsmithlabs/axond/internal/ingest"
	"github.com/fyrsmithlabs/axond/internal/synthesis"
	"github.com/fyrsmithlabs/axond/internal/transcript"
	"github.com/fyrsmithlabs/axond/internal/vectorstore"
	"github.com/labstack/echo/v4"
)

// httpError maps domain errors onto HTTP status codes.
//
// Caller-fault errors (bad media type, bad config, bad URL) are 4xx;
// unreadable-but-accepted documents are 422; infrastructure failures behind
// the request are 502/503 so clients know a retry may succeed. Anything
// unmapped is a plain 500.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, extract.ErrUnsupportedMediaType),
		errors.Is(err, transcript.ErrInvalidVideoURL),
		errors.Is(err, ingest.ErrEmptyDocument),
		errors.Is(err, embeddings.ErrEmptyInput),
		errors.Is(err, embeddings.ErrInvalidConfig),
		errors.Is(err, vectorstore.ErrInvalidConfig),
		errors.Is(err, synthesis.ErrInvalidConfig):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.Is(err, catalog.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, extract.ErrExtractionFailed),
		errors.Is(err, transcript.ErrTranscriptUnavailable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, vectorstore.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())

	case errors.Is(err, embeddings.ErrEmbeddingFailed),
		errors.Is(err, synthesis.ErrGenerationFailed),
		errors.Is(err, synthesis.ErrMalformedOutput):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
