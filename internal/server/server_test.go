package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/axond/internal/catalog"
	"github.com/fyrsmithlabs/axond/internal/extract"
	"github.com/fyrsmithlabs/axond/internal/ingest"
	"github.com/fyrsmithlabs/axond/internal/synthesis"
	"github.com/fyrsmithlabs/axond/internal/transcript"
	"github.com/fyrsmithlabs/axond/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeIngestor struct {
	result    ingest.IngestResult
	err       error
	lastReq   ingest.IngestRequest
	lastText  string
	deleted   []string
	deleteErr error
}

func (f *fakeIngestor) Ingest(_ context.Context, req ingest.IngestRequest) (ingest.IngestResult, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeIngestor) IngestText(_ context.Context, ownerID, sourceID, text string) (ingest.IngestResult, error) {
	f.lastReq = ingest.IngestRequest{OwnerID: ownerID, SourceID: sourceID}
	f.lastText = text
	return f.result, f.err
}

func (f *fakeIngestor) Delete(_ context.Context, ownerID, sourceID string) error {
	f.deleted = append(f.deleted, ownerID+"/"+sourceID)
	return f.deleteErr
}

type fakeRetriever struct {
	results   []vectorstore.ScoredChunk
	err       error
	lastTopK  int
	lastQuery string
	lastScope vectorstore.Filter
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int, filter vectorstore.Filter) ([]vectorstore.ScoredChunk, error) {
	f.lastQuery = query
	f.lastTopK = topK
	f.lastScope = filter
	return f.results, f.err
}

type fakeAnswerer struct {
	answer     synthesis.Answer
	summary    string
	err        error
	synthCalls int
}

func (f *fakeAnswerer) Synthesize(_ context.Context, _ string, results []vectorstore.ScoredChunk) (synthesis.Answer, error) {
	f.synthCalls++
	if f.err != nil {
		return synthesis.Answer{}, f.err
	}
	if len(results) == 0 {
		return synthesis.Answer{Text: synthesis.FallbackAnswer, Fallback: true}, nil
	}
	return f.answer, nil
}

func (f *fakeAnswerer) SummarizeTranscript(context.Context, string) (string, error) {
	return f.summary, f.err
}

type fakeQuizzes struct {
	quiz synthesis.Quiz
	err  error
}

func (f *fakeQuizzes) Build(_ context.Context, _ vectorstore.Filter, _ int) (synthesis.Quiz, error) {
	return f.quiz, f.err
}

type fakeTranscripts struct {
	text string
	meta transcript.Metadata
	err  error
}

func (f *fakeTranscripts) Fetch(context.Context, string) (string, error) {
	return f.text, f.err
}

func (f *fakeTranscripts) FetchMetadata(context.Context, string) (transcript.Metadata, error) {
	return f.meta, nil
}

type memCatalog struct {
	rows map[string]catalog.Source
}

func newMemCatalog() *memCatalog {
	return &memCatalog{rows: map[string]catalog.Source{}}
}

func (m *memCatalog) key(owner, source string) string { return owner + "/" + source }

func (m *memCatalog) Put(_ context.Context, src catalog.Source) error {
	m.rows[m.key(src.OwnerID, src.SourceID)] = src
	return nil
}

func (m *memCatalog) Get(_ context.Context, ownerID, sourceID string) (catalog.Source, error) {
	src, ok := m.rows[m.key(ownerID, sourceID)]
	if !ok {
		return catalog.Source{}, catalog.ErrNotFound
	}
	return src, nil
}

func (m *memCatalog) ListByOwner(_ context.Context, ownerID string) ([]catalog.Source, error) {
	var out []catalog.Source
	for _, src := range m.rows {
		if src.OwnerID == ownerID {
			out = append(out, src)
		}
	}
	return out, nil
}

func (m *memCatalog) Delete(_ context.Context, ownerID, sourceID string) error {
	delete(m.rows, m.key(ownerID, sourceID))
	return nil
}

type testEnv struct {
	server      *Server
	ingestor    *fakeIngestor
	retriever   *fakeRetriever
	answerer    *fakeAnswerer
	quizzes     *fakeQuizzes
	transcripts *fakeTranscripts
	catalog     *memCatalog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		ingestor:    &fakeIngestor{result: ingest.IngestResult{ChunkCount: 3}},
		retriever:   &fakeRetriever{},
		answerer:    &fakeAnswerer{answer: synthesis.Answer{Text: "an answer", UsedChunkIDs: []string{"c1"}}, summary: "a summary"},
		quizzes:     &fakeQuizzes{},
		transcripts: &fakeTranscripts{text: "transcript text"},
		catalog:     newMemCatalog(),
	}

	srv, err := NewServer(env.ingestor, env.retriever, env.answerer, env.quizzes, env.transcripts, env.catalog, zap.NewNop(), Config{})
	require.NoError(t, err)
	env.server = srv

	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.echo.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set(echoHeaderContentType, "application/json")
	return req
}

const echoHeaderContentType = "Content-Type"

func multipartRequest(t *testing.T, fields map[string]string, filename, contentType string, payload []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
	hdr["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", &buf)
	req.Header.Set(echoHeaderContentType, w.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIngest(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, map[string]string{"owner_id": "alice"}, "notes.txt", "text/plain", []byte("hello"))
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "notes.txt", resp.SourceID)
	assert.Equal(t, 3, resp.ChunkCount)
	assert.False(t, resp.Deduplicated)

	assert.Equal(t, "alice", env.ingestor.lastReq.OwnerID)
	assert.Equal(t, "notes.txt", env.ingestor.lastReq.SourceID)
	assert.Equal(t, "text/plain", env.ingestor.lastReq.MediaType)
	assert.Equal(t, []byte("hello"), env.ingestor.lastReq.Payload)

	src, err := env.catalog.Get(context.Background(), "alice", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.KindDocument, src.Kind)
	assert.Equal(t, 3, src.ChunkCount)
}

func TestIngest_RequiresOwner(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, nil, "notes.txt", "text/plain", []byte("hello"))
	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported media type", fmt.Errorf("extraction: %w", extract.ErrUnsupportedMediaType), http.StatusBadRequest},
		{"empty document", fmt.Errorf("chunking: %w", ingest.ErrEmptyDocument), http.StatusBadRequest},
		{"extraction failed", fmt.Errorf("extraction: %w", extract.ErrExtractionFailed), http.StatusUnprocessableEntity},
		{"store down", fmt.Errorf("storage: %w", vectorstore.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("weird"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.ingestor.err = tt.err

			req := multipartRequest(t, map[string]string{"owner_id": "alice"}, "notes.txt", "text/plain", []byte("x"))
			rec := env.do(req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestQuery(t *testing.T) {
	env := newTestEnv(t)
	env.retriever.results = []vectorstore.ScoredChunk{
		{Chunk: vectorstore.Chunk{ID: "c1", Text: "context"}, Score: 0.8},
	}

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/query", QueryRequest{
		Question: "what is it",
		OwnerID:  "alice",
		SourceID: "doc-1",
		TopK:     7,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "an answer", resp.Answer)
	assert.Equal(t, []string{"c1"}, resp.UsedChunkIDs)
	assert.False(t, resp.Fallback)

	assert.Equal(t, "what is it", env.retriever.lastQuery)
	assert.Equal(t, 7, env.retriever.lastTopK)
	assert.Equal(t, vectorstore.Filter{OwnerID: "alice", SourceID: "doc-1"}, env.retriever.lastScope)
}

func TestQuery_FallbackOnNoResults(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/query", QueryRequest{
		Question: "anything",
		OwnerID:  "alice",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Fallback)
	assert.Equal(t, synthesis.FallbackAnswer, resp.Answer)
	assert.Equal(t, []string{}, resp.UsedChunkIDs)
}

func TestQuery_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/query", QueryRequest{Question: "q"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(jsonRequest(http.MethodPost, "/api/v1/query", QueryRequest{OwnerID: "alice", Question: "   "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_GenerationFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.retriever.results = []vectorstore.ScoredChunk{{Chunk: vectorstore.Chunk{ID: "c1"}, Score: 0.5}}
	env.answerer.err = fmt.Errorf("completing answer: %w", synthesis.ErrGenerationFailed)

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/query", QueryRequest{Question: "q", OwnerID: "alice"}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestQuiz(t *testing.T) {
	env := newTestEnv(t)
	env.quizzes.quiz = synthesis.Quiz{Questions: []synthesis.QuizQuestion{
		{Question: "Q?", Options: []string{"a", "b", "c", "d"}, AnswerIndex: 2},
	}}

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/quiz", QuizRequest{OwnerID: "alice", SourceID: "doc-1", Count: 1}))
	require.Equal(t, http.StatusOK, rec.Code)

	var quiz synthesis.Quiz
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quiz))
	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, 2, quiz.Questions[0].AnswerIndex)
}

func TestQuiz_MalformedModelOutput(t *testing.T) {
	env := newTestEnv(t)
	env.quizzes.err = synthesis.ErrMalformedOutput

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/quiz", QuizRequest{OwnerID: "alice"}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTranscript(t *testing.T) {
	env := newTestEnv(t)
	env.transcripts.meta = transcript.Metadata{Title: "A Video", ThumbnailURL: "https://img"}

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/transcripts", TranscriptRequest{
		VideoURL: "https://youtu.be/dQw4w9WgXcQ",
		OwnerID:  "alice",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TranscriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dQw4w9WgXcQ", resp.VideoID)
	assert.Equal(t, "A Video", resp.Title)
	assert.Equal(t, "a summary", resp.Summary)
	assert.False(t, resp.Cached)

	assert.Equal(t, "transcript text", env.ingestor.lastText)

	src, err := env.catalog.Get(context.Background(), "alice", "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, catalog.KindVideo, src.Kind)
	assert.Equal(t, "a summary", src.Summary)
}

func TestTranscript_SecondRequestServedFromCatalog(t *testing.T) {
	env := newTestEnv(t)

	body := TranscriptRequest{VideoURL: "https://youtu.be/dQw4w9WgXcQ", OwnerID: "alice"}
	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/transcripts", body))
	require.Equal(t, http.StatusOK, rec.Code)

	env.transcripts.err = fmt.Errorf("%w: upstream gone", transcript.ErrTranscriptUnavailable)

	rec = env.do(jsonRequest(http.MethodPost, "/api/v1/transcripts", body))
	require.Equal(t, http.StatusOK, rec.Code, "cached video must not refetch")

	var resp TranscriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, "a summary", resp.Summary)
}

func TestTranscript_InvalidURL(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/transcripts", TranscriptRequest{
		VideoURL: "https://example.com/video",
		OwnerID:  "alice",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranscript_Unavailable(t *testing.T) {
	env := newTestEnv(t)
	env.transcripts.err = fmt.Errorf("%w: no captions", transcript.ErrTranscriptUnavailable)

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/transcripts", TranscriptRequest{
		VideoURL: "https://youtu.be/dQw4w9WgXcQ",
		OwnerID:  "alice",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListSources(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.catalog.Put(context.Background(), catalog.Source{
		OwnerID: "alice", SourceID: "doc-1", Kind: catalog.KindDocument, Title: "Doc",
	}))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/sources?owner_id=alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SourcesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "doc-1", resp.Sources[0].SourceID)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/sources", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteSource(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.catalog.Put(context.Background(), catalog.Source{
		OwnerID: "alice", SourceID: "doc-1", Kind: catalog.KindDocument,
	}))

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/api/v1/sources/doc-1?owner_id=alice", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"alice/doc-1"}, env.ingestor.deleted)

	_, err := env.catalog.Get(context.Background(), "alice", "doc-1")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestNewServer_RequiresCoreDependencies(t *testing.T) {
	_, err := NewServer(nil, &fakeRetriever{}, &fakeAnswerer{}, nil, nil, nil, zap.NewNop(), Config{})
	assert.Error(t, err)

	_, err = NewServer(&fakeIngestor{}, &fakeRetriever{}, &fakeAnswerer{}, nil, nil, nil, nil, Config{})
	assert.Error(t, err)
}
