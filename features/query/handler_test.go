package query_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docbrain/features/query"
	"docbrain/internal/answer"
	"docbrain/internal/vector"
)

type MockRetriever struct{ mock.Mock }

func (m *MockRetriever) Retrieve(ctx context.Context, question string, topK int, contextText string) ([]vector.Hit, error) {
	args := m.Called(ctx, question, topK, contextText)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.Hit), args.Error(1)
}

type MockComposer struct{ mock.Mock }

func (m *MockComposer) Compose(ctx context.Context, question string, hits []vector.Hit, maxTokens int) answer.Answer {
	args := m.Called(ctx, question, hits, maxTokens)
	return args.Get(0).(answer.Answer)
}

type MockCounter struct{ mock.Mock }

func (m *MockCounter) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newHandler(retriever *MockRetriever, composer *MockComposer) *query.Handler {
	return query.NewHandler(retriever, composer, new(MockCounter), new(MockCounter), 500)
}

func TestQuery_Answered(t *testing.T) {
	retriever := new(MockRetriever)
	composer := new(MockComposer)

	hits := []vector.Hit{{ChunkID: "1", Text: "alpha", SourceURL: "/a", Score: 0.9}}
	retriever.On("Retrieve", mock.Anything, "what is alpha?", 3, "").Return(hits, nil)
	composer.On("Compose", mock.Anything, "what is alpha?", hits, 500).Return(answer.Answer{
		Status:    answer.StatusAnswered,
		Text:      "alpha is the first letter",
		Citations: []string{"/a"},
	})

	handler := newHandler(retriever, composer)

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"question":"what is alpha?","top_k":3}`))
	w := httptest.NewRecorder()
	handler.Query(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Answer    string   `json:"answer"`
		Citations []string `json:"citations"`
		LatencyMs int64    `json:"latency_ms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alpha is the first letter", resp.Answer)
	assert.Equal(t, []string{"/a"}, resp.Citations)
}

func TestQuery_EmptyQuestionRejected(t *testing.T) {
	retriever := new(MockRetriever)
	handler := newHandler(retriever, new(MockComposer))

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"question":""}`))
	w := httptest.NewRecorder()
	handler.Query(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	retriever.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestQuery_InvalidJSONRejected(t *testing.T) {
	handler := newHandler(new(MockRetriever), new(MockComposer))

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	handler.Query(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuery_NoResultIsHTTP200WithEmptyCitations(t *testing.T) {
	retriever := new(MockRetriever)
	composer := new(MockComposer)
	retriever.On("Retrieve", mock.Anything, "obscure?", 0, "").Return([]vector.Hit{}, nil)
	composer.On("Compose", mock.Anything, "obscure?", mock.Anything, 500).Return(answer.Answer{
		Status: answer.StatusNoResult,
		Text:   "I don't have enough information in the indexed documentation to answer that question.",
	})

	handler := newHandler(retriever, composer)

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"question":"obscure?"}`))
	w := httptest.NewRecorder()
	handler.Query(w, req)

	require.Equal(t, http.StatusOK, w.Code, "no relevant content is a valid outcome, not an error")
	var resp struct {
		Answer    string   `json:"answer"`
		Citations []string `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Answer)
	assert.NotNil(t, resp.Citations)
	assert.Empty(t, resp.Citations)
}

func TestQuery_RetrievalFailureIsBadGateway(t *testing.T) {
	retriever := new(MockRetriever)
	composer := new(MockComposer)
	retriever.On("Retrieve", mock.Anything, "q?", 0, "").Return(nil, errors.New("embedding service down"))

	handler := newHandler(retriever, composer)

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"question":"q?"}`))
	w := httptest.NewRecorder()
	handler.Query(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	composer.AssertNotCalled(t, "Compose", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestQuery_GenerationFailureKeepsCitations(t *testing.T) {
	retriever := new(MockRetriever)
	composer := new(MockComposer)

	hits := []vector.Hit{{ChunkID: "1", Text: "alpha", SourceURL: "/a", Score: 0.9}}
	retriever.On("Retrieve", mock.Anything, "q?", 0, "").Return(hits, nil)
	composer.On("Compose", mock.Anything, "q?", hits, 500).Return(answer.Answer{
		Status:    answer.StatusFailed,
		Text:      "Answer generation failed. The sources listed were retrieved successfully; please retry.",
		Citations: []string{"/a"},
		Err:       errors.New("model overloaded"),
	})

	handler := newHandler(retriever, composer)

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"question":"q?"}`))
	w := httptest.NewRecorder()
	handler.Query(w, req)

	require.Equal(t, http.StatusBadGateway, w.Code)
	var resp struct {
		Citations []string `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"/a"}, resp.Citations, "retrieved sources survive the failure")
}

func TestQuery_MaxTokensOverride(t *testing.T) {
	retriever := new(MockRetriever)
	composer := new(MockComposer)
	retriever.On("Retrieve", mock.Anything, "q?", 0, "").Return([]vector.Hit{}, nil)
	composer.On("Compose", mock.Anything, "q?", mock.Anything, 200).Return(answer.Answer{Status: answer.StatusNoResult, Text: "n/a"})

	handler := newHandler(retriever, composer)

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"question":"q?","max_tokens":200}`))
	w := httptest.NewRecorder()
	handler.Query(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	composer.AssertExpectations(t)
}

func TestStats(t *testing.T) {
	retriever := new(MockRetriever)
	composer := new(MockComposer)
	chunks := new(MockCounter)
	documents := new(MockCounter)
	chunks.On("Count", mock.Anything).Return(120, nil)
	documents.On("Count", mock.Anything).Return(10, nil)

	handler := query.NewHandler(retriever, composer, chunks, documents, 500)

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	handler.Stats(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Requests  int64 `json:"requests"`
			Documents int   `json:"documents"`
			Chunks    int   `json:"chunks"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Data.Documents)
	assert.Equal(t, 120, resp.Data.Chunks)
}

func TestHealth(t *testing.T) {
	handler := newHandler(new(MockRetriever), new(MockComposer))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.Health(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
