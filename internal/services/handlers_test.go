package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/formquestions/internal/analysis"
	"github.com/Lllllllleong/formquestions/internal/models"
)

func factoryFor(cfg Config, deps Dependencies) (ExtractorFactory, *int) {
	calls := 0
	return func(ctx context.Context) (*QuestionExtractorFunction, error) {
		calls++
		return NewQuestionExtractorWith(cfg, deps)
	}, &calls
}

func serve(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestExtractQuestionsHandler_MissingConfiguration(t *testing.T) {
	cfg := validConfig()
	cfg.ConnectionString = ""
	src := &fakeSource{names: []string{"a.pdf"}}
	an := &fakeAnalyzer{}
	factory, _ := factoryFor(cfg, Dependencies{Source: src, Analyzer: an})
	h := NewExtractQuestionsHandler(factory)

	rec := serve(h)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing required configuration")
	assert.Contains(t, rec.Body.String(), EnvAzureWebJobsStorage)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Zero(t, src.walks)
	assert.Empty(t, an.requests)
}

func TestExtractQuestionsHandler_InitializationFailure(t *testing.T) {
	h := NewExtractQuestionsHandler(func(ctx context.Context) (*QuestionExtractorFunction, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	rec := serve(h)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to initialize service")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestExtractQuestionsHandler_Success(t *testing.T) {
	src := &fakeSource{
		names:   []string{"a.pdf", "b.pdf", "notes.txt"},
		content: map[string]string{"a.pdf": "a", "b.pdf": "b"},
	}
	an := &fakeAnalyzer{
		docs: map[string][]analysis.Document{"a.pdf": oneFieldDoc("Q1", "Name")},
		errs: map[string]error{"b.pdf": errors.New("analysis failed: InvalidContent")},
	}
	factory, calls := factoryFor(validConfig(), Dependencies{Source: src, Analyzer: an})
	h := NewExtractQuestionsHandler(factory)

	rec := serve(h)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Run-Id"))
	assert.JSONEq(t, `[
		{"file":"a.pdf","questions":[{"id":"Q1","text":"Name","score":0.9}]},
		{"file":"b.pdf","error":"analysis failed: InvalidContent"}
	]`, rec.Body.String())

	// A second request reuses the extractor but starts a new run.
	first := rec.Header().Get("X-Run-Id")
	rec = serve(h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, first, rec.Header().Get("X-Run-Id"))
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 2, src.walks)
}

func TestExtractQuestionsHandler_EmptyContainer(t *testing.T) {
	factory, _ := factoryFor(validConfig(), Dependencies{Source: &fakeSource{}, Analyzer: &fakeAnalyzer{}})

	rec := serve(NewExtractQuestionsHandler(factory))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestExtractQuestionsHandler_ListingFailure(t *testing.T) {
	src := &fakeSource{listErr: errors.New("403 AuthorizationFailure")}
	factory, _ := factoryFor(validConfig(), Dependencies{Source: src, Analyzer: &fakeAnalyzer{}})

	rec := serve(NewExtractQuestionsHandler(factory))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to list documents")
}

func newUploadEvent(t *testing.T, data interface{}) cloudevents.Event {
	t.Helper()
	e := cloudevents.NewEvent()
	e.SetID("evt-1")
	e.SetSource("//storage.googleapis.com/projects/_/buckets/forms")
	e.SetType("google.cloud.storage.object.v1.finalized")
	require.NoError(t, e.SetData(cloudevents.ApplicationJSON, data))
	return e
}

func TestUploadHandler(t *testing.T) {
	cfg := validConfig()
	cfg.StorageProvider = ProviderGCS
	cfg.ConnectionString = "adc"

	t.Run("analyzes the uploaded PDF", func(t *testing.T) {
		src := &fakeSource{content: map[string]string{"a.pdf": "a"}}
		an := &fakeAnalyzer{docs: map[string][]analysis.Document{"a.pdf": oneFieldDoc("Q1", "x")}}
		rec := &fakeRecorder{}
		factory, _ := factoryFor(cfg, Dependencies{Source: src, Analyzer: an, Recorder: rec})

		err := NewUploadHandler(factory).Handle(context.Background(),
			newUploadEvent(t, models.GCSEvent{Bucket: "forms", Name: "a.pdf"}))
		require.NoError(t, err)

		require.Len(t, an.requests, 1)
		require.Len(t, rec.records, 1)
		assert.Equal(t, TriggerUpload, rec.records[0].Trigger)
		assert.Equal(t, models.RunStatusCompleted, rec.records[0].Status)
	})

	t.Run("failed analysis is not retried", func(t *testing.T) {
		src := &fakeSource{content: map[string]string{"a.pdf": "a"}}
		an := &fakeAnalyzer{errs: map[string]error{"a.pdf": errors.New("boom")}}
		factory, _ := factoryFor(cfg, Dependencies{Source: src, Analyzer: an})

		err := NewUploadHandler(factory).Handle(context.Background(),
			newUploadEvent(t, models.GCSEvent{Bucket: "forms", Name: "a.pdf"}))
		assert.NoError(t, err)
	})

	t.Run("malformed event data", func(t *testing.T) {
		factory, _ := factoryFor(cfg, Dependencies{Source: &fakeSource{}, Analyzer: &fakeAnalyzer{}})
		e := cloudevents.NewEvent()
		e.SetID("evt-2")
		e.SetSource("test")
		e.SetType("test")
		require.NoError(t, e.SetData(cloudevents.TextPlain, []byte("not json")))

		err := NewUploadHandler(factory).Handle(context.Background(), e)
		assert.Error(t, err)
	})

	t.Run("initialization failure", func(t *testing.T) {
		h := NewUploadHandler(func(ctx context.Context) (*QuestionExtractorFunction, error) {
			return nil, errors.New("no credentials")
		})
		err := h.Handle(context.Background(), newUploadEvent(t, models.GCSEvent{Bucket: "forms", Name: "a.pdf"}))
		assert.EqualError(t, err, "no credentials")
	})
}

func TestUploadEventDecoding(t *testing.T) {
	var e models.GCSEvent
	require.NoError(t, json.Unmarshal([]byte(`{"bucket":"forms","name":"in/a.pdf","size":"12"}`), &e))
	assert.Equal(t, models.GCSEvent{Bucket: "forms", Name: "in/a.pdf"}, e)
}
