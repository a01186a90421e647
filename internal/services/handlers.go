package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/formquestions/internal/models"
)

// ExtractorFactory builds the extractor on first use.
type ExtractorFactory func(ctx context.Context) (*QuestionExtractorFunction, error)

// lazyExtractor performs one-time initialization of the extractor. An
// initialization error is kept and returned to every later caller.
type lazyExtractor struct {
	factory   ExtractorFactory
	once      sync.Once
	extractor *QuestionExtractorFunction
	initErr   error
}

func (l *lazyExtractor) get() (*QuestionExtractorFunction, error) {
	l.once.Do(func() {
		l.extractor, l.initErr = l.factory(context.Background())
	})
	return l.extractor, l.initErr
}

// ExtractQuestionsHandler runs one batch per HTTP request. The request
// body and query are not read.
type ExtractQuestionsHandler struct {
	lazy lazyExtractor
}

// NewExtractQuestionsHandler returns a handler that builds its extractor with factory.
func NewExtractQuestionsHandler(factory ExtractorFactory) *ExtractQuestionsHandler {
	return &ExtractQuestionsHandler{lazy: lazyExtractor{factory: factory}}
}

func (h *ExtractQuestionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("ExtractQuestions fired.", "method", r.Method)

	extractor, err := h.lazy.get()
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			slog.Error("Critical: invalid configuration", "error", err)
			http.Error(w, cfgErr.Error(), http.StatusInternalServerError)
			return
		}
		slog.Error("Critical: question extractor initialization failed", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	run, err := extractor.Run(r.Context(), TriggerHTTP)
	if err != nil {
		// The error is already logged with context within Run.
		http.Error(w, "Internal Server Error: failed to list documents", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Run-Id", run.RunID)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(run.Results); err != nil {
		slog.Error("Failed to write response", "error", err, "runId", run.RunID)
	}
}

// UploadHandler processes the object named by a storage finalize CloudEvent.
type UploadHandler struct {
	lazy lazyExtractor
}

// NewUploadHandler returns a CloudEvent handler that builds its extractor with factory.
func NewUploadHandler(factory ExtractorFactory) *UploadHandler {
	return &UploadHandler{lazy: lazyExtractor{factory: factory}}
}

// Handle returns an error only when the event cannot be handled at all.
// A document that fails analysis is recorded, not retried.
func (h *UploadHandler) Handle(ctx context.Context, e cloudevents.Event) error {
	extractor, err := h.lazy.get()
	if err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	result := extractor.ProcessUpload(ctx, gcsEvent)
	if result == nil {
		return nil
	}
	if result.Failed() {
		slog.Warn("Uploaded document produced an error result.", "gcsObject", gcsEvent.Name, "error", result.Error)
		return nil
	}
	slog.Info("Uploaded document analyzed.", "gcsObject", gcsEvent.Name, "questionCount", len(result.Questions))
	return nil
}
