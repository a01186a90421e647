package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Lllllllleong/formquestions/internal/analysis"
	"github.com/Lllllllleong/formquestions/internal/models"
)

// Triggers recorded in the run ledger.
const (
	TriggerHTTP   = "http"
	TriggerUpload = "upload"
	TriggerCLI    = "cli"
)

// BlobSource is the container of stored documents.
type BlobSource interface {
	// Walk calls fn for each blob name in listing order and stops at the first error.
	Walk(ctx context.Context, fn func(name string) error) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// RunRecorder persists run bookkeeping.
type RunRecorder interface {
	Record(ctx context.Context, rec models.RunRecord) error
}

// ResultSink stores a serialized result and returns where it was written.
type ResultSink interface {
	Write(ctx context.Context, objectName string, content []byte) (string, error)
}

// RunNotifier hands a finished run to a downstream consumer.
type RunNotifier interface {
	Notify(ctx context.Context, arg models.WorkflowArgument) error
}

// Dependencies are the collaborators of a QuestionExtractorFunction.
// Source and Analyzer are required; the rest are optional.
type Dependencies struct {
	Source   BlobSource
	Analyzer analysis.Analyzer
	Recorder RunRecorder
	Sink     ResultSink
	Notifier RunNotifier
	Logger   *slog.Logger
	Closers  []io.Closer
}

// QuestionExtractorFunction runs stored PDFs through an analysis backend and
// collects their fields as questions.
type QuestionExtractorFunction struct {
	source   BlobSource
	analyzer analysis.Analyzer
	recorder RunRecorder
	sink     ResultSink
	notifier RunNotifier
	logger   *slog.Logger
	closers  []io.Closer
	config   Config
}

// BatchRun is the outcome of one Run.
type BatchRun struct {
	RunID        string
	Results      models.BatchResult
	SkippedCount int
	ResultURI    string
}

// NewQuestionExtractor loads and validates the environment configuration,
// then creates every client it names.
func NewQuestionExtractor(ctx context.Context) (*QuestionExtractorFunction, error) {
	config := LoadConfig()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	deps, err := NewDependencies(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewQuestionExtractorWith(config, deps)
}

// NewQuestionExtractorWith validates config and wires the given collaborators.
func NewQuestionExtractorWith(config Config, deps Dependencies) (*QuestionExtractorFunction, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Analyzer == nil {
		return nil, fmt.Errorf("NewQuestionExtractorWith: source and analyzer must be provided")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QuestionExtractorFunction{
		source:   deps.Source,
		analyzer: deps.Analyzer,
		recorder: deps.Recorder,
		sink:     deps.Sink,
		notifier: deps.Notifier,
		logger:   logger,
		closers:  deps.Closers,
		config:   config,
	}, nil
}

// Run processes every PDF in the container, one at a time, in listing order.
// Per-document failures are recorded in the result; only a listing failure
// aborts the run.
func (f *QuestionExtractorFunction) Run(ctx context.Context, trigger string) (*BatchRun, error) {
	run := &BatchRun{RunID: ulid.Make().String(), Results: models.BatchResult{}}
	logCtx := f.logger.With("runId", run.RunID, "container", f.config.ContainerName)
	logCtx.Info("Starting batch run.", "trigger", trigger)

	rec := models.RunRecord{
		RunID:     run.RunID,
		Container: f.config.ContainerName,
		Trigger:   trigger,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now(),
	}
	f.record(ctx, logCtx, rec)

	err := f.source.Walk(ctx, func(name string) error {
		if !IsEligible(name) {
			logCtx.Info("Skipping non-PDF blob.", "blob", name)
			run.SkippedCount++
			return nil
		}
		run.Results = append(run.Results, f.processDocument(ctx, logCtx, name))
		return nil
	})
	if err != nil {
		logCtx.Error("Failed to enumerate documents", "error", err)
		rec.Status = models.RunStatusFailed
		rec.ErrorDetails = err.Error()
		rec.DocumentCount = len(run.Results)
		rec.FailedCount = run.Results.FailedCount()
		rec.SkippedCount = run.SkippedCount
		rec.FinishedAt = time.Now()
		f.record(ctx, logCtx, rec)
		return nil, fmt.Errorf("failed to enumerate documents: %w", err)
	}

	run.ResultURI = f.publish(ctx, logCtx, "runs/"+run.RunID+".json", run.Results)

	rec.Status = models.RunStatusCompleted
	rec.DocumentCount = len(run.Results)
	rec.FailedCount = run.Results.FailedCount()
	rec.SkippedCount = run.SkippedCount
	rec.ResultURI = run.ResultURI
	rec.FinishedAt = time.Now()
	f.record(ctx, logCtx, rec)
	f.notify(ctx, logCtx, rec)

	logCtx.Info("Batch run complete.",
		"documentCount", rec.DocumentCount,
		"failedCount", rec.FailedCount,
		"skippedCount", rec.SkippedCount,
	)
	return run, nil
}

// ProcessDocument downloads, analyzes and flattens one document. It never
// fails: errors become the result's Error.
func (f *QuestionExtractorFunction) ProcessDocument(ctx context.Context, name string) models.DocumentResult {
	return f.processDocument(ctx, f.logger, name)
}

// ProcessUpload handles a single object from a storage finalize event.
// It returns nil when the object is not eligible.
func (f *QuestionExtractorFunction) ProcessUpload(ctx context.Context, e models.GCSEvent) *models.DocumentResult {
	logCtx := f.logger.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if f.config.StorageProvider != ProviderGCS || e.Bucket != f.config.ContainerName {
		logCtx.Info("Ignoring object outside the configured container.", "container", f.config.ContainerName)
		return nil
	}
	if !IsEligible(e.Name) {
		logCtx.Info("Skipping non-PDF blob.", "blob", e.Name)
		return nil
	}

	runID := ulid.Make().String()
	logCtx = logCtx.With("runId", runID)
	rec := models.RunRecord{
		RunID:     runID,
		Container: f.config.ContainerName,
		Trigger:   TriggerUpload,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now(),
	}

	result := f.processDocument(ctx, logCtx, e.Name)

	rec.Status = models.RunStatusCompleted
	rec.DocumentCount = 1
	if result.Failed() {
		rec.FailedCount = 1
		rec.ErrorDetails = result.Error
	}
	rec.ResultURI = f.publish(ctx, logCtx, "uploads/"+e.Name+".json", result)
	rec.FinishedAt = time.Now()
	f.record(ctx, logCtx, rec)
	f.notify(ctx, logCtx, rec)
	return &result
}

func (f *QuestionExtractorFunction) processDocument(ctx context.Context, logCtx *slog.Logger, name string) models.DocumentResult {
	logDoc := logCtx.With("blob", name)
	logDoc.Info("Processing document.")

	questions, err := f.analyzeDocument(ctx, logDoc, name)
	if err != nil {
		logDoc.Error("Failed to process document", "error", err)
		msg := err.Error()
		if msg == "" {
			msg = "unknown error"
		}
		return models.DocumentResult{File: name, Error: msg}
	}

	logDoc.Info("Document processed.", "questionCount", len(questions))
	return models.DocumentResult{File: name, Questions: questions}
}

func (f *QuestionExtractorFunction) analyzeDocument(ctx context.Context, logDoc *slog.Logger, name string) ([]models.Question, error) {
	content, err := f.download(ctx, name)
	if err != nil {
		return nil, err
	}

	if f.config.ValidatePDF {
		pages, err := pdfPageCount(content)
		if err != nil {
			return nil, err
		}
		logDoc.Info("PDF validated.", "pageCount", pages)
	}

	docs, err := f.analyzer.Analyze(ctx, analysis.Request{
		Name:        name,
		Content:     content,
		ContentType: analysis.ContentTypePDF,
		Progress: analysis.ObserverFunc(func(_, status string) {
			logDoc.Info("Analysis progress.", "status", status)
		}),
	})
	if err != nil {
		return nil, err
	}
	return questionsFrom(docs), nil
}

// download materializes the whole blob before analysis begins.
func (f *QuestionExtractorFunction) download(ctx context.Context, name string) ([]byte, error) {
	rc, err := f.source.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", name, err)
	}
	return content, nil
}

// questionsFrom flattens fields across documents, keeping backend order.
func questionsFrom(docs []analysis.Document) []models.Question {
	questions := []models.Question{}
	for _, doc := range docs {
		for _, field := range doc.Fields {
			questions = append(questions, models.Question{
				ID:    field.Name,
				Text:  fieldText(field),
				Score: field.Confidence,
			})
		}
	}
	return questions
}

// fieldText prefers a non-empty value, then non-empty content, then "".
func fieldText(field analysis.Field) string {
	switch {
	case field.Value != nil && *field.Value != "":
		return strings.TrimSpace(*field.Value)
	case field.Content != nil && *field.Content != "":
		return strings.TrimSpace(*field.Content)
	default:
		return ""
	}
}

func (f *QuestionExtractorFunction) publish(ctx context.Context, logCtx *slog.Logger, objectName string, v interface{}) string {
	if f.sink == nil {
		return ""
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logCtx.Error("Failed to marshal result for the results bucket", "error", err)
		return ""
	}
	uri, err := f.sink.Write(ctx, objectName, payload)
	if err != nil {
		logCtx.Error("Failed to save result", "error", err, "object", objectName)
		return ""
	}
	logCtx.Info("Result saved.", "resultUri", uri)
	return uri
}

func (f *QuestionExtractorFunction) record(ctx context.Context, logCtx *slog.Logger, rec models.RunRecord) {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.Record(ctx, rec); err != nil {
		logCtx.Error("Failed to update run record", "error", err, "status", rec.Status)
	}
}

func (f *QuestionExtractorFunction) notify(ctx context.Context, logCtx *slog.Logger, rec models.RunRecord) {
	if f.notifier == nil {
		return
	}
	arg := models.WorkflowArgument{
		RunID:         rec.RunID,
		Container:     rec.Container,
		DocumentCount: rec.DocumentCount,
		FailedCount:   rec.FailedCount,
		ResultURI:     rec.ResultURI,
	}
	if err := f.notifier.Notify(ctx, arg); err != nil {
		logCtx.Error("Failed to hand off run", "error", err)
		return
	}
	logCtx.Info("Hand-off to workflow complete.")
}

// Close releases every client created for the extractor.
func (f *QuestionExtractorFunction) Close() error {
	return closeAll(f.closers)
}
