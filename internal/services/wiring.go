package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/formquestions/internal/azure"
	"github.com/Lllllllleong/formquestions/internal/gcp"
	"github.com/Lllllllleong/formquestions/internal/localfs"
)

// NewDependencies creates the clients named by a validated config. On error,
// every client created so far is closed.
func NewDependencies(ctx context.Context, config Config) (deps Dependencies, err error) {
	defer func() {
		if err != nil {
			closeAll(deps.Closers)
			deps = Dependencies{}
		}
	}()

	var gcsClient *storage.Client
	storageClient := func(connectionString string) (*storage.Client, error) {
		if gcsClient != nil {
			return gcsClient, nil
		}
		c, err := gcp.NewStorageClient(ctx, connectionString)
		if err != nil {
			return nil, err
		}
		gcsClient = c
		deps.Closers = append(deps.Closers, c)
		return c, nil
	}

	switch config.StorageProvider {
	case ProviderAzure:
		src, err := azure.NewContainerSource(config.ConnectionString, config.ContainerName)
		if err != nil {
			return deps, err
		}
		deps.Source = src
	case ProviderGCS:
		client, err := storageClient(config.ConnectionString)
		if err != nil {
			return deps, err
		}
		deps.Source = gcp.NewBucketSource(client, config.ContainerName)
	case ProviderLocal:
		src, err := localfs.NewDirSource(config.ContainerName)
		if err != nil {
			return deps, err
		}
		deps.Source = src
	default:
		return deps, fmt.Errorf("unknown storage provider %q", config.StorageProvider)
	}

	switch config.AnalysisBackend {
	case BackendFormRecognizer:
		analyzer, err := azure.NewFormRecognizer(azure.FormRecognizerConfig{
			Endpoint:     config.FormEndpoint,
			Key:          config.FormKey,
			ModelID:      config.ModelID,
			APIVersion:   config.FormAPIVersion,
			PollInterval: config.PollInterval,
		}, nil)
		if err != nil {
			return deps, err
		}
		deps.Analyzer = analyzer
	case BackendVertex:
		analyzer, err := gcp.NewVertexAnalyzer(ctx, config.ProjectID, config.VertexAIRegion, config.ModelID)
		if err != nil {
			return deps, fmt.Errorf("failed to create vertex analyzer: %w", err)
		}
		deps.Analyzer = analyzer
		deps.Closers = append(deps.Closers, analyzer)
	default:
		return deps, fmt.Errorf("unknown analysis backend %q", config.AnalysisBackend)
	}

	if config.FirestoreCollection != "" {
		client, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
		if err != nil {
			return deps, err
		}
		deps.Closers = append(deps.Closers, client)
		deps.Recorder = gcp.NewRunLedger(client, config.FirestoreCollection)
	}

	if config.ResultsBucket != "" {
		// The results bucket always lives in GCS; outside the gcs provider
		// the connection string is not a GCS credential.
		conn := gcp.ADCConnectionString
		if config.StorageProvider == ProviderGCS {
			conn = config.ConnectionString
		}
		client, err := storageClient(conn)
		if err != nil {
			return deps, err
		}
		deps.Sink = gcp.NewResultWriter(client, config.ResultsBucket)
	}

	if config.WorkflowID != "" {
		notifier, err := gcp.NewWorkflowNotifier(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return deps, err
		}
		deps.Closers = append(deps.Closers, notifier)
		deps.Notifier = notifier
	}

	slog.Info("Question extractor dependencies initialized.",
		"storageProvider", config.StorageProvider,
		"analysisBackend", config.AnalysisBackend,
		"runLedger", deps.Recorder != nil,
		"resultsBucket", config.ResultsBucket,
		"workflowId", config.WorkflowID,
	)
	return deps, nil
}

// Close releases every client in d.Closers and reports all failures.
func (d Dependencies) Close() error {
	return closeAll(d.Closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
