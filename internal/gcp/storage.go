package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ADCConnectionString selects Application Default Credentials for GCS.
const ADCConnectionString = "adc"

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// NewStorageClient creates a GCS client. connectionString is either "adc"
// or the path of a service account credentials file.
func NewStorageClient(ctx context.Context, connectionString string) (*storage.Client, error) {
	var opts []option.ClientOption
	if connectionString != "" && !strings.EqualFold(connectionString, ADCConnectionString) {
		opts = append(opts, option.WithCredentialsFile(connectionString))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return client, nil
}

// BucketSource enumerates and reads the objects of a single GCS bucket.
type BucketSource struct {
	bucket *storage.BucketHandle
	name   string
}

// NewBucketSource wraps a bucket of client as a blob source.
func NewBucketSource(client *storage.Client, bucket string) *BucketSource {
	return &BucketSource{bucket: client.Bucket(bucket), name: bucket}
}

// Walk calls fn for every object in the bucket in listing order.
// Listing stops at the first error returned by fn.
func (s *BucketSource) Walk(ctx context.Context, fn func(name string) error) error {
	it := s.bucket.Objects(ctx, &storage.Query{Projection: storage.ProjectionNoACL})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects in gs://%s: %w", s.name, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

// Open returns a reader over the object's content.
func (s *BucketSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", s.name, name, err)
	}
	return r, nil
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 412 {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// ResultWriter stores result payloads in a results bucket.
type ResultWriter struct {
	bucket *storage.BucketHandle
	name   string
}

// NewResultWriter returns a writer targeting bucket.
func NewResultWriter(client *storage.Client, bucket string) *ResultWriter {
	return &ResultWriter{bucket: client.Bucket(bucket), name: bucket}
}

// Write stores content at objectName and returns its gs:// URI.
func (w *ResultWriter) Write(ctx context.Context, objectName string, content []byte) (string, error) {
	if err := SaveToGCSAtomically(ctx, w.bucket, objectName, content); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", w.name, objectName), nil
}
