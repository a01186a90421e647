package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/formquestions/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RunLedger persists one RunRecord per batch run, keyed by run ID.
type RunLedger struct {
	client     *firestore.Client
	collection string
}

// NewRunLedger returns a ledger writing to collection.
func NewRunLedger(client *firestore.Client, collection string) *RunLedger {
	return &RunLedger{client: client, collection: collection}
}

// Record creates or overwrites the record for rec.RunID.
func (l *RunLedger) Record(ctx context.Context, rec models.RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("run record has no run ID")
	}
	if _, err := l.client.Collection(l.collection).Doc(rec.RunID).Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to write run record %s: %w", rec.RunID, err)
	}
	return nil
}
