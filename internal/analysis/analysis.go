// Package analysis defines the request and response shapes shared by every
// document-analysis backend, independent of the hosted service behind it.
package analysis

import (
	"context"
	"errors"
)

// ErrFailed is wrapped by errors for analyses the backend itself reported as failed.
var ErrFailed = errors.New("analysis failed")

// ContentTypePDF is the declared content type for every document we submit.
const ContentTypePDF = "application/pdf"

// Status values reported by long-running analysis operations.
const (
	StatusNotStarted = "notStarted"
	StatusRunning    = "running"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// Request is a complete document payload submitted for analysis.
type Request struct {
	Name        string
	Content     []byte
	ContentType string
	Progress    Observer
}

// Document is one document object returned by a backend.
type Document struct {
	DocType string
	Fields  []Field
}

// Field is a named value extracted from a document. Nil pointers mean the
// backend did not report that property. Fields keep the backend's order.
type Field struct {
	Name       string
	Value      *string
	Content    *string
	Confidence *float64
}

// Observer receives status transitions of a running analysis.
// It is purely informational: it never influences control flow.
type Observer interface {
	OnProgress(name, status string)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(name, status string)

func (f ObserverFunc) OnProgress(name, status string) { f(name, status) }

// Report notifies o if it is set.
func Report(o Observer, name, status string) {
	if o != nil {
		o.OnProgress(name, status)
	}
}

// Analyzer runs a document through a hosted model and waits for completion.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) ([]Document, error)
}
