package models

import "encoding/json"

// These structs define the JSON payloads returned to callers and exchanged
// with the event trigger and the downstream workflow.

// Question is one extracted field. Score is omitted when the backend
// reported no confidence.
type Question struct {
	ID    string   `json:"id" yaml:"id"`
	Text  string   `json:"text" yaml:"text"`
	Score *float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// DocumentResult is the outcome for one eligible document. It serializes as
// either {file, questions} or {file, error}, never both.
type DocumentResult struct {
	File      string
	Questions []Question
	Error     string
}

// Failed reports whether the document produced an error instead of questions.
func (r DocumentResult) Failed() bool {
	return r.Error != ""
}

type successPayload struct {
	File      string     `json:"file" yaml:"file"`
	Questions []Question `json:"questions" yaml:"questions"`
}

type failurePayload struct {
	File  string `json:"file" yaml:"file"`
	Error string `json:"error" yaml:"error"`
}

func (r DocumentResult) payload() interface{} {
	if r.Failed() {
		return failurePayload{File: r.File, Error: r.Error}
	}
	questions := r.Questions
	if questions == nil {
		questions = []Question{}
	}
	return successPayload{File: r.File, Questions: questions}
}

func (r DocumentResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.payload())
}

func (r DocumentResult) MarshalYAML() (interface{}, error) {
	return r.payload(), nil
}

// UnmarshalJSON accepts either shape.
func (r *DocumentResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		File      string     `json:"file"`
		Questions []Question `json:"questions"`
		Error     string     `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = DocumentResult{File: raw.File, Questions: raw.Questions, Error: raw.Error}
	return nil
}

// BatchResult holds one DocumentResult per eligible document, in listing order.
type BatchResult []DocumentResult

// MarshalJSON renders an empty batch as [] rather than null.
func (b BatchResult) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]DocumentResult(b))
}

// FailedCount returns the number of documents that carry an error.
func (b BatchResult) FailedCount() int {
	n := 0
	for _, r := range b {
		if r.Failed() {
			n++
		}
	}
	return n
}

// GCSEvent is the data payload of a storage object finalize CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// WorkflowArgument is the execution argument handed to the downstream workflow.
type WorkflowArgument struct {
	RunID         string `json:"runId"`
	Container     string `json:"container"`
	DocumentCount int    `json:"documentCount"`
	FailedCount   int    `json:"failedCount"`
	ResultURI     string `json:"resultUri,omitempty"`
}
