package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func score(f float64) *float64 { return &f }

func TestDocumentResult_JSONShape(t *testing.T) {
	tests := []struct {
		name   string
		result DocumentResult
		want   string
	}{
		{
			name: "success",
			result: DocumentResult{File: "a.pdf", Questions: []Question{
				{ID: "Q1", Text: "Name", Score: score(0.98)},
				{ID: "Q2", Text: ""},
			}},
			want: `{"file":"a.pdf","questions":[{"id":"Q1","text":"Name","score":0.98},{"id":"Q2","text":""}]}`,
		},
		{
			name:   "success without questions",
			result: DocumentResult{File: "a.pdf"},
			want:   `{"file":"a.pdf","questions":[]}`,
		},
		{
			name:   "failure drops questions",
			result: DocumentResult{File: "b.pdf", Questions: []Question{{ID: "Q1"}}, Error: "boom"},
			want:   `{"file":"b.pdf","error":"boom"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.result)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestBatchResult_JSON(t *testing.T) {
	var empty BatchResult
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	batch := BatchResult{{File: "a.pdf"}, {File: "b.pdf", Error: "boom"}}
	data, err = json.Marshal(batch)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"file":"a.pdf","questions":[]},{"file":"b.pdf","error":"boom"}]`, string(data))
	assert.Equal(t, 1, batch.FailedCount())
}

func TestDocumentResult_UnmarshalEitherShape(t *testing.T) {
	var batch BatchResult
	require.NoError(t, json.Unmarshal([]byte(`[
		{"file":"a.pdf","questions":[{"id":"Q1","text":"Name"}]},
		{"file":"b.pdf","error":"boom"}
	]`), &batch))

	require.Len(t, batch, 2)
	assert.Equal(t, DocumentResult{File: "a.pdf", Questions: []Question{{ID: "Q1", Text: "Name"}}}, batch[0])
	assert.True(t, batch[1].Failed())
	assert.Nil(t, batch[1].Questions)
}

func TestBatchResult_YAML(t *testing.T) {
	batch := BatchResult{
		{File: "a.pdf", Questions: []Question{{ID: "Q1", Text: "Name", Score: score(0.5)}}},
		{File: "b.pdf", Error: "boom"},
	}
	data, err := yaml.Marshal(batch)
	require.NoError(t, err)
	assert.YAMLEq(t, `
- file: a.pdf
  questions:
    - id: Q1
      text: Name
      score: 0.5
- file: b.pdf
  error: boom
`, string(data))
}
