package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/formquestions/internal/analysis"
)

// --- Field Extractor Model Prompts ---
const FieldExtractorSystemPrompt = "You are a form field extraction tool. Your task is to read a document and return every labelled field it contains as structured JSON. You must output your response as a single valid JSON object."
const FieldExtractorUserPrompt = `Analyze the provided document and extract its named fields.

Follow these rules precisely:
1.  Treat every question, label, or form entry as a field. Use a short, stable identifier as its name (e.g. "Q1", "applicant_name").
2.  For each field output an object with exactly these keys:
    - "name": the field identifier.
    - "value": the normalized value as a string, or null if the field is empty.
    - "content": the raw text of the field exactly as it appears in the document, or null.
    - "confidence": a number between 0 and 1 describing how certain you are, or null.
3.  Group fields by logical document. Most files contain a single document.
4.  Keep fields in reading order.
5.  The output MUST be a single JSON object of the form:
{"documents": [{"docType": "string", "fields": [{"name": "Q1", "value": "...", "content": "...", "confidence": 0.9}]}]}
Do not include any text before or after the JSON object.`

// VertexAnalyzer extracts fields with a Gemini model on Vertex AI.
type VertexAnalyzer struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexAnalyzer creates a client and configures modelName for JSON field extraction.
func NewVertexAnalyzer(ctx context.Context, projectID, region, modelName string) (*VertexAnalyzer, error) {
	if projectID == "" || region == "" || modelName == "" {
		return nil, fmt.Errorf("NewVertexAnalyzer: projectID, region and modelName cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(FieldExtractorSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexAnalyzer{model: model, baseClient: baseClient}, nil
}

// Analyze sends the document inline and decodes the model's JSON answer.
func (a *VertexAnalyzer) Analyze(ctx context.Context, req analysis.Request) ([]analysis.Document, error) {
	contentType := req.ContentType
	if contentType == "" {
		contentType = analysis.ContentTypePDF
	}

	analysis.Report(req.Progress, req.Name, analysis.StatusRunning)
	resp, err := a.model.GenerateContent(ctx,
		genai.Blob{MIMEType: contentType, Data: req.Content},
		genai.Text(FieldExtractorUserPrompt),
	)
	if err != nil {
		analysis.Report(req.Progress, req.Name, analysis.StatusFailed)
		return nil, fmt.Errorf("failed to generate fields from gemini: %w", err)
	}

	docs, err := parseFieldResponse(extractText(resp))
	if err != nil {
		analysis.Report(req.Progress, req.Name, analysis.StatusFailed)
		return nil, err
	}
	analysis.Report(req.Progress, req.Name, analysis.StatusSucceeded)
	return docs, nil
}

func (a *VertexAnalyzer) Close() error {
	if a.baseClient != nil {
		return a.baseClient.Close()
	}
	return nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	parts := 0
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			parts++
		}
	}
	if parts > 1 {
		slog.Warn("Gemini response contained multiple text parts; they have been concatenated.", "parts", parts)
	}
	return b.String()
}

type fieldResponse struct {
	Documents []struct {
		DocType string `json:"docType"`
		Fields  []struct {
			Name       string   `json:"name"`
			Value      *string  `json:"value"`
			Content    *string  `json:"content"`
			Confidence *float64 `json:"confidence"`
		} `json:"fields"`
	} `json:"documents"`
}

// parseFieldResponse decodes the model's JSON, tolerating markdown fences.
func parseFieldResponse(text string) ([]analysis.Document, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return nil, fmt.Errorf("gemini returned an empty response instead of JSON")
	}

	var parsed fieldResponse
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from model: %w", err)
	}

	docs := make([]analysis.Document, 0, len(parsed.Documents))
	for _, d := range parsed.Documents {
		doc := analysis.Document{DocType: d.DocType}
		for _, f := range d.Fields {
			doc.Fields = append(doc.Fields, analysis.Field{
				Name:       f.Name,
				Value:      f.Value,
				Content:    f.Content,
				Confidence: f.Confidence,
			})
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
