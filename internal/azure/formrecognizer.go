package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"

	"github.com/Lllllllleong/formquestions/internal/analysis"
)

// DefaultAPIVersion is the Document Intelligence REST version we speak.
const DefaultAPIVersion = "2023-07-31"

// DefaultPollInterval applies when the service sends no Retry-After header.
const DefaultPollInterval = time.Second

const (
	moduleName    = "formquestions/azure"
	moduleVersion = "v1.0.0"
	keyHeader     = "Ocp-Apim-Subscription-Key"
)

// FormRecognizerConfig holds connection settings for a custom model.
type FormRecognizerConfig struct {
	Endpoint     string
	Key          string
	ModelID      string
	APIVersion   string
	PollInterval time.Duration
	// InsecureAllowHTTP permits sending the key to a plain http endpoint.
	InsecureAllowHTTP bool
}

// FormRecognizer runs documents through a custom Form Recognizer model using
// the analyze long-running operation: submit, then poll until done.
type FormRecognizer struct {
	pipeline runtime.Pipeline
	config   FormRecognizerConfig
}

// NewFormRecognizer validates cfg and builds an azcore pipeline carrying the
// subscription key. A nil transport uses the azcore default HTTP client.
func NewFormRecognizer(cfg FormRecognizerConfig, transport policy.Transporter) (*FormRecognizer, error) {
	if cfg.Endpoint == "" || cfg.Key == "" || cfg.ModelID == "" {
		return nil, fmt.Errorf("NewFormRecognizer: endpoint, key and model ID cannot be empty")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid form recognizer endpoint: %w", err)
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	var opts policy.ClientOptions
	if transport != nil {
		opts.Transport = transport
	}
	keyPolicy := runtime.NewKeyCredentialPolicy(azcore.NewKeyCredential(cfg.Key), keyHeader,
		&runtime.KeyCredentialPolicyOptions{InsecureAllowCredentialWithHTTP: cfg.InsecureAllowHTTP})
	pl := runtime.NewPipeline(moduleName, moduleVersion, runtime.PipelineOptions{
		PerCall:  []policy.Policy{operationStatusPolicy{}},
		PerRetry: []policy.Policy{keyPolicy},
	}, &opts)
	return &FormRecognizer{pipeline: pl, config: cfg}, nil
}

// Analyze submits req.Content and polls the operation to completion.
func (c *FormRecognizer) Analyze(ctx context.Context, req analysis.Request) ([]analysis.Document, error) {
	resp, err := c.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	poller, err := runtime.NewPoller[operation](resp, c.pipeline, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start polling analyze operation: %w", err)
	}

	ctx = context.WithValue(ctx, progressKey{}, progressTarget{name: req.Name, observer: req.Progress})
	op, err := poller.PollUntilDone(ctx, &runtime.PollUntilDoneOptions{Frequency: c.config.PollInterval})
	if err != nil {
		return nil, err
	}
	if op.AnalyzeResult == nil {
		return []analysis.Document{}, nil
	}
	return op.AnalyzeResult.documents(), nil
}

func (c *FormRecognizer) begin(ctx context.Context, req analysis.Request) (*http.Response, error) {
	contentType := req.ContentType
	if contentType == "" {
		contentType = analysis.ContentTypePDF
	}
	endpoint := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		c.config.Endpoint, url.PathEscape(c.config.ModelID), url.QueryEscape(c.config.APIVersion))

	httpReq, err := runtime.NewRequest(ctx, http.MethodPost, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to build analyze request: %w", err)
	}
	if err := httpReq.SetBody(streaming.NopCloser(bytes.NewReader(req.Content)), contentType); err != nil {
		return nil, fmt.Errorf("failed to set analyze request body: %w", err)
	}

	resp, err := c.pipeline.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analyze request failed: %w", err)
	}
	if !runtime.HasStatusCode(resp, http.StatusAccepted) {
		return nil, runtime.NewResponseError(resp)
	}
	if resp.Header.Get("Operation-Location") == "" {
		resp.Body.Close()
		return nil, fmt.Errorf("analyze response carried no Operation-Location header")
	}
	return resp, nil
}

type progressKey struct{}

type progressTarget struct {
	name     string
	observer analysis.Observer
}

// operationStatusPolicy inspects every successful poll of an analyze
// operation. It reports the status to the request's observer and turns any
// status other than notStarted, running or succeeded into an error, so a
// failed, canceled or unrecognized operation ends polling.
type operationStatusPolicy struct{}

func (operationStatusPolicy) Do(req *policy.Request) (*http.Response, error) {
	resp, err := req.Next()
	if err != nil || req.Raw().Method != http.MethodGet || !runtime.HasStatusCode(resp, http.StatusOK) {
		return resp, err
	}
	payload, err := runtime.Payload(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read analyze operation: %w", err)
	}
	var state struct {
		Status string        `json:"status"`
		Error  *serviceError `json:"error"`
	}
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("failed to decode analyze operation: %w", err)
	}
	if t, ok := req.Raw().Context().Value(progressKey{}).(progressTarget); ok {
		analysis.Report(t.observer, t.name, state.Status)
	}

	switch state.Status {
	case analysis.StatusNotStarted, analysis.StatusRunning, analysis.StatusSucceeded:
		return resp, nil
	case analysis.StatusFailed:
		return nil, fmt.Errorf("%w: %s", analysis.ErrFailed, state.Error.describe())
	default:
		return nil, fmt.Errorf("%w: operation ended with status %q", analysis.ErrFailed, state.Status)
	}
}

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *serviceError) describe() string {
	if e == nil {
		return "no error details"
	}
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

type operation struct {
	Status        string         `json:"status"`
	Error         *serviceError  `json:"error"`
	AnalyzeResult *analyzeResult `json:"analyzeResult"`
}

type analyzeResult struct {
	ModelID   string             `json:"modelId"`
	Documents []analyzedDocument `json:"documents"`
}

type analyzedDocument struct {
	DocType string        `json:"docType"`
	Fields  orderedFields `json:"fields"`
}

func (r *analyzeResult) documents() []analysis.Document {
	docs := make([]analysis.Document, 0, len(r.Documents))
	for _, d := range r.Documents {
		doc := analysis.Document{DocType: d.DocType}
		for _, f := range d.Fields {
			doc.Fields = append(doc.Fields, analysis.Field{
				Name:       f.name,
				Value:      f.field.value(),
				Content:    f.field.Content,
				Confidence: f.field.Confidence,
			})
		}
		docs = append(docs, doc)
	}
	return docs
}

type namedField struct {
	name  string
	field documentField
}

// orderedFields decodes the "fields" object keeping the key order of the payload.
type orderedFields []namedField

func (o *orderedFields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fields: expected object, got %v", tok)
	}
	var fields orderedFields
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("fields: expected key, got %v", keyTok)
		}
		var f documentField
		if err := dec.Decode(&f); err != nil {
			return fmt.Errorf("fields: %s: %w", key, err)
		}
		fields = append(fields, namedField{name: key, field: f})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = fields
	return nil
}

type documentField struct {
	Type               string   `json:"type"`
	ValueString        *string  `json:"valueString"`
	ValueDate          *string  `json:"valueDate"`
	ValueTime          *string  `json:"valueTime"`
	ValuePhoneNumber   *string  `json:"valuePhoneNumber"`
	ValueCountryRegion *string  `json:"valueCountryRegion"`
	ValueSelectionMark *string  `json:"valueSelectionMark"`
	ValueSignature     *string  `json:"valueSignature"`
	ValueNumber        *float64 `json:"valueNumber"`
	ValueInteger       *int64   `json:"valueInteger"`
	ValueBoolean       *bool    `json:"valueBoolean"`
	Content            *string  `json:"content"`
	Confidence         *float64 `json:"confidence"`
}

// value renders the typed value as a string. Composite types (array,
// object, currency, address) have no scalar value.
func (f documentField) value() *string {
	for _, s := range []*string{
		f.ValueString, f.ValueDate, f.ValueTime, f.ValuePhoneNumber,
		f.ValueCountryRegion, f.ValueSelectionMark, f.ValueSignature,
	} {
		if s != nil {
			return s
		}
	}
	var v string
	switch {
	case f.ValueNumber != nil:
		v = strconv.FormatFloat(*f.ValueNumber, 'f', -1, 64)
	case f.ValueInteger != nil:
		v = strconv.FormatInt(*f.ValueInteger, 10)
	case f.ValueBoolean != nil:
		v = strconv.FormatBool(*f.ValueBoolean)
	default:
		return nil
	}
	return &v
}
