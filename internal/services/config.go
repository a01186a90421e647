package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/formquestions/internal/azure"
	"github.com/Lllllllleong/formquestions/internal/gcp"
)

// Storage providers.
const (
	ProviderAzure = "azure"
	ProviderGCS   = "gcs"
	ProviderLocal = "local"
)

// Analysis backends.
const (
	BackendFormRecognizer = "formrecognizer"
	BackendVertex         = "vertex"
)

// Environment keys.
const (
	EnvStorageConnection   = "STORAGE_CONNECTION_STRING"
	EnvAzureWebJobsStorage = "AzureWebJobsStorage"
	EnvContainerName       = "BLOB_CONTAINER_NAME"
	EnvStorageProvider     = "STORAGE_PROVIDER"
	EnvAnalysisBackend     = "ANALYSIS_BACKEND"
	EnvFormEndpoint        = "FORM_RECOGNIZER_ENDPOINT"
	EnvFormKey             = "FORM_RECOGNIZER_KEY"
	EnvModelID             = "CUSTOM_FORM_MODEL_ID"
	EnvFormAPIVersion      = "FORM_RECOGNIZER_API_VERSION"
	EnvProjectID           = "PROJECT_ID"
	EnvVertexRegion        = "VERTEX_AI_REGION"
	EnvFirestoreCollection = "FIRESTORE_COLLECTION"
	EnvResultsBucket       = "RESULTS_BUCKET"
	EnvWorkflowID          = "WORKFLOW_ID"
	EnvWorkflowLocation    = "WORKFLOW_LOCATION"
	EnvValidatePDF         = "VALIDATE_PDF"
	EnvPollInterval        = "POLL_INTERVAL"
)

// Config holds all configuration for the question extractor. It is built
// once, validated once, and passed to the extractor at construction.
type Config struct {
	StorageProvider  string
	ConnectionString string
	ContainerName    string

	AnalysisBackend string
	FormEndpoint    string
	FormKey         string
	ModelID         string
	FormAPIVersion  string
	PollInterval    time.Duration
	ProjectID       string
	VertexAIRegion  string

	FirestoreCollection string
	ResultsBucket       string
	WorkflowID          string
	WorkflowLocation    string
	ValidatePDF         bool

	// unparsed holds keys whose values could not be parsed at load time.
	unparsed []string
}

// ConfigError lists every missing or invalid configuration key.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// LoadConfig reads the configuration from the environment. It does not validate.
func LoadConfig() Config {
	return LoadConfigFrom(gcp.GetEnv)
}

// LoadConfigFrom reads the configuration through getenv, which has the
// signature of gcp.GetEnv. Callers with another configuration source (the
// CLI's viper instance) supply their own lookup.
func LoadConfigFrom(getenv func(key, fallback string) string) Config {
	connection := getenv(EnvStorageConnection, "")
	if connection == "" {
		connection = getenv(EnvAzureWebJobsStorage, "")
	}
	cfg := Config{
		StorageProvider:     strings.ToLower(getenv(EnvStorageProvider, ProviderAzure)),
		ConnectionString:    connection,
		ContainerName:       getenv(EnvContainerName, ""),
		AnalysisBackend:     strings.ToLower(getenv(EnvAnalysisBackend, BackendFormRecognizer)),
		FormEndpoint:        getenv(EnvFormEndpoint, ""),
		FormKey:             getenv(EnvFormKey, ""),
		ModelID:             getenv(EnvModelID, ""),
		FormAPIVersion:      getenv(EnvFormAPIVersion, azure.DefaultAPIVersion),
		ProjectID:           getenv(EnvProjectID, ""),
		VertexAIRegion:      getenv(EnvVertexRegion, "us-central1"),
		FirestoreCollection: getenv(EnvFirestoreCollection, ""),
		ResultsBucket:       getenv(EnvResultsBucket, ""),
		WorkflowID:          getenv(EnvWorkflowID, ""),
		WorkflowLocation:    getenv(EnvWorkflowLocation, "us-central1"),
		PollInterval:        azure.DefaultPollInterval,
	}
	if v := getenv(EnvPollInterval, ""); v != "" {
		// An unparseable value leaves zero, which Validate rejects.
		cfg.PollInterval, _ = time.ParseDuration(v)
	}
	if v := getenv(EnvValidatePDF, ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			cfg.unparsed = append(cfg.unparsed, EnvValidatePDF)
		}
		cfg.ValidatePDF = b
	}
	return cfg
}

// Validate checks every required key and reports all problems at once.
func (c Config) Validate() error {
	var e ConfigError
	need := func(value, key string) {
		if value == "" {
			e.Missing = append(e.Missing, key)
		}
	}

	switch c.StorageProvider {
	case ProviderAzure, ProviderGCS:
		need(c.ConnectionString, EnvAzureWebJobsStorage)
	case ProviderLocal:
	default:
		e.Invalid = append(e.Invalid, fmt.Sprintf("%s=%q", EnvStorageProvider, c.StorageProvider))
	}
	need(c.ContainerName, EnvContainerName)

	switch c.AnalysisBackend {
	case BackendFormRecognizer:
		need(c.FormEndpoint, EnvFormEndpoint)
		need(c.FormKey, EnvFormKey)
	case BackendVertex:
		need(c.ProjectID, EnvProjectID)
	default:
		e.Invalid = append(e.Invalid, fmt.Sprintf("%s=%q", EnvAnalysisBackend, c.AnalysisBackend))
	}
	need(c.ModelID, EnvModelID)

	if (c.FirestoreCollection != "" || c.WorkflowID != "") && c.AnalysisBackend != BackendVertex {
		need(c.ProjectID, EnvProjectID)
	}
	e.Invalid = append(e.Invalid, c.unparsed...)
	// The analyze poller refuses intervals under one second.
	if c.PollInterval < time.Second {
		e.Invalid = append(e.Invalid, EnvPollInterval)
	}

	if len(e.Missing) > 0 || len(e.Invalid) > 0 {
		return &e
	}
	return nil
}
