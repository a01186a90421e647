package main

import (
	"log/slog"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/formquestions/internal/services"
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function with the framework.
	// "ExtractQuestions" is the entry point name we'll see in GCP.
	functions.HTTP("ExtractQuestions", services.NewExtractQuestionsHandler(services.NewQuestionExtractor).ServeHTTP)
}

// main is required by the Go Functions Framework.
func main() {}
