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

	// Register the CloudEvent function. The framework will handle routing the event here.
	functions.CloudEvent("ExtractQuestionsOnUpload", services.NewUploadHandler(services.NewQuestionExtractor).Handle)
}

// main is required by the Go Functions Framework.
func main() {}
