package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/formquestions/internal/localfs"
	"github.com/Lllllllleong/formquestions/internal/models"
	"github.com/Lllllllleong/formquestions/internal/services"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze every PDF in the configured container",
	Long: `run lists the configured container (Azure Blob, GCS bucket, or a local
directory with --provider local) and analyzes each PDF in listing order.
Files that fail are reported with an error entry; the run continues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := services.LoadConfigFrom(lookup)
		if v, _ := cmd.Flags().GetString("container"); v != "" {
			cfg.ContainerName = v
		}
		if v, _ := cmd.Flags().GetString("provider"); v != "" {
			cfg.StorageProvider = v
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := services.NewDependencies(ctx, cfg)
		if err != nil {
			return err
		}
		extractor, err := services.NewQuestionExtractorWith(cfg, deps)
		if err != nil {
			return err
		}
		defer extractor.Close()

		run, err := extractor.Run(ctx, services.TriggerCLI)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "run %s: %d documents, %d failed, %d skipped\n",
			run.RunID, len(run.Results), run.Results.FailedCount(), run.SkippedCount)
		return finish(cmd, run.Results)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE...",
	Short: "Analyze local PDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := services.LoadConfigFrom(lookup)
		cfg.StorageProvider = services.ProviderLocal
		cfg.ContainerName = "."
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := services.NewDependencies(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = deps.Close() }()

		results, err := analyzeFiles(ctx, cfg, deps, args)
		if err != nil {
			return err
		}
		return finish(cmd, results)
	},
}

func init() {
	runCmd.Flags().String("container", "", "container, bucket, or directory to process (overrides BLOB_CONTAINER_NAME)")
	runCmd.Flags().String("provider", "", "storage provider: azure, gcs, or local (overrides STORAGE_PROVIDER)")
	for _, c := range []*cobra.Command{runCmd, analyzeCmd} {
		c.Flags().Bool("fail-on-error", false, "exit non-zero when any document failed")
	}
}

// analyzeFiles processes each path through an extractor rooted at the
// file's directory. Non-PDF paths are skipped like in a container run.
func analyzeFiles(ctx context.Context, cfg services.Config, deps services.Dependencies, paths []string) (models.BatchResult, error) {
	results := models.BatchResult{}
	for _, path := range paths {
		dir, name := filepath.Split(filepath.Clean(path))
		if dir == "" {
			dir = "."
		}
		if !services.IsEligible(name) {
			fmt.Fprintf(os.Stderr, "skipped %s: not a PDF\n", path)
			continue
		}
		src, err := localfs.NewDirSource(dir)
		if err != nil {
			return nil, err
		}
		fileCfg := cfg
		fileCfg.ContainerName = dir
		fileDeps := deps
		fileDeps.Source = src
		extractor, err := services.NewQuestionExtractorWith(fileCfg, fileDeps)
		if err != nil {
			return nil, err
		}
		result := extractor.ProcessDocument(ctx, name)
		result.File = path
		results = append(results, result)
	}
	return results, nil
}

func finish(cmd *cobra.Command, results models.BatchResult) error {
	format, _ := cmd.Flags().GetString("output")
	if err := writeResults(cmd.OutOrStdout(), format, results); err != nil {
		return err
	}
	failOnError, _ := cmd.Flags().GetBool("fail-on-error")
	if failOnError && results.FailedCount() > 0 {
		return fmt.Errorf("%d of %d documents failed", results.FailedCount(), len(results))
	}
	return nil
}

func writeResults(w io.Writer, format string, results models.BatchResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
