package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/earthquery/internal/config"
	"github.com/kalambet/earthquery/internal/docsource"
	"github.com/kalambet/earthquery/internal/journal"
	"github.com/kalambet/earthquery/internal/pipeline"
	"github.com/kalambet/earthquery/internal/search"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: provision, upload, register, query",
	RunE: func(cmd *cobra.Command, args []string) error {
		skipUpload, _ := cmd.Flags().GetBool("skip-upload")
		cleanup, _ := cmd.Flags().GetBool("cleanup")
		questions, _ := cmd.Flags().GetStringArray("question")
		localPath, _ := cmd.Flags().GetString("local")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		if cfg.Model.Endpoint == "" {
			return fmt.Errorf("missing required config: model endpoint. " +
				"Set it via `earthquery config set model.endpoint <url>` or environment variable EARTHQUERY_MODEL_ENDPOINT")
		}

		var source pipeline.DocumentSource
		switch {
		case localPath != "":
			source = docsource.NewLocal(localPath)
		case cfg.Corpus.LocalPath != "":
			source = docsource.NewLocal(cfg.Corpus.LocalPath)
		default:
			source = docsource.New(cfg.Corpus.URL)
		}

		var jrnl pipeline.Journal
		store, err := journal.Open(cfg.Storage.DataDir)
		if err != nil {
			printWarning("run journal unavailable: %v", err)
		} else {
			defer store.Close()
			jrnl = store
		}

		client := search.New(cfg.Search.Endpoint, cfg.Search.APIKey, cfg.Search.APIVersion)
		runner := pipeline.NewRunner(client, source, jrnl, runnerParams(cfg, skipUpload, cleanup, questions), os.Stdout)

		printStep("Running pipeline against %s", cfg.Search.Endpoint)
		if err := runner.Run(cmd.Context()); err != nil {
			return err
		}
		printSuccess("Run complete")
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("skip-upload", false, "skip document upload, reuse the existing index contents")
	runCmd.Flags().Bool("cleanup", false, "delete the knowledge base, source, and index after the run")
	runCmd.Flags().StringArray("question", nil, "question to ask (repeatable; defaults to the built-in conversation)")
	runCmd.Flags().String("local", "", "load the corpus from a local JSON or PDF file instead of the corpus URL")
}

func runnerParams(cfg config.Config, skipUpload, cleanup bool, questions []string) pipeline.Params {
	return pipeline.Params{
		IndexName:       cfg.Search.IndexName,
		ModelEndpoint:   cfg.Model.Endpoint,
		ChatDeployment:  cfg.Model.ChatDeployment,
		EmbedDeployment: cfg.Model.EmbedDeployment,

		SourceName:         cfg.Knowledge.SourceName,
		BaseName:           cfg.Knowledge.BaseName,
		RerankerThreshold:  cfg.Knowledge.RerankerThreshold,
		ReasoningEffort:    cfg.Knowledge.ReasoningEffort,
		AnswerInstructions: cfg.Knowledge.AnswerInstructions,

		UploadEnabled: cfg.Upload.Enabled && !skipUpload,
		Cleanup:       cfg.Upload.Cleanup || cleanup,
		BatchSize:     cfg.Upload.BatchSize,
		PollInterval:  parseDurationOr(cfg.Upload.PollInterval, 4*time.Second),
		PollTimeout:   parseDurationOr(cfg.Upload.PollTimeout, 2*time.Minute),

		Questions: questions,
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("invalid duration in config, using default", "value", s, "default", fallback, "error", err)
		return fallback
	}
	return d
}
