package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/earthquery/internal/config"
	"github.com/kalambet/earthquery/internal/journal"
	"github.com/kalambet/earthquery/internal/pipeline"
	"github.com/kalambet/earthquery/internal/search"
)

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask the running server a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/query", map[string]string{"question": question})
		if err != nil {
			return err
		}

		var result struct {
			Answer     string `json:"answer"`
			References []struct {
				Type   string  `json:"type"`
				DocKey string  `json:"docKey"`
				Score  float64 `json:"rerankerScore"`
			} `json:"references"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		if len(result.References) > 0 {
			fmt.Println()
			for i, r := range result.References {
				fmt.Printf("%s doc %s [score: %.2f]\n",
					colorize(colorCyan, fmt.Sprintf("[%d]", i+1)), r.DocKey, r.Score)
			}
		}
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and knowledge base status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		printStatus("Endpoint", "%s", cfg.Search.Endpoint)
		printStatus("Index", "%s", cfg.Search.IndexName)
		printStatus("Knowledge source", "%s", cfg.Knowledge.SourceName)
		printStatus("Knowledge base", "%s", cfg.Knowledge.BaseName)

		client := search.New(cfg.Search.Endpoint, cfg.Search.APIKey, cfg.Search.APIVersion)
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		count, err := client.DocumentCount(ctx, cfg.Search.IndexName)
		if err != nil {
			if search.IsNotFound(err) {
				printStatus("Documents", "index not created yet")
			} else {
				printStatus("Documents", "unavailable (%v)", err)
			}
		} else {
			printStatus("Documents", "%d", count)
		}

		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openJournal()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			status := r.Status
			switch r.Status {
			case journal.StatusCompleted:
				status = colorize(colorGreen, status)
			case journal.StatusFailed:
				status = colorize(colorRed, status)
			}
			fmt.Printf("%s  %s  %s  %d docs\n",
				colorize(colorCyan, r.ID[:8]),
				r.StartedAt.Format(time.RFC3339),
				status,
				r.DocCount,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its batches and queries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openJournal()
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := resolveRunID(store, args[0])
		if err != nil {
			return err
		}

		run, err := store.GetRun(id)
		if err != nil {
			return err
		}
		batches, err := store.ListBatches(id)
		if err != nil {
			return err
		}
		queries, err := store.ListQueries(id)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run":     run,
			"batches": batches,
			"queries": queries,
		})
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	historyCmd.AddCommand(historyShowCmd)
}

func openJournal() (*journal.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return journal.Open(cfg.Storage.DataDir)
}

// resolveRunID accepts a full run id or a unique prefix.
func resolveRunID(store *journal.Store, id string) (string, error) {
	if _, err := store.GetRun(id); err == nil {
		return id, nil
	}

	runs, err := store.ListRuns(100)
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			if match != "" {
				return "", fmt.Errorf("run id prefix %q is ambiguous", id)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no run matching %q", id)
	}
	return match, nil
}

// --- cleanup ---

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete the knowledge base, knowledge source, and index",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete the knowledge base, knowledge source, and index. Use --confirm to proceed.")
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		client := search.New(cfg.Search.Endpoint, cfg.Search.APIKey, cfg.Search.APIVersion)
		runner := pipeline.NewRunner(client, nil, nil, runnerParams(cfg, true, false, nil), os.Stdout)

		printStep("Deleting knowledge base, knowledge source, and index...")
		if err := runner.CleanupResources(cmd.Context()); err != nil {
			return err
		}
		printSuccess("Resources deleted")
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Bool("confirm", false, "confirm resource deletion")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
