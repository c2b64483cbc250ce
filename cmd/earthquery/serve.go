package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/earthquery/internal/api"
	"github.com/kalambet/earthquery/internal/config"
	"github.com/kalambet/earthquery/internal/journal"
	"github.com/kalambet/earthquery/internal/knowledge"
	"github.com/kalambet/earthquery/internal/pipeline"
	"github.com/kalambet/earthquery/internal/search"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the knowledge base over HTTP and MCP (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "earthquery version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	if cfg.Server.Token == "" {
		return fmt.Errorf("missing required config: server token. " +
			"Set it via environment variable EARTHQUERY_SERVER_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := search.New(cfg.Search.Endpoint, cfg.Search.APIKey, cfg.Search.APIVersion)
	status := pipeline.IndexClient{Client: client, Index: cfg.Search.IndexName}

	session := knowledge.NewSession(client, cfg.Knowledge.BaseName, knowledge.SessionParams{
		KnowledgeSource:            cfg.Knowledge.SourceName,
		RerankerThreshold:          cfg.Knowledge.RerankerThreshold,
		AlwaysQuerySource:          true,
		IncludeReferences:          true,
		IncludeReferenceSourceData: true,
		ReasoningEffort:            cfg.Knowledge.ReasoningEffort,
	}, cfg.Knowledge.AnswerInstructions)

	var runs api.RunStore
	store, err := journal.Open(cfg.Storage.DataDir)
	if err != nil {
		slog.Warn("run journal unavailable", "error", err)
	} else {
		defer func() {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: closing journal: %v\n", err)
			}
		}()
		runs = store
	}

	handler := api.NewHandler(api.Deps{
		Token:     cfg.Server.Token,
		IndexName: cfg.Search.IndexName,
		Status:    status,
		Answerer:  session,
		Runs:      runs,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server rides the same process over stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		IndexName: cfg.Search.IndexName,
		Status:    status,
		Answerer:  session,
		Runs:      runs,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("MCP server started (stdio transport)")
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "earthquery listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
