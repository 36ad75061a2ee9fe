package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agendia/assistant/internal/api"
	"github.com/agendia/assistant/internal/cache"
	"github.com/agendia/assistant/internal/config"
	"github.com/agendia/assistant/internal/detect"
	"github.com/agendia/assistant/internal/memory"
	"github.com/agendia/assistant/internal/pipeline"
	"github.com/agendia/assistant/internal/prompt"
	"github.com/agendia/assistant/internal/provider"
	"github.com/agendia/assistant/internal/retrieval"
	"github.com/agendia/assistant/internal/storage"
	"github.com/agendia/assistant/internal/usage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpStdio bool

func init() {
	serveCmd.Flags().BoolVar(&mcpStdio, "mcp-stdio", false, "also serve MCP over stdio")
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "assistant version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	svc, memStore, cacheStore := buildPipeline(cfg, store)

	handler := api.NewHandler(api.Deps{
		Ask:      svc,
		Sessions: memStore,
		Cache:    cacheStore,
	}, cfg.Server.APIToken)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Ask: svc, Cache: cacheStore})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "assistant listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildPipeline constructs the full request pipeline from configuration.
// All dependencies are wired once at process start.
func buildPipeline(cfg config.Config, store *storage.Store) (*pipeline.Service, *memory.Store, *cache.Store) {
	embedClient := provider.NewEmbedClient(
		cfg.Providers.BaseURL,
		cfg.Providers.APIKey,
		cfg.Providers.EmbedModel,
		time.Duration(cfg.Providers.EmbedTimeoutSeconds)*time.Second,
	)
	chatClient := provider.NewChatClient(
		cfg.Providers.BaseURL,
		cfg.Providers.APIKey,
		cfg.Providers.ChatModel,
		time.Duration(cfg.Providers.ChatTimeoutSeconds)*time.Second,
	)

	repo := retrieval.NewSQLiteRepository(store.DB())
	retriever := retrieval.NewRetriever(
		repo,
		cfg.Pipeline.RetrievalTopK,
		cfg.Pipeline.RetrievalSimilarityThreshold,
		cfg.Pipeline.MaxContextTokens,
	)
	detector := detect.New(
		repo,
		cfg.Pipeline.MaxModulesPerQuery,
		cfg.Pipeline.ModuleDetectionThreshold,
		cfg.Pipeline.ModuleKeywordBoost,
	)

	memStore := memory.NewStore(store.DB(), cfg.Pipeline.MemoryMaxTurns, time.Duration(cfg.Pipeline.MemoryTTLHours)*time.Hour)
	cacheStore := cache.NewStore(store.DB(), time.Duration(cfg.Pipeline.CacheTTLHours)*time.Hour)
	usageLogger := usage.NewLogger(store.DB())

	assembler := prompt.New(prompt.Budgets{
		Capabilities: cfg.Pipeline.TokenBudgetCapabilities,
		Memory:       cfg.Pipeline.TokenBudgetMemory,
		Docs:         cfg.Pipeline.TokenBudgetDocs,
		Question:     cfg.Pipeline.TokenBudgetQuestion,
	})

	svc := pipeline.NewService(
		embedClient,
		chatClient,
		detector,
		retriever,
		memStore,
		cacheStore,
		usageLogger,
		assembler,
		pipeline.Options{
			MaxQuestionTokens: cfg.Pipeline.MaxQuestionTokens,
			JaccardThreshold:  cfg.Pipeline.JaccardThreshold,
			Temperature:       cfg.Providers.Temperature,
			MaxAnswerTokens:   cfg.Providers.MaxAnswerTokens,
		},
	)
	return svc, memStore, cacheStore
}
