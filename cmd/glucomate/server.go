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

	"github.com/glucomate/glucomate/internal/api"
	"github.com/glucomate/glucomate/internal/companion"
	"github.com/glucomate/glucomate/internal/config"
	"github.com/glucomate/glucomate/internal/dialogue"
	"github.com/glucomate/glucomate/internal/genai"
	"github.com/glucomate/glucomate/internal/kb"
	"github.com/glucomate/glucomate/internal/reminder"
	"github.com/glucomate/glucomate/internal/retrieval"
	"github.com/glucomate/glucomate/internal/storage"
	"github.com/glucomate/glucomate/internal/translate"
	"github.com/glucomate/glucomate/internal/trend"
	"github.com/glucomate/glucomate/internal/websearch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the glucomate server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "glucomate version %s\n", version)

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

	// Collaborator clients.
	genaiClient := genai.New(cfg.GenAI.BaseURL)
	translateClient := translate.New(cfg.Translate.BaseURL)
	searchClient := websearch.New(cfg.Search.BaseURL)
	kbClient := kb.New(cfg.KB.BaseURL)

	// Conversational core.
	sessions := dialogue.NewManager(store)
	orchestrator := retrieval.NewOrchestrator(searchClient, kbClient, genaiClient)
	trends := trend.NewAnalyzer(store)
	svc := companion.New(store, sessions, orchestrator, translateClient, trends)

	// Medication reminders, surfaced on the patient's next turn.
	var reminders *reminder.Queue
	if cfg.Reminder.Enabled {
		reminders = reminder.NewQueue()
		sched := reminder.NewScheduler(store, reminders)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("starting reminder scheduler: %w", err)
		}
		defer sched.Stop()
	}

	deps := api.AppDeps{
		Store:     store,
		Companion: svc,
		Uploader:  kbClient,
		Token:     cfg.Server.APIToken,
	}
	if reminders != nil {
		deps.Reminders = reminders
	}
	appHandler := api.NewAppHandler(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// MCP server on stdio transport.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Companion: svc})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "glucomate listening on %s\n", addr)
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
