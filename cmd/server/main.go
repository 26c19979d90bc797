package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/api"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/config"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/queue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	metadata, err := cfg.BuildMetadataStore()
	if err != nil {
		slog.Error("Failed to build metadata store", "err", err)
		os.Exit(1)
	}

	router, err := cfg.BuildRouter()
	if err != nil {
		slog.Error("Failed to build storage router", "err", err)
		os.Exit(1)
	}

	q, err := cfg.BuildQueue()
	if err != nil {
		slog.Error("Failed to build queue", "err", err)
		os.Exit(1)
	}
	defer q.Close()

	svc, err := cfg.BuildService(metadata, router, q)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// With the memory queue processing runs in-process; the kafka queue is
	// consumed by the worker binary instead.
	if mq, ok := q.(*queue.Memory); ok {
		processor, err := cfg.BuildProcessor(metadata, router, logger)
		if err != nil {
			slog.Error("Failed to build processor", "err", err)
			os.Exit(1)
		}
		mq.OnExhausted(processor.MarkFailed)
		go func() {
			if err := mq.Run(ctx, processor.Process); err != nil && err != context.Canceled {
				slog.Error("Queue consumer stopped", "err", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/files", api.NewFilesHandler(svc).Routes())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	go func() {
		slog.Info("Upload pipeline server starting", "port", cfg.Port, "provider", cfg.Provider, "queue", cfg.QueueType)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	slog.Info("Server exiting")
}
