package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/config"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/queue"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/queue/kafka"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}
	if cfg.QueueType != "kafka" {
		slog.Error("Worker requires QUEUE_TYPE=kafka; the memory queue is consumed in-process by the server")
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

	processor, err := cfg.BuildProcessor(metadata, router, logger)
	if err != nil {
		slog.Error("Failed to build processor", "err", err)
		os.Exit(1)
	}

	consumer := kafka.NewConsumer(
		strings.Split(cfg.Queue.Brokers, ","),
		cfg.Queue.Topic,
		cfg.Queue.GroupID,
		queue.DefaultRetryPolicy(),
		logger,
	)

	consumer.OnExhausted(processor.MarkFailed)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("Shutting down worker...")
		cancel()
	}()

	slog.Info("Upload pipeline worker starting",
		"brokers", cfg.Queue.Brokers, "topic", cfg.Queue.Topic, "group", cfg.Queue.GroupID)

	if err := consumer.Run(ctx, processor.Process); err != nil && err != context.Canceled {
		slog.Error("Worker stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("Worker exiting")
}
