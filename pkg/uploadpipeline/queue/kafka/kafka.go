// Package kafka backs the processing queue with a Kafka topic. Jobs are
// keyed by file ID so retries for the same file stay on one partition, and
// offsets are committed only after a terminal outcome (success, permanent
// failure or retry exhaustion), matching at-least-once delivery.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	segmentio "github.com/segmentio/kafka-go"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/queue"
)

// Queue publishes processing jobs to a Kafka topic.
type Queue struct {
	writer *segmentio.Writer
}

// New creates a Kafka-backed queue.
func New(brokers []string, topic string) *Queue {
	return &Queue{
		writer: segmentio.NewWriter(segmentio.WriterConfig{
			Brokers:  brokers,
			Topic:    topic,
			Balancer: &segmentio.LeastBytes{},
		}),
	}
}

func (q *Queue) Enqueue(ctx context.Context, job queue.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.writer.WriteMessages(ctx, segmentio.Message{
		Key:   []byte(job.FileID.String()),
		Value: payload,
	})
}

func (q *Queue) Close() error {
	return q.writer.Close()
}

// Consumer pulls jobs from the topic as part of a consumer group, one job at
// a time per instance.
type Consumer struct {
	reader    *segmentio.Reader
	policy    queue.RetryPolicy
	logger    *slog.Logger
	exhausted queue.ExhaustedFunc
}

// NewConsumer creates a consumer-group reader. A zero policy falls back to
// the default retry policy.
func NewConsumer(brokers []string, topic, groupID string, policy queue.RetryPolicy, logger *slog.Logger) *Consumer {
	if policy.MaxAttempts == 0 {
		policy = queue.DefaultRetryPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader: segmentio.NewReader(segmentio.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10 << 20,
		}),
		policy: policy,
		logger: logger,
	}
}

// OnExhausted sets the callback invoked after the retry budget runs out.
// Must be set before Run.
func (c *Consumer) OnExhausted(fn queue.ExhaustedFunc) {
	c.exhausted = fn
}

// Run fetches and processes messages until the context is cancelled.
func (c *Consumer) Run(ctx context.Context, handler queue.Handler) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("kafka fetch failed", "error", err)
			continue
		}

		var job queue.Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			c.logger.Error("dropping malformed job", "error", err, "offset", msg.Offset)
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("kafka commit failed", "error", err)
			}
			continue
		}

		c.process(ctx, job, handler)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("kafka commit failed", "error", err, "file_id", job.FileID)
		}
	}
}

func (c *Consumer) process(ctx context.Context, job queue.Job, handler queue.Handler) {
	for attempt := 1; ; attempt++ {
		err := handler(ctx, job)
		if err == nil {
			return
		}
		if queue.IsPermanent(err) {
			c.logger.Warn("job failed permanently", "file_id", job.FileID, "error", err)
			return
		}
		if attempt >= c.policy.MaxAttempts {
			c.logger.Warn("job retries exhausted", "file_id", job.FileID, "attempts", attempt, "error", err)
			if c.exhausted != nil {
				c.exhausted(ctx, job)
			}
			return
		}
		c.logger.Warn("job attempt failed, retrying",
			"file_id", job.FileID, "attempt", attempt, "backoff", c.policy.Backoff(attempt), "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.policy.Backoff(attempt)):
		}
	}
}
