// Package config loads environment configuration and wires pipeline components.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
	metamemory "github.com/tendant/upload-pipeline/pkg/uploadpipeline/metastore/memory"
	metapg "github.com/tendant/upload-pipeline/pkg/uploadpipeline/metastore/postgres"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/queue"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/queue/kafka"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/scanner"
	memorystorage "github.com/tendant/upload-pipeline/pkg/uploadpipeline/storage/memory"
	miniostorage "github.com/tendant/upload-pipeline/pkg/uploadpipeline/storage/minio"
	s3storage "github.com/tendant/upload-pipeline/pkg/uploadpipeline/storage/s3"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/transform"
)

// Config is the environment configuration for the upload pipeline.
type Config struct {
	Port string `env:"PORT" env-default:"8080"`

	DB       DbConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Scan     ScanConfig
	FFmpeg   FFmpegConfig
	Provider string `env:"STORAGE_PROVIDER" env-default:"memory"`

	PresignTTLSeconds int `env:"PRESIGN_TTL_SECONDS" env-default:"3600"`

	// DatabaseType selects the metadata store: "memory" or "postgres".
	DatabaseType string `env:"DATABASE_TYPE" env-default:"memory"`
	// QueueType selects the processing queue: "memory" or "kafka".
	QueueType string `env:"QUEUE_TYPE" env-default:"memory"`
	// ScannerType selects the virus scanner: "static" or "clamav".
	ScannerType string `env:"SCANNER_TYPE" env-default:"static"`
}

type DbConfig struct {
	Port     uint16 `env:"UPLOAD_PG_PORT" env-default:"5432"`
	Host     string `env:"UPLOAD_PG_HOST" env-default:"localhost"`
	Name     string `env:"UPLOAD_PG_NAME" env-default:"upload_db"`
	User     string `env:"UPLOAD_PG_USER" env-default:"upload"`
	Password string `env:"UPLOAD_PG_PASSWORD" env-default:"pwd"`
}

type StorageConfig struct {
	Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:""`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	UseSSL          bool   `env:"STORAGE_USE_SSL" env-default:"true"`

	StagingBucket   string `env:"STAGING_BUCKET" env-default:"upload-staging"`
	PermanentBucket string `env:"PERMANENT_BUCKET" env-default:"upload-permanent"`
	// VideoBucket optionally routes transcoded video to its own bucket.
	VideoBucket string `env:"VIDEO_BUCKET" env-default:""`
}

type QueueConfig struct {
	Brokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic   string `env:"KAFKA_TOPIC" env-default:"upload-processing"`
	GroupID string `env:"KAFKA_GROUP_ID" env-default:"upload-worker"`
	Buffer  int    `env:"QUEUE_BUFFER" env-default:"64"`
}

type ScanConfig struct {
	ClamdAddress string `env:"CLAMD_ADDRESS" env-default:"tcp://localhost:3310"`
	// DeleteOnQuarantine removes infected objects instead of retaining them.
	DeleteOnQuarantine bool `env:"DELETE_ON_QUARANTINE" env-default:"false"`
}

type FFmpegConfig struct {
	Path           string `env:"FFMPEG_PATH" env-default:"ffmpeg"`
	TimeoutSeconds int    `env:"FFMPEG_TIMEOUT_SECONDS" env-default:"300"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for unsupported selections.
func (c *Config) Validate() error {
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("DATABASE_TYPE must be 'memory' or 'postgres'")
	}
	if c.QueueType != "memory" && c.QueueType != "kafka" {
		return errors.New("QUEUE_TYPE must be 'memory' or 'kafka'")
	}
	if c.ScannerType != "static" && c.ScannerType != "clamav" {
		return errors.New("SCANNER_TYPE must be 'static' or 'clamav'")
	}
	switch c.Provider {
	case "memory", "s3", "minio":
	default:
		return fmt.Errorf("unsupported storage provider: %s", c.Provider)
	}
	return nil
}

func (c DbConfig) toDatabaseUrl() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Name,
	}
	return u.String()
}

// BuildMetadataStore creates the metadata store selected by DATABASE_TYPE.
func (c *Config) BuildMetadataStore() (uploadpipeline.MetadataStore, error) {
	switch c.DatabaseType {
	case "memory":
		return metamemory.New(), nil
	case "postgres":
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, c.DB.toDatabaseUrl())
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return metapg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildRouter creates the storage router with staging and permanent routes
// for the configured provider.
func (c *Config) BuildRouter() (*uploadpipeline.Router, error) {
	router := uploadpipeline.NewRouter()

	staging, err := c.buildStore(c.Storage.StagingBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to build staging store: %w", err)
	}
	permanent, err := c.buildStore(c.Storage.PermanentBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to build permanent store: %w", err)
	}

	router.Register(uploadpipeline.StoreRoute{Provider: c.Provider, Class: uploadpipeline.BucketClassStaging},
		c.Storage.StagingBucket, staging)
	router.Register(uploadpipeline.StoreRoute{Provider: c.Provider, Class: uploadpipeline.BucketClassPermanent},
		c.Storage.PermanentBucket, permanent)

	if c.Storage.VideoBucket != "" {
		video, err := c.buildStore(c.Storage.VideoBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to build video store: %w", err)
		}
		router.RegisterPermanentFor("video",
			uploadpipeline.RoutedStore{Store: video, Bucket: c.Storage.VideoBucket})
	}

	return router, nil
}

func (c *Config) buildStore(bucket string) (uploadpipeline.BlobStore, error) {
	switch c.Provider {
	case "memory":
		return memorystorage.New(bucket), nil
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:          c.Storage.Region,
			Bucket:          bucket,
			AccessKeyID:     c.Storage.AccessKeyID,
			SecretAccessKey: c.Storage.SecretAccessKey,
			Endpoint:        c.Storage.Endpoint,
			UsePathStyle:    c.Storage.UsePathStyle,
		})
	case "minio":
		return miniostorage.New(miniostorage.Config{
			Endpoint:        strings.TrimPrefix(strings.TrimPrefix(c.Storage.Endpoint, "https://"), "http://"),
			AccessKeyID:     c.Storage.AccessKeyID,
			SecretAccessKey: c.Storage.SecretAccessKey,
			Bucket:          bucket,
			UseSSL:          c.Storage.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", c.Provider)
	}
}

// BuildQueue creates the processing queue selected by QUEUE_TYPE. For the
// memory queue the returned *queue.Memory must be consumed with Run.
func (c *Config) BuildQueue() (queue.Queue, error) {
	switch c.QueueType {
	case "memory":
		return queue.NewMemory(c.Queue.Buffer, queue.DefaultRetryPolicy()), nil
	case "kafka":
		return kafka.New(strings.Split(c.Queue.Brokers, ","), c.Queue.Topic), nil
	default:
		return nil, fmt.Errorf("unsupported queue type: %s", c.QueueType)
	}
}

// BuildScanner creates the virus scanner selected by SCANNER_TYPE.
func (c *Config) BuildScanner() (uploadpipeline.Scanner, error) {
	switch c.ScannerType {
	case "static":
		return scanner.NewStatic(), nil
	case "clamav":
		return scanner.NewClamAV(c.Scan.ClamdAddress), nil
	default:
		return nil, fmt.Errorf("unsupported scanner type: %s", c.ScannerType)
	}
}

// BuildTransformer creates the media transformer.
func (c *Config) BuildTransformer() *transform.Transformer {
	return transform.New(
		transform.WithFFmpegPath(c.FFmpeg.Path),
		transform.WithTranscodeTimeout(time.Duration(c.FFmpeg.TimeoutSeconds)*time.Second),
	)
}

// BuildService creates the upload service from the configuration.
func (c *Config) BuildService(metadata uploadpipeline.MetadataStore, router *uploadpipeline.Router, q queue.Queue) (uploadpipeline.Service, error) {
	return uploadpipeline.New(
		uploadpipeline.WithMetadataStore(metadata),
		uploadpipeline.WithRouter(router),
		uploadpipeline.WithQueue(q),
		uploadpipeline.WithProvider(c.Provider),
		uploadpipeline.WithPresignTTL(time.Duration(c.PresignTTLSeconds)*time.Second),
	)
}

// BuildProcessor creates the processing worker from the configuration.
func (c *Config) BuildProcessor(metadata uploadpipeline.MetadataStore, router *uploadpipeline.Router, logger *slog.Logger) (*uploadpipeline.Processor, error) {
	scan, err := c.BuildScanner()
	if err != nil {
		return nil, err
	}
	return uploadpipeline.NewProcessor(
		metadata,
		router,
		c.BuildTransformer(),
		scan,
		uploadpipeline.WithDeleteOnQuarantine(c.Scan.DeleteOnQuarantine),
		uploadpipeline.WithLogger(logger),
	)
}
