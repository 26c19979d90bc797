// Package postgres implements the file metadata store on PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE file_metadata (
//	    id                uuid PRIMARY KEY,
//	    tenant_id         uuid NOT NULL,
//	    original_filename text NOT NULL,
//	    mime_type         text NOT NULL,
//	    bucket_name       text NOT NULL,
//	    bucket_key        text NOT NULL,
//	    provider          text NOT NULL,
//	    status            text NOT NULL,
//	    variants          jsonb NOT NULL DEFAULT '[]',
//	    owner_service     text,
//	    owner_entity_id   text,
//	    created_at        timestamptz NOT NULL,
//	    updated_at        timestamptz NOT NULL
//	);
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
)

// DBTX allows the store to run on either a connection pool or a transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements uploadpipeline.MetadataStore using PostgreSQL.
type Store struct {
	db DBTX
}

// New creates a new PostgreSQL metadata store.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewWithPool creates a new PostgreSQL metadata store from a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) CreateFileMetadata(ctx context.Context, metadata *uploadpipeline.FileMetadata) error {
	variants, err := marshalVariants(metadata.Variants)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO file_metadata (
			id, tenant_id, original_filename, mime_type,
			bucket_name, bucket_key, provider, status, variants,
			owner_service, owner_entity_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.db.Exec(ctx, query,
		metadata.ID, metadata.TenantID, metadata.OriginalFilename, metadata.MimeType,
		metadata.BucketName, metadata.BucketKey, metadata.Provider, metadata.Status, variants,
		metadata.OwnerService, metadata.OwnerEntityID, metadata.CreatedAt, metadata.UpdatedAt)
	if err != nil {
		return handlePostgresError("create file metadata", err)
	}
	return nil
}

func (s *Store) GetFileMetadataByID(ctx context.Context, tenantID, fileID uuid.UUID) (*uploadpipeline.FileMetadata, error) {
	query := `
		SELECT id, tenant_id, original_filename, mime_type,
		       bucket_name, bucket_key, provider, status, variants,
		       owner_service, owner_entity_id, created_at, updated_at
		FROM file_metadata
		WHERE id = $1 AND tenant_id = $2`

	var (
		metadata uploadpipeline.FileMetadata
		variants []byte
	)
	err := s.db.QueryRow(ctx, query, fileID, tenantID).Scan(
		&metadata.ID, &metadata.TenantID, &metadata.OriginalFilename, &metadata.MimeType,
		&metadata.BucketName, &metadata.BucketKey, &metadata.Provider, &metadata.Status, &variants,
		&metadata.OwnerService, &metadata.OwnerEntityID, &metadata.CreatedAt, &metadata.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, uploadpipeline.ErrFileNotFound
		}
		return nil, handlePostgresError("get file metadata", err)
	}

	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &metadata.Variants); err != nil {
			return nil, fmt.Errorf("unmarshal variants: %w", err)
		}
	}
	return &metadata, nil
}

func (s *Store) UpdateFileMetadata(ctx context.Context, metadata *uploadpipeline.FileMetadata) error {
	variants, err := marshalVariants(metadata.Variants)
	if err != nil {
		return err
	}

	query := `
		UPDATE file_metadata
		SET original_filename = $3, mime_type = $4,
		    bucket_name = $5, bucket_key = $6, provider = $7,
		    status = $8, variants = $9, updated_at = $10
		WHERE id = $1 AND tenant_id = $2`

	tag, err := s.db.Exec(ctx, query,
		metadata.ID, metadata.TenantID, metadata.OriginalFilename, metadata.MimeType,
		metadata.BucketName, metadata.BucketKey, metadata.Provider,
		metadata.Status, variants, metadata.UpdatedAt)
	if err != nil {
		return handlePostgresError("update file metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return uploadpipeline.ErrFileNotFound
	}
	return nil
}

func marshalVariants(variants []uploadpipeline.FileVariant) ([]byte, error) {
	if variants == nil {
		variants = []uploadpipeline.FileVariant{}
	}
	data, err := json.Marshal(variants)
	if err != nil {
		return nil, fmt.Errorf("marshal variants: %w", err)
	}
	return data, nil
}

func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("file metadata already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}
