package uploadpipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/objectkey"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/queue"
)

// Processor executes the asynchronous half of the pipeline: download the
// staged object, transform it, verify integrity, upload the renditions to
// permanent storage, scan them, finalize or roll back metadata and remove
// the staging copy.
type Processor struct {
	metadata    MetadataStore
	router      *Router
	transformer MediaTransformer
	scanner     Scanner
	logger      *slog.Logger

	// deleteOnQuarantine controls whether quarantined or unscannable
	// renditions are removed from permanent storage, or left in place
	// flagged for manual review.
	deleteOnQuarantine bool

	// storageTimeout bounds each individual storage and scan call.
	storageTimeout time.Duration
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithDeleteOnQuarantine enables removal of permanent objects when a scan
// verdict is infected or unavailable.
func WithDeleteOnQuarantine(enabled bool) ProcessorOption {
	return func(p *Processor) {
		p.deleteOnQuarantine = enabled
	}
}

// WithStorageTimeout bounds each storage and scan call.
func WithStorageTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.storageTimeout = d
	}
}

// WithLogger sets the processor's logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor wires the worker's collaborators.
func NewProcessor(metadata MetadataStore, router *Router, transformer MediaTransformer, scanner Scanner, options ...ProcessorOption) (*Processor, error) {
	if metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if router == nil {
		return nil, fmt.Errorf("storage router is required")
	}
	if transformer == nil {
		return nil, fmt.Errorf("media transformer is required")
	}
	if scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}

	p := &Processor{
		metadata:       metadata,
		router:         router,
		transformer:    transformer,
		scanner:        scanner,
		logger:         slog.Default(),
		storageTimeout: 2 * time.Minute,
	}
	for _, option := range options {
		option(p)
	}
	return p, nil
}

// Process runs one job through the state machine. Retryable infrastructure
// errors are returned as-is so the queue applies its backoff; non-retryable
// outcomes (integrity mismatch, scan verdicts) are written to the metadata
// status and the job is removed. If writing that terminal status fails, the
// write error is returned so the queue retries until the state is durable.
// A missing metadata row is the only case returned as a permanent error,
// since there is no row to record status in.
func (p *Processor) Process(ctx context.Context, job queue.Job) error {
	log := p.logger.With("file_id", job.FileID, "tenant_id", job.TenantID)

	metadata, err := p.metadata.GetFileMetadataByID(ctx, job.TenantID, job.FileID)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			log.Error("metadata missing, dropping job", "error", err)
			return queue.Permanent(err)
		}
		return &FileError{FileID: job.FileID, Op: "process", Err: err}
	}

	if isTerminalStatus(metadata.Status) {
		log.Info("file already in terminal state, skipping", "status", metadata.Status)
		return nil
	}

	staging, err := p.router.Resolve(metadata.Provider, BucketClassStaging)
	if err != nil {
		return err
	}
	// Captured before recordPermanentLocation repoints the metadata at
	// permanent storage.
	stagedKey := metadata.BucketKey

	data, err := p.download(ctx, staging, metadata)
	if err != nil {
		return err
	}

	output, transcoded := p.transform(ctx, data, metadata.MimeType, log)

	if !AcceptedConversion(metadata.MimeType, output.MimeType) {
		log.Warn("integrity check failed",
			"declared_mime", metadata.MimeType, "detected_mime", output.MimeType)
		return p.writeStatus(ctx, metadata, FileStatusFailed)
	}

	variants, buffers, err := p.planVariants(metadata, output, transcoded)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return err
		}
		log.Warn("no permanent form for detected type", "detected_mime", output.MimeType, "error", err)
		return p.writeStatus(ctx, metadata, FileStatusFailed)
	}

	uploaded, err := p.uploadVariants(ctx, variants, buffers)
	if err != nil {
		p.rollback(ctx, metadata, uploaded, stagedKey, len(uploaded) > 0, log)
		return err
	}

	if err := p.recordPermanentLocation(ctx, metadata, variants); err != nil {
		p.rollback(ctx, metadata, variants, stagedKey, true, log)
		return err
	}

	done, err := p.scanVariants(ctx, metadata, variants, buffers, log)
	if done || err != nil {
		return err
	}

	metadata.Status = string(FileStatusCompleted)
	metadata.UpdatedAt = time.Now().UTC()
	if err := p.metadata.UpdateFileMetadata(ctx, metadata); err != nil {
		p.rollback(ctx, metadata, variants, stagedKey, true, log)
		return &FileError{FileID: metadata.ID, Op: "finalize", Err: err}
	}

	p.cleanupStaging(ctx, staging, stagedKey, log)
	log.Info("file processed", "status", metadata.Status, "variants", len(variants))
	return nil
}

// MarkFailed records a terminal failure for a job whose retries were
// exhausted. Uploaded renditions were rolled back by the failing attempt
// itself; here only the status is written and the staging copy removed if
// the file never left staging.
func (p *Processor) MarkFailed(ctx context.Context, job queue.Job) {
	log := p.logger.With("file_id", job.FileID, "tenant_id", job.TenantID)

	metadata, err := p.metadata.GetFileMetadataByID(ctx, job.TenantID, job.FileID)
	if err != nil {
		log.Error("cannot record exhausted job", "error", err)
		return
	}
	if isTerminalStatus(metadata.Status) {
		return
	}

	stagedKey := metadata.BucketKey
	stagedBucket := metadata.BucketName
	if err := p.writeStatus(ctx, metadata, FileStatusFailed); err != nil {
		log.Error("cannot record exhausted job", "error", err)
		return
	}
	log.Warn("retries exhausted, file failed")

	staging, err := p.router.Resolve(metadata.Provider, BucketClassStaging)
	if err != nil || staging.Bucket != stagedBucket {
		return
	}
	p.cleanupStaging(ctx, staging, stagedKey, log)
}

// download fetches the staged object into memory.
func (p *Processor) download(ctx context.Context, staging RoutedStore, metadata *FileMetadata) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.storageTimeout)
	defer cancel()

	reader, err := staging.Store.Download(ctx, metadata.BucketKey)
	if err != nil {
		return nil, &StorageError{
			Provider: metadata.Provider,
			Bucket:   staging.Bucket,
			Key:      metadata.BucketKey,
			Op:       "download",
			Err:      err,
		}
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &StorageError{
			Provider: metadata.Provider,
			Bucket:   staging.Bucket,
			Key:      metadata.BucketKey,
			Op:       "download",
			Err:      err,
		}
	}
	return data, nil
}

// transform runs the media transform. On any transform error the original
// bytes are kept with a type re-detected from content, not the declared
// type; availability wins over guaranteed normalization. The second return
// reports whether the transform actually produced new bytes.
func (p *Processor) transform(ctx context.Context, data []byte, declaredMime string, log *slog.Logger) (TransformResult, bool) {
	output, err := p.transformer.Transform(ctx, data, declaredMime)
	if err != nil {
		log.Warn("transform failed, falling back to original bytes", "error", err)
		return TransformResult{Data: data, MimeType: DetectMimeType(data)}, false
	}
	return output, !bytes.Equal(output.Data, data)
}

// planVariants lays out the renditions a pass produces: one primary variant
// today, with room for additional renditions. The variant is labeled
// transcoded only when the transform produced new bytes; a passthrough or a
// fallback keeps the original label even when the detected type differs from
// the declared one.
func (p *Processor) planVariants(metadata *FileMetadata, output TransformResult, transcoded bool) ([]FileVariant, [][]byte, error) {
	ext, err := ExtensionForMime(output.MimeType)
	if err != nil {
		return nil, nil, err
	}
	permanent, err := p.router.ResolvePermanent(metadata.Provider, output.MimeType)
	if err != nil {
		return nil, nil, err
	}

	name := VariantOriginal
	if transcoded {
		name = VariantTranscoded
	}

	variants := []FileVariant{{
		Variant:    name,
		BucketName: permanent.Bucket,
		BucketKey:  objectkey.ForFile(metadata.ID, ext),
		MimeType:   output.MimeType,
		Provider:   metadata.Provider,
	}}
	return variants, [][]byte{output.Data}, nil
}

// uploadVariants writes all renditions to permanent storage. Independent
// writes to disjoint keys run concurrently. Returns the variants that were
// uploaded, which on error may be a subset.
func (p *Processor) uploadVariants(ctx context.Context, variants []FileVariant, buffers [][]byte) ([]FileVariant, error) {
	var (
		mu       sync.Mutex
		uploaded = make([]FileVariant, 0, len(variants))
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := range variants {
		variant, buffer := variants[i], buffers[i]
		g.Go(func() error {
			permanent, err := p.router.ResolvePermanent(variant.Provider, variant.MimeType)
			if err != nil {
				return err
			}

			uctx, cancel := context.WithTimeout(gctx, p.storageTimeout)
			defer cancel()
			if err := permanent.Store.Upload(uctx, variant.BucketKey, bytes.NewReader(buffer), variant.MimeType); err != nil {
				return &StorageError{
					Provider: variant.Provider,
					Bucket:   variant.BucketName,
					Key:      variant.BucketKey,
					Op:       "upload",
					Err:      err,
				}
			}

			mu.Lock()
			uploaded = append(uploaded, variant)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return uploaded, err
	}
	return uploaded, nil
}

// recordPermanentLocation updates metadata with the permanent location and
// the full variant list in a single write; variants are never partially
// visible.
func (p *Processor) recordPermanentLocation(ctx context.Context, metadata *FileMetadata, variants []FileVariant) error {
	primary := variants[0]
	metadata.BucketName = primary.BucketName
	metadata.BucketKey = primary.BucketKey
	metadata.MimeType = primary.MimeType
	metadata.Provider = primary.Provider
	metadata.Variants = variants
	metadata.Status = string(FileStatusProcessing)
	metadata.UpdatedAt = time.Now().UTC()

	if err := p.metadata.UpdateFileMetadata(ctx, metadata); err != nil {
		return &FileError{FileID: metadata.ID, Op: "record_location", Err: err}
	}
	return nil
}

// scanVariants scans every uploaded rendition. Returns true when a verdict
// terminated the job (quarantine or scan failure); a fresh retry cannot
// change a scan verdict. The error is non-nil only when recording the
// verdict in the metadata status failed, so the job retries until the
// terminal state is durable. Uploaded objects are removed only when
// configured; otherwise they remain in place flagged for manual review.
func (p *Processor) scanVariants(ctx context.Context, metadata *FileMetadata, variants []FileVariant, buffers [][]byte, log *slog.Logger) (bool, error) {
	results := make([]ScanResult, len(buffers))

	g, gctx := errgroup.WithContext(ctx)
	for i := range buffers {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, p.storageTimeout)
			defer cancel()
			result, err := p.scanner.Scan(sctx, buffers[i])
			if err != nil {
				result = ScanResult{Verdict: VerdictUnavailable}
			}
			results[i] = result
			return nil
		})
	}
	// Scan goroutines never return an error; verdicts carry the outcome.
	_ = g.Wait()

	for i, result := range results {
		switch result.Verdict {
		case VerdictClean:
			continue
		case VerdictInfected:
			log.Warn("malware detected",
				"variant", variants[i].Variant, "signature", result.Signature)
			err := p.writeStatus(ctx, metadata, FileStatusQuarantined)
			if p.deleteOnQuarantine {
				p.deleteVariants(ctx, variants, log)
			}
			return true, err
		default:
			log.Error("scan unavailable", "variant", variants[i].Variant)
			err := p.writeStatus(ctx, metadata, FileStatusFailed)
			if p.deleteOnQuarantine {
				p.deleteVariants(ctx, variants, log)
			}
			return true, err
		}
	}
	return false, nil
}

// rollback handles the catch path: once any permanent upload has occurred,
// an unhandled failure deletes the uploaded renditions, records the terminal
// failure and force-cleans the staging copy. Errors here are logged but
// never outrank the original failure.
func (p *Processor) rollback(ctx context.Context, metadata *FileMetadata, uploaded []FileVariant, stagedKey string, uploadsOccurred bool, log *slog.Logger) {
	if !uploadsOccurred {
		return
	}
	p.deleteVariants(ctx, uploaded, log)
	if err := p.writeStatus(ctx, metadata, FileStatusFailed); err != nil {
		log.Error("status update failed", "error", err)
	}

	staging, err := p.router.Resolve(metadata.Provider, BucketClassStaging)
	if err != nil {
		log.Error("staging cleanup failed", "error", err)
		return
	}
	p.cleanupStaging(ctx, staging, stagedKey, log)
}

func (p *Processor) deleteVariants(ctx context.Context, variants []FileVariant, log *slog.Logger) {
	for _, variant := range variants {
		permanent, err := p.router.ResolvePermanent(variant.Provider, variant.MimeType)
		if err != nil {
			log.Error("variant cleanup failed", "key", variant.BucketKey, "error", err)
			continue
		}
		if err := permanent.Store.Delete(ctx, variant.BucketKey); err != nil {
			log.Error("variant cleanup failed", "key", variant.BucketKey, "error", err)
		}
	}
}

// cleanupStaging removes the staging copy. Best-effort: failures are logged,
// never propagated, and do not change the terminal state already recorded.
func (p *Processor) cleanupStaging(ctx context.Context, staging RoutedStore, stagedKey string, log *slog.Logger) {
	if err := staging.Store.Delete(ctx, stagedKey); err != nil {
		log.Error("staging cleanup failed", "key", stagedKey, "error", err)
	}
}

// writeStatus records a terminal state. The error is returned so callers on
// the verdict paths can surface it as retryable; a retry re-derives the same
// verdict and re-attempts the write.
func (p *Processor) writeStatus(ctx context.Context, metadata *FileMetadata, status FileStatus) error {
	metadata.Status = string(status)
	metadata.UpdatedAt = time.Now().UTC()
	if err := p.metadata.UpdateFileMetadata(ctx, metadata); err != nil {
		return &FileError{FileID: metadata.ID, Op: "write_status", Err: err}
	}
	return nil
}
