// Package transform converts uploaded media into the pipeline's normalized
// permanent formats: images re-encode to JPEG at a fixed quality in process,
// videos transcode to MP4 through an external ffmpeg invocation with
// temporary files. Everything else passes through with a content-sniffed
// mime type.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	// Decoders for the accepted image types outside the stdlib set.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
)

const jpegQuality = 85

var _ uploadpipeline.MediaTransformer = (*Transformer)(nil)

// Transformer implements uploadpipeline.MediaTransformer.
type Transformer struct {
	ffmpegPath       string
	transcodeTimeout time.Duration
	tempDir          string
}

// TransformerOption configures a Transformer.
type TransformerOption func(*Transformer)

// WithFFmpegPath sets the ffmpeg binary path (default "ffmpeg").
func WithFFmpegPath(path string) TransformerOption {
	return func(t *Transformer) {
		t.ffmpegPath = path
	}
}

// WithTranscodeTimeout caps the wall-clock time of one ffmpeg invocation.
// On expiry the process is killed and its temp files removed.
func WithTranscodeTimeout(d time.Duration) TransformerOption {
	return func(t *Transformer) {
		t.transcodeTimeout = d
	}
}

// WithTempDir sets the directory for transcoder temp files.
func WithTempDir(dir string) TransformerOption {
	return func(t *Transformer) {
		t.tempDir = dir
	}
}

// New creates a Transformer.
func New(options ...TransformerOption) *Transformer {
	t := &Transformer{
		ffmpegPath:       "ffmpeg",
		transcodeTimeout: 5 * time.Minute,
		tempDir:          os.TempDir(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Transform converts a buffer to its normalized permanent format, branching
// on the declared mime type. The returned mime type is always re-detected
// from content, never taken from the declaration.
func (t *Transformer) Transform(ctx context.Context, data []byte, declaredMime string) (uploadpipeline.TransformResult, error) {
	switch {
	case strings.HasPrefix(declaredMime, "image/"):
		if uploadpipeline.DetectMimeType(data) == uploadpipeline.NormalizedImageMime {
			return uploadpipeline.TransformResult{Data: data, MimeType: uploadpipeline.NormalizedImageMime}, nil
		}
		return t.transformImage(data)
	case strings.HasPrefix(declaredMime, "video/"):
		if uploadpipeline.DetectMimeType(data) == uploadpipeline.NormalizedVideoMime && declaredMime == uploadpipeline.NormalizedVideoMime {
			return uploadpipeline.TransformResult{Data: data, MimeType: uploadpipeline.NormalizedVideoMime}, nil
		}
		return t.transformVideo(ctx, data)
	default:
		return uploadpipeline.TransformResult{Data: data, MimeType: uploadpipeline.DetectMimeType(data)}, nil
	}
}

func (t *Transformer) transformImage(data []byte) (uploadpipeline.TransformResult, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return uploadpipeline.TransformResult{}, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return uploadpipeline.TransformResult{}, fmt.Errorf("encode jpeg: %w", err)
	}

	return uploadpipeline.TransformResult{
		Data:     buf.Bytes(),
		MimeType: uploadpipeline.DetectMimeType(buf.Bytes()),
	}, nil
}

func (t *Transformer) transformVideo(ctx context.Context, data []byte) (uploadpipeline.TransformResult, error) {
	in, err := os.CreateTemp(t.tempDir, "transcode-in-*")
	if err != nil {
		return uploadpipeline.TransformResult{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(data); err != nil {
		in.Close()
		return uploadpipeline.TransformResult{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := in.Close(); err != nil {
		return uploadpipeline.TransformResult{}, fmt.Errorf("close temp file: %w", err)
	}

	outPath := filepath.Join(t.tempDir, filepath.Base(in.Name())+".mp4")
	defer os.Remove(outPath)

	ctx, cancel := context.WithTimeout(ctx, t.transcodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-y",
		"-i", in.Name(),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return uploadpipeline.TransformResult{}, fmt.Errorf("transcode timed out: %w", ctx.Err())
		}
		return uploadpipeline.TransformResult{}, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	output, err := os.ReadFile(outPath)
	if err != nil {
		return uploadpipeline.TransformResult{}, fmt.Errorf("read transcoder output: %w", err)
	}

	return uploadpipeline.TransformResult{
		Data:     output,
		MimeType: uploadpipeline.DetectMimeType(output),
	}, nil
}
