package uploadpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionForMime(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		ext      string
		wantErr  bool
	}{
		{name: "jpeg", mimeType: "image/jpeg", ext: "jpg"},
		{name: "png", mimeType: "image/png", ext: "png"},
		{name: "quicktime", mimeType: "video/quicktime", ext: "mov"},
		{name: "pdf", mimeType: "application/pdf", ext: "pdf"},
		{name: "with parameters", mimeType: "text/plain; charset=utf-8", ext: "txt"},
		{name: "mixed case", mimeType: "Image/PNG", ext: "png"},
		{name: "unsupported", mimeType: "application/x-executable", wantErr: true},
		{name: "empty", mimeType: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := ExtensionForMime(tt.mimeType)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedMediaType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestProjectedMimeType(t *testing.T) {
	tests := []struct {
		declared string
		want     string
	}{
		{declared: "image/png", want: "image/jpeg"},
		{declared: "image/jpeg", want: "image/jpeg"},
		{declared: "video/quicktime", want: "video/mp4"},
		{declared: "video/mp4", want: "video/mp4"},
		{declared: "application/pdf", want: "application/pdf"},
		{declared: "text/plain; charset=utf-8", want: "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectedMimeType(tt.declared))
		})
	}
}

func TestAcceptedConversion(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		detected string
		want     bool
	}{
		{name: "exact match", declared: "application/pdf", detected: "application/pdf", want: true},
		{name: "image normalized", declared: "image/png", detected: "image/jpeg", want: true},
		{name: "video normalized", declared: "video/quicktime", detected: "video/mp4", want: true},
		{name: "spoofed image", declared: "image/png", detected: "application/pdf", want: false},
		{name: "spoofed video", declared: "video/mp4", detected: "text/plain", want: false},
		{name: "image as video", declared: "video/mp4", detected: "image/jpeg", want: false},
		{name: "parameters stripped", declared: "text/plain; charset=utf-8", detected: "text/plain", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AcceptedConversion(tt.declared, tt.detected))
		})
	}
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMimeType([]byte("%PDF-1.4 content")))
	assert.Equal(t, "text/plain", DetectMimeType([]byte("plain words\n")))
}
