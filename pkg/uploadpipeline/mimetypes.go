package uploadpipeline

import (
	"fmt"
	"net/http"
	"strings"
)

// Normalized permanent formats. Images are re-encoded to lossy JPEG at a
// fixed quality; videos are transcoded to a web-friendly MP4 container.
const (
	NormalizedImageMime = "image/jpeg"
	NormalizedVideoMime = "video/mp4"
)

// extensionsByMime maps the accepted upload mime types to their storage
// extension. A mime type absent from this table is rejected at intake.
var extensionsByMime = map[string]string{
	"image/jpeg":       "jpg",
	"image/png":        "png",
	"image/gif":        "gif",
	"image/webp":       "webp",
	"image/bmp":        "bmp",
	"video/mp4":        "mp4",
	"video/quicktime":  "mov",
	"video/webm":       "webm",
	"video/x-msvideo":  "avi",
	"application/pdf":  "pdf",
	"application/zip":  "zip",
	"text/plain":       "txt",
	"text/csv":         "csv",
	"application/json": "json",
}

// ExtensionForMime returns the storage extension for a declared mime type.
func ExtensionForMime(mimeType string) (string, error) {
	ext, ok := extensionsByMime[normalizeMime(mimeType)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mimeType)
	}
	return ext, nil
}

// DetectMimeType sniffs the content type from the leading bytes of a buffer.
// The declared type is never trusted after a transform; this is the type of
// record for the integrity check.
func DetectMimeType(data []byte) string {
	return normalizeMime(http.DetectContentType(data))
}

// ProjectedMimeType returns the mime type a file will have once processed:
// images normalize to JPEG, videos to MP4, everything else is unchanged.
func ProjectedMimeType(declaredMime string) string {
	declared := normalizeMime(declaredMime)
	switch {
	case strings.HasPrefix(declared, "image/") && declared != NormalizedImageMime:
		return NormalizedImageMime
	case strings.HasPrefix(declared, "video/") && declared != NormalizedVideoMime:
		return NormalizedVideoMime
	default:
		return declared
	}
}

// AcceptedConversion reports whether a detected output type is a legitimate
// derivative of the declared input type: the normalized image type for
// image inputs, the normalized video type for video inputs, or an exact
// match. Anything else indicates spoofed or corrupt input.
func AcceptedConversion(declaredMime, detectedMime string) bool {
	declared := normalizeMime(declaredMime)
	detected := normalizeMime(detectedMime)
	if declared == detected {
		return true
	}
	if strings.HasPrefix(declared, "image/") && detected == NormalizedImageMime {
		return true
	}
	if strings.HasPrefix(declared, "video/") && detected == NormalizedVideoMime {
		return true
	}
	return false
}

// normalizeMime strips parameters ("text/plain; charset=utf-8") and
// normalizes case.
func normalizeMime(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
