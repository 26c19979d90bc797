// Package scanner provides virus scanner implementations: a clamd-backed
// scanner for production and a static scanner for tests.
package scanner

import (
	"bytes"
	"context"
	"fmt"

	clamd "github.com/dutchcoders/go-clamd"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
)

var _ uploadpipeline.Scanner = (*ClamAV)(nil)

// ClamAV scans buffers by streaming them to a clamd daemon.
type ClamAV struct {
	client *clamd.Clamd
}

// NewClamAV connects to a clamd daemon, e.g. "tcp://localhost:3310" or
// "/var/run/clamav/clamd.ctl".
func NewClamAV(address string) *ClamAV {
	return &ClamAV{client: clamd.NewClamd(address)}
}

// Scan streams the buffer to clamd. A daemon that cannot be reached or
// answers with an error yields an unavailable verdict, never a silent pass.
func (s *ClamAV) Scan(ctx context.Context, data []byte) (uploadpipeline.ScanResult, error) {
	abort := make(chan bool)
	defer close(abort)

	responses, err := s.client.ScanStream(bytes.NewReader(data), abort)
	if err != nil {
		return uploadpipeline.ScanResult{Verdict: uploadpipeline.VerdictUnavailable},
			fmt.Errorf("%w: %v", uploadpipeline.ErrScannerUnavailable, err)
	}

	for {
		select {
		case <-ctx.Done():
			return uploadpipeline.ScanResult{Verdict: uploadpipeline.VerdictUnavailable}, ctx.Err()
		case response, ok := <-responses:
			if !ok {
				return uploadpipeline.ScanResult{Verdict: uploadpipeline.VerdictClean}, nil
			}
			switch response.Status {
			case clamd.RES_OK:
				continue
			case clamd.RES_FOUND:
				return uploadpipeline.ScanResult{
					Verdict:   uploadpipeline.VerdictInfected,
					Signature: response.Description,
				}, nil
			default:
				return uploadpipeline.ScanResult{Verdict: uploadpipeline.VerdictUnavailable},
					fmt.Errorf("%w: %s", uploadpipeline.ErrScannerUnavailable, response.Raw)
			}
		}
	}
}
