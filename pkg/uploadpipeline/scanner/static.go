package scanner

import (
	"bytes"
	"context"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
)

var _ uploadpipeline.Scanner = (*Static)(nil)

// Static is a scanner with fixed behavior, for tests and local development.
// With no options it reports every buffer clean, except buffers containing
// the EICAR test signature, which report infected.
type Static struct {
	verdict   uploadpipeline.ScanVerdict
	signature string
	err       error
}

// EICAR is the standard antivirus test string.
const EICAR = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// NewStatic creates a scanner that detects only the EICAR test signature.
func NewStatic() *Static {
	return &Static{}
}

// NewStaticVerdict creates a scanner that always answers with the given
// verdict.
func NewStaticVerdict(verdict uploadpipeline.ScanVerdict, signature string) *Static {
	return &Static{verdict: verdict, signature: signature}
}

// NewStaticError creates a scanner that always fails.
func NewStaticError(err error) *Static {
	return &Static{err: err}
}

func (s *Static) Scan(ctx context.Context, data []byte) (uploadpipeline.ScanResult, error) {
	if s.err != nil {
		return uploadpipeline.ScanResult{Verdict: uploadpipeline.VerdictUnavailable}, s.err
	}
	if s.verdict != "" {
		return uploadpipeline.ScanResult{Verdict: s.verdict, Signature: s.signature}, nil
	}
	if bytes.Contains(data, []byte(EICAR)) {
		return uploadpipeline.ScanResult{
			Verdict:   uploadpipeline.VerdictInfected,
			Signature: "Eicar-Signature",
		}, nil
	}
	return uploadpipeline.ScanResult{Verdict: uploadpipeline.VerdictClean}, nil
}
