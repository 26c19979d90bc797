package uploadpipeline

import "fmt"

// isTerminalStatus reports whether a status admits no further transitions.
func isTerminalStatus(status string) bool {
	switch FileStatus(status) {
	case FileStatusCompleted, FileStatusFailed, FileStatusQuarantined:
		return true
	default:
		return false
	}
}

// canBeginProcessing checks whether a completion call may transition the
// file to processing. A false result with a nil error means the call is an
// idempotent no-op: the file has already been finalized or is in flight.
func canBeginProcessing(status string) (bool, error) {
	switch FileStatus(status) {
	case FileStatusPending:
		return true, nil
	case FileStatusProcessing, FileStatusCompleted, FileStatusFailed, FileStatusQuarantined:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrInvalidFileStatus, status)
	}
}
