// Package generation defines the lifecycle of a video-ad generation row.
package generation

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// StepCancelled is written to current_step when a cancellation request is honoured.
const StepCancelled = "cancelled"

// IsTerminal reports whether no further pipeline work may touch the row.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// CanCancel is true only while the pipeline has not finished.
func CanCancel(status string) bool {
	return status == StatusPending || status == StatusProcessing
}

// IsValidStatus reports whether status is one of the four lifecycle states.
func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ClampProgress keeps progress inside 0..100.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
