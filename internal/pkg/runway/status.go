package runway

// Status is the normalized render-job status. Vendor status vocabularies
// vary between endpoint versions; everything funnels through
// NormalizeStatus so callers only ever see this closed set.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"

	// StatusUnknown marks a vendor status string we do not recognize.
	// Callers must treat it as retryable, never as terminal.
	StatusUnknown Status = "unknown"
)

// IsTerminal reports whether no further transitions can occur
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// NormalizeStatus maps a raw vendor status string onto the internal set
func NormalizeStatus(raw string) Status {
	switch raw {
	case "pending", "queued", "PENDING", "THROTTLED":
		return StatusPending
	case "processing", "running", "RUNNING":
		return StatusProcessing
	case "succeeded", "completed", "SUCCEEDED":
		return StatusSucceeded
	case "failed", "error", "canceled", "FAILED", "CANCELLED":
		return StatusFailed
	default:
		return StatusUnknown
	}
}
