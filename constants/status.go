package constants

// JobStatus is the canonical status for rows in extraction_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "pending"    // accepted, waiting for a worker
	JobStatusProcessing JobStatus = "processing" // extraction in progress
	JobStatusCompleted  JobStatus = "completed"  // terminal success, result stored
	JobStatusFailed     JobStatus = "failed"     // terminal failure
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
