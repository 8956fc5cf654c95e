package constants

// LogStatus is the canonical status for rows in extraction_log.
type LogStatus string

// Stable values (store these exact strings in DB).
const (
	LogStatusSuccess LogStatus = "SUCCESS"
	LogStatusError   LogStatus = "ERROR"
)

// JobStatus tracks queued work in the daemon.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "QUEUED"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)
