package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusCreated             = "created"
	JobStatusProcessing          = "processing"
	JobStatusCompleted           = "completed"
	JobStatusCompletedWithErrors = "completed_with_error(s)"
	JobStatusError               = "error"
	JobStatusCanceled            = "canceled"
)

// IsTerminalStatus reports whether a job status permits no further transitions.
// Once terminal, a job's status must never be overwritten.
func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusError, JobStatusCanceled:
		return true
	}
	return false
}

// Job tracks one asynchronous query-processing request. The job id is
// generated client-side from (user_id, unix millis) so the submitter can
// reference the job before the processing backend acknowledges it. The
// processing backend mutates the record as work progresses; this service
// only writes the initial row and the guarded transition to canceled.
type Job struct {
	JobID             string            `db:"job_id"             json:"job_id"`
	UserID            uuid.UUID         `db:"user_id"            json:"user_id"`
	Status            string            `db:"status"             json:"status"`
	Message           *string           `db:"message"            json:"message,omitempty"`
	Query             string            `db:"query"              json:"query"`
	TotalPages        *int              `db:"total_pages"        json:"total_pages,omitempty"`
	ProcessedPages    *int              `db:"processed_pages"    json:"processed_pages,omitempty"`
	OutputPreferences OutputPreferences `db:"output_preferences" json:"output_preferences"`
	ResultFilePath    *string           `db:"result_file_path"   json:"result_file_path,omitempty"`
	ResultMediaType   *string           `db:"result_media_type"  json:"result_media_type,omitempty"`
	ResultFilename    *string           `db:"result_filename"    json:"result_filename,omitempty"`
	ErrorMessage      *string           `db:"error_message"      json:"error_message,omitempty"`
	CreatedAt         time.Time         `db:"created_at"         json:"created_at"`
	StartedAt         *time.Time        `db:"started_at"         json:"started_at,omitempty"`
	CompletedAt       *time.Time        `db:"completed_at"       json:"completed_at,omitempty"`
	UpdatedAt         time.Time         `db:"updated_at"         json:"updated_at"`
}
