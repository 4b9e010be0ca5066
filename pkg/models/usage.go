package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageCounters holds per-user tallies used for plan-limit enforcement.
// Counters only ever increase; each terminal job outcome bumps them once.
type UsageCounters struct {
	UserID                        uuid.UUID `db:"user_id"                          json:"user_id"`
	RequestsThisWeek              int       `db:"requests_this_week"               json:"requests_this_week"`
	RequestsThisMonth             int       `db:"requests_this_month"              json:"requests_this_month"`
	RequestsPrevious3Months       int       `db:"requests_previous_3_months"       json:"requests_previous_3_months"`
	ImagesProcessedThisMonth      int       `db:"images_processed_this_month"      json:"images_processed_this_month"`
	UnsuccessfulRequestsThisMonth int       `db:"unsuccessful_requests_this_month" json:"unsuccessful_requests_this_month"`
	UpdatedAt                     time.Time `db:"updated_at"                       json:"updated_at"`
}

// RequestLogEntry is one audit row per submission, written after the
// terminal status is observed. JobID is unique so the outcome of a
// submission is recorded at most once.
type RequestLogEntry struct {
	ID                 uuid.UUID `db:"id"                   json:"id"`
	UserID             uuid.UUID `db:"user_id"              json:"user_id"`
	JobID              string    `db:"job_id"               json:"job_id"`
	Query              string    `db:"query"                json:"query"`
	FileNames          []string  `db:"file_names"           json:"file_names"`
	DocNames           []string  `db:"doc_names"            json:"doc_names"`
	ProcessingTimeMS   int64     `db:"processing_time_ms"   json:"processing_time_ms"`
	Status             string    `db:"status"               json:"status"`
	Success            bool      `db:"success"              json:"success"`
	ErrorMessage       *string   `db:"error_message"        json:"error_message,omitempty"`
	RequestType        string    `db:"request_type"         json:"request_type"`
	NumImagesProcessed int       `db:"num_images_processed" json:"num_images_processed"`
	CreatedAt          time.Time `db:"created_at"           json:"created_at"`
}
