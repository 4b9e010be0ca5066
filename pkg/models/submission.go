// Package models contains shared data models used across the SheetAssist codebase.
package models

// SubmissionKind distinguishes standard query processing from chart/graph
// generation, which runs as a long batch job with a wider timeout.
type SubmissionKind string

const (
	KindStandard      SubmissionKind = "standard"
	KindVisualization SubmissionKind = "visualization"
)

// InputURL references an online spreadsheet or document by URL, optionally
// narrowed to one sheet/tab. Permission checks happen before submission.
type InputURL struct {
	URL       string  `json:"url"`
	SheetName *string `json:"sheet_name,omitempty"`
	DocName   *string `json:"doc_name,omitempty"`
}

// OutputPreferences describes where results go: a downloadable file in the
// requested format, or a write-back to an online destination document.
type OutputPreferences struct {
	Type           string  `json:"type"` // "download" or "online"
	DestinationURL string  `json:"destination_url,omitempty"`
	Format         string  `json:"format,omitempty"`
	ModifyExisting bool    `json:"modify_existing,omitempty"`
	SheetName      *string `json:"sheet_name,omitempty"`
	DocName        *string `json:"doc_name,omitempty"`
}

const (
	OutputTypeDownload = "download"
	OutputTypeOnline   = "online"
)

// FileUpload is one raw input file as received from the caller.
type FileUpload struct {
	Name    string
	Type    string
	Size    int64
	Content []byte
}

// FileMetadata describes one input file inside the multipart submission.
// Files routed to object storage carry an s3 key/URL and omit their bytes
// from the payload; inlined files are identified by index.
type FileMetadata struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Extension string `json:"extension"`
	Size      int64  `json:"size"`
	Index     int    `json:"index"`
	PageCount *int   `json:"page_count,omitempty"`
	S3Key     string `json:"s3_key,omitempty"`
	S3URL     string `json:"s3_url,omitempty"`
}

// QueryRequest is the json_data part of the multipart body sent to the
// processing backend.
type QueryRequest struct {
	Query             string            `json:"query"`
	InputURLs         []InputURL        `json:"input_urls"`
	FilesMetadata     []FileMetadata    `json:"files_metadata"`
	OutputPreferences OutputPreferences `json:"output_preferences"`
	JobID             string            `json:"job_id"`
}

// Submission is one user request: a natural-language query plus its inputs
// and output preferences.
type Submission struct {
	Query     string
	Kind      SubmissionKind
	InputURLs []InputURL
	Files     []FileUpload
	Output    OutputPreferences
}

// Progress reports how many pages/items the backend has processed. Total is
// nil until the backend has determined the page count.
type Progress struct {
	Processed int  `json:"processed"`
	Total     *int `json:"total"`
}

// ProcessingState is one progress snapshot delivered to the caller while a
// submission is in flight.
type ProcessingState struct {
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Progress *Progress `json:"progress,omitempty"`
	Details  string    `json:"details,omitempty"`
}

// ResultFile references the single output artifact of a completed job.
type ResultFile struct {
	FilePath    string `json:"file_path"`
	MediaType   string `json:"media_type"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url,omitempty"`
}

// JobResult is the terminal outcome of a submission. Failure is an ordinary
// value here, not an error: callers render Message rather than branching on
// error types.
type JobResult struct {
	JobID              string      `json:"job_id"`
	Status             string      `json:"status"`
	Message            string      `json:"message"`
	Result             *ResultFile `json:"result,omitempty"`
	NumImagesProcessed int         `json:"num_images_processed"`
	Error              string      `json:"error,omitempty"`
}
