// Package query implements the job submission controller: it persists a new
// job, relays the submission to the processing backend, tracks the job to a
// terminal state by polling the job store, and records usage and audit side
// effects exactly once per submission.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SimbaBuilds/sheetassist/internal/backend"
	"github.com/SimbaBuilds/sheetassist/internal/cache"
	"github.com/SimbaBuilds/sheetassist/internal/config"
	"github.com/SimbaBuilds/sheetassist/internal/storage"
	"github.com/SimbaBuilds/sheetassist/internal/store"
	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

const (
	jobStatusTTL   = 30 * time.Minute
	sideEffectWait = 30 * time.Second
)

// UserContext carries the acting user's identity explicitly through the
// controller so nothing resolves it ambiently.
type UserContext struct {
	UserID uuid.UUID
}

// ProgressFunc receives processing state snapshots while a submission is in
// flight. May be nil.
type ProgressFunc func(models.ProcessingState)

// Config bounds the controller's polling loop and backend calls.
type Config struct {
	Polling         config.PollingConfig
	StandardTimeout time.Duration
	BatchTimeout    time.Duration
	ReadTimeout     time.Duration
}

// Service is the job submission controller.
type Service struct {
	store    store.Store
	cache    cache.Cache
	backend  backend.Client
	uploader storage.Uploader
	cfg      Config
}

// NewService creates a Service. Zero config fields fall back to the
// production defaults.
func NewService(st store.Store, ca cache.Cache, be backend.Client, up storage.Uploader, cfg Config) *Service {
	if cfg.Polling.BaseInterval <= 0 {
		cfg.Polling.BaseInterval = 5 * time.Second
	}
	if cfg.Polling.MaxInterval < cfg.Polling.BaseInterval {
		cfg.Polling.MaxInterval = 15 * time.Second
	}
	if cfg.Polling.MaxRetries <= 0 {
		cfg.Polling.MaxRetries = 15
	}
	if cfg.Polling.MaxTotalTime <= 0 {
		cfg.Polling.MaxTotalTime = time.Hour
	}
	if cfg.StandardTimeout <= 0 {
		cfg.StandardTimeout = 10 * time.Minute
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Hour
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Minute
	}
	return &Service{store: st, cache: ca, backend: be, uploader: up, cfg: cfg}
}

// Submit runs one submission end to end and returns its terminal outcome.
// Cancellation arrives through ctx and yields a "canceled" result, never an
// error. Only validation and authentication fail synchronously; every other
// failure converges on a JobResult with status "error".
func (s *Service) Submit(ctx context.Context, user UserContext, sub models.Submission, onProgress ProgressFunc) (*models.JobResult, error) {
	start := time.Now()
	if onProgress == nil {
		onProgress = func(models.ProcessingState) {}
	}

	if err := validateSubmission(user, sub); err != nil {
		return nil, err
	}

	jobID := NewJobID(user.UserID)
	now := time.Now().UTC()
	job := &models.Job{
		JobID:             jobID,
		UserID:            user.UserID,
		Status:            models.JobStatusCreated,
		Query:             sub.Query,
		OutputPreferences: sub.Output,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusCreated, jobStatusTTL)

	meta, inline, err := s.prepareFiles(ctx, user.UserID, sub.Files)
	if err != nil {
		// The whole submission fails before transmission; the job record
		// never progresses past created.
		slog.Error("input upload failed", "job_id", jobID, "error", err)
		result := s.errorResult(jobID, fmt.Sprintf("uploading input files: %v", err), "", onProgress)
		s.recordOutcome(ctx, user, sub, result, start)
		return result, nil
	}

	req := models.QueryRequest{
		Query:             sub.Query,
		InputURLs:         sub.InputURLs,
		FilesMetadata:     meta,
		OutputPreferences: sub.Output,
		JobID:             jobID,
	}

	onProgress(models.ProcessingState{
		Status:  models.JobStatusProcessing,
		Message: "Processing your request...",
	})

	// Fan out: the backend transmission and the polling loop run
	// concurrently; both must settle before the outcome is recorded. The
	// polling loop's final read is authoritative, the transmission result
	// is advisory.
	tctx, cancelTransmit := context.WithTimeout(ctx, s.timeoutFor(sub.Kind))
	defer cancelTransmit()
	transmitCh := make(chan error, 1)
	go func() {
		_, err := s.backend.ProcessQuery(tctx, req, inline)
		transmitCh <- err
	}()

	pollCtx, stopPoll := context.WithCancel(ctx)
	defer stopPoll()
	resultCh := make(chan *models.JobResult, 1)
	go func() {
		resultCh <- s.pollJob(pollCtx, user.UserID, jobID, onProgress)
	}()

	var result *models.JobResult
	select {
	case err := <-transmitCh:
		if err != nil && ctx.Err() == nil {
			// The transmission itself failed, so the backend will never
			// move the job forward; stop polling and surface the failure.
			// The released row reads as canceled in the store, but the
			// caller sees the transmission error, so skip the final
			// store read that would mask it.
			slog.Error("query transmission failed", "job_id", jobID, "error", err)
			stopPoll()
			<-resultCh
			s.releaseJob(ctx, user.UserID, jobID)
			result = s.errorResult(jobID, err.Error(), "", onProgress)
			s.recordOutcome(ctx, user, sub, result, start)
			return result, nil
		}
		result = <-resultCh
	case result = <-resultCh:
		cancelTransmit()
		<-transmitCh
	}

	result = s.finalize(ctx, user.UserID, jobID, result)
	s.recordOutcome(ctx, user, sub, result, start)
	return result, nil
}

// NewJobID derives a job id from the user and the current time in millis, so
// the client side can reference the job before the backend acknowledges it.
func NewJobID(userID uuid.UUID) string {
	return fmt.Sprintf("%s-%d", userID, time.Now().UnixMilli())
}

func validateSubmission(user UserContext, sub models.Submission) error {
	if user.UserID == uuid.Nil {
		return ErrNotAuthenticated
	}
	if strings.TrimSpace(sub.Query) == "" {
		return ErrEmptyQuery
	}
	if len(sub.Query) > models.MaxQueryLength {
		return ErrQueryTooLong
	}
	if len(sub.Files) > models.MaxFiles {
		return ErrTooManyFiles
	}
	for _, f := range sub.Files {
		if f.Size > models.MaxFileSize {
			return fmt.Errorf("%w: %s", ErrFileTooLarge, f.Name)
		}
		if !models.IsAcceptedMimeType(f.Type) {
			return fmt.Errorf("%w: %s", ErrUnsupportedType, f.Type)
		}
	}

	switch sub.Output.Type {
	case models.OutputTypeOnline:
		if sub.Output.DestinationURL == "" {
			return ErrMissingDestination
		}
	case models.OutputTypeDownload:
		if !models.IsDownloadFormat(sub.Output.Format) {
			return fmt.Errorf("%w: %q", ErrUnsupportedFormat, sub.Output.Format)
		}
	default:
		return ErrInvalidOutputType
	}
	return nil
}

// prepareFiles builds per-file metadata and splits the inputs into object
// storage uploads and inlined payload files. Qualifying uploads run
// concurrently; the submission waits for all of them before transmitting.
func (s *Service) prepareFiles(ctx context.Context, userID uuid.UUID, files []models.FileUpload) ([]models.FileMetadata, []models.FileUpload, error) {
	meta := make([]models.FileMetadata, len(files))
	var inline []models.FileUpload

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, f := range files {
		meta[i] = models.FileMetadata{
			Name:      f.Name,
			Type:      f.Type,
			Extension: strings.ToLower(filepath.Ext(f.Name)),
			Size:      f.Size,
			Index:     i,
		}

		if !models.NeedsObjectStorage(f.Type, f.Size) {
			inline = append(inline, f)
			continue
		}

		wg.Add(1)
		go func(i int, f models.FileUpload) {
			defer wg.Done()
			res, err := s.uploader.Upload(ctx, userID, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("upload %q: %w", f.Name, err)
				}
				return
			}
			meta[i].S3Key = res.Key
			meta[i].S3URL = res.URL
		}(i, f)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, nil, firstErr
	}
	return meta, inline, nil
}

func (s *Service) timeoutFor(kind models.SubmissionKind) time.Duration {
	if kind == models.KindVisualization {
		return s.cfg.BatchTimeout
	}
	return s.cfg.StandardTimeout
}

// finalize re-reads the job store once after both the transmission and the
// polling loop have settled. A terminal record there overrides whatever the
// loop produced; in particular a cancel that raced a legitimate completion
// resolves in favor of the completion.
func (s *Service) finalize(ctx context.Context, userID uuid.UUID, jobID string, result *models.JobResult) *models.JobResult {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ReadTimeout)
	defer cancel()

	job, err := s.store.GetJob(rctx, jobID, userID)
	if err != nil || !models.IsTerminalStatus(job.Status) {
		return result
	}
	final := resultFromJob(job)
	if final.Message == "" {
		final.Message = result.Message
	}
	if final.NumImagesProcessed == 0 {
		final.NumImagesProcessed = result.NumImagesProcessed
	}
	return final
}

// releaseJob best-effort cancels the job record after a transmission
// failure so a row the backend never picked up does not dangle in created.
func (s *Service) releaseJob(ctx context.Context, userID uuid.UUID, jobID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectWait)
	defer cancel()
	if _, err := s.store.CancelJob(cctx, jobID, userID); err != nil {
		slog.Warn("releasing failed job", "job_id", jobID, "error", err)
	}
}

// recordOutcome bumps usage counters and appends the audit row, exactly
// once per submission: the job id is the idempotency key in the store.
// Runs even when the caller's context is already canceled.
func (s *Service) recordOutcome(ctx context.Context, user UserContext, sub models.Submission, result *models.JobResult, start time.Time) {
	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectWait)
	defer cancel()

	fileNames := make([]string, 0, len(sub.Files))
	for _, f := range sub.Files {
		fileNames = append(fileNames, f.Name)
	}
	docNames := make([]string, 0, len(sub.InputURLs))
	for _, u := range sub.InputURLs {
		docNames = append(docNames, u.URL)
	}

	requestType := "query"
	if sub.Kind == models.KindVisualization {
		requestType = "visualization"
	}

	entry := &models.RequestLogEntry{
		UserID:             user.UserID,
		JobID:              result.JobID,
		Query:              sub.Query,
		FileNames:          fileNames,
		DocNames:           docNames,
		ProcessingTimeMS:   time.Since(start).Milliseconds(),
		Status:             result.Status,
		Success:            result.Status == models.JobStatusCompleted,
		RequestType:        requestType,
		NumImagesProcessed: result.NumImagesProcessed,
	}
	if result.Error != "" {
		entry.ErrorMessage = &result.Error
	}

	recorded, err := s.store.RecordOutcome(octx, entry)
	if err != nil {
		slog.Error("recording request outcome", "job_id", result.JobID, "error", err)
		return
	}
	if !recorded {
		slog.Warn("request outcome already recorded", "job_id", result.JobID)
	}
}

func (s *Service) errorResult(jobID, message, details string, onProgress ProgressFunc) *models.JobResult {
	onProgress(models.ProcessingState{
		Status:  models.JobStatusError,
		Message: message,
		Details: details,
	})
	return &models.JobResult{
		JobID:   jobID,
		Status:  models.JobStatusError,
		Message: message,
		Error:   message,
	}
}

// resultFromJob converts a terminal job record into the caller-facing result.
func resultFromJob(job *models.Job) *models.JobResult {
	res := &models.JobResult{
		JobID:  job.JobID,
		Status: job.Status,
	}
	if job.Message != nil {
		res.Message = *job.Message
	}
	if job.ProcessedPages != nil {
		res.NumImagesProcessed = *job.ProcessedPages
	}
	if job.Status == models.JobStatusError {
		if job.ErrorMessage != nil {
			res.Error = *job.ErrorMessage
		} else if res.Message != "" {
			res.Error = res.Message
		} else {
			res.Error = "Backend processing error"
		}
		if res.Message == "" {
			res.Message = res.Error
		}
	}
	if job.ResultFilePath != nil {
		res.Result = &models.ResultFile{FilePath: *job.ResultFilePath}
		if job.ResultMediaType != nil {
			res.Result.MediaType = *job.ResultMediaType
		}
		if job.ResultFilename != nil {
			res.Result.Filename = *job.ResultFilename
		}
	}
	return res
}
