package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/SimbaBuilds/sheetassist/internal/store"
	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

const retryGuidance = "There was a problem processing your request. Try splitting it into smaller requests."

// pollBackoff tracks the delay between polls: base * 1.5^attempt, capped at
// max. The attempt counter resets on every successful read and grows only
// after read failures, so a healthy loop polls at the base interval.
type pollBackoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

func (b *pollBackoff) next() time.Duration {
	d := time.Duration(float64(b.base) * math.Pow(1.5, float64(b.attempt)))
	if d > b.max {
		d = b.max
	}
	if d < b.base {
		d = b.base
	}
	return d
}

func (b *pollBackoff) failure() { b.attempt++ }
func (b *pollBackoff) success() { b.attempt = 0 }

// pollJob watches the job store until the job reaches a terminal status.
// It returns a result for every outcome, including cancellation; it never
// loops on an unrecognized status and never outlives the wall-clock ceiling.
func (s *Service) pollJob(ctx context.Context, userID uuid.UUID, jobID string, onProgress ProgressFunc) *models.JobResult {
	bo := &pollBackoff{base: s.cfg.Polling.BaseInterval, max: s.cfg.Polling.MaxInterval}
	deadline := time.Now().Add(s.cfg.Polling.MaxTotalTime)
	retries := 0

	for {
		if ctx.Err() != nil {
			return s.canceledResult(ctx, userID, jobID)
		}
		if time.Now().After(deadline) {
			return s.errorResult(jobID, "Maximum polling time exceeded", retryGuidance, onProgress)
		}

		job, err := s.readJob(ctx, userID, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return s.canceledResult(ctx, userID, jobID)
			}
			// A row the backend has not written yet reads as not-found and
			// consumes retry budget like any other transient failure, so a
			// submission whose row never appears still terminates.
			retries++
			slog.Warn("job status read failed", "job_id", jobID, "retries", retries, "error", err)
			if retries > s.cfg.Polling.MaxRetries {
				return s.errorResult(jobID, "Maximum retry attempts exceeded", retryGuidance, onProgress)
			}
			bo.failure()
			if !sleepCtx(ctx, bo.next()) {
				return s.canceledResult(ctx, userID, jobID)
			}
			continue
		}
		bo.success()
		_ = s.cache.SetJobStatus(ctx, jobID, job.Status, jobStatusTTL)

		switch job.Status {
		case models.JobStatusError:
			res := resultFromJob(job)
			slog.Error("job failed", "job_id", jobID, "error", res.Error)
			onProgress(models.ProcessingState{Status: models.JobStatusError, Message: res.Error})
			return res

		case models.JobStatusCompleted, models.JobStatusCompletedWithErrors, models.JobStatusCanceled:
			res := resultFromJob(job)
			onProgress(models.ProcessingState{Status: job.Status, Message: res.Message})
			return res

		case models.JobStatusCreated, models.JobStatusProcessing:
			onProgress(progressState(job))
			if !sleepCtx(ctx, bo.next()) {
				return s.canceledResult(ctx, userID, jobID)
			}

		default:
			msg := fmt.Sprintf("Unexpected status: %s", job.Status)
			return s.errorResult(jobID, msg, "", onProgress)
		}
	}
}

func (s *Service) readJob(ctx context.Context, userID uuid.UUID, jobID string) (*models.Job, error) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	return s.store.GetJob(rctx, jobID, userID)
}

// canceledResult attempts the guarded transition to canceled and returns a
// canceled outcome without any further polling. The store-side guard keeps
// an already-terminal job untouched, which makes cancellation idempotent.
func (s *Service) canceledResult(ctx context.Context, userID uuid.UUID, jobID string) *models.JobResult {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectWait)
	defer cancel()

	transitioned, err := s.store.CancelJob(cctx, jobID, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("cancel transition failed", "job_id", jobID, "error", err)
	}
	if transitioned {
		_ = s.cache.SetJobStatus(cctx, jobID, models.JobStatusCanceled, jobStatusTTL)
	}

	return &models.JobResult{
		JobID:   jobID,
		Status:  models.JobStatusCanceled,
		Message: "Request was canceled",
	}
}

func progressState(job *models.Job) models.ProcessingState {
	state := models.ProcessingState{Status: job.Status}
	if job.Message != nil {
		state.Message = *job.Message
	}
	if job.ProcessedPages != nil {
		state.Progress = &models.Progress{
			Processed: *job.ProcessedPages,
			Total:     job.TotalPages,
		}
		if state.Message == "" {
			total := "?"
			if job.TotalPages != nil {
				total = fmt.Sprintf("%d", *job.TotalPages)
			}
			state.Message = fmt.Sprintf("Processing page %d of %s", *job.ProcessedPages, total)
		}
	}
	if state.Message == "" {
		state.Message = "Processing your request..."
	}
	return state
}

// sleepCtx waits for d or until ctx is done; it reports whether the full
// wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
