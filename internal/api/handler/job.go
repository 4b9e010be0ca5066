package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	mw "github.com/SimbaBuilds/sheetassist/internal/api/middleware"
	"github.com/SimbaBuilds/sheetassist/internal/api/response"
	"github.com/SimbaBuilds/sheetassist/internal/cache"
	"github.com/SimbaBuilds/sheetassist/internal/store"
	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

// NewJobStatusHandler returns the handler for GET /api/v1/query/{jobID}.
// The cache answers cheap status-only checks; the store supplies the full
// record.
func NewJobStatusHandler(st store.Store, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		jobID := chi.URLParam(r, "jobID")

		job, err := st.GetJob(r.Context(), jobID, userID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read job", nil)
			return
		}

		_ = ca.SetJobStatus(r.Context(), jobID, job.Status, 30*time.Minute)
		response.JSON(w, job)
	}
}

// NewCancelJobHandler returns the handler for POST /api/v1/query/{jobID}/cancel.
// Canceling an already-terminal job is a no-op, not an error.
func NewCancelJobHandler(st store.Store, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		jobID := chi.URLParam(r, "jobID")

		transitioned, err := st.CancelJob(r.Context(), jobID, userID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to cancel job", nil)
			return
		}

		if transitioned {
			_ = ca.SetJobStatus(r.Context(), jobID, models.JobStatusCanceled, 30*time.Minute)
		}
		response.JSON(w, map[string]any{
			"job_id":   jobID,
			"canceled": transitioned,
		})
	}
}
