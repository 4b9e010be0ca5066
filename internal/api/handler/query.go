package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	mw "github.com/SimbaBuilds/sheetassist/internal/api/middleware"
	"github.com/SimbaBuilds/sheetassist/internal/api/response"
	"github.com/SimbaBuilds/sheetassist/internal/query"
	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

const maxMultipartMemory = 64 << 20 // larger files spill to temp files

// Submitter runs one submission to its terminal outcome.
type Submitter interface {
	Submit(ctx context.Context, user query.UserContext, sub models.Submission, onProgress query.ProgressFunc) (*models.JobResult, error)
}

// submitRequest is the json_data part of the incoming multipart form.
type submitRequest struct {
	Query             string                   `json:"query"`
	Kind              string                   `json:"kind,omitempty"`
	InputURLs         []models.InputURL        `json:"input_urls"`
	OutputPreferences models.OutputPreferences `json:"output_preferences"`
}

// NewSubmitHandler returns the handler for POST /api/v1/query. The request
// stays open until the job reaches a terminal state; a client disconnect is
// the cancellation signal.
func NewSubmitHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart body", nil)
			return
		}

		jsonData := r.FormValue("json_data")
		if jsonData == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "json_data part is required", nil)
			return
		}

		var req submitRequest
		if err := json.Unmarshal([]byte(jsonData), &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "json_data must be valid JSON", nil)
			return
		}

		sub := models.Submission{
			Query:     req.Query,
			Kind:      models.KindStandard,
			InputURLs: req.InputURLs,
			Output:    req.OutputPreferences,
		}
		if req.Kind == string(models.KindVisualization) {
			sub.Kind = models.KindVisualization
		}

		if r.MultipartForm != nil {
			for _, fh := range r.MultipartForm.File["files"] {
				f, err := fh.Open()
				if err != nil {
					response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unreadable file part", nil)
					return
				}
				content, err := io.ReadAll(f)
				f.Close()
				if err != nil {
					response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unreadable file part", nil)
					return
				}
				sub.Files = append(sub.Files, models.FileUpload{
					Name:    fh.Filename,
					Type:    fh.Header.Get("Content-Type"),
					Size:    fh.Size,
					Content: content,
				})
			}
		}

		result, err := svc.Submit(r.Context(), query.UserContext{UserID: userID}, sub, nil)
		if err != nil {
			status, code := http.StatusBadRequest, "INVALID_REQUEST"
			if errors.Is(err, query.ErrNotAuthenticated) {
				status, code = http.StatusUnauthorized, "INVALID_TOKEN"
			}
			response.Error(w, status, code, err.Error(), nil)
			return
		}

		response.JSON(w, result)
	}
}
