package handler

import (
	"errors"
	"io"
	"net/http"

	mw "github.com/SimbaBuilds/sheetassist/internal/api/middleware"
	"github.com/SimbaBuilds/sheetassist/internal/api/response"
	"github.com/SimbaBuilds/sheetassist/internal/sheets"
	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

// NewWorkbookSheetsHandler returns the handler for POST /api/v1/workbook/sheets:
// it inspects one uploaded workbook and reports its sheet names so the
// dashboard can offer a tab picker before submission.
func NewWorkbookSheetsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mw.GetUserID(r); !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart body", nil)
			return
		}

		f, fh, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file part is required", nil)
			return
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unreadable file part", nil)
			return
		}

		info, err := sheets.Inspect(models.FileUpload{
			Name:    fh.Filename,
			Type:    fh.Header.Get("Content-Type"),
			Size:    fh.Size,
			Content: content,
		})
		if errors.Is(err, sheets.ErrUnsupportedWorkbook) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Only .xlsx and .csv workbooks are supported", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read workbook", nil)
			return
		}

		response.JSON(w, info)
	}
}
