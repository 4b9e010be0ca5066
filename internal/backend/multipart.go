package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

// buildMultipartBody assembles the /process_query payload: a json_data part
// carrying the request metadata, followed by one binary part per inlined
// file. Files routed through object storage are already referenced by s3
// key in the metadata and must not appear here.
func buildMultipartBody(req models.QueryRequest, files []models.FileUpload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("marshal json_data: %w", err)
	}
	if err := w.WriteField("json_data", string(jsonData)); err != nil {
		return nil, "", fmt.Errorf("write json_data part: %w", err)
	}

	for _, f := range files {
		part, err := w.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create file part %q: %w", f.Name, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("write file part %q: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
