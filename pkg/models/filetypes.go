package models

import "strings"

const (
	MaxFiles       = 6
	MaxFileSize    = 350 * 1024 * 1024
	MaxQueryLength = 500

	// Files at or above this size are routed through object storage
	// instead of being inlined in the multipart payload.
	S3SizeThreshold = 100 * 1024
)

const (
	MimeText = "text/plain"
	MimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeJSON = "application/json"
	MimePDF  = "application/pdf"
	MimeCSV  = "text/csv"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
)

var acceptedMimeTypes = map[string]bool{
	MimeText: true,
	MimeDocx: true,
	MimeJSON: true,
	MimePDF:  true,
	MimeCSV:  true,
	MimeXLSX: true,
	MimePNG:  true,
	MimeJPEG: true,
}

// IsAcceptedMimeType reports whether the service accepts files of this type.
func IsAcceptedMimeType(mimeType string) bool {
	return acceptedMimeTypes[mimeType]
}

var downloadFormats = map[string]bool{
	"csv":  true,
	"xlsx": true,
	"docx": true,
	"txt":  true,
}

// IsDownloadFormat reports whether format is a supported export format.
func IsDownloadFormat(format string) bool {
	return downloadFormats[format]
}

// NeedsObjectStorage decides the upload route for an input file: images
// always go to object storage, PDFs only once they reach the size threshold,
// everything else is inlined.
func NeedsObjectStorage(mimeType string, size int64) bool {
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	return mimeType == MimePDF && size >= S3SizeThreshold
}
