package models

import "testing"

func TestIsTerminalStatus(t *testing.T) {
	terminal := []string{
		JobStatusCompleted,
		JobStatusCompletedWithErrors,
		JobStatusError,
		JobStatusCanceled,
	}
	for _, s := range terminal {
		if !IsTerminalStatus(s) {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []string{JobStatusCreated, JobStatusProcessing, "", "archived"}
	for _, s := range active {
		if IsTerminalStatus(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestNeedsObjectStorage(t *testing.T) {
	tests := []struct {
		name string
		mime string
		size int64
		want bool
	}{
		{"png always", MimePNG, 1, true},
		{"jpeg always", MimeJPEG, 1, true},
		{"pdf below threshold", MimePDF, S3SizeThreshold - 1, false},
		{"pdf at threshold", MimePDF, S3SizeThreshold, true},
		{"pdf above threshold", MimePDF, S3SizeThreshold + 1, true},
		{"csv any size", MimeCSV, 10 << 20, false},
		{"xlsx any size", MimeXLSX, 10 << 20, false},
		{"docx any size", MimeDocx, S3SizeThreshold * 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsObjectStorage(tt.mime, tt.size); got != tt.want {
				t.Errorf("NeedsObjectStorage(%q, %d) = %v, want %v", tt.mime, tt.size, got, tt.want)
			}
		})
	}
}

func TestIsAcceptedMimeType(t *testing.T) {
	for _, mime := range []string{MimeText, MimeDocx, MimeJSON, MimePDF, MimeCSV, MimeXLSX, MimePNG, MimeJPEG} {
		if !IsAcceptedMimeType(mime) {
			t.Errorf("%s should be accepted", mime)
		}
	}
	for _, mime := range []string{"application/zip", "video/mp4", ""} {
		if IsAcceptedMimeType(mime) {
			t.Errorf("%s should not be accepted", mime)
		}
	}
}

func TestIsDownloadFormat(t *testing.T) {
	for _, f := range []string{"csv", "xlsx", "docx", "txt"} {
		if !IsDownloadFormat(f) {
			t.Errorf("%s should be a download format", f)
		}
	}
	for _, f := range []string{"pdf", "CSV", ""} {
		if IsDownloadFormat(f) {
			t.Errorf("%s should not be a download format", f)
		}
	}
}
