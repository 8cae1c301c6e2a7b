package document

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no document has the requested id
var ErrNotFound = errors.New("document not found")

// Status is the ingestion state of a document
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Document is an uploaded file and the text extracted from it
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Content     string    `json:"content,omitempty"`
	Status      Status    `json:"status"`
	Accuracy    float64   `json:"accuracy"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Error       string    `json:"error,omitempty"`
}

// SizeLabel formats the size in megabytes, e.g. "1.25 MB"
func (d Document) SizeLabel() string {
	return fmt.Sprintf("%.2f MB", float64(d.Size)/1024/1024)
}

// Ready reports whether extraction finished successfully
func (d Document) Ready() bool {
	return d.Status == StatusReady
}
