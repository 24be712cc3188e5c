package domain

import "time"

// UploadStatus tracks evidence ingestion progress.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// ExtractedFields holds structured values pattern-matched out of OCR text.
type ExtractedFields struct {
	Amounts    []string `json:"amounts,omitempty"`
	Dates      []string `json:"dates,omitempty"`
	References []string `json:"references,omitempty"`
	Phones     []string `json:"phones,omitempty"`
	Accounts   []string `json:"accounts,omitempty"`
}

// Evidence is an uploaded artifact attached to a dispute. The core only holds
// the opaque storage key; OCR results are attached exactly once by the
// evidence worker and never mutated afterwards.
type Evidence struct {
	ID             string
	DisputeID      string
	StorageKey     string
	FileName       string
	MimeType       string
	SizeBytes      int64
	UploadStatus   UploadStatus
	ExtractedText  *string
	Confidence     *float64
	StructuredData *ExtractedFields
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
