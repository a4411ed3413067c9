package models

import "time"

// DocumentStatus is the review state of an uploaded document.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

// Document is the metadata row for an uploaded file. The content itself lives
// in object storage under StorageKey.
type Document struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"ownerId"`
	Filename    string         `json:"filename"`
	StorageKey  string         `json:"-"`
	ContentType string         `json:"contentType"`
	SizeBytes   int64          `json:"sizeBytes"`
	Status      DocumentStatus `json:"status"`
	ReviewNote  string         `json:"reviewNote,omitempty"`
	ReviewedBy  string         `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time     `json:"reviewedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// CanTransitionTo reports whether the review state machine allows the move.
// pending -> approved|rejected; rejected -> pending (reset only). Approved is
// terminal.
func (d *Document) CanTransitionTo(next DocumentStatus) bool {
	switch d.Status {
	case DocumentPending:
		return next == DocumentApproved || next == DocumentRejected
	case DocumentRejected:
		return next == DocumentPending
	default:
		return false
	}
}
