package models

import (
	"time"

	"gorm.io/datatypes"
)

// SaveReceipt stages for the save protocol. A receipt is created inside the
// same transaction that persists the batch, so a request_id can never be
// marked done without its notes being durable.
const (
	// ReceiptMirrorPending: notes are committed to the store but the mirror
	// update has not been applied yet. A retry with the same request_id
	// resumes from the mirror stage.
	ReceiptMirrorPending = "mirror_pending"
	// ReceiptCommitted: mirror updated, outcome recorded; replays return the
	// stored outcome verbatim.
	ReceiptCommitted = "committed"
)

// SaveReceipt records the durable outcome of one save request_id.
// Retention is indefinite: replay safety must hold beyond any session.
type SaveReceipt struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	RequestID string `json:"request_id" gorm:"size:128;uniqueIndex"`
	Company   string `json:"company" gorm:"not null"`
	YearMonth string `json:"year_month" gorm:"not null"`
	Stage     string `json:"stage" gorm:"size:20;not null"`

	// Mirror delta still owed (or already applied) for this request.
	// Kept so a mirror-pending retry can resume without re-reading notes.
	DeltaSales int64 `json:"delta_sales"`
	DeltaTax   int64 `json:"delta_tax"`

	// Serialized SaveResult returned to replayed requests.
	Outcome datatypes.JSON `json:"-" gorm:"type:jsonb"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}
