// Package collab declares the external collaborators the billing core
// consumes as black boxes. Implementations live outside this repository
// (OCR/LLM extraction services, PDF templating); the core trusts their
// structural output but verifies arithmetic at the boundary.
package collab

import (
	"context"
	"io"

	"billing-ledger-backend/ledger"
	"billing-ledger-backend/models"
)

// Extractor turns a raw uploaded document into a typed delivery note.
// The core validates arithmetic invariants afterwards; the extractor owns
// rounding (tax = floor(subtotal × rate) applied exactly once).
type Extractor interface {
	Extract(ctx context.Context, raw io.Reader) (ledger.NoteInput, error)
}

// InvoiceRenderer produces a rendered monthly invoice document and returns
// a reference to it.
type InvoiceRenderer interface {
	RenderInvoice(ctx context.Context, notes []models.DeliveryNote, company *models.Company, state ledger.PeriodState) (DocumentRef, error)
}

// DocumentRef points at a rendered document.
type DocumentRef struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}
