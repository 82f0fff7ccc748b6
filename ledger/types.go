package ledger

import (
	"errors"
	"fmt"

	"billing-ledger-backend/models"
)

// PeriodKey is the unit of aggregation and locking: one company, one
// billing period (YYYY-MM).
type PeriodKey struct {
	Company   string `json:"company"`
	YearMonth string `json:"year_month"`
}

func (k PeriodKey) String() string {
	return k.Company + "/" + k.YearMonth
}

// PeriodState is one company-period cell group of the billing mirror.
// carried_over = previous_amount - payment_received;
// current_amount = carried_over + sales_amount + tax_amount.
type PeriodState struct {
	PreviousAmount  int64 `json:"previous_amount"`
	PaymentReceived int64 `json:"payment_received"`
	CarriedOver     int64 `json:"carried_over"`
	SalesAmount     int64 `json:"sales_amount"`
	TaxAmount       int64 `json:"tax_amount"`
	CurrentAmount   int64 `json:"current_amount"`
}

// Mirror is the externally editable tabular ledger. It is the only mutable
// shared external resource; all writes go through ApplyDelta/SetPayment,
// which serialize per key.
type Mirror interface {
	Read(key PeriodKey) (PeriodState, error)
	ApplyDelta(key PeriodKey, deltaSales, deltaTax int64) (PeriodState, error)
	SetPayment(key PeriodKey, amount int64, addMode bool) (previous, updated int64, err error)
}

var (
	// ErrPeriodNotFound: the mirror has no column group for the period.
	ErrPeriodNotFound = errors.New("period not found in mirror")
	// ErrCompanyNotFound: the mirror has no row for the company.
	ErrCompanyNotFound = errors.New("company not found in mirror")
	// ErrNoteNotFound: repair target does not exist.
	ErrNoteNotFound = errors.New("delivery note not found")
)

// ItemInput is one extracted line item. Arithmetic is trusted but checked:
// a quantity×unit_price mismatch produces a warning, never a correction.
type ItemInput struct {
	ProductCode string `json:"product_code"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity" validate:"min=0"`
	UnitPrice   int64  `json:"unit_price" validate:"min=0"`
	Amount      int64  `json:"amount" validate:"min=0"`
}

// NoteInput is one delivery note as produced by the extraction collaborator.
type NoteInput struct {
	Date            string      `json:"date" validate:"required"`
	SlipNumber      string      `json:"slip_number" validate:"required"`
	Items           []ItemInput `json:"items" validate:"dive"`
	Subtotal        int64       `json:"subtotal" validate:"min=0"`
	Tax             int64       `json:"tax" validate:"min=0"`
	Total           int64       `json:"total" validate:"min=0"`
	PaymentReceived int64       `json:"payment_received"`
}

// SaveRequest is one idempotent batch save. RequestID is the client's
// idempotency token, unique per attempted batch.
type SaveRequest struct {
	Company        string      `json:"company" validate:"required"`
	YearMonth      string      `json:"year_month" validate:"required"`
	RequestID      string      `json:"request_id" validate:"required,max=128"`
	SalesPerson    string      `json:"sales_person"`
	ForceOverwrite bool        `json:"force_overwrite"`
	DeliveryNotes  []NoteInput `json:"delivery_notes" validate:"required,min=1,dive"`
}

func (r SaveRequest) Key() PeriodKey {
	return PeriodKey{Company: r.Company, YearMonth: r.YearMonth}
}

type SaveStatus string

const (
	StatusReplayed  SaveStatus = "replayed"
	StatusConflict  SaveStatus = "conflict"
	StatusCommitted SaveStatus = "committed"
)

// SaveResult is returned synchronously for every save attempt with enough
// state for the caller to decide the next action.
type SaveResult struct {
	Status        SaveStatus            `json:"status"`
	ExistingNotes []models.DeliveryNote `json:"existing_notes,omitempty"`
	NewState      *PeriodState          `json:"new_ledger_state,omitempty"`
	// MirrorPending: the store write committed but the mirror update did
	// not. Safe to retry with the same request_id.
	MirrorPending bool     `json:"mirror_pending,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	// Discrepancies from the post-save scan of the touched key.
	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
}

// Discrepancy is a derived read-model: store aggregates vs mirror values
// for one key. Never persisted, recomputed on demand.
type Discrepancy struct {
	Company       string `json:"company"`
	YearMonth     string `json:"year_month"`
	DBSubtotal    int64  `json:"db_subtotal"`
	DBTax         int64  `json:"db_tax"`
	SheetSubtotal int64  `json:"sheet_subtotal"`
	SheetTax      int64  `json:"sheet_tax"`
}

func (d Discrepancy) SubtotalDelta() int64 { return d.DBSubtotal - d.SheetSubtotal }
func (d Discrepancy) TaxDelta() int64      { return d.DBTax - d.SheetTax }

// ValidationError rejects a malformed request before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MirrorUnavailableError wraps a transient mirror fault. The store write
// stands; the caller retries with the same request_id.
type MirrorUnavailableError struct {
	Err error
}

func (e *MirrorUnavailableError) Error() string {
	return "mirror unavailable: " + e.Err.Error()
}

func (e *MirrorUnavailableError) Unwrap() error { return e.Err }
