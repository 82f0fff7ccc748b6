package ledger

import (
	"errors"
	"fmt"

	"billing-ledger-backend/models"

	"gorm.io/gorm"
)

// Idempotency guard: decides what a save attempt is allowed to do before
// any write happens. Receipts are keyed by request_id and retained
// indefinitely; slip conflicts are keyed by (company, slip_number)
// independent of period.

type CheckOutcome int

const (
	// OutcomeFresh: unknown request_id, no slip collisions.
	OutcomeFresh CheckOutcome = iota
	// OutcomeReplayed: request_id fully committed before; the stored
	// outcome is returned unchanged, no new write occurs.
	OutcomeReplayed
	// OutcomeResume: notes are durable but the mirror update is still owed.
	// The caller resumes from the mirror stage only.
	OutcomeResume
	// OutcomeConflict: a different request already persisted one of the
	// slip numbers for this company.
	OutcomeConflict
)

type CheckResult struct {
	Outcome CheckOutcome
	Receipt *models.SaveReceipt
	// Existing holds the previously persisted notes on OutcomeConflict, so
	// a human can compare before deciding to overwrite.
	Existing []models.DeliveryNote
}

// CheckRequest classifies a save attempt. request_id replay wins over slip
// conflict: a retried request must observe its own prior outcome even if
// its slips now exist (they are its own).
func CheckRequest(db *gorm.DB, requestID, company string, slipNumbers []string) (CheckResult, error) {
	var receipt models.SaveReceipt
	err := db.Where("request_id = ?", requestID).First(&receipt).Error
	switch {
	case err == nil:
		if receipt.Stage == models.ReceiptMirrorPending {
			return CheckResult{Outcome: OutcomeResume, Receipt: &receipt}, nil
		}
		return CheckResult{Outcome: OutcomeReplayed, Receipt: &receipt}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return CheckResult{}, fmt.Errorf("receipt lookup failed: %w", err)
	}

	existing, err := FindNotesBySlips(db, company, slipNumbers)
	if err != nil {
		return CheckResult{}, err
	}
	if len(existing) > 0 {
		return CheckResult{Outcome: OutcomeConflict, Existing: existing}, nil
	}
	return CheckResult{Outcome: OutcomeFresh}, nil
}

// FindNotesBySlips loads persisted notes matching any of the slip numbers
// for the company, across all periods.
func FindNotesBySlips(db *gorm.DB, company string, slipNumbers []string) ([]models.DeliveryNote, error) {
	if len(slipNumbers) == 0 {
		return nil, nil
	}
	var notes []models.DeliveryNote
	err := db.Preload("Items").
		Where("company_name = ? AND slip_number IN ?", company, slipNumbers).
		Order("slip_number").
		Find(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("slip conflict lookup failed: %w", err)
	}
	return notes, nil
}
