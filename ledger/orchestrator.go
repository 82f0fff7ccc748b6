package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"billing-ledger-backend/models"
	"billing-ledger-backend/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Orchestrator runs the save protocol:
//
//	RECEIVED -> CHECKING -> {REPLAYED | CONFLICT | CLEAR}
//	CLEAR/CONFLICT+force -> WRITING -> UPDATING_MIRROR -> COMMITTED
//
// The store write happens-before the mirror update happens-before the
// committed receipt. A mirror fault after the store commit is not rolled
// back; the attempt reports partial success and a retry with the same
// request_id resumes from the mirror stage.
type Orchestrator struct {
	mirror     Mirror
	locks      *KeyLocks
	taxRatePct int64
}

func NewOrchestrator(m Mirror) *Orchestrator {
	return &Orchestrator{
		mirror:     m,
		locks:      NewKeyLocks(),
		taxRatePct: DefaultTaxRatePct,
	}
}

// Save executes one SaveRequest against the tenant database.
// Returns a *ValidationError before any write for malformed input.
func (o *Orchestrator) Save(db *gorm.DB, req SaveRequest) (*SaveResult, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	// Classification and write share the per-key critical section: a
	// concurrent retry of the same request must observe the final receipt
	// stage, not the one it raced past. Slip races across periods still
	// land on the unique indexes for (company_name, slip_number) and
	// request_id.
	unlock := o.locks.Lock(req.Key())
	defer unlock()

	slips := make([]string, 0, len(req.DeliveryNotes))
	for _, n := range req.DeliveryNotes {
		slips = append(slips, n.SlipNumber)
	}

	check, err := CheckRequest(db, req.RequestID, req.Company, slips)
	if err != nil {
		return nil, err
	}

	switch check.Outcome {
	case OutcomeReplayed:
		var result SaveResult
		if len(check.Receipt.Outcome) > 0 {
			if err := json.Unmarshal(check.Receipt.Outcome, &result); err != nil {
				return nil, fmt.Errorf("stored outcome corrupt for request %s: %w", req.RequestID, err)
			}
		}
		result.Status = StatusReplayed
		return &result, nil

	case OutcomeResume:
		// Notes are already durable; only the mirror update is owed.
		return o.applyMirror(db, check.Receipt, nil)

	case OutcomeConflict:
		if !req.ForceOverwrite {
			return &SaveResult{Status: StatusConflict, ExistingNotes: check.Existing}, nil
		}
	}

	warnings := o.periodWarnings(db, req)
	for _, n := range req.DeliveryNotes {
		warnings = append(warnings, NoteWarnings(n, o.taxRatePct)...)
	}

	receipt, err := o.writeBatch(db, req, check.Existing)
	if err != nil {
		return nil, err
	}

	return o.applyMirror(db, receipt, warnings)
}

// periodWarnings flags notes whose date books into a different period than
// the request's, per the company's closing day. A mismatch is surfaced for
// confirmation, never corrected: the caller chose the period.
func (o *Orchestrator) periodWarnings(db *gorm.DB, req SaveRequest) []string {
	var company models.Company
	err := db.Where("normalized_name = ? AND active = ?", utils.NormalizeCompanyName(req.Company), true).
		First(&company).Error
	if err != nil {
		// No master row, nothing to check against.
		return nil
	}

	var warnings []string
	for _, n := range req.DeliveryNotes {
		target := utils.TargetPeriod(n.Date, company.ClosingDay)
		if target != "" && target != req.YearMonth {
			warnings = append(warnings, fmt.Sprintf(
				"slip %s: date %s books into %s under closing day %s, not %s",
				n.SlipNumber, n.Date, target, company.ClosingDay, req.YearMonth))
		}
	}
	return warnings
}

// writeBatch persists the batch and its receipt in one transaction. On
// overwrite the conflicting notes are deleted first and their sums
// subtracted from the mirror delta, so the additive update stays correct.
func (o *Orchestrator) writeBatch(db *gorm.DB, req SaveRequest, replaced []models.DeliveryNote) (*models.SaveReceipt, error) {
	now := time.Now().UTC()

	notes := make([]models.DeliveryNote, 0, len(req.DeliveryNotes))
	for _, in := range req.DeliveryNotes {
		items := make([]models.DeliveryItem, 0, len(in.Items))
		for _, it := range in.Items {
			items = append(items, models.DeliveryItem{
				ProductCode: it.ProductCode,
				ProductName: it.ProductName,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
				Amount:      it.Amount,
			})
		}
		notes = append(notes, models.DeliveryNote{
			CompanyName:     req.Company,
			SlipNumber:      in.SlipNumber,
			Date:            in.Date,
			YearMonth:       req.YearMonth,
			Items:           items,
			Subtotal:        in.Subtotal,
			Tax:             in.Tax,
			Total:           in.Total,
			PaymentReceived: in.PaymentReceived,
			SalesPerson:     req.SalesPerson,
			SavedAt:         now,
		})
	}

	newSales, newTax := Accrue(notes)
	removedSales, removedTax := Accrue(replaced)

	receipt := &models.SaveReceipt{
		RequestID:  req.RequestID,
		Company:    req.Company,
		YearMonth:  req.YearMonth,
		Stage:      models.ReceiptMirrorPending,
		DeltaSales: newSales - removedSales,
		DeltaTax:   newTax - removedTax,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if len(replaced) > 0 {
			ids := make([]uint, 0, len(replaced))
			for _, n := range replaced {
				ids = append(ids, n.ID)
			}
			if err := tx.Where("delivery_note_id IN ?", ids).Delete(&models.DeliveryItem{}).Error; err != nil {
				return fmt.Errorf("overwrite: item delete failed: %w", err)
			}
			if err := tx.Where("id IN ?", ids).Delete(&models.DeliveryNote{}).Error; err != nil {
				return fmt.Errorf("overwrite: note delete failed: %w", err)
			}
		}
		if err := tx.Create(&notes).Error; err != nil {
			return fmt.Errorf("note insert failed: %w", err)
		}
		if err := tx.Create(receipt).Error; err != nil {
			return fmt.Errorf("receipt insert failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// applyMirror pushes the receipt's delta to the mirror, promotes the
// receipt to committed and runs the post-save scan for the touched key.
func (o *Orchestrator) applyMirror(db *gorm.DB, receipt *models.SaveReceipt, warnings []string) (*SaveResult, error) {
	key := PeriodKey{Company: receipt.Company, YearMonth: receipt.YearMonth}

	state, err := o.mirror.ApplyDelta(key, receipt.DeltaSales, receipt.DeltaTax)
	if err != nil {
		// The store write stands; the receipt stays mirror_pending so the
		// same request_id resumes here.
		var mErr *MirrorUnavailableError
		if !errors.As(err, &mErr) {
			mErr = &MirrorUnavailableError{Err: err}
		}
		log.Printf("mirror update pending for %s (request %s): %v", key, receipt.RequestID, err)
		return &SaveResult{
			Status:        StatusCommitted,
			MirrorPending: true,
			Warnings:      append(warnings, mErr.Error()),
		}, nil
	}

	result := &SaveResult{
		Status:   StatusCommitted,
		NewState: &state,
		Warnings: warnings,
	}

	// Record the outcome before returning so a concurrent or retried
	// identical request observes a replay.
	blob, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("outcome marshal failed: %w", err)
	}
	now := time.Now().UTC()
	err = db.Model(&models.SaveReceipt{}).
		Where("request_id = ?", receipt.RequestID).
		Updates(map[string]any{
			"stage":        models.ReceiptCommitted,
			"outcome":      datatypes.JSON(blob),
			"completed_at": &now,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("receipt promote failed: %w", err)
	}

	// Close the loop fast: scan the key we just touched.
	if discs, scanErr := ScanKey(db, o.mirror, key); scanErr != nil {
		log.Printf("post-save scan failed for %s: %v", key, scanErr)
	} else {
		result.Discrepancies = discs
	}

	return result, nil
}

func validateRequest(req *SaveRequest) error {
	req.Company = strings.TrimSpace(req.Company)
	req.YearMonth = strings.TrimSpace(req.YearMonth)
	req.RequestID = strings.TrimSpace(req.RequestID)

	if req.Company == "" {
		return &ValidationError{Field: "company", Reason: "must not be empty"}
	}
	if !utils.ValidYearMonth(req.YearMonth) {
		return &ValidationError{Field: "year_month", Reason: "expected YYYY-MM"}
	}
	if req.RequestID == "" {
		return &ValidationError{Field: "request_id", Reason: "must not be empty"}
	}
	if len(req.DeliveryNotes) == 0 {
		return &ValidationError{Field: "delivery_notes", Reason: "batch must not be empty"}
	}
	seen := make(map[string]bool, len(req.DeliveryNotes))
	for i, n := range req.DeliveryNotes {
		if strings.TrimSpace(n.SlipNumber) == "" {
			return &ValidationError{Field: "slip_number", Reason: fmt.Sprintf("note %d has no slip number", i)}
		}
		if seen[n.SlipNumber] {
			return &ValidationError{Field: "slip_number", Reason: fmt.Sprintf("duplicate slip %s within batch", n.SlipNumber)}
		}
		seen[n.SlipNumber] = true
	}
	return nil
}
