package ledger

import (
	"errors"
	"fmt"

	"billing-ledger-backend/models"

	"gorm.io/gorm"
)

// Reconciliation: compare store aggregates against the mirror per
// (company, period) and report non-zero deltas. Runs after every committed
// save and on demand.

type periodSum struct {
	CompanyName string
	YearMonth   string
	Subtotal    int64
	Tax         int64
}

// Scan diffs every (company, period) present in the store against the
// mirror. A missing mirror row or period counts as zeros, so notes saved
// while the mirror was unreachable still show up.
func Scan(db *gorm.DB, m Mirror) ([]Discrepancy, error) {
	var sums []periodSum
	err := db.Model(&models.DeliveryNote{}).
		Select("company_name, year_month, SUM(subtotal) AS subtotal, SUM(tax) AS tax").
		Group("company_name, year_month").
		Order("company_name, year_month").
		Scan(&sums).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate query failed: %w", err)
	}
	return diffSums(m, sums)
}

// ScanKey diffs a single (company, period).
func ScanKey(db *gorm.DB, m Mirror, key PeriodKey) ([]Discrepancy, error) {
	var sums []periodSum
	err := db.Model(&models.DeliveryNote{}).
		Select("company_name, year_month, SUM(subtotal) AS subtotal, SUM(tax) AS tax").
		Where("company_name = ? AND year_month = ?", key.Company, key.YearMonth).
		Group("company_name, year_month").
		Scan(&sums).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate query failed: %w", err)
	}
	return diffSums(m, sums)
}

func diffSums(m Mirror, sums []periodSum) ([]Discrepancy, error) {
	discrepancies := make([]Discrepancy, 0)
	for _, s := range sums {
		key := PeriodKey{Company: s.CompanyName, YearMonth: s.YearMonth}

		var sheetSales, sheetTax int64
		state, err := m.Read(key)
		switch {
		case err == nil:
			sheetSales, sheetTax = state.SalesAmount, state.TaxAmount
		case errors.Is(err, ErrCompanyNotFound), errors.Is(err, ErrPeriodNotFound):
			// Mirror has no cell yet; everything in the store is drift.
		default:
			return nil, fmt.Errorf("mirror read failed for %s: %w", key, err)
		}

		if s.Subtotal != sheetSales || s.Tax != sheetTax {
			discrepancies = append(discrepancies, Discrepancy{
				Company:       s.CompanyName,
				YearMonth:     s.YearMonth,
				DBSubtotal:    s.Subtotal,
				DBTax:         s.Tax,
				SheetSubtotal: sheetSales,
				SheetTax:      sheetTax,
			})
		}
	}
	return discrepancies, nil
}

// RepairNote mutates subtotal/tax/total of one persisted note, the only
// allowed post-commit mutation. The mirror is deliberately left alone:
// propagation requires a fresh scan and a human decision, otherwise a
// legitimate manual sheet edit would be double-counted.
func RepairNote(db *gorm.DB, noteID uint, subtotal, tax, total int64) error {
	if subtotal < 0 || tax < 0 {
		return &ValidationError{Field: "subtotal/tax", Reason: "must be non-negative"}
	}
	if subtotal+tax != total {
		return &ValidationError{Field: "total", Reason: fmt.Sprintf("total %d != subtotal %d + tax %d", total, subtotal, tax)}
	}

	res := db.Model(&models.DeliveryNote{}).
		Where("id = ?", noteID).
		Updates(map[string]any{
			"subtotal": subtotal,
			"tax":      tax,
			"total":    total,
		})
	if res.Error != nil {
		return fmt.Errorf("repair failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// NotesForPeriod returns the persisted notes for one key, oldest slip
// first. Used by the monthly detail endpoint and the invoice renderer.
func NotesForPeriod(db *gorm.DB, key PeriodKey) ([]models.DeliveryNote, error) {
	var notes []models.DeliveryNote
	err := db.Preload("Items").
		Where("company_name = ? AND year_month = ?", key.Company, key.YearMonth).
		Order("date, slip_number").
		Find(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("period notes query failed: %w", err)
	}
	return notes, nil
}
