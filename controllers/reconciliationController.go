package controllers

import (
	"strconv"

	"billing-ledger-backend/database"
	"billing-ledger-backend/ledger"
	"billing-ledger-backend/middlewares"
	"billing-ledger-backend/models"

	"github.com/gofiber/fiber/v2"
)

// GetDiscrepancies runs an on-demand reconciliation scan: store aggregates
// vs mirror values per (company, period).
func GetDiscrepancies(c *fiber.Ctx) error {
	tenantDB, err := database.GetTenantDB(c)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	discrepancies, err := ledger.Scan(tenantDB, billingMirror)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"discrepancies": discrepancies,
		"count":         len(discrepancies),
	})
}

type repairNoteRequest struct {
	Subtotal int64 `json:"subtotal" validate:"min=0"`
	Tax      int64 `json:"tax" validate:"min=0"`
	Total    int64 `json:"total" validate:"min=0"`
}

// RepairNote corrects subtotal/tax/total of one persisted note. The mirror
// is not touched; the response carries the fresh discrepancy list for the
// note's key so the operator sees the still-open delta.
func RepairNote(c *fiber.Ctx) error {
	noteID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid note id")
	}

	var req repairNoteRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}

	tenantDB, err := database.GetTenantDB(c)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	var note models.DeliveryNote
	if err := tenantDB.First(&note, uint(noteID)).Error; err != nil {
		return ledger.ErrNoteNotFound
	}

	if err := ledger.RepairNote(tenantDB, uint(noteID), req.Subtotal, req.Tax, req.Total); err != nil {
		return err
	}

	key := ledger.PeriodKey{Company: note.CompanyName, YearMonth: note.YearMonth}
	discrepancies, err := ledger.ScanKey(tenantDB, billingMirror, key)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"discrepancies": discrepancies,
	})
}
