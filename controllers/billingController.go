package controllers

import (
	"billing-ledger-backend/database"
	"billing-ledger-backend/ledger"
	"billing-ledger-backend/middlewares"
	"billing-ledger-backend/models"

	"github.com/gofiber/fiber/v2"
)

var (
	orchestrator  *ledger.Orchestrator
	billingMirror ledger.Mirror
)

// Setup wires the billing controllers to the save orchestrator and the
// mirror adapter. Called once from main.
func Setup(o *ledger.Orchestrator, m ledger.Mirror) {
	orchestrator = o
	billingMirror = m
}

// SaveBilling runs the idempotent batch-save protocol.
// Status mapping: replayed/committed -> 200, conflict -> 409.
func SaveBilling(c *fiber.Ctx) error {
	var req ledger.SaveRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}

	tenantDB, err := database.GetTenantDB(c)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	result, err := orchestrator.Save(tenantDB, req)
	if err != nil {
		return err
	}
	if result.Status == ledger.StatusConflict {
		return c.Status(fiber.StatusConflict).JSON(result)
	}
	return c.JSON(result)
}

type updatePaymentRequest struct {
	Company   string `json:"company" validate:"required"`
	YearMonth string `json:"year_month" validate:"required"`
	Amount    int64  `json:"amount" validate:"min=0"`
	AddMode   bool   `json:"add_mode"`
}

// UpdatePayment sets or accumulates the payment cell on the mirror and
// returns the before/after pair for the caller's audit message.
func UpdatePayment(c *fiber.Ctx) error {
	var req updatePaymentRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}

	key := ledger.PeriodKey{Company: req.Company, YearMonth: req.YearMonth}
	previous, updated, err := billingMirror.SetPayment(key, req.Amount, req.AddMode)
	if err != nil {
		return err
	}

	action := "updated"
	if req.AddMode {
		action = "added"
	}
	return c.JSON(fiber.Map{
		"previous_value": previous,
		"new_value":      updated,
		"message":        action + ": " + req.Company + " " + req.YearMonth,
	})
}

// GetLedgerPeriod reads one company-period cell group from the mirror.
func GetLedgerPeriod(c *fiber.Ctx) error {
	key := ledger.PeriodKey{
		Company:   c.Query("company"),
		YearMonth: c.Query("period"),
	}
	if key.Company == "" || key.YearMonth == "" {
		return fiber.NewError(fiber.StatusBadRequest, "company and period query params are required")
	}

	state, err := billingMirror.Read(key)
	if err != nil {
		return err
	}
	return c.JSON(state)
}

// GetPeriodNotes returns the persisted delivery notes for one key,
// e.g. as input for the monthly invoice renderer.
func GetPeriodNotes(c *fiber.Ctx) error {
	key := ledger.PeriodKey{
		Company:   c.Query("company"),
		YearMonth: c.Query("period"),
	}
	if key.Company == "" || key.YearMonth == "" {
		return fiber.NewError(fiber.StatusBadRequest, "company and period query params are required")
	}

	tenantDB, err := database.GetTenantDB(c)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	notes, err := ledger.NotesForPeriod(tenantDB, key)
	if err != nil {
		return err
	}
	sales, tax := ledger.Accrue(notes)
	return c.JSON(fiber.Map{
		"notes":    notes,
		"subtotal": sales,
		"tax":      tax,
		"total":    sales + tax,
	})
}

// GetCompaniesAndMonths lists the distinct companies and periods known to
// the ledger store, for the repair/overview UI selectors.
func GetCompaniesAndMonths(c *fiber.Ctx) error {
	tenantDB, err := database.GetTenantDB(c)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	var companies []string
	if err := tenantDB.Model(&models.DeliveryNote{}).
		Distinct("company_name").Order("company_name").
		Pluck("company_name", &companies).Error; err != nil {
		return err
	}

	var yearMonths []string
	if err := tenantDB.Model(&models.DeliveryNote{}).
		Distinct("year_month").Order("year_month").
		Pluck("year_month", &yearMonths).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"companies":   companies,
		"year_months": yearMonths,
	})
}
