package routes

import (
	"github.com/gofiber/fiber/v2"

	"billing-ledger-backend/controllers"
	"billing-ledger-backend/middlewares"
)

// Register wires all HTTP routes.
func Register(app *fiber.App) {
	api := app.Group("/api")

	// Public auth endpoints
	api.Post("/registration", controllers.Register)
	api.Post("/login", controllers.Login)
	api.Post("/logout", controllers.Logout)

	// Protected endpoints (JWT auth)
	protected := api.Group("")
	protected.Use(middlewares.IsAuthenticatedHeader())

	// Per-request tenant transaction (pins search_path and commits/rolls back)
	protected.Use(middlewares.TenantTx())

	// Billing ledger
	protected.Post("/billing/save", controllers.SaveBilling)
	protected.Post("/billing/payment", controllers.UpdatePayment)
	protected.Get("/billing/ledger", controllers.GetLedgerPeriod)
	protected.Get("/billing/notes", controllers.GetPeriodNotes)
	protected.Get("/billing/companies-and-months", controllers.GetCompaniesAndMonths)

	// Reconciliation
	protected.Get("/billing/discrepancies", controllers.GetDiscrepancies)
	protected.Put("/billing/notes/:id/repair", controllers.RepairNote)

	// Company master
	protected.Post("/company", controllers.CreateCompany)
	protected.Get("/companies", controllers.GetCompanies)
	protected.Get("/company/lookup", controllers.LookupCompany)
}
