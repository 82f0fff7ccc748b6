package controllers

import (
	"billing-ledger-backend/database"
	"billing-ledger-backend/ledger"
	"billing-ledger-backend/middlewares"
	"billing-ledger-backend/models"
	"billing-ledger-backend/utils"

	"github.com/gofiber/fiber/v2"
)

type createCompanyRequest struct {
	CompanyName  string `json:"company_name" validate:"required"`
	PostalCode   string `json:"postal_code"`
	Address      string `json:"address"`
	BuildingName string `json:"building_name"`
	Department   string `json:"department"`
	ClosingDay   string `json:"closing_day"`
}

func CreateCompany(c *fiber.Ctx) error {
	var req createCompanyRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}

	tenantDB, err := database.GetTenantDB(c)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	closingDay := req.ClosingDay
	if closingDay == "" {
		closingDay = "eom"
	}
	company := models.Company{
		CompanyName:  req.CompanyName,
		PostalCode:   req.PostalCode,
		Address:      req.Address,
		BuildingName: req.BuildingName,
		Department:   req.Department,
		ClosingDay:   closingDay,
		Active:       true,
	}

	if err := tenantDB.Create(&company).Error; err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "could not create company: "+err.Error())
	}
	return c.JSON(company)
}

func GetCompanies(c *fiber.Ctx) error {
	tenantDB, err := database.GetTenantDB(c)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	var companies []models.Company
	if err := tenantDB.Where("active = ?", true).Order("company_name").Find(&companies).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"companies": companies,
		"message":   "success",
	})
}

// LookupCompany resolves an extracted company name against the master via
// normalized matching, mirroring how the billing sheet rows are matched.
func LookupCompany(c *fiber.Ctx) error {
	name := c.Query("name")
	if name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name query param is required")
	}

	tenantDB, err := database.GetTenantDB(c)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	var companies []models.Company
	if err := tenantDB.Where("active = ?", true).Find(&companies).Error; err != nil {
		return err
	}

	for i := range companies {
		if utils.CompanyNamesMatch(companies[i].CompanyName, name) {
			return c.JSON(companies[i])
		}
	}
	return ledger.ErrCompanyNotFound
}
