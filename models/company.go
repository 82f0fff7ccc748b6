package models

import (
	"billing-ledger-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company is a row of the company master: billing address data plus the
// closing day that decides which billing period a delivery books into.
type Company struct {
	Id             string `json:"id" gorm:"primaryKey"`
	CompanyName    string `json:"company_name" gorm:"not null;unique"`
	NormalizedName string `json:"-" gorm:"index"`
	PostalCode     string `json:"postal_code"`
	Address        string `json:"address"`
	BuildingName   string `json:"building_name"`
	Department     string `json:"department"`
	// ClosingDay is "eom" or a day-of-month ("20"): deliveries after that
	// day book into the following month.
	ClosingDay string `json:"closing_day" gorm:"default:eom"`
	Active     bool   `json:"-" gorm:"default:true"`
}

func (company *Company) BeforeCreate(tx *gorm.DB) (err error) {
	// UUID version 4
	company.Id = uuid.NewString()
	company.NormalizedName = utils.NormalizeCompanyName(company.CompanyName)
	return
}

// FullAddress joins address and building name the way the invoice header
// prints them.
func (company *Company) FullAddress() string {
	if company.BuildingName == "" {
		return company.Address
	}
	return company.Address + " " + company.BuildingName
}
