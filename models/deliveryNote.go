package models

import "time"

// DeliveryNote is the authoritative persisted record of a single delivery
// slip. Notes are immutable once saved; the only sanctioned mutation is the
// reconciliation repair path, which touches subtotal/tax/total and nothing
// else.
type DeliveryNote struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	CompanyName string `json:"company_name" gorm:"not null;index:idx_delivery_notes_company_slip,unique,priority:1"`
	// SlipNumber is the note's identity within a company, across all periods.
	SlipNumber string `json:"slip_number" gorm:"not null;index:idx_delivery_notes_company_slip,unique,priority:2"`
	Date       string `json:"date" gorm:"not null"` // YYYY/MM/DD
	YearMonth  string `json:"year_month" gorm:"not null;index:idx_delivery_notes_company_period"`

	Items []DeliveryItem `json:"items" gorm:"foreignKey:DeliveryNoteID;constraint:OnDelete:CASCADE"`

	// Money columns are integer minor currency units.
	Subtotal        int64 `json:"subtotal" gorm:"not null"`
	Tax             int64 `json:"tax" gorm:"not null"`
	Total           int64 `json:"total" gorm:"not null"`
	PaymentReceived int64 `json:"payment_received"`

	SalesPerson string    `json:"sales_person"`
	SavedAt     time.Time `json:"saved_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type DeliveryItem struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	DeliveryNoteID uint   `json:"-" gorm:"index"`
	ProductCode    string `json:"product_code"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPrice      int64  `json:"unit_price"`
	Amount         int64  `json:"amount"`
}
