package database

import (
	"fmt"

	"billing-ledger-backend/models"

	"gorm.io/gorm"
)

// MigrateTenantSchema applies (idempotent) schema migrations for a single
// tenant schema. It pins search_path to the tenant and performs:
// - AutoMigrate (tables/columns)
// - Indexes (note identity, period aggregation, receipts)
// - Basic CHECK constraints on money columns
func MigrateTenantSchema(schema string) error {
	if schema == "" {
		return fmt.Errorf("schema name is empty")
	}

	return DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`SET search_path = "` + schema + `", public`).Error; err != nil {
			return fmt.Errorf("set search_path failed: %w", err)
		}

		if err := tx.AutoMigrate(
			&models.Company{},
			&models.DeliveryNote{},
			&models.DeliveryItem{},
			&models.SaveReceipt{},
		); err != nil {
			return fmt.Errorf("tenant automigrate failed: %w", err)
		}

		indexes := []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_delivery_notes_company_slip ON delivery_notes (company_name, slip_number)`,
			`CREATE INDEX IF NOT EXISTS idx_delivery_notes_company_period ON delivery_notes (company_name, year_month)`,
			`CREATE INDEX IF NOT EXISTS idx_delivery_items_note ON delivery_items (delivery_note_id)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_save_receipts_request_id ON save_receipts (request_id)`,
		}
		for _, stmt := range indexes {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
			}
		}

		checks := []string{
			`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = 'delivery_notes'::regclass
					  AND conname  = 'chk_delivery_notes_amounts_nonneg'
				) THEN
					ALTER TABLE delivery_notes
					ADD CONSTRAINT chk_delivery_notes_amounts_nonneg
					CHECK (subtotal >= 0 AND tax >= 0 AND total >= 0);
				END IF;
			END $$;`,
			`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = 'delivery_items'::regclass
					  AND conname  = 'chk_delivery_items_amount_nonneg'
				) THEN
					ALTER TABLE delivery_items
					ADD CONSTRAINT chk_delivery_items_amount_nonneg
					CHECK (amount >= 0 AND quantity >= 0 AND unit_price >= 0);
				END IF;
			END $$;`,
		}
		for _, stmt := range checks {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("check constraint migration failed: %w", err)
			}
		}

		return nil
	})
}
