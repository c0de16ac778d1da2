package config

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
	"p9e.in/mfgops/models"
)

func Migrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "20250301_create_core_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.User{}, &models.SMTPConfig{}, &models.ProductionPlan{})
			},
		},
		{
			ID: "20250315_create_checksheet_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.ChecksheetFolder{}, &models.ChecksheetTemplate{},
					&models.ChecksheetField{}, &models.ChecksheetImage{})
			},
		},
		{
			ID: "20250402_checksheet_version_uniqueness",
			Migrate: func(tx *gorm.DB) error {
				// Serializes version-number allocation: two concurrent
				// breaking updates on one lineage cannot both commit the
				// same version. The migrator retries on violation.
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_checksheet_templates_lineage_version
					ON checksheet_templates (parent_template_id, version)
					WHERE parent_template_id IS NOT NULL`).Error
			},
		},
		{
			ID: "20250402_checksheet_active_lookup",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_checksheet_templates_active
					ON checksheet_templates (parent_template_id, is_active)`).Error
			},
		},
	})
	return m.Migrate()
}
