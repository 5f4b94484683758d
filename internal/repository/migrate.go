package repository

import (
	"fmt"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	"gorm.io/gorm"
)

// registeredModels returns all models that need migration.
func registeredModels() []any {
	return []any{
		&models.Deployment{},
		&models.DeploymentLog{},
	}
}

// Migrate brings the schema up to date for either supported dialect.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(registeredModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return runPostgresMigrations(db)
}

// runPostgresMigrations handles schema changes AutoMigrate can't express.
func runPostgresMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addTenantListingIndex,
	}
	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}
	return nil
}

// addTenantListingIndex serves the newest-first per-tenant listing.
func addTenantListingIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_deployments_tenant_created
		ON deployments(tenant_id, created_at DESC)
	`).Error
}
