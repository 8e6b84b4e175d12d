// Package database provides platform schema migrations
package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/aethra/gridbase/internal/config"
	"github.com/aethra/gridbase/internal/models"
)

// RunMigrations brings the platform's meta tables up to date. User data
// tables are created through the meta API, never here.
func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.Base{},
		&models.Model{},
		&models.Column{},
		&models.LinkColumnOption{},
		&models.LookupColumnOption{},
		&models.RollupColumnOption{},
		&models.View{},
		&models.ViewColumn{},
		&models.Filter{},
		&models.Sort{},
		&models.Audit{},
		&config.SystemConfig{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate platform schema: %w", err)
	}
	return nil
}
