package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/hypermind-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsurePipelineIndexes(db)
}

// EnsurePipelineIndexes adds the Postgres-only partial indexes the
// dispatcher's hot queries rely on.
func EnsurePipelineIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_delivery_queued
		ON pipeline_delivery(pipeline_id, id)
		WHERE status = 'queued';
	`).Error; err != nil {
		return fmt.Errorf("create idx_delivery_queued: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_run_unfinished
		ON pipeline_run(created_at)
		WHERE status IN ('pending', 'running');
	`).Error; err != nil {
		return fmt.Errorf("create idx_run_unfinished: %w", err)
	}
	return nil
}
