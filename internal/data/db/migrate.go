package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/trackchat-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return err
	}
	return EnsureIndexes(db)
}

// EnsureIndexes creates the partial unique indexes gorm tags cannot
// express. Both postgres and sqlite support the WHERE form.
func EnsureIndexes(db *gorm.DB) error {
	// One active chat per website/visitor.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_one_active
		ON chat(website_id, visitor_id)
		WHERE status = 'active';
	`).Error; err != nil {
		return fmt.Errorf("create idx_chat_one_active: %w", err)
	}
	// One heartbeat row per website/visitor.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_activity_one_heartbeat
		ON activity(website_id, visitor_id)
		WHERE activity_type = 'Heartbeat';
	`).Error; err != nil {
		return fmt.Errorf("create idx_activity_one_heartbeat: %w", err)
	}
	// One person per email; blank emails are unconstrained.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_person_email_unique
		ON person(email)
		WHERE email <> '';
	`).Error; err != nil {
		return fmt.Errorf("create idx_person_email_unique: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_activity_visitor_type_time ON activity(visitor_id, activity_type, occurred_at);`).Error; err != nil {
		return fmt.Errorf("create idx_activity_visitor_type_time: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_chat_website_status_updated ON chat(website_id, status, updated_at);`).Error; err != nil {
		return fmt.Errorf("create idx_chat_website_status_updated: %w", err)
	}
	return nil
}
