package db

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shoptalk/pkg/models"
)

// NewDatabase creates a new database connection
func NewDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
		os.Getenv("DB_TIMEZONE"),
	)

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
		// Duplicate-key races in resolve-or-create depend on translated errors
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: false,
	}

	db, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// AutoMigrate runs database migrations using GORM
func AutoMigrate(db *gorm.DB) error {
	log.Info().Msg("Running GORM AutoMigrate...")

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Warn().Err(err).Msg("Could not create uuid-ossp extension")
	}

	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		return fmt.Errorf("failed to run GORM AutoMigrate: %w", err)
	}

	if err := createCustomIndexes(db); err != nil {
		log.Warn().Err(err).Msg("Failed to create some custom indexes")
	}

	log.Info().Msg("GORM AutoMigrate completed successfully")
	return nil
}

// createCustomIndexes creates the indexes GORM tags cannot express
func createCustomIndexes(db *gorm.DB) error {
	indexes := []string{
		// One conversation per (tenant, customer, store); the insert race in
		// resolve-or-create relies on this constraint
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_natural_key ON conversations(tenant_id, customer_phone, store_phone) WHERE deleted_at IS NULL`,

		// Webhook redelivery dedup key; empty IDs (failed sends) are exempt
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_channel_message_id ON messages(tenant_id, channel_message_id) WHERE channel_message_id <> ''`,

		// One active binding per channel type and store number
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_type_phone ON channels(type, store_phone) WHERE is_active = true AND deleted_at IS NULL`,

		// Conversation list is served newest-activity-first
		`CREATE INDEX IF NOT EXISTS idx_conversations_tenant_activity ON conversations(tenant_id, last_message_at DESC)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			log.Warn().Err(err).Str("index", idx).Msg("Failed to create index")
		}
	}

	return nil
}
