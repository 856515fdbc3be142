package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"affiliate-system/internal/database/models"
)

func NewConnection(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

func MigrateAffiliateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Affiliate{},
		&models.AffiliateClick{},
		&models.Referral{},
		&models.Commission{},
		&models.AffiliateEvent{},
	); err != nil {
		return fmt.Errorf("failed to migrate affiliate tables: %w", err)
	}
	log.Println("Affiliate tables migrated")
	return nil
}
