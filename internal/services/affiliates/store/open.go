package store

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"affiliate-system/config"
	"affiliate-system/internal/database"
)

// Open returns the store selected by cfg.Driver. The *gorm.DB is nil for the
// in-memory store.
func Open(cfg config.DBConfig) (Store, *gorm.DB, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Println("Using in-memory affiliate store, data is lost on restart")
		return NewMemory(), nil, nil
	case config.DriverPostgres, "":
		db, err := database.NewConnection(cfg.ConnectionString())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to db: %w", err)
		}
		if err := database.MigrateAffiliateDB(db); err != nil {
			return nil, nil, err
		}
		return NewGorm(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
