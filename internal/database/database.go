package database

import (
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/config"
	"github.com/ksred/escrow-api/internal/intent"
	"github.com/ksred/escrow-api/internal/ledger"
	"github.com/ksred/escrow-api/internal/types"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase() (*gorm.DB, error) {
	path := os.Getenv("DB_PATH")
	if path == "" {
		path = "escrow.db"
	}
	return Open(path)
}

// Open connects to the given sqlite database and runs migrations.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the full schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Intent{},
		&types.Balance{},
		&ledger.Holding{},
		&intent.IntentCounter{},
		&intent.UserIntent{},
		&config.Configuration{},
	)
}
