package database

import (
	"github.com/zjoart/paystack-settlements/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Connect opens the postgres pool. TranslateError lets repositories match
// gorm.ErrDuplicatedKey on unique violations.
func Connect(dbUrl string) {
	var err error
	DB, err = gorm.Open(postgres.Open(dbUrl), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Fatal("Failed to connect to database", logger.WithError(err))
	}
	logger.Info("Connected to database")
}

func Migrate(models ...interface{}) {
	if err := DB.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		logger.Warn("Could not ensure uuid-ossp extension", logger.WithError(err))
	}
	if err := DB.AutoMigrate(models...); err != nil {
		logger.Fatal("Failed to migrate database", logger.WithError(err))
	}
}
