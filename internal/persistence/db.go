package persistence

import (
	"context"
	"database/sql"

	"gorm.io/gorm/logger"

	"graphsync/internal/core"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type DB struct {
	db     *gorm.DB
	Config *core.Config
}

func (db *DB) Model(a any) *gorm.DB {
	return db.db.Model(a)
}

func (db *DB) Init(_ context.Context) error {
	if db.Config.DATABASE_URL == "" {
		return ErrNoDatabase
	}

	gormDB, err := gorm.Open(postgres.Open(db.Config.DATABASE_URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	db.db = gormDB

	return gormDB.AutoMigrate(&DivergenceModel{})
}

func (db *DB) DB() (*sql.DB, error) {
	return db.db.DB()
}

func (db *DB) Shutdown(_ context.Context) error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}
