package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dorm-open-data-backend/config"
	"dorm-open-data-backend/internal/model"
)

// Models lists every table managed by AutoMigrate.
var Models = []any{
	&model.Dormitory{},
	&model.Room{},
	&model.Application{},
	&model.AcceptedApplication{},
	&model.Payment{},
	&model.PushSubscription{},
}

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	logMode := logger.Warn
	if cfg.LogQueries {
		logMode = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	zap.L().Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	if cfg.Driver == "" || cfg.Driver == "postgres" {
		if err := applyPostgresDDL(db); err != nil {
			zap.L().Warn("failed to apply some PostgreSQL DDL, continuing without them", zap.Error(err))
		}
	}

	zap.L().Info("database initialization complete")
	return db, nil
}

// applyPostgresDDL adds constraints and indexes that AutoMigrate cannot express.
func applyPostgresDDL(db *gorm.DB) error {
	ddls := []string{
		"ALTER TABLE rooms DROP CONSTRAINT IF EXISTS rooms_bed_capacity_positive;",
		"ALTER TABLE rooms ADD CONSTRAINT rooms_bed_capacity_positive CHECK (bed_capacity >= 1);",

		"ALTER TABLE accepted_applications DROP CONSTRAINT IF EXISTS accepted_applications_year_format;",
		"ALTER TABLE accepted_applications " +
			"ADD CONSTRAINT accepted_applications_year_format CHECK (academic_year ~ '^[0-9]{4}/[0-9]{4}$');",

		// Overdue sweep scans pending rows by due date.
		"CREATE INDEX IF NOT EXISTS idx_payments_status_due_date ON payments (status, due_date);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
