package db

import (
	"fmt"
	"time"

	"gamelend/config"
	"gamelend/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects with the configured driver. Duplicate-key errors are translated
// to gorm.ErrDuplicatedKey for both drivers.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "gamelend.db"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres, "":
		dialector = postgres.Open(cfg.DSNString())
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return conn, nil
}

// ConnectDB opens the database and runs migrations.
func ConnectDB(cfg config.DBConfig) (*gorm.DB, error) {
	conn, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Credential{},
		&models.Game{},
		&models.BorrowTransaction{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	// One live row per title and platform; a soft-deleted title can be added again.
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_live_title_platform
	  ON %s (LOWER(title), platform)
	  WHERE deleted_at IS NULL
	`, models.GameTable, models.GameTable)).Error; err != nil {
		return err
	}

	// At most one open borrow per user and game.
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_one_open_per_user_game
	  ON %s (user_id, game_id)
	  WHERE status = 'borrowed'
	`, models.TransactionTable, models.TransactionTable)).Error; err != nil {
		return err
	}

	// Overdue and open-borrow listings scan open rows by borrow date.
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_borrow_date
	  ON %s (borrow_date)
	  WHERE status = 'borrowed'
	`, models.TransactionTable, models.TransactionTable)).Error; err != nil {
		return err
	}

	return nil
}
