package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// Use modernc.org/sqlite (pure Go, no CGO)
	"gorm.io/driver/sqlite"
	_ "modernc.org/sqlite"
)

// DefaultPath is used when Config.Path is empty
const DefaultPath = "dvbt-viterbi.db"

// pragmas are applied to every connection of the run history database.
// WAL lets the web API read while a run is writing.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// DB holds the run history: decode runs and BER measurements
type DB struct {
	db     *gorm.DB
	logger *logger.Logger
}

// Config holds database configuration
type Config struct {
	Path      string        // SQLite file
	Retention time.Duration // runs older than this are pruned on open; 0 keeps everything
}

// NewDB opens (creating if needed) the run history database and migrates it
func NewDB(cfg Config, log *logger.Logger) (*DB, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if log == nil {
		log = logger.Nop()
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gdb, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: cfg.Path}, &gorm.Config{
		Logger: gormlogger.New(&gormLogAdapter{log: log}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{db: gdb, logger: log}
	if err := d.configure(); err != nil {
		_ = d.Close()
		return nil, err
	}
	if err := gdb.AutoMigrate(&DecodeRun{}, &BERMeasurement{}); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if cfg.Retention > 0 {
		if _, _, err := d.Prune(time.Now().Add(-cfg.Retention)); err != nil {
			_ = d.Close()
			return nil, err
		}
	}

	log.Info("Database initialized", logger.String("path", cfg.Path))
	return d, nil
}

func (d *DB) configure() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

// Prune deletes runs started before cutoff together with their BER
// measurements, returning how many of each were removed.
func (d *DB) Prune(cutoff time.Time) (runs, points int64, err error) {
	err = d.db.Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&DecodeRun{}).Select("run_id").Where("start_time < ?", cutoff)
		res := tx.Where("run_id IN (?)", old).Delete(&BERMeasurement{})
		if res.Error != nil {
			return res.Error
		}
		points = res.RowsAffected

		runs, err = NewDecodeRunRepository(tx).DeleteOlderThan(cutoff)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	if runs > 0 {
		d.logger.Info("Pruned old runs",
			logger.Int("runs", int(runs)),
			logger.Int("measurements", int(points)))
	}
	return runs, points, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the underlying GORM database instance
func (d *DB) GetDB() *gorm.DB {
	return d.db
}

// gormLogAdapter routes GORM warnings (slow queries) into our logger
type gormLogAdapter struct {
	log *logger.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}
