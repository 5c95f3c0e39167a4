// Package store persists profiles, portfolios and webhook bookkeeping in the
// Supabase Postgres database through gorm.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/popules/ticko-sub001/app/config"
	"github.com/popules/ticko-sub001/app/models"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultTimeout = 5 * time.Second

var ErrProfileNotFound = errors.New("profile not found")

type Store struct {
	db      *gorm.DB
	log     *zap.Logger
	timeout time.Duration
}

type gormZapWriter struct {
	logger *zap.Logger
}

func (w gormZapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// NewGormLogger routes gorm's slow-query and error output into zap.
func NewGormLogger(log *zap.Logger) logger.Interface {
	return logger.New(
		gormZapWriter{logger: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Open connects to Postgres with lib/pq, hands the pool to gorm and migrates
// the tables this service owns.
func Open(ctx context.Context, cfg config.PostgresConfig, log *zap.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL must be set")
	}

	sqlDB, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: NewGormLogger(log)})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	s, err := New(db, log, cfg.Timeout)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	log.Info("connected to postgres")
	return s, nil
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB, log *zap.Logger, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if err := db.AutoMigrate(
		&models.Profile{},
		&models.Position{},
		&models.Transaction{},
		&models.ResetTransaction{},
		&models.WebhookDelivery{},
		&models.Report{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log, timeout: timeout}, nil
}

// DB exposes the gorm handle for seeding and inspection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside one database transaction. The *Store passed to fn
// is bound to that transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, log: s.log, timeout: s.timeout})
	})
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}
