package db

import (
	"context"
	"fmt"

	"sigqueue/internal/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	DB *gorm.DB
}

// NewStore opens the archive database. Without POSTGRES_DSN the store runs
// in no-db mode and every repository built on it reports errDBUnavailable.
func NewStore(cfg config.Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PostgresDSN == "" {
		log.Info("POSTGRES_DSN not set; poison archive disabled")
		return &Store{}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{DB: gdb}, nil
}

func (s *Store) Enabled() bool {
	return s != nil && s.DB != nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	if err := s.DB.WithContext(ctx).AutoMigrate(&PoisonMessageModel{}); err != nil {
		return fmt.Errorf("migrate poison archive: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
