// Package store persists platform extractor configs in a local SQLite
// database so operators can save a working config once and reuse it
// across runs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
)

// ErrNotFound is returned when no saved platform matches the id.
var ErrNotFound = errors.New("platform not found")

// PlatformRecord is the stored form of one extractor config. The config
// itself travels as JSON so rule-shape changes never need a migration.
type PlatformRecord struct {
	PlatformID   string `gorm:"primaryKey;column:platform_id"`
	PlatformName string `gorm:"column:platform_name"`
	ConfigJSON   string `gorm:"column:config_json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (PlatformRecord) TableName() string { return "platforms" }

// Summary is one row of List output.
type Summary struct {
	PlatformID   string
	PlatformName string
	UpdatedAt    time.Time
}

// Store wraps the SQLite handle.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open opens, creating if needed, the database at path. An empty path
// resolves to the default location under the user config dir. gorm's own
// logger is discarded: stdout belongs to the result envelope alone.
func Open(path string, zlog *zap.Logger) (*Store, error) {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&PlatformRecord{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	zlog = zlog.Named("store")
	zlog.Debug("store opened", zap.String("path", path))
	return &Store{db: db, log: zlog}, nil
}

// DefaultPath is <user config dir>/auto-matrix-manager/platforms.db.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "auto-matrix-manager", "platforms.db"), nil
}

// Save inserts or replaces the config keyed by its platform_id. The
// original created_at survives a replace.
func (s *Store) Save(ctx context.Context, cfg *schemas.ExtractorConfig) error {
	if cfg.PlatformID == "" {
		return errors.New("platform_id is required")
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	rec := PlatformRecord{
		PlatformID:   cfg.PlatformID,
		PlatformName: cfg.PlatformName,
		ConfigJSON:   string(raw),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"platform_name", "config_json", "updated_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save platform %s: %w", cfg.PlatformID, err)
	}

	s.log.Info("platform saved", zap.String("platform_id", cfg.PlatformID))
	return nil
}

// Get loads one saved config. The record timestamps overwrite whatever
// the stored JSON carried.
func (s *Store) Get(ctx context.Context, platformID string) (*schemas.ExtractorConfig, error) {
	var rec PlatformRecord
	err := s.db.WithContext(ctx).First(&rec, "platform_id = ?", platformID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, platformID)
	}
	if err != nil {
		return nil, fmt.Errorf("load platform %s: %w", platformID, err)
	}

	var cfg schemas.ExtractorConfig
	if err := json.Unmarshal([]byte(rec.ConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("decode platform %s: %w", platformID, err)
	}
	cfg.CreatedAt = rec.CreatedAt.UTC().Format(time.RFC3339)
	cfg.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	return &cfg, nil
}

// List returns all saved platforms ordered by id.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	var recs []PlatformRecord
	if err := s.db.WithContext(ctx).Order("platform_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list platforms: %w", err)
	}
	out := make([]Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, Summary{
			PlatformID:   r.PlatformID,
			PlatformName: r.PlatformName,
			UpdatedAt:    r.UpdatedAt,
		})
	}
	return out, nil
}

// Delete removes one saved platform.
func (s *Store) Delete(ctx context.Context, platformID string) error {
	res := s.db.WithContext(ctx).Delete(&PlatformRecord{}, "platform_id = ?", platformID)
	if res.Error != nil {
		return fmt.Errorf("delete platform %s: %w", platformID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, platformID)
	}
	s.log.Info("platform deleted", zap.String("platform_id", platformID))
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
