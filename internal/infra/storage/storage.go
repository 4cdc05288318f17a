package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"crypto_terminal/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage is the durable store of alerts, candles, assets and user settings.
// It is constructed explicitly and handed to the components that need it.
type Storage struct {
	db *gorm.DB
}

// Open connects with the configured driver ("sqlite" or "postgres").
func Open(driver, path, dsn string) (*Storage, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(path)
	case "postgres":
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// NewSQLite opens (or creates) a SQLite database file.
func NewSQLite(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Pure Go driver, no cgo. Background writers share the file, so wait on locks.
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return migrate(db)
}

// NewPostgres connects to a PostgreSQL server.
func NewPostgres(dsn string) (*Storage, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return migrate(db)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}
}

func migrate(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(
		&domain.AlertRecord{},
		&domain.CandleRecord{},
		&domain.AssetInfo{},
		&domain.AppConfig{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Alert Operations
// ======================================================================================

// SaveAlert creates or replaces an alert record.
func (s *Storage) SaveAlert(ctx context.Context, a domain.Alert) error {
	rec := a.ToRecord()
	return s.db.WithContext(ctx).Save(&rec).Error
}

// DeleteAlert removes an alert record. Deleting a missing id is not an error.
func (s *Storage) DeleteAlert(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.AlertRecord{}).Error
}

// LoadAlerts returns every stored alert, oldest first.
func (s *Storage) LoadAlerts(ctx context.Context) ([]domain.Alert, error) {
	var recs []domain.AlertRecord
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Alert, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].ToAlert())
	}
	return out, nil
}

// ======================================================================================
// Candle Operations
// ======================================================================================

// MergeCandles upserts a series. Bars with an existing time are overwritten.
func (s *Storage) MergeCandles(ctx context.Context, symbol, interval string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	recs := make([]domain.CandleRecord, 0, len(candles))
	for _, c := range candles {
		recs = append(recs, domain.CandleRecord{
			Symbol: symbol, Interval: interval, Time: c.Time,
			Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(recs, 500).Error
}

// LoadCandles returns the latest limit bars, ascending by time.
// A non-positive limit returns the whole series.
func (s *Storage) LoadCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	q := s.db.WithContext(ctx).
		Where(map[string]any{"symbol": symbol, "interval": interval}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "time"}, Desc: true})
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []domain.CandleRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Candle, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].ToCandle())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// ======================================================================================
// Asset Operations
// ======================================================================================

// UpsertAsset creates or updates asset metadata
func (s *Storage) UpsertAsset(asset *domain.AssetInfo) error {
	return s.db.Save(asset).Error
}

// GetAsset retrieves asset metadata
func (s *Storage) GetAsset(asset string) (*domain.AssetInfo, error) {
	var info domain.AssetInfo
	err := s.db.First(&info, "asset = ?", asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetAllAssets retrieves all assets
func (s *Storage) GetAllAssets() ([]domain.AssetInfo, error) {
	var assets []domain.AssetInfo
	err := s.db.Order("asset asc").Find(&assets).Error
	return assets, err
}

// SetActiveAssets marks exactly the given assets active, creating missing rows.
func (s *Storage) SetActiveAssets(assets []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.AssetInfo{}).Where("is_active = ?", true).Update("is_active", false).Error; err != nil {
			return err
		}
		for _, a := range assets {
			info := domain.AssetInfo{Asset: a, IsActive: true}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "asset"}},
				DoUpdates: clause.Assignments(map[string]any{"is_active": true, "updated_at": time.Now()}),
			}).Create(&info).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a user configuration
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// LoadConfigMap loads all user configurations as a map
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
