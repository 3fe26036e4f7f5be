package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// KV is a string key/value store with local-storage semantics: last write wins.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// KVEntry is the row type backing GormKV.
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:128;not null"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string {
	return "kv_entries"
}

// GormKV keeps entries in a SQL table.
type GormKV struct {
	db *gorm.DB
}

// NewGormKV expects the KVEntry table to be migrated already (see OpenDB).
func NewGormKV(db *gorm.DB) *GormKV {
	return &GormKV{db: db}
}

func (s *GormKV) Get(ctx context.Context, key string) (string, error) {
	var entry KVEntry
	result := s.db.WithContext(ctx).Where("`key` = ?", key).Limit(1).Find(&entry)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", ErrNotFound
	}
	return entry.Value, nil
}

func (s *GormKV) Set(ctx context.Context, key, value string) error {
	entry := KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *GormKV) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("`key` = ?", key).Delete(&KVEntry{}).Error
}

// JSONStore stores plain JSON values, the unwrapped counterpart of
// securestore.Store.
type JSONStore struct {
	kv KV
}

func NewJSONStore(kv KV) *JSONStore {
	return &JSONStore{kv: kv}
}

func (s *JSONStore) Put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, string(raw))
}

// Fetch decodes the value under key into out. Unparseable values are reported
// as ErrNotFound, like a failed JSON.parse falling back to defaults.
func (s *JSONStore) Fetch(ctx context.Context, key string, out any) error {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode %s: %w", key, ErrNotFound)
	}
	return nil
}

func (s *JSONStore) Remove(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}
