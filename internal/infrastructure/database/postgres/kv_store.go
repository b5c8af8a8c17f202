// internal/infrastructure/database/postgres/kv_store.go
package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVEntry is one key-value pair with an absolute expiry
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (KVEntry) TableName() string {
	return "kv_entries"
}

// KVStore stores cart values in Postgres with the same contract as Redis:
// string keys, text values, expiry refreshed on every Set.
type KVStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewKVStore creates a Postgres-backed key-value store
func NewKVStore(db *gorm.DB) *KVStore {
	return &KVStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the live value for key. Expired rows read as missing.
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry KVEntry
	err := s.db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, s.now()).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set upserts the value and restarts its expiry
func (s *KVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := s.now()
	entry := KVEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: now.Add(ttl),
		UpdatedAt: now,
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
}

// Del removes key; removing a missing key succeeds
func (s *KVStore) Del(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&KVEntry{}).Error
}

// PurgeExpired deletes rows past their expiry and returns how many went
func (s *KVStore) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&KVEntry{})
	return result.RowsAffected, result.Error
}
