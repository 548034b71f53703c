package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRecord is a row of the cart_snapshots table.
type SnapshotRecord struct {
	StorageKey string     `gorm:"column:storage_key;primaryKey"`
	Payload    string     `gorm:"column:payload;not null"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null"`
}

func (SnapshotRecord) TableName() string {
	return "cart_snapshots"
}

// SnapshotRepository stores cart snapshots in SQL.
type SnapshotRepository struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewSnapshotRepository binds the repository to the provided GORM handle.
func NewSnapshotRepository(db *gorm.DB, ttl time.Duration) (*SnapshotRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &SnapshotRepository{db: db, ttl: ttl, now: time.Now}, nil
}

func (r *SnapshotRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var record SnapshotRecord
	err := r.db.WithContext(ctx).Where("storage_key = ?", key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	if record.ExpiresAt != nil && !record.ExpiresAt.After(r.now()) {
		return nil, ErrSnapshotNotFound
	}
	return []byte(record.Payload), nil
}

func (r *SnapshotRepository) Save(ctx context.Context, key string, payload []byte) error {
	now := r.now().UTC()
	record := SnapshotRecord{
		StorageKey: key,
		Payload:    string(payload),
		UpdatedAt:  now,
	}
	if r.ttl > 0 {
		expires := now.Add(r.ttl)
		record.ExpiresAt = &expires
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at", "updated_at"}),
	}).Create(&record).Error
}

func (r *SnapshotRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("storage_key = ?", key).Delete(&SnapshotRecord{}).Error
}

// PurgeExpired removes rows whose TTL has elapsed and returns how many were deleted.
func (r *SnapshotRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", r.now().UTC()).Delete(&SnapshotRecord{})
	return res.RowsAffected, res.Error
}
