// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// ListingsStats returns the number of listings matching q and the greatest
// UpdatedAt among them. When nothing matches, maxUpdatedAt is nil.
//
// Offset and limit in q are ignored; the stats describe the whole result set.
func ListingsStats(ctx context.Context, db *gorm.DB, q ListingQuery) (count int64, maxUpdatedAt *time.Time, err error) {
	q.Offset, q.Limit = 0, 0
	base := q.apply(db.WithContext(ctx).Model(&domain.Listing{}))

	if err = base.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = base.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// ConversationStats returns the number of messages between a and b and the
// creation time of the newest one.
func ConversationStats(ctx context.Context, db *gorm.DB, a, b uint) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a)

	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
