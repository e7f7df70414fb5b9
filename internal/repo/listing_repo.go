// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for listings.
//
// Status changes driven by the transaction engine go through
// SetListingStatusIf, a compare-and-set that only writes when the row is
// still in the expected state. Callers inspect the returned bool to learn
// whether they won.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// ListingQuery filters ListListings. Zero values mean "any".
type ListingQuery struct {
	OwnerID   uint
	Category  domain.Category
	Size      domain.Size
	Condition domain.Condition
	Statuses  []domain.ListingStatus
	Offset    int
	Limit     int
}

func (q ListingQuery) apply(db *gorm.DB) *gorm.DB {
	if q.OwnerID != 0 {
		db = db.Where("owner_id = ?", q.OwnerID)
	}
	if q.Category != "" {
		db = db.Where("category = ?", q.Category)
	}
	if q.Size != "" {
		db = db.Where("size = ?", q.Size)
	}
	if q.Condition != "" {
		db = db.Where("condition = ?", q.Condition)
	}
	if len(q.Statuses) > 0 {
		db = db.Where("status IN ?", q.Statuses)
	}
	return db
}

// CreateListing inserts l.
func CreateListing(ctx context.Context, db *gorm.DB, l *domain.Listing) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(l).Error
}

// GetListing fetches a listing with its impact record, or ErrNotFound.
func GetListing(ctx context.Context, db *gorm.DB, id uint) (*domain.Listing, error) {
	var l domain.Listing
	if err := db.WithContext(ctx).Preload("Impact").First(&l, id).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// ListListings returns a page of listings (newest first) and the total
// number of rows matching q.
func ListListings(ctx context.Context, db *gorm.DB, q ListingQuery) ([]domain.Listing, int64, error) {
	base := q.apply(db.WithContext(ctx).Model(&domain.Listing{}))

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Listing{}, 0, nil
	}

	var out []domain.Listing
	err := paginate(base.Session(&gorm.Session{}), q.Offset, q.Limit).
		Preload("Impact").
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, total, err
}

// UpdateListingFields applies a partial update. Status is never part of an edit.
func UpdateListingFields(ctx context.Context, db *gorm.DB, id uint, fields map[string]any) error {
	delete(fields, "status")
	if len(fields) == 0 {
		return nil
	}
	res := db.WithContext(ctx).Model(&domain.Listing{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteListing removes a listing; its impact record and transactions
// cascade through the foreign keys.
func DeleteListing(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Listing{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetListingStatusIf moves a listing from one status to another only when it
// is currently in from. It reports whether the row was updated.
func SetListingStatusIf(ctx context.Context, db *gorm.DB, id uint, from, to domain.ListingStatus) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Listing{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountListingsByOwner returns how many listings ownerID has published.
func CountListingsByOwner(ctx context.Context, db *gorm.DB, ownerID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Listing{}).Where("owner_id = ?", ownerID).Count(&n).Error
	return n, err
}
