// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for transactions.
//
// Listing back-references are explicit queries on the indexed listing_id
// column rather than ORM associations.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// CreateTransaction inserts t without touching its associations.
func CreateTransaction(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(t).Error
}

// GetTransaction fetches a transaction with its listing, or ErrNotFound.
func GetTransaction(ctx context.Context, db *gorm.DB, id uint) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := db.WithContext(ctx).Preload("Listing").First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// HasOpenTransaction reports whether listingID is referenced by a
// transaction that has not reached a terminal state, either as the listing
// being transferred or as the listing offered in an exchange.
func HasOpenTransaction(ctx context.Context, db *gorm.DB, listingID uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("(listing_id = ? OR offered_listing_id = ?) AND status IN ?", listingID, listingID, domain.OpenStatuses).
		Count(&n).Error
	return n > 0, err
}

// ListTransactionsByListing returns every transaction of a listing, newest first.
func ListTransactionsByListing(ctx context.Context, db *gorm.DB, listingID uint) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := db.WithContext(ctx).Where("listing_id = ?", listingID).Order("id DESC").Find(&out).Error
	return out, err
}

// ListTransactionsByOrigin returns transactions where userID is the origin party.
func ListTransactionsByOrigin(ctx context.Context, db *gorm.DB, userID uint) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := db.WithContext(ctx).Preload("Listing").
		Where("origin_user_id = ?", userID).Order("id DESC").Find(&out).Error
	return out, err
}

// ListTransactionsByDestination returns transactions where userID receives the listing.
func ListTransactionsByDestination(ctx context.Context, db *gorm.DB, userID uint) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := db.WithContext(ctx).Preload("Listing").
		Where("destination_user_id = ?", userID).Order("id DESC").Find(&out).Error
	return out, err
}

// ListTransactionsByFoundation returns the donations addressed to
// foundationID, optionally restricted to one status.
func ListTransactionsByFoundation(ctx context.Context, db *gorm.DB, foundationID uint, status domain.TxStatus, limit int) ([]domain.Transaction, error) {
	q := db.WithContext(ctx).Preload("Listing").Where("foundation_id = ?", foundationID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Transaction
	err := paginate(q, 0, limit).Order("id DESC").Find(&out).Error
	return out, err
}

// ListTransactionsByStatus returns every transaction in status, oldest first.
func ListTransactionsByStatus(ctx context.Context, db *gorm.DB, status domain.TxStatus) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := db.WithContext(ctx).Preload("Listing").Where("status = ?", status).Order("id ASC").Find(&out).Error
	return out, err
}

// UpdateTransactionIf writes fields (which must include the new status) only
// when the transaction is still in from. It reports whether it won.
func UpdateTransactionIf(ctx context.Context, db *gorm.DB, id uint, from domain.TxStatus, fields map[string]any) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountCompletedAsOrigin counts completed transactions of type t where
// userID is the origin party.
func CountCompletedAsOrigin(ctx context.Context, db *gorm.DB, userID uint, t domain.TxType) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("origin_user_id = ? AND type_code = ? AND status = ?", userID, t, domain.TxCompleted).
		Count(&n).Error
	return n, err
}

// CountCompletedAsParty counts completed transactions of type t where userID
// is either the origin or the destination.
func CountCompletedAsParty(ctx context.Context, db *gorm.DB, userID uint, t domain.TxType) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("(origin_user_id = ? OR destination_user_id = ?) AND type_code = ? AND status = ?", userID, userID, t, domain.TxCompleted).
		Count(&n).Error
	return n, err
}

// StatusCount is one row of a GROUP BY status aggregate.
type StatusCount struct {
	Status domain.TxStatus `json:"status"`
	Count  int64           `json:"count"`
}

// CountFoundationByStatus groups the donations of foundationID by status.
func CountFoundationByStatus(ctx context.Context, db *gorm.DB, foundationID uint) ([]StatusCount, error) {
	var out []StatusCount
	err := db.WithContext(ctx).Model(&domain.Transaction{}).
		Select("status, COUNT(*) AS count").
		Where("foundation_id = ?", foundationID).
		Group("status").
		Order("status").
		Scan(&out).Error
	return out, err
}

// CountCampaignDonations counts donations of campaignID in status.
func CountCampaignDonations(ctx context.Context, db *gorm.DB, campaignID uint, status domain.TxStatus) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("campaign_id = ? AND type_code = ? AND status = ?", campaignID, domain.TxDonation, status).
		Count(&n).Error
	return n, err
}

// CountCompleted counts all completed transactions on the platform.
func CountCompleted(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Transaction{}).Where("status = ?", domain.TxCompleted).Count(&n).Error
	return n, err
}
