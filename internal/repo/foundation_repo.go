package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// CreateFoundation inserts f. A taken name yields ErrDuplicate.
func CreateFoundation(ctx context.Context, db *gorm.DB, f *domain.Foundation) error {
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetFoundation fetches a foundation by id or returns ErrNotFound.
func GetFoundation(ctx context.Context, db *gorm.DB, id uint) (*domain.Foundation, error) {
	var f domain.Foundation
	if err := db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// ListActiveFoundations returns active foundations ordered by name.
func ListActiveFoundations(ctx context.Context, db *gorm.DB) ([]domain.Foundation, error) {
	var out []domain.Foundation
	err := db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&out).Error
	return out, err
}

// ListMapFoundations returns active foundations that have coordinates.
func ListMapFoundations(ctx context.Context, db *gorm.DB) ([]domain.Foundation, error) {
	var out []domain.Foundation
	err := db.WithContext(ctx).
		Where("active = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", true).
		Order("name ASC").
		Find(&out).Error
	return out, err
}

// UpdateFoundationLocation stores the address and, when known, its coordinates.
func UpdateFoundationLocation(ctx context.Context, db *gorm.DB, id uint, address string, lat, lng *float64) error {
	res := db.WithContext(ctx).Model(&domain.Foundation{}).Where("id = ?", id).
		Updates(map[string]any{"address": address, "latitude": lat, "longitude": lng})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateCampaign inserts c.
func CreateCampaign(ctx context.Context, db *gorm.DB, c *domain.Campaign) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
}

// GetCampaign fetches a campaign by id or returns ErrNotFound.
func GetCampaign(ctx context.Context, db *gorm.DB, id uint) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListOpenCampaigns returns active campaigns whose window contains now,
// ending soonest first.
func ListOpenCampaigns(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Campaign, error) {
	var out []domain.Campaign
	err := db.WithContext(ctx).
		Where("active = ? AND start_date <= ? AND end_date >= ?", true, now, now).
		Order("end_date ASC").
		Find(&out).Error
	return out, err
}

// ListCampaignsByFoundation returns every campaign of foundationID, newest first.
func ListCampaignsByFoundation(ctx context.Context, db *gorm.DB, foundationID uint) ([]domain.Campaign, error) {
	var out []domain.Campaign
	err := db.WithContext(ctx).Where("foundation_id = ?", foundationID).Order("start_date DESC").Find(&out).Error
	return out, err
}

// UpdateCampaign persists every editable column of c.
func UpdateCampaign(ctx context.Context, db *gorm.DB, c *domain.Campaign) error {
	res := db.WithContext(ctx).Model(&domain.Campaign{}).Where("id = ?", c.ID).
		Updates(map[string]any{
			"name":                 c.Name,
			"description":          c.Description,
			"start_date":           c.StartDate,
			"end_date":             c.EndDate,
			"goal":                 c.Goal,
			"requested_categories": c.RequestedCategories,
			"active":               c.Active,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCampaign removes a campaign; donations keep their row with a null campaign.
func DeleteCampaign(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Campaign{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
