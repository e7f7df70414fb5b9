package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// CreateImpactRecord inserts r. A second record for the same listing yields ErrDuplicate.
func CreateImpactRecord(ctx context.Context, db *gorm.DB, r *domain.ImpactRecord) error {
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetImpactByListing returns the impact record of listingID or ErrNotFound.
func GetImpactByListing(ctx context.Context, db *gorm.DB, listingID uint) (*domain.ImpactRecord, error) {
	var r domain.ImpactRecord
	if err := db.WithContext(ctx).Where("listing_id = ?", listingID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// SumCarbonByOwner sums the carbon of every listing owned by ownerID.
func SumCarbonByOwner(ctx context.Context, db *gorm.DB, ownerID uint) (float64, error) {
	var row struct{ Total float64 }
	err := db.WithContext(ctx).Table("impact_records AS ir").
		Select("COALESCE(SUM(ir.carbon_kg), 0) AS total").
		Joins("JOIN listings l ON l.id = ir.listing_id").
		Where("l.owner_id = ?", ownerID).
		Scan(&row).Error
	return row.Total, err
}

// ImpactTotals is a summed (carbon, energy, water) triple plus the number of
// records that contributed.
type ImpactTotals struct {
	CarbonKg  float64
	EnergyKWh float64 `gorm:"column:energy_kwh"`
	WaterL    float64
	Records   int64
}

// SumAllImpact sums every stored impact record.
func SumAllImpact(ctx context.Context, db *gorm.DB) (ImpactTotals, error) {
	var t ImpactTotals
	err := db.WithContext(ctx).Model(&domain.ImpactRecord{}).
		Select("COALESCE(SUM(carbon_kg), 0) AS carbon_kg, COALESCE(SUM(energy_kwh), 0) AS energy_kwh, COALESCE(SUM(water_l), 0) AS water_l, COUNT(*) AS records").
		Scan(&t).Error
	return t, err
}

// CompletedImpactRow is one completed transaction joined with its listing
// and, when present, the listing's impact record.
type CompletedImpactRow struct {
	TransactionID uint
	TypeCode      domain.TxType
	Category      domain.Category
	WeightKg      *float64
	CarbonKg      *float64
	EnergyKWh     *float64 `gorm:"column:energy_kwh"`
	WaterL        *float64
}

// ImpactScope restricts ListCompletedImpact. Zero fields mean "any".
type ImpactScope struct {
	OriginUserID uint
	FoundationID uint
}

// ListCompletedImpact returns one row per completed transaction in scope.
// The impact columns are nil when the listing has no stored record.
func ListCompletedImpact(ctx context.Context, db *gorm.DB, scope ImpactScope) ([]CompletedImpactRow, error) {
	q := db.WithContext(ctx).Table("transactions AS t").
		Select(`t.id AS transaction_id, t.type_code, l.category, l.weight_kg,
			ir.carbon_kg, ir.energy_kwh, ir.water_l`).
		Joins("JOIN listings l ON l.id = t.listing_id").
		Joins("LEFT JOIN impact_records ir ON ir.listing_id = l.id").
		Where("t.status = ?", domain.TxCompleted)
	if scope.OriginUserID != 0 {
		q = q.Where("t.origin_user_id = ?", scope.OriginUserID)
	}
	if scope.FoundationID != 0 {
		q = q.Where("t.foundation_id = ?", scope.FoundationID)
	}
	var out []CompletedImpactRow
	err := q.Order("t.id ASC").Scan(&out).Error
	return out, err
}

// SaveImpactRecord inserts or replaces the figures of r.ListingID.
func SaveImpactRecord(ctx context.Context, db *gorm.DB, r *domain.ImpactRecord) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "listing_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"carbon_kg", "energy_kwh", "water_l"}),
	}).Create(r).Error
}
