package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// CreateUser inserts u. A taken e-mail yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUser fetches a user by id or returns ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsers fetches the users with the given ids, keyed by id.
func GetUsers(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.User, error) {
	out := make(map[uint]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []domain.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// FindFoundationRepresentative returns the first representative assigned to
// foundationID, or ErrNotFound.
func FindFoundationRepresentative(ctx context.Context, db *gorm.DB, foundationID uint) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("foundation_id = ? AND role = ?", foundationID, domain.RoleFoundationRep).
		Order("id ASC").
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserLocation stores the address and, when known, its coordinates.
func UpdateUserLocation(ctx context.Context, db *gorm.DB, id uint, address string, lat, lng *float64, showOnMap bool) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Updates(map[string]any{
			"address":     address,
			"latitude":    lat,
			"longitude":   lng,
			"show_on_map": showOnMap,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserRole changes the role and represented foundation of a user.
func UpdateUserRole(ctx context.Context, db *gorm.DB, id uint, role domain.Role, foundationID *uint) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Updates(map[string]any{"role": role, "foundation_id": foundationID})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMapUsers returns users that opted into the map and have coordinates.
func ListMapUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var users []domain.User
	err := db.WithContext(ctx).
		Where("show_on_map = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", true).
		Order("id ASC").
		Find(&users).Error
	return users, err
}

// UserExists reports whether a user with id exists.
func UserExists(ctx context.Context, db *gorm.DB, id uint) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
