package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// ListAchievements returns the achievement catalog ordered by threshold.
func ListAchievements(ctx context.Context, db *gorm.DB) ([]domain.Achievement, error) {
	var out []domain.Achievement
	err := db.WithContext(ctx).Order("threshold ASC, code ASC").Find(&out).Error
	return out, err
}

// GetAchievement fetches one catalog entry or returns ErrNotFound.
func GetAchievement(ctx context.Context, db *gorm.DB, code domain.AchievementCode) (*domain.Achievement, error) {
	var a domain.Achievement
	if err := db.WithContext(ctx).Where("code = ?", code).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// HeldAchievementCodes returns the set of codes userID has unlocked.
func HeldAchievementCodes(ctx context.Context, db *gorm.DB, userID uint) (map[domain.AchievementCode]bool, error) {
	var codes []domain.AchievementCode
	err := db.WithContext(ctx).Model(&domain.UserAchievement{}).
		Where("user_id = ?", userID).
		Pluck("achievement_code", &codes).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.AchievementCode]bool, len(codes))
	for _, c := range codes {
		out[c] = true
	}
	return out, nil
}

// CreateUserAchievement records a grant. A second grant of the same code to
// the same user yields ErrDuplicate.
func CreateUserAchievement(ctx context.Context, db *gorm.DB, userID uint, code domain.AchievementCode, at time.Time) (*domain.UserAchievement, error) {
	ua := &domain.UserAchievement{UserID: userID, AchievementCode: code, UnlockedAt: at}
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(ua).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return ua, nil
}

// ListUserAchievements returns the unlocked achievements of userID, newest first.
func ListUserAchievements(ctx context.Context, db *gorm.DB, userID uint) ([]domain.UserAchievement, error) {
	var out []domain.UserAchievement
	err := db.WithContext(ctx).Preload("Achievement").
		Where("user_id = ?", userID).
		Order("unlocked_at DESC, id DESC").
		Find(&out).Error
	return out, err
}
