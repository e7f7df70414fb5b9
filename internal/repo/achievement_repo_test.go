package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

func TestUserAchievements_GrantOnce(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := mkUser(t, db, "ana")

	all, err := ListAchievements(ctx, db)
	if err != nil || len(all) != len(domain.AchievementCatalog) {
		t.Fatalf("catalog=%d err=%v", len(all), err)
	}
	if _, err := GetAchievement(ctx, db, "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown code: %v", err)
	}

	now := time.Now().UTC()
	if _, err := CreateUserAchievement(ctx, db, u.ID, domain.AchievementDonor, now); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := CreateUserAchievement(ctx, db, u.ID, domain.AchievementDonor, now); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second grant: want ErrDuplicate, got %v", err)
	}

	held, err := HeldAchievementCodes(ctx, db, u.ID)
	if err != nil || !held[domain.AchievementDonor] || len(held) != 1 {
		t.Fatalf("held=%v err=%v", held, err)
	}
	list, err := ListUserAchievements(ctx, db, u.ID)
	if err != nil || len(list) != 1 || list[0].Achievement == nil || list[0].Achievement.Code != domain.AchievementDonor {
		t.Fatalf("list=%v err=%v", list, err)
	}
}
