package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
)

// Evaluator re-checks a user's achievements after an activity.
type Evaluator interface {
	Evaluate(ctx context.Context, userID uint) ([]domain.Achievement, error)
}

// AchievementService evaluates and grants badges.
type AchievementService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// progress returns the user's current measure for code.
func (s *AchievementService) progress(ctx context.Context, userID uint, code domain.AchievementCode) (float64, error) {
	switch code {
	case domain.AchievementDonor:
		n, err := repo.CountCompletedAsOrigin(ctx, s.DB, userID, domain.TxDonation)
		return float64(n), err
	case domain.AchievementSuperUser:
		n, err := repo.CountListingsByOwner(ctx, s.DB, userID)
		return float64(n), err
	case domain.AchievementExchanger:
		n, err := repo.CountCompletedAsParty(ctx, s.DB, userID, domain.TxExchange)
		return float64(n), err
	case domain.AchievementEcoWarrior:
		return repo.SumCarbonByOwner(ctx, s.DB, userID)
	}
	return 0, nil
}

// Evaluate grants every catalog achievement whose condition userID now meets
// and returns the newly granted ones.
func (s *AchievementService) Evaluate(ctx context.Context, userID uint) ([]domain.Achievement, error) {
	tr := otel.Tracer("services/AchievementService")
	ctx, span := tr.Start(ctx, "Evaluate",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	catalog, err := repo.ListAchievements(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	held, err := repo.HeldAchievementCodes(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	granted := []domain.Achievement{}
	for _, a := range catalog {
		if held[a.Code] {
			continue
		}
		v, err := s.progress(ctx, userID, a.Code)
		if err != nil {
			return granted, err
		}
		if v < a.Threshold {
			continue
		}
		ok, err := s.grant(ctx, userID, a.Code)
		if err != nil {
			return granted, err
		}
		if ok {
			granted = append(granted, a)
		}
	}
	return granted, nil
}

// grant inserts the grant and reports whether it was new. A concurrent
// duplicate grant is absorbed by the unique index.
func (s *AchievementService) grant(ctx context.Context, userID uint, code domain.AchievementCode) (bool, error) {
	_, err := repo.CreateUserAchievement(ctx, s.DB, userID, code, now(s.Now))
	if errors.Is(err, repo.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	achievementsGranted.WithLabelValues(string(code)).Inc()
	zerolog.Ctx(ctx).Info().Uint("user_id", userID).Str("achievement", string(code)).Msg("achievement unlocked")
	return true, nil
}

// Grant unlocks code for userID. It is idempotent and reports whether the
// achievement was newly granted.
func (s *AchievementService) Grant(ctx context.Context, userID uint, code domain.AchievementCode) (bool, error) {
	if _, err := repo.GetAchievement(ctx, s.DB, code); err != nil {
		return false, mapNotFound(err, ErrAchievementNotFound)
	}
	held, err := repo.HeldAchievementCodes(ctx, s.DB, userID)
	if err != nil {
		return false, err
	}
	if held[code] {
		return false, nil
	}
	return s.grant(ctx, userID, code)
}

// Unlock is the administrator's manual grant.
func (s *AchievementService) Unlock(ctx context.Context, actor domain.Actor, userID uint, code domain.AchievementCode) (bool, error) {
	if !actor.IsAdmin() {
		return false, denied("only an administrator can unlock achievements")
	}
	ok, err := repo.UserExists(ctx, s.DB, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrUserNotFound
	}
	return s.Grant(ctx, userID, code)
}

// ListCatalog returns every achievement definition.
func (s *AchievementService) ListCatalog(ctx context.Context) ([]domain.Achievement, error) {
	return repo.ListAchievements(ctx, s.DB)
}

// ListForUser returns the achievements userID has unlocked, newest first.
func (s *AchievementService) ListForUser(ctx context.Context, userID uint) ([]domain.UserAchievement, error) {
	return repo.ListUserAchievements(ctx, s.DB, userID)
}

// evaluateQuietly runs ev for every non-zero user id, logging failures.
func evaluateQuietly(ctx context.Context, ev Evaluator, userIDs ...uint) {
	if ev == nil {
		return
	}
	for _, id := range userIDs {
		if id == 0 {
			continue
		}
		if _, err := ev.Evaluate(ctx, id); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Uint("user_id", id).Msg("achievement evaluation failed")
		}
	}
}

func now(clock func() time.Time) time.Time {
	if clock != nil {
		return clock().UTC()
	}
	return time.Now().UTC()
}
