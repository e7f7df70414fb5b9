package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/repo"
)

// IdempotencyRecorder remembers the transaction created for a
// (user, scope, Idempotency-Key) triple so that retries get the same result.
type IdempotencyRecorder struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Lookup returns the recorded resource id and status, if any.
func (r *IdempotencyRecorder) Lookup(ctx context.Context, userID uint, scope, key string) (id uint, status int, found bool) {
	if r == nil || r.DB == nil {
		return 0, 0, false
	}
	rec, err := repo.GetIdempotency(ctx, r.DB, userID, scope, key, time.Now().UTC())
	if err != nil || rec == nil {
		return 0, 0, false
	}
	return rec.ResourceID, rec.Status, true
}

// Remember stores the outcome. A failed write is logged and otherwise
// ignored; the worst case is a second proposal that the service rejects
// as busy.
func (r *IdempotencyRecorder) Remember(ctx context.Context, userID uint, scope, key string, resourceID uint, status int) {
	if r == nil || r.DB == nil {
		return
	}
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if _, err := repo.CreateIdempotency(ctx, r.DB, userID, scope, key, resourceID, status, ttl); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Uint("user_id", userID).
			Str("scope", scope).
			Uint("resource_id", resourceID).
			Msg("idempotency record not stored")
	}
}

// Exists adapts the recorder to middleware.IdempotencyLookup.
func (r *IdempotencyRecorder) Exists(ctx context.Context, userID uint, scope, key string, now time.Time) (bool, error) {
	if r == nil || r.DB == nil {
		return false, nil
	}
	_, err := repo.GetIdempotency(ctx, r.DB, userID, scope, key, now)
	if err != nil {
		if repo.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
