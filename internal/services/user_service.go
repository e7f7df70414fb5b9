package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/geo"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
)

// RegisterInput is the public sign-up payload.
type RegisterInput struct {
	Name  string
	Email string
}

// Profile is a user with their public activity.
type Profile struct {
	User         domain.User              `json:"user"`
	Listings     int64                    `json:"listings"`
	Achievements []domain.UserAchievement `json:"achievements"`
}

// UserService manages accounts, roles and map locations.
type UserService struct {
	DB       *gorm.DB
	Geocoder geo.Geocoder
}

// Register creates a CLIENT account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > 120 {
		return nil, invalid("name is required (max 120 characters)")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, invalid("email is not valid")
	}
	u := &domain.User{Name: name, Email: strings.ToLower(addr.Address), Role: domain.RoleClient}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id uint) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return u, nil
}

// Profile returns a user with their listing count and unlocked achievements.
func (s *UserService) Profile(ctx context.Context, id uint) (*Profile, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Profile", trace.WithAttributes(attribute.Int64("user.id", int64(id))))
	defer span.End()

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := repo.CountListingsByOwner(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	ach, err := repo.ListUserAchievements(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return &Profile{User: *u, Listings: n, Achievements: ach}, nil
}

// Actor resolves the acting identity of userID from the store.
func (s *UserService) Actor(ctx context.Context, userID uint) (domain.Actor, error) {
	if userID == 0 {
		return domain.Actor{}, ErrUnauthenticated
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.ActorFor(u), nil
}

// SetRole changes the role of userID. Representatives must name the
// foundation they act for; other roles drop any foundation link.
func (s *UserService) SetRole(ctx context.Context, actor domain.Actor, userID uint, role domain.Role, foundationID *uint) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, denied("only an administrator can change roles")
	}
	if !role.Valid() {
		return nil, invalid("unknown role %q", role)
	}
	if role == domain.RoleFoundationRep {
		if foundationID == nil {
			return nil, invalid("foundation_id is required for %s", domain.RoleFoundationRep)
		}
		if _, err := repo.GetFoundation(ctx, s.DB, *foundationID); err != nil {
			return nil, mapNotFound(err, ErrFoundationNotFound)
		}
	} else {
		foundationID = nil
	}
	if err := repo.UpdateUserRole(ctx, s.DB, userID, role, foundationID); err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return s.Get(ctx, userID)
}

// UpdateLocation stores actor's address and map visibility. Geocoding is
// best-effort: when it fails the address is kept without coordinates and
// located is false.
func (s *UserService) UpdateLocation(ctx context.Context, actor domain.Actor, address string, showOnMap bool) (u *domain.User, located bool, err error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "UpdateLocation", trace.WithAttributes(attribute.Int64("user.id", int64(actor.UserID))))
	defer span.End()

	if actor.UserID == 0 {
		return nil, false, ErrUnauthenticated
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, false, invalid("address is required")
	}
	lat, lng := locate(ctx, s.Geocoder, address)
	if err := repo.UpdateUserLocation(ctx, s.DB, actor.UserID, address, lat, lng, showOnMap); err != nil {
		return nil, false, mapNotFound(err, ErrUserNotFound)
	}
	u, err = s.Get(ctx, actor.UserID)
	return u, lat != nil, err
}

// locate geocodes address, returning nil coordinates on any failure.
func locate(ctx context.Context, g geo.Geocoder, address string) (lat, lng *float64) {
	if g == nil {
		return nil, nil
	}
	p, err := g.Geocode(ctx, address)
	if err != nil {
		if !errors.Is(err, geo.ErrNoResults) && !errors.Is(err, geo.ErrDisabled) {
			CollaboratorFailed("geocoder")
			zerolog.Ctx(ctx).Warn().Err(err).Msg("geocoding failed")
		}
		return nil, nil
	}
	return &p.Lat, &p.Lng
}
