package services

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
)

// CampaignInput is the editable part of a campaign. FoundationID is only
// read on creation.
type CampaignInput struct {
	FoundationID        uint
	Name                string
	Description         string
	StartDate           time.Time
	EndDate             time.Time
	Goal                int
	RequestedCategories []string
	Active              *bool
}

// CampaignProgress is a campaign with its completed donations.
type CampaignProgress struct {
	domain.Campaign
	Progress int64   `json:"progress"`
	Percent  float64 `json:"percent"`
	Open     bool    `json:"open"`
}

// CampaignService manages foundation donation drives.
type CampaignService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Create opens a campaign for in.FoundationID. Only its representative or
// an administrator may do so.
func (s *CampaignService) Create(ctx context.Context, actor domain.Actor, in CampaignInput) (*domain.Campaign, error) {
	tr := otel.Tracer("services/CampaignService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.Int64("foundation.id", int64(in.FoundationID))),
	)
	defer span.End()

	fid := in.FoundationID
	if !actor.Represents(&fid) && !actor.IsAdmin() {
		return nil, denied("only the foundation representative can create campaigns")
	}
	if _, err := repo.GetFoundation(ctx, s.DB, fid); err != nil {
		return nil, mapNotFound(err, ErrFoundationNotFound)
	}
	c := &domain.Campaign{FoundationID: fid, Active: true}
	if err := applyCampaign(c, in); err != nil {
		return nil, err
	}
	if err := repo.CreateCampaign(ctx, s.DB, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces the editable fields of a campaign.
func (s *CampaignService) Update(ctx context.Context, actor domain.Actor, id uint, in CampaignInput) (*domain.Campaign, error) {
	c, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := applyCampaign(c, in); err != nil {
		return nil, err
	}
	if err := repo.UpdateCampaign(ctx, s.DB, c); err != nil {
		return nil, mapNotFound(err, ErrCampaignNotFound)
	}
	return c, nil
}

// Delete removes a campaign. Its donations stay, without a campaign.
func (s *CampaignService) Delete(ctx context.Context, actor domain.Actor, id uint) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return mapNotFound(repo.DeleteCampaign(ctx, s.DB, id), ErrCampaignNotFound)
}

func (s *CampaignService) owned(ctx context.Context, actor domain.Actor, id uint) (*domain.Campaign, error) {
	c, err := repo.GetCampaign(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrCampaignNotFound)
	}
	fid := c.FoundationID
	if !actor.Represents(&fid) && !actor.IsAdmin() {
		return nil, denied("only the foundation representative can manage this campaign")
	}
	return c, nil
}

// ListActive returns the campaigns accepting donations now.
func (s *CampaignService) ListActive(ctx context.Context) ([]CampaignProgress, error) {
	at := now(s.Now)
	cs, err := repo.ListOpenCampaigns(ctx, s.DB, at)
	if err != nil {
		return nil, err
	}
	return s.withProgress(ctx, cs, at)
}

// ListForFoundation returns every campaign of foundationID with progress.
func (s *CampaignService) ListForFoundation(ctx context.Context, foundationID uint) ([]CampaignProgress, error) {
	cs, err := repo.ListCampaignsByFoundation(ctx, s.DB, foundationID)
	if err != nil {
		return nil, err
	}
	return s.withProgress(ctx, cs, now(s.Now))
}

// Get returns a campaign with its progress.
func (s *CampaignService) Get(ctx context.Context, id uint) (*CampaignProgress, error) {
	c, err := repo.GetCampaign(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrCampaignNotFound)
	}
	out, err := s.withProgress(ctx, []domain.Campaign{*c}, now(s.Now))
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *CampaignService) withProgress(ctx context.Context, cs []domain.Campaign, at time.Time) ([]CampaignProgress, error) {
	out := make([]CampaignProgress, 0, len(cs))
	for _, c := range cs {
		n, err := repo.CountCampaignDonations(ctx, s.DB, c.ID, domain.TxCompleted)
		if err != nil {
			return nil, err
		}
		out = append(out, CampaignProgress{Campaign: c, Progress: n, Percent: percent(n, c.Goal), Open: c.OpenAt(at)})
	}
	return out, nil
}

// percent is min(100, 100*progress/goal) with one decimal.
func percent(progress int64, goal int) float64 {
	if goal <= 0 {
		return 0
	}
	p := 100 * float64(progress) / float64(goal)
	return math.Min(100, math.Round(p*10)/10)
}

func applyCampaign(c *domain.Campaign, in CampaignInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > 120 {
		return invalid("name is required (max 120 characters)")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return invalid("start_date and end_date are required")
	}
	if in.EndDate.Before(in.StartDate) {
		return invalid("end_date must not be before start_date")
	}
	if in.Goal <= 0 {
		return invalid("goal must be greater than zero")
	}
	cats := make([]string, 0, len(in.RequestedCategories))
	for _, raw := range in.RequestedCategories {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		cat, ok := domain.ParseCategory(raw)
		if !ok {
			return invalid("unknown category %q", raw)
		}
		cats = append(cats, string(cat))
	}

	c.Name = name
	c.Description = strings.TrimSpace(in.Description)
	c.StartDate = in.StartDate.UTC()
	c.EndDate = in.EndDate.UTC()
	c.Goal = in.Goal
	c.RequestedCategories = strings.Join(cats, ",")
	if in.Active != nil {
		c.Active = *in.Active
	}
	return nil
}
