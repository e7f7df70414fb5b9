package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/geo"
	"github.com/tbourn/ecoprenda-backend/internal/impact"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
)

// DefaultMapCenter is used when no center is configured (Santiago de Chile).
var DefaultMapCenter = geo.Point{Lat: -33.4489, Lng: -70.6693}

const recentDonations = 10

// FoundationInput is the payload of a new foundation.
type FoundationInput struct {
	Name        string
	Description string
	Address     string
}

// FoundationDetails is the public page of a foundation.
type FoundationDetails struct {
	Foundation         domain.Foundation  `json:"foundation"`
	CompletedDonations int64              `json:"completed_donations"`
	Impact             ImpactSummary      `json:"impact"`
	Campaigns          []CampaignProgress `json:"campaigns"`
}

// Dashboard is the representative's overview of a foundation.
type Dashboard struct {
	Foundation domain.Foundation    `json:"foundation"`
	Pending    int64                `json:"pending"`
	InProcess  int64                `json:"in_process"`
	Completed  int64                `json:"completed"`
	ByStatus   []repo.StatusCount   `json:"by_status"`
	Recent     []domain.Transaction `json:"recent"`
	Campaigns  []CampaignProgress   `json:"campaigns"`
}

// MapPoint is one marker of the public map.
type MapPoint struct {
	ID   uint    `json:"id"`
	Kind string  `json:"kind"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// MapData is everything the public map shows.
type MapData struct {
	Center      geo.Point  `json:"center"`
	Foundations []MapPoint `json:"foundations"`
	Users       []MapPoint `json:"users"`
}

// FoundationService manages foundations and the public map.
type FoundationService struct {
	DB        *gorm.DB
	Geocoder  geo.Geocoder
	Campaigns *CampaignService
	MapCenter geo.Point
}

// Create registers a foundation (administrators only). The address is
// geocoded best-effort.
func (s *FoundationService) Create(ctx context.Context, actor domain.Actor, in FoundationInput) (*domain.Foundation, error) {
	tr := otel.Tracer("services/FoundationService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, denied("only an administrator can register foundations")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > 120 {
		return nil, invalid("name is required (max 120 characters)")
	}
	f := &domain.Foundation{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Address:     strings.TrimSpace(in.Address),
		Active:      true,
	}
	if f.Address != "" {
		f.Latitude, f.Longitude = locate(ctx, s.Geocoder, f.Address)
	}
	if err := repo.CreateFoundation(ctx, s.DB, f); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrFoundationExists
		}
		return nil, err
	}
	return f, nil
}

// ListActive returns the foundations accepting donations.
func (s *FoundationService) ListActive(ctx context.Context) ([]domain.Foundation, error) {
	return repo.ListActiveFoundations(ctx, s.DB)
}

// Get returns the public details of a foundation.
func (s *FoundationService) Get(ctx context.Context, id uint) (*FoundationDetails, error) {
	tr := otel.Tracer("services/FoundationService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.Int64("foundation.id", int64(id))))
	defer span.End()

	f, err := repo.GetFoundation(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrFoundationNotFound)
	}
	rows, err := repo.ListCompletedImpact(ctx, s.DB, repo.ImpactScope{FoundationID: id})
	if err != nil {
		return nil, err
	}
	var total impact.Figures
	for _, r := range rows {
		total = total.Add(rowFigures(r))
	}
	campaigns, err := s.campaigns(ctx, id)
	if err != nil {
		return nil, err
	}
	return &FoundationDetails{
		Foundation:         *f,
		CompletedDonations: int64(len(rows)),
		Impact:             summarize(total, int64(len(rows))),
		Campaigns:          campaigns,
	}, nil
}

// Dashboard summarizes the donations of a foundation for its representative
// or an administrator.
func (s *FoundationService) Dashboard(ctx context.Context, actor domain.Actor, id uint) (*Dashboard, error) {
	tr := otel.Tracer("services/FoundationService")
	ctx, span := tr.Start(ctx, "Dashboard", trace.WithAttributes(attribute.Int64("foundation.id", int64(id))))
	defer span.End()

	if !actor.Represents(&id) && !actor.IsAdmin() {
		return nil, denied("only the foundation representative can see its dashboard")
	}
	f, err := repo.GetFoundation(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrFoundationNotFound)
	}
	counts, err := repo.CountFoundationByStatus(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	recent, err := repo.ListTransactionsByFoundation(ctx, s.DB, id, "", recentDonations)
	if err != nil {
		return nil, err
	}
	campaigns, err := s.campaigns(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Foundation: *f, ByStatus: counts, Recent: recent, Campaigns: campaigns}
	for _, c := range counts {
		switch c.Status {
		case domain.TxPending, domain.TxReserved:
			d.Pending += c.Count
		case domain.TxInProgress:
			d.InProcess += c.Count
		case domain.TxCompleted:
			d.Completed += c.Count
		}
	}
	return d, nil
}

func (s *FoundationService) campaigns(ctx context.Context, id uint) ([]CampaignProgress, error) {
	if s.Campaigns == nil {
		return []CampaignProgress{}, nil
	}
	return s.Campaigns.ListForFoundation(ctx, id)
}

// UpdateLocation sets the address of a foundation (administrators only). A
// geocoding miss keeps the address without coordinates.
func (s *FoundationService) UpdateLocation(ctx context.Context, actor domain.Actor, id uint, address string) (*domain.Foundation, bool, error) {
	if !actor.IsAdmin() {
		return nil, false, denied("only an administrator can move a foundation")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, false, invalid("address is required")
	}
	lat, lng := locate(ctx, s.Geocoder, address)
	if err := repo.UpdateFoundationLocation(ctx, s.DB, id, address, lat, lng); err != nil {
		return nil, false, mapNotFound(err, ErrFoundationNotFound)
	}
	f, err := repo.GetFoundation(ctx, s.DB, id)
	if err != nil {
		return nil, false, mapNotFound(err, ErrFoundationNotFound)
	}
	return f, lat != nil, nil
}

// MapData returns the located active foundations and the users who opted in
// to the map.
func (s *FoundationService) MapData(ctx context.Context) (*MapData, error) {
	fs, err := repo.ListMapFoundations(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	us, err := repo.ListMapUsers(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	center := s.MapCenter
	if center == (geo.Point{}) {
		center = DefaultMapCenter
	}
	out := &MapData{Center: center, Foundations: make([]MapPoint, 0, len(fs)), Users: make([]MapPoint, 0, len(us))}
	for _, f := range fs {
		out.Foundations = append(out.Foundations, MapPoint{ID: f.ID, Kind: "foundation", Name: f.Name, Lat: *f.Latitude, Lng: *f.Longitude})
	}
	for _, u := range us {
		out.Users = append(out.Users, MapPoint{ID: u.ID, Kind: "user", Name: u.Name, Lat: *u.Latitude, Lng: *u.Longitude})
	}
	return out, nil
}
