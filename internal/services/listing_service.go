// Package services – ListingService
//
// This file implements the catalog: publishing, browsing, editing and
// removing clothing listings. Publishing stores the photo through the media
// collaborator, asks the classifier for a category hint, and records the
// listing's environmental impact in the same database transaction as the
// listing itself.
//
// Collaborator failures never fail a publication: a failed upload leaves the
// listing without a photo and a failed classification leaves it without a
// suggestion. Both are logged and counted.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/impact"
	"github.com/tbourn/ecoprenda-backend/internal/media"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
	"github.com/tbourn/ecoprenda-backend/internal/search"
	"github.com/tbourn/ecoprenda-backend/internal/utils"
	"github.com/tbourn/ecoprenda-backend/internal/vision"
)

const (
	maxListingName        = 100
	maxListingDescription = 2000
	maxWeightKg           = 50

	listingFolder = "prendas"

	defaultPageSize = 20
	maxPageSize     = 100
)

// ListingInput is the payload of a new listing. Enumerations are matched
// ignoring case and accents.
type ListingInput struct {
	Name        string
	Description string
	Category    string
	Size        string
	Condition   string
	WeightKg    *float64
	Price       *decimal.Decimal
}

// ImageUpload is a photo attached to a new listing.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// ListingPatch is a partial edit. Nil fields are left unchanged; ClearPrice
// removes the price.
type ListingPatch struct {
	Name        *string
	Description *string
	Category    *string
	Size        *string
	Condition   *string
	WeightKg    *float64
	Price       *decimal.Decimal
	ClearPrice  bool
}

// ListingFilter selects listings for browsing. Status defaults to AVAILABLE;
// "ALL" disables the status filter.
type ListingFilter struct {
	Category  string
	Size      string
	Condition string
	Query     string
	OwnerID   uint
	Status    string
	Page      int
	PageSize  int
}

// ListingPage is one page of listings.
type ListingPage struct {
	Items    []domain.Listing `json:"items"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// ListingService manages the catalog.
type ListingService struct {
	DB           *gorm.DB
	Images       media.Store
	Classifier   vision.Classifier
	Achievements Evaluator

	// ClassifierThreshold is the minimum confidence stored as a suggestion.
	ClassifierThreshold float64
	// SearchThreshold is the minimum search score of a free-text match.
	SearchThreshold float64
}

// Create publishes a listing owned by the actor.
func (s *ListingService) Create(ctx context.Context, actor domain.Actor, in ListingInput, img *ImageUpload) (*domain.Listing, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.Int64("user.id", int64(actor.UserID))),
	)
	defer span.End()

	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	l, err := newListing(in)
	if err != nil {
		return nil, err
	}
	l.OwnerID = actor.UserID
	l.Status = domain.ListingAvailable

	if img != nil {
		ct, err := media.Validate(img.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		s.attachImage(ctx, l, img, ct)
		s.classify(ctx, l, vision.Image{URL: publicURL(l.ImageURL), Bytes: img.Data})
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateListing(ctx, tx, l); err != nil {
			return err
		}
		f := impact.ForCategory(l.Category, l.WeightKg)
		rec := &domain.ImpactRecord{ListingID: l.ID, CarbonKg: f.CarbonKg, EnergyKWh: f.EnergyKWh, WaterL: f.WaterL}
		if err := repo.CreateImpactRecord(ctx, tx, rec); err != nil {
			return err
		}
		l.Impact = rec
		return nil
	})
	if err != nil {
		s.dropImage(ctx, l.ImageID)
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Uint("listing_id", l.ID).Str("category", string(l.Category)).Msg("listing created")
	evaluateQuietly(ctx, s.Achievements, actor.UserID)
	return l, nil
}

func (s *ListingService) attachImage(ctx context.Context, l *domain.Listing, img *ImageUpload, ct string) {
	if s.Images == nil {
		return
	}
	st, err := s.Images.Upload(ctx, media.Upload{
		Folder:      listingFolder,
		ContentType: ct,
		Data:        img.Data,
		Transform:   media.ListingTransform,
	})
	if err != nil {
		CollaboratorFailed("media")
		zerolog.Ctx(ctx).Warn().Err(err).Str("filename", img.Filename).Msg("image upload failed; listing saved without photo")
		return
	}
	l.ImageURL, l.ImageID = st.URL, st.ID
}

func (s *ListingService) classify(ctx context.Context, l *domain.Listing, img vision.Image) {
	if s.Classifier == nil {
		return
	}
	dets, err := s.Classifier.Detect(ctx, img)
	if err != nil {
		if !errors.Is(err, vision.ErrDisabled) {
			CollaboratorFailed("classifier")
			zerolog.Ctx(ctx).Warn().Err(err).Msg("image classification failed")
		}
		return
	}
	sug := vision.Suggest(dets, s.ClassifierThreshold)
	if !sug.Accepted {
		return
	}
	conf := sug.Confidence
	l.SuggestedCategory = string(sug.Category)
	l.SuggestedConfidence = &conf
}

func (s *ListingService) dropImage(ctx context.Context, id string) {
	if s.Images == nil || id == "" {
		return
	}
	if err := s.Images.Delete(ctx, id); err != nil {
		CollaboratorFailed("media")
		zerolog.Ctx(ctx).Warn().Err(err).Str("image_id", id).Msg("image delete failed")
	}
}

// publicURL returns u when the classifier can fetch it, i.e. it is absolute.
func publicURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return ""
}

// Get returns a listing with its impact record.
func (s *ListingService) Get(ctx context.Context, id uint) (*domain.Listing, error) {
	l, err := repo.GetListing(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrListingNotFound)
	}
	return l, nil
}

// Query translates f into a repository query (without paging).
func (s *ListingService) Query(f ListingFilter) (repo.ListingQuery, error) {
	q := repo.ListingQuery{OwnerID: f.OwnerID}
	if v := strings.TrimSpace(f.Category); v != "" {
		c, ok := domain.ParseCategory(v)
		if !ok {
			return q, invalid("unknown category %q", v)
		}
		q.Category = c
	}
	if v := strings.TrimSpace(f.Size); v != "" {
		sz, ok := domain.ParseSize(v)
		if !ok {
			return q, invalid("unknown size %q", v)
		}
		q.Size = sz
	}
	if v := strings.TrimSpace(f.Condition); v != "" {
		c, ok := domain.ParseCondition(v)
		if !ok {
			return q, invalid("unknown condition %q", v)
		}
		q.Condition = c
	}
	switch st := domain.ListingStatus(strings.ToUpper(strings.TrimSpace(f.Status))); st {
	case "":
		q.Statuses = []domain.ListingStatus{domain.ListingAvailable}
	case "ALL":
	case domain.ListingAvailable, domain.ListingReserved, domain.ListingTransferred, domain.ListingRemoved:
		q.Statuses = []domain.ListingStatus{st}
	default:
		return q, invalid("unknown status %q", f.Status)
	}
	return q, nil
}

// Stats returns the size and freshness of the result set of f, for
// conditional responses.
func (s *ListingService) Stats(ctx context.Context, f ListingFilter) (int64, *time.Time, error) {
	q, err := s.Query(f)
	if err != nil {
		return 0, nil, err
	}
	return repo.ListingsStats(ctx, s.DB, q)
}

// List returns one page of listings, newest first. A free-text query ranks
// the filtered listings by relevance instead.
func (s *ListingService) List(ctx context.Context, f ListingFilter) (*ListingPage, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(attribute.String("query", f.Query)),
	)
	defer span.End()

	q, err := s.Query(f)
	if err != nil {
		return nil, err
	}
	page, size := utils.ClampPage(f.Page, f.PageSize, defaultPageSize, maxPageSize)
	out := &ListingPage{Page: page, PageSize: size}

	if text := strings.TrimSpace(f.Query); text != "" {
		all, _, err := repo.ListListings(ctx, s.DB, q)
		if err != nil {
			return nil, err
		}
		ranked := s.rank(all, text)
		out.Total = int64(len(ranked))
		out.Items = utils.PageSlice(ranked, page, size)
		return out, nil
	}

	q.Offset, q.Limit = (page-1)*size, size
	items, total, err := repo.ListListings(ctx, s.DB, q)
	if err != nil {
		return nil, err
	}
	out.Items, out.Total = items, total
	return out, nil
}

// rank orders listings by how well their text matches query, dropping the
// ones below the search threshold.
func (s *ListingService) rank(listings []domain.Listing, query string) []domain.Listing {
	docs := make([]search.Document, 0, len(listings))
	byID := make(map[uint]domain.Listing, len(listings))
	for _, l := range listings {
		docs = append(docs, search.Document{ID: l.ID, Text: l.Name + " " + l.Description + " " + string(l.Category)})
		byID[l.ID] = l
	}
	idx := search.NewIndex(docs,
		search.WithStopwords(search.SpanishStopwords),
		search.WithMinScore(s.SearchThreshold),
	)
	res := idx.TopK(query, 0)
	out := make([]domain.Listing, 0, len(res))
	for _, r := range res {
		out = append(out, byID[r.ID])
	}
	return out
}

// ListMine returns every listing of the actor regardless of status.
func (s *ListingService) ListMine(ctx context.Context, actor domain.Actor) ([]domain.Listing, error) {
	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	items, _, err := repo.ListListings(ctx, s.DB, repo.ListingQuery{OwnerID: actor.UserID})
	return items, err
}

// Update edits a listing owned by the actor. Status is never changed here;
// the impact record follows category and weight changes.
func (s *ListingService) Update(ctx context.Context, actor domain.Actor, id uint, p ListingPatch) (*domain.Listing, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.UserID)),
			attribute.Int64("listing.id", int64(id)),
		),
	)
	defer span.End()

	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}

	var out *domain.Listing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := repo.GetListing(ctx, tx, id)
		if err != nil {
			return mapNotFound(err, ErrListingNotFound)
		}
		if l.OwnerID != actor.UserID {
			return denied("only the owner can edit a listing")
		}
		if l.Status == domain.ListingTransferred || l.Status == domain.ListingRemoved {
			return ErrListingUnavailable
		}

		fields, recompute, err := patchFields(l, p)
		if err != nil {
			return err
		}
		if err := repo.UpdateListingFields(ctx, tx, id, fields); err != nil {
			return mapNotFound(err, ErrListingNotFound)
		}
		if recompute {
			f := impact.ForCategory(l.Category, l.WeightKg)
			rec := &domain.ImpactRecord{ListingID: l.ID, CarbonKg: f.CarbonKg, EnergyKWh: f.EnergyKWh, WaterL: f.WaterL}
			if err := repo.SaveImpactRecord(ctx, tx, rec); err != nil {
				return err
			}
		}
		out, err = repo.GetListing(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// patchFields validates p against l, applies it to l, and returns the
// column updates plus whether the impact figures changed.
func patchFields(l *domain.Listing, p ListingPatch) (map[string]any, bool, error) {
	fields := map[string]any{}
	recompute := false
	if p.Name != nil {
		name, err := cleanName(*p.Name)
		if err != nil {
			return nil, false, err
		}
		fields["name"], l.Name = name, name
	}
	if p.Description != nil {
		d, err := cleanDescription(*p.Description)
		if err != nil {
			return nil, false, err
		}
		fields["description"] = d
	}
	if p.Category != nil {
		c, ok := domain.ParseCategory(*p.Category)
		if !ok {
			return nil, false, invalid("unknown category %q", *p.Category)
		}
		recompute = recompute || c != l.Category
		fields["category"], l.Category = c, c
	}
	if p.Size != nil {
		sz, ok := domain.ParseSize(*p.Size)
		if !ok {
			return nil, false, invalid("unknown size %q", *p.Size)
		}
		fields["size"] = sz
	}
	if p.Condition != nil {
		c, ok := domain.ParseCondition(*p.Condition)
		if !ok {
			return nil, false, invalid("unknown condition %q", *p.Condition)
		}
		fields["condition"] = c
	}
	if p.WeightKg != nil {
		if err := checkWeight(p.WeightKg); err != nil {
			return nil, false, err
		}
		w := *p.WeightKg
		recompute = true
		fields["weight_kg"], l.WeightKg = w, &w
	}
	switch {
	case p.ClearPrice:
		fields["price"] = decimal.NullDecimal{}
	case p.Price != nil:
		if err := checkPrice(p.Price); err != nil {
			return nil, false, err
		}
		fields["price"] = decimal.NewNullDecimal(p.Price.Round(2))
	}
	return fields, recompute, nil
}

// Delete removes a listing. Owners delete their own; administrators delete
// any. Listings in an open transaction cannot be deleted.
func (s *ListingService) Delete(ctx context.Context, actor domain.Actor, id uint) error {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.UserID)),
			attribute.Int64("listing.id", int64(id)),
		),
	)
	defer span.End()

	if actor.UserID == 0 {
		return ErrUnauthenticated
	}

	var imageID string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := repo.GetListing(ctx, tx, id)
		if err != nil {
			return mapNotFound(err, ErrListingNotFound)
		}
		if l.OwnerID != actor.UserID && !actor.IsAdmin() {
			return denied("only the owner or an administrator can delete a listing")
		}
		if err := ensureIdle(ctx, tx, l.ID); err != nil {
			return err
		}
		imageID = l.ImageID
		return mapNotFound(repo.DeleteListing(ctx, tx, l.ID), ErrListingNotFound)
	})
	if err != nil {
		return err
	}
	s.dropImage(ctx, imageID)
	return nil
}

// TakeDown hides an AVAILABLE listing from the catalog (moderators only).
func (s *ListingService) TakeDown(ctx context.Context, actor domain.Actor, id uint) (*domain.Listing, error) {
	if !actor.IsModerator() {
		return nil, denied("only a moderator can take down listings")
	}

	var out *domain.Listing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := repo.GetListing(ctx, tx, id)
		if err != nil {
			return mapNotFound(err, ErrListingNotFound)
		}
		if l.Status == domain.ListingRemoved {
			out = l
			return nil
		}
		if err := ensureIdle(ctx, tx, l.ID); err != nil {
			return err
		}
		ok, err := repo.SetListingStatusIf(ctx, tx, l.ID, domain.ListingAvailable, domain.ListingRemoved)
		if err != nil {
			return err
		}
		if !ok {
			return ErrListingUnavailable
		}
		out, err = repo.GetListing(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Uint("listing_id", id).Uint("moderator_id", actor.UserID).Msg("listing taken down")
	return out, nil
}

// SuggestCategory classifies a photo given as bytes or URL. A classifier
// failure yields an empty suggestion, never an error.
func (s *ListingService) SuggestCategory(ctx context.Context, img vision.Image) (vision.Suggestion, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "SuggestCategory")
	defer span.End()

	img.URL = strings.TrimSpace(img.URL)
	if img.URL == "" && len(img.Bytes) == 0 {
		return vision.Suggestion{}, invalid("an image file or image_url is required")
	}
	if len(img.Bytes) > 0 {
		if _, err := media.Validate(img.Bytes); err != nil {
			return vision.Suggestion{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	if s.Classifier == nil {
		return unavailableSuggestion(), nil
	}
	dets, err := s.Classifier.Detect(ctx, img)
	if err != nil {
		if !errors.Is(err, vision.ErrDisabled) {
			CollaboratorFailed("classifier")
			zerolog.Ctx(ctx).Warn().Err(err).Msg("image classification failed")
		}
		return unavailableSuggestion(), nil
	}
	return vision.Suggest(dets, s.ClassifierThreshold), nil
}

func unavailableSuggestion() vision.Suggestion {
	return vision.Suggestion{
		Message:    "La clasificación automática no está disponible. Elige la categoría manualmente.",
		Detections: []vision.Detection{},
	}
}

// ---------------------------------------------------------------------------
// validation

func newListing(in ListingInput) (*domain.Listing, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	desc, err := cleanDescription(in.Description)
	if err != nil {
		return nil, err
	}
	cat, ok := domain.ParseCategory(in.Category)
	if !ok {
		return nil, invalid("category must be one of %v", domain.Categories)
	}
	size, ok := domain.ParseSize(in.Size)
	if !ok {
		return nil, invalid("size must be one of %v", domain.Sizes)
	}
	cond, ok := domain.ParseCondition(in.Condition)
	if !ok {
		return nil, invalid("condition must be one of %v", domain.Conditions)
	}
	if err := checkWeight(in.WeightKg); err != nil {
		return nil, err
	}
	l := &domain.Listing{
		Name:        name,
		Description: desc,
		Category:    cat,
		Size:        size,
		Condition:   cond,
		WeightKg:    in.WeightKg,
	}
	if in.Price != nil {
		if err := checkPrice(in.Price); err != nil {
			return nil, err
		}
		l.Price = decimal.NewNullDecimal(in.Price.Round(2))
	}
	return l, nil
}

// cleanName collapses whitespace and capitalizes the first word. Casers
// carry state, so one is built per call.
func cleanName(s string) (string, error) {
	words := strings.Fields(s)
	if len(words) == 0 {
		return "", invalid("name is required")
	}
	words[0] = cases.Title(language.Spanish, cases.NoLower).String(words[0])
	name := strings.Join(words, " ")
	if utf8.RuneCountInString(name) > maxListingName {
		return "", invalid("name must be at most %d characters", maxListingName)
	}
	return name, nil
}

func cleanDescription(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid("description is required")
	}
	if utf8.RuneCountInString(s) > maxListingDescription {
		return "", invalid("description must be at most %d characters", maxListingDescription)
	}
	return s, nil
}

func checkWeight(w *float64) error {
	if w != nil && (*w <= 0 || *w > maxWeightKg) {
		return invalid("weight_kg must be in (0, %d]", maxWeightKg)
	}
	return nil
}

func checkPrice(p *decimal.Decimal) error {
	if !p.IsPositive() {
		return invalid("price must be greater than zero")
	}
	return nil
}
