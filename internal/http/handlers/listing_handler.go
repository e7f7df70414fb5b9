// Listing HTTP handlers.
//
// This file exposes the catalog:
//   - GET    /listings                    (browse with filters; ETag)
//   - POST   /listings                    (JSON or multipart with an "image" part)
//   - GET    /listings/mine               (the caller's listings, any status)
//   - POST   /listings/suggest-category   (classify a photo without publishing)
//   - GET    /listings/{id}
//   - PATCH  /listings/{id}               (owner or moderator)
//   - DELETE /listings/{id}               (owner or moderator)
//   - POST   /listings/{id}/takedown      (moderators only)
package handlers

import (
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/media"
	"github.com/tbourn/ecoprenda-backend/internal/services"
	"github.com/tbourn/ecoprenda-backend/internal/utils"
	"github.com/tbourn/ecoprenda-backend/internal/vision"
)

//
// DTOs
//

// ListingRequest is the JSON payload for publishing a garment. Price is
// optional; a listing without price can only be exchanged or donated.
type ListingRequest struct {
	Name        string           `json:"name"        binding:"required" example:"Chaqueta de jean"`
	Description string           `json:"description" example:"Poco uso, talla M"`
	Category    string           `json:"category"    binding:"required" example:"Chaqueta"`
	Size        string           `json:"size"        binding:"required" example:"M"`
	Condition   string           `json:"condition"   binding:"required" example:"Bueno"`
	WeightKg    *float64         `json:"weight_kg,omitempty" example:"0.8"`
	Price       *decimal.Decimal `json:"price,omitempty" swaggertype:"string" example:"45000"`
}

// UpdateListingRequest is a partial edit. Omitted fields stay unchanged.
type UpdateListingRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Size        *string          `json:"size,omitempty"`
	Condition   *string          `json:"condition,omitempty"`
	WeightKg    *float64         `json:"weight_kg,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty" swaggertype:"string"`
	ClearPrice  bool             `json:"clear_price,omitempty"`
}

// ListListingsResponse is one page of the catalog.
type ListListingsResponse struct {
	Listings   []domain.Listing `json:"listings"`
	Pagination Pagination       `json:"pagination"`
}

// SuggestCategoryRequest classifies a remote photo.
type SuggestCategoryRequest struct {
	ImageURL string `json:"image_url" binding:"required" example:"https://example.com/chaqueta.jpg"`
}

// SuggestCategoryResponse is the classifier's best guess.
type SuggestCategoryResponse struct {
	Suggestion vision.Suggestion `json:"suggestion"`
}

//
// Helpers
//

func listingFilter(c *gin.Context) services.ListingFilter {
	page, size := utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), 20),
		20, 100,
	)
	f := services.ListingFilter{
		Category:  c.Query("category"),
		Size:      c.Query("size"),
		Condition: c.Query("condition"),
		Query:     c.Query("q"),
		Status:    c.Query("status"),
		Page:      page,
		PageSize:  size,
	}
	if v, err := strconv.ParseUint(c.Query("owner_id"), 10, 64); err == nil {
		f.OwnerID = uint(v)
	}
	return f
}

// readImage reads the "image" part of a multipart request. A missing part
// yields nil. Oversized parts are passed through truncated at one byte past
// the limit so the service rejects them.
func readImage(c *gin.Context) (*services.ImageUpload, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidImage, err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidImage, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, media.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidImage, err)
	}
	return &services.ImageUpload{Filename: fh.Filename, Data: data}, nil
}

// multipartListing binds the form fields of a multipart create request.
func multipartListing(c *gin.Context) (services.ListingInput, error) {
	in := services.ListingInput{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
		Size:        c.PostForm("size"),
		Condition:   c.PostForm("condition"),
	}
	if v := strings.TrimSpace(c.PostForm("weight_kg")); v != "" {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, fmt.Errorf("%w: weight_kg must be a number", services.ErrInvalidInput)
		}
		in.WeightKg = &w
	}
	if v := strings.TrimSpace(c.PostForm("price")); v != "" {
		p, err := decimal.NewFromString(v)
		if err != nil {
			return in, fmt.Errorf("%w: price must be a number", services.ErrInvalidInput)
		}
		in.Price = &p
	}
	return in, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

//
// Handlers
//

// ListListings godoc
// @ID          listListings
// @Summary     Browse listings
// @Description Filters combine with AND. q ranks by fuzzy similarity against name and description.
// @Description Supports conditional requests with If-None-Match.
// @Tags        Listings
// @Produce     json
// @Param       category   query  string  false  "Category"  example(Camiseta)
// @Param       size       query  string  false  "Size"      example(M)
// @Param       condition  query  string  false  "Condition" example(Bueno)
// @Param       q          query  string  false  "Free text"
// @Param       owner_id   query  int     false  "Owner"
// @Param       status     query  string  false  "Status (default AVAILABLE, ALL for any)"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListListingsResponse
// @Success     304  "Not modified"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Router      /listings [get]
func (h *Handlers) ListListings(c *gin.Context) {
	ctx := c.Request.Context()
	f := listingFilter(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.listings.Stats(ctx, f); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		q := fnv.New32a()
		_, _ = q.Write([]byte(c.Request.URL.RawQuery))
		etag := fmt.Sprintf(`W/"listings:%d:%d:%x"`, count, ts, q.Sum32())
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page, err := h.listings.List(ctx, f)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListListingsResponse{
		Listings:   page.Items,
		Pagination: paginationOf(page.Page, page.PageSize, page.Total),
	})
}

// CreateListing godoc
// @ID          createListing
// @Summary     Publish a listing
// @Description Accepts JSON, or multipart/form-data with the same fields plus an optional "image" (JPEG, PNG or WebP up to 5 MiB).
// @Description When an image is present and no category matches, the classifier's suggestion may fill it in.
// @Tags        Listings
// @Accept      json
// @Accept      mpfd
// @Produce     json
// @Param       body   body      handlers.ListingRequest  false  "Listing (JSON)"
// @Param       image  formData  file                     false  "Photo (multipart)"
// @Success     201  {object}  domain.Listing
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse "Authentication required"
// @Router      /listings [post]
func (h *Handlers) CreateListing(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}

	var (
		in  services.ListingInput
		img *services.ImageUpload
		err error
	)
	if isMultipart(c) {
		if in, err = multipartListing(c); err != nil {
			writeError(c, err)
			return
		}
		if img, err = readImage(c); err != nil {
			writeError(c, err)
			return
		}
	} else {
		var req ListingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, category, size and condition are required")
			return
		}
		in = services.ListingInput{
			Name:        req.Name,
			Description: req.Description,
			Category:    req.Category,
			Size:        req.Size,
			Condition:   req.Condition,
			WeightKg:    req.WeightKg,
			Price:       req.Price,
		}
	}

	l, err := h.listings.Create(c.Request.Context(), a, in, img)
	if err != nil {
		writeError(c, err)
		return
	}
	h.created(c, l, "listings", l.ID)
}

// ListMyListings godoc
// @ID          listMyListings
// @Summary     My listings
// @Tags        Listings
// @Produce     json
// @Success     200  {array}   domain.Listing
// @Failure     401  {object}  handlers.ErrorResponse "Authentication required"
// @Router      /listings/mine [get]
func (h *Handlers) ListMyListings(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	ls, err := h.listings.ListMine(c.Request.Context(), a)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ls)
}

// SuggestCategory godoc
// @ID          suggestCategory
// @Summary     Suggest a category for a photo
// @Description Send a multipart "image" part, or JSON {"image_url": "..."}. A classifier outage yields an empty suggestion.
// @Tags        Listings
// @Accept      mpfd
// @Accept      json
// @Produce     json
// @Param       image  formData  file                             false  "Photo"
// @Param       body   body      handlers.SuggestCategoryRequest  false  "Photo URL"
// @Success     200  {object}  handlers.SuggestCategoryResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Router      /listings/suggest-category [post]
func (h *Handlers) SuggestCategory(c *gin.Context) {
	if _, okActor := h.actor(c); !okActor {
		return
	}
	var img vision.Image
	if isMultipart(c) {
		up, err := readImage(c)
		if err != nil {
			writeError(c, err)
			return
		}
		if up != nil {
			img.Bytes = up.Data
		}
	} else {
		var req SuggestCategoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_url is required")
			return
		}
		img.URL = req.ImageURL
	}
	s, err := h.listings.SuggestCategory(c.Request.Context(), img)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, SuggestCategoryResponse{Suggestion: s})
}

// GetListing godoc
// @ID          getListing
// @Summary     Get a listing
// @Tags        Listings
// @Produce     json
// @Param       id   path      int  true  "Listing ID"
// @Success     200  {object}  domain.Listing
// @Failure     404  {object}  handlers.ErrorResponse "Listing not found"
// @Router      /listings/{id} [get]
func (h *Handlers) GetListing(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	l, err := h.listings.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// UpdateListing godoc
// @ID          updateListing
// @Summary     Edit a listing
// @Description Only AVAILABLE listings without an open transaction can be edited.
// @Tags        Listings
// @Accept      json
// @Produce     json
// @Param       id    path      int                            true  "Listing ID"
// @Param       body  body      handlers.UpdateListingRequest  true  "Fields to change"
// @Success     200   {object}  domain.Listing
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     403   {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404   {object}  handlers.ErrorResponse "Listing not found"
// @Failure     409   {object}  handlers.ErrorResponse "Listing busy"
// @Router      /listings/{id} [patch]
func (h *Handlers) UpdateListing(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body")
		return
	}
	l, err := h.listings.Update(c.Request.Context(), a, id, services.ListingPatch{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Size:        req.Size,
		Condition:   req.Condition,
		WeightKg:    req.WeightKg,
		Price:       req.Price,
		ClearPrice:  req.ClearPrice,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// DeleteListing godoc
// @ID          deleteListing
// @Summary     Delete a listing
// @Tags        Listings
// @Param       id  path  int  true  "Listing ID"
// @Success     204  "Deleted"
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse "Listing not found"
// @Failure     409  {object}  handlers.ErrorResponse "Listing busy"
// @Router      /listings/{id} [delete]
func (h *Handlers) DeleteListing(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	if err := h.listings.Delete(c.Request.Context(), a, id); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}

// TakeDownListing godoc
// @ID          takeDownListing
// @Summary     Remove a listing from the catalog
// @Tags        Listings
// @Produce     json
// @Param       id   path      int  true  "Listing ID"
// @Success     200  {object}  domain.Listing
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse "Listing not found"
// @Router      /listings/{id}/takedown [post]
func (h *Handlers) TakeDownListing(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	l, err := h.listings.TakeDown(c.Request.Context(), a, id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}
